package node

import (
	"context"
	"errors"
	"fmt"

	"github.com/uhyunpark/meshbook/pkg/book"
	"github.com/uhyunpark/meshbook/pkg/protocol"
)

// Reply messages.
const (
	msgAlreadyProcessed = "already processed"
	msgUnexpectedError  = "unexpected error"
	msgUnknownAction    = "unknown action"
)

// Bootstrap asks one peer for its book and, if it answers in time, replaces
// the local book with the answer. Local state is kept on any failure. The
// node is Active when Bootstrap returns either way.
func (n *Node) Bootstrap(ctx context.Context) error {
	defer n.state.Store(int32(Active))

	ctx, cancel := context.WithTimeout(ctx, n.cfg.BootstrapTimeout)
	defer cancel()

	resp, err := n.tr.Request(ctx, n.cfg.Topic, protocol.NewGetOrderBook())
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("bootstrap: peer refused: %s", resp.Message)
	}

	n.book.Restore(resp.Snapshot())
	n.log.Infow("bootstrap_complete", "orders", len(resp.OrderBook), "trades", len(resp.Trades))
	return nil
}

// HandleRequest dispatches one inbound request. It always returns exactly one
// response and never panics.
func (n *Node) HandleRequest(_ context.Context, rid, key string, req protocol.Request) (resp protocol.Response) {
	defer func() {
		if r := recover(); r != nil {
			n.log.Errorw("request_panic", "rid", rid, "action", req.Action.String(), "panic", r)
			resp = protocol.Fail(msgUnexpectedError)
		}
	}()

	switch req.Action {
	case protocol.ActionCreate:
		if n.id.Owns(req.Client) {
			return protocol.OK(msgAlreadyProcessed)
		}
		n.log.Debugw("remote_order", "rid", rid, "from", req.Client, "symbol", req.Symbol,
			"qty", req.Quantity, "price", req.Price, "side", req.Side.String())
		return n.create(req.Symbol, req.Quantity, req.Price, req.Side, req.Client)

	case protocol.ActionCancel:
		return n.cancel(req.OrderID, req.Client)

	case protocol.ActionGetOrderBook:
		return protocol.SnapshotResponse(n.book.Snapshot())

	default:
		n.log.Debugw("unknown_action", "rid", rid, "key", key, "action", int(req.Action))
		return protocol.Fail(msgUnknownAction)
	}
}

func (n *Node) create(symbol string, qty, price int64, side book.Side, client string) protocol.Response {
	if _, err := n.book.CreateOrder(symbol, qty, price, side, client); err != nil {
		n.log.Errorw("order_create_failed", "client", client, "err", err)
		return protocol.Fail(book.ErrInternal.Error())
	}
	return protocol.OK(fmt.Sprintf("order placed: %s", client))
}

func (n *Node) cancel(orderID int64, client string) protocol.Response {
	err := n.book.CancelOrder(orderID, client)
	switch {
	case err == nil:
		return protocol.OK(fmt.Sprintf("orderId %d canceled", orderID))
	case errors.Is(err, book.ErrOwnership):
		return protocol.Fail(book.ErrOwnership.Error())
	case errors.Is(err, book.ErrNotFound):
		return protocol.Fail(book.ErrNotFound.Error())
	default:
		return protocol.Fail(msgUnexpectedError)
	}
}

// PlaceOrder creates an order owned by this node, applies it to the local
// book and then fans it out to peers in the background. Peers are not
// waited for and failed deliveries are not retried.
func (n *Node) PlaceOrder(symbol string, qty, price int64, side book.Side) (book.Order, error) {
	o, err := n.book.CreateOrder(symbol, qty, price, side, n.id.ClientID)
	if err != nil {
		return book.Order{}, err
	}
	n.log.Infow("order_placed", "order_id", o.OrderID, "symbol", o.Symbol,
		"qty", o.Quantity, "price", o.Price, "side", o.Side.String())

	req := protocol.NewCreate(o)
	n.spawn(func(ctx context.Context) {
		n.broadcast(ctx, req)
	})
	return o, nil
}

// CancelOrder cancels one of this node's own orders in the local book only.
// Cancellations are not propagated to peers.
func (n *Node) CancelOrder(orderID int64) error {
	return n.book.CancelOrder(orderID, n.id.ClientID)
}

func (n *Node) broadcast(ctx context.Context, req protocol.Request) {
	ctx, cancel := context.WithTimeout(ctx, n.cfg.BroadcastTimeout)
	defer cancel()

	replies, err := n.tr.Broadcast(ctx, n.cfg.Topic, req)
	if err != nil {
		n.log.Infow("broadcast_failed", "action", req.Action.String(), "err", err)
		return
	}
	for _, r := range replies {
		if r.Err != nil {
			n.log.Infow("broadcast_reply", "peer", r.Peer, "err", r.Err)
			continue
		}
		n.log.Debugw("broadcast_reply", "peer", r.Peer, "success", r.Response.Success, "message", r.Response.Message)
	}
}
