// Package node runs one exchange node: it keeps the local order book in sync
// with peers, serves their requests and pushes locally created orders out.
package node

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	tomb "gopkg.in/tomb.v2"

	"github.com/uhyunpark/meshbook/pkg/book"
	"github.com/uhyunpark/meshbook/pkg/identity"
	"github.com/uhyunpark/meshbook/pkg/ordergen"
	"github.com/uhyunpark/meshbook/pkg/p2p"
	"github.com/uhyunpark/meshbook/pkg/util"
)

// State is the sync state. A node goes from Bootstrapping to Active once and
// never leaves Active.
type State int32

const (
	Bootstrapping State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "ACTIVE"
	}
	return "BOOTSTRAPPING"
}

type Config struct {
	Topic            string
	AnnounceInterval time.Duration
	OrderInterval    time.Duration
	BootstrapTimeout time.Duration
	BroadcastTimeout time.Duration
	// GenerateOrders turns on the periodic random order flow.
	GenerateOrders bool
	// Meta is attached to every announcement.
	Meta map[string]string
}

func DefaultConfig() Config {
	return Config{
		Topic:            "rpc_exchange",
		AnnounceInterval: time.Second,
		OrderInterval:    10 * time.Second,
		BootstrapTimeout: 10 * time.Second,
		BroadcastTimeout: 20 * time.Second,
		GenerateOrders:   true,
	}
}

type Node struct {
	cfg  Config
	id   identity.Identity
	book *book.OrderBook
	tr   p2p.Transport
	gen  *ordergen.Generator
	log  *zap.SugaredLogger

	state atomic.Int32

	mu sync.Mutex
	t  *tomb.Tomb
}

// New wires a node. gen may be nil when GenerateOrders is off.
func New(cfg Config, id identity.Identity, ob *book.OrderBook, tr p2p.Transport, gen *ordergen.Generator, log *zap.SugaredLogger) *Node {
	n := &Node{
		cfg:  cfg,
		id:   id,
		book: ob,
		tr:   tr,
		gen:  gen,
		log:  util.OrNop(log).With("client", id.ClientID),
	}
	ob.OnTrade(func(t book.Trade) {
		n.log.Infow("trade_executed",
			"symbol", t.Symbol, "qty", t.Quantity, "price", t.Price,
			"buy_order", t.BuyOrderID, "sell_order", t.SellOrderID,
			"maker", t.Maker, "taker", t.Taker)
	})
	return n
}

func (n *Node) ClientID() string { return n.id.ClientID }

func (n *Node) Book() *book.OrderBook { return n.book }

func (n *Node) State() State { return State(n.state.Load()) }

// Peers lists the peers currently announced under the node's topic.
func (n *Node) Peers() []string { return n.tr.Peers(n.cfg.Topic) }

// Run serves requests, announces the node, bootstraps from a peer and, if
// enabled, generates orders until ctx is cancelled.
func (n *Node) Run(ctx context.Context) error {
	t, ctx := tomb.WithContext(ctx)
	n.mu.Lock()
	n.t = t
	n.mu.Unlock()

	n.tr.OnRequest(n.cfg.Topic, n.HandleRequest)

	// The tomb cannot finish while n.t is set, so spawn may always call t.Go
	// on it under n.mu.
	t.Go(func() error {
		<-t.Dying()
		n.mu.Lock()
		n.t = nil
		n.mu.Unlock()
		return nil
	})
	t.Go(func() error { return n.heartbeat(ctx) })
	t.Go(func() error {
		if err := n.Bootstrap(ctx); err != nil {
			n.log.Warnw("bootstrap_failed", "err", err)
		}
		if n.cfg.GenerateOrders && n.gen != nil {
			t.Go(func() error { return n.generate(ctx) })
		}
		return nil
	})

	n.log.Infow("node_started", "topic", n.cfg.Topic, "peer", n.tr.ID())
	err := t.Wait()
	n.log.Infow("node_stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// heartbeat re-announces the node on every AnnounceInterval.
func (n *Node) heartbeat(ctx context.Context) error {
	ticker := time.NewTicker(n.cfg.AnnounceInterval)
	defer ticker.Stop()

	for {
		if err := n.tr.Announce(ctx, n.cfg.Topic, n.cfg.Meta); err != nil && ctx.Err() == nil {
			n.log.Debugw("announce_failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// generate places one random order per OrderInterval.
func (n *Node) generate(ctx context.Context) error {
	ticker := time.NewTicker(n.cfg.OrderInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			o := n.gen.Next()
			if _, err := n.PlaceOrder(o.Symbol, o.Quantity, o.Price, o.Side); err != nil {
				n.log.Errorw("generated_order_failed", "err", err)
			}
		}
	}
}

// spawn runs fn under the node's tomb while the node is running, and as a
// plain goroutine otherwise.
func (n *Node) spawn(fn func(ctx context.Context)) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if t := n.t; t != nil {
		t.Go(func() error {
			fn(t.Context(nil))
			return nil
		})
		return
	}
	go fn(context.Background())
}
