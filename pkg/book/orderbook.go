package book

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tidwall/btree"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrOwnership  = errors.New("ownership mismatch")
	ErrInternal   = errors.New("order creation failed")
	ErrValidation = errors.New("invalid order")
)

// OrderBook is a node's replica of the shared book: resting orders in
// insertion order plus an append-only trade log.
//
// Every exported method runs as one atomic step under mu, so a create and
// the matching pass it triggers are never interleaved with another mutation.
type OrderBook struct {
	mu     sync.Mutex
	orders []*Order
	trades []Trade

	obsMu     sync.RWMutex
	observers []func(Trade)
}

func NewOrderBook() *OrderBook {
	return &OrderBook{}
}

// OnTrade registers fn to be called for every trade this book executes.
// Observers run after the book lock is released, in execution order.
func (ob *OrderBook) OnTrade(fn func(Trade)) {
	ob.obsMu.Lock()
	ob.observers = append(ob.observers, fn)
	ob.obsMu.Unlock()
}

// CreateOrder appends a new order for client and rematches the whole book.
//
// The order id is the number of orders client currently has resting plus
// one. It is only unique per client and book state; ids can repeat once a
// client's earlier orders have been filled or cancelled.
//
// A fault during matching or in a trade observer is reported as
// ErrInternal. Mutations made before the fault are kept.
func (ob *OrderBook) CreateOrder(symbol string, quantity, price int64, side Side, client string) (Order, error) {
	created, trades, err := ob.create(symbol, quantity, price, side, client)
	nerr := ob.notify(trades)
	if err != nil {
		return created, err
	}
	return created, nerr
}

func (ob *OrderBook) create(symbol string, quantity, price int64, side Side, client string) (created Order, trades []Trade, err error) {
	ob.mu.Lock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrInternal, r)
		}
		ob.mu.Unlock()
	}()

	var owned int64
	for _, o := range ob.orders {
		if o.Client == client {
			owned++
		}
	}

	o := &Order{
		Symbol:   symbol,
		Quantity: quantity,
		Price:    price,
		Side:     side,
		OrderID:  owned + 1,
		Client:   client,
	}
	created = *o
	ob.orders = append(ob.orders, o)

	ob.orders, trades = match(ob.orders)
	ob.trades = append(ob.trades, trades...)
	return created, trades, nil
}

// CancelOrder removes every resting order with orderID that belongs to
// client. Because ids are per client, other clients may hold orders with the
// same id; those are left alone. It returns ErrOwnership when orderID only
// exists under other clients and ErrNotFound when it does not exist at all.
func (ob *OrderBook) CancelOrder(orderID int64, client string) error {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	var removed, foreign int
	kept := ob.orders[:0]
	for _, o := range ob.orders {
		switch {
		case o.OrderID != orderID:
			kept = append(kept, o)
		case o.Client == client:
			removed++
		default:
			foreign++
			kept = append(kept, o)
		}
	}
	clear(ob.orders[len(kept):])
	ob.orders = kept

	switch {
	case removed > 0:
		return nil
	case foreign > 0:
		return fmt.Errorf("order %d: %w", orderID, ErrOwnership)
	default:
		return fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}
}

// Snapshot returns a copy of the current orders and trades.
func (ob *OrderBook) Snapshot() Snapshot {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	snap := Snapshot{
		Orders: make([]Order, len(ob.orders)),
		Trades: make([]Trade, len(ob.trades)),
	}
	for i, o := range ob.orders {
		snap.Orders[i] = *o
	}
	copy(snap.Trades, ob.trades)
	return snap
}

// Restore replaces the book wholesale with snap. Nothing is merged; orders
// and trades accumulated locally before the call are discarded.
func (ob *OrderBook) Restore(snap Snapshot) {
	orders := make([]*Order, len(snap.Orders))
	for i := range snap.Orders {
		o := snap.Orders[i]
		orders[i] = &o
	}
	trades := make([]Trade, len(snap.Trades))
	copy(trades, snap.Trades)

	ob.mu.Lock()
	ob.orders = orders
	ob.trades = trades
	ob.mu.Unlock()
}

func (ob *OrderBook) Orders() []Order {
	return ob.Snapshot().Orders
}

// Trades returns the trade log, optionally filtered by symbol.
func (ob *OrderBook) Trades(symbol string) []Trade {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	out := make([]Trade, 0, len(ob.trades))
	for _, t := range ob.trades {
		if symbol == "" || t.Symbol == symbol {
			out = append(out, t)
		}
	}
	return out
}

// Len returns the number of resting orders and logged trades.
func (ob *OrderBook) Len() (orders, trades int) {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return len(ob.orders), len(ob.trades)
}

// Depth aggregates resting quantity per price level for symbol. It is a
// read-only view and has no effect on matching order.
func (ob *OrderBook) Depth(symbol string) Depth {
	bids := btree.NewBTreeG(func(a, b *Level) bool { return a.Price > b.Price })
	asks := btree.NewBTreeG(func(a, b *Level) bool { return a.Price < b.Price })

	ob.mu.Lock()
	for _, o := range ob.orders {
		if o.Symbol != symbol {
			continue
		}
		var levels *btree.BTreeG[*Level]
		switch o.Side {
		case Buy:
			levels = bids
		case Sell:
			levels = asks
		default:
			continue
		}
		if lv, ok := levels.Get(&Level{Price: o.Price}); ok {
			lv.Quantity += o.Quantity
			lv.Orders++
		} else {
			levels.Set(&Level{Price: o.Price, Quantity: o.Quantity, Orders: 1})
		}
	}
	ob.mu.Unlock()

	return Depth{
		Symbol: symbol,
		Bids:   flatten(bids.Items()),
		Asks:   flatten(asks.Items()),
	}
}

func flatten(levels []*Level) []Level {
	out := make([]Level, len(levels))
	for i, lv := range levels {
		out[i] = *lv
	}
	return out
}

// notify hands every trade to every observer. A panicking observer does not
// stop the others; the first panic is returned as ErrInternal.
func (ob *OrderBook) notify(trades []Trade) (err error) {
	if len(trades) == 0 {
		return nil
	}
	ob.obsMu.RLock()
	observers := ob.observers
	ob.obsMu.RUnlock()

	for _, t := range trades {
		for _, fn := range observers {
			if oerr := observe(fn, t); oerr != nil && err == nil {
				err = oerr
			}
		}
	}
	return err
}

func observe(fn func(Trade), t Trade) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: trade observer: %v", ErrInternal, r)
		}
	}()
	fn(t)
	return nil
}
