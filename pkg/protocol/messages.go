// Package protocol defines the request/response payloads exchanged between
// exchange nodes.
package protocol

import (
	"fmt"

	"github.com/uhyunpark/meshbook/pkg/book"
)

// Action discriminates request kinds on the wire.
type Action int

const (
	ActionCreate       Action = 1
	ActionCancel       Action = 2
	ActionGetOrderBook Action = 3
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "CREATE"
	case ActionCancel:
		return "CANCEL"
	case ActionGetOrderBook:
		return "GET_ORDERBOOK"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Request carries every field any action uses; unused ones stay zero.
type Request struct {
	Action   Action    `msgpack:"action" json:"action"`
	Symbol   string    `msgpack:"symbol,omitempty" json:"symbol,omitempty"`
	Quantity int64     `msgpack:"quantity,omitempty" json:"quantity,omitempty"`
	Price    int64     `msgpack:"price,omitempty" json:"price,omitempty"`
	Side     book.Side `msgpack:"side,omitempty" json:"side,omitempty"`
	OrderID  int64     `msgpack:"orderId,omitempty" json:"orderId,omitempty"`
	Client   string    `msgpack:"client,omitempty" json:"client,omitempty"`
}

// Response is the single reply every request receives. Failures are
// reported through Success and Message, never through a separate channel.
type Response struct {
	Success   bool         `msgpack:"success" json:"success"`
	Message   string       `msgpack:"message,omitempty" json:"message,omitempty"`
	OrderBook []book.Order `msgpack:"orderBook" json:"orderBook"`
	Trades    []book.Trade `msgpack:"trades" json:"trades"`
}

// Envelope frames a request on a stream with its routing metadata.
type Envelope struct {
	RID     string  `msgpack:"rid"`
	Key     string  `msgpack:"key"`
	Request Request `msgpack:"payload"`
}

func NewCreate(o book.Order) Request {
	return Request{
		Action:   ActionCreate,
		Symbol:   o.Symbol,
		Quantity: o.Quantity,
		Price:    o.Price,
		Side:     o.Side,
		Client:   o.Client,
	}
}

func NewCancel(orderID int64, client string) Request {
	return Request{Action: ActionCancel, OrderID: orderID, Client: client}
}

func NewGetOrderBook() Request {
	return Request{Action: ActionGetOrderBook}
}

func OK(msg string) Response { return Response{Success: true, Message: msg} }

func Fail(msg string) Response { return Response{Success: false, Message: msg} }

// SnapshotResponse answers GET_ORDERBOOK.
func SnapshotResponse(s book.Snapshot) Response {
	return Response{Success: true, OrderBook: s.Orders, Trades: s.Trades}
}

// Snapshot extracts the book state carried by a GET_ORDERBOOK reply.
func (r Response) Snapshot() book.Snapshot {
	return book.Snapshot{Orders: r.OrderBook, Trades: r.Trades}
}
