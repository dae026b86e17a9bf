package book

import "fmt"

// Side values match the wire encoding shared by every node.
type Side int8

const (
	Buy  Side = 1
	Sell Side = 2
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return fmt.Sprintf("Side(%d)", int8(s))
	}
}

// ParseSide accepts "BUY"/"SELL" in any case.
func ParseSide(s string) (Side, error) {
	switch s {
	case "BUY", "buy", "Buy":
		return Buy, nil
	case "SELL", "sell", "Sell":
		return Sell, nil
	}
	return 0, fmt.Errorf("%w: unknown side %q", ErrValidation, s)
}

// Order is a resting order. Quantity only ever decreases.
type Order struct {
	Symbol   string `msgpack:"symbol" json:"symbol"`
	Quantity int64  `msgpack:"quantity" json:"quantity"`
	Price    int64  `msgpack:"price" json:"price"`
	Side     Side   `msgpack:"side" json:"side"`
	OrderID  int64  `msgpack:"orderId" json:"orderId"`
	Client   string `msgpack:"client" json:"client"`
}

// Trade is an executed match. Price is always the sell order's price, the
// seller is recorded as maker and the buyer as taker.
type Trade struct {
	Symbol      string `msgpack:"symbol" json:"symbol"`
	Quantity    int64  `msgpack:"quantity" json:"quantity"`
	Price       int64  `msgpack:"price" json:"price"`
	SellOrderID int64  `msgpack:"sellOrderId" json:"sellOrderId"`
	BuyOrderID  int64  `msgpack:"buyOrderId" json:"buyOrderId"`
	Maker       string `msgpack:"maker" json:"maker"`
	Taker       string `msgpack:"taker" json:"taker"`
}

// Snapshot is a detached copy of a book's state.
type Snapshot struct {
	Orders []Order `msgpack:"orderBook" json:"orderBook"`
	Trades []Trade `msgpack:"trades" json:"trades"`
}

// Level aggregates the resting quantity at one price.
type Level struct {
	Price    int64 `json:"price"`
	Quantity int64 `json:"quantity"`
	Orders   int   `json:"orders"`
}

// Depth is a per-symbol price ladder: bids high to low, asks low to high.
type Depth struct {
	Symbol string  `json:"symbol"`
	Bids   []Level `json:"bids"`
	Asks   []Level `json:"asks"`
}
