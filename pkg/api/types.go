package api

import "github.com/uhyunpark/meshbook/pkg/book"

// API response types for REST endpoints and WebSocket messages

// ==============================
// REST Response Types
// ==============================

// NodeStatus describes this node's view of the network
type NodeStatus struct {
	ClientID string   `json:"clientId"`
	PeerID   string   `json:"peerId"`
	State    string   `json:"state"` // "BOOTSTRAPPING" or "ACTIVE"
	Peers    []string `json:"peers"`
	Orders   int      `json:"orders"` // Resting orders
	Trades   int      `json:"trades"` // Executed trades
}

// OrderbookSnapshot is the full local book, in the same shape peers receive
type OrderbookSnapshot struct {
	Orders    []book.Order `json:"orderBook"`
	Trades    []book.Trade `json:"trades"`
	Timestamp int64        `json:"timestamp"` // Unix milliseconds
}

// DepthSnapshot is the aggregated price ladder of one symbol
type DepthSnapshot struct {
	Symbol    string       `json:"symbol"`
	Bids      []PriceLevel `json:"bids"` // Sorted high to low
	Asks      []PriceLevel `json:"asks"` // Sorted low to high
	Timestamp int64        `json:"timestamp"`
}

// PriceLevel is the resting size at one price
type PriceLevel struct {
	Price  int64 `json:"price"`
	Size   int64 `json:"size"`
	Orders int   `json:"orders"`
}

// JournalEntry is one persisted trade
type JournalEntry struct {
	Seq        uint64     `json:"seq"`
	RecordedAt int64      `json:"recordedAt"` // Unix milliseconds
	Trade      book.Trade `json:"trade"`
}

// ==============================
// Request Types
// ==============================

// SubmitOrderRequest creates an order owned by this node
type SubmitOrderRequest struct {
	Symbol   string `json:"symbol"`
	Quantity int64  `json:"quantity"`
	Price    int64  `json:"price"`
	Side     string `json:"side"` // "buy" or "sell"
}

// SubmitOrderResponse confirms a local create; peers are updated asynchronously
type SubmitOrderResponse struct {
	Status string     `json:"status"`
	Order  book.Order `json:"order"`
}

// CancelOrderRequest cancels one of this node's orders
type CancelOrderRequest struct {
	OrderID int64 `json:"orderId"`
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is a client subscription request
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["trades:BTC"]
}

// TradeUpdate is pushed to "trades:<symbol>" subscribers
type TradeUpdate struct {
	Type      string `json:"type"` // "trade"
	Symbol    string `json:"symbol"`
	Price     int64  `json:"price"`
	Size      int64  `json:"size"`
	SellOrder int64  `json:"sellOrderId"`
	BuyOrder  int64  `json:"buyOrderId"`
	Maker     string `json:"maker"`
	Taker     string `json:"taker"`
	Timestamp int64  `json:"timestamp"`
}

func toPriceLevels(levels []book.Level) []PriceLevel {
	out := make([]PriceLevel, len(levels))
	for i, lv := range levels {
		out[i] = PriceLevel{Price: lv.Price, Size: lv.Quantity, Orders: lv.Orders}
	}
	return out
}
