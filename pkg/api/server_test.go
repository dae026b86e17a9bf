package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/meshbook/pkg/book"
	"github.com/uhyunpark/meshbook/pkg/identity"
	"github.com/uhyunpark/meshbook/pkg/node"
	"github.com/uhyunpark/meshbook/pkg/p2p/local"
	"github.com/uhyunpark/meshbook/pkg/storage"
)

func newTestServer(t *testing.T, journal storage.Journal) (*Server, *node.Node) {
	t.Helper()
	cfg := node.DefaultConfig()
	cfg.GenerateOrders = false
	n := node.New(cfg, identity.Generate(), book.NewOrderBook(), local.NewNetwork().Join("a"), nil, nil)
	return NewServer(n, "peer-a", journal, nil), n
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := doJSON(t, s.Handler(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStatus(t *testing.T) {
	s, n := newTestServer(t, nil)
	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var st NodeStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, n.ClientID(), st.ClientID)
	assert.Equal(t, "peer-a", st.PeerID)
	assert.Equal(t, "BOOTSTRAPPING", st.State)
	assert.Empty(t, st.Peers)
}

func TestSubmitOrder(t *testing.T) {
	s, n := newTestServer(t, nil)
	h := s.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/v1/orders", SubmitOrderRequest{Symbol: "BTC", Quantity: 100, Price: 90, Side: "sell"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp SubmitOrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "placed", resp.Status)
	assert.Equal(t, n.ClientID(), resp.Order.Client)
	assert.EqualValues(t, 1, resp.Order.OrderID)
	assert.Equal(t, book.Sell, resp.Order.Side)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/orders", SubmitOrderRequest{Symbol: "BTC", Quantity: 150, Price: 100, Side: "buy"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/orderbook", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var snap OrderbookSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.Len(t, snap.Orders, 1)
	assert.EqualValues(t, 50, snap.Orders[0].Quantity)
	require.Len(t, snap.Trades, 1)
	assert.EqualValues(t, 90, snap.Trades[0].Price)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/trades?symbol=ETH", nil)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestSubmitOrder_Validation(t *testing.T) {
	s, n := newTestServer(t, nil)
	h := s.Handler()

	tests := []struct {
		name string
		req  SubmitOrderRequest
	}{
		{"missing symbol", SubmitOrderRequest{Quantity: 1, Price: 1, Side: "buy"}},
		{"zero quantity", SubmitOrderRequest{Symbol: "BTC", Price: 1, Side: "buy"}},
		{"negative price", SubmitOrderRequest{Symbol: "BTC", Quantity: 1, Price: -5, Side: "buy"}},
		{"bad side", SubmitOrderRequest{Symbol: "BTC", Quantity: 1, Price: 1, Side: "hold"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, "/api/v1/orders", tt.req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var e ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
			assert.Equal(t, "invalid order", e.Error)
		})
	}
	assert.Empty(t, n.Book().Orders())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelOrder(t *testing.T) {
	s, n := newTestServer(t, nil)
	h := s.Handler()

	_, err := n.PlaceOrder("BTC", 10, 10, book.Buy)
	require.NoError(t, err)
	_, err = n.Book().CreateOrder("BTC", 10, 50, book.Buy, "someone-else")
	require.NoError(t, err)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/orders/cancel", CancelOrderRequest{OrderID: 1})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/orders/cancel", CancelOrderRequest{OrderID: 1})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/orders/cancel", CancelOrderRequest{OrderID: 9})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/orders/cancel", CancelOrderRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDepth(t *testing.T) {
	s, n := newTestServer(t, nil)
	ob := n.Book()
	for _, o := range []struct {
		qty, price int64
		side       book.Side
	}{{5, 10, book.Buy}, {7, 10, book.Buy}, {3, 12, book.Buy}, {4, 20, book.Sell}} {
		_, err := ob.CreateOrder("ETH", o.qty, o.price, o.side, "c")
		require.NoError(t, err)
	}

	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/v1/orderbook/ETH/depth", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var d DepthSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Equal(t, "ETH", d.Symbol)
	assert.Equal(t, []PriceLevel{{Price: 12, Size: 3, Orders: 1}, {Price: 10, Size: 12, Orders: 2}}, d.Bids)
	assert.Equal(t, []PriceLevel{{Price: 20, Size: 4, Orders: 1}}, d.Asks)
}

func TestJournal(t *testing.T) {
	j, err := storage.OpenPebbleJournal(filepath.Join(t.TempDir(), "journal"))
	require.NoError(t, err)
	defer j.Close()

	s, n := newTestServer(t, j)
	n.Book().OnTrade(func(tr book.Trade) { require.NoError(t, j.Append(tr)) })

	_, err = n.Book().CreateOrder("BTC", 10, 5, book.Sell, "s")
	require.NoError(t, err)
	_, err = n.Book().CreateOrder("BTC", 10, 5, book.Buy, "b")
	require.NoError(t, err)

	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/v1/journal/BTC?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []JournalEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "s", entries[0].Trade.Maker)
	assert.Equal(t, "b", entries[0].Trade.Taker)

	rec = doJSON(t, s.Handler(), http.MethodGet, "/api/v1/journal/BTC?limit=x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTradeStream(t *testing.T) {
	s, n := newTestServer(t, nil)
	go s.hub.Run()
	defer s.hub.Stop()

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(WSSubscribeRequest{Op: "subscribe", Channels: []string{"trades:BTC"}}))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var ack map[string]any
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, "subscribed", ack["type"])

	_, err = n.Book().CreateOrder("ETH", 1, 1, book.Sell, "s")
	require.NoError(t, err)
	_, err = n.Book().CreateOrder("ETH", 1, 1, book.Buy, "b")
	require.NoError(t, err)
	_, err = n.Book().CreateOrder("BTC", 100, 90, book.Sell, "s")
	require.NoError(t, err)
	_, err = n.Book().CreateOrder("BTC", 150, 100, book.Buy, "b")
	require.NoError(t, err)

	var upd TradeUpdate
	require.NoError(t, conn.ReadJSON(&upd))
	assert.Equal(t, "trade", upd.Type)
	assert.Equal(t, "BTC", upd.Symbol)
	assert.EqualValues(t, 100, upd.Size)
	assert.EqualValues(t, 90, upd.Price)
	assert.Equal(t, "s", upd.Maker)
}
