// Package api exposes a node's local book to operators over HTTP and streams
// executed trades over WebSocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/meshbook/pkg/book"
	"github.com/uhyunpark/meshbook/pkg/node"
	"github.com/uhyunpark/meshbook/pkg/storage"
	"github.com/uhyunpark/meshbook/pkg/util"
)

const defaultJournalLimit = 100

// Exchange is the node surface the API drives.
type Exchange interface {
	ClientID() string
	State() node.State
	Peers() []string
	Book() *book.OrderBook
	PlaceOrder(symbol string, qty, price int64, side book.Side) (book.Order, error)
	CancelOrder(orderID int64) error
}

// Server handles REST API and WebSocket connections
type Server struct {
	ex      Exchange
	peerID  string
	journal storage.Journal
	router  *mux.Router
	hub     *Hub
	log     *zap.SugaredLogger
	now     func() time.Time

	mu      sync.Mutex
	httpSrv *http.Server
}

// NewServer creates the API server and subscribes its trade feed to the
// exchange's book. journal may be nil.
func NewServer(ex Exchange, peerID string, journal storage.Journal, log *zap.SugaredLogger) *Server {
	if journal == nil {
		journal = storage.NopJournal{}
	}
	log = util.OrNop(log).Named("api")

	s := &Server{
		ex:      ex,
		peerID:  peerID,
		journal: journal,
		router:  mux.NewRouter(),
		hub:     NewHub(log),
		log:     log,
		now:     time.Now,
	}
	s.setupRoutes()
	ex.Book().OnTrade(s.publishTrade)
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Node
	api.HandleFunc("/status", s.handleGetStatus).Methods("GET")

	// Book
	api.HandleFunc("/orderbook", s.handleGetOrderbook).Methods("GET")
	api.HandleFunc("/orderbook/{symbol}/depth", s.handleGetDepth).Methods("GET")
	api.HandleFunc("/trades", s.handleGetTrades).Methods("GET")
	api.HandleFunc("/journal/{symbol}", s.handleGetJournal).Methods("GET")

	// Order submission
	api.HandleFunc("/orders", s.handleSubmitOrder).Methods("POST")
	api.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the routed handler with CORS applied
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start runs the WebSocket hub and serves HTTP on addr until Shutdown.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.mu.Lock()
	s.httpSrv = srv
	s.mu.Unlock()

	s.log.Infow("api_listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Stop()

	s.mu.Lock()
	srv := s.httpSrv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	orders, trades := s.ex.Book().Len()
	peers := s.ex.Peers()
	if peers == nil {
		peers = []string{}
	}
	respondJSON(w, NodeStatus{
		ClientID: s.ex.ClientID(),
		PeerID:   s.peerID,
		State:    s.ex.State().String(),
		Peers:    peers,
		Orders:   orders,
		Trades:   trades,
	})
}

func (s *Server) handleGetOrderbook(w http.ResponseWriter, r *http.Request) {
	snap := s.ex.Book().Snapshot()
	respondJSON(w, OrderbookSnapshot{
		Orders:    snap.Orders,
		Trades:    snap.Trades,
		Timestamp: s.now().UnixMilli(),
	})
}

func (s *Server) handleGetDepth(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	depth := s.ex.Book().Depth(symbol)

	respondJSON(w, DepthSnapshot{
		Symbol:    depth.Symbol,
		Bids:      toPriceLevels(depth.Bids),
		Asks:      toPriceLevels(depth.Asks),
		Timestamp: s.now().UnixMilli(),
	})
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.ex.Book().Trades(r.URL.Query().Get("symbol")))
}

func (s *Server) handleGetJournal(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	limit := defaultJournalLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit", v)
			return
		}
		limit = n
	}

	entries, err := s.journal.Recent(symbol, limit)
	if err != nil {
		s.log.Errorw("journal_read_failed", "symbol", symbol, "err", err)
		respondError(w, http.StatusInternalServerError, "journal unavailable", err.Error())
		return
	}

	out := make([]JournalEntry, len(entries))
	for i, e := range entries {
		out[i] = JournalEntry{Seq: e.Seq, RecordedAt: e.RecordedAt.UnixMilli(), Trade: e.Trade}
	}
	respondJSON(w, out)
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	side, err := validateOrder(req)
	if err != nil {
		respondError(w, http.StatusBadRequest, book.ErrValidation.Error(), err.Error())
		return
	}

	o, err := s.ex.PlaceOrder(req.Symbol, req.Quantity, req.Price, side)
	if err != nil {
		s.log.Errorw("api_order_failed", "err", err)
		respondError(w, http.StatusInternalServerError, book.ErrInternal.Error(), err.Error())
		return
	}

	respondJSON(w, SubmitOrderResponse{Status: "placed", Order: o})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.OrderID <= 0 {
		respondError(w, http.StatusBadRequest, "missing orderId", "")
		return
	}

	err := s.ex.CancelOrder(req.OrderID)
	switch {
	case err == nil:
		respondJSON(w, map[string]any{"status": "canceled", "orderId": req.OrderID})
	case errors.Is(err, book.ErrNotFound):
		respondError(w, http.StatusNotFound, book.ErrNotFound.Error(), "")
	case errors.Is(err, book.ErrOwnership):
		respondError(w, http.StatusForbidden, book.ErrOwnership.Error(), "")
	default:
		respondError(w, http.StatusInternalServerError, "cancel failed", err.Error())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Trade feed
// ==============================

func (s *Server) publishTrade(t book.Trade) {
	s.hub.BroadcastToChannel("trades:"+t.Symbol, TradeUpdate{
		Type:      "trade",
		Symbol:    t.Symbol,
		Price:     t.Price,
		Size:      t.Quantity,
		SellOrder: t.SellOrderID,
		BuyOrder:  t.BuyOrderID,
		Maker:     t.Maker,
		Taker:     t.Taker,
		Timestamp: s.now().UnixMilli(),
	})
}

// ==============================
// Helper Functions
// ==============================

func validateOrder(req SubmitOrderRequest) (book.Side, error) {
	if req.Symbol == "" {
		return 0, fmt.Errorf("%w: missing symbol", book.ErrValidation)
	}
	if req.Quantity <= 0 {
		return 0, fmt.Errorf("%w: quantity must be positive", book.ErrValidation)
	}
	if req.Price <= 0 {
		return 0, fmt.Errorf("%w: price must be positive", book.ErrValidation)
	}
	return book.ParseSide(req.Side)
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
