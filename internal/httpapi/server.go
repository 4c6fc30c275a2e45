package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/rickgao/stocksync/internal/backend"
	"github.com/rickgao/stocksync/internal/livetrading"
	"github.com/rickgao/stocksync/internal/market"
	"github.com/rickgao/stocksync/internal/poller"
	"github.com/rickgao/stocksync/internal/stock"
	"github.com/rickgao/stocksync/internal/subscription"
)

// Deps is everything the handlers read from or act on. Session and Commands
// are nil when no backend is attached (replay mode).
type Deps struct {
	Stock    *stock.Reconciler
	Market   *market.Registry
	Trading  *livetrading.Controller
	Bus      *subscription.Bus
	Session  *backend.Session
	Commands stock.Commands
	Resync   *poller.Poller

	// Initialized reports whether a full App:OnInitialize snapshot was applied.
	Initialized func() bool
}

// Server routes HTTP requests onto Deps.
type Server struct {
	deps   Deps
	router *mux.Router
	logger *slog.Logger
}

// NewServer builds the router.
func NewServer(deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{deps: deps, logger: logger}

	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/version", s.handleVersion).Methods(http.MethodGet)

	r.HandleFunc("/stock/totals", s.handleStockTotals).Methods(http.MethodGet)
	r.HandleFunc("/stock/items", s.handleListItems).Methods(http.MethodGet)
	r.HandleFunc("/stock/items/{id:[0-9]+}", s.handleGetItem).Methods(http.MethodGet)
	r.HandleFunc("/stock/rivens", s.handleListRivens).Methods(http.MethodGet)
	r.HandleFunc("/stock/rivens/{id:[0-9]+}", s.handleGetRiven).Methods(http.MethodGet)
	r.HandleFunc("/stock/rivens/{id:[0-9]+}/match", s.handleSetRivenMatch).Methods(http.MethodPut)
	r.HandleFunc("/stock/rivens/{id:[0-9]+}/accepts", s.handleRivenAccepts).Methods(http.MethodPost)

	r.HandleFunc("/stock/{kind:items|rivens}", s.handleCreateEntry).Methods(http.MethodPost)
	r.HandleFunc("/stock/{kind:items|rivens}/{id:[0-9]+}", s.handleUpdateEntry).Methods(http.MethodPatch)
	r.HandleFunc("/stock/{kind:items|rivens}/{id:[0-9]+}", s.handleDeleteEntry).Methods(http.MethodDelete)
	r.HandleFunc("/stock/{kind:items|rivens}/{id:[0-9]+}/sell", s.handleSellEntry).Methods(http.MethodPost)

	r.HandleFunc("/market/summary", s.handleMarketSummary).Methods(http.MethodGet)
	r.HandleFunc("/market/orders", s.handleOrders).Methods(http.MethodGet)
	r.HandleFunc("/market/auctions", s.handleAuctions).Methods(http.MethodGet)
	r.HandleFunc("/market/transactions", s.handleTransactions).Methods(http.MethodGet)
	r.HandleFunc("/market/chats", s.handleChats).Methods(http.MethodGet)
	r.HandleFunc("/market/chats/{id}/messages", s.handleChatMessages).Methods(http.MethodGet)
	r.HandleFunc("/market/user", s.handleUser).Methods(http.MethodGet)

	r.HandleFunc("/live-trading", s.handleLiveTrading).Methods(http.MethodGet)
	r.HandleFunc("/live-trading/toggle", s.handleToggle).Methods(http.MethodPost)

	s.router = r
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting http server", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("http server stopped")
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
