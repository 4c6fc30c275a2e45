// Package app wires the backend session, the event bus and the state the
// bus feeds, and runs them under one lifecycle.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/stocksync/internal/backend"
	"github.com/rickgao/stocksync/internal/config"
	"github.com/rickgao/stocksync/internal/httpapi"
	"github.com/rickgao/stocksync/internal/livetrading"
	"github.com/rickgao/stocksync/internal/market"
	"github.com/rickgao/stocksync/internal/poller"
	"github.com/rickgao/stocksync/internal/stock"
	"github.com/rickgao/stocksync/internal/subscription"
)

// App owns the synchronized state of one process.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	Bus     *subscription.Bus
	Stock   *stock.Reconciler
	Market  *market.Registry
	Trading *livetrading.Controller
	Session *backend.Session // nil without a backend
	Resync  *poller.Poller   // nil without a backend or when disabled

	scope       *subscription.Scope
	initialized atomic.Bool
	closeOnce   sync.Once
}

type options struct {
	offline bool
}

// Option configures New.
type Option func(*options)

// WithoutBackend builds an App with no backend session. Events are fed
// through Replay and commands fail with livetrading.ErrNoBackend.
func WithoutBackend() Option {
	return func(o *options) { o.offline = true }
}

// New builds the components and subscribes the state handlers. Nothing runs
// until Run.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		cfg:    cfg,
		logger: logger,
		Bus:    subscription.NewBus(subscription.Config{QueueSize: cfg.Dispatch.QueueSize}, logger.With("component", "bus")),
		Stock:  stock.NewReconciler(cfg.Thresholds(), logger.With("component", "stock")),
		Market: market.NewRegistry(cfg.Dispatch.QueueSize, logger.With("component", "market")),
	}

	var commander livetrading.Commander
	if !o.offline {
		a.Session = backend.NewSession(cfg.SessionConfig(), a.Bus, logger.With("component", "backend"))
		commander = a.Session
		if pc, ok := cfg.PollerConfig(); ok {
			a.Resync = poller.New(pc, a.Session, logger.With("component", "resync"))
		}
	}
	a.Trading = livetrading.NewController(livetrading.Config{
		AuthToken:  cfg.Trading.AuthToken,
		Thresholds: a.Stock.Thresholds,
	}, commander, logger.With("component", "live_trading"))

	a.scope = a.Bus.NewScope()
	if err := a.subscribe(); err != nil {
		a.Close()
		return nil, fmt.Errorf("subscribe handlers: %w", err)
	}
	return a, nil
}

// Initialized reports whether an App:OnInitialize snapshot has been applied.
func (a *App) Initialized() bool {
	return a.initialized.Load()
}

// HTTPServer builds the HTTP surface over this App.
func (a *App) HTTPServer() *httpapi.Server {
	deps := httpapi.Deps{
		Stock:       a.Stock,
		Market:      a.Market,
		Trading:     a.Trading,
		Bus:         a.Bus,
		Session:     a.Session,
		Resync:      a.Resync,
		Initialized: a.Initialized,
	}
	if a.Session != nil {
		deps.Commands = a.Session
	}
	return httpapi.NewServer(deps, a.logger.With("component", "http"))
}

// Run starts the dispatcher, the backend session and, when enabled, the HTTP
// server. It blocks until ctx is cancelled or a component fails, and closes
// the App before returning.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.Bus.Run(gctx) })
	g.Go(func() error {
		a.watchMarket(gctx)
		return nil
	})
	if a.Session != nil {
		g.Go(func() error { return a.Session.Run(gctx) })
	}
	if a.Resync != nil {
		g.Go(func() error { return a.Resync.Run(gctx) })
	}
	if a.cfg.HTTP.Enabled {
		srv := a.HTTPServer()
		addr := fmt.Sprintf(":%d", a.cfg.HTTP.Port)
		g.Go(func() error { return srv.ListenAndServe(gctx, addr) })
	}

	a.logger.Info("stocksync running",
		"backend", a.Session != nil,
		"http", a.cfg.HTTP.Enabled,
	)
	return g.Wait()
}

// watchMarket drains registry change notifications until ctx is done.
func (a *App) watchMarket(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-a.Market.Changes():
			a.logger.Debug("market table updated",
				"table", c.Table,
				"op", c.Op,
				"rows", c.Count,
			)
		}
	}
}

// Close releases the subscriptions and stops the dispatcher. Commands still
// in flight no longer affect the live trading state. It is idempotent.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		a.scope.Close()
		a.Trading.Close()
		a.Bus.Close()
	})
}
