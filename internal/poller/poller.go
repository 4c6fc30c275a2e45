package poller

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Syncer requests a full snapshot from the backend.
type Syncer interface {
	IsConnected() bool
	RequestInit(ctx context.Context) error
}

// Config holds poller configuration.
type Config struct {
	Interval time.Duration // Resync interval (default: 15m)
	Timeout  time.Duration // Per-request timeout (default: 10s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: 15 * time.Minute,
		Timeout:  10 * time.Second,
	}
}

// Stats holds poller counters.
type Stats struct {
	Polls    int64     `json:"polls"`
	Skipped  int64     `json:"skipped"`
	Errors   int64     `json:"errors"`
	LastPoll time.Time `json:"last_poll,omitempty"`
}

// Poller periodically requests a resync.
type Poller struct {
	cfg    Config
	syncer Syncer
	logger *slog.Logger

	polls    atomic.Int64
	skipped  atomic.Int64
	errors   atomic.Int64
	lastPoll atomic.Int64 // unix nanos
}

// New creates a new Poller. Non-positive config values take their defaults.
func New(cfg Config, syncer Syncer, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Poller{
		cfg:    cfg,
		syncer: syncer,
		logger: logger,
	}
}

// Run polls until ctx is cancelled and returns nil. The session already
// requests a snapshot on every connect, so the first poll waits one interval.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.logger.Info("resync poller started", "interval", p.cfg.Interval)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("resync poller stopped")
			return nil
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	if !p.syncer.IsConnected() {
		p.skipped.Add(1)
		p.logger.Debug("backend offline, skipping resync")
		return
	}

	start := time.Now()
	reqCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	err := p.syncer.RequestInit(reqCtx)
	p.polls.Add(1)
	p.lastPoll.Store(start.UnixNano())
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.errors.Add(1)
		p.logger.Warn("resync request failed", "error", err)
		return
	}
	p.logger.Debug("resync requested", "duration", time.Since(start))
}

// Stats returns current counters.
func (p *Poller) Stats() Stats {
	s := Stats{
		Polls:   p.polls.Load(),
		Skipped: p.skipped.Load(),
		Errors:  p.errors.Load(),
	}
	if ns := p.lastPoll.Load(); ns != 0 {
		s.LastPoll = time.Unix(0, ns)
	}
	return s
}
