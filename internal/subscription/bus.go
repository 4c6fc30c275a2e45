package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/rickgao/stocksync/internal/event"
)

// Errors
var (
	ErrClosed = errors.New("subscription bus closed")
)

// Handler processes one event. A returned error is logged and counted; it
// does not affect other handlers or the subscription.
type Handler func(ctx context.Context, ev event.Event) error

// Config holds bus settings.
type Config struct {
	QueueSize int // initial queue capacity; the queue grows as needed
}

// Stats contains runtime statistics.
type Stats struct {
	Published     int64 `json:"published"`
	Delivered     int64 `json:"delivered"`
	HandlerErrors int64 `json:"handler_errors"`
	Panics        int64 `json:"panics"`
	Dropped       int64 `json:"dropped"` // events with no subscriber
	Queued        int   `json:"queued"`
	MaxQueued     int   `json:"max_queued"`
	Batches       int64 `json:"batches"` // dispatcher wakeups
}

// Handle identifies one subscription.
type Handle struct {
	bus    *Bus
	name   event.Name
	fn     Handler
	active atomic.Bool
}

// Name returns the event name the handle is subscribed to.
func (h *Handle) Name() event.Name { return h.name }

// Active reports whether the handle still receives events.
func (h *Handle) Active() bool { return h.active.Load() }

// Unsubscribe releases the subscription. It is idempotent.
func (h *Handle) Unsubscribe() { h.bus.Unsubscribe(h) }

// Bus delivers events to subscribers in FIFO order. Publish enqueues; Run
// drains the queue on a single goroutine, so each handler runs to completion
// before the next event is delivered.
type Bus struct {
	logger *slog.Logger
	q      *queue[event.Event]

	mu       sync.RWMutex
	handlers map[event.Name][]*Handle // replaced, never modified in place
	closed   bool

	published     atomic.Int64
	delivered     atomic.Int64
	handlerErrors atomic.Int64
	panics        atomic.Int64
	dropped       atomic.Int64
}

// NewBus creates a bus.
func NewBus(cfg Config, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	return &Bus{
		logger:   logger,
		q:        newQueue[event.Event](cfg.QueueSize),
		handlers: make(map[event.Name][]*Handle),
	}
}

// Subscribe registers fn for events named name. Handlers for the same name
// run in registration order.
func (b *Bus) Subscribe(name event.Name, fn Handler) (*Handle, error) {
	if !event.Known(name) {
		return nil, fmt.Errorf("subscribe: %w: %q", event.ErrUnknownEvent, name)
	}
	if fn == nil {
		return nil, fmt.Errorf("subscribe %s: nil handler", name)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	h := &Handle{bus: b, name: name, fn: fn}
	h.active.Store(true)
	b.handlers[name] = append(slices.Clip(b.handlers[name]), h)
	return h, nil
}

// Unsubscribe releases h. Calling it more than once, or after Close, is a
// no-op.
func (b *Bus) Unsubscribe(h *Handle) {
	if h == nil || !h.active.Swap(false) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.handlers[h.name]
	i := slices.Index(list, h)
	if i < 0 {
		return
	}
	next := slices.Delete(slices.Clone(list), i, i+1)
	if len(next) == 0 {
		delete(b.handlers, h.name)
		return
	}
	b.handlers[h.name] = next
}

// Subscribers returns the number of active handlers for name.
func (b *Bus) Subscribers(name event.Name) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[name])
}

// Publish enqueues ev for delivery by Run.
func (b *Bus) Publish(ev event.Event) error {
	if !event.Known(ev.Name) {
		return fmt.Errorf("publish: %w: %q", event.ErrUnknownEvent, ev.Name)
	}
	if !b.q.push(ev) {
		return ErrClosed
	}
	b.published.Add(1)
	return nil
}

// Dispatch delivers ev synchronously on the calling goroutine.
func (b *Bus) Dispatch(ctx context.Context, ev event.Event) {
	b.mu.RLock()
	list := b.handlers[ev.Name]
	b.mu.RUnlock()

	if len(list) == 0 {
		b.dropped.Add(1)
		b.logger.Debug("no subscribers for event", "event", ev.Name)
		return
	}

	for _, h := range list {
		// Unsubscribed by an earlier handler for this same event.
		if !h.active.Load() {
			continue
		}
		if err := b.invoke(ctx, h, ev); err != nil {
			b.handlerErrors.Add(1)
			b.logger.Warn("event handler failed",
				"event", ev.Name,
				"operation", ev.Operation,
				"error", err,
			)
			continue
		}
		b.delivered.Add(1)
	}
}

func (b *Bus) invoke(ctx context.Context, h *Handle, ev event.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.panics.Add(1)
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.fn(ctx, ev)
}

// Run delivers queued events until ctx is cancelled or the bus is closed.
// Events still queued at that point are delivered before Run returns.
func (b *Bus) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			b.q.close()
		case <-done:
		}
	}()

	b.logger.Info("event dispatcher started")
	var batch []event.Event
	for {
		var ok bool
		batch, ok = b.q.drain(batch)
		if !ok {
			b.logger.Info("event dispatcher stopped", "published", b.published.Load())
			return nil
		}
		for _, ev := range batch {
			b.Dispatch(ctx, ev)
		}
	}
}

// Close stops accepting events and releases every subscription. Events still
// queued reach no handler and are counted as dropped.
func (b *Bus) Close() {
	b.q.close()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, list := range b.handlers {
		for _, h := range list {
			h.active.Store(false)
		}
	}
	clear(b.handlers)
}

// Stats returns current counters.
func (b *Bus) Stats() Stats {
	qs := b.q.stats()
	return Stats{
		Published:     b.published.Load(),
		Delivered:     b.delivered.Load(),
		HandlerErrors: b.handlerErrors.Load(),
		Panics:        b.panics.Load(),
		Dropped:       b.dropped.Load(),
		Queued:        qs.depth,
		MaxQueued:     qs.maxDepth,
		Batches:       qs.batches,
	}
}
