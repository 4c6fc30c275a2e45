package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/stocksync/internal/event"
	"github.com/rickgao/stocksync/internal/stock"
)

// Publisher receives decoded events.
type Publisher interface {
	Publish(ev event.Event) error
}

// Session keeps a connection to the backend alive, publishes every event it
// receives and correlates commands with their replies.
type Session struct {
	cfg       SessionConfig
	publisher Publisher
	logger    *slog.Logger

	mu     sync.RWMutex
	client Client

	pendingMu sync.Mutex
	pending   map[string]chan Response

	// newClient is replaced in tests.
	newClient func(ClientConfig, *slog.Logger) Client

	framesReceived  atomic.Int64
	eventsPublished atomic.Int64
	decodeErrors    atomic.Int64
	publishErrors   atomic.Int64
	responses       atomic.Int64
	reconnects      atomic.Int64
}

// NewSession creates a session. Nothing is dialed until Run.
func NewSession(cfg SessionConfig, publisher Publisher, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultSessionConfig()
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = def.CommandTimeout
	}
	if cfg.ReconnectBaseWait <= 0 {
		cfg.ReconnectBaseWait = def.ReconnectBaseWait
	}
	if cfg.ReconnectMaxWait < cfg.ReconnectBaseWait {
		cfg.ReconnectMaxWait = max(def.ReconnectMaxWait, cfg.ReconnectBaseWait)
	}
	return &Session{
		cfg:       cfg,
		publisher: publisher,
		logger:    logger,
		pending:   make(map[string]chan Response),
		newClient: NewClient,
	}
}

// Run connects and keeps the session connected until ctx is cancelled,
// reconnecting with exponential backoff. It returns nil on cancellation.
func (s *Session) Run(ctx context.Context) error {
	wait := s.cfg.ReconnectBaseWait
	first := true

	for {
		if !first {
			s.reconnects.Add(1)
		}
		first = false

		connected, err := s.serve(ctx)
		if ctx.Err() != nil {
			s.logger.Info("backend session stopped")
			return nil
		}
		if connected {
			wait = s.cfg.ReconnectBaseWait
		}
		s.logger.Warn("backend connection lost",
			"error", err,
			"retry_in", wait,
		)

		select {
		case <-ctx.Done():
			s.logger.Info("backend session stopped")
			return nil
		case <-time.After(wait):
		}
		wait = min(wait*2, s.cfg.ReconnectMaxWait)
	}
}

// serve runs one connection until it fails. connected reports whether the
// dial succeeded.
func (s *Session) serve(ctx context.Context) (connected bool, err error) {
	c := s.newClient(s.cfg.Client, s.logger.With("component", "ws"))
	if err := c.Connect(ctx); err != nil {
		return false, err
	}

	s.mu.Lock()
	s.client = c
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.client == c {
			s.client = nil
		}
		s.mu.Unlock()
		c.Close()
		s.failPending()
	}()

	s.logger.Info("connected to backend", "url", s.cfg.Client.URL)

	// The init reply is read by this loop, so it must not block it.
	go func() {
		if err := s.RequestInit(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("initial sync request failed", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case err := <-c.Errors():
			return true, err
		case msg := <-c.Messages():
			s.handleFrame(msg)
		}
	}
}

func (s *Session) handleFrame(msg TimestampedMessage) {
	s.framesReceived.Add(1)

	if resp, ok := tryParseResponse(msg.Data); ok {
		s.responses.Add(1)
		s.routeResponse(resp)
		return
	}

	ev, err := event.DecodeAt(msg.Data, msg.ReceivedAt)
	if err != nil {
		s.decodeErrors.Add(1)
		s.logger.Warn("dropping backend frame", "error", err)
		return
	}
	if err := s.publisher.Publish(ev); err != nil {
		s.publishErrors.Add(1)
		s.logger.Warn("failed to publish event", "event", ev.Name, "error", err)
		return
	}
	s.eventsPublished.Add(1)
}

// tryParseResponse recognizes command replies; everything else is an event.
func tryParseResponse(data []byte) (Response, bool) {
	if !bytes.Contains(data, []byte(`"type"`)) {
		return Response{}, false
	}
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil || resp.ID == "" {
		return Response{}, false
	}
	switch resp.Type {
	case "ok", "error":
		return resp, true
	}
	return Response{}, false
}

func (s *Session) routeResponse(resp Response) {
	s.pendingMu.Lock()
	ch, ok := s.pending[resp.ID]
	if ok {
		delete(s.pending, resp.ID)
	}
	s.pendingMu.Unlock()

	if !ok {
		s.logger.Debug("reply for unknown command", "id", resp.ID)
		return
	}
	select {
	case ch <- resp:
	default:
	}
}

// failPending releases every waiter after the connection drops.
func (s *Session) failPending() {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	for id, ch := range s.pending {
		close(ch)
		delete(s.pending, id)
	}
}

// IsConnected reports whether a connection is currently up.
func (s *Session) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client != nil && s.client.IsConnected()
}

// Stats returns current counters.
func (s *Session) Stats() SessionStats {
	s.pendingMu.Lock()
	pending := len(s.pending)
	s.pendingMu.Unlock()
	return SessionStats{
		Connected:       s.IsConnected(),
		FramesReceived:  s.framesReceived.Load(),
		EventsPublished: s.eventsPublished.Load(),
		DecodeErrors:    s.decodeErrors.Load(),
		PublishErrors:   s.publishErrors.Load(),
		Responses:       s.responses.Load(),
		Reconnects:      s.reconnects.Load(),
		PendingCommands: pending,
	}
}

// call sends a command and waits for its reply.
func (s *Session) call(ctx context.Context, cmd string, params any) (json.RawMessage, error) {
	id := uuid.NewString()
	respCh := make(chan Response, 1)

	// Registering under s.mu orders this against serve's cleanup: either
	// failPending sees the entry or the client is already gone.
	s.mu.RLock()
	c := s.client
	if c == nil || !c.IsConnected() {
		s.mu.RUnlock()
		return nil, fmt.Errorf("%s: %w", cmd, ErrNotConnected)
	}
	s.pendingMu.Lock()
	s.pending[id] = respCh
	s.pendingMu.Unlock()
	s.mu.RUnlock()

	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, id)
		s.pendingMu.Unlock()
	}()

	data, err := json.Marshal(Command{ID: id, Cmd: cmd, Params: params})
	if err != nil {
		return nil, fmt.Errorf("%s: encode: %w", cmd, err)
	}
	if err := c.Send(data); err != nil {
		return nil, fmt.Errorf("%s: %w", cmd, err)
	}

	timer := time.NewTimer(s.cfg.CommandTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("%s: %w", cmd, ErrTimeout)
	case resp, ok := <-respCh:
		if !ok {
			return nil, fmt.Errorf("%s: %w", cmd, ErrNotConnected)
		}
		if resp.Type == "error" {
			var em ErrorMsg
			if err := json.Unmarshal(resp.Msg, &em); err != nil {
				em.Message = string(resp.Msg)
			}
			return nil, &CommandError{Cmd: cmd, Code: em.Code, Message: em.Message}
		}
		return resp.Msg, nil
	}
}

type startParams struct {
	Token      string           `json:"token"`
	Thresholds stock.Thresholds `json:"settings"`
}

type stockRef struct {
	Kind stock.Kind `json:"kind"`
	ID   int64      `json:"id"`
}

type sellParams struct {
	stockRef
	Price int64 `json:"price"`
}

type updateParams struct {
	stockRef
	Patch map[string]any `json:"patch"`
}

type createParams struct {
	Kind stock.Kind `json:"kind"`
	Data any        `json:"data"`
}

// RequestInit asks the backend to resend App:OnInitialize.
func (s *Session) RequestInit(ctx context.Context) error {
	_, err := s.call(ctx, CmdInit, nil)
	return err
}

// StartLiveTrading asks the backend to start the live trading loop.
func (s *Session) StartLiveTrading(ctx context.Context, token string, th stock.Thresholds) error {
	_, err := s.call(ctx, CmdLiveTradingStart, startParams{Token: token, Thresholds: th})
	return err
}

// StopLiveTrading asks the backend to stop the live trading loop.
func (s *Session) StopLiveTrading(ctx context.Context) error {
	_, err := s.call(ctx, CmdLiveTradingStop, nil)
	return err
}

// SellStockEntry records a sale of one unit of a stock entry.
func (s *Session) SellStockEntry(ctx context.Context, kind stock.Kind, id, price int64) error {
	_, err := s.call(ctx, CmdStockSell, sellParams{stockRef{kind, id}, price})
	return err
}

// UpdateStockEntry patches fields of a stock entry.
func (s *Session) UpdateStockEntry(ctx context.Context, kind stock.Kind, id int64, patch map[string]any) error {
	if len(patch) == 0 {
		return errors.New("update stock entry: empty patch")
	}
	_, err := s.call(ctx, CmdStockUpdate, updateParams{stockRef{kind, id}, patch})
	return err
}

// DeleteStockEntry removes a stock entry.
func (s *Session) DeleteStockEntry(ctx context.Context, kind stock.Kind, id int64) error {
	_, err := s.call(ctx, CmdStockDelete, stockRef{kind, id})
	return err
}

// CreateStockEntry adds a stock entry and returns the backend's reply body.
func (s *Session) CreateStockEntry(ctx context.Context, kind stock.Kind, data any) (json.RawMessage, error) {
	return s.call(ctx, CmdStockCreate, createParams{Kind: kind, Data: data})
}
