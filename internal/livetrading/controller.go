// Package livetrading tracks whether the backend's live trading loop is
// running and turns user toggles into start/stop commands.
//
// State changes only through Toggle and through acknowledgements and errors
// reported by the backend:
//
//	Stopped  --Toggle-->          Starting --ack(true)--> Running
//	Starting --command error-->   Stopped
//	Running  --Toggle-->          Stopped
//	Starting/Running --OnError--> Faulted --> Stopped
//	any      --ack(false)-->      Stopped
package livetrading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/stocksync/internal/stock"
)

// Errors
var (
	ErrNoBackend       = errors.New("no live trading backend configured")
	ErrAlreadyStarting = errors.New("live trading is already starting")
	ErrClosed          = errors.New("live trading controller closed")
)

// State is the controller's view of the trading loop.
type State int

const (
	Stopped State = iota
	Starting
	Running
	Faulted
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Faulted:
		return "faulted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(b []byte) error {
	for _, st := range []State{Stopped, Starting, Running, Faulted} {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", b)
}

// Commander issues start and stop commands to the backend.
type Commander interface {
	StartLiveTrading(ctx context.Context, token string, th stock.Thresholds) error
	StopLiveTrading(ctx context.Context) error
}

// Config supplies what a start command needs.
type Config struct {
	AuthToken  string
	Thresholds func() stock.Thresholds
}

// Snapshot is a consistent copy of the controller state.
type Snapshot struct {
	State     State     `json:"state"`
	Running   bool      `json:"running"`
	LastError string    `json:"last_error,omitempty"`
	Since     time.Time `json:"since"`
}

// Message is one informational line from the trading loop.
type Message struct {
	Component string    `json:"component"`
	Text      string    `json:"text"`
	Level     string    `json:"level,omitempty"`
	At        time.Time `json:"at"`
}

const messageHistory = 50

// Controller is the running-state machine. Toggle is called from user-facing
// goroutines while acknowledgements arrive on the event dispatcher, so every
// transition happens under mu.
type Controller struct {
	cfg    Config
	cmd    Commander
	logger *slog.Logger
	now    func() time.Time

	mu         sync.Mutex
	state      State
	lastErr    error
	since      time.Time
	generation uint64 // bumped on every start attempt and fault
	closed     bool
	messages   []Message
}

// NewController creates a controller in the Stopped state.
func NewController(cfg Config, cmd Commander, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		cfg:    cfg,
		cmd:    cmd,
		logger: logger,
		now:    time.Now,
		state:  Stopped,
	}
	c.since = c.now()
	return c
}

// setLocked moves to s. Caller holds c.mu.
func (c *Controller) setLocked(s State) {
	if c.state == s {
		return
	}
	c.logger.Info("live trading state changed", "from", c.state, "to", s)
	c.state = s
	c.since = c.now()
}

func (c *Controller) thresholds() stock.Thresholds {
	if c.cfg.Thresholds == nil {
		return stock.Thresholds{}
	}
	return c.cfg.Thresholds()
}

// Toggle starts live trading when stopped and stops it when running. While a
// start is in flight the toggle is ignored and ErrAlreadyStarting returned.
func (c *Controller) Toggle(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.cmd == nil {
		c.mu.Unlock()
		return ErrNoBackend
	}

	switch c.state {
	case Starting:
		c.mu.Unlock()
		c.logger.Debug("toggle ignored while starting")
		return ErrAlreadyStarting

	case Running:
		c.setLocked(Stopped)
		c.mu.Unlock()
		if err := c.cmd.StopLiveTrading(ctx); err != nil {
			c.logger.Warn("stop command failed", "error", err)
			return fmt.Errorf("stop live trading: %w", err)
		}
		return nil

	default: // Stopped, Faulted
		c.generation++
		gen := c.generation
		c.lastErr = nil
		c.setLocked(Starting)
		c.mu.Unlock()

		err := c.cmd.StartLiveTrading(ctx, c.cfg.AuthToken, c.thresholds())
		if err == nil {
			return nil
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed || c.generation != gen {
			return err
		}
		c.lastErr = err
		if c.state == Starting {
			c.setLocked(Stopped)
		}
		c.logger.Warn("start command failed", "error", err)
		return fmt.Errorf("start live trading: %w", err)
	}
}

// OnRunningState applies a running-state acknowledgement from the backend.
// true only confirms a pending start; false always stops.
func (c *Controller) OnRunningState(running bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	if !running {
		c.setLocked(Stopped)
		return
	}
	if c.state != Starting {
		c.logger.Debug("stale running acknowledgement ignored", "state", c.state)
		return
	}
	c.setLocked(Running)
}

// OnSnapshot applies the running flag of a full state snapshot. A snapshot
// is neither an acknowledgement nor a fault: while a start is in flight only
// true is taken (as confirmation), and a stopped loop stays stopped.
func (c *Controller) OnSnapshot(running bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	switch {
	case c.state == Starting && running:
		c.setLocked(Running)
	case c.state == Running && !running:
		c.setLocked(Stopped)
	default:
		c.logger.Debug("snapshot running flag left state unchanged", "state", c.state, "running", running)
	}
}

// OnError records a trading loop failure. A running or starting loop is
// considered stopped afterwards.
func (c *Controller) OnError(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	c.lastErr = err
	c.logger.Error("live trading error", "state", c.state, "error", err)
	if c.state == Starting || c.state == Running {
		c.generation++
		c.setLocked(Faulted)
		c.setLocked(Stopped)
	}
}

// OnMessage keeps an informational message in a bounded history.
func (c *Controller) OnMessage(component, text, level string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if len(c.messages) == messageHistory {
		copy(c.messages, c.messages[1:])
		c.messages = c.messages[:messageHistory-1]
	}
	c.messages = append(c.messages, Message{Component: component, Text: text, Level: level, At: c.now()})
}

// Messages returns the retained messages, oldest first.
func (c *Controller) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		State:   c.state,
		Running: c.state == Running,
		Since:   c.since,
	}
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	return s
}

// Close detaches the controller. Results of commands still in flight and
// later backend notifications are dropped.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}
