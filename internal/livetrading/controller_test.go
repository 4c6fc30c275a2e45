package livetrading

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/rickgao/stocksync/internal/stock"
)

type fakeCommander struct {
	mu       sync.Mutex
	starts   int
	stops    int
	token    string
	th       stock.Thresholds
	startErr error
	stopErr  error
	onStart  func()
}

func (f *fakeCommander) StartLiveTrading(_ context.Context, token string, th stock.Thresholds) error {
	f.mu.Lock()
	f.starts++
	f.token = token
	f.th = th
	hook := f.onStart
	err := f.startErr
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return err
}

func (f *fakeCommander) StopLiveTrading(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return f.stopErr
}

func newTestController(cmd Commander) *Controller {
	cfg := Config{
		AuthToken:  "jwt-token",
		Thresholds: func() stock.Thresholds { return stock.Thresholds{ProfitFloor: 7} },
	}
	return NewController(cfg, cmd, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestController_InitialState(t *testing.T) {
	c := newTestController(&fakeCommander{})
	s := c.Snapshot()
	if s.State != Stopped || s.Running || s.LastError != "" {
		t.Errorf("Snapshot() = %+v, want stopped without error", s)
	}
}

func TestController_ToggleAckFaultStaleAck(t *testing.T) {
	cmd := &fakeCommander{}
	c := newTestController(cmd)
	ctx := context.Background()

	if err := c.Toggle(ctx); err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if got := c.Snapshot().State; got != Starting {
		t.Fatalf("after toggle: State = %v, want %v", got, Starting)
	}
	if cmd.starts != 1 || cmd.token != "jwt-token" || cmd.th.ProfitFloor != 7 {
		t.Errorf("start command = %d calls, token %q, th %+v", cmd.starts, cmd.token, cmd.th)
	}

	c.OnRunningState(true)
	if got := c.Snapshot(); got.State != Running || !got.Running {
		t.Fatalf("after ack: Snapshot = %+v, want running", got)
	}

	c.OnError(errors.New("scraper crashed"))
	got := c.Snapshot()
	if got.State != Stopped {
		t.Errorf("after error: State = %v, want %v", got.State, Stopped)
	}
	if got.LastError != "scraper crashed" {
		t.Errorf("after error: LastError = %q, want %q", got.LastError, "scraper crashed")
	}

	c.OnRunningState(true)
	if got := c.Snapshot().State; got != Stopped {
		t.Errorf("after stale ack: State = %v, want %v", got, Stopped)
	}
}

func TestController_StartFailure(t *testing.T) {
	cmd := &fakeCommander{startErr: errors.New("backend refused")}
	c := newTestController(cmd)

	err := c.Toggle(context.Background())
	if err == nil || !errors.Is(err, cmd.startErr) {
		t.Fatalf("Toggle() error = %v, want wrapped start error", err)
	}
	s := c.Snapshot()
	if s.State != Stopped {
		t.Errorf("State = %v, want %v", s.State, Stopped)
	}
	if s.LastError != "backend refused" {
		t.Errorf("LastError = %q, want %q", s.LastError, "backend refused")
	}

	// A later successful start clears the error.
	cmd.startErr = nil
	if err := c.Toggle(context.Background()); err != nil {
		t.Fatalf("second Toggle() error = %v", err)
	}
	if s := c.Snapshot(); s.State != Starting || s.LastError != "" {
		t.Errorf("Snapshot() = %+v, want starting without error", s)
	}
}

func TestController_ToggleWhileStartingIgnored(t *testing.T) {
	cmd := &fakeCommander{}
	c := newTestController(cmd)

	c.Toggle(context.Background())
	err := c.Toggle(context.Background())
	if !errors.Is(err, ErrAlreadyStarting) {
		t.Errorf("second Toggle() error = %v, want ErrAlreadyStarting", err)
	}
	if cmd.starts != 1 || cmd.stops != 0 {
		t.Errorf("commands = %d starts, %d stops; want 1, 0", cmd.starts, cmd.stops)
	}
	if got := c.Snapshot().State; got != Starting {
		t.Errorf("State = %v, want %v", got, Starting)
	}
}

func TestController_ToggleStopsImmediately(t *testing.T) {
	cmd := &fakeCommander{stopErr: errors.New("socket gone")}
	c := newTestController(cmd)
	c.Toggle(context.Background())
	c.OnRunningState(true)

	err := c.Toggle(context.Background())
	if !errors.Is(err, cmd.stopErr) {
		t.Errorf("Toggle() error = %v, want stop error", err)
	}
	if got := c.Snapshot().State; got != Stopped {
		t.Errorf("State = %v, want %v", got, Stopped)
	}
	if cmd.stops != 1 {
		t.Errorf("stops = %d, want 1", cmd.stops)
	}
}

func TestController_AckFalseAlwaysStops(t *testing.T) {
	for _, setup := range []func(c *Controller){
		func(c *Controller) {},
		func(c *Controller) { c.Toggle(context.Background()) },
		func(c *Controller) { c.Toggle(context.Background()); c.OnRunningState(true) },
	} {
		c := newTestController(&fakeCommander{})
		setup(c)
		c.OnRunningState(false)
		if got := c.Snapshot().State; got != Stopped {
			t.Errorf("State = %v, want %v", got, Stopped)
		}
	}
}

func TestController_SnapshotDuringStart(t *testing.T) {
	tests := []struct {
		name  string
		setup func(c *Controller)
		snap  bool
		want  State
	}{
		{"starting keeps waiting on false", func(c *Controller) { c.Toggle(context.Background()) }, false, Starting},
		{"starting confirmed by true", func(c *Controller) { c.Toggle(context.Background()) }, true, Running},
		{"running stopped by false", func(c *Controller) { c.Toggle(context.Background()); c.OnRunningState(true) }, false, Stopped},
		{"stopped ignores true", func(c *Controller) {}, true, Stopped},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestController(&fakeCommander{})
			tt.setup(c)
			c.OnSnapshot(tt.snap)
			if got := c.Snapshot().State; got != tt.want {
				t.Errorf("State = %v, want %v", got, tt.want)
			}
		})
	}

	// The ack that follows a resync snapshot still confirms the start.
	c := newTestController(&fakeCommander{})
	c.Toggle(context.Background())
	c.OnSnapshot(false)
	c.OnRunningState(true)
	if got := c.Snapshot().State; got != Running {
		t.Errorf("after snapshot then ack: State = %v, want %v", got, Running)
	}
}

func TestController_ErrorDuringStartBeatsLateAck(t *testing.T) {
	cmd := &fakeCommander{}
	c := newTestController(cmd)
	cmd.onStart = func() {
		// The backend reports a failure before the start command returns.
		c.OnError(errors.New("login expired"))
	}

	if err := c.Toggle(context.Background()); err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	c.OnRunningState(true)

	s := c.Snapshot()
	if s.State != Stopped || s.LastError != "login expired" {
		t.Errorf("Snapshot() = %+v, want stopped with login error", s)
	}
}

func TestController_ErrorWhileStoppedOnlyRecords(t *testing.T) {
	c := newTestController(&fakeCommander{})
	c.OnError(errors.New("warning"))
	c.OnError(nil)
	s := c.Snapshot()
	if s.State != Stopped || s.LastError != "warning" {
		t.Errorf("Snapshot() = %+v, want stopped with warning", s)
	}
}

func TestController_NoBackend(t *testing.T) {
	c := newTestController(nil)
	if err := c.Toggle(context.Background()); !errors.Is(err, ErrNoBackend) {
		t.Errorf("Toggle() error = %v, want ErrNoBackend", err)
	}
}

func TestController_CloseDropsResults(t *testing.T) {
	cmd := &fakeCommander{}
	c := newTestController(cmd)
	cmd.onStart = func() { c.Close() }
	cmd.startErr = errors.New("late failure")

	c.Toggle(context.Background())
	c.OnRunningState(true)
	c.OnError(errors.New("after close"))

	s := c.Snapshot()
	if s.State != Starting || s.LastError != "" {
		t.Errorf("Snapshot() = %+v, want untouched starting state", s)
	}
	if err := c.Toggle(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Toggle after Close error = %v, want ErrClosed", err)
	}
}

func TestController_MessagesBounded(t *testing.T) {
	c := newTestController(&fakeCommander{})
	for i := 0; i < messageHistory+10; i++ {
		c.OnMessage("item", string(rune('a'+i%26)), "info")
	}
	msgs := c.Messages()
	if len(msgs) != messageHistory {
		t.Fatalf("len(Messages()) = %d, want %d", len(msgs), messageHistory)
	}
	if msgs[0].Text != string(rune('a'+10%26)) {
		t.Errorf("oldest = %q, want %q", msgs[0].Text, string(rune('a'+10%26)))
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{Stopped, "stopped"},
		{Starting, "starting"},
		{Running, "running"},
		{Faulted, "faulted"},
		{State(9), "State(9)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestState_TextRoundTrip(t *testing.T) {
	for _, s := range []State{Stopped, Starting, Running, Faulted} {
		text, _ := s.MarshalText()
		var got State
		if err := got.UnmarshalText(text); err != nil || got != s {
			t.Errorf("UnmarshalText(%s) = %v, %v, want %v", text, got, err, s)
		}
	}
	var s State
	if err := s.UnmarshalText([]byte("paused")); err == nil {
		t.Error("UnmarshalText(paused) error = nil")
	}
}
