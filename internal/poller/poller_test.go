package poller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

type fakeSyncer struct {
	connected atomic.Bool
	calls     atomic.Int32
	err       error
	block     bool
}

func (f *fakeSyncer) IsConnected() bool { return f.connected.Load() }

func (f *fakeSyncer) RequestInit(ctx context.Context) error {
	f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPoller_Poll(t *testing.T) {
	tests := []struct {
		name      string
		connected bool
		err       error
		block     bool
		want      Stats
	}{
		{"connected", true, nil, false, Stats{Polls: 1}},
		{"offline", false, nil, false, Stats{Skipped: 1}},
		{"rejected", true, errors.New("boom"), false, Stats{Polls: 1, Errors: 1}},
		{"timeout", true, nil, true, Stats{Polls: 1, Errors: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &fakeSyncer{err: tt.err, block: tt.block}
			s.connected.Store(tt.connected)
			p := New(Config{Interval: time.Hour, Timeout: 20 * time.Millisecond}, s, discardLogger())

			p.poll(context.Background())

			got := p.Stats()
			if got.Polls != tt.want.Polls || got.Skipped != tt.want.Skipped || got.Errors != tt.want.Errors {
				t.Errorf("Stats() = %+v, want %+v", got, tt.want)
			}
			if tt.want.Polls > 0 && got.LastPoll.IsZero() {
				t.Error("LastPoll is zero after a poll")
			}
		})
	}
}

func TestPoller_RunTicksUntilCancelled(t *testing.T) {
	s := &fakeSyncer{}
	s.connected.Store(true)
	p := New(Config{Interval: 10 * time.Millisecond}, s, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for s.calls.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("poller did not tick")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNew_Defaults(t *testing.T) {
	p := New(Config{}, &fakeSyncer{}, nil)
	if p.cfg != DefaultConfig() {
		t.Errorf("cfg = %+v, want %+v", p.cfg, DefaultConfig())
	}
}
