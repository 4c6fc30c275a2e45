package app

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rickgao/stocksync/internal/event"
)

// maxFrameSize bounds one line of a replay file.
const maxFrameSize = 16 << 20

// ReplayStats summarizes a replay.
type ReplayStats struct {
	Lines      int           `json:"lines"`
	Events     int           `json:"events"`
	Rejected   int           `json:"rejected"`
	Duration   time.Duration `json:"duration"`
	FirstError string        `json:"first_error,omitempty"`
}

// Replay reads backend frames, one JSON object per line, and dispatches each
// synchronously in file order. Blank lines and lines starting with '#' are
// skipped. Frames that fail to decode are counted and skipped, as they would
// be on a live connection; only read errors and cancellation abort.
func (a *App) Replay(ctx context.Context, r io.Reader) (stats ReplayStats, err error) {
	start := time.Now()
	defer func() { stats.Duration = time.Since(start) }()

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.watchMarket(watchCtx)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxFrameSize)

	for sc.Scan() {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Lines++

		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}

		ev, err := event.Decode(line)
		if err != nil {
			stats.Rejected++
			if stats.FirstError == "" {
				stats.FirstError = fmt.Sprintf("line %d: %v", stats.Lines, err)
			}
			a.logger.Warn("replay frame rejected", "line", stats.Lines, "error", err)
			continue
		}
		a.Bus.Dispatch(ctx, ev)
		stats.Events++
	}
	if err := sc.Err(); err != nil {
		return stats, fmt.Errorf("read replay: %w", err)
	}

	a.logger.Info("replay finished",
		"lines", stats.Lines,
		"events", stats.Events,
		"rejected", stats.Rejected,
	)
	return stats, nil
}
