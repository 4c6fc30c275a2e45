package httpapi

import (
	"errors"
	"net/http"

	"github.com/rickgao/stocksync/internal/livetrading"
)

func (s *Server) handleLiveTrading(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		livetrading.Snapshot
		Messages []livetrading.Message `json:"messages"`
	}{s.deps.Trading.Snapshot(), s.deps.Trading.Messages()})
}

// handleToggle starts or stops live trading. The response carries the state
// right after the command; a start is confirmed later by the backend.
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Trading.Toggle(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, s.deps.Trading.Snapshot())
	case errors.Is(err, livetrading.ErrAlreadyStarting):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, livetrading.ErrNoBackend), errors.Is(err, livetrading.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		writeCommandError(w, err)
	}
}
