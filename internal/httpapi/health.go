package httpapi

import (
	"net/http"

	"github.com/rickgao/stocksync/internal/version"
)

// handleHealth reports component status. It answers 503 when a backend is
// configured but not connected.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := struct {
		Status     string         `json:"status"`
		Components map[string]any `json:"components"`
	}{
		Status:     "healthy",
		Components: make(map[string]any),
	}

	// Check backend session
	if s.deps.Session == nil {
		health.Components["backend"] = "offline"
	} else {
		stats := s.deps.Session.Stats()
		if !stats.Connected {
			health.Status = "unhealthy"
		}
		health.Components["backend"] = map[string]any{
			"connected":        stats.Connected,
			"reconnects":       stats.Reconnects,
			"events_published": stats.EventsPublished,
			"decode_errors":    stats.DecodeErrors,
			"pending_commands": stats.PendingCommands,
		}
	}

	if s.deps.Resync != nil {
		health.Components["resync"] = s.deps.Resync.Stats()
	}

	// Check dispatcher
	if s.deps.Bus != nil {
		health.Components["dispatcher"] = s.deps.Bus.Stats()
	}

	// Check initial sync
	initialized := s.deps.Initialized == nil || s.deps.Initialized()
	if !initialized && health.Status == "healthy" {
		health.Status = "degraded"
	}
	health.Components["stock"] = map[string]any{
		"initialized": initialized,
		"items":       s.deps.Stock.Items.Len(),
		"rivens":      s.deps.Stock.Rivens.Len(),
	}

	health.Components["live_trading"] = s.deps.Trading.Snapshot()

	status := http.StatusOK
	if health.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, version.Info())
}
