package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/rickgao/stocksync/internal/backend"
	"github.com/rickgao/stocksync/internal/match"
	"github.com/rickgao/stocksync/internal/stock"
	"github.com/rickgao/stocksync/internal/view"
)

var errNoBackend = errors.New("no backend attached")

// parseQuery maps URL parameters onto a projection query:
//
//	?search=nikana&status=live,underpriced&sort=list_price&dir=desc&page=2&page_size=10
func parseQuery(v url.Values) (view.Query, error) {
	q := view.Query{
		Search:   strings.TrimSpace(v.Get("search")),
		SortKey:  v.Get("sort"),
		Page:     1,
		PageSize: view.DefaultPageSize,
	}
	for _, raw := range v["status"] {
		for _, st := range strings.Split(raw, ",") {
			if st = strings.TrimSpace(st); st != "" {
				q.Statuses = append(q.Statuses, st)
			}
		}
	}
	if d := v.Get("dir"); d != "" {
		dir, err := view.ParseDirection(d)
		if err != nil {
			return view.Query{}, err
		}
		q.Dir = dir
	}
	if p := v.Get("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return view.Query{}, fmt.Errorf("invalid page %q", p)
		}
		q.Page = n
	}
	if p := v.Get("page_size"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			return view.Query{}, fmt.Errorf("invalid page_size %q", p)
		}
		q.PageSize = n
	}
	return q, nil
}

func project[T any](w http.ResponseWriter, r *http.Request, items []T, f view.Fields[T]) {
	q, err := parseQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	page, err := view.Project(items, q, f)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	project(w, r, s.deps.Stock.Items.Snapshot(), view.ItemFields())
}

func (s *Server) handleListRivens(w http.ResponseWriter, r *http.Request) {
	project(w, r, s.deps.Stock.Rivens.Snapshot(), view.RivenFields())
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	item, ok := s.deps.Stock.Items.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, stock.ErrUnknownEntry)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleGetRiven(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	riven, ok := s.deps.Stock.Rivens.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, stock.ErrUnknownEntry)
		return
	}
	writeJSON(w, http.StatusOK, riven)
}

func (s *Server) handleStockTotals(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"items":      s.deps.Stock.Items.Totals(),
		"rivens":     s.deps.Stock.Rivens.Totals(),
		"thresholds": s.deps.Stock.Thresholds(),
	})
}

// handleSetRivenMatch asks the backend to replace the match criteria of a
// riven. attributes maps attribute url names to their match flag; omitted
// names keep their flag. The change lands when the backend echoes the riven.
func (s *Server) handleSetRivenMatch(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req struct {
		Criteria   match.Criteria  `json:"criteria"`
		Attributes map[string]bool `json:"attributes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if s.deps.Commands == nil {
		writeError(w, http.StatusServiceUnavailable, errNoBackend)
		return
	}
	riven, ok := s.deps.Stock.Rivens.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, stock.ErrUnknownEntry)
		return
	}
	patch := riven.MatchPatch(req.Criteria, req.Attributes)
	if err := s.deps.Commands.UpdateStockEntry(r.Context(), stock.KindRiven, id, patch); err != nil {
		writeCommandError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleRivenAccepts evaluates a listing against a riven's effective criteria.
func (s *Server) handleRivenAccepts(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var listing match.Candidate
	if err := json.NewDecoder(r.Body).Decode(&listing); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	riven, ok := s.deps.Stock.Rivens.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, stock.ErrUnknownEntry)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"matches":  riven.Accepts(listing),
		"criteria": riven.Criteria(),
	})
}

func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	kind := kindFromPath(mux.Vars(r)["kind"])
	var data map[string]any
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if s.deps.Commands == nil {
		writeError(w, http.StatusServiceUnavailable, errNoBackend)
		return
	}
	reply, err := s.deps.Commands.CreateStockEntry(r.Context(), kind, data)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	if len(reply) == 0 {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write(reply)
}

func (s *Server) handleUpdateEntry(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := s.entryRef(w, r)
	if !ok {
		return
	}
	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(patch) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("empty patch"))
		return
	}
	if err := s.deps.Commands.UpdateStockEntry(r.Context(), kind, id, patch); err != nil {
		writeCommandError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := s.entryRef(w, r)
	if !ok {
		return
	}
	if err := s.deps.Commands.DeleteStockEntry(r.Context(), kind, id); err != nil {
		writeCommandError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleSellEntry(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := s.entryRef(w, r)
	if !ok {
		return
	}
	var req struct {
		Price int64 `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Price <= 0 {
		writeError(w, http.StatusBadRequest, errors.New("price must be > 0"))
		return
	}
	if err := s.deps.Commands.SellStockEntry(r.Context(), kind, id, req.Price); err != nil {
		writeCommandError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// entryRef reads kind and id from the path and checks that a backend is
// attached. It writes the error response itself.
func (s *Server) entryRef(w http.ResponseWriter, r *http.Request) (stock.Kind, int64, bool) {
	vars := mux.Vars(r)
	id, err := parseID(vars["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return "", 0, false
	}
	if s.deps.Commands == nil {
		writeError(w, http.StatusServiceUnavailable, errNoBackend)
		return "", 0, false
	}
	return kindFromPath(vars["kind"]), id, true
}

func kindFromPath(seg string) stock.Kind {
	if seg == "rivens" {
		return stock.KindRiven
	}
	return stock.KindItem
}

// writeCommandError maps a backend command failure onto a status code.
func writeCommandError(w http.ResponseWriter, err error) {
	var cmdErr *backend.CommandError
	switch {
	case errors.As(err, &cmdErr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": cmdErr.Message,
			"code":  cmdErr.Code,
		})
	case errors.Is(err, backend.ErrNotConnected):
		writeError(w, http.StatusServiceUnavailable, err)
	case errors.Is(err, backend.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, err)
	default:
		writeError(w, http.StatusBadGateway, err)
	}
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}
