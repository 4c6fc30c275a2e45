package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"sync"
	"testing"

	"github.com/rickgao/stocksync/internal/backend"
	"github.com/rickgao/stocksync/internal/livetrading"
	"github.com/rickgao/stocksync/internal/market"
	"github.com/rickgao/stocksync/internal/match"
	"github.com/rickgao/stocksync/internal/stock"
	"github.com/rickgao/stocksync/internal/view"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeCommander struct {
	starts int
}

func (f *fakeCommander) StartLiveTrading(context.Context, string, stock.Thresholds) error {
	f.starts++
	return nil
}

func (f *fakeCommander) StopLiveTrading(context.Context) error { return nil }

type fakeCommands struct {
	mu      sync.Mutex
	calls   []string
	patches []map[string]any
	err     error
}

func (f *fakeCommands) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeCommands) CreateStockEntry(_ context.Context, kind stock.Kind, _ any) (json.RawMessage, error) {
	if err := f.record("create " + string(kind)); err != nil {
		return nil, err
	}
	return json.RawMessage(`{"id":3}`), nil
}

func (f *fakeCommands) UpdateStockEntry(_ context.Context, kind stock.Kind, _ int64, patch map[string]any) error {
	f.mu.Lock()
	f.patches = append(f.patches, patch)
	f.mu.Unlock()
	return f.record("update " + string(kind))
}

func (f *fakeCommands) SellStockEntry(_ context.Context, kind stock.Kind, _, _ int64) error {
	return f.record("sell " + string(kind))
}

func (f *fakeCommands) DeleteStockEntry(_ context.Context, kind stock.Kind, _ int64) error {
	return f.record("delete " + string(kind))
}

func setupServer(t *testing.T, cmds stock.Commands) (*Server, Deps) {
	t.Helper()
	rec := stock.NewReconciler(stock.Thresholds{ProfitFloor: 3}, discardLogger())
	for i := int64(1); i <= 7; i++ {
		it := stock.Item{
			Entry:    stock.Entry{ID: i, Bought: 10, Owned: 1},
			WFMURL:   "item_" + string(rune('a'+i)),
			ItemName: "Item " + string(rune('A'+i)),
		}
		if _, err := rec.Items.Upsert(it); err != nil {
			t.Fatalf("Upsert(%d): %v", i, err)
		}
	}
	rec.UpdatePriceByID(stock.KindItem, 2, 30)
	rec.Rivens.Upsert(stock.Riven{
		Entry:       stock.Entry{ID: 5, Bought: 100, Owned: 1},
		WeaponURL:   "rubico",
		WeaponName:  "Rubico",
		MasteryRank: 12,
		ReRolls:     4,
	})

	deps := Deps{
		Stock:       rec,
		Market:      market.NewRegistry(10, discardLogger()),
		Trading:     livetrading.NewController(livetrading.Config{Thresholds: rec.Thresholds}, &fakeCommander{}, discardLogger()),
		Commands:    cmds,
		Initialized: func() bool { return true },
	}
	return NewServer(deps, discardLogger()), deps
}

func do(s *Server, method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, target, r)
	resp := httptest.NewRecorder()
	s.Handler().ServeHTTP(resp, req)
	return resp
}

func TestHealthHandler(t *testing.T) {
	server, _ := setupServer(t, nil)

	resp := do(server, http.MethodGet, "/health", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var health struct {
		Status     string                     `json:"status"`
		Components map[string]json.RawMessage `json:"components"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "healthy" {
		t.Errorf("status = %q, want healthy", health.Status)
	}
	if string(health.Components["backend"]) != `"offline"` {
		t.Errorf("backend = %s, want \"offline\"", health.Components["backend"])
	}
}

func TestHealthHandler_DegradedBeforeInit(t *testing.T) {
	server, deps := setupServer(t, nil)
	deps.Initialized = func() bool { return false }
	server = NewServer(deps, discardLogger())

	resp := do(server, http.MethodGet, "/health", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !bytes.Contains(resp.Body.Bytes(), []byte(`"status":"degraded"`)) {
		t.Errorf("body = %s, want degraded", resp.Body.String())
	}
}

func TestListItemsHandler(t *testing.T) {
	server, _ := setupServer(t, nil)

	tests := []struct {
		name      string
		query     string
		wantCode  int
		wantIDs   []int64
		wantTotal int
	}{
		{"default sort puts the listed item first", "", http.StatusOK, []int64{2, 1, 3, 4, 5, 6, 7}, 7},
		{"id descending page 1", "?sort=id&dir=desc&page_size=5", http.StatusOK, []int64{7, 6, 5, 4, 3}, 7},
		{"page 3 of 7 with size 5 is empty", "?sort=id&page=3&page_size=5", http.StatusOK, []int64{}, 7},
		{"status filter", "?status=live", http.StatusOK, []int64{2}, 1},
		{"search folds case", "?search=item%20d", http.StatusOK, []int64{3}, 1},
		{"unknown sort key", "?sort=colour", http.StatusBadRequest, nil, 0},
		{"bad direction", "?dir=sideways", http.StatusBadRequest, nil, 0},
		{"bad page size", "?page_size=0", http.StatusBadRequest, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(server, http.MethodGet, "/stock/items"+tt.query, "")
			if resp.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d, body=%s", resp.Code, tt.wantCode, resp.Body.String())
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			var page view.Page[stock.Item]
			if err := json.Unmarshal(resp.Body.Bytes(), &page); err != nil {
				t.Fatalf("decode page: %v", err)
			}
			ids := []int64{}
			for _, it := range page.Items {
				ids = append(ids, it.ID)
			}
			if !slices.Equal(ids, tt.wantIDs) {
				t.Errorf("ids = %v, want %v", ids, tt.wantIDs)
			}
			if page.Total != tt.wantTotal {
				t.Errorf("Total = %d, want %d", page.Total, tt.wantTotal)
			}
		})
	}
}

func TestGetEntryHandlers(t *testing.T) {
	server, _ := setupServer(t, nil)

	tests := []struct {
		target string
		want   int
	}{
		{"/stock/items/2", http.StatusOK},
		{"/stock/items/99", http.StatusNotFound},
		{"/stock/rivens/5", http.StatusOK},
		{"/stock/rivens/1", http.StatusNotFound},
		{"/stock/rivens/abc", http.StatusNotFound}, // no route
	}
	for _, tt := range tests {
		if resp := do(server, http.MethodGet, tt.target, ""); resp.Code != tt.want {
			t.Errorf("GET %s = %d, want %d", tt.target, resp.Code, tt.want)
		}
	}
}

func TestRivenMatchHandlers(t *testing.T) {
	cmds := &fakeCommands{}
	server, deps := setupServer(t, cmds)

	resp := do(server, http.MethodPut, "/stock/rivens/5/match", `{"criteria":{"re_rolls":{"min":0,"max":10},"polarity":"madurai"}}`)
	if resp.Code != http.StatusAccepted {
		t.Fatalf("PUT match = %d, body=%s", resp.Code, resp.Body.String())
	}
	if !slices.Equal(cmds.calls, []string{"update riven"}) {
		t.Fatalf("calls = %v, want [update riven]", cmds.calls)
	}
	criteria, ok := cmds.patches[0]["match_riven"].(match.Criteria)
	if !ok || criteria.Polarity != "madurai" || criteria.ReRolls == nil || criteria.ReRolls.Max != 10 {
		t.Fatalf("patch = %+v", cmds.patches[0])
	}
	riven, _ := deps.Stock.Rivens.Get(5)
	if riven.MatchRiven.Polarity != "" {
		t.Errorf("Polarity = %q before the backend echo, want empty", riven.MatchRiven.Polarity)
	}

	// Apply the backend's echo of the edit.
	riven.MatchRiven = criteria
	deps.Stock.ApplyRiven(stock.Change[stock.Riven]{Op: stock.OpUpsert, Value: riven})

	tests := []struct {
		listing string
		want    bool
	}{
		{`{"re_rolls":3,"polarity":"madurai","mastery_rank":8}`, true},
		{`{"re_rolls":30,"polarity":"madurai"}`, false},
		{`{"re_rolls":3,"polarity":"naramon"}`, false},
	}
	for _, tt := range tests {
		resp := do(server, http.MethodPost, "/stock/rivens/5/accepts", tt.listing)
		if resp.Code != http.StatusOK {
			t.Fatalf("POST accepts = %d", resp.Code)
		}
		var got struct {
			Matches bool `json:"matches"`
		}
		json.Unmarshal(resp.Body.Bytes(), &got)
		if got.Matches != tt.want {
			t.Errorf("accepts(%s) = %v, want %v", tt.listing, got.Matches, tt.want)
		}
	}

	if resp := do(server, http.MethodPut, "/stock/rivens/77/match", `{}`); resp.Code != http.StatusNotFound {
		t.Errorf("PUT unknown riven = %d, want 404", resp.Code)
	}
}

func TestRivenMatchHandler_NoBackend(t *testing.T) {
	server, deps := setupServer(t, nil)

	resp := do(server, http.MethodPut, "/stock/rivens/5/match", `{"criteria":{"re_rolls":{"min":0,"max":5}}}`)
	if resp.Code != http.StatusServiceUnavailable {
		t.Errorf("PUT match = %d, want 503", resp.Code)
	}
	riven, _ := deps.Stock.Rivens.Get(5)
	if riven.MatchRiven.ReRolls != nil {
		t.Errorf("ReRolls = %+v, want unchanged", riven.MatchRiven.ReRolls)
	}
}

func TestStockCommandHandlers(t *testing.T) {
	cmds := &fakeCommands{}
	server, _ := setupServer(t, cmds)

	tests := []struct {
		method, target, body string
		want                 int
	}{
		{http.MethodPost, "/stock/items/1/sell", `{"price":20}`, http.StatusAccepted},
		{http.MethodPost, "/stock/rivens/5/sell", `{"price":0}`, http.StatusBadRequest},
		{http.MethodPatch, "/stock/rivens/5", `{"minimum_price":90}`, http.StatusAccepted},
		{http.MethodPatch, "/stock/items/1", `{}`, http.StatusBadRequest},
		{http.MethodDelete, "/stock/items/4", "", http.StatusAccepted},
		{http.MethodPost, "/stock/items", `{"wfm_url":"ash_prime_set","bought":12}`, http.StatusAccepted},
	}
	for _, tt := range tests {
		if resp := do(server, tt.method, tt.target, tt.body); resp.Code != tt.want {
			t.Errorf("%s %s = %d, want %d, body=%s", tt.method, tt.target, resp.Code, tt.want, resp.Body.String())
		}
	}

	want := []string{"sell item", "update riven", "delete item", "create item"}
	if !slices.Equal(cmds.calls, want) {
		t.Errorf("calls = %v, want %v", cmds.calls, want)
	}
}

func TestStockCommandHandlers_Errors(t *testing.T) {
	tests := []struct {
		name string
		cmds stock.Commands
		want int
	}{
		{"no backend", nil, http.StatusServiceUnavailable},
		{"rejected", &fakeCommands{err: &backend.CommandError{Cmd: backend.CmdStockSell, Code: "not_found", Message: "gone"}}, http.StatusUnprocessableEntity},
		{"disconnected", &fakeCommands{err: backend.ErrNotConnected}, http.StatusServiceUnavailable},
		{"timeout", &fakeCommands{err: backend.ErrTimeout}, http.StatusGatewayTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := setupServer(t, tt.cmds)
			resp := do(server, http.MethodPost, "/stock/items/1/sell", `{"price":20}`)
			if resp.Code != tt.want {
				t.Errorf("code = %d, want %d, body=%s", resp.Code, tt.want, resp.Body.String())
			}
		})
	}
}

func TestToggleHandler(t *testing.T) {
	server, deps := setupServer(t, nil)

	resp := do(server, http.MethodPost, "/live-trading/toggle", "")
	if resp.Code != http.StatusAccepted {
		t.Fatalf("first toggle = %d, body=%s", resp.Code, resp.Body.String())
	}
	var snap livetrading.Snapshot
	if err := json.Unmarshal(resp.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.State != livetrading.Starting {
		t.Errorf("State = %v, want Starting", snap.State)
	}

	if resp := do(server, http.MethodPost, "/live-trading/toggle", ""); resp.Code != http.StatusConflict {
		t.Errorf("toggle while starting = %d, want 409", resp.Code)
	}

	deps.Trading.OnRunningState(true)
	resp = do(server, http.MethodGet, "/live-trading", "")
	if !bytes.Contains(resp.Body.Bytes(), []byte(`"running":true`)) {
		t.Errorf("GET /live-trading = %s, want running", resp.Body.String())
	}
}

func TestMarketHandlers(t *testing.T) {
	server, deps := setupServer(t, nil)
	m := deps.Market
	market.Apply(m, market.TableOrders, m.Orders, stock.OpSet, market.Order{}, "", []market.Order{
		{ID: "o1", OrderType: "sell", Platinum: 20},
		{ID: "o2", OrderType: "buy", Platinum: 5},
	})

	resp := do(server, http.MethodGet, "/market/summary", "")
	var sum market.Summary
	if err := json.Unmarshal(resp.Body.Bytes(), &sum); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if sum.BuyOrders != 1 || sum.SellOrders != 1 {
		t.Errorf("summary = %+v, want 1 buy and 1 sell", sum)
	}

	if resp := do(server, http.MethodGet, "/market/user", ""); resp.Code != http.StatusNotFound {
		t.Errorf("GET /market/user = %d, want 404", resp.Code)
	}
	resp = do(server, http.MethodGet, "/market/chats/c1/messages", "")
	if got := bytes.TrimSpace(resp.Body.Bytes()); string(got) != "[]" {
		t.Errorf("messages body = %s, want []", got)
	}
}

func TestParseQuery(t *testing.T) {
	tests := []struct {
		raw     string
		want    view.Query
		wantErr bool
	}{
		{"", view.Query{Page: 1, PageSize: view.DefaultPageSize}, false},
		{
			"search=+Soma+&status=live,underpriced&status=pending&sort=name&dir=DESC&page=2&page_size=10",
			view.Query{Search: "Soma", Statuses: []string{"live", "underpriced", "pending"}, SortKey: "name", Dir: view.Desc, Page: 2, PageSize: 10},
			false,
		},
		{"page=x", view.Query{}, true},
		{"page_size=-1", view.Query{}, true},
		{"dir=up", view.Query{}, true},
	}
	for _, tt := range tests {
		v, _ := url.ParseQuery(tt.raw)
		got, err := parseQuery(v)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseQuery(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			continue
		}
		if tt.wantErr {
			continue
		}
		if got.Search != tt.want.Search || got.SortKey != tt.want.SortKey || got.Dir != tt.want.Dir ||
			got.Page != tt.want.Page || got.PageSize != tt.want.PageSize || !slices.Equal(got.Statuses, tt.want.Statuses) {
			t.Errorf("parseQuery(%q) = %+v, want %+v", tt.raw, got, tt.want)
		}
	}
}
