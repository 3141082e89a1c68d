package operator

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/oddsmith/kalshi-mm/internal/gateway"
	"github.com/oddsmith/kalshi-mm/internal/inventory"
	"github.com/oddsmith/kalshi-mm/internal/journal"
	"github.com/oddsmith/kalshi-mm/internal/orderbook"
	"github.com/oddsmith/kalshi-mm/internal/quoting"
	"github.com/oddsmith/kalshi-mm/internal/reconciler"
	"github.com/oddsmith/kalshi-mm/pkg/healthprobe"
	"github.com/oddsmith/kalshi-mm/pkg/types"
)

type stubVenue struct {
	mu        sync.Mutex
	nextID    int
	cancelled []string
	books     map[string]*types.OrderbookSnapshot
	positions map[string]int
}

func (f *stubVenue) PlaceOrder(ctx context.Context, req *gateway.OrderRequest) (*gateway.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return &gateway.Order{OrderID: fmt.Sprintf("o%d", f.nextID)}, nil
}

func (f *stubVenue) CancelOrder(ctx context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

func (f *stubVenue) GetOrders(ctx context.Context, status string) ([]gateway.Order, error) {
	return nil, nil
}

func (f *stubVenue) GetOrderbook(ctx context.Context, ticker string) (*types.OrderbookSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.books[ticker]; ok {
		return s, nil
	}
	return &types.OrderbookSnapshot{Ticker: ticker}, nil
}

func (f *stubVenue) GetPositions(ctx context.Context) (map[string]int, error) {
	return f.positions, nil
}

type stubStream struct{}

func (stubStream) Subscribe(ctx context.Context, tickers []string) error   { return nil }
func (stubStream) Unsubscribe(ctx context.Context, tickers []string) error { return nil }

type harness struct {
	server *Server
	engine *quoting.Engine
	store  journal.Store
	venue  *stubVenue
	rec    *reconciler.Reconciler
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logger := zap.NewNop()

	store, err := journal.NewSQLite(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	venue := &stubVenue{
		books: map[string]*types.OrderbookSnapshot{
			"TEAMA": {Ticker: "TEAMA", Yes: [][2]int{{50, 10}}, No: [][2]int{{30, 10}}},
			"TEAMB": {Ticker: "TEAMB", Yes: [][2]int{{33, 10}}, No: [][2]int{{52, 10}}},
		},
		positions: map[string]int{},
	}

	books := orderbook.New(&orderbook.Config{Logger: logger})
	ledger := inventory.New(logger)
	rec := reconciler.New(&reconciler.Config{
		Exchange:           venue,
		Logger:             logger,
		OverbidCancelDelay: 10 * time.Second,
	})

	engine, err := quoting.New(&quoting.Config{
		Books:    books,
		Ledger:   ledger,
		Orders:   rec,
		Exchange: venue,
		Stream:   stubStream{},
		Store:    store,
		Logger:   logger,
		Settings: quoting.Settings{
			CheckInterval:      2 * time.Second,
			StickyResetSecs:    5 * time.Second,
			OverbidCancelDelay: 10 * time.Second,
		},
		FeeBufferCents: 2,
		Defaults:       quoting.MatchDefaults{Edge: 3, OrderSize: 20, InventoryCap: 10},
	})
	require.NoError(t, err)

	server := New(&Config{
		Port:          "0",
		Logger:        logger,
		Engine:        engine,
		Orders:        rec,
		Store:         store,
		Books:         books,
		HealthChecker: healthprobe.New(),
	})

	return &harness{server: server, engine: engine, store: store, venue: venue, rec: rec}
}

func (h *harness) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (h *harness) addMatch(t *testing.T) string {
	t.Helper()
	rec := h.do(t, http.MethodPost, "/api/matches", map[string]interface{}{
		"ticker_a": "TEAMA",
		"ticker_b": "TEAMB",
		"odds_a":   5.0 / 3.0,
		"odds_b":   2.5,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var snap quoting.MatchSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	return snap.ID
}

func TestAddMatchEndpoint(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/matches", map[string]interface{}{
		"name":     "Team A vs Team B",
		"ticker_a": "TEAMA",
		"ticker_b": "TEAMB",
		"odds_a":   5.0 / 3.0,
		"odds_b":   2.5,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var snap quoting.MatchSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, 60, snap.TheoA)
	assert.Equal(t, 40, snap.TheoB)
	assert.NotEmpty(t, snap.ID)

	// Bad odds rejected.
	rec = h.do(t, http.MethodPost, "/api/matches", map[string]interface{}{
		"ticker_a": "TEAMC", "ticker_b": "TEAMD", "odds_a": 0.5, "odds_b": 2.0,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBatchEndpoint(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/matches/batch", []map[string]interface{}{
		{"ticker_a": "TEAMA", "ticker_b": "TEAMB", "odds_a": 2.0, "odds_b": 2.0},
		{"ticker_a": "TEAMC", "ticker_b": "TEAMD", "odds_a": 1.5, "odds_b": 3.0},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Len(t, h.engine.State(), 2)

	// Partial failure surfaces as 207 with the successful adds.
	rec = h.do(t, http.MethodPost, "/api/matches/batch", []map[string]interface{}{
		{"ticker_a": "TEAMA", "ticker_b": "TEAMX", "odds_a": 2.0, "odds_b": 2.0},
		{"ticker_a": "TEAME", "ticker_b": "TEAMF", "odds_a": 2.0, "odds_b": 2.0},
	})
	assert.Equal(t, http.StatusMultiStatus, rec.Code)
	assert.Len(t, h.engine.State(), 3)
}

func TestStartStopLifecycle(t *testing.T) {
	h := newHarness(t)
	id := h.addMatch(t)

	rec := h.do(t, http.MethodPost, "/api/matches/"+id+"/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	h.engine.Flush()
	assert.NotEmpty(t, h.rec.Orders())

	rec = h.do(t, http.MethodPost, "/api/matches/"+id+"/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, h.rec.Orders())

	rec = h.do(t, http.MethodPost, "/api/matches/unknown/start", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStateEndpoint(t *testing.T) {
	h := newHarness(t)
	h.addMatch(t)

	rec := h.do(t, http.MethodGet, "/api/state", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap stateSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Len(t, snap.Matches, 1)
	assert.Equal(t, 2.0, snap.Settings.CheckInterval)
}

func TestSettingsEndpointEnforcesFloors(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/settings", settingsPayload{
		CheckInterval:      0.1,
		StickyResetSecs:    5,
		OverbidCancelDelay: 10,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/settings", settingsPayload{
		CheckInterval:      1,
		StickyResetSecs:    8,
		OverbidCancelDelay: 4,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var got settingsPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 8.0, got.StickyResetSecs)
}

func TestKillEndpoint(t *testing.T) {
	h := newHarness(t)
	id := h.addMatch(t)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/matches/"+id+"/start", nil).Code)
	h.engine.Flush()
	require.NotEmpty(t, h.rec.Orders())

	rec := h.do(t, http.MethodPost, "/api/kill", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Empty(t, h.rec.Orders())
	state := h.engine.State()
	require.Len(t, state, 1)
	assert.False(t, state[0].Active)
}

func TestSyncInventoryEndpoint(t *testing.T) {
	h := newHarness(t)
	h.addMatch(t)

	h.venue.mu.Lock()
	h.venue.positions["TEAMA"] = 5
	h.venue.mu.Unlock()

	rec := h.do(t, http.MethodPost, "/api/sync-inventory", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	state := h.engine.State()
	require.Len(t, state, 1)
	assert.Equal(t, 5, state[0].Inventory)
}

func TestHedgeCRUDEndpoints(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/hedges/", hedgePayload{
		MatchID:   "m1",
		Platform:  "bet365",
		Side:      "B",
		AmountUSD: 50,
		Odds:      2.1,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created hedgePayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotZero(t, created.ID)

	rec = h.do(t, http.MethodGet, "/api/hedges/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []hedgePayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)

	created.Outcome = "win"
	rec = h.do(t, http.MethodPut, fmt.Sprintf("/api/hedges/%d", created.ID), created)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodDelete, fmt.Sprintf("/api/hedges/%d", created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/hedges/", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Empty(t, listed)

	// Validation.
	rec = h.do(t, http.MethodPost, "/api/hedges/", hedgePayload{MatchID: "m1", Side: "C", AmountUSD: 50, Odds: 2})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMatchPnLEndpoint(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.addMatch(t)

	// One completed pair: A-YES at 55, B-YES at 40 -> arb = 100-55-40 = 5.
	require.NoError(t, h.store.InsertFill(ctx, &journal.Fill{
		ID: "f1", Ticker: "TEAMA", Side: types.SideYes, Action: "buy",
		Price: 55, Count: 1, CreatedTime: time.Now().Add(-time.Hour), MatchID: id, SyncedAt: time.Now(),
	}))
	require.NoError(t, h.store.InsertFill(ctx, &journal.Fill{
		ID: "f2", Ticker: "TEAMB", Side: types.SideYes, Action: "buy",
		Price: 40, Count: 1, CreatedTime: time.Now(), MatchID: id, SyncedAt: time.Now(),
	}))

	rec := h.do(t, http.MethodGet, "/api/pnl/match/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var pnl journal.MatchPnL
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pnl))
	assert.Equal(t, 1, pnl.Pairs)
	assert.Equal(t, 5, pnl.ArbCents)

	rec = h.do(t, http.MethodGet, "/api/pnl/match/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPnLSummaryEndpoint(t *testing.T) {
	h := newHarness(t)
	h.addMatch(t)

	rec := h.do(t, http.MethodGet, "/api/pnl/summary?period=weekly", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"period":"weekly"`)

	rec = h.do(t, http.MethodGet, "/api/pnl/summary?period=hourly", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndReady(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPushChannelDeliversSnapshots(t *testing.T) {
	h := newHarness(t)
	h.addMatch(t)
	h.server.hub.start()
	defer h.server.hub.stop()

	ts := httptest.NewServer(h.server.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var snap stateSnapshot
	require.NoError(t, json.Unmarshal(payload, &snap))
	assert.Len(t, snap.Matches, 1)
}
