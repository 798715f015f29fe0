package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/goquant/tradesim/internal/book"
	"github.com/goquant/tradesim/internal/impact"
	"github.com/goquant/tradesim/internal/observability"
	"github.com/goquant/tradesim/internal/perf"
	"github.com/goquant/tradesim/internal/portfolio"
	"github.com/goquant/tradesim/internal/sim"
)

const testSymbol = "BTC-USDT-SWAP"

type testEnv struct {
	server   *httptest.Server
	pipeline *sim.Pipeline
	ledger   *portfolio.Ledger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()

	b := book.New(testSymbol)
	model := impact.NewModel(impact.DefaultParams())
	engine := sim.NewEngine(testSymbol, model, false, logger)
	ledger := portfolio.NewLedger(100000, 0.001, 0)
	monitor := perf.NewMonitor(100, logger)
	pipeline := sim.NewPipeline(testSymbol, b, engine, ledger, nil, monitor, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go pipeline.Run(ctx)
	t.Cleanup(cancel)

	health := observability.NewHealthChecker(logger)
	health.SetFeedReady(true)
	health.SetReady(true)

	apiServer := NewServer(
		map[string]*sim.Pipeline{testSymbol: pipeline},
		ledger, monitor, model, health, logger,
	)
	srv := httptest.NewServer(apiServer.Router())
	t.Cleanup(srv.Close)

	return &testEnv{server: srv, pipeline: pipeline, ledger: ledger}
}

func (e *testEnv) feedTick(t *testing.T, ts int64, last float64) {
	t.Helper()
	tick := book.Tick{
		Symbol: testSymbol,
		Bid:    last - 5,
		Ask:    last + 5,
		Last:   last,
		Bids: []book.Level{
			{Price: last - 5, Size: 10},
			{Price: last - 10, Size: 20},
		},
		Asks: []book.Level{
			{Price: last + 5, Size: 10},
			{Price: last + 10, Size: 20},
		},
		TsUnixMillis: ts,
	}
	require.NoError(t, e.pipeline.HandleTick(context.Background(), tick))

	// The pipeline worker applies ticks asynchronously.
	require.Eventually(t, func() bool {
		return e.pipeline.Book().Snapshot(1).LastUpdateMillis >= ts
	}, 2*time.Second, 5*time.Millisecond)
}

func (e *testEnv) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(e.server.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSubmitOrder_Lifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.feedTick(t, 1000, 50000)

	resp := env.postJSON(t, "/orders", map[string]any{
		"symbol":   testSymbol,
		"side":     "BUY",
		"kind":     "market",
		"quantity": 1,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	order := decodeBody[sim.Order](t, resp)
	assert.NotEmpty(t, order.ID)
	assert.Equal(t, sim.StatusPending, order.Status)

	// Next tick fills the market order.
	env.feedTick(t, 2000, 50000)

	require.Eventually(t, func() bool {
		resp, err := http.Get(env.server.URL + "/orders/" + order.ID)
		if err != nil {
			return false
		}
		got := decodeBody[sim.Order](t, resp)
		return got.Status == sim.StatusFilled
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSubmitOrder_Errors(t *testing.T) {
	env := newTestEnv(t)

	// Unknown symbol.
	resp := env.postJSON(t, "/orders", map[string]any{
		"symbol": "DOGE-USDT-SWAP", "side": "BUY", "kind": "market", "quantity": 1,
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	// Invalid order.
	resp = env.postJSON(t, "/orders", map[string]any{
		"symbol": testSymbol, "side": "BUY", "kind": "market", "quantity": -1,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// Missing content type.
	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/orders", bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
	raw.Body.Close()
}

func TestCancelOrder(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/orders", map[string]any{
		"symbol": testSymbol, "side": "BUY", "kind": "limit", "quantity": 1, "limit_price": 40000,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	order := decodeBody[sim.Order](t, resp)

	req, err := http.NewRequest(http.MethodDelete, env.server.URL+"/orders/"+order.ID, nil)
	require.NoError(t, err)
	cancelResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, cancelResp.StatusCode)
	cancelled := decodeBody[sim.Order](t, cancelResp)
	assert.Equal(t, sim.StatusCancelled, cancelled.Status)

	// A second cancel conflicts.
	again, err := http.DefaultClient.Do(req.Clone(context.Background()))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, again.StatusCode)
	again.Body.Close()

	// Unknown order id.
	req, err = http.NewRequest(http.MethodDelete, env.server.URL+"/orders/no-such-id", nil)
	require.NoError(t, err)
	missing, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
	missing.Body.Close()
}

func TestGetBook(t *testing.T) {
	env := newTestEnv(t)
	env.feedTick(t, 1000, 50000)

	resp, err := http.Get(env.server.URL + "/book/" + testSymbol)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[map[string]any](t, resp)
	assert.Equal(t, testSymbol, body["symbol"])
	assert.Equal(t, 49995.0, body["best_bid"])
	assert.Equal(t, 50005.0, body["best_ask"])
	assert.Equal(t, 50000.0, body["mid"])

	missing, err := http.Get(env.server.URL + "/book/DOGE-USDT-SWAP")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
	missing.Body.Close()
}

func TestGetPortfolioAndEquity(t *testing.T) {
	env := newTestEnv(t)
	env.feedTick(t, 1000, 50000)
	env.feedTick(t, 2000, 50100)

	resp, err := http.Get(env.server.URL + "/portfolio")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	state := decodeBody[portfolio.State](t, resp)
	assert.Equal(t, 100000.0, state.Cash)

	resp, err = http.Get(env.server.URL + "/portfolio/equity?n=1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	curve := decodeBody[[]portfolio.EquityPoint](t, resp)
	require.Len(t, curve, 1)
	assert.Equal(t, int64(2000), curve[0].TsUnixMillis)

	resp, err = http.Get(env.server.URL + "/portfolio/equity?n=zero")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestImpactEstimate(t *testing.T) {
	env := newTestEnv(t)
	env.feedTick(t, 1000, 50000)

	resp, err := http.Get(env.server.URL + "/impact/estimate?symbol=" + testSymbol + "&side=BUY&qty=2")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[map[string]any](t, resp)
	assert.Greater(t, body["fill_price"].(float64), 50005.0)
	assert.Greater(t, body["impact_bps"].(float64), 0.0)

	// Invalid side and quantity.
	resp, err = http.Get(env.server.URL + "/impact/estimate?symbol=" + testSymbol + "&side=LONG&qty=2")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(env.server.URL + "/impact/estimate?symbol=" + testSymbol + "&side=BUY&qty=-2")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestImpactEstimate_EmptyBook(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/impact/estimate?symbol=" + testSymbol + "&side=BUY&qty=2")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()
}

func TestImpactSchedule(t *testing.T) {
	env := newTestEnv(t)
	env.feedTick(t, 1000, 50000)

	resp, err := http.Get(env.server.URL + "/impact/schedule?symbol=" + testSymbol + "&qty=1000&horizon=1&periods=5")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	schedule := decodeBody[impact.Schedule](t, resp)
	require.Len(t, schedule.Holdings, 6)
	assert.InDelta(t, 1000.0, schedule.Holdings[0], 1e-9)
	assert.Greater(t, schedule.ExpectedShortfallBps, 0.0)

	resp, err = http.Get(env.server.URL + "/impact/schedule?symbol=" + testSymbol + "&qty=0")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestGetLatency(t *testing.T) {
	env := newTestEnv(t)
	env.feedTick(t, 1000, 50000)

	resp, err := http.Get(env.server.URL + "/metrics/latency")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stats := decodeBody[map[string]perf.Stats](t, resp)
	require.Contains(t, stats, string(perf.StageEndToEnd))
	assert.GreaterOrEqual(t, stats[string(perf.StageEndToEnd)].Count, 1)
}
