package livehttp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"nexwave/internal/config"
	"nexwave/internal/performance"
	"nexwave/internal/store"
	"nexwave/internal/store/gormstore"
	"nexwave/internal/store/signallog"
)

func newTestServer(t *testing.T) (*Server, store.Store, *signallog.Store, *config.Watcher) {
	t.Helper()
	dir := t.TempDir()

	st, err := gormstore.New(filepath.Join(dir, "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	signals, err := signallog.New(filepath.Join(dir, "signals.db"))
	require.NoError(t, err)
	t.Cleanup(func() { signals.Close() })

	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
trading:
  symbols: [BTC, ETH]
exchange:
  api_key: super-secret-key
  private_key: base58-private-key-material
`), 0o644))
	watcher, err := config.NewWatcher(cfgPath)
	require.NoError(t, err)

	srv, err := NewServer(ServerConfig{
		Store:       st,
		Signals:     signals,
		Performance: performance.NewTracker(st),
		Watcher:     watcher,
	})
	require.NoError(t, err)
	return srv, st, signals, watcher
}

func doRequest(t *testing.T, srv *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	w := doRequest(t, srv, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", gjson.GetBytes(w.Body.Bytes(), "status").String())
}

func TestListPositionsAndTrades(t *testing.T) {
	srv, st, _, _ := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertPosition(ctx, store.PositionRecord{
		StrategyID: "s1", Symbol: "BTC", Side: "long", Amount: 0.5,
		EntryPrice: 50000, Status: store.PositionStatusOpen, OpenedAt: time.Now(),
	}))
	require.NoError(t, st.AppendTradeLog(ctx, store.TradeLogRecord{
		StrategyID: "s1", Symbol: "ETH", Side: "short", Amount: 2,
		EntryPrice: 3000, ExitPrice: 2900, RealizedPnL: 200,
		Reason: "take profit", ClosedAt: time.Now().UTC(),
	}))

	w := doRequest(t, srv, http.MethodGet, "/api/positions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), gjson.GetBytes(w.Body.Bytes(), "count").Int())
	assert.Equal(t, "BTC", gjson.GetBytes(w.Body.Bytes(), "positions.0.Symbol").String())
	assert.Equal(t, float64(25000), gjson.GetBytes(w.Body.Bytes(), "exposure.long_usd").Float())
	assert.Equal(t, float64(0), gjson.GetBytes(w.Body.Bytes(), "exposure.short_usd").Float())

	w = doRequest(t, srv, http.MethodGet, "/api/trades?limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), gjson.GetBytes(w.Body.Bytes(), "count").Int())

	w = doRequest(t, srv, http.MethodGet, "/api/performance?window=7d", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), gjson.GetBytes(w.Body.Bytes(), "total_trades").Int())
	assert.Equal(t, float64(200), gjson.GetBytes(w.Body.Bytes(), "total_pnl").Float())
}

func TestListOrdersFiltersBySymbol(t *testing.T) {
	srv, st, _, _ := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, st.InsertOrder(ctx, store.OrderRecord{
		ClientOrderID: "ord-btc", Symbol: "BTC", Side: "bid", Amount: 0.5,
		Price: 50000, Kind: "market", Status: store.OrderStatusFilled,
	}))
	require.NoError(t, st.InsertOrder(ctx, store.OrderRecord{
		ClientOrderID: "ord-eth", Symbol: "ETH", Side: "ask", Amount: 2,
		Price: 3000, Kind: "market", Status: store.OrderStatusFilled,
	}))

	w := doRequest(t, srv, http.MethodGet, "/api/orders?limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(2), gjson.GetBytes(w.Body.Bytes(), "count").Int())

	w = doRequest(t, srv, http.MethodGet, "/api/orders?symbol=btc&limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), gjson.GetBytes(w.Body.Bytes(), "count").Int())
	assert.Equal(t, "BTC", gjson.GetBytes(w.Body.Bytes(), "orders.0.Symbol").String())
}

func TestListSignalsFilters(t *testing.T) {
	srv, _, signals, _ := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, signals.Append(ctx, signallog.Record{Symbol: "BTC", Kind: "enter_long", Price: 50000, Reason: "breakout"}))
	require.NoError(t, signals.Append(ctx, signallog.Record{Symbol: "ETH", Kind: "none", Price: 3000, Reason: "quiet"}))

	w := doRequest(t, srv, http.MethodGet, "/api/signals?symbol=btc", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), gjson.GetBytes(w.Body.Bytes(), "count").Int())
	assert.Equal(t, "enter_long", gjson.GetBytes(w.Body.Bytes(), "signals.0.kind").String())
}

func TestGetConfigRedactsSecrets(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	w := doRequest(t, srv, http.MethodGet, "/api/config", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.NotContains(t, body, "super-secret-key")
	assert.NotContains(t, body, "base58-private-key-material")
	assert.Equal(t, int64(1), gjson.Get(body, "version").Int())
}

func TestUpdateTradingConfig(t *testing.T) {
	srv, _, _, watcher := newTestServer(t)

	payload, _ := json.Marshal(map[string]any{
		"symbols": []string{"sol", "doge"},
	})
	w := doRequest(t, srv, http.MethodPut, "/api/config/trading", payload)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(2), gjson.GetBytes(w.Body.Bytes(), "version").Int())
	assert.Equal(t, []string{"SOL", "DOGE"}, watcher.Snapshot().Config.Trading.Symbols)

	// An update that fails validation is rejected and nothing changes.
	bad, _ := json.Marshal(map[string]any{
		"risk": map[string]any{"max_directional_ratio": 3},
	})
	w = doRequest(t, srv, http.MethodPut, "/api/config/trading", bad)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, int64(2), watcher.Snapshot().Version)
}
