package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexwave/internal/config"
	"nexwave/internal/gateway/paper"
	"nexwave/internal/market"
	"nexwave/internal/position"
	"nexwave/internal/risk"
	"nexwave/internal/store"
	"nexwave/internal/store/gormstore"
	"nexwave/internal/store/signallog"
)

type fakeProvider struct {
	mu      sync.Mutex
	candles map[string][]market.Candle
	prices  map[string]float64
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		candles: make(map[string][]market.Candle),
		prices:  make(map[string]float64),
	}
}

func (p *fakeProvider) set(symbol string, candles []market.Candle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.candles[symbol] = candles
	if len(candles) > 0 {
		p.prices[symbol] = candles[len(candles)-1].Close
	}
}

func (p *fakeProvider) Candles(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.candles[symbol]
	if !ok {
		return nil, market.ErrNoData
	}
	return c, nil
}

func (p *fakeProvider) LatestPrice(ctx context.Context, symbol string) (market.PriceQuote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	price, ok := p.prices[symbol]
	if !ok {
		return market.PriceQuote{}, market.ErrNoData
	}
	return market.PriceQuote{Symbol: symbol, Price: price, UpdatedAt: time.Now()}, nil
}

// risingCandles builds a breakout tape: steady climb with a volume spike
// on the final bar.
func risingCandles(n int, start float64) []market.Candle {
	out := make([]market.Candle, 0, n)
	price := start
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		next := price * 1.01
		vol := 1000.0
		if i == n-1 {
			vol = 3000
		}
		out = append(out, market.Candle{
			OpenTime:  base.Add(time.Duration(i) * 15 * time.Minute).UnixMilli(),
			CloseTime: base.Add(time.Duration(i+1) * 15 * time.Minute).UnixMilli(),
			Open:      price,
			High:      next * 1.002,
			Low:       price * 0.998,
			Close:     next,
			Volume:    vol,
		})
		price = next
	}
	return out
}

// fallingCandles reverses the tape so momentum flips negative.
func fallingCandles(n int, start float64) []market.Candle {
	out := make([]market.Candle, 0, n)
	price := start
	base := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		next := price * 0.99
		out = append(out, market.Candle{
			OpenTime:  base.Add(time.Duration(i) * 15 * time.Minute).UnixMilli(),
			CloseTime: base.Add(time.Duration(i+1) * 15 * time.Minute).UnixMilli(),
			Open:      price,
			High:      price * 1.002,
			Low:       next * 0.998,
			Close:     next,
			Volume:    1000,
		})
		price = next
	}
	return out
}

func newTestEngine(t *testing.T) (*Engine, *fakeProvider, store.Store) {
	t.Helper()
	dir := t.TempDir()

	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
app:
  log_level: error
trading:
  strategy_id: test
  symbols: [BTC]
  timeframe: 15m
  initial_balance_usd: 100000
  paper_trading: true
risk:
  trade_cooldown_seconds: 1
  symbol_blacklist: []
`), 0o644))
	watcher, err := config.NewWatcher(cfgPath)
	require.NoError(t, err)

	st, err := gormstore.New(filepath.Join(dir, "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	signals, err := signallog.New(filepath.Join(dir, "signals.db"))
	require.NoError(t, err)
	t.Cleanup(func() { signals.Close() })

	provider := newFakeProvider()
	venue := paper.NewExchange()

	eng := New(Params{
		StrategyID: "test",
		Watcher:    watcher,
		Provider:   provider,
		Exchange:   venue,
		Risk:       risk.NewManager(st),
		Positions:  position.NewManager("test", st, venue),
		Store:      st,
		Signals:    signals,
	})
	return eng, provider, st
}

func TestCycleOpensOnBreakout(t *testing.T) {
	eng, provider, st := newTestEngine(t)
	ctx := context.Background()
	provider.set("BTC", risingCandles(40, 100))

	require.NoError(t, eng.Cycle(ctx))

	pos, ok, err := st.GetPosition(ctx, "test", "BTC")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "long", pos.Side)
	assert.Greater(t, pos.Amount, 0.0)
	assert.Greater(t, pos.TakeProfit, pos.EntryPrice)
	assert.Less(t, pos.StopLoss, pos.EntryPrice)

	orders, err := st.ListRecentOrders(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, store.OrderStatusFilled, orders[0].Status)

	recent, err := eng.signals.Recent(ctx, signallog.Query{Symbol: "BTC", Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, recent)
	assert.Equal(t, "enter_long", recent[0].Kind)

	day := time.Now().UTC().Format("2006-01-02")
	stat, ok, err := st.GetTradeStat(ctx, "BTC", day)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, stat.TradeCount)
}

func TestCycleHoldsThenClosesOnReversal(t *testing.T) {
	eng, provider, st := newTestEngine(t)
	ctx := context.Background()

	provider.set("BTC", risingCandles(40, 100))
	require.NoError(t, eng.Cycle(ctx))

	_, ok, err := st.GetPosition(ctx, "test", "BTC")
	require.NoError(t, err)
	require.True(t, ok)

	// Same tape again: position held, no second order.
	require.NoError(t, eng.Cycle(ctx))
	orders, err := st.ListRecentOrders(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, orders, 1)

	// Momentum flips hard; the engine closes and logs the trade.
	provider.set("BTC", fallingCandles(40, 149))
	require.NoError(t, eng.Cycle(ctx))

	// The row survives the close with status flipped; nothing stays open.
	rec, ok, err := st.GetPosition(ctx, "test", "BTC")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, store.PositionStatusClosed, rec.Status)

	open, err := st.ListOpenPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	logs, err := st.ListTradeLogs(ctx, time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "long", logs[0].Side)
}

func TestCycleSkipsSymbolWithoutData(t *testing.T) {
	eng, provider, st := newTestEngine(t)
	ctx := context.Background()

	// No candles registered at all; the cycle still completes.
	_ = provider
	require.NoError(t, eng.Cycle(ctx))

	open, err := st.ListOpenPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestCycleRespectsRiskRejection(t *testing.T) {
	eng, provider, st := newTestEngine(t)
	ctx := context.Background()

	// Blacklist BTC through a config update; the breakout must not trade.
	snap := eng.watcher.Snapshot()
	next := *snap.Config
	next.Risk.SymbolBlacklist = []string{"BTC"}
	require.NoError(t, eng.watcher.Apply(&next))

	provider.set("BTC", risingCandles(40, 100))
	require.NoError(t, eng.Cycle(ctx))

	open, err := st.ListOpenPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	orders, err := st.ListRecentOrders(ctx, "", 10)
	require.NoError(t, err)
	assert.Empty(t, orders)
}
