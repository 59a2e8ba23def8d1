package performance

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexwave/internal/store"
	"nexwave/internal/store/gormstore"
)

func TestSummarize(t *testing.T) {
	logs := []store.TradeLogRecord{
		{Symbol: "BTC", RealizedPnL: 300},
		{Symbol: "BTC", RealizedPnL: -100},
		{Symbol: "ETH", RealizedPnL: 150},
		{Symbol: "ETH", RealizedPnL: -50},
		{Symbol: "SOL", RealizedPnL: 0},
	}

	rep := Summarize(logs, "7d")
	assert.Equal(t, 5, rep.TotalTrades)
	assert.Equal(t, 2, rep.Wins)
	assert.Equal(t, 3, rep.Losses)
	assert.InDelta(t, 0.4, rep.WinRate, 1e-9)
	assert.InDelta(t, 300.0, rep.TotalPnL, 1e-9)
	assert.InDelta(t, 450.0, rep.GrossProfit, 1e-9)
	assert.InDelta(t, 150.0, rep.GrossLoss, 1e-9)
	assert.InDelta(t, 3.0, rep.ProfitFactor, 1e-9)
	assert.InDelta(t, 225.0, rep.AvgWin, 1e-9)
	assert.InDelta(t, -50.0, rep.AvgLoss, 1e-9)
	assert.InDelta(t, 300.0, rep.LargestWin, 1e-9)
	assert.InDelta(t, -100.0, rep.LargestLoss, 1e-9)

	btc := rep.BySymbol["BTC"]
	assert.Equal(t, 2, btc.Trades)
	assert.Equal(t, 1, btc.Wins)
	assert.InDelta(t, 200.0, btc.PnL, 1e-9)
}

func TestSummarizeEmptyAndAllWins(t *testing.T) {
	empty := Summarize(nil, "24h")
	assert.Zero(t, empty.TotalTrades)
	assert.Zero(t, empty.WinRate)
	assert.Zero(t, empty.ProfitFactor)

	wins := Summarize([]store.TradeLogRecord{
		{Symbol: "BTC", RealizedPnL: 10},
		{Symbol: "BTC", RealizedPnL: 20},
	}, "24h")
	assert.Equal(t, 1.0, wins.WinRate)
	assert.Equal(t, 999.0, wins.ProfitFactor)
}

func TestTrackerReadsStoreWindow(t *testing.T) {
	st, err := gormstore.New(filepath.Join(t.TempDir(), "perf.db"))
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	now := time.Now().UTC()
	trades := []store.TradeLogRecord{
		{StrategyID: "s1", Symbol: "BTC", Side: "long", RealizedPnL: 120, Reason: "take profit", ClosedAt: now.Add(-1 * time.Hour)},
		{StrategyID: "s1", Symbol: "ETH", Side: "short", RealizedPnL: -40, Reason: "stop loss", ClosedAt: now.Add(-2 * time.Hour)},
		{StrategyID: "s1", Symbol: "SOL", Side: "long", RealizedPnL: 75, Reason: "signal exit", ClosedAt: now.Add(-48 * time.Hour)},
	}
	for _, tr := range trades {
		require.NoError(t, st.AppendTradeLog(ctx, tr))
	}

	tracker := NewTracker(st)
	rep, err := tracker.Report(ctx, now.Add(-24*time.Hour), "24h")
	require.NoError(t, err)
	assert.Equal(t, 2, rep.TotalTrades)
	assert.InDelta(t, 80.0, rep.TotalPnL, 1e-9)

	all, err := tracker.Report(ctx, time.Time{}, "all")
	require.NoError(t, err)
	assert.Equal(t, 3, all.TotalTrades)
	assert.InDelta(t, 155.0, all.TotalPnL, 1e-9)
}
