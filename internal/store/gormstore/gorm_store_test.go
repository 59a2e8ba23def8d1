package gormstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexwave/internal/store"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPositionUpsertAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := store.PositionRecord{
		StrategyID:    "vwm",
		Symbol:        "btc",
		Side:          "long",
		Amount:        0.5,
		InitialAmount: 0.5,
		EntryPrice:    50000,
		Leverage:      5,
		StopLoss:      49000,
		TakeProfit:    52000,
	}
	require.NoError(t, s.UpsertPosition(ctx, rec))

	got, ok, err := s.GetPosition(ctx, "vwm", "BTC")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "BTC", got.Symbol, "symbols normalized to upper case")
	assert.Equal(t, 0.5, got.Amount)
	assert.Equal(t, store.PositionStatusOpen, got.Status)

	// Upsert on the same (strategy, symbol) key updates in place.
	rec.Amount = 0.25
	rec.PartialTier = 1
	rec.TrailingActive = true
	rec.TrailingStop = 50500
	require.NoError(t, s.UpsertPosition(ctx, rec))

	got, ok, err = s.GetPosition(ctx, "vwm", "BTC")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.25, got.Amount)
	assert.Equal(t, 1, got.PartialTier)
	assert.True(t, got.TrailingActive)
	assert.Equal(t, 50500.0, got.TrailingStop)

	open, err := s.ListOpenPositions(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestPositionMissing(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.GetPosition(context.Background(), "vwm", "ETH")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClosePosition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertPosition(ctx, store.PositionRecord{
		StrategyID: "vwm", Symbol: "ETH", Side: "short", Amount: 2, EntryPrice: 3000,
	}))
	require.NoError(t, s.ClosePosition(ctx, "vwm", "ETH", time.Now()))

	got, ok, err := s.GetPosition(ctx, "vwm", "ETH")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, store.PositionStatusClosed, got.Status)
	assert.Zero(t, got.Amount)

	open, err := s.ListOpenPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	// Closing twice finds no open row.
	assert.Error(t, s.ClosePosition(ctx, "vwm", "ETH", time.Now()))
}

func TestDeleteOpenPosition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertPosition(ctx, store.PositionRecord{
		StrategyID: "vwm", Symbol: "SOL", Side: "long", Amount: 10, EntryPrice: 200,
	}))
	require.NoError(t, s.DeleteOpenPosition(ctx, "vwm", "SOL"))

	_, ok, err := s.GetPosition(ctx, "vwm", "SOL")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOrderLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := store.OrderRecord{
		ClientOrderID: "11111111-1111-4111-8111-111111111111",
		StrategyID:    "vwm",
		Symbol:        "BTC",
		Side:          "bid",
		Kind:          "market",
		Amount:        0.1,
		Status:        store.OrderStatusSubmitted,
		Metadata:      map[string]any{"reason": "long breakout"},
	}
	require.NoError(t, s.InsertOrder(ctx, rec))

	// Duplicate client order ids are rejected by the unique index.
	assert.Error(t, s.InsertOrder(ctx, rec))

	require.NoError(t, s.UpdateOrderStatus(ctx, rec.ClientOrderID, store.OrderStatusFilled, "ex-42"))

	orders, err := s.ListRecentOrders(ctx, "BTC", 10)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, store.OrderStatusFilled, orders[0].Status)
	assert.Equal(t, "ex-42", orders[0].ExchangeOrderID)
	assert.Equal(t, "long breakout", orders[0].Metadata["reason"])

	assert.Error(t, s.UpdateOrderStatus(ctx, "unknown", store.OrderStatusCanceled, ""))
}

func TestTradeCounterIncrements(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.RecordTrade(ctx, "BTC", at))
	require.NoError(t, s.RecordTrade(ctx, "BTC", at.Add(time.Hour)))
	require.NoError(t, s.RecordTrade(ctx, "ETH", at))

	stat, ok, err := s.GetTradeStat(ctx, "BTC", "2025-06-01")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, stat.TradeCount)
	assert.Equal(t, at.Add(time.Hour).UnixMilli(), stat.LastTradeAt.UnixMilli())

	// A new UTC day starts a fresh counter.
	require.NoError(t, s.RecordTrade(ctx, "BTC", at.Add(24*time.Hour)))
	stat, ok, err = s.GetTradeStat(ctx, "BTC", "2025-06-02")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, stat.TradeCount)

	_, ok, err = s.GetTradeStat(ctx, "SOL", "2025-06-01")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTradeLogsAndRealizedPnL(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	logs := []store.TradeLogRecord{
		{StrategyID: "vwm", Symbol: "BTC", Side: "long", Amount: 0.1, EntryPrice: 50000, ExitPrice: 51000, RealizedPnL: 100, ClosedAt: base.Add(-2 * time.Hour)},
		{StrategyID: "vwm", Symbol: "ETH", Side: "short", Amount: 1, EntryPrice: 3000, ExitPrice: 3100, RealizedPnL: -100, ClosedAt: base.Add(time.Hour)},
		{StrategyID: "vwm", Symbol: "SOL", Side: "long", Amount: 5, EntryPrice: 200, ExitPrice: 210, RealizedPnL: 50, ClosedAt: base.Add(2 * time.Hour)},
	}
	for _, l := range logs {
		require.NoError(t, s.AppendTradeLog(ctx, l))
	}

	// Only trades at or after the boundary count.
	pnl, err := s.RealizedPnLSince(ctx, base)
	require.NoError(t, err)
	assert.InDelta(t, -50, pnl, 1e-9)

	recent, err := s.ListTradeLogs(ctx, base, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "SOL", recent[0].Symbol, "newest first")

	all, err := s.ListTradeLogs(ctx, time.Time{}, 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
