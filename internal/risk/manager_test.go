package risk

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager() (*Manager, *time.Time) {
	m := NewManager(nil)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.nowFn = func() time.Time { return now }
	return m, &now
}

func healthyView() PortfolioView {
	return PortfolioView{Cash: 100_000}
}

func entry(symbol, side string, amount, price float64) Proposal {
	return Proposal{Symbol: symbol, Side: side, Amount: amount, Price: price, Entry: true}
}

func TestBlacklistedSymbolAlwaysRejected(t *testing.T) {
	m, _ := newTestManager()
	res := m.CheckOrder(DefaultLimits(), entry("FARTCOIN", "long", 1000, 1), healthyView())
	assert.False(t, res.Approved)
	assert.Contains(t, res.Reason, "blacklisted")
}

func TestCooldownWindow(t *testing.T) {
	m, now := newTestManager()
	limits := DefaultLimits()

	require.True(t, m.CheckOrder(limits, entry("BTC", "long", 0.01, 50000), healthyView()).Approved)
	m.RecordTrade(context.Background(), "BTC")

	*now = now.Add(120 * time.Second)
	res := m.CheckOrder(limits, entry("BTC", "long", 0.01, 50000), healthyView())
	assert.False(t, res.Approved)
	assert.Contains(t, res.Reason, "cooldown")

	*now = now.Add(181 * time.Second) // t+301s from the trade
	res = m.CheckOrder(limits, entry("BTC", "long", 0.01, 50000), healthyView())
	assert.True(t, res.Approved, res.Reason)

	// Other symbols are unaffected by BTC's cooldown.
	res = m.CheckOrder(limits, entry("ETH", "long", 0.1, 3000), healthyView())
	assert.True(t, res.Approved, res.Reason)
}

func TestDailyTradeCapResetsAtUTCMidnight(t *testing.T) {
	m, now := newTestManager()
	limits := DefaultLimits()
	limits.TradeCooldownSeconds = 0

	for i := 0; i < limits.MaxTradesPerSymbolPerDay; i++ {
		m.RecordTrade(context.Background(), "ETH")
	}
	res := m.CheckOrder(limits, entry("ETH", "long", 0.1, 3000), healthyView())
	assert.False(t, res.Approved)
	assert.Contains(t, res.Reason, "daily trade limit")

	*now = time.Date(2025, 6, 2, 0, 0, 1, 0, time.UTC)
	res = m.CheckOrder(limits, entry("ETH", "long", 0.1, 3000), healthyView())
	assert.True(t, res.Approved, res.Reason)
}

func TestDailyLossBreaker(t *testing.T) {
	m, _ := newTestManager()
	limits := DefaultLimits()

	view := PortfolioView{
		Cash:          100_000,
		RealizedToday: -3000,
		Positions: []PositionExposure{
			{Symbol: "BTC", Side: "long", Amount: 0.1, Price: 50000, UnrealizedPnL: -2500},
		},
	}
	// Daily PnL -5500 against value 94500 is past the 5% breaker.
	res := m.CheckOrder(limits, entry("ETH", "long", 0.1, 3000), view)
	assert.False(t, res.Approved)
	assert.Contains(t, res.Reason, "daily loss limit")

	view.RealizedToday = -1000
	res = m.CheckOrder(limits, entry("ETH", "long", 0.1, 3000), view)
	assert.True(t, res.Approved, res.Reason)
}

func TestNotionalBounds(t *testing.T) {
	m, _ := newTestManager()
	limits := DefaultLimits()

	res := m.CheckOrder(limits, entry("ETH", "long", 0.01, 3000), healthyView())
	assert.False(t, res.Approved, "a $30 order is below the $50 floor")
	assert.Contains(t, res.Reason, "too small")

	res = m.CheckOrder(limits, entry("BTC", "long", 3, 50000), healthyView())
	assert.False(t, res.Approved)
	assert.Contains(t, res.Reason, "too large")
}

func TestProfitViability(t *testing.T) {
	m, _ := newTestManager()
	limits := DefaultLimits()
	limits.MinOrderUSD = 1

	// A $20 order needs (2 + 0.016) / 20 = 10.1% move; rejected.
	res := m.CheckOrder(limits, entry("DOGE", "long", 100, 0.2), healthyView())
	assert.False(t, res.Approved)
	assert.Contains(t, res.Reason, "move")

	// A $1000 order needs ~0.28%; fine.
	res = m.CheckOrder(limits, entry("DOGE", "long", 5000, 0.2), healthyView())
	assert.True(t, res.Approved, res.Reason)
}

func TestPerSymbolPositionCap(t *testing.T) {
	m, _ := newTestManager()
	limits := DefaultLimits()
	limits.MaxPositionSizeUSD = 10_000

	view := healthyView()
	view.Positions = []PositionExposure{
		{Symbol: "BTC", Side: "long", Amount: 0.18, Price: 50000},
	}
	res := m.CheckOrder(limits, entry("BTC", "long", 0.04, 50000), view)
	assert.False(t, res.Approved, "9000 existing + 2000 new breaches the 10k cap")
	assert.Contains(t, res.Reason, "position limit")

	// A different symbol only counts its own exposure.
	res = m.CheckOrder(limits, entry("ETH", "long", 1, 3000), view)
	assert.True(t, res.Approved, res.Reason)
}

func TestLeverageLimit(t *testing.T) {
	m, _ := newTestManager()
	limits := DefaultLimits()
	limits.MaxLeverage = 2

	view := PortfolioView{Cash: 10_000}
	view.Positions = []PositionExposure{
		{Symbol: "BTC", Side: "long", Amount: 0.3, Price: 50000}, // 15k exposure
	}
	res := m.CheckOrder(limits, entry("ETH", "long", 3, 3000), view)
	assert.False(t, res.Approved, "24k exposure on 10k equity is 2.4x")
	assert.Contains(t, res.Reason, "leverage")
}

func TestDirectionalConcentration(t *testing.T) {
	m, _ := newTestManager()
	limits := DefaultLimits()
	limits.MaxLeverage = 50
	limits.MaxPositionSizeUSD = 0

	view := PortfolioView{Cash: 1_000_000}
	for _, sym := range []string{"BTC", "ETH", "SOL", "BNB", "ZEC"} {
		view.Positions = append(view.Positions, PositionExposure{Symbol: sym, Side: "long", Amount: 1, Price: 1000})
	}
	view.Positions = append(view.Positions,
		PositionExposure{Symbol: "LINK", Side: "short", Amount: 1, Price: 1000},
		PositionExposure{Symbol: "AVAX", Side: "short", Amount: 1, Price: 1000},
	)

	// 5 longs, 2 shorts. A sixth long makes 6/8 = 75% > 70%.
	res := m.CheckOrder(limits, entry("DOGE", "long", 5000, 0.2), view)
	assert.False(t, res.Approved)
	assert.Contains(t, res.Reason, "concentration")

	// A third short makes 3/8; approved.
	res = m.CheckOrder(limits, entry("DOGE", "short", 5000, 0.2), view)
	assert.True(t, res.Approved, res.Reason)

	// Closes are exempt from the concentration check.
	res = m.CheckOrder(limits, Proposal{Symbol: "DOGE", Side: "long", Amount: 5000, Price: 0.2, Entry: false}, view)
	assert.True(t, res.Approved, res.Reason)
}

func TestPortfolioValueIdentity(t *testing.T) {
	view := PortfolioView{
		Cash:          50_000,
		RealizedToday: 1200,
		Positions: []PositionExposure{
			{UnrealizedPnL: 300},
			{UnrealizedPnL: -150},
		},
	}
	assert.InDelta(t, 50_000+1200+300-150, view.Value(), 1e-9)

	// Value floors at zero.
	broke := PortfolioView{Cash: 100, RealizedToday: -500}
	assert.Zero(t, broke.Value())
}

func TestRecordTradeFailureDoesNotConsumeSlot(t *testing.T) {
	// Frequency state only advances through RecordTrade; a rejected or
	// failed submission leaves the window untouched.
	m, now := newTestManager()
	limits := DefaultLimits()

	require.True(t, m.CheckOrder(limits, entry("BTC", "long", 0.01, 50000), healthyView()).Approved)
	// No RecordTrade call. Immediately rechecking still passes.
	*now = now.Add(time.Second)
	assert.True(t, m.CheckOrder(limits, entry("BTC", "long", 0.01, 50000), healthyView()).Approved)
}
