// Package risk implements admission control for proposed orders. Checks
// run in a fixed order from cheapest to most stateful; the first failure
// wins and its reason is returned for the audit log.
package risk

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"nexwave/internal/logger"
	"nexwave/internal/store"
)

// Limits are the risk thresholds. They live in the config snapshot and
// are passed on every check so hot reloads apply without restart.
type Limits struct {
	MaxPositionSizeUSD float64 `mapstructure:"max_position_size_usd" json:"max_position_size_usd"`
	MaxLeverage        float64 `mapstructure:"max_leverage" json:"max_leverage"`
	DailyLossLimitPct  float64 `mapstructure:"daily_loss_limit_pct" json:"daily_loss_limit_pct"`
	MinOrderUSD        float64 `mapstructure:"min_order_usd" json:"min_order_usd"`
	MaxOrderUSD        float64 `mapstructure:"max_order_usd" json:"max_order_usd"`
	MinProfitTargetUSD float64 `mapstructure:"min_profit_target_usd" json:"min_profit_target_usd"`
	TakerFeeRate       float64 `mapstructure:"taker_fee_rate" json:"taker_fee_rate"`
	// RequiredMoveCeilingPct rejects entries whose fee+floor breakeven
	// needs a bigger price move than this.
	RequiredMoveCeilingPct   float64  `mapstructure:"required_move_ceiling_pct" json:"required_move_ceiling_pct"`
	TradeCooldownSeconds     int      `mapstructure:"trade_cooldown_seconds" json:"trade_cooldown_seconds"`
	MaxTradesPerSymbolPerDay int      `mapstructure:"max_trades_per_symbol_per_day" json:"max_trades_per_symbol_per_day"`
	MaxDirectionalRatio      float64  `mapstructure:"max_directional_ratio" json:"max_directional_ratio"`
	SymbolBlacklist          []string `mapstructure:"symbol_blacklist" json:"symbol_blacklist"`
}

func DefaultLimits() Limits {
	return Limits{
		MaxPositionSizeUSD:       100000,
		MaxLeverage:              5.0,
		DailyLossLimitPct:        5.0,
		MinOrderUSD:              50,
		MaxOrderUSD:              100000,
		MinProfitTargetUSD:       2.0,
		TakerFeeRate:             0.0004,
		RequiredMoveCeilingPct:   5.0,
		TradeCooldownSeconds:     300,
		MaxTradesPerSymbolPerDay: 10,
		MaxDirectionalRatio:      0.7,
		SymbolBlacklist:          []string{"XPL", "ASTER", "FARTCOIN", "PENGU", "CRV", "SUI"},
	}
}

// Result is one check outcome.
type Result struct {
	Approved bool
	Reason   string
}

func approve(reason string) Result { return Result{Approved: true, Reason: reason} }
func reject(format string, args ...any) Result {
	return Result{Approved: false, Reason: fmt.Sprintf(format, args...)}
}

// PositionExposure is one open position as the gate sees it. Price is the
// mark price when known, otherwise the entry price.
type PositionExposure struct {
	Symbol        string
	Side          string // "long" or "short"
	Amount        float64
	Price         float64
	UnrealizedPnL float64
}

// PortfolioView is a point-in-time snapshot the engine assembles each
// cycle from cash, open positions, and today's closed trades.
type PortfolioView struct {
	Cash          float64
	Positions     []PositionExposure
	RealizedToday float64
}

// Value is the live portfolio value. Never a constant: sizing and the
// loss breaker both key off it.
func (v PortfolioView) Value() float64 {
	total := v.Cash + v.RealizedToday
	for _, p := range v.Positions {
		total += p.UnrealizedPnL
	}
	if total < 0 {
		return 0
	}
	return total
}

// Proposal is one order awaiting admission. Entry is false for closes,
// which skip the concentration check.
type Proposal struct {
	Symbol string
	Side   string // "long" or "short"
	Amount float64
	Price  float64
	Entry  bool
}

type symbolHistory struct {
	mu          sync.Mutex
	lastTradeAt time.Time
	day         string
	tradesToday int
}

// Manager tracks per-symbol trade frequency and runs the check chain.
// Counters persist through the store so a restart cannot launder the
// daily limit.
type Manager struct {
	mu      sync.Mutex
	history map[string]*symbolHistory
	store   store.Store
	nowFn   func() time.Time
}

func NewManager(st store.Store) *Manager {
	return &Manager{
		history: make(map[string]*symbolHistory),
		store:   st,
		nowFn:   time.Now,
	}
}

// Hydrate loads today's persisted counters for the given symbols, so a
// restarted process keeps honoring cooldowns and daily caps.
func (m *Manager) Hydrate(ctx context.Context, symbols []string) error {
	if m.store == nil {
		return nil
	}
	day := m.nowFn().UTC().Format("2006-01-02")
	for _, sym := range symbols {
		stat, ok, err := m.store.GetTradeStat(ctx, sym, day)
		if err != nil {
			return fmt.Errorf("hydrate trade stats for %s: %w", sym, err)
		}
		if !ok {
			continue
		}
		h := m.symbolHistory(sym)
		h.mu.Lock()
		h.day = day
		h.tradesToday = stat.TradeCount
		h.lastTradeAt = stat.LastTradeAt
		h.mu.Unlock()
	}
	return nil
}

// CheckOrder runs the full chain. Order matters: cheap static checks
// fail fast before anything touching portfolio state.
func (m *Manager) CheckOrder(limits Limits, p Proposal, view PortfolioView) Result {
	if res := m.checkBlacklist(limits, p.Symbol); !res.Approved {
		return res
	}
	if res := m.checkFrequency(limits, p.Symbol); !res.Approved {
		return res
	}
	if res := m.checkDailyLoss(limits, view); !res.Approved {
		return res
	}
	notional := p.Amount * p.Price
	if res := checkOrderSize(limits, notional); !res.Approved {
		return res
	}
	if res := checkProfitViability(limits, notional); !res.Approved {
		return res
	}
	if res := checkPositionLimit(limits, p.Symbol, notional, view); !res.Approved {
		return res
	}
	if res := checkLeverage(limits, notional, view); !res.Approved {
		return res
	}
	if p.Entry {
		if res := checkConcentration(limits, p.Side, view); !res.Approved {
			return res
		}
	}
	return approve("all risk checks passed")
}

// RecordTrade advances the cooldown timer and daily counter. Called only
// after the order was actually submitted, so a failed submission does not
// consume a rate-limit slot.
func (m *Manager) RecordTrade(ctx context.Context, symbol string) {
	now := m.nowFn()
	day := now.UTC().Format("2006-01-02")

	h := m.symbolHistory(symbol)
	h.mu.Lock()
	if h.day != day {
		h.day = day
		h.tradesToday = 0
	}
	h.lastTradeAt = now
	h.tradesToday++
	count := h.tradesToday
	h.mu.Unlock()

	logger.Debugf("trade recorded for %s: %d today", symbol, count)
	if m.store != nil {
		if err := m.store.RecordTrade(ctx, symbol, now); err != nil {
			logger.Warnf("persist trade counter for %s: %v", symbol, err)
		}
	}
}

func (m *Manager) symbolHistory(symbol string) *symbolHistory {
	key := strings.ToUpper(symbol)
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.history[key]
	if !ok {
		h = &symbolHistory{}
		m.history[key] = h
	}
	return h
}

func (m *Manager) checkBlacklist(limits Limits, symbol string) Result {
	sym := strings.ToUpper(symbol)
	for _, b := range limits.SymbolBlacklist {
		if strings.ToUpper(strings.TrimSpace(b)) == sym {
			return reject("symbol %s is blacklisted", sym)
		}
	}
	return approve("symbol not blacklisted")
}

func (m *Manager) checkFrequency(limits Limits, symbol string) Result {
	now := m.nowFn()
	day := now.UTC().Format("2006-01-02")
	cooldown := time.Duration(limits.TradeCooldownSeconds) * time.Second

	h := m.symbolHistory(symbol)
	h.mu.Lock()
	defer h.mu.Unlock()

	// Counters roll over at UTC midnight; the cooldown timer does not.
	if h.day != day {
		h.day = day
		h.tradesToday = 0
	}
	if !h.lastTradeAt.IsZero() && cooldown > 0 {
		since := now.Sub(h.lastTradeAt)
		if since < cooldown {
			return reject("trade cooldown active for %s: %.0fs remaining", strings.ToUpper(symbol), (cooldown - since).Seconds())
		}
	}
	if limits.MaxTradesPerSymbolPerDay > 0 && h.tradesToday >= limits.MaxTradesPerSymbolPerDay {
		return reject("daily trade limit reached for %s: %d/%d", strings.ToUpper(symbol), h.tradesToday, limits.MaxTradesPerSymbolPerDay)
	}
	return approve("trade frequency ok")
}

func (m *Manager) checkDailyLoss(limits Limits, view PortfolioView) Result {
	value := view.Value()
	if value <= 0 {
		return reject("portfolio value is zero")
	}
	dailyPnL := view.RealizedToday
	for _, p := range view.Positions {
		dailyPnL += p.UnrealizedPnL
	}
	lossPct := dailyPnL / value * 100
	if limits.DailyLossLimitPct > 0 && lossPct <= -limits.DailyLossLimitPct {
		return reject("daily loss limit breached: %.2f%% <= -%.2f%%", lossPct, limits.DailyLossLimitPct)
	}
	return approve("daily loss ok")
}

func checkOrderSize(limits Limits, notional float64) Result {
	if notional < limits.MinOrderUSD {
		return reject("order too small: $%.2f < $%.2f", notional, limits.MinOrderUSD)
	}
	if limits.MaxOrderUSD > 0 && notional > limits.MaxOrderUSD {
		return reject("order too large: $%.2f > $%.2f", notional, limits.MaxOrderUSD)
	}
	return approve("order size ok")
}

// checkProfitViability rejects trades that cannot realistically clear
// round-trip fees plus the minimum profit floor.
func checkProfitViability(limits Limits, notional float64) Result {
	if notional <= 0 {
		return reject("zero notional")
	}
	fees := notional * limits.TakerFeeRate * 2
	needed := limits.MinProfitTargetUSD + fees
	requiredMovePct := needed / notional * 100
	ceiling := limits.RequiredMoveCeilingPct
	if ceiling <= 0 {
		ceiling = 5.0
	}
	if requiredMovePct > ceiling {
		return reject("trade needs %.2f%% move to clear $%.2f profit after fees", requiredMovePct, limits.MinProfitTargetUSD)
	}
	return approve("profit target viable")
}

func checkPositionLimit(limits Limits, symbol string, notional float64, view PortfolioView) Result {
	if limits.MaxPositionSizeUSD <= 0 {
		return approve("position limit disabled")
	}
	sym := strings.ToUpper(symbol)
	total := notional
	for _, p := range view.Positions {
		if strings.ToUpper(p.Symbol) == sym {
			total += p.Amount * p.Price
		}
	}
	if total > limits.MaxPositionSizeUSD {
		return reject("position limit exceeded for %s: $%.0f > $%.0f", sym, total, limits.MaxPositionSizeUSD)
	}
	return approve("position limit ok")
}

func checkLeverage(limits Limits, notional float64, view PortfolioView) Result {
	value := view.Value()
	if value <= 0 {
		return reject("portfolio value is zero")
	}
	exposure := notional
	for _, p := range view.Positions {
		exposure += p.Amount * p.Price
	}
	leverage := exposure / value
	if limits.MaxLeverage > 0 && leverage > limits.MaxLeverage {
		return reject("implied leverage too high: %.2fx > %.2fx", leverage, limits.MaxLeverage)
	}
	return approve("leverage ok")
}

// checkConcentration keeps the book from tilting fully one-directional.
// With fewer than three open positions the ratio is meaningless, so the
// check only applies once the book has some breadth.
func checkConcentration(limits Limits, side string, view PortfolioView) Result {
	ratio := limits.MaxDirectionalRatio
	if ratio <= 0 || ratio >= 1 {
		return approve("concentration check disabled")
	}
	if len(view.Positions) < 3 {
		return approve("book too small for concentration check")
	}
	sameSide := 1
	for _, p := range view.Positions {
		if strings.EqualFold(p.Side, side) {
			sameSide++
		}
	}
	total := len(view.Positions) + 1
	got := float64(sameSide) / float64(total)
	if got > ratio {
		return reject("directional concentration too high: %d/%d %s positions (%.0f%% > %.0f%%)",
			sameSide, total, strings.ToLower(side), got*100, ratio*100)
	}
	return approve("concentration ok")
}
