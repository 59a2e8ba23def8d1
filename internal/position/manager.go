// Package position owns the position data model and its lifecycle:
// opening from signals, reduce-only closes, exchange reconciliation, and
// the local trailing-stop and partial-profit overlays.
package position

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"nexwave/internal/gateway/pacifica"
	"nexwave/internal/logger"
	"nexwave/internal/store"
	"nexwave/internal/strategy"
)

// Exchange is the venue surface the manager needs. Satisfied by the
// pacifica client and by paper-trading fakes.
type Exchange interface {
	CreateMarketOrder(ctx context.Context, req pacifica.MarketOrderRequest) (pacifica.OrderAck, error)
	SetPositionTPSL(ctx context.Context, symbol, side string, stopLoss, takeProfit float64) error
	ListPositions(ctx context.Context) ([]pacifica.Position, error)
}

// ManageParams tune the local trailing and partial-profit overlays. The
// exchange-side TP/SL attached at entry stays as the baseline; these only
// tighten.
type ManageParams struct {
	ActivationATRMultiple    float64 `mapstructure:"trailing_activation_atr_multiple" json:"trailing_activation_atr_multiple"`
	TrailATRMultiple         float64 `mapstructure:"trailing_atr_multiple" json:"trailing_atr_multiple"`
	FirstPartialATRMultiple  float64 `mapstructure:"first_partial_atr_multiple" json:"first_partial_atr_multiple"`
	FirstPartialFraction     float64 `mapstructure:"first_partial_fraction" json:"first_partial_fraction"`
	SecondPartialATRMultiple float64 `mapstructure:"second_partial_atr_multiple" json:"second_partial_atr_multiple"`
}

func DefaultManageParams() ManageParams {
	return ManageParams{
		ActivationATRMultiple:    1.5,
		TrailATRMultiple:         1.0,
		FirstPartialATRMultiple:  2.0,
		FirstPartialFraction:     0.5,
		SecondPartialATRMultiple: 4.0,
	}
}

const minResidualAmount = 1e-9

// Manager serializes all mutations per symbol. Cross-symbol operations
// run concurrently; two operations on the same symbol never interleave.
type Manager struct {
	strategyID string
	store      store.Store
	exchange   Exchange

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	nowFn func() time.Time
}

func NewManager(strategyID string, st store.Store, ex Exchange) *Manager {
	return &Manager{
		strategyID: strategyID,
		store:      st,
		exchange:   ex,
		locks:      make(map[string]*sync.Mutex),
		nowFn:      time.Now,
	}
}

func (m *Manager) symbolLock(symbol string) *sync.Mutex {
	key := strings.ToUpper(symbol)
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	return l
}

// Open submits an entry order for the signal and records the resulting
// position. The signal's protective levels travel with the order.
func (m *Manager) Open(ctx context.Context, sig strategy.Signal, leverage float64) (store.PositionRecord, error) {
	lock := m.symbolLock(sig.Symbol)
	lock.Lock()
	defer lock.Unlock()

	if _, exists, err := m.store.GetPosition(ctx, m.strategyID, sig.Symbol); err != nil {
		return store.PositionRecord{}, err
	} else if exists {
		return store.PositionRecord{}, fmt.Errorf("position: %s already open", strings.ToUpper(sig.Symbol))
	}

	side := entrySide(sig.Kind)
	if side == "" {
		return store.PositionRecord{}, fmt.Errorf("position: signal %s is not an entry", sig.Kind)
	}
	clientID := uuid.NewString()

	orderRec := store.OrderRecord{
		ClientOrderID: clientID,
		StrategyID:    m.strategyID,
		Symbol:        sig.Symbol,
		Side:          side,
		Kind:          "market",
		Amount:        sig.Amount,
		Price:         sig.Price,
		Status:        store.OrderStatusSubmitted,
		Metadata:      map[string]any{"reason": sig.Reason},
	}
	if err := m.store.InsertOrder(ctx, orderRec); err != nil {
		return store.PositionRecord{}, fmt.Errorf("record entry order: %w", err)
	}

	ack, err := m.exchange.CreateMarketOrder(ctx, pacifica.MarketOrderRequest{
		Symbol:        sig.Symbol,
		Side:          side,
		Amount:        sig.Amount,
		ClientOrderID: clientID,
		EntryPrice:    sig.Price,
		StopLoss:      sig.StopLoss,
		TakeProfit:    sig.TakeProfit,
	})
	if err != nil {
		if uerr := m.store.UpdateOrderStatus(ctx, clientID, store.OrderStatusRejected, ""); uerr != nil {
			logger.Warnf("mark order %s rejected: %v", clientID, uerr)
		}
		return store.PositionRecord{}, err
	}
	if uerr := m.store.UpdateOrderStatus(ctx, clientID, store.OrderStatusFilled, ack.OrderID); uerr != nil {
		logger.Warnf("mark order %s filled: %v", clientID, uerr)
	}

	rec := store.PositionRecord{
		StrategyID:    m.strategyID,
		Symbol:        strings.ToUpper(sig.Symbol),
		Side:          positionSide(sig.Kind),
		Amount:        sig.Amount,
		InitialAmount: sig.Amount,
		EntryPrice:    sig.Price,
		Leverage:      leverage,
		StopLoss:      sig.StopLoss,
		TakeProfit:    sig.TakeProfit,
		PeakPrice:     sig.Price,
		ClientOrderID: clientID,
		Status:        store.PositionStatusOpen,
		OpenedAt:      m.nowFn(),
	}
	if err := m.store.UpsertPosition(ctx, rec); err != nil {
		return store.PositionRecord{}, fmt.Errorf("persist position: %w", err)
	}
	logger.Infof("opened %s %s %.6f @ %.4f (sl=%.4f tp=%.4f)", rec.Side, rec.Symbol, rec.Amount, rec.EntryPrice, rec.StopLoss, rec.TakeProfit)
	return rec, nil
}

// Close closes up to amount of the open position with a reduce-only
// market order. Passing an amount at or above the held size closes it
// fully. The local record only shrinks after the exchange accepts, so a
// retried failure cannot double-close.
func (m *Manager) Close(ctx context.Context, symbol string, amount, price float64, reason string) error {
	lock := m.symbolLock(symbol)
	lock.Lock()
	defer lock.Unlock()
	return m.closeLocked(ctx, symbol, amount, price, reason, -1)
}

func (m *Manager) closeLocked(ctx context.Context, symbol string, amount, price float64, reason string, newTier int) error {
	pos, ok, err := m.store.GetPosition(ctx, m.strategyID, symbol)
	if err != nil {
		return err
	}
	if !ok || pos.Status != store.PositionStatusOpen || pos.Amount <= 0 {
		return fmt.Errorf("position: no open %s position", strings.ToUpper(symbol))
	}
	if amount <= 0 || amount > pos.Amount {
		amount = pos.Amount
	}

	clientID := uuid.NewString()
	if err := m.store.InsertOrder(ctx, store.OrderRecord{
		ClientOrderID: clientID,
		StrategyID:    m.strategyID,
		Symbol:        symbol,
		Side:          closeSide(pos.Side),
		Kind:          "market",
		Amount:        amount,
		Price:         price,
		ReduceOnly:    true,
		Status:        store.OrderStatusSubmitted,
		Metadata:      map[string]any{"reason": reason},
	}); err != nil {
		return fmt.Errorf("record close order: %w", err)
	}

	ack, err := m.exchange.CreateMarketOrder(ctx, pacifica.MarketOrderRequest{
		Symbol:        symbol,
		Side:          closeSide(pos.Side),
		Amount:        amount,
		ReduceOnly:    true,
		ClientOrderID: clientID,
	})
	if err != nil {
		if uerr := m.store.UpdateOrderStatus(ctx, clientID, store.OrderStatusRejected, ""); uerr != nil {
			logger.Warnf("mark order %s rejected: %v", clientID, uerr)
		}
		return err
	}
	if uerr := m.store.UpdateOrderStatus(ctx, clientID, store.OrderStatusFilled, ack.OrderID); uerr != nil {
		logger.Warnf("mark order %s filled: %v", clientID, uerr)
	}

	realized := realizedPnL(pos.Side, pos.EntryPrice, price, amount)
	if err := m.store.AppendTradeLog(ctx, store.TradeLogRecord{
		StrategyID:  m.strategyID,
		Symbol:      symbol,
		Side:        pos.Side,
		Amount:      amount,
		EntryPrice:  pos.EntryPrice,
		ExitPrice:   price,
		RealizedPnL: realized,
		Reason:      reason,
		ClosedAt:    m.nowFn(),
	}); err != nil {
		logger.Warnf("append trade log for %s: %v", symbol, err)
	}

	remaining := pos.Amount - amount
	if remaining <= minResidualAmount {
		if err := m.store.ClosePosition(ctx, m.strategyID, symbol, m.nowFn()); err != nil {
			return fmt.Errorf("mark position closed: %w", err)
		}
		logger.Infof("closed %s %s %.6f @ %.4f pnl=%.2f (%s)", pos.Side, strings.ToUpper(symbol), amount, price, realized, reason)
		return nil
	}

	pos.Amount = remaining
	if newTier > pos.PartialTier {
		pos.PartialTier = newTier
	}
	if err := m.store.UpsertPosition(ctx, pos); err != nil {
		return fmt.Errorf("persist partial close: %w", err)
	}
	logger.Infof("partially closed %s %s %.6f @ %.4f pnl=%.2f remaining=%.6f (%s)",
		pos.Side, strings.ToUpper(symbol), amount, price, realized, remaining, reason)
	return nil
}

// Manage runs the trailing-stop and partial-profit overlays against the
// latest price. ATR is the entry-time scale carried by the caller; when
// it is unusable the overlays stay dormant rather than firing on noise.
func (m *Manager) Manage(ctx context.Context, symbol string, price, atr float64, params ManageParams) error {
	if price <= 0 || atr <= 0 {
		return nil
	}
	lock := m.symbolLock(symbol)
	lock.Lock()
	defer lock.Unlock()

	pos, ok, err := m.store.GetPosition(ctx, m.strategyID, symbol)
	if err != nil {
		return err
	}
	if !ok || pos.Status != store.PositionStatusOpen || pos.Amount <= 0 {
		return nil
	}

	long := pos.Side == "long"
	profit := price - pos.EntryPrice
	if !long {
		profit = pos.EntryPrice - price
	}
	atrUnits := profit / atr

	// Second tier closes whatever is left.
	if pos.PartialTier < 2 && params.SecondPartialATRMultiple > 0 && atrUnits >= params.SecondPartialATRMultiple {
		return m.closeLocked(ctx, symbol, pos.Amount, price, "second profit tier", 2)
	}
	if pos.PartialTier < 1 && params.FirstPartialATRMultiple > 0 && atrUnits >= params.FirstPartialATRMultiple {
		portion := pos.Amount * params.FirstPartialFraction
		if err := m.closeLocked(ctx, symbol, portion, price, "first profit tier", 1); err != nil {
			return err
		}
		// Reload for the trailing pass below.
		pos, ok, err = m.store.GetPosition(ctx, m.strategyID, symbol)
		if err != nil || !ok || pos.Status != store.PositionStatusOpen {
			return err
		}
	}

	dirty := false
	if long && price > pos.PeakPrice {
		pos.PeakPrice = price
		dirty = true
	} else if !long && (pos.PeakPrice == 0 || price < pos.PeakPrice) {
		pos.PeakPrice = price
		dirty = true
	}

	if !pos.TrailingActive && params.ActivationATRMultiple > 0 && atrUnits >= params.ActivationATRMultiple {
		pos.TrailingActive = true
		pos.TrailingStop = trailLevel(long, price, atr, params.TrailATRMultiple)
		dirty = true
		logger.Infof("trailing stop armed for %s %s at %.4f", pos.Side, strings.ToUpper(symbol), pos.TrailingStop)
	} else if pos.TrailingActive {
		// The level only tightens as price makes new favorable extremes.
		candidate := trailLevel(long, pos.PeakPrice, atr, params.TrailATRMultiple)
		if long && candidate > pos.TrailingStop {
			pos.TrailingStop = candidate
			dirty = true
		} else if !long && candidate < pos.TrailingStop {
			pos.TrailingStop = candidate
			dirty = true
		}
	}

	if pos.TrailingActive && crossedTrail(long, price, pos.TrailingStop) {
		return m.closeLocked(ctx, symbol, pos.Amount, price, "trailing stop hit", pos.PartialTier)
	}

	if dirty {
		if err := m.store.UpsertPosition(ctx, pos); err != nil {
			return fmt.Errorf("persist trailing state: %w", err)
		}
	}
	return nil
}

// Reconcile replaces local open-position state with the venue's view.
// The exchange always wins: stale locals are deleted, unknown venue
// positions are adopted, and mismatched amounts or entries are
// overwritten.
func (m *Manager) Reconcile(ctx context.Context) error {
	exchangePositions, err := m.exchange.ListPositions(ctx)
	if err != nil {
		return fmt.Errorf("list exchange positions: %w", err)
	}
	local, err := m.store.ListOpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("list local positions: %w", err)
	}

	remote := make(map[string]pacifica.Position, len(exchangePositions))
	for _, p := range exchangePositions {
		if p.Amount > 0 {
			remote[strings.ToUpper(p.Symbol)] = p
		}
	}

	for _, loc := range local {
		sym := strings.ToUpper(loc.Symbol)
		rp, ok := remote[sym]
		if !ok {
			logger.Warnf("reconcile: %s open locally but absent on exchange, deleting local record", sym)
			if err := m.store.DeleteOpenPosition(ctx, m.strategyID, sym); err != nil {
				return err
			}
			continue
		}
		delete(remote, sym)
		if !almostEqual(loc.Amount, rp.Amount) || !almostEqual(loc.EntryPrice, rp.EntryPrice) || loc.Side != rp.Side {
			logger.Warnf("reconcile: %s diverged (local %.6f@%.4f %s, exchange %.6f@%.4f %s), exchange wins",
				sym, loc.Amount, loc.EntryPrice, loc.Side, rp.Amount, rp.EntryPrice, rp.Side)
			loc.Amount = rp.Amount
			loc.EntryPrice = rp.EntryPrice
			loc.Side = rp.Side
			if rp.Leverage > 0 {
				loc.Leverage = rp.Leverage
			}
			if err := m.store.UpsertPosition(ctx, loc); err != nil {
				return err
			}
		}
	}

	for sym, rp := range remote {
		logger.Warnf("reconcile: adopting unknown exchange position %s %s %.6f", sym, rp.Side, rp.Amount)
		if err := m.store.UpsertPosition(ctx, store.PositionRecord{
			StrategyID:    m.strategyID,
			Symbol:        sym,
			Side:          rp.Side,
			Amount:        rp.Amount,
			InitialAmount: rp.Amount,
			EntryPrice:    rp.EntryPrice,
			Leverage:      rp.Leverage,
			PeakPrice:     rp.EntryPrice,
			Status:        store.PositionStatusOpen,
			OpenedAt:      m.nowFn(),
		}); err != nil {
			return err
		}
	}
	return nil
}

// OpenPositions returns the local open book.
func (m *Manager) OpenPositions(ctx context.Context) ([]store.PositionRecord, error) {
	return m.store.ListOpenPositions(ctx)
}

func entrySide(kind strategy.SignalKind) string {
	switch kind {
	case strategy.SignalEnterLong:
		return pacifica.SideBid
	case strategy.SignalEnterShort:
		return pacifica.SideAsk
	default:
		return ""
	}
}

func positionSide(kind strategy.SignalKind) string {
	if kind == strategy.SignalEnterShort {
		return "short"
	}
	return "long"
}

func closeSide(positionSide string) string {
	if positionSide == "long" {
		return pacifica.SideAsk
	}
	return pacifica.SideBid
}

func realizedPnL(side string, entry, exit, amount float64) float64 {
	if side == "long" {
		return (exit - entry) * amount
	}
	return (entry - exit) * amount
}

func trailLevel(long bool, ref, atr, multiple float64) float64 {
	if multiple <= 0 {
		multiple = 1
	}
	if long {
		return ref - atr*multiple
	}
	return ref + atr*multiple
}

func crossedTrail(long bool, price, trail float64) bool {
	if trail <= 0 {
		return false
	}
	if long {
		return price <= trail
	}
	return price >= trail
}

func almostEqual(a, b float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff <= 1e-9
}
