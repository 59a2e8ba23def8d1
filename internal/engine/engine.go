// Package engine runs the trading loop: sense market data, evaluate the
// strategy per symbol, gate entries through risk, execute, and keep open
// positions managed and reconciled.
package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"nexwave/internal/analysis/indicator"
	"nexwave/internal/config"
	"nexwave/internal/gateway/pacifica"
	"nexwave/internal/logger"
	"nexwave/internal/market"
	"nexwave/internal/pkg/circuit"
	"nexwave/internal/position"
	"nexwave/internal/risk"
	"nexwave/internal/scheduler"
	"nexwave/internal/store"
	"nexwave/internal/store/signallog"
	"nexwave/internal/strategy"
)

// PriceMarker is implemented by venues that need the latest observed
// price pushed to them (the paper exchange). The live venue ignores it.
type PriceMarker interface {
	MarkPrice(symbol string, price float64)
}

type Params struct {
	StrategyID string
	Watcher    *config.Watcher
	Provider   market.Provider
	Exchange   position.Exchange
	Risk       *risk.Manager
	Positions  *position.Manager
	Store      store.Store
	Signals    *signallog.Store
}

// Engine wires the pipeline together. One Cycle call is one scan of
// every symbol; Run drives cycles on fixed-interval ticks.
type Engine struct {
	strategyID string

	watcher   *config.Watcher
	provider  market.Provider
	exchange  position.Exchange
	riskMgr   *risk.Manager
	positions *position.Manager
	store     store.Store
	signals   *signallog.Store
	breaker   *circuit.Breaker

	nowFn func() time.Time
}

func New(p Params) *Engine {
	return &Engine{
		strategyID: p.StrategyID,
		watcher:    p.Watcher,
		provider:   p.Provider,
		exchange:   p.Exchange,
		riskMgr:    p.Risk,
		positions:  p.Positions,
		store:      p.Store,
		signals:    p.Signals,
		breaker:    circuit.NewBreaker("engine", 5, 2*time.Minute),
		nowFn:      time.Now,
	}
}

// Run reconciles against the venue, hydrates risk counters, and then
// blocks driving cycles until the context is canceled. The scan interval
// is read once at startup; changing it requires a restart, everything
// else hot-reloads per cycle.
func (e *Engine) Run(ctx context.Context) error {
	cfg := e.watcher.Snapshot().Config

	if err := e.positions.Reconcile(ctx); err != nil {
		logger.Warnf("engine: startup reconcile failed: %v", err)
	}
	if err := e.riskMgr.Hydrate(ctx, cfg.Trading.SymbolsUpper()); err != nil {
		return fmt.Errorf("hydrate risk counters: %w", err)
	}

	interval := time.Duration(cfg.Trading.ScanIntervalSeconds) * time.Second
	offset := time.Duration(cfg.Trading.ScanOffsetSeconds) * time.Second

	sched := scheduler.NewAlignedScheduler(ctx, interval, offset)
	sched.Start(func() {
		if !e.breaker.Allow() {
			logger.Warnf("engine: circuit open, skipping cycle")
			return
		}
		if err := e.Cycle(ctx); err != nil {
			logger.Errorf("engine: cycle failed: %v", err)
			e.breaker.RecordFailure()
			return
		}
		e.breaker.RecordSuccess()
	})
	return ctx.Err()
}

// Cycle runs one full scan. Per-symbol failures are logged and isolated;
// only systemic failures (store, venue listing) fail the cycle.
func (e *Engine) Cycle(ctx context.Context) error {
	snap := e.watcher.Snapshot()
	cfg := snap.Config
	start := e.nowFn()

	view, prices, err := e.portfolioView(ctx, cfg)
	if err != nil {
		return fmt.Errorf("assemble portfolio view: %w", err)
	}

	symbols := e.cycleSymbols(ctx, cfg)
	logger.Infof("cycle start: config=v%d symbols=%d positions=%d value=%.2f",
		snap.Version, len(symbols), len(view.Positions), view.Value())

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(cfg.Trading.MaxConcurrentScans)
	for _, sym := range symbols {
		sym := sym
		group.Go(func() error {
			if err := e.scanSymbol(gctx, cfg, sym, view, prices[sym]); err != nil {
				logger.Errorf("scan %s failed: %v", sym, err)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	if err := e.positions.Reconcile(ctx); err != nil {
		logger.Warnf("engine: post-cycle reconcile failed: %v", err)
	}
	logger.Infof("cycle end: duration=%s", time.Since(start).Truncate(time.Millisecond))
	return nil
}

// cycleSymbols is the configured list plus any symbol with an open
// position, so adopted positions keep being managed even after they
// leave the config.
func (e *Engine) cycleSymbols(ctx context.Context, cfg *config.Config) []string {
	set := make(map[string]struct{})
	for _, sym := range cfg.Trading.SymbolsUpper() {
		set[sym] = struct{}{}
	}
	open, err := e.positions.OpenPositions(ctx)
	if err != nil {
		logger.Warnf("engine: list open positions: %v", err)
	}
	for _, pos := range open {
		set[strings.ToUpper(pos.Symbol)] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for sym := range set {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// portfolioView snapshots cash, open exposure, and today's realized PnL.
// Cash is the configured balance adjusted by realized results before
// today; Value() adds today's realized plus unrealized on top.
func (e *Engine) portfolioView(ctx context.Context, cfg *config.Config) (risk.PortfolioView, map[string]float64, error) {
	open, err := e.positions.OpenPositions(ctx)
	if err != nil {
		return risk.PortfolioView{}, nil, err
	}

	midnight := e.nowFn().UTC().Truncate(24 * time.Hour)
	realizedToday, err := e.store.RealizedPnLSince(ctx, midnight)
	if err != nil {
		return risk.PortfolioView{}, nil, err
	}
	realizedAll, err := e.store.RealizedPnLSince(ctx, time.Time{})
	if err != nil {
		return risk.PortfolioView{}, nil, err
	}

	prices := make(map[string]float64, len(open))
	exposures := make([]risk.PositionExposure, 0, len(open))
	for _, pos := range open {
		sym := strings.ToUpper(pos.Symbol)
		price := pos.EntryPrice
		if quote, err := e.provider.LatestPrice(ctx, sym); err == nil && quote.Price > 0 {
			price = quote.Price
		}
		prices[sym] = price

		upnl := (price - pos.EntryPrice) * pos.Amount
		if pos.Side == "short" {
			upnl = -upnl
		}
		exposures = append(exposures, risk.PositionExposure{
			Symbol:        sym,
			Side:          pos.Side,
			Amount:        pos.Amount,
			Price:         price,
			UnrealizedPnL: upnl,
		})
	}

	view := risk.PortfolioView{
		Cash:          cfg.Trading.InitialBalanceUSD + (realizedAll - realizedToday),
		Positions:     exposures,
		RealizedToday: realizedToday,
	}
	return view, prices, nil
}

func (e *Engine) scanSymbol(ctx context.Context, cfg *config.Config, symbol string, view risk.PortfolioView, knownPrice float64) error {
	candles, err := e.provider.Candles(ctx, symbol, cfg.Trading.Timeframe, cfg.Market.CandleLimit)
	if err != nil {
		if err == market.ErrNoData {
			logger.Debugf("scan %s: no candle data yet", symbol)
			return nil
		}
		return fmt.Errorf("fetch candles: %w", err)
	}

	price := knownPrice
	if quote, err := e.provider.LatestPrice(ctx, symbol); err == nil && quote.Price > 0 {
		price = quote.Price
	}
	if price <= 0 {
		logger.Debugf("scan %s: no price", symbol)
		return nil
	}
	if marker, ok := e.exchange.(PriceMarker); ok {
		marker.MarkPrice(symbol, price)
	}

	var posView *strategy.PositionView
	rec, exists, err := e.store.GetPosition(ctx, e.strategyID, symbol)
	if err != nil {
		return fmt.Errorf("load position: %w", err)
	}
	if exists && rec.Status == store.PositionStatusOpen && rec.Amount > 0 {
		posView = &strategy.PositionView{Side: rec.Side, Amount: rec.Amount}
	}

	inst := pacifica.InstrumentFor(symbol)
	vwm := strategy.NewVWM(cfg.Strategy)
	sig := vwm.Evaluate(strategy.Input{
		Symbol:                symbol,
		Candles:               candles,
		Price:                 price,
		Position:              posView,
		PortfolioValue:        view.Value(),
		InstrumentMaxLeverage: inst.MaxLeverage,
	})

	metrics, merr := indicator.Compute(candles, cfg.Strategy.Lookback)
	e.logSignal(ctx, sig, metrics, merr == nil)

	switch {
	case sig.Kind.IsExit():
		if err := e.positions.Close(ctx, symbol, sig.Amount, sig.Price, sig.Reason); err != nil {
			return fmt.Errorf("close position: %w", err)
		}
		e.riskMgr.RecordTrade(ctx, symbol)

	case sig.Kind.IsEntry():
		side := "long"
		if sig.Kind == strategy.SignalEnterShort {
			side = "short"
		}
		res := e.riskMgr.CheckOrder(cfg.Risk, risk.Proposal{
			Symbol: symbol,
			Side:   side,
			Amount: sig.Amount,
			Price:  sig.Price,
			Entry:  true,
		}, view)
		if !res.Approved {
			logger.Infof("risk rejected %s %s: %s", side, symbol, res.Reason)
			return nil
		}
		leverage := cfg.Strategy.MaxLeverage
		if inst.MaxLeverage > 0 && inst.MaxLeverage < leverage {
			leverage = inst.MaxLeverage
		}
		if _, err := e.positions.Open(ctx, sig, leverage); err != nil {
			return fmt.Errorf("open position: %w", err)
		}
		e.riskMgr.RecordTrade(ctx, symbol)
	}

	// Overlay management runs every scan, not just on signals.
	if posView != nil || sig.Kind.IsEntry() {
		atr := metrics.ATR
		if merr != nil || atr <= 0 || atr >= price {
			atr = price * cfg.Strategy.ATRFallbackPct
		}
		if err := e.positions.Manage(ctx, symbol, price, atr, cfg.Position); err != nil {
			return fmt.Errorf("manage position: %w", err)
		}
	}
	return nil
}

func (e *Engine) logSignal(ctx context.Context, sig strategy.Signal, metrics indicator.Metrics, haveMetrics bool) {
	if e.signals == nil {
		return
	}
	rec := signallog.Record{
		Timestamp:  e.nowFn().UnixMilli(),
		Symbol:     strings.ToUpper(sig.Symbol),
		Kind:       sig.Kind.String(),
		Price:      sig.Price,
		Amount:     sig.Amount,
		Confidence: sig.Confidence,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
		Reason:     sig.Reason,
	}
	if haveMetrics {
		rec.VWM = metrics.VWM
		rec.VolumeRatio = metrics.VolumeRatio
		rec.ATR = metrics.ATR
	}
	if err := e.signals.Append(ctx, rec); err != nil {
		logger.Warnf("append signal log for %s: %v", sig.Symbol, err)
	}
}
