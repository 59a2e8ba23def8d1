package config

import (
	"fmt"
	"strings"

	"nexwave/internal/scheduler"
)

func validate(c *Config) error {
	if err := c.Market.validate(); err != nil {
		return err
	}
	if err := c.Exchange.validate(); err != nil {
		return err
	}
	if err := c.Trading.validate(); err != nil {
		return err
	}
	if err := validateStrategy(c); err != nil {
		return err
	}
	if err := validateRisk(c); err != nil {
		return err
	}
	if err := validatePosition(c); err != nil {
		return err
	}
	return nil
}

func (m *MarketConfig) validate() error {
	if strings.TrimSpace(m.RESTBaseURL) == "" {
		return fmt.Errorf("market.rest_base_url cannot be empty")
	}
	if m.CandleLimit < 50 || m.CandleLimit > 1000 {
		return fmt.Errorf("market.candle_limit must be in [50,1000]")
	}
	if m.Proxy.Enabled && strings.TrimSpace(m.Proxy.RESTURL) == "" {
		return fmt.Errorf("market.proxy enabled but no rest_url")
	}
	return nil
}

func (e *ExchangeConfig) validate() error {
	if strings.TrimSpace(e.BaseURL) == "" {
		return fmt.Errorf("exchange.base_url cannot be empty")
	}
	if e.TimeoutSeconds <= 0 {
		return fmt.Errorf("exchange.timeout_seconds must be > 0")
	}
	return nil
}

func (t *TradingConfig) validate() error {
	if len(t.SymbolsUpper()) == 0 {
		return fmt.Errorf("trading.symbols requires at least one symbol")
	}
	if _, ok := scheduler.ParseIntervalDuration(t.Timeframe); !ok {
		return fmt.Errorf("trading.timeframe is not a valid interval: %s", t.Timeframe)
	}
	if t.InitialBalanceUSD <= 0 && !t.PaperTrading {
		return fmt.Errorf("trading.initial_balance_usd must be > 0 for live trading")
	}
	if t.ScanIntervalSeconds <= 0 {
		return fmt.Errorf("trading.scan_interval_seconds must be > 0")
	}
	if t.MaxConcurrentScans <= 0 {
		return fmt.Errorf("trading.max_concurrent_scans must be > 0")
	}
	return nil
}

func validateStrategy(c *Config) error {
	s := c.Strategy
	if s.Lookback < 2 {
		return fmt.Errorf("strategy.lookback must be >= 2")
	}
	if s.MomentumThreshold <= 0 {
		return fmt.Errorf("strategy.momentum_threshold must be > 0")
	}
	if s.ExitThreshold <= 0 || s.ExitThreshold >= s.MomentumThreshold {
		return fmt.Errorf("strategy.exit_threshold must be in (0, momentum_threshold)")
	}
	if s.BasePositionPct <= 0 || s.MaxPositionPct < s.BasePositionPct {
		return fmt.Errorf("strategy position pct range invalid: base=%.2f max=%.2f", s.BasePositionPct, s.MaxPositionPct)
	}
	if s.MaxLeverage <= 0 {
		return fmt.Errorf("strategy.max_leverage must be > 0")
	}
	return nil
}

func validateRisk(c *Config) error {
	r := c.Risk
	if r.MinOrderUSD <= 0 || r.MaxOrderUSD <= r.MinOrderUSD {
		return fmt.Errorf("risk order bounds invalid: min=%.2f max=%.2f", r.MinOrderUSD, r.MaxOrderUSD)
	}
	if r.DailyLossLimitPct <= 0 || r.DailyLossLimitPct > 100 {
		return fmt.Errorf("risk.daily_loss_limit_pct must be in (0,100]")
	}
	if r.MaxDirectionalRatio <= 0 || r.MaxDirectionalRatio > 1 {
		return fmt.Errorf("risk.max_directional_ratio must be in (0,1]")
	}
	if r.MaxLeverage <= 0 {
		return fmt.Errorf("risk.max_leverage must be > 0")
	}
	return nil
}

func validatePosition(c *Config) error {
	p := c.Position
	if p.FirstPartialFraction <= 0 || p.FirstPartialFraction >= 1 {
		return fmt.Errorf("position.first_partial_fraction must be in (0,1)")
	}
	if p.SecondPartialATRMultiple <= p.FirstPartialATRMultiple {
		return fmt.Errorf("position partial ladder must be increasing")
	}
	if p.TrailATRMultiple <= 0 || p.ActivationATRMultiple <= 0 {
		return fmt.Errorf("position trailing multiples must be > 0")
	}
	return nil
}
