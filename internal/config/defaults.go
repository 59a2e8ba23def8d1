package config

import (
	"strings"

	"nexwave/internal/position"
	"nexwave/internal/risk"
	"nexwave/internal/strategy"
)

const (
	defaultAppEnv      = "dev"
	defaultAppLogLevel = "info"
	defaultAppHTTPAddr = ":9992"
	defaultAppLogPath  = "/data/logs/nexwave.log"

	defaultMarketREST  = "https://fapi.binance.com"
	defaultCandleLimit = 100

	defaultExchangeBase        = "https://api.pacifica.fi/api/v1"
	defaultExchangeTimeout     = 30
	defaultExchangeRetries     = 3
	defaultBreakerThreshold    = 5
	defaultBreakerCooldownSecs = 30

	defaultStrategyID      = "vwm-live"
	defaultTimeframe       = "15m"
	defaultScanInterval    = 60
	defaultScanOffset      = 5
	defaultConcurrentScans = 4
	defaultInitialBalance  = 10000

	defaultDBPath        = "/data/db/nexwave.db"
	defaultSignalLogPath = "/data/db/signals.db"
)

// applyDefaults fills every unset field. Fields the file set explicitly,
// including explicit zeros, are left alone.
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.Exchange.applyDefaults(keys)
	c.Trading.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	applyStrategyDefaults(&c.Strategy, keys)
	applyRiskDefaults(&c.Risk, keys)
	applyPositionDefaults(&c.Position, keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
	)
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("market.rest_base_url", &m.RESTBaseURL, defaultMarketREST),
		fieldDefault{
			key:   "market.candle_limit",
			need:  func() bool { return m.CandleLimit <= 0 },
			apply: func() { m.CandleLimit = defaultCandleLimit },
		},
	)
	m.Proxy.RESTURL = strings.TrimSpace(m.Proxy.RESTURL)
}

func (e *ExchangeConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("exchange.base_url", &e.BaseURL, defaultExchangeBase),
		fieldDefault{
			key:   "exchange.timeout_seconds",
			need:  func() bool { return e.TimeoutSeconds <= 0 },
			apply: func() { e.TimeoutSeconds = defaultExchangeTimeout },
		},
		fieldDefault{
			key:   "exchange.max_retries",
			need:  func() bool { return e.MaxRetries <= 0 },
			apply: func() { e.MaxRetries = defaultExchangeRetries },
		},
		fieldDefault{
			key:   "exchange.breaker_threshold",
			need:  func() bool { return e.BreakerThreshold <= 0 },
			apply: func() { e.BreakerThreshold = defaultBreakerThreshold },
		},
		fieldDefault{
			key:   "exchange.breaker_cooldown_seconds",
			need:  func() bool { return e.BreakerCooldownSeconds <= 0 },
			apply: func() { e.BreakerCooldownSeconds = defaultBreakerCooldownSecs },
		},
	)
}

func (t *TradingConfig) applyDefaults(keys keySet) {
	if t == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("trading.strategy_id", &t.StrategyID, defaultStrategyID),
		stringFieldDefault("trading.timeframe", &t.Timeframe, defaultTimeframe),
		fieldDefault{
			key:   "trading.scan_interval_seconds",
			need:  func() bool { return t.ScanIntervalSeconds <= 0 },
			apply: func() { t.ScanIntervalSeconds = defaultScanInterval },
		},
		fieldDefault{
			key:   "trading.scan_offset_seconds",
			need:  func() bool { return t.ScanOffsetSeconds <= 0 },
			apply: func() { t.ScanOffsetSeconds = defaultScanOffset },
		},
		fieldDefault{
			key:   "trading.max_concurrent_scans",
			need:  func() bool { return t.MaxConcurrentScans <= 0 },
			apply: func() { t.MaxConcurrentScans = defaultConcurrentScans },
		},
		fieldDefault{
			key:   "trading.initial_balance_usd",
			need:  func() bool { return t.InitialBalanceUSD <= 0 },
			apply: func() { t.InitialBalanceUSD = defaultInitialBalance },
		},
	)
	if len(t.Symbols) == 0 {
		t.Symbols = []string{"BTC", "ETH", "SOL"}
	}
	t.Symbols = t.SymbolsUpper()
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.db_path", &s.DBPath, defaultDBPath),
		stringFieldDefault("store.signal_log_path", &s.SignalLogPath, defaultSignalLogPath),
	)
}

// Strategy, risk and position knobs default to the tuned production
// values; the file overrides them knob by knob.

func applyStrategyDefaults(p *strategy.Params, keys keySet) {
	def := strategy.DefaultParams()
	applyFieldDefaults(keys,
		intDefault("strategy.lookback", &p.Lookback, def.Lookback),
		floatDefault("strategy.momentum_threshold", &p.MomentumThreshold, def.MomentumThreshold),
		floatDefault("strategy.exit_threshold", &p.ExitThreshold, def.ExitThreshold),
		floatDefault("strategy.volume_multiplier", &p.VolumeMultiplier, def.VolumeMultiplier),
		floatDefault("strategy.momentum_reference", &p.MomentumReference, def.MomentumReference),
		floatDefault("strategy.base_position_pct", &p.BasePositionPct, def.BasePositionPct),
		floatDefault("strategy.max_position_pct", &p.MaxPositionPct, def.MaxPositionPct),
		floatDefault("strategy.max_leverage", &p.MaxLeverage, def.MaxLeverage),
		floatDefault("strategy.stop_loss_atr_multiple", &p.StopLossATRMultiple, def.StopLossATRMultiple),
		floatDefault("strategy.volatility_threshold", &p.VolatilityThreshold, def.VolatilityThreshold),
		floatDefault("strategy.take_profit_atr_multiple", &p.TakeProfitATRMultiple, def.TakeProfitATRMultiple),
		floatDefault("strategy.min_atr_multiple", &p.MinATRMultiple, def.MinATRMultiple),
		floatDefault("strategy.max_atr_multiple", &p.MaxATRMultiple, def.MaxATRMultiple),
		floatDefault("strategy.profit_target_pct", &p.ProfitTargetPct, def.ProfitTargetPct),
		floatDefault("strategy.min_profit_pct", &p.MinProfitPct, def.MinProfitPct),
		floatDefault("strategy.max_profit_pct", &p.MaxProfitPct, def.MaxProfitPct),
		floatDefault("strategy.atr_fallback_pct", &p.ATRFallbackPct, def.ATRFallbackPct),
	)
}

func applyRiskDefaults(l *risk.Limits, keys keySet) {
	def := risk.DefaultLimits()
	applyFieldDefaults(keys,
		floatDefault("risk.max_position_size_usd", &l.MaxPositionSizeUSD, def.MaxPositionSizeUSD),
		floatDefault("risk.max_leverage", &l.MaxLeverage, def.MaxLeverage),
		floatDefault("risk.daily_loss_limit_pct", &l.DailyLossLimitPct, def.DailyLossLimitPct),
		floatDefault("risk.min_order_usd", &l.MinOrderUSD, def.MinOrderUSD),
		floatDefault("risk.max_order_usd", &l.MaxOrderUSD, def.MaxOrderUSD),
		floatDefault("risk.min_profit_target_usd", &l.MinProfitTargetUSD, def.MinProfitTargetUSD),
		floatDefault("risk.taker_fee_rate", &l.TakerFeeRate, def.TakerFeeRate),
		floatDefault("risk.required_move_ceiling_pct", &l.RequiredMoveCeilingPct, def.RequiredMoveCeilingPct),
		intDefault("risk.trade_cooldown_seconds", &l.TradeCooldownSeconds, def.TradeCooldownSeconds),
		intDefault("risk.max_trades_per_symbol_per_day", &l.MaxTradesPerSymbolPerDay, def.MaxTradesPerSymbolPerDay),
		floatDefault("risk.max_directional_ratio", &l.MaxDirectionalRatio, def.MaxDirectionalRatio),
	)
	if !keys.isSet("risk.symbol_blacklist") && len(l.SymbolBlacklist) == 0 {
		l.SymbolBlacklist = def.SymbolBlacklist
	}
}

func applyPositionDefaults(p *position.ManageParams, keys keySet) {
	def := position.DefaultManageParams()
	applyFieldDefaults(keys,
		floatDefault("position.trailing_activation_atr_multiple", &p.ActivationATRMultiple, def.ActivationATRMultiple),
		floatDefault("position.trailing_atr_multiple", &p.TrailATRMultiple, def.TrailATRMultiple),
		floatDefault("position.first_partial_atr_multiple", &p.FirstPartialATRMultiple, def.FirstPartialATRMultiple),
		floatDefault("position.first_partial_fraction", &p.FirstPartialFraction, def.FirstPartialFraction),
		floatDefault("position.second_partial_atr_multiple", &p.SecondPartialATRMultiple, def.SecondPartialATRMultiple),
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func floatDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return target != nil && *target == 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return target != nil && *target == 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
