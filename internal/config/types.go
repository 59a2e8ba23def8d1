package config

import (
	"strings"
	"time"

	"nexwave/internal/position"
	"nexwave/internal/risk"
	"nexwave/internal/strategy"
)

// Config is the top-level configuration carrier. A loaded Config is
// immutable; hot reloads produce a fresh snapshot consumed at the start
// of the next scan cycle.
type Config struct {
	App      AppConfig             `mapstructure:"app"`
	Market   MarketConfig          `mapstructure:"market"`
	Exchange ExchangeConfig        `mapstructure:"exchange"`
	Trading  TradingConfig         `mapstructure:"trading"`
	Strategy strategy.Params       `mapstructure:"strategy"`
	Risk     risk.Limits           `mapstructure:"risk"`
	Position position.ManageParams `mapstructure:"position"`
	Store    StoreConfig           `mapstructure:"store"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
	HTTPAddr string `mapstructure:"http_addr"`
	LogPath  string `mapstructure:"log_path"`
}

// MarketConfig points at the candle source used for analysis. Execution
// happens on the exchange configured in ExchangeConfig; the two venues
// are independent on purpose.
type MarketConfig struct {
	RESTBaseURL string      `mapstructure:"rest_base_url"`
	CandleLimit int         `mapstructure:"candle_limit"`
	Proxy       ProxyConfig `mapstructure:"proxy"`
}

type ProxyConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	RESTURL string `mapstructure:"rest_url"`
}

type ExchangeConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	PrivateKey string `mapstructure:"private_key"`

	TimeoutSeconds         int `mapstructure:"timeout_seconds"`
	MaxRetries             int `mapstructure:"max_retries"`
	BreakerThreshold       int `mapstructure:"breaker_threshold"`
	BreakerCooldownSeconds int `mapstructure:"breaker_cooldown_seconds"`
}

func (e ExchangeConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

func (e ExchangeConfig) BreakerCooldown() time.Duration {
	return time.Duration(e.BreakerCooldownSeconds) * time.Second
}

// TradingConfig controls the scan loop: which symbols, on what cadence,
// and with how much capital. The timeframe names the candle granularity
// fed to the strategy; the scan interval is how often symbols are swept.
type TradingConfig struct {
	StrategyID          string   `mapstructure:"strategy_id"`
	Symbols             []string `mapstructure:"symbols"`
	Timeframe           string   `mapstructure:"timeframe"`
	ScanIntervalSeconds int      `mapstructure:"scan_interval_seconds"`
	ScanOffsetSeconds   int      `mapstructure:"scan_offset_seconds"`
	MaxConcurrentScans  int      `mapstructure:"max_concurrent_scans"`
	InitialBalanceUSD   float64  `mapstructure:"initial_balance_usd"`
	PaperTrading        bool     `mapstructure:"paper_trading"`
}

func (t TradingConfig) SymbolsUpper() []string {
	out := make([]string, 0, len(t.Symbols))
	for _, sym := range t.Symbols {
		s := strings.ToUpper(strings.TrimSpace(sym))
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

type StoreConfig struct {
	DBPath        string `mapstructure:"db_path"`
	SignalLogPath string `mapstructure:"signal_log_path"`
}

// keySet tracks which field paths the config file set explicitly, so a
// deliberate zero survives the default pass.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault describes the default rule for a single field.
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
