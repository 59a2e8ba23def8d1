package strategy

// Params are the tunable thresholds for one VWM strategy instance. They are
// carried inside the config snapshot and hot-swapped between cycles, never
// mutated in place.
type Params struct {
	Lookback          int     `mapstructure:"lookback" json:"lookback"`
	MomentumThreshold float64 `mapstructure:"momentum_threshold" json:"momentum_threshold"`
	ExitThreshold     float64 `mapstructure:"exit_threshold" json:"exit_threshold"`
	VolumeMultiplier  float64 `mapstructure:"volume_multiplier" json:"volume_multiplier"`

	// MomentumReference is the VWM magnitude treated as full strength when
	// scaling position size between BasePositionPct and MaxPositionPct.
	MomentumReference float64 `mapstructure:"momentum_reference" json:"momentum_reference"`

	BasePositionPct float64 `mapstructure:"base_position_pct" json:"base_position_pct"`
	MaxPositionPct  float64 `mapstructure:"max_position_pct" json:"max_position_pct"`
	MaxLeverage     float64 `mapstructure:"max_leverage" json:"max_leverage"`

	StopLossATRMultiple float64 `mapstructure:"stop_loss_atr_multiple" json:"stop_loss_atr_multiple"`

	// Take-profit: ATR-multiple mode above VolatilityThreshold, clamped
	// percent mode below it.
	VolatilityThreshold   float64 `mapstructure:"volatility_threshold" json:"volatility_threshold"`
	TakeProfitATRMultiple float64 `mapstructure:"take_profit_atr_multiple" json:"take_profit_atr_multiple"`
	MinATRMultiple        float64 `mapstructure:"min_atr_multiple" json:"min_atr_multiple"`
	MaxATRMultiple        float64 `mapstructure:"max_atr_multiple" json:"max_atr_multiple"`
	ProfitTargetPct       float64 `mapstructure:"profit_target_pct" json:"profit_target_pct"`
	MinProfitPct          float64 `mapstructure:"min_profit_pct" json:"min_profit_pct"`
	MaxProfitPct          float64 `mapstructure:"max_profit_pct" json:"max_profit_pct"`

	// ATRFallbackPct replaces an unusable ATR, as a fraction of price.
	ATRFallbackPct float64 `mapstructure:"atr_fallback_pct" json:"atr_fallback_pct"`
}

// DefaultParams mirrors the tuned production defaults.
func DefaultParams() Params {
	return Params{
		Lookback:              20,
		MomentumThreshold:     0.002,
		ExitThreshold:         0.001,
		VolumeMultiplier:      1.5,
		MomentumReference:     0.01,
		BasePositionPct:       5.0,
		MaxPositionPct:        15.0,
		MaxLeverage:           5.0,
		StopLossATRMultiple:   2.0,
		VolatilityThreshold:   0.02,
		TakeProfitATRMultiple: 2.5,
		MinATRMultiple:        1.5,
		MaxATRMultiple:        4.0,
		ProfitTargetPct:       0.015,
		MinProfitPct:          0.008,
		MaxProfitPct:          0.03,
		ATRFallbackPct:        0.02,
	}
}
