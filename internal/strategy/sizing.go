package strategy

import "math"

// positionSize scales the portfolio fraction between base and max by
// momentum strength, applies leverage, and converts to a base amount.
// Returns (amount, strength); strength doubles as the signal confidence.
func (s *VWM) positionSize(vwm float64, in Input) (float64, float64) {
	if in.PortfolioValue <= 0 || in.Price <= 0 {
		return 0, 0
	}
	strength := 0.0
	if s.params.MomentumReference > 0 {
		strength = math.Abs(vwm) / s.params.MomentumReference
	}
	strength = clamp(strength, 0, 1)

	pct := s.params.BasePositionPct + (s.params.MaxPositionPct-s.params.BasePositionPct)*strength
	leverage := s.params.MaxLeverage
	if in.InstrumentMaxLeverage > 0 && in.InstrumentMaxLeverage < leverage {
		leverage = in.InstrumentMaxLeverage
	}
	if leverage <= 0 {
		leverage = 1
	}
	positionValue := in.PortfolioValue * (pct / 100.0) * leverage
	return positionValue / in.Price, strength
}

// takeProfit picks between the ATR-multiple target on volatile instruments
// and a clamped percentage target on calm ones. A flat 1.5% target is far
// too wide for a stablecoin-adjacent pair and far too tight for a meme
// perp; the split keeps targets reachable on both.
func (s *VWM) takeProfit(entry, atr float64, long bool) float64 {
	atrPct := atr / entry
	var offset float64
	if atrPct > s.params.VolatilityThreshold {
		multiple := clamp(s.params.TakeProfitATRMultiple, s.params.MinATRMultiple, s.params.MaxATRMultiple)
		offset = atr * multiple
	} else {
		pct := clamp(s.params.ProfitTargetPct, s.params.MinProfitPct, s.params.MaxProfitPct)
		offset = entry * pct
	}
	if long {
		return entry + offset
	}
	return entry - offset
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
