// Package strategy implements the volume-weighted momentum strategy: entry
// on a momentum breakout confirmed by volume, exit on momentum reversal,
// with ATR-based protective levels computed at entry time.
package strategy

import (
	"fmt"

	"nexwave/internal/analysis/indicator"
	"nexwave/internal/market"
)

// PositionView is the slice of position state the strategy needs; the
// engine derives it from the position store.
type PositionView struct {
	Side   string // "long" or "short"
	Amount float64
}

// Input bundles one evaluation's inputs.
type Input struct {
	Symbol   string
	Candles  []market.Candle
	Price    float64
	Position *PositionView

	// PortfolioValue is the live value used for sizing, never a constant.
	PortfolioValue float64

	// InstrumentMaxLeverage is the per-symbol ceiling; the effective
	// leverage is min(this, Params.MaxLeverage).
	InstrumentMaxLeverage float64
}

// VWM evaluates one symbol per cycle. It is a pure function of its inputs.
type VWM struct {
	params Params
}

func NewVWM(params Params) *VWM {
	return &VWM{params: params}
}

func (s *VWM) Params() Params { return s.params }

// Evaluate emits at most one signal. Insufficient history yields a NONE
// signal, not an error; it is routine during warm-up.
func (s *VWM) Evaluate(in Input) Signal {
	if in.Price <= 0 {
		return None(in.Symbol, "no price")
	}
	m, err := indicator.Compute(in.Candles, s.params.Lookback)
	if err != nil {
		return None(in.Symbol, fmt.Sprintf("insufficient history (%d candles, need %d)", len(in.Candles), s.params.Lookback))
	}

	hasLong := in.Position != nil && in.Position.Side == "long" && in.Position.Amount > 0
	hasShort := in.Position != nil && in.Position.Side == "short" && in.Position.Amount > 0

	// Exit on momentum reversal. Exchange-side TP/SL stays attached from
	// entry; this path only covers the directional flip.
	if hasLong && m.VWM < -s.params.ExitThreshold {
		return Signal{
			Symbol: in.Symbol,
			Kind:   SignalCloseLong,
			Price:  in.Price,
			Amount: in.Position.Amount,
			Reason: fmt.Sprintf("momentum reversed: vwm=%.4f < -%.4f", m.VWM, s.params.ExitThreshold),
		}
	}
	if hasShort && m.VWM > s.params.ExitThreshold {
		return Signal{
			Symbol: in.Symbol,
			Kind:   SignalCloseShort,
			Price:  in.Price,
			Amount: in.Position.Amount,
			Reason: fmt.Sprintf("momentum reversed: vwm=%.4f > %.4f", m.VWM, s.params.ExitThreshold),
		}
	}
	if hasLong || hasShort {
		return None(in.Symbol, "position held, no reversal")
	}

	// Entry requires both the momentum breakout and volume confirmation.
	longSetup := m.VWM > s.params.MomentumThreshold
	shortSetup := m.VWM < -s.params.MomentumThreshold
	if !longSetup && !shortSetup {
		return None(in.Symbol, fmt.Sprintf("momentum below threshold: |%.4f| <= %.4f", m.VWM, s.params.MomentumThreshold))
	}
	if m.VolumeRatio < s.params.VolumeMultiplier {
		return None(in.Symbol, fmt.Sprintf("volume unconfirmed: ratio=%.2f < %.2f", m.VolumeRatio, s.params.VolumeMultiplier))
	}

	atr := s.usableATR(m.ATR, in.Price)
	amount, confidence := s.positionSize(m.VWM, in)
	if amount <= 0 {
		return None(in.Symbol, "sized to zero")
	}

	sig := Signal{
		Symbol:     in.Symbol,
		Price:      in.Price,
		Amount:     amount,
		Confidence: confidence,
	}
	if longSetup {
		sig.Kind = SignalEnterLong
		sig.StopLoss = in.Price - atr*s.params.StopLossATRMultiple
		sig.TakeProfit = s.takeProfit(in.Price, atr, true)
		sig.Reason = fmt.Sprintf("long breakout: vwm=%.4f ratio=%.2f", m.VWM, m.VolumeRatio)
	} else {
		sig.Kind = SignalEnterShort
		sig.StopLoss = in.Price + atr*s.params.StopLossATRMultiple
		sig.TakeProfit = s.takeProfit(in.Price, atr, false)
		sig.Reason = fmt.Sprintf("short breakdown: vwm=%.4f ratio=%.2f", m.VWM, m.VolumeRatio)
	}
	return sig
}

// usableATR substitutes the configured percentage of price when ATR is
// missing or degenerate, so stop placement never sees zero or NaN.
func (s *VWM) usableATR(atr, price float64) float64 {
	if atr > 0 && atr < price {
		return atr
	}
	return price * s.params.ATRFallbackPct
}
