// Package indicator computes the momentum and volatility statistics the
// strategy consumes from a trailing candle window.
package indicator

import (
	"errors"
	"math"

	"github.com/markcheno/go-talib"

	"nexwave/internal/market"
)

// ErrInsufficientData is returned while the candle window is still shorter
// than the configured lookback. Frequent during warm-up; not a failure.
var ErrInsufficientData = errors.New("indicator: insufficient candle data")

const defaultATRPeriod = 14

// Metrics is the indicator snapshot for one symbol at one evaluation.
type Metrics struct {
	// VWM is the volume-weighted average of per-candle close-to-close
	// returns over the lookback window. A signed fraction: 0.003 = +0.3%.
	VWM float64

	// VolumeRatio is the latest candle's volume divided by the window's
	// average volume.
	VolumeRatio float64

	// ATR is the 14-period average true range. Zero when it cannot be
	// computed; callers must substitute a fallback before sizing stops.
	ATR float64

	LastClose float64
}

// Compute derives Metrics from the trailing window. The window must hold at
// least lookback candles, ordered oldest first.
func Compute(candles []market.Candle, lookback int) (Metrics, error) {
	if lookback <= 1 {
		lookback = 2
	}
	if len(candles) < lookback {
		return Metrics{}, ErrInsufficientData
	}
	window := candles[len(candles)-lookback:]

	var m Metrics
	m.LastClose = window[len(window)-1].Close
	m.VWM = volumeWeightedMomentum(window)
	m.VolumeRatio = volumeRatio(window)
	m.ATR = atr(candles)
	return m, nil
}

// volumeWeightedMomentum weights each candle's return by its volume so that
// moves on thin volume pull the reading less than moves backed by real
// participation. Falls back to the unweighted mean when the window carries
// no volume at all.
func volumeWeightedMomentum(window []market.Candle) float64 {
	var weighted, totalVolume, plain float64
	n := 0
	for i := 1; i < len(window); i++ {
		prev := window[i-1].Close
		if prev <= 0 {
			continue
		}
		ret := (window[i].Close - prev) / prev
		weighted += ret * window[i].Volume
		totalVolume += window[i].Volume
		plain += ret
		n++
	}
	if n == 0 {
		return 0
	}
	if totalVolume <= 0 {
		return plain / float64(n)
	}
	return weighted / totalVolume
}

func volumeRatio(window []market.Candle) float64 {
	var total float64
	for _, c := range window {
		total += c.Volume
	}
	avg := total / float64(len(window))
	if avg <= 0 {
		return 0
	}
	return window[len(window)-1].Volume / avg
}

// atr runs TALib over the full candle slice and returns the latest valid
// value. Needs defaultATRPeriod+1 candles; returns 0 otherwise.
func atr(candles []market.Candle) float64 {
	if len(candles) <= defaultATRPeriod {
		return 0
	}
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	closes := make([]float64, len(candles))
	for i, c := range candles {
		highs[i] = c.High
		lows[i] = c.Low
		closes[i] = c.Close
	}
	series := talib.Atr(highs, lows, closes, defaultATRPeriod)
	for i := len(series) - 1; i >= 0; i-- {
		v := series[i]
		if !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0 {
			return v
		}
	}
	return 0
}
