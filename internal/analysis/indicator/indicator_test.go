package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexwave/internal/market"
)

// steadyCandles builds n candles whose close grows by ret per bar.
func steadyCandles(n int, start, ret, volume float64) []market.Candle {
	out := make([]market.Candle, 0, n)
	price := start
	for i := 0; i < n; i++ {
		c := market.Candle{
			OpenTime:  int64(i) * 60_000,
			CloseTime: int64(i+1)*60_000 - 1,
			Open:      price,
			Close:     price * (1 + ret),
			Volume:    volume,
		}
		c.High = c.Close * 1.001
		c.Low = c.Open * 0.999
		out = append(out, c)
		price = c.Close
	}
	return out
}

func TestComputeInsufficientData(t *testing.T) {
	candles := steadyCandles(5, 100, 0.001, 10)
	_, err := Compute(candles, 12)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestVWMUniformReturns(t *testing.T) {
	// When every bar moves by the same fraction the volume weighting
	// cancels out and VWM equals that fraction.
	candles := steadyCandles(30, 100, 0.003, 10)
	m, err := Compute(candles, 12)
	require.NoError(t, err)
	assert.InDelta(t, 0.003, m.VWM, 1e-9)
}

func TestVWMVolumeWeighting(t *testing.T) {
	candles := steadyCandles(30, 100, 0.0, 10)
	// One high-volume up bar against many flat bars drags VWM positive.
	last := len(candles) - 1
	candles[last].Close = candles[last].Open * 1.01
	candles[last].High = candles[last].Close
	candles[last].Volume = 1000

	m, err := Compute(candles, 12)
	require.NoError(t, err)
	assert.Greater(t, m.VWM, 0.005, "high-volume bar should dominate")
}

func TestVolumeRatio(t *testing.T) {
	candles := steadyCandles(20, 100, 0.001, 10)
	candles[len(candles)-1].Volume = 30

	m, err := Compute(candles, 10)
	require.NoError(t, err)
	// window avg = (9*10 + 30)/10 = 12; ratio = 30/12
	assert.InDelta(t, 2.5, m.VolumeRatio, 1e-9)
}

func TestATRPositiveWithEnoughCandles(t *testing.T) {
	candles := steadyCandles(40, 100, 0.002, 10)
	m, err := Compute(candles, 12)
	require.NoError(t, err)
	assert.Greater(t, m.ATR, 0.0)
}

func TestATRZeroWithShortSeries(t *testing.T) {
	candles := steadyCandles(10, 100, 0.002, 10)
	m, err := Compute(candles, 5)
	require.NoError(t, err)
	assert.Zero(t, m.ATR)
}

func TestVWMZeroVolumeFallsBackToMean(t *testing.T) {
	candles := steadyCandles(20, 100, 0.002, 0)
	m, err := Compute(candles, 10)
	require.NoError(t, err)
	assert.InDelta(t, 0.002, m.VWM, 1e-9)
}
