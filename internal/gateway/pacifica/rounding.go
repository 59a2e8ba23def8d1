package pacifica

import (
	"github.com/shopspring/decimal"

	"nexwave/internal/logger"
)

// RoundToTick snaps a price to the nearest tick, half away from zero.
// Decimal arithmetic keeps 717.6186140714286 at tick 0.01 landing on
// 717.62 rather than a float artifact one tick off.
func RoundToTick(price float64, tick decimal.Decimal) float64 {
	if tick.Sign() <= 0 {
		return price
	}
	p := decimal.NewFromFloat(price)
	ticks := p.Div(tick).Round(0)
	f, _ := ticks.Mul(tick).Float64()
	return f
}

// FloorToLot truncates an amount down to a whole number of lots. Flooring
// never rounds an order above the size the caller can actually fund.
func FloorToLot(amount float64, lot decimal.Decimal) float64 {
	if lot.Sign() <= 0 {
		return amount
	}
	a := decimal.NewFromFloat(amount)
	lots := a.Div(lot).Floor()
	f, _ := lots.Mul(lot).Float64()
	return f
}

// ValidateTPSL rounds protective levels to tick and enforces their side
// relative to entry. A level that still sits on the wrong side after
// rounding is nudged one tick past entry; a level on the wrong side
// before rounding is dropped entirely (returned as zero) rather than
// submitted for the venue to reject.
func ValidateTPSL(symbol, side string, entry, stopLoss, takeProfit float64) (float64, float64) {
	if stopLoss <= 0 && takeProfit <= 0 {
		return 0, 0
	}
	tick := InstrumentFor(symbol).TickSize
	long := side == SideBid

	var sl, tp float64
	if stopLoss > 0 {
		if long && stopLoss >= entry || !long && stopLoss <= entry {
			logger.Warnf("%s: stop loss %.6f on wrong side of entry %.6f, dropping", symbol, stopLoss, entry)
		} else {
			sl = RoundToTick(stopLoss, tick)
			if long && sl >= entry {
				sl = RoundToTick(entry-tickFloat(tick), tick)
			} else if !long && sl <= entry {
				sl = RoundToTick(entry+tickFloat(tick), tick)
			}
		}
	}
	if takeProfit > 0 {
		if long && takeProfit <= entry || !long && takeProfit >= entry {
			logger.Warnf("%s: take profit %.6f on wrong side of entry %.6f, dropping", symbol, takeProfit, entry)
		} else {
			tp = RoundToTick(takeProfit, tick)
			if long && tp <= entry {
				tp = RoundToTick(entry+tickFloat(tick), tick)
			} else if !long && tp >= entry {
				tp = RoundToTick(entry-tickFloat(tick), tick)
			}
		}
	}
	return sl, tp
}

func tickFloat(tick decimal.Decimal) float64 {
	f, _ := tick.Float64()
	return f
}
