package market

import (
	"context"
	"errors"
)

// ErrNoData signals that the data layer has nothing (yet) for a symbol.
// It is a normal condition during warm-up, not a failure.
var ErrNoData = errors.New("market: no data available")

// Provider is the read boundary to the market-data layer. Implementations
// return candles ordered by open time ascending, newest last. Both methods
// may return ErrNoData while history is still being collected.
type Provider interface {
	Candles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)

	LatestPrice(ctx context.Context, symbol string) (PriceQuote, error)
}
