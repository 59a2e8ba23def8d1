package market

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"
)

const maxHistoryLimit = 1500

// BinanceConfig controls the futures REST source.
type BinanceConfig struct {
	BaseURL     string
	QuoteAsset  string
	ProxyURL    string
	HTTPTimeout time.Duration
}

func (c BinanceConfig) withDefaults() BinanceConfig {
	if strings.TrimSpace(c.QuoteAsset) == "" {
		c.QuoteAsset = "USDT"
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	return c
}

// BinanceSource implements Provider on top of the go-binance futures SDK.
// Symbols are the bare base assets used everywhere else in the engine
// ("BTC", "ETH"); the quote asset is appended here.
type BinanceSource struct {
	cfg    BinanceConfig
	client *futures.Client
}

func NewBinanceSource(cfg BinanceConfig) *BinanceSource {
	final := cfg.withDefaults()
	client := futures.NewClient("", "")
	if url := strings.TrimSpace(final.BaseURL); url != "" {
		client.BaseURL = url
	}
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if raw := strings.TrimSpace(final.ProxyURL); raw != "" {
		if proxy, err := url.Parse(raw); err == nil {
			httpClient.Transport = &http.Transport{Proxy: http.ProxyURL(proxy)}
		}
	}
	client.HTTPClient = httpClient
	return &BinanceSource{cfg: final, client: client}
}

func (s *BinanceSource) Candles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	pair := s.pair(symbol)
	if pair == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	interval = strings.ToLower(strings.TrimSpace(interval))
	if interval == "" {
		return nil, fmt.Errorf("interval is required")
	}
	kls, err := s.client.NewKlinesService().Symbol(pair).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, Candle{
			OpenTime:  kl.OpenTime,
			CloseTime: kl.CloseTime,
			Open:      parseFloat(kl.Open),
			High:      parseFloat(kl.High),
			Low:       parseFloat(kl.Low),
			Close:     parseFloat(kl.Close),
			Volume:    parseFloat(kl.Volume),
		})
	}
	// Binance returns the still-forming bar last; the strategy only ever
	// sees closed candles.
	out = dropUnclosed(out, time.Now().UnixMilli())
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}

func (s *BinanceSource) LatestPrice(ctx context.Context, symbol string) (PriceQuote, error) {
	pair := s.pair(symbol)
	if pair == "" {
		return PriceQuote{}, fmt.Errorf("symbol is required")
	}
	prices, err := s.client.NewListPricesService().Symbol(pair).Do(ctx)
	if err != nil {
		return PriceQuote{}, err
	}
	if len(prices) == 0 || prices[0] == nil {
		return PriceQuote{}, ErrNoData
	}
	p := parseFloat(prices[0].Price)
	if p <= 0 {
		return PriceQuote{}, ErrNoData
	}
	return PriceQuote{Symbol: symbol, Price: p, UpdatedAt: time.Now()}, nil
}

func (s *BinanceSource) pair(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return ""
	}
	if strings.HasSuffix(symbol, s.cfg.QuoteAsset) {
		return symbol
	}
	return symbol + s.cfg.QuoteAsset
}

func dropUnclosed(candles []Candle, nowMillis int64) []Candle {
	for len(candles) > 0 {
		last := candles[len(candles)-1]
		if last.CloseTime <= nowMillis {
			break
		}
		candles = candles[:len(candles)-1]
	}
	return candles
}

func parseFloat(raw string) float64 {
	val, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return val
}
