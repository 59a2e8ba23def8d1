// Package performance aggregates closed-trade results into the summary
// stats served by the live API.
package performance

import (
	"context"
	"math"
	"time"

	"nexwave/internal/store"
)

// Report summarizes closed trades over a window.
type Report struct {
	Window       string  `json:"window"`
	TotalTrades  int     `json:"total_trades"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	WinRate      float64 `json:"win_rate"`
	TotalPnL     float64 `json:"total_pnl"`
	GrossProfit  float64 `json:"gross_profit"`
	GrossLoss    float64 `json:"gross_loss"`
	ProfitFactor float64 `json:"profit_factor"`
	AvgWin       float64 `json:"avg_win"`
	AvgLoss      float64 `json:"avg_loss"`
	LargestWin   float64 `json:"largest_win"`
	LargestLoss  float64 `json:"largest_loss"`

	BySymbol map[string]SymbolStats `json:"by_symbol"`
}

type SymbolStats struct {
	Trades int     `json:"trades"`
	Wins   int     `json:"wins"`
	PnL    float64 `json:"pnl"`
}

const maxTradesPerReport = 5000

// Tracker reads the trade log and computes reports on demand. It holds
// no state of its own, so reports always reflect the store.
type Tracker struct {
	store store.Store
}

func NewTracker(s store.Store) *Tracker {
	return &Tracker{store: s}
}

// Report aggregates all trades closed after since.
func (t *Tracker) Report(ctx context.Context, since time.Time, window string) (Report, error) {
	logs, err := t.store.ListTradeLogs(ctx, since, maxTradesPerReport)
	if err != nil {
		return Report{}, err
	}
	return Summarize(logs, window), nil
}

// Summarize folds a slice of closed trades into a Report. Zero-PnL
// trades count as losses; they paid fees without making anything.
func Summarize(logs []store.TradeLogRecord, window string) Report {
	rep := Report{
		Window:   window,
		BySymbol: make(map[string]SymbolStats),
	}
	for _, trade := range logs {
		rep.TotalTrades++
		rep.TotalPnL += trade.RealizedPnL

		sym := rep.BySymbol[trade.Symbol]
		sym.Trades++
		sym.PnL += trade.RealizedPnL

		if trade.RealizedPnL > 0 {
			rep.Wins++
			sym.Wins++
			rep.GrossProfit += trade.RealizedPnL
			if trade.RealizedPnL > rep.LargestWin {
				rep.LargestWin = trade.RealizedPnL
			}
		} else {
			rep.Losses++
			rep.GrossLoss += math.Abs(trade.RealizedPnL)
			if trade.RealizedPnL < rep.LargestLoss {
				rep.LargestLoss = trade.RealizedPnL
			}
		}
		rep.BySymbol[trade.Symbol] = sym
	}

	if rep.TotalTrades > 0 {
		rep.WinRate = float64(rep.Wins) / float64(rep.TotalTrades)
	}
	if rep.Wins > 0 {
		rep.AvgWin = rep.GrossProfit / float64(rep.Wins)
	}
	if rep.Losses > 0 {
		rep.AvgLoss = -rep.GrossLoss / float64(rep.Losses)
	}
	if rep.GrossLoss > 0 {
		rep.ProfitFactor = rep.GrossProfit / rep.GrossLoss
	} else if rep.GrossProfit > 0 {
		// No losing trades yet. Capped so the report stays JSON-encodable.
		rep.ProfitFactor = 999
	}
	return rep
}
