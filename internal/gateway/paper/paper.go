// Package paper simulates the execution venue in memory so the full
// decision pipeline can run without capital at stake. Fills are instant
// and slippage-free; everything else behaves like the live venue.
package paper

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"nexwave/internal/gateway/pacifica"
	"nexwave/internal/logger"
)

type paperPosition struct {
	symbol     string
	side       string // "long" or "short"
	amount     float64
	entryPrice float64
	stopLoss   float64
	takeProfit float64
}

// Exchange is an in-memory venue. It fills market orders at the caller's
// reference price and keeps a position book for reconciliation.
type Exchange struct {
	mu        sync.Mutex
	positions map[string]*paperPosition
	lastPrice map[string]float64
}

func NewExchange() *Exchange {
	return &Exchange{
		positions: make(map[string]*paperPosition),
		lastPrice: make(map[string]float64),
	}
}

// MarkPrice records the latest observed price for a symbol. The engine
// feeds these each cycle; fills and unrealized PnL use them.
func (e *Exchange) MarkPrice(symbol string, price float64) {
	if price <= 0 {
		return
	}
	e.mu.Lock()
	e.lastPrice[strings.ToUpper(symbol)] = price
	e.mu.Unlock()
}

func (e *Exchange) CreateMarketOrder(ctx context.Context, req pacifica.MarketOrderRequest) (pacifica.OrderAck, error) {
	sym := strings.ToUpper(req.Symbol)
	if req.Amount <= 0 {
		return pacifica.OrderAck{}, fmt.Errorf("paper: amount must be > 0")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	price := req.EntryPrice
	if price <= 0 {
		price = e.lastPrice[sym]
	}
	if price <= 0 {
		return pacifica.OrderAck{}, fmt.Errorf("paper: no price for %s", sym)
	}

	ack := pacifica.OrderAck{
		OrderID:       uuid.NewString(),
		ClientOrderID: req.ClientOrderID,
	}

	if req.ReduceOnly {
		pos, ok := e.positions[sym]
		if !ok {
			return pacifica.OrderAck{}, fmt.Errorf("paper: no %s position to reduce", sym)
		}
		amount := req.Amount
		if amount >= pos.amount {
			delete(e.positions, sym)
		} else {
			pos.amount -= amount
		}
		logger.Debugf("paper: reduced %s by %.6f @ %.4f", sym, amount, price)
		return ack, nil
	}

	side := "long"
	if req.Side == pacifica.SideAsk {
		side = "short"
	}
	if existing, ok := e.positions[sym]; ok && existing.side != side {
		return pacifica.OrderAck{}, fmt.Errorf("paper: %s already open on the other side", sym)
	}
	pos, ok := e.positions[sym]
	if !ok {
		pos = &paperPosition{symbol: sym, side: side}
		e.positions[sym] = pos
	}
	// Weighted average entry on stacking.
	total := pos.amount + req.Amount
	pos.entryPrice = (pos.entryPrice*pos.amount + price*req.Amount) / total
	pos.amount = total
	if req.StopLoss > 0 {
		pos.stopLoss = req.StopLoss
	}
	if req.TakeProfit > 0 {
		pos.takeProfit = req.TakeProfit
	}
	logger.Debugf("paper: opened %s %s %.6f @ %.4f", side, sym, req.Amount, price)
	return ack, nil
}

func (e *Exchange) SetPositionTPSL(ctx context.Context, symbol, side string, stopLoss, takeProfit float64) error {
	sym := strings.ToUpper(symbol)
	e.mu.Lock()
	defer e.mu.Unlock()
	pos, ok := e.positions[sym]
	if !ok {
		return fmt.Errorf("paper: no %s position", sym)
	}
	if stopLoss > 0 {
		pos.stopLoss = stopLoss
	}
	if takeProfit > 0 {
		pos.takeProfit = takeProfit
	}
	return nil
}

func (e *Exchange) ListPositions(ctx context.Context) ([]pacifica.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]pacifica.Position, 0, len(e.positions))
	for _, pos := range e.positions {
		mark := e.lastPrice[pos.symbol]
		if mark <= 0 {
			mark = pos.entryPrice
		}
		upnl := (mark - pos.entryPrice) * pos.amount
		if pos.side == "short" {
			upnl = -upnl
		}
		out = append(out, pacifica.Position{
			Symbol:        pos.symbol,
			Side:          pos.side,
			Amount:        pos.amount,
			EntryPrice:    pos.entryPrice,
			MarkPrice:     mark,
			UnrealizedPnL: upnl,
		})
	}
	return out, nil
}
