// Package store defines the persistence contract for positions, orders,
// per-symbol trade counters, and closed-trade logs.
package store

import (
	"context"
	"time"
)

type PositionStatus int

const (
	PositionStatusUnknown PositionStatus = 0
	PositionStatusOpen    PositionStatus = 1
	PositionStatusClosed  PositionStatus = 2
)

type OrderStatus int

const (
	OrderStatusUnknown   OrderStatus = 0
	OrderStatusSubmitted OrderStatus = 1
	OrderStatusFilled    OrderStatus = 2
	OrderStatusCanceled  OrderStatus = 3
	OrderStatusRejected  OrderStatus = 4
)

// PositionRecord is the local view of one open or closed position. The
// trailing and partial fields belong to local management state and are
// never reported by the venue.
type PositionRecord struct {
	ID         int64
	StrategyID string
	Symbol     string
	Side       string // "long" or "short"
	Amount     float64
	// InitialAmount is the size at entry, before partial closes.
	InitialAmount float64
	EntryPrice    float64
	Leverage      float64
	StopLoss      float64
	TakeProfit    float64

	TrailingActive bool
	TrailingStop   float64
	// PeakPrice is the best price seen since entry in the profitable
	// direction (highest for longs, lowest for shorts).
	PeakPrice float64
	// PartialTier counts profit tiers already harvested.
	PartialTier int

	ClientOrderID string
	Status        PositionStatus
	OpenedAt      time.Time
	ClosedAt      time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OrderRecord is the local audit row for every order submitted.
type OrderRecord struct {
	ID              int64
	ClientOrderID   string
	ExchangeOrderID string
	StrategyID      string
	Symbol          string
	Side            string
	Kind            string // "market" or "limit"
	Amount          float64
	Price           float64
	ReduceOnly      bool
	Status          OrderStatus
	Metadata        map[string]any
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TradeStat is the per-symbol, per-day trade counter the risk gate
// consults for frequency limits. Day is a UTC date in YYYY-MM-DD form.
type TradeStat struct {
	Symbol      string
	Day         string
	TradeCount  int
	LastTradeAt time.Time
}

// TradeLogRecord captures one closed trade's result.
type TradeLogRecord struct {
	ID          int64
	StrategyID  string
	Symbol      string
	Side        string
	Amount      float64
	EntryPrice  float64
	ExitPrice   float64
	RealizedPnL float64
	Reason      string
	ClosedAt    time.Time
}

// Store is implemented by gormstore. All methods are safe for concurrent
// use.
type Store interface {
	UpsertPosition(ctx context.Context, rec PositionRecord) error
	GetPosition(ctx context.Context, strategyID, symbol string) (PositionRecord, bool, error)
	ListOpenPositions(ctx context.Context) ([]PositionRecord, error)
	ClosePosition(ctx context.Context, strategyID, symbol string, closedAt time.Time) error
	DeleteOpenPosition(ctx context.Context, strategyID, symbol string) error

	InsertOrder(ctx context.Context, rec OrderRecord) error
	UpdateOrderStatus(ctx context.Context, clientOrderID string, status OrderStatus, exchangeOrderID string) error
	ListRecentOrders(ctx context.Context, symbol string, limit int) ([]OrderRecord, error)

	RecordTrade(ctx context.Context, symbol string, at time.Time) error
	GetTradeStat(ctx context.Context, symbol string, day string) (TradeStat, bool, error)

	AppendTradeLog(ctx context.Context, rec TradeLogRecord) error
	ListTradeLogs(ctx context.Context, since time.Time, limit int) ([]TradeLogRecord, error)
	RealizedPnLSince(ctx context.Context, since time.Time) (float64, error)

	Close() error
}
