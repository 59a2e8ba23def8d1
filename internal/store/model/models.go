package model

import (
	"gorm.io/datatypes"
)

type PositionModel struct {
	ID             int64   `gorm:"column:id;primaryKey"`
	StrategyID     string  `gorm:"column:strategy_id;uniqueIndex:idx_position_key,priority:1"`
	Symbol         string  `gorm:"column:symbol;uniqueIndex:idx_position_key,priority:2"`
	Side           string  `gorm:"column:side"`
	Amount         float64 `gorm:"column:amount"`
	InitialAmount  float64 `gorm:"column:initial_amount"`
	EntryPrice     float64 `gorm:"column:entry_price"`
	Leverage       float64 `gorm:"column:leverage"`
	StopLoss       float64 `gorm:"column:stop_loss"`
	TakeProfit     float64 `gorm:"column:take_profit"`
	TrailingActive int     `gorm:"column:trailing_active"`
	TrailingStop   float64 `gorm:"column:trailing_stop"`
	PeakPrice      float64 `gorm:"column:peak_price"`
	PartialTier    int     `gorm:"column:partial_tier"`
	ClientOrderID  string  `gorm:"column:client_order_id"`
	Status         int     `gorm:"column:status;index"`
	OpenedAt       int64   `gorm:"column:opened_at"`
	ClosedAt       int64   `gorm:"column:closed_at"`
	CreatedAtUnix  int64   `gorm:"column:created_at"`
	UpdatedAtUnix  int64   `gorm:"column:updated_at"`
}

func (PositionModel) TableName() string { return "positions" }

type OrderModel struct {
	ID              int64          `gorm:"column:id;primaryKey"`
	ClientOrderID   string         `gorm:"column:client_order_id;uniqueIndex"`
	ExchangeOrderID string         `gorm:"column:exchange_order_id;index"`
	StrategyID      string         `gorm:"column:strategy_id"`
	Symbol          string         `gorm:"column:symbol;index"`
	Side            string         `gorm:"column:side"`
	Kind            string         `gorm:"column:kind"`
	Amount          float64        `gorm:"column:amount"`
	Price           float64        `gorm:"column:price"`
	ReduceOnly      int            `gorm:"column:reduce_only"`
	Status          int            `gorm:"column:status;index"`
	Metadata        datatypes.JSON `gorm:"column:metadata;type:TEXT"`
	CreatedAtUnix   int64          `gorm:"column:created_at"`
	UpdatedAtUnix   int64          `gorm:"column:updated_at"`
}

func (OrderModel) TableName() string { return "orders" }

type TradeHistoryModel struct {
	ID          int64  `gorm:"column:id;primaryKey"`
	Symbol      string `gorm:"column:symbol;uniqueIndex:idx_trade_day,priority:1"`
	Day         string `gorm:"column:day;uniqueIndex:idx_trade_day,priority:2"`
	TradeCount  int    `gorm:"column:trade_count"`
	LastTradeAt int64  `gorm:"column:last_trade_at"`
}

func (TradeHistoryModel) TableName() string { return "trade_history" }

type TradeLogModel struct {
	ID          int64   `gorm:"column:id;primaryKey"`
	StrategyID  string  `gorm:"column:strategy_id"`
	Symbol      string  `gorm:"column:symbol;index"`
	Side        string  `gorm:"column:side"`
	Amount      float64 `gorm:"column:amount"`
	EntryPrice  float64 `gorm:"column:entry_price"`
	ExitPrice   float64 `gorm:"column:exit_price"`
	RealizedPnL float64 `gorm:"column:realized_pnl"`
	Reason      string  `gorm:"column:reason"`
	ClosedAt    int64   `gorm:"column:closed_at;index"`
}

func (TradeLogModel) TableName() string { return "trade_logs" }
