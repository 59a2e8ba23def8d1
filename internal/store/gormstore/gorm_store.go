// Package gormstore backs the store contract with Gorm + SQLite.
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"nexwave/internal/store"
	storemodel "nexwave/internal/store/model"
)

type positionModel = storemodel.PositionModel
type orderModel = storemodel.OrderModel
type tradeHistoryModel = storemodel.TradeHistoryModel
type tradeLogModel = storemodel.TradeLogModel

type GormStore struct {
	db *gorm.DB
}

var _ store.Store = (*GormStore)(nil)

// New opens (or creates) the SQLite database at path and migrates the
// schema. WAL keeps readers from blocking the trading loop's writes.
func New(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: database path required")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: dsn}), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(
		&positionModel{},
		&orderModel{},
		&tradeHistoryModel{},
		&tradeLogModel{},
	); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: a little parallelism for HTTP reads, low lock contention.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// --------------------------- Positions ------------------------------------

func (s *GormStore) UpsertPosition(ctx context.Context, rec store.PositionRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store not initialized")
	}
	if rec.StrategyID == "" || rec.Symbol == "" {
		return fmt.Errorf("position requires strategy_id and symbol")
	}
	m := newPositionModel(rec)
	cols := []string{
		"side", "amount", "initial_amount", "entry_price", "leverage",
		"stop_loss", "take_profit", "trailing_active", "trailing_stop",
		"peak_price", "partial_tier", "client_order_id", "status",
		"opened_at", "closed_at", "updated_at",
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "strategy_id"}, {Name: "symbol"}},
			DoUpdates: clause.AssignmentColumns(cols),
		}).
		Create(&m).Error
}

func (s *GormStore) GetPosition(ctx context.Context, strategyID, symbol string) (store.PositionRecord, bool, error) {
	if s == nil || s.db == nil {
		return store.PositionRecord{}, false, fmt.Errorf("gorm store not initialized")
	}
	var m positionModel
	err := s.db.WithContext(ctx).
		Where("strategy_id = ? AND symbol = ?", strategyID, strings.ToUpper(symbol)).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return store.PositionRecord{}, false, nil
		}
		return store.PositionRecord{}, false, err
	}
	return positionModelToRecord(m), true, nil
}

func (s *GormStore) ListOpenPositions(ctx context.Context) ([]store.PositionRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	var models []positionModel
	if err := s.db.WithContext(ctx).
		Where("status = ?", int(store.PositionStatusOpen)).
		Order("opened_at ASC, id ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]store.PositionRecord, 0, len(models))
	for _, m := range models {
		out = append(out, positionModelToRecord(m))
	}
	return out, nil
}

func (s *GormStore) ClosePosition(ctx context.Context, strategyID, symbol string, closedAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store not initialized")
	}
	res := s.db.WithContext(ctx).Model(&positionModel{}).
		Where("strategy_id = ? AND symbol = ? AND status = ?", strategyID, strings.ToUpper(symbol), int(store.PositionStatusOpen)).
		Updates(map[string]interface{}{
			"status":     int(store.PositionStatusClosed),
			"amount":     0,
			"closed_at":  closedAt.UnixMilli(),
			"updated_at": time.Now().UnixMilli(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteOpenPosition removes a local row that the venue no longer knows
// about. Reconciliation uses this when the exchange view wins.
func (s *GormStore) DeleteOpenPosition(ctx context.Context, strategyID, symbol string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store not initialized")
	}
	return s.db.WithContext(ctx).
		Where("strategy_id = ? AND symbol = ? AND status = ?", strategyID, strings.ToUpper(symbol), int(store.PositionStatusOpen)).
		Delete(&positionModel{}).Error
}

// ----------------------------- Orders -------------------------------------

func (s *GormStore) InsertOrder(ctx context.Context, rec store.OrderRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store not initialized")
	}
	if rec.ClientOrderID == "" {
		return fmt.Errorf("order requires client_order_id")
	}
	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	metaBytes, _ := json.Marshal(rec.Metadata)
	m := orderModel{
		ClientOrderID:   rec.ClientOrderID,
		ExchangeOrderID: rec.ExchangeOrderID,
		StrategyID:      rec.StrategyID,
		Symbol:          strings.ToUpper(strings.TrimSpace(rec.Symbol)),
		Side:            strings.ToLower(strings.TrimSpace(rec.Side)),
		Kind:            rec.Kind,
		Amount:          rec.Amount,
		Price:           rec.Price,
		ReduceOnly:      boolToInt(rec.ReduceOnly),
		Status:          int(rec.Status),
		Metadata:        datatypes.JSON(metaBytes),
		CreatedAtUnix:   rec.CreatedAt.UnixMilli(),
		UpdatedAtUnix:   now.UnixMilli(),
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

func (s *GormStore) UpdateOrderStatus(ctx context.Context, clientOrderID string, status store.OrderStatus, exchangeOrderID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store not initialized")
	}
	updates := map[string]interface{}{
		"status":     int(status),
		"updated_at": time.Now().UnixMilli(),
	}
	if exchangeOrderID != "" {
		updates["exchange_order_id"] = exchangeOrderID
	}
	res := s.db.WithContext(ctx).Model(&orderModel{}).
		Where("client_order_id = ?", clientOrderID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *GormStore) ListRecentOrders(ctx context.Context, symbol string, limit int) ([]store.OrderRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := s.db.WithContext(ctx).Model(&orderModel{})
	if sym := strings.ToUpper(strings.TrimSpace(symbol)); sym != "" {
		query = query.Where("symbol = ?", sym)
	}
	var models []orderModel
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]store.OrderRecord, 0, len(models))
	for _, m := range models {
		out = append(out, orderModelToRecord(m))
	}
	return out, nil
}

// --------------------------- Trade counters --------------------------------

func (s *GormStore) RecordTrade(ctx context.Context, symbol string, at time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store not initialized")
	}
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	day := at.UTC().Format("2006-01-02")
	m := tradeHistoryModel{
		Symbol:      sym,
		Day:         day,
		TradeCount:  1,
		LastTradeAt: at.UnixMilli(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "symbol"}, {Name: "day"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"trade_count":   gorm.Expr("trade_history.trade_count + 1"),
				"last_trade_at": at.UnixMilli(),
			}),
		}).
		Create(&m).Error
}

func (s *GormStore) GetTradeStat(ctx context.Context, symbol string, day string) (store.TradeStat, bool, error) {
	if s == nil || s.db == nil {
		return store.TradeStat{}, false, fmt.Errorf("gorm store not initialized")
	}
	var m tradeHistoryModel
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND day = ?", strings.ToUpper(symbol), day).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return store.TradeStat{}, false, nil
		}
		return store.TradeStat{}, false, err
	}
	return store.TradeStat{
		Symbol:      m.Symbol,
		Day:         m.Day,
		TradeCount:  m.TradeCount,
		LastTradeAt: time.UnixMilli(m.LastTradeAt),
	}, true, nil
}

// ----------------------------- Trade logs ----------------------------------

func (s *GormStore) AppendTradeLog(ctx context.Context, rec store.TradeLogRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store not initialized")
	}
	if rec.ClosedAt.IsZero() {
		rec.ClosedAt = time.Now()
	}
	m := tradeLogModel{
		StrategyID:  rec.StrategyID,
		Symbol:      strings.ToUpper(strings.TrimSpace(rec.Symbol)),
		Side:        strings.ToLower(strings.TrimSpace(rec.Side)),
		Amount:      rec.Amount,
		EntryPrice:  rec.EntryPrice,
		ExitPrice:   rec.ExitPrice,
		RealizedPnL: rec.RealizedPnL,
		Reason:      rec.Reason,
		ClosedAt:    rec.ClosedAt.UnixMilli(),
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

func (s *GormStore) ListTradeLogs(ctx context.Context, since time.Time, limit int) ([]store.TradeLogRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	if limit <= 0 || limit > 1000 {
		limit = 500
	}
	query := s.db.WithContext(ctx).Model(&tradeLogModel{})
	if !since.IsZero() {
		query = query.Where("closed_at >= ?", since.UnixMilli())
	}
	var models []tradeLogModel
	if err := query.Order("closed_at DESC, id DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]store.TradeLogRecord, 0, len(models))
	for _, m := range models {
		out = append(out, store.TradeLogRecord{
			ID:          m.ID,
			StrategyID:  m.StrategyID,
			Symbol:      m.Symbol,
			Side:        m.Side,
			Amount:      m.Amount,
			EntryPrice:  m.EntryPrice,
			ExitPrice:   m.ExitPrice,
			RealizedPnL: m.RealizedPnL,
			Reason:      m.Reason,
			ClosedAt:    time.UnixMilli(m.ClosedAt),
		})
	}
	return out, nil
}

// RealizedPnLSince sums closed-trade results from since onward. The daily
// loss breaker calls it with the UTC midnight boundary.
func (s *GormStore) RealizedPnLSince(ctx context.Context, since time.Time) (float64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("gorm store not initialized")
	}
	var total float64
	err := s.db.WithContext(ctx).Model(&tradeLogModel{}).
		Where("closed_at >= ?", since.UnixMilli()).
		Select("COALESCE(SUM(realized_pnl), 0)").
		Scan(&total).Error
	return total, err
}

// --------------------------- Model helpers ---------------------------------

func newPositionModel(rec store.PositionRecord) positionModel {
	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.OpenedAt.IsZero() {
		rec.OpenedAt = rec.CreatedAt
	}
	if rec.Status == store.PositionStatusUnknown {
		rec.Status = store.PositionStatusOpen
	}
	return positionModel{
		StrategyID:     rec.StrategyID,
		Symbol:         strings.ToUpper(strings.TrimSpace(rec.Symbol)),
		Side:           strings.ToLower(strings.TrimSpace(rec.Side)),
		Amount:         rec.Amount,
		InitialAmount:  rec.InitialAmount,
		EntryPrice:     rec.EntryPrice,
		Leverage:       rec.Leverage,
		StopLoss:       rec.StopLoss,
		TakeProfit:     rec.TakeProfit,
		TrailingActive: boolToInt(rec.TrailingActive),
		TrailingStop:   rec.TrailingStop,
		PeakPrice:      rec.PeakPrice,
		PartialTier:    rec.PartialTier,
		ClientOrderID:  rec.ClientOrderID,
		Status:         int(rec.Status),
		OpenedAt:       rec.OpenedAt.UnixMilli(),
		ClosedAt:       timeToMillis(rec.ClosedAt),
		CreatedAtUnix:  rec.CreatedAt.UnixMilli(),
		UpdatedAtUnix:  now.UnixMilli(),
	}
}

func positionModelToRecord(m positionModel) store.PositionRecord {
	return store.PositionRecord{
		ID:             m.ID,
		StrategyID:     m.StrategyID,
		Symbol:         m.Symbol,
		Side:           m.Side,
		Amount:         m.Amount,
		InitialAmount:  m.InitialAmount,
		EntryPrice:     m.EntryPrice,
		Leverage:       m.Leverage,
		StopLoss:       m.StopLoss,
		TakeProfit:     m.TakeProfit,
		TrailingActive: m.TrailingActive != 0,
		TrailingStop:   m.TrailingStop,
		PeakPrice:      m.PeakPrice,
		PartialTier:    m.PartialTier,
		ClientOrderID:  m.ClientOrderID,
		Status:         store.PositionStatus(m.Status),
		OpenedAt:       millisToTime(m.OpenedAt),
		ClosedAt:       millisToTime(m.ClosedAt),
		CreatedAt:      millisToTime(m.CreatedAtUnix),
		UpdatedAt:      millisToTime(m.UpdatedAtUnix),
	}
}

func orderModelToRecord(m orderModel) store.OrderRecord {
	var meta map[string]any
	if len(m.Metadata) > 0 {
		_ = json.Unmarshal(m.Metadata, &meta)
	}
	return store.OrderRecord{
		ID:              m.ID,
		ClientOrderID:   m.ClientOrderID,
		ExchangeOrderID: m.ExchangeOrderID,
		StrategyID:      m.StrategyID,
		Symbol:          m.Symbol,
		Side:            m.Side,
		Kind:            m.Kind,
		Amount:          m.Amount,
		Price:           m.Price,
		ReduceOnly:      m.ReduceOnly != 0,
		Status:          store.OrderStatus(m.Status),
		Metadata:        meta,
		CreatedAt:       millisToTime(m.CreatedAtUnix),
		UpdatedAt:       millisToTime(m.UpdatedAtUnix),
	}
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func timeToMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func millisToTime(v int64) time.Time {
	if v <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(v)
}
