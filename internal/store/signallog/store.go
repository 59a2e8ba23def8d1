// Package signallog keeps a flat log of every strategy evaluation so
// skipped entries can be audited after the fact.
package signallog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one evaluation outcome, including the indicator snapshot it
// was decided on.
type Record struct {
	ID          int64   `json:"id"`
	Timestamp   int64   `json:"ts"`
	Symbol      string  `json:"symbol"`
	Kind        string  `json:"kind"`
	Price       float64 `json:"price"`
	Amount      float64 `json:"amount"`
	Confidence  float64 `json:"confidence"`
	StopLoss    float64 `json:"stop_loss,omitempty"`
	TakeProfit  float64 `json:"take_profit,omitempty"`
	Reason      string  `json:"reason"`
	VWM         float64 `json:"vwm"`
	VolumeRatio float64 `json:"volume_ratio"`
	ATR         float64 `json:"atr"`
}

// Query filters Recent lookups.
type Query struct {
	Symbol string
	Kind   string
	Limit  int
}

type Store struct {
	mu sync.Mutex
	db *sql.DB
}

func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("signal log: path required")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS signal_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			symbol TEXT NOT NULL,
			kind TEXT NOT NULL,
			price REAL NOT NULL DEFAULT 0,
			amount REAL NOT NULL DEFAULT 0,
			confidence REAL NOT NULL DEFAULT 0,
			stop_loss REAL NOT NULL DEFAULT 0,
			take_profit REAL NOT NULL DEFAULT 0,
			reason TEXT,
			vwm REAL NOT NULL DEFAULT 0,
			volume_ratio REAL NOT NULL DEFAULT 0,
			atr REAL NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_signal_logs_symbol_ts_id ON signal_logs(symbol, ts DESC, id DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_signal_logs_kind_ts_id ON signal_logs(kind, ts DESC, id DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Append(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return fmt.Errorf("signal log: store closed")
	}
	if rec.Timestamp <= 0 {
		rec.Timestamp = time.Now().UnixMilli()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO signal_logs
		(ts, symbol, kind, price, amount, confidence, stop_loss, take_profit, reason, vwm, volume_ratio, atr, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp,
		strings.ToUpper(strings.TrimSpace(rec.Symbol)),
		rec.Kind,
		rec.Price,
		rec.Amount,
		rec.Confidence,
		rec.StopLoss,
		rec.TakeProfit,
		rec.Reason,
		rec.VWM,
		rec.VolumeRatio,
		rec.ATR,
		time.Now().UnixMilli(),
	)
	return err
}

// Recent returns the newest matching records, newest first.
func (s *Store) Recent(ctx context.Context, q Query) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, fmt.Errorf("signal log: store closed")
	}
	if q.Limit <= 0 || q.Limit > 500 {
		q.Limit = 100
	}

	where := make([]string, 0, 2)
	args := make([]any, 0, 3)
	if sym := strings.ToUpper(strings.TrimSpace(q.Symbol)); sym != "" {
		where = append(where, "symbol = ?")
		args = append(args, sym)
	}
	if q.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, q.Kind)
	}
	query := "SELECT id, ts, symbol, kind, price, amount, confidence, stop_loss, take_profit, reason, vwm, volume_ratio, atr FROM signal_logs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts DESC, id DESC LIMIT ?"
	args = append(args, q.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var reason sql.NullString
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Symbol, &r.Kind, &r.Price, &r.Amount,
			&r.Confidence, &r.StopLoss, &r.TakeProfit, &reason, &r.VWM, &r.VolumeRatio, &r.ATR); err != nil {
			return nil, err
		}
		r.Reason = reason.String
		out = append(out, r)
	}
	return out, rows.Err()
}
