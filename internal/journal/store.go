package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/goquant/tradesim/internal/msg"
	"github.com/goquant/tradesim/internal/portfolio"
	"github.com/goquant/tradesim/internal/sim"
)

// Store persists the engine's output events for the session and queues them
// on a transactional outbox for downstream publishing. It implements
// sim.EventSink.
type Store struct {
	db *sql.DB
}

// OutboxEvent represents an event waiting to be published
type OutboxEvent struct {
	ID                  int64
	EventID             string
	Topic               string
	Key                 string
	PayloadJSON         string
	CreatedUnixMillis   int64
	PublishedUnixMillis sql.NullInt64
}

// Open creates or opens the journal database at path.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// migrate creates the necessary tables
func (s *Store) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS fills (
			order_id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			qty REAL NOT NULL,
			price REAL NOT NULL,
			impact_bps REAL NOT NULL,
			capped INTEGER NOT NULL,
			ts_unix_millis INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS rejections (
			order_id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			reason TEXT NOT NULL,
			ts_unix_millis INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS equity_points (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts_unix_millis INTEGER NOT NULL,
			equity REAL NOT NULL,
			cash REAL NOT NULL,
			realized_pnl REAL NOT NULL,
			unrealized_pnl REAL NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS latency_samples (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			stage TEXT NOT NULL,
			millis REAL NOT NULL,
			ts_unix_millis INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_latency_stage ON latency_samples(stage)`,
		`CREATE TABLE IF NOT EXISTS outbox_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT NOT NULL UNIQUE,
			topic TEXT NOT NULL,
			key TEXT NOT NULL,
			payload_json TEXT NOT NULL,
			created_unix_millis INTEGER NOT NULL,
			published_unix_millis INTEGER NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outbox_unpublished
			ON outbox_events(published_unix_millis)
			WHERE published_unix_millis IS NULL`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	return nil
}

// RecordFill stores a fill and queues it for publishing in one transaction.
// The order_id primary key makes the write idempotent: at most one fill row
// per order can ever exist.
func (s *Store) RecordFill(f sim.Fill) error {
	payload := msg.FillMsg{
		EventID:      uuid.New().String(),
		OrderID:      f.OrderID,
		Symbol:       f.Symbol,
		Side:         string(f.Side),
		Qty:          f.Quantity,
		Price:        f.Price,
		ImpactBps:    f.ImpactBps,
		Capped:       f.Capped,
		TsUnixMillis: f.TsUnixMillis,
	}

	return s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(
			`INSERT OR IGNORE INTO fills (order_id, symbol, side, qty, price, impact_bps, capped, ts_unix_millis)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			f.OrderID, f.Symbol, string(f.Side), f.Quantity, f.Price, f.ImpactBps, boolToInt(f.Capped), f.TsUnixMillis,
		)
		if err != nil {
			return fmt.Errorf("failed to insert fill: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			// Duplicate fill for the same order: already journaled.
			return nil
		}
		return s.enqueueTx(tx, msg.TopicFills, f.OrderID, payload.EventID, payload)
	})
}

// RecordRejection stores a rejected-order notice and queues it for
// publishing.
func (s *Store) RecordRejection(r sim.Rejection) error {
	payload := msg.OrderRejectedMsg{
		EventID:      uuid.New().String(),
		OrderID:      r.OrderID,
		Symbol:       r.Symbol,
		Reason:       r.Reason,
		TsUnixMillis: r.TsUnixMillis,
	}

	return s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(
			`INSERT OR IGNORE INTO rejections (order_id, symbol, reason, ts_unix_millis)
			 VALUES (?, ?, ?, ?)`,
			r.OrderID, r.Symbol, r.Reason, r.TsUnixMillis,
		)
		if err != nil {
			return fmt.Errorf("failed to insert rejection: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		return s.enqueueTx(tx, msg.TopicRejects, r.OrderID, payload.EventID, payload)
	})
}

// RecordEquity stores one equity-curve point and queues it for publishing.
func (s *Store) RecordEquity(p portfolio.EquityPoint) error {
	payload := msg.EquityPointMsg{
		EventID:       uuid.New().String(),
		Equity:        p.Equity,
		Cash:          p.Cash,
		RealizedPnL:   p.RealizedPnL,
		UnrealizedPnL: p.UnrealizedPnL,
		TsUnixMillis:  p.TsUnixMillis,
	}

	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO equity_points (ts_unix_millis, equity, cash, realized_pnl, unrealized_pnl)
			 VALUES (?, ?, ?, ?, ?)`,
			p.TsUnixMillis, p.Equity, p.Cash, p.RealizedPnL, p.UnrealizedPnL,
		)
		if err != nil {
			return fmt.Errorf("failed to insert equity point: %w", err)
		}
		return s.enqueueTx(tx, msg.TopicEquity, payload.EventID, payload.EventID, payload)
	})
}

// RecordLatency stores one latency sample. Latency samples are not queued
// on the outbox; the report reads them directly.
func (s *Store) RecordLatency(stage string, millis float64, tsUnixMillis int64) error {
	_, err := s.db.Exec(
		`INSERT INTO latency_samples (stage, millis, ts_unix_millis) VALUES (?, ?, ?)`,
		stage, millis, tsUnixMillis,
	)
	if err != nil {
		return fmt.Errorf("failed to insert latency sample: %w", err)
	}
	return nil
}

// ListUnpublished returns unpublished outbox events, oldest first.
func (s *Store) ListUnpublished(ctx context.Context, limit int) ([]OutboxEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_id, topic, key, payload_json, created_unix_millis, published_unix_millis
		 FROM outbox_events
		 WHERE published_unix_millis IS NULL
		 ORDER BY id ASC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query unpublished events: %w", err)
	}
	defer rows.Close()

	var events []OutboxEvent
	for rows.Next() {
		var e OutboxEvent
		err := rows.Scan(
			&e.ID, &e.EventID, &e.Topic, &e.Key,
			&e.PayloadJSON, &e.CreatedUnixMillis, &e.PublishedUnixMillis,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// MarkPublished marks an event as published
func (s *Store) MarkPublished(ctx context.Context, eventID string, nowMillis int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE outbox_events SET published_unix_millis = ? WHERE event_id = ?",
		nowMillis, eventID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark event as published: %w", err)
	}
	return nil
}

// LatencySamples returns all stored samples for a stage, in insertion order.
func (s *Store) LatencySamples(ctx context.Context, stage string) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT millis FROM latency_samples WHERE stage = ? ORDER BY id ASC`, stage)
	if err != nil {
		return nil, fmt.Errorf("failed to query latency samples: %w", err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// FillCount returns the number of journaled fills.
func (s *Store) FillCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM fills`).Scan(&n)
	return n, err
}

// RejectionCount returns the number of journaled rejections.
func (s *Store) RejectionCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rejections`).Scan(&n)
	return n, err
}

// LastEquity returns the most recent equity point, if any.
func (s *Store) LastEquity(ctx context.Context) (msg.EquityPointMsg, bool, error) {
	var p msg.EquityPointMsg
	err := s.db.QueryRowContext(ctx,
		`SELECT ts_unix_millis, equity, cash, realized_pnl, unrealized_pnl
		 FROM equity_points ORDER BY id DESC LIMIT 1`,
	).Scan(&p.TsUnixMillis, &p.Equity, &p.Cash, &p.RealizedPnL, &p.UnrealizedPnL)
	if err == sql.ErrNoRows {
		return msg.EquityPointMsg{}, false, nil
	}
	if err != nil {
		return msg.EquityPointMsg{}, false, err
	}
	return p, true, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) enqueueTx(tx *sql.Tx, topic, key, eventID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	_, err = tx.Exec(
		`INSERT INTO outbox_events (event_id, topic, key, payload_json, created_unix_millis, published_unix_millis)
		 VALUES (?, ?, ?, ?, ?, NULL)`,
		eventID, topic, key, string(data), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
