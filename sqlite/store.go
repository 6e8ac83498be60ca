// Package sqlite stores booked trades, market snapshots and audit events in
// SQLite using the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fwojciec/synapse"
	_ "modernc.org/sqlite"
)

// Interface compliance checks.
var (
	_ synapse.TradeStore = (*Store)(nil)
	_ synapse.AuditLog   = (*Store)(nil)
)

var schema = []string{`
CREATE TABLE IF NOT EXISTS trades (
	tx_id TEXT PRIMARY KEY,
	client_id TEXT NOT NULL,
	ccy_pair TEXT NOT NULL,
	notional_usd REAL NOT NULL,
	tenor TEXT NOT NULL,
	fwd_points REAL NOT NULL,
	price REAL NOT NULL,
	side TEXT NOT NULL,
	booked_at TEXT NOT NULL
)`, `
CREATE TABLE IF NOT EXISTS market_snaps (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts TEXT NOT NULL,
	pair TEXT NOT NULL,
	spot REAL NOT NULL,
	usd_3m REAL NOT NULL,
	gbp_3m REAL NOT NULL
)`, `
CREATE TABLE IF NOT EXISTS audit (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts TEXT NOT NULL,
	event_type TEXT NOT NULL,
	payload TEXT NOT NULL
)`,
}

// Store implements synapse.TradeStore and synapse.AuditLog.
type Store struct {
	db *sql.DB
}

// New wraps an open database. The schema is not created; use Open or
// Migrate for that.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens the database at dsn and creates missing tables. ":memory:"
// gives a private in-memory database.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection, so ":memory:" is a single shared database.
	db.SetMaxOpenConns(1)
	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// RecordTrade inserts a booked trade.
func (s *Store) RecordTrade(ctx context.Context, t synapse.Trade) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trades (tx_id, client_id, ccy_pair, notional_usd, tenor, fwd_points, price, side, booked_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TxID, t.ClientID, t.CcyPair, t.NotionalUSD, t.Tenor, t.FwdPoints, t.Price, t.Side, formatTime(t.BookedAt),
	)
	if err != nil {
		return fmt.Errorf("insert trade %s: %w", t.TxID, err)
	}
	return nil
}

// RecordSnapshot inserts the market inputs of one quote.
func (s *Store) RecordSnapshot(ctx context.Context, m synapse.MarketSnapshot) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO market_snaps (ts, pair, spot, usd_3m, gbp_3m) VALUES (?, ?, ?, ?, ?)`,
		formatTime(m.Timestamp), m.Pair, m.Spot, m.USD3M, m.GBP3M,
	)
	if err != nil {
		return fmt.Errorf("insert market snapshot: %w", err)
	}
	return nil
}

// RecordEvent inserts an audit event. A nil payload is stored as "null".
func (s *Store) RecordEvent(ctx context.Context, e synapse.AuditEvent) error {
	payload := string(e.Payload)
	if payload == "" {
		payload = "null"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit (ts, event_type, payload) VALUES (?, ?, ?)`,
		formatTime(e.Timestamp), e.EventType, payload,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// Trades returns all booked trades in booking order.
func (s *Store) Trades(ctx context.Context) ([]synapse.Trade, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tx_id, client_id, ccy_pair, notional_usd, tenor, fwd_points, price, side, booked_at
		 FROM trades ORDER BY booked_at, tx_id`)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []synapse.Trade
	for rows.Next() {
		var t synapse.Trade
		var booked string
		if err := rows.Scan(&t.TxID, &t.ClientID, &t.CcyPair, &t.NotionalUSD, &t.Tenor, &t.FwdPoints, &t.Price, &t.Side, &booked); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		if t.BookedAt, err = parseTime(booked); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}
	return out, nil
}

// Events returns all audit events in insertion order.
func (s *Store) Events(ctx context.Context) ([]synapse.AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ts, event_type, payload FROM audit ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var out []synapse.AuditEvent
	for rows.Next() {
		var e synapse.AuditEvent
		var ts, payload string
		if err := rows.Scan(&ts, &e.EventType, &payload); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		if e.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		e.Payload = json.RawMessage(payload)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return out, nil
}
