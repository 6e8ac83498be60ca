package sqlite_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/fwojciec/synapse"
	"github.com/fwojciec/synapse/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var booked = time.Date(2025, 6, 30, 14, 5, 0, 0, time.UTC)

func TestStore_Trades(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)

	first := synapse.Trade{
		TxID: "TXN-1", ClientID: "ClientCorp", CcyPair: "USDGBP", NotionalUSD: 25_000_000,
		Tenor: "3M", FwdPoints: -4.8, Price: 1.27202, Side: "BUY", BookedAt: booked,
	}
	second := first
	second.TxID = "TXN-2"
	second.BookedAt = booked.Add(time.Minute)

	require.NoError(t, s.RecordTrade(ctx, second))
	require.NoError(t, s.RecordTrade(ctx, first))

	got, err := s.Trades(ctx)
	require.NoError(t, err)
	assert.Equal(t, []synapse.Trade{first, second}, got)

	err = s.RecordTrade(ctx, first)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert trade TXN-1")
}

func TestStore_Empty(t *testing.T) {
	t.Parallel()
	s := openStore(t)

	trades, err := s.Trades(context.Background())
	require.NoError(t, err)
	assert.Empty(t, trades)

	events, err := s.Events(context.Background())
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestStore_EventsAndSnapshots(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)

	require.NoError(t, s.RecordSnapshot(ctx, synapse.MarketSnapshot{
		Timestamp: booked, Pair: "USDGBP", Spot: 1.2725, USD3M: 0.0529, GBP3M: 0.0521,
	}))
	require.NoError(t, s.RecordEvent(ctx, synapse.AuditEvent{
		Timestamp: booked, EventType: "trade_booked", Payload: json.RawMessage(`{"tx_id":"TXN-1"}`),
	}))
	require.NoError(t, s.RecordEvent(ctx, synapse.AuditEvent{Timestamp: booked, EventType: "error"}))

	events, err := s.Events(ctx)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "trade_booked", events[0].EventType)
	assert.JSONEq(t, `{"tx_id":"TXN-1"}`, string(events[0].Payload))
	assert.Equal(t, booked, events[0].Timestamp)
	assert.Equal(t, "error", events[1].EventType)
	assert.Equal(t, "null", string(events[1].Payload))
}

func TestStore_Failures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dbErr := errors.New("database is locked")

	tests := []struct {
		name  string
		setup func(sqlmock.Sqlmock)
		call  func(*sqlite.Store) error
		want  string
	}{
		{
			name: "record trade",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectExec("INSERT INTO trades").
					WithArgs("TXN-1", "ClientCorp", "USDGBP", 1e6, "3M", 0.0, 1.27, "BUY", "2025-06-30T14:05:00Z").
					WillReturnError(dbErr)
			},
			call: func(s *sqlite.Store) error {
				return s.RecordTrade(ctx, synapse.Trade{
					TxID: "TXN-1", ClientID: "ClientCorp", CcyPair: "USDGBP", NotionalUSD: 1e6,
					Tenor: "3M", Price: 1.27, Side: "BUY", BookedAt: booked,
				})
			},
			want: "insert trade TXN-1: database is locked",
		},
		{
			name: "record snapshot",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectExec("INSERT INTO market_snaps").WillReturnError(dbErr)
			},
			call: func(s *sqlite.Store) error {
				return s.RecordSnapshot(ctx, synapse.MarketSnapshot{Timestamp: booked})
			},
			want: "insert market snapshot: database is locked",
		},
		{
			name: "record event",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectExec("INSERT INTO audit").WillReturnError(dbErr)
			},
			call: func(s *sqlite.Store) error {
				return s.RecordEvent(ctx, synapse.AuditEvent{Timestamp: booked, EventType: "error"})
			},
			want: "insert audit event: database is locked",
		},
		{
			name: "query trades",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectQuery("SELECT (.+) FROM trades").WillReturnError(dbErr)
			},
			call: func(s *sqlite.Store) error {
				_, err := s.Trades(ctx)
				return err
			},
			want: "query trades: database is locked",
		},
		{
			name: "bad timestamp",
			setup: func(m sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{"ts", "event_type", "payload"}).
					AddRow("yesterday", "error", "null")
				m.ExpectQuery("SELECT (.+) FROM audit").WillReturnRows(rows)
			},
			call: func(s *sqlite.Store) error {
				_, err := s.Events(ctx)
				return err
			},
			want: `parse timestamp "yesterday"`,
		},
		{
			name: "migrate",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectExec("CREATE TABLE IF NOT EXISTS trades").WillReturnError(dbErr)
			},
			call: func(s *sqlite.Store) error {
				return s.Migrate(ctx)
			},
			want: "migrate: database is locked",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			db, m, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()
			tt.setup(m)

			err = tt.call(sqlite.New(db))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.NoError(t, m.ExpectationsWereMet())
		})
	}
}
