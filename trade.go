package synapse

import (
	"context"
	"encoding/json"
	"time"
)

// Trade is one booked FX forward.
type Trade struct {
	TxID        string
	ClientID    string
	CcyPair     string
	NotionalUSD float64
	Tenor       string
	FwdPoints   float64
	Price       float64
	Side        string
	BookedAt    time.Time
}

// MarketSnapshot records the inputs used for one price quote.
type MarketSnapshot struct {
	Timestamp time.Time
	Pair      string
	Spot      float64
	USD3M     float64
	GBP3M     float64
}

// AuditEvent is a timestamped compliance record.
type AuditEvent struct {
	Timestamp time.Time
	EventType string
	Payload   json.RawMessage
}

// TradeStore persists trades and market snapshots. Writes are insert-only.
type TradeStore interface {
	RecordTrade(ctx context.Context, t Trade) error
	RecordSnapshot(ctx context.Context, s MarketSnapshot) error
	Trades(ctx context.Context) ([]Trade, error)
}

// AuditLog persists audit events. Writes are insert-only.
type AuditLog interface {
	RecordEvent(ctx context.Context, e AuditEvent) error
}
