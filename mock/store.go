package mock

import (
	"context"

	"github.com/fwojciec/synapse"
)

// Interface compliance checks.
var (
	_ synapse.TradeStore = (*TradeStore)(nil)
	_ synapse.AuditLog   = (*AuditLog)(nil)
)

// TradeStore is a test double for synapse.TradeStore.
type TradeStore struct {
	RecordTradeFn    func(ctx context.Context, t synapse.Trade) error
	RecordSnapshotFn func(ctx context.Context, s synapse.MarketSnapshot) error
	TradesFn         func(ctx context.Context) ([]synapse.Trade, error)
}

// RecordTrade delegates to RecordTradeFn.
func (s *TradeStore) RecordTrade(ctx context.Context, t synapse.Trade) error {
	return s.RecordTradeFn(ctx, t)
}

// RecordSnapshot delegates to RecordSnapshotFn. Returns nil when unset.
func (s *TradeStore) RecordSnapshot(ctx context.Context, snap synapse.MarketSnapshot) error {
	if s.RecordSnapshotFn == nil {
		return nil
	}
	return s.RecordSnapshotFn(ctx, snap)
}

// Trades delegates to TradesFn.
func (s *TradeStore) Trades(ctx context.Context) ([]synapse.Trade, error) {
	return s.TradesFn(ctx)
}

// AuditLog is a test double for synapse.AuditLog.
type AuditLog struct {
	RecordEventFn func(ctx context.Context, e synapse.AuditEvent) error
}

// RecordEvent delegates to RecordEventFn.
func (a *AuditLog) RecordEvent(ctx context.Context, e synapse.AuditEvent) error {
	return a.RecordEventFn(ctx, e)
}
