// Package mock provides test doubles for synapse interfaces using function fields.
package mock

import (
	"context"

	"github.com/fwojciec/synapse"
)

// Interface compliance check.
var _ synapse.Provider = (*Provider)(nil)

// Provider is a test double for synapse.Provider.
// Set StreamFn before calling Stream.
type Provider struct {
	StreamFn func(ctx context.Context, req synapse.Request) (synapse.Stream, error)
}

// Stream delegates to StreamFn.
func (p *Provider) Stream(ctx context.Context, req synapse.Request) (synapse.Stream, error) {
	return p.StreamFn(ctx, req)
}
