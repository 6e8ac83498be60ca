package mock

import (
	"context"

	"github.com/fwojciec/synapse"
)

// Interface compliance checks.
var (
	_ synapse.ToolExecutor = (*ToolExecutor)(nil)
	_ synapse.Extractor    = (*Extractor)(nil)
)

// ToolExecutor is a test double for synapse.ToolExecutor.
// Set ExecuteFn before calling Execute.
type ToolExecutor struct {
	ExecuteFn func(ctx context.Context, call synapse.ToolCallBlock) synapse.ToolResult
}

// Execute delegates to ExecuteFn.
func (e *ToolExecutor) Execute(ctx context.Context, call synapse.ToolCallBlock) synapse.ToolResult {
	return e.ExecuteFn(ctx, call)
}

// Extractor is a test double for synapse.Extractor.
// ConventionFn defaults to native when nil.
type Extractor struct {
	ConventionFn func() synapse.Convention
	ExtractFn    func(msg synapse.AssistantMessage) ([]synapse.ToolCallBlock, error)
}

// Convention delegates to ConventionFn.
func (e *Extractor) Convention() synapse.Convention {
	if e.ConventionFn == nil {
		return synapse.ConventionNative
	}
	return e.ConventionFn()
}

// Extract delegates to ExtractFn.
func (e *Extractor) Extract(msg synapse.AssistantMessage) ([]synapse.ToolCallBlock, error) {
	return e.ExtractFn(msg)
}
