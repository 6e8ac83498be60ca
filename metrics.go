package synapse

import "time"

// Metrics receives measurements from the agent loop and tool executor.
type Metrics interface {
	ModelCall(provider, outcome string, d time.Duration)
	ToolCall(tool string, status ToolStatus, d time.Duration)
	TurnCompleted(outcome string, rounds int)
}

// NopMetrics discards all measurements.
type NopMetrics struct{}

func (NopMetrics) ModelCall(string, string, time.Duration)     {}
func (NopMetrics) ToolCall(string, ToolStatus, time.Duration) {}
func (NopMetrics) TurnCompleted(string, int)                  {}

var _ Metrics = NopMetrics{}
