// Package prometheus exports agent loop and tool measurements as
// Prometheus metrics.
package prometheus

import (
	"strconv"
	"time"

	"github.com/fwojciec/synapse"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Interface compliance check.
var _ synapse.Metrics = (*Metrics)(nil)

// Metrics implements [synapse.Metrics].
//
// Metric names carry the synapse_ prefix:
//   - model_calls_total{provider,outcome} and model_call_duration_seconds{provider}
//   - tool_calls_total{tool,status} and tool_call_duration_seconds{tool}
//   - turns_total{outcome,rounds}
type Metrics struct {
	modelCalls    *prometheus.CounterVec
	modelDuration *prometheus.HistogramVec
	toolCalls     *prometheus.CounterVec
	toolDuration  *prometheus.HistogramVec
	turns         *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		modelCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "synapse_model_calls_total",
			Help: "Model calls by provider and outcome.",
		}, []string{"provider", "outcome"}),
		modelDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "synapse_model_call_duration_seconds",
			Help:    "Model call latency, from request to end of stream.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider"}),
		toolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "synapse_tool_calls_total",
			Help: "Tool invocations by tool and envelope status.",
		}, []string{"tool", "status"}),
		toolDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "synapse_tool_call_duration_seconds",
			Help:    "Tool execution latency.",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"tool"}),
		turns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "synapse_turns_total",
			Help: "Completed turns by outcome and tool rounds used.",
		}, []string{"outcome", "rounds"}),
	}
}

func (m *Metrics) ModelCall(provider, outcome string, d time.Duration) {
	m.modelCalls.WithLabelValues(provider, outcome).Inc()
	m.modelDuration.WithLabelValues(provider).Observe(d.Seconds())
}

func (m *Metrics) ToolCall(tool string, status synapse.ToolStatus, d time.Duration) {
	m.toolCalls.WithLabelValues(tool, string(status)).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// TurnCompleted records a finished turn. Rounds is bounded by the loop's
// round cap, so it is safe as a label.
func (m *Metrics) TurnCompleted(outcome string, rounds int) {
	m.turns.WithLabelValues(outcome, strconv.Itoa(rounds)).Inc()
}
