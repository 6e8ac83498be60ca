// Package agent drives one trader turn to completion: it calls the model,
// runs any requested tools and feeds their results back until the model
// answers in plain text.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/fwojciec/synapse"
)

// DefaultMaxRounds caps the tool rounds of a single turn.
const DefaultMaxRounds = 8

// Loop orchestrates the conversation between a Provider and a ToolExecutor.
// A Loop holds no conversation state and may serve many sessions.
type Loop struct {
	provider  synapse.Provider
	extractor synapse.Extractor
	executor  synapse.ToolExecutor
	tools     []synapse.ToolSpec

	maxRounds    int
	model        string
	providerName string
	logger       *slog.Logger
	metrics      synapse.Metrics
	audit        synapse.AuditLog
}

// Option configures a Loop.
type Option func(*Loop)

// WithMaxRounds sets the maximum number of tool rounds per turn.
func WithMaxRounds(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.maxRounds = n
		}
	}
}

// WithModel sets the model ID for provider requests.
// Empty string means the provider uses its default model.
func WithModel(model string) Option {
	return func(l *Loop) { l.model = model }
}

// WithProviderName labels model-call metrics.
func WithProviderName(name string) Option {
	return func(l *Loop) { l.providerName = name }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m synapse.Metrics) Option {
	return func(l *Loop) { l.metrics = m }
}

// WithAuditLog records turn-level failures as "error" audit events.
func WithAuditLog(a synapse.AuditLog) Option {
	return func(l *Loop) { l.audit = a }
}

// New creates a Loop. tools is the schema list offered to the model.
func New(provider synapse.Provider, extractor synapse.Extractor, executor synapse.ToolExecutor, tools []synapse.ToolSpec, opts ...Option) *Loop {
	l := &Loop{
		provider:     provider,
		extractor:    extractor,
		executor:     executor,
		tools:        tools,
		maxRounds:    DefaultMaxRounds,
		providerName: "model",
		logger:       slog.Default(),
		metrics:      synapse.NopMetrics{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// MaxRounds returns the configured tool-round cap.
func (l *Loop) MaxRounds() int { return l.maxRounds }

// RunOption configures a single ProcessTurn invocation.
type RunOption func(*runConfig)

type runConfig struct {
	onEvent func(synapse.Event)
}

// WithEventHandler sets a callback that receives each streaming event and
// each tool result during the turn.
func WithEventHandler(h func(synapse.Event)) RunOption {
	return func(c *runConfig) { c.onEvent = h }
}

func (c *runConfig) emit(e synapse.Event) {
	if c.onEvent != nil {
		c.onEvent(e)
	}
}

// ProcessTurn appends userText to the session and runs model calls and tool
// rounds until the model replies without requesting a tool. It returns the
// final reply text.
//
// Tool failures stay inside the conversation. A model-call failure is
// returned as is; ErrMaxRounds is returned when the round cap is reached.
// In every case the turns appended so far remain in the session.
func (l *Loop) ProcessTurn(ctx context.Context, session *synapse.Session, userText string, opts ...RunOption) (string, error) {
	var cfg runConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := l.logger.With(slog.String("session_id", session.ID))

	session.Append(synapse.NewUserMessage(userText))

	for round := 0; ; round++ {
		msg, err := l.modelCall(ctx, session, &cfg)
		if err != nil {
			l.metrics.TurnCompleted("error", round)
			logger.Error("model call failed", slog.Int("round", round), slog.String("error", err.Error()))
			return "", err
		}
		session.Append(msg)

		calls, err := l.extractor.Extract(msg)
		if err != nil {
			logger.Warn("undecodable tool request", slog.String("error", err.Error()))
			session.Append(synapse.ToolResultMessage{
				Results:   []synapse.ToolResultBlock{{Result: synapse.Failure(err.Error())}},
				Timestamp: time.Now(),
			})
		} else if len(calls) == 0 {
			l.metrics.TurnCompleted("done", round)
			return strings.TrimSpace(msg.Text()), nil
		} else {
			session.Append(l.toolRound(ctx, calls, &cfg))
		}

		if round+1 >= l.maxRounds {
			l.metrics.TurnCompleted("max_rounds", round+1)
			logger.Warn("tool round cap reached", slog.Int("max_rounds", l.maxRounds))
			return "", fmt.Errorf("turn stopped after %d tool rounds: %w", l.maxRounds, synapse.ErrMaxRounds)
		}
	}
}

// toolRound executes calls sequentially in extraction order and bundles
// their results into one message.
func (l *Loop) toolRound(ctx context.Context, calls []synapse.ToolCallBlock, cfg *runConfig) synapse.ToolResultMessage {
	results := make([]synapse.ToolResultBlock, 0, len(calls))
	for _, call := range calls {
		res := l.executor.Execute(ctx, call)
		cfg.emit(synapse.EventToolResult{Call: call, Result: res})
		results = append(results, synapse.ToolResultBlock{
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Result:     res,
		})
	}
	return synapse.ToolResultMessage{Results: results, Timestamp: time.Now()}
}

func (l *Loop) modelCall(ctx context.Context, session *synapse.Session, cfg *runConfig) (synapse.AssistantMessage, error) {
	if err := ctx.Err(); err != nil {
		return synapse.AssistantMessage{}, err
	}

	req := synapse.Request{
		Model:        l.model,
		SystemPrompt: session.SystemPrompt,
		Messages:     session.Snapshot(),
	}
	if l.extractor.Convention() == synapse.ConventionMarker {
		req.SystemPrompt = joinPrompt(req.SystemPrompt, MarkerPrompt(l.tools))
	} else {
		req.Tools = l.tools
	}

	start := time.Now()
	msg, err := l.stream(ctx, req, cfg)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	l.metrics.ModelCall(l.providerName, outcome, time.Since(start))
	return msg, err
}

// stream drains one provider stream. A stream that fails part way is an
// error; its partial message is discarded.
func (l *Loop) stream(ctx context.Context, req synapse.Request, cfg *runConfig) (synapse.AssistantMessage, error) {
	stream, err := l.provider.Stream(ctx, req)
	if err != nil {
		return synapse.AssistantMessage{}, err
	}
	defer stream.Close()

	for {
		evt, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return synapse.AssistantMessage{}, err
		}
		cfg.emit(evt)
	}

	msg, err := stream.Message()
	if err != nil {
		return synapse.AssistantMessage{}, err
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return msg, nil
}

// Respond runs ProcessTurn and always returns text for the trader. Turn
// failures are logged, recorded in the audit log and reported as a short
// message in place of the answer.
func (l *Loop) Respond(ctx context.Context, session *synapse.Session, userText string, opts ...RunOption) string {
	reply, err := l.ProcessTurn(ctx, session, userText, opts...)
	if err == nil {
		return reply
	}
	l.RecordFailure(ctx, session, err)
	return FailureText(err, l.maxRounds)
}

// FailureText is the trader-facing text for a turn-level failure.
func FailureText(err error, maxRounds int) string {
	if errors.Is(err, synapse.ErrMaxRounds) {
		return fmt.Sprintf("Sorry, I could not complete that request within %d tool rounds.", maxRounds)
	}
	return "Error processing request: " + err.Error()
}

// RecordFailure writes a turn-level failure to the audit log, if one is
// configured.
func (l *Loop) RecordFailure(ctx context.Context, session *synapse.Session, turnErr error) {
	if l.audit == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{
		"session_id": session.ID,
		"error":      turnErr.Error(),
	})
	// The turn's context may be what failed.
	ctx = context.WithoutCancel(ctx)
	if err := l.audit.RecordEvent(ctx, synapse.AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: "error",
		Payload:   payload,
	}); err != nil {
		l.logger.Error("record audit event", slog.String("error", err.Error()))
	}
}
