// Package jsonschema implements synapse.ToolExecutor, validating tool
// arguments against each tool's declared schema before invoking it.
package jsonschema

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/fwojciec/synapse"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// DefaultTimeout bounds a single tool invocation.
const DefaultTimeout = 30 * time.Second

// Executor runs registered tools. Schemas are compiled once in New.
type Executor struct {
	registry *synapse.Registry
	schemas  map[string]*jsonschema.Schema
	timeout  time.Duration
	logger   *slog.Logger
	metrics  synapse.Metrics
}

var _ synapse.ToolExecutor = (*Executor)(nil)

// Option configures an Executor.
type Option func(*Executor)

// WithTimeout sets the per-call timeout. Zero or negative disables it.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) { e.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m synapse.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// New compiles the schema of every registered tool.
func New(registry *synapse.Registry, opts ...Option) (*Executor, error) {
	e := &Executor{
		registry: registry,
		schemas:  make(map[string]*jsonschema.Schema),
		timeout:  DefaultTimeout,
		logger:   slog.Default(),
		metrics:  synapse.NopMetrics{},
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, spec := range registry.Specs() {
		schema, err := jsonschema.CompileString(spec.Name+".schema.json", string(spec.Schema()))
		if err != nil {
			return nil, fmt.Errorf("compile schema for %s: %w", spec.Name, err)
		}
		e.schemas[spec.Name] = schema
	}
	return e, nil
}

// Execute runs one tool call. It never returns a Go error or panics; every
// failure is reported as a StatusError result.
func (e *Executor) Execute(ctx context.Context, call synapse.ToolCallBlock) synapse.ToolResult {
	start := time.Now()
	result := e.execute(ctx, call)
	d := time.Since(start)

	e.metrics.ToolCall(call.Name, result.Status, d)
	attrs := []any{
		slog.String("tool", call.Name),
		slog.String("call_id", call.ID),
		slog.String("status", string(result.Status)),
		slog.Duration("duration", d),
	}
	if result.IsError() {
		e.logger.Warn("tool call failed", append(attrs, slog.String("error", result.Payload))...)
	} else {
		e.logger.Debug("tool call", attrs...)
	}
	return result
}

func (e *Executor) execute(ctx context.Context, call synapse.ToolCallBlock) synapse.ToolResult {
	tool, ok := e.registry.Lookup(call.Name)
	if !ok {
		return synapse.Failure("unknown tool: " + call.Name)
	}
	args, err := e.validate(call)
	if err != nil {
		return synapse.Failure(fmt.Sprintf("invalid arguments for %s: %v", call.Name, err))
	}
	call.Arguments = args
	out, err := e.invoke(ctx, tool, call)
	if err != nil {
		return synapse.Failure(err.Error())
	}
	payload, err := normalize(out)
	if err != nil {
		return synapse.Failure(fmt.Sprintf("encode result of %s: %v", call.Name, err))
	}
	return synapse.Success(payload)
}

// validate decodes the arguments and checks them against the tool's schema,
// returning the argument bytes the handler receives.
func (e *Executor) validate(call synapse.ToolCallBlock) (json.RawMessage, error) {
	raw := call.RawArguments()
	args := []byte(raw)
	if len(bytes.TrimSpace(args)) == 0 {
		args = []byte(`{}`)
	}
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("malformed json %q: %w", truncate(raw, maxEchoedArgs), err)
	}
	schema, ok := e.schemas[call.Name]
	if !ok {
		return args, nil
	}
	if err := schema.Validate(v); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return nil, errors.New(describe(ve))
		}
		return nil, err
	}
	return args, nil
}

const maxEchoedArgs = 200

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// describe flattens a validation error tree into its leaf messages.
func describe(ve *jsonschema.ValidationError) string {
	var msgs []string
	var walk func(*jsonschema.ValidationError)
	walk = func(v *jsonschema.ValidationError) {
		if len(v.Causes) == 0 {
			loc := v.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			msgs = append(msgs, loc+": "+v.Message)
			return
		}
		for _, c := range v.Causes {
			walk(c)
		}
	}
	walk(ve)
	sort.Strings(msgs)
	return strings.Join(msgs, "; ")
}

type outcome struct {
	value any
	err   error
}

func (e *Executor) invoke(ctx context.Context, tool synapse.RegisteredTool, call synapse.ToolCallBlock) (any, error) {
	execCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("tool panicked",
					slog.String("tool", call.Name),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())))
				ch <- outcome{err: fmt.Errorf("tool %s panicked: %v", call.Name, r)}
			}
		}()
		v, err := tool.Handler(execCtx, call.Arguments)
		ch <- outcome{value: v, err: err}
	}()

	select {
	case res := <-ch:
		return res.value, res.err
	case <-execCtx.Done():
		if ctx.Err() != nil {
			return nil, fmt.Errorf("tool %s canceled: %w", call.Name, ctx.Err())
		}
		return nil, fmt.Errorf("tool %s timed out after %s", call.Name, e.timeout)
	}
}

func normalize(v any) (string, error) {
	switch v := v.(type) {
	case string:
		return v, nil
	case json.RawMessage:
		return string(v), nil
	case []byte:
		return string(v), nil
	case nil:
		return "null", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
