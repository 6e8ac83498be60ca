package synapse

import (
	"context"
	"encoding/json"
)

// Parameter declares one named argument of a tool.
type Parameter struct {
	Name        string
	Type        string // JSON Schema type: string, number, integer, boolean, object, array
	Description string
	Required    bool
}

// ToolSpec is the schema sent to the model describing a tool.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  []Parameter
}

// Schema renders the declared parameters as a JSON Schema object.
// Undeclared arguments are rejected.
func (s ToolSpec) Schema() json.RawMessage {
	props := make(map[string]any, len(s.Parameters))
	required := []string{}
	for _, p := range s.Parameters {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
	// A map of strings and slices always encodes.
	b, _ := json.Marshal(schema)
	return b
}

// ToolHandler implements a tool. The returned value becomes the result
// payload: strings and json.RawMessage are used verbatim, anything else is
// JSON-encoded.
type ToolHandler func(ctx context.Context, args json.RawMessage) (any, error)

// RegisteredTool pairs a spec with its implementation.
type RegisteredTool struct {
	Spec    ToolSpec
	Handler ToolHandler
}

// ToolStatus is the envelope status of a ToolResult.
type ToolStatus string

const (
	StatusSuccess ToolStatus = "success"
	StatusError   ToolStatus = "error"
)

// ToolResult is the uniform outcome of one tool invocation. A tool that
// runs and reports a domain failure in its own payload is still a success
// at this level; StatusError is reserved for calls that could not run.
type ToolResult struct {
	Status  ToolStatus
	Payload string
}

// Success returns a successful ToolResult.
func Success(payload string) ToolResult {
	return ToolResult{Status: StatusSuccess, Payload: payload}
}

// Failure returns an error ToolResult.
func Failure(msg string) ToolResult {
	return ToolResult{Status: StatusError, Payload: msg}
}

// IsError reports whether the call could not run.
func (r ToolResult) IsError() bool { return r.Status == StatusError }

// Text renders the result the way it is shown to the model.
func (r ToolResult) Text() string {
	if !r.IsError() {
		return r.Payload
	}
	b, _ := json.Marshal(struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}{string(StatusError), r.Payload})
	return string(b)
}

// ToolExecutor runs tool calls. Execute never returns an error: every
// failure is folded into the result.
type ToolExecutor interface {
	Execute(ctx context.Context, call ToolCallBlock) ToolResult
}
