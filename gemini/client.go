package gemini

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fwojciec/synapse"
	"google.golang.org/genai"
)

// Interface compliance check.
var _ synapse.Provider = (*Client)(nil)

// Client implements [synapse.Provider] for the Gemini API.
type Client struct {
	client *genai.Client
	model  string
}

// Option configures a [Client].
type Option func(*Client)

// WithModel sets the default model ID.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// New returns a Client for the Gemini developer API.
func New(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	c := &Client{client: gc, model: defaultModel}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Stream starts a streaming generateContent call.
func (c *Client) Stream(ctx context.Context, req synapse.Request) (synapse.Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	model := req.Model
	if model == "" {
		model = c.model
	}
	seq := c.client.Models.GenerateContentStream(ctx, model, ConvertMessages(req.Messages), newConfig(req))
	return NewStreamFromIter(ctx, seq), nil
}

func newConfig(req synapse.Request) *genai.GenerateContentConfig {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens),
		Tools:           ConvertTools(req.Tools),
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}}
	}
	if req.Temperature != nil {
		temp := float32(*req.Temperature)
		cfg.Temperature = &temp
	}
	return cfg
}

// ConvertMessages maps the transcript onto genai contents. Results with a
// call ID become FunctionResponse parts; results without one become user
// text.
func ConvertMessages(msgs []synapse.Message) []*genai.Content {
	var out []*genai.Content
	for _, msg := range msgs {
		switch m := msg.(type) {
		case synapse.UserMessage:
			out = append(out, &genai.Content{Role: "user", Parts: convertParts(m.Content)})
		case synapse.AssistantMessage:
			out = append(out, &genai.Content{Role: "model", Parts: convertParts(m.Content)})
		case synapse.ToolResultMessage:
			parts := make([]*genai.Part, 0, len(m.Results))
			for _, r := range m.Results {
				parts = append(parts, convertResult(r))
			}
			out = append(out, &genai.Content{Role: "user", Parts: parts})
		}
	}
	return out
}

func convertResult(r synapse.ToolResultBlock) *genai.Part {
	if r.ToolCallID == "" {
		return &genai.Part{Text: r.EmbeddedText()}
	}
	resp := map[string]any{"output": r.Result.Payload}
	if r.Result.IsError() {
		resp = map[string]any{"error": r.Result.Payload}
	}
	return &genai.Part{FunctionResponse: &genai.FunctionResponse{
		ID:       r.ToolCallID,
		Name:     r.ToolName,
		Response: resp,
	}}
}

func convertParts(blocks []synapse.ContentBlock) []*genai.Part {
	var parts []*genai.Part
	for _, b := range blocks {
		switch bl := b.(type) {
		case synapse.TextBlock:
			parts = append(parts, &genai.Part{Text: bl.Text})
		case synapse.ThinkingBlock:
			parts = append(parts, &genai.Part{Text: bl.Thinking, Thought: true})
		case synapse.ToolCallBlock:
			var args map[string]any
			_ = json.Unmarshal(bl.ObjectArguments(), &args)
			parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
				ID:   bl.ID,
				Name: bl.Name,
				Args: args,
			}})
		}
	}
	return parts
}

// ConvertTools maps tool specs onto one genai Tool of function declarations.
func ConvertTools(tools []synapse.ToolSpec) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, len(tools))
	for i, t := range tools {
		var schema map[string]any
		_ = json.Unmarshal(t.Schema(), &schema)
		decls[i] = &genai.FunctionDeclaration{
			Name:                 t.Name,
			Description:          t.Description,
			ParametersJsonSchema: schema,
		}
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}
