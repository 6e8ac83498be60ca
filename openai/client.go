// Package openai implements [synapse.Provider] for the OpenAI Chat
// Completions API using github.com/sashabaranov/go-openai.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fwojciec/synapse"
	goopenai "github.com/sashabaranov/go-openai"
)

const defaultModel = "gpt-4o-mini"

// Interface compliance check.
var _ synapse.Provider = (*Client)(nil)

// Client implements [synapse.Provider] for Chat Completions.
type Client struct {
	client *goopenai.Client
	model  string
}

// Option configures a [Client].
type Option func(*goopenai.ClientConfig, *Client)

// WithBaseURL points the client at another endpoint.
func WithBaseURL(url string) Option {
	return func(cfg *goopenai.ClientConfig, _ *Client) { cfg.BaseURL = url }
}

// WithModel sets the default model ID.
func WithModel(model string) Option {
	return func(_ *goopenai.ClientConfig, c *Client) { c.model = model }
}

// New returns a Client authenticating with apiKey.
func New(apiKey string, opts ...Option) *Client {
	cfg := goopenai.DefaultConfig(apiKey)
	c := &Client{model: defaultModel}
	for _, o := range opts {
		o(&cfg, c)
	}
	c.client = goopenai.NewClientWithConfig(cfg)
	return c
}

// Stream starts a streaming chat completion.
func (c *Client) Stream(ctx context.Context, req synapse.Request) (synapse.Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	chatReq := goopenai.ChatCompletionRequest{
		Model:         req.Model,
		Messages:      ConvertMessages(req.SystemPrompt, req.Messages),
		Tools:         ConvertTools(req.Tools),
		MaxTokens:     req.MaxTokens,
		Stream:        true,
		StreamOptions: &goopenai.StreamOptions{IncludeUsage: true},
	}
	if chatReq.Model == "" {
		chatReq.Model = c.model
	}
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	}

	s, err := c.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		var apiErr *goopenai.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("openai: HTTP %d: %s: %s", apiErr.HTTPStatusCode, apiErr.Type, apiErr.Message)
		}
		return nil, fmt.Errorf("openai: %w", err)
	}
	return newStream(ctx, s), nil
}

// ConvertMessages maps the transcript onto chat messages, led by the system
// prompt. Each native result becomes a tool message; results without a
// call ID become user text.
func ConvertMessages(system string, msgs []synapse.Message) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, 0, len(msgs)+1)
	if system != "" {
		out = append(out, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: system})
	}
	for _, msg := range msgs {
		switch m := msg.(type) {
		case synapse.UserMessage:
			out = append(out, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: text(m.Content)})
		case synapse.AssistantMessage:
			am := goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleAssistant, Content: text(m.Content)}
			for _, b := range m.Content {
				if call, ok := b.(synapse.ToolCallBlock); ok {
					am.ToolCalls = append(am.ToolCalls, goopenai.ToolCall{
						ID:   call.ID,
						Type: goopenai.ToolTypeFunction,
						Function: goopenai.FunctionCall{
							Name:      call.Name,
							Arguments: string(call.ObjectArguments()),
						},
					})
				}
			}
			out = append(out, am)
		case synapse.ToolResultMessage:
			for _, r := range m.Results {
				if r.ToolCallID == "" {
					out = append(out, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: r.EmbeddedText()})
					continue
				}
				out = append(out, goopenai.ChatCompletionMessage{
					Role:       goopenai.ChatMessageRoleTool,
					Content:    r.Result.Text(),
					ToolCallID: r.ToolCallID,
				})
			}
		}
	}
	return out
}

func text(blocks []synapse.ContentBlock) string {
	var s string
	for _, b := range blocks {
		if tb, ok := b.(synapse.TextBlock); ok {
			s += tb.Text
		}
	}
	return s
}

// ConvertTools maps tool specs onto function tools.
func ConvertTools(tools []synapse.ToolSpec) []goopenai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]goopenai.Tool, len(tools))
	for i, t := range tools {
		out[i] = goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  json.RawMessage(t.Schema()),
			},
		}
	}
	return out
}
