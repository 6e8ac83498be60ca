package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fwojciec/synapse"
)

// Interface compliance check.
var _ synapse.Provider = (*Client)(nil)

// Client implements [synapse.Provider] for the Anthropic Messages API.
type Client struct {
	apiKey     string
	baseURL    string
	maxTokens  int
	httpClient *http.Client
}

// Option configures a [Client].
type Option func(*Client)

// WithBaseURL points the client at another endpoint, e.g. an httptest server.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMaxTokens sets max_tokens for requests that leave it unset.
func WithMaxTokens(n int) Option {
	return func(c *Client) { c.maxTokens = n }
}

// New returns a Client authenticating with apiKey.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		maxTokens:  defaultMaxTokens,
		httpClient: http.DefaultClient,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Stream starts a streaming Messages call.
func (c *Client) Stream(ctx context.Context, req synapse.Request) (synapse.Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}
	body, err := json.Marshal(c.newAPIRequest(req))
	if err != nil {
		return nil, fmt.Errorf("anthropic: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+messagesPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", c.apiKey)
	httpReq.Header.Set("Anthropic-Version", apiVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, parseHTTPError(resp)
	}
	return newStream(ctx, resp.Body), nil
}

func (c *Client) newAPIRequest(req synapse.Request) apiRequest {
	out := apiRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Stream:      true,
		Messages:    convertMessages(req.Messages),
		Tools:       convertTools(req.Tools),
		Temperature: req.Temperature,
	}
	if out.Model == "" {
		out.Model = defaultModel
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = c.maxTokens
	}
	// Cache breakpoints after the system prompt and the last tool.
	cc := &apiCacheControl{Type: "ephemeral"}
	if req.SystemPrompt != "" {
		out.System = []apiContentBlock{{Type: "text", Text: req.SystemPrompt, CacheControl: cc}}
	}
	if n := len(out.Tools); n > 0 {
		out.Tools[n-1].CacheControl = cc
	}
	return out
}

// convertMessages maps the transcript onto API messages. Roles must
// alternate, so tool results and consecutive user turns share one user
// message.
func convertMessages(msgs []synapse.Message) []apiMessage {
	var result []apiMessage
	appendUser := func(blocks ...apiContentBlock) {
		if n := len(result); n > 0 && result[n-1].Role == "user" {
			result[n-1].Content = append(result[n-1].Content, blocks...)
			return
		}
		result = append(result, apiMessage{Role: "user", Content: blocks})
	}
	for _, msg := range msgs {
		switch m := msg.(type) {
		case synapse.UserMessage:
			appendUser(convertContentBlocks(m.Content)...)
		case synapse.AssistantMessage:
			result = append(result, apiMessage{
				Role:    "assistant",
				Content: convertContentBlocks(m.Content),
			})
		case synapse.ToolResultMessage:
			for _, r := range m.Results {
				appendUser(convertToolResult(r))
			}
		}
	}
	return result
}

func convertToolResult(r synapse.ToolResultBlock) apiContentBlock {
	if r.ToolCallID == "" {
		return apiContentBlock{Type: "text", Text: r.EmbeddedText()}
	}
	return apiContentBlock{
		Type:      "tool_result",
		ToolUseID: r.ToolCallID,
		Content:   []apiContentBlock{{Type: "text", Text: r.Result.Text()}},
		IsError:   r.Result.IsError(),
	}
}

func convertContentBlocks(blocks []synapse.ContentBlock) []apiContentBlock {
	result := make([]apiContentBlock, 0, len(blocks))
	for _, b := range blocks {
		switch bl := b.(type) {
		case synapse.TextBlock:
			result = append(result, apiContentBlock{Type: "text", Text: bl.Text})
		case synapse.ThinkingBlock:
			result = append(result, apiContentBlock{Type: "thinking", Thinking: bl.Thinking})
		case synapse.ToolCallBlock:
			result = append(result, apiContentBlock{Type: "tool_use", ID: bl.ID, Name: bl.Name, Input: bl.ObjectArguments()})
		}
	}
	return result
}

func convertTools(tools []synapse.ToolSpec) []apiTool {
	if len(tools) == 0 {
		return nil
	}
	result := make([]apiTool, len(tools))
	for i, t := range tools {
		result[i] = apiTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Schema(),
		}
	}
	return result
}

func parseHTTPError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("anthropic: HTTP %d (failed to read body: %w)", resp.StatusCode, err)
	}
	var apiErr sseError
	if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Error.Type == "" {
		return fmt.Errorf("anthropic: HTTP %d: %s", resp.StatusCode, truncate(string(body), 512))
	}
	return fmt.Errorf("anthropic: HTTP %d: %s: %s", resp.StatusCode, apiErr.Error.Type, apiErr.Error.Message)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
