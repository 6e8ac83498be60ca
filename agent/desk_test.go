package agent_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/fwojciec/synapse"
	"github.com/fwojciec/synapse/agent"
	"github.com/fwojciec/synapse/anthropic"
	"github.com/fwojciec/synapse/fx"
	"github.com/fwojciec/synapse/goldmark"
	synjson "github.com/fwojciec/synapse/json"
	"github.com/fwojciec/synapse/jsonschema"
	"github.com/fwojciec/synapse/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedRates serves the same rates for every quote.
type fixedRates struct{}

func (fixedRates) Latest() (fx.Rates, error) {
	return fx.Rates{Date: "2025-06-30", USD3M: 5.3, GBP3M: 5.2}, nil
}

// newDesk wires the real desk tools behind a schema-validating executor.
func newDesk(t *testing.T) (*jsonschema.Executor, []synapse.ToolSpec) {
	t.Helper()
	store := &mock.TradeStore{
		RecordTradeFn: func(context.Context, synapse.Trade) error { return nil },
		TradesFn:      func(context.Context) ([]synapse.Trade, error) { return nil, nil },
	}
	reg, err := synapse.NewRegistry(fx.NewDesk(fixedRates{}, store).Tools()...)
	require.NoError(t, err)
	exec, err := jsonschema.New(reg)
	require.NoError(t, err)
	return exec, reg.Specs()
}

func TestLoop_ProcessTurn_Desk(t *testing.T) {
	t.Parallel()

	marker := func(body string) synapse.AssistantMessage {
		return text("```json\n" + body + "\n```")
	}

	t.Run("unknown tool still completes the turn", func(t *testing.T) {
		t.Parallel()
		exec, tools := newDesk(t)
		provider, _ := scripted(t,
			marker(`{"name": "unknown_tool", "args": {}}`),
			text("final"),
		)
		session := synapse.NewSession(fx.SystemPrompt)
		loop := agent.New(provider, goldmark.MarkerExtractor{}, exec, tools)

		reply, err := loop.ProcessTurn(context.Background(), session, "do something odd")
		require.NoError(t, err)
		assert.Equal(t, "final", reply)
		require.Equal(t, 4, session.Len())

		trm := session.Snapshot()[2].(synapse.ToolResultMessage)
		require.Len(t, trm.Results, 1)
		assert.True(t, trm.Results[0].Result.IsError())
		assert.Contains(t, trm.Results[0].Result.Payload, "unknown tool: unknown_tool")
	})

	t.Run("limit breach cites notional and limit", func(t *testing.T) {
		t.Parallel()
		exec, tools := newDesk(t)
		provider, reqs := scripted(t,
			marker(`{"name": "check-limits", "args": {"client_id": "ClientCorp", "notional_usd": 60000000}}`),
			text("ClientCorp is over its limit."),
		)
		session := synapse.NewSession(fx.SystemPrompt)
		loop := agent.New(provider, goldmark.MarkerExtractor{}, exec, tools)

		reply, err := loop.ProcessTurn(context.Background(), session, "check ClientCorp for 60M")
		require.NoError(t, err)
		assert.Equal(t, "ClientCorp is over its limit.", reply)

		trm := session.Snapshot()[2].(synapse.ToolResultMessage)
		require.Len(t, trm.Results, 1)
		var check fx.Check
		require.NoError(t, json.Unmarshal([]byte(trm.Results[0].Result.Payload), &check))
		assert.Equal(t, "failure", check.Status)
		assert.Equal(t, "Notional of 60,000,000.00 exceeds limit of 50,000,000.00 for ClientCorp.", check.Message)

		require.Len(t, *reqs, 2)
		sent := (*reqs)[1].Messages[2].(synapse.ToolResultMessage)
		assert.Contains(t, sent.Results[0].EmbeddedText(), "exceeds limit")
	})
}

// anthropicReplies serves one canned SSE reply per request, in order, and
// records each request body.
func anthropicReplies(t *testing.T, replies ...[]string) (*httptest.Server, func() [][]byte) {
	t.Helper()
	var (
		mu     sync.Mutex
		bodies [][]byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, body)
		n := len(bodies)
		mu.Unlock()
		if n > len(replies) {
			t.Errorf("unexpected model call %d", n)
			http.Error(w, "no more replies", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range replies[n-1] {
			fmt.Fprint(w, line)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, func() [][]byte {
		mu.Lock()
		defer mu.Unlock()
		return bodies
	}
}

func sse(event, data string) string {
	return fmt.Sprintf("event: %s\ndata: %s\n\n", event, data)
}

const sseStart = `{"type":"message_start","message":{"id":"msg_1","role":"assistant","content":[],"usage":{"input_tokens":10,"output_tokens":1}}}`

func sseText(s string) []string {
	return []string{
		sse("message_start", sseStart),
		sse("content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`),
		sse("content_block_delta", fmt.Sprintf(`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":%q}}`, s)),
		sse("content_block_stop", `{"type":"content_block_stop","index":0}`),
		sse("message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":5}}`),
		sse("message_stop", `{"type":"message_stop"}`),
	}
}

func TestLoop_ProcessTurn_TruncatedNativeArguments(t *testing.T) {
	t.Parallel()

	truncated := []string{
		sse("message_start", sseStart),
		sse("content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"tu_1","name":"record-audit","input":{}}}`),
		sse("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{\"trade_json\": {\"client_id\": \"Cli"}}`),
		sse("content_block_stop", `{"type":"content_block_stop","index":0}`),
		sse("message_delta", `{"type":"message_delta","delta":{"stop_reason":"max_tokens"},"usage":{"output_tokens":1024}}`),
		sse("message_stop", `{"type":"message_stop"}`),
	}
	srv, bodies := anthropicReplies(t, truncated, sseText("Please resend the trade."), sseText("Booked."))

	exec, tools := newDesk(t)
	provider := anthropic.New("test-key", anthropic.WithBaseURL(srv.URL))
	loop := agent.New(provider, synapse.NativeExtractor{}, exec, tools)
	session := synapse.NewSession(fx.SystemPrompt)

	reply, err := loop.ProcessTurn(context.Background(), session, "book 10M USDGBP 3M for ClientCorp")
	require.NoError(t, err)
	assert.Equal(t, "Please resend the trade.", reply)

	trm := session.Snapshot()[2].(synapse.ToolResultMessage)
	require.Len(t, trm.Results, 1)
	assert.True(t, trm.Results[0].Result.IsError())
	assert.Contains(t, trm.Results[0].Result.Payload, "malformed json")

	reply, err = loop.ProcessTurn(context.Background(), session, "try again")
	require.NoError(t, err)
	assert.Equal(t, "Booked.", reply)

	sent := bodies()
	require.Len(t, sent, 3)
	for _, body := range sent[1:] {
		var req struct {
			Messages []struct {
				Content []map[string]any `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.Unmarshal(body, &req))
		call := req.Messages[1].Content[0]
		assert.Equal(t, "tool_use", call["type"])
		assert.Equal(t, map[string]any{}, call["input"])
	}

	data, err := synjson.MarshalSession(session)
	require.NoError(t, err)
	restored, err := synjson.UnmarshalSession(data)
	require.NoError(t, err)
	assert.Equal(t, session.Len(), restored.Len())
}
