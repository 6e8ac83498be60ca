package anthropic_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fwojciec/synapse"
	"github.com/fwojciec/synapse/anthropic"
	"github.com/stretchr/testify/require"
)

type sseEvent struct {
	event string
	data  string
}

func sseHandler(events ...sseEvent) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		for _, evt := range events {
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.event, evt.data)
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

const messageStart = `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","content":[],"model":"m","stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":10,"output_tokens":1}}}`

func textEvents(text string) []sseEvent {
	return []sseEvent{
		{"message_start", messageStart},
		{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`},
		{"ping", `{"type":"ping"}`},
		{"content_block_delta", fmt.Sprintf(`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":%q}}`, text)},
		{"content_block_stop", `{"type":"content_block_stop","index":0}`},
		{"message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":5}}`},
		{"message_stop", `{"type":"message_stop"}`},
	}
}

var hi = synapse.Request{Messages: []synapse.Message{synapse.NewUserMessage("Hi")}}

func streamFrom(t *testing.T, events ...sseEvent) synapse.Stream {
	t.Helper()
	srv := httptest.NewServer(sseHandler(events...))
	t.Cleanup(srv.Close)
	client := anthropic.New("test-key", anthropic.WithBaseURL(srv.URL))
	stream, err := client.Stream(context.Background(), hi)
	require.NoError(t, err)
	t.Cleanup(func() { stream.Close() })
	return stream
}

// captureRequest runs req against a server that records the body and
// answers with a short text reply.
func captureRequest(t *testing.T, req synapse.Request, opts ...anthropic.Option) map[string]any {
	t.Helper()
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		sseHandler(textEvents("ok")...)(w, r)
	}))
	t.Cleanup(srv.Close)

	client := anthropic.New("test-key", append([]anthropic.Option{anthropic.WithBaseURL(srv.URL)}, opts...)...)
	s, err := client.Stream(context.Background(), req)
	require.NoError(t, err)
	defer s.Close()

	var out map[string]any
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func collectEvents(t *testing.T, s synapse.Stream) []synapse.Event {
	t.Helper()
	var events []synapse.Event
	for {
		evt, err := s.Next()
		if err == io.EOF {
			return events
		}
		require.NoError(t, err)
		events = append(events, evt)
	}
}
