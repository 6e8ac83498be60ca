package gemini_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"strings"
	"testing"

	"github.com/fwojciec/synapse"
	"github.com/fwojciec/synapse/gemini"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func chunksOf(chunks ...*genai.GenerateContentResponse) func(func(*genai.GenerateContentResponse, error) bool) {
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		for _, c := range chunks {
			if !yield(c, nil) {
				return
			}
		}
	}
}

func chunk(finish genai.FinishReason, parts ...*genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Role: "model", Parts: parts},
			FinishReason: finish,
		}},
	}
}

func collect(t *testing.T, s synapse.Stream) []synapse.Event {
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

func TestStream_Text(t *testing.T) {
	t.Parallel()
	last := chunk(genai.FinishReasonStop, &genai.Part{Text: " world"})
	last.UsageMetadata = &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 10, CandidatesTokenCount: 8}

	s := gemini.NewStreamFromIter(context.Background(), chunksOf(
		chunk("", &genai.Part{Text: "Hello"}),
		nil,
		&genai.GenerateContentResponse{},
		last,
	))
	assert.Equal(t, []synapse.Event{
		synapse.EventTextDelta{Delta: "Hello"},
		synapse.EventTextDelta{Delta: " world"},
	}, collect(t, s))
	assert.Equal(t, synapse.StreamStateComplete, s.State())

	msg, err := s.Message()
	require.NoError(t, err)
	assert.Equal(t, []synapse.ContentBlock{synapse.TextBlock{Text: "Hello world"}}, msg.Content)
	assert.Equal(t, synapse.StopEndTurn, msg.StopReason)
	assert.Equal(t, "STOP", msg.RawStopReason)
	assert.Equal(t, synapse.Usage{InputTokens: 10, OutputTokens: 8}, msg.Usage)
}

func TestStream_ThinkingThenText(t *testing.T) {
	t.Parallel()
	s := gemini.NewStreamFromIter(context.Background(), chunksOf(
		chunk("", &genai.Part{Text: "check ", Thought: true}, &genai.Part{Thought: true}),
		chunk("", &genai.Part{Text: "limits", Thought: true}, &genai.Part{Text: "Done."}),
	))
	assert.Equal(t, []synapse.Event{
		synapse.EventThinkingDelta{Delta: "check "},
		synapse.EventThinkingDelta{Delta: "limits"},
		synapse.EventTextDelta{Delta: "Done."},
	}, collect(t, s))

	msg, err := s.Message()
	require.NoError(t, err)
	assert.Equal(t, []synapse.ContentBlock{
		synapse.ThinkingBlock{Thinking: "check limits"},
		synapse.TextBlock{Text: "Done."},
	}, msg.Content)
	assert.Equal(t, "end_turn", msg.RawStopReason)
}

func TestStream_ToolCalls(t *testing.T) {
	t.Parallel()
	s := gemini.NewStreamFromIter(context.Background(), chunksOf(chunk(genai.FinishReasonStop,
		&genai.Part{FunctionCall: &genai.FunctionCall{ID: "fc_1", Name: "check-limits", Args: map[string]any{"client_id": "ClientCorp"}}},
		&genai.Part{FunctionCall: &genai.FunctionCall{Name: "desk-axe"}},
	)))
	events := collect(t, s)
	require.Len(t, events, 4)

	first := synapse.ToolCallBlock{ID: "fc_1", Name: "check-limits", Arguments: json.RawMessage(`{"client_id":"ClientCorp"}`)}
	assert.Equal(t, synapse.EventToolCallBegin{ID: "fc_1", Name: "check-limits"}, events[0])
	assert.Equal(t, synapse.EventToolCallEnd{Call: first}, events[1])

	generated := events[3].(synapse.EventToolCallEnd).Call
	assert.True(t, strings.HasPrefix(generated.ID, "call_"))
	assert.Equal(t, json.RawMessage("{}"), generated.Arguments)
	assert.Equal(t, generated.ID, events[2].(synapse.EventToolCallBegin).ID)

	msg, err := s.Message()
	require.NoError(t, err)
	assert.Equal(t, synapse.StopToolUse, msg.StopReason)
	calls, err := synapse.NativeExtractor{}.Extract(msg)
	require.NoError(t, err)
	assert.Equal(t, []synapse.ToolCallBlock{first, generated}, calls)
}

func TestStream_Usage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		usage *genai.GenerateContentResponseUsageMetadata
		want  synapse.Usage
	}{
		{
			name:  "cached input is subtracted",
			usage: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 210, CandidatesTokenCount: 5, CachedContentTokenCount: 200},
			want:  synapse.Usage{InputTokens: 10, OutputTokens: 5, CacheReadTokens: 200},
		},
		{
			name:  "clamped at zero",
			usage: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 5, CandidatesTokenCount: 3, CachedContentTokenCount: 100},
			want:  synapse.Usage{OutputTokens: 3, CacheReadTokens: 100},
		},
		{
			name:  "thoughts count as output",
			usage: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 5, CandidatesTokenCount: 3, ThoughtsTokenCount: 4},
			want:  synapse.Usage{InputTokens: 5, OutputTokens: 7},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := chunk(genai.FinishReasonStop, &genai.Part{Text: "Hi"})
			c.UsageMetadata = tt.usage
			s := gemini.NewStreamFromIter(context.Background(), chunksOf(c))
			collect(t, s)
			msg, err := s.Message()
			require.NoError(t, err)
			assert.Equal(t, tt.want, msg.Usage)
		})
	}
}

func TestStream_StopReasons(t *testing.T) {
	t.Parallel()

	tests := []struct {
		finish genai.FinishReason
		want   synapse.StopReason
	}{
		{genai.FinishReasonMaxTokens, synapse.StopLength},
		{genai.FinishReasonSafety, synapse.StopUnknown},
	}
	for _, tt := range tests {
		t.Run(string(tt.finish), func(t *testing.T) {
			t.Parallel()
			s := gemini.NewStreamFromIter(context.Background(), chunksOf(chunk(tt.finish, &genai.Part{Text: "x"})))
			collect(t, s)
			msg, err := s.Message()
			require.NoError(t, err)
			assert.Equal(t, tt.want, msg.StopReason)
			assert.Equal(t, string(tt.finish), msg.RawStopReason)
		})
	}
}

func TestStream_Failures(t *testing.T) {
	t.Parallel()

	t.Run("iterator error", func(t *testing.T) {
		t.Parallel()
		s := gemini.NewStreamFromIter(context.Background(), func(yield func(*genai.GenerateContentResponse, error) bool) {
			yield(nil, assert.AnError)
		})
		_, err := s.Next()
		require.Error(t, err)
		assert.True(t, errors.Is(err, assert.AnError))
		assert.Equal(t, synapse.StreamStateError, s.State())
		msg, _ := s.Message()
		assert.Equal(t, synapse.StopError, msg.StopReason)

		_, again := s.Next()
		assert.Equal(t, err, again)
	})

	t.Run("prompt blocked", func(t *testing.T) {
		t.Parallel()
		s := gemini.NewStreamFromIter(context.Background(), chunksOf(&genai.GenerateContentResponse{
			PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety},
		}))
		_, err := s.Next()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "prompt blocked")
		msg, _ := s.Message()
		assert.Equal(t, synapse.StopError, msg.StopReason)
		assert.Equal(t, "SAFETY", msg.RawStopReason)
	})

	t.Run("unencodable arguments", func(t *testing.T) {
		t.Parallel()
		s := gemini.NewStreamFromIter(context.Background(), chunksOf(chunk(genai.FinishReasonStop,
			&genai.Part{FunctionCall: &genai.FunctionCall{ID: "x", Name: "price-forward", Args: map[string]any{"v": math.NaN()}}},
		)))
		_, err := s.Next()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid tool call arguments for price-forward")
	})

	t.Run("canceled context", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		s := gemini.NewStreamFromIter(ctx, chunksOf())
		_, err := s.Next()
		require.True(t, errors.Is(err, context.Canceled))
		msg, _ := s.Message()
		assert.Equal(t, synapse.StopAborted, msg.StopReason)
	})
}

func TestStream_Lifecycle(t *testing.T) {
	t.Parallel()

	s := gemini.NewStreamFromIter(context.Background(), chunksOf(
		chunk("", &genai.Part{Text: "a"}),
		chunk(genai.FinishReasonStop, &genai.Part{Text: "b"}),
	))
	assert.Equal(t, synapse.StreamStateNew, s.State())
	_, err := s.Message()
	assert.True(t, errors.Is(err, synapse.ErrStreamNotReady))

	_, err = s.Next()
	require.NoError(t, err)
	assert.Equal(t, synapse.StreamStateStreaming, s.State())

	require.NoError(t, s.Close())
	assert.Equal(t, synapse.StreamStateClosed, s.State())
	msg, _ := s.Message()
	assert.Equal(t, synapse.StopAborted, msg.StopReason)
	assert.Equal(t, "a", msg.Text())

	_, err = s.Next()
	assert.True(t, errors.Is(err, synapse.ErrStreamClosed))
}
