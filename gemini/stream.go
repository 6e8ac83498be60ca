package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"

	"github.com/fwojciec/synapse"
	"github.com/google/uuid"
	"google.golang.org/genai"
)

// Interface compliance check.
var _ synapse.Stream = (*stream)(nil)

// stream adapts the SDK's push iterator to the pull-based Stream. A chunk
// can carry several parts, so events are queued and handed out one per
// Next call.
type stream struct {
	ctx     context.Context
	pull    func() (*genai.GenerateContentResponse, error, bool)
	stop    func()
	state   synapse.StreamState
	msg     synapse.AssistantMessage
	pending []synapse.Event
	calls   int
	finish  genai.FinishReason
	err     error
}

// NewStreamFromIter wraps a GenerateContentStream iterator.
func NewStreamFromIter(ctx context.Context, seq iter.Seq2[*genai.GenerateContentResponse, error]) synapse.Stream {
	pull, stop := iter.Pull2(seq)
	return &stream{
		ctx:   ctx,
		pull:  pull,
		stop:  stop,
		state: synapse.StreamStateNew,
	}
}

func (s *stream) Next() (synapse.Event, error) {
	switch s.state {
	case synapse.StreamStateComplete:
		return nil, io.EOF
	case synapse.StreamStateError:
		return nil, s.err
	case synapse.StreamStateClosed:
		return nil, fmt.Errorf("gemini: %w", synapse.ErrStreamClosed)
	}

	for len(s.pending) == 0 {
		if err := s.ctx.Err(); err != nil {
			s.fail(fmt.Errorf("gemini: %w", err))
			return nil, s.err
		}
		chunk, err, ok := s.pull()
		if !ok {
			s.finalize()
			return nil, io.EOF
		}
		s.state = synapse.StreamStateStreaming
		if err != nil {
			s.fail(fmt.Errorf("gemini: %w", err))
			return nil, s.err
		}
		if err := s.process(chunk); err != nil {
			s.fail(err)
			return nil, s.err
		}
	}

	evt := s.pending[0]
	s.pending = s.pending[1:]
	return evt, nil
}

func (s *stream) State() synapse.StreamState { return s.state }

func (s *stream) Message() (synapse.AssistantMessage, error) {
	if s.state == synapse.StreamStateNew {
		return synapse.AssistantMessage{}, fmt.Errorf("gemini: %w", synapse.ErrStreamNotReady)
	}
	return s.msg, nil
}

func (s *stream) Close() error {
	if s.state != synapse.StreamStateComplete && s.state != synapse.StreamStateError {
		s.state = synapse.StreamStateClosed
		s.msg.StopReason = synapse.StopAborted
		s.msg.RawStopReason = string(synapse.StopAborted)
	}
	s.stop()
	return nil
}

func (s *stream) fail(err error) {
	s.state = synapse.StreamStateError
	s.err = err
	s.msg.StopReason = synapse.StopError
	if s.ctx.Err() != nil {
		s.msg.StopReason = synapse.StopAborted
	}
	s.msg.RawStopReason = string(s.msg.StopReason)
}

func (s *stream) process(chunk *genai.GenerateContentResponse) error {
	if chunk == nil {
		return nil
	}
	if u := chunk.UsageMetadata; u != nil {
		// Usage is cumulative; the last chunk wins.
		cached := int(u.CachedContentTokenCount)
		s.msg.Usage.InputTokens = max(int(u.PromptTokenCount)-cached, 0)
		s.msg.Usage.CacheReadTokens = cached
		s.msg.Usage.OutputTokens = int(u.CandidatesTokenCount) + int(u.ThoughtsTokenCount)
	}
	if len(chunk.Candidates) == 0 {
		if fb := chunk.PromptFeedback; fb != nil && fb.BlockReason != "" {
			err := fmt.Errorf("gemini: prompt blocked: %s", fb.BlockReason)
			s.fail(err)
			s.msg.RawStopReason = string(fb.BlockReason)
			return err
		}
		return nil
	}

	cand := chunk.Candidates[0]
	if cand.FinishReason != "" {
		s.finish = cand.FinishReason
	}
	if cand.Content == nil {
		return nil
	}
	for _, part := range cand.Content.Parts {
		if err := s.processPart(part); err != nil {
			return err
		}
	}
	return nil
}

func (s *stream) processPart(p *genai.Part) error {
	switch {
	case p == nil:
	case p.FunctionCall != nil:
		call, err := s.toolCall(p.FunctionCall)
		if err != nil {
			return err
		}
		s.msg.Content = append(s.msg.Content, call)
		s.pending = append(s.pending,
			synapse.EventToolCallBegin{ID: call.ID, Name: call.Name},
			synapse.EventToolCallEnd{Call: call},
		)
	case p.Thought:
		if p.Text == "" {
			return nil
		}
		if n := len(s.msg.Content); n > 0 {
			if tb, ok := s.msg.Content[n-1].(synapse.ThinkingBlock); ok {
				s.msg.Content[n-1] = synapse.ThinkingBlock{Thinking: tb.Thinking + p.Text}
				s.pending = append(s.pending, synapse.EventThinkingDelta{Delta: p.Text})
				return nil
			}
		}
		s.msg.Content = append(s.msg.Content, synapse.ThinkingBlock{Thinking: p.Text})
		s.pending = append(s.pending, synapse.EventThinkingDelta{Delta: p.Text})
	case p.Text != "":
		if n := len(s.msg.Content); n > 0 {
			if tb, ok := s.msg.Content[n-1].(synapse.TextBlock); ok {
				s.msg.Content[n-1] = synapse.TextBlock{Text: tb.Text + p.Text}
				s.pending = append(s.pending, synapse.EventTextDelta{Delta: p.Text})
				return nil
			}
		}
		s.msg.Content = append(s.msg.Content, synapse.TextBlock{Text: p.Text})
		s.pending = append(s.pending, synapse.EventTextDelta{Delta: p.Text})
	}
	return nil
}

// toolCall converts a FunctionCall. Gemini does not always send call IDs,
// and results are correlated by ID, so a missing one is generated.
func (s *stream) toolCall(fc *genai.FunctionCall) (synapse.ToolCallBlock, error) {
	s.calls++
	id := fc.ID
	if id == "" {
		id = "call_" + uuid.NewString()
	}
	args := json.RawMessage("{}")
	if fc.Args != nil {
		b, err := json.Marshal(fc.Args)
		if err != nil {
			return synapse.ToolCallBlock{}, fmt.Errorf("gemini: invalid tool call arguments for %s: %w", fc.Name, err)
		}
		args = b
	}
	return synapse.ToolCallBlock{ID: id, Name: fc.Name, Arguments: args}, nil
}

func (s *stream) finalize() {
	s.state = synapse.StreamStateComplete
	switch s.finish {
	case "":
		s.msg.StopReason = synapse.StopEndTurn
		if s.calls > 0 {
			s.msg.StopReason = synapse.StopToolUse
		}
		s.msg.RawStopReason = string(s.msg.StopReason)
		return
	case genai.FinishReasonStop:
		s.msg.StopReason = synapse.StopEndTurn
		if s.calls > 0 {
			s.msg.StopReason = synapse.StopToolUse
		}
	case genai.FinishReasonMaxTokens:
		s.msg.StopReason = synapse.StopLength
	default:
		s.msg.StopReason = synapse.StopUnknown
	}
	s.msg.RawStopReason = string(s.finish)
}
