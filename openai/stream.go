package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fwojciec/synapse"
	goopenai "github.com/sashabaranov/go-openai"
)

// Interface compliance check.
var _ synapse.Stream = (*stream)(nil)

// partialCall accumulates one streamed tool call, keyed by its index.
type partialCall struct {
	id   string
	name string
	args strings.Builder
}

type stream struct {
	ctx     context.Context
	resp    *goopenai.ChatCompletionStream
	state   synapse.StreamState
	text    strings.Builder
	calls   map[int]*partialCall
	pending []synapse.Event
	msg     synapse.AssistantMessage
	done    bool
	err     error
}

func newStream(ctx context.Context, resp *goopenai.ChatCompletionStream) *stream {
	return &stream{
		ctx:   ctx,
		resp:  resp,
		state: synapse.StreamStateNew,
		calls: make(map[int]*partialCall),
	}
}

func (s *stream) Next() (synapse.Event, error) {
	switch s.state {
	case synapse.StreamStateComplete:
		return nil, io.EOF
	case synapse.StreamStateError:
		return nil, s.err
	case synapse.StreamStateClosed:
		return nil, fmt.Errorf("openai: %w", synapse.ErrStreamClosed)
	}

	for len(s.pending) == 0 {
		if s.done {
			s.state = synapse.StreamStateComplete
			return nil, io.EOF
		}
		chunk, err := s.resp.Recv()
		if errors.Is(err, io.EOF) {
			s.done = true
			s.finish()
			continue
		}
		if err != nil {
			s.fail(fmt.Errorf("openai: %w", err))
			return nil, s.err
		}
		s.state = synapse.StreamStateStreaming
		s.process(chunk)
	}

	evt := s.pending[0]
	s.pending = s.pending[1:]
	return evt, nil
}

func (s *stream) process(chunk goopenai.ChatCompletionStreamResponse) {
	if u := chunk.Usage; u != nil {
		cached := 0
		if u.PromptTokensDetails != nil {
			cached = u.PromptTokensDetails.CachedTokens
		}
		s.msg.Usage = synapse.Usage{
			InputTokens:     max(u.PromptTokens-cached, 0),
			OutputTokens:    u.CompletionTokens,
			CacheReadTokens: cached,
		}
	}
	if len(chunk.Choices) == 0 {
		return
	}
	choice := chunk.Choices[0]
	if d := choice.Delta.Content; d != "" {
		s.text.WriteString(d)
		s.pending = append(s.pending, synapse.EventTextDelta{Delta: d})
	}
	for _, tc := range choice.Delta.ToolCalls {
		idx := 0
		if tc.Index != nil {
			idx = *tc.Index
		}
		pc, ok := s.calls[idx]
		if !ok {
			pc = &partialCall{}
			s.calls[idx] = pc
		}
		if tc.ID != "" {
			pc.id = tc.ID
		}
		if tc.Function.Name != "" {
			pc.name = tc.Function.Name
		}
		if !ok {
			s.pending = append(s.pending, synapse.EventToolCallBegin{ID: pc.id, Name: pc.name})
		}
		if a := tc.Function.Arguments; a != "" {
			pc.args.WriteString(a)
			s.pending = append(s.pending, synapse.EventToolCallDelta{ID: pc.id, Delta: a})
		}
	}
	if choice.FinishReason != "" {
		s.msg.RawStopReason = string(choice.FinishReason)
		s.msg.StopReason = mapFinishReason(choice.FinishReason)
	}
}

// finish assembles the message and queues one end event per tool call in
// index order.
func (s *stream) finish() {
	s.msg.Content = s.content()
	for _, b := range s.msg.Content {
		if call, ok := b.(synapse.ToolCallBlock); ok {
			s.pending = append(s.pending, synapse.EventToolCallEnd{Call: call})
		}
	}
	if s.msg.StopReason == "" {
		s.msg.StopReason = synapse.StopEndTurn
		s.msg.RawStopReason = string(synapse.StopEndTurn)
	}
}

func (s *stream) content() []synapse.ContentBlock {
	var blocks []synapse.ContentBlock
	if s.text.Len() > 0 {
		blocks = append(blocks, synapse.TextBlock{Text: s.text.String()})
	}
	idx := make([]int, 0, len(s.calls))
	for i := range s.calls {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	for _, i := range idx {
		pc := s.calls[i]
		blocks = append(blocks, synapse.ToolCallBlock{ID: pc.id, Name: pc.name, Arguments: synapse.ToolArguments(pc.args.String())})
	}
	return blocks
}

func (s *stream) State() synapse.StreamState { return s.state }

func (s *stream) Message() (synapse.AssistantMessage, error) {
	if s.state == synapse.StreamStateNew {
		return synapse.AssistantMessage{}, fmt.Errorf("openai: %w", synapse.ErrStreamNotReady)
	}
	msg := s.msg
	if s.state != synapse.StreamStateComplete {
		msg.Content = s.content()
	}
	return msg, nil
}

func (s *stream) Close() error {
	if s.state != synapse.StreamStateComplete && s.state != synapse.StreamStateError {
		s.state = synapse.StreamStateClosed
		s.msg.StopReason = synapse.StopAborted
		s.msg.RawStopReason = string(synapse.StopAborted)
	}
	return s.resp.Close()
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

func mapFinishReason(r goopenai.FinishReason) synapse.StopReason {
	switch r {
	case goopenai.FinishReasonStop:
		return synapse.StopEndTurn
	case goopenai.FinishReasonLength:
		return synapse.StopLength
	case goopenai.FinishReasonToolCalls, goopenai.FinishReasonFunctionCall:
		return synapse.StopToolUse
	default:
		return synapse.StopUnknown
	}
}
