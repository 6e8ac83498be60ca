package anthropic

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fwojciec/synapse"
)

// Interface compliance check.
var _ synapse.Stream = (*stream)(nil)

// sseReader splits an SSE body into (event, data) frames.
type sseReader struct {
	scanner *bufio.Scanner
}

func newSSEReader(r io.Reader) *sseReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &sseReader{scanner: sc}
}

// next returns the next frame. io.EOF means the body ended cleanly between
// frames.
func (r *sseReader) next() (event, data string, err error) {
	var buf strings.Builder
	for r.scanner.Scan() {
		line := r.scanner.Text()
		switch {
		case line == "":
			if buf.Len() > 0 {
				return event, buf.String(), nil
			}
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if buf.Len() > 0 {
				buf.WriteByte('\n')
			}
			buf.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := r.scanner.Err(); err != nil {
		return "", "", err
	}
	if buf.Len() > 0 {
		return event, buf.String(), nil
	}
	return "", "", io.EOF
}

// block accumulates one content block by its SSE index.
type block struct {
	kind string
	id   string
	name string
	buf  strings.Builder
}

// stream implements [synapse.Stream] over an SSE response body.
type stream struct {
	ctx    context.Context
	body   io.ReadCloser
	sse    *sseReader
	state  synapse.StreamState
	msg    synapse.AssistantMessage
	blocks map[int]*block
	err    error
}

func newStream(ctx context.Context, body io.ReadCloser) *stream {
	return &stream{
		ctx:    ctx,
		body:   body,
		sse:    newSSEReader(body),
		state:  synapse.StreamStateNew,
		blocks: make(map[int]*block),
	}
}

// Next returns the next semantic event, or io.EOF after message_stop.
func (s *stream) Next() (synapse.Event, error) {
	switch s.state {
	case synapse.StreamStateComplete:
		return nil, io.EOF
	case synapse.StreamStateError:
		return nil, s.err
	case synapse.StreamStateClosed:
		return nil, fmt.Errorf("anthropic: %w", synapse.ErrStreamClosed)
	}

	for {
		name, data, err := s.sse.next()
		if err == io.EOF {
			s.fail(fmt.Errorf("anthropic: unexpected end of stream"))
			return nil, s.err
		}
		if err != nil {
			s.fail(fmt.Errorf("anthropic: %w", err))
			return nil, s.err
		}
		s.state = synapse.StreamStateStreaming

		evt, err := s.dispatch(name, []byte(data))
		if err != nil {
			s.fail(err)
			return nil, s.err
		}
		if s.state == synapse.StreamStateComplete {
			return nil, io.EOF
		}
		if evt != nil {
			return evt, nil
		}
	}
}

// State returns the current stream state.
func (s *stream) State() synapse.StreamState { return s.state }

// Message returns the message assembled so far.
func (s *stream) Message() (synapse.AssistantMessage, error) {
	if s.state == synapse.StreamStateNew {
		return synapse.AssistantMessage{}, fmt.Errorf("anthropic: %w", synapse.ErrStreamNotReady)
	}
	return s.msg, nil
}

// Close releases the response body. Closing before completion marks the
// message aborted.
func (s *stream) Close() error {
	if s.state != synapse.StreamStateComplete && s.state != synapse.StreamStateError {
		s.state = synapse.StreamStateClosed
		s.setStop(synapse.StopAborted)
	}
	return s.body.Close()
}

func (s *stream) fail(err error) {
	s.state = synapse.StreamStateError
	s.err = err
	if s.ctx.Err() != nil {
		s.setStop(synapse.StopAborted)
		return
	}
	s.setStop(synapse.StopError)
}

func (s *stream) setStop(r synapse.StopReason) {
	s.msg.StopReason = r
	s.msg.RawStopReason = string(r)
}

func (s *stream) dispatch(name string, data []byte) (synapse.Event, error) {
	switch name {
	case "message_start":
		var evt sseMessageStart
		if err := unmarshal(name, data, &evt); err != nil {
			return nil, err
		}
		u := evt.Message.Usage
		s.msg.Usage.InputTokens = u.InputTokens
		s.msg.Usage.OutputTokens = u.OutputTokens
		s.msg.Usage.CacheReadTokens = deref(u.CacheReadInputTokens, 0)
		s.msg.Usage.CacheWriteTokens = deref(u.CacheCreationInputTokens, 0)
		return nil, nil
	case "content_block_start":
		return s.blockStart(data)
	case "content_block_delta":
		return s.blockDelta(data)
	case "content_block_stop":
		return s.blockStop(data)
	case "message_delta":
		var evt sseMessageDelta
		if err := unmarshal(name, data, &evt); err != nil {
			return nil, err
		}
		// Usage in message_delta is cumulative.
		s.msg.Usage.OutputTokens = evt.Usage.OutputTokens
		s.msg.Usage.InputTokens = deref(evt.Usage.InputTokens, s.msg.Usage.InputTokens)
		s.msg.Usage.CacheReadTokens = deref(evt.Usage.CacheReadInputTokens, s.msg.Usage.CacheReadTokens)
		s.msg.Usage.CacheWriteTokens = deref(evt.Usage.CacheCreationInputTokens, s.msg.Usage.CacheWriteTokens)
		if evt.Delta.StopReason != nil {
			s.msg.RawStopReason = *evt.Delta.StopReason
			s.msg.StopReason = mapStopReason(*evt.Delta.StopReason)
		}
		return nil, nil
	case "message_stop":
		s.state = synapse.StreamStateComplete
		return nil, nil
	case "error":
		var evt sseError
		if err := unmarshal(name, data, &evt); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("anthropic: %s: %s", evt.Error.Type, evt.Error.Message)
	default:
		// ping and unknown events
		return nil, nil
	}
}

func (s *stream) blockStart(data []byte) (synapse.Event, error) {
	var evt sseContentBlockStart
	if err := unmarshal("content_block_start", data, &evt); err != nil {
		return nil, err
	}
	b := &block{kind: evt.ContentBlock.Type, id: evt.ContentBlock.ID, name: evt.ContentBlock.Name}
	s.blocks[evt.Index] = b
	for len(s.msg.Content) <= evt.Index {
		s.msg.Content = append(s.msg.Content, nil)
	}
	switch b.kind {
	case "tool_use":
		s.msg.Content[evt.Index] = synapse.ToolCallBlock{ID: b.id, Name: b.name}
		return synapse.EventToolCallBegin{ID: b.id, Name: b.name}, nil
	case "thinking":
		s.msg.Content[evt.Index] = synapse.ThinkingBlock{}
	default:
		s.msg.Content[evt.Index] = synapse.TextBlock{}
	}
	return nil, nil
}

func (s *stream) blockDelta(data []byte) (synapse.Event, error) {
	var evt sseContentBlockDelta
	if err := unmarshal("content_block_delta", data, &evt); err != nil {
		return nil, err
	}
	b, ok := s.blocks[evt.Index]
	if !ok {
		return nil, fmt.Errorf("anthropic: delta for unknown block index %d", evt.Index)
	}
	switch evt.Delta.Type {
	case "text_delta":
		b.buf.WriteString(evt.Delta.Text)
		s.msg.Content[evt.Index] = synapse.TextBlock{Text: b.buf.String()}
		return synapse.EventTextDelta{Delta: evt.Delta.Text}, nil
	case "thinking_delta":
		b.buf.WriteString(evt.Delta.Thinking)
		s.msg.Content[evt.Index] = synapse.ThinkingBlock{Thinking: b.buf.String()}
		return synapse.EventThinkingDelta{Delta: evt.Delta.Thinking}, nil
	case "input_json_delta":
		b.buf.WriteString(evt.Delta.PartialJSON)
		return synapse.EventToolCallDelta{ID: b.id, Delta: evt.Delta.PartialJSON}, nil
	}
	return nil, nil
}

func (s *stream) blockStop(data []byte) (synapse.Event, error) {
	var evt sseContentBlockStop
	if err := unmarshal("content_block_stop", data, &evt); err != nil {
		return nil, err
	}
	b, ok := s.blocks[evt.Index]
	if !ok {
		return nil, fmt.Errorf("anthropic: stop for unknown block index %d", evt.Index)
	}
	if b.kind != "tool_use" {
		return nil, nil
	}
	call := synapse.ToolCallBlock{ID: b.id, Name: b.name, Arguments: synapse.ToolArguments(b.buf.String())}
	s.msg.Content[evt.Index] = call
	return synapse.EventToolCallEnd{Call: call}, nil
}

func unmarshal(event string, data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("anthropic: parse %s: %w", event, err)
	}
	return nil
}

func deref(p *int, fallback int) int {
	if p == nil {
		return fallback
	}
	return *p
}

func mapStopReason(raw string) synapse.StopReason {
	switch raw {
	case "end_turn", "stop_sequence":
		return synapse.StopEndTurn
	case "max_tokens":
		return synapse.StopLength
	case "tool_use":
		return synapse.StopToolUse
	default:
		return synapse.StopUnknown
	}
}
