package json

import (
	"encoding/json"
	"fmt"

	"github.com/fwojciec/synapse"
)

// contentBlock is the JSON representation of a ContentBlock with a type discriminator.
type contentBlock struct {
	Type      string           `json:"type"`
	Text      *string          `json:"text,omitempty"`
	Thinking  *string          `json:"thinking,omitempty"`
	ID        *string          `json:"id,omitempty"`
	Name      *string          `json:"name,omitempty"`
	Arguments *json.RawMessage `json:"arguments,omitempty"`
}

func marshalContentBlocks(blocks []synapse.ContentBlock) ([]contentBlock, error) {
	result := make([]contentBlock, len(blocks))
	for i, b := range blocks {
		cb, err := marshalContentBlock(b)
		if err != nil {
			return nil, fmt.Errorf("content block %d: %w", i, err)
		}
		result[i] = cb
	}
	return result, nil
}

func marshalContentBlock(b synapse.ContentBlock) (contentBlock, error) {
	switch v := b.(type) {
	case synapse.TextBlock:
		return contentBlock{Type: "text", Text: &v.Text}, nil
	case synapse.ThinkingBlock:
		return contentBlock{Type: "thinking", Thinking: &v.Thinking}, nil
	case synapse.ToolCallBlock:
		args := v.Arguments
		if !json.Valid(args) {
			args = synapse.ToolArguments(string(args))
		}
		return contentBlock{Type: "tool_call", ID: &v.ID, Name: &v.Name, Arguments: &args}, nil
	default:
		return contentBlock{}, fmt.Errorf("unknown content block type: %T", b)
	}
}

func unmarshalContentBlocks(dtos []contentBlock) ([]synapse.ContentBlock, error) {
	result := make([]synapse.ContentBlock, len(dtos))
	for i, dto := range dtos {
		b, err := unmarshalContentBlock(dto)
		if err != nil {
			return nil, fmt.Errorf("content block %d: %w", i, err)
		}
		result[i] = b
	}
	return result, nil
}

func unmarshalContentBlock(dto contentBlock) (synapse.ContentBlock, error) {
	switch dto.Type {
	case "text":
		return synapse.TextBlock{Text: deref(dto.Text)}, nil
	case "thinking":
		return synapse.ThinkingBlock{Thinking: deref(dto.Thinking)}, nil
	case "tool_call":
		var args json.RawMessage
		if dto.Arguments != nil {
			args = *dto.Arguments
		}
		return synapse.ToolCallBlock{ID: deref(dto.ID), Name: deref(dto.Name), Arguments: args}, nil
	default:
		return nil, fmt.Errorf("unknown content block type: %q", dto.Type)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
