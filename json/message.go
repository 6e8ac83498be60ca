package json

import (
	"fmt"
	"time"

	"github.com/fwojciec/synapse"
)

// messageDTO is the JSON representation of a Message with a type discriminator.
type messageDTO struct {
	Type          string          `json:"type"`
	Content       []contentBlock  `json:"content,omitempty"`
	Results       []toolResultDTO `json:"results,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	StopReason    *string         `json:"stop_reason,omitempty"`
	RawStopReason *string         `json:"raw_stop_reason,omitempty"`
	Usage         *usageDTO       `json:"usage,omitempty"`
}

// toolResultDTO is one correlated result. An empty tool_call_id marks a
// result of an embedded marker call.
type toolResultDTO struct {
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"tool_name"`
	Status     string `json:"status"`
	Payload    string `json:"payload"`
}

func marshalMessage(msg synapse.Message) (messageDTO, error) {
	switch m := msg.(type) {
	case synapse.UserMessage:
		blocks, err := marshalContentBlocks(m.Content)
		if err != nil {
			return messageDTO{}, err
		}
		return messageDTO{
			Type:      "user",
			Content:   blocks,
			Timestamp: m.Timestamp,
		}, nil
	case synapse.AssistantMessage:
		blocks, err := marshalContentBlocks(m.Content)
		if err != nil {
			return messageDTO{}, err
		}
		sr := string(m.StopReason)
		return messageDTO{
			Type:          "assistant",
			Content:       blocks,
			Timestamp:     m.Timestamp,
			StopReason:    &sr,
			RawStopReason: &m.RawStopReason,
			Usage:         newUsageDTO(m.Usage),
		}, nil
	case synapse.ToolResultMessage:
		results := make([]toolResultDTO, len(m.Results))
		for i, r := range m.Results {
			results[i] = toolResultDTO{
				ToolCallID: r.ToolCallID,
				ToolName:   r.ToolName,
				Status:     string(r.Result.Status),
				Payload:    r.Result.Payload,
			}
		}
		return messageDTO{
			Type:      "tool_result",
			Results:   results,
			Timestamp: m.Timestamp,
		}, nil
	default:
		return messageDTO{}, fmt.Errorf("unknown message type: %T", msg)
	}
}

func unmarshalMessage(dto messageDTO) (synapse.Message, error) {
	switch dto.Type {
	case "user":
		blocks, err := unmarshalContentBlocks(dto.Content)
		if err != nil {
			return nil, err
		}
		return synapse.UserMessage{
			Content:   blocks,
			Timestamp: dto.Timestamp,
		}, nil
	case "assistant":
		blocks, err := unmarshalContentBlocks(dto.Content)
		if err != nil {
			return nil, err
		}
		var sr synapse.StopReason
		if dto.StopReason != nil {
			sr = synapse.StopReason(*dto.StopReason)
		}
		var rawSR string
		if dto.RawStopReason != nil {
			rawSR = *dto.RawStopReason
		}
		return synapse.AssistantMessage{
			Content:       blocks,
			StopReason:    sr,
			RawStopReason: rawSR,
			Usage:         dto.Usage.usage(),
			Timestamp:     dto.Timestamp,
		}, nil
	case "tool_result":
		results := make([]synapse.ToolResultBlock, len(dto.Results))
		for i, r := range dto.Results {
			status := synapse.ToolStatus(r.Status)
			if status != synapse.StatusSuccess && status != synapse.StatusError {
				return nil, fmt.Errorf("result %d: unknown status: %q", i, r.Status)
			}
			results[i] = synapse.ToolResultBlock{
				ToolCallID: r.ToolCallID,
				ToolName:   r.ToolName,
				Result:     synapse.ToolResult{Status: status, Payload: r.Payload},
			}
		}
		return synapse.ToolResultMessage{
			Results:   results,
			Timestamp: dto.Timestamp,
		}, nil
	default:
		return nil, fmt.Errorf("unknown message type: %q", dto.Type)
	}
}
