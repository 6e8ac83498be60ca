package synapse

import (
	"encoding/json"
	"strings"
	"time"
)

// Message is a sealed interface representing one turn of the transcript.
// Role() returns the turn's role without requiring a type switch.
type Message interface {
	isMessage()
	Role() Role
}

// UserMessage represents a message from the trader.
type UserMessage struct {
	Content   []ContentBlock
	Timestamp time.Time
}

func (UserMessage) isMessage() {}

// Role returns RoleUser.
func (UserMessage) Role() Role { return RoleUser }

// NewUserMessage returns a UserMessage with a single text block.
func NewUserMessage(text string) UserMessage {
	return UserMessage{
		Content:   []ContentBlock{TextBlock{Text: text}},
		Timestamp: time.Now(),
	}
}

// AssistantMessage represents a raw model reply.
type AssistantMessage struct {
	Content       []ContentBlock
	StopReason    StopReason
	RawStopReason string
	Usage         Usage
	Timestamp     time.Time
}

func (AssistantMessage) isMessage() {}

// Role returns RoleAssistant.
func (AssistantMessage) Role() Role { return RoleAssistant }

// Text concatenates the message's text blocks.
func (m AssistantMessage) Text() string {
	var b strings.Builder
	for _, block := range m.Content {
		if tb, ok := block.(TextBlock); ok {
			b.WriteString(tb.Text)
		}
	}
	return b.String()
}

// ToolResultMessage carries the results of one tool round. Native calls
// from a single reply are bundled into one message; the marker convention
// produces exactly one result with an empty ToolCallID.
type ToolResultMessage struct {
	Results   []ToolResultBlock
	Timestamp time.Time
}

func (ToolResultMessage) isMessage() {}

// Role returns RoleToolResult.
func (ToolResultMessage) Role() Role { return RoleToolResult }

// ToolResultBlock correlates a ToolResult with the request that produced it.
type ToolResultBlock struct {
	ToolCallID string
	ToolName   string
	Result     ToolResult
}

// ContentBlock is a sealed interface representing a block of content.
type ContentBlock interface {
	contentBlock()
}

// TextBlock contains text content.
type TextBlock struct {
	Text string
}

func (TextBlock) contentBlock() {}

// ThinkingBlock contains reasoning content some providers stream back.
type ThinkingBlock struct {
	Thinking string
}

func (ThinkingBlock) contentBlock() {}

// ToolCallBlock is a model-issued tool invocation request. ID is empty
// when the call was extracted from an embedded marker.
type ToolCallBlock struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

func (ToolCallBlock) contentBlock() {}

// ToolArguments turns streamed argument text into a ToolCallBlock payload.
// Blank text becomes an empty object. Text that is not valid JSON, such as
// arguments cut off by the token limit, is kept inside a JSON string so the
// block can always be re-encoded.
func ToolArguments(raw string) json.RawMessage {
	if strings.TrimSpace(raw) == "" {
		return json.RawMessage(`{}`)
	}
	if json.Valid([]byte(raw)) {
		return json.RawMessage(raw)
	}
	quoted, _ := json.Marshal(raw)
	return quoted
}

// RawArguments returns the argument text as the model sent it, unwrapping
// text that ToolArguments had to quote.
func (b ToolCallBlock) RawArguments() string {
	if !json.Valid(b.Arguments) {
		return string(b.Arguments)
	}
	var s string
	if json.Unmarshal(b.Arguments, &s) == nil {
		return s
	}
	return string(b.Arguments)
}

// ObjectArguments returns Arguments when it holds a JSON object and an
// empty object otherwise. Provider requests carry this form.
func (b ToolCallBlock) ObjectArguments() json.RawMessage {
	trimmed := strings.TrimSpace(string(b.Arguments))
	if strings.HasPrefix(trimmed, "{") && json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed)
	}
	return json.RawMessage(`{}`)
}

// Interface compliance checks.
var (
	_ Message = UserMessage{}
	_ Message = AssistantMessage{}
	_ Message = ToolResultMessage{}

	_ ContentBlock = TextBlock{}
	_ ContentBlock = ThinkingBlock{}
	_ ContentBlock = ToolCallBlock{}
)

// EmbeddedText renders a result without a call ID as the user text the
// model sees under the embedded-marker convention.
func (b ToolResultBlock) EmbeddedText() string {
	return "<tool_result>\n" + b.Result.Text() + "\n</tool_result>"
}
