package bubbletea

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/synapse"
)

var _ MessageBlock = (*ToolCallBlock)(nil)

// ToolCallBlock renders a tool request with a collapsible argument view.
type ToolCallBlock struct {
	name      string
	id        string
	args      strings.Builder
	collapsed bool
	styles    Styles
}

// NewToolCallBlock creates a ToolCallBlock that starts collapsed.
func NewToolCallBlock(name, id string, styles Styles) *ToolCallBlock {
	return &ToolCallBlock{name: name, id: id, collapsed: true, styles: styles}
}

// ID returns the tool call ID; it is empty for marker calls.
func (b *ToolCallBlock) ID() string { return b.id }

// AppendArgs adds an argument delta.
func (b *ToolCallBlock) AppendArgs(text string) {
	b.args.WriteString(text)
}

// FinalizeWithCall applies the assembled call. Providers that send whole
// calls emit no deltas, so the arguments arrive only here.
func (b *ToolCallBlock) FinalizeWithCall(call synapse.ToolCallBlock) {
	if b.args.Len() == 0 && len(call.Arguments) > 0 {
		b.args.WriteString(call.RawArguments())
	}
}

func (b *ToolCallBlock) Update(msg tea.Msg) (MessageBlock, tea.Cmd) {
	if _, ok := msg.(ToggleMsg); ok {
		b.collapsed = !b.collapsed
	}
	return b, nil
}

func (b *ToolCallBlock) View(width int) string {
	indicator := "▶"
	if !b.collapsed {
		indicator = "▼"
	}
	header := b.styles.ToolCall.Render(indicator + " " + b.name)
	if b.collapsed || b.args.Len() == 0 {
		return header
	}
	return header + "\n" + b.styles.Muted.Width(width).Render(b.args.String())
}
