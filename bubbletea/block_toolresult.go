package bubbletea

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/synapse"
	"github.com/mattn/go-runewidth"
)

var _ MessageBlock = (*ToolResultBlock)(nil)

const maxPreviewWidth = 60

// ToolResultBlock renders a tool outcome. Successful results start
// collapsed to a one-line preview; failures are always expanded.
type ToolResultBlock struct {
	toolName  string
	result    synapse.ToolResult
	collapsed bool
	styles    Styles
}

// NewToolResultBlock creates a ToolResultBlock.
func NewToolResultBlock(toolName string, result synapse.ToolResult, styles Styles) *ToolResultBlock {
	return &ToolResultBlock{
		toolName:  toolName,
		result:    result,
		collapsed: !result.IsError(),
		styles:    styles,
	}
}

// IsError reports whether the call could not run.
func (b *ToolResultBlock) IsError() bool { return b.result.IsError() }

func (b *ToolResultBlock) Update(msg tea.Msg) (MessageBlock, tea.Cmd) {
	if _, ok := msg.(ToggleMsg); ok && !b.result.IsError() {
		b.collapsed = !b.collapsed
	}
	return b, nil
}

func (b *ToolResultBlock) View(width int) string {
	icon := b.styles.Success.Render("✓")
	if b.result.IsError() {
		icon = b.styles.Error.Render("✗")
	}
	name := b.toolName
	if name == "" {
		name = "tool"
	}
	text := b.result.Payload

	if b.collapsed {
		header := b.styles.ToolCall.Render("▶ "+name) + " " + icon
		if text != "" {
			header += "  " + runewidth.Truncate(firstLine(text), maxPreviewWidth, "…")
		}
		return header
	}
	header := b.styles.ToolCall.Render("▼ "+name) + " " + icon
	if text == "" {
		return header
	}
	body := b.styles.Muted.Width(width).Render(text)
	if b.result.IsError() {
		body = b.styles.Error.Width(width).Render(text)
	}
	return header + "\n" + body
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
