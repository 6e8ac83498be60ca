package bubbletea

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/synapse"
	"github.com/fwojciec/synapse/goldmark"
)

var _ MessageBlock = (*AssistantTextBlock)(nil)

// AssistantTextBlock renders streamed reply text as markdown. The last
// rendering is cached per width until more text arrives.
type AssistantTextBlock struct {
	content strings.Builder
	theme   synapse.Theme

	cachedWidth int
	cached      string
	dirty       bool
}

// NewAssistantTextBlock creates a block for streaming reply text.
func NewAssistantTextBlock(theme synapse.Theme) *AssistantTextBlock {
	return &AssistantTextBlock{theme: theme, dirty: true}
}

// Append adds a text delta.
func (b *AssistantTextBlock) Append(text string) {
	b.content.WriteString(text)
	b.dirty = true
}

// Text returns the raw text received so far.
func (b *AssistantTextBlock) Text() string { return b.content.String() }

func (b *AssistantTextBlock) Update(tea.Msg) (MessageBlock, tea.Cmd) {
	return b, nil
}

func (b *AssistantTextBlock) View(width int) string {
	if !b.dirty && b.cachedWidth == width {
		return b.cached
	}
	raw := b.content.String()
	if hasUnclosedFence(raw) {
		// A fence still streaming is closed for display only.
		raw += "\n```"
	}
	b.cached = goldmark.Render(raw, width, b.theme)
	b.cachedWidth = width
	b.dirty = false
	return b.cached
}

// hasUnclosedFence reports an odd number of "```" runs in s.
func hasUnclosedFence(s string) bool {
	return strings.Count(s, "```")%2 == 1
}
