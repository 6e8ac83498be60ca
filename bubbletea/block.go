package bubbletea

import tea "github.com/charmbracelet/bubbletea"

// MessageBlock is one renderable element of the transcript. View takes the
// width so the root model owns layout.
type MessageBlock interface {
	Update(tea.Msg) (MessageBlock, tea.Cmd)
	View(width int) string
}

// ToggleMsg flips a collapsible block between collapsed and expanded.
type ToggleMsg struct{}
