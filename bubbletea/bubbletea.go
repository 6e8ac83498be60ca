// Package bubbletea provides a Bubble Tea TUI for chatting with the FX desk
// assistant.
package bubbletea

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/synapse"
)

// AgentFunc runs one trader turn on session. The onEvent callback is called
// for each streaming event and tool result. The function blocks until the
// turn completes or the context is cancelled.
type AgentFunc func(ctx context.Context, session *synapse.Session, text string, onEvent func(synapse.Event)) error

// Run creates and runs the Bubble Tea TUI program. It blocks until the program
// exits. When ctx is cancelled the program quits.
func Run(ctx context.Context, m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen())
	go func() {
		<-ctx.Done()
		p.Quit()
	}()
	_, err := p.Run()
	return err
}

// StreamEventMsg wraps a streaming event for delivery to the Bubble Tea model.
type StreamEventMsg struct {
	Event synapse.Event
}

// AgentDoneMsg signals that the turn has completed.
type AgentDoneMsg struct {
	Err error
}
