package bubbletea_test

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/synapse"
	bt "github.com/fwojciec/synapse/bubbletea"
	"github.com/stretchr/testify/require"
)

// initModel creates a model and sends a WindowSizeMsg to initialize the viewport.
func initModel(t *testing.T, run bt.AgentFunc, session *synapse.Session) bt.Model {
	t.Helper()
	return initModelWithSize(t, run, session, 80, 24)
}

func initModelWithSize(t *testing.T, run bt.AgentFunc, session *synapse.Session, width, height int) bt.Model {
	t.Helper()
	if session == nil {
		session = synapse.NewSession("")
	}
	m := bt.New(run, session, synapse.DefaultTheme())
	return updateModel(t, m, tea.WindowSizeMsg{Width: width, Height: height})
}

// updateModel sends a message and returns the updated Model.
func updateModel(t *testing.T, m bt.Model, msg tea.Msg) bt.Model {
	t.Helper()
	updated, _ := m.Update(msg)
	model, ok := updated.(bt.Model)
	require.True(t, ok)
	return model
}

// events feeds stream events to m in order.
func events(t *testing.T, m bt.Model, evts ...synapse.Event) bt.Model {
	t.Helper()
	for _, e := range evts {
		m = updateModel(t, m, bt.StreamEventMsg{Event: e})
	}
	return m
}

// nopAgent is a mock agent that does nothing.
func nopAgent(context.Context, *synapse.Session, string, func(synapse.Event)) error {
	return nil
}
