package bubbletea

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/synapse"
	"github.com/mattn/go-runewidth"
)

var _ tea.Model = Model{}

// Model is the Bubble Tea model for the chat TUI.
type Model struct {
	// Input is the text input component. Exported for test access.
	Input textinput.Model
	// Viewport is the scrollable transcript. Exported for test access.
	Viewport viewport.Model

	run     AgentFunc
	session *synapse.Session
	theme   synapse.Theme
	styles  Styles
	title   string

	blocks     []MessageBlock
	blockFocus int // index of focused collapsible block, -1 if none

	// Blocks receiving deltas in the current model call. A text or
	// thinking delta after a tool call starts a new reply.
	activeText     *AssistantTextBlock
	activeThinking *ThinkingBlock
	activeToolCall map[string]*ToolCallBlock
	hadToolCalls   bool

	running bool
	cancel  context.CancelFunc
	eventCh chan synapse.Event
	doneCh  chan error
	err     error
	ready   bool
	width   int
	usage   synapse.Usage // session total, recomputed between turns
}

// Option configures a Model.
type Option func(*Model)

// WithTitle sets the label shown at the start of the status line.
func WithTitle(title string) Option {
	return func(m *Model) { m.title = title }
}

// New creates a TUI Model for session.
func New(run AgentFunc, session *synapse.Session, theme synapse.Theme, opts ...Option) Model {
	ti := textinput.New()
	ti.Placeholder = "Ask the desk..."
	ti.Prompt = "> "
	ti.Focus()
	ti.CharLimit = 0

	m := Model{
		Input:          ti,
		run:            run,
		session:        session,
		theme:          theme,
		styles:         NewStyles(theme),
		blockFocus:     -1,
		activeToolCall: make(map[string]*ToolCallBlock),
	}
	for _, o := range opts {
		o(&m)
	}
	return m
}

// Running reports whether a turn is in flight.
func (m Model) Running() bool { return m.running }

// Err returns the last turn error, if any.
func (m Model) Err() error { return m.err }

// Blocks returns the rendered transcript blocks.
func (m Model) Blocks() []MessageBlock { return m.blocks }

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleWindowSize(msg), nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case StreamEventMsg:
		m = m.processEvent(msg.Event)
		m.refresh()
		if m.eventCh != nil {
			return m, listenForEvent(m.eventCh, m.doneCh)
		}
		return m, nil

	case AgentDoneMsg:
		m.running = false
		m.cancel = nil
		m.eventCh = nil
		m.doneCh = nil
		if msg.Err != nil && !errors.Is(msg.Err, context.Canceled) {
			m.err = msg.Err
			m.blocks = append(m.blocks, NewErrorBlock("Error: "+msg.Err.Error(), m.styles))
		}
		m.usage = sessionUsage(m.session)
		m = m.updateBlockFocus()
		m.refresh()
		cmd := m.Input.Focus()
		return m, cmd
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.Viewport, cmd = m.Viewport.Update(msg)
	cmds = append(cmds, cmd)
	if !m.running {
		m.Input, cmd = m.Input.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}
	var b strings.Builder
	b.WriteString(m.Viewport.View())
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n")
	b.WriteString(m.Input.View())
	return b.String()
}

func (m Model) handleWindowSize(msg tea.WindowSizeMsg) Model {
	// input, status line and the two newlines between sections
	vpHeight := max(msg.Height-4, 1)
	m.width = msg.Width

	if !m.ready {
		m.Viewport = viewport.New(msg.Width, vpHeight)
		m = m.renderSession()
		m.ready = true
	} else {
		m.Viewport.Width = msg.Width
		m.Viewport.Height = vpHeight
	}
	m.refresh()
	m.Input.Width = max(msg.Width-runewidth.StringWidth(m.Input.Prompt)-1, 1)
	return m
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		if m.running {
			if m.cancel != nil {
				m.cancel()
			}
			return m, nil
		}
		return m, tea.Quit

	case tea.KeyEnter:
		if m.running {
			return m, nil
		}
		text := strings.TrimSpace(m.Input.Value())
		if text == "" {
			return m, nil
		}
		return m.submitInput(text)

	case tea.KeyTab:
		if !m.running && m.blockFocus >= 0 {
			block, cmd := m.blocks[m.blockFocus].Update(ToggleMsg{})
			m.blocks[m.blockFocus] = block
			m.Viewport.SetContent(m.renderContent())
			return m, cmd
		}
		return m, nil

	case tea.KeyShiftTab:
		if !m.running {
			m = m.cycleFocusPrev()
			m.Viewport.SetContent(m.renderContent())
		}
		return m, nil
	}

	if m.running {
		return m, nil
	}
	// Character keys go only to the input so 'j' and 'k' type instead of
	// scrolling.
	var cmds []tea.Cmd
	var cmd tea.Cmd
	if msg.Type != tea.KeyRunes && msg.Type != tea.KeySpace {
		m.Viewport, cmd = m.Viewport.Update(msg)
		cmds = append(cmds, cmd)
	}
	m.Input, cmd = m.Input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// submitInput starts a turn. The agent appends the user message to the
// session itself.
func (m Model) submitInput(text string) (tea.Model, tea.Cmd) {
	m.Input.SetValue("")
	m.err = nil

	m.blocks = append(m.blocks, NewUserMessageBlock(text, m.styles))
	m.activeText = nil
	m.activeThinking = nil
	m.activeToolCall = make(map[string]*ToolCallBlock)
	m.hadToolCalls = false
	m.refresh()

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.eventCh = make(chan synapse.Event, 256)
	m.doneCh = make(chan error, 1)
	m.running = true
	m.Input.Blur()

	return m, tea.Batch(
		startAgent(ctx, m.run, m.session, text, m.eventCh, m.doneCh),
		listenForEvent(m.eventCh, m.doneCh),
	)
}

// renderSession creates blocks from the turns already in the session.
func (m Model) renderSession() Model {
	for _, msg := range m.session.Snapshot() {
		switch msg := msg.(type) {
		case synapse.UserMessage:
			for _, b := range msg.Content {
				if tb, ok := b.(synapse.TextBlock); ok {
					m.blocks = append(m.blocks, NewUserMessageBlock(tb.Text, m.styles))
				}
			}
		case synapse.AssistantMessage:
			for _, b := range msg.Content {
				switch cb := b.(type) {
				case synapse.TextBlock:
					block := NewAssistantTextBlock(m.theme)
					block.Append(cb.Text)
					m.blocks = append(m.blocks, block)
				case synapse.ThinkingBlock:
					block := NewThinkingBlock(m.styles)
					block.Append(cb.Thinking)
					m.blocks = append(m.blocks, block)
				case synapse.ToolCallBlock:
					block := NewToolCallBlock(cb.Name, cb.ID, m.styles)
					block.FinalizeWithCall(cb)
					m.blocks = append(m.blocks, block)
				}
			}
		case synapse.ToolResultMessage:
			for _, r := range msg.Results {
				m.blocks = append(m.blocks, NewToolResultBlock(r.ToolName, r.Result, m.styles))
			}
		}
	}
	m.usage = sessionUsage(m.session)
	return m.updateBlockFocus()
}

// sessionUsage sums the token usage of every reply. The session must not
// be in a turn.
func sessionUsage(s *synapse.Session) synapse.Usage {
	var u synapse.Usage
	for _, msg := range s.Snapshot() {
		if am, ok := msg.(synapse.AssistantMessage); ok {
			u = u.Add(am.Usage)
		}
	}
	return u
}

func (m *Model) refresh() {
	if !m.ready && m.Viewport.Width == 0 {
		return
	}
	m.Viewport.SetContent(m.renderContent())
	m.Viewport.GotoBottom()
}

func (m Model) renderContent() string {
	var b strings.Builder
	for i, block := range m.blocks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(block.View(m.Viewport.Width))
	}
	return b.String()
}

// processEvent routes a streaming event to its block.
func (m Model) processEvent(evt synapse.Event) Model {
	switch e := evt.(type) {
	case synapse.EventTextDelta:
		m.startReplyAfterTools()
		if m.activeText == nil {
			m.activeText = NewAssistantTextBlock(m.theme)
			m.blocks = append(m.blocks, m.activeText)
		}
		m.activeText.Append(e.Delta)
	case synapse.EventThinkingDelta:
		m.startReplyAfterTools()
		if m.activeThinking == nil {
			m.activeThinking = NewThinkingBlock(m.styles)
			m.blocks = append(m.blocks, m.activeThinking)
		}
		m.activeThinking.Append(e.Delta)
	case synapse.EventToolCallBegin:
		m.hadToolCalls = true
		b := NewToolCallBlock(e.Name, e.ID, m.styles)
		m.blocks = append(m.blocks, b)
		m.activeToolCall[e.ID] = b
	case synapse.EventToolCallDelta:
		if b, ok := m.activeToolCall[e.ID]; ok {
			b.AppendArgs(e.Delta)
		}
	case synapse.EventToolCallEnd:
		if b, ok := m.activeToolCall[e.Call.ID]; ok {
			b.FinalizeWithCall(e.Call)
		}
	case synapse.EventToolResult:
		// Marker calls have no begin event; the result closes the reply.
		m.hadToolCalls = true
		m.blocks = append(m.blocks, NewToolResultBlock(e.Call.Name, e.Result, m.styles))
	}
	return m.updateBlockFocus()
}

func (m *Model) startReplyAfterTools() {
	if !m.hadToolCalls {
		return
	}
	m.activeText = nil
	m.activeThinking = nil
	m.hadToolCalls = false
}

func collapsible(b MessageBlock) bool {
	switch b := b.(type) {
	case *ThinkingBlock, *ToolCallBlock:
		return true
	case *ToolResultBlock:
		return !b.IsError()
	}
	return false
}

// updateBlockFocus focuses the last collapsible block.
func (m Model) updateBlockFocus() Model {
	m.blockFocus = -1
	for i := len(m.blocks) - 1; i >= 0; i-- {
		if collapsible(m.blocks[i]) {
			m.blockFocus = i
			break
		}
	}
	return m
}

// cycleFocusPrev moves focus to the previous collapsible block, wrapping.
func (m Model) cycleFocusPrev() Model {
	n := len(m.blocks)
	if n == 0 {
		return m
	}
	start := m.blockFocus - 1
	if start < 0 {
		start = n - 1
	}
	for i := range n {
		idx := (start - i + n) % n
		if collapsible(m.blocks[idx]) {
			m.blockFocus = idx
			return m
		}
	}
	m.blockFocus = -1
	return m
}

// statusLine shows the run state and the session's token usage, cut to the
// terminal width.
func (m Model) statusLine() string {
	usage := m.usage
	state := "Enter to send, Tab to expand, Ctrl+C to quit"
	switch {
	case m.running:
		state = "Working... Ctrl+C to cancel"
	case m.err != nil:
		state = "Last turn failed"
	}
	line := fmt.Sprintf("%s | tokens in %d out %d cached %d", state, usage.InputTokens, usage.OutputTokens, usage.CacheReadTokens)
	if m.title != "" {
		line = m.title + " | " + line
	}
	if m.width > 0 {
		line = runewidth.Truncate(line, m.width, "…")
	}
	if m.err != nil {
		return m.styles.Error.Render(line)
	}
	return m.styles.Muted.Render(line)
}

// startAgent runs the turn in a goroutine and signals completion.
func startAgent(ctx context.Context, run AgentFunc, session *synapse.Session, text string, eventCh chan<- synapse.Event, doneCh chan<- error) tea.Cmd {
	return func() tea.Msg {
		err := run(ctx, session, text, func(e synapse.Event) {
			select {
			case eventCh <- e:
			case <-ctx.Done():
			}
		})
		close(eventCh)
		doneCh <- err
		return nil
	}
}

// listenForEvent waits for the next event. When the channel closes it reads
// the turn error from doneCh.
func listenForEvent(ch <-chan synapse.Event, doneCh <-chan error) tea.Cmd {
	return func() tea.Msg {
		evt, ok := <-ch
		if !ok {
			return AgentDoneMsg{Err: <-doneCh}
		}
		return StreamEventMsg{Event: evt}
	}
}
