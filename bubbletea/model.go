package bubbletea

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/fwojciec/analyst"
	"github.com/fwojciec/analyst/markdown"
)

var _ tea.Model = Model{}

// Config carries static display information for the status bar.
type Config struct {
	ProviderName string
	ModelName    string
}

// entry is one rendered transcript item. The model keeps its own transcript
// rather than reading session.Messages: the turn goroutine appends to the
// session while a turn is in flight, so the view must not share it.
type entry struct {
	role analyst.Role
	text string
}

// Model is the Bubble Tea model for the analyst chat TUI.
type Model struct {
	// Input is the question input component. Exported for test access.
	Input textinput.Model
	// Viewport is the scrollable transcript area. Exported for test access.
	Viewport viewport.Model

	turn    TurnFunc
	session *analyst.Session
	theme   analyst.Theme
	styles  Styles
	config  Config

	entries []entry

	// Per-turn progress, cleared when the turn finishes. The raw result is
	// shown dimmed while the turn runs; the formatted answer replaces it.
	running    bool
	currentSQL string
	rawResult  string

	cancel  context.CancelFunc
	eventCh chan analyst.Event
	doneCh  chan turnResult
	err     error
	ready   bool
}

type turnResult struct {
	answer string
	err    error
}

// New creates a new TUI Model with the given turn function, session, and
// theme. Existing session messages seed the transcript.
func New(turn TurnFunc, session *analyst.Session, theme analyst.Theme, config Config) Model {
	ti := textinput.New()
	ti.Placeholder = "Ex: How many failed payments in Germany yesterday?"
	ti.Prompt = ""
	ti.Focus()
	ti.CharLimit = 0

	m := Model{
		Input:   ti,
		turn:    turn,
		session: session,
		theme:   theme,
		styles:  NewStyles(theme),
		config:  config,
	}
	for _, msg := range session.Messages {
		m.entries = append(m.entries, entry{role: msg.Role, text: msg.Content})
	}
	return m
}

// Running returns whether a turn is currently in flight.
func (m Model) Running() bool { return m.running }

// Err returns the last error, if any.
func (m Model) Err() error { return m.err }

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleWindowSize(msg), nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case TurnEventMsg:
		m = m.processEvent(msg.Event)
		m.refresh()
		if m.eventCh != nil {
			return m, listenForEvent(m.eventCh, m.doneCh)
		}
		return m, nil

	case TurnDoneMsg:
		m.running = false
		m.cancel = nil
		m.eventCh = nil
		m.doneCh = nil
		m.currentSQL = ""
		m.rawResult = ""
		if msg.Err != nil && !errors.Is(msg.Err, context.Canceled) {
			m.err = msg.Err
		} else if msg.Answer != "" {
			m.entries = append(m.entries, entry{role: analyst.RoleAssistant, text: msg.Answer})
		}
		m.refresh()
		cmd := m.Input.Focus()
		cmds = append(cmds, cmd)
		return m, tea.Batch(cmds...)
	}

	// Pass remaining messages to sub-components. The viewport always
	// receives messages for scrolling.
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

func (m *Model) refresh() {
	m.Viewport.SetContent(m.renderContent())
	m.Viewport.GotoBottom()
}

func (m Model) handleWindowSize(msg tea.WindowSizeMsg) Model {
	inputH := 1
	statusH := 1
	borderH := 2 // newlines between sections
	vpHeight := msg.Height - inputH - statusH - borderH
	if vpHeight < 1 {
		vpHeight = 1
	}

	if !m.ready {
		m.Viewport = viewport.New(msg.Width, vpHeight)
		m.ready = true
	} else {
		m.Viewport.Width = msg.Width
		m.Viewport.Height = vpHeight
	}
	m.refresh()

	m.Input.Width = msg.Width
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
		return m.submit(text)
	}

	if !m.running {
		var cmd tea.Cmd
		var cmds []tea.Cmd

		// Only forward non-character keys to the viewport to avoid
		// conflicts with typing.
		if msg.Type != tea.KeyRunes {
			m.Viewport, cmd = m.Viewport.Update(msg)
			cmds = append(cmds, cmd)
		}

		m.Input, cmd = m.Input.Update(msg)
		cmds = append(cmds, cmd)

		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m Model) submit(question string) (tea.Model, tea.Cmd) {
	m.Input.SetValue("")
	m.Input.Blur()
	m.err = nil

	m.entries = append(m.entries, entry{role: analyst.RoleUser, text: question})
	m.refresh()

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.eventCh = make(chan analyst.Event, 16)
	m.doneCh = make(chan turnResult, 1)
	m.running = true

	return m, tea.Batch(
		startTurn(ctx, m.turn, m.session, question, m.eventCh, m.doneCh),
		listenForEvent(m.eventCh, m.doneCh),
	)
}

// processEvent records per-turn progress for the transcript tail.
func (m Model) processEvent(evt analyst.Event) Model {
	switch e := evt.(type) {
	case analyst.EventDirective:
		m.currentSQL = e.Directive.SQL
	case analyst.EventToolResult:
		m.rawResult = e.Text
	}
	return m
}

// renderContent renders the transcript plus any in-flight progress.
func (m Model) renderContent() string {
	var b strings.Builder

	for i, e := range m.entries {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch e.role {
		case analyst.RoleUser:
			b.WriteString(m.styles.UserMsg.Render("> " + e.text))
		case analyst.RoleAssistant:
			b.WriteString(markdown.Render(e.text, m.Viewport.Width, m.theme))
		}
	}

	if m.running {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		switch {
		case m.rawResult != "":
			b.WriteString(m.styles.Query.Render("sql> "+m.currentSQL) + "\n")
			b.WriteString(m.styles.Muted.Render(clip(m.rawResult, 500)))
		case m.currentSQL != "":
			b.WriteString(m.styles.Query.Render("sql> " + m.currentSQL))
		default:
			b.WriteString(m.styles.Muted.Render("Thinking..."))
		}
	}

	return b.String()
}

func (m Model) statusLine() string {
	if m.err != nil {
		return m.styles.Error.Render(fmt.Sprintf("Error: %v", m.err))
	}
	if m.running {
		if m.currentSQL != "" {
			return m.styles.Muted.Render("Executing SQL...")
		}
		return m.styles.Muted.Render("Thinking...")
	}
	label := "Enter to send, Ctrl+C to quit"
	if m.config.ModelName != "" {
		label = m.config.ProviderName + "/" + m.config.ModelName + " | " + label
	}
	return m.styles.Muted.Render(label)
}

// clip truncates s to at most n bytes for display, marking the cut.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// startTurn runs the turn in a goroutine and signals completion.
func startTurn(ctx context.Context, turn TurnFunc, session *analyst.Session, question string, eventCh chan<- analyst.Event, doneCh chan<- turnResult) tea.Cmd {
	return func() tea.Msg {
		answer, err := turn(ctx, session, question, func(e analyst.Event) {
			select {
			case eventCh <- e:
			case <-ctx.Done():
			}
		})
		close(eventCh)
		doneCh <- turnResult{answer: answer, err: err}
		return nil
	}
}

// listenForEvent waits for the next event from the channel. When the channel
// closes, it reads the result from doneCh and returns TurnDoneMsg.
func listenForEvent(ch <-chan analyst.Event, doneCh <-chan turnResult) tea.Cmd {
	return func() tea.Msg {
		evt, ok := <-ch
		if !ok {
			res := <-doneCh
			return TurnDoneMsg{Answer: res.answer, Err: res.err}
		}
		return TurnEventMsg{Event: evt}
	}
}
