// Package bubbletea provides a Bubble Tea chat TUI for the analyst.
package bubbletea

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/fwojciec/analyst"
)

// TurnFunc runs one orchestrated turn: question in, final answer out. The
// onEvent callback receives progress events. The function blocks until the
// turn completes or the context is cancelled; the session is updated in
// place.
type TurnFunc func(ctx context.Context, session *analyst.Session, question string, onEvent func(analyst.Event)) (string, error)

// Run creates and runs the Bubble Tea TUI program. It blocks until the
// program exits. The context is used for graceful shutdown — when cancelled,
// the program quits.
func Run(ctx context.Context, m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen())
	go func() {
		<-ctx.Done()
		p.Quit()
	}()
	_, err := p.Run()
	return err
}

// TurnEventMsg wraps a progress event for delivery to the Bubble Tea model.
type TurnEventMsg struct {
	Event analyst.Event
}

// TurnDoneMsg signals that the turn has completed.
type TurnDoneMsg struct {
	Answer string
	Err    error
}
