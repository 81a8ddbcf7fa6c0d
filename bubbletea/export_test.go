package bubbletea

import "context"

// SetRunning marks the model as having a turn in flight, as submit would.
func SetRunning(m Model) Model {
	m.running = true
	m.Input.Blur()
	return m
}

// SetRunningWithCancel additionally installs a cancel function.
func SetRunningWithCancel(m Model, cancel func()) Model {
	m = SetRunning(m)
	m.cancel = context.CancelFunc(cancel)
	return m
}
