// Package ui provides the Bubbletea terminal progress display for
// audiocore's CLI: a single progress bar driven by audiocore.ProgressFunc
// events, fed across a channel from the worker goroutine running the
// operation.
package ui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Model is the Bubbletea model for one long-running operation.
type Model struct {
	OperationName string
	InputPath     string

	Progress float64
	StartTime time.Time
	Done      bool
	Result    DoneMsg

	Events chan tea.Msg
}

// NewModel creates a progress model for operationName applied to inputPath.
// events is read by waitForEvent and should be buffered so the operation's
// progress callback never blocks on UI draw latency.
func NewModel(operationName, inputPath string, events chan tea.Msg) Model {
	return Model{
		OperationName: operationName,
		InputPath:     inputPath,
		StartTime:     time.Now(),
		Events:        events,
	}
}

func (m Model) Init() tea.Cmd {
	return waitForEvent(m.Events)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case ProgressMsg:
		m.Progress = msg.Progress
		return m, waitForEvent(m.Events)

	case DoneMsg:
		m.Done = true
		m.Result = msg
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) View() string {
	if m.Done {
		return renderCompletion(m)
	}
	return renderProgress(m)
}

func waitForEvent(events chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-events
	}
}

func elapsedString(start time.Time) string {
	return fmt.Sprintf("%.1fs", time.Since(start).Seconds())
}
