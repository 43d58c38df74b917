// Package alerts renders the on-screen alert ticket stack.
package alerts

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ledgerline/ledgerline/internal/alertq"
	"github.com/ledgerline/ledgerline/internal/theme"
)

// Model renders the latest alert queue snapshot as a stack of boxes in
// the top-right corner of the content area.
type Model struct {
	snap  alertq.Snapshot
	width int
}

// New creates a new alert stack model.
func New(width int) Model {
	return Model{width: width}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// SetSnapshot replaces the rendered snapshot.
func (m *Model) SetSnapshot(s alertq.Snapshot) {
	m.snap = s
}

// SetSize updates the available width.
func (m *Model) SetSize(width int) {
	m.width = width
}

// Empty reports whether there is nothing to render.
func (m Model) Empty() bool {
	return len(m.snap.Displayed) == 0
}

// TopDismissible returns the id of the newest dismissible displayed
// ticket, or "" when none is.
func (m Model) TopDismissible() string {
	for _, t := range m.snap.Displayed {
		if t.Dismissible {
			return t.ID
		}
	}
	return ""
}

// View renders the displayed tickets newest-first, plus a one-line
// counter when more are waiting.
func (m Model) View() string {
	if m.Empty() {
		return ""
	}

	maxWidth := m.width / 2
	if maxWidth < 24 {
		maxWidth = 24
	}

	var boxes []string
	for _, t := range m.snap.Displayed {
		style := theme.AlertStyle(t.Severity).MaxWidth(maxWidth)
		boxes = append(boxes, style.Render(t.Message))
	}

	if m.snap.Waiting > 0 {
		boxes = append(boxes, theme.HelpStyle.Render(
			fmt.Sprintf("…and %d more", m.snap.Waiting),
		))
	}

	return lipgloss.JoinVertical(lipgloss.Right, boxes...)
}
