package help

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ledgerline/ledgerline/internal/keys"
	"github.com/ledgerline/ledgerline/internal/theme"
)

// section is one titled group of bindings in the overlay.
type section struct {
	title    string
	bindings []key.Binding
}

// Model is the help overlay view. It renders the key map grouped the
// way the application is used: moving around, switching views, keeping
// the queue and notifications in sync, and session control.
type Model struct {
	sections []section
	width    int
	height   int
}

// New creates a new help view model.
func New(k *keys.KeyMap, width, height int) Model {
	return Model{
		sections: []section{
			{"Navigation", []key.Binding{k.Up, k.Down, k.Select, k.Back, k.Quit}},
			{"Views", []key.Binding{k.QuickEntry, k.Notifications, k.DeadLetters, k.Help}},
			{"Syncing", []key.Binding{k.Sync, k.Refresh}},
			{"Notifications", []key.Binding{k.MarkRead, k.MarkAllRead}},
			{"Alerts and session", []key.Binding{k.DismissAlert, k.SignOut}},
		},
		width:  width,
		height: height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the help view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	return m, nil
}

// keyColumnWidth is sized for the widest hint ("ctrl+o").
const keyColumnWidth = 8

// View renders the help overlay.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)
	headingStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite)
	keyStyle := lipgloss.NewStyle().
		Width(keyColumnWidth).
		Foreground(theme.ColorWhite)
	descStyle := lipgloss.NewStyle().
		Faint(true)

	blocks := []string{titleStyle.Render("Keyboard Shortcuts")}
	for _, s := range m.sections {
		rows := []string{headingStyle.Render(s.title)}
		for _, b := range s.bindings {
			h := b.Help()
			rows = append(rows, lipgloss.JoinHorizontal(
				lipgloss.Top,
				keyStyle.Render(h.Key),
				descStyle.Render(h.Desc),
			))
		}
		rows = append(rows, "")
		blocks = append(blocks, lipgloss.JoinVertical(lipgloss.Left, rows...))
	}

	content := lipgloss.JoinVertical(lipgloss.Left, blocks...)

	return theme.PanelStyle.
		Width(m.width - 4).
		Height(m.height - 4).
		Render(content)
}

// SetSize updates the help view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}
