// Package notifications is the notification center view.
package notifications

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/ledgerline/ledgerline/internal/keys"
	"github.com/ledgerline/ledgerline/internal/model"
	"github.com/ledgerline/ledgerline/internal/theme"
)

// MarkReadMsg asks the application to mark one notification as read.
type MarkReadMsg struct {
	ID string
}

// MarkAllReadMsg asks the application to mark everything as read.
type MarkAllReadMsg struct{}

// OpenMsg asks the application to navigate to the record a notification
// points at.
type OpenMsg struct {
	Notification model.Notification
}

// Model is the notification list view component.
type Model struct {
	list   list.Model
	keys   *keys.KeyMap
	width  int
	height int
}

// New creates a new notification list model.
func New(k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height-2)
	l.Title = "Notifications"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	return Model{
		list:   l,
		keys:   k,
		width:  width,
		height: height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// SetNotifications replaces the list contents, preserving the cursor
// where possible.
func (m *Model) SetNotifications(ns []model.Notification) tea.Cmd {
	items := make([]list.Item, len(ns))
	for i, n := range ns {
		items[i] = Item{Notification: n}
	}
	return m.list.SetItems(items)
}

// Selected returns the notification under the cursor.
func (m Model) Selected() (model.Notification, bool) {
	it, ok := m.list.SelectedItem().(Item)
	if !ok {
		return model.Notification{}, false
	}
	return it.Notification, true
}

// Update handles messages for the notification list view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.MarkRead):
			if n, ok := m.Selected(); ok && !n.Read {
				return m, func() tea.Msg { return MarkReadMsg{ID: n.ID} }
			}
			return m, nil

		case key.Matches(msg, m.keys.MarkAllRead):
			return m, func() tea.Msg { return MarkAllReadMsg{} }

		case key.Matches(msg, m.keys.Select):
			if n, ok := m.Selected(); ok {
				cmds := []tea.Cmd{
					func() tea.Msg { return OpenMsg{Notification: n} },
				}
				if !n.Read {
					cmds = append(cmds, func() tea.Msg { return MarkReadMsg{ID: n.ID} })
				}
				return m, tea.Batch(cmds...)
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the notification list.
func (m Model) View() string {
	return m.list.View()
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-2)
}
