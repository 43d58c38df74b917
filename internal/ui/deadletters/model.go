// Package deadletters lists mutations the backend rejected permanently,
// so the user can requeue them after fixing the data or discard them.
package deadletters

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/ledgerline/ledgerline/internal/keys"
	"github.com/ledgerline/ledgerline/internal/model"
	"github.com/ledgerline/ledgerline/internal/theme"
)

// RequeueMsg asks the application to move a dead letter back into the
// pending queue.
type RequeueMsg struct {
	ID string
}

// DiscardMsg asks the application to drop a dead letter for good.
type DiscardMsg struct {
	ID string
}

// Item wraps a model.DeadMutation so it can be used in a bubbles/list.
type Item struct {
	Dead model.DeadMutation
}

// FilterValue returns the string used for fuzzy filtering.
func (i Item) FilterValue() string { return string(i.Dead.EntityType) }

// itemDelegate renders dead-letter rows.
type itemDelegate struct{}

func (d itemDelegate) Height() int  { return 2 }
func (d itemDelegate) Spacing() int { return 0 }

func (d itemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

func (d itemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(Item)
	if !ok {
		return
	}

	dm := it.Dead
	head := fmt.Sprintf("%s %s", dm.Operation, dm.EntityType)
	reason := theme.HelpStyle.Render(dm.Reason)

	line := head + "\n  " + reason
	if index == m.Index() {
		fmt.Fprint(w, theme.SelectedItemStyle.Render(line))
		return
	}
	fmt.Fprint(w, theme.ListItemStyle.Render(line))
}

// Model is the dead-letter list view component.
type Model struct {
	list   list.Model
	keys   *keys.KeyMap
	width  int
	height int
}

// New creates a new dead-letter list model.
func New(k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, itemDelegate{}, width, height-2)
	l.Title = "Failed Changes"
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

// SetDeadLetters replaces the list contents.
func (m *Model) SetDeadLetters(dead []model.DeadMutation) tea.Cmd {
	items := make([]list.Item, len(dead))
	for i, d := range dead {
		items[i] = Item{Dead: d}
	}
	return m.list.SetItems(items)
}

// Update handles messages for the dead-letter view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Select):
			if it, ok := m.list.SelectedItem().(Item); ok {
				id := it.Dead.ID
				return m, func() tea.Msg { return RequeueMsg{ID: id} }
			}
			return m, nil

		case key.Matches(msg, m.keys.MarkRead):
			// Reuse the mark key as "discard" in this view.
			if it, ok := m.list.SelectedItem().(Item); ok {
				id := it.Dead.ID
				return m, func() tea.Msg { return DiscardMsg{ID: id} }
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the dead-letter list.
func (m Model) View() string {
	return m.list.View()
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-2)
}
