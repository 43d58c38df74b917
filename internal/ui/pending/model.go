// Package pending lists the mutations waiting in the offline queue,
// oldest first, so the user can see what will replay on the next sync.
package pending

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/ledgerline/ledgerline/internal/keys"
	"github.com/ledgerline/ledgerline/internal/model"
	"github.com/ledgerline/ledgerline/internal/theme"
)

// RemoveMsg asks the application to drop a pending mutation without
// replaying it.
type RemoveMsg struct {
	ID string
}

// Item wraps a model.QueuedMutation so it can be used in a bubbles/list.
type Item struct {
	Mutation model.QueuedMutation
}

// FilterValue returns the string used for fuzzy filtering.
func (i Item) FilterValue() string { return string(i.Mutation.EntityType) }

// itemDelegate renders pending-mutation rows.
type itemDelegate struct{}

func (d itemDelegate) Height() int  { return 1 }
func (d itemDelegate) Spacing() int { return 0 }

func (d itemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

func (d itemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(Item)
	if !ok {
		return
	}

	qm := it.Mutation
	age := theme.HelpStyle.Render(relativeTime(qm.EnqueuedAt))
	line := fmt.Sprintf("%s %s  %s", qm.Operation, qm.EntityType, age)

	if index == m.Index() {
		fmt.Fprint(w, theme.SelectedItemStyle.Render(line))
		return
	}
	fmt.Fprint(w, theme.ListItemStyle.Render(line))
}

func relativeTime(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// Model is the pending-queue list view component.
type Model struct {
	list   list.Model
	keys   *keys.KeyMap
	width  int
	height int
}

// New creates a new pending-queue list model.
func New(k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, itemDelegate{}, width, height-2)
	l.Title = "Queued Changes"
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

// SetPending replaces the list contents.
func (m *Model) SetPending(pending []model.QueuedMutation) tea.Cmd {
	items := make([]list.Item, len(pending))
	for i, p := range pending {
		items[i] = Item{Mutation: p}
	}
	return m.list.SetItems(items)
}

// Update handles messages for the pending-queue view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.MarkRead):
			// Reuse the mark key as "remove" in this view.
			if it, ok := m.list.SelectedItem().(Item); ok {
				id := it.Mutation.ID
				return m, func() tea.Msg { return RemoveMsg{ID: id} }
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the pending-queue list.
func (m Model) View() string {
	return m.list.View()
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-2)
}
