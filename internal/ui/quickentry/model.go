// Package quickentry is the quick-entry form for recording a sale,
// product, expense, or customer without leaving the keyboard.
package quickentry

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/ledgerline/ledgerline/internal/model"
	"github.com/ledgerline/ledgerline/internal/theme"
)

// SubmitMsg is dispatched when the user completes the form. The payload
// is ready to hand to the mutation queue.
type SubmitMsg struct {
	EntityType model.EntityType
	Payload    json.RawMessage
}

// CancelMsg is dispatched when the user aborts the form.
type CancelMsg struct{}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	entityType string
	name       string
	amount     string
	note       string
}

// Model is the Bubble Tea model for the quick-entry form.
type Model struct {
	form   *huh.Form
	fb     *formBindings
	width  int
	height int
}

// New creates a new quick-entry form model.
func New(width, height int) Model {
	return Model{
		fb:     &formBindings{entityType: string(model.EntitySale)},
		width:  width,
		height: height,
	}
}

// Start initializes a fresh form.
func (m *Model) Start() tea.Cmd {
	m.fb.entityType = string(model.EntitySale)
	m.fb.name = ""
	m.fb.amount = ""
	m.fb.note = ""
	m.form = m.buildForm()
	return m.form.Init()
}

// Update handles messages for the quick-entry form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		return m, m.handleSubmit()
	}
	if m.form.State == huh.StateAborted {
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

// View renders the quick-entry form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	content := titleStyle.Render("New Entry") + "\n" + m.form.View()

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(content)
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Model) buildForm() *huh.Form {
	opts := make([]huh.Option[string], len(model.EntityTypes))
	for i, t := range model.EntityTypes {
		opts[i] = huh.NewOption(titleCase(string(t)), string(t))
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Record").
				Options(opts...).
				Value(&m.fb.entityType),
			huh.NewInput().
				Title("Name").
				Placeholder("e.g. 3x espresso beans").
				Value(&m.fb.name).
				Validate(validateRequired("Name")),
			huh.NewInput().
				Title("Amount").
				Placeholder("0.00 (optional)").
				Value(&m.fb.amount).
				Validate(validateOptionalAmount),
			huh.NewText().
				Title("Note").
				Placeholder("Optional details...").
				Value(&m.fb.note),
		),
	).WithWidth(m.formWidth()).WithHeight(m.formHeight())
}

func (m Model) formWidth() int {
	w := m.width - 8
	if w < 40 {
		w = 40
	}
	return w
}

func (m Model) formHeight() int {
	h := m.height - 6
	if h < 12 {
		h = 12
	}
	return h
}

func (m Model) handleSubmit() tea.Cmd {
	body := map[string]interface{}{
		"name": m.fb.name,
	}
	if m.fb.note != "" {
		body["note"] = m.fb.note
	}
	if m.fb.amount != "" {
		if amount, err := strconv.ParseFloat(m.fb.amount, 64); err == nil {
			body["amount"] = amount
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return func() tea.Msg { return CancelMsg{} }
	}

	entityType := model.EntityType(m.fb.entityType)
	return func() tea.Msg {
		return SubmitMsg{EntityType: entityType, Payload: payload}
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// validateRequired returns a validator rejecting empty values.
func validateRequired(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

// validateOptionalAmount accepts an empty string or a decimal number.
func validateOptionalAmount(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return fmt.Errorf("amount must be a number")
	}
	return nil
}
