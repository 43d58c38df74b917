package app

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ledgerline/ledgerline/internal/alertq"
	"github.com/ledgerline/ledgerline/internal/connectivity"
	"github.com/ledgerline/ledgerline/internal/keys"
	"github.com/ledgerline/ledgerline/internal/model"
	"github.com/ledgerline/ledgerline/internal/notify"
	"github.com/ledgerline/ledgerline/internal/queue"
	"github.com/ledgerline/ledgerline/internal/session"
	"github.com/ledgerline/ledgerline/internal/ui"
	alertview "github.com/ledgerline/ledgerline/internal/ui/alerts"
	"github.com/ledgerline/ledgerline/internal/ui/deadletters"
	helpview "github.com/ledgerline/ledgerline/internal/ui/help"
	"github.com/ledgerline/ledgerline/internal/ui/notifications"
	"github.com/ledgerline/ledgerline/internal/ui/pending"
	"github.com/ledgerline/ledgerline/internal/ui/quickentry"
	"github.com/ledgerline/ledgerline/internal/ui/signin"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewPending ViewState = iota
	ViewNotifications
	ViewDeadLetters
	ViewQuickEntry
	ViewSignIn
	ViewHelp
)

// Deps bundles the engines the UI drives. The composition root builds
// and starts them; the model only sends commands and reads snapshots.
type Deps struct {
	Queue   *queue.Queue
	Poller  *notify.Poller
	Alerts  *alertq.Manager
	Monitor *connectivity.Monitor
	Session *session.Manager
}

// Model is the root Bubble Tea model that manages view routing, layout,
// and the channel bridges from the background engines.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	deps         Deps
	keys         *keys.KeyMap

	pendingView  pending.Model
	notifView    notifications.Model
	deadView     deadletters.Model
	entryView    quickentry.Model
	signinView   signin.Model
	helpView     helpview.Model
	alertOverlay alertview.Model

	ready        bool
	online       bool
	pendingCount int
	unreadCount  int
	statusNote   string
}

// New creates a new root application model wired to the given engines.
func New(deps Deps) Model {
	k := keys.DefaultKeyMap()

	view := ViewPending
	if !deps.Session.LoggedIn() {
		view = ViewSignIn
	}

	return Model{
		currentView:  view,
		deps:         deps,
		keys:         k,
		pendingView:  pending.New(k, 80, 24),
		notifView:    notifications.New(k, 80, 24),
		deadView:     deadletters.New(k, 80, 24),
		entryView:    quickentry.New(80, 24),
		signinView:   signin.New(80, 24),
		helpView:     helpview.New(k, 80, 24),
		alertOverlay: alertview.New(80),
		online:       deps.Monitor.Online(),
	}
}

// Init starts the channel bridges and loads the initial queue contents.
// Application start is a drain trigger: mutations captured before the
// previous shutdown replay right away, without waiting for a
// connectivity flip or a manual sync.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		m.waitForAlerts(m.deps.Alerts.Subscribe()),
		m.waitForNotifyState(m.deps.Poller.Subscribe()),
		m.waitForConnectivity(m.deps.Monitor.Subscribe()),
		m.waitForPendingCount(m.deps.Queue.SubscribeCount()),
		m.loadPending(),
	}
	if m.currentView == ViewSignIn {
		cmds = append(cmds, m.signinView.Start(false))
	} else {
		cmds = append(cmds, m.drain())
	}
	return tea.Batch(cmds...)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		contentWidth := m.layout.ContentWidth()
		contentHeight := m.layout.ContentHeight()
		m.pendingView.SetSize(contentWidth, contentHeight)
		m.notifView.SetSize(contentWidth, contentHeight)
		m.deadView.SetSize(contentWidth, contentHeight)
		m.entryView.SetSize(contentWidth, contentHeight)
		m.signinView.SetSize(contentWidth, contentHeight)
		m.helpView.SetSize(contentWidth, contentHeight)
		m.alertOverlay.SetSize(contentWidth)
		// Forward to active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case alertSnapshotMsg:
		m.alertOverlay.SetSnapshot(msg.snap)
		return m, m.waitForAlerts(msg.ch)

	case notifyStateMsg:
		m.unreadCount = msg.state.UnreadCount
		cmd := m.notifView.SetNotifications(msg.state.Notifications)
		waitCmd := m.waitForNotifyState(msg.ch)
		if msg.state.AuthExpired && m.currentView != ViewSignIn {
			m.deps.Session.Expire()
			m.previousView = ViewPending
			m.currentView = ViewSignIn
			return m, tea.Batch(cmd, waitCmd, m.signinView.Start(true))
		}
		return m, tea.Batch(cmd, waitCmd)

	case connectivityMsg:
		wasOnline := m.online
		m.online = msg.change.Online
		waitCmd := m.waitForConnectivity(msg.ch)
		if msg.change.Online && !wasOnline {
			// Back online: replay the queue and catch up on events.
			m.deps.Poller.Poke()
			return m, tea.Batch(waitCmd, m.drain())
		}
		if !msg.change.Online && wasOnline {
			m.deps.Alerts.Warning("Connection lost. Changes will be saved locally.")
		}
		return m, waitCmd

	case pendingCountMsg:
		m.pendingCount = msg.count
		return m, tea.Batch(m.waitForPendingCount(msg.ch), m.loadPending())

	case pendingLoadedMsg:
		return m, m.pendingView.SetPending(msg.pending)

	case deadLoadedMsg:
		return m, m.deadView.SetDeadLetters(msg.dead)

	case syncReportMsg:
		return m, m.handleSyncReport(msg)

	case submitResultMsg:
		return m, m.handleSubmitResult(msg)

	case quickentry.SubmitMsg:
		m.currentView = m.previousView
		return m, m.submit(msg.EntityType, model.OpCreate, msg.Payload)

	case quickentry.CancelMsg:
		m.currentView = m.previousView
		return m, nil

	case signin.SignInMsg:
		return m, m.signIn(msg.Token)

	case signin.CancelMsg:
		// Nothing to go back to without a session.
		if m.deps.Session.LoggedIn() {
			m.currentView = m.previousView
		}
		return m, nil

	case signedInMsg:
		if msg.err != nil {
			m.deps.Alerts.Error("Could not store the token: " + msg.err.Error())
			return m, m.signinView.Start(false)
		}
		m.currentView = ViewPending
		m.deps.Poller.Start()
		m.deps.Alerts.Success("Signed in.")
		return m, m.drain()

	case notifications.MarkReadMsg:
		m.deps.Poller.MarkRead(msg.ID)
		return m, nil

	case notifications.MarkAllReadMsg:
		m.deps.Poller.MarkAllRead()
		return m, nil

	case notifications.OpenMsg:
		// Selecting a notification marks it read; a detail screen may
		// come later once the backend exposes per-event payload pages.
		return m, nil

	case deadletters.RequeueMsg:
		return m, m.requeueDeadLetter(msg.ID)

	case deadletters.DiscardMsg:
		return m, m.discardDeadLetter(msg.ID)

	case pending.RemoveMsg:
		return m, m.removePending(msg.ID)

	case deadActionDoneMsg:
		if msg.err != nil {
			m.deps.Alerts.Error(msg.err.Error())
		}
		return m, tea.Batch(m.loadDeadLetters(), m.loadPending())

	case tea.KeyMsg:
		if handled, nm, cmd := m.handleGlobalKey(msg); handled {
			return nm, cmd
		}
	}

	// Delegate to active sub-view
	return m.updateActiveView(msg)
}

// handleGlobalKey processes keys that work regardless of current view.
// Form views receive all keys except ctrl+c so typing is never stolen.
func (m Model) handleGlobalKey(msg tea.KeyMsg) (bool, Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return true, m, m.shutdown()
	}

	if m.currentView == ViewQuickEntry || m.currentView == ViewSignIn {
		return false, m, nil
	}

	switch msg.String() {
	case "q":
		if m.currentView == ViewPending {
			return true, m, m.shutdown()
		}

	case "esc":
		if m.currentView != ViewPending {
			m.currentView = ViewPending
			return true, m, nil
		}

	case "?":
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return true, m, nil
		}
		m.previousView = m.currentView
		m.currentView = ViewHelp
		return true, m, nil

	case "s":
		return true, m, m.drain()

	case "r":
		m.deps.Poller.Poke()
		return true, m, nil

	case "n":
		m.previousView = m.currentView
		m.currentView = ViewNotifications
		return true, m, nil

	case "f":
		m.previousView = m.currentView
		m.currentView = ViewDeadLetters
		return true, m, m.loadDeadLetters()

	case "e":
		m.previousView = m.currentView
		m.currentView = ViewQuickEntry
		return true, m, m.entryView.Start()

	case "x":
		if id := m.alertOverlay.TopDismissible(); id != "" {
			m.deps.Alerts.Dismiss(id)
		}
		return true, m, nil

	case "ctrl+o":
		return true, m, m.signOut()
	}

	return false, m, nil
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewPending:
		m.pendingView, cmd = m.pendingView.Update(msg)
	case ViewNotifications:
		m.notifView, cmd = m.notifView.Update(msg)
	case ViewDeadLetters:
		m.deadView, cmd = m.deadView.Update(msg)
	case ViewQuickEntry:
		m.entryView, cmd = m.entryView.Update(msg)
	case ViewSignIn:
		m.signinView, cmd = m.signinView.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	badges := ui.StatusBadges{
		Online:       m.online,
		PendingCount: m.pendingCount,
		UnreadCount:  m.unreadCount,
	}
	header := m.layout.RenderHeader("Ledgerline", badges.Render())
	content := m.renderContent()
	statusBar := m.layout.RenderStatusBar(m.keyHints())

	frame := m.layout.RenderWithFrame(header, content, statusBar)
	if m.alertOverlay.Empty() {
		return frame
	}
	return frame + "\n" + m.alertOverlay.View()
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewPending:
		return m.pendingView.View()
	case ViewNotifications:
		return m.notifView.View()
	case ViewDeadLetters:
		return m.deadView.View()
	case ViewQuickEntry:
		return m.entryView.View()
	case ViewSignIn:
		return m.signinView.View()
	case ViewHelp:
		return m.helpView.View()
	default:
		return ""
	}
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	if m.statusNote != "" && m.currentView == ViewPending {
		return m.statusNote
	}

	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewNotifications:
		return "m mark read | M mark all read | esc back"
	case ViewDeadLetters:
		return "enter requeue | m discard | esc back"
	case ViewQuickEntry, ViewSignIn:
		return "enter submit | esc cancel"
	default:
		return "q quit | ? help | e new entry | s sync | n notifications | f failed"
	}
}

// shutdown stops the engines before quitting so no goroutine outlives
// the program.
func (m Model) shutdown() tea.Cmd {
	m.deps.Poller.Stop()
	m.deps.Monitor.Stop()
	m.deps.Alerts.Stop()
	return tea.Quit
}

// signOut clears the session everywhere and returns to the sign-in form.
func (m *Model) signOut() tea.Cmd {
	m.deps.Session.SignOut()
	m.previousView = ViewPending
	m.currentView = ViewSignIn

	p := m.deps.Poller
	return tea.Batch(
		func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = p.SignOut(ctx)
			return nil
		},
		m.signinView.Start(false),
	)
}
