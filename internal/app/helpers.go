package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ledgerline/ledgerline/internal/alertq"
	"github.com/ledgerline/ledgerline/internal/connectivity"
	"github.com/ledgerline/ledgerline/internal/model"
	"github.com/ledgerline/ledgerline/internal/notify"
	"github.com/ledgerline/ledgerline/internal/queue"
)

// opTimeout bounds the store and backend calls the UI issues directly.
const opTimeout = 10 * time.Second

// alertSnapshotMsg carries a display-queue snapshot to the UI.
type alertSnapshotMsg struct {
	snap alertq.Snapshot
	ch   <-chan alertq.Snapshot
}

// notifyStateMsg carries a poller state snapshot to the UI.
type notifyStateMsg struct {
	state notify.State
	ch    <-chan notify.State
}

// connectivityMsg carries an online/offline transition to the UI.
type connectivityMsg struct {
	change connectivity.Change
	ch     <-chan connectivity.Change
}

// pendingCountMsg carries the current pending-queue depth to the UI.
type pendingCountMsg struct {
	count int
	ch    <-chan int
}

// pendingLoadedMsg carries the pending queue contents to the UI.
type pendingLoadedMsg struct {
	pending []model.QueuedMutation
}

// deadLoadedMsg carries the dead-letter list to the UI.
type deadLoadedMsg struct {
	dead []model.DeadMutation
}

// syncReportMsg carries the outcome of one drain.
type syncReportMsg struct {
	report queue.SyncReport
	err    error
}

// submitResultMsg carries the outcome of a quick-entry submit.
type submitResultMsg struct {
	outcome queue.SubmitOutcome
	err     error
}

// signedInMsg carries the outcome of storing a new token.
type signedInMsg struct {
	err error
}

// deadActionDoneMsg carries the outcome of a requeue, discard, or
// pending-remove action.
type deadActionDoneMsg struct {
	err error
}

// waitForAlerts returns a command that blocks on the display queue's
// subscriber channel and re-arms after each snapshot.
func (m Model) waitForAlerts(ch <-chan alertq.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return nil
		}
		return alertSnapshotMsg{snap: snap, ch: ch}
	}
}

// waitForNotifyState blocks on the poller's subscriber channel.
func (m Model) waitForNotifyState(ch <-chan notify.State) tea.Cmd {
	return func() tea.Msg {
		state, ok := <-ch
		if !ok {
			return nil
		}
		return notifyStateMsg{state: state, ch: ch}
	}
}

// waitForConnectivity blocks on the monitor's subscriber channel.
func (m Model) waitForConnectivity(ch <-chan connectivity.Change) tea.Cmd {
	return func() tea.Msg {
		change, ok := <-ch
		if !ok {
			return nil
		}
		return connectivityMsg{change: change, ch: ch}
	}
}

// waitForPendingCount blocks on the queue's depth channel.
func (m Model) waitForPendingCount(ch <-chan int) tea.Cmd {
	return func() tea.Msg {
		count, ok := <-ch
		if !ok {
			return nil
		}
		return pendingCountMsg{count: count, ch: ch}
	}
}

// loadPending reads the pending queue from the store.
func (m Model) loadPending() tea.Cmd {
	q := m.deps.Queue
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		pending, err := q.ListPending(ctx)
		if err != nil {
			return pendingLoadedMsg{}
		}
		return pendingLoadedMsg{pending: pending}
	}
}

// loadDeadLetters reads the dead-letter list from the store.
func (m Model) loadDeadLetters() tea.Cmd {
	q := m.deps.Queue
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		dead, err := q.DeadLetters(ctx)
		if err != nil {
			return deadLoadedMsg{}
		}
		return deadLoadedMsg{dead: dead}
	}
}

// drain replays the pending queue in the background.
func (m Model) drain() tea.Cmd {
	q := m.deps.Queue
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		report, err := q.Drain(ctx)
		return syncReportMsg{report: report, err: err}
	}
}

// handleSyncReport turns a drain outcome into alerts and, on auth
// expiry, routes to the sign-in form.
func (m *Model) handleSyncReport(msg syncReportMsg) tea.Cmd {
	if msg.err != nil {
		if msg.err == queue.ErrDrainInProgress {
			return nil
		}
		m.deps.Alerts.Error("Sync failed: " + msg.err.Error())
		return m.loadPending()
	}

	r := msg.report
	alerts := m.deps.Alerts

	if r.AuthExpired {
		m.deps.Session.Expire()
		alerts.Warning("Session expired. Sign in to finish syncing.")
		m.previousView = m.currentView
		m.currentView = ViewSignIn
		return tea.Batch(m.loadPending(), m.signinView.Start(true))
	}

	if len(r.Synced) > 0 {
		alerts.Success(fmt.Sprintf("%d change(s) synced.", len(r.Synced)))
	}
	if len(r.Dead) > 0 {
		alerts.Error(fmt.Sprintf(
			"%d change(s) rejected. Press f to review.", len(r.Dead),
		))
	}
	if r.Aborted && !r.AuthExpired {
		alerts.Warning(fmt.Sprintf(
			"Sync interrupted, %d change(s) still queued.", r.Remaining,
		))
	}

	return m.loadPending()
}

// submit routes a new entry through the queue's write path.
func (m Model) submit(
	entityType model.EntityType,
	op model.Operation,
	payload json.RawMessage,
) tea.Cmd {
	q := m.deps.Queue
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		outcome, _, err := q.Submit(ctx, entityType, op, payload)
		return submitResultMsg{outcome: outcome, err: err}
	}
}

// handleSubmitResult posts an alert describing where the entry went.
func (m *Model) handleSubmitResult(msg submitResultMsg) tea.Cmd {
	alerts := m.deps.Alerts

	if msg.err != nil {
		alerts.Error("Entry failed: " + msg.err.Error())
		return m.loadPending()
	}

	if msg.outcome == queue.SubmitQueued {
		alerts.Info("Saved locally. Will sync when back online.")
	} else {
		alerts.Success("Entry saved.")
	}
	return m.loadPending()
}

// signIn stores the token and reports back to the update loop.
func (m Model) signIn(token string) tea.Cmd {
	s := m.deps.Session
	return func() tea.Msg {
		return signedInMsg{err: s.SignIn(token)}
	}
}

// requeueDeadLetter moves a dead letter back into the pending queue.
func (m Model) requeueDeadLetter(id string) tea.Cmd {
	q := m.deps.Queue
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		return deadActionDoneMsg{err: q.RequeueDeadLetter(ctx, id)}
	}
}

// discardDeadLetter drops a dead letter for good.
func (m Model) discardDeadLetter(id string) tea.Cmd {
	q := m.deps.Queue
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		return deadActionDoneMsg{err: q.DiscardDeadLetter(ctx, id)}
	}
}

// removePending drops a queued mutation without replaying it.
func (m Model) removePending(id string) tea.Cmd {
	q := m.deps.Queue
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		return deadActionDoneMsg{err: q.Remove(ctx, id)}
	}
}
