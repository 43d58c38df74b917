// Package alertq presents short-lived, severity-classified messages with
// bounded on-screen clutter. A single goroutine owns the ticket lists and
// processes posts, dismissals, updates, and sweep ticks one at a time, so
// no two timers can ever race on the displayed set.
package alertq

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerline/ledgerline/internal/model"
)

// Snapshot is the queue state published to the UI after every change.
type Snapshot struct {
	// Displayed holds the visible tickets, newest first.
	Displayed []model.AlertTicket

	// Waiting is how many tickets are queued behind the display cap.
	Waiting int
}

// Patch describes an in-place ticket update. Nil fields are untouched.
type Patch struct {
	Message     *string
	Severity    *model.Severity
	Duration    *time.Duration
	Dismissible *bool
}

// Options tunes the queue's display behavior.
type Options struct {
	// MaxVisible is the concurrent display cap; excess tickets wait in
	// FIFO order.
	MaxVisible int

	// SweepInterval is how often the leak-guard sweep runs.
	SweepInterval time.Duration

	// Ceiling is the hard safety ceiling: any ticket older than this is
	// removed regardless of its stated duration, displayed or waiting.
	Ceiling time.Duration
}

// DefaultOptions returns the production display constants.
func DefaultOptions() Options {
	return Options{
		MaxVisible:    4,
		SweepInterval: 100 * time.Millisecond,
		Ceiling:       30 * time.Second,
	}
}

// cmdKind discriminates the internal command variants.
type cmdKind int

const (
	cmdPost cmdKind = iota
	cmdDismiss
	cmdUpdate
)

type command struct {
	kind   cmdKind
	ticket model.AlertTicket
	id     string
	patch  Patch
}

// entry pairs a ticket with its display deadline. A zero deadline means
// sticky: the ticket only leaves via dismissal or the ceiling sweep.
type entry struct {
	ticket   model.AlertTicket
	deadline time.Time
}

// Manager is the alert display queue. It is the one structure shared by
// many unrelated callers, so every operation funnels through its command
// channel.
type Manager struct {
	opts Options

	mu      sync.Mutex
	running bool
	cmdCh   chan command
	stopCh  chan struct{}
	doneCh  chan struct{}
	subs    []chan Snapshot
	last    Snapshot
}

// New creates a Manager.
func New(opts Options) *Manager {
	if opts.MaxVisible <= 0 {
		opts = DefaultOptions()
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 100 * time.Millisecond
	}
	if opts.Ceiling <= 0 {
		opts.Ceiling = 30 * time.Second
	}
	return &Manager{opts: opts}
}

// Start launches the owning goroutine. No-op when already running.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}
	m.running = true
	m.cmdCh = make(chan command, 64)
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})

	go m.run(m.cmdCh, m.stopCh, m.doneCh)
}

// Stop halts the owning goroutine and waits for it to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	done := m.doneCh
	m.mu.Unlock()

	<-done
}

// Post displays the ticket immediately when a slot is free, otherwise
// appends it to the wait-queue. The ticket id is returned either way so
// callers can update or dismiss it even while it waits.
func (m *Manager) Post(t model.AlertTicket) string {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	m.send(command{kind: cmdPost, ticket: t})
	return t.ID
}

// Dismiss removes a displayed or waiting ticket; freeing a display slot
// promotes the oldest waiting ticket.
func (m *Manager) Dismiss(id string) {
	m.send(command{kind: cmdDismiss, id: id})
}

// Update mutates a ticket in place without changing its position or id.
func (m *Manager) Update(id string, p Patch) {
	m.send(command{kind: cmdUpdate, id: id, patch: p})
}

// Success posts an auto-expiring success ticket.
func (m *Manager) Success(msg string) string {
	return m.postWith(model.SeveritySuccess, msg)
}

// Info posts an auto-expiring informational ticket.
func (m *Manager) Info(msg string) string {
	return m.postWith(model.SeverityInfo, msg)
}

// Warning posts an auto-expiring warning ticket.
func (m *Manager) Warning(msg string) string {
	return m.postWith(model.SeverityWarning, msg)
}

// Error posts an auto-expiring error ticket.
func (m *Manager) Error(msg string) string {
	return m.postWith(model.SeverityError, msg)
}

// Sticky posts a ticket that stays until dismissed, updated, or swept by
// the safety ceiling.
func (m *Manager) Sticky(sev model.Severity, msg string) string {
	return m.Post(model.AlertTicket{
		Severity:    sev,
		Message:     msg,
		Duration:    0,
		Dismissible: true,
	})
}

func (m *Manager) postWith(sev model.Severity, msg string) string {
	return m.Post(model.AlertTicket{
		Severity:    sev,
		Message:     msg,
		Duration:    model.DefaultAlertDuration(sev),
		Dismissible: true,
	})
}

// Current returns the latest published snapshot.
func (m *Manager) Current() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Subscribe returns a channel receiving snapshots after every change.
func (m *Manager) Subscribe() <-chan Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan Snapshot, 4)
	m.subs = append(m.subs, ch)
	return ch
}

// send delivers a command to the owning goroutine. Commands sent to a
// stopped manager are dropped.
func (m *Manager) send(cmd command) {
	m.mu.Lock()
	ch := m.cmdCh
	stop := m.stopCh
	running := m.running
	m.mu.Unlock()

	if !running || ch == nil {
		return
	}
	select {
	case ch <- cmd:
	case <-stop:
	}
}

// publish stores and broadcasts a snapshot built from the loop's lists.
func (m *Manager) publish(displayed []entry, waiting []entry) {
	snap := Snapshot{
		Displayed: make([]model.AlertTicket, len(displayed)),
		Waiting:   len(waiting),
	}
	for i, e := range displayed {
		snap.Displayed[i] = e.ticket
	}

	m.mu.Lock()
	m.last = snap
	subs := make([]chan Snapshot, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

// run is the queue's single-owner loop.
func (m *Manager) run(cmdCh chan command, stop, done chan struct{}) {
	defer close(done)

	var displayed []entry // newest first
	var waiting []entry   // FIFO

	sweep := time.NewTicker(m.opts.SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-stop:
			return

		case cmd := <-cmdCh:
			switch cmd.kind {
			case cmdPost:
				if len(displayed) < m.opts.MaxVisible {
					displayed = append([]entry{display(cmd.ticket, time.Now())}, displayed...)
				} else {
					waiting = append(waiting, entry{ticket: cmd.ticket})
				}

			case cmdDismiss:
				displayed, waiting = remove(displayed, waiting, cmd.id)
				displayed, waiting = m.promote(displayed, waiting)

			case cmdUpdate:
				applyPatch(displayed, waiting, cmd.id, cmd.patch)
			}
			m.publish(displayed, waiting)

		case <-sweep.C:
			now := time.Now()
			before := len(displayed) + len(waiting)

			displayed = expire(displayed, now)
			displayed = ceiling(displayed, now, m.opts.Ceiling)
			waiting = ceiling(waiting, now, m.opts.Ceiling)
			displayed, waiting = m.promote(displayed, waiting)

			if len(displayed)+len(waiting) != before {
				m.publish(displayed, waiting)
			}
		}
	}
}

// display stamps a ticket's expiry deadline as it enters a display slot.
func display(t model.AlertTicket, now time.Time) entry {
	e := entry{ticket: t}
	if t.Duration > 0 {
		e.deadline = now.Add(t.Duration)
	}
	return e
}

// promote moves waiting tickets into free display slots, strict FIFO,
// independent of severity. Promoted tickets are older than everything
// displayed, so appending keeps the newest-first order.
func (m *Manager) promote(displayed, waiting []entry) ([]entry, []entry) {
	now := time.Now()
	for len(displayed) < m.opts.MaxVisible && len(waiting) > 0 {
		next := waiting[0]
		waiting = waiting[1:]
		displayed = append(displayed, display(next.ticket, now))
	}
	return displayed, waiting
}

// remove deletes the ticket with the given id from whichever list holds
// it.
func remove(displayed, waiting []entry, id string) ([]entry, []entry) {
	for i, e := range displayed {
		if e.ticket.ID == id {
			return append(displayed[:i], displayed[i+1:]...), waiting
		}
	}
	for i, e := range waiting {
		if e.ticket.ID == id {
			return displayed, append(waiting[:i], waiting[i+1:]...)
		}
	}
	return displayed, waiting
}

// applyPatch updates a ticket in place. A duration change on a displayed
// ticket restarts its expiry from now.
func applyPatch(displayed, waiting []entry, id string, p Patch) {
	patchEntry := func(e *entry, onDisplay bool) {
		if p.Message != nil {
			e.ticket.Message = *p.Message
		}
		if p.Severity != nil {
			e.ticket.Severity = *p.Severity
		}
		if p.Dismissible != nil {
			e.ticket.Dismissible = *p.Dismissible
		}
		if p.Duration != nil {
			e.ticket.Duration = *p.Duration
			if onDisplay {
				if *p.Duration > 0 {
					e.deadline = time.Now().Add(*p.Duration)
				} else {
					e.deadline = time.Time{}
				}
			}
		}
	}

	for i := range displayed {
		if displayed[i].ticket.ID == id {
			patchEntry(&displayed[i], true)
			return
		}
	}
	for i := range waiting {
		if waiting[i].ticket.ID == id {
			patchEntry(&waiting[i], false)
			return
		}
	}
}

// expire drops displayed tickets whose deadline has passed.
func expire(displayed []entry, now time.Time) []entry {
	kept := displayed[:0]
	for _, e := range displayed {
		if !e.deadline.IsZero() && now.After(e.deadline) {
			continue
		}
		kept = append(kept, e)
	}
	return kept
}

// ceiling drops any ticket older than the hard safety ceiling, as a
// leak guard against timer-cancellation bugs.
func ceiling(entries []entry, now time.Time, max time.Duration) []entry {
	kept := entries[:0]
	for _, e := range entries {
		if now.Sub(e.ticket.CreatedAt) > max {
			continue
		}
		kept = append(kept, e)
	}
	return kept
}
