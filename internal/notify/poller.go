// Package notify keeps the user informed of backend events. A single
// goroutine owns all poller state and processes timer ticks, external
// triggers, and read-marking requests one at a time, so no two events
// ever mutate the notification list concurrently.
package notify

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerline/ledgerline/internal/api"
	"github.com/ledgerline/ledgerline/internal/model"
	"github.com/ledgerline/ledgerline/internal/store"
)

// Fetcher retrieves notification events from the backend and confirms
// read marks. *api.Client satisfies it.
type Fetcher interface {
	FetchNotifications(ctx context.Context) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context) error
}

// Alerter posts on-screen tickets for newly arrived events.
type Alerter interface {
	Post(t model.AlertTicket) string
}

// Phase is the poller's lifecycle state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePolling
	PhaseBackoff
)

// String returns the lowercase phase name.
func (p Phase) String() string {
	switch p {
	case PhasePolling:
		return "polling"
	case PhaseBackoff:
		return "backoff"
	default:
		return "idle"
	}
}

// State is the snapshot published to subscribers after every change.
type State struct {
	// Notifications holds the current list, newest first.
	Notifications []model.Notification

	// UnreadCount is the number of unread notifications.
	UnreadCount int

	// Phase is the poller's current lifecycle state.
	Phase Phase

	// AuthExpired is true once the backend rejected the session token;
	// the poller has stopped and re-authentication is required.
	AuthExpired bool
}

// Options tunes the poller's timing behavior.
type Options struct {
	// PollInterval is the fixed base fetch interval.
	PollInterval time.Duration

	// FetchTimeout bounds a single fetch.
	FetchTimeout time.Duration

	// RateFloor is the minimum gap between two fetches; a trigger
	// arriving sooner is skipped.
	RateFloor time.Duration

	// Debounce is the quiet period that coalesces rapid triggers into
	// one fetch.
	Debounce time.Duration

	// DedupWindow is how long identical event content suppresses
	// re-delivery.
	DedupWindow time.Duration

	// BackoffThreshold is the consecutive-error count at which polling
	// switches from the fixed interval to exponential backoff.
	BackoffThreshold int

	// BackoffBase is the base delay for the backoff schedule.
	BackoffBase time.Duration

	// BackoffMax caps the computed backoff delay.
	BackoffMax time.Duration

	// MaxNotifications caps the list; the oldest entries are evicted
	// first, regardless of read state.
	MaxNotifications int
}

// DefaultOptions returns the production timing constants.
func DefaultOptions() Options {
	return Options{
		PollInterval:     30 * time.Second,
		FetchTimeout:     15 * time.Second,
		RateFloor:        5 * time.Second,
		Debounce:         time.Second,
		DedupWindow:      10 * time.Second,
		BackoffThreshold: 3,
		BackoffBase:      30 * time.Second,
		BackoffMax:       60 * time.Second,
		MaxNotifications: 100,
	}
}

// cmdKind discriminates the internal command variants.
type cmdKind int

const (
	cmdPoke cmdKind = iota
	cmdMarkRead
	cmdMarkAllRead
)

type command struct {
	kind cmdKind
	id   string
}

// Poller fetches notification events on a schedule, deduplicates them,
// persists them, and raises alerts for genuinely new ones.
type Poller struct {
	fetcher Fetcher
	store   store.Store
	alerts  Alerter
	opts    Options

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
	cmdCh   chan command
	subs    []chan State
	last    State
}

// New creates a Poller. The alerter may be nil when no on-screen surface
// exists (e.g. in tests of the list alone).
func New(f Fetcher, s store.Store, a Alerter, opts Options) *Poller {
	if opts.PollInterval <= 0 {
		opts = DefaultOptions()
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = opts.PollInterval
	}
	return &Poller{
		fetcher: f,
		store:   s,
		alerts:  a,
		opts:    opts,
		last:    State{Phase: PhaseIdle},
	}
}

// Start begins polling: an immediate fetch, then fetches at the fixed
// interval. Calling Start on a running poller is a no-op.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}
	p.running = true

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.doneCh = make(chan struct{})
	p.cmdCh = make(chan command, 16)

	go p.run(ctx, p.cmdCh, p.doneCh)
}

// Stop halts polling and waits for the loop to exit, so no fetch can
// land after Stop returns.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.running {
		p.running = false
		p.cancel()
	}
	done := p.doneCh
	p.mu.Unlock()

	if done != nil {
		<-done
	}
}

// Running reports whether the poll loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Poke requests a fetch from an external trigger (reconnect, window
// refocus). Rapid pokes coalesce into a single fetch after the debounce
// quiet period, and are skipped entirely inside the rate floor.
func (p *Poller) Poke() {
	p.send(command{kind: cmdPoke})
}

// MarkRead marks one notification as read, locally first and then
// best-effort against the backend. No-op when the poller is stopped.
func (p *Poller) MarkRead(id string) {
	p.send(command{kind: cmdMarkRead, id: id})
}

// MarkAllRead marks every notification as read.
func (p *Poller) MarkAllRead() {
	p.send(command{kind: cmdMarkAllRead})
}

// SignOut stops polling and clears all notification state, both in
// memory and in the store.
func (p *Poller) SignOut(ctx context.Context) error {
	p.Stop()

	err := p.store.ClearNotifications(ctx)
	p.setState(State{Phase: PhaseIdle})
	return err
}

// State returns the latest published snapshot.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Subscribe returns a channel receiving state snapshots after every
// change.
func (p *Poller) Subscribe() <-chan State {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan State, 4)
	p.subs = append(p.subs, ch)
	return ch
}

// send delivers a command to the running loop without blocking; commands
// sent to a stopped poller are dropped.
func (p *Poller) send(cmd command) {
	p.mu.Lock()
	ch := p.cmdCh
	running := p.running
	p.mu.Unlock()

	if !running || ch == nil {
		return
	}
	select {
	case ch <- cmd:
	default:
	}
}

// setState stores and broadcasts a snapshot. The notification slice is
// copied so subscribers never observe loop-owned memory.
func (p *Poller) setState(s State) {
	ns := make([]model.Notification, len(s.Notifications))
	copy(ns, s.Notifications)
	s.Notifications = ns

	unread := 0
	for _, n := range ns {
		if !n.Read {
			unread++
		}
	}
	s.UnreadCount = unread

	p.mu.Lock()
	p.last = s
	subs := make([]chan State, len(p.subs))
	copy(subs, p.subs)
	p.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- s:
		default:
		}
	}
}

// loopState is the state owned exclusively by the run goroutine.
type loopState struct {
	list      []model.Notification // newest first
	dedup     *dedupCache
	errors    int
	lastFetch time.Time
	phase     Phase
	terminal  bool
}

// run is the poller's single-owner loop.
func (p *Poller) run(ctx context.Context, cmdCh chan command, done chan struct{}) {
	defer close(done)

	st := &loopState{
		dedup: newDedupCache(p.opts.DedupWindow),
		phase: PhasePolling,
	}

	// Restore the persisted list so the UI has content before the first
	// fetch completes.
	if persisted, err := p.store.Notifications(ctx, p.opts.MaxNotifications); err == nil {
		st.list = persisted
	}
	p.setState(State{Notifications: st.list, Phase: PhasePolling})

	p.fetch(ctx, st)
	if st.terminal {
		return
	}

	next := time.NewTimer(p.nextDelay(st))
	defer next.Stop()

	var debounce *time.Timer
	var debounceC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case <-next.C:
			p.fetch(ctx, st)
			if st.terminal {
				return
			}
			next.Reset(p.nextDelay(st))

		case <-debounceC:
			debounceC = nil
			if time.Since(st.lastFetch) < p.opts.RateFloor {
				// Inside the rate floor; the scheduled fetch covers it.
				continue
			}
			p.fetch(ctx, st)
			if st.terminal {
				return
			}
			if !next.Stop() {
				select {
				case <-next.C:
				default:
				}
			}
			next.Reset(p.nextDelay(st))

		case cmd := <-cmdCh:
			switch cmd.kind {
			case cmdPoke:
				if debounce == nil {
					debounce = time.NewTimer(p.opts.Debounce)
				} else {
					if !debounce.Stop() {
						select {
						case <-debounce.C:
						default:
						}
					}
					debounce.Reset(p.opts.Debounce)
				}
				debounceC = debounce.C

			case cmdMarkRead:
				p.markRead(ctx, st, cmd.id)

			case cmdMarkAllRead:
				p.markAllRead(ctx, st)
			}
		}
	}
}

// nextDelay computes when the next fetch should run: the fixed interval
// normally, the backoff schedule after repeated failures.
func (p *Poller) nextDelay(st *loopState) time.Duration {
	if d := backoffDelay(st.errors, p.opts.BackoffThreshold, p.opts.BackoffBase, p.opts.BackoffMax); d > 0 {
		return d
	}
	return p.opts.PollInterval
}

// backoffDelay returns the exponential backoff delay once the
// consecutive-error count reaches threshold, or 0 while below it.
func backoffDelay(errors, threshold int, base, max time.Duration) time.Duration {
	if threshold <= 0 || errors < threshold {
		return 0
	}
	shift := uint(errors - threshold + 1)
	if shift > 16 {
		shift = 16
	}
	d := base << shift
	if d > max || d <= 0 {
		d = max
	}
	return d
}

// fetch performs one fetch cycle against state captured at its start.
func (p *Poller) fetch(ctx context.Context, st *loopState) {
	fctx, cancel := context.WithTimeout(ctx, p.opts.FetchTimeout)
	events, err := p.fetcher.FetchNotifications(fctx)
	cancel()

	st.lastFetch = time.Now()

	if err != nil {
		if ctx.Err() != nil {
			// Stopped mid-fetch; never surface a ghost result.
			st.terminal = true
			return
		}
		if api.IsAuth(err) {
			// Terminal for this session: stop polling and let the UI
			// route to re-authentication.
			st.terminal = true
			p.markStopped()
			p.setState(State{
				Notifications: st.list,
				Phase:         PhaseIdle,
				AuthExpired:   true,
			})
			return
		}
		st.errors++
		st.phase = PhasePolling
		if st.errors >= p.opts.BackoffThreshold {
			st.phase = PhaseBackoff
		}
		p.setState(State{Notifications: st.list, Phase: st.phase})
		return
	}

	st.errors = 0
	st.phase = PhasePolling
	now := time.Now()
	st.dedup.Prune(now)

	known := make(map[string]int, len(st.list))
	for i, n := range st.list {
		known[n.ID] = i
	}

	var changed []model.Notification
	var fresh []model.Notification

	for _, e := range events {
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		hash := contentHash(e)

		if idx, ok := known[e.ID]; ok {
			// Already held: refresh fields, never re-alert, and never
			// flip a locally read notification back to unread.
			cur := &st.list[idx]
			cur.Type = e.Type
			cur.Title = e.Title
			cur.Body = e.Body
			cur.Data = e.Data
			cur.Read = cur.Read || e.Read
			changed = append(changed, *cur)
			st.dedup.Record(hash, now)
			continue
		}

		if st.dedup.SeenRecently(hash, now) {
			// Same content arrived through an overlapping channel with
			// a different id; drop it entirely.
			continue
		}

		st.list = append(st.list, e)
		known[e.ID] = len(st.list) - 1
		changed = append(changed, e)
		fresh = append(fresh, e)
	}

	sort.SliceStable(st.list, func(i, j int) bool {
		return st.list[i].CreatedAt.After(st.list[j].CreatedAt)
	})
	if len(st.list) > p.opts.MaxNotifications {
		st.list = st.list[:p.opts.MaxNotifications]
	}

	if len(changed) > 0 {
		_ = p.store.UpsertNotifications(ctx, changed)
		_, _ = p.store.TrimNotifications(ctx, p.opts.MaxNotifications)
	}

	if p.alerts != nil {
		for _, e := range fresh {
			p.alerts.Post(alertFor(e))
		}
	}

	p.setState(State{Notifications: st.list, Phase: PhasePolling})
}

// markRead applies a read mark locally, persists it, and confirms it
// with the backend best-effort.
func (p *Poller) markRead(ctx context.Context, st *loopState, id string) {
	for i := range st.list {
		if st.list[i].ID == id {
			st.list[i].Read = true
			break
		}
	}
	_ = p.store.MarkNotificationRead(ctx, id)

	cctx, cancel := context.WithTimeout(ctx, p.opts.FetchTimeout)
	_ = p.fetcher.MarkNotificationRead(cctx, id)
	cancel()

	p.setState(State{Notifications: st.list, Phase: st.phase})
}

// markAllRead marks the whole list read.
func (p *Poller) markAllRead(ctx context.Context, st *loopState) {
	for i := range st.list {
		st.list[i].Read = true
	}
	_ = p.store.MarkAllNotificationsRead(ctx)

	cctx, cancel := context.WithTimeout(ctx, p.opts.FetchTimeout)
	_ = p.fetcher.MarkAllNotificationsRead(cctx)
	cancel()

	p.setState(State{Notifications: st.list, Phase: st.phase})
}

// markStopped flips the running flag when the loop exits on its own
// (auth expiry), so a later Start works again.
func (p *Poller) markStopped() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		p.running = false
		p.cancel()
	}
}

// alertFor maps a notification onto an alert ticket. Severity follows
// the event category and picks the default duration.
func alertFor(n model.Notification) model.AlertTicket {
	sev := model.SeverityInfo
	switch n.Type {
	case model.NotifyPaymentReceived:
		sev = model.SeveritySuccess
	case model.NotifyLowStock, model.NotifyTrialExpiring:
		sev = model.SeverityWarning
	case model.NotifyOverdueInvoice:
		sev = model.SeverityError
	}

	msg := n.Title
	if n.Body != "" {
		msg = n.Title + ": " + n.Body
	}

	return model.AlertTicket{
		Severity:    sev,
		Message:     msg,
		Duration:    model.DefaultAlertDuration(sev),
		Dismissible: true,
	}
}
