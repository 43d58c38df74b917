// Package session tracks the signed-in state and keeps the API token in
// the system keyring.
package session

import (
	"sync"
)

// Change is broadcast to subscribers when the signed-in state flips.
type Change struct {
	LoggedIn bool
}

// TokenStore persists the API token between runs.
type TokenStore interface {
	Get() (string, error)
	Set(token string) error
	Delete() error
}

// Manager owns the current session. Both the mutation queue and the
// notification poller stop and clear state when it transitions to
// signed-out.
type Manager struct {
	tokens TokenStore

	mu    sync.Mutex
	token string
	subs  []chan Change
}

// NewManager creates a Manager, restoring any token the store holds from
// a previous run.
func NewManager(tokens TokenStore) *Manager {
	m := &Manager{tokens: tokens}
	if tok, err := tokens.Get(); err == nil {
		m.token = tok
	}
	return m
}

// Token returns the current API token, or "" when signed out.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// LoggedIn reports whether a session token is present.
func (m *Manager) LoggedIn() bool {
	return m.Token() != ""
}

// SignIn stores the token and broadcasts the transition.
func (m *Manager) SignIn(token string) error {
	if err := m.tokens.Set(token); err != nil {
		return err
	}

	m.mu.Lock()
	was := m.token != ""
	m.token = token
	subs := m.snapshotSubs()
	m.mu.Unlock()

	if !was {
		broadcast(subs, Change{LoggedIn: true})
	}
	return nil
}

// SignOut drops the token and broadcasts the transition. The keyring
// delete is best-effort: the in-memory session ends either way.
func (m *Manager) SignOut() {
	_ = m.tokens.Delete()

	m.mu.Lock()
	was := m.token != ""
	m.token = ""
	subs := m.snapshotSubs()
	m.mu.Unlock()

	if was {
		broadcast(subs, Change{LoggedIn: false})
	}
}

// Expire ends the in-memory session without touching the stored token,
// used when the backend rejects the token as expired.
func (m *Manager) Expire() {
	m.mu.Lock()
	was := m.token != ""
	m.token = ""
	subs := m.snapshotSubs()
	m.mu.Unlock()

	if was {
		broadcast(subs, Change{LoggedIn: false})
	}
}

// Subscribe returns a channel receiving session transitions.
func (m *Manager) Subscribe() <-chan Change {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan Change, 4)
	m.subs = append(m.subs, ch)
	return ch
}

// snapshotSubs copies the subscriber list; callers must hold mu.
func (m *Manager) snapshotSubs() []chan Change {
	subs := make([]chan Change, len(m.subs))
	copy(subs, m.subs)
	return subs
}

func broadcast(subs []chan Change, c Change) {
	for _, ch := range subs {
		select {
		case ch <- c:
		default:
		}
	}
}
