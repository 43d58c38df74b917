// Package connectivity tracks whether the backend is reachable and
// broadcasts transitions to interested subsystems.
package connectivity

import (
	"context"
	"sync"
	"time"
)

// Change is broadcast to subscribers when the online state flips.
type Change struct {
	Online bool
}

// ProbeFunc checks backend reachability. A nil return means online.
type ProbeFunc func(ctx context.Context) error

// probeTimeout bounds a single reachability probe.
const probeTimeout = 10 * time.Second

// Monitor owns the online/offline state. It combines active probing of
// the backend health endpoint with passive reports from API calls, so a
// failed write flips the state without waiting for the next probe.
type Monitor struct {
	probe    ProbeFunc
	interval time.Duration

	mu      sync.Mutex
	online  bool
	subs    []chan Change
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// New creates a Monitor. The monitor starts in the online state; the
// first probe corrects it if the backend is unreachable.
func New(probe ProbeFunc, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{
		probe:    probe,
		interval: interval,
		online:   true,
	}
}

// Start launches the background probe loop. Calling Start on a running
// monitor is a no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})

	go m.run(m.stopCh, m.doneCh)
}

// Stop halts the probe loop and waits for it to exit.
func (m *Monitor) Stop() {
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

// Online returns the current reachability state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe returns a channel receiving state transitions. Subscribers
// that fall behind miss intermediate flips; the latest state is always
// available through Online.
func (m *Monitor) Subscribe() <-chan Change {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan Change, 4)
	m.subs = append(m.subs, ch)
	return ch
}

// SetOnline records an observed reachability state and broadcasts the
// transition if the state flipped.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subs := make([]chan Change, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- Change{Online: online}:
		default:
			// Subscriber is not keeping up; it can read Online later.
		}
	}
}

// Report feeds the outcome of an unrelated API call into the monitor:
// a connectivity-class failure marks the backend offline, a success
// marks it online. Non-connectivity errors leave the state untouched.
func (m *Monitor) Report(err error, isConnectivity func(error) bool) {
	if err == nil {
		m.SetOnline(true)
		return
	}
	if isConnectivity(err) {
		m.SetOnline(false)
	}
}

// run is the probe loop.
func (m *Monitor) run(stop, done chan struct{}) {
	defer close(done)

	m.probeOnce()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.probeOnce()
		}
	}
}

// probeOnce performs a single reachability check.
func (m *Monitor) probeOnce() {
	if m.probe == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	m.SetOnline(m.probe(ctx) == nil)
}
