package connectivity

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartsOnline(t *testing.T) {
	m := New(nil, time.Hour)
	assert.True(t, m.Online())
}

func TestProbeCorrectsState(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)

	probe := func(context.Context) error {
		if fail.Load() {
			return errors.New("unreachable")
		}
		return nil
	}

	m := New(probe, 10*time.Millisecond)
	m.Start()
	defer m.Stop()

	require.Eventually(t, func() bool { return !m.Online() }, time.Second, time.Millisecond)

	fail.Store(false)
	require.Eventually(t, func() bool { return m.Online() }, time.Second, time.Millisecond)
}

func TestSubscribeSeesTransitions(t *testing.T) {
	m := New(nil, time.Hour)
	ch := m.Subscribe()

	m.SetOnline(false)

	select {
	case c := <-ch:
		assert.False(t, c.Online)
	case <-time.After(time.Second):
		t.Fatal("no transition broadcast")
	}

	// Setting the same state again is not a transition.
	m.SetOnline(false)
	select {
	case <-ch:
		t.Fatal("duplicate state broadcast")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestReportFlipsOnConnectivityErrors(t *testing.T) {
	m := New(nil, time.Hour)

	isConn := func(err error) bool {
		return err != nil && err.Error() == "conn"
	}

	m.Report(errors.New("conn"), isConn)
	assert.False(t, m.Online())

	// A non-connectivity error says nothing about reachability.
	m.Report(errors.New("validation"), isConn)
	assert.False(t, m.Online())

	m.Report(nil, isConn)
	assert.True(t, m.Online())
}

func TestStopHaltsProbing(t *testing.T) {
	var calls atomic.Int32
	probe := func(context.Context) error {
		calls.Add(1)
		return nil
	}

	m := New(probe, 5*time.Millisecond)
	m.Start()
	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, time.Millisecond)
	m.Stop()

	at := calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, at, calls.Load())
}
