package alertq

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline/internal/model"
)

func fastOptions() Options {
	return Options{
		MaxVisible:    4,
		SweepInterval: 10 * time.Millisecond,
		Ceiling:       30 * time.Second,
	}
}

func startManager(t *testing.T, opts Options) *Manager {
	t.Helper()
	m := New(opts)
	m.Start()
	t.Cleanup(m.Stop)
	return m
}

func ticket(msg string, d time.Duration) model.AlertTicket {
	return model.AlertTicket{
		Severity:    model.SeverityInfo,
		Message:     msg,
		Duration:    d,
		Dismissible: true,
	}
}

func waitForSnapshot(t *testing.T, m *Manager, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	var snap Snapshot
	require.Eventually(t, func() bool {
		snap = m.Current()
		return cond(snap)
	}, time.Second, time.Millisecond)
	return snap
}

func TestPostDisplaysUpToMaxVisible(t *testing.T) {
	m := startManager(t, fastOptions())

	var ids []string
	for i := 0; i < 6; i++ {
		ids = append(ids, m.Post(ticket(fmt.Sprintf("alert %d", i), time.Minute)))
	}

	snap := waitForSnapshot(t, m, func(s Snapshot) bool {
		return len(s.Displayed) == 4 && s.Waiting == 2
	})

	// Displayed is newest first among those that got slots.
	assert.Equal(t, ids[3], snap.Displayed[0].ID)
	assert.Equal(t, ids[0], snap.Displayed[3].ID)
}

func TestDismissPromotesOldestWaitingFIFO(t *testing.T) {
	m := startManager(t, fastOptions())

	var ids []string
	for i := 0; i < 6; i++ {
		ids = append(ids, m.Post(ticket(fmt.Sprintf("alert %d", i), time.Minute)))
	}
	waitForSnapshot(t, m, func(s Snapshot) bool { return s.Waiting == 2 })

	m.Dismiss(ids[0])

	snap := waitForSnapshot(t, m, func(s Snapshot) bool { return s.Waiting == 1 })
	require.Len(t, snap.Displayed, 4)

	// The first waiting ticket (ids[4]) took the slot, not ids[5].
	displayedIDs := make(map[string]bool)
	for _, d := range snap.Displayed {
		displayedIDs[d.ID] = true
	}
	assert.True(t, displayedIDs[ids[4]])
	assert.False(t, displayedIDs[ids[5]])
	assert.False(t, displayedIDs[ids[0]])
}

func TestDismissWaitingTicket(t *testing.T) {
	m := startManager(t, fastOptions())

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, m.Post(ticket(fmt.Sprintf("alert %d", i), time.Minute)))
	}
	waitForSnapshot(t, m, func(s Snapshot) bool { return s.Waiting == 1 })

	m.Dismiss(ids[4])

	snap := waitForSnapshot(t, m, func(s Snapshot) bool { return s.Waiting == 0 })
	assert.Len(t, snap.Displayed, 4)
}

func TestAutoExpiry(t *testing.T) {
	m := startManager(t, fastOptions())

	m.Post(ticket("short lived", 30*time.Millisecond))
	waitForSnapshot(t, m, func(s Snapshot) bool { return len(s.Displayed) == 1 })

	waitForSnapshot(t, m, func(s Snapshot) bool { return len(s.Displayed) == 0 })
}

func TestExpiryPromotesWaiting(t *testing.T) {
	m := startManager(t, fastOptions())

	// Fill the display with short-lived tickets, then queue one more.
	for i := 0; i < 4; i++ {
		m.Post(ticket(fmt.Sprintf("short %d", i), 30*time.Millisecond))
	}
	waitingID := m.Post(ticket("waiting", time.Minute))

	snap := waitForSnapshot(t, m, func(s Snapshot) bool {
		return len(s.Displayed) == 1 && s.Waiting == 0
	})
	assert.Equal(t, waitingID, snap.Displayed[0].ID)
}

func TestStickyTicketSurvivesSweeps(t *testing.T) {
	m := startManager(t, fastOptions())

	id := m.Sticky(model.SeverityWarning, "needs attention")
	waitForSnapshot(t, m, func(s Snapshot) bool { return len(s.Displayed) == 1 })

	time.Sleep(100 * time.Millisecond)
	snap := m.Current()
	require.Len(t, snap.Displayed, 1)
	assert.Equal(t, id, snap.Displayed[0].ID)

	m.Dismiss(id)
	waitForSnapshot(t, m, func(s Snapshot) bool { return len(s.Displayed) == 0 })
}

func TestHardCeilingSweepsEverything(t *testing.T) {
	opts := fastOptions()
	opts.Ceiling = 50 * time.Millisecond
	m := startManager(t, opts)

	// Sticky and waiting tickets both fall to the ceiling.
	for i := 0; i < 5; i++ {
		m.Post(model.AlertTicket{
			Severity:    model.SeverityInfo,
			Message:     fmt.Sprintf("alert %d", i),
			Duration:    0,
			Dismissible: false,
		})
	}
	waitForSnapshot(t, m, func(s Snapshot) bool {
		return len(s.Displayed) == 4 && s.Waiting == 1
	})

	waitForSnapshot(t, m, func(s Snapshot) bool {
		return len(s.Displayed) == 0 && s.Waiting == 0
	})
}

func TestUpdatePatchesInPlace(t *testing.T) {
	m := startManager(t, fastOptions())

	id := m.Post(ticket("working...", 0))
	waitForSnapshot(t, m, func(s Snapshot) bool { return len(s.Displayed) == 1 })

	msg := "done"
	sev := model.SeveritySuccess
	dur := 40 * time.Millisecond
	m.Update(id, Patch{Message: &msg, Severity: &sev, Duration: &dur})

	snap := waitForSnapshot(t, m, func(s Snapshot) bool {
		return len(s.Displayed) == 1 && s.Displayed[0].Message == "done"
	})
	assert.Equal(t, id, snap.Displayed[0].ID)
	assert.Equal(t, model.SeveritySuccess, snap.Displayed[0].Severity)

	// The new duration starts counting from the update.
	waitForSnapshot(t, m, func(s Snapshot) bool { return len(s.Displayed) == 0 })
}

func TestSeverityHelpers(t *testing.T) {
	m := startManager(t, fastOptions())

	m.Success("saved")
	m.Error("failed")

	snap := waitForSnapshot(t, m, func(s Snapshot) bool { return len(s.Displayed) == 2 })
	assert.Equal(t, model.SeverityError, snap.Displayed[0].Severity)
	assert.Equal(t, model.SeveritySuccess, snap.Displayed[1].Severity)
}

func TestPostAfterStopIsDropped(t *testing.T) {
	m := New(fastOptions())
	m.Start()
	m.Stop()

	// Must not block or panic.
	id := m.Post(ticket("too late", time.Minute))
	assert.NotEmpty(t, id)
	assert.Empty(t, m.Current().Displayed)
}

func TestSubscribeReceivesSnapshots(t *testing.T) {
	m := startManager(t, fastOptions())
	ch := m.Subscribe()

	m.Post(ticket("hello", time.Minute))

	select {
	case snap := <-ch:
		require.Len(t, snap.Displayed, 1)
		assert.Equal(t, "hello", snap.Displayed[0].Message)
	case <-time.After(time.Second):
		t.Fatal("no snapshot published")
	}
}
