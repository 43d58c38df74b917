package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline/internal/api"
	"github.com/ledgerline/ledgerline/internal/connectivity"
	"github.com/ledgerline/ledgerline/internal/model"
	"github.com/ledgerline/ledgerline/internal/queue"
	"github.com/ledgerline/ledgerline/tests/testutil"
)

// fakeBackend scripts per-call outcomes and records what it was asked
// to apply.
type fakeBackend struct {
	mu      sync.Mutex
	outcome func(call int, m model.QueuedMutation) error
	applied []model.QueuedMutation
	calls   int
}

func (b *fakeBackend) ApplyMutation(_ context.Context, m model.QueuedMutation) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.outcome != nil {
		if err := b.outcome(b.calls, m); err != nil {
			return err
		}
	}
	b.applied = append(b.applied, m)
	return nil
}

func (b *fakeBackend) appliedIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, len(b.applied))
	for i, m := range b.applied {
		ids[i] = m.ID
	}
	return ids
}

func connErr() error {
	return &api.ConnectivityError{Op: "POST /sales", Err: errors.New("connection refused")}
}

func payload() json.RawMessage {
	return json.RawMessage(`{"name":"espresso beans","amount":12.5}`)
}

func TestEnqueueRejectsUnknownTarget(t *testing.T) {
	q := queue.New(testutil.NewTestStore(t), &fakeBackend{}, nil)

	_, err := q.Enqueue(context.Background(), "invoice", model.OpCreate, payload())
	require.Error(t, err)

	_, err = q.Enqueue(context.Background(), model.EntitySale, "upsert", payload())
	require.Error(t, err)
}

func TestDrainReplaysInEnqueueOrder(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{}
	q := queue.New(testutil.NewTestStore(t), backend, nil)

	var want []string
	for _, et := range []model.EntityType{model.EntitySale, model.EntityProduct, model.EntitySale} {
		m, err := q.Enqueue(ctx, et, model.OpCreate, payload())
		require.NoError(t, err)
		want = append(want, m.ID)
	}

	report, err := q.Drain(ctx)
	require.NoError(t, err)

	assert.True(t, report.Clean())
	assert.Equal(t, want, report.Synced)
	assert.Equal(t, want, backend.appliedIDs())

	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDrainConnectivityFailureAbortsAndPreservesOrder(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{
		outcome: func(call int, _ model.QueuedMutation) error {
			if call == 2 {
				return connErr()
			}
			return nil
		},
	}
	q := queue.New(testutil.NewTestStore(t), backend, nil)

	var ids []string
	for i := 0; i < 5; i++ {
		m, err := q.Enqueue(ctx, model.EntitySale, model.OpCreate, payload())
		require.NoError(t, err)
		ids = append(ids, m.ID)
	}

	report, err := q.Drain(ctx)
	require.NoError(t, err)

	assert.True(t, report.Aborted)
	assert.False(t, report.AuthExpired)
	assert.Equal(t, ids[:1], report.Synced)
	assert.Equal(t, 4, report.Remaining)

	// The failed mutation and everything behind it stay queued in order.
	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 4)
	for i, m := range pending {
		assert.Equal(t, ids[i+1], m.ID)
	}

	// Once connectivity is back, a second drain finishes the job.
	backend.outcome = nil
	report, err = q.Drain(ctx)
	require.NoError(t, err)
	assert.True(t, report.Clean())
	assert.Equal(t, ids[1:], report.Synced)
}

func TestDrainPermanentRejectionDeadLettersAndContinues(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{
		outcome: func(call int, _ model.QueuedMutation) error {
			if call == 2 {
				return &api.ValidationError{Status: 422, Message: "amount must be positive"}
			}
			return nil
		},
	}
	q := queue.New(testutil.NewTestStore(t), backend, nil)

	var ids []string
	for i := 0; i < 3; i++ {
		m, err := q.Enqueue(ctx, model.EntityExpense, model.OpCreate, payload())
		require.NoError(t, err)
		ids = append(ids, m.ID)
	}

	report, err := q.Drain(ctx)
	require.NoError(t, err)

	assert.False(t, report.Aborted)
	assert.Equal(t, []string{ids[0], ids[2]}, report.Synced)
	require.Len(t, report.Dead, 1)
	assert.Equal(t, ids[1], report.Dead[0].ID)
	assert.Contains(t, report.Dead[0].Reason, "amount must be positive")

	dead, err := q.DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, ids[1], dead[0].ID)

	// Dead letters are excluded from future drains.
	report, err = q.Drain(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Synced)
	assert.Empty(t, report.Dead)
}

func TestDrainMalformedMutationDoesNotWedgeQueue(t *testing.T) {
	// An update captured without a record id can never be replayed. Run
	// the drain through the real client against a healthy backend: the
	// malformed row must be dead-lettered and everything behind it must
	// still sync, drain after drain.
	ctx := context.Background()

	var received []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received = append(received, r.Method+" "+r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	client := api.NewClient(srv.URL, nil, time.Second)

	q := queue.New(testutil.NewTestStore(t), client, nil)

	bad, err := q.Enqueue(ctx, model.EntitySale, model.OpUpdate, json.RawMessage(`{"amount":2}`))
	require.NoError(t, err)
	good, err := q.Enqueue(ctx, model.EntitySale, model.OpCreate, payload())
	require.NoError(t, err)

	report, err := q.Drain(ctx)
	require.NoError(t, err)

	assert.False(t, report.Aborted)
	assert.Equal(t, []string{good.ID}, report.Synced)
	require.Len(t, report.Dead, 1)
	assert.Equal(t, bad.ID, report.Dead[0].ID)
	assert.Equal(t, []string{"POST /sales"}, received)

	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	dead, err := q.DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, bad.ID, dead[0].ID)

	// A second drain finds nothing left to replay.
	report, err = q.Drain(ctx)
	require.NoError(t, err)
	assert.True(t, report.Clean())
	assert.Empty(t, report.Synced)
}

func TestDrainAuthFailureAborts(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{
		outcome: func(int, model.QueuedMutation) error {
			return &api.AuthError{Status: 401, Message: "token expired"}
		},
	}
	q := queue.New(testutil.NewTestStore(t), backend, nil)

	_, err := q.Enqueue(ctx, model.EntitySale, model.OpCreate, payload())
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, model.EntitySale, model.OpUpdate, payload())
	require.NoError(t, err)

	report, err := q.Drain(ctx)
	require.NoError(t, err)

	assert.True(t, report.Aborted)
	assert.True(t, report.AuthExpired)
	assert.Equal(t, 2, report.Remaining)
	assert.Empty(t, report.Synced)

	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestRequeueDeadLetter(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{
		outcome: func(int, model.QueuedMutation) error {
			return &api.ConflictError{Message: "version conflict"}
		},
	}
	q := queue.New(testutil.NewTestStore(t), backend, nil)

	m, err := q.Enqueue(ctx, model.EntityProduct, model.OpUpdate, payload())
	require.NoError(t, err)

	_, err = q.Drain(ctx)
	require.NoError(t, err)

	dead, err := q.DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)

	require.NoError(t, q.RequeueDeadLetter(ctx, dead[0].ID))

	dead, err = q.DeadLetters(ctx)
	require.NoError(t, err)
	assert.Empty(t, dead)

	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.NotEqual(t, m.ID, pending[0].ID, "requeue assigns a fresh id")
	assert.Equal(t, m.Payload, pending[0].Payload)
}

func TestSubmitQueuesWhenOffline(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{}
	monitor := connectivity.New(nil, time.Hour)
	monitor.SetOnline(false)

	q := queue.New(testutil.NewTestStore(t), backend, monitor)

	outcome, m, err := q.Submit(ctx, model.EntitySale, model.OpCreate, payload())
	require.NoError(t, err)

	assert.Equal(t, queue.SubmitQueued, outcome)
	assert.NotEmpty(t, m.ID)
	assert.Zero(t, backend.calls, "offline submit must not touch the backend")

	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestSubmitQueuesBehindPendingSameEntityType(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{}
	q := queue.New(testutil.NewTestStore(t), backend, nil)

	first, err := q.Enqueue(ctx, model.EntitySale, model.OpCreate, payload())
	require.NoError(t, err)

	// A direct write would overtake the queued sale, so it queues too.
	outcome, second, err := q.Submit(ctx, model.EntitySale, model.OpUpdate, payload())
	require.NoError(t, err)
	assert.Equal(t, queue.SubmitQueued, outcome)
	assert.Zero(t, backend.calls)

	// A different entity type has nothing to wait behind.
	outcome, _, err = q.Submit(ctx, model.EntityCustomer, model.OpCreate, payload())
	require.NoError(t, err)
	assert.Equal(t, queue.SubmitApplied, outcome)
	assert.Equal(t, 1, backend.calls)

	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, second.ID, pending[1].ID)
}

func TestSubmitCapturesOnConnectivityFailure(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{
		outcome: func(int, model.QueuedMutation) error { return connErr() },
	}
	q := queue.New(testutil.NewTestStore(t), backend, nil)

	outcome, _, err := q.Submit(ctx, model.EntitySale, model.OpCreate, payload())
	require.NoError(t, err)
	assert.Equal(t, queue.SubmitQueued, outcome)

	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestSubmitSurfacesPermanentErrors(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{
		outcome: func(int, model.QueuedMutation) error {
			return &api.ValidationError{Status: 400, Message: "name required"}
		},
	}
	q := queue.New(testutil.NewTestStore(t), backend, nil)

	_, _, err := q.Submit(ctx, model.EntitySale, model.OpCreate, payload())
	require.Error(t, err)

	// Rejected writes are never captured; queueing them cannot succeed.
	pending, lerr := q.ListPending(ctx)
	require.NoError(t, lerr)
	assert.Empty(t, pending)
}

func TestPruneSyncedKeepsRecent(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{}
	q := queue.New(testutil.NewTestStore(t), backend, nil)

	_, err := q.Enqueue(ctx, model.EntitySale, model.OpCreate, payload())
	require.NoError(t, err)

	_, err = q.Drain(ctx)
	require.NoError(t, err)

	// Synced moments ago: a 1h retention window keeps it.
	n, err := q.PruneSynced(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	// Zero retention prunes immediately.
	n, err = q.PruneSynced(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
