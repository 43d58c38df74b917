// Package queue implements the offline mutation queue: writes attempted
// while the backend is unreachable are persisted locally and replayed in
// order once connectivity returns.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerline/ledgerline/internal/api"
	"github.com/ledgerline/ledgerline/internal/connectivity"
	"github.com/ledgerline/ledgerline/internal/model"
	"github.com/ledgerline/ledgerline/internal/store"
)

// ErrDrainInProgress is returned when Drain is called while another
// drain is still running. The running drain covers the same work.
var ErrDrainInProgress = errors.New("drain already in progress")

// Backend applies a single mutation to the remote API.
type Backend interface {
	ApplyMutation(ctx context.Context, m model.QueuedMutation) error
}

// SubmitOutcome reports how Submit handled a write.
type SubmitOutcome int

const (
	// SubmitApplied means the write reached the backend directly.
	SubmitApplied SubmitOutcome = iota

	// SubmitQueued means the write was captured locally for later replay.
	SubmitQueued
)

// Queue persists mutations issued while offline and replays them in
// enqueue order, FIFO per entity type. Drains run one at a time and are
// only triggered by connectivity restoration, explicit user action, or
// application start, never a timer.
type Queue struct {
	store   store.Store
	backend Backend
	monitor *connectivity.Monitor

	mu       sync.Mutex
	draining bool
	subs     []chan int
}

// New creates a Queue. The monitor is optional; when present, Submit
// consults it before trying the backend and feeds call outcomes back
// into it.
func New(s store.Store, b Backend, mon *connectivity.Monitor) *Queue {
	return &Queue{
		store:   s,
		backend: b,
		monitor: mon,
	}
}

// Enqueue captures a mutation for later replay. It never fails for
// network reasons; the only error it can return is a
// store.PersistenceError, meaning the action may be lost.
func (q *Queue) Enqueue(
	ctx context.Context,
	entityType model.EntityType,
	op model.Operation,
	payload json.RawMessage,
) (model.QueuedMutation, error) {
	if err := model.ValidateMutation(entityType, op); err != nil {
		return model.QueuedMutation{}, err
	}

	m := model.QueuedMutation{
		ID:         uuid.New().String(),
		EntityType: entityType,
		Operation:  op,
		Payload:    payload,
		EnqueuedAt: time.Now(),
	}

	if err := q.store.InsertMutation(ctx, m); err != nil {
		return model.QueuedMutation{}, err
	}

	q.publishCount(ctx)
	return m, nil
}

// ListPending returns all unsynced mutations in enqueue order.
func (q *Queue) ListPending(ctx context.Context) ([]model.QueuedMutation, error) {
	return q.store.PendingMutations(ctx)
}

// Remove discards a specific pending mutation.
func (q *Queue) Remove(ctx context.Context, id string) error {
	if err := q.store.DeleteMutation(ctx, id); err != nil {
		return err
	}
	q.publishCount(ctx)
	return nil
}

// DeadLetters returns mutations the backend rejected permanently.
func (q *Queue) DeadLetters(ctx context.Context) ([]model.DeadMutation, error) {
	return q.store.DeadLetters(ctx)
}

// DiscardDeadLetter drops a dead-lettered mutation for good.
func (q *Queue) DiscardDeadLetter(ctx context.Context, id string) error {
	return q.store.DeleteDeadLetter(ctx, id)
}

// RequeueDeadLetter moves a dead-lettered mutation back to the end of
// the pending queue, for retry after the user has fixed the underlying
// problem.
func (q *Queue) RequeueDeadLetter(ctx context.Context, id string) error {
	dead, err := q.store.DeadLetters(ctx)
	if err != nil {
		return err
	}

	for _, d := range dead {
		if d.ID != id {
			continue
		}
		m := d.QueuedMutation
		m.ID = uuid.New().String()
		m.EnqueuedAt = time.Now()
		m.Attempts = 0
		if err := q.store.InsertMutation(ctx, m); err != nil {
			return err
		}
		if err := q.store.DeleteDeadLetter(ctx, id); err != nil {
			return err
		}
		q.publishCount(ctx)
		return nil
	}

	return errors.New("dead letter not found: " + id)
}

// PendingCount returns the number of unsynced mutations.
func (q *Queue) PendingCount(ctx context.Context) int {
	pending, err := q.store.PendingMutations(ctx)
	if err != nil {
		return 0
	}
	return len(pending)
}

// SubscribeCount returns a channel receiving the pending count whenever
// it changes, for UI badges.
func (q *Queue) SubscribeCount() <-chan int {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch := make(chan int, 4)
	q.subs = append(q.subs, ch)
	return ch
}

// publishCount pushes the current pending count to subscribers without
// blocking.
func (q *Queue) publishCount(ctx context.Context) {
	count := q.PendingCount(ctx)

	q.mu.Lock()
	subs := make([]chan int, len(q.subs))
	copy(subs, q.subs)
	q.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- count:
		default:
		}
	}
}

// Submit is the write path UI code calls. It applies the mutation
// directly when the backend is reachable and no earlier mutation for the
// same entity type is queued (a direct write would otherwise overtake
// the queue and break FIFO). On a connectivity failure the mutation is
// captured instead of surfacing the error.
func (q *Queue) Submit(
	ctx context.Context,
	entityType model.EntityType,
	op model.Operation,
	payload json.RawMessage,
) (SubmitOutcome, model.QueuedMutation, error) {
	if err := model.ValidateMutation(entityType, op); err != nil {
		return SubmitApplied, model.QueuedMutation{}, err
	}

	if q.monitor != nil && !q.monitor.Online() {
		m, err := q.Enqueue(ctx, entityType, op, payload)
		return SubmitQueued, m, err
	}

	if q.hasPendingFor(ctx, entityType) {
		m, err := q.Enqueue(ctx, entityType, op, payload)
		return SubmitQueued, m, err
	}

	m := model.QueuedMutation{
		ID:         uuid.New().String(),
		EntityType: entityType,
		Operation:  op,
		Payload:    payload,
		EnqueuedAt: time.Now(),
	}

	err := q.backend.ApplyMutation(ctx, m)
	if q.monitor != nil {
		q.monitor.Report(err, api.IsConnectivity)
	}
	if err == nil {
		return SubmitApplied, m, nil
	}
	if api.IsConnectivity(err) {
		queued, qerr := q.Enqueue(ctx, entityType, op, payload)
		return SubmitQueued, queued, qerr
	}

	// Permanent rejections and auth failures go back to the caller;
	// queueing them could never succeed.
	return SubmitApplied, m, err
}

// hasPendingFor reports whether any unsynced mutation targets the given
// entity type.
func (q *Queue) hasPendingFor(ctx context.Context, entityType model.EntityType) bool {
	pending, err := q.store.PendingMutations(ctx)
	if err != nil {
		return false
	}
	for _, m := range pending {
		if m.EntityType == entityType {
			return true
		}
	}
	return false
}

// Drain replays every pending mutation in enqueue order. A connectivity
// or auth failure aborts immediately, leaving the remainder queued in
// order; a permanent rejection dead-letters that single mutation and
// continues. Drain never runs concurrently with itself.
func (q *Queue) Drain(ctx context.Context) (SyncReport, error) {
	q.mu.Lock()
	if q.draining {
		q.mu.Unlock()
		return SyncReport{}, ErrDrainInProgress
	}
	q.draining = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.draining = false
		q.mu.Unlock()
	}()

	report := SyncReport{}

	pending, err := q.store.PendingMutations(ctx)
	if err != nil {
		return report, err
	}

	for i, m := range pending {
		err := q.backend.ApplyMutation(ctx, m)
		if q.monitor != nil {
			q.monitor.Report(err, api.IsConnectivity)
		}

		switch {
		case err == nil:
			if err := q.store.MarkMutationSynced(ctx, m.ID, time.Now()); err != nil {
				report.Remaining = len(pending) - i
				q.publishCount(ctx)
				return report, err
			}
			report.Synced = append(report.Synced, m.ID)

		case api.IsAuth(err):
			report.Aborted = true
			report.AuthExpired = true
			report.AbortReason = err.Error()
			report.Remaining = len(pending) - i
			q.publishCount(ctx)
			return report, nil

		case api.IsPermanent(err):
			if dlErr := q.store.MoveMutationToDeadLetter(ctx, m.ID, err.Error(), time.Now()); dlErr != nil {
				report.Remaining = len(pending) - i
				q.publishCount(ctx)
				return report, dlErr
			}
			report.Dead = append(report.Dead, MutationFailure{
				ID:         m.ID,
				EntityType: m.EntityType,
				Operation:  m.Operation,
				Reason:     err.Error(),
			})

		default:
			// Connectivity failures and anything unclassified are
			// treated as retryable: stop here so order is preserved.
			report.Aborted = true
			report.AbortReason = err.Error()
			report.Remaining = len(pending) - i
			q.publishCount(ctx)
			return report, nil
		}
	}

	q.publishCount(ctx)
	return report, nil
}

// PruneSynced deletes synced mutations older than the retention window,
// typically called once at application start.
func (q *Queue) PruneSynced(ctx context.Context, retention time.Duration) (int64, error) {
	return q.store.PruneSyncedBefore(ctx, time.Now().Add(-retention))
}
