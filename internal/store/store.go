package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ledgerline/ledgerline/internal/model"
)

// PersistenceError indicates that the local durable store itself failed.
// There is no fallback for this class of failure, so callers surface it
// directly to the user.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error (%s): %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsPersistence reports whether err (or any error in its chain) is a
// PersistenceError.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// persistErr wraps a storage failure in a PersistenceError.
func persistErr(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

// Store defines the persistence interface for queued mutations, dead
// letters, and notifications.
type Store interface {
	// === Mutation queue ===

	// InsertMutation persists a newly captured mutation.
	InsertMutation(ctx context.Context, m model.QueuedMutation) error

	// PendingMutations returns all unsynced mutations in enqueue order.
	PendingMutations(ctx context.Context) ([]model.QueuedMutation, error)

	// MarkMutationSynced records a successful replay.
	MarkMutationSynced(ctx context.Context, id string, at time.Time) error

	// DeleteMutation discards a mutation regardless of its state.
	DeleteMutation(ctx context.Context, id string) error

	// PruneSyncedBefore deletes synced mutations older than cutoff and
	// returns how many were removed.
	PruneSyncedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// MoveMutationToDeadLetter atomically moves a pending mutation into
	// the dead-letter list with the backend's rejection reason.
	MoveMutationToDeadLetter(ctx context.Context, id, reason string, at time.Time) error

	// DeadLetters returns permanently rejected mutations, newest first.
	DeadLetters(ctx context.Context) ([]model.DeadMutation, error)

	// DeleteDeadLetter discards a dead-lettered mutation.
	DeleteDeadLetter(ctx context.Context, id string) error

	// === Notifications ===

	// UpsertNotifications inserts or updates a batch of notifications.
	// Updates refresh the display fields but never flip a locally read
	// notification back to unread.
	UpsertNotifications(ctx context.Context, ns []model.Notification) error

	// Notifications returns up to limit notifications, newest first.
	Notifications(ctx context.Context, limit int) ([]model.Notification, error)

	// MarkNotificationRead marks a single notification as read.
	MarkNotificationRead(ctx context.Context, id string) error

	// MarkAllNotificationsRead marks every notification as read.
	MarkAllNotificationsRead(ctx context.Context) error

	// TrimNotifications deletes the oldest notifications beyond cap,
	// strictly by age regardless of read state.
	TrimNotifications(ctx context.Context, cap int) (int64, error)

	// ClearNotifications removes every notification (sign-out).
	ClearNotifications(ctx context.Context) error
}
