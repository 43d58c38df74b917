package model

import (
	"encoding/json"
	"time"
)

// QueuedMutation is a create/update/delete operation captured while the
// backend was unreachable, persisted locally until it is replayed.
type QueuedMutation struct {
	// ID is the locally assigned unique identifier for this mutation.
	ID string `json:"id"`

	// EntityType identifies which record collection the mutation targets.
	EntityType EntityType `json:"entity_type"`

	// Operation is the kind of write to replay.
	Operation Operation `json:"operation"`

	// Payload holds the operation body. It is opaque to the queue and is
	// forwarded to the backend verbatim on replay. Update and delete
	// payloads carry the remote record id in an "id" field.
	Payload json.RawMessage `json:"payload"`

	// EnqueuedAt is when the mutation was captured.
	EnqueuedAt time.Time `json:"enqueued_at"`

	// Synced is true once the remote call has succeeded.
	Synced bool `json:"synced"`

	// SyncedAt is when the remote call succeeded.
	SyncedAt *time.Time `json:"synced_at,omitempty"`

	// Attempts counts how many times replay has been tried.
	Attempts int `json:"attempts"`
}

// DeadMutation is a mutation that the backend rejected permanently.
// It is excluded from replay and kept for the user to inspect, requeue
// after editing, or discard.
type DeadMutation struct {
	QueuedMutation

	// Reason is the backend's rejection message.
	Reason string `json:"reason"`

	// FailedAt is when the rejection was recorded.
	FailedAt time.Time `json:"failed_at"`
}
