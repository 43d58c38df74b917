package queue

import "github.com/ledgerline/ledgerline/internal/model"

// MutationFailure describes a mutation the backend rejected permanently
// during a drain.
type MutationFailure struct {
	ID         string
	EntityType model.EntityType
	Operation  model.Operation
	Reason     string
}

// SyncReport summarizes the outcome of one drain so calling code can
// inform the user.
type SyncReport struct {
	// Synced lists the ids replayed successfully, in replay order.
	Synced []string

	// Dead lists mutations moved to the dead-letter list this drain.
	Dead []MutationFailure

	// Remaining is how many mutations are still pending after the drain.
	Remaining int

	// Aborted is true when the drain stopped early on a connectivity or
	// auth failure, leaving Remaining mutations queued in order.
	Aborted bool

	// AuthExpired is true when the abort was caused by an authentication
	// failure; the session must be re-established before retrying.
	AuthExpired bool

	// AbortReason carries the error that stopped the drain.
	AbortReason string
}

// Clean reports whether the drain replayed everything without rejections.
func (r SyncReport) Clean() bool {
	return !r.Aborted && len(r.Dead) == 0 && r.Remaining == 0
}
