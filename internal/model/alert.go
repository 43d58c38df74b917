package model

import "time"

// Severity classifies an alert ticket for styling and default duration.
// It never affects display ordering or eviction.
type Severity int

const (
	SeverityInfo Severity = iota
	SeveritySuccess
	SeverityWarning
	SeverityError
)

// String returns the lowercase severity name.
func (s Severity) String() string {
	switch s {
	case SeveritySuccess:
		return "success"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "info"
	}
}

// DefaultAlertDuration returns how long an alert of the given severity
// stays on screen by default. Errors linger longer than successes.
func DefaultAlertDuration(s Severity) time.Duration {
	switch s {
	case SeveritySuccess:
		return 4 * time.Second
	case SeverityWarning:
		return 6 * time.Second
	case SeverityError:
		return 8 * time.Second
	default:
		return 5 * time.Second
	}
}

// AlertTicket is a single on-screen transient message. Tickets are
// ephemeral UI state and are never persisted.
type AlertTicket struct {
	// ID is the unique ticket identifier, assigned at post time.
	ID string

	// Severity selects the visual style and default duration.
	Severity Severity

	// Message is the display text.
	Message string

	// CreatedAt is when the ticket was posted.
	CreatedAt time.Time

	// Duration is how long the ticket stays on screen once displayed.
	// Zero means sticky: the ticket stays until dismissed or swept by
	// the hard safety ceiling.
	Duration time.Duration

	// Dismissible controls whether the user may dismiss the ticket.
	Dismissible bool
}
