package model

import "time"

// NotificationType categorizes a backend-originated notification event.
type NotificationType string

const (
	NotifyLowStock        NotificationType = "low-stock"
	NotifyPaymentReceived NotificationType = "payment-received"
	NotifyTrialExpiring   NotificationType = "trial-expiring"
	NotifyOverdueInvoice  NotificationType = "overdue-invoice"
)

// Notification represents a backend event surfaced to the user, such as a
// product running low on stock or a payment arriving.
type Notification struct {
	// ID is the server-assigned identifier, or a locally synthesized one
	// when the server did not provide any.
	ID string `json:"id"`

	// Type is the event category.
	Type NotificationType `json:"type"`

	// Title is the short display heading.
	Title string `json:"title"`

	// Body is the longer display text.
	Body string `json:"body"`

	// Data holds event-specific values used for click-through navigation
	// (e.g. product_id, quantity).
	Data map[string]string `json:"data,omitempty"`

	// CreatedAt is the event's origin timestamp.
	CreatedAt time.Time `json:"created_at"`

	// Read indicates whether the user has seen this notification.
	Read bool `json:"read"`
}
