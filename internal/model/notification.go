package model

import "time"

// NotificationType classifies what triggered a notification.
type NotificationType string

const (
	NotificationTaskDue     NotificationType = "task_due"
	NotificationInvoiceDue  NotificationType = "invoice_due"
	NotificationAppointment NotificationType = "appointment"
)

// Entity types a notification can point back to.
const (
	EntityTask        = "task"
	EntityInvoice     = "invoice"
	EntityAppointment = "appointment"
)

// Notification is an in-app message owned by a single user.
type Notification struct {
	// ID is the unique identifier for this notification.
	ID string `json:"id" db:"id"`

	// UserID is the owner and only reader of the notification.
	UserID string `json:"user_id" db:"user_id"`

	// Type identifies the event that produced it.
	Type NotificationType `json:"type" db:"type"`

	// Title is the short headline shown in lists.
	Title string `json:"title" db:"title"`

	// Message is the human-readable notification text.
	Message string `json:"message" db:"message"`

	// IsRead indicates whether the owner has seen this notification.
	IsRead bool `json:"is_read" db:"is_read"`

	// RelatedEntityType and RelatedEntityID link back to the source entity.
	RelatedEntityType string `json:"related_entity_type" db:"related_entity_type"`
	RelatedEntityID   string `json:"related_entity_id" db:"related_entity_id"`

	// CreatedAt is when this notification was generated.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
