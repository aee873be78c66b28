package model

import "time"

// ReminderType names the event a ledger entry deduplicates.
type ReminderType string

const (
	ReminderTaskDue        ReminderType = "task_due"
	ReminderInvoiceDue     ReminderType = "invoice_due"
	ReminderInvoiceOverdue ReminderType = "invoice_overdue"
)

// ReminderChannelInternal is the channel recorded for ledger rows that
// have no external delivery.
const ReminderChannelInternal = "internal"

// Reminder is one row of the reminder ledger. The tuple
// (Type, RefID, ScheduledFor) is unique, so a due date can only be
// scheduled once; a changed due date produces a new key.
type Reminder struct {
	ID           string       `json:"id" db:"id"`
	Type         ReminderType `json:"type" db:"type"`
	RefID        string       `json:"ref_id" db:"ref_id"`
	ScheduledFor time.Time    `json:"scheduled_for" db:"scheduled_for"`
	SentAt       *time.Time   `json:"sent_at,omitempty" db:"sent_at"`
	Channel      string       `json:"channel" db:"channel"`
	Payload      string       `json:"payload" db:"payload"`
}
