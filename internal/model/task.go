package model

import "time"

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// Closed reports whether the task no longer needs reminders.
func (s TaskStatus) Closed() bool {
	return s == TaskStatusCompleted || s == TaskStatusCancelled
}

// Task priority values.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Task is a unit of work that may be assigned to a user and carry a deadline.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id" db:"id"`

	// Title is the human-readable summary of the task.
	Title string `json:"title" db:"title"`

	// Description is the optional long-form body.
	Description string `json:"description" db:"description"`

	// Status is one of the TaskStatus* constants.
	Status TaskStatus `json:"status" db:"status"`

	// Priority is one of the Priority* constants.
	Priority string `json:"priority" db:"priority"`

	// DueDate is the deadline, if any.
	DueDate *time.Time `json:"due_date,omitempty" db:"due_date"`

	// ProjectID links the task to a project.
	ProjectID *string `json:"project_id,omitempty" db:"project_id"`

	// CustomerID links the task to a customer.
	CustomerID *string `json:"customer_id,omitempty" db:"customer_id"`

	// AssignedTo is the user responsible for the task.
	AssignedTo *string `json:"assigned_to,omitempty" db:"assigned_to"`

	// ReminderSent is set by the reminder scans and cleared only when
	// the due date changes.
	ReminderSent bool `json:"reminder_sent" db:"reminder_sent"`

	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is when the task was last modified.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TaskReminder is a task selected for a reminder together with the
// contact details of its assignee.
type TaskReminder struct {
	TaskID        string    `db:"id"`
	Title         string    `db:"title"`
	DueDate       time.Time `db:"due_date"`
	AssigneeID    string    `db:"assigned_to"`
	AssigneeEmail string    `db:"email"`
	AssigneeFirst string    `db:"first_name"`
	AssigneeLast  string    `db:"last_name"`
}
