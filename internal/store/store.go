package store

import (
	"context"
	"errors"
	"time"

	"github.com/nhle/bizops/internal/model"
)

// ErrNotFound is returned when a requested row does not exist or is not
// visible to the requesting user.
var ErrNotFound = errors.New("record not found")

// DueTaskQuery selects open, assigned, not yet reminded tasks by due date.
type DueTaskQuery struct {
	// After, when set, excludes tasks due at or before it.
	After *time.Time

	// Before is the upper bound on the due date.
	Before time.Time

	// IncludeBefore makes Before an inclusive bound.
	IncludeBefore bool
}

// NotificationFilter controls notification listing for one user.
type NotificationFilter struct {
	UnreadOnly bool
	Limit      int
	Offset     int
}

// Store defines the persistence interface for the business entities,
// the notification sink and the reminder ledger.
type Store interface {
	// === Users & customers ===

	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	UsersByRoles(ctx context.Context, roles []model.Role) ([]model.User, error)
	CreateCustomer(ctx context.Context, c *model.Customer) error
	GetCustomer(ctx context.Context, id string) (*model.Customer, error)
	CreateProject(ctx context.Context, p *model.Project) error

	// === Tasks ===

	CreateTask(ctx context.Context, t *model.Task) error
	GetTask(ctx context.Context, id string) (*model.Task, error)
	UpdateTaskStatus(ctx context.Context, id string, status model.TaskStatus) error
	UpdateTaskDueDate(ctx context.Context, id string, due *time.Time) error
	DueTasks(ctx context.Context, q DueTaskQuery) ([]model.TaskReminder, error)
	MarkTaskReminded(ctx context.Context, id string) error
	TasksDueBefore(ctx context.Context, before time.Time) ([]model.Task, error)

	// === Invoices & payments ===

	CreateInvoice(ctx context.Context, inv *model.Invoice) error
	GetInvoice(ctx context.Context, id string) (*model.Invoice, error)
	MarkInvoicesOverdue(ctx context.Context, before time.Time) (int64, error)
	OverdueInvoicesForReminder(ctx context.Context, remindedBefore time.Time) ([]model.InvoiceReminder, error)
	MarkInvoiceReminded(ctx context.Context, id string, at time.Time) error
	InvoicesDueBefore(ctx context.Context, before time.Time) ([]model.Invoice, error)
	RecordPayment(ctx context.Context, p *model.Payment) (model.InvoiceStatus, error)

	// === Appointments ===

	CreateAppointment(ctx context.Context, a *model.Appointment) error
	GetAppointment(ctx context.Context, id string) (*model.Appointment, error)
	SetAttendees(ctx context.Context, appointmentID string, userIDs []string) error
	RescheduleAppointment(ctx context.Context, id string, start, end time.Time) error
	UpcomingAppointments(ctx context.Context, from, to time.Time) ([]model.AppointmentReminder, error)
	MarkAppointmentReminded(ctx context.Context, id string) error

	// === Notifications ===

	CreateNotification(ctx context.Context, n *model.Notification) error
	CreateNotifications(ctx context.Context, ns []model.Notification) error
	ListNotifications(ctx context.Context, userID string, f NotificationFilter) ([]model.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkNotificationRead(ctx context.Context, userID, id string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error)
	DeleteNotification(ctx context.Context, userID, id string) error

	// === Reminder ledger ===

	ReminderExists(ctx context.Context, typ model.ReminderType, refID string, scheduledFor time.Time) (bool, error)
	CreateReminder(ctx context.Context, r *model.Reminder) (bool, error)
	MarkReminderSent(ctx context.Context, id string, at time.Time) error
	ListReminders(ctx context.Context, refID string) ([]model.Reminder, error)

	// === Job leases ===

	AcquireJobLease(ctx context.Context, name, holder string, now, until time.Time) (bool, error)
	ReleaseJobLease(ctx context.Context, name, holder string) error

	Close() error
}
