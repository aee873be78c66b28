// Package reminder scans tasks, invoices and appointments for due or
// overdue conditions, records in-app notifications, sends reminder
// emails and sets the gates that keep each event from firing twice.
package reminder

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/bizops/internal/mail"
	"github.com/nhle/bizops/internal/model"
	"github.com/nhle/bizops/internal/notify"
	"github.com/nhle/bizops/internal/store"
)

// Scan names, used in logs, metrics and Result.
const (
	ScanOverdueTasks         = "overdue_tasks"
	ScanUpcomingTasks        = "upcoming_tasks"
	ScanOverdueInvoices      = "overdue_invoices"
	ScanUpcomingAppointments = "upcoming_appointments"
	ScanLedger               = "ledger"
)

// AllScans lists every scan in the order RunAll runs them.
var AllScans = []string{
	ScanOverdueTasks,
	ScanUpcomingTasks,
	ScanOverdueInvoices,
	ScanUpcomingAppointments,
	ScanLedger,
}

// DefaultScans is what RunAll runs unless Options.Scans says otherwise.
// The ledger scan is opt-in.
var DefaultScans = []string{
	ScanOverdueTasks,
	ScanUpcomingTasks,
	ScanOverdueInvoices,
	ScanUpcomingAppointments,
}

// Store is the subset of persistence the engine needs.
type Store interface {
	DueTasks(ctx context.Context, q store.DueTaskQuery) ([]model.TaskReminder, error)
	MarkTaskReminded(ctx context.Context, id string) error

	MarkInvoicesOverdue(ctx context.Context, before time.Time) (int64, error)
	OverdueInvoicesForReminder(ctx context.Context, remindedBefore time.Time) ([]model.InvoiceReminder, error)
	MarkInvoiceReminded(ctx context.Context, id string, at time.Time) error
	UsersByRoles(ctx context.Context, roles []model.Role) ([]model.User, error)

	UpcomingAppointments(ctx context.Context, from, to time.Time) ([]model.AppointmentReminder, error)
	MarkAppointmentReminded(ctx context.Context, id string) error

	CreateNotifications(ctx context.Context, ns []model.Notification) error

	TasksDueBefore(ctx context.Context, before time.Time) ([]model.Task, error)
	InvoicesDueBefore(ctx context.Context, before time.Time) ([]model.Invoice, error)
	ReminderExists(ctx context.Context, typ model.ReminderType, refID string, scheduledFor time.Time) (bool, error)
	CreateReminder(ctx context.Context, r *model.Reminder) (bool, error)
	MarkReminderSent(ctx context.Context, id string, at time.Time) error
}

// LedgerHook delivers a freshly scheduled ledger entry. Returning nil
// stamps the entry as sent.
type LedgerHook func(ctx context.Context, r model.Reminder) error

// Options tune the scan windows.
type Options struct {
	// TaskWindow is how far ahead the upcoming-task scan looks.
	TaskWindow time.Duration

	// AppointmentWindow is how far ahead the appointment scan looks.
	AppointmentWindow time.Duration

	// InvoiceCooldown is the minimum gap between reminder rounds for
	// one overdue invoice.
	InvoiceCooldown time.Duration

	// LedgerTaskWindow and LedgerInvoiceWindow bound the ledger scan.
	LedgerTaskWindow    time.Duration
	LedgerInvoiceWindow time.Duration

	// LedgerHook, when set, is called for every inserted ledger entry.
	LedgerHook LedgerHook

	// Scans names the scans RunAll runs. Nil means DefaultScans.
	Scans []string

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// DefaultOptions returns the stock windows: 24h look-ahead for tasks and
// appointments, a 7-day invoice cooldown, and 2/3-day ledger horizons.
func DefaultOptions() Options {
	return Options{
		TaskWindow:          24 * time.Hour,
		AppointmentWindow:   24 * time.Hour,
		InvoiceCooldown:     7 * 24 * time.Hour,
		LedgerTaskWindow:    2 * 24 * time.Hour,
		LedgerInvoiceWindow: 3 * 24 * time.Hour,
		Scans:               DefaultScans,
		Now:                 time.Now,
	}
}

// OptionsFromConfig builds Options from the reminders config section,
// falling back to defaults for unset values. RunAll covers the scans
// whose jobs are enabled; a job missing from the config keeps its
// default.
func OptionsFromConfig(cfg model.ReminderConfig) Options {
	opts := DefaultOptions()
	opts.Scans = nil
	for _, name := range AllScans {
		if jc, ok := cfg.Jobs[name]; ok {
			if jc.Enabled {
				opts.Scans = append(opts.Scans, name)
			}
			continue
		}
		if name != ScanLedger {
			opts.Scans = append(opts.Scans, name)
		}
	}
	if opts.Scans == nil {
		opts.Scans = []string{}
	}

	if cfg.TaskWindowHours > 0 {
		opts.TaskWindow = time.Duration(cfg.TaskWindowHours) * time.Hour
	}
	if cfg.AppointmentWindowHours > 0 {
		opts.AppointmentWindow = time.Duration(cfg.AppointmentWindowHours) * time.Hour
	}
	if cfg.InvoiceCooldownDays > 0 {
		opts.InvoiceCooldown = time.Duration(cfg.InvoiceCooldownDays) * 24 * time.Hour
	}
	if cfg.LedgerTaskDays > 0 {
		opts.LedgerTaskWindow = time.Duration(cfg.LedgerTaskDays) * 24 * time.Hour
	}
	if cfg.LedgerInvoiceDays > 0 {
		opts.LedgerInvoiceWindow = time.Duration(cfg.LedgerInvoiceDays) * 24 * time.Hour
	}
	return opts
}

// Result summarizes one scan run.
type Result struct {
	Scan string `json:"scan"`

	// Matched is the number of entities selected.
	Matched int `json:"matched"`

	// Reminded is the number of entities whose gate was set.
	Reminded int `json:"reminded"`

	// Failed is the number of entities skipped because of an error.
	Failed int `json:"failed"`
}

// Engine runs the reminder scans.
type Engine struct {
	store     Store
	mail      mail.Channel
	publisher notify.Publisher
	logger    *zap.Logger
	metrics   *Metrics
	opts      Options
}

// New creates an engine. A nil publisher or metrics is replaced with a
// no-op version.
func New(s Store, ch mail.Channel, pub notify.Publisher, logger *zap.Logger, m *Metrics, opts Options) *Engine {
	if pub == nil {
		pub = notify.Nop{}
	}
	if m == nil {
		m = NewMetrics(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	def := DefaultOptions()
	if opts.TaskWindow <= 0 {
		opts.TaskWindow = def.TaskWindow
	}
	if opts.AppointmentWindow <= 0 {
		opts.AppointmentWindow = def.AppointmentWindow
	}
	if opts.InvoiceCooldown <= 0 {
		opts.InvoiceCooldown = def.InvoiceCooldown
	}
	if opts.LedgerTaskWindow <= 0 {
		opts.LedgerTaskWindow = def.LedgerTaskWindow
	}
	if opts.LedgerInvoiceWindow <= 0 {
		opts.LedgerInvoiceWindow = def.LedgerInvoiceWindow
	}
	if opts.Scans == nil {
		opts.Scans = def.Scans
	}

	return &Engine{
		store:     s,
		mail:      ch,
		publisher: pub,
		logger:    logger.With(zap.String("component", "reminder")),
		metrics:   m,
		opts:      opts,
	}
}

func (e *Engine) now() time.Time {
	return e.opts.Now().UTC()
}

// Scans returns the names RunAll runs, in order.
func (e *Engine) Scans() []string {
	out := make([]string, 0, len(e.opts.Scans))
	for _, name := range AllScans {
		if slices.Contains(e.opts.Scans, name) {
			out = append(out, name)
		}
	}
	return out
}

// Scan returns the scan with the given name.
func (e *Engine) Scan(name string) (func(context.Context) (Result, error), bool) {
	switch name {
	case ScanOverdueTasks:
		return e.ScanOverdueTasks, true
	case ScanUpcomingTasks:
		return e.ScanUpcomingTasks, true
	case ScanOverdueInvoices:
		return e.ScanOverdueInvoices, true
	case ScanUpcomingAppointments:
		return e.ScanUpcomingAppointments, true
	case ScanLedger:
		return e.ScanLedger, true
	}
	return nil, false
}

// RunAll runs the configured scans in sequence. A failing scan does not
// stop the ones after it; the first selection error is returned.
func (e *Engine) RunAll(ctx context.Context) ([]Result, error) {
	var (
		results  []Result
		firstErr error
	)
	for _, name := range e.Scans() {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		scan, _ := e.Scan(name)
		res, err := scan(ctx)
		results = append(results, res)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return results, firstErr
}

// begin starts timing a scan and returns the function that records its
// outcome.
func (e *Engine) begin(scan string) func(res *Result, err error) {
	start := time.Now()
	return func(res *Result, err error) {
		e.metrics.duration.WithLabelValues(scan).Observe(time.Since(start).Seconds())

		outcome := "ok"
		switch {
		case err != nil:
			outcome = "error"
		case res.Failed > 0:
			outcome = "partial"
		}
		e.metrics.scans.WithLabelValues(scan, outcome).Inc()

		if err != nil {
			e.logger.Error("scan failed", zap.String("scan", scan), zap.Error(err))
			return
		}
		e.logger.Info("scan finished",
			zap.String("scan", scan),
			zap.Int("matched", res.Matched),
			zap.Int("reminded", res.Reminded),
			zap.Int("failed", res.Failed),
			zap.Duration("took", time.Since(start)),
		)
	}
}

// notify writes a recipient group atomically and pushes it to live
// clients once stored.
func (e *Engine) notify(ctx context.Context, ns []model.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	if err := e.store.CreateNotifications(ctx, ns); err != nil {
		return fmt.Errorf("creating notifications: %w", err)
	}
	for _, n := range ns {
		e.metrics.notifications.WithLabelValues(string(n.Type)).Inc()
		e.publisher.Publish(n)
	}
	return nil
}

// email sends best effort: failures are logged and counted, never
// returned.
func (e *Engine) email(ctx context.Context, scan string, msg mail.Message) {
	err := e.mail.Send(ctx, msg)
	if err != nil {
		e.metrics.emails.WithLabelValues("failed").Inc()
		e.logger.Warn("reminder email failed",
			zap.String("scan", scan),
			zap.String("to", msg.To),
			zap.Error(err),
		)
		return
	}
	if !e.mail.Configured() {
		e.metrics.emails.WithLabelValues("skipped").Inc()
		return
	}
	e.metrics.emails.WithLabelValues("sent").Inc()
}

const (
	dateLayout     = "Jan 2, 2006"
	dateTimeLayout = "Jan 2, 2006 3:04 PM MST"
)
