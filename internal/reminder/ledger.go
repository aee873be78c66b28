package reminder

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/bizops/internal/model"
)

// ledgerCandidate is an entity the ledger scan may schedule.
type ledgerCandidate struct {
	typ     model.ReminderType
	refID   string
	due     time.Time
	payload map[string]string
}

// ScanLedger is the ledger-based alternative to the boolean gates. Open
// tasks due within the ledger task window and pending invoices due
// within the ledger invoice window get one ledger entry per exact due
// date, so moving a due date schedules a fresh reminder. Pending
// invoices due before today are then marked overdue, the same cutoff the
// invoice scan uses.
func (e *Engine) ScanLedger(ctx context.Context) (res Result, err error) {
	res.Scan = ScanLedger
	done := e.begin(res.Scan)
	defer func() { done(&res, err) }()

	now := e.now()

	tasks, err := e.store.TasksDueBefore(ctx, now.Add(e.opts.LedgerTaskWindow))
	if err != nil {
		return res, fmt.Errorf("selecting tasks for ledger: %w", err)
	}
	invoices, err := e.store.InvoicesDueBefore(ctx, now.Add(e.opts.LedgerInvoiceWindow))
	if err != nil {
		return res, fmt.Errorf("selecting invoices for ledger: %w", err)
	}

	candidates := make([]ledgerCandidate, 0, len(tasks)+len(invoices))
	for _, inv := range invoices {
		candidates = append(candidates, ledgerCandidate{
			typ:   model.ReminderInvoiceDue,
			refID: inv.ID,
			due:   inv.DueDate,
			payload: map[string]string{
				"invoice_number": inv.InvoiceNumber,
				"amount":         inv.TotalAmount.StringFixed(2),
			},
		})
	}
	for _, t := range tasks {
		candidates = append(candidates, ledgerCandidate{
			typ:     model.ReminderTaskDue,
			refID:   t.ID,
			due:     *t.DueDate,
			payload: map[string]string{"title": t.Title},
		})
	}
	res.Matched = len(candidates)

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		scheduled, err := e.schedule(ctx, c, now)
		if err != nil {
			e.logger.Error("ledger entry not written",
				zap.String("scan", res.Scan),
				zap.String("type", string(c.typ)),
				zap.String("ref_id", c.refID),
				zap.Error(err),
			)
			res.Failed++
			continue
		}
		if scheduled {
			res.Reminded++
		}
	}

	if _, err := e.markOverdue(ctx, startOfDay(now)); err != nil {
		return res, err
	}

	return res, nil
}

// schedule inserts the ledger entry for c unless one already exists for
// the same due date, then hands it to the ledger hook.
func (e *Engine) schedule(ctx context.Context, c ledgerCandidate, now time.Time) (bool, error) {
	exists, err := e.store.ReminderExists(ctx, c.typ, c.refID, c.due)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	payload, err := json.Marshal(c.payload)
	if err != nil {
		return false, fmt.Errorf("encoding payload: %w", err)
	}

	r := model.Reminder{
		Type:         c.typ,
		RefID:        c.refID,
		ScheduledFor: c.due,
		Channel:      model.ReminderChannelInternal,
		Payload:      string(payload),
	}
	inserted, err := e.store.CreateReminder(ctx, &r)
	if err != nil || !inserted {
		return false, err
	}

	if e.opts.LedgerHook == nil {
		return true, nil
	}
	if err := e.opts.LedgerHook(ctx, r); err != nil {
		e.logger.Warn("ledger delivery failed",
			zap.String("reminder_id", r.ID),
			zap.String("ref_id", r.RefID),
			zap.Error(err),
		)
		return true, nil
	}
	if err := e.store.MarkReminderSent(ctx, r.ID, now); err != nil {
		return true, fmt.Errorf("stamping reminder %s sent: %w", r.ID, err)
	}
	return true, nil
}
