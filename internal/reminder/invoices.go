package reminder

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/bizops/internal/mail"
	"github.com/nhle/bizops/internal/model"
)

// ScanOverdueInvoices runs in two phases. Phase A moves every pending
// invoice due before today to overdue. Phase B sends a reminder round
// for each overdue invoice not reminded within the cooldown: one
// notification per billing user and one email to the customer. Rounds
// repeat every cooldown for as long as the invoice stays overdue.
func (e *Engine) ScanOverdueInvoices(ctx context.Context) (res Result, err error) {
	res.Scan = ScanOverdueInvoices
	done := e.begin(res.Scan)
	defer func() { done(&res, err) }()

	now := e.now()

	if _, err := e.markOverdue(ctx, startOfDay(now)); err != nil {
		return res, err
	}

	invoices, err := e.store.OverdueInvoicesForReminder(ctx, now.Add(-e.opts.InvoiceCooldown))
	if err != nil {
		return res, fmt.Errorf("selecting overdue invoices: %w", err)
	}
	res.Matched = len(invoices)
	if len(invoices) == 0 {
		return res, nil
	}

	staff, err := e.store.UsersByRoles(ctx, model.BillingRoles)
	if err != nil {
		return res, fmt.Errorf("selecting billing users: %w", err)
	}
	if len(staff) == 0 {
		e.logger.Warn("no active billing users to notify", zap.String("scan", res.Scan))
	}

	for _, inv := range invoices {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		log := e.logger.With(
			zap.String("scan", res.Scan),
			zap.String("invoice_id", inv.InvoiceID),
			zap.String("invoice_number", inv.InvoiceNumber),
		)
		amount := inv.TotalAmount.StringFixed(2)
		message := fmt.Sprintf("Invoice %s for %s is overdue. Amount: $%s",
			inv.InvoiceNumber, inv.CustomerLabel(), amount)

		ns := make([]model.Notification, 0, len(staff))
		for _, u := range staff {
			ns = append(ns, model.Notification{
				UserID:            u.ID,
				Type:              model.NotificationInvoiceDue,
				Title:             "Overdue Invoice",
				Message:           message,
				RelatedEntityType: model.EntityInvoice,
				RelatedEntityID:   inv.InvoiceID,
			})
		}
		if err := e.notify(ctx, ns); err != nil {
			log.Error("invoice reminder not recorded", zap.Error(err))
			res.Failed++
			continue
		}

		e.email(ctx, res.Scan, mail.Message{
			To:      inv.CustomerEmail,
			ToName:  inv.ContactName,
			Subject: "Payment Reminder - Overdue Invoice",
			Body: fmt.Sprintf(
				"Dear %s,\n\nThis is a reminder that Invoice %s is now overdue.\n\n"+
					"Amount Due: $%s\nDue Date: %s\n\nPlease submit your payment as soon as possible.",
				inv.ContactName, inv.InvoiceNumber, amount, inv.DueDate.UTC().Format(dateLayout),
			),
		})

		if err := e.store.MarkInvoiceReminded(ctx, inv.InvoiceID, now); err != nil {
			log.Error("invoice reminder date not set", zap.Error(err))
			res.Failed++
			continue
		}
		res.Reminded++
	}

	return res, nil
}

// markOverdue moves pending invoices due before cutoff to overdue.
func (e *Engine) markOverdue(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := e.store.MarkInvoicesOverdue(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("marking invoices overdue: %w", err)
	}
	if n > 0 {
		e.logger.Info("invoices marked overdue", zap.Int64("count", n))
	}
	return n, nil
}

// startOfDay truncates t to midnight UTC.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
