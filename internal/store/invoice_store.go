package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/nhle/bizops/internal/model"
)

const invoiceColumns = `id, invoice_number, customer_id, issue_date, due_date,
	total_amount, status, last_reminder_date, created_at`

// CreateInvoice inserts a new invoice. Generates a UUID if ID is empty.
func (s *SQLStore) CreateInvoice(ctx context.Context, inv *model.Invoice) error {
	if strings.TrimSpace(inv.InvoiceNumber) == "" {
		return fmt.Errorf("invoice number must not be empty")
	}
	if inv.TotalAmount.IsNegative() {
		return fmt.Errorf("invoice %s total must not be negative", inv.InvoiceNumber)
	}
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}
	if inv.Status == "" {
		inv.Status = model.InvoiceStatusPending
	}
	now := time.Now().UTC()
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = now
	}
	if inv.IssueDate.IsZero() {
		inv.IssueDate = now
	}
	inv.CreatedAt = inv.CreatedAt.UTC()
	inv.IssueDate = inv.IssueDate.UTC()
	inv.DueDate = inv.DueDate.UTC()
	inv.LastReminderDate = utcPtr(inv.LastReminderDate)

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO invoices (`+invoiceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		inv.ID, inv.InvoiceNumber, inv.CustomerID, inv.IssueDate, inv.DueDate,
		inv.TotalAmount, inv.Status, inv.LastReminderDate, inv.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating invoice: %w", err)
	}
	return nil
}

// GetInvoice retrieves a single invoice by ID.
func (s *SQLStore) GetInvoice(ctx context.Context, id string) (*model.Invoice, error) {
	var inv model.Invoice
	err := s.db.GetContext(ctx, &inv,
		s.q("SELECT "+invoiceColumns+" FROM invoices WHERE id = ?"), id)
	if err != nil {
		return nil, fmt.Errorf("getting invoice %s: %w", id, notFound(err))
	}
	return &inv, nil
}

// MarkInvoicesOverdue moves every pending invoice due strictly before
// the given time to overdue and reports how many rows changed.
func (s *SQLStore) MarkInvoicesOverdue(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE invoices SET status = ?
		WHERE status = ? AND due_date < ?`),
		model.InvoiceStatusOverdue, model.InvoiceStatusPending, before.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("marking invoices overdue: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("marking invoices overdue: %w", err)
	}
	return n, nil
}

// OverdueInvoicesForReminder returns overdue invoices never reminded or
// last reminded at or before remindedBefore, with the customer contact.
func (s *SQLStore) OverdueInvoicesForReminder(ctx context.Context, remindedBefore time.Time) ([]model.InvoiceReminder, error) {
	var out []model.InvoiceReminder
	err := s.db.SelectContext(ctx, &out, s.q(`
		SELECT i.id, i.invoice_number, i.due_date, i.total_amount, i.customer_id,
			c.company_name, c.contact_name, c.email
		FROM invoices i
		JOIN customers c ON c.id = i.customer_id
		WHERE i.status = ?
			AND (i.last_reminder_date IS NULL OR i.last_reminder_date <= ?)
		ORDER BY i.due_date, i.id`),
		model.InvoiceStatusOverdue, remindedBefore.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("querying overdue invoices: %w", err)
	}
	return out, nil
}

// MarkInvoiceReminded records when the last reminder round went out.
func (s *SQLStore) MarkInvoiceReminded(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		s.q("UPDATE invoices SET last_reminder_date = ? WHERE id = ?"), at.UTC(), id)
	if err != nil {
		return fmt.Errorf("marking invoice %s reminded: %w", id, err)
	}
	if err := expectRow(res); err != nil {
		return fmt.Errorf("marking invoice %s reminded: %w", id, err)
	}
	return nil
}

// InvoicesDueBefore returns pending invoices due at or before the given
// time.
func (s *SQLStore) InvoicesDueBefore(ctx context.Context, before time.Time) ([]model.Invoice, error) {
	var invoices []model.Invoice
	err := s.db.SelectContext(ctx, &invoices, s.q(`
		SELECT `+invoiceColumns+` FROM invoices
		WHERE status = ? AND due_date <= ?
		ORDER BY due_date, id`),
		model.InvoiceStatusPending, before.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("querying invoices due before %s: %w", before.Format(time.RFC3339), err)
	}
	return invoices, nil
}

// RecordPayment stores a payment and settles the invoice once the paid
// total covers the invoice amount. It returns the resulting status.
func (s *SQLStore) RecordPayment(ctx context.Context, p *model.Payment) (model.InvoiceStatus, error) {
	if !p.Amount.IsPositive() {
		return "", fmt.Errorf("payment amount must be positive")
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if p.PaymentDate.IsZero() {
		p.PaymentDate = now
	}
	p.PaymentDate = p.PaymentDate.UTC()
	p.CreatedAt = now

	var status model.InvoiceStatus
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var inv model.Invoice
		err := tx.GetContext(ctx, &inv,
			tx.Rebind("SELECT "+invoiceColumns+" FROM invoices WHERE id = ?"), p.InvoiceID)
		if err != nil {
			return fmt.Errorf("recording payment for invoice %s: %w", p.InvoiceID, notFound(err))
		}
		if inv.Status == model.InvoiceStatusCancelled {
			return fmt.Errorf("recording payment for invoice %s: invoice is cancelled", p.InvoiceID)
		}

		_, err = tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO payments (id, invoice_id, amount, payment_date, method, reference, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`),
			p.ID, p.InvoiceID, p.Amount, p.PaymentDate, p.Method, p.Reference, p.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting payment: %w", err)
		}

		var amounts []decimal.Decimal
		err = tx.SelectContext(ctx, &amounts,
			tx.Rebind("SELECT amount FROM payments WHERE invoice_id = ?"), p.InvoiceID)
		if err != nil {
			return fmt.Errorf("summing payments: %w", err)
		}
		paid := decimal.Sum(decimal.Zero, amounts...)

		status = inv.Status
		if paid.GreaterThanOrEqual(inv.TotalAmount) && status != model.InvoiceStatusPaid {
			status = model.InvoiceStatusPaid
			_, err = tx.ExecContext(ctx,
				tx.Rebind("UPDATE invoices SET status = ? WHERE id = ?"), status, p.InvoiceID)
			if err != nil {
				return fmt.Errorf("settling invoice %s: %w", p.InvoiceID, err)
			}
		}

		var cust model.Customer
		err = tx.GetContext(ctx, &cust,
			tx.Rebind("SELECT "+customerColumns+" FROM customers WHERE id = ?"), inv.CustomerID)
		if err != nil {
			return fmt.Errorf("loading customer %s: %w", inv.CustomerID, notFound(err))
		}
		_, err = tx.ExecContext(ctx,
			tx.Rebind("UPDATE customers SET total_spent = ? WHERE id = ?"),
			cust.TotalSpent.Add(p.Amount), cust.ID,
		)
		if err != nil {
			return fmt.Errorf("updating customer %s totals: %w", cust.ID, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return status, nil
}
