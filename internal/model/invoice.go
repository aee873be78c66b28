package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus is the billing state of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "pending"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusOverdue   InvoiceStatus = "overdue"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// Invoice is a bill issued to a customer.
type Invoice struct {
	ID               string          `json:"id" db:"id"`
	InvoiceNumber    string          `json:"invoice_number" db:"invoice_number"`
	CustomerID       string          `json:"customer_id" db:"customer_id"`
	IssueDate        time.Time       `json:"issue_date" db:"issue_date"`
	DueDate          time.Time       `json:"due_date" db:"due_date"`
	TotalAmount      decimal.Decimal `json:"total_amount" db:"total_amount"`
	Status           InvoiceStatus   `json:"status" db:"status"`
	LastReminderDate *time.Time      `json:"last_reminder_date,omitempty" db:"last_reminder_date"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
}

// Payment is money received against an invoice.
type Payment struct {
	ID          string          `json:"id" db:"id"`
	InvoiceID   string          `json:"invoice_id" db:"invoice_id"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	PaymentDate time.Time       `json:"payment_date" db:"payment_date"`
	Method      string          `json:"method" db:"method"`
	Reference   string          `json:"reference" db:"reference"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// InvoiceReminder is an overdue invoice joined with the customer
// contact that receives the payment reminder.
type InvoiceReminder struct {
	InvoiceID     string          `db:"id"`
	InvoiceNumber string          `db:"invoice_number"`
	DueDate       time.Time       `db:"due_date"`
	TotalAmount   decimal.Decimal `db:"total_amount"`
	CustomerID    string          `db:"customer_id"`
	CompanyName   string          `db:"company_name"`
	ContactName   string          `db:"contact_name"`
	CustomerEmail string          `db:"email"`
}

// CustomerLabel is the name used for the customer in reminder text.
func (r InvoiceReminder) CustomerLabel() string {
	if r.CompanyName != "" {
		return r.CompanyName
	}
	return r.ContactName
}
