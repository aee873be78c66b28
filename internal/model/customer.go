package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Customer is a billed client of the business.
type Customer struct {
	ID                 string          `json:"id" db:"id"`
	CompanyName        string          `json:"company_name" db:"company_name"`
	ContactName        string          `json:"contact_name" db:"contact_name"`
	Email              string          `json:"email" db:"email"`
	Phone              string          `json:"phone" db:"phone"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance" db:"outstanding_balance"`
	TotalSpent         decimal.Decimal `json:"total_spent" db:"total_spent"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
}

// DisplayName prefers the company name and falls back to the contact.
func (c Customer) DisplayName() string {
	if c.CompanyName != "" {
		return c.CompanyName
	}
	return c.ContactName
}

// Project groups tasks for a customer engagement.
type Project struct {
	ID         string    `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	CustomerID *string   `json:"customer_id,omitempty" db:"customer_id"`
	Status     string    `json:"status" db:"status"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
