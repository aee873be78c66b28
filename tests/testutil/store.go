package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nhle/bizops/internal/model"
	"github.com/nhle/bizops/internal/store"
)

// NewTestStore creates an in-memory SQLStore with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.SQLStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

var seq atomic.Int64

func next() int64 { return seq.Add(1) }

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

// SeedUser inserts an active user with the given role.
func SeedUser(t *testing.T, s store.Store, role model.Role) *model.User {
	t.Helper()

	n := next()
	u := &model.User{
		Email:     fmt.Sprintf("user%d@example.com", n),
		FirstName: fmt.Sprintf("First%d", n),
		LastName:  "Tester",
		Role:      role,
		IsActive:  true,
	}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("seeding user: %v", err)
	}
	return u
}

// SeedCustomer inserts a customer with a contact email.
func SeedCustomer(t *testing.T, s store.Store) *model.Customer {
	t.Helper()

	n := next()
	c := &model.Customer{
		CompanyName: fmt.Sprintf("Acme %d", n),
		ContactName: "Jane Buyer",
		Email:       fmt.Sprintf("billing%d@acme.example", n),
	}
	if err := s.CreateCustomer(context.Background(), c); err != nil {
		t.Fatalf("seeding customer: %v", err)
	}
	return c
}

// SeedTask inserts a pending task due at due and assigned to assignee
// (which may be empty).
func SeedTask(t *testing.T, s store.Store, title string, due *time.Time, assignee string) *model.Task {
	t.Helper()

	task := &model.Task{Title: title, DueDate: due}
	if assignee != "" {
		task.AssignedTo = Ptr(assignee)
	}
	if err := s.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("seeding task: %v", err)
	}
	return task
}

// SeedInvoice inserts an invoice for the customer.
func SeedInvoice(t *testing.T, s store.Store, customerID string, due time.Time, amount string, status model.InvoiceStatus) *model.Invoice {
	t.Helper()

	inv := &model.Invoice{
		InvoiceNumber: fmt.Sprintf("INV-%04d", next()),
		CustomerID:    customerID,
		IssueDate:     due.AddDate(0, 0, -30),
		DueDate:       due,
		TotalAmount:   decimal.RequireFromString(amount),
		Status:        status,
	}
	if err := s.CreateInvoice(context.Background(), inv); err != nil {
		t.Fatalf("seeding invoice: %v", err)
	}
	return inv
}

// SeedAppointment inserts a one-hour appointment starting at start.
func SeedAppointment(t *testing.T, s store.Store, title string, start time.Time, attendees ...string) *model.Appointment {
	t.Helper()

	a := &model.Appointment{
		Title:       title,
		Location:    "Room 1",
		StartTime:   start,
		EndTime:     start.Add(time.Hour),
		AttendeeIDs: attendees,
	}
	if err := s.CreateAppointment(context.Background(), a); err != nil {
		t.Fatalf("seeding appointment: %v", err)
	}
	return a
}
