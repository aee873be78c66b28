package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nhle/bizops/internal/model"
)

const userColumns = "id, email, first_name, last_name, role, is_active, created_at"

// CreateUser inserts a new user. Generates a UUID if ID is empty.
func (s *SQLStore) CreateUser(ctx context.Context, u *model.User) error {
	if strings.TrimSpace(u.Email) == "" {
		return fmt.Errorf("user email must not be empty")
	}
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.Role == "" {
		u.Role = model.RoleEmployee
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	u.CreatedAt = u.CreatedAt.UTC()

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		u.ID, u.Email, u.FirstName, u.LastName, u.Role, u.IsActive, u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

// GetUser retrieves a single user by ID.
func (s *SQLStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := s.db.GetContext(ctx, &u,
		s.q("SELECT "+userColumns+" FROM users WHERE id = ?"), id)
	if err != nil {
		return nil, fmt.Errorf("getting user %s: %w", id, notFound(err))
	}
	return &u, nil
}

// UsersByRoles returns the active users holding any of roles.
func (s *SQLStore) UsersByRoles(ctx context.Context, roles []model.Role) ([]model.User, error) {
	if len(roles) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(
		"SELECT "+userColumns+" FROM users WHERE is_active = ? AND role IN (?) ORDER BY email",
		true, roles,
	)
	if err != nil {
		return nil, fmt.Errorf("building role query: %w", err)
	}

	var users []model.User
	if err := s.db.SelectContext(ctx, &users, s.q(query), args...); err != nil {
		return nil, fmt.Errorf("querying users by role: %w", err)
	}
	return users, nil
}

const customerColumns = `id, company_name, contact_name, email, phone,
	outstanding_balance, total_spent, created_at`

// CreateCustomer inserts a new customer. Generates a UUID if ID is empty.
func (s *SQLStore) CreateCustomer(ctx context.Context, c *model.Customer) error {
	if strings.TrimSpace(c.CompanyName) == "" && strings.TrimSpace(c.ContactName) == "" {
		return fmt.Errorf("customer needs a company or contact name")
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	c.CreatedAt = c.CreatedAt.UTC()

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO customers (`+customerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		c.ID, c.CompanyName, c.ContactName, c.Email, c.Phone,
		c.OutstandingBalance, c.TotalSpent, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating customer: %w", err)
	}
	return nil
}

// GetCustomer retrieves a single customer by ID.
func (s *SQLStore) GetCustomer(ctx context.Context, id string) (*model.Customer, error) {
	var c model.Customer
	err := s.db.GetContext(ctx, &c,
		s.q("SELECT "+customerColumns+" FROM customers WHERE id = ?"), id)
	if err != nil {
		return nil, fmt.Errorf("getting customer %s: %w", id, notFound(err))
	}
	return &c, nil
}

// CreateProject inserts a new project. Generates a UUID if ID is empty.
func (s *SQLStore) CreateProject(ctx context.Context, p *model.Project) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("project name must not be empty")
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Status == "" {
		p.Status = "active"
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	p.CreatedAt = p.CreatedAt.UTC()

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO projects (id, name, customer_id, status, created_at)
		VALUES (?, ?, ?, ?, ?)`),
		p.ID, p.Name, p.CustomerID, p.Status, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating project: %w", err)
	}
	return nil
}
