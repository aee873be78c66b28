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

const taskColumns = `id, title, description, status, priority, due_date,
	project_id, customer_id, assigned_to, reminder_sent, created_at, updated_at`

// CreateTask inserts a new task. Generates a UUID if ID is empty.
func (s *SQLStore) CreateTask(ctx context.Context, t *model.Task) error {
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("task title must not be empty")
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = model.TaskStatusPending
	}
	if t.Priority == "" {
		t.Priority = model.PriorityMedium
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.CreatedAt
	t.DueDate = utcPtr(t.DueDate)

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		t.ID, t.Title, t.Description, t.Status, t.Priority, t.DueDate,
		t.ProjectID, t.CustomerID, t.AssignedTo, t.ReminderSent,
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating task: %w", err)
	}
	return nil
}

// GetTask retrieves a single task by ID.
func (s *SQLStore) GetTask(ctx context.Context, id string) (*model.Task, error) {
	var t model.Task
	err := s.db.GetContext(ctx, &t,
		s.q("SELECT "+taskColumns+" FROM tasks WHERE id = ?"), id)
	if err != nil {
		return nil, fmt.Errorf("getting task %s: %w", id, notFound(err))
	}
	return &t, nil
}

// UpdateTaskStatus changes the lifecycle state of a task.
func (s *SQLStore) UpdateTaskStatus(ctx context.Context, id string, status model.TaskStatus) error {
	res, err := s.db.ExecContext(ctx,
		s.q("UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?"),
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating task %s status: %w", id, err)
	}
	if err := expectRow(res); err != nil {
		return fmt.Errorf("updating task %s status: %w", id, err)
	}
	return nil
}

// UpdateTaskDueDate moves a task's deadline. A changed due date re-arms
// the reminder gate; writing the same date leaves the gate alone.
func (s *SQLStore) UpdateTaskDueDate(ctx context.Context, id string, due *time.Time) error {
	due = utcPtr(due)

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var current model.Task
		err := tx.GetContext(ctx, &current,
			tx.Rebind("SELECT "+taskColumns+" FROM tasks WHERE id = ?"), id)
		if err != nil {
			return fmt.Errorf("updating task %s due date: %w", id, notFound(err))
		}

		reminderSent := current.ReminderSent
		if !sameInstant(current.DueDate, due) {
			reminderSent = false
		}

		_, err = tx.ExecContext(ctx, tx.Rebind(`
			UPDATE tasks SET due_date = ?, reminder_sent = ?, updated_at = ?
			WHERE id = ?`),
			due, reminderSent, time.Now().UTC(), id,
		)
		if err != nil {
			return fmt.Errorf("updating task %s due date: %w", id, err)
		}
		return nil
	})
}

// DueTasks returns open, assigned tasks whose reminder has not been sent
// and whose due date falls in the window described by q, joined with
// their assignee's contact details. Results are ordered by due date.
func (s *SQLStore) DueTasks(ctx context.Context, q DueTaskQuery) ([]model.TaskReminder, error) {
	conditions := []string{
		"t.status NOT IN (?, ?)",
		"t.due_date IS NOT NULL",
		"t.assigned_to IS NOT NULL",
		"t.reminder_sent = ?",
	}
	args := []interface{}{
		model.TaskStatusCompleted, model.TaskStatusCancelled, false,
	}

	if q.IncludeBefore {
		conditions = append(conditions, "t.due_date <= ?")
	} else {
		conditions = append(conditions, "t.due_date < ?")
	}
	args = append(args, q.Before.UTC())

	if q.After != nil {
		conditions = append(conditions, "t.due_date > ?")
		args = append(args, q.After.UTC())
	}

	query := `
		SELECT t.id, t.title, t.due_date, t.assigned_to,
			u.email, u.first_name, u.last_name
		FROM tasks t
		JOIN users u ON u.id = t.assigned_to
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY t.due_date, t.id`

	var due []model.TaskReminder
	if err := s.db.SelectContext(ctx, &due, s.q(query), args...); err != nil {
		return nil, fmt.Errorf("querying due tasks: %w", err)
	}
	return due, nil
}

// MarkTaskReminded sets the reminder gate on a task.
func (s *SQLStore) MarkTaskReminded(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		s.q("UPDATE tasks SET reminder_sent = ? WHERE id = ?"), true, id)
	if err != nil {
		return fmt.Errorf("marking task %s reminded: %w", id, err)
	}
	if err := expectRow(res); err != nil {
		return fmt.Errorf("marking task %s reminded: %w", id, err)
	}
	return nil
}

// TasksDueBefore returns open tasks due at or before the given time,
// regardless of assignment or reminder state. The ledger scan uses it.
func (s *SQLStore) TasksDueBefore(ctx context.Context, before time.Time) ([]model.Task, error) {
	var tasks []model.Task
	err := s.db.SelectContext(ctx, &tasks, s.q(`
		SELECT `+taskColumns+` FROM tasks
		WHERE due_date IS NOT NULL AND due_date <= ? AND status NOT IN (?, ?)
		ORDER BY due_date, id`),
		before.UTC(), model.TaskStatusCompleted, model.TaskStatusCancelled,
	)
	if err != nil {
		return nil, fmt.Errorf("querying tasks due before %s: %w", before.Format(time.RFC3339), err)
	}
	return tasks, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
