package reminder

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/bizops/internal/mail"
	"github.com/nhle/bizops/internal/model"
	"github.com/nhle/bizops/internal/store"
)

// taskScan describes the text produced by one of the two task scans.
type taskScan struct {
	name    string
	title   string
	subject string
	message func(t model.TaskReminder) string
	closing string
	query   store.DueTaskQuery
}

// ScanOverdueTasks reminds assignees of open tasks whose due date has
// passed. Overdue and upcoming reminders share the task's gate, so a
// task gets at most one of the two per due date.
func (e *Engine) ScanOverdueTasks(ctx context.Context) (Result, error) {
	now := e.now()
	return e.scanTasks(ctx, taskScan{
		name:    ScanOverdueTasks,
		title:   "Overdue Task",
		subject: "Overdue Task Reminder",
		message: func(t model.TaskReminder) string {
			return fmt.Sprintf("Task %q is overdue. Due date was %s.",
				t.Title, t.DueDate.UTC().Format(dateLayout))
		},
		closing: "Please complete this task as soon as possible.",
		query:   store.DueTaskQuery{Before: now},
	})
}

// ScanUpcomingTasks reminds assignees of open tasks due within the task
// window.
func (e *Engine) ScanUpcomingTasks(ctx context.Context) (Result, error) {
	now := e.now()
	return e.scanTasks(ctx, taskScan{
		name:    ScanUpcomingTasks,
		title:   "Upcoming Task Deadline",
		subject: "Task Deadline Reminder",
		message: func(t model.TaskReminder) string {
			return fmt.Sprintf("Task %q is due within %s. Due date: %s.",
				t.Title, windowText(e.opts.TaskWindow), t.DueDate.UTC().Format(dateTimeLayout))
		},
		closing: "Please ensure you complete this task on time.",
		query: store.DueTaskQuery{
			After:         &now,
			Before:        now.Add(e.opts.TaskWindow),
			IncludeBefore: true,
		},
	})
}

func (e *Engine) scanTasks(ctx context.Context, ts taskScan) (res Result, err error) {
	res.Scan = ts.name
	done := e.begin(ts.name)
	defer func() { done(&res, err) }()

	tasks, err := e.store.DueTasks(ctx, ts.query)
	if err != nil {
		return res, fmt.Errorf("selecting tasks for %s: %w", ts.name, err)
	}
	res.Matched = len(tasks)

	for _, t := range tasks {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		log := e.logger.With(
			zap.String("scan", ts.name),
			zap.String("task_id", t.TaskID),
			zap.String("user_id", t.AssigneeID),
		)
		message := ts.message(t)

		err := e.notify(ctx, []model.Notification{{
			UserID:            t.AssigneeID,
			Type:              model.NotificationTaskDue,
			Title:             ts.title,
			Message:           message,
			RelatedEntityType: model.EntityTask,
			RelatedEntityID:   t.TaskID,
		}})
		if err != nil {
			log.Error("task reminder not recorded", zap.Error(err))
			res.Failed++
			continue
		}

		e.email(ctx, ts.name, mail.Message{
			To:      t.AssigneeEmail,
			ToName:  t.AssigneeFirst,
			Subject: ts.subject,
			Body:    fmt.Sprintf("Hi %s,\n\n%s\n\n%s", t.AssigneeFirst, message, ts.closing),
		})

		if err := e.store.MarkTaskReminded(ctx, t.TaskID); err != nil {
			log.Error("task reminder gate not set", zap.Error(err))
			res.Failed++
			continue
		}
		res.Reminded++
	}

	return res, nil
}

// windowText renders a look-ahead window for reminder text.
func windowText(d time.Duration) string {
	hours := int(d.Hours())
	if hours == 1 {
		return "1 hour"
	}
	return fmt.Sprintf("%d hours", hours)
}
