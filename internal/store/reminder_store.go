package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/bizops/internal/model"
)

const reminderColumns = "id, type, ref_id, scheduled_for, sent_at, channel, payload"

// ReminderExists reports whether the ledger already holds an entry for
// the exact (type, ref_id, scheduled_for) key.
func (s *SQLStore) ReminderExists(ctx context.Context, typ model.ReminderType, refID string, scheduledFor time.Time) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.q(`
		SELECT COUNT(*) FROM reminders
		WHERE type = ? AND ref_id = ? AND scheduled_for = ?`),
		typ, refID, scheduledFor.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("looking up reminder %s/%s: %w", typ, refID, err)
	}
	return n > 0, nil
}

// CreateReminder inserts a ledger entry. It reports false, without error,
// when an entry with the same key already exists.
func (s *SQLStore) CreateReminder(ctx context.Context, r *model.Reminder) (bool, error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Channel == "" {
		r.Channel = model.ReminderChannelInternal
	}
	if r.Payload == "" {
		r.Payload = "{}"
	}
	r.ScheduledFor = r.ScheduledFor.UTC()
	r.SentAt = utcPtr(r.SentAt)

	res, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO reminders (`+reminderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (type, ref_id, scheduled_for) DO NOTHING`),
		r.ID, r.Type, r.RefID, r.ScheduledFor, r.SentAt, r.Channel, r.Payload,
	)
	if err != nil {
		return false, fmt.Errorf("creating reminder %s/%s: %w", r.Type, r.RefID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("creating reminder %s/%s: %w", r.Type, r.RefID, err)
	}
	return n > 0, nil
}

// MarkReminderSent stamps the delivery time on a ledger entry.
func (s *SQLStore) MarkReminderSent(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		s.q("UPDATE reminders SET sent_at = ? WHERE id = ?"), at.UTC(), id)
	if err != nil {
		return fmt.Errorf("marking reminder %s sent: %w", id, err)
	}
	if err := expectRow(res); err != nil {
		return fmt.Errorf("marking reminder %s sent: %w", id, err)
	}
	return nil
}

// ListReminders returns the ledger entries for one entity, oldest
// schedule first.
func (s *SQLStore) ListReminders(ctx context.Context, refID string) ([]model.Reminder, error) {
	var rs []model.Reminder
	err := s.db.SelectContext(ctx, &rs, s.q(`
		SELECT `+reminderColumns+` FROM reminders
		WHERE ref_id = ? ORDER BY scheduled_for, type`), refID)
	if err != nil {
		return nil, fmt.Errorf("listing reminders for %s: %w", refID, err)
	}
	return rs, nil
}
