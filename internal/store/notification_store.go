package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nhle/bizops/internal/model"
)

const notificationColumns = `id, user_id, type, title, message, is_read,
	related_entity_type, related_entity_id, created_at`

const insertNotification = `
	INSERT INTO notifications (` + notificationColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// CreateNotification inserts a single notification record.
func (s *SQLStore) CreateNotification(ctx context.Context, n *model.Notification) error {
	prepareNotification(n, time.Now().UTC())

	_, err := s.db.ExecContext(ctx, s.q(insertNotification), notificationArgs(n)...)
	if err != nil {
		return fmt.Errorf("creating notification: %w", err)
	}
	return nil
}

// CreateNotifications inserts a group of notifications in one
// transaction: either every recipient gets its record or none does.
// IDs and timestamps are filled in place.
func (s *SQLStore) CreateNotifications(ctx context.Context, ns []model.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	now := time.Now().UTC()

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, tx.Rebind(insertNotification))
		if err != nil {
			return fmt.Errorf("preparing notification insert: %w", err)
		}
		defer stmt.Close()

		for i := range ns {
			prepareNotification(&ns[i], now)
			if _, err := stmt.ExecContext(ctx, notificationArgs(&ns[i])...); err != nil {
				return fmt.Errorf("creating notification for user %s: %w", ns[i].UserID, err)
			}
		}
		return nil
	})
}

func prepareNotification(n *model.Notification, now time.Time) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.CreatedAt = n.CreatedAt.UTC()
}

func notificationArgs(n *model.Notification) []interface{} {
	return []interface{}{
		n.ID, n.UserID, n.Type, n.Title, n.Message, n.IsRead,
		n.RelatedEntityType, n.RelatedEntityID, n.CreatedAt,
	}
}

// ListNotifications returns a user's notifications, newest first.
func (s *SQLStore) ListNotifications(ctx context.Context, userID string, f NotificationFilter) ([]model.Notification, error) {
	query := "SELECT " + notificationColumns + " FROM notifications WHERE user_id = ?"
	args := []interface{}{userID}

	if f.UnreadOnly {
		query += " AND is_read = ?"
		args = append(args, false)
	}
	query += " ORDER BY created_at DESC, id"

	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
		if f.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", f.Offset)
		}
	}

	var ns []model.Notification
	if err := s.db.SelectContext(ctx, &ns, s.q(query), args...); err != nil {
		return nil, fmt.Errorf("querying notifications for %s: %w", userID, err)
	}
	return ns, nil
}

// CountUnread returns the number of unread notifications for a user.
func (s *SQLStore) CountUnread(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		s.q("SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = ?"),
		userID, false,
	)
	if err != nil {
		return 0, fmt.Errorf("counting unread notifications for %s: %w", userID, err)
	}
	return n, nil
}

// MarkNotificationRead marks one of the user's notifications as read.
// Notifications owned by someone else are reported as not found.
func (s *SQLStore) MarkNotificationRead(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx,
		s.q("UPDATE notifications SET is_read = ? WHERE id = ? AND user_id = ?"),
		true, id, userID,
	)
	if err != nil {
		return fmt.Errorf("marking notification %s as read: %w", id, err)
	}
	if err := expectRow(res); err != nil {
		return fmt.Errorf("marking notification %s as read: %w", id, err)
	}
	return nil
}

// MarkAllNotificationsRead marks every unread notification of the user
// as read and reports how many changed.
func (s *SQLStore) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		s.q("UPDATE notifications SET is_read = ? WHERE user_id = ? AND is_read = ?"),
		true, userID, false,
	)
	if err != nil {
		return 0, fmt.Errorf("marking notifications read for %s: %w", userID, err)
	}
	return res.RowsAffected()
}

// DeleteNotification removes one of the user's notifications.
func (s *SQLStore) DeleteNotification(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx,
		s.q("DELETE FROM notifications WHERE id = ? AND user_id = ?"), id, userID)
	if err != nil {
		return fmt.Errorf("deleting notification %s: %w", id, err)
	}
	if err := expectRow(res); err != nil {
		return fmt.Errorf("deleting notification %s: %w", id, err)
	}
	return nil
}
