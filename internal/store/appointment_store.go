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

const appointmentColumns = `id, title, description, location, start_time, end_time,
	customer_id, reminder_sent, created_at`

// CreateAppointment inserts an appointment together with its attendee
// rows. Generates a UUID if ID is empty.
func (s *SQLStore) CreateAppointment(ctx context.Context, a *model.Appointment) error {
	if strings.TrimSpace(a.Title) == "" {
		return fmt.Errorf("appointment title must not be empty")
	}
	if a.EndTime.Before(a.StartTime) {
		return fmt.Errorf("appointment %q ends before it starts", a.Title)
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.StartTime = a.StartTime.UTC()
	a.EndTime = a.EndTime.UTC()

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO appointments (`+appointmentColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			a.ID, a.Title, a.Description, a.Location, a.StartTime, a.EndTime,
			a.CustomerID, a.ReminderSent, a.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("creating appointment: %w", err)
		}
		return insertAttendees(ctx, tx, a.ID, a.AttendeeIDs)
	})
}

// GetAppointment retrieves a single appointment with its attendee IDs.
func (s *SQLStore) GetAppointment(ctx context.Context, id string) (*model.Appointment, error) {
	var a model.Appointment
	err := s.db.GetContext(ctx, &a,
		s.q("SELECT "+appointmentColumns+" FROM appointments WHERE id = ?"), id)
	if err != nil {
		return nil, fmt.Errorf("getting appointment %s: %w", id, notFound(err))
	}

	err = s.db.SelectContext(ctx, &a.AttendeeIDs, s.q(`
		SELECT user_id FROM appointment_attendees
		WHERE appointment_id = ? ORDER BY user_id`), id)
	if err != nil {
		return nil, fmt.Errorf("getting attendees for %s: %w", id, err)
	}
	return &a, nil
}

// SetAttendees replaces the attendee set of an appointment.
func (s *SQLStore) SetAttendees(ctx context.Context, appointmentID string, userIDs []string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var exists int
		err := tx.GetContext(ctx, &exists,
			tx.Rebind("SELECT COUNT(*) FROM appointments WHERE id = ?"), appointmentID)
		if err != nil {
			return fmt.Errorf("checking appointment %s: %w", appointmentID, err)
		}
		if exists == 0 {
			return fmt.Errorf("setting attendees for %s: %w", appointmentID, ErrNotFound)
		}

		_, err = tx.ExecContext(ctx,
			tx.Rebind("DELETE FROM appointment_attendees WHERE appointment_id = ?"), appointmentID)
		if err != nil {
			return fmt.Errorf("clearing attendees for %s: %w", appointmentID, err)
		}
		return insertAttendees(ctx, tx, appointmentID, userIDs)
	})
}

// insertAttendees adds one join row per distinct user with a prepared
// statement.
func insertAttendees(ctx context.Context, tx *sqlx.Tx, appointmentID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(`
		INSERT INTO appointment_attendees (appointment_id, user_id) VALUES (?, ?)`))
	if err != nil {
		return fmt.Errorf("preparing attendee insert: %w", err)
	}
	defer stmt.Close()

	seen := make(map[string]bool, len(userIDs))
	for _, uid := range userIDs {
		if uid == "" || seen[uid] {
			continue
		}
		seen[uid] = true
		if _, err := stmt.ExecContext(ctx, appointmentID, uid); err != nil {
			return fmt.Errorf("adding attendee %s to %s: %w", uid, appointmentID, err)
		}
	}
	return nil
}

// RescheduleAppointment moves an appointment. A changed start time
// re-arms the reminder.
func (s *SQLStore) RescheduleAppointment(ctx context.Context, id string, start, end time.Time) error {
	if end.Before(start) {
		return fmt.Errorf("appointment %s ends before it starts", id)
	}
	start, end = start.UTC(), end.UTC()

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var current model.Appointment
		err := tx.GetContext(ctx, &current,
			tx.Rebind("SELECT "+appointmentColumns+" FROM appointments WHERE id = ?"), id)
		if err != nil {
			return fmt.Errorf("rescheduling appointment %s: %w", id, notFound(err))
		}

		reminderSent := current.ReminderSent && current.StartTime.Equal(start)
		_, err = tx.ExecContext(ctx, tx.Rebind(`
			UPDATE appointments SET start_time = ?, end_time = ?, reminder_sent = ?
			WHERE id = ?`),
			start, end, reminderSent, id,
		)
		if err != nil {
			return fmt.Errorf("rescheduling appointment %s: %w", id, err)
		}
		return nil
	})
}

// UpcomingAppointments returns unreminded appointments starting in the
// window (from, to], each with its attendees. Appointments without any
// attendee are omitted.
func (s *SQLStore) UpcomingAppointments(ctx context.Context, from, to time.Time) ([]model.AppointmentReminder, error) {
	var appts []model.Appointment
	err := s.db.SelectContext(ctx, &appts, s.q(`
		SELECT `+appointmentColumns+` FROM appointments
		WHERE start_time > ? AND start_time <= ? AND reminder_sent = ?
		ORDER BY start_time, id`),
		from.UTC(), to.UTC(), false,
	)
	if err != nil {
		return nil, fmt.Errorf("querying upcoming appointments: %w", err)
	}
	if len(appts) == 0 {
		return nil, nil
	}

	ids := make([]string, len(appts))
	for i, a := range appts {
		ids[i] = a.ID
	}

	query, args, err := sqlx.In(`
		SELECT aa.appointment_id, u.id AS user_id, u.email, u.first_name
		FROM appointment_attendees aa
		JOIN users u ON u.id = aa.user_id
		WHERE aa.appointment_id IN (?)
		ORDER BY aa.appointment_id, u.email`, ids)
	if err != nil {
		return nil, fmt.Errorf("building attendee query: %w", err)
	}

	var rows []struct {
		AppointmentID string `db:"appointment_id"`
		model.Attendee
	}
	if err := s.db.SelectContext(ctx, &rows, s.q(query), args...); err != nil {
		return nil, fmt.Errorf("querying attendees: %w", err)
	}

	byAppt := make(map[string][]model.Attendee, len(appts))
	for _, r := range rows {
		byAppt[r.AppointmentID] = append(byAppt[r.AppointmentID], r.Attendee)
	}

	out := make([]model.AppointmentReminder, 0, len(appts))
	for _, a := range appts {
		attendees := byAppt[a.ID]
		if len(attendees) == 0 {
			continue
		}
		a.AttendeeIDs = make([]string, len(attendees))
		for i, at := range attendees {
			a.AttendeeIDs[i] = at.UserID
		}
		out = append(out, model.AppointmentReminder{Appointment: a, Attendees: attendees})
	}
	return out, nil
}

// MarkAppointmentReminded sets the reminder gate for the whole group.
func (s *SQLStore) MarkAppointmentReminded(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		s.q("UPDATE appointments SET reminder_sent = ? WHERE id = ?"), true, id)
	if err != nil {
		return fmt.Errorf("marking appointment %s reminded: %w", id, err)
	}
	if err := expectRow(res); err != nil {
		return fmt.Errorf("marking appointment %s reminded: %w", id, err)
	}
	return nil
}
