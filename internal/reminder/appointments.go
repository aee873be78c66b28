package reminder

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nhle/bizops/internal/mail"
	"github.com/nhle/bizops/internal/model"
)

// ScanUpcomingAppointments reminds every attendee of appointments that
// start within the appointment window. The gate lives on the
// appointment, so the whole attendee group is notified in one
// transaction and the gate is set once afterwards.
func (e *Engine) ScanUpcomingAppointments(ctx context.Context) (res Result, err error) {
	res.Scan = ScanUpcomingAppointments
	done := e.begin(res.Scan)
	defer func() { done(&res, err) }()

	now := e.now()
	appts, err := e.store.UpcomingAppointments(ctx, now, now.Add(e.opts.AppointmentWindow))
	if err != nil {
		return res, fmt.Errorf("selecting upcoming appointments: %w", err)
	}
	res.Matched = len(appts)

	for _, a := range appts {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		log := e.logger.With(
			zap.String("scan", res.Scan),
			zap.String("appointment_id", a.ID),
			zap.Int("attendees", len(a.Attendees)),
		)
		message := fmt.Sprintf("Upcoming appointment: %q at %s",
			a.Title, a.StartTime.UTC().Format(dateTimeLayout))

		ns := make([]model.Notification, 0, len(a.Attendees))
		for _, at := range a.Attendees {
			ns = append(ns, model.Notification{
				UserID:            at.UserID,
				Type:              model.NotificationAppointment,
				Title:             "Appointment Reminder",
				Message:           message,
				RelatedEntityType: model.EntityAppointment,
				RelatedEntityID:   a.ID,
			})
		}
		if err := e.notify(ctx, ns); err != nil {
			log.Error("appointment reminder not recorded", zap.Error(err))
			res.Failed++
			continue
		}

		location := a.Location
		if location == "" {
			location = "TBD"
		}
		description := a.Description
		if description == "" {
			description = "N/A"
		}
		for _, at := range a.Attendees {
			e.email(ctx, res.Scan, mail.Message{
				To:      at.Email,
				ToName:  at.FirstName,
				Subject: "Appointment Reminder",
				Body: fmt.Sprintf("Hi %s,\n\n%s\n\nLocation: %s\n\nDescription: %s",
					at.FirstName, message, location, description),
			})
		}

		if err := e.store.MarkAppointmentReminded(ctx, a.ID); err != nil {
			log.Error("appointment reminder gate not set", zap.Error(err))
			res.Failed++
			continue
		}
		res.Reminded++
	}

	return res, nil
}
