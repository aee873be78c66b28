package model

import "time"

// Appointment is a scheduled meeting with one or more staff attendees.
type Appointment struct {
	ID           string    `json:"id" db:"id"`
	Title        string    `json:"title" db:"title"`
	Description  string    `json:"description" db:"description"`
	Location     string    `json:"location" db:"location"`
	StartTime    time.Time `json:"start_time" db:"start_time"`
	EndTime      time.Time `json:"end_time" db:"end_time"`
	CustomerID   *string   `json:"customer_id,omitempty" db:"customer_id"`
	ReminderSent bool      `json:"reminder_sent" db:"reminder_sent"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`

	// AttendeeIDs is populated from appointment_attendees.
	AttendeeIDs []string `json:"attendee_ids,omitempty" db:"-"`
}

// Attendee is the contact view of a user attending an appointment.
type Attendee struct {
	UserID    string `db:"user_id"`
	Email     string `db:"email"`
	FirstName string `db:"first_name"`
}

// AppointmentReminder is an upcoming appointment with its attendee group.
type AppointmentReminder struct {
	Appointment
	Attendees []Attendee
}
