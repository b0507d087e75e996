package appointment

import (
	"context"
	"time"
)

const (
	EventAppointmentBooked      = "APPOINTMENT_BOOKED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventBookingRejected        = "BOOKING_REJECTED"
)

// EventLog is one row of the append-only audit trail. The engine writes it
// and never reads it back; the calendar stays the source of truth.
type EventLog struct {
	EventType       string
	CalendarEventID string
	DoctorID        string
	Payload         []byte
	CreatedAt       time.Time
}

// AuditLog stores audit events.
type AuditLog interface {
	InsertEvent(ctx context.Context, ev EventLog) error
}
