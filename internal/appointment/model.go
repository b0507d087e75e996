package appointment

import (
	"time"

	"github.com/hackgods/clinic-booking-engine/internal/directory"
	"github.com/hackgods/clinic-booking-engine/internal/schedule"
)

// AvailabilityStatus explains an availability result, in particular why it is
// empty.
type AvailabilityStatus string

const (
	StatusOK            AvailabilityStatus = "ok"
	StatusNoSchedule    AvailabilityStatus = "no_schedule"
	StatusNoFutureSlots AvailabilityStatus = "no_future_slots"
	StatusFullyBooked   AvailabilityStatus = "fully_booked"
)

// Availability is the set of free slots of one doctor on one clinic-local day.
type Availability struct {
	DoctorID    string
	DoctorName  string
	Date        time.Time
	SlotMinutes int
	Slots       []schedule.Slot
	Status      AvailabilityStatus
}

// Labels returns the "HH:MM" start times of the free slots.
func (a Availability) Labels() []string {
	out := make([]string, len(a.Slots))
	for i, s := range a.Slots {
		out[i] = s.Label()
	}
	return out
}

// Has reports whether a slot starting at label is free.
func (a Availability) Has(label string) bool {
	for _, s := range a.Slots {
		if s.Label() == label {
			return true
		}
	}
	return false
}

// Offers reports whether exactly [start, end) is one of the free slots.
func (a Availability) Offers(start, end time.Time) bool {
	for _, s := range a.Slots {
		if s.Start.Equal(start) && s.End.Equal(end) {
			return true
		}
	}
	return false
}

// DayPlan is one day of a doctor's week view.
type DayPlan struct {
	Availability
	Weekday string
	Routine []string
}

type DoctorWeek struct {
	Doctor directory.Doctor
	Days   []DayPlan
}

type Patient struct {
	Name  string
	Email string
	Phone string
	Age   int
	Sex   string
}

type BookRequest struct {
	DoctorID        string
	Start           string
	End             string
	Patient         Patient
	VisitMode       directory.VisitMode
	Condition       string
	SendInvitations bool
	CreateMeet      bool
}

// Notification status values reported with every write.
const (
	NotificationSent    = "sent"
	NotificationFailed  = "failed"
	NotificationSkipped = "skipped"
)

// Booking is the result of a committed booking or reschedule.
type Booking struct {
	EventID            string
	HTMLLink           string
	MeetLink           string
	DoctorID           string
	DoctorName         string
	PatientEmail       string
	VisitMode          directory.VisitMode
	Fee                int
	Start              time.Time
	End                time.Time
	InvitationsSent    bool
	Replayed           bool
	NotificationStatus string
	NotificationError  string
}

type ListRequest struct {
	PatientEmail string
	DoctorID     string
	WindowDays   int
}

// AppointmentSummary carries only fields that are safe to show the patient.
// Attendees and description are never exposed.
type AppointmentSummary struct {
	DoctorID   string
	DoctorName string
	EventID    string
	HTMLLink   string
	Summary    string
	Start      time.Time
	End        time.Time
}

type AppointmentList struct {
	Appointments []AppointmentSummary
	// SkippedDoctors lists doctors whose calendar could not be read.
	SkippedDoctors []string
	From           time.Time
	To             time.Time
}

type CancelRequest struct {
	DoctorID        string
	EventID         string
	PatientEmail    string
	NotifyAttendees bool
}

type Cancellation struct {
	EventID            string
	DoctorID           string
	NotificationStatus string
	NotificationError  string
}

type RescheduleRequest struct {
	DoctorID     string
	EventID      string
	PatientEmail string
	NewStart     string
	NewEnd       string
}

// Clock is the current instant as seen by the clinic.
type Clock struct {
	Timezone     string
	Date         string
	Time         string
	ISOLocal     string
	ISOUTC       string
	WeekdayIndex int
	WeekdayShort string
	WeekdayLong  string
}
