package api

import (
	"time"

	"github.com/hackgods/clinic-booking-engine/internal/appointment"
	"github.com/hackgods/clinic-booking-engine/internal/directory"
	"github.com/hackgods/clinic-booking-engine/internal/schedule"
)

type FeesResponse struct {
	Online   int `json:"online_pkr"`
	InPerson int `json:"inperson_pkr"`
}

type DoctorResponse struct {
	ID              string              `json:"doctor_id"`
	Name            string              `json:"name"`
	Specialization  string              `json:"specialization"`
	ExperienceYears int                 `json:"experience_years,omitempty"`
	Location        string              `json:"location"`
	Fees            FeesResponse        `json:"fees"`
	WeeklySchedule  map[string][]string `json:"weekly_schedule"`
	CalendarID      string              `json:"calendar_id"`
	Email           string              `json:"email,omitempty"`
}

type DoctorsResponse struct {
	Doctors []DoctorResponse `json:"doctors"`
}

type SlotResponse struct {
	Label string    `json:"label"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type AvailabilityResponse struct {
	DoctorID    string         `json:"doctor_id"`
	DoctorName  string         `json:"doctor_name"`
	Date        string         `json:"date"`
	SlotMinutes int            `json:"slot_minutes"`
	Status      string         `json:"status"`
	Slots       []SlotResponse `json:"slots"`
}

type AvailabilityRangeResponse struct {
	DoctorID string                 `json:"doctor_id"`
	Days     []AvailabilityResponse `json:"days"`
}

type DayPlanResponse struct {
	AvailabilityResponse
	Weekday string   `json:"weekday"`
	Routine []string `json:"routine"`
}

type WeeklyAvailabilityResponse struct {
	Doctor DoctorResponse    `json:"doctor"`
	Days   []DayPlanResponse `json:"days"`
}

type PatientRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
	Age   int    `json:"age,omitempty"`
	Sex   string `json:"sex,omitempty"`
}

type BookAppointmentRequest struct {
	DoctorID        string         `json:"doctor_id"`
	Start           string         `json:"start"`
	End             string         `json:"end"`
	Patient         PatientRequest `json:"patient"`
	VisitMode       string         `json:"visit_mode"`
	Condition       string         `json:"condition,omitempty"`
	SendInvitations bool           `json:"send_invitations"`
	CreateMeet      bool           `json:"create_meet"`
}

type BookingResponse struct {
	EventID            string    `json:"event_id"`
	HTMLLink           string    `json:"html_link,omitempty"`
	MeetLink           string    `json:"meet_link,omitempty"`
	DoctorID           string    `json:"doctor_id"`
	DoctorName         string    `json:"doctor_name"`
	PatientEmail       string    `json:"patient_email"`
	VisitMode          string    `json:"visit_mode"`
	FeePKR             int       `json:"fee_pkr"`
	Start              time.Time `json:"start"`
	End                time.Time `json:"end"`
	InvitationsSent    bool      `json:"invitations_sent"`
	Replayed           bool      `json:"replayed,omitempty"`
	NotificationStatus string    `json:"notification_status"`
	NotificationError  string    `json:"notification_error,omitempty"`
}

type AppointmentResponse struct {
	EventID    string    `json:"event_id"`
	DoctorID   string    `json:"doctor_id"`
	DoctorName string    `json:"doctor_name"`
	Summary    string    `json:"summary"`
	HTMLLink   string    `json:"html_link,omitempty"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
}

type AppointmentListResponse struct {
	Appointments   []AppointmentResponse `json:"appointments"`
	SkippedDoctors []string              `json:"skipped_doctors,omitempty"`
	From           time.Time             `json:"from"`
	To             time.Time             `json:"to"`
}

type CancelAppointmentRequest struct {
	DoctorID        string `json:"doctor_id"`
	PatientEmail    string `json:"patient_email"`
	NotifyAttendees bool   `json:"notify_attendees"`
}

type CancellationResponse struct {
	EventID            string `json:"event_id"`
	DoctorID           string `json:"doctor_id"`
	Status             string `json:"status"`
	NotificationStatus string `json:"notification_status"`
	NotificationError  string `json:"notification_error,omitempty"`
}

type RescheduleAppointmentRequest struct {
	DoctorID     string `json:"doctor_id"`
	PatientEmail string `json:"patient_email"`
	NewStart     string `json:"new_start"`
	NewEnd       string `json:"new_end"`
}

type ClockResponse struct {
	Timezone     string `json:"timezone"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	ISOLocal     string `json:"iso_local"`
	ISOUTC       string `json:"iso_utc"`
	WeekdayIndex int    `json:"weekday_index"`
	WeekdayShort string `json:"weekday_short"`
	WeekdayLong  string `json:"weekday_long"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toDoctorResponse(d directory.Doctor) DoctorResponse {
	return DoctorResponse{
		ID:              d.ID,
		Name:            d.Name,
		Specialization:  d.Specialization,
		ExperienceYears: d.ExperienceYears,
		Location:        d.Location,
		Fees:            FeesResponse{Online: d.Fees.Online, InPerson: d.Fees.InPerson},
		WeeklySchedule:  d.Weekly.Raw(),
		CalendarID:      d.CalendarID,
		Email:           d.Email,
	}
}

func toDoctorsResponse(docs []directory.Doctor) DoctorsResponse {
	resp := DoctorsResponse{Doctors: make([]DoctorResponse, len(docs))}
	for i, d := range docs {
		resp.Doctors[i] = toDoctorResponse(d)
	}
	return resp
}

func toSlots(slots []schedule.Slot) []SlotResponse {
	out := make([]SlotResponse, len(slots))
	for i, s := range slots {
		out[i] = SlotResponse{Label: s.Label(), Start: s.Start, End: s.End}
	}
	return out
}

func toAvailabilityResponse(av appointment.Availability) AvailabilityResponse {
	return AvailabilityResponse{
		DoctorID:    av.DoctorID,
		DoctorName:  av.DoctorName,
		Date:        av.Date.Format("2006-01-02"),
		SlotMinutes: av.SlotMinutes,
		Status:      string(av.Status),
		Slots:       toSlots(av.Slots),
	}
}

func toBookingResponse(b appointment.Booking) BookingResponse {
	return BookingResponse{
		EventID:            b.EventID,
		HTMLLink:           b.HTMLLink,
		MeetLink:           b.MeetLink,
		DoctorID:           b.DoctorID,
		DoctorName:         b.DoctorName,
		PatientEmail:       b.PatientEmail,
		VisitMode:          string(b.VisitMode),
		FeePKR:             b.Fee,
		Start:              b.Start,
		End:                b.End,
		InvitationsSent:    b.InvitationsSent,
		Replayed:           b.Replayed,
		NotificationStatus: b.NotificationStatus,
		NotificationError:  b.NotificationError,
	}
}
