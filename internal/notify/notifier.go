package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking-engine/internal/directory"
)

type Kind string

const (
	KindBooked      Kind = "booked"
	KindCancelled   Kind = "cancelled"
	KindRescheduled Kind = "rescheduled"
)

// Notice describes an appointment change that patient and doctor are told about.
type Notice struct {
	Kind         Kind
	EventID      string
	Summary      string
	Doctor       directory.Doctor
	PatientName  string
	PatientEmail string
	PatientPhone string
	PatientAge   int
	PatientSex   string
	Condition    string
	VisitMode    directory.VisitMode
	Start        time.Time
	End          time.Time
	MeetLink     string
}

// Notifier turns a Notice into one email for the patient and one for the
// doctor, each carrying an appointment.ics invite.
type Notifier struct {
	sender     EmailSender
	clinicName string
	fromEmail  string
	timezone   string
	log        zerolog.Logger
	now        func() time.Time
}

type Config struct {
	ClinicName string
	FromEmail  string
	Timezone   string
}

func NewNotifier(sender EmailSender, cfg Config, log zerolog.Logger) *Notifier {
	if cfg.ClinicName == "" {
		cfg.ClinicName = "Clinic"
	}
	return &Notifier{
		sender:     sender,
		clinicName: cfg.ClinicName,
		fromEmail:  cfg.FromEmail,
		timezone:   cfg.Timezone,
		log:        log,
		now:        time.Now,
	}
}

// Notify sends both emails. The doctor email is skipped when the doctor has
// no address. Errors of both sends are joined.
func (n *Notifier) Notify(ctx context.Context, notice Notice) error {
	if notice.PatientEmail == "" {
		return errors.New("notify: patient email is empty")
	}
	attachment := Attachment{
		Filename:    "appointment.ics",
		ContentType: fmt.Sprintf("text/calendar; method=%s; charset=UTF-8; name=appointment.ics", n.method(notice)),
		Content:     BuildICS(n.invite(notice), n.now()),
	}

	var errs []error
	patient := EmailMessage{
		To:          notice.PatientEmail,
		ToName:      notice.PatientName,
		Subject:     n.patientSubject(notice),
		Body:        n.patientBody(notice),
		Attachments: []Attachment{attachment},
	}
	if err := n.sender.Send(ctx, patient); err != nil {
		errs = append(errs, fmt.Errorf("patient email: %w", err))
	}

	if notice.Doctor.Email != "" {
		doctor := EmailMessage{
			To:          notice.Doctor.Email,
			ToName:      notice.Doctor.Name,
			Subject:     n.doctorSubject(notice),
			Body:        n.doctorBody(notice),
			Attachments: []Attachment{attachment},
		}
		if err := n.sender.Send(ctx, doctor); err != nil {
			errs = append(errs, fmt.Errorf("doctor email: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		n.log.Warn().Err(err).Str("event_id", notice.EventID).Str("kind", string(notice.Kind)).Msg("appointment notification failed")
		return err
	}
	return nil
}

func (n *Notifier) method(notice Notice) string {
	if notice.Kind == KindCancelled {
		return "CANCEL"
	}
	return "REQUEST"
}

func (n *Notifier) invite(notice Notice) Invite {
	inv := Invite{
		UID:         notice.EventID,
		Summary:     notice.Summary,
		Description: "Consultation scheduled via " + n.clinicName + ".",
		Location:    n.inviteLocation(notice),
		Start:       notice.Start,
		End:         notice.End,
		Organizer:   n.fromEmail,
		OrgName:     n.clinicName,
		Attendees:   []string{notice.PatientEmail, notice.Doctor.Email},
		Cancelled:   notice.Kind == KindCancelled,
	}
	if notice.Kind != KindBooked {
		// SEQUENCE has to grow with every update of the same UID
		inv.Sequence = int(n.now().Unix())
	}
	return inv
}

func (n *Notifier) inviteLocation(notice Notice) string {
	if notice.VisitMode == directory.VisitInPerson {
		return notice.Doctor.Location
	}
	return ""
}

func (n *Notifier) patientSubject(notice Notice) string {
	switch notice.Kind {
	case KindCancelled:
		return "Appointment Cancelled – " + n.clinicName
	case KindRescheduled:
		return "Appointment Rescheduled – " + n.clinicName
	default:
		return "Appointment Confirmation – " + n.clinicName
	}
}

func (n *Notifier) doctorSubject(notice Notice) string {
	switch notice.Kind {
	case KindCancelled:
		return "Appointment Cancelled – " + n.clinicName
	case KindRescheduled:
		return "Appointment Rescheduled – " + n.clinicName
	default:
		return "New Appointment Scheduled – " + n.clinicName
	}
}

func (n *Notifier) details(b *strings.Builder, notice Notice) {
	fee := notice.Doctor.Fees.For(notice.VisitMode)
	fmt.Fprintf(b, "Date: %s\n", notice.Start.Format("Mon, 02 Jan 2006"))
	fmt.Fprintf(b, "Time: %s - %s (%s)\n", notice.Start.Format("15:04"), notice.End.Format("15:04"), n.timezone)
	fmt.Fprintf(b, "Mode: %s\n", modeLabel(notice.VisitMode))
	fmt.Fprintf(b, "Fee: PKR %d\n", fee)
	fmt.Fprintf(b, "Clinic: %s\n", n.clinicLine(notice))
	if notice.VisitMode == directory.VisitOnline && notice.MeetLink != "" {
		fmt.Fprintf(b, "Google Meet: %s\n", notice.MeetLink)
	}
}

func (n *Notifier) patientBody(notice Notice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", notice.PatientName)
	switch notice.Kind {
	case KindCancelled:
		b.WriteString("Your appointment has been cancelled. The cancelled booking was:\n\n")
	case KindRescheduled:
		b.WriteString("Your appointment has been moved. The new details are below:\n\n")
	default:
		fmt.Fprintf(&b, "Your appointment to consult for %s has been scheduled. Please find the details below:\n\n", orDefault(notice.Condition, "unspecified"))
	}
	fmt.Fprintf(&b, "Doctor: %s\n", notice.Doctor.Name)
	fmt.Fprintf(&b, "Specialization: %s\n", orDefault(notice.Doctor.Specialization, "General"))
	n.details(&b, notice)
	if notice.Kind != KindCancelled {
		link := AddToCalendarLink(notice.Summary, notice.Start, notice.End, "Consultation scheduled via "+n.clinicName+".", n.inviteLocation(notice))
		b.WriteString("\nPlease join 15 minutes early. A calendar invite is attached; kindly add it to your calendar and join on time.\n")
		fmt.Fprintf(&b, "Add to Google Calendar: %s\n", link)
	}
	fmt.Fprintf(&b, "\nThank you,\n%s", n.clinicName)
	return b.String()
}

func (n *Notifier) doctorBody(notice Notice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", notice.Doctor.Name)
	switch notice.Kind {
	case KindCancelled:
		b.WriteString("A patient consultation has been cancelled. Details are as follows:\n\n")
	case KindRescheduled:
		b.WriteString("A patient consultation has been moved. The new details are as follows:\n\n")
	default:
		b.WriteString("A new appointment has been booked for a patient consultation. Details are as follows:\n\n")
	}
	fmt.Fprintf(&b, "Patient: %s\n", notice.PatientName)
	if notice.PatientPhone != "" {
		fmt.Fprintf(&b, "Patient phone: %s\n", notice.PatientPhone)
	}
	if notice.PatientAge > 0 {
		fmt.Fprintf(&b, "Patient age: %d\n", notice.PatientAge)
	}
	if notice.PatientSex != "" {
		fmt.Fprintf(&b, "Patient sex: %s\n", notice.PatientSex)
	}
	fmt.Fprintf(&b, "Condition: %s\n", orDefault(notice.Condition, "Unspecified"))
	n.details(&b, notice)
	if notice.Kind != KindCancelled {
		b.WriteString("\nPlease be available on time. A calendar event is attached; kindly add it to your calendar.\n")
	}
	fmt.Fprintf(&b, "\nThank you,\n%s", n.clinicName)
	return b.String()
}

func (n *Notifier) clinicLine(notice Notice) string {
	return orDefault(notice.Doctor.Location, n.clinicName)
}

func modeLabel(mode directory.VisitMode) string {
	if mode == directory.VisitOnline {
		return "Online (Google Meet)"
	}
	return "In-person"
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
