// Package calendar is the only integration point with the external calendar
// that owns every appointment. The rest of the engine talks to Gateway and
// never to a provider SDK directly.
package calendar

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
)

var (
	// ErrEventNotFound covers unknown, deleted and cancelled events.
	ErrEventNotFound = errors.New("calendar event not found")
	// ErrConferenceUnsupported is returned when the provider refuses the
	// optional conference attachment of an insert.
	ErrConferenceUnsupported = errors.New("calendar rejected conference request")
	// ErrSlotTaken is returned by providers that enforce non-overlap themselves.
	ErrSlotTaken = errors.New("calendar rejected overlapping event")
	// ErrUnavailable wraps every infrastructure failure: network, auth, quota,
	// timeouts.
	ErrUnavailable = errors.New("calendar unavailable")
)

// Private metadata keys written on every event this engine creates.
const (
	MetaPatientEmail = "patient_email"
	MetaPatientName  = "patient_name"
	MetaDoctorID     = "doctor_id"
	MetaVisitMode    = "visit_mode"
	MetaBookingKey   = "booking_key"
)

// Interval is a half-open busy block, [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func (i Interval) Overlaps(start, end time.Time) bool {
	return start.Before(i.End) && end.After(i.Start)
}

// Event is the provider-neutral view of an appointment.
type Event struct {
	ID             string
	Summary        string
	Description    string
	Location       string
	Start          time.Time
	End            time.Time
	Attendees      []string
	HTMLLink       string
	ConferenceLink string
	Metadata       map[string]string
	Cancelled      bool
}

// InsertOptions carries the optional features of an insert. RequestConference
// may be rejected by the provider, see ErrConferenceUnsupported.
type InsertOptions struct {
	SendUpdates         bool
	RequestConference   bool
	ConferenceRequestID string
}

type Gateway interface {
	// FreeBusy returns the busy blocks of a calendar that overlap [from, to).
	FreeBusy(ctx context.Context, calendarID string, from, to time.Time) ([]Interval, error)
	InsertEvent(ctx context.Context, calendarID string, ev Event, opts InsertOptions) (Event, error)
	GetEvent(ctx context.Context, calendarID, eventID string) (Event, error)
	// UpdateEvent moves an existing event to a new start and end, keeping its id.
	UpdateEvent(ctx context.Context, calendarID, eventID string, start, end time.Time, sendUpdates bool) (Event, error)
	DeleteEvent(ctx context.Context, calendarID, eventID string, sendUpdates bool) error
	// ListEvents returns the non-cancelled events starting in [from, to), ordered by start.
	ListEvents(ctx context.Context, calendarID string, from, to time.Time) ([]Event, error)
}

// MergeIntervals sorts and coalesces overlapping or touching intervals.
func MergeIntervals(in []Interval) []Interval {
	if len(in) == 0 {
		return nil
	}
	out := make([]Interval, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	merged := out[:1]
	for _, iv := range out[1:] {
		last := &merged[len(merged)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// OwnedBy decides whether an event belongs to a patient. The structured
// patient_email metadata is authoritative when present; events without it
// fall back to an attendee match and then to the description text.
func (e Event) OwnedBy(email string) bool {
	want := strings.ToLower(strings.TrimSpace(email))
	if want == "" {
		return false
	}
	if owner, ok := e.Metadata[MetaPatientEmail]; ok && owner != "" {
		return strings.ToLower(strings.TrimSpace(owner)) == want
	}
	for _, a := range e.Attendees {
		if strings.ToLower(strings.TrimSpace(a)) == want {
			return true
		}
	}
	return strings.Contains(strings.ToLower(e.Description), want)
}
