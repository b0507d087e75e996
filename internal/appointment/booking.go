package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking-engine/internal/calendar"
	"github.com/hackgods/clinic-booking-engine/internal/directory"
	"github.com/hackgods/clinic-booking-engine/internal/notify"
	redisclient "github.com/hackgods/clinic-booking-engine/internal/redis"
)

// Book commits an appointment to the doctor's calendar. The checks run in a
// fixed order and the first failure wins; the calendar write happens only
// after a preflight free/busy check and a fresh availability lookup both
// accept the requested slot. Two concurrent requests for the same slot can
// still both pass the checks; the calendar provider remains the final arbiter.
func (s *Service) Book(ctx context.Context, req BookRequest) (Booking, error) {
	b, err := s.book(ctx, req)
	if err != nil {
		s.metrics.ObserveBooking(string(CodeOf(err)))
		s.logEvent(ctx, EventBookingRejected, "", req.DoctorID, map[string]any{
			"code":  CodeOf(err),
			"start": req.Start,
			"end":   req.End,
		})
		return Booking{}, err
	}
	if b.Replayed {
		s.metrics.ObserveBooking("replayed")
	} else {
		s.metrics.ObserveBooking("booked")
	}
	return b, nil
}

func (s *Service) book(ctx context.Context, req BookRequest) (Booking, error) {
	doc, err := s.doctor(req.DoctorID)
	if err != nil {
		return Booking{}, err
	}
	start, end, err := s.parseInterval(req.Start, req.End)
	if err != nil {
		return Booking{}, err
	}
	if strings.TrimSpace(req.Patient.Name) == "" {
		return Booking{}, newError(CodeValidation, nil, "patient name is required")
	}
	if !validEmail(req.Patient.Email) {
		return Booking{}, newError(CodeValidation, nil, "patient email %q is not valid", req.Patient.Email)
	}
	if err := s.checkLeadTime(start); err != nil {
		return Booking{}, err
	}
	if err := s.checkSchedule(doc, start, end); err != nil {
		return Booking{}, err
	}

	key := redisclient.BookingKey(doc.ID, start, req.Patient.Email)
	token, replay, err := s.claim(ctx, doc, key)
	if err != nil {
		return Booking{}, err
	}
	if replay != nil {
		return *replay, nil
	}

	if err := s.preflight(ctx, doc, start, end, nil); err != nil {
		s.release(ctx, key, token)
		return Booking{}, err
	}
	av, err := s.resolve(ctx, doc, start, end.Sub(start))
	if err != nil {
		s.release(ctx, key, token)
		return Booking{}, err
	}
	if !av.Offers(start, end) {
		s.release(ctx, key, token)
		return Booking{}, newError(CodeConflict, nil, "requested time %s is not an available slot", start.Format("15:04"))
	}

	mode := bookingMode(req.VisitMode)
	ev := s.eventFor(doc, req, mode, start, end, key)
	opts := calendar.InsertOptions{SendUpdates: req.SendInvitations}
	if mode == directory.VisitOnline && req.CreateMeet {
		opts.RequestConference = true
		opts.ConferenceRequestID = uuid.NewString()
	}

	created, err := s.insert(ctx, doc, ev, opts)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			// the write may have landed; keep the claim so a retry cannot duplicate it
			s.log.Warn().Err(err).Str("doctor_id", doc.ID).Str("booking_key", key).Msg("calendar insert timed out, outcome unknown")
		} else {
			s.release(ctx, key, token)
		}
		return Booking{}, err
	}
	s.complete(ctx, key, token, created.ID)

	booking := Booking{
		EventID:         created.ID,
		HTMLLink:        created.HTMLLink,
		MeetLink:        created.ConferenceLink,
		DoctorID:        doc.ID,
		DoctorName:      doc.Name,
		PatientEmail:    normaliseEmail(req.Patient.Email),
		VisitMode:       mode,
		Fee:             doc.Fees.For(mode),
		Start:           start,
		End:             end,
		InvitationsSent: req.SendInvitations,
	}
	s.log.Info().Str("event_id", created.ID).Str("doctor_id", doc.ID).Time("start", start).Msg("appointment booked")
	s.logEvent(ctx, EventAppointmentBooked, created.ID, doc.ID, map[string]any{
		"start":      start,
		"end":        end,
		"visit_mode": mode,
		"meet":       created.ConferenceLink != "",
	})

	booking.NotificationStatus, booking.NotificationError = s.notify(ctx, notify.Notice{
		Kind:         notify.KindBooked,
		EventID:      created.ID,
		Summary:      ev.Summary,
		Doctor:       doc,
		PatientName:  req.Patient.Name,
		PatientEmail: req.Patient.Email,
		PatientPhone: req.Patient.Phone,
		PatientAge:   req.Patient.Age,
		PatientSex:   req.Patient.Sex,
		Condition:    req.Condition,
		VisitMode:    mode,
		Start:        start,
		End:          end,
		MeetLink:     created.ConferenceLink,
	})
	return booking, nil
}

// insert writes the event. A provider that refuses the conference request
// gets one more attempt without it.
func (s *Service) insert(ctx context.Context, doc directory.Doctor, ev calendar.Event, opts calendar.InsertOptions) (calendar.Event, error) {
	wctx, cancel := s.writeCtx(ctx)
	defer cancel()

	created, err := s.cal.InsertEvent(wctx, doc.CalendarID, ev, opts)
	if err != nil && opts.RequestConference && errors.Is(err, calendar.ErrConferenceUnsupported) {
		s.log.Warn().Err(err).Str("doctor_id", doc.ID).Msg("conference rejected, booking without it")
		opts.RequestConference = false
		opts.ConferenceRequestID = ""
		created, err = s.cal.InsertEvent(wctx, doc.CalendarID, ev, opts)
	}
	if err != nil {
		if errors.Is(err, calendar.ErrConferenceUnsupported) {
			return calendar.Event{}, newError(CodeProviderUnavailable, err, "calendar insert failed, please retry later")
		}
		return calendar.Event{}, providerError("insert", err)
	}
	return created, nil
}

func bookingMode(mode directory.VisitMode) directory.VisitMode {
	if mode == directory.VisitOnline {
		return directory.VisitOnline
	}
	return directory.VisitInPerson
}

// eventFor builds the calendar event. Patient identity goes into the private
// metadata, which is what ownership checks rely on, and into the description
// for humans reading the calendar.
func (s *Service) eventFor(doc directory.Doctor, req BookRequest, mode directory.VisitMode, start, end time.Time, key string) calendar.Event {
	p := req.Patient
	lines := []string{"Visit mode: " + modeName(mode)}
	if c := strings.TrimSpace(req.Condition); c != "" {
		lines = append(lines, "Condition: "+c)
	}
	lines = append(lines,
		fmt.Sprintf("Booked via %s scheduling.", orClinic(s.clinicName)),
		fmt.Sprintf("Patient: %s <%s>", p.Name, strings.TrimSpace(p.Email)),
	)
	if p.Phone != "" {
		lines = append(lines, "Phone: "+p.Phone)
	}
	if p.Age > 0 {
		lines = append(lines, fmt.Sprintf("Age: %d", p.Age))
	}
	if p.Sex != "" {
		lines = append(lines, "Sex: "+p.Sex)
	}

	ev := calendar.Event{
		Summary:     fmt.Sprintf("Consultation: %s ↔ %s", doc.Name, p.Name),
		Description: strings.Join(lines, "\n"),
		Start:       start,
		End:         end,
		Metadata: map[string]string{
			calendar.MetaPatientEmail: normaliseEmail(p.Email),
			calendar.MetaPatientName:  p.Name,
			calendar.MetaDoctorID:     doc.ID,
			calendar.MetaVisitMode:    string(mode),
			calendar.MetaBookingKey:   key,
		},
	}
	if mode == directory.VisitInPerson {
		ev.Location = doc.Location
	}
	if req.SendInvitations {
		if doc.Email != "" {
			ev.Attendees = append(ev.Attendees, doc.Email)
		}
		ev.Attendees = append(ev.Attendees, strings.TrimSpace(p.Email))
	}
	return ev
}

func modeName(mode directory.VisitMode) string {
	if mode == directory.VisitOnline {
		return "Online"
	}
	return "In-person"
}

func orClinic(name string) string {
	if name == "" {
		return "clinic"
	}
	return name
}

// claim takes the idempotency claim for a booking. A completed claim whose
// event still exists is returned as a replay; a stale one is dropped and
// claimed again. Without a claim store every request proceeds.
func (s *Service) claim(ctx context.Context, doc directory.Doctor, key string) (string, *Booking, error) {
	if s.claims == nil {
		return "", nil, nil
	}
	for attempt := 0; attempt < 2; attempt++ {
		token, eventID, err := s.claims.Acquire(ctx, key)
		if err == nil {
			return token, nil, nil
		}
		if !errors.Is(err, redisclient.ErrClaimHeld) {
			// the store is an optimisation; an outage must not block bookings
			s.log.Warn().Err(err).Str("booking_key", key).Msg("idempotency store unavailable, booking without claim")
			return "", nil, nil
		}
		if eventID == "" {
			return "", nil, newError(CodeConflict, err, "booking already in progress, please retry shortly")
		}
		replay, err := s.replay(ctx, doc, key, eventID)
		if err != nil {
			return "", nil, err
		}
		if replay != nil {
			return "", replay, nil
		}
	}
	return "", nil, newError(CodeConflict, nil, "booking already in progress, please retry shortly")
}

// replay returns the booking that completed an earlier claim, or nil after
// forgetting the claim when that event is gone.
func (s *Service) replay(ctx context.Context, doc directory.Doctor, key, eventID string) (*Booking, error) {
	rctx, cancel := s.readCtx(ctx)
	defer cancel()

	ev, err := s.cal.GetEvent(rctx, doc.CalendarID, eventID)
	if err != nil && !errors.Is(err, calendar.ErrEventNotFound) {
		return nil, providerError("get", err)
	}
	if err != nil || ev.Cancelled {
		if ferr := s.claims.Forget(ctx, key, eventID); ferr != nil {
			s.log.Warn().Err(ferr).Str("booking_key", key).Msg("forget stale booking claim")
		}
		return nil, nil
	}
	mode := bookingMode(directory.VisitMode(ev.Metadata[calendar.MetaVisitMode]))
	return &Booking{
		EventID:            ev.ID,
		HTMLLink:           ev.HTMLLink,
		MeetLink:           ev.ConferenceLink,
		DoctorID:           doc.ID,
		DoctorName:         doc.Name,
		PatientEmail:       ev.Metadata[calendar.MetaPatientEmail],
		VisitMode:          mode,
		Fee:                doc.Fees.For(mode),
		Start:              ev.Start.In(s.loc),
		End:                ev.End.In(s.loc),
		InvitationsSent:    len(ev.Attendees) > 0,
		Replayed:           true,
		NotificationStatus: NotificationSkipped,
	}, nil
}

func (s *Service) complete(ctx context.Context, key, token, eventID string) {
	if s.claims == nil || token == "" {
		return
	}
	if err := s.claims.Complete(context.WithoutCancel(ctx), key, token, eventID); err != nil {
		s.log.Warn().Err(err).Str("booking_key", key).Msg("complete booking claim")
	}
}

func (s *Service) release(ctx context.Context, key, token string) {
	if s.claims == nil || token == "" {
		return
	}
	if err := s.claims.Release(context.WithoutCancel(ctx), key, token); err != nil {
		s.log.Warn().Err(err).Str("booking_key", key).Msg("release booking claim")
	}
}

func (s *Service) forget(ctx context.Context, ev calendar.Event) {
	key := ev.Metadata[calendar.MetaBookingKey]
	if s.claims == nil || key == "" {
		return
	}
	if err := s.claims.Forget(context.WithoutCancel(ctx), key, ev.ID); err != nil {
		s.log.Warn().Err(err).Str("booking_key", key).Msg("forget booking claim")
	}
}
