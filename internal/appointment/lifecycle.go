package appointment

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hackgods/clinic-booking-engine/internal/calendar"
	"github.com/hackgods/clinic-booking-engine/internal/directory"
	"github.com/hackgods/clinic-booking-engine/internal/notify"
)

const (
	defaultWindowDays = 30
	maxWindowDays     = 90
	listParallel      = 4
)

// ListAppointments returns the upcoming appointments of a patient. The email
// is mandatory: without it nobody's appointments are listed.
func (s *Service) ListAppointments(ctx context.Context, req ListRequest) (AppointmentList, error) {
	list, err := s.listAppointments(ctx, req)
	s.metrics.ObserveLifecycle("list", outcome(err))
	return list, err
}

func (s *Service) listAppointments(ctx context.Context, req ListRequest) (AppointmentList, error) {
	email := normaliseEmail(req.PatientEmail)
	if email == "" {
		return AppointmentList{}, newError(CodeValidation, nil, "patient_email is required")
	}
	window := req.WindowDays
	if window == 0 {
		window = defaultWindowDays
	}
	if window < 0 || window > maxWindowDays {
		return AppointmentList{}, newError(CodeValidation, nil, "window_days must be between 1 and %d", maxWindowDays)
	}

	var doctors []directory.Doctor
	if strings.TrimSpace(req.DoctorID) != "" {
		doc, err := s.doctor(req.DoctorID)
		if err != nil {
			return AppointmentList{}, err
		}
		doctors = []directory.Doctor{doc}
	} else {
		doctors = s.dir.All()
	}

	from := s.clock()
	to := from.AddDate(0, 0, window)
	list := AppointmentList{From: from, To: to, Appointments: []AppointmentSummary{}}

	var (
		mu       sync.Mutex
		failures []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listParallel)
	for _, doc := range doctors {
		g.Go(func() error {
			rctx, cancel := s.readCtx(gctx)
			defer cancel()
			events, err := s.cal.ListEvents(rctx, doc.CalendarID, from, to)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.log.Warn().Err(err).Str("doctor_id", doc.ID).Msg("list events failed, skipping calendar")
				failures = append(failures, err)
				list.SkippedDoctors = append(list.SkippedDoctors, doc.ID)
				return nil
			}
			for _, ev := range events {
				if ev.Cancelled || !ev.OwnedBy(email) {
					continue
				}
				list.Appointments = append(list.Appointments, AppointmentSummary{
					DoctorID:   doc.ID,
					DoctorName: doc.Name,
					EventID:    ev.ID,
					HTMLLink:   ev.HTMLLink,
					Summary:    ev.Summary,
					Start:      ev.Start.In(s.loc),
					End:        ev.End.In(s.loc),
				})
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(doctors) > 0 && len(failures) == len(doctors) {
		return AppointmentList{}, providerError("list", errors.Join(failures...))
	}
	sort.Slice(list.Appointments, func(i, j int) bool {
		return list.Appointments[i].Start.Before(list.Appointments[j].Start)
	})
	sort.Strings(list.SkippedDoctors)
	return list, nil
}

// Cancel deletes an appointment after checking that the patient owns it.
// Cancelling is terminal: a second cancel reports NotFound.
func (s *Service) Cancel(ctx context.Context, req CancelRequest) (Cancellation, error) {
	res, err := s.cancel(ctx, req)
	s.metrics.ObserveLifecycle("cancel", outcome(err))
	return res, err
}

func (s *Service) cancel(ctx context.Context, req CancelRequest) (Cancellation, error) {
	doc, ev, err := s.ownedEvent(ctx, req.DoctorID, req.EventID, req.PatientEmail)
	if err != nil {
		return Cancellation{}, err
	}

	wctx, cancel := s.writeCtx(ctx)
	defer cancel()
	if err := s.cal.DeleteEvent(wctx, doc.CalendarID, ev.ID, req.NotifyAttendees); err != nil {
		return Cancellation{}, providerError("delete", err)
	}
	s.forget(ctx, ev)

	s.log.Info().Str("event_id", ev.ID).Str("doctor_id", doc.ID).Msg("appointment cancelled")
	s.logEvent(ctx, EventAppointmentCancelled, ev.ID, doc.ID, map[string]any{
		"start":            ev.Start,
		"notify_attendees": req.NotifyAttendees,
	})

	res := Cancellation{EventID: ev.ID, DoctorID: doc.ID}
	res.NotificationStatus, res.NotificationError = s.notify(ctx, s.noticeFor(notify.KindCancelled, doc, ev, req.PatientEmail))
	return res, nil
}

// Reschedule moves an owned appointment to a new interval, keeping its event
// id. The new interval goes through the same parse, lead time, clinic hours
// and free/busy checks as a booking; the event's current interval does not
// count as busy.
func (s *Service) Reschedule(ctx context.Context, req RescheduleRequest) (Booking, error) {
	b, err := s.reschedule(ctx, req)
	s.metrics.ObserveLifecycle("reschedule", outcome(err))
	return b, err
}

func (s *Service) reschedule(ctx context.Context, req RescheduleRequest) (Booking, error) {
	doc, ev, err := s.ownedEvent(ctx, req.DoctorID, req.EventID, req.PatientEmail)
	if err != nil {
		return Booking{}, err
	}
	start, end, err := s.parseInterval(req.NewStart, req.NewEnd)
	if err != nil {
		return Booking{}, err
	}
	if err := s.checkLeadTime(start); err != nil {
		return Booking{}, err
	}
	if err := s.checkSchedule(doc, start, end); err != nil {
		return Booking{}, err
	}
	current := calendar.Interval{Start: ev.Start, End: ev.End}
	if err := s.preflight(ctx, doc, start, end, &current); err != nil {
		return Booking{}, err
	}

	wctx, cancel := s.writeCtx(ctx)
	defer cancel()
	updated, err := s.cal.UpdateEvent(wctx, doc.CalendarID, ev.ID, start, end, true)
	if err != nil {
		return Booking{}, providerError("update", err)
	}
	s.forget(ctx, ev)

	mode := bookingMode(directory.VisitMode(ev.Metadata[calendar.MetaVisitMode]))
	s.log.Info().Str("event_id", ev.ID).Str("doctor_id", doc.ID).Time("start", start).Msg("appointment rescheduled")
	s.logEvent(ctx, EventAppointmentRescheduled, ev.ID, doc.ID, map[string]any{
		"from_start": ev.Start,
		"start":      start,
		"end":        end,
	})

	b := Booking{
		EventID:         updated.ID,
		HTMLLink:        updated.HTMLLink,
		MeetLink:        updated.ConferenceLink,
		DoctorID:        doc.ID,
		DoctorName:      doc.Name,
		PatientEmail:    normaliseEmail(req.PatientEmail),
		VisitMode:       mode,
		Fee:             doc.Fees.For(mode),
		Start:           start,
		End:             end,
		InvitationsSent: len(ev.Attendees) > 0,
	}
	moved := ev
	moved.Start, moved.End = start, end
	b.NotificationStatus, b.NotificationError = s.notify(ctx, s.noticeFor(notify.KindRescheduled, doc, moved, req.PatientEmail))
	return b, nil
}

// ownedEvent loads a live event and verifies that patientEmail owns it.
func (s *Service) ownedEvent(ctx context.Context, doctorID, eventID, patientEmail string) (directory.Doctor, calendar.Event, error) {
	doc, err := s.doctor(doctorID)
	if err != nil {
		return directory.Doctor{}, calendar.Event{}, err
	}
	if strings.TrimSpace(eventID) == "" {
		return directory.Doctor{}, calendar.Event{}, newError(CodeValidation, nil, "event_id is required")
	}
	if normaliseEmail(patientEmail) == "" {
		return directory.Doctor{}, calendar.Event{}, newError(CodeValidation, nil, "patient_email is required")
	}

	rctx, cancel := s.readCtx(ctx)
	defer cancel()
	ev, err := s.cal.GetEvent(rctx, doc.CalendarID, eventID)
	if err != nil {
		return directory.Doctor{}, calendar.Event{}, providerError("get", err)
	}
	if ev.Cancelled {
		return directory.Doctor{}, calendar.Event{}, newError(CodeNotFound, nil, "appointment %s not found", eventID)
	}
	if !ev.OwnedBy(patientEmail) {
		s.log.Warn().Str("event_id", eventID).Str("doctor_id", doc.ID).Msg("ownership check failed")
		return directory.Doctor{}, calendar.Event{}, newError(CodeUnauthorized, nil, "appointment does not belong to this patient")
	}
	ev.Start = ev.Start.In(s.loc)
	ev.End = ev.End.In(s.loc)
	return doc, ev, nil
}

func (s *Service) noticeFor(kind notify.Kind, doc directory.Doctor, ev calendar.Event, patientEmail string) notify.Notice {
	name := ev.Metadata[calendar.MetaPatientName]
	if name == "" {
		name = "Patient"
	}
	return notify.Notice{
		Kind:         kind,
		EventID:      ev.ID,
		Summary:      ev.Summary,
		Doctor:       doc,
		PatientName:  name,
		PatientEmail: strings.TrimSpace(patientEmail),
		VisitMode:    bookingMode(directory.VisitMode(ev.Metadata[calendar.MetaVisitMode])),
		Start:        ev.Start,
		End:          ev.End,
		MeetLink:     ev.ConferenceLink,
	}
}
