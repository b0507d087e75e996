package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking-engine/internal/appointment"
	"github.com/hackgods/clinic-booking-engine/internal/directory"
)

func listDoctorsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		condition := r.URL.Query().Get("condition")
		if condition == "" {
			writeJSON(w, http.StatusOK, toDoctorsResponse(svc.ListDoctors()))
			return
		}

		mode := directory.ParseVisitMode(r.URL.Query().Get("visit_mode"))
		docs, err := svc.Lookup(condition, mode)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toDoctorsResponse(docs))
	}
}

func searchDoctorHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := svc.FindDoctor(r.URL.Query().Get("name"))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toDoctorResponse(doc))
	}
}

func availabilityHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID := chi.URLParam(r, "id")
		q := r.URL.Query()

		slotMinutes, ok := intParam(w, q.Get("slot_minutes"), svc.DefaultSlotMinutes(), "slot_minutes")
		if !ok {
			return
		}
		rawDate := q.Get("date")
		if rawDate == "" {
			rawDate = svc.Now().Date
		}
		date, err := svc.ParseDate(rawDate)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		if raw := q.Get("end_date"); raw != "" {
			end, err := svc.ParseDate(raw)
			if err != nil {
				handleServiceError(w, r, err)
				return
			}
			days, err := svc.AvailabilityRange(r.Context(), doctorID, date, end, slotMinutes)
			if err != nil {
				handleServiceError(w, r, err)
				return
			}
			resp := AvailabilityRangeResponse{DoctorID: doctorID, Days: make([]AvailabilityResponse, len(days))}
			for i, av := range days {
				resp.Days[i] = toAvailabilityResponse(av)
			}
			writeJSON(w, http.StatusOK, resp)
			return
		}

		av, err := svc.Availability(r.Context(), doctorID, date, slotMinutes)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAvailabilityResponse(av))
	}
}

func weeklyAvailabilityHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		days, ok := intParam(w, q.Get("days"), 7, "days")
		if !ok {
			return
		}
		slotMinutes, ok := intParam(w, q.Get("slot_minutes"), svc.DefaultSlotMinutes(), "slot_minutes")
		if !ok {
			return
		}

		week, err := svc.WeeklyAvailability(r.Context(), q.Get("name"), days, slotMinutes)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		resp := WeeklyAvailabilityResponse{
			Doctor: toDoctorResponse(week.Doctor),
			Days:   make([]DayPlanResponse, len(week.Days)),
		}
		for i, day := range week.Days {
			resp.Days[i] = DayPlanResponse{
				AvailabilityResponse: toAvailabilityResponse(day.Availability),
				Weekday:              day.Weekday,
				Routine:              day.Routine,
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func bookAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		b, err := svc.Book(r.Context(), appointment.BookRequest{
			DoctorID: req.DoctorID,
			Start:    req.Start,
			End:      req.End,
			Patient: appointment.Patient{
				Name:  req.Patient.Name,
				Email: req.Patient.Email,
				Phone: req.Patient.Phone,
				Age:   req.Patient.Age,
				Sex:   req.Patient.Sex,
			},
			VisitMode:       directory.ParseVisitMode(req.VisitMode),
			Condition:       req.Condition,
			SendInvitations: req.SendInvitations,
			CreateMeet:      req.CreateMeet,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		status := http.StatusCreated
		if b.Replayed {
			status = http.StatusOK
		}
		writeJSON(w, status, toBookingResponse(b))
	}
}

func listAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		window, ok := intParam(w, q.Get("window_days"), 0, "window_days")
		if !ok {
			return
		}

		list, err := svc.ListAppointments(r.Context(), appointment.ListRequest{
			PatientEmail: q.Get("patient_email"),
			DoctorID:     q.Get("doctor_id"),
			WindowDays:   window,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		resp := AppointmentListResponse{
			Appointments:   make([]AppointmentResponse, len(list.Appointments)),
			SkippedDoctors: list.SkippedDoctors,
			From:           list.From,
			To:             list.To,
		}
		for i, a := range list.Appointments {
			resp.Appointments[i] = AppointmentResponse{
				EventID:    a.EventID,
				DoctorID:   a.DoctorID,
				DoctorName: a.DoctorName,
				Summary:    a.Summary,
				HTMLLink:   a.HTMLLink,
				Start:      a.Start,
				End:        a.End,
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func cancelAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CancelAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		res, err := svc.Cancel(r.Context(), appointment.CancelRequest{
			DoctorID:        req.DoctorID,
			EventID:         chi.URLParam(r, "eventID"),
			PatientEmail:    req.PatientEmail,
			NotifyAttendees: req.NotifyAttendees,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, CancellationResponse{
			EventID:            res.EventID,
			DoctorID:           res.DoctorID,
			Status:             "cancelled",
			NotificationStatus: res.NotificationStatus,
			NotificationError:  res.NotificationError,
		})
	}
}

func rescheduleAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RescheduleAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		b, err := svc.Reschedule(r.Context(), appointment.RescheduleRequest{
			DoctorID:     req.DoctorID,
			EventID:      chi.URLParam(r, "eventID"),
			PatientEmail: req.PatientEmail,
			NewStart:     req.NewStart,
			NewEnd:       req.NewEnd,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toBookingResponse(b))
	}
}

func clockHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := svc.Now()
		writeJSON(w, http.StatusOK, ClockResponse{
			Timezone:     c.Timezone,
			Date:         c.Date,
			Time:         c.Time,
			ISOLocal:     c.ISOLocal,
			ISOUTC:       c.ISOUTC,
			WeekdayIndex: c.WeekdayIndex,
			WeekdayShort: c.WeekdayShort,
			WeekdayLong:  c.WeekdayLong,
		})
	}
}

// intParam parses an optional integer query parameter, writing a 400 when it
// is malformed.
func intParam(w http.ResponseWriter, raw string, def int, name string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, string(appointment.CodeValidation), name+" must be an integer")
		return 0, false
	}
	return n, true
}

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var e *appointment.Error
	details := "internal error"
	if errors.As(err, &e) {
		details = e.Message
	}

	switch {
	case errors.Is(err, appointment.ErrNotFound):
		writeError(w, http.StatusNotFound, string(appointment.CodeNotFound), details)
	case errors.Is(err, appointment.ErrValidation):
		writeError(w, http.StatusBadRequest, string(appointment.CodeValidation), details)
	case errors.Is(err, appointment.ErrScheduleViolation):
		writeError(w, http.StatusUnprocessableEntity, string(appointment.CodeScheduleViolation), details)
	case errors.Is(err, appointment.ErrLeadTimeViolation):
		writeError(w, http.StatusUnprocessableEntity, string(appointment.CodeLeadTimeViolation), details)
	case errors.Is(err, appointment.ErrConflict):
		writeError(w, http.StatusConflict, string(appointment.CodeConflict), details)
	case errors.Is(err, appointment.ErrUnauthorized):
		writeError(w, http.StatusForbidden, string(appointment.CodeUnauthorized), details)
	case errors.Is(err, appointment.ErrProviderUnavailable):
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("calendar provider failure")
		writeError(w, http.StatusServiceUnavailable, string(appointment.CodeProviderUnavailable), details)
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("unhandled service error")
		writeError(w, http.StatusInternalServerError, string(appointment.CodeInternal), details)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
