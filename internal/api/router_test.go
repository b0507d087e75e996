package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking-engine/internal/appointment"
	"github.com/hackgods/clinic-booking-engine/internal/calendar"
	"github.com/hackgods/clinic-booking-engine/internal/config"
	"github.com/hackgods/clinic-booking-engine/internal/directory"
	"github.com/hackgods/clinic-booking-engine/internal/metrics"
)

const catalog = `{
  "doctors": [
    {
      "doctor_id": "d-ayesha",
      "name": "Dr. Ayesha Siddiqui",
      "specialization": "Dermatology",
      "location": "Unity Care Clinic, Clifton",
      "fees": {"online_pkr": 2500, "inperson_pkr": 3500},
      "weekly_schedule": {"Tue": ["11:00-13:00", "16:00-18:00"], "Thu": ["11:00-13:00"]},
      "calendar_id": "ayesha-cal"
    },
    {
      "doctor_id": "d-imran",
      "name": "Dr. Imran Qureshi",
      "specialization": "General Physician",
      "location": "Unity Care Clinic, DHA",
      "fees": {"inperson_pkr": 2000},
      "weekly_schedule": {"Mon": ["09:00-12:00"]},
      "calendar_id": "imran-cal"
    }
  ],
  "condition_map": {"fever": ["d-imran", "d-ayesha"], "skin_rash": ["d-ayesha"]}
}`

type testServer struct {
	cal     *calendar.Fake
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Karachi")
	require.NoError(t, err)
	dir, err := directory.Parse([]byte(catalog))
	require.NoError(t, err)

	cal := calendar.NewFake()
	now := time.Date(2025, 9, 8, 9, 0, 0, 0, loc)
	svc := appointment.NewService(appointment.Deps{
		Directory: dir,
		Calendar:  cal,
		Logger:    zerolog.Nop(),
		Clock:     func() time.Time { return now },
	}, config.Config{ClinicName: "Unity Care Clinic", Location: loc, DefaultSlotSize: 30 * time.Minute})

	return &testServer{
		cal: cal,
		handler: NewRouter(RouterConfig{
			Service:   svc,
			Directory: dir,
			Logger:    zerolog.Nop(),
			Env:       "test",
			Version:   "v0.0.0-test",
		}),
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	assert.Equal(t, status, rec.Code, rec.Body.String())
	assert.Equal(t, code, decode[ErrorResponse](t, rec).Error)
}

func booking(start, end string) BookAppointmentRequest {
	return BookAppointmentRequest{
		DoctorID:  "d-ayesha",
		Start:     start,
		End:       end,
		Patient:   PatientRequest{Name: "Sara Khan", Email: "sara@example.com"},
		VisitMode: "in-person",
		Condition: "skin rash",
	}
}

func TestDoctorsEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/doctors", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	all := decode[DoctorsResponse](t, rec)
	require.Len(t, all.Doctors, 2)
	assert.Equal(t, 3500, all.Doctors[0].Fees.InPerson)
	assert.Equal(t, []string{"11:00-13:00", "16:00-18:00"}, all.Doctors[0].WeeklySchedule["Tue"])

	rec = s.do(t, http.MethodGet, "/doctors?condition=Fever&visit_mode=online", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	online := decode[DoctorsResponse](t, rec)
	require.Len(t, online.Doctors, 1)
	assert.Equal(t, "d-ayesha", online.Doctors[0].ID)

	rec = s.do(t, http.MethodGet, "/doctors?condition=broken+leg", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[DoctorsResponse](t, rec).Doctors)

	rec = s.do(t, http.MethodGet, "/doctors/search?name=imran", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "d-imran", decode[DoctorResponse](t, rec).ID)

	assertError(t, s.do(t, http.MethodGet, "/doctors/search?name=nobody", nil), http.StatusNotFound, "not_found")
}

func TestAvailabilityEndpoint(t *testing.T) {
	s := newTestServer(t)
	loc := time.FixedZone("PKT", 5*3600)
	s.cal.AddBusy("ayesha-cal", time.Date(2025, 9, 9, 12, 0, 0, 0, loc), time.Date(2025, 9, 9, 12, 30, 0, 0, loc))

	rec := s.do(t, http.MethodGet, "/doctors/d-ayesha/availability?date=2025-09-09", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	av := decode[AvailabilityResponse](t, rec)
	assert.Equal(t, "ok", av.Status)
	assert.Equal(t, 30, av.SlotMinutes)
	labels := make([]string, len(av.Slots))
	for i, sl := range av.Slots {
		labels[i] = sl.Label
	}
	assert.Equal(t, []string{"11:00", "11:30", "12:30", "16:00", "16:30", "17:00", "17:30"}, labels)

	rec = s.do(t, http.MethodGet, "/doctors/d-ayesha/availability?date=2025-09-10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	empty := decode[AvailabilityResponse](t, rec)
	assert.Equal(t, "no_schedule", empty.Status)
	assert.NotNil(t, empty.Slots)

	rec = s.do(t, http.MethodGet, "/doctors/d-ayesha/availability?date=2025-09-08&end_date=2025-09-11&slot_minutes=60", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	days := decode[AvailabilityRangeResponse](t, rec)
	require.Len(t, days.Days, 4)
	assert.Equal(t, "2025-09-11", days.Days[3].Date)
	assert.Len(t, days.Days[3].Slots, 2)

	rec = s.do(t, http.MethodGet, "/doctors/d-ayesha/availability", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2025-09-08", decode[AvailabilityResponse](t, rec).Date, "date defaults to clinic today")

	assertError(t, s.do(t, http.MethodGet, "/doctors/d-ayesha/availability?date=09/09/2025", nil), http.StatusBadRequest, "validation_error")
	assertError(t, s.do(t, http.MethodGet, "/doctors/d-ayesha/availability?date=2025-09-09&slot_minutes=half", nil), http.StatusBadRequest, "validation_error")
	assertError(t, s.do(t, http.MethodGet, "/doctors/d-nobody/availability?date=2025-09-09", nil), http.StatusNotFound, "not_found")

	s.cal.ErrFreeBusy = fmt.Errorf("%w: 503", calendar.ErrUnavailable)
	assertError(t, s.do(t, http.MethodGet, "/doctors/d-ayesha/availability?date=2025-09-09", nil), http.StatusServiceUnavailable, "provider_unavailable")
}

func TestWeeklyAvailabilityEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/doctors/search/availability?name=Ayesha&days=3&slot_minutes=60", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	week := decode[WeeklyAvailabilityResponse](t, rec)
	assert.Equal(t, "d-ayesha", week.Doctor.ID)
	require.Len(t, week.Days, 3)
	assert.Equal(t, "Monday", week.Days[0].Weekday)
	assert.Equal(t, "no_schedule", week.Days[0].Status)
	assert.Equal(t, []string{"11:00-13:00", "16:00-18:00"}, week.Days[1].Routine)

	assertError(t, s.do(t, http.MethodGet, "/doctors/search/availability?name=Ayesha&days=x", nil), http.StatusBadRequest, "validation_error")
}

func TestBookingEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/appointments", booking("2025-09-09T11:00", "2025-09-09T11:30"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	b := decode[BookingResponse](t, rec)
	assert.NotEmpty(t, b.EventID)
	assert.Equal(t, "inperson", b.VisitMode)
	assert.Equal(t, 3500, b.FeePKR)
	assert.Equal(t, "skipped", b.NotificationStatus)

	assertError(t, s.do(t, http.MethodPost, "/appointments", booking("2025-09-09T11:00", "2025-09-09T11:30")), http.StatusConflict, "conflict")
	assertError(t, s.do(t, http.MethodPost, "/appointments", booking("2025-09-09T14:00", "2025-09-09T14:30")), http.StatusUnprocessableEntity, "schedule_violation")
	assertError(t, s.do(t, http.MethodPost, "/appointments", booking("2025-09-02T11:00", "2025-09-02T11:30")), http.StatusUnprocessableEntity, "lead_time_violation")
	assertError(t, s.do(t, http.MethodPost, "/appointments", "{not json"), http.StatusBadRequest, "invalid_request_body")

	rec = s.do(t, http.MethodGet, "/appointments?patient_email=SARA@example.com", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[AppointmentListResponse](t, rec)
	require.Len(t, list.Appointments, 1)
	assert.Equal(t, b.EventID, list.Appointments[0].EventID)

	rec = s.do(t, http.MethodGet, "/appointments?patient_email=stranger@example.com", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[AppointmentListResponse](t, rec).Appointments)

	assertError(t, s.do(t, http.MethodGet, "/appointments", nil), http.StatusBadRequest, "validation_error")

	path := "/appointments/" + b.EventID
	assertError(t, s.do(t, http.MethodPost, path+"/reschedule", RescheduleAppointmentRequest{
		DoctorID: "d-ayesha", PatientEmail: "mallory@example.com", NewStart: "2025-09-09T12:00", NewEnd: "2025-09-09T12:30",
	}), http.StatusForbidden, "unauthorized")

	rec = s.do(t, http.MethodPost, path+"/reschedule", RescheduleAppointmentRequest{
		DoctorID: "d-ayesha", PatientEmail: "sara@example.com", NewStart: "2025-09-09T12:00", NewEnd: "2025-09-09T12:30",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	moved := decode[BookingResponse](t, rec)
	assert.Equal(t, b.EventID, moved.EventID)
	assert.Equal(t, "12:00", moved.Start.In(time.FixedZone("PKT", 5*3600)).Format("15:04"))

	rec = s.do(t, http.MethodPost, path+"/cancel", CancelAppointmentRequest{DoctorID: "d-ayesha", PatientEmail: "sara@example.com", NotifyAttendees: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "cancelled", decode[CancellationResponse](t, rec).Status)
	assert.True(t, s.cal.LastDeleteNotified)

	assertError(t, s.do(t, http.MethodPost, path+"/cancel", CancelAppointmentRequest{DoctorID: "d-ayesha", PatientEmail: "sara@example.com"}), http.StatusNotFound, "not_found")
}

func TestClockEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/clock", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	c := decode[ClockResponse](t, rec)
	assert.Equal(t, "Asia/Karachi", c.Timezone)
	assert.Equal(t, "2025-09-08", c.Date)
	assert.Equal(t, 0, c.WeekdayIndex)
	assert.Equal(t, "Monday", c.WeekdayLong)
}

func TestRequestIDHeader(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health/live", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestHealth(t *testing.T) {
	dir, err := directory.Parse([]byte(catalog))
	require.NoError(t, err)

	t.Run("live", func(t *testing.T) {
		h := NewHealthHandler(dir, nil, nil, "test", "v1")
		rec := httptest.NewRecorder()
		h.Liveness(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "v1", decode[LivenessResponse](t, rec).Version)
	})

	t.Run("ready with redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })

		h := NewHealthHandler(dir, nil, client, "test", "v1")
		rec := httptest.NewRecorder()
		h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[ReadinessResponse](t, rec)
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, map[string]string{"directory": "ok", "redis": "ok"}, resp.Dependencies)

		mr.Close()
		rec = httptest.NewRecorder()
		h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		assert.Equal(t, http.StatusOK, rec.Code, "redis is optional")
		assert.Equal(t, "degraded", decode[ReadinessResponse](t, rec).Status)
	})

	t.Run("empty directory", func(t *testing.T) {
		h := NewHealthHandler(directory.New(nil, nil), nil, nil, "test", "v1")
		rec := httptest.NewRecorder()
		h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Karachi")
	require.NoError(t, err)
	dir, err := directory.Parse([]byte(catalog))
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.NewBookingMetrics(reg)
	svc := appointment.NewService(appointment.Deps{
		Directory: dir,
		Calendar:  calendar.NewFake(),
		Metrics:   m,
		Logger:    zerolog.Nop(),
	}, config.Config{Location: loc})
	handler := NewRouter(RouterConfig{Service: svc, Directory: dir, Logger: zerolog.Nop(), Metrics: m, Gatherer: reg})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/doctors/d-ayesha/availability?date=2025-09-10", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `clinic_http_requests_total{method="GET",route="/doctors/{id}/availability",status="2xx"} 1`)
	assert.Contains(t, body, `clinic_engine_availability_total{status="no_schedule"} 1`)
}
