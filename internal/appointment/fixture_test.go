package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking-engine/internal/calendar"
	"github.com/hackgods/clinic-booking-engine/internal/config"
	"github.com/hackgods/clinic-booking-engine/internal/directory"
	"github.com/hackgods/clinic-booking-engine/internal/notify"
	redisclient "github.com/hackgods/clinic-booking-engine/internal/redis"
	"github.com/hackgods/clinic-booking-engine/internal/schedule"
)

var karachi = mustLocation("Asia/Karachi")

func mustLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// 2025-09-08 is a Monday, 2025-09-09 a Tuesday.
var (
	monday  = time.Date(2025, 9, 8, 0, 0, 0, 0, karachi)
	tuesday = time.Date(2025, 9, 9, 0, 0, 0, 0, karachi)
)

func at(day time.Time, h, m int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, karachi)
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notify.Notice
	err     error
}

func (r *recordingNotifier) Notify(_ context.Context, n notify.Notice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
	return r.err
}

type memAudit struct {
	mu     sync.Mutex
	events []EventLog
	err    error
}

func (m *memAudit) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, ev)
	return nil
}

func (m *memAudit) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, ev := range m.events {
		out[i] = ev.EventType
	}
	return out
}

type fixture struct {
	t        *testing.T
	cal      *calendar.Fake
	dir      *directory.Directory
	notifier *recordingNotifier
	audit    *memAudit
	cfg      config.Config
	now      time.Time
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:        t,
		cal:      calendar.NewFake(),
		dir:      testDirectory(t),
		notifier: &recordingNotifier{},
		audit:    &memAudit{},
		cfg: config.Config{
			ClinicName:           "Unity Care Clinic",
			Location:             karachi,
			DefaultSlotSize:      30 * time.Minute,
			CalendarTimeout:      time.Second,
			CalendarWriteTimeout: time.Second,
		},
		now: at(monday, 9, 0),
	}
	f.svc = f.build(f.cal, nil)
	return f
}

func (f *fixture) build(gw calendar.Gateway, claims redisclient.Claimer) *Service {
	return NewService(Deps{
		Directory: f.dir,
		Calendar:  gw,
		Claims:    claims,
		Audit:     f.audit,
		Notifier:  f.notifier,
		Logger:    zerolog.Nop(),
		Clock:     func() time.Time { return f.now },
	}, f.cfg)
}

// withLead rebuilds the service with a minimum lead time.
func (f *fixture) withLead(d time.Duration) {
	f.cfg.MinLeadTime = d
	f.svc = f.build(f.cal, nil)
}

// withClaims rebuilds the service on top of a miniredis claim store.
func (f *fixture) withClaims() *miniredis.Miniredis {
	mr := miniredis.RunT(f.t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	f.t.Cleanup(func() { _ = client.Close() })
	f.svc = f.build(f.cal, redisclient.NewRedisClaimer(client, time.Minute))
	return mr
}

func testDirectory(t *testing.T) *directory.Directory {
	t.Helper()
	ayesha, err := schedule.ParseWeekly(map[string][]string{
		"Tue": {"11:00-13:00", "16:00-18:00"},
		"Thu": {"11:00-13:00"},
	})
	require.NoError(t, err)
	imran, err := schedule.ParseWeekly(map[string][]string{
		"Mon": {"09:00-12:00"},
		"Tue": {"09:00-10:00"},
	})
	require.NoError(t, err)

	return directory.New([]directory.Doctor{
		{
			ID:             "d-ayesha",
			Name:           "Dr. Ayesha Siddiqui",
			Specialization: "Dermatology",
			Location:       "Unity Care Clinic, Clifton",
			Fees:           directory.Fees{Online: 2500, InPerson: 3500},
			Weekly:         ayesha,
			CalendarID:     "ayesha-cal",
			Email:          "ayesha@clinic.example",
		},
		{
			ID:             "d-imran",
			Name:           "Dr. Imran Qureshi",
			Specialization: "General Physician",
			Location:       "Unity Care Clinic, DHA",
			Fees:           directory.Fees{InPerson: 2000},
			Weekly:         imran,
			CalendarID:     "imran-cal",
		},
	}, map[string][]string{
		"skin_rash": {"d-ayesha"},
		"fever":     {"d-imran", "d-ayesha"},
	})
}

func bookReq(start, end string) BookRequest {
	return BookRequest{
		DoctorID:  "d-ayesha",
		Start:     start,
		End:       end,
		Patient:   Patient{Name: "Sara Khan", Email: "sara@example.com", Phone: "0300-1234567", Age: 31, Sex: "F"},
		VisitMode: directory.VisitInPerson,
		Condition: "skin rash",
	}
}

// flakyList fails ListEvents for one calendar only.
type flakyList struct {
	*calendar.Fake
	failing string
}

func (g flakyList) ListEvents(ctx context.Context, calendarID string, from, to time.Time) ([]calendar.Event, error) {
	if calendarID == g.failing {
		return nil, errors.Join(calendar.ErrUnavailable, errors.New("quota exceeded"))
	}
	return g.Fake.ListEvents(ctx, calendarID, from, to)
}
