package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking-engine/internal/calendar"
	"github.com/hackgods/clinic-booking-engine/internal/config"
	"github.com/hackgods/clinic-booking-engine/internal/directory"
	"github.com/hackgods/clinic-booking-engine/internal/notify"
	redisclient "github.com/hackgods/clinic-booking-engine/internal/redis"
)

// Notifier is told about every committed calendar write.
type Notifier interface {
	Notify(ctx context.Context, n notify.Notice) error
}

// Recorder receives engine outcomes for metrics.
type Recorder interface {
	ObserveAvailability(status string)
	ObserveBooking(outcome string)
	ObserveLifecycle(operation, outcome string)
	ObserveNotification(kind, status string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveAvailability(string)         {}
func (nopRecorder) ObserveBooking(string)              {}
func (nopRecorder) ObserveLifecycle(string, string)    {}
func (nopRecorder) ObserveNotification(string, string) {}

// Deps are the collaborators of a Service. Only Directory and Calendar are
// required.
type Deps struct {
	Directory *directory.Directory
	Calendar  calendar.Gateway
	Claims    redisclient.Claimer
	Audit     AuditLog
	Notifier  Notifier
	Metrics   Recorder
	Logger    zerolog.Logger
	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// Service is the scheduling and booking engine. It keeps no state between
// calls apart from its read-only collaborators and is safe for concurrent use.
type Service struct {
	dir      *directory.Directory
	cal      calendar.Gateway
	claims   redisclient.Claimer
	audit    AuditLog
	notifier Notifier
	metrics  Recorder
	log      zerolog.Logger
	now      func() time.Time

	loc          *time.Location
	lead         time.Duration
	defaultSlot  time.Duration
	readTimeout   time.Duration
	writeTimeout  time.Duration
	notifyTimeout time.Duration
	auditTimeout  time.Duration
	clinicName    string
}

func NewService(deps Deps, cfg config.Config) *Service {
	s := &Service{
		dir:           deps.Directory,
		cal:           deps.Calendar,
		claims:        deps.Claims,
		audit:         deps.Audit,
		notifier:      deps.Notifier,
		metrics:       deps.Metrics,
		log:           deps.Logger,
		now:           deps.Clock,
		loc:           cfg.Location,
		lead:          cfg.MinLeadTime,
		defaultSlot:   cfg.DefaultSlotSize,
		readTimeout:   cfg.CalendarTimeout,
		writeTimeout:  cfg.CalendarWriteTimeout,
		notifyTimeout: cfg.NotifyTimeout,
		auditTimeout:  cfg.AuditTimeout,
		clinicName:    cfg.ClinicName,
	}
	if s.metrics == nil {
		s.metrics = nopRecorder{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.defaultSlot <= 0 {
		s.defaultSlot = 30 * time.Minute
	}
	if s.readTimeout <= 0 {
		s.readTimeout = 10 * time.Second
	}
	if s.writeTimeout <= 0 {
		s.writeTimeout = 30 * time.Second
	}
	if s.notifyTimeout <= 0 {
		s.notifyTimeout = 10 * time.Second
	}
	if s.auditTimeout <= 0 {
		s.auditTimeout = 5 * time.Second
	}
	return s
}

// Location is the clinic time zone every slot is computed in.
func (s *Service) Location() *time.Location { return s.loc }

func (s *Service) clock() time.Time {
	return s.now().In(s.loc)
}

// readCtx bounds a calendar read; it still ends when the caller goes away.
func (s *Service) readCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.readTimeout)
}

// writeCtx detaches a calendar write from caller cancellation. Once a write
// reached the provider its outcome must be observed, not abandoned.
func (s *Service) writeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.writeTimeout)
}

func (s *Service) doctor(id string) (directory.Doctor, error) {
	doc, err := s.dir.Get(strings.TrimSpace(id))
	if err != nil {
		return directory.Doctor{}, newError(CodeNotFound, err, "unknown doctor_id %q", id)
	}
	return doc, nil
}

// providerError maps a gateway failure onto the engine's error codes.
func providerError(op string, err error) error {
	switch {
	case errors.Is(err, calendar.ErrEventNotFound):
		return newError(CodeNotFound, err, "appointment not found")
	case errors.Is(err, calendar.ErrSlotTaken):
		return newError(CodeConflict, err, "slot is no longer available")
	default:
		return newError(CodeProviderUnavailable, err, "calendar %s failed, please retry later", op)
	}
}

// logEvent writes to the audit trail. Failures are logged and swallowed so
// that they never change the outcome of a calendar operation.
func (s *Service) logEvent(ctx context.Context, eventType, eventID, doctorID string, payload map[string]any) {
	if s.audit == nil {
		return
	}

	b, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn().Err(err).Str("event_type", eventType).Msg("marshal audit payload")
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.auditTimeout)
	defer cancel()

	ev := EventLog{
		EventType:       eventType,
		CalendarEventID: eventID,
		DoctorID:        doctorID,
		Payload:         b,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.audit.InsertEvent(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("event_type", eventType).Str("event_id", eventID).Msg("failed to write audit event")
	}
}

// notify runs the best-effort notification of a committed write and returns
// its status and error text. It is bounded by the notify timeout, not the
// calendar write timeout.
func (s *Service) notify(ctx context.Context, n notify.Notice) (string, string) {
	if s.notifier == nil {
		s.metrics.ObserveNotification(string(n.Kind), NotificationSkipped)
		return NotificationSkipped, ""
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()

	if err := s.notifier.Notify(ctx, n); err != nil {
		s.metrics.ObserveNotification(string(n.Kind), NotificationFailed)
		s.log.Warn().Err(err).Str("event_id", n.EventID).Str("kind", string(n.Kind)).Msg("notification failed, appointment is kept")
		return NotificationFailed, err.Error()
	}
	s.metrics.ObserveNotification(string(n.Kind), NotificationSent)
	return NotificationSent, ""
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(CodeOf(err))
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validEmail is a structural check only: a non-empty local part and a dot
// somewhere after the last "@".
func validEmail(email string) bool {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	return at > 0 && strings.Contains(email[at+1:], ".")
}

var localLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
}

// parseLocal accepts RFC 3339 timestamps, which are converted to the clinic
// zone, and zone-less timestamps, which are taken as clinic-local.
func (s *Service) parseLocal(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.In(s.loc), nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, value, s.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, newError(CodeValidation, nil, "%s must be YYYY-MM-DDTHH:MM, got %q", field, value)
}

// ParseDate parses a clinic-local calendar day.
func (s *Service) ParseDate(value string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(value), s.loc)
	if err != nil {
		return time.Time{}, newError(CodeValidation, err, "date must be YYYY-MM-DD, got %q", value)
	}
	return t, nil
}

func (s *Service) parseInterval(startRaw, endRaw string) (time.Time, time.Time, error) {
	start, err := s.parseLocal("start", startRaw)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := s.parseLocal("end", endRaw)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, newError(CodeValidation, nil, "end must be after start")
	}
	return start, end, nil
}

// checkLeadTime rejects starts earlier than now plus the configured lead.
func (s *Service) checkLeadTime(start time.Time) error {
	if !start.Before(s.clock().Add(s.lead)) {
		return nil
	}
	if s.lead <= 0 {
		return newError(CodeLeadTimeViolation, nil, "appointment must start in the future")
	}
	return newError(CodeLeadTimeViolation, nil, "appointment must start at least %d minutes from now", int(s.lead.Minutes()))
}

func (s *Service) checkSchedule(doc directory.Doctor, start, end time.Time) error {
	if !doc.Weekly.Contains(start, end) {
		return newError(CodeScheduleViolation, nil, "requested time is outside clinic hours for %s", doc.Name)
	}
	return nil
}

// preflight queries free/busy over exactly [start, end). exclude, when set,
// is removed from the busy set so that an event can be moved onto itself.
// Free/busy blocks carry no event ids, so another event overlapping exclude
// is cut away with it; the provider stays the final arbiter for that case.
func (s *Service) preflight(ctx context.Context, doc directory.Doctor, start, end time.Time, exclude *calendar.Interval) error {
	rctx, cancel := s.readCtx(ctx)
	defer cancel()

	busy, err := s.cal.FreeBusy(rctx, doc.CalendarID, start, end)
	if err != nil {
		return providerError("free/busy", err)
	}
	if exclude != nil {
		busy = subtract(busy, *exclude)
	}
	for _, b := range busy {
		if b.Overlaps(start, end) {
			return newError(CodeConflict, nil, "slot is no longer available")
		}
	}
	return nil
}

// subtract removes cut from every busy interval, splitting where needed.
func subtract(busy []calendar.Interval, cut calendar.Interval) []calendar.Interval {
	out := make([]calendar.Interval, 0, len(busy))
	for _, b := range busy {
		if !b.Overlaps(cut.Start, cut.End) {
			out = append(out, b)
			continue
		}
		if b.Start.Before(cut.Start) {
			out = append(out, calendar.Interval{Start: b.Start, End: cut.Start})
		}
		if b.End.After(cut.End) {
			out = append(out, calendar.Interval{Start: cut.End, End: b.End})
		}
	}
	return out
}
