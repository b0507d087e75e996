package appointment

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hackgods/clinic-booking-engine/internal/calendar"
	"github.com/hackgods/clinic-booking-engine/internal/directory"
	"github.com/hackgods/clinic-booking-engine/internal/schedule"
)

const (
	maxRangeDays  = 31
	rangeParallel = 4
)

// Lookup returns the doctors treating a condition that offer the visit mode.
func (s *Service) Lookup(condition string, mode directory.VisitMode) ([]directory.Doctor, error) {
	if strings.TrimSpace(condition) == "" {
		return nil, newError(CodeValidation, nil, "condition is required")
	}
	return s.dir.ByCondition(condition, mode), nil
}

func (s *Service) ListDoctors() []directory.Doctor {
	return s.dir.All()
}

// FindDoctor matches a doctor by a case-insensitive partial name.
func (s *Service) FindDoctor(name string) (directory.Doctor, error) {
	doc, err := s.dir.FindByName(name)
	if err != nil {
		return directory.Doctor{}, newError(CodeNotFound, err, "no doctor matches %q", name)
	}
	return doc, nil
}

// DefaultSlotMinutes is the granularity used when a caller does not pick one.
func (s *Service) DefaultSlotMinutes() int {
	return int(s.defaultSlot.Minutes())
}

func slotSize(minutes int) (time.Duration, error) {
	if minutes <= 0 {
		return 0, newError(CodeValidation, nil, "slot_minutes must be positive, got %d", minutes)
	}
	if minutes > 24*60 {
		return 0, newError(CodeValidation, nil, "slot_minutes must not exceed one day, got %d", minutes)
	}
	return time.Duration(minutes) * time.Minute, nil
}

// Availability returns the free slots of a doctor on a clinic-local date.
// An empty result always carries a status explaining why; a calendar failure
// is an error, never an empty result.
func (s *Service) Availability(ctx context.Context, doctorID string, date time.Time, slotMinutes int) (Availability, error) {
	av, err := s.availability(ctx, doctorID, date, slotMinutes)
	if err != nil {
		s.metrics.ObserveAvailability(string(CodeOf(err)))
		return Availability{}, err
	}
	s.metrics.ObserveAvailability(string(av.Status))
	return av, nil
}

func (s *Service) availability(ctx context.Context, doctorID string, date time.Time, slotMinutes int) (Availability, error) {
	doc, err := s.doctor(doctorID)
	if err != nil {
		return Availability{}, err
	}
	size, err := slotSize(slotMinutes)
	if err != nil {
		return Availability{}, err
	}
	return s.resolve(ctx, doc, date, size)
}

// AvailabilityRange resolves every day of [from, to], inclusive, concurrently.
func (s *Service) AvailabilityRange(ctx context.Context, doctorID string, from, to time.Time, slotMinutes int) ([]Availability, error) {
	doc, err := s.doctor(doctorID)
	if err != nil {
		return nil, err
	}
	size, err := slotSize(slotMinutes)
	if err != nil {
		return nil, err
	}
	days, err := s.days(from, to)
	if err != nil {
		return nil, err
	}
	return s.resolveDays(ctx, doc, days, size)
}

// WeeklyAvailability looks a doctor up by name and resolves the next days,
// starting today, together with the routine hours of each day.
func (s *Service) WeeklyAvailability(ctx context.Context, doctorName string, days, slotMinutes int) (DoctorWeek, error) {
	doc, err := s.FindDoctor(doctorName)
	if err != nil {
		return DoctorWeek{}, err
	}
	size, err := slotSize(slotMinutes)
	if err != nil {
		return DoctorWeek{}, err
	}
	if days <= 0 {
		days = 7
	}
	today := s.day(s.clock())
	dates, err := s.days(today, today.AddDate(0, 0, days-1))
	if err != nil {
		return DoctorWeek{}, err
	}

	avs, err := s.resolveDays(ctx, doc, dates, size)
	if err != nil {
		return DoctorWeek{}, err
	}
	week := DoctorWeek{Doctor: doc, Days: make([]DayPlan, len(avs))}
	for i, av := range avs {
		routine := []string{}
		for _, w := range doc.Weekly.WindowsOn(av.Date) {
			routine = append(routine, w.String())
		}
		week.Days[i] = DayPlan{Availability: av, Weekday: av.Date.Weekday().String(), Routine: routine}
	}
	return week, nil
}

func (s *Service) resolveDays(ctx context.Context, doc directory.Doctor, days []time.Time, size time.Duration) ([]Availability, error) {
	out := make([]Availability, len(days))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rangeParallel)
	for i, day := range days {
		g.Go(func() error {
			av, err := s.resolve(gctx, doc, day, size)
			if err != nil {
				return err
			}
			out[i] = av
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.metrics.ObserveAvailability(string(CodeOf(err)))
		return nil, err
	}
	for _, av := range out {
		s.metrics.ObserveAvailability(string(av.Status))
	}
	return out, nil
}

// days lists the clinic-local dates of [from, to], swapping a reversed range.
func (s *Service) days(from, to time.Time) ([]time.Time, error) {
	from, to = s.day(from), s.day(to)
	if to.Before(from) {
		from, to = to, from
	}
	var out []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if len(out) == maxRangeDays {
			return nil, newError(CodeValidation, nil, "date range must not exceed %d days", maxRangeDays)
		}
		out = append(out, d)
	}
	return out, nil
}

// day is the clinic-local midnight of the calendar date of t.
func (s *Service) day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.loc)
}

// resolve runs the read path for one day: tile the routine, query free/busy
// once over the routine's envelope, drop busy and too-early candidates.
func (s *Service) resolve(ctx context.Context, doc directory.Doctor, date time.Time, size time.Duration) (Availability, error) {
	day := s.day(date)
	av := Availability{
		DoctorID:    doc.ID,
		DoctorName:  doc.Name,
		Date:        day,
		SlotMinutes: int(size.Minutes()),
	}

	candidates, err := schedule.Generate(doc.Weekly, day, size)
	if errors.Is(err, schedule.ErrNoSchedule) {
		av.Status = StatusNoSchedule
		return av, nil
	}
	if err != nil {
		return Availability{}, newError(CodeValidation, err, "cannot generate slots")
	}
	if len(candidates) == 0 {
		// windows exist but none fits a single slot of this size
		av.Status = StatusNoSchedule
		return av, nil
	}

	from, to, _ := schedule.Envelope(doc.Weekly, day)
	rctx, cancel := s.readCtx(ctx)
	defer cancel()
	busy, err := s.cal.FreeBusy(rctx, doc.CalendarID, from, to)
	if err != nil {
		s.log.Warn().Err(err).Str("doctor_id", doc.ID).Time("date", day).Msg("free/busy query failed")
		return Availability{}, providerError("free/busy", err)
	}

	threshold := s.clock().Add(s.lead)
	future := 0
	for _, c := range candidates {
		if c.Start.Before(threshold) {
			continue
		}
		future++
		if overlapsAny(c, busy) {
			continue
		}
		av.Slots = append(av.Slots, c)
	}

	switch {
	case len(av.Slots) > 0:
		av.Status = StatusOK
	case future == 0:
		av.Status = StatusNoFutureSlots
	default:
		av.Status = StatusFullyBooked
	}
	return av, nil
}

func overlapsAny(slot schedule.Slot, busy []calendar.Interval) bool {
	for _, b := range busy {
		if b.Overlaps(slot.Start, slot.End) {
			return true
		}
	}
	return false
}

// Now reports the current instant in the clinic time zone.
func (s *Service) Now() Clock {
	now := s.clock()
	return Clock{
		Timezone:     s.loc.String(),
		Date:         now.Format("2006-01-02"),
		Time:         now.Format("15:04:05"),
		ISOLocal:     now.Format(time.RFC3339),
		ISOUTC:       now.UTC().Format(time.RFC3339),
		WeekdayIndex: (int(now.Weekday()) + 6) % 7,
		WeekdayShort: now.Format("Mon"),
		WeekdayLong:  now.Weekday().String(),
	}
}
