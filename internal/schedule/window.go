// Package schedule models a doctor's recurring weekly routine and tiles it
// into candidate appointment slots. Everything here is pure: no clock, no I/O.
package schedule

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidWindow  = errors.New("invalid schedule window")
	ErrInvalidWeekday = errors.New("invalid weekday")
	ErrOverlap        = errors.New("schedule windows overlap")
)

// TimeOfDay is a wall clock time expressed in minutes after local midnight.
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM". "24:00" is accepted as the end of the day.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(mm) != 2 || len(hh) == 0 || len(hh) > 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidWindow, s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidWindow, s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 || h < 0 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidWindow, s)
	}
	return TimeOfDay(h*60 + m), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// On returns the instant of t on the calendar day of date, in date's location.
func (t TimeOfDay) On(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, int(t)/60, int(t)%60, 0, 0, date.Location())
}

// Window is a half-open interval of the day, [Start, End).
type Window struct {
	Start TimeOfDay
	End   TimeOfDay
}

// ParseWindow parses "HH:MM-HH:MM".
func ParseWindow(s string) (Window, error) {
	a, b, ok := strings.Cut(s, "-")
	if !ok {
		return Window{}, fmt.Errorf("%w: %q", ErrInvalidWindow, s)
	}
	start, err := ParseTimeOfDay(a)
	if err != nil {
		return Window{}, err
	}
	end, err := ParseTimeOfDay(b)
	if err != nil {
		return Window{}, err
	}
	if end <= start {
		return Window{}, fmt.Errorf("%w: %q ends before it starts", ErrInvalidWindow, s)
	}
	return Window{Start: start, End: end}, nil
}

func (w Window) String() string {
	return w.Start.String() + "-" + w.End.String()
}

// Weekly maps a weekday to its ordered, disjoint windows.
type Weekly map[time.Weekday][]Window

// WeekdayAbbrev is the three letter key used in directory files ("Mon").
func WeekdayAbbrev(d time.Weekday) string {
	return d.String()[:3]
}

// ParseWeekday accepts "Mon" or "Monday", case-insensitively.
func ParseWeekday(s string) (time.Weekday, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if key == full || key == full[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidWeekday, s)
}

// ParseWeekly converts the directory representation into a Weekly routine.
// Windows are sorted; overlapping windows on the same day are rejected.
func ParseWeekly(raw map[string][]string) (Weekly, error) {
	out := make(Weekly, len(raw))
	for key, specs := range raw {
		day, err := ParseWeekday(key)
		if err != nil {
			return nil, err
		}
		for _, spec := range specs {
			w, err := ParseWindow(spec)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			out[day] = append(out[day], w)
		}
	}
	// "Mon" and "Monday" may both be present, so ordering is checked per day
	// only after every key has been merged.
	for day, windows := range out {
		sort.Slice(windows, func(i, j int) bool { return windows[i].Start < windows[j].Start })
		for i := 1; i < len(windows); i++ {
			if windows[i].Start < windows[i-1].End {
				return nil, fmt.Errorf("%s: %w: %s and %s", WeekdayAbbrev(day), ErrOverlap, windows[i-1], windows[i])
			}
		}
	}
	return out, nil
}

// Raw renders the routine back into the directory representation.
func (w Weekly) Raw() map[string][]string {
	out := make(map[string][]string, len(w))
	for day, windows := range w {
		specs := make([]string, 0, len(windows))
		for _, win := range windows {
			specs = append(specs, win.String())
		}
		out[WeekdayAbbrev(day)] = specs
	}
	return out
}

// WindowsOn returns the windows configured for the weekday of date.
func (w Weekly) WindowsOn(date time.Time) []Window {
	return w[date.Weekday()]
}

// Contains reports whether [start, end) lies entirely inside a single window
// of start's weekday. Bounds are compared as instants, so seconds count.
func (w Weekly) Contains(start, end time.Time) bool {
	if !end.After(start) {
		return false
	}
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	for _, win := range w.WindowsOn(start) {
		from, to := win.Start.On(day), win.End.On(day)
		if !start.Before(from) && !end.After(to) {
			return true
		}
	}
	return false
}
