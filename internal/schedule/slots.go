package schedule

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoSchedule means the weekday has no configured windows at all, which
	// is different from a day whose slots are all taken.
	ErrNoSchedule      = errors.New("no schedule for this day")
	ErrInvalidSlotSize = errors.New("slot size must be positive")
)

// Slot is a candidate interval, not yet checked against the calendar.
type Slot struct {
	Start time.Time
	End   time.Time
}

// Label is the "HH:MM" start time shown to patients.
func (s Slot) Label() string {
	return s.Start.Format("15:04")
}

// Overlaps uses half-open semantics, so back-to-back intervals do not overlap.
func (s Slot) Overlaps(start, end time.Time) bool {
	return s.Start.Before(end) && s.End.After(start)
}

// Generate tiles every window of date's weekday from its start in steps of
// size, keeping only candidates that end inside the window. date must carry
// the clinic location; only its calendar day is used.
func Generate(weekly Weekly, date time.Time, size time.Duration) ([]Slot, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSlotSize, size)
	}
	windows := weekly.WindowsOn(date)
	if len(windows) == 0 {
		return nil, ErrNoSchedule
	}

	var slots []Slot
	for _, win := range windows {
		end := win.End.On(date)
		for cursor := win.Start.On(date); !cursor.Add(size).After(end); cursor = cursor.Add(size) {
			slots = append(slots, Slot{Start: cursor, End: cursor.Add(size)})
		}
	}
	return slots, nil
}

// Envelope returns the earliest window start and latest window end for the
// weekday of date. ok is false when the day has no windows.
func Envelope(weekly Weekly, date time.Time) (start, end time.Time, ok bool) {
	windows := weekly.WindowsOn(date)
	if len(windows) == 0 {
		return time.Time{}, time.Time{}, false
	}
	first, last := windows[0].Start, windows[0].End
	for _, win := range windows[1:] {
		if win.Start < first {
			first = win.Start
		}
		if win.End > last {
			last = win.End
		}
	}
	return first.On(date), last.On(date), true
}
