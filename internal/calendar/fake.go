package calendar

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Fake is an in-memory Gateway. Busy blocks can be injected directly and
// every operation can be made to fail, which lets the engine be exercised
// without a provider.
type Fake struct {
	mu     sync.Mutex
	seq    int
	busy   map[string][]Interval
	events map[string]map[string]*Event

	// Err{Op} make the next calls of that operation fail until reset.
	ErrFreeBusy error
	ErrInsert   error
	ErrGet      error
	ErrUpdate   error
	ErrDelete   error
	ErrList     error

	// RejectConferenceOnce makes the next insert that asks for a conference
	// fail with ErrConferenceUnsupported.
	RejectConferenceOnce bool
	// RejectOverlaps emulates a provider that refuses overlapping events.
	RejectOverlaps bool
	// BeforeInsert runs before an insert is applied, outside the lock. Tests
	// use it to slip a competing write between preflight and commit.
	BeforeInsert func(calendarID string, ev Event)

	Calls map[string]int
	// LastInsert records the options of the most recent successful insert.
	LastInsert InsertOptions
	// LastDeleteNotified records the sendUpdates flag of the last delete.
	LastDeleteNotified bool
}

func NewFake() *Fake {
	return &Fake{
		busy:   make(map[string][]Interval),
		events: make(map[string]map[string]*Event),
		Calls:  make(map[string]int),
	}
}

// AddBusy injects an opaque busy block, e.g. a personal event of the doctor.
func (f *Fake) AddBusy(calendarID string, start, end time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy[calendarID] = append(f.busy[calendarID], Interval{Start: start, End: end})
}

// Put stores an event as-is, assigning an id when missing.
func (f *Fake) Put(calendarID string, ev Event) Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.putLocked(calendarID, ev)
}

// CallCount returns how often an operation was invoked.
func (f *Fake) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls[op]
}

func (f *Fake) putLocked(calendarID string, ev Event) Event {
	if ev.ID == "" {
		f.seq++
		ev.ID = fmt.Sprintf("evt%04d", f.seq)
	}
	if ev.HTMLLink == "" {
		ev.HTMLLink = "https://calendar.example/event?eid=" + ev.ID
	}
	if f.events[calendarID] == nil {
		f.events[calendarID] = make(map[string]*Event)
	}
	stored := ev
	stored.Attendees = append([]string(nil), ev.Attendees...)
	if ev.Metadata != nil {
		stored.Metadata = make(map[string]string, len(ev.Metadata))
		for k, v := range ev.Metadata {
			stored.Metadata[k] = v
		}
	}
	f.events[calendarID][ev.ID] = &stored
	return stored
}

func (f *Fake) busyLocked(calendarID string) []Interval {
	out := append([]Interval(nil), f.busy[calendarID]...)
	for _, ev := range f.events[calendarID] {
		if !ev.Cancelled {
			out = append(out, Interval{Start: ev.Start, End: ev.End})
		}
	}
	return MergeIntervals(out)
}

func (f *Fake) FreeBusy(ctx context.Context, calendarID string, from, to time.Time) ([]Interval, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: freebusy: %w", ErrUnavailable, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls["freebusy"]++
	if f.ErrFreeBusy != nil {
		return nil, f.ErrFreeBusy
	}

	var out []Interval
	for _, iv := range f.busyLocked(calendarID) {
		if !iv.Overlaps(from, to) {
			continue
		}
		if iv.Start.Before(from) {
			iv.Start = from
		}
		if iv.End.After(to) {
			iv.End = to
		}
		out = append(out, iv)
	}
	return out, nil
}

func (f *Fake) InsertEvent(ctx context.Context, calendarID string, ev Event, opts InsertOptions) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, fmt.Errorf("%w: insert: %w", ErrUnavailable, err)
	}
	if hook := f.BeforeInsert; hook != nil {
		hook(calendarID, ev)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls["insert"]++
	if f.ErrInsert != nil {
		return Event{}, f.ErrInsert
	}
	if opts.RequestConference && f.RejectConferenceOnce {
		f.RejectConferenceOnce = false
		return Event{}, fmt.Errorf("%w: invalid conference type value", ErrConferenceUnsupported)
	}
	if f.RejectOverlaps {
		for _, iv := range f.busyLocked(calendarID) {
			if iv.Overlaps(ev.Start, ev.End) {
				return Event{}, ErrSlotTaken
			}
		}
	}
	if opts.RequestConference {
		ev.ConferenceLink = "https://meet.example/" + opts.ConferenceRequestID
	}
	f.LastInsert = opts
	return f.putLocked(calendarID, ev), nil
}

func (f *Fake) GetEvent(ctx context.Context, calendarID, eventID string) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, fmt.Errorf("%w: get: %w", ErrUnavailable, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls["get"]++
	if f.ErrGet != nil {
		return Event{}, f.ErrGet
	}
	ev, ok := f.events[calendarID][eventID]
	if !ok {
		return Event{}, fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
	}
	return *ev, nil
}

func (f *Fake) UpdateEvent(ctx context.Context, calendarID, eventID string, start, end time.Time, _ bool) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, fmt.Errorf("%w: update: %w", ErrUnavailable, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls["update"]++
	if f.ErrUpdate != nil {
		return Event{}, f.ErrUpdate
	}
	ev, ok := f.events[calendarID][eventID]
	if !ok || ev.Cancelled {
		return Event{}, fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
	}
	ev.Start = start
	ev.End = end
	return *ev, nil
}

func (f *Fake) DeleteEvent(ctx context.Context, calendarID, eventID string, sendUpdates bool) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: delete: %w", ErrUnavailable, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls["delete"]++
	if f.ErrDelete != nil {
		return f.ErrDelete
	}
	ev, ok := f.events[calendarID][eventID]
	if !ok || ev.Cancelled {
		return fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
	}
	ev.Cancelled = true
	f.LastDeleteNotified = sendUpdates
	return nil
}

func (f *Fake) ListEvents(ctx context.Context, calendarID string, from, to time.Time) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: list: %w", ErrUnavailable, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls["list"]++
	if f.ErrList != nil {
		return nil, f.ErrList
	}
	var out []Event
	for _, ev := range f.events[calendarID] {
		if ev.Cancelled || ev.Start.Before(from) || !ev.Start.Before(to) {
			continue
		}
		out = append(out, *ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}
