package calendar

import (
	"context"
	"time"
)

// Observer receives one callback per gateway call.
type Observer interface {
	ObserveCalendarCall(op string, err error, elapsed time.Duration)
}

type instrumented struct {
	next Gateway
	obs  Observer
}

// Instrument wraps a gateway so that every call is reported to obs.
func Instrument(next Gateway, obs Observer) Gateway {
	if obs == nil {
		return next
	}
	return &instrumented{next: next, obs: obs}
}

func (i *instrumented) observe(op string, began time.Time, err error) {
	i.obs.ObserveCalendarCall(op, err, time.Since(began))
}

func (i *instrumented) FreeBusy(ctx context.Context, calendarID string, from, to time.Time) (out []Interval, err error) {
	defer func(began time.Time) { i.observe("freebusy", began, err) }(time.Now())
	return i.next.FreeBusy(ctx, calendarID, from, to)
}

func (i *instrumented) InsertEvent(ctx context.Context, calendarID string, ev Event, opts InsertOptions) (out Event, err error) {
	defer func(began time.Time) { i.observe("insert", began, err) }(time.Now())
	return i.next.InsertEvent(ctx, calendarID, ev, opts)
}

func (i *instrumented) GetEvent(ctx context.Context, calendarID, eventID string) (out Event, err error) {
	defer func(began time.Time) { i.observe("get", began, err) }(time.Now())
	return i.next.GetEvent(ctx, calendarID, eventID)
}

func (i *instrumented) UpdateEvent(ctx context.Context, calendarID, eventID string, start, end time.Time, sendUpdates bool) (out Event, err error) {
	defer func(began time.Time) { i.observe("update", began, err) }(time.Now())
	return i.next.UpdateEvent(ctx, calendarID, eventID, start, end, sendUpdates)
}

func (i *instrumented) DeleteEvent(ctx context.Context, calendarID, eventID string, sendUpdates bool) (err error) {
	defer func(began time.Time) { i.observe("delete", began, err) }(time.Now())
	return i.next.DeleteEvent(ctx, calendarID, eventID, sendUpdates)
}

func (i *instrumented) ListEvents(ctx context.Context, calendarID string, from, to time.Time) (out []Event, err error) {
	defer func(began time.Time) { i.observe("list", began, err) }(time.Now())
	return i.next.ListEvents(ctx, calendarID, from, to)
}
