package calendar

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 9, 9, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time { return base.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

func TestMergeIntervals(t *testing.T) {
	in := []Interval{
		{Start: at(12, 0), End: at(12, 30)},
		{Start: at(9, 0), End: at(10, 0)},
		{Start: at(9, 30), End: at(11, 0)},
		{Start: at(11, 0), End: at(11, 15)},
	}
	got := MergeIntervals(in)
	assert.Equal(t, []Interval{
		{Start: at(9, 0), End: at(11, 15)},
		{Start: at(12, 0), End: at(12, 30)},
	}, got)
	assert.Equal(t, at(12, 0), in[0].Start, "input is not mutated")
	assert.Nil(t, MergeIntervals(nil))
}

func TestIntervalOverlapIsHalfOpen(t *testing.T) {
	busy := Interval{Start: at(12, 0), End: at(12, 30)}
	assert.True(t, busy.Overlaps(at(12, 0), at(12, 30)))
	assert.True(t, busy.Overlaps(at(11, 45), at(12, 15)))
	assert.False(t, busy.Overlaps(at(11, 30), at(12, 0)))
	assert.False(t, busy.Overlaps(at(12, 30), at(13, 0)))
}

func TestOwnedBy(t *testing.T) {
	tests := []struct {
		name  string
		ev    Event
		email string
		want  bool
	}{
		{
			name:  "metadata match is case insensitive",
			ev:    Event{Metadata: map[string]string{MetaPatientEmail: "Sara@Example.com"}},
			email: " sara@example.com ",
			want:  true,
		},
		{
			name: "metadata wins over description",
			ev: Event{
				Metadata:    map[string]string{MetaPatientEmail: "owner@example.com"},
				Description: "Patient: Someone <intruder@example.com>",
			},
			email: "intruder@example.com",
			want:  false,
		},
		{
			name:  "attendee match for legacy events",
			ev:    Event{Attendees: []string{"doc@clinic.example", "ali@example.com"}},
			email: "ALI@example.com",
			want:  true,
		},
		{
			name:  "description fallback for legacy events",
			ev:    Event{Description: "Patient: Ali <ali@example.com>\nPhone: 0300"},
			email: "ali@example.com",
			want:  true,
		},
		{
			name:  "empty email never owns",
			ev:    Event{Description: "anything"},
			email: "",
			want:  false,
		},
		{
			name:  "no match",
			ev:    Event{Attendees: []string{"doc@clinic.example"}, Description: "Patient: Ali"},
			email: "zara@example.com",
			want:  false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ev.OwnedBy(tt.email))
		})
	}
}

func TestFakeFreeBusyClipsAndIncludesEvents(t *testing.T) {
	f := NewFake()
	ctx := context.Background()
	f.AddBusy("cal", at(8, 0), at(11, 30))
	_, err := f.InsertEvent(ctx, "cal", Event{Start: at(12, 0), End: at(12, 30)}, InsertOptions{})
	require.NoError(t, err)

	busy, err := f.FreeBusy(ctx, "cal", at(11, 0), at(13, 0))
	require.NoError(t, err)
	assert.Equal(t, []Interval{
		{Start: at(11, 0), End: at(11, 30)},
		{Start: at(12, 0), End: at(12, 30)},
	}, busy)

	busy, err = f.FreeBusy(ctx, "other", at(11, 0), at(13, 0))
	require.NoError(t, err)
	assert.Empty(t, busy)
}

func TestFakeLifecycle(t *testing.T) {
	f := NewFake()
	ctx := context.Background()

	created, err := f.InsertEvent(ctx, "cal", Event{Summary: "x", Start: at(9, 0), End: at(9, 30)}, InsertOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.NotEmpty(t, created.HTMLLink)

	moved, err := f.UpdateEvent(ctx, "cal", created.ID, at(10, 0), at(10, 30), true)
	require.NoError(t, err)
	assert.Equal(t, created.ID, moved.ID)
	assert.Equal(t, at(10, 0), moved.Start)

	require.NoError(t, f.DeleteEvent(ctx, "cal", created.ID, true))
	assert.True(t, f.LastDeleteNotified)

	got, err := f.GetEvent(ctx, "cal", created.ID)
	require.NoError(t, err)
	assert.True(t, got.Cancelled)

	assert.ErrorIs(t, f.DeleteEvent(ctx, "cal", created.ID, false), ErrEventNotFound)
	_, err = f.UpdateEvent(ctx, "cal", created.ID, at(11, 0), at(11, 30), false)
	assert.ErrorIs(t, err, ErrEventNotFound)

	events, err := f.ListEvents(ctx, "cal", at(0, 0), at(23, 0))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestFakeConferenceRejectedOnce(t *testing.T) {
	f := NewFake()
	f.RejectConferenceOnce = true
	ctx := context.Background()
	opts := InsertOptions{RequestConference: true, ConferenceRequestID: "req-1"}

	_, err := f.InsertEvent(ctx, "cal", Event{Start: at(9, 0), End: at(9, 30)}, opts)
	assert.ErrorIs(t, err, ErrConferenceUnsupported)

	ev, err := f.InsertEvent(ctx, "cal", Event{Start: at(9, 0), End: at(9, 30)}, opts)
	require.NoError(t, err)
	assert.Equal(t, "https://meet.example/req-1", ev.ConferenceLink)
}

type recordingObserver struct {
	ops  []string
	errs []error
}

func (r *recordingObserver) ObserveCalendarCall(op string, err error, _ time.Duration) {
	r.ops = append(r.ops, op)
	r.errs = append(r.errs, err)
}

func TestInstrumentReportsOutcome(t *testing.T) {
	f := NewFake()
	obs := &recordingObserver{}
	gw := Instrument(f, obs)
	ctx := context.Background()

	_, err := gw.FreeBusy(ctx, "cal", at(9, 0), at(10, 0))
	require.NoError(t, err)

	f.ErrGet = errors.New("boom")
	_, err = gw.GetEvent(ctx, "cal", "nope")
	require.Error(t, err)

	assert.Equal(t, []string{"freebusy", "get"}, obs.ops)
	assert.NoError(t, obs.errs[0])
	assert.EqualError(t, obs.errs[1], "boom")

	assert.Same(t, f, Instrument(f, nil))
}
