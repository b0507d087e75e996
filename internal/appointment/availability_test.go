package appointment

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking-engine/internal/calendar"
	"github.com/hackgods/clinic-booking-engine/internal/directory"
)

func TestAvailabilityExcludesBusySlot(t *testing.T) {
	f := newFixture(t)
	f.cal.AddBusy("ayesha-cal", at(tuesday, 12, 0), at(tuesday, 12, 30))

	av, err := f.svc.Availability(context.Background(), "d-ayesha", tuesday, 30)
	require.NoError(t, err)

	assert.Equal(t, StatusOK, av.Status)
	assert.Equal(t, []string{"11:00", "11:30", "12:30", "16:00", "16:30", "17:00", "17:30"}, av.Labels())
	assert.False(t, av.Has("12:00"))
	assert.Equal(t, 1, f.cal.CallCount("freebusy"), "one free/busy query per day")
}

func TestAvailabilityIsReadOnlyAndRepeatable(t *testing.T) {
	f := newFixture(t)
	f.cal.AddBusy("ayesha-cal", at(tuesday, 11, 15), at(tuesday, 11, 45))
	ctx := context.Background()

	first, err := f.svc.Availability(ctx, "d-ayesha", tuesday, 30)
	require.NoError(t, err)
	second, err := f.svc.Availability(ctx, "d-ayesha", tuesday, 30)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 0, f.cal.CallCount("insert"))
	assert.NotContains(t, first.Labels(), "11:00")
	assert.NotContains(t, first.Labels(), "11:30")
}

func TestAvailabilitySlotsStayInsideWindows(t *testing.T) {
	f := newFixture(t)
	for _, minutes := range []int{15, 25, 30, 45, 50, 120, 121} {
		av, err := f.svc.Availability(context.Background(), "d-ayesha", tuesday, minutes)
		require.NoError(t, err)
		doc, _ := f.dir.Get("d-ayesha")
		for i, slot := range av.Slots {
			assert.True(t, doc.Weekly.Contains(slot.Start, slot.End), "slot %s of %d minutes", slot.Label(), minutes)
			assert.Equal(t, time.Duration(minutes)*time.Minute, slot.End.Sub(slot.Start))
			if i > 0 {
				assert.False(t, slot.Start.Before(av.Slots[i-1].End), "slots must not overlap")
			}
		}
	}
}

func TestAvailabilityStatuses(t *testing.T) {
	t.Run("no schedule", func(t *testing.T) {
		f := newFixture(t)
		wednesday := tuesday.AddDate(0, 0, 1)
		av, err := f.svc.Availability(context.Background(), "d-ayesha", wednesday, 30)
		require.NoError(t, err)
		assert.Equal(t, StatusNoSchedule, av.Status)
		assert.Empty(t, av.Slots)
		assert.Equal(t, 0, f.cal.CallCount("freebusy"))
	})

	t.Run("slot longer than every window", func(t *testing.T) {
		f := newFixture(t)
		av, err := f.svc.Availability(context.Background(), "d-ayesha", tuesday, 180)
		require.NoError(t, err)
		assert.Equal(t, StatusNoSchedule, av.Status)
		assert.Equal(t, 0, f.cal.CallCount("freebusy"))
	})

	t.Run("fully booked", func(t *testing.T) {
		f := newFixture(t)
		f.cal.AddBusy("ayesha-cal", at(tuesday, 10, 0), at(tuesday, 19, 0))
		av, err := f.svc.Availability(context.Background(), "d-ayesha", tuesday, 30)
		require.NoError(t, err)
		assert.Equal(t, StatusFullyBooked, av.Status)
		assert.Empty(t, av.Slots)
	})

	t.Run("no future slots", func(t *testing.T) {
		f := newFixture(t)
		f.now = at(tuesday, 17, 45)
		av, err := f.svc.Availability(context.Background(), "d-ayesha", tuesday, 30)
		require.NoError(t, err)
		assert.Equal(t, StatusNoFutureSlots, av.Status)
	})
}

func TestAvailabilityTodayHonoursLeadTime(t *testing.T) {
	f := newFixture(t)
	f.withLead(30 * time.Minute)
	f.now = at(tuesday, 12, 10)

	av, err := f.svc.Availability(context.Background(), "d-ayesha", tuesday, 30)
	require.NoError(t, err)
	assert.Equal(t, []string{"16:00", "16:30", "17:00", "17:30"}, av.Labels())

	f.now = at(tuesday, 11, 20)
	av, err = f.svc.Availability(context.Background(), "d-ayesha", tuesday, 30)
	require.NoError(t, err)
	assert.Equal(t, "12:00", av.Labels()[0], "11:30 starts before now plus lead")
}

func TestAvailabilityErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Availability(ctx, "d-nobody", tuesday, 30)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Availability(ctx, "d-ayesha", tuesday, 0)
	assert.ErrorIs(t, err, ErrValidation)

	f.cal.ErrFreeBusy = fmt.Errorf("%w: backend error", calendar.ErrUnavailable)
	_, err = f.svc.Availability(ctx, "d-ayesha", tuesday, 30)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.ErrorIs(t, err, calendar.ErrUnavailable)
	assert.Equal(t, CodeProviderUnavailable, CodeOf(err))
}

func TestAvailabilityRange(t *testing.T) {
	f := newFixture(t)
	f.cal.AddBusy("ayesha-cal", at(tuesday, 11, 0), at(tuesday, 11, 30))
	ctx := context.Background()
	thursday := tuesday.AddDate(0, 0, 2)

	days, err := f.svc.AvailabilityRange(ctx, "d-ayesha", thursday, monday, 30)
	require.NoError(t, err)
	require.Len(t, days, 4, "reversed range is swapped and inclusive")

	assert.Equal(t, monday, days[0].Date)
	assert.Equal(t, StatusNoSchedule, days[0].Status)
	assert.Equal(t, StatusOK, days[1].Status)
	assert.NotContains(t, days[1].Labels(), "11:00")
	assert.Equal(t, StatusNoSchedule, days[2].Status)
	assert.Equal(t, []string{"11:00", "11:30", "12:00", "12:30"}, days[3].Labels())

	_, err = f.svc.AvailabilityRange(ctx, "d-ayesha", monday, monday.AddDate(0, 0, 31), 30)
	assert.ErrorIs(t, err, ErrValidation)

	f.cal.ErrFreeBusy = errors.Join(calendar.ErrUnavailable, errors.New("timeout"))
	_, err = f.svc.AvailabilityRange(ctx, "d-ayesha", monday, thursday, 30)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestWeeklyAvailability(t *testing.T) {
	f := newFixture(t)
	week, err := f.svc.WeeklyAvailability(context.Background(), "ayesha", 3, 60)
	require.NoError(t, err)

	assert.Equal(t, "d-ayesha", week.Doctor.ID)
	require.Len(t, week.Days, 3)
	assert.Equal(t, "Monday", week.Days[0].Weekday)
	assert.Equal(t, StatusNoSchedule, week.Days[0].Status)
	assert.Empty(t, week.Days[0].Routine)
	assert.Equal(t, "Tuesday", week.Days[1].Weekday)
	assert.Equal(t, []string{"11:00-13:00", "16:00-18:00"}, week.Days[1].Routine)
	assert.Equal(t, []string{"11:00", "12:00", "16:00", "17:00"}, week.Days[1].Labels())

	defaulted, err := f.svc.WeeklyAvailability(context.Background(), "Dr. Imran Qureshi", 0, 30)
	require.NoError(t, err)
	assert.Len(t, defaulted.Days, 7)

	_, err = f.svc.WeeklyAvailability(context.Background(), "Dr. Nobody", 7, 30)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLookup(t *testing.T) {
	f := newFixture(t)

	docs, err := f.svc.Lookup("Fever", directory.VisitAny)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "d-ayesha", docs[0].ID, "directory order wins")

	docs, err = f.svc.Lookup("fever", directory.VisitOnline)
	require.NoError(t, err)
	require.Len(t, docs, 1, "imran has no online fee")
	assert.Equal(t, "d-ayesha", docs[0].ID)

	docs, err = f.svc.Lookup("broken leg", directory.VisitAny)
	require.NoError(t, err)
	assert.Empty(t, docs)

	_, err = f.svc.Lookup(" ", directory.VisitAny)
	assert.ErrorIs(t, err, ErrValidation)

	assert.Len(t, f.svc.ListDoctors(), 2)
}

func TestNow(t *testing.T) {
	f := newFixture(t)
	f.now = time.Date(2025, 9, 9, 6, 5, 9, 0, time.UTC)

	c := f.svc.Now()
	assert.Equal(t, "Asia/Karachi", c.Timezone)
	assert.Equal(t, "2025-09-09", c.Date)
	assert.Equal(t, "11:05:09", c.Time)
	assert.Equal(t, "2025-09-09T11:05:09+05:00", c.ISOLocal)
	assert.Equal(t, "2025-09-09T06:05:09Z", c.ISOUTC)
	assert.Equal(t, 1, c.WeekdayIndex)
	assert.Equal(t, "Tue", c.WeekdayShort)
	assert.Equal(t, "Tuesday", c.WeekdayLong)
}
