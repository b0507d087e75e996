package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/hackgods/clinic-booking-engine/internal/calendar"
)

func TestBookingMetricsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)

	m.ObserveBooking("booked")
	m.ObserveBooking("booked")
	m.ObserveBooking("conflict")
	m.ObserveAvailability("fully_booked")
	m.ObserveLifecycle("cancel", "ok")
	m.ObserveNotification("booked", "failed")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.bookingTotal.WithLabelValues("booked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.bookingTotal.WithLabelValues("conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.availabilityTotal.WithLabelValues("fully_booked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lifecycleTotal.WithLabelValues("cancel", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifyTotal.WithLabelValues("booked", "failed")))
}

func TestCalendarCallResultLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)

	m.ObserveCalendarCall("insert", nil, 10*time.Millisecond)
	m.ObserveCalendarCall("get", fmt.Errorf("%w: evt1", calendar.ErrEventNotFound), time.Millisecond)
	m.ObserveCalendarCall("freebusy", errors.New("boom"), time.Second)

	assert.Equal(t, 3, testutil.CollectAndCount(m.calendarLatency))
	assert.Equal(t, "slot_taken", calendarResult(calendar.ErrSlotTaken))
	assert.Equal(t, "conference_rejected", calendarResult(calendar.ErrConferenceUnsupported))
}

func TestHTTPStatusClass(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)

	m.ObserveHTTP("/appointments", "POST", 201, time.Millisecond)
	m.ObserveHTTP("/appointments", "POST", 409, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("/appointments", "POST", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("/appointments", "POST", "4xx")))
}

func TestBookingMetricsNilSafe(t *testing.T) {
	var m *BookingMetrics
	m.ObserveAvailability("ok")
	m.ObserveBooking("booked")
	m.ObserveLifecycle("list", "ok")
	m.ObserveNotification("booked", "sent")
	m.ObserveCalendarCall("insert", nil, time.Millisecond)
	m.ObserveHTTP("/", "GET", 200, time.Millisecond)
}
