package appointment

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPgAuditInsertEvent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	at := time.Date(2025, 9, 9, 6, 0, 0, 0, time.UTC)
	eventID := "evt0001"
	doctorID := "d-ayesha"
	mock.ExpectExec("INSERT INTO event_logs").
		WithArgs(EventAppointmentBooked, &eventID, &doctorID, []byte(`{"a":1}`), &at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	audit := NewPgAudit(mock)
	err = audit.InsertEvent(context.Background(), EventLog{
		EventType:       EventAppointmentBooked,
		CalendarEventID: eventID,
		DoctorID:        doctorID,
		Payload:         []byte(`{"a":1}`),
		CreatedAt:       at,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgAuditNullsEmptyFields(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO event_logs").
		WithArgs(EventBookingRejected, (*string)(nil), (*string)(nil), pgxmock.AnyArg(), (*time.Time)(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = NewPgAudit(mock).InsertEvent(context.Background(), EventLog{EventType: EventBookingRejected, Payload: []byte(`{}`)})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgAuditWrapsErrors(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	boom := errors.New("connection reset")
	mock.ExpectExec("INSERT INTO event_logs").WillReturnError(boom)

	err = NewPgAudit(mock).InsertEvent(context.Background(), EventLog{EventType: EventAppointmentCancelled})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "insert event log")
}
