package booking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirmIsIdempotent(t *testing.T) {
	f := newFixture(t)
	obs := &recordingObserver{}
	f.svc.WithObserver(obs)
	res := f.book(t, "555-201-0001", tuesday, hm(9, 0))

	appt, err := f.svc.Confirm(context.Background(), testBusiness, res.AppointmentID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, appt.Status)

	appt, err = f.svc.Confirm(context.Background(), testBusiness, res.AppointmentID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, appt.Status)

	assert.Equal(t, []string{EventBooked, EventConfirmed}, f.eventTypes())
	assert.Equal(t, []string{"confirmed"}, obs.transitions)
}

func TestCancelFreesSlotAndBlocksFurtherTransitions(t *testing.T) {
	f := newFixture(t)
	res := f.book(t, "555-201-0001", tuesday, hm(9, 0))

	appt, err := f.svc.Cancel(context.Background(), testBusiness, res.AppointmentID, "customer request")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, appt.Status)
	assert.Equal(t, "customer request", appt.CancelReason)

	got, err := f.svc.GetAvailability(context.Background(), AvailabilityQuery{BusinessID: testBusiness, Date: tuesday})
	require.NoError(t, err)
	assert.Contains(t, got.SlotStrings(), "09:00")

	_, err = f.svc.Complete(context.Background(), testBusiness, res.AppointmentID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, KindTransition, KindOf(err))

	_, err = f.svc.Confirm(context.Background(), testBusiness, res.AppointmentID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	f.book(t, "555-201-0002", tuesday, hm(9, 0))
	assert.Equal(t, []string{EventBooked, EventCancelled, EventBooked}, f.eventTypes())
}

func TestTransitionUnknownAppointment(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Cancel(context.Background(), testBusiness, "missing", "")
	assert.ErrorIs(t, err, ErrNotFound)

	res := f.book(t, "555-201-0001", tuesday, hm(9, 0))
	_, err = f.svc.Confirm(context.Background(), "biz-other", res.AppointmentID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRescheduleKeepsStatusAndLinksOriginal(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.BookAppointment(context.Background(), BookRequest{
		BusinessID:    testBusiness,
		CustomerName:  "Dana Reyes",
		CustomerPhone: "555-201-0001",
		ServiceType:   "Gel Manicure",
		Date:          tuesday,
		StartTime:     hm(9, 0),
		Source:        SourceWeb,
	})
	require.NoError(t, err)
	_, err = f.svc.Confirm(context.Background(), testBusiness, res.AppointmentID)
	require.NoError(t, err)

	moved, err := f.svc.Reschedule(context.Background(), RescheduleRequest{
		BusinessID:    testBusiness,
		AppointmentID: res.AppointmentID,
		Date:          tuesday,
		StartTime:     hm(10, 0),
	})
	require.NoError(t, err)
	assert.NotEqual(t, res.AppointmentID, moved.AppointmentID)
	assert.Equal(t, res.AppointmentID, moved.Appointment.RescheduledFrom)
	assert.Equal(t, StatusConfirmed, moved.Appointment.Status)
	assert.Equal(t, 90, moved.Appointment.DurationMinutes)
	assert.Equal(t, hm(10, 0), moved.Appointment.StartTime)

	old, err := f.svc.GetAppointment(context.Background(), testBusiness, res.AppointmentID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, old.Status)
	assert.Equal(t, "rescheduled", old.CancelReason)

	assert.Equal(t, []string{EventBooked, EventConfirmed, EventRescheduled}, f.eventTypes())
}

func TestRescheduleIntoTakenSlotLeavesOriginal(t *testing.T) {
	f := newFixture(t)
	mine := f.book(t, "555-201-0001", tuesday, hm(9, 0))
	f.book(t, "555-201-0002", wednesday, hm(14, 0))

	_, err := f.svc.Reschedule(context.Background(), RescheduleRequest{
		BusinessID:    testBusiness,
		AppointmentID: mine.AppointmentID,
		Date:          wednesday,
		StartTime:     hm(14, 0),
	})
	assert.ErrorIs(t, err, ErrSlotTaken)

	appt, err := f.svc.GetAppointment(context.Background(), testBusiness, mine.AppointmentID)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, appt.Status)

	_, err = f.svc.Reschedule(context.Background(), RescheduleRequest{
		BusinessID:    testBusiness,
		AppointmentID: mine.AppointmentID,
		Date:          sunday,
		StartTime:     hm(10, 0),
	})
	assert.ErrorIs(t, err, ErrClosedDay)
}

func TestCancelNextForPhone(t *testing.T) {
	f := newFixture(t)
	later := f.book(t, "555-201-0001", wednesday, hm(9, 0))
	sooner := f.book(t, "555-201-0001", tuesday, hm(15, 0))

	appt, err := f.svc.CancelNextForPhone(context.Background(), testBusiness, "(555) 201-0001", "texted cancel")
	require.NoError(t, err)
	assert.Equal(t, sooner.AppointmentID, appt.ID)
	assert.Equal(t, StatusCancelled, appt.Status)

	remaining, err := f.svc.GetAppointment(context.Background(), testBusiness, later.AppointmentID)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, remaining.Status)

	_, err = f.svc.CancelNextForPhone(context.Background(), testBusiness, "555-201-0009", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCompleteDueUsesBusinessTimezone(t *testing.T) {
	f := newFixture(t)
	done := f.book(t, "555-201-0001", tuesday, hm(9, 0))
	pending := f.book(t, "555-201-0002", tuesday, hm(11, 0))
	cancelled := f.book(t, "555-201-0003", tuesday, hm(13, 0))
	_, err := f.svc.Cancel(context.Background(), testBusiness, cancelled.AppointmentID, "")
	require.NoError(t, err)

	// 10:30 in New York.
	f.now = time.Date(2025, 9, 9, 14, 30, 0, 0, time.UTC)

	n, err := f.svc.CompleteDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	appt, err := f.svc.GetAppointment(context.Background(), testBusiness, done.AppointmentID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, appt.Status)

	appt, err = f.svc.GetAppointment(context.Background(), testBusiness, pending.AppointmentID)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, appt.Status)

	n, err = f.svc.CompleteDue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusScheduled.CanTransition(StatusConfirmed))
	assert.True(t, StatusScheduled.CanTransition(StatusCancelled))
	assert.True(t, StatusConfirmed.CanTransition(StatusCompleted))
	assert.False(t, StatusConfirmed.CanTransition(StatusScheduled))
	assert.False(t, StatusCompleted.CanTransition(StatusCancelled))
	assert.False(t, StatusCancelled.CanTransition(StatusConfirmed))
	assert.True(t, StatusCompleted.Terminal())
	assert.False(t, StatusCompleted.Active())
}
