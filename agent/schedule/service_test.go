package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// clinic clock: Monday 2030-03-04 10:07 UTC
var serviceNow = time.Date(2030, 3, 4, 10, 7, 0, 0, time.UTC)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(NewMemoryStore(), testCatalog(t), WithClock(func() time.Time { return serviceNow }))
}

func TestServiceBookResolvesPractitioner(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)
	ctx := context.Background()

	start := time.Date(2030, 3, 5, 15, 0, 0, 0, time.UTC)
	booking, err := svc.Book(ctx, "1234567", "Dr. Lee", start)
	require.NoError(t, err)
	require.Equal(t, "grace-lee", booking.Appointment.PractitionerID)
	require.Equal(t, "Dr. Lee", booking.Practitioner.DisplayName())
	require.True(t, booking.Appointment.End.Equal(start.Add(30*time.Minute)))

	avail, err := svc.CheckAvailability(ctx, "grace lee", start)
	require.NoError(t, err)
	require.False(t, avail.Available)

	_, err = svc.Book(ctx, "7654321", "Dr. Lee", start)
	require.ErrorIs(t, err, ErrSlotConflict)

	_, err = svc.Book(ctx, "7654321", "Dr. Nobody", start)
	require.ErrorIs(t, err, ErrUnknownPractitioner)

	_, err = svc.Book(ctx, "7654321", "Dr. Lee", time.Date(2030, 3, 5, 19, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, ErrOutsideWorkingHours)

	_, err = svc.Book(ctx, "7654321", "Dr. Lee", time.Date(2030, 3, 4, 9, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, ErrOutsideWorkingHours, "slots in the past are rejected")
}

func TestServiceRescheduleAndCancel(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)
	ctx := context.Background()

	booking, err := svc.Book(ctx, "1234567", "Dr. Lee", time.Date(2030, 3, 5, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	moved, err := svc.Reschedule(ctx, booking.Appointment.ID, time.Date(2030, 3, 6, 11, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, booking.Appointment.ID, moved.Appointment.RescheduledFrom)

	_, err = svc.Reschedule(ctx, moved.Appointment.ID, time.Date(2030, 3, 6, 11, 40, 0, 0, time.UTC))
	require.ErrorIs(t, err, ErrOutsideWorkingHours)

	upcoming, err := svc.Upcoming(ctx, "1234567")
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	require.Equal(t, moved.Appointment.ID, upcoming[0].Appointment.ID)

	cancelled, err := svc.Cancel(ctx, moved.Appointment.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Appointment.Status)

	_, err = svc.Cancel(ctx, moved.Appointment.ID)
	require.ErrorIs(t, err, ErrAlreadyCancelled)
}

func TestServiceFreeSlots(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Book(ctx, "1234567", "Dr. Lee", time.Date(2030, 3, 4, 10, 30, 0, 0, time.UTC))
	require.NoError(t, err)

	days, err := svc.FreeSlots(ctx, SlotQuery{Practitioner: "Dr. Lee", Day: serviceNow, Limit: 3})
	require.NoError(t, err)
	require.Len(t, days, 1)
	slots := days[0].Slots
	require.Len(t, slots, 3)
	require.True(t, slots[0].Start.Equal(time.Date(2030, 3, 4, 11, 0, 0, 0, time.UTC)), "past and booked slots are skipped")

	bySpec, err := svc.FreeSlots(ctx, SlotQuery{Specialization: "orthodontist", Day: serviceNow.Add(24 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, bySpec, 2)

	_, err = svc.FreeSlots(ctx, SlotQuery{Specialization: "astrologer", Day: serviceNow})
	require.ErrorIs(t, err, ErrUnknownPractitioner)
}
