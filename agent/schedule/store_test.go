package schedule

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var (
	monday9 = time.Date(2030, 3, 4, 9, 0, 0, 0, time.UTC)
	created = time.Date(2030, 3, 1, 12, 0, 0, 0, time.UTC)
)

func storeFactories(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	factories := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"sqlite": func(t *testing.T) Store {
			store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "appointments.db"))
			require.NoError(t, err)
			t.Cleanup(func() { store.Close() })
			return store
		},
	}
	if dsn := os.Getenv("CLINIC_TEST_POSTGRES_DSN"); dsn != "" {
		factories["postgres"] = func(t *testing.T) Store {
			ctx := context.Background()
			store, err := OpenPostgresStore(ctx, dsn)
			require.NoError(t, err)
			require.NoError(t, store.truncate(ctx))
			t.Cleanup(func() { store.Close() })
			return store
		}
	}
	return factories
}

func appointmentAt(patient, practitioner string, start time.Time) Appointment {
	return Appointment{
		PatientID:      patient,
		PractitionerID: practitioner,
		Start:          start,
		End:            start.Add(30 * time.Minute),
		CreatedAt:      created,
	}
}

func forEachStore(t *testing.T, fn func(t *testing.T, store Store)) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			fn(t, factory(t))
		})
	}
}

func TestStoreBookAndGet(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		appt, err := store.Book(ctx, appointmentAt("1234567", "grace-lee", monday9))
		require.NoError(t, err)
		require.NotEmpty(t, appt.ID)
		require.Equal(t, StatusScheduled, appt.Status)

		got, err := store.Get(ctx, appt.ID)
		require.NoError(t, err)
		require.Equal(t, appt.ID, got.ID)
		require.Equal(t, "1234567", got.PatientID)
		require.True(t, got.Start.Equal(monday9))
		require.True(t, got.End.Equal(monday9.Add(30*time.Minute)))

		_, err = store.Get(ctx, "missing")
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStoreDoubleBookingUnderConcurrency(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		const attempts = 16
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
			conflicts int
			others    []error
		)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := store.Book(ctx, appointmentAt("patient", "grace-lee", monday9))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					successes++
				case errors.Is(err, ErrSlotConflict):
					conflicts++
				default:
					others = append(others, err)
				}
			}(i)
		}
		wg.Wait()

		require.Empty(t, others)
		require.Equal(t, 1, successes)
		require.Equal(t, attempts-1, conflicts)
	})
}

func TestStoreOverlapAndIsolation(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		_, err := store.Book(ctx, appointmentAt("p1", "grace-lee", monday9))
		require.NoError(t, err)

		_, err = store.Book(ctx, appointmentAt("p2", "grace-lee", monday9.Add(15*time.Minute)))
		require.ErrorIs(t, err, ErrSlotConflict)

		_, err = store.Book(ctx, appointmentAt("p2", "jane-smith", monday9))
		require.NoError(t, err, "another practitioner may take the same slot")

		_, err = store.Book(ctx, appointmentAt("p2", "grace-lee", monday9.Add(30*time.Minute)))
		require.NoError(t, err, "adjacent slot is free")

		free, err := store.IsAvailable(ctx, "grace-lee", Slot{Start: monday9, Duration: 30 * time.Minute})
		require.NoError(t, err)
		require.False(t, free)

		free, err = store.IsAvailable(ctx, "grace-lee", Slot{Start: monday9.Add(time.Hour), Duration: 30 * time.Minute})
		require.NoError(t, err)
		require.True(t, free)
	})
}

func TestStoreCancelIsIdempotent(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		appt, err := store.Book(ctx, appointmentAt("p1", "grace-lee", monday9))
		require.NoError(t, err)

		cancelAt := created.Add(time.Hour)
		first, err := store.Cancel(ctx, appt.ID, cancelAt)
		require.NoError(t, err)
		require.Equal(t, StatusCancelled, first.Status)

		_, err = store.Cancel(ctx, appt.ID, cancelAt.Add(time.Hour))
		require.ErrorIs(t, err, ErrAlreadyCancelled)

		after, err := store.Get(ctx, appt.ID)
		require.NoError(t, err)
		require.Equal(t, StatusCancelled, after.Status)
		require.True(t, after.UpdatedAt.Equal(cancelAt), "second cancel must not touch the record")

		_, err = store.Cancel(ctx, "missing", cancelAt)
		require.ErrorIs(t, err, ErrNotFound)

		_, err = store.Book(ctx, appointmentAt("p2", "grace-lee", monday9))
		require.NoError(t, err, "a cancelled slot can be booked again")
	})
}

func TestCancellableByStatus(t *testing.T) {
	appt := appointmentAt("p1", "grace-lee", monday9)
	appt.ID = "a1"

	appt.Status = StatusScheduled
	require.NoError(t, cancellable(appt))

	appt.Status = StatusCancelled
	require.ErrorIs(t, cancellable(appt), ErrAlreadyCancelled)

	appt.Status = StatusCompleted
	require.ErrorIs(t, cancellable(appt), ErrNotFound)
}

func TestStoreRescheduleMovesAppointment(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		appt, err := store.Book(ctx, appointmentAt("p1", "grace-lee", monday9))
		require.NoError(t, err)

		newStart := monday9.Add(2 * time.Hour)
		moved, err := store.Reschedule(ctx, appt.ID, Slot{Start: newStart, Duration: 30 * time.Minute}, created)
		require.NoError(t, err)
		require.NotEqual(t, appt.ID, moved.ID)
		require.Equal(t, appt.ID, moved.RescheduledFrom)
		require.Equal(t, StatusScheduled, moved.Status)
		require.True(t, moved.Start.Equal(newStart))

		old, err := store.Get(ctx, appt.ID)
		require.NoError(t, err)
		require.Equal(t, StatusCancelled, old.Status)

		_, err = store.Reschedule(ctx, appt.ID, Slot{Start: newStart.Add(time.Hour), Duration: 30 * time.Minute}, created)
		require.ErrorIs(t, err, ErrAlreadyCancelled)
	})
}

func TestStoreRescheduleIntoOwnOverlap(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		appt, err := store.Book(ctx, appointmentAt("p1", "grace-lee", monday9))
		require.NoError(t, err)

		moved, err := store.Reschedule(ctx, appt.ID, Slot{Start: monday9.Add(15 * time.Minute), Duration: 30 * time.Minute}, created)
		require.NoError(t, err, "the appointment being moved does not block itself")
		require.Equal(t, appt.ID, moved.RescheduledFrom)
	})
}

func TestStoreRescheduleConflictLeavesOriginal(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		appt, err := store.Book(ctx, appointmentAt("p1", "grace-lee", monday9))
		require.NoError(t, err)
		blocker, err := store.Book(ctx, appointmentAt("p2", "grace-lee", monday9.Add(time.Hour)))
		require.NoError(t, err)

		_, err = store.Reschedule(ctx, appt.ID, Slot{Start: blocker.Start, Duration: 30 * time.Minute}, created)
		require.ErrorIs(t, err, ErrSlotConflict)

		original, err := store.Get(ctx, appt.ID)
		require.NoError(t, err)
		require.Equal(t, StatusScheduled, original.Status)

		mine, err := store.ListByPatient(ctx, "p1")
		require.NoError(t, err)
		require.Len(t, mine, 1)

		_, err = store.Reschedule(ctx, "missing", Slot{Start: monday9, Duration: 30 * time.Minute}, created)
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStoreListByPractitioner(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		for _, offset := range []time.Duration{2 * time.Hour, 0, time.Hour} {
			_, err := store.Book(ctx, appointmentAt("p1", "grace-lee", monday9.Add(offset)))
			require.NoError(t, err)
		}
		_, err := store.Book(ctx, appointmentAt("p1", "jane-smith", monday9))
		require.NoError(t, err)

		got, err := store.ListByPractitioner(ctx, "grace-lee", monday9, monday9.Add(90*time.Minute))
		require.NoError(t, err)
		require.Len(t, got, 2)
		require.True(t, got[0].Start.Equal(monday9))
		require.True(t, got[1].Start.Equal(monday9.Add(time.Hour)))
	})
}

func TestStoreRejectsIncompleteAppointment(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		_, err := store.Book(context.Background(), Appointment{PractitionerID: "grace-lee", Start: monday9, End: monday9.Add(time.Minute)})
		require.ErrorIs(t, err, ErrInvalidAppointment)
	})
}
