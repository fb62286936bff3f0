package schedule

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps appointments in process behind one mutex, which makes
// check-and-create trivially atomic.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]Appointment
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]Appointment)}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Appointment, error) {
	if err := ctx.Err(); err != nil {
		return Appointment{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.items[id]
	if !ok {
		return Appointment{}, fmt.Errorf("%w: id=%s", ErrNotFound, id)
	}
	return appt, nil
}

func (s *MemoryStore) IsAvailable(ctx context.Context, practitionerID string, slot Slot) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.conflictLocked(practitionerID, slot.Start, slot.End(), ""), nil
}

func (s *MemoryStore) Book(ctx context.Context, appt Appointment) (Appointment, error) {
	if err := ctx.Err(); err != nil {
		return Appointment{}, err
	}
	appt, err := prepareBooking(appt, appt.CreatedAt)
	if err != nil {
		return Appointment{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conflictLocked(appt.PractitionerID, appt.Start, appt.End, "") {
		return Appointment{}, fmt.Errorf("%w: practitioner=%s start=%s", ErrSlotConflict, appt.PractitionerID, appt.Start.Format(time.RFC3339))
	}
	s.items[appt.ID] = appt
	return appt, nil
}

func (s *MemoryStore) Cancel(ctx context.Context, id string, at time.Time) (Appointment, error) {
	if err := ctx.Err(); err != nil {
		return Appointment{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	appt, ok := s.items[id]
	if !ok {
		return Appointment{}, fmt.Errorf("%w: id=%s", ErrNotFound, id)
	}
	if err := cancellable(appt); err != nil {
		return Appointment{}, err
	}
	appt.Status = StatusCancelled
	appt.UpdatedAt = at.UTC()
	s.items[id] = appt
	return appt, nil
}

func (s *MemoryStore) Reschedule(ctx context.Context, id string, slot Slot, at time.Time) (Appointment, error) {
	if err := ctx.Err(); err != nil {
		return Appointment{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.items[id]
	if !ok {
		return Appointment{}, fmt.Errorf("%w: id=%s", ErrNotFound, id)
	}
	if err := cancellable(old); err != nil {
		return Appointment{}, err
	}
	next, err := replacement(old, slot, at)
	if err != nil {
		return Appointment{}, err
	}
	if s.conflictLocked(old.PractitionerID, next.Start, next.End, old.ID) {
		return Appointment{}, fmt.Errorf("%w: practitioner=%s start=%s", ErrSlotConflict, old.PractitionerID, next.Start.Format(time.RFC3339))
	}

	old.Status = StatusCancelled
	old.UpdatedAt = at.UTC()
	s.items[old.ID] = old
	s.items[next.ID] = next
	return next, nil
}

func (s *MemoryStore) ListByPractitioner(ctx context.Context, practitionerID string, from, to time.Time) ([]Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Appointment, 0, 8)
	for _, appt := range s.items {
		if appt.PractitionerID == practitionerID && appt.Start.Before(to) && from.Before(appt.End) {
			out = append(out, appt)
		}
	}
	sortByStart(out)
	return out, nil
}

func (s *MemoryStore) ListByPatient(ctx context.Context, patientID string) ([]Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Appointment, 0, 4)
	for _, appt := range s.items {
		if appt.PatientID == patientID {
			out = append(out, appt)
		}
	}
	sortByStart(out)
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) conflictLocked(practitionerID string, start, end time.Time, ignoreID string) bool {
	for _, appt := range s.items {
		if appt.ID != ignoreID && appt.PractitionerID == practitionerID && appt.Overlaps(start, end) {
			return true
		}
	}
	return false
}

func sortByStart(appts []Appointment) {
	sort.Slice(appts, func(i, j int) bool {
		if appts[i].Start.Equal(appts[j].Start) {
			return appts[i].ID < appts[j].ID
		}
		return appts[i].Start.Before(appts[j].Start)
	})
}
