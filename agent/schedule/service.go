package schedule

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Service applies catalog rules (practitioner names, working hours, slot
// grid) in front of a Store.
type Service struct {
	store   Store
	catalog *Catalog
	now     func() time.Time
}

type ServiceOption func(*Service)

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(store Store, catalog *Catalog, opts ...ServiceOption) *Service {
	s := &Service{store: store, catalog: catalog, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Service) Catalog() *Catalog {
	return s.catalog
}

func (s *Service) Now() time.Time {
	return s.now()
}

// Availability answers check_availability.
type Availability struct {
	Practitioner Practitioner `json:"practitioner"`
	Slot         Slot         `json:"slot"`
	Available    bool         `json:"available"`
}

// Booking is an appointment together with its resolved practitioner.
type Booking struct {
	Appointment  Appointment  `json:"appointment"`
	Practitioner Practitioner `json:"practitioner"`
}

// DaySlots lists one practitioner's free slots on a day.
type DaySlots struct {
	Practitioner Practitioner `json:"practitioner"`
	Slots        []Slot       `json:"slots"`
}

// SlotQuery selects practitioners by name or by specialization.
type SlotQuery struct {
	Practitioner   string
	Specialization string
	Day            time.Time
	Limit          int
}

func (s *Service) CheckAvailability(ctx context.Context, practitioner string, start time.Time) (Availability, error) {
	p, slot, err := s.resolveSlot(practitioner, start)
	if err != nil {
		return Availability{}, err
	}
	ok, err := s.store.IsAvailable(ctx, p.ID, slot)
	if err != nil {
		return Availability{}, err
	}
	return Availability{Practitioner: p, Slot: slot, Available: ok}, nil
}

func (s *Service) Book(ctx context.Context, patientID, practitioner string, start time.Time) (Booking, error) {
	p, slot, err := s.resolveSlot(practitioner, start)
	if err != nil {
		return Booking{}, err
	}
	appt, err := s.store.Book(ctx, Appointment{
		PatientID:      strings.TrimSpace(patientID),
		PractitionerID: p.ID,
		Start:          slot.Start,
		End:            slot.End(),
		CreatedAt:      s.now(),
	})
	if err != nil {
		return Booking{}, err
	}
	return Booking{Appointment: appt, Practitioner: p}, nil
}

func (s *Service) Cancel(ctx context.Context, id string) (Booking, error) {
	appt, err := s.store.Cancel(ctx, strings.TrimSpace(id), s.now())
	if err != nil {
		return Booking{}, err
	}
	return s.withPractitioner(appt), nil
}

func (s *Service) Reschedule(ctx context.Context, id string, start time.Time) (Booking, error) {
	id = strings.TrimSpace(id)
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return Booking{}, err
	}
	p, ok := s.catalog.ByID(current.PractitionerID)
	if !ok {
		return Booking{}, fmt.Errorf("%w: id=%s", ErrUnknownPractitioner, current.PractitionerID)
	}
	slot, err := s.checkSlot(p, start)
	if err != nil {
		return Booking{}, err
	}
	appt, err := s.store.Reschedule(ctx, id, slot, s.now())
	if err != nil {
		return Booking{}, err
	}
	return Booking{Appointment: appt, Practitioner: p}, nil
}

// Lookup returns an appointment with its practitioner.
func (s *Service) Lookup(ctx context.Context, id string) (Booking, error) {
	appt, err := s.store.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return Booking{}, err
	}
	return s.withPractitioner(appt), nil
}

// Upcoming lists a patient's scheduled appointments that have not started.
func (s *Service) Upcoming(ctx context.Context, patientID string) ([]Booking, error) {
	appts, err := s.store.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]Booking, 0, len(appts))
	for _, a := range appts {
		if a.Status == StatusScheduled && a.Start.After(now) {
			out = append(out, s.withPractitioner(a))
		}
	}
	return out, nil
}

// FreeSlots lists the open slots of the matching practitioners on q.Day.
// Slots that already started are skipped.
func (s *Service) FreeSlots(ctx context.Context, q SlotQuery) ([]DaySlots, error) {
	var practitioners []Practitioner
	switch {
	case strings.TrimSpace(q.Practitioner) != "":
		p, err := s.catalog.Resolve(q.Practitioner)
		if err != nil {
			return nil, err
		}
		practitioners = []Practitioner{p}
	case strings.TrimSpace(q.Specialization) != "":
		practitioners = s.catalog.BySpecialization(q.Specialization)
		if len(practitioners) == 0 {
			return nil, fmt.Errorf("%w: no practitioner with specialization %q", ErrUnknownPractitioner, q.Specialization)
		}
	default:
		practitioners = s.catalog.Practitioners()
	}

	now := s.now()
	out := make([]DaySlots, 0, len(practitioners))
	for _, p := range practitioners {
		candidates := s.catalog.SlotsOn(p, q.Day)
		if len(candidates) == 0 {
			continue
		}
		first, last := candidates[0], candidates[len(candidates)-1]
		booked, err := s.store.ListByPractitioner(ctx, p.ID, first.Start, last.End())
		if err != nil {
			return nil, err
		}

		free := make([]Slot, 0, len(candidates))
		for _, slot := range candidates {
			if !slot.Start.After(now) || taken(booked, slot) {
				continue
			}
			free = append(free, slot)
			if q.Limit > 0 && len(free) >= q.Limit {
				break
			}
		}
		if len(free) > 0 {
			out = append(out, DaySlots{Practitioner: p, Slots: free})
		}
	}
	return out, nil
}

func (s *Service) resolveSlot(practitioner string, start time.Time) (Practitioner, Slot, error) {
	p, err := s.catalog.Resolve(practitioner)
	if err != nil {
		return Practitioner{}, Slot{}, err
	}
	slot, err := s.checkSlot(p, start)
	if err != nil {
		return Practitioner{}, Slot{}, err
	}
	return p, slot, nil
}

func (s *Service) checkSlot(p Practitioner, start time.Time) (Slot, error) {
	slot, err := s.catalog.CheckSlot(p, start)
	if err != nil {
		return Slot{}, err
	}
	if !slot.Start.After(s.now()) {
		return Slot{}, fmt.Errorf("%w: %s is in the past", ErrOutsideWorkingHours, start.In(s.catalog.Location()).Format("02-01-2006 15:04"))
	}
	return slot, nil
}

func (s *Service) withPractitioner(appt Appointment) Booking {
	p, ok := s.catalog.ByID(appt.PractitionerID)
	if !ok {
		p = Practitioner{ID: appt.PractitionerID, Name: appt.PractitionerID}
	}
	return Booking{Appointment: appt, Practitioner: p}
}

func taken(booked []Appointment, slot Slot) bool {
	for _, a := range booked {
		if a.Overlaps(slot.Start, slot.End()) {
			return true
		}
	}
	return false
}
