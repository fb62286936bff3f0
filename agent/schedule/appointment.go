package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSlotConflict          = errors.New("slot already booked")
	ErrNotFound              = errors.New("appointment not found")
	ErrAlreadyCancelled      = errors.New("appointment already cancelled")
	ErrOutsideWorkingHours   = errors.New("slot outside working hours")
	ErrUnknownPractitioner   = errors.New("unknown practitioner")
	ErrAmbiguousPractitioner = errors.New("practitioner name is ambiguous")
	ErrInvalidAppointment    = errors.New("invalid appointment")
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCancelled Status = "cancelled"
	// StatusCompleted is written by the clinic's records system after a
	// visit. Completed appointments can no longer be cancelled or moved.
	StatusCompleted Status = "completed"
)

// Slot is a practitioner's bookable interval.
type Slot struct {
	Start    time.Time     `json:"start"`
	Duration time.Duration `json:"duration"`
}

func (s Slot) End() time.Time {
	return s.Start.Add(s.Duration)
}

type Appointment struct {
	ID              string    `json:"id"`
	PatientID       string    `json:"patient_id"`
	PractitionerID  string    `json:"practitioner_id"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	Status          Status    `json:"status"`
	RescheduledFrom string    `json:"rescheduled_from,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (a Appointment) Slot() Slot {
	return Slot{Start: a.Start, Duration: a.End.Sub(a.Start)}
}

// Overlaps reports whether a holds the practitioner during [start, end).
func (a Appointment) Overlaps(start, end time.Time) bool {
	return a.Status == StatusScheduled && a.Start.Before(end) && start.Before(a.End)
}

// Store persists appointment records. Book and Reschedule are atomic with
// respect to every other writer of the same practitioner.
type Store interface {
	Get(ctx context.Context, id string) (Appointment, error)
	IsAvailable(ctx context.Context, practitionerID string, slot Slot) (bool, error)
	// Book inserts appt unless a scheduled record of the same practitioner
	// overlaps it, in which case ErrSlotConflict is returned.
	Book(ctx context.Context, appt Appointment) (Appointment, error)
	Cancel(ctx context.Context, id string, at time.Time) (Appointment, error)
	// Reschedule cancels id and books its replacement at slot in one step.
	// Nothing changes when either step fails.
	Reschedule(ctx context.Context, id string, slot Slot, at time.Time) (Appointment, error)
	ListByPractitioner(ctx context.Context, practitionerID string, from, to time.Time) ([]Appointment, error)
	ListByPatient(ctx context.Context, patientID string) ([]Appointment, error)
	Close() error
}

// prepareBooking fills ids and timestamps and checks required fields.
func prepareBooking(appt Appointment, at time.Time) (Appointment, error) {
	if strings.TrimSpace(appt.PatientID) == "" {
		return Appointment{}, fmt.Errorf("%w: patient id is required", ErrInvalidAppointment)
	}
	if strings.TrimSpace(appt.PractitionerID) == "" {
		return Appointment{}, fmt.Errorf("%w: practitioner id is required", ErrInvalidAppointment)
	}
	if appt.Start.IsZero() || !appt.End.After(appt.Start) {
		return Appointment{}, fmt.Errorf("%w: slot must have a start and positive duration", ErrInvalidAppointment)
	}
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	if at.IsZero() {
		at = time.Now()
	}
	appt.Start = appt.Start.UTC()
	appt.End = appt.End.UTC()
	appt.Status = StatusScheduled
	appt.CreatedAt = at.UTC()
	appt.UpdatedAt = at.UTC()
	return appt, nil
}

// cancellable applies the cancel rules to a loaded record.
func cancellable(appt Appointment) error {
	switch appt.Status {
	case StatusScheduled:
		return nil
	case StatusCancelled:
		return fmt.Errorf("%w: id=%s", ErrAlreadyCancelled, appt.ID)
	default:
		return fmt.Errorf("%w: id=%s is %s", ErrNotFound, appt.ID, appt.Status)
	}
}

func replacement(old Appointment, slot Slot, at time.Time) (Appointment, error) {
	return prepareBooking(Appointment{
		PatientID:       old.PatientID,
		PractitionerID:  old.PractitionerID,
		Start:           slot.Start,
		End:             slot.End(),
		RescheduledFrom: old.ID,
	}, at)
}
