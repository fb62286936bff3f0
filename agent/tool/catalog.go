package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/contract"
	eventsx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/events"
	"github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/faq"
	"github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/schedule"
)

const (
	ToolCheckAvailability  = "check_availability"
	ToolCreateBooking      = "create_booking"
	ToolCancelBooking      = "cancel_booking"
	ToolRescheduleBooking  = "reschedule_booking"
	ToolAnswerFAQ          = "answer_faq"
	ToolFindAvailableSlots = "find_available_slots"
)

const defaultSlotLimit = 8

type CheckAvailabilityArgs struct {
	Practitioner string `json:"practitioner" jsonschema:"description=Practitioner name or id such as Dr. Lee,minLength=1"`
	Slot         string `json:"slot" jsonschema:"description=Slot start as RFC3339 or DD-MM-YYYY HH:MM clinic time,minLength=1"`
}

type CreateBookingArgs struct {
	PatientID    string `json:"patient_id" jsonschema:"description=Patient identifier of 7 or 8 digits,pattern=^[0-9]{7}[0-9]?$"`
	Practitioner string `json:"practitioner" jsonschema:"description=Practitioner name or id such as Dr. Lee,minLength=1"`
	Slot         string `json:"slot" jsonschema:"description=Slot start as RFC3339 or DD-MM-YYYY HH:MM clinic time,minLength=1"`
}

// PatientID, when set, must own the appointment.
type CancelBookingArgs struct {
	AppointmentID string `json:"appointment_id" jsonschema:"description=Confirmation number of the appointment,minLength=1"`
	PatientID     string `json:"patient_id,omitempty" jsonschema:"description=Patient the appointment must belong to"`
}

type RescheduleBookingArgs struct {
	AppointmentID string `json:"appointment_id" jsonschema:"description=Confirmation number of the appointment to move,minLength=1"`
	Slot          string `json:"slot" jsonschema:"description=New slot start as RFC3339 or DD-MM-YYYY HH:MM clinic time,minLength=1"`
	PatientID     string `json:"patient_id,omitempty" jsonschema:"description=Patient the appointment must belong to"`
}

type AnswerFAQArgs struct {
	Query string `json:"query" jsonschema:"description=The patient's question,minLength=1"`
}

type FindAvailableSlotsArgs struct {
	Practitioner   string `json:"practitioner,omitempty" jsonschema:"description=Practitioner name or id"`
	Specialization string `json:"specialization,omitempty" jsonschema:"description=Specialization such as orthodontist"`
	Date           string `json:"date" jsonschema:"description=Day as DD-MM-YYYY or YYYY-MM-DD,minLength=1"`
	Limit          int    `json:"limit,omitempty" jsonschema:"description=Maximum slots per practitioner,minimum=1,maximum=48"`
}

type CheckAvailabilityResult struct {
	PractitionerID string    `json:"practitioner_id"`
	Practitioner   string    `json:"practitioner"`
	Start          time.Time `json:"start"`
	Available      bool      `json:"available"`
}

// BookingResult describes the appointment a mutating tool produced.
type BookingResult struct {
	AppointmentID   string    `json:"appointment_id"`
	PatientID       string    `json:"patient_id"`
	PractitionerID  string    `json:"practitioner_id"`
	Practitioner    string    `json:"practitioner"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	Status          string    `json:"status"`
	RescheduledFrom string    `json:"rescheduled_from,omitempty"`
}

type PractitionerSlots struct {
	PractitionerID string      `json:"practitioner_id"`
	Practitioner   string      `json:"practitioner"`
	Specialization string      `json:"specialization"`
	Slots          []time.Time `json:"slots"`
}

type SlotsResult struct {
	Date          string              `json:"date"`
	Practitioners []PractitionerSlots `json:"practitioners"`
}

type FAQResult struct {
	Answer  string `json:"answer"`
	Source  string `json:"source,omitempty"`
	Matched bool   `json:"matched"`
}

// clinic binds the tool handlers to the scheduling service and FAQ.
type clinic struct {
	svc       *schedule.Service
	kb        *faq.KnowledgeBase
	publisher contractx.EventPublisher
}

func (c *clinic) tools() ([]*Tool, error) {
	loc := c.svc.Catalog().Location()
	checkSlot := func(raw string) error {
		_, err := ParseSlot(raw, loc)
		return err
	}

	builders := []func() (*Tool, error){
		func() (*Tool, error) {
			return NewTool(ToolCheckAvailability,
				"Check whether a practitioner is free at one slot. Read-only.",
				func(a *CheckAvailabilityArgs) error { return checkSlot(a.Slot) },
				c.checkAvailability)
		},
		func() (*Tool, error) {
			return NewTool(ToolCreateBooking,
				"Book a slot for a patient with a practitioner.",
				func(a *CreateBookingArgs) error { return checkSlot(a.Slot) },
				c.createBooking)
		},
		func() (*Tool, error) {
			return NewTool(ToolCancelBooking,
				"Cancel a scheduled appointment by its confirmation number.",
				nil,
				c.cancelBooking)
		},
		func() (*Tool, error) {
			return NewTool(ToolRescheduleBooking,
				"Move a scheduled appointment to a new slot with the same practitioner.",
				func(a *RescheduleBookingArgs) error { return checkSlot(a.Slot) },
				c.rescheduleBooking)
		},
		func() (*Tool, error) {
			return NewTool(ToolAnswerFAQ,
				"Answer a general question about the clinic. Read-only.",
				nil,
				c.answerFAQ)
		},
		func() (*Tool, error) {
			return NewTool(ToolFindAvailableSlots,
				"List free slots on one day for a practitioner or a specialization. Read-only.",
				func(a *FindAvailableSlotsArgs) error {
					_, err := ParseDate(a.Date, loc)
					return err
				},
				c.findAvailableSlots)
		},
	}

	out := make([]*Tool, 0, len(builders))
	for _, build := range builders {
		t, err := build()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (c *clinic) checkAvailability(ctx context.Context, args CheckAvailabilityArgs) (CheckAvailabilityResult, error) {
	start, err := ParseSlot(args.Slot, c.svc.Catalog().Location())
	if err != nil {
		return CheckAvailabilityResult{}, err
	}
	av, err := c.svc.CheckAvailability(ctx, args.Practitioner, start)
	if err != nil {
		return CheckAvailabilityResult{}, err
	}
	return CheckAvailabilityResult{
		PractitionerID: av.Practitioner.ID,
		Practitioner:   av.Practitioner.DisplayName(),
		Start:          av.Slot.Start,
		Available:      av.Available,
	}, nil
}

func (c *clinic) createBooking(ctx context.Context, args CreateBookingArgs) (BookingResult, error) {
	start, err := ParseSlot(args.Slot, c.svc.Catalog().Location())
	if err != nil {
		return BookingResult{}, err
	}
	b, err := c.svc.Book(ctx, args.PatientID, args.Practitioner, start)
	if err != nil {
		return BookingResult{}, err
	}
	c.publish(ctx, eventsx.TopicAppointmentBooked, b)
	return bookingResult(b), nil
}

func (c *clinic) cancelBooking(ctx context.Context, args CancelBookingArgs) (BookingResult, error) {
	id := strings.TrimPrefix(strings.TrimSpace(args.AppointmentID), "#")
	if err := c.owned(ctx, id, args.PatientID); err != nil {
		return BookingResult{}, err
	}
	b, err := c.svc.Cancel(ctx, id)
	if err != nil {
		return BookingResult{}, err
	}
	c.publish(ctx, eventsx.TopicAppointmentCancelled, b)
	return bookingResult(b), nil
}

func (c *clinic) rescheduleBooking(ctx context.Context, args RescheduleBookingArgs) (BookingResult, error) {
	start, err := ParseSlot(args.Slot, c.svc.Catalog().Location())
	if err != nil {
		return BookingResult{}, err
	}
	id := strings.TrimPrefix(strings.TrimSpace(args.AppointmentID), "#")
	if err := c.owned(ctx, id, args.PatientID); err != nil {
		return BookingResult{}, err
	}
	b, err := c.svc.Reschedule(ctx, id, start)
	if err != nil {
		return BookingResult{}, err
	}
	c.publish(ctx, eventsx.TopicAppointmentRescheduled, b)
	return bookingResult(b), nil
}

// owned reports another patient's appointment as not found.
func (c *clinic) owned(ctx context.Context, id, patientID string) error {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil
	}
	b, err := c.svc.Lookup(ctx, id)
	if err != nil {
		return err
	}
	if b.Appointment.PatientID != patientID {
		return fmt.Errorf("%w: id=%s", schedule.ErrNotFound, id)
	}
	return nil
}

func (c *clinic) answerFAQ(ctx context.Context, args AnswerFAQArgs) (FAQResult, error) {
	if c.kb == nil {
		return FAQResult{Answer: faq.NoAnswer}, nil
	}
	ans, err := c.kb.Answer(ctx, args.Query)
	if err != nil {
		return FAQResult{}, err
	}
	return FAQResult{Answer: ans.Text, Source: ans.Source, Matched: ans.Matched}, nil
}

func (c *clinic) findAvailableSlots(ctx context.Context, args FindAvailableSlotsArgs) (SlotsResult, error) {
	loc := c.svc.Catalog().Location()
	day, err := ParseDate(args.Date, loc)
	if err != nil {
		return SlotsResult{}, err
	}
	limit := args.Limit
	if limit <= 0 {
		limit = defaultSlotLimit
	}
	found, err := c.svc.FreeSlots(ctx, schedule.SlotQuery{
		Practitioner:   args.Practitioner,
		Specialization: args.Specialization,
		Day:            day,
		Limit:          limit,
	})
	if err != nil {
		return SlotsResult{}, err
	}

	out := SlotsResult{Date: day.Format("02-01-2006"), Practitioners: make([]PractitionerSlots, 0, len(found))}
	for _, ds := range found {
		starts := make([]time.Time, 0, len(ds.Slots))
		for _, s := range ds.Slots {
			starts = append(starts, s.Start)
		}
		out.Practitioners = append(out.Practitioners, PractitionerSlots{
			PractitionerID: ds.Practitioner.ID,
			Practitioner:   ds.Practitioner.DisplayName(),
			Specialization: ds.Practitioner.Specialization,
			Slots:          starts,
		})
	}
	return out, nil
}

func (c *clinic) publish(ctx context.Context, topic string, b schedule.Booking) {
	if c.publisher == nil {
		return
	}
	event := eventsx.AppointmentEvent{
		Type:            topic,
		AppointmentID:   b.Appointment.ID,
		PatientID:       b.Appointment.PatientID,
		PractitionerID:  b.Practitioner.ID,
		Practitioner:    b.Practitioner.DisplayName(),
		Start:           b.Appointment.Start,
		RescheduledFrom: b.Appointment.RescheduledFrom,
		OccurredAt:      b.Appointment.UpdatedAt,
	}
	if err := c.publisher.Publish(ctx, topic, event); err != nil {
		log.Warn().Err(err).Str("topic", topic).Str("appointment_id", b.Appointment.ID).Msg("appointment event not published")
	}
}

func bookingResult(b schedule.Booking) BookingResult {
	return BookingResult{
		AppointmentID:   b.Appointment.ID,
		PatientID:       b.Appointment.PatientID,
		PractitionerID:  b.Practitioner.ID,
		Practitioner:    b.Practitioner.DisplayName(),
		Start:           b.Appointment.Start,
		End:             b.Appointment.End,
		Status:          string(b.Appointment.Status),
		RescheduledFrom: b.Appointment.RescheduledFrom,
	}
}

// kindFor maps a handler error onto the error taxonomy.
func kindFor(err error) contractx.ErrorKind {
	switch {
	case err == nil:
		return contractx.KindNone
	case errors.Is(err, schedule.ErrSlotConflict):
		return contractx.KindSlotConflict
	case errors.Is(err, schedule.ErrNotFound):
		return contractx.KindNotFound
	case errors.Is(err, schedule.ErrAlreadyCancelled):
		return contractx.KindAlreadyCancelled
	case errors.Is(err, schedule.ErrOutsideWorkingHours):
		return contractx.KindOutsideWorkingHours
	case errors.Is(err, schedule.ErrUnknownPractitioner), errors.Is(err, schedule.ErrAmbiguousPractitioner):
		return contractx.KindUnknownPractitioner
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, contractx.ErrToolTimeout):
		return contractx.KindToolTimeout
	default:
		var te *contractx.ToolError
		if errors.As(err, &te) {
			return te.Kind
		}
		return contractx.KindToolFailure
	}
}

func describe(tool string, err error) string {
	return fmt.Sprintf("%s failed: %v", tool, err)
}
