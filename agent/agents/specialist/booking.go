package specialist

import (
	"context"
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/contract"
	statex "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/state"
	toolx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/tool"
)

// Booking collects patient, practitioner and slot, then books.
type Booking struct {
	deps Deps
}

func NewBooking(deps Deps) *Booking {
	return &Booking{deps: deps.withDefaults()}
}

func (b *Booking) Kind() contractx.SpecialistKind {
	return contractx.SpecialistBooking
}

func (b *Booking) Act(ctx context.Context, conv *statex.Conversation) (contractx.Decision, error) {
	sc := scopeFor(conv, b.Kind())
	if last, ok := sc.lastTool(); ok {
		return b.afterTool(ctx, conv, sc, last)
	}

	if target, ok := redirect(conv.LastUserMessage(), b.Kind(), sc.handedOffBy); ok {
		return contractx.Handoff(target, "message is about "+string(target)), nil
	}

	d, err := b.deps.gather(ctx, conv)
	if err != nil {
		return contractx.Decision{}, err
	}

	if d.Practitioner == "" {
		if d.Specialization != "" && d.HasDate() {
			return b.findSlots("", d.Specialization, d), nil
		}
		if d.Specialization != "" {
			return contractx.Answer(fmt.Sprintf("Which day would you like to come in to see our %s?", humanize(d.Specialization))), nil
		}
		return contractx.Answer("Which dentist would you like to see? We have " + roster(b.deps.Catalog) + "."), nil
	}
	if !d.HasDate() {
		return contractx.Answer(fmt.Sprintf("Which day would you like to see %s?", d.Practitioner)), nil
	}
	slot, ok := d.Slot()
	if !ok {
		return b.findSlots(d.Practitioner, "", d), nil
	}
	if d.PatientID == "" {
		return contractx.CallTool(toolx.ToolCheckAvailability, map[string]any{
			"practitioner": d.Practitioner,
			"slot":         toolx.FormatSlot(slot),
		}), nil
	}
	return contractx.CallTool(toolx.ToolCreateBooking, map[string]any{
		"patient_id":   d.PatientID,
		"practitioner": d.Practitioner,
		"slot":         toolx.FormatSlot(slot),
	}), nil
}

func (b *Booking) afterTool(ctx context.Context, conv *statex.Conversation, sc scope, last statex.Turn) (contractx.Decision, error) {
	now, loc := b.deps.Now(), b.deps.location()
	kind := contractx.ErrorKind(last.ErrorKind)

	switch last.Tool {
	case toolx.ToolCreateBooking:
		if !last.Failed {
			var r toolx.BookingResult
			if err := decodePayload(last, &r); err != nil {
				return contractx.Decision{}, err
			}
			return contractx.Answer(fmt.Sprintf("Booked with %s %s, confirmation #%s", r.Practitioner, when(r.Start, now, loc), r.AppointmentID)), nil
		}
		return b.recover(sc, last, kind)

	case toolx.ToolCheckAvailability:
		if last.Failed {
			return b.recover(sc, last, kind)
		}
		var r toolx.CheckAvailabilityResult
		if err := decodePayload(last, &r); err != nil {
			return contractx.Decision{}, err
		}
		if !r.Available {
			return b.alternatives(sc, last)
		}
		d, err := b.deps.gather(ctx, conv)
		if err != nil {
			return contractx.Decision{}, err
		}
		if d.PatientID == "" {
			return contractx.Answer(fmt.Sprintf("%s is free %s. What is your patient ID (7 or 8 digits) so I can book it?", r.Practitioner, when(r.Start, now, loc))), nil
		}
		return contractx.CallTool(toolx.ToolCreateBooking, map[string]any{
			"patient_id":   d.PatientID,
			"practitioner": r.Practitioner,
			"slot":         toolx.FormatSlot(r.Start),
		}), nil

	case toolx.ToolFindAvailableSlots:
		return slotsAnswer(sc, last, now, loc)
	}
	return contractx.Answer(apology), nil
}

// recover turns a failed check or create into the next step.
func (b *Booking) recover(sc scope, last statex.Turn, kind contractx.ErrorKind) (contractx.Decision, error) {
	switch kind {
	case contractx.KindSlotConflict:
		return b.alternatives(sc, last)
	case contractx.KindOutsideWorkingHours:
		if sc.called(toolx.ToolFindAvailableSlots) {
			return contractx.Answer("Sorry, that time is not available (" + reason(last.Content) + "). Which other time would suit you?"), nil
		}
		return b.alternatives(sc, last)
	case contractx.KindUnknownPractitioner:
		return contractx.Answer(fmt.Sprintf("I could not find a dentist called %s. We have %s. Who would you like to see?",
			argString(last.Args, "practitioner"), roster(b.deps.Catalog))), nil
	case contractx.KindToolTimeout:
		if sc.count(last.Tool, contractx.KindToolTimeout) < 2 {
			return contractx.CallTool(last.Tool, last.Args), nil
		}
		return contractx.Answer(systemIsSlow), nil
	}
	return contractx.Answer(apology), nil
}

// alternatives looks up other free slots on the day of the failed request,
// once per turn.
func (b *Booking) alternatives(sc scope, last statex.Turn) (contractx.Decision, error) {
	if sc.called(toolx.ToolFindAvailableSlots) {
		return contractx.Answer("Sorry, that time is already taken. Which other time would suit you?"), nil
	}
	start, err := toolx.ParseSlot(argString(last.Args, "slot"), b.deps.location())
	if err != nil {
		return contractx.Answer("Sorry, that time is not available. Which other time would suit you?"), nil
	}
	return contractx.CallTool(toolx.ToolFindAvailableSlots, map[string]any{
		"practitioner": argString(last.Args, "practitioner"),
		"date":         start.Format("2006-01-02"),
	}), nil
}

func (b *Booking) findSlots(practitioner, specialization string, d Details) contractx.Decision {
	args := map[string]any{"date": d.Date.Format("2006-01-02")}
	if practitioner != "" {
		args["practitioner"] = practitioner
	}
	if specialization != "" {
		args["specialization"] = specialization
	}
	return contractx.CallTool(toolx.ToolFindAvailableSlots, args)
}

// slotsAnswer renders a find_available_slots outcome, explaining why it was
// looked up when an earlier call in the turn failed.
func slotsAnswer(sc scope, last statex.Turn, now time.Time, loc *time.Location) (contractx.Decision, error) {
	if last.Failed {
		if contractx.ErrorKind(last.ErrorKind) == contractx.KindToolTimeout && sc.count(last.Tool, contractx.KindToolTimeout) < 2 {
			return contractx.CallTool(last.Tool, last.Args), nil
		}
		if contractx.ErrorKind(last.ErrorKind) == contractx.KindUnknownPractitioner {
			return contractx.Answer(fmt.Sprintf("I could not find a dentist called %s. Could you check the name?", argString(last.Args, "practitioner"))), nil
		}
		return contractx.Answer("Sorry, I could not look up free times right now (" + reason(last.Content) + ")."), nil
	}
	var r toolx.SlotsResult
	if err := decodePayload(last, &r); err != nil {
		return contractx.Decision{}, err
	}

	var prefix string
	if prev, ok := sc.previousTool(); ok {
		switch {
		case contractx.ErrorKind(prev.ErrorKind) == contractx.KindSlotConflict:
			prefix = "Sorry, that time is already taken. "
		case contractx.ErrorKind(prev.ErrorKind) == contractx.KindOutsideWorkingHours:
			prefix = "Sorry, that time is not available (" + reason(prev.Content) + "). "
		case prev.Tool == toolx.ToolCheckAvailability && !prev.Failed:
			prefix = "Sorry, that time is already taken. "
		}
	}
	return contractx.Answer(prefix + describeSlots(r, now, loc)), nil
}

func humanize(specialization string) string {
	return strings.ReplaceAll(specialization, "_", " ")
}
