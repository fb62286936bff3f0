package specialist

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/contract"
	statex "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/state"
	toolx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/tool"
)

const unchanged = "Your original appointment is unchanged."

// Rescheduling moves an appointment to a new slot with the same practitioner.
type Rescheduling struct {
	deps Deps
}

func NewRescheduling(deps Deps) *Rescheduling {
	return &Rescheduling{deps: deps.withDefaults()}
}

func (r *Rescheduling) Kind() contractx.SpecialistKind {
	return contractx.SpecialistRescheduling
}

func (r *Rescheduling) Act(ctx context.Context, conv *statex.Conversation) (contractx.Decision, error) {
	sc := scopeFor(conv, r.Kind())
	if last, ok := sc.lastTool(); ok {
		return r.afterTool(ctx, conv, sc, last)
	}

	if target, ok := redirect(conv.LastUserMessage(), r.Kind(), sc.handedOffBy); ok {
		return contractx.Handoff(target, "message is about "+string(target)), nil
	}

	d, err := r.deps.gather(ctx, conv)
	if err != nil {
		return contractx.Decision{}, err
	}
	id, practitioner := r.target(conv, d)
	slot, hasSlot := d.Slot()

	switch {
	case id == "" && !d.HasDate():
		return contractx.Answer("Which appointment would you like to move, and to when? Please share the confirmation number and the new day and time."), nil
	case id == "":
		return contractx.Answer("Which appointment would you like to move? Please share the confirmation number you received when booking."), nil
	case !d.HasDate():
		return contractx.Answer(fmt.Sprintf("Which day and time would you like to move appointment #%s to?", id)), nil
	case !hasSlot && practitioner != "":
		return contractx.CallTool(toolx.ToolFindAvailableSlots, map[string]any{
			"practitioner": practitioner,
			"date":         d.Date.Format("2006-01-02"),
		}), nil
	case !hasSlot:
		return contractx.Answer(fmt.Sprintf("What time %s would suit you?", day(d.Date, r.deps.Now().In(r.deps.location())))), nil
	}
	return contractx.CallTool(toolx.ToolRescheduleBooking, withOwner(map[string]any{
		"appointment_id": id,
		"slot":           toolx.FormatSlot(slot),
	}, conv)), nil
}

// target resolves the appointment being moved and, when known, its
// practitioner.
func (r *Rescheduling) target(conv *statex.Conversation, d Details) (string, string) {
	known, ok := knownAppointment(conv)
	switch {
	case d.AppointmentID != "" && ok && known.AppointmentID == d.AppointmentID:
		return known.AppointmentID, known.Practitioner
	case d.AppointmentID != "":
		return d.AppointmentID, d.Practitioner
	case ok:
		return known.AppointmentID, known.Practitioner
	}
	return "", d.Practitioner
}

func (r *Rescheduling) afterTool(ctx context.Context, conv *statex.Conversation, sc scope, last statex.Turn) (contractx.Decision, error) {
	now, loc := r.deps.Now(), r.deps.location()
	switch last.Tool {
	case toolx.ToolFindAvailableSlots:
		return slotsAnswer(sc, last, now, loc)
	case toolx.ToolRescheduleBooking:
	default:
		return contractx.Answer(apology), nil
	}

	id := argString(last.Args, "appointment_id")
	if !last.Failed {
		var res toolx.BookingResult
		if err := decodePayload(last, &res); err != nil {
			return contractx.Decision{}, err
		}
		return contractx.Answer(fmt.Sprintf("Your appointment with %s is now %s, new confirmation #%s",
			res.Practitioner, when(res.Start, now, loc), res.AppointmentID)), nil
	}

	switch contractx.ErrorKind(last.ErrorKind) {
	case contractx.KindSlotConflict:
		d, err := r.deps.gather(ctx, conv)
		if err != nil {
			return contractx.Decision{}, err
		}
		_, practitioner := r.target(conv, d)
		start, perr := toolx.ParseSlot(argString(last.Args, "slot"), loc)
		if practitioner == "" || perr != nil || sc.called(toolx.ToolFindAvailableSlots) {
			return contractx.Answer("Sorry, that time is already taken. " + unchanged + " Which other time would suit you?"), nil
		}
		return contractx.CallTool(toolx.ToolFindAvailableSlots, map[string]any{
			"practitioner": practitioner,
			"date":         start.Format("2006-01-02"),
		}), nil
	case contractx.KindOutsideWorkingHours:
		return contractx.Answer("Sorry, that time is not available (" + reason(last.Content) + "). " + unchanged + " Which other time would suit you?"), nil
	case contractx.KindNotFound:
		return contractx.Answer(fmt.Sprintf("I could not find an appointment with confirmation number #%s. Could you check the number?", id)), nil
	case contractx.KindAlreadyCancelled:
		return contractx.Answer(fmt.Sprintf("Appointment #%s is cancelled, so it cannot be moved. Would you like to book a new one?", id)), nil
	case contractx.KindToolTimeout:
		if sc.count(last.Tool, contractx.KindToolTimeout) < 2 {
			return contractx.CallTool(last.Tool, last.Args), nil
		}
		return contractx.Answer(systemIsSlow + " " + unchanged), nil
	}
	return contractx.Answer(apology), nil
}
