package specialist

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/contract"
	statex "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/state"
	toolx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/tool"
)

// Cancellation cancels one appointment identified by its confirmation number.
type Cancellation struct {
	deps Deps
}

func NewCancellation(deps Deps) *Cancellation {
	return &Cancellation{deps: deps.withDefaults()}
}

func (c *Cancellation) Kind() contractx.SpecialistKind {
	return contractx.SpecialistCancellation
}

func (c *Cancellation) Act(ctx context.Context, conv *statex.Conversation) (contractx.Decision, error) {
	sc := scopeFor(conv, c.Kind())
	if last, ok := sc.lastTool(); ok {
		return c.afterTool(sc, last)
	}

	if target, ok := redirect(conv.LastUserMessage(), c.Kind(), sc.handedOffBy); ok {
		return contractx.Handoff(target, "message is about "+string(target)), nil
	}

	d, err := c.deps.gather(ctx, conv)
	if err != nil {
		return contractx.Decision{}, err
	}
	id := d.AppointmentID
	if id == "" {
		if known, ok := knownAppointment(conv); ok {
			id = known.AppointmentID
		}
	}
	if id == "" {
		return contractx.Answer("Which appointment would you like to cancel? Please share the confirmation number you received when booking."), nil
	}
	return contractx.CallTool(toolx.ToolCancelBooking, withOwner(map[string]any{"appointment_id": id}, conv)), nil
}

func (c *Cancellation) afterTool(sc scope, last statex.Turn) (contractx.Decision, error) {
	if last.Tool != toolx.ToolCancelBooking {
		return contractx.Answer(apology), nil
	}
	id := argString(last.Args, "appointment_id")
	if !last.Failed {
		var r toolx.BookingResult
		if err := decodePayload(last, &r); err != nil {
			return contractx.Decision{}, err
		}
		return contractx.Answer(fmt.Sprintf("Your appointment with %s %s (#%s) is cancelled.",
			r.Practitioner, when(r.Start, c.deps.Now(), c.deps.location()), r.AppointmentID)), nil
	}

	switch contractx.ErrorKind(last.ErrorKind) {
	case contractx.KindAlreadyCancelled:
		return contractx.Answer(fmt.Sprintf("Appointment #%s was already cancelled, so there is nothing more to do.", id)), nil
	case contractx.KindNotFound:
		return contractx.Answer(fmt.Sprintf("I could not find an appointment with confirmation number #%s. Could you check the number?", id)), nil
	case contractx.KindToolTimeout:
		if sc.count(last.Tool, contractx.KindToolTimeout) < 2 {
			return contractx.CallTool(last.Tool, last.Args), nil
		}
		return contractx.Answer(systemIsSlow), nil
	}
	return contractx.Answer(apology), nil
}
