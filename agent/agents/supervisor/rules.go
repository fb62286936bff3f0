package supervisor

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/agents/specialist"
	contractx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/contract"
	statex "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/state"
)

const openQuestion = "How can I help you today? I can book, cancel or move an appointment, or answer questions about the clinic."

var courtesyPattern = regexp.MustCompile(`^\s*(hi|hello|hey|thanks|thank you|thx|ok|okay|great|bye|good ?bye)\b[\s!.,]*(you|a lot|so much)?[\s!.]*$`)

var offers = map[contractx.SpecialistKind]string{
	contractx.SpecialistBooking:      "book a new appointment",
	contractx.SpecialistCancellation: "cancel an appointment",
	contractx.SpecialistRescheduling: "move an existing appointment",
	contractx.SpecialistFAQ:          "ask about the clinic",
}

// Rules classifies with keyword intents. Ties go to the specialist that
// handled the conversation last, otherwise to Clarify.
type Rules struct{}

var _ contractx.Supervisor = (*Rules)(nil)

func NewRules() *Rules {
	return &Rules{}
}

func (r *Rules) Classify(_ context.Context, conv *statex.Conversation) (contractx.Classification, error) {
	if conv == nil {
		return contractx.Classification{}, fmt.Errorf("%w: conversation is nil", contractx.ErrValidation)
	}
	text := strings.TrimSpace(conv.LastUserMessage())
	if text == "" {
		return contractx.Clarify(openQuestion, "empty message"), nil
	}

	previous := continuity(conv)
	top, _ := specialist.Strongest(specialist.Intents(text))
	switch {
	case len(top) == 1:
		return contractx.Classification{Route: contractx.Route(top[0]), Reason: "keyword intent"}, nil
	case len(top) > 1 && contains(top, previous):
		return contractx.Classification{Route: contractx.Route(previous), Reason: "tie resolved by continuity"}, nil
	case len(top) > 1:
		return contractx.Clarify(choiceQuestion(top), "ambiguous intent"), nil
	case courtesyPattern.MatchString(strings.ToLower(text)):
		return contractx.Clarify(openQuestion, "no task in message"), nil
	case previous != "":
		return contractx.Classification{Route: contractx.Route(previous), Reason: "continues previous request"}, nil
	}
	return contractx.Clarify(openQuestion, "no intent recognised"), nil
}

// continuity is the specialist the conversation is attached to, if any.
func continuity(conv *statex.Conversation) contractx.SpecialistKind {
	for _, raw := range []string{conv.ActiveSpecialist, conv.LastSpecialist} {
		if kind := contractx.SpecialistKind(raw); kind.Valid() {
			return kind
		}
	}
	return ""
}

func contains(kinds []contractx.SpecialistKind, kind contractx.SpecialistKind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func choiceQuestion(kinds []contractx.SpecialistKind) string {
	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		parts = append(parts, offers[k])
	}
	if len(parts) == 1 {
		return "Would you like to " + parts[0] + "?"
	}
	return "Would you like to " + strings.Join(parts[:len(parts)-1], ", ") + " or " + parts[len(parts)-1] + "?"
}
