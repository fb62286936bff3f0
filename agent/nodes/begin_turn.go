package orchestratornode

import (
	"fmt"

	contractx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/contract"
)

// BeginTurn appends the user message and resets the per-turn counters.
func BeginTurn(in *GraphState) (*GraphState, error) {
	if in == nil || in.Conversation == nil {
		return nil, fmt.Errorf("%w: graph conversation is nil", contractx.ErrValidation)
	}
	if err := in.Conversation.BeginTurn(in.Text, in.now()); err != nil {
		return nil, fmt.Errorf("begin turn: %w", err)
	}
	return in, nil
}
