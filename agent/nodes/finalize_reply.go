package orchestratornode

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/contract"
)

func FinalizeReply(in *GraphState) (GraphOutput, error) {
	if in == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	answer := strings.TrimSpace(in.Outcome.Answer)
	if answer == "" {
		return GraphOutput{}, fmt.Errorf("%w: turn ended without an answer", contractx.ErrValidation)
	}
	out := GraphOutput{
		ConversationID: in.ConversationID,
		Answer:         answer,
		Status:         in.Outcome.Status,
	}
	if in.Conversation != nil {
		out.Iterations = in.Conversation.IterationCount
	}
	return out, nil
}
