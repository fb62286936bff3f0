package orchestratornode

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/contract"
)

// ClassifyTurn asks the supervisor for a route. Clarify ends the turn with
// the supervisor's question; no specialist or tool runs.
func ClassifyTurn(ctx context.Context, in *GraphState, supervisor contractx.Supervisor) (*GraphState, error) {
	if in == nil || in.Conversation == nil {
		return nil, fmt.Errorf("%w: graph conversation is nil", contractx.ErrValidation)
	}

	c, err := supervisor.Classify(ctx, in.Conversation.Clone())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Error().Err(err).Str("conversation_id", in.ConversationID).Msg("classification failed")
		in.finish(Outcome{Answer: ApologyAnswer, Status: contractx.TurnFailed, ErrorKind: contractx.KindOf(err)})
		return in, nil
	}

	if c.Route != contractx.RouteClarify {
		if _, ok := c.Route.Specialist(); !ok {
			log.Error().Str("conversation_id", in.ConversationID).Str("route", string(c.Route)).Msg("supervisor returned unknown route")
			in.finish(Outcome{Answer: ApologyAnswer, Status: contractx.TurnFailed, ErrorKind: contractx.KindSpecialistFailure})
			return in, nil
		}
	}
	in.Classification = c

	if c.Route == contractx.RouteClarify {
		question := strings.TrimSpace(c.Question)
		if question == "" {
			question = ClarifyAnswer
		}
		in.finish(Outcome{Answer: question, Status: contractx.TurnClarify, ErrorKind: contractx.KindClassificationAmbiguous})
	}

	log.Debug().
		Str("conversation_id", in.ConversationID).
		Str("route", string(c.Route)).
		Str("reason", c.Reason).
		Msg("turn classified")
	return in, nil
}
