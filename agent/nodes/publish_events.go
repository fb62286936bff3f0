package orchestratornode

import (
	"context"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/contract"
	eventsx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/events"
)

// PublishTurn emits a turn.completed event. Delivery failures are logged;
// the reply is already persisted.
func PublishTurn(ctx context.Context, in *GraphState, publisher contractx.EventPublisher) (*GraphState, error) {
	if in == nil || publisher == nil {
		return in, nil
	}

	author := in.Outcome.Author
	iterations := 0
	if in.Conversation != nil {
		iterations = in.Conversation.IterationCount
	}
	now := in.now()
	event := eventsx.TurnEvent{
		ConversationID: in.ConversationID,
		Status:         string(in.Outcome.Status),
		Specialist:     author,
		Iterations:     iterations,
		DurationMS:     now.Sub(in.StartedAt).Milliseconds(),
		OccurredAt:     now,
	}
	ctx = eventsx.WithConversationID(ctx, in.ConversationID)
	if err := publisher.Publish(ctx, eventsx.TopicTurnCompleted, event); err != nil {
		log.Warn().Err(err).Str("conversation_id", in.ConversationID).Msg("publish turn event failed")
	}
	return in, nil
}
