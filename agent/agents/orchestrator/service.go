package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/contract"
	nodex "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/nodes"
	statex "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/state"
)

var (
	ErrInvalidMessage      = nodex.ErrInvalidMessage
	ErrInvalidConversation = nodex.ErrInvalidConversation
)

type TurnRequest struct {
	ConversationID string
	PatientID      string
	Text           string
}

type TurnResponse struct {
	ConversationID string
	Answer         string
	Status         contractx.TurnStatus
}

type Orchestrator struct {
	store     statex.Store
	models    contractx.Registry
	tools     contractx.ToolGateway
	publisher contractx.EventPublisher
	locker    *statex.Locker
	policy    nodex.Policy

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	now func() time.Time
}

type Option func(*Orchestrator)

// WithBudget caps specialist invocations per turn.
func WithBudget(n int) Option {
	return func(o *Orchestrator) { o.policy.Budget = n }
}

func WithPublisher(p contractx.EventPublisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLocker shares a locker between orchestrators over the same store.
func WithLocker(l *statex.Locker) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.locker = l
		}
	}
}

func New(
	store statex.Store,
	models contractx.Registry,
	tools contractx.ToolGateway,
	opts ...Option,
) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("state store is required")
	}
	if models == nil {
		return nil, errors.New("specialist registry is required")
	}
	if models.Supervisor() == nil {
		return nil, errors.New("supervisor is required")
	}
	if tools == nil {
		return nil, errors.New("tool gateway is required")
	}

	o := &Orchestrator{
		store:  store,
		models: models,
		tools:  tools,
		locker: statex.NewLocker(),
		policy: nodex.Policy{Budget: nodex.DefaultBudget},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	graphRunner, err := o.compileHandleTurnGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

// HandleTurn runs one user turn to completion. Turns on the same
// conversation are serialized; an empty conversation id starts a new one.
func (o *Orchestrator) HandleTurn(ctx context.Context, req TurnRequest) (TurnResponse, error) {
	conversationID := strings.TrimSpace(req.ConversationID)
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	unlock, err := o.locker.Lock(ctx, conversationID)
	if err != nil {
		return TurnResponse{}, err
	}
	defer unlock()

	started := o.now()
	out, err := o.graphRunner.Invoke(ctx, nodex.GraphInput{
		ConversationID: conversationID,
		PatientID:      req.PatientID,
		Text:           req.Text,
	})
	if err != nil {
		log.Error().Err(err).Str("conversation_id", conversationID).Msg("turn failed")
		return TurnResponse{}, err
	}

	log.Info().
		Str("conversation_id", conversationID).
		Str("status", string(out.Status)).
		Int("iterations", out.Iterations).
		Dur("elapsed", o.now().Sub(started)).
		Msg("turn completed")
	return TurnResponse{
		ConversationID: out.ConversationID,
		Answer:         out.Answer,
		Status:         out.Status,
	}, nil
}

// Conversation returns the persisted state of a conversation.
func (o *Orchestrator) Conversation(ctx context.Context, conversationID string) (*statex.Conversation, error) {
	return o.store.Load(ctx, conversationID)
}
