package orchestratornode

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/contract"
)

// DispatchSpecialist runs the SpecialistActive loop until a specialist
// answers or the turn is forced to complete. Every step is strictly
// sequential: the specialist sees the result of the previous tool call.
func DispatchSpecialist(
	ctx context.Context,
	in *GraphState,
	models contractx.Registry,
	tools contractx.ToolGateway,
	policy Policy,
) (*GraphState, error) {
	if in == nil || in.Conversation == nil {
		return nil, fmt.Errorf("%w: graph conversation is nil", contractx.ErrValidation)
	}
	if in.Outcome.Done() {
		return in, nil
	}

	kind, ok := in.Classification.Route.Specialist()
	if !ok {
		return nil, fmt.Errorf("%w: route=%q", contractx.ErrUnknownSpecialist, in.Classification.Route)
	}
	conv := in.Conversation
	if err := conv.Activate(string(kind), in.now()); err != nil {
		return nil, err
	}

	guard := handoffGuard{}
	for !in.Outcome.Done() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if conv.IterationCount >= policy.budget() {
			log.Warn().
				Str("conversation_id", in.ConversationID).
				Str("specialist", conv.ActiveSpecialist).
				Int("iterations", conv.IterationCount).
				Msg("iteration budget exhausted")
			in.finish(Outcome{Author: conv.ActiveSpecialist, Answer: FallbackAnswer, Status: contractx.TurnFallback, ErrorKind: contractx.KindLoopBudgetExceeded})
			break
		}

		if err := step(ctx, in, models, tools, guard); err != nil {
			return nil, err
		}
	}
	return in, nil
}

// step invokes the active specialist once and applies its decision.
func step(ctx context.Context, in *GraphState, models contractx.Registry, tools contractx.ToolGateway, guard handoffGuard) error {
	conv := in.Conversation
	active := contractx.SpecialistKind(conv.ActiveSpecialist)
	iteration := conv.NextIteration()
	logger := log.With().
		Str("conversation_id", in.ConversationID).
		Int("iteration", iteration).
		Str("specialist", string(active)).
		Logger()

	specialist, ok := models.Specialist(active)
	if !ok {
		logger.Error().Msg("specialist not registered")
		in.finish(Outcome{Author: string(active), Answer: ApologyAnswer, Status: contractx.TurnFailed, ErrorKind: contractx.KindSpecialistFailure})
		return nil
	}

	decision, err := specialist.Act(ctx, conv.Clone())
	if err == nil {
		err = decision.Validate()
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Error().Err(err).Msg("specialist failed")
		in.finish(Outcome{Author: string(active), Answer: ApologyAnswer, Status: contractx.TurnFailed, ErrorKind: contractx.KindSpecialistFailure})
		return nil
	}
	logger.Debug().Str("decision", string(decision.Kind)).Str("tool", decision.Tool.Tool).Str("target", string(decision.Target)).Msg("specialist decided")

	switch decision.Kind {
	case contractx.DecisionAnswer:
		in.finish(Outcome{Author: string(active), Answer: decision.Answer, Status: contractx.TurnCompleted})
		return nil

	case contractx.DecisionHandoff:
		if !guard.allow(decision.Target) {
			logger.Warn().Str("target", string(decision.Target)).Msg("handoff cycle")
			in.finish(Outcome{Author: string(active), Answer: FallbackAnswer, Status: contractx.TurnFallback, ErrorKind: contractx.KindLoopBudgetExceeded})
			return nil
		}
		if _, ok := models.Specialist(decision.Target); !ok {
			logger.Error().Str("target", string(decision.Target)).Msg("handoff to unregistered specialist")
			in.finish(Outcome{Author: string(active), Answer: ApologyAnswer, Status: contractx.TurnFailed, ErrorKind: contractx.KindSpecialistFailure})
			return nil
		}
		return applyHandoff(in, decision)
	}

	return mediateTool(ctx, in, tools, active, decision.Tool)
}

// mediateTool validates, issues and resolves one tool call. Domain errors
// and timeouts become failed tool turns for the specialist to read.
func mediateTool(ctx context.Context, in *GraphState, tools contractx.ToolGateway, origin contractx.SpecialistKind, req contractx.ToolRequest) error {
	logger := log.With().
		Str("conversation_id", in.ConversationID).
		Str("specialist", string(origin)).
		Str("tool", req.Tool).
		Logger()

	if err := tools.Validate(origin, req); err != nil {
		logger.Error().Err(err).Msg("invalid tool request")
		in.finish(Outcome{Author: string(origin), Answer: ApologyAnswer, Status: contractx.TurnFailed, ErrorKind: contractx.KindInvalidToolArgs})
		return nil
	}
	if err := issueToolCall(in, req); err != nil {
		return err
	}

	res, err := tools.Invoke(ctx, origin, req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		kind := contractx.KindOf(err)
		if errors.Is(err, contractx.ErrInvalidToolArgs) {
			logger.Error().Err(err).Msg("invalid tool request")
			if rerr := resolveToolCall(in, contractx.ToolResult{Tool: req.Tool, Error: err.Error(), ErrorKind: kind}); rerr != nil {
				return rerr
			}
			in.finish(Outcome{Author: string(origin), Answer: ApologyAnswer, Status: contractx.TurnFailed, ErrorKind: kind})
			return nil
		}
		logger.Warn().Err(err).Str("error_kind", string(kind)).Msg("tool invocation failed")
		res = contractx.ToolResult{Tool: req.Tool, Error: err.Error(), ErrorKind: kind}
	}
	if res.Failed() {
		logger.Debug().Str("error_kind", string(res.ErrorKind)).Msg("tool returned error")
	}
	return resolveToolCall(in, res)
}
