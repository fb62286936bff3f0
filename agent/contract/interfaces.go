package contract

import (
	"context"

	statex "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/state"
)

// Supervisor classifies the latest user turn. It must not mutate conv.
type Supervisor interface {
	Classify(ctx context.Context, conv *statex.Conversation) (Classification, error)
}

// Specialist decides the next step for its task family. It reads conv and
// returns a Decision; only the orchestrator writes state.
type Specialist interface {
	Kind() SpecialistKind
	Act(ctx context.Context, conv *statex.Conversation) (Decision, error)
}

type Registry interface {
	Supervisor() Supervisor
	Specialist(kind SpecialistKind) (Specialist, bool)
}

type ToolGateway interface {
	// Validate checks req against the tool's declared schema and the
	// origin's allow-list without invoking it.
	Validate(origin SpecialistKind, req ToolRequest) error
	// Invoke runs a validated request. Domain failures and timeouts come back
	// inside the ToolResult; the error return is reserved for InvalidToolArgs
	// and for cancellation of ctx.
	Invoke(ctx context.Context, origin SpecialistKind, req ToolRequest) (ToolResult, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}
