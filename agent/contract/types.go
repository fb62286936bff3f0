package contract

import (
	"encoding/json"
	"fmt"
	"strings"
)

type SpecialistKind string

const (
	SpecialistBooking      SpecialistKind = "booking"
	SpecialistCancellation SpecialistKind = "cancellation"
	SpecialistRescheduling SpecialistKind = "rescheduling"
	SpecialistFAQ          SpecialistKind = "faq"
)

// SpecialistKinds is the closed set of specialists, in routing priority order.
var SpecialistKinds = []SpecialistKind{
	SpecialistCancellation,
	SpecialistRescheduling,
	SpecialistBooking,
	SpecialistFAQ,
}

func (k SpecialistKind) Valid() bool {
	switch k {
	case SpecialistBooking, SpecialistCancellation, SpecialistRescheduling, SpecialistFAQ:
		return true
	default:
		return false
	}
}

// Route is the Supervisor's output: one specialist or Clarify.
type Route string

const (
	RouteBooking      Route = Route(SpecialistBooking)
	RouteCancellation Route = Route(SpecialistCancellation)
	RouteRescheduling Route = Route(SpecialistRescheduling)
	RouteFAQ          Route = Route(SpecialistFAQ)
	RouteClarify      Route = "clarify"
)

// Specialist maps a route to its specialist. Clarify maps to none.
func (r Route) Specialist() (SpecialistKind, bool) {
	kind := SpecialistKind(r)
	if !kind.Valid() {
		return "", false
	}
	return kind, true
}

func ParseRoute(raw string) (Route, error) {
	r := Route(strings.ToLower(strings.TrimSpace(raw)))
	if r == RouteClarify {
		return r, nil
	}
	if _, ok := r.Specialist(); ok {
		return r, nil
	}
	return "", fmt.Errorf("%w: unsupported route=%q", ErrSchemaViolation, raw)
}

type Classification struct {
	Route    Route  `json:"route"`
	Reason   string `json:"reason,omitempty"`
	Question string `json:"question,omitempty"`
}

// Clarify builds a Clarify classification carrying the question for the user.
func Clarify(question, reason string) Classification {
	return Classification{Route: RouteClarify, Question: question, Reason: reason}
}

type DecisionKind string

const (
	DecisionAnswer      DecisionKind = "answer"
	DecisionToolRequest DecisionKind = "tool_request"
	DecisionHandoff     DecisionKind = "handoff"
)

// Decision is the tagged union returned by a specialist's Act. Exactly the
// field matching Kind is meaningful.
type Decision struct {
	Kind   DecisionKind   `json:"kind"`
	Answer string         `json:"answer,omitempty"`
	Tool   ToolRequest    `json:"tool,omitempty"`
	Target SpecialistKind `json:"target,omitempty"`
	Reason string         `json:"reason,omitempty"`
}

func Answer(text string) Decision {
	return Decision{Kind: DecisionAnswer, Answer: text}
}

func CallTool(tool string, args map[string]any) Decision {
	return Decision{Kind: DecisionToolRequest, Tool: ToolRequest{Tool: tool, Args: args}}
}

func Handoff(target SpecialistKind, reason string) Decision {
	return Decision{Kind: DecisionHandoff, Target: target, Reason: reason}
}

func (d Decision) Validate() error {
	switch d.Kind {
	case DecisionAnswer:
		if strings.TrimSpace(d.Answer) == "" {
			return fmt.Errorf("%w: answer decision has empty text", ErrValidation)
		}
	case DecisionToolRequest:
		if strings.TrimSpace(d.Tool.Tool) == "" {
			return fmt.Errorf("%w: tool request has empty tool name", ErrValidation)
		}
	case DecisionHandoff:
		if !d.Target.Valid() {
			return fmt.Errorf("%w: handoff target=%q", ErrUnknownSpecialist, d.Target)
		}
	default:
		return fmt.Errorf("%w: decision kind=%q", ErrValidation, d.Kind)
	}
	return nil
}

type ToolRequest struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args,omitempty"`
}

type ToolResult struct {
	Tool      string          `json:"tool"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorKind ErrorKind       `json:"error_kind,omitempty"`
}

func (r ToolResult) Failed() bool {
	return r.Error != "" || r.ErrorKind != KindNone
}

// Decode unmarshals the result payload into v.
func (r ToolResult) Decode(v any) error {
	if len(r.Result) == 0 {
		return fmt.Errorf("%w: tool=%s returned no payload", ErrValidation, r.Tool)
	}
	return json.Unmarshal(r.Result, v)
}

// TurnStatus summarises how a turn ended.
type TurnStatus string

const (
	TurnCompleted TurnStatus = "completed"
	TurnClarify   TurnStatus = "clarify"
	TurnFallback  TurnStatus = "fallback"
	TurnFailed    TurnStatus = "failed"
)
