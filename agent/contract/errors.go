package contract

import (
	"errors"
	"fmt"
)

var (
	ErrModelInvoke     = errors.New("model invoke failed")
	ErrSchemaViolation = errors.New("model response violates schema")
	ErrPromptMissing   = errors.New("required prompt is missing")
	ErrValidation      = errors.New("validation failed")

	ErrClassificationAmbiguous = errors.New("classification ambiguous")
	ErrInvalidToolArgs         = errors.New("invalid tool arguments")
	ErrToolTimeout             = errors.New("tool invocation timed out")
	ErrLoopBudgetExceeded      = errors.New("loop budget exceeded")
	ErrHandoffCycle            = errors.New("handoff cycle detected")
	ErrSpecialistFailure       = errors.New("specialist failed")
	ErrUnknownSpecialist       = errors.New("unknown specialist")
)

// ErrorKind is the error taxonomy surfaced to specialists through tool-role
// turns and to callers through turn statuses.
type ErrorKind string

const (
	KindNone                    ErrorKind = ""
	KindClassificationAmbiguous ErrorKind = "classification_ambiguous"
	KindInvalidToolArgs         ErrorKind = "invalid_tool_args"
	KindSlotConflict            ErrorKind = "slot_conflict"
	KindNotFound                ErrorKind = "not_found"
	KindAlreadyCancelled        ErrorKind = "already_cancelled"
	KindToolTimeout             ErrorKind = "tool_timeout"
	KindLoopBudgetExceeded      ErrorKind = "loop_budget_exceeded"
	KindOutsideWorkingHours     ErrorKind = "outside_working_hours"
	KindUnknownPractitioner     ErrorKind = "unknown_practitioner"
	KindSpecialistFailure       ErrorKind = "specialist_failure"
	KindToolFailure             ErrorKind = "tool_failure"
)

// Recoverable reports whether the error is fed back to the specialist
// instead of ending the turn.
func (k ErrorKind) Recoverable() bool {
	switch k {
	case KindSlotConflict, KindNotFound, KindAlreadyCancelled, KindToolTimeout,
		KindOutsideWorkingHours, KindUnknownPractitioner, KindToolFailure:
		return true
	default:
		return false
	}
}

// ToolError is returned by tool handlers and the gateway.
type ToolError struct {
	Kind ErrorKind
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("tool=%s kind=%s", e.Tool, e.Kind)
	}
	return fmt.Sprintf("tool=%s kind=%s: %v", e.Tool, e.Kind, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// KindOf extracts the ErrorKind carried by err.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var te *ToolError
	if errors.As(err, &te) {
		return te.Kind
	}
	switch {
	case errors.Is(err, ErrInvalidToolArgs):
		return KindInvalidToolArgs
	case errors.Is(err, ErrToolTimeout):
		return KindToolTimeout
	case errors.Is(err, ErrLoopBudgetExceeded), errors.Is(err, ErrHandoffCycle):
		return KindLoopBudgetExceeded
	case errors.Is(err, ErrClassificationAmbiguous):
		return KindClassificationAmbiguous
	case errors.Is(err, ErrSpecialistFailure):
		return KindSpecialistFailure
	default:
		return KindToolFailure
	}
}
