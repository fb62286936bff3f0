package orchestratornode

import (
	"errors"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/contract"
	statex "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/state"
)

var (
	ErrInvalidMessage      = errors.New("message is empty")
	ErrInvalidConversation = errors.New("conversation id is empty")
)

type GraphInput struct {
	ConversationID string
	PatientID      string
	Text           string
}

type GraphOutput struct {
	ConversationID string
	Answer         string
	Status         contractx.TurnStatus
	Iterations     int
}

// Outcome is how the turn ends: the final answer and who gave it.
type Outcome struct {
	Author    string
	Answer    string
	Status    contractx.TurnStatus
	ErrorKind contractx.ErrorKind
}

func (o Outcome) Done() bool {
	return o.Status != ""
}

type GraphState struct {
	ConversationID string
	PatientID      string
	Text           string
	StartedAt      time.Time
	Clock          func() time.Time

	Conversation   *statex.Conversation
	Classification contractx.Classification
	Outcome        Outcome
}

func (s *GraphState) now() time.Time {
	return s.Clock().UTC()
}

// finish records the outcome once; later calls are ignored.
func (s *GraphState) finish(o Outcome) {
	if s.Outcome.Done() {
		return
	}
	s.Outcome = o
}

func ValidateRequest(in GraphInput, clock func() time.Time) (*GraphState, error) {
	conversationID := strings.TrimSpace(in.ConversationID)
	if conversationID == "" {
		return nil, ErrInvalidConversation
	}

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrInvalidMessage
	}

	return &GraphState{
		ConversationID: conversationID,
		PatientID:      strings.TrimSpace(in.PatientID),
		Text:           text,
		StartedAt:      clock().UTC(),
		Clock:          clock,
	}, nil
}
