package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Conversation is the persistent source of truth for one patient dialogue.
// Only the orchestration core mutates it; supervisors and specialists
// receive a Clone.
type Conversation struct {
	ID        string `json:"id"`
	PatientID string `json:"patient_id,omitempty"`

	Turns []Turn `json:"turns"`

	Phase            Phase            `json:"phase"`
	ActiveSpecialist string           `json:"active_specialist,omitempty"`
	LastSpecialist   string           `json:"last_specialist,omitempty"`
	PendingToolCall  *PendingToolCall `json:"pending_tool_call,omitempty"`
	IterationCount   int              `json:"iteration_count"`

	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Role string

const (
	RoleUser       Role = "user"
	RoleSpecialist Role = "specialist"
	RoleTool       Role = "tool"
)

// Turn is one append-only transcript entry.
type Turn struct {
	Role    Role   `json:"role"`
	Author  string `json:"author,omitempty"` // specialist kind or tool name
	Content string `json:"content"`

	// tool-role turns
	Tool      string          `json:"tool,omitempty"`
	Args      map[string]any  `json:"args,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Failed    bool            `json:"failed,omitempty"`
	ErrorKind string          `json:"error_kind,omitempty"`

	// specialist-role turns
	HandoffTo string `json:"handoff_to,omitempty"`
	Final     bool   `json:"final,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

type PendingToolCall struct {
	Tool     string         `json:"tool"`
	Args     map[string]any `json:"args,omitempty"`
	Origin   string         `json:"origin"`
	IssuedAt time.Time      `json:"issued_at"`
}

type Phase string

const (
	PhaseAwaitingUserTurn Phase = "awaiting_user_turn"
	PhaseRouting          Phase = "routing"
	PhaseSpecialistActive Phase = "specialist_active"
	PhaseToolPending      Phase = "tool_pending"
	PhaseHandoffPending   Phase = "handoff_pending"
	PhaseTurnComplete     Phase = "turn_complete"
)

var transitions = map[Phase][]Phase{
	PhaseAwaitingUserTurn: {PhaseRouting},
	PhaseRouting:          {PhaseSpecialistActive, PhaseTurnComplete},
	PhaseSpecialistActive: {PhaseToolPending, PhaseHandoffPending, PhaseTurnComplete},
	PhaseToolPending:      {PhaseSpecialistActive, PhaseTurnComplete},
	PhaseHandoffPending:   {PhaseSpecialistActive, PhaseTurnComplete},
	PhaseTurnComplete:     {PhaseAwaitingUserTurn},
}

// Mode is what the conversation is waiting on. Every phase maps to exactly one.
type Mode string

const (
	ModeAwaitingUser  Mode = "awaiting_user"
	ModeAwaitingTool  Mode = "awaiting_tool"
	ModeProducingTurn Mode = "producing_response"
)

func (p Phase) Mode() Mode {
	switch p {
	case PhaseAwaitingUserTurn:
		return ModeAwaitingUser
	case PhaseToolPending:
		return ModeAwaitingTool
	default:
		return ModeProducingTurn
	}
}

func (p Phase) Valid() bool {
	_, ok := transitions[p]
	return ok
}

func (p Phase) CanTransition(to Phase) bool {
	for _, next := range transitions[p] {
		if next == to {
			return true
		}
	}
	return false
}

var (
	ErrNilConversation   = errors.New("conversation is nil")
	ErrInvalidTransition = errors.New("invalid phase transition")
	ErrToolCallPending   = errors.New("a tool call is already pending")
	ErrNoPendingToolCall = errors.New("no pending tool call")
	ErrEmptyUserMessage  = errors.New("user message is empty")
	ErrCorruptState      = errors.New("conversation state is corrupt")
)

func NewConversation(id string, now time.Time) *Conversation {
	now = now.UTC()
	return &Conversation{
		ID:        id,
		Phase:     PhaseAwaitingUserTurn,
		Turns:     make([]Turn, 0, 8),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (c *Conversation) Touch(now time.Time) {
	c.UpdatedAt = now.UTC()
}

// Transition moves the phase machine. Illegal edges are rejected.
func (c *Conversation) Transition(to Phase) error {
	if c == nil {
		return ErrNilConversation
	}
	if !c.Phase.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Phase, to)
	}
	c.Phase = to
	return nil
}

/* ----------------------------- Turn lifecycle ----------------------------- */

// BeginTurn appends the user message and resets per-turn bookkeeping.
func (c *Conversation) BeginTurn(text string, now time.Time) error {
	if c == nil {
		return ErrNilConversation
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyUserMessage
	}
	if err := c.Transition(PhaseRouting); err != nil {
		return err
	}
	c.IterationCount = 0
	c.ActiveSpecialist = ""
	c.PendingToolCall = nil
	c.append(Turn{Role: RoleUser, Content: text}, now)
	return nil
}

// Activate hands control to specialist.
func (c *Conversation) Activate(specialist string, now time.Time) error {
	if c == nil {
		return ErrNilConversation
	}
	if strings.TrimSpace(specialist) == "" {
		return fmt.Errorf("%w: empty specialist", ErrInvalidTransition)
	}
	if c.Phase != PhaseSpecialistActive {
		if err := c.Transition(PhaseSpecialistActive); err != nil {
			return err
		}
	}
	c.ActiveSpecialist = specialist
	c.Touch(now)
	return nil
}

// NextIteration counts one specialist invocation and returns the new total.
func (c *Conversation) NextIteration() int {
	c.IterationCount++
	return c.IterationCount
}

// IssueToolCall records the single in-flight tool call.
func (c *Conversation) IssueToolCall(tool string, args map[string]any, now time.Time) error {
	if c == nil {
		return ErrNilConversation
	}
	if c.PendingToolCall != nil {
		return ErrToolCallPending
	}
	if err := c.Transition(PhaseToolPending); err != nil {
		return err
	}
	c.PendingToolCall = &PendingToolCall{
		Tool:     tool,
		Args:     args,
		Origin:   c.ActiveSpecialist,
		IssuedAt: now.UTC(),
	}
	c.Touch(now)
	return nil
}

// ResolveToolCall appends the tool-role turn for the pending call, clears it
// and returns control to the issuing specialist.
func (c *Conversation) ResolveToolCall(content string, payload json.RawMessage, errorKind string, now time.Time) error {
	if c == nil {
		return ErrNilConversation
	}
	pending := c.PendingToolCall
	if pending == nil {
		return ErrNoPendingToolCall
	}
	if err := c.Transition(PhaseSpecialistActive); err != nil {
		return err
	}
	c.append(Turn{
		Role:      RoleTool,
		Author:    pending.Tool,
		Tool:      pending.Tool,
		Args:      pending.Args,
		Content:   content,
		Payload:   payload,
		Failed:    errorKind != "",
		ErrorKind: errorKind,
	}, now)
	c.PendingToolCall = nil
	return nil
}

// RequestHandoff records the active specialist yielding to target.
func (c *Conversation) RequestHandoff(target, reason string, now time.Time) error {
	if c == nil {
		return ErrNilConversation
	}
	if err := c.Transition(PhaseHandoffPending); err != nil {
		return err
	}
	c.append(Turn{
		Role:      RoleSpecialist,
		Author:    c.ActiveSpecialist,
		Content:   reason,
		HandoffTo: target,
	}, now)
	return nil
}

// Complete appends the final answer of the turn. author may be empty when
// no specialist was engaged (Clarify).
func (c *Conversation) Complete(author, answer string, now time.Time) error {
	if c == nil {
		return ErrNilConversation
	}
	if err := c.Transition(PhaseTurnComplete); err != nil {
		return err
	}
	c.append(Turn{
		Role:    RoleSpecialist,
		Author:  author,
		Content: answer,
		Final:   true,
	}, now)
	if c.ActiveSpecialist != "" {
		c.LastSpecialist = c.ActiveSpecialist
	}
	c.ActiveSpecialist = ""
	c.PendingToolCall = nil
	return nil
}

// Settle returns a completed conversation to AwaitingUserTurn before it is
// persisted.
func (c *Conversation) Settle(now time.Time) error {
	if c == nil {
		return ErrNilConversation
	}
	if c.Phase == PhaseAwaitingUserTurn {
		return nil
	}
	if err := c.Transition(PhaseAwaitingUserTurn); err != nil {
		return err
	}
	c.Touch(now)
	return nil
}

func (c *Conversation) append(t Turn, now time.Time) {
	t.Timestamp = now.UTC()
	c.Turns = append(c.Turns, t)
	c.Touch(now)
}

/* ------------------------------ Read helpers ------------------------------ */

// CurrentTurn returns the entries appended since the latest user message,
// excluding the user message itself.
func (c *Conversation) CurrentTurn() []Turn {
	if c == nil {
		return nil
	}
	for i := len(c.Turns) - 1; i >= 0; i-- {
		if c.Turns[i].Role == RoleUser {
			return c.Turns[i+1:]
		}
	}
	return nil
}

// LastUserMessage returns the most recent user text.
func (c *Conversation) LastUserMessage() string {
	if c == nil {
		return ""
	}
	for i := len(c.Turns) - 1; i >= 0; i-- {
		if c.Turns[i].Role == RoleUser {
			return c.Turns[i].Content
		}
	}
	return ""
}

// UserMessages returns all user texts, newest first.
func (c *Conversation) UserMessages() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.Turns))
	for i := len(c.Turns) - 1; i >= 0; i-- {
		if c.Turns[i].Role == RoleUser {
			out = append(out, c.Turns[i].Content)
		}
	}
	return out
}

// LastToolTurn returns the latest tool-role entry within the current turn.
func (c *Conversation) LastToolTurn() (Turn, bool) {
	current := c.CurrentTurn()
	for i := len(current) - 1; i >= 0; i-- {
		if current[i].Role == RoleTool {
			return current[i], true
		}
	}
	return Turn{}, false
}

// ToolTurns returns every tool-role entry in the transcript, oldest first.
func (c *Conversation) ToolTurns() []Turn {
	if c == nil {
		return nil
	}
	out := make([]Turn, 0, 4)
	for _, t := range c.Turns {
		if t.Role == RoleTool {
			out = append(out, t)
		}
	}
	return out
}

// Clone returns a deep copy for read-only consumers.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Turns = make([]Turn, len(c.Turns))
	for i, t := range c.Turns {
		t.Args = cloneArgs(t.Args)
		if t.Payload != nil {
			t.Payload = append(json.RawMessage(nil), t.Payload...)
		}
		out.Turns[i] = t
	}
	if c.PendingToolCall != nil {
		p := *c.PendingToolCall
		p.Args = cloneArgs(p.Args)
		out.PendingToolCall = &p
	}
	return &out
}

func cloneArgs(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Validate checks the structural invariants of a conversation.
func (c *Conversation) Validate() error {
	if c == nil {
		return ErrNilConversation
	}
	if strings.TrimSpace(c.ID) == "" {
		return ErrInvalidConversation
	}
	if !c.Phase.Valid() {
		return fmt.Errorf("%w: unknown phase=%q", ErrCorruptState, c.Phase)
	}
	if c.IterationCount < 0 {
		return fmt.Errorf("%w: negative iteration count", ErrCorruptState)
	}
	if c.PendingToolCall != nil && c.Phase != PhaseToolPending {
		return fmt.Errorf("%w: pending tool call in phase=%s", ErrCorruptState, c.Phase)
	}
	if c.Phase == PhaseToolPending && c.PendingToolCall == nil {
		return fmt.Errorf("%w: tool_pending without a pending call", ErrCorruptState)
	}
	if c.Phase == PhaseAwaitingUserTurn && c.ActiveSpecialist != "" {
		return fmt.Errorf("%w: active specialist while awaiting user", ErrCorruptState)
	}
	for i, t := range c.Turns {
		switch t.Role {
		case RoleUser, RoleSpecialist, RoleTool:
		default:
			return fmt.Errorf("%w: turn %d has role=%q", ErrCorruptState, i, t.Role)
		}
	}
	return nil
}
