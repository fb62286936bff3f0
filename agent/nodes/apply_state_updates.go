package orchestratornode

import (
	"fmt"

	contractx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/contract"
)

// The helpers below are the only writers of conversation state during a
// turn. Specialists and tools return values; these apply them.

func applyHandoff(in *GraphState, d contractx.Decision) error {
	conv := in.Conversation
	if err := conv.RequestHandoff(string(d.Target), d.Reason, in.now()); err != nil {
		return fmt.Errorf("request handoff: %w", err)
	}
	if err := conv.Activate(string(d.Target), in.now()); err != nil {
		return fmt.Errorf("activate %s: %w", d.Target, err)
	}
	return nil
}

func issueToolCall(in *GraphState, req contractx.ToolRequest) error {
	if err := in.Conversation.IssueToolCall(req.Tool, req.Args, in.now()); err != nil {
		return fmt.Errorf("issue tool call: %w", err)
	}
	return nil
}

func resolveToolCall(in *GraphState, res contractx.ToolResult) error {
	content := string(res.Result)
	if res.Failed() {
		content = res.Error
		if content == "" {
			content = string(res.ErrorKind)
		}
	}
	if err := in.Conversation.ResolveToolCall(content, res.Result, string(res.ErrorKind), in.now()); err != nil {
		return fmt.Errorf("resolve tool call: %w", err)
	}
	return nil
}

// CompleteTurn appends the outcome as the turn's final answer.
func CompleteTurn(in *GraphState) (*GraphState, error) {
	if in == nil || in.Conversation == nil {
		return nil, fmt.Errorf("%w: graph conversation is nil", contractx.ErrValidation)
	}
	if !in.Outcome.Done() {
		in.finish(Outcome{Answer: FallbackAnswer, Status: contractx.TurnFallback, ErrorKind: contractx.KindLoopBudgetExceeded})
	}

	conv := in.Conversation
	if conv.PendingToolCall != nil {
		// never leave a call unresolved
		if err := resolveToolCall(in, contractx.ToolResult{Tool: conv.PendingToolCall.Tool, Error: "turn ended before the tool answered", ErrorKind: contractx.KindToolFailure}); err != nil {
			return nil, err
		}
	}
	if err := conv.Complete(in.Outcome.Author, in.Outcome.Answer, in.now()); err != nil {
		return nil, fmt.Errorf("complete turn: %w", err)
	}
	return in, nil
}
