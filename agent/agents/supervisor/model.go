package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/contract"
	llmx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/llm"
	promptx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/prompt"
	statex "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/state"
)

const historyWindow = 8

type supervisorLLMOutput struct {
	Route    string `json:"route"`
	Reason   string `json:"reason,omitempty"`
	Question string `json:"question,omitempty"`
}

// ModelSupervisor routes with a chat model. Invoke or schema failures fall
// back to the rule classifier so a turn is always routed.
type ModelSupervisor struct {
	runner   compose.Runnable[map[string]any, supervisorLLMOutput]
	fallback contractx.Supervisor
}

var _ contractx.Supervisor = (*ModelSupervisor)(nil)

func NewModelSupervisor(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string, fallback contractx.Supervisor) (*ModelSupervisor, error) {
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, fmt.Errorf("%w: supervisor prompt", contractx.ErrPromptMissing)
	}
	runner, err := llmx.CompileStructuredGraph[supervisorLLMOutput](ctx, chatModel, systemPrompt, "supervisor.route_graph")
	if err != nil {
		return nil, fmt.Errorf("%w: compile supervisor graph: %v", contractx.ErrModelInvoke, err)
	}
	if fallback == nil {
		fallback = NewRules()
	}
	return &ModelSupervisor{runner: runner, fallback: fallback}, nil
}

func (s *ModelSupervisor) Classify(ctx context.Context, conv *statex.Conversation) (contractx.Classification, error) {
	out, err := s.classify(ctx, conv)
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil {
		return contractx.Classification{}, ctx.Err()
	}
	log.Warn().Err(err).Str("conversation_id", conversationID(conv)).Msg("model routing failed, using rules")
	return s.fallback.Classify(ctx, conv)
}

func (s *ModelSupervisor) classify(ctx context.Context, conv *statex.Conversation) (contractx.Classification, error) {
	if conv == nil || strings.TrimSpace(conv.LastUserMessage()) == "" {
		return contractx.Classification{}, fmt.Errorf("%w: user message is required", contractx.ErrValidation)
	}

	inputBytes, err := json.Marshal(map[string]any{
		"history":         summarizeHistory(conv),
		"last_specialist": string(continuity(conv)),
		"message":         conv.LastUserMessage(),
	})
	if err != nil {
		return contractx.Classification{}, fmt.Errorf("%w: marshal supervisor payload: %v", contractx.ErrValidation, err)
	}

	out, err := s.runner.Invoke(ctx, map[string]any{"input": string(inputBytes)})
	if err != nil {
		return contractx.Classification{}, fmt.Errorf("%w: supervisor invoke: %v", contractx.ErrModelInvoke, err)
	}
	return validateOutput(out)
}

func validateOutput(out supervisorLLMOutput) (contractx.Classification, error) {
	route, err := contractx.ParseRoute(out.Route)
	if err != nil {
		return contractx.Classification{}, err
	}
	c := contractx.Classification{Route: route, Reason: strings.TrimSpace(out.Reason)}
	if route == contractx.RouteClarify {
		c.Question = strings.TrimSpace(out.Question)
		if c.Question == "" {
			return contractx.Classification{}, fmt.Errorf("%w: clarify route must include question", contractx.ErrSchemaViolation)
		}
	}
	return c, nil
}

// summarizeHistory keeps the user messages and final answers before the
// latest message, oldest first.
func summarizeHistory(conv *statex.Conversation) []map[string]string {
	var out []map[string]string
	latest := len(conv.Turns) - 1
	for latest >= 0 && conv.Turns[latest].Role != statex.RoleUser {
		latest--
	}
	for i := 0; i < latest; i++ {
		t := conv.Turns[i]
		switch {
		case t.Role == statex.RoleUser:
			out = append(out, map[string]string{"role": "patient", "text": t.Content})
		case t.Role == statex.RoleSpecialist && t.Final:
			out = append(out, map[string]string{"role": "assistant", "author": t.Author, "text": t.Content})
		}
	}
	if len(out) > historyWindow {
		out = out[len(out)-historyWindow:]
	}
	return out
}

func conversationID(conv *statex.Conversation) string {
	if conv == nil {
		return ""
	}
	return conv.ID
}

// New builds the model supervisor when cfg has an API key, the rule
// classifier otherwise.
func New(ctx context.Context, cfg llmx.Config) (contractx.Supervisor, error) {
	rules := NewRules()
	if !cfg.Enabled() {
		return rules, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	modelCfg := cfg.OpenRouterFor(llmx.RoleSupervisor)
	chatModel, err := modelCfg.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create supervisor model: %v", contractx.ErrModelInvoke, err)
	}
	return NewModelSupervisor(ctx, chatModel, promptx.LoadPromptSet().Supervisor, rules)
}
