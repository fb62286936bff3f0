package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/contract"
	statex "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/state"
)

var testNow = time.Date(2030, 3, 4, 10, 7, 0, 0, time.UTC)

func conversation(t *testing.T, last contractx.SpecialistKind, text string) *statex.Conversation {
	t.Helper()
	conv := statex.NewConversation("conv-1", testNow)
	conv.LastSpecialist = string(last)
	if err := conv.BeginTurn(text, testNow); err != nil {
		t.Fatalf("BeginTurn() error = %v", err)
	}
	return conv
}

func TestRulesClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		last contractx.SpecialistKind
		text string
		want contractx.Route
	}{
		{"booking", "", "Book me with Dr. Lee tomorrow at 3pm", contractx.RouteBooking},
		{"cancellation", "", "Cancel my appointment", contractx.RouteCancellation},
		{"rescheduling", "", "Can I move my appointment to Friday?", contractx.RouteRescheduling},
		{"faq", "", "What are your opening hours?", contractx.RouteFAQ},
		{"cancel outweighs book", "", "please cancel my booking", contractx.RouteCancellation},
		{"continuation", contractx.SpecialistBooking, "1234567", contractx.RouteBooking},
		{"tie prefers last", contractx.SpecialistFAQ, "what are your hours, and can I book?", contractx.RouteFAQ},
		{"tie without last", "", "what are your hours, and can I book?", contractx.RouteClarify},
		{"nothing to go on", "", "hmm", contractx.RouteClarify},
		{"courtesy", contractx.SpecialistBooking, "thank you!", contractx.RouteClarify},
	}
	for _, tc := range cases {
		got, err := NewRules().Classify(context.Background(), conversation(t, tc.last, tc.text))
		if err != nil {
			t.Fatalf("%s: Classify() error = %v", tc.name, err)
		}
		if got.Route != tc.want {
			t.Fatalf("%s: route = %s, want %s (reason %q)", tc.name, got.Route, tc.want, got.Reason)
		}
		if got.Route == contractx.RouteClarify && got.Question == "" {
			t.Fatalf("%s: clarify without a question", tc.name)
		}
	}
}

func TestRulesClarifyNamesTheChoices(t *testing.T) {
	t.Parallel()

	got, err := NewRules().Classify(context.Background(), conversation(t, "", "what are your hours, and can I book?"))
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if got.Question != "Would you like to book a new appointment or ask about the clinic?" {
		t.Fatalf("unexpected question: %q", got.Question)
	}
}

func TestRulesDoNotMutateConversation(t *testing.T) {
	t.Parallel()

	conv := conversation(t, contractx.SpecialistBooking, "tomorrow then")
	before := conv.Clone()
	if _, err := NewRules().Classify(context.Background(), conv); err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if conv.Phase != before.Phase || len(conv.Turns) != len(before.Turns) || conv.ActiveSpecialist != before.ActiveSpecialist {
		t.Fatalf("conversation mutated: %+v", conv)
	}
}

type fakeChatModel struct {
	content string
	err     error
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.content, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not implemented in fake model")
}

func TestModelSupervisorRoutes(t *testing.T) {
	t.Parallel()

	fake := &fakeChatModel{content: `{"route":"rescheduling","reason":"wants another day"}`}
	sup, err := NewModelSupervisor(context.Background(), fake, "route prompt", nil)
	if err != nil {
		t.Fatalf("NewModelSupervisor() error = %v", err)
	}
	got, err := sup.Classify(context.Background(), conversation(t, "", "tuesday does not work for me anymore"))
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if got.Route != contractx.RouteRescheduling || got.Reason != "wants another day" {
		t.Fatalf("unexpected classification: %+v", got)
	}
}

func TestModelSupervisorFallsBackToRules(t *testing.T) {
	t.Parallel()

	cases := map[string]*fakeChatModel{
		"invoke error":      {err: errors.New("rate limited")},
		"unknown route":     {content: `{"route":"billing"}`},
		"clarify without q": {content: `{"route":"clarify"}`},
		"not json":          {content: `sure, booking it is`},
	}
	for name, fake := range cases {
		sup, err := NewModelSupervisor(context.Background(), fake, "route prompt", nil)
		if err != nil {
			t.Fatalf("%s: NewModelSupervisor() error = %v", name, err)
		}
		got, err := sup.Classify(context.Background(), conversation(t, "", "Cancel my appointment"))
		if err != nil {
			t.Fatalf("%s: Classify() error = %v", name, err)
		}
		if got.Route != contractx.RouteCancellation {
			t.Fatalf("%s: route = %s, want cancellation from rules", name, got.Route)
		}
	}
}

func TestValidateOutput(t *testing.T) {
	t.Parallel()

	got, err := validateOutput(supervisorLLMOutput{Route: " Clarify ", Question: "Which appointment?"})
	if err != nil {
		t.Fatalf("validateOutput() error = %v", err)
	}
	if got.Route != contractx.RouteClarify || got.Question != "Which appointment?" {
		t.Fatalf("unexpected classification: %+v", got)
	}
	if _, err := validateOutput(supervisorLLMOutput{Route: "sales"}); !errors.Is(err, contractx.ErrSchemaViolation) {
		t.Fatalf("expected ErrSchemaViolation, got %v", err)
	}
}

func TestSummarizeHistory(t *testing.T) {
	t.Parallel()

	conv := statex.NewConversation("conv-1", testNow)
	if err := conv.BeginTurn("what are your hours", testNow); err != nil {
		t.Fatal(err)
	}
	if err := conv.Activate(string(contractx.SpecialistFAQ), testNow); err != nil {
		t.Fatal(err)
	}
	if err := conv.IssueToolCall("answer_faq", map[string]any{"query": "hours"}, testNow); err != nil {
		t.Fatal(err)
	}
	if err := conv.ResolveToolCall(`{"answer":"8 to 6"}`, []byte(`{"answer":"8 to 6"}`), "", testNow); err != nil {
		t.Fatal(err)
	}
	if err := conv.Complete(string(contractx.SpecialistFAQ), "We are open 8 to 6.", testNow); err != nil {
		t.Fatal(err)
	}
	if err := conv.Settle(testNow); err != nil {
		t.Fatal(err)
	}
	if err := conv.BeginTurn("book me in then", testNow); err != nil {
		t.Fatal(err)
	}

	history := summarizeHistory(conv)
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %#v", history)
	}
	if history[0]["role"] != "patient" || history[1]["author"] != "faq" {
		t.Fatalf("unexpected history: %#v", history)
	}
}
