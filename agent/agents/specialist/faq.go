package specialist

import (
	"context"
	"strings"

	contractx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/contract"
	statex "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/state"
	toolx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/tool"
)

// FAQ answers general clinic questions through answer_faq.
type FAQ struct {
	deps Deps
}

func NewFAQ(deps Deps) *FAQ {
	return &FAQ{deps: deps.withDefaults()}
}

func (f *FAQ) Kind() contractx.SpecialistKind {
	return contractx.SpecialistFAQ
}

func (f *FAQ) Act(_ context.Context, conv *statex.Conversation) (contractx.Decision, error) {
	sc := scopeFor(conv, f.Kind())
	if last, ok := sc.lastTool(); ok {
		return f.afterTool(sc, last)
	}

	query := strings.TrimSpace(conv.LastUserMessage())
	if target, ok := redirect(query, f.Kind(), sc.handedOffBy); ok {
		return contractx.Handoff(target, "message is about "+string(target)), nil
	}
	if query == "" {
		return contractx.Answer("What would you like to know about the clinic?"), nil
	}
	return contractx.CallTool(toolx.ToolAnswerFAQ, map[string]any{"query": query}), nil
}

func (f *FAQ) afterTool(sc scope, last statex.Turn) (contractx.Decision, error) {
	if last.Tool != toolx.ToolAnswerFAQ {
		return contractx.Answer(apology), nil
	}
	if last.Failed {
		if contractx.ErrorKind(last.ErrorKind) == contractx.KindToolTimeout && sc.count(last.Tool, contractx.KindToolTimeout) < 2 {
			return contractx.CallTool(last.Tool, last.Args), nil
		}
		return contractx.Answer("Sorry, I cannot answer that right now. Please call the front desk."), nil
	}
	var r toolx.FAQResult
	if err := decodePayload(last, &r); err != nil {
		return contractx.Decision{}, err
	}
	if strings.TrimSpace(r.Answer) == "" {
		return contractx.Answer("Sorry, I do not have an answer to that. Please call the front desk."), nil
	}
	return contractx.Answer(r.Answer), nil
}
