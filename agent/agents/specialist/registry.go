package specialist

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/contract"
	llmx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/llm"
	promptx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/prompt"
	"github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/schedule"
)

type registryImpl struct {
	supervisor  contractx.Supervisor
	specialists map[contractx.SpecialistKind]contractx.Specialist
}

func (r *registryImpl) Supervisor() contractx.Supervisor {
	return r.supervisor
}

func (r *registryImpl) Specialist(kind contractx.SpecialistKind) (contractx.Specialist, bool) {
	s, ok := r.specialists[kind]
	return s, ok
}

// NewRegistry pairs a supervisor with specialists. Every kind must be
// covered exactly once.
func NewRegistry(supervisor contractx.Supervisor, specialists ...contractx.Specialist) (contractx.Registry, error) {
	if supervisor == nil {
		return nil, fmt.Errorf("%w: supervisor is required", contractx.ErrValidation)
	}
	byKind := make(map[contractx.SpecialistKind]contractx.Specialist, len(specialists))
	for _, s := range specialists {
		kind := s.Kind()
		if !kind.Valid() {
			return nil, fmt.Errorf("%w: kind=%q", contractx.ErrUnknownSpecialist, kind)
		}
		if _, dup := byKind[kind]; dup {
			return nil, fmt.Errorf("%w: specialist %s registered twice", contractx.ErrValidation, kind)
		}
		byKind[kind] = s
	}
	for _, kind := range contractx.SpecialistKinds {
		if _, ok := byKind[kind]; !ok {
			return nil, fmt.Errorf("%w: no specialist for %s", contractx.ErrUnknownSpecialist, kind)
		}
	}
	return &registryImpl{supervisor: supervisor, specialists: byKind}, nil
}

// Defaults builds the four specialists over deps.
func Defaults(deps Deps) []contractx.Specialist {
	return []contractx.Specialist{
		NewBooking(deps),
		NewCancellation(deps),
		NewRescheduling(deps),
		NewFAQ(deps),
	}
}

// NewDeps wires the extractor for cfg: model-backed when an API key is set,
// rule-based otherwise.
func NewDeps(ctx context.Context, cfg llmx.Config, catalog *schedule.Catalog, now func() time.Time) (Deps, error) {
	if catalog == nil {
		return Deps{}, fmt.Errorf("%w: catalog is required", contractx.ErrValidation)
	}
	deps := Deps{Catalog: catalog, Now: now}
	if !cfg.Enabled() {
		log.Debug().Msg("llm disabled, using rule-based extraction")
		return deps.withDefaults(), nil
	}
	if err := cfg.Validate(); err != nil {
		return Deps{}, err
	}

	prompts := promptx.LoadPromptSet()
	modelCfg := cfg.OpenRouterFor(llmx.RoleExtractor)
	chatModel, err := modelCfg.New(ctx)
	if err != nil {
		return Deps{}, fmt.Errorf("%w: create extractor model: %v", contractx.ErrModelInvoke, err)
	}
	extractor, err := NewModelExtractor(ctx, chatModel, prompts.Extractor, catalog)
	if err != nil {
		return Deps{}, err
	}
	deps.Extractor = extractor
	return deps.withDefaults(), nil
}
