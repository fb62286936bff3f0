package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/agents/orchestrator"
	"github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/agents/specialist"
	"github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/agents/supervisor"
	eventsx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/events"
	"github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/faq"
	llmx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/llm"
	promptx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/prompt"
	"github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/schedule"
	statex "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/state"
	toolx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/tool"
	configx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/pkg/config"
	openrouterx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/pkg/openrouter"
	qstashx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/pkg/qstash"
	"github.com/tanpawarit/Chative-Clinic-Appointment-Agent/pkg/sqlitex"
)

// app holds every wired component of one CLI process.
type app struct {
	cfg      *AppConfig
	catalog  *schedule.Catalog
	schedule *schedule.Service
	kb       *faq.KnowledgeBase
	bus      *eventsx.Bus
	tools    *toolx.Registry
	agent    *orchestrator.Orchestrator
	notifier *eventsx.Notifier

	closers []func() error
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := configx.New[AppConfig]("CLINIC")
	if err != nil {
		return nil, fmt.Errorf("load clinic config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	llmCfg, err := configx.New[llmx.Config]("LLM")
	if err != nil {
		return nil, fmt.Errorf("load llm config: %w", err)
	}

	a := &app{cfg: cfg}
	if err := a.wire(ctx, *llmCfg); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, llmCfg llmx.Config) error {
	loc, err := a.cfg.location()
	if err != nil {
		return err
	}
	catalogOpts := []schedule.CatalogOption{
		schedule.WithLocation(loc),
		schedule.WithSlotDuration(time.Duration(a.cfg.SlotMinutes) * time.Minute),
	}
	if path := strings.TrimSpace(a.cfg.CatalogPath); path != "" {
		a.catalog, err = schedule.LoadCatalogFile(path, catalogOpts...)
	} else {
		a.catalog, err = schedule.DefaultCatalog(catalogOpts...)
	}
	if err != nil {
		return fmt.Errorf("load practitioner catalog: %w", err)
	}

	var db *sqlitex.DB
	if a.cfg.StateBackend == backendSQLite || a.cfg.ScheduleBackend == backendSQLite {
		db, err = sqlitex.Open(a.cfg.SQLitePath)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, db.Close)
	}

	apptStore, err := a.openScheduleStore(ctx, db)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, apptStore.Close)
	a.schedule = schedule.NewService(apptStore, a.catalog)

	convStore, err := a.openStateStore(db)
	if err != nil {
		return err
	}

	if a.kb, err = a.loadFAQ(llmCfg); err != nil {
		return err
	}

	a.bus = eventsx.NewBus()
	a.closers = append(a.closers, a.bus.Close)
	if err := a.wireNotifier(); err != nil {
		return err
	}

	a.tools, err = toolx.New(a.schedule, a.kb,
		toolx.WithTimeout(a.cfg.ToolTimeout),
		toolx.WithPublisher(a.bus),
	)
	if err != nil {
		return err
	}

	sup, err := supervisor.New(ctx, llmCfg)
	if err != nil {
		return err
	}
	deps, err := specialist.NewDeps(ctx, llmCfg, a.catalog, a.schedule.Now)
	if err != nil {
		return err
	}
	registry, err := specialist.NewRegistry(sup, specialist.Defaults(deps)...)
	if err != nil {
		return err
	}

	a.agent, err = orchestrator.New(convStore, registry, a.tools,
		orchestrator.WithBudget(a.cfg.IterationBudget),
		orchestrator.WithPublisher(a.bus),
	)
	if err != nil {
		return err
	}

	log.Debug().
		Str("state_backend", a.cfg.StateBackend).
		Str("schedule_backend", a.cfg.ScheduleBackend).
		Bool("llm", llmCfg.Enabled()).
		Msg("clinic agent wired")
	return nil
}

func (a *app) openScheduleStore(ctx context.Context, db *sqlitex.DB) (schedule.Store, error) {
	switch a.cfg.ScheduleBackend {
	case backendSQLite:
		return schedule.NewSQLiteStore(db)
	case backendPostgres:
		return schedule.OpenPostgresStore(ctx, a.cfg.PostgresDSN)
	default:
		return schedule.NewMemoryStore(), nil
	}
}

func (a *app) openStateStore(db *sqlitex.DB) (statex.Store, error) {
	switch a.cfg.StateBackend {
	case backendSQLite:
		return statex.NewSQLiteStore(db)
	case backendUpstash:
		redisCfg, err := configx.New[statex.UpstashRedisConfig]("UPSTASH_REDIS")
		if err != nil {
			return nil, fmt.Errorf("load upstash config: %w", err)
		}
		return statex.NewUpstashRedisStore(*redisCfg)
	default:
		return statex.NewMemoryStore(), nil
	}
}

func (a *app) loadFAQ(llmCfg llmx.Config) (*faq.KnowledgeBase, error) {
	var opts []faq.Option
	if llmCfg.Enabled() {
		modelCfg := llmCfg.OpenRouterFor(llmx.RoleFAQ)
		answerer, err := faq.NewModelAnswerer(openrouterx.NewClient(modelCfg), modelCfg.Model, promptx.LoadPromptSet().FAQ)
		if err != nil {
			return nil, err
		}
		opts = append(opts, faq.WithFallback(answerer))
	}
	if path := strings.TrimSpace(a.cfg.FAQPath); path != "" {
		return faq.LoadFile(path, opts...)
	}
	return faq.Default(opts...)
}

func (a *app) wireNotifier() error {
	dest := strings.TrimSpace(a.cfg.NotifyDestination)
	if dest == "" {
		return nil
	}
	qcfg, err := configx.New[qstashx.Config]("QSTASH")
	if err != nil {
		return fmt.Errorf("load qstash config: %w", err)
	}
	client, err := qstashx.NewClient(*qcfg)
	if err != nil {
		return err
	}
	a.notifier, err = eventsx.NewNotifier(a.bus, client, dest)
	return err
}

// Close releases stores and the bus in reverse order of creation.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
