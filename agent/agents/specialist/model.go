package specialist

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/contract"
	llmx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/llm"
	"github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/schedule"
)

const extractorCacheSize = 256

type extractorLLMOutput struct {
	PatientID      string `json:"patient_id"`
	Practitioner   string `json:"practitioner"`
	Specialization string `json:"specialization"`
	AppointmentID  string `json:"appointment_id"`
	Date           string `json:"date"`
	Time           string `json:"time"`
}

// ModelExtractor asks a chat model for Details and fills what it misses
// with the rule extractor. A failing model call degrades to rules only.
type ModelExtractor struct {
	runner  compose.Runnable[map[string]any, extractorLLMOutput]
	rules   *RuleExtractor
	catalog *schedule.Catalog

	mu    sync.Mutex
	cache map[string]Details
	order []string
}

var _ Extractor = (*ModelExtractor)(nil)

func NewModelExtractor(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string, catalog *schedule.Catalog) (*ModelExtractor, error) {
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, fmt.Errorf("%w: extractor prompt", contractx.ErrPromptMissing)
	}
	runner, err := llmx.CompileStructuredGraph[extractorLLMOutput](ctx, chatModel, systemPrompt, "specialist.extractor_graph")
	if err != nil {
		return nil, fmt.Errorf("%w: compile extractor graph: %v", contractx.ErrModelInvoke, err)
	}
	return &ModelExtractor{
		runner:  runner,
		rules:   NewRuleExtractor(catalog),
		catalog: catalog,
		cache:   map[string]Details{},
	}, nil
}

func (m *ModelExtractor) Extract(ctx context.Context, text string, now time.Time) (Details, error) {
	ruled, err := m.rules.Extract(ctx, text, now)
	if err != nil {
		return Details{}, err
	}

	loc := m.catalog.Location()
	key := now.In(loc).Format("2006-01-02") + "|" + text
	if cached, ok := m.cached(key); ok {
		return cached, nil
	}

	modeled, err := m.invoke(ctx, text, now.In(loc))
	if err != nil {
		log.Warn().Err(err).Msg("model extraction failed, using rules")
		return ruled, nil
	}
	modeled.fill(ruled)
	m.store(key, modeled)
	return modeled, nil
}

func (m *ModelExtractor) invoke(ctx context.Context, text string, now time.Time) (Details, error) {
	practitioners := make([]map[string]string, 0, len(m.catalog.Practitioners()))
	for _, p := range m.catalog.Practitioners() {
		practitioners = append(practitioners, map[string]string{"name": p.Name, "specialization": p.Specialization})
	}
	input, err := json.Marshal(map[string]any{
		"message":       text,
		"today":         now.Format("2006-01-02 Monday"),
		"practitioners": practitioners,
	})
	if err != nil {
		return Details{}, fmt.Errorf("%w: marshal extractor payload: %v", contractx.ErrValidation, err)
	}

	out, err := m.runner.Invoke(ctx, map[string]any{"input": string(input)})
	if err != nil {
		return Details{}, fmt.Errorf("%w: extractor invoke: %v", contractx.ErrModelInvoke, err)
	}
	return toDetails(out, now.Location())
}

func toDetails(out extractorLLMOutput, loc *time.Location) (Details, error) {
	d := Details{
		PatientID:      strings.TrimSpace(out.PatientID),
		Practitioner:   strings.TrimSpace(out.Practitioner),
		Specialization: strings.TrimSpace(out.Specialization),
		AppointmentID:  strings.TrimPrefix(strings.TrimSpace(out.AppointmentID), "#"),
	}
	if d.PatientID != "" && !patientIDPattern.MatchString(d.PatientID) {
		return Details{}, fmt.Errorf("%w: patient_id=%q", contractx.ErrSchemaViolation, d.PatientID)
	}
	if raw := strings.TrimSpace(out.Date); raw != "" {
		t, err := time.ParseInLocation("2006-01-02", raw, loc)
		if err != nil {
			return Details{}, fmt.Errorf("%w: date=%q", contractx.ErrSchemaViolation, raw)
		}
		d.Date = t
	}
	if raw := strings.TrimSpace(out.Time); raw != "" {
		t, err := time.Parse("15:04", raw)
		if err != nil {
			return Details{}, fmt.Errorf("%w: time=%q", contractx.ErrSchemaViolation, raw)
		}
		d.Clock = time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute
		d.HasClock = true
	}
	return d, nil
}

func (m *ModelExtractor) cached(key string) (Details, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.cache[key]
	return d, ok
}

func (m *ModelExtractor) store(key string, d Details) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cache[key]; ok {
		return
	}
	if len(m.order) >= extractorCacheSize {
		delete(m.cache, m.order[0])
		m.order = m.order[1:]
	}
	m.cache[key] = d
	m.order = append(m.order, key)
}
