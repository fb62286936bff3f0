package llm

import (
	"errors"
	"testing"

	contractx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/contract"
)

func TestOpenRouterForOverrides(t *testing.T) {
	t.Parallel()

	cfg := Config{
		APIKey:                "key",
		Model:                 "base-model",
		Temperature:           0.2,
		MaxCompletionToken:    300,
		SupervisorModel:       "router-model",
		SupervisorTemperature: -1,
		ExtractorTemperature:  0,
		FAQTemperature:        -1,
	}

	sup := cfg.OpenRouterFor(RoleSupervisor)
	if sup.Model != "router-model" {
		t.Fatalf("supervisor model = %q", sup.Model)
	}
	if sup.Temperature != 0.2 {
		t.Fatalf("supervisor temperature = %v, want default 0.2", sup.Temperature)
	}

	ext := cfg.OpenRouterFor(RoleExtractor)
	if ext.Model != "base-model" {
		t.Fatalf("extractor model = %q", ext.Model)
	}
	if ext.Temperature != 0 {
		t.Fatalf("extractor temperature = %v, want override 0", ext.Temperature)
	}
	if ext.MaxCompletionToken == nil || *ext.MaxCompletionToken != 300 {
		t.Fatalf("unexpected max tokens: %v", ext.MaxCompletionToken)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	if err := (Config{}).Validate(); err != nil {
		t.Fatalf("rule-based config must validate: %v", err)
	}
	if (Config{}).Enabled() {
		t.Fatal("config without api key must be disabled")
	}
	err := Config{APIKey: "key"}.Validate()
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
