package llm

import (
	"errors"
	"testing"

	contractx "github.com/tanpawarit/Chative-Farm-Advisor/agent/contract"
	statex "github.com/tanpawarit/Chative-Farm-Advisor/agent/state"
)

func baseConfig() Config {
	return Config{
		BaseURL:                   "http://localhost:11434/v1",
		APIKey:                    "ollama",
		Model:                     "llama3",
		MaxCompletionToken:        1000,
		Temperature:               0.2,
		SupervisorTemperature:     -1,
		ConversationalTemperature: -1,
		ExtractionTemperature:     -1,
		RecommendationTemperature: -1,
		PlanningTemperature:       -1,
	}
}

func TestBackendForDefaults(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	got := cfg.BackendFor(statex.RoleConversational)
	if got.Model != "llama3" {
		t.Fatalf("Model = %q, want llama3", got.Model)
	}
	if got.Temperature != 0.2 {
		t.Fatalf("Temperature = %v, want 0.2", got.Temperature)
	}
	if got.MaxCompletionToken == nil || *got.MaxCompletionToken != 1000 {
		t.Fatalf("MaxCompletionToken = %v, want 1000", got.MaxCompletionToken)
	}
}

func TestBackendForExtractionRunsWarmer(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	got := cfg.BackendFor(statex.RoleDataExtraction)
	if got.Temperature <= cfg.Temperature {
		t.Fatalf("Temperature = %v, want above %v", got.Temperature, cfg.Temperature)
	}

	cfg.ExtractionTemperature = 0
	if got := cfg.BackendFor(statex.RoleDataExtraction); got.Temperature != 0 {
		t.Fatalf("override Temperature = %v, want 0", got.Temperature)
	}
}

func TestBackendForRoleOverrides(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.SupervisorModel = "qwen2.5:0.5b"
	cfg.PlanningModel = "llama3.1:8b"

	if got := cfg.BackendFor(statex.RoleSupervisor).Model; got != "qwen2.5:0.5b" {
		t.Fatalf("supervisor Model = %q", got)
	}
	if got := cfg.BackendFor(statex.RoleDirectResponse).Model; got != "qwen2.5:0.5b" {
		t.Fatalf("direct Model = %q", got)
	}
	if got := cfg.BackendFor(statex.RolePlanning).Model; got != "llama3.1:8b" {
		t.Fatalf("planning Model = %q", got)
	}
	if got := cfg.BackendFor(statex.RoleRecommendation).Model; got != "llama3" {
		t.Fatalf("recommendation Model = %q", got)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	cfg.Model = " "
	if err := cfg.Validate(); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("Validate() error = %v, want ErrValidation", err)
	}
}
