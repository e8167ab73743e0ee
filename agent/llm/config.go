package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Farm-Advisor/agent/contract"
	statex "github.com/tanpawarit/Chative-Farm-Advisor/agent/state"
	ollamax "github.com/tanpawarit/Chative-Farm-Advisor/pkg/ollama"
)

// extractionTemperatureBoost nudges extraction away from copying the user
// verbatim.
const extractionTemperatureBoost = 0.1

type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"http://localhost:11434/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" default:"ollama"`
	Model              string        `envconfig:"MODEL" split_words:"true" default:"llama3"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"1000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.2"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"90s"`

	SupervisorModel     string `envconfig:"SUPERVISOR_MODEL" split_words:"true"`
	ConversationalModel string `envconfig:"CONVERSATIONAL_MODEL" split_words:"true"`
	ExtractionModel     string `envconfig:"EXTRACTION_MODEL" split_words:"true"`
	RecommendationModel string `envconfig:"RECOMMENDATION_MODEL" split_words:"true"`
	PlanningModel       string `envconfig:"PLANNING_MODEL" split_words:"true"`

	SupervisorTemperature     float32 `envconfig:"SUPERVISOR_TEMPERATURE" split_words:"true" default:"-1"`
	ConversationalTemperature float32 `envconfig:"CONVERSATIONAL_TEMPERATURE" split_words:"true" default:"-1"`
	ExtractionTemperature     float32 `envconfig:"EXTRACTION_TEMPERATURE" split_words:"true" default:"-1"`
	RecommendationTemperature float32 `envconfig:"RECOMMENDATION_TEMPERATURE" split_words:"true" default:"-1"`
	PlanningTemperature       float32 `envconfig:"PLANNING_TEMPERATURE" split_words:"true" default:"-1"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("%w: backend base url is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	if c.MaxCompletionToken <= 0 {
		return fmt.Errorf("%w: max completion token must be positive", contractx.ErrValidation)
	}
	return nil
}

// BackendFor resolves the backend settings for one role. The supervisor
// settings also serve the direct_response role, which answers in its voice.
func (c Config) BackendFor(role statex.Role) ollamax.Config {
	modelName := strings.TrimSpace(c.Model)
	temp := c.Temperature

	override := func(m string, t float32) {
		if v := strings.TrimSpace(m); v != "" {
			modelName = v
		}
		if t >= 0 {
			temp = t
		}
	}

	switch role {
	case statex.RoleSupervisor, statex.RoleDirectResponse:
		override(c.SupervisorModel, c.SupervisorTemperature)
	case statex.RoleConversational:
		override(c.ConversationalModel, c.ConversationalTemperature)
	case statex.RoleDataExtraction:
		temp = c.Temperature + extractionTemperatureBoost
		override(c.ExtractionModel, c.ExtractionTemperature)
	case statex.RoleRecommendation:
		override(c.RecommendationModel, c.RecommendationTemperature)
	case statex.RolePlanning:
		override(c.PlanningModel, c.PlanningTemperature)
	}

	maxCompletionToken := c.MaxCompletionToken
	return ollamax.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
	}
}
