// Package ollama builds clients for an OpenAI-compatible chat backend.
// The defaults target a local Ollama server's /v1 endpoint, but any
// compatible gateway works.
package ollama

import (
	"context"
	"fmt"
	"strings"
	"time"

	openaimodel "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const defaultAPIKey = "ollama"

type ChatModelBuilder interface {
	New(ctx context.Context) (model.ToolCallingChatModel, error)
}

var _ ChatModelBuilder = (*Config)(nil)

type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"http://localhost:11434/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" default:"ollama"`
	Model              string        `envconfig:"MODEL" split_words:"true" default:"llama3"`
	MaxCompletionToken *int          `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"1000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.2"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"90s"`
}

// New returns an eino chat model bound to the configured backend.
// Timeout here is the transport ceiling; per-call deadlines are applied by
// the caller.
func (c *Config) New(ctx context.Context) (model.ToolCallingChatModel, error) {
	modelName := strings.TrimSpace(c.Model)
	if modelName == "" {
		return nil, fmt.Errorf("ollama: model name is required")
	}

	conf := &openaimodel.ChatModelConfig{
		BaseURL:     strings.TrimRight(c.BaseURL, "/"),
		APIKey:      apiKey(c.APIKey),
		Model:       modelName,
		MaxTokens:   c.MaxCompletionToken,
		Temperature: &c.Temperature,
		Timeout:     c.Timeout,
	}

	m, err := openaimodel.NewChatModel(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("ollama: create chat model: %w", err)
	}

	return m, nil
}

// NewClient creates a raw OpenAI SDK client for the same backend. It is used
// for capability probing and model listing, where the eino abstraction hides
// the HTTP status we need. SDK-level retries are disabled; callers own retry.
func NewClient(cfg Config, opts ...option.RequestOption) *openaisdk.Client {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey(cfg.APIKey)),
		option.WithMaxRetries(0),
	}

	if trimmed := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); trimmed != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(trimmed+"/"))
	}
	if cfg.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(cfg.Timeout))
	}
	reqOpts = append(reqOpts, opts...)

	client := openaisdk.NewClient(reqOpts...)
	return &client
}

func apiKey(raw string) string {
	if v := strings.TrimSpace(raw); v != "" {
		return v
	}
	return defaultAPIKey
}
