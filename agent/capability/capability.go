// Package capability decides once per process whether the backend can carry
// the classifier/specialist split or the advisor must run a single
// combined role.
package capability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Farm-Advisor/agent/contract"
)

type Mode string

const (
	ModeAuto     Mode = "auto"
	ModeRich     Mode = "rich"
	ModeDegraded Mode = "degraded"
)

type Config struct {
	Mode                 Mode          `envconfig:"MODE" split_words:"true" default:"auto"`
	Timeout              time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"40s"`
	AvailabilityAttempts int           `envconfig:"AVAILABILITY_ATTEMPTS" split_words:"true" default:"3"`
	AvailabilityBackoff  time.Duration `envconfig:"AVAILABILITY_BACKOFF" split_words:"true" default:"3s"`
}

type Capability struct {
	Available        bool   `json:"available"`
	ToolCalling      bool   `json:"tool_calling"`
	StructuredOutput bool   `json:"structured_output"`
	Model            string `json:"model"`
	// MatchedModel is the listed id that satisfied the availability check.
	MatchedModel string `json:"matched_model,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// Rich reports whether the dispatch graph with classifier and specialists
// should run.
func (c Capability) Rich() bool {
	return c.Available && (c.ToolCalling || c.StructuredOutput)
}

// Prober runs the availability check and the two capability checks. The
// first Capability call probes; later calls return the cached result.
type Prober struct {
	client *openaisdk.Client
	model  string
	cfg    Config
	sleep  func(ctx context.Context, d time.Duration) error

	once   sync.Once
	result Capability
}

func NewProber(client *openaisdk.Client, model string, cfg Config) *Prober {
	if cfg.AvailabilityAttempts <= 0 {
		cfg.AvailabilityAttempts = 1
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeAuto
	}
	return &Prober{
		client: client,
		model:  strings.TrimSpace(model),
		cfg:    cfg,
		sleep:  sleepCtx,
	}
}

func (p *Prober) Capability(ctx context.Context) Capability {
	p.once.Do(func() {
		p.result = p.Probe(ctx)
		log.Info().
			Str("model", p.result.Model).
			Bool("available", p.result.Available).
			Bool("tool_calling", p.result.ToolCalling).
			Bool("structured_output", p.result.StructuredOutput).
			Bool("rich", p.result.Rich()).
			Str("reason", p.result.Reason).
			Msg("backend capability resolved")
	})
	return p.result
}

// Probe runs every check without caching.
func (p *Prober) Probe(ctx context.Context) Capability {
	out := Capability{Model: p.model}

	switch p.cfg.Mode {
	case ModeRich:
		out.Available, out.StructuredOutput = true, true
		out.Reason = "forced rich mode"
		return out
	case ModeDegraded:
		out.Available = true
		out.Reason = "forced degraded mode"
		return out
	}

	matched, err := p.CheckAvailability(ctx)
	if err != nil {
		log.Warn().Err(err).Str("model", p.model).Msg("backend unavailable, using combined role")
		out.Reason = err.Error()
		return out
	}
	out.Available = true
	out.MatchedModel = matched

	err = p.probeToolCalling(ctx)
	if err == nil {
		out.ToolCalling = true
		return out
	}
	log.Warn().Err(err).Str("model", p.model).Msg("tool calling probe failed")

	err = p.probeStructuredOutput(ctx)
	if err == nil {
		out.StructuredOutput = true
		return out
	}
	log.Warn().Err(err).Str("model", p.model).Msg("structured output probe failed")
	out.Reason = "backend supports neither tool calling nor structured output"
	return out
}

// CheckAvailability lists the backend's models and returns the id that
// matches the configured model, retrying the listing a few times.
func (p *Prober) CheckAvailability(ctx context.Context) (string, error) {
	if p.model == "" {
		return "", fmt.Errorf("%w: model name is empty", contractx.ErrBackendUnavailable)
	}

	var ids []string
	var lastErr error
	for attempt := 1; attempt <= p.cfg.AvailabilityAttempts; attempt++ {
		if attempt > 1 {
			if err := p.sleep(ctx, p.cfg.AvailabilityBackoff); err != nil {
				return "", fmt.Errorf("%w: %v", contractx.ErrBackendUnavailable, err)
			}
		}

		ids, lastErr = p.listModels(ctx)
		if lastErr == nil {
			break
		}
		log.Warn().Err(lastErr).Int("attempt", attempt).Msg("model listing failed")
	}
	if lastErr != nil {
		return "", fmt.Errorf("%w: list models: %v", contractx.ErrBackendUnavailable, lastErr)
	}

	matched, ok := MatchModel(p.model, ids)
	if !ok {
		return "", fmt.Errorf("%w: model %q not found", contractx.ErrBackendUnavailable, p.model)
	}
	if matched != p.model {
		log.Warn().Str("model", p.model).Str("alternative", matched).Msg("exact model not listed, accepting alternative")
	}
	return matched, nil
}

// MatchModel accepts an exact id first, then any id containing the base
// name ("llama3.1:8b" has base "llama3").
func MatchModel(want string, ids []string) (string, bool) {
	for _, id := range ids {
		if id == want {
			return id, true
		}
	}

	base := want
	if i := strings.Index(base, ":"); i >= 0 {
		base = base[:i]
	}
	if i := strings.Index(base, "."); i >= 0 {
		base = base[:i]
	}
	if base == "" {
		return "", false
	}
	for _, id := range ids {
		if strings.Contains(id, base) {
			return id, true
		}
	}
	return "", false
}

func (p *Prober) listModels(ctx context.Context) ([]string, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	page, err := p.client.Models.List(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (p *Prober) probeToolCalling(ctx context.Context) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	_, err := p.client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model:     openaisdk.ChatModel(p.model),
		Messages:  []openaisdk.ChatCompletionMessageParamUnion{openaisdk.UserMessage("Hi")},
		MaxTokens: openaisdk.Int(20),
		Tools: []openaisdk.ChatCompletionToolParam{
			{
				Function: openaisdk.FunctionDefinitionParam{
					Name:        "get_weather",
					Description: openaisdk.String("Get the weather forecast"),
					Parameters: openaisdk.FunctionParameters{
						"type": "object",
						"properties": map[string]any{
							"location": map[string]any{
								"type":        "string",
								"description": "The city, e.g. Sfax",
							},
						},
						"required": []string{"location"},
					},
				},
			},
		},
	})
	return err
}

var errProbeField = errors.New("probe field missing")

func (p *Prober) probeStructuredOutput(ctx context.Context) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	resp, err := p.client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(p.model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.UserMessage(`Return only this JSON object: {"name": "Amel", "age": 30, "is_student": false}`),
		},
		MaxTokens: openaisdk.Int(100),
		ResponseFormat: openaisdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openaisdk.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return err
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("%w: no choices", errProbeField)
	}

	var rec map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp.Choices[0].Message.Content)), &rec); err != nil {
		return fmt.Errorf("decode probe response: %w", err)
	}
	if _, ok := rec["name"]; !ok {
		return errProbeField
	}
	return nil
}

func (p *Prober) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.cfg.Timeout)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
