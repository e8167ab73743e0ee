package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	goopenai "github.com/meguminnnnnnnnn/go-openai"
	openaisdk "github.com/openai/openai-go"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Farm-Advisor/agent/contract"
)

// Policy bounds a single backend call.
type Policy struct {
	Attempts            int           `envconfig:"ATTEMPTS" split_words:"true" default:"2"`
	Backoff             time.Duration `envconfig:"BACKOFF" split_words:"true" default:"3s"`
	BaseTimeout         time.Duration `envconfig:"BASE_TIMEOUT" split_words:"true" default:"60s"`
	LongTimeout         time.Duration `envconfig:"LONG_TIMEOUT" split_words:"true" default:"90s"`
	LongInputTokens     int           `envconfig:"LONG_INPUT_TOKENS" split_words:"true" default:"1000"`
	TrimInputTokens     int           `envconfig:"TRIM_INPUT_TOKENS" split_words:"true" default:"2000"`
	TrimmedOutputTokens int           `envconfig:"TRIMMED_OUTPUT_TOKENS" split_words:"true" default:"1000"`
	TimeoutGrowth       float64       `envconfig:"TIMEOUT_GROWTH" split_words:"true" default:"1.5"`
}

func DefaultPolicy() Policy {
	return Policy{
		Attempts:            2,
		Backoff:             3 * time.Second,
		BaseTimeout:         60 * time.Second,
		LongTimeout:         90 * time.Second,
		LongInputTokens:     1000,
		TrimInputTokens:     2000,
		TrimmedOutputTokens: 1000,
		TimeoutGrowth:       1.5,
	}
}

// ApproxTokens estimates prompt size at four characters per token.
func ApproxTokens(input []*schema.Message) int {
	chars := 0
	for _, msg := range input {
		if msg == nil {
			continue
		}
		chars += utf8.RuneCountInString(msg.Content)
	}
	return chars / 4
}

// TimeoutFor returns the first-attempt deadline for an input of the given size.
func (p Policy) TimeoutFor(tokens int) time.Duration {
	if tokens > p.LongInputTokens && p.LongTimeout > 0 {
		return p.LongTimeout
	}
	return p.BaseTimeout
}

// CeilingTimeout is the longest per-attempt deadline Generate can grow to
// after every attempt timed out.
func (p Policy) CeilingTimeout() time.Duration {
	longest := max(p.BaseTimeout, p.LongTimeout)
	growth := max(p.TimeoutGrowth, 1)
	for attempt := 2; attempt <= p.Attempts; attempt++ {
		longest = time.Duration(float64(longest) * growth)
	}
	return longest
}

// TransportTimeout lifts a configured client timeout to the policy ceiling
// so the HTTP client never cuts a grown deadline short. Zero stays zero.
func (p Policy) TransportTimeout(configured time.Duration) time.Duration {
	if configured <= 0 {
		return configured
	}
	return max(configured, p.CeilingTimeout())
}

// ResilientModel wraps a chat model with per-attempt deadlines, output
// trimming for long prompts and a bounded retry. Each attempt regenerates
// from the same input, so a retry never repeats a side effect.
type ResilientModel struct {
	inner  model.ToolCallingChatModel
	policy Policy
	name   string
	sleep  func(ctx context.Context, d time.Duration) error
}

var _ model.ToolCallingChatModel = (*ResilientModel)(nil)

func NewResilientModel(name string, inner model.ToolCallingChatModel, policy Policy) *ResilientModel {
	if policy.Attempts <= 0 {
		policy.Attempts = 1
	}
	if policy.TimeoutGrowth < 1 {
		policy.TimeoutGrowth = 1
	}
	return &ResilientModel{inner: inner, policy: policy, name: name, sleep: sleepCtx}
}

func (m *ResilientModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	tokens := ApproxTokens(input)
	timeout := m.policy.TimeoutFor(tokens)
	callOpts := m.trimOptions(tokens, opts)

	var lastErr error
	timedOut := false
	for attempt := 1; attempt <= m.policy.Attempts; attempt++ {
		if attempt > 1 {
			if err := m.sleep(ctx, m.policy.Backoff); err != nil {
				break
			}
		}

		out, err := m.generateOnce(ctx, timeout, input, callOpts)
		if err == nil {
			return out, nil
		}
		lastErr = err
		timedOut = isTimeout(err)
		transient := isTransient(err)

		log.Warn().
			Err(err).
			Str("model", m.name).
			Int("attempt", attempt).
			Int("approx_tokens", tokens).
			Dur("timeout", timeout).
			Bool("timed_out", timedOut).
			Bool("transient", transient).
			Msg("backend call failed")

		if ctx.Err() != nil || !transient {
			break
		}
		if timedOut && timeout > 0 {
			timeout = time.Duration(float64(timeout) * m.policy.TimeoutGrowth)
		}
	}

	if timedOut {
		return nil, fmt.Errorf("%w: %w: %s: %v", contractx.ErrBackendUnavailable, contractx.ErrBackendTimeout, m.name, lastErr)
	}
	return nil, fmt.Errorf("%w: %s: %v", contractx.ErrBackendUnavailable, m.name, lastErr)
}

func (m *ResilientModel) generateOnce(
	ctx context.Context,
	timeout time.Duration,
	input []*schema.Message,
	opts []model.Option,
) (*schema.Message, error) {
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	out, err := m.inner.Generate(callCtx, input, opts...)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("%w: empty response", contractx.ErrModelInvoke)
	}
	return out, nil
}

// Stream passes through with the same deadline and trimming but no retry;
// a partially consumed stream cannot be replayed.
func (m *ResilientModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	tokens := ApproxTokens(input)
	sr, err := m.inner.Stream(ctx, input, m.trimOptions(tokens, opts)...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", contractx.ErrBackendUnavailable, m.name, err)
	}
	return sr, nil
}

func (m *ResilientModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	inner, err := m.inner.WithTools(tools)
	if err != nil {
		return nil, err
	}
	return &ResilientModel{inner: inner, policy: m.policy, name: m.name, sleep: m.sleep}, nil
}

func (m *ResilientModel) trimOptions(tokens int, opts []model.Option) []model.Option {
	if m.policy.TrimInputTokens <= 0 || tokens <= m.policy.TrimInputTokens || m.policy.TrimmedOutputTokens <= 0 {
		return opts
	}
	out := make([]model.Option, 0, len(opts)+1)
	out = append(out, opts...)
	return append(out, model.WithMaxTokens(m.policy.TrimmedOutputTokens))
}

// isTransient reports whether another attempt could succeed. A backend that
// answered with a client error (bad request, auth, unknown model) answers
// the same way again; timeouts, dropped connections, 408, 429 and 5xx do not.
func isTransient(err error) bool {
	status, ok := httpStatus(err)
	if !ok {
		return true
	}
	return status == http.StatusRequestTimeout ||
		status == http.StatusTooManyRequests ||
		status >= http.StatusInternalServerError
}

func httpStatus(err error) (int, bool) {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return apiErr.HTTPStatusCode, true
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return reqErr.HTTPStatusCode, true
	}
	var sdkErr *openaisdk.Error
	if errors.As(err, &sdkErr) && sdkErr.StatusCode > 0 {
		return sdkErr.StatusCode, true
	}
	return 0, false
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
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
