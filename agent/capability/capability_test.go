package capability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	contractx "github.com/tanpawarit/Chative-Farm-Advisor/agent/contract"
	ollamax "github.com/tanpawarit/Chative-Farm-Advisor/pkg/ollama"
)

type fakeBackend struct {
	models       string
	toolsStatus  int
	jsonContent  string
	listFailures int32

	listCalls atomic.Int32
	chatCalls atomic.Int32
}

func (f *fakeBackend) handler(t *testing.T) http.Handler {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/models", func(w http.ResponseWriter, r *http.Request) {
		n := f.listCalls.Add(1)
		if n <= f.listFailures {
			http.Error(w, `{"error":{"message":"starting"}}`, http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"object":"list","data":[`+f.models+`]}`)
	})
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		f.chatCalls.Add(1)
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")

		if strings.Contains(string(body), `"tools"`) {
			if f.toolsStatus != http.StatusOK {
				w.WriteHeader(f.toolsStatus)
				_, _ = io.WriteString(w, `{"error":{"message":"model does not support tools"}}`)
				return
			}
			_, _ = io.WriteString(w, completion("Hello"))
			return
		}
		_, _ = io.WriteString(w, completion(f.jsonContent))
	})
	return mux
}

func completion(content string) string {
	escaped := strings.ReplaceAll(content, `"`, `\"`)
	return `{"id":"c1","object":"chat.completion","created":0,"model":"llama3","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"` + escaped + `"}}]}`
}

func newTestProber(t *testing.T, backend *fakeBackend, model string, cfg Config) *Prober {
	t.Helper()

	srv := httptest.NewServer(backend.handler(t))
	t.Cleanup(srv.Close)

	client := ollamax.NewClient(ollamax.Config{BaseURL: srv.URL, Timeout: 5 * time.Second})
	cfg.AvailabilityBackoff = 0
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	return NewProber(client, model, cfg)
}

func TestProbeToolCallingSupported(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{models: `{"id":"llama3:latest","object":"model"}`, toolsStatus: http.StatusOK}
	p := newTestProber(t, backend, "llama3", Config{AvailabilityAttempts: 3})

	got := p.Capability(context.Background())
	if !got.Available || !got.ToolCalling {
		t.Fatalf("Capability() = %+v, want available with tool calling", got)
	}
	if !got.Rich() {
		t.Fatalf("Rich() = false, want true")
	}
	if got.MatchedModel != "llama3:latest" {
		t.Fatalf("MatchedModel = %q, want llama3:latest", got.MatchedModel)
	}
}

func TestProbeFallsBackToStructuredOutput(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{
		models:      `{"id":"llama3","object":"model"}`,
		toolsStatus: http.StatusBadRequest,
		jsonContent: `{"name": "Amel", "age": 30}`,
	}
	p := newTestProber(t, backend, "llama3", Config{AvailabilityAttempts: 1})

	got := p.Probe(context.Background())
	if got.ToolCalling {
		t.Fatalf("ToolCalling = true, want false")
	}
	if !got.StructuredOutput || !got.Rich() {
		t.Fatalf("Probe() = %+v, want structured output", got)
	}
}

func TestProbeDegradesWhenNeitherCheckPasses(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{
		models:      `{"id":"llama3","object":"model"}`,
		toolsStatus: http.StatusBadRequest,
		jsonContent: `Sure! Here is a person called Amel.`,
	}
	p := newTestProber(t, backend, "llama3", Config{AvailabilityAttempts: 1})

	got := p.Probe(context.Background())
	if got.Rich() {
		t.Fatalf("Rich() = true, want degraded: %+v", got)
	}
	if !got.Available {
		t.Fatalf("Available = false, want true")
	}
}

func TestProbeUnavailableModelSkipsChecks(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{models: `{"id":"mistral:7b","object":"model"}`, toolsStatus: http.StatusOK}
	p := newTestProber(t, backend, "llama3", Config{AvailabilityAttempts: 1})

	got := p.Probe(context.Background())
	if got.Available || got.Rich() {
		t.Fatalf("Probe() = %+v, want unavailable", got)
	}
	if n := backend.chatCalls.Load(); n != 0 {
		t.Fatalf("chat calls = %d, want 0", n)
	}
}

func TestCheckAvailabilityRetriesListing(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{models: `{"id":"llama3","object":"model"}`, listFailures: 2}
	p := newTestProber(t, backend, "llama3", Config{AvailabilityAttempts: 3})

	matched, err := p.CheckAvailability(context.Background())
	if err != nil {
		t.Fatalf("CheckAvailability() error = %v", err)
	}
	if matched != "llama3" {
		t.Fatalf("CheckAvailability() = %q, want llama3", matched)
	}
	if n := backend.listCalls.Load(); n != 3 {
		t.Fatalf("list calls = %d, want 3", n)
	}
}

func TestCheckAvailabilityExhaustsAttempts(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{models: `{"id":"llama3","object":"model"}`, listFailures: 10}
	p := newTestProber(t, backend, "llama3", Config{AvailabilityAttempts: 3})

	_, err := p.CheckAvailability(context.Background())
	if !errors.Is(err, contractx.ErrBackendUnavailable) {
		t.Fatalf("CheckAvailability() error = %v, want ErrBackendUnavailable", err)
	}
}

func TestCapabilityIsCached(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{models: `{"id":"llama3","object":"model"}`, toolsStatus: http.StatusOK}
	p := newTestProber(t, backend, "llama3", Config{AvailabilityAttempts: 1})

	first := p.Capability(context.Background())
	second := p.Capability(context.Background())
	if first != second {
		t.Fatalf("Capability() changed between calls: %+v vs %+v", first, second)
	}
	if n := backend.listCalls.Load(); n != 1 {
		t.Fatalf("list calls = %d, want 1", n)
	}
}

func TestForcedModesSkipNetwork(t *testing.T) {
	t.Parallel()

	rich := NewProber(nil, "llama3", Config{Mode: ModeRich}).Probe(context.Background())
	if !rich.Rich() {
		t.Fatalf("forced rich Probe() = %+v", rich)
	}
	degraded := NewProber(nil, "llama3", Config{Mode: ModeDegraded}).Probe(context.Background())
	if degraded.Rich() {
		t.Fatalf("forced degraded Probe() = %+v", degraded)
	}
}

func TestMatchModel(t *testing.T) {
	t.Parallel()

	ids := []string{"mistral:7b", "llama3:latest"}
	if got, ok := MatchModel("llama3.1:8b", ids); !ok || got != "llama3:latest" {
		t.Fatalf("MatchModel(llama3.1:8b) = %q, %v", got, ok)
	}
	if got, ok := MatchModel("mistral:7b", ids); !ok || got != "mistral:7b" {
		t.Fatalf("MatchModel(mistral:7b) = %q, %v", got, ok)
	}
	if _, ok := MatchModel("qwen2", ids); ok {
		t.Fatalf("MatchModel(qwen2) matched unexpectedly")
	}
}
