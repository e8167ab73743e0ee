package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/tanpawarit/Chative-Farm-Advisor/agent/agents/specialist"
	contractx "github.com/tanpawarit/Chative-Farm-Advisor/agent/contract"
	llmx "github.com/tanpawarit/Chative-Farm-Advisor/agent/llm"
	statex "github.com/tanpawarit/Chative-Farm-Advisor/agent/state"
	"github.com/tanpawarit/Chative-Farm-Advisor/repository"
)

const (
	extractionReply     = `Thanks, noted! {"location": "Medenine", "surface_area": 15, "soil_type": "sandy", "current_plants": "mangoes"}`
	recommendationReply = "Mangoes and date palms suit sandy soil in Medenine.\n" +
		`{"recommended_plants": ["mangoes", "date palms"], "irrigation_methods": ["drip"], "reasoning": "sandy soil drains fast"}`
)

type fakeToolCallingModel struct {
	mu        sync.Mutex
	responses []string
	failFirst int
	idx       int
	inputs    [][]*schema.Message
}

func (f *fakeToolCallingModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.inputs = append(f.inputs, input)
	if f.failFirst > 0 {
		f.failFirst--
		return nil, errors.New("connection reset by peer")
	}
	if f.idx >= len(f.responses) {
		return nil, errors.New("no fake response left")
	}
	msg := schema.AssistantMessage(f.responses[f.idx], nil)
	f.idx++
	return msg, nil
}

func (f *fakeToolCallingModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not implemented in fake model")
}

func (f *fakeToolCallingModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	return f, nil
}

func (f *fakeToolCallingModel) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inputs)
}

func (f *fakeToolCallingModel) sawText(text string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, input := range f.inputs {
		for _, msg := range input {
			if strings.Contains(msg.Content, text) {
				return true
			}
		}
	}
	return false
}

type fakeModels struct {
	supervisor     *fakeToolCallingModel
	conversational *fakeToolCallingModel
	extraction     *fakeToolCallingModel
	recommendation *fakeToolCallingModel
	planning       *fakeToolCallingModel
}

func newFakeModels() *fakeModels {
	return &fakeModels{
		supervisor:     &fakeToolCallingModel{},
		conversational: &fakeToolCallingModel{},
		extraction:     &fakeToolCallingModel{},
		recommendation: &fakeToolCallingModel{},
		planning:       &fakeToolCallingModel{},
	}
}

// countingRepository counts farm writes on top of the in-memory repository.
type countingRepository struct {
	*repository.MemoryRepository

	mu         sync.Mutex
	farmWrites int
}

func (r *countingRepository) SaveFarmFromExtraction(ctx context.Context, farm *repository.Farm) (*repository.Farm, error) {
	r.mu.Lock()
	r.farmWrites++
	r.mu.Unlock()
	return r.MemoryRepository.SaveFarmFromExtraction(ctx, farm)
}

type testRig struct {
	models  *fakeModels
	store   *statex.MemoryStore
	repo    *countingRepository
	advisor *Advisor
}

func newRig(t *testing.T, cfg Config) *testRig {
	t.Helper()
	return newRigWith(t, cfg, newFakeModels(), statex.NewMemoryStore(), &countingRepository{MemoryRepository: repository.NewMemoryRepository()}, llmx.Policy{Attempts: 1})
}

func newRigWith(t *testing.T, cfg Config, models *fakeModels, store *statex.MemoryStore, repo *countingRepository, policy llmx.Policy) *testRig {
	t.Helper()

	wrap := func(name string, m *fakeToolCallingModel) einomodel.ToolCallingChatModel {
		return llmx.NewResilientModel(name, m, policy)
	}
	registry, err := specialist.NewRegistryWithModels(context.Background(), specialist.Models{
		Supervisor:     wrap("supervisor", models.supervisor),
		Conversational: wrap("conversational", models.conversational),
		Extraction:     wrap("data_extraction", models.extraction),
		Recommendation: wrap("recommendation", models.recommendation),
		Planning:       wrap("planning", models.planning),
	}, specialist.Options{Repository: repo, Policy: policy, Degraded: cfg.Degraded})
	if err != nil {
		t.Fatalf("NewRegistryWithModels() error = %v", err)
	}

	advisor, err := New(store, registry, repo, nil, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	advisor.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }

	return &testRig{models: models, store: store, repo: repo, advisor: advisor}
}

func (r *testRig) session(t *testing.T, sessionID string) *statex.ConversationState {
	t.Helper()
	st, err := r.store.Load(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("store.Load(%q) error = %v", sessionID, err)
	}
	return st
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, nil, nil, nil, Config{}); err == nil {
		t.Fatal("New() expected error without store")
	}
	if _, err := New(statex.NewMemoryStore(), nil, nil, nil, Config{}); err == nil {
		t.Fatal("New() expected error without registry")
	}
}

func TestAdviseRejectsEmptyMessage(t *testing.T) {
	t.Parallel()

	rig := newRig(t, Config{})
	if _, err := rig.advisor.Advise(context.Background(), "  ", ""); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("Advise(empty) error = %v, want ErrInvalidMessage", err)
	}
	if rig.models.supervisor.callCount() != 0 {
		t.Fatal("Advise(empty) reached the backend")
	}
}

func TestAdviseGreetingStaysConversational(t *testing.T) {
	t.Parallel()

	rig := newRig(t, Config{})
	rig.models.supervisor.responses = []string{"conversational"}
	rig.models.conversational.responses = []string{"Hello! I'm your farming assistant. How can I help today?"}

	advice, err := rig.advisor.Advise(context.Background(), "Hello", "")
	if err != nil {
		t.Fatalf("Advise() error = %v", err)
	}
	if advice.SessionID == "" {
		t.Fatal("Advise() did not assign a session id")
	}
	if advice.ActiveRole != statex.RoleConversational {
		t.Fatalf("ActiveRole = %s, want conversational", advice.ActiveRole)
	}
	if rig.models.extraction.callCount() != 0 {
		t.Fatal("extraction ran on a greeting")
	}

	st := rig.session(t, advice.SessionID)
	if st.FarmerID != 0 || st.FarmID != 0 || len(st.Messages) != 2 {
		t.Fatalf("session after greeting = %#v", st)
	}
	if st.ActiveRole != statex.RoleHuman {
		t.Fatalf("stored ActiveRole = %s, want human", st.ActiveRole)
	}
}

func TestAdviseExtractionThenRecommendation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rig := newRig(t, Config{})
	rig.models.supervisor.responses = []string{"data_extraction", "recommendation", "conversational"}
	rig.models.extraction.responses = []string{extractionReply}
	rig.models.recommendation.responses = []string{recommendationReply}
	rig.models.conversational.responses = []string{"You're welcome, good luck with the planting!"}

	first, err := rig.advisor.Advise(ctx, "I have a 15 hectare farm in Medenine, sandy soil, I want to plant mangoes", "")
	if err != nil {
		t.Fatalf("Advise(extraction) error = %v", err)
	}
	if first.ActiveRole != statex.RoleDataExtraction || first.AssistantText != "Thanks, noted!" {
		t.Fatalf("first advice = %#v", first)
	}
	want := statex.FarmFacts{Location: "Medenine", SurfaceArea: 15, SoilType: "sandy", CurrentPlants: "mangoes"}
	if first.ExtractedData != want {
		t.Fatalf("ExtractedData = %#v, want %#v", first.ExtractedData, want)
	}

	st := rig.session(t, first.SessionID)
	farm, err := rig.repo.GetFarm(ctx, st.FarmID)
	if err != nil || farm == nil {
		t.Fatalf("GetFarm(%d) = %v, %v", st.FarmID, farm, err)
	}
	if farm.Location != "Medenine" || farm.SurfaceArea != 15 || farm.SoilType != "sandy" || farm.CurrentPlants != "mangoes" {
		t.Fatalf("farm = %#v", farm)
	}

	second, err := rig.advisor.Advise(ctx, "give me recommendations", first.SessionID)
	if err != nil {
		t.Fatalf("Advise(recommendation) error = %v", err)
	}
	if second.ActiveRole != statex.RoleRecommendation {
		t.Fatalf("ActiveRole = %s, want recommendation", second.ActiveRole)
	}
	if len(second.Recommendations) != 2 || second.Recommendations[0] != "mangoes" {
		t.Fatalf("Recommendations = %v", second.Recommendations)
	}
	if !rig.models.recommendation.sawText("Medenine") {
		t.Fatal("recommendation prompt did not carry the farm facts")
	}
	if second.ExtractedData != want {
		t.Fatalf("ExtractedData lost on next turn: %#v", second.ExtractedData)
	}

	third, err := rig.advisor.Advise(ctx, "thanks", first.SessionID)
	if err != nil {
		t.Fatalf("Advise(thanks) error = %v", err)
	}
	if third.ActiveRole != statex.RoleConversational {
		t.Fatalf("ActiveRole = %s, want conversational", third.ActiveRole)
	}
	recs, err := rig.repo.ListRecommendations(ctx, farm.ID)
	if err != nil {
		t.Fatalf("ListRecommendations() error = %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("recommendation rows = %d, want 1", len(recs))
	}
	if rig.models.recommendation.callCount() != 1 {
		t.Fatalf("recommendation calls = %d, want 1", rig.models.recommendation.callCount())
	}
}

func TestAdviseExtractionWithoutPayload(t *testing.T) {
	t.Parallel()

	rig := newRig(t, Config{})
	rig.models.supervisor.responses = []string{"data_extraction"}
	rig.models.extraction.responses = []string{"I could not find any farm details in that message."}

	advice, err := rig.advisor.Advise(context.Background(), "my farm is nice", "")
	if err != nil {
		t.Fatalf("Advise() error = %v", err)
	}
	if advice.AssistantText != contractx.ExtractionAcknowledgement {
		t.Fatalf("AssistantText = %q, want acknowledgement", advice.AssistantText)
	}
	if !advice.ExtractedData.IsEmpty() {
		t.Fatalf("ExtractedData = %#v, want empty", advice.ExtractedData)
	}
}

func TestAdviseBackendFailureApologizes(t *testing.T) {
	t.Parallel()

	rig := newRig(t, Config{})
	rig.models.supervisor.responses = []string{"planning"}
	rig.models.planning.failFirst = 1

	advice, err := rig.advisor.Advise(context.Background(), "plan my year", "")
	if err != nil {
		t.Fatalf("Advise() error = %v", err)
	}
	if advice.AssistantText != contractx.ApologyMessage {
		t.Fatalf("AssistantText = %q, want apology", advice.AssistantText)
	}
}

func TestAdviseRetryDoesNotDuplicateFarm(t *testing.T) {
	t.Parallel()

	models := newFakeModels()
	models.supervisor.responses = []string{"data_extraction"}
	models.extraction.responses = []string{extractionReply}
	models.extraction.failFirst = 1
	repo := &countingRepository{MemoryRepository: repository.NewMemoryRepository()}
	rig := newRigWith(t, Config{}, models, statex.NewMemoryStore(), repo, llmx.Policy{Attempts: 2})

	advice, err := rig.advisor.Advise(context.Background(), "I have a 15 hectare farm in Medenine", "")
	if err != nil {
		t.Fatalf("Advise() error = %v", err)
	}
	if models.extraction.callCount() != 2 {
		t.Fatalf("extraction attempts = %d, want 2", models.extraction.callCount())
	}
	if repo.farmWrites != 1 {
		t.Fatalf("farm writes = %d, want 1", repo.farmWrites)
	}
	if advice.ExtractedData.Location != "Medenine" {
		t.Fatalf("ExtractedData = %#v", advice.ExtractedData)
	}
}

func TestAdviseDegradedModeSkipsClassifier(t *testing.T) {
	t.Parallel()

	rig := newRig(t, Config{Degraded: true})
	rig.models.supervisor.responses = []string{"Sandy soil suits date palms well."}

	advice, err := rig.advisor.Advise(context.Background(), "what grows in sandy soil?", "")
	if err != nil {
		t.Fatalf("Advise() error = %v", err)
	}
	if advice.ActiveRole != statex.RoleDirectResponse {
		t.Fatalf("ActiveRole = %s, want direct_response", advice.ActiveRole)
	}
	if rig.models.supervisor.callCount() != 1 {
		t.Fatalf("supervisor calls = %d, want 1 (no classification)", rig.models.supervisor.callCount())
	}
	others := rig.models.conversational.callCount() + rig.models.extraction.callCount() +
		rig.models.recommendation.callCount() + rig.models.planning.callCount()
	if others != 0 {
		t.Fatalf("specialist calls in degraded mode = %d, want 0", others)
	}
}

func TestAdviseResumesFromConversationHistory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := &countingRepository{MemoryRepository: repository.NewMemoryRepository()}

	first := newRigWith(t, Config{}, newFakeModels(), statex.NewMemoryStore(), repo, llmx.Policy{Attempts: 1})
	first.models.supervisor.responses = []string{"conversational", "data_extraction"}
	first.models.conversational.responses = []string{"Hello! Tell me about your farm."}
	first.models.extraction.responses = []string{extractionReply}
	greeting, err := first.advisor.Advise(ctx, "Hello", "")
	if err != nil {
		t.Fatalf("Advise(greeting) error = %v", err)
	}
	advice, err := first.advisor.Advise(ctx, "I have a 15 hectare farm in Medenine", greeting.SessionID)
	if err != nil {
		t.Fatalf("Advise() error = %v", err)
	}

	// A fresh session store simulates an expired cache entry.
	second := newRigWith(t, Config{}, newFakeModels(), statex.NewMemoryStore(), repo, llmx.Policy{Attempts: 1})
	second.models.supervisor.responses = []string{"recommendation"}
	second.models.recommendation.responses = []string{recommendationReply}

	resumed, err := second.advisor.Advise(ctx, "what should I plant?", advice.SessionID)
	if err != nil {
		t.Fatalf("Advise(resume) error = %v", err)
	}
	if resumed.ActiveRole != statex.RoleRecommendation || len(resumed.Recommendations) == 0 {
		t.Fatalf("resumed advice = %#v", resumed)
	}
	if resumed.ExtractedData.Location != "Medenine" {
		t.Fatalf("ExtractedData not restored: %#v", resumed.ExtractedData)
	}
	if !second.models.supervisor.sawText("I have a 15 hectare farm in Medenine") {
		t.Fatal("classifier did not see the restored history")
	}
}

func TestAdviseSerializesTurnsPerSession(t *testing.T) {
	t.Parallel()

	const turns = 5
	rig := newRig(t, Config{})
	for i := 0; i < turns; i++ {
		rig.models.supervisor.responses = append(rig.models.supervisor.responses, "conversational")
		rig.models.conversational.responses = append(rig.models.conversational.responses, "Sure.")
	}

	var wg sync.WaitGroup
	errs := make(chan error, turns)
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := rig.advisor.Advise(context.Background(), "hello", "shared"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Advise() error = %v", err)
	}

	st := rig.session(t, "shared")
	if len(st.Messages) != 2*turns {
		t.Fatalf("messages = %d, want %d", len(st.Messages), 2*turns)
	}
}

func TestAdviseDebugPayloads(t *testing.T) {
	t.Parallel()

	rig := newRig(t, Config{DebugPayloads: true})
	rig.models.supervisor.responses = []string{"data_extraction"}
	rig.models.extraction.responses = []string{extractionReply}

	advice, err := rig.advisor.Advise(context.Background(), "I have a 15 hectare farm in Medenine", "")
	if err != nil {
		t.Fatalf("Advise() error = %v", err)
	}
	if len(advice.RawPayloads) != 1 || !strings.Contains(advice.RawPayloads[0], `"Medenine"`) {
		t.Fatalf("RawPayloads = %v", advice.RawPayloads)
	}
}

type lockingStore struct {
	*statex.MemoryStore

	mu       sync.Mutex
	busy     bool
	acquired int
	released int
}

func (s *lockingStore) LockSession(ctx context.Context, sessionID string) (func(context.Context) error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return nil, statex.ErrSessionBusy
	}
	s.acquired++
	return func(context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.released++
		return nil
	}, nil
}

func TestAdviseHoldsSharedSessionLockForTheTurn(t *testing.T) {
	t.Parallel()

	rig := newRig(t, Config{})
	rig.models.supervisor.responses = []string{"conversational"}
	rig.models.conversational.responses = []string{"Hello!"}
	store := &lockingStore{MemoryStore: rig.store}
	advisor, err := New(store, rig.advisor.registry, rig.repo, nil, Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := advisor.Advise(context.Background(), "hello", "shared-1"); err != nil {
		t.Fatalf("Advise() error = %v", err)
	}
	if store.acquired != 1 || store.released != 1 {
		t.Fatalf("lock acquired=%d released=%d, want 1/1", store.acquired, store.released)
	}
}

func TestAdviseRejectsSessionBusyElsewhere(t *testing.T) {
	t.Parallel()

	rig := newRig(t, Config{})
	store := &lockingStore{MemoryStore: rig.store, busy: true}
	advisor, err := New(store, rig.advisor.registry, rig.repo, nil, Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = advisor.Advise(context.Background(), "hello", "shared-2")
	if !errors.Is(err, statex.ErrSessionBusy) {
		t.Fatalf("Advise() error = %v, want ErrSessionBusy", err)
	}
	if n := rig.models.supervisor.callCount(); n != 0 {
		t.Fatalf("supervisor calls = %d, want 0 while the session is busy", n)
	}
}
