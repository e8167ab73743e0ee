package specialist

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"

	contractx "github.com/tanpawarit/Chative-Farm-Advisor/agent/contract"
	llmx "github.com/tanpawarit/Chative-Farm-Advisor/agent/llm"
	promptx "github.com/tanpawarit/Chative-Farm-Advisor/agent/prompt"
	statex "github.com/tanpawarit/Chative-Farm-Advisor/agent/state"
	"github.com/tanpawarit/Chative-Farm-Advisor/repository"
)

type Options struct {
	Repository contractx.Repository
	Policy     llmx.Policy
	// Degraded puts the direct role on the combined prompt so it can answer
	// every turn alone.
	Degraded bool
	Prompts  *promptx.PromptSet
}

// Models holds one chat model per role. Supervisor also backs the direct
// role.
type Models struct {
	Supervisor     einomodel.ToolCallingChatModel
	Conversational einomodel.ToolCallingChatModel
	Extraction     einomodel.ToolCallingChatModel
	Recommendation einomodel.ToolCallingChatModel
	Planning       einomodel.ToolCallingChatModel
}

type registryImpl struct {
	classifier     contractx.Classifier
	conversational contractx.Specialist
	extraction     contractx.Specialist
	recommendation contractx.Specialist
	planning       contractx.Specialist
	direct         contractx.Specialist
}

func (r *registryImpl) Classifier() contractx.Classifier {
	return r.classifier
}

func (r *registryImpl) Conversational() contractx.Specialist {
	return r.conversational
}

func (r *registryImpl) Extraction() contractx.Specialist {
	return r.extraction
}

func (r *registryImpl) Recommendation() contractx.Specialist {
	return r.recommendation
}

func (r *registryImpl) Planning() contractx.Specialist {
	return r.planning
}

func (r *registryImpl) Direct() contractx.Specialist {
	return r.direct
}

// NewRegistry builds every role on the configured backend. Each model is
// wrapped with the resilient call policy.
func NewRegistry(ctx context.Context, cfg llmx.Config, opts Options) (contractx.Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	build := func(role statex.Role) (einomodel.ToolCallingChatModel, error) {
		backend := cfg.BackendFor(role)
		backend.Timeout = opts.Policy.TransportTimeout(backend.Timeout)
		m, err := backend.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: create %s model: %v", contractx.ErrModelInvoke, role, err)
		}
		return llmx.NewResilientModel(string(role)+"/"+backend.Model, m, opts.Policy), nil
	}

	var models Models
	var err error
	if models.Supervisor, err = build(statex.RoleSupervisor); err != nil {
		return nil, err
	}
	if models.Conversational, err = build(statex.RoleConversational); err != nil {
		return nil, err
	}
	if models.Extraction, err = build(statex.RoleDataExtraction); err != nil {
		return nil, err
	}
	if models.Recommendation, err = build(statex.RoleRecommendation); err != nil {
		return nil, err
	}
	if models.Planning, err = build(statex.RolePlanning); err != nil {
		return nil, err
	}

	return NewRegistryWithModels(ctx, models, opts)
}

// NewRegistryWithModels builds the roles on caller-supplied models.
func NewRegistryWithModels(ctx context.Context, models Models, opts Options) (contractx.Registry, error) {
	prompts := promptx.LoadPromptSet()
	if opts.Prompts != nil {
		prompts = *opts.Prompts
	}
	repo := opts.Repository
	if repo == nil {
		repo = repository.NewMemoryRepository()
	}

	classifier, err := newClassifier(ctx, models.Supervisor, prompts.Supervisor)
	if err != nil {
		return nil, err
	}
	conversational, err := newChatRole(ctx, statex.RoleConversational, models.Conversational, prompts.Conversational)
	if err != nil {
		return nil, err
	}
	extraction, err := newExtractionRole(ctx, models.Extraction, prompts.Extraction, repo)
	if err != nil {
		return nil, err
	}
	recommendation, err := newRecommendationRole(ctx, models.Recommendation, prompts.Recommendation, repo)
	if err != nil {
		return nil, err
	}
	planning, err := newPlanningRole(ctx, models.Planning, prompts.Planning, repo)
	if err != nil {
		return nil, err
	}

	directPrompt := prompts.Direct
	if opts.Degraded {
		directPrompt = prompts.Combined
	}
	direct, err := newChatRole(ctx, statex.RoleDirectResponse, models.Supervisor, directPrompt)
	if err != nil {
		return nil, err
	}

	return &registryImpl{
		classifier:     classifier,
		conversational: conversational,
		extraction:     extraction,
		recommendation: recommendation,
		planning:       planning,
		direct:         direct,
	}, nil
}
