package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/Chative-Farm-Advisor/agent/agents/orchestrator"
	"github.com/tanpawarit/Chative-Farm-Advisor/agent/agents/specialist"
	"github.com/tanpawarit/Chative-Farm-Advisor/agent/capability"
	contractx "github.com/tanpawarit/Chative-Farm-Advisor/agent/contract"
	llmx "github.com/tanpawarit/Chative-Farm-Advisor/agent/llm"
	statex "github.com/tanpawarit/Chative-Farm-Advisor/agent/state"
	configx "github.com/tanpawarit/Chative-Farm-Advisor/pkg/config"
	ollamax "github.com/tanpawarit/Chative-Farm-Advisor/pkg/ollama"
	qstashx "github.com/tanpawarit/Chative-Farm-Advisor/pkg/qstash"
	"github.com/tanpawarit/Chative-Farm-Advisor/repository"
)

type appConfig struct {
	LLM      *llmx.Config
	Backend  *llmx.Policy
	Probe    *capability.Config
	Dispatch *orchestrator.Config
	DB       *repository.Config
	Redis    *statex.UpstashRedisConfig
	QStash   *qstashx.Config
}

func loadAppConfig() (*appConfig, error) {
	var (
		conf appConfig
		err  error
	)
	if conf.LLM, err = configx.New[llmx.Config]("LLM"); err != nil {
		return nil, err
	}
	if conf.Backend, err = configx.New[llmx.Policy]("BACKEND"); err != nil {
		return nil, err
	}
	if conf.Probe, err = configx.New[capability.Config]("PROBE"); err != nil {
		return nil, err
	}
	if conf.Dispatch, err = configx.New[orchestrator.Config]("DISPATCH"); err != nil {
		return nil, err
	}
	if conf.DB, err = configx.New[repository.Config]("DB"); err != nil {
		return nil, err
	}
	if conf.Redis, err = configx.New[statex.UpstashRedisConfig]("UPSTASH_REDIS"); err != nil {
		return nil, err
	}
	if conf.QStash, err = configx.New[qstashx.Config]("QSTASH"); err != nil {
		return nil, err
	}
	if err := conf.LLM.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

func newProber(conf *appConfig) *capability.Prober {
	backend := conf.LLM.BackendFor(statex.RoleSupervisor)
	return capability.NewProber(ollamax.NewClient(backend), backend.Model, *conf.Probe)
}

type app struct {
	advisor *orchestrator.Advisor
	closers []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// buildApp wires the advisor from configuration. Optional collaborators
// fall back to in-process implementations when unconfigured.
func buildApp(ctx context.Context) (*app, error) {
	conf, err := loadAppConfig()
	if err != nil {
		return nil, err
	}
	out := &app{}

	var store statex.Store = statex.NewMemoryStore()
	if conf.Redis.Enabled() {
		redisStore, err := statex.NewUpstashRedisStore(*conf.Redis)
		if err != nil {
			return nil, fmt.Errorf("create session store: %w", err)
		}
		store = redisStore
	} else {
		log.Warn().Msg("UPSTASH_REDIS_URL not set, sessions are kept in memory")
	}

	var repo contractx.Repository = repository.NewMemoryRepository()
	if conf.DB.Enabled() {
		bunRepo, err := repository.Open(*conf.DB)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		out.closers = append(out.closers, bunRepo.Close)
		repo = bunRepo
	} else {
		log.Warn().Msg("DB_DSN not set, farm records are kept in memory")
	}

	var publisher contractx.Publisher
	if conf.QStash.Enabled() {
		client, err := qstashx.NewClient(*conf.QStash)
		if err != nil {
			_ = out.Close()
			return nil, fmt.Errorf("create qstash client: %w", err)
		}
		publisher = orchestrator.NewQStashPublisher(client)
	}

	caps := newProber(conf).Capability(ctx)
	if !caps.Available {
		log.Warn().Str("model", caps.Model).Str("reason", caps.Reason).Msg("backend unavailable, running in degraded mode")
	}
	degraded := !caps.Rich()

	registry, err := specialist.NewRegistry(ctx, *conf.LLM, specialist.Options{
		Repository: repo,
		Policy:     *conf.Backend,
		Degraded:   degraded,
	})
	if err != nil {
		_ = out.Close()
		return nil, err
	}

	dispatchConf := *conf.Dispatch
	dispatchConf.Degraded = degraded
	advisor, err := orchestrator.New(store, registry, repo, publisher, dispatchConf)
	if err != nil {
		_ = out.Close()
		return nil, err
	}
	out.advisor = advisor
	return out, nil
}
