package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Farm-Advisor/agent/contract"
	nodex "github.com/tanpawarit/Chative-Farm-Advisor/agent/nodes"
	statex "github.com/tanpawarit/Chative-Farm-Advisor/agent/state"
)

var ErrInvalidMessage = nodex.ErrInvalidMessage

type Config struct {
	MaxHops       int  `split_words:"true" default:"10"`
	Proactive     bool `envconfig:"PROACTIVE_RECOMMENDATION" default:"false"`
	DebugPayloads bool `split_words:"true" default:"false"`

	// Degraded routes every turn to the direct role without classifying.
	Degraded bool `ignored:"true"`
}

// Advisor answers farmer messages one turn at a time. Turns on one session
// are serialized; distinct sessions run concurrently.
type Advisor struct {
	store     statex.Store
	registry  contractx.Registry
	repo      contractx.Repository
	publisher contractx.Publisher

	dispatcher nodex.Dispatcher
	debug      bool
	locks      *statex.SessionLocks

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	now   func() time.Time
	newID func() string
}

func New(
	store statex.Store,
	registry contractx.Registry,
	repo contractx.Repository,
	publisher contractx.Publisher,
	cfg Config,
) (*Advisor, error) {
	if store == nil {
		return nil, errors.New("state store is required")
	}
	if registry == nil {
		return nil, errors.New("role registry is required")
	}

	var policy nodex.HandoffPolicy = nodex.SingleHop{}
	if cfg.Proactive {
		policy = nodex.ProactiveRecommendation{}
	}
	entry := statex.RoleSupervisor
	if cfg.Degraded {
		entry = statex.RoleDirectResponse
	}

	a := &Advisor{
		store:     store,
		registry:  registry,
		repo:      repo,
		publisher: publisher,
		dispatcher: nodex.Dispatcher{
			Registry: registry,
			Policy:   policy,
			MaxHops:  cfg.MaxHops,
			Entry:    entry,
		},
		debug: cfg.DebugPayloads,
		locks: statex.NewSessionLocks(),
		now:   time.Now,
		newID: uuid.NewString,
	}

	graphRunner, err := a.compileTurnGraph(context.Background())
	if err != nil {
		return nil, err
	}
	a.graphRunner = graphRunner

	return a, nil
}

// Advise runs one turn. An empty sessionID starts a new session. Errors are
// limited to ErrInvalidMessage and statex.ErrSessionBusy when another
// process holds the session; every other failure is folded into the advice
// text.
func (a *Advisor) Advise(ctx context.Context, text string, sessionID string) (contractx.Advice, error) {
	if strings.TrimSpace(text) == "" {
		return contractx.Advice{}, ErrInvalidMessage
	}

	in := nodex.GraphInput{SessionID: strings.TrimSpace(sessionID), Text: text}
	if in.SessionID == "" {
		in.SessionID = a.newID()
		in.NewSession = true
	}

	unlock := a.locks.Lock(in.SessionID)
	defer unlock()

	if locker, ok := a.store.(statex.SessionLocker); ok {
		release, err := locker.LockSession(ctx, in.SessionID)
		switch {
		case err == nil:
			defer func() {
				if err := release(context.WithoutCancel(ctx)); err != nil {
					log.Warn().Err(err).Str("session_id", in.SessionID).Msg("release session lock failed")
				}
			}()
		case errors.Is(err, statex.ErrSessionBusy), ctx.Err() != nil:
			return contractx.Advice{}, fmt.Errorf("lock session %s: %w", in.SessionID, err)
		default:
			// The store is likely down too; the load step turns that into an apology.
			log.Warn().Err(err).Str("session_id", in.SessionID).Msg("session lock unavailable")
		}
	}

	out, err := a.graphRunner.Invoke(ctx, in)
	if err != nil {
		return contractx.Advice{}, err
	}
	return out.Advice, nil
}
