package specialist

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Farm-Advisor/agent/contract"
	statex "github.com/tanpawarit/Chative-Farm-Advisor/agent/state"
)

// labelPrecedence is the order labels are searched for in the answer. The
// first hit wins, so a reply naming two roles resolves deterministically.
var labelPrecedence = []statex.Role{
	statex.RoleDataExtraction,
	statex.RoleRecommendation,
	statex.RolePlanning,
	statex.RoleDirectResponse,
	statex.RoleConversational,
}

type classifierImpl struct {
	runner compose.Runnable[contractx.ClassifierRequest, statex.Role]
}

func newClassifier(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string) (*classifierImpl, error) {
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, fmt.Errorf("%w: supervisor", contractx.ErrPromptMissing)
	}
	runner, err := compileClassifierGraph(ctx, chatModel, systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: compile classifier graph: %v", contractx.ErrModelInvoke, err)
	}
	return &classifierImpl{runner: runner}, nil
}

func (c *classifierImpl) Classify(ctx context.Context, req contractx.ClassifierRequest) statex.Role {
	role, err := c.runner.Invoke(ctx, req)
	if err != nil {
		log.Error().Err(err).Msg("classifier failed, routing to conversational")
		return statex.RoleConversational
	}
	if !role.Valid() || role == statex.RoleSupervisor || role == statex.RoleHuman {
		return statex.RoleConversational
	}
	return role
}

// MatchLabel finds a routing label in free text. Matching ignores case and
// treats spaces and hyphens as underscores. It reports false and the
// conversational role when nothing matches.
func MatchLabel(answer string) (statex.Role, bool) {
	norm := strings.ToLower(answer)
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	for _, role := range labelPrecedence {
		if strings.Contains(norm, string(role)) {
			return role, true
		}
	}
	return statex.RoleConversational, false
}

func matchLabel(answer string) (statex.Role, bool) {
	role, ok := MatchLabel(answer)
	if !ok {
		log.Debug().Str("answer", truncate(answer, 120)).Msg("no routing label in classifier answer")
	}
	return role, ok
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
