package nodes

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Farm-Advisor/agent/contract"
)

// MirrorConversation appends the turn to the durable conversation record.
func MirrorConversation(ctx context.Context, in *GraphState, repo contractx.Repository) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}
	if in.LoadFailed || repo == nil {
		return in, nil
	}

	if _, err := repo.SaveConversationHistory(ctx, in.SessionID, in.Session.FarmerID, in.Text, in.Reply); err != nil {
		log.Error().Err(err).Str("session_id", in.SessionID).Msg("conversation mirror failed")
	}
	return in, nil
}
