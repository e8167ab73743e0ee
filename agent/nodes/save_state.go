package nodes

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Farm-Advisor/agent/contract"
	statex "github.com/tanpawarit/Chative-Farm-Advisor/agent/state"
)

// SaveState writes the session back. A failed write is logged; the reply
// still reaches the user.
func SaveState(ctx context.Context, in *GraphState, store statex.Store) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}
	if in.LoadFailed {
		return in, nil
	}

	in.Session.Touch(in.Now)
	if err := in.Session.Validate(); err != nil {
		log.Error().Err(err).Str("session_id", in.SessionID).Msg("session state invalid, not saved")
		return in, nil
	}
	if err := store.Save(ctx, in.Session); err != nil {
		log.Error().Err(err).Str("session_id", in.SessionID).Msg("session save failed")
	}
	return in, nil
}
