package nodes

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Farm-Advisor/agent/contract"
	statex "github.com/tanpawarit/Chative-Farm-Advisor/agent/state"
)

func LoadOrCreateState(
	ctx context.Context,
	in *GraphState,
	store statex.Store,
	repo contractx.Repository,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	if in.NewSession {
		in.Session = statex.NewConversationState(in.SessionID, in.Now)
		return in, nil
	}

	st, err := store.Load(ctx, in.SessionID)
	switch {
	case err == nil:
		in.Session = st
	case errors.Is(err, statex.ErrStateNotFound):
		in.Session = resumeFromRepository(ctx, repo, in)
	default:
		log.Error().Err(err).Str("session_id", in.SessionID).Msg("session load failed")
		in.Session = statex.NewConversationState(in.SessionID, in.Now)
		in.LoadFailed = true
	}
	return in, nil
}

// resumeFromRepository rebuilds a session the store has lost from its
// durable conversation mirror and the farmer's latest farm.
func resumeFromRepository(ctx context.Context, repo contractx.Repository, in *GraphState) *statex.ConversationState {
	st := statex.NewConversationState(in.SessionID, in.Now)
	if repo == nil {
		return st
	}

	conv, err := repo.GetConversation(ctx, in.SessionID)
	if err != nil {
		log.Error().Err(err).Str("session_id", in.SessionID).Msg("conversation lookup failed")
		return st
	}
	if conv == nil {
		return st
	}

	msgs, err := repo.ListMessages(ctx, conv.ID)
	if err != nil {
		log.Error().Err(err).Str("session_id", in.SessionID).Msg("conversation messages lookup failed")
		return st
	}
	for _, m := range msgs {
		st.AppendMessage(statex.MessageRole(m.Role), m.Content)
	}
	st.CreatedAt = conv.CreatedAt.UTC()

	if conv.FarmerID > 0 {
		st.FarmerID = conv.FarmerID
		farm, err := repo.LatestFarmForFarmer(ctx, conv.FarmerID)
		if err != nil {
			log.Error().Err(err).Int64("farmer_id", conv.FarmerID).Msg("farm lookup failed")
		} else if farm != nil {
			st.FarmID = farm.ID
			st.ExtractedData.Merge(statex.FarmFacts{
				Location:          farm.Location,
				SurfaceArea:       farm.SurfaceArea,
				SoilType:          farm.SoilType,
				CurrentPlants:     farm.CurrentPlants,
				WeatherConditions: farm.WeatherConditions,
			})
		}
	}

	log.Info().Str("session_id", in.SessionID).Int("messages", len(st.Messages)).Msg("session resumed from conversation history")
	return st
}
