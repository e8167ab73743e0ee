package specialist

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Farm-Advisor/agent/contract"
	payloadx "github.com/tanpawarit/Chative-Farm-Advisor/agent/payload"
	statex "github.com/tanpawarit/Chative-Farm-Advisor/agent/state"
	"github.com/tanpawarit/Chative-Farm-Advisor/repository"
)

type extractionPayload struct {
	Location          looseString `json:"location"`
	SurfaceArea       looseArea   `json:"surface_area"`
	SoilType          looseString `json:"soil_type"`
	CurrentPlants     looseString `json:"current_plants"`
	WeatherConditions looseString `json:"weather_conditions"`
}

func (p extractionPayload) facts() statex.FarmFacts {
	return statex.FarmFacts{
		Location:          string(p.Location),
		SurfaceArea:       float64(p.SurfaceArea),
		SoilType:          string(p.SoilType),
		CurrentPlants:     string(p.CurrentPlants),
		WeatherConditions: string(p.WeatherConditions),
	}
}

type extractionRole struct {
	*roleRunner
	repo contractx.Repository
}

func newExtractionRole(ctx context.Context, chatModel einomodel.BaseChatModel, prompt string, repo contractx.Repository) (*extractionRole, error) {
	runner, err := newRoleRunner(ctx, statex.RoleDataExtraction, chatModel, prompt)
	if err != nil {
		return nil, err
	}
	return &extractionRole{roleRunner: runner, repo: repo}, nil
}

func (e *extractionRole) Run(ctx context.Context, req contractx.SpecialistRequest) (contractx.SpecialistResponse, error) {
	var known statex.FarmFacts
	if req.Session != nil {
		known = req.Session.ExtractedData
	}

	text, err := e.generate(ctx, req, describeFacts(known))
	if err != nil {
		return contractx.SpecialistResponse{}, err
	}

	res := payloadx.Extract(text)
	var body extractionPayload
	if err := payloadx.Decode(res, &body); err != nil {
		log.Warn().Err(err).Str("raw", truncate(res.Raw, 200)).Msg("extraction payload unparseable")
		return contractx.SpecialistResponse{Message: contractx.ExtractionAcknowledgement}, nil
	}

	facts := body.facts()
	resp := contractx.SpecialistResponse{
		Message:    payloadx.Strip(text, res),
		RawPayload: res.Raw,
	}
	if resp.Message == "" {
		resp.Message = contractx.ExtractionAcknowledgement
	}
	if facts.IsEmpty() {
		return resp, nil
	}
	resp.Extracted = &facts

	merged := known
	merged.Merge(facts)
	if !merged.Persistable() {
		return resp, nil
	}

	farmerID, farmID, err := e.persist(ctx, req.Session, merged)
	if err != nil {
		log.Error().Err(err).Msg("farm not persisted")
	}
	resp.FarmerID, resp.FarmID = farmerID, farmID
	return resp, nil
}

// persist creates the session's farmer on first use and upserts its farm.
func (e *extractionRole) persist(ctx context.Context, session *statex.ConversationState, facts statex.FarmFacts) (int64, int64, error) {
	var farmerID int64
	if session != nil {
		farmerID = session.FarmerID
	}
	if farmerID <= 0 {
		farmer := &repository.Farmer{}
		if err := e.repo.CreateFarmer(ctx, farmer); err != nil {
			return 0, 0, fmt.Errorf("%w: create farmer: %v", contractx.ErrPersistence, err)
		}
		farmerID = farmer.ID
	}

	farm, err := e.repo.SaveFarmFromExtraction(ctx, &repository.Farm{
		FarmerID:          farmerID,
		Location:          facts.Location,
		SurfaceArea:       facts.SurfaceArea,
		SoilType:          facts.SoilType,
		CurrentPlants:     facts.CurrentPlants,
		WeatherConditions: facts.WeatherConditions,
	})
	if err != nil {
		return farmerID, 0, fmt.Errorf("%w: save farm: %v", contractx.ErrPersistence, err)
	}
	return farmerID, farm.ID, nil
}
