package specialist

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Farm-Advisor/agent/contract"
	payloadx "github.com/tanpawarit/Chative-Farm-Advisor/agent/payload"
	statex "github.com/tanpawarit/Chative-Farm-Advisor/agent/state"
	"github.com/tanpawarit/Chative-Farm-Advisor/repository"
)

var factLabels = map[string]string{
	"location":       "your location",
	"surface_area":   "the surface area in hectares",
	"soil_type":      "the soil type",
	"current_plants": "the crops you grow or plan to grow",
}

type recommendationPayload struct {
	RecommendedPlants looseList   `json:"recommended_plants"`
	IrrigationMethods looseList   `json:"irrigation_methods"`
	Reasoning         looseString `json:"reasoning"`
}

type recommendationRole struct {
	*roleRunner
	repo    contractx.Repository
	runtime compose.Runnable[contractx.SpecialistRequest, contractx.SpecialistResponse]
}

func newRecommendationRole(ctx context.Context, chatModel einomodel.BaseChatModel, prompt string, repo contractx.Repository) (*recommendationRole, error) {
	runner, err := newRoleRunner(ctx, statex.RoleRecommendation, chatModel, prompt)
	if err != nil {
		return nil, err
	}

	r := &recommendationRole{roleRunner: runner, repo: repo}
	runtime, err := compileRecommendationRuntimeGraph(ctx, r.resolveFarm, r.runMissing, r.runGenerate)
	if err != nil {
		return nil, fmt.Errorf("%w: compile recommendation runtime graph: %v", contractx.ErrModelInvoke, err)
	}
	r.runtime = runtime
	return r, nil
}

func (r *recommendationRole) Run(ctx context.Context, req contractx.SpecialistRequest) (contractx.SpecialistResponse, error) {
	return r.runtime.Invoke(ctx, req)
}

func (r *recommendationRole) resolveFarm(ctx context.Context, req contractx.SpecialistRequest) (*repository.Farm, error) {
	return resolveFarm(ctx, r.repo, req.Session)
}

// runMissing says which facts are needed instead of inventing defaults.
func (r *recommendationRole) runMissing(_ context.Context, req contractx.SpecialistRequest) (contractx.SpecialistResponse, error) {
	var known statex.FarmFacts
	if req.Session != nil {
		known = req.Session.ExtractedData
	}
	return contractx.SpecialistResponse{Message: MissingFarmMessage(known)}, nil
}

func (r *recommendationRole) runGenerate(ctx context.Context, req contractx.SpecialistRequest, farm *repository.Farm) (contractx.SpecialistResponse, error) {
	var previous []string
	if req.Session != nil {
		previous = req.Session.Recommendations
	}

	text, err := r.generate(ctx, req, joinBlocks(describeFacts(factsFromFarm(farm)), describeRecommendations(previous)))
	if err != nil {
		return contractx.SpecialistResponse{}, err
	}

	res := payloadx.Extract(text)
	var body recommendationPayload
	if err := payloadx.Decode(res, &body); err != nil {
		log.Warn().Err(err).Str("raw", truncate(res.Raw, 200)).Msg("recommendation payload unparseable")
	}

	message := payloadx.Strip(text, res)
	if message == "" {
		message = summarizeRecommendation(body)
	}
	if message == "" {
		log.Warn().Str("raw", truncate(res.Raw, 200)).Msg("recommendation reply held no usable text")
		return contractx.SpecialistResponse{Message: contractx.ApologyMessage, RawPayload: res.Raw}, nil
	}

	resp := contractx.SpecialistResponse{
		Message:         message,
		Recommendations: []string(body.RecommendedPlants),
		FarmerID:        farm.FarmerID,
		FarmID:          farm.ID,
		RawPayload:      res.Raw,
	}
	if len(resp.Recommendations) == 0 {
		resp.Recommendations = []string{firstLine(message)}
	}

	rec := &repository.Recommendation{
		FarmID:            farm.ID,
		RecommendedPlants: encodeList(body.RecommendedPlants),
		IrrigationMethods: encodeList(body.IrrigationMethods),
		Reasoning:         string(body.Reasoning),
	}
	if rec.Reasoning == "" {
		rec.Reasoning = message
	}
	if err := r.repo.CreateRecommendation(ctx, rec); err != nil {
		log.Error().Err(err).Int64("farm_id", farm.ID).Msg("recommendation not persisted")
		return resp, nil
	}

	resp.Events = append(resp.Events, contractx.Event{
		Kind:     contractx.EventRecommendationCreated,
		FarmID:   farm.ID,
		RecordID: rec.ID,
	})
	return resp, nil
}

// MissingFarmMessage lists the facts still needed before a recommendation.
func MissingFarmMessage(known statex.FarmFacts) string {
	missing := known.Missing()
	if len(missing) == 0 {
		missing = statex.FarmFacts{}.Missing()
	}

	labels := make([]string, 0, len(missing))
	for _, field := range missing {
		labels = append(labels, factLabels[field])
	}

	list := labels[0]
	if n := len(labels); n > 1 {
		list = strings.Join(labels[:n-1], ", ") + " and " + labels[n-1]
	}
	return "I can't give a reliable recommendation yet because I don't have your farm details on file. Please tell me " + list + "."
}

// summarizeRecommendation renders a payload-only reply as a sentence.
func summarizeRecommendation(body recommendationPayload) string {
	if len(body.RecommendedPlants) == 0 {
		return ""
	}
	out := "Recommended crops: " + strings.Join(body.RecommendedPlants, ", ") + "."
	if len(body.IrrigationMethods) > 0 {
		out += " Suggested irrigation: " + strings.Join(body.IrrigationMethods, ", ") + "."
	}
	return joinBlocks(out, string(body.Reasoning))
}

func encodeList(items []string) string {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func firstLine(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = strings.TrimSpace(text[:i])
	}
	return truncate(text, 200)
}
