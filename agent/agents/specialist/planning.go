package specialist

import (
	"context"
	"encoding/json"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Farm-Advisor/agent/contract"
	payloadx "github.com/tanpawarit/Chative-Farm-Advisor/agent/payload"
	statex "github.com/tanpawarit/Chative-Farm-Advisor/agent/state"
	"github.com/tanpawarit/Chative-Farm-Advisor/repository"
)

const planReadyMessage = "I've prepared a month-by-month farming calendar for your farm."

type planningRole struct {
	*roleRunner
	repo contractx.Repository
}

func newPlanningRole(ctx context.Context, chatModel einomodel.BaseChatModel, prompt string, repo contractx.Repository) (*planningRole, error) {
	runner, err := newRoleRunner(ctx, statex.RolePlanning, chatModel, prompt)
	if err != nil {
		return nil, err
	}
	return &planningRole{roleRunner: runner, repo: repo}, nil
}

func (p *planningRole) Run(ctx context.Context, req contractx.SpecialistRequest) (contractx.SpecialistResponse, error) {
	farm, err := resolveFarm(ctx, p.repo, req.Session)
	if err != nil {
		log.Error().Err(err).Msg("planning without farm record")
	}

	facts := factsFromFarm(farm)
	var recs []string
	if req.Session != nil {
		merged := req.Session.ExtractedData
		merged.Merge(facts)
		facts = merged
		recs = req.Session.Recommendations
	}

	text, err := p.generate(ctx, req, joinBlocks(describeFacts(facts), describeRecommendations(recs)))
	if err != nil {
		return contractx.SpecialistResponse{}, err
	}

	res := payloadx.Extract(text)
	plan := &statex.PlanningData{}
	if err := payloadx.Decode(res, plan); err != nil || plan.IsEmpty() {
		plan = ParseCalendar(text)
	}
	if plan.IsEmpty() {
		log.Warn().Str("raw", truncate(res.Raw, 200)).Msg("planning payload unparseable")
		plan = nil
	}

	message := payloadx.Strip(text, res)
	if message == "" && plan != nil {
		message = planReadyMessage
	}
	if message == "" {
		return contractx.SpecialistResponse{Message: contractx.ApologyMessage, RawPayload: res.Raw}, nil
	}

	resp := contractx.SpecialistResponse{
		Message:    message,
		Planning:   plan,
		RawPayload: res.Raw,
	}
	if plan == nil || farm == nil {
		return resp, nil
	}
	resp.FarmerID, resp.FarmID = farm.FarmerID, farm.ID

	row := planRecord(farm.ID, plan)
	if err := p.repo.CreatePlan(ctx, row); err != nil {
		log.Error().Err(err).Int64("farm_id", farm.ID).Msg("plan not persisted")
		return resp, nil
	}

	resp.Events = append(resp.Events, contractx.Event{
		Kind:     contractx.EventPlanCreated,
		FarmID:   farm.ID,
		RecordID: row.ID,
	})
	return resp, nil
}

func planRecord(farmID int64, plan *statex.PlanningData) *repository.Plan {
	schedule, err := json.Marshal(plan.Months)
	if err != nil || plan.Months == nil {
		schedule = []byte("[]")
	}

	column := func(pick func(statex.MonthPlan) string) string {
		var lines []string
		for _, m := range plan.Months {
			if v := strings.TrimSpace(pick(m)); v != "" {
				lines = append(lines, m.Month+": "+v)
			}
		}
		return strings.Join(lines, "\n")
	}

	seasonal := column(func(m statex.MonthPlan) string { return m.SpecialConsiderations })
	if plan.RiskMitigation != "" {
		seasonal = joinBlocks(seasonal, "Risk mitigation: "+plan.RiskMitigation)
	}

	return &repository.Plan{
		FarmID:                 farmID,
		MonthlySchedule:        string(schedule),
		PlantingSchedule:       column(func(m statex.MonthPlan) string { return m.Planting }),
		IrrigationSchedule:     column(func(m statex.MonthPlan) string { return m.Irrigation }),
		SoilPreparation:        column(func(m statex.MonthPlan) string { return m.SoilPreparation }),
		HarvestTimes:           column(func(m statex.MonthPlan) string { return m.Harvest }),
		SeasonalConsiderations: seasonal,
	}
}
