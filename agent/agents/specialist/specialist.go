package specialist

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/Chative-Farm-Advisor/agent/contract"
	statex "github.com/tanpawarit/Chative-Farm-Advisor/agent/state"
	"github.com/tanpawarit/Chative-Farm-Advisor/repository"
)

// roleRunner owns the compiled prompt->model graph for one role.
type roleRunner struct {
	role   statex.Role
	prompt string
	runner compose.Runnable[roleInput, *schema.Message]
}

func newRoleRunner(ctx context.Context, role statex.Role, chatModel einomodel.BaseChatModel, prompt string) (*roleRunner, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("%w: role=%s", contractx.ErrPromptMissing, role)
	}
	runner, err := compileRoleGraph(ctx, chatModel, "specialist."+string(role)+"_graph")
	if err != nil {
		return nil, fmt.Errorf("%w: compile %s graph: %v", contractx.ErrModelInvoke, role, err)
	}
	return &roleRunner{role: role, prompt: prompt, runner: runner}, nil
}

func (r *roleRunner) generate(ctx context.Context, req contractx.SpecialistRequest, contextBlock string) (string, error) {
	if strings.TrimSpace(req.UserMessage) == "" {
		return "", fmt.Errorf("%w: user message is required", contractx.ErrValidation)
	}

	var history []statex.Message
	if req.Session != nil {
		history = req.Session.Messages
	}

	msg, err := r.runner.Invoke(ctx, roleInput{
		System:      r.prompt,
		Context:     contextBlock,
		History:     history,
		UserMessage: req.UserMessage,
	})
	if err != nil {
		return "", fmt.Errorf("%w: role=%s: %w", contractx.ErrModelInvoke, r.role, err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return "", fmt.Errorf("%w: role=%s returned empty text", contractx.ErrSchemaViolation, r.role)
	}
	return strings.TrimSpace(msg.Content), nil
}

// chatRole answers in plain text with no structured payload. It serves the
// conversational and direct_response roles.
type chatRole struct {
	*roleRunner
}

func newChatRole(ctx context.Context, role statex.Role, chatModel einomodel.BaseChatModel, prompt string) (*chatRole, error) {
	runner, err := newRoleRunner(ctx, role, chatModel, prompt)
	if err != nil {
		return nil, err
	}
	return &chatRole{roleRunner: runner}, nil
}

func (c *chatRole) Run(ctx context.Context, req contractx.SpecialistRequest) (contractx.SpecialistResponse, error) {
	var facts statex.FarmFacts
	if req.Session != nil {
		facts = req.Session.ExtractedData
	}
	text, err := c.generate(ctx, req, describeFacts(facts))
	if err != nil {
		return contractx.SpecialistResponse{}, err
	}
	return contractx.SpecialistResponse{Message: text}, nil
}

// resolveFarm returns the farm record the session points at: the farmer's
// most recent farm, else the farm id remembered on the session.
func resolveFarm(ctx context.Context, repo contractx.Repository, session *statex.ConversationState) (*repository.Farm, error) {
	if session == nil {
		return nil, nil
	}
	if session.FarmerID > 0 {
		farm, err := repo.LatestFarmForFarmer(ctx, session.FarmerID)
		if err != nil {
			return nil, fmt.Errorf("%w: latest farm for farmer=%d: %v", contractx.ErrPersistence, session.FarmerID, err)
		}
		if farm != nil {
			return farm, nil
		}
	}
	if session.FarmID > 0 {
		farm, err := repo.GetFarm(ctx, session.FarmID)
		if err != nil {
			return nil, fmt.Errorf("%w: get farm=%d: %v", contractx.ErrPersistence, session.FarmID, err)
		}
		return farm, nil
	}
	return nil, nil
}

func factsFromFarm(farm *repository.Farm) statex.FarmFacts {
	if farm == nil {
		return statex.FarmFacts{}
	}
	return statex.FarmFacts{
		Location:          farm.Location,
		SurfaceArea:       farm.SurfaceArea,
		SoilType:          farm.SoilType,
		CurrentPlants:     farm.CurrentPlants,
		WeatherConditions: farm.WeatherConditions,
	}
}

func describeFacts(f statex.FarmFacts) string {
	if f.IsEmpty() {
		return ""
	}
	var b strings.Builder
	b.WriteString("Known farm details:")
	line := func(label, v string) {
		if v = strings.TrimSpace(v); v != "" {
			b.WriteString("\n- " + label + ": " + v)
		}
	}
	line("Location", f.Location)
	if f.SurfaceArea > 0 {
		line("Surface area", strconv.FormatFloat(f.SurfaceArea, 'f', -1, 64)+" hectares")
	}
	line("Soil type", f.SoilType)
	line("Current or planned crops", f.CurrentPlants)
	line("Weather conditions", f.WeatherConditions)
	return b.String()
}

func describeRecommendations(items []string) string {
	if len(items) == 0 {
		return ""
	}
	return "Earlier recommendations: " + strings.Join(items, ", ")
}

func joinBlocks(blocks ...string) string {
	out := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return strings.Join(out, "\n\n")
}
