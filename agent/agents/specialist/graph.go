package specialist

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/Chative-Farm-Advisor/agent/contract"
	statex "github.com/tanpawarit/Chative-Farm-Advisor/agent/state"
	"github.com/tanpawarit/Chative-Farm-Advisor/repository"
)

// roleInput is everything one model call sees. Context is appended to the
// system prompt; History already ends with the current user message in the
// normal case.
type roleInput struct {
	System      string
	Context     string
	History     []statex.Message
	UserMessage string
}

func assembleMessages(in roleInput) []*schema.Message {
	system := strings.TrimSpace(in.System)
	if c := strings.TrimSpace(in.Context); c != "" {
		system += "\n\n" + c
	}

	msgs := make([]*schema.Message, 0, len(in.History)+2)
	msgs = append(msgs, schema.SystemMessage(system))
	for _, m := range in.History {
		switch m.Role {
		case statex.MessageUser:
			msgs = append(msgs, schema.UserMessage(m.Content))
		case statex.MessageAssistant:
			msgs = append(msgs, schema.AssistantMessage(m.Content, nil))
		case statex.MessageSystem:
			msgs = append(msgs, schema.SystemMessage(m.Content))
		}
	}

	user := strings.TrimSpace(in.UserMessage)
	if user == "" {
		return msgs
	}
	if n := len(in.History); n == 0 || in.History[n-1].Role != statex.MessageUser || in.History[n-1].Content != user {
		msgs = append(msgs, schema.UserMessage(user))
	}
	return msgs
}

func compileRoleGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	graphName string,
) (compose.Runnable[roleInput, *schema.Message], error) {
	graph := compose.NewGraph[roleInput, *schema.Message]()

	if err := graph.AddLambdaNode("assemble",
		compose.InvokableLambda(func(ctx context.Context, in roleInput) ([]*schema.Message, error) {
			return assembleMessages(in), nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add role assemble node: %w", err)
	}
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add role model node: %w", err)
	}

	if err := graph.AddEdge(compose.START, "assemble"); err != nil {
		return nil, fmt.Errorf("add role edge start->assemble: %w", err)
	}
	if err := graph.AddEdge("assemble", "model"); err != nil {
		return nil, fmt.Errorf("add role edge assemble->model: %w", err)
	}
	if err := graph.AddEdge("model", compose.END); err != nil {
		return nil, fmt.Errorf("add role edge model->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName(graphName))
	if err != nil {
		return nil, fmt.Errorf("compile role graph: %w", err)
	}
	return runner, nil
}

func compileClassifierGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
) (compose.Runnable[contractx.ClassifierRequest, statex.Role], error) {
	graph := compose.NewGraph[contractx.ClassifierRequest, statex.Role]()

	if err := graph.AddLambdaNode("assemble",
		compose.InvokableLambda(func(ctx context.Context, req contractx.ClassifierRequest) ([]*schema.Message, error) {
			if strings.TrimSpace(req.UserMessage) == "" {
				return nil, fmt.Errorf("%w: user message is required", contractx.ErrValidation)
			}
			return assembleMessages(roleInput{
				System:      systemPrompt,
				History:     req.History,
				UserMessage: req.UserMessage,
			}), nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add classifier assemble node: %w", err)
	}
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add classifier model node: %w", err)
	}
	if err := graph.AddLambdaNode("match_label",
		compose.InvokableLambda(func(ctx context.Context, msg *schema.Message) (statex.Role, error) {
			if msg == nil {
				return "", fmt.Errorf("%w: empty classifier response", contractx.ErrSchemaViolation)
			}
			role, _ := matchLabel(msg.Content)
			return role, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add classifier match node: %w", err)
	}

	if err := graph.AddEdge(compose.START, "assemble"); err != nil {
		return nil, fmt.Errorf("add classifier edge start->assemble: %w", err)
	}
	if err := graph.AddEdge("assemble", "model"); err != nil {
		return nil, fmt.Errorf("add classifier edge assemble->model: %w", err)
	}
	if err := graph.AddEdge("model", "match_label"); err != nil {
		return nil, fmt.Errorf("add classifier edge model->match: %w", err)
	}
	if err := graph.AddEdge("match_label", compose.END); err != nil {
		return nil, fmt.Errorf("add classifier edge match->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("specialist.classifier_graph"))
	if err != nil {
		return nil, fmt.Errorf("compile classifier graph: %w", err)
	}
	return runner, nil
}

type recommendationGraphState struct {
	Req  contractx.SpecialistRequest
	Farm *repository.Farm
}

// compileRecommendationRuntimeGraph gates generation on a farm record: with
// no farm on file the missing path answers without calling the model.
func compileRecommendationRuntimeGraph(
	ctx context.Context,
	resolveFarm func(context.Context, contractx.SpecialistRequest) (*repository.Farm, error),
	missingFlow func(context.Context, contractx.SpecialistRequest) (contractx.SpecialistResponse, error),
	generateFlow func(context.Context, contractx.SpecialistRequest, *repository.Farm) (contractx.SpecialistResponse, error),
) (compose.Runnable[contractx.SpecialistRequest, contractx.SpecialistResponse], error) {
	graph := compose.NewGraph[contractx.SpecialistRequest, contractx.SpecialistResponse]()

	if err := graph.AddLambdaNode("resolve_farm",
		compose.InvokableLambda(func(ctx context.Context, req contractx.SpecialistRequest) (*recommendationGraphState, error) {
			farm, err := resolveFarm(ctx, req)
			if err != nil {
				return nil, err
			}
			return &recommendationGraphState{Req: req, Farm: farm}, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add recommendation resolve node: %w", err)
	}

	if err := graph.AddLambdaNode("missing_path",
		compose.InvokableLambda(func(ctx context.Context, in *recommendationGraphState) (contractx.SpecialistResponse, error) {
			if in == nil {
				return contractx.SpecialistResponse{}, fmt.Errorf("%w: recommendation graph state is nil", contractx.ErrValidation)
			}
			return missingFlow(ctx, in.Req)
		}),
	); err != nil {
		return nil, fmt.Errorf("add recommendation missing node: %w", err)
	}

	if err := graph.AddLambdaNode("generate_path",
		compose.InvokableLambda(func(ctx context.Context, in *recommendationGraphState) (contractx.SpecialistResponse, error) {
			if in == nil {
				return contractx.SpecialistResponse{}, fmt.Errorf("%w: recommendation graph state is nil", contractx.ErrValidation)
			}
			return generateFlow(ctx, in.Req, in.Farm)
		}),
	); err != nil {
		return nil, fmt.Errorf("add recommendation generate node: %w", err)
	}

	branch := compose.NewGraphBranch(
		func(ctx context.Context, in *recommendationGraphState) (string, error) {
			if in == nil {
				return "", fmt.Errorf("%w: recommendation graph state is nil", contractx.ErrValidation)
			}
			if in.Farm == nil {
				return "missing_path", nil
			}
			return "generate_path", nil
		},
		map[string]bool{
			"missing_path":  true,
			"generate_path": true,
		},
	)

	if err := graph.AddBranch("resolve_farm", branch); err != nil {
		return nil, fmt.Errorf("add recommendation branch: %w", err)
	}
	if err := graph.AddEdge(compose.START, "resolve_farm"); err != nil {
		return nil, fmt.Errorf("add recommendation edge start->resolve: %w", err)
	}
	if err := graph.AddEdge("missing_path", compose.END); err != nil {
		return nil, fmt.Errorf("add recommendation edge missing->end: %w", err)
	}
	if err := graph.AddEdge("generate_path", compose.END); err != nil {
		return nil, fmt.Errorf("add recommendation edge generate->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("specialist.recommendation_runtime_graph"))
	if err != nil {
		return nil, fmt.Errorf("compile recommendation runtime graph: %w", err)
	}
	return runner, nil
}
