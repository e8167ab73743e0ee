package contract

import (
	"context"

	statex "github.com/tanpawarit/Chative-Farm-Advisor/agent/state"
	"github.com/tanpawarit/Chative-Farm-Advisor/repository"
)

// Classifier picks the role for the next hop. It never fails: backend errors
// and unrecognized answers resolve to the conversational role.
type Classifier interface {
	Classify(ctx context.Context, req ClassifierRequest) statex.Role
}

type Specialist interface {
	Run(ctx context.Context, req SpecialistRequest) (SpecialistResponse, error)
}

type Registry interface {
	Classifier() Classifier
	Conversational() Specialist
	Extraction() Specialist
	Recommendation() Specialist
	Planning() Specialist
	Direct() Specialist
}

// Repository is the durable record store behind the session store.
type Repository interface {
	CreateFarmer(ctx context.Context, farmer *repository.Farmer) error
	GetFarmer(ctx context.Context, id int64) (*repository.Farmer, error)

	CreateFarm(ctx context.Context, farm *repository.Farm) error
	UpdateFarm(ctx context.Context, farm *repository.Farm) error
	GetFarm(ctx context.Context, id int64) (*repository.Farm, error)
	LatestFarmForFarmer(ctx context.Context, farmerID int64) (*repository.Farm, error)
	SaveFarmFromExtraction(ctx context.Context, farm *repository.Farm) (*repository.Farm, error)

	CreateRecommendation(ctx context.Context, rec *repository.Recommendation) error
	ListRecommendations(ctx context.Context, farmID int64) ([]repository.Recommendation, error)

	CreatePlan(ctx context.Context, plan *repository.Plan) error
	ListPlans(ctx context.Context, farmID int64) ([]repository.Plan, error)

	CreateConversation(ctx context.Context, conv *repository.Conversation) error
	GetConversation(ctx context.Context, sessionID string) (*repository.Conversation, error)
	AppendMessage(ctx context.Context, msg *repository.Message) error
	ListMessages(ctx context.Context, conversationID int64) ([]repository.Message, error)
	SaveConversationHistory(ctx context.Context, sessionID string, farmerID int64, userMessage, assistantMessage string) (*repository.Conversation, error)
}

// Publisher delivers committed-advice events. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}
