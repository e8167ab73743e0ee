package contract

import (
	statex "github.com/tanpawarit/Chative-Farm-Advisor/agent/state"
)

type ClassifierRequest struct {
	UserMessage string           `json:"user_message"`
	History     []statex.Message `json:"history"`
}

// SpecialistRequest carries everything a role needs for one invocation.
// Session is read-only for specialists; results come back in the response
// and are merged by the dispatch loop.
type SpecialistRequest struct {
	UserMessage string                    `json:"user_message"`
	Session     *statex.ConversationState `json:"session"`
}

type SpecialistResponse struct {
	Message string `json:"message"`

	Extracted       *statex.FarmFacts    `json:"extracted,omitempty"`
	Planning        *statex.PlanningData `json:"planning,omitempty"`
	Recommendations []string             `json:"recommendations,omitempty"`

	// FarmerID/FarmID are set when the role committed or resolved records.
	FarmerID int64 `json:"farmer_id,omitempty"`
	FarmID   int64 `json:"farm_id,omitempty"`

	// RawPayload is the JSON span found in the generated text, if any.
	RawPayload string `json:"raw_payload,omitempty"`

	// Events describe rows committed during the call, for publishing.
	Events []Event `json:"events,omitempty"`
}

// Advice is the caller-facing result of one turn.
type Advice struct {
	AssistantText   string               `json:"assistant_text"`
	SessionID       string               `json:"session_id"`
	ExtractedData   statex.FarmFacts     `json:"extracted_data"`
	PlanningData    *statex.PlanningData `json:"planning_data,omitempty"`
	Recommendations []string             `json:"recommendations,omitempty"`
	// ActiveRole is the role that produced AssistantText, or human when the
	// hop ceiling cut the turn short.
	ActiveRole statex.Role `json:"active_role"`
	HopCount   int         `json:"hop_count"`

	// RawPayloads is filled only in debug mode.
	RawPayloads []string `json:"raw_payloads,omitempty"`
}

// Event is published when advice is committed to durable storage.
type Event struct {
	Kind      string `json:"kind"`
	SessionID string `json:"session_id"`
	FarmID    int64  `json:"farm_id"`
	RecordID  int64  `json:"record_id"`
}

const (
	EventRecommendationCreated = "recommendation.created"
	EventPlanCreated           = "plan.created"
)
