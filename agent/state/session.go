package state

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role is the dispatch state of a conversation. The set is closed: adding a
// role means extending this list and the switch in the dispatch loop.
type Role string

const (
	RoleSupervisor     Role = "supervisor"
	RoleConversational Role = "conversational"
	RoleDataExtraction Role = "data_extraction"
	RoleRecommendation Role = "recommendation"
	RolePlanning       Role = "planning"
	RoleDirectResponse Role = "direct_response"
	RoleHuman          Role = "human"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSupervisor, RoleConversational, RoleDataExtraction, RoleRecommendation,
		RolePlanning, RoleDirectResponse, RoleHuman:
		return true
	default:
		return false
	}
}

type MessageRole string

const (
	MessageUser      MessageRole = "user"
	MessageAssistant MessageRole = "assistant"
	MessageSystem    MessageRole = "system"
)

type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// FarmFacts are the farm attributes gathered by extraction. Fields fill in
// over several turns; a zero value means "not known yet".
type FarmFacts struct {
	Location          string  `json:"location,omitempty"`
	SurfaceArea       float64 `json:"surface_area,omitempty"` // hectares
	SoilType          string  `json:"soil_type,omitempty"`
	CurrentPlants     string  `json:"current_plants,omitempty"`
	WeatherConditions string  `json:"weather_conditions,omitempty"`
}

// Merge overwrites fields that are set in update. Known fields are never
// cleared by an empty update.
func (f *FarmFacts) Merge(update FarmFacts) {
	if v := strings.TrimSpace(update.Location); v != "" {
		f.Location = v
	}
	if update.SurfaceArea > 0 {
		f.SurfaceArea = update.SurfaceArea
	}
	if v := strings.TrimSpace(update.SoilType); v != "" {
		f.SoilType = v
	}
	if v := strings.TrimSpace(update.CurrentPlants); v != "" {
		f.CurrentPlants = v
	}
	if v := strings.TrimSpace(update.WeatherConditions); v != "" {
		f.WeatherConditions = v
	}
}

func (f FarmFacts) IsEmpty() bool {
	return f == FarmFacts{}
}

// Persistable reports whether a farm row can be written: location and a
// positive surface area are mandatory columns.
func (f FarmFacts) Persistable() bool {
	return strings.TrimSpace(f.Location) != "" && f.SurfaceArea > 0
}

// Missing lists the core facts a definitive recommendation needs.
func (f FarmFacts) Missing() []string {
	var missing []string
	if strings.TrimSpace(f.Location) == "" {
		missing = append(missing, "location")
	}
	if f.SurfaceArea <= 0 {
		missing = append(missing, "surface_area")
	}
	if strings.TrimSpace(f.SoilType) == "" {
		missing = append(missing, "soil_type")
	}
	if strings.TrimSpace(f.CurrentPlants) == "" {
		missing = append(missing, "current_plants")
	}
	return missing
}

func (f FarmFacts) Complete() bool {
	return len(f.Missing()) == 0
}

type MonthPlan struct {
	Month                 string `json:"month"`
	SoilPreparation       string `json:"soil_preparation,omitempty"`
	Planting              string `json:"planting,omitempty"`
	Irrigation            string `json:"irrigation,omitempty"`
	Harvest               string `json:"harvest,omitempty"`
	SpecialConsiderations string `json:"special_considerations,omitempty"`
}

type PlanningData struct {
	Months                 []MonthPlan `json:"months,omitempty"`
	CropRotation           string      `json:"crop_rotation,omitempty"`
	ResourceAllocation     string      `json:"resource_allocation,omitempty"`
	RiskMitigation         string      `json:"risk_mitigation,omitempty"`
	EconomicConsiderations string      `json:"economic_considerations,omitempty"`
}

func (p *PlanningData) IsEmpty() bool {
	return p == nil || (len(p.Months) == 0 && p.CropRotation == "" && p.ResourceAllocation == "" &&
		p.RiskMitigation == "" && p.EconomicConsiderations == "")
}

// ConversationState is the record threaded through one turn and persisted
// between turns. Messages are append-only and their order is the model
// context.
type ConversationState struct {
	SessionID string `json:"session_id"`
	FarmerID  int64  `json:"farmer_id,omitempty"`
	FarmID    int64  `json:"farm_id,omitempty"`

	Messages        []Message     `json:"messages,omitempty"`
	ExtractedData   FarmFacts     `json:"extracted_data"`
	PlanningData    *PlanningData `json:"planning_data,omitempty"`
	Recommendations []string      `json:"recommendations,omitempty"`

	ActiveRole Role `json:"active_role"`
	HopCount   int  `json:"hop_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var (
	ErrInvalidRole     = errors.New("invalid role")
	ErrNegativeHop     = errors.New("hop count is negative")
	ErrEmptyMessageLog = errors.New("message has no content")
)

func NewConversationState(sessionID string, now time.Time) *ConversationState {
	return &ConversationState{
		SessionID:  sessionID,
		ActiveRole: RoleHuman,
		CreatedAt:  now.UTC(),
		UpdatedAt:  now.UTC(),
	}
}

func (s *ConversationState) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

func (s *ConversationState) AppendMessage(role MessageRole, content string) {
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}
	s.Messages = append(s.Messages, Message{Role: role, Content: content})
}

// BeginTurn records the human input and re-enters the dispatch graph at
// entry with a fresh hop budget.
func (s *ConversationState) BeginTurn(text string, entry Role, now time.Time) {
	s.AppendMessage(MessageUser, text)
	s.HopCount = 0
	s.ActiveRole = entry
	s.Touch(now)
}

func (s *ConversationState) MergeExtracted(update FarmFacts) {
	s.ExtractedData.Merge(update)
}

// SetPlanning keeps the newest plan; an empty plan leaves the previous one.
func (s *ConversationState) SetPlanning(p *PlanningData) {
	if p.IsEmpty() {
		return
	}
	s.PlanningData = p
}

func (s *ConversationState) AppendRecommendations(items []string) {
	for _, item := range items {
		if v := strings.TrimSpace(item); v != "" {
			s.Recommendations = append(s.Recommendations, v)
		}
	}
}

// LastMessage returns the newest message with the given role.
func (s *ConversationState) LastMessage(role MessageRole) (Message, bool) {
	if s == nil {
		return Message{}, false
	}
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == role {
			return s.Messages[i], true
		}
	}
	return Message{}, false
}

func (s *ConversationState) Validate() error {
	if strings.TrimSpace(s.SessionID) == "" {
		return ErrInvalidSession
	}
	if !s.ActiveRole.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, s.ActiveRole)
	}
	if s.HopCount < 0 {
		return ErrNegativeHop
	}
	for i, m := range s.Messages {
		if strings.TrimSpace(m.Content) == "" {
			return fmt.Errorf("%w: index=%d", ErrEmptyMessageLog, i)
		}
	}
	return nil
}

// Clone returns a deep copy so stores never alias a live turn's state.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	out := *s
	out.Messages = append([]Message(nil), s.Messages...)
	out.Recommendations = append([]string(nil), s.Recommendations...)
	if s.PlanningData != nil {
		p := *s.PlanningData
		p.Months = append([]MonthPlan(nil), s.PlanningData.Months...)
		out.PlanningData = &p
	}
	return &out
}
