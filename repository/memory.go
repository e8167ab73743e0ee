package repository

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryRepository keeps every record in process memory. It is used when no
// database is configured and by tests.
type MemoryRepository struct {
	mu sync.RWMutex

	nextID          int64
	farmers         map[int64]Farmer
	farms           map[int64]Farm
	recommendations []Recommendation
	plans           []Plan
	conversations   map[string]Conversation
	messages        []Message

	now func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		farmers:       make(map[int64]Farmer),
		farms:         make(map[int64]Farm),
		conversations: make(map[string]Conversation),
		now:           time.Now,
	}
}

func (r *MemoryRepository) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *MemoryRepository) stamp() time.Time {
	// Nanosecond-distinct stamps keep "latest" ordering stable.
	return r.now().UTC().Add(time.Duration(r.nextID))
}

func (r *MemoryRepository) CreateFarmer(_ context.Context, farmer *Farmer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	farmer.ID = r.id()
	farmer.CreatedAt = r.stamp()
	farmer.UpdatedAt = farmer.CreatedAt
	r.farmers[farmer.ID] = *farmer
	return nil
}

func (r *MemoryRepository) GetFarmer(_ context.Context, id int64) (*Farmer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	farmer, ok := r.farmers[id]
	if !ok {
		return nil, nil
	}
	return &farmer, nil
}

func (r *MemoryRepository) CreateFarm(_ context.Context, farm *Farm) error {
	if err := validateFarm(farm); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.insertFarm(farm)
	return nil
}

func (r *MemoryRepository) insertFarm(farm *Farm) {
	farm.ID = r.id()
	farm.CreatedAt = r.stamp()
	farm.UpdatedAt = farm.CreatedAt
	r.farms[farm.ID] = *farm
}

func (r *MemoryRepository) UpdateFarm(_ context.Context, farm *Farm) error {
	if farm == nil || farm.ID <= 0 {
		return ErrMissingFarm
	}
	if err := validateFarm(farm); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updateFarm(farm)
}

func (r *MemoryRepository) updateFarm(farm *Farm) error {
	existing, ok := r.farms[farm.ID]
	if !ok {
		return ErrMissingFarm
	}
	overwriteFarm(&existing, farm)
	existing.UpdatedAt = r.now().UTC()
	r.farms[farm.ID] = existing
	*farm = existing
	return nil
}

func (r *MemoryRepository) GetFarm(_ context.Context, id int64) (*Farm, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	farm, ok := r.farms[id]
	if !ok {
		return nil, nil
	}
	return &farm, nil
}

func (r *MemoryRepository) LatestFarmForFarmer(_ context.Context, farmerID int64) (*Farm, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latestFarm(farmerID), nil
}

func (r *MemoryRepository) latestFarm(farmerID int64) *Farm {
	var latest *Farm
	for _, farm := range r.farms {
		if farm.FarmerID != farmerID {
			continue
		}
		if latest == nil || farm.CreatedAt.After(latest.CreatedAt) ||
			(farm.CreatedAt.Equal(latest.CreatedAt) && farm.ID > latest.ID) {
			f := farm
			latest = &f
		}
	}
	return latest
}

func (r *MemoryRepository) SaveFarmFromExtraction(_ context.Context, farm *Farm) (*Farm, error) {
	if err := validateFarm(farm); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing := r.latestFarm(farm.FarmerID)
	if existing == nil {
		r.insertFarm(farm)
		out := *farm
		return &out, nil
	}

	overwriteFarm(existing, farm)
	if err := r.updateFarm(existing); err != nil {
		return nil, err
	}
	return existing, nil
}

func (r *MemoryRepository) CreateRecommendation(_ context.Context, rec *Recommendation) error {
	if rec == nil || rec.FarmID <= 0 {
		return ErrMissingFarm
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec.ID = r.id()
	rec.CreatedAt = r.stamp()
	r.recommendations = append(r.recommendations, *rec)
	return nil
}

func (r *MemoryRepository) ListRecommendations(_ context.Context, farmID int64) ([]Recommendation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Recommendation
	for _, rec := range r.recommendations {
		if rec.FarmID == farmID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *MemoryRepository) CreatePlan(_ context.Context, plan *Plan) error {
	if plan == nil || plan.FarmID <= 0 {
		return ErrMissingFarm
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	plan.ID = r.id()
	plan.CreatedAt = r.stamp()
	r.plans = append(r.plans, *plan)
	return nil
}

func (r *MemoryRepository) ListPlans(_ context.Context, farmID int64) ([]Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Plan
	for _, plan := range r.plans {
		if plan.FarmID == farmID {
			out = append(out, plan)
		}
	}
	return out, nil
}

func (r *MemoryRepository) CreateConversation(_ context.Context, conv *Conversation) error {
	if conv == nil || strings.TrimSpace(conv.SessionID) == "" {
		return ErrMissingSession
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.insertConversation(conv)
	return nil
}

func (r *MemoryRepository) insertConversation(conv *Conversation) {
	conv.ID = r.id()
	conv.CreatedAt = r.stamp()
	conv.UpdatedAt = conv.CreatedAt
	r.conversations[conv.SessionID] = *conv
}

func (r *MemoryRepository) GetConversation(_ context.Context, sessionID string) (*Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conv, ok := r.conversations[sessionID]
	if !ok {
		return nil, nil
	}
	return &conv, nil
}

func (r *MemoryRepository) AppendMessage(_ context.Context, msg *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendMessage(msg)
	return nil
}

func (r *MemoryRepository) appendMessage(msg *Message) {
	msg.ID = r.id()
	msg.CreatedAt = r.stamp()
	r.messages = append(r.messages, *msg)
}

func (r *MemoryRepository) ListMessages(_ context.Context, conversationID int64) ([]Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Message
	for _, msg := range r.messages {
		if msg.ConversationID == conversationID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (r *MemoryRepository) SaveConversationHistory(
	_ context.Context,
	sessionID string,
	farmerID int64,
	userMessage string,
	assistantMessage string,
) (*Conversation, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrMissingSession
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.conversations[sessionID]
	if !ok {
		conv = Conversation{SessionID: sessionID, FarmerID: farmerID}
		r.insertConversation(&conv)
	} else if conv.FarmerID == 0 && farmerID > 0 {
		// A conversation opened before extraction is linked once a farmer exists.
		conv.FarmerID = farmerID
		conv.UpdatedAt = r.stamp()
		r.conversations[sessionID] = conv
	}
	for _, m := range historyMessages(conv.ID, userMessage, assistantMessage) {
		r.appendMessage(&m)
	}
	return &conv, nil
}
