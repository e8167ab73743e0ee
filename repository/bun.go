package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

type Config struct {
	DSN         string        `envconfig:"DSN" split_words:"true"`
	DialTimeout time.Duration `envconfig:"DIAL_TIMEOUT" split_words:"true" default:"5s"`
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.DSN) != ""
}

// BunRepository is the Postgres-backed repository. Each call commits on its
// own; no method spans a transaction.
type BunRepository struct {
	db  *bun.DB
	now func() time.Time
}

func Open(cfg Config) (*BunRepository, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("database dsn is required")
	}

	opts := []pgdriver.Option{pgdriver.WithDSN(dsn)}
	if cfg.DialTimeout > 0 {
		opts = append(opts, pgdriver.WithDialTimeout(cfg.DialTimeout))
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(opts...))

	return NewBunRepository(bun.NewDB(sqldb, pgdialect.New())), nil
}

func NewBunRepository(db *bun.DB) *BunRepository {
	return &BunRepository{db: db, now: time.Now}
}

func (r *BunRepository) DB() *bun.DB {
	return r.db
}

func (r *BunRepository) Close() error {
	return r.db.Close()
}

// CreateSchema creates every table that does not exist yet, parents first.
func (r *BunRepository) CreateSchema(ctx context.Context) error {
	steps := []struct {
		model any
		fks   []string
	}{
		{model: (*Farmer)(nil)},
		{model: (*Farm)(nil), fks: []string{`("farmer_id") REFERENCES "farmers" ("id") ON DELETE CASCADE`}},
		{model: (*Conversation)(nil), fks: []string{`("farmer_id") REFERENCES "farmers" ("id") ON DELETE SET NULL`}},
		{model: (*Recommendation)(nil), fks: []string{`("farm_id") REFERENCES "farms" ("id") ON DELETE CASCADE`}},
		{model: (*Plan)(nil), fks: []string{`("farm_id") REFERENCES "farms" ("id") ON DELETE CASCADE`}},
		{model: (*Message)(nil), fks: []string{`("conversation_id") REFERENCES "conversations" ("id") ON DELETE CASCADE`}},
	}

	for _, step := range steps {
		q := r.db.NewCreateTable().Model(step.model).IfNotExists()
		for _, fk := range step.fks {
			q = q.ForeignKey(fk)
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", step.model, err)
		}
	}
	return nil
}

func (r *BunRepository) CreateFarmer(ctx context.Context, farmer *Farmer) error {
	if _, err := r.db.NewInsert().Model(farmer).Returning("*").Exec(ctx); err != nil {
		return fmt.Errorf("insert farmer: %w", err)
	}
	return nil
}

func (r *BunRepository) GetFarmer(ctx context.Context, id int64) (*Farmer, error) {
	farmer := new(Farmer)
	err := r.db.NewSelect().Model(farmer).Where("?TableAlias.id = ?", id).Limit(1).Scan(ctx)
	return nullable(farmer, err, "select farmer")
}

func (r *BunRepository) CreateFarm(ctx context.Context, farm *Farm) error {
	if err := validateFarm(farm); err != nil {
		return err
	}
	if _, err := r.db.NewInsert().Model(farm).Returning("*").Exec(ctx); err != nil {
		return fmt.Errorf("insert farm: %w", err)
	}
	return nil
}

func (r *BunRepository) UpdateFarm(ctx context.Context, farm *Farm) error {
	if farm == nil || farm.ID <= 0 {
		return ErrMissingFarm
	}
	if err := validateFarm(farm); err != nil {
		return err
	}
	farm.UpdatedAt = r.now().UTC()
	_, err := r.db.NewUpdate().
		Model(farm).
		Column("location", "surface_area", "soil_type", "current_plants", "weather_conditions", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update farm id=%d: %w", farm.ID, err)
	}
	return nil
}

func (r *BunRepository) GetFarm(ctx context.Context, id int64) (*Farm, error) {
	farm := new(Farm)
	err := r.db.NewSelect().Model(farm).Where("?TableAlias.id = ?", id).Limit(1).Scan(ctx)
	return nullable(farm, err, "select farm")
}

func (r *BunRepository) LatestFarmForFarmer(ctx context.Context, farmerID int64) (*Farm, error) {
	farm := new(Farm)
	err := r.db.NewSelect().
		Model(farm).
		Where("?TableAlias.farmer_id = ?", farmerID).
		OrderExpr("?TableAlias.created_at DESC, ?TableAlias.id DESC").
		Limit(1).
		Scan(ctx)
	return nullable(farm, err, "select latest farm")
}

func (r *BunRepository) SaveFarmFromExtraction(ctx context.Context, farm *Farm) (*Farm, error) {
	if err := validateFarm(farm); err != nil {
		return nil, err
	}
	existing, err := r.LatestFarmForFarmer(ctx, farm.FarmerID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		if err := r.CreateFarm(ctx, farm); err != nil {
			return nil, err
		}
		return farm, nil
	}

	overwriteFarm(existing, farm)
	if err := r.UpdateFarm(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

func (r *BunRepository) CreateRecommendation(ctx context.Context, rec *Recommendation) error {
	if rec == nil || rec.FarmID <= 0 {
		return ErrMissingFarm
	}
	if _, err := r.db.NewInsert().Model(rec).Returning("*").Exec(ctx); err != nil {
		return fmt.Errorf("insert recommendation: %w", err)
	}
	return nil
}

func (r *BunRepository) ListRecommendations(ctx context.Context, farmID int64) ([]Recommendation, error) {
	var recs []Recommendation
	err := r.db.NewSelect().
		Model(&recs).
		Where("?TableAlias.farm_id = ?", farmID).
		OrderExpr("?TableAlias.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list recommendations: %w", err)
	}
	return recs, nil
}

func (r *BunRepository) CreatePlan(ctx context.Context, plan *Plan) error {
	if plan == nil || plan.FarmID <= 0 {
		return ErrMissingFarm
	}
	if _, err := r.db.NewInsert().Model(plan).Returning("*").Exec(ctx); err != nil {
		return fmt.Errorf("insert plan: %w", err)
	}
	return nil
}

func (r *BunRepository) ListPlans(ctx context.Context, farmID int64) ([]Plan, error) {
	var plans []Plan
	err := r.db.NewSelect().
		Model(&plans).
		Where("?TableAlias.farm_id = ?", farmID).
		OrderExpr("?TableAlias.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	return plans, nil
}

func (r *BunRepository) CreateConversation(ctx context.Context, conv *Conversation) error {
	if conv == nil || strings.TrimSpace(conv.SessionID) == "" {
		return ErrMissingSession
	}
	if _, err := r.db.NewInsert().Model(conv).Returning("*").Exec(ctx); err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

func (r *BunRepository) GetConversation(ctx context.Context, sessionID string) (*Conversation, error) {
	conv := new(Conversation)
	err := r.db.NewSelect().Model(conv).Where("?TableAlias.session_id = ?", sessionID).Limit(1).Scan(ctx)
	return nullable(conv, err, "select conversation")
}

func (r *BunRepository) AppendMessage(ctx context.Context, msg *Message) error {
	if _, err := r.db.NewInsert().Model(msg).Returning("*").Exec(ctx); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *BunRepository) ListMessages(ctx context.Context, conversationID int64) ([]Message, error) {
	var msgs []Message
	err := r.db.NewSelect().
		Model(&msgs).
		Where("?TableAlias.conversation_id = ?", conversationID).
		OrderExpr("?TableAlias.created_at ASC, ?TableAlias.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

func (r *BunRepository) SaveConversationHistory(
	ctx context.Context,
	sessionID string,
	farmerID int64,
	userMessage string,
	assistantMessage string,
) (*Conversation, error) {
	conv, err := r.GetConversation(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		conv = &Conversation{SessionID: sessionID, FarmerID: farmerID}
		if err := r.CreateConversation(ctx, conv); err != nil {
			return nil, err
		}
	} else if conv.FarmerID == 0 && farmerID > 0 {
		conv.FarmerID = farmerID
		conv.UpdatedAt = r.now().UTC()
		_, err := r.db.NewUpdate().
			Model(conv).
			Column("farmer_id", "updated_at").
			WherePK().
			Exec(ctx)
		if err != nil {
			return nil, fmt.Errorf("link conversation farmer: %w", err)
		}
	}

	for _, m := range historyMessages(conv.ID, userMessage, assistantMessage) {
		if err := r.AppendMessage(ctx, &m); err != nil {
			return nil, err
		}
	}
	return conv, nil
}

func nullable[T any](v *T, err error, op string) (*T, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return v, nil
}

func overwriteFarm(dst *Farm, src *Farm) {
	dst.Location = src.Location
	dst.SurfaceArea = src.SurfaceArea
	dst.SoilType = src.SoilType
	dst.CurrentPlants = src.CurrentPlants
	dst.WeatherConditions = src.WeatherConditions
}

func historyMessages(conversationID int64, userMessage, assistantMessage string) []Message {
	out := make([]Message, 0, 2)
	if v := strings.TrimSpace(userMessage); v != "" {
		out = append(out, Message{ConversationID: conversationID, Role: "user", Content: v})
	}
	if v := strings.TrimSpace(assistantMessage); v != "" {
		out = append(out, Message{ConversationID: conversationID, Role: "assistant", Content: v})
	}
	return out
}
