package repository

import (
	"time"

	"github.com/uptrace/bun"
)

type Farmer struct {
	bun.BaseModel `bun:"table:farmers,alias:fr"`

	ID          int64     `bun:"id,pk,autoincrement" json:"id"`
	Name        string    `bun:"name,nullzero" json:"name,omitempty"`
	PhoneNumber string    `bun:"phone_number,nullzero" json:"phone_number,omitempty"`
	Email       string    `bun:"email,nullzero" json:"email,omitempty"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt   time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

type Farm struct {
	bun.BaseModel `bun:"table:farms,alias:fa"`

	ID                int64     `bun:"id,pk,autoincrement" json:"id"`
	FarmerID          int64     `bun:"farmer_id,notnull" json:"farmer_id"`
	Location          string    `bun:"location,notnull" json:"location"`
	SurfaceArea       float64   `bun:"surface_area,notnull" json:"surface_area"` // hectares
	SoilType          string    `bun:"soil_type,nullzero" json:"soil_type,omitempty"`
	CurrentPlants     string    `bun:"current_plants,nullzero" json:"current_plants,omitempty"`
	WeatherConditions string    `bun:"weather_conditions,nullzero" json:"weather_conditions,omitempty"`
	CreatedAt         time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt         time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// Recommendation rows are append-only.
type Recommendation struct {
	bun.BaseModel `bun:"table:recommendations,alias:rc"`

	ID                int64     `bun:"id,pk,autoincrement" json:"id"`
	FarmID            int64     `bun:"farm_id,notnull" json:"farm_id"`
	RecommendedPlants string    `bun:"recommended_plants,notnull" json:"recommended_plants"`
	IrrigationMethods string    `bun:"irrigation_methods,notnull" json:"irrigation_methods"`
	Reasoning         string    `bun:"reasoning,nullzero" json:"reasoning,omitempty"`
	CreatedAt         time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

// Plan rows are append-only. MonthlySchedule holds the JSON month list.
type Plan struct {
	bun.BaseModel `bun:"table:plans,alias:pl"`

	ID                     int64     `bun:"id,pk,autoincrement" json:"id"`
	FarmID                 int64     `bun:"farm_id,notnull" json:"farm_id"`
	MonthlySchedule        string    `bun:"monthly_schedule,notnull" json:"monthly_schedule"`
	PlantingSchedule       string    `bun:"planting_schedule,nullzero" json:"planting_schedule,omitempty"`
	IrrigationSchedule     string    `bun:"irrigation_schedule,nullzero" json:"irrigation_schedule,omitempty"`
	SoilPreparation        string    `bun:"soil_preparation,nullzero" json:"soil_preparation,omitempty"`
	HarvestTimes           string    `bun:"harvest_times,nullzero" json:"harvest_times,omitempty"`
	SeasonalConsiderations string    `bun:"seasonal_considerations,nullzero" json:"seasonal_considerations,omitempty"`
	CreatedAt              time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

type Conversation struct {
	bun.BaseModel `bun:"table:conversations,alias:cv"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	FarmerID  int64     `bun:"farmer_id,nullzero" json:"farmer_id,omitempty"`
	SessionID string    `bun:"session_id,notnull,unique" json:"session_id"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

type Message struct {
	bun.BaseModel `bun:"table:messages,alias:ms"`

	ID             int64     `bun:"id,pk,autoincrement" json:"id"`
	ConversationID int64     `bun:"conversation_id,notnull" json:"conversation_id"`
	Role           string    `bun:"role,notnull" json:"role"`
	Content        string    `bun:"content,notnull" json:"content"`
	CreatedAt      time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}
