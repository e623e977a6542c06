package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"

	"nutrilabel/internal/nutrition"
)

// Analysis lifecycle states.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Meal types accepted on an analysis request.
const (
	MealBreakfast = "breakfast"
	MealLunch     = "lunch"
	MealDinner    = "dinner"
	MealSnack     = "snack"
)

// ValidMealType reports whether value names a known meal.
func ValidMealType(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case MealBreakfast, MealLunch, MealDinner, MealSnack:
		return true
	default:
		return false
	}
}

// TokenUsage is the model token accounting for one analysis.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Analysis is one image submitted for nutrition extraction. It is created
// pending and moves to completed or failed exactly once.
type Analysis struct {
	ID              uint                                 `gorm:"primaryKey" json:"-"`
	RequestID       string                               `gorm:"uniqueIndex;size:36;not null" json:"request_id"`
	UserID          string                               `gorm:"index;size:36" json:"user_id,omitempty"`
	UserUUID        string                               `gorm:"index;not null" json:"user_uuid"`
	FoodName        string                               `json:"food_name"`
	MealType        string                               `gorm:"size:16" json:"meal_type"`
	Tags            datatypes.JSONSlice[string]          `json:"tags"`
	ImageURL        string                               `gorm:"not null" json:"image_url"`
	NutritionInfo   datatypes.JSONType[*nutrition.Label] `json:"nutrition_info"`
	TokenUsage      TokenUsage                           `gorm:"embedded;embeddedPrefix:token_" json:"token_usage"`
	Status          string                               `gorm:"size:16;index;not null" json:"status"`
	Error           string                               `json:"error,omitempty"`
	Model           string                               `json:"model,omitempty"`
	CreatedAt       time.Time                            `gorm:"index" json:"created_at"`
	CompletedAt     *time.Time                           `json:"completed_at"`
	ProcessingTime  float64                              `json:"processing_time"`
	VLMResponseTime float64                              `json:"vlm_response_time"`
}

// Label returns the extracted label, or nil while the analysis is pending or
// after it failed.
func (a *Analysis) Label() *nutrition.Label {
	return a.NutritionInfo.Data()
}
