package mock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"nutrilabel/internal/db"
	applog "nutrilabel/internal/log"
	"nutrilabel/internal/nutrition"
	"nutrilabel/models"
)

// Demo account seeded into every mock database.
const (
	DemoEmail    = "demo@nutrilabel.dev"
	DemoPassword = "nutrition"
	DemoUUID     = "00000000-0000-4000-8000-000000000001"
)

// New returns an in-memory sqlite database seeded with a demo account and
// one completed analysis. Each call gets its own database.
func New(ctx context.Context) (*gorm.DB, error) {
	applog.Debug(ctx, "initialising mock database")

	dsn := fmt.Sprintf("file:nutrilabel-mock-%s?mode=memory&cache=shared", uuid.NewString())
	database, err := gorm.Open(sqlite.Open(dsn), db.GormConfig(logger.Silent))
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(database); err != nil {
		return nil, err
	}

	if err := seed(ctx, database); err != nil {
		return nil, err
	}

	applog.Debug(ctx, "mock database ready")
	return database, nil
}

func seed(ctx context.Context, database *gorm.DB) error {
	applog.Debug(ctx, "seeding mock database")

	password, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	user := &models.User{
		UUID:         DemoUUID,
		Email:        DemoEmail,
		DisplayName:  "Demo Eater",
		PasswordHash: string(password),
	}
	if err := database.WithContext(ctx).Create(user).Error; err != nil {
		return err
	}

	label := nutrition.Merge(nutrition.DefaultLabel(), map[string]float64{
		"total_fat":     7,
		"saturated_fat": 1,
		"carbohydrates": 26,
		"fiber":         3,
		"total_sugar":   11,
		"added_sugar":   9,
		"protein":       4,
		"sodium":        95,
	})
	label.TotalCalories = 190
	confidence := 0.92
	label.Metadata.ConfidenceScore = &confidence
	label.Ingredients = []string{"Whole grain oats", "Honey", "Almonds"}
	label.Allergens = []string{"Tree nuts"}

	now := time.Now().UTC()
	processed := now.Add(-time.Hour)
	label.Metadata.ProcessedTimestamp = &processed

	granola := &models.Analysis{
		RequestID:       uuid.NewString(),
		UserID:          DemoUUID,
		UserUUID:        DemoUUID,
		FoodName:        "Granola Bar",
		MealType:        models.MealSnack,
		Tags:            datatypes.JSONSlice[string]{"breakfast"},
		ImageURL:        "https://images.nutrilabel.dev/granola.jpg",
		NutritionInfo:   datatypes.NewJSONType(&label),
		TokenUsage:      models.TokenUsage{PromptTokens: 1450, CompletionTokens: 610, TotalTokens: 2060},
		Status:          models.StatusCompleted,
		Model:           "llama-3.2-11b-vision-preview",
		CreatedAt:       processed,
		CompletedAt:     &processed,
		ProcessingTime:  2.4,
		VLMResponseTime: 2.1,
	}
	if err := database.WithContext(ctx).Create(granola).Error; err != nil {
		return err
	}

	applog.Debug(ctx, "mock database seeded")
	return nil
}
