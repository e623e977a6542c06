package analysis

import (
	"context"
	"math"
	"strings"
	"time"

	"gorm.io/datatypes"

	"nutrilabel/internal/apperr"
	"nutrilabel/internal/db"
	"nutrilabel/internal/nutrition"
	"nutrilabel/models"
)

// DateLayout is the calendar day format used by daily logs.
const DateLayout = "2006-01-02"

// Totals sums the headline values of a day's completed analyses.
type Totals struct {
	Calories      int     `json:"calories"`
	Protein       float64 `json:"protein"`
	Carbohydrates float64 `json:"carbohydrates"`
	TotalFat      float64 `json:"total_fat"`
	Fiber         float64 `json:"fiber"`
	TotalSugar    float64 `json:"total_sugar"`
	Sodium        float64 `json:"sodium"`
}

// DailyLog is everything a user analysed on one UTC calendar day.
type DailyLog struct {
	Date   string            `json:"date"`
	Items  []models.Analysis `json:"items"`
	Totals Totals            `json:"totals"`
}

func (t *Totals) add(l *nutrition.Label) {
	t.Calories += l.TotalCalories
	t.Protein += l.Amount("protein")
	t.Carbohydrates += l.Amount("carbohydrates")
	t.TotalFat += l.Amount("total_fat")
	t.Fiber += l.Amount("fiber")
	t.TotalSugar += l.Amount("total_sugar")
	t.Sodium += l.Amount("sodium")
}

func (t *Totals) round() {
	r := func(v float64) float64 { return math.Round(v*100) / 100 }
	t.Protein = r(t.Protein)
	t.Carbohydrates = r(t.Carbohydrates)
	t.TotalFat = r(t.TotalFat)
	t.Fiber = r(t.Fiber)
	t.TotalSugar = r(t.TotalSugar)
	t.Sodium = r(t.Sodium)
}

// DailyLog lists owner's analyses created on date (YYYY-MM-DD, UTC).
// Pending and failed analyses are listed but only completed ones count
// towards the totals.
func (s *Service) DailyLog(ctx context.Context, owner db.Owner, date string) (DailyLog, error) {
	const op = "analysis.DailyLog"

	owner, err := normalizeOwner(op, owner)
	if err != nil {
		return DailyLog{}, err
	}
	day, err := time.Parse(DateLayout, strings.TrimSpace(date))
	if err != nil {
		return DailyLog{}, apperr.Msg(apperr.KindValidation, op, "date must be formatted as YYYY-MM-DD")
	}

	items, err := s.repo.ListByOwner(ctx, owner, day, day.AddDate(0, 0, 1))
	if err != nil {
		return DailyLog{}, apperr.E(apperr.KindInternal, op, err)
	}

	out := DailyLog{Date: day.Format(DateLayout), Items: items}
	if out.Items == nil {
		out.Items = []models.Analysis{}
	}
	for i := range out.Items {
		if label := out.Items[i].Label(); label != nil && out.Items[i].Status == models.StatusCompleted {
			out.Totals.add(label)
		}
	}
	out.Totals.round()
	return out, nil
}

func nutritionInfo(label nutrition.Label) datatypes.JSONType[*nutrition.Label] {
	return datatypes.NewJSONType(&label)
}
