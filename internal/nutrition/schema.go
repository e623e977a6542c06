// Package nutrition holds the canonical nutrition-label schema together with
// the prompt builder and the parser that maps model output onto it.
package nutrition

import (
	"encoding/json"
	"strings"
	"time"
)

// Category classifies a nutrient.
type Category string

const (
	CategoryMacronutrient Category = "macronutrient"
	CategoryMicronutrient Category = "micronutrient"
	CategoryMineral       Category = "mineral"
	CategoryVitamin       Category = "vitamin"
)

// Group buckets nutrients for charting. The zero value encodes as null.
type Group string

const (
	GroupNone          Group = ""
	GroupFats          Group = "fats"
	GroupCarbohydrates Group = "carbohydrates"
	GroupProtein       Group = "protein"
	GroupElectrolytes  Group = "electrolytes"
	GroupVitamins      Group = "vitamins"
)

func (g Group) MarshalJSON() ([]byte, error) { return nullableString(string(g)) }

func (g *Group) UnmarshalJSON(data []byte) error {
	s, err := unmarshalNullable(data)
	*g = Group(s)
	return err
}

// VitaminType tags vitamins by solubility. The zero value encodes as null.
type VitaminType string

const (
	VitaminNone         VitaminType = ""
	VitaminFatSoluble   VitaminType = "fat_soluble"
	VitaminWaterSoluble VitaminType = "water_soluble"
)

func (v VitaminType) MarshalJSON() ([]byte, error) { return nullableString(string(v)) }

func (v *VitaminType) UnmarshalJSON(data []byte) error {
	s, err := unmarshalNullable(data)
	*v = VitaminType(s)
	return err
}

// ServingType describes what a serving size refers to.
type ServingType string

const (
	ServingCalories  ServingType = "calories"
	ServingServing   ServingType = "serving"
	ServingContainer ServingType = "container"
)

func parseServingType(value string) ServingType {
	switch ServingType(strings.ToLower(strings.TrimSpace(value))) {
	case ServingCalories:
		return ServingCalories
	case ServingContainer:
		return ServingContainer
	default:
		return ServingServing
	}
}

func nullableString(s string) ([]byte, error) {
	if s == "" {
		return []byte("null"), nil
	}
	return json.Marshal(s)
}

func unmarshalNullable(data []byte) (string, error) {
	if string(data) == "null" {
		return "", nil
	}
	var s string
	err := json.Unmarshal(data, &s)
	return s, err
}

// NutrientEntry is one row of a nutrition label.
type NutrientEntry struct {
	Name                 string          `json:"name"`
	DisplayName          string          `json:"display_name"`
	Amount               *float64        `json:"amount"`
	Unit                 string          `json:"unit"`
	Category             Category        `json:"category"`
	Group                Group           `json:"group"`
	DailyValuePercentage *float64        `json:"daily_value_percentage"`
	VitaminType          VitaminType     `json:"vitamin_type"`
	DisplayPriority      int             `json:"display_priority"`
	ColorCode            string          `json:"color_code"`
	SubNutrients         []NutrientEntry `json:"sub_nutrients"`
}

// Metadata describes the extraction itself.
type Metadata struct {
	ConfidenceScore    *float64   `json:"confidence_score"`
	ErrorStatus        *bool      `json:"error_status"`
	ProcessedTimestamp *time.Time `json:"processed_timestamp"`
}

type ServingSize struct {
	Amount *float64    `json:"amount"`
	Unit   string      `json:"unit"`
	Type   ServingType `json:"type"`
}

type ProductDetails struct {
	ServingSize ServingSize `json:"serving_size"`
}

// Label is the total, canonical nutrition label. Every predefined nutrient
// is present in every Label built from DefaultLabel.
type Label struct {
	Metadata       Metadata        `json:"metadata"`
	ProductDetails ProductDetails  `json:"product_details"`
	TotalCalories  int             `json:"total_calories"`
	Nutrients      []NutrientEntry `json:"nutrients"`
	Micronutrients []NutrientEntry `json:"micronutrients"`
	Vitamins       []NutrientEntry `json:"vitamins"`
	Ingredients    []string        `json:"ingredients"`
	Allergens      []string        `json:"allergens"`
}

func zero() *float64 {
	v := 0.0
	return &v
}

func macro(name, display, unit string, group Group, color string, priority int, subs ...NutrientEntry) NutrientEntry {
	return NutrientEntry{
		Name:            name,
		DisplayName:     display,
		Amount:          zero(),
		Unit:            unit,
		Category:        CategoryMacronutrient,
		Group:           group,
		DisplayPriority: priority,
		ColorCode:       color,
		SubNutrients:    subs,
	}
}

func mineral(name, display string, group Group, color string) NutrientEntry {
	return NutrientEntry{
		Name:        name,
		DisplayName: display,
		Amount:      zero(),
		Unit:        "mg",
		Category:    CategoryMineral,
		Group:       group,
		ColorCode:   color,
	}
}

func vitamin(name, display, unit string, kind VitaminType, color string) NutrientEntry {
	return NutrientEntry{
		Name:        name,
		DisplayName: display,
		Amount:      zero(),
		Unit:        unit,
		Category:    CategoryVitamin,
		Group:       GroupVitamins,
		VitaminType: kind,
		ColorCode:   color,
	}
}

// DefaultLabel returns a fresh label with every predefined nutrient at zero
// and every optional field null.
func DefaultLabel() Label {
	return Label{
		ProductDetails: ProductDetails{
			ServingSize: ServingSize{Amount: zero(), Unit: "g", Type: ServingServing},
		},
		Nutrients: []NutrientEntry{
			macro("total_fat", "Total Fat", "g", GroupFats, "#FF6384", 1,
				macro("saturated_fat", "Saturated Fat", "g", GroupFats, "#36A2EB", 0),
				macro("trans_fat", "Trans Fat", "g", GroupFats, "#FFCE56", 0),
			),
			macro("cholesterol", "Cholesterol", "mg", GroupFats, "#C9CBCF", 2),
			macro("carbohydrates", "Total Carbohydrates", "g", GroupCarbohydrates, "#4BC0C0", 3,
				macro("fiber", "Dietary Fiber", "g", GroupCarbohydrates, "#9966FF", 0),
				macro("total_sugar", "Total Sugars", "g", GroupCarbohydrates, "#FF9F40", 0),
				macro("added_sugar", "Added Sugars", "g", GroupCarbohydrates, "#FFCD94", 0),
			),
			macro("protein", "Protein", "g", GroupProtein, "#00A86B", 4),
		},
		Micronutrients: []NutrientEntry{
			mineral("sodium", "Sodium", GroupElectrolytes, "#FF6384"),
			mineral("potassium", "Potassium", GroupElectrolytes, "#8E5EA2"),
			mineral("calcium", "Calcium", GroupNone, "#36A2EB"),
			mineral("iron", "Iron", GroupNone, "#FFCE56"),
		},
		Vitamins: []NutrientEntry{
			vitamin("vitamin_a", "Vitamin A", "mcg", VitaminFatSoluble, "#4BC0C0"),
			vitamin("vitamin_c", "Vitamin C", "mg", VitaminWaterSoluble, "#9966FF"),
			vitamin("vitamin_d", "Vitamin D", "mcg", VitaminFatSoluble, "#FF9F40"),
		},
	}
}

// Clone returns a deep copy of l.
func (l Label) Clone() Label {
	out := l
	out.Metadata.ConfidenceScore = cloneFloat(l.Metadata.ConfidenceScore)
	if l.Metadata.ErrorStatus != nil {
		v := *l.Metadata.ErrorStatus
		out.Metadata.ErrorStatus = &v
	}
	if l.Metadata.ProcessedTimestamp != nil {
		v := *l.Metadata.ProcessedTimestamp
		out.Metadata.ProcessedTimestamp = &v
	}
	out.ProductDetails.ServingSize.Amount = cloneFloat(l.ProductDetails.ServingSize.Amount)
	out.Nutrients = cloneEntries(l.Nutrients)
	out.Micronutrients = cloneEntries(l.Micronutrients)
	out.Vitamins = cloneEntries(l.Vitamins)
	out.Ingredients = cloneStrings(l.Ingredients)
	out.Allergens = cloneStrings(l.Allergens)
	return out
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func cloneEntries(in []NutrientEntry) []NutrientEntry {
	if in == nil {
		return nil
	}
	out := make([]NutrientEntry, len(in))
	for i, e := range in {
		e.Amount = cloneFloat(e.Amount)
		e.DailyValuePercentage = cloneFloat(e.DailyValuePercentage)
		e.SubNutrients = cloneEntries(e.SubNutrients)
		out[i] = e
	}
	return out
}

// Find returns the entry for a canonical name, searching sub-nutrients too.
func (l *Label) Find(name string) *NutrientEntry {
	loc, ok := locators[name]
	if !ok {
		return nil
	}
	return loc.find(l)
}

// Amount returns the amount recorded for a canonical name, or 0.
func (l *Label) Amount(name string) float64 {
	if e := l.Find(name); e != nil && e.Amount != nil {
		return *e.Amount
	}
	return 0
}

// Merge overlays values, keyed by canonical nutrient name, onto a copy of
// label. Unknown keys are ignored. Merging the same values twice yields the
// same label as merging once.
func Merge(label Label, values map[string]float64) Label {
	out := label.Clone()
	for name, amount := range values {
		if e := out.Find(name); e != nil {
			v := amount
			e.Amount = &v
		}
	}
	return out
}
