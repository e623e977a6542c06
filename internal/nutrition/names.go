package nutrition

import (
	"strings"
	"unicode"
)

type section uint8

const (
	sectionNutrients section = iota
	sectionMicronutrients
	sectionVitamins
)

// locator addresses an entry by section, top-level name and optional
// sub-nutrient name.
type locator struct {
	section section
	parent  string
	child   string
}

func (loc locator) find(l *Label) *NutrientEntry {
	var entries []NutrientEntry
	switch loc.section {
	case sectionNutrients:
		entries = l.Nutrients
	case sectionMicronutrients:
		entries = l.Micronutrients
	case sectionVitamins:
		entries = l.Vitamins
	}
	for i := range entries {
		if entries[i].Name != loc.parent {
			continue
		}
		if loc.child == "" {
			return &entries[i]
		}
		subs := entries[i].SubNutrients
		for j := range subs {
			if subs[j].Name == loc.child {
				return &subs[j]
			}
		}
		return nil
	}
	return nil
}

var locators = map[string]locator{
	"total_fat":     {sectionNutrients, "total_fat", ""},
	"saturated_fat": {sectionNutrients, "total_fat", "saturated_fat"},
	"trans_fat":     {sectionNutrients, "total_fat", "trans_fat"},
	"cholesterol":   {sectionNutrients, "cholesterol", ""},
	"carbohydrates": {sectionNutrients, "carbohydrates", ""},
	"fiber":         {sectionNutrients, "carbohydrates", "fiber"},
	"total_sugar":   {sectionNutrients, "carbohydrates", "total_sugar"},
	"added_sugar":   {sectionNutrients, "carbohydrates", "added_sugar"},
	"protein":       {sectionNutrients, "protein", ""},
	"sodium":        {sectionMicronutrients, "sodium", ""},
	"potassium":     {sectionMicronutrients, "potassium", ""},
	"calcium":       {sectionMicronutrients, "calcium", ""},
	"iron":          {sectionMicronutrients, "iron", ""},
	"vitamin_a":     {sectionVitamins, "vitamin_a", ""},
	"vitamin_c":     {sectionVitamins, "vitamin_c", ""},
	"vitamin_d":     {sectionVitamins, "vitamin_d", ""},
}

// CanonicalNames lists every predefined nutrient in label order.
func CanonicalNames() []string {
	return []string{
		"total_fat", "saturated_fat", "trans_fat", "cholesterol",
		"carbohydrates", "fiber", "total_sugar", "added_sugar", "protein",
		"sodium", "potassium", "calcium", "iron",
		"vitamin_a", "vitamin_c", "vitamin_d",
	}
}

var tokenExpansions = map[string]string{
	"sat":          "saturated",
	"satd":         "saturated",
	"cholest":      "cholesterol",
	"chol":         "cholesterol",
	"carb":         "carbohydrates",
	"carbs":        "carbohydrates",
	"carbohydrate": "carbohydrates",
	"carbo":        "carbohydrates",
	"vit":          "vitamin",
	"fibre":        "fiber",
	"fibers":       "fiber",
	"sugars":       "sugar",
	"fats":         "fat",
	"tot":          "total",
	"proteins":     "protein",
	"pot":          "potassium",
}

var droppedTokens = map[string]struct{}{
	"incl":     {},
	"includes": {},
	"include":  {},
	"dietary":  {},
}

var aliases = map[string]string{
	"total fat":           "total_fat",
	"fat":                 "total_fat",
	"saturated fat":       "saturated_fat",
	"saturated":           "saturated_fat",
	"trans fat":           "trans_fat",
	"trans":               "trans_fat",
	"cholesterol":         "cholesterol",
	"total carbohydrates": "carbohydrates",
	"carbohydrates":       "carbohydrates",
	"fiber":               "fiber",
	"total fiber":         "fiber",
	"total sugar":         "total_sugar",
	"sugar":               "total_sugar",
	"added sugar":         "added_sugar",
	"total added sugar":   "added_sugar",
	"protein":             "protein",
	"sodium":              "sodium",
	"potassium":           "potassium",
	"calcium":             "calcium",
	"iron":                "iron",
	"vitamin a":           "vitamin_a",
	"vitamin c":           "vitamin_c",
	"vitamin d":           "vitamin_d",
	"vitamin d3":          "vitamin_d",
	"ascorbic acid":       "vitamin_c",
}

// CanonicalName maps a raw nutrient name such as "Sat. Fat" or
// "Total Carbohydrate" onto its canonical key.
func CanonicalName(raw string) (string, bool) {
	fields := strings.FieldsFunc(strings.ToLower(raw), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, drop := droppedTokens[f]; drop {
			continue
		}
		if exp, ok := tokenExpansions[f]; ok {
			f = exp
		}
		tokens = append(tokens, f)
	}
	key := strings.Join(tokens, " ")
	if name, ok := aliases[key]; ok {
		return name, true
	}
	return "", false
}
