package nutrition

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Schema is the subset of JSON Schema used to constrain model output.
type Schema struct {
	Type        string
	Nullable    bool
	Description string
	Properties  map[string]*Schema
	Required    []string
	Items       *Schema
	Enum        []string
	Minimum     *float64
	Maximum     *float64
}

// MarshalJSON renders s as a standard JSON Schema document. Nullable types
// become a ["type","null"] union and objects forbid extra properties.
func (s *Schema) MarshalJSON() ([]byte, error) {
	out := map[string]any{}
	if s.Nullable {
		out["type"] = []string{s.Type, "null"}
	} else {
		out["type"] = s.Type
	}
	if s.Description != "" {
		out["description"] = s.Description
	}
	if len(s.Properties) > 0 {
		out["properties"] = s.Properties
		out["additionalProperties"] = false
	}
	if len(s.Required) > 0 {
		out["required"] = s.Required
	}
	if s.Items != nil {
		out["items"] = s.Items
	}
	if len(s.Enum) > 0 {
		out["enum"] = s.Enum
	}
	if s.Minimum != nil {
		out["minimum"] = *s.Minimum
	}
	if s.Maximum != nil {
		out["maximum"] = *s.Maximum
	}
	return json.Marshal(out)
}

func bound(v float64) *float64 { return &v }

func object(desc string, props map[string]*Schema, required ...string) *Schema {
	return &Schema{Type: "object", Description: desc, Properties: props, Required: required}
}

func nullableNumber(desc string) *Schema {
	return &Schema{Type: "number", Nullable: true, Description: desc}
}

func entrySchema(e NutrientEntry) *Schema {
	props := map[string]*Schema{
		"amount":                 nullableNumber(fmt.Sprintf("Amount in %s per serving", e.Unit)),
		"unit":                   {Type: "string", Enum: []string{e.Unit}},
		"daily_value_percentage": nullableNumber("Percent daily value as printed"),
	}
	required := []string{"amount", "unit", "daily_value_percentage"}
	if e.Category == CategoryVitamin {
		props["vitamin_type"] = &Schema{Type: "string", Nullable: true}
		required = append(required, "vitamin_type")
	}
	if len(e.SubNutrients) > 0 {
		props["sub_nutrients"] = sectionSchema("", e.SubNutrients)
		required = append(required, "sub_nutrients")
	}
	return object(e.DisplayName, props, required...)
}

func sectionSchema(desc string, entries []NutrientEntry) *Schema {
	props := make(map[string]*Schema, len(entries))
	required := make([]string, 0, len(entries))
	for _, e := range entries {
		props[e.Name] = entrySchema(e)
		required = append(required, e.Name)
	}
	return object(desc, props, required...)
}

// ResponseSchema returns the JSON Schema a model's answer must satisfy.
// Nutrient sections are objects keyed by canonical name.
func ResponseSchema() *Schema {
	tmpl := DefaultLabel()
	stringList := &Schema{Type: "array", Nullable: true, Items: &Schema{Type: "string"}}
	return object("Nutrition facts extracted from a label image", map[string]*Schema{
		"metadata": object("Extraction metadata", map[string]*Schema{
			"confidence_score":    {Type: "number", Nullable: true, Minimum: bound(0), Maximum: bound(1)},
			"error_status":        {Type: "boolean", Nullable: true},
			"processed_timestamp": {Type: "string", Nullable: true},
		}, "confidence_score", "error_status", "processed_timestamp"),
		"product_details": object("", map[string]*Schema{
			"serving_size": object("", map[string]*Schema{
				"amount": nullableNumber("Serving size amount"),
				"unit":   {Type: "string"},
				"type": {Type: "string", Enum: []string{
					string(ServingCalories), string(ServingServing), string(ServingContainer),
				}},
			}, "amount", "unit", "type"),
		}, "serving_size"),
		"total_calories": {Type: "integer", Minimum: bound(0), Description: "Calories per serving in kcal"},
		"nutrients":      sectionSchema("Macronutrients", tmpl.Nutrients),
		"micronutrients": sectionSchema("Minerals", tmpl.Micronutrients),
		"vitamins":       sectionSchema("Vitamins", tmpl.Vitamins),
		"ingredients":    stringList,
		"allergens":      stringList,
	}, "metadata", "product_details", "total_calories", "nutrients", "micronutrients", "vitamins", "ingredients", "allergens")
}

// Example returns a JSON answer in the shape ResponseSchema describes, with
// every nutrient present and zeroed.
func Example() string {
	tmpl := DefaultLabel()
	section := func(entries []NutrientEntry) map[string]any {
		out := make(map[string]any, len(entries))
		for _, e := range entries {
			v := map[string]any{"amount": 0, "unit": e.Unit, "daily_value_percentage": nil}
			if e.Category == CategoryVitamin {
				v["vitamin_type"] = e.VitaminType
			}
			if len(e.SubNutrients) > 0 {
				subs := make(map[string]any, len(e.SubNutrients))
				for _, sub := range e.SubNutrients {
					subs[sub.Name] = map[string]any{"amount": 0, "unit": sub.Unit, "daily_value_percentage": nil}
				}
				v["sub_nutrients"] = subs
			}
			out[e.Name] = v
		}
		return out
	}
	doc := map[string]any{
		"metadata": map[string]any{"confidence_score": 0.0, "error_status": false, "processed_timestamp": nil},
		"product_details": map[string]any{
			"serving_size": map[string]any{"amount": 0, "unit": "g", "type": ServingServing},
		},
		"total_calories": 0,
		"nutrients":      section(tmpl.Nutrients),
		"micronutrients": section(tmpl.Micronutrients),
		"vitamins":       section(tmpl.Vitamins),
		"ingredients":    nil,
		"allergens":      nil,
	}
	b, _ := json.MarshalIndent(doc, "", "  ")
	return string(b)
}

// Instruction returns the extraction prompt sent alongside the image.
func Instruction() string {
	tmpl := DefaultLabel()
	var b strings.Builder
	b.WriteString("You are a nutrition label reader. Extract the nutrition facts from the image and answer with a single JSON object only. No Markdown, no commentary.\n\n")

	b.WriteString("Units:\n")
	b.WriteString("- Report every amount per serving as a plain number in the unit listed below. Convert when the label uses another unit (1 g = 1000 mg, 1 mg = 1000 mcg, 1 IU vitamin D = 0.025 mcg).\n")
	b.WriteString("- Energy is total_calories in kcal, rounded to a whole number. Convert kJ by dividing by 4.184.\n")
	b.WriteString("- Serving size keeps the unit printed on the label; type is one of calories, serving, container.\n\n")

	b.WriteString("Names:\n")
	b.WriteString("- Normalize abbreviations before matching: \"sat.\" means saturated, \"cholest.\" means cholesterol, \"carb.\" means carbohydrates, \"vit.\" means vitamin, \"incl.\" marks added sugars.\n")
	b.WriteString("- Use exactly these keys:\n")
	writeSection := func(title string, entries []NutrientEntry) {
		fmt.Fprintf(&b, "  %s:\n", title)
		for _, e := range entries {
			fmt.Fprintf(&b, "    %s (%s, %s)\n", e.Name, e.DisplayName, e.Unit)
			for _, sub := range e.SubNutrients {
				fmt.Fprintf(&b, "      %s.sub_nutrients.%s (%s, %s)\n", e.Name, sub.Name, sub.DisplayName, sub.Unit)
			}
		}
	}
	writeSection("nutrients", tmpl.Nutrients)
	writeSection("micronutrients", tmpl.Micronutrients)
	writeSection("vitamins", tmpl.Vitamins)
	b.WriteString("\n")

	b.WriteString("Missing values:\n")
	b.WriteString("- Every key above must appear. Use 0 for a nutrient the label lists without a quantity and null when it is not on the label or unreadable.\n")
	b.WriteString("- daily_value_percentage is the printed %DV as a number, or null.\n")
	b.WriteString("- ingredients and allergens are lists of strings, or null when the label has none.\n")
	b.WriteString("- Never guess values that are not visible.\n\n")

	b.WriteString("Confidence:\n")
	b.WriteString("- metadata.confidence_score is a number between 0 and 1: 0.9 or above for a sharp complete label, 0.5 to 0.9 when some values are blurred or cut off, below 0.5 when most values are guessed.\n")
	b.WriteString("- Set metadata.error_status to true when the image is not a nutrition label; otherwise false. Leave processed_timestamp null.\n\n")

	b.WriteString("Answer shape:\n")
	b.WriteString(Example())
	b.WriteString("\n")
	return b.String()
}
