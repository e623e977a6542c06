package nutrition

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nutrilabel/internal/apperr"
)

func TestDefaultLabelIsTotal(t *testing.T) {
	t.Parallel()

	label := DefaultLabel()
	for _, name := range CanonicalNames() {
		entry := label.Find(name)
		require.NotNil(t, entry, "missing %s", name)
		require.NotNil(t, entry.Amount, "nil amount for %s", name)
		assert.Zero(t, *entry.Amount)
	}

	raw, err := json.Marshal(label)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	for _, key := range []string{"metadata", "product_details", "total_calories", "nutrients", "micronutrients", "vitamins", "ingredients", "allergens"} {
		assert.Contains(t, doc, key)
	}
	assert.Nil(t, doc["ingredients"])

	micros := doc["micronutrients"].([]any)
	calcium := micros[2].(map[string]any)
	assert.Equal(t, "calcium", calcium["name"])
	assert.Contains(t, calcium, "group")
	assert.Nil(t, calcium["group"])
	sodium := micros[0].(map[string]any)
	assert.Equal(t, "electrolytes", sodium["group"])
}

func TestLabelRoundTripsGroups(t *testing.T) {
	t.Parallel()

	raw, err := json.Marshal(DefaultLabel())
	require.NoError(t, err)

	var decoded Label
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, GroupNone, decoded.Find("iron").Group)
	assert.Equal(t, VitaminFatSoluble, decoded.Find("vitamin_d").VitaminType)
	assert.Equal(t, VitaminNone, decoded.Find("protein").VitaminType)
}

func TestMergeIsIdempotentAndIgnoresUnknownKeys(t *testing.T) {
	t.Parallel()

	base := DefaultLabel()
	values := map[string]float64{
		"total_fat":     10.5,
		"saturated_fat": 3.2,
		"fiber":         2.5,
		"sodium":        250,
		"vitamin_c":     15,
		"unobtainium":   99,
	}

	once := Merge(base, values)
	twice := Merge(once, values)
	assert.Equal(t, once, twice)

	assert.Equal(t, 10.5, once.Amount("total_fat"))
	assert.Equal(t, 3.2, once.Amount("saturated_fat"))
	assert.Equal(t, 2.5, once.Amount("fiber"))
	assert.Equal(t, 250.0, once.Amount("sodium"))
	assert.Equal(t, 15.0, once.Amount("vitamin_c"))
	assert.Zero(t, once.Amount("protein"))

	assert.Zero(t, base.Amount("total_fat"), "merge must not mutate its input")
}

func TestCanonicalName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"Sat. Fat", "saturated_fat", true},
		{"Cholest.", "cholesterol", true},
		{"Total Carbohydrate", "carbohydrates", true},
		{"carbs", "carbohydrates", true},
		{"Dietary Fiber", "fiber", true},
		{"Sugars", "total_sugar", true},
		{"Incl. Added Sugars", "added_sugar", true},
		{"Vit. C", "vitamin_c", true},
		{"vitamin_a", "vitamin_a", true},
		{"total_fat", "total_fat", true},
		{"Protein", "protein", true},
		{"Sodium", "sodium", true},
		{"Salt", "", false},
		{"Energy", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			got, ok := CanonicalName(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseMinimalAnswer(t *testing.T) {
	t.Parallel()

	raw := `{"total_calories":120,"metadata":{"confidence_score":0.9},"product_details":{"serving_size":{"amount":40,"unit":"g"}},"nutrients":{"protein":{"amount":3,"unit":"g"}}}`
	label, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, 120, label.TotalCalories)
	require.NotNil(t, label.Metadata.ConfidenceScore)
	assert.Equal(t, 0.9, *label.Metadata.ConfidenceScore)
	assert.Nil(t, label.Metadata.ErrorStatus)
	require.NotNil(t, label.ProductDetails.ServingSize.Amount)
	assert.Equal(t, 40.0, *label.ProductDetails.ServingSize.Amount)
	assert.Equal(t, ServingServing, label.ProductDetails.ServingSize.Type)
	assert.Equal(t, 3.0, label.Amount("protein"))

	for _, name := range CanonicalNames() {
		assert.NotNil(t, label.Find(name), "missing %s", name)
	}
	assert.Nil(t, label.Ingredients)
	assert.Nil(t, label.Allergens)
}

func TestParseExampleYieldsEveryKey(t *testing.T) {
	t.Parallel()

	label, err := Parse(Example())
	require.NoError(t, err)
	for _, name := range CanonicalNames() {
		entry := label.Find(name)
		require.NotNil(t, entry, "missing %s", name)
		assert.Zero(t, *entry.Amount)
	}
}

func TestParseRequiredKeys(t *testing.T) {
	t.Parallel()

	for _, missing := range []string{"metadata", "product_details", "total_calories", "nutrients"} {
		missing := missing
		t.Run(missing, func(t *testing.T) {
			t.Parallel()
			doc := map[string]any{
				"metadata":        map[string]any{},
				"product_details": map[string]any{},
				"total_calories":  0,
				"nutrients":       map[string]any{},
			}
			delete(doc, missing)
			raw, err := json.Marshal(doc)
			require.NoError(t, err)

			_, err = Parse(string(raw))
			require.Error(t, err)
			assert.Equal(t, apperr.KindSchemaViolation, apperr.KindOf(err))
		})
	}
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "not json", `{"metadata": `} {
		_, err := Parse(raw)
		require.Error(t, err)
		assert.Equal(t, apperr.KindMalformedResponse, apperr.KindOf(err), "input %q", raw)
	}
}

func TestParseRejectsNonObject(t *testing.T) {
	t.Parallel()

	_, err := Parse(`[1, 2, 3]`)
	require.Error(t, err)
	assert.Equal(t, apperr.KindSchemaViolation, apperr.KindOf(err))
}

func TestParseCoercesLooseValues(t *testing.T) {
	t.Parallel()

	raw := "```json\n" + `{
  "metadata": {"confidence_score": 1.7, "error_status": "false", "processed_timestamp": "2024-05-01T10:00:00Z"},
  "product_details": {"serving_size": {"amount": "40 g", "unit": "g", "type": "Container"}},
  "total_calories": "119.6 kcal",
  "nutrients": [
    {"name": "Total Fat", "amount": 8, "unit": "g", "daily_value_percentage": 10,
     "sub_nutrients": [{"name": "Sat. Fat", "amount": "1.5g"}, {"name": "Trans Fat", "amount": null}]},
    {"name": "Cholest.", "amount": 0},
    {"name": "Total Carbohydrate", "amount": 22, "sub_nutrients": {"Dietary Fiber": 3, "Sugars": 9, "Incl. Added Sugars": 7}},
    {"name": "Protein", "amount": -2}
  ],
  "micronutrients": {"Sodium": {"amount": 140}, "Magnesium": {"amount": 12}},
  "vitamins": [{"name": "Vit. D", "amount": 2, "vitamin_type": "fat_soluble"}],
  "ingredients": "Whole grain oats, honey, oats , almonds",
  "allergens": ["Tree Nuts", "tree nuts", ""]
}` + "\n```"

	label, err := Parse(raw)
	require.NoError(t, err)

	require.NotNil(t, label.Metadata.ConfidenceScore)
	assert.Equal(t, 1.0, *label.Metadata.ConfidenceScore)
	require.NotNil(t, label.Metadata.ErrorStatus)
	assert.False(t, *label.Metadata.ErrorStatus)
	require.NotNil(t, label.Metadata.ProcessedTimestamp)
	assert.Equal(t, ServingContainer, label.ProductDetails.ServingSize.Type)
	assert.Equal(t, 40.0, *label.ProductDetails.ServingSize.Amount)

	assert.Equal(t, 120, label.TotalCalories)
	assert.Equal(t, 8.0, label.Amount("total_fat"))
	require.NotNil(t, label.Find("total_fat").DailyValuePercentage)
	assert.Equal(t, 10.0, *label.Find("total_fat").DailyValuePercentage)
	assert.Equal(t, 1.5, label.Amount("saturated_fat"))
	assert.Zero(t, label.Amount("trans_fat"))
	assert.Equal(t, 22.0, label.Amount("carbohydrates"))
	assert.Equal(t, 3.0, label.Amount("fiber"))
	assert.Equal(t, 9.0, label.Amount("total_sugar"))
	assert.Equal(t, 7.0, label.Amount("added_sugar"))
	assert.Zero(t, label.Amount("protein"))
	assert.Equal(t, 140.0, label.Amount("sodium"))
	assert.Equal(t, 2.0, label.Amount("vitamin_d"))

	assert.Equal(t, []string{"Whole grain oats", "honey", "oats", "almonds"}, label.Ingredients)
	assert.Equal(t, []string{"Tree Nuts"}, label.Allergens)
}

func TestParseClampsCalories(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		calories string
		want     int
	}{
		{name: "huge number", calories: `1e20`, want: maxCalories},
		{name: "huge string", calories: `"99999999999999999999 kcal"`, want: maxCalories},
		{name: "negative", calories: `-5`, want: 0},
		{name: "object", calories: `{"amount": 250.4}`, want: 250},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			label, err := Parse(`{"metadata": {}, "product_details": {}, "total_calories": ` + tc.calories + `, "nutrients": {}}`)
			require.NoError(t, err)
			assert.Equal(t, tc.want, label.TotalCalories)
			assert.GreaterOrEqual(t, label.TotalCalories, 0)
		})
	}
}

func TestParseNullsWrongTypedMetadata(t *testing.T) {
	t.Parallel()

	raw := `{"metadata":{"confidence_score":"high","error_status":7,"processed_timestamp":"yesterday"},"product_details":null,"total_calories":-40,"nutrients":{}}`
	label, err := Parse(raw)
	require.NoError(t, err)

	assert.Nil(t, label.Metadata.ConfidenceScore)
	assert.Nil(t, label.Metadata.ErrorStatus)
	assert.Nil(t, label.Metadata.ProcessedTimestamp)
	assert.Zero(t, label.TotalCalories)
	assert.Equal(t, "g", label.ProductDetails.ServingSize.Unit)
}

func TestParseToleratesSurroundingProse(t *testing.T) {
	t.Parallel()

	raw := `Here is the label: {"metadata":{},"product_details":{},"total_calories":90,"nutrients":{"fat":1}} Hope this helps.`
	label, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, 90, label.TotalCalories)
	assert.Equal(t, 1.0, label.Amount("total_fat"))
}

func TestInstructionIsDeterministic(t *testing.T) {
	t.Parallel()

	first := Instruction()
	assert.Equal(t, first, Instruction())
	assert.Contains(t, first, `"sat." means saturated`)
	assert.Contains(t, first, `"cholest." means cholesterol`)
	assert.Contains(t, first, "confidence_score")
	for _, name := range []string{"total_fat", "saturated_fat", "cholesterol", "vitamin_d"} {
		assert.Contains(t, first, name)
	}
}

func TestResponseSchemaDocument(t *testing.T) {
	t.Parallel()

	first, err := json.Marshal(ResponseSchema())
	require.NoError(t, err)
	second, err := json.Marshal(ResponseSchema())
	require.NoError(t, err)
	assert.JSONEq(t, string(first), string(second))
	assert.Equal(t, string(first), string(second))

	var doc struct {
		Required   []string `json:"required"`
		Properties map[string]struct {
			Type       any            `json:"type"`
			Required   []string       `json:"required"`
			Properties map[string]any `json:"properties"`
		} `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(first, &doc))

	assert.ElementsMatch(t, []string{"metadata", "product_details", "total_calories", "nutrients", "micronutrients", "vitamins", "ingredients", "allergens"}, doc.Required)
	assert.Equal(t, []string{"total_fat", "cholesterol", "carbohydrates", "protein"}, doc.Properties["nutrients"].Required)
	assert.Equal(t, []any{"array", "null"}, doc.Properties["ingredients"].Type)

	confidence := doc.Properties["metadata"].Properties["confidence_score"].(map[string]any)
	assert.Equal(t, []any{"number", "null"}, confidence["type"])
	assert.Equal(t, 1.0, confidence["maximum"])
}
