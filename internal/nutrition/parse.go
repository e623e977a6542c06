package nutrition

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"nutrilabel/internal/apperr"
)

var requiredKeys = []string{"metadata", "product_details", "total_calories", "nutrients"}

// Parse decodes a model answer and maps it onto DefaultLabel. Loose values
// are coerced, clamped or nulled; only undecodable JSON and missing
// top-level keys are errors.
func Parse(raw string) (Label, error) {
	const op = "nutrition.Parse"

	doc, err := decode(stripFences(raw))
	if err != nil {
		return Label{}, apperr.E(apperr.KindMalformedResponse, op, err)
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		return Label{}, apperr.E(apperr.KindSchemaViolation, op, fmt.Errorf("top level is %T, want object", doc))
	}
	for _, key := range requiredKeys {
		if _, ok := obj[key]; !ok {
			return Label{}, apperr.E(apperr.KindSchemaViolation, op, fmt.Errorf("required key %q missing", key))
		}
	}

	label := DefaultLabel()
	label.Metadata = parseMetadata(obj["metadata"])
	label.ProductDetails = parseProductDetails(obj["product_details"], label.ProductDetails)
	label.TotalCalories = parseCalories(obj["total_calories"])

	values := make(map[string]entryValue)
	for _, key := range []string{"nutrients", "micronutrients", "vitamins"} {
		collectEntries(obj[key], values)
	}
	amounts := make(map[string]float64, len(values))
	for name, v := range values {
		if v.amount != nil {
			amounts[name] = *v.amount
		}
	}
	label = Merge(label, amounts)
	for name, v := range values {
		e := label.Find(name)
		if e == nil {
			continue
		}
		if v.dailyValue != nil {
			dv := *v.dailyValue
			e.DailyValuePercentage = &dv
		}
		if e.Category == CategoryVitamin && v.vitaminType != "" {
			e.VitaminType = VitaminType(v.vitaminType)
		}
	}

	label.Ingredients = parseStringList(obj["ingredients"])
	label.Allergens = parseStringList(obj["allergens"])
	return label, nil
}

func decode(text string) (any, error) {
	if text == "" {
		return nil, errors.New("empty document")
	}
	var doc any
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	err := dec.Decode(&doc)
	if err == nil {
		return doc, nil
	}
	// Models sometimes wrap the object in prose.
	start, end := strings.IndexByte(text, '{'), strings.LastIndexByte(text, '}')
	if start > 0 && end > start {
		inner := json.NewDecoder(strings.NewReader(text[start : end+1]))
		inner.UseNumber()
		if innerErr := inner.Decode(&doc); innerErr == nil {
			return doc, nil
		}
	}
	return nil, err
}

func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		} else {
			s = strings.TrimPrefix(s, "json")
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(strings.Trim(s, "`"))
}

func parseMetadata(v any) Metadata {
	var md Metadata
	obj, ok := v.(map[string]any)
	if !ok {
		return md
	}
	if score, ok := strictNumber(obj["confidence_score"]); ok {
		score = math.Min(1, math.Max(0, score))
		md.ConfidenceScore = &score
	}
	switch s := obj["error_status"].(type) {
	case bool:
		md.ErrorStatus = &s
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			md.ErrorStatus = &b
		}
	}
	if s, ok := obj["processed_timestamp"].(string); ok {
		if ts, err := time.Parse(time.RFC3339, strings.TrimSpace(s)); err == nil {
			ts = ts.UTC()
			md.ProcessedTimestamp = &ts
		}
	}
	return md
}

func parseProductDetails(v any, def ProductDetails) ProductDetails {
	obj, ok := v.(map[string]any)
	if !ok {
		return def
	}
	serving, ok := obj["serving_size"].(map[string]any)
	if !ok {
		return def
	}
	out := def
	if amount, ok := looseNumber(serving["amount"]); ok {
		amount = math.Max(0, amount)
		out.ServingSize.Amount = &amount
	}
	if unit, ok := serving["unit"].(string); ok && strings.TrimSpace(unit) != "" {
		out.ServingSize.Unit = strings.TrimSpace(unit)
	}
	if t, ok := serving["type"].(string); ok {
		out.ServingSize.Type = parseServingType(t)
	}
	return out
}

// maxCalories caps total_calories so absurd model values cannot overflow int.
const maxCalories = math.MaxInt32

func parseCalories(v any) int {
	if obj, ok := v.(map[string]any); ok {
		v = firstPresent(obj, "amount", "value")
	}
	n, ok := looseNumber(v)
	if !ok || n < 0 || math.IsNaN(n) {
		return 0
	}
	return int(math.Round(math.Min(n, maxCalories)))
}

type entryValue struct {
	amount      *float64
	dailyValue  *float64
	vitaminType string
}

// collectEntries flattens a nutrient section, given either as an object keyed
// by name or as a list of entries carrying a name, into values. Nested
// sub_nutrients are flattened as well. The first occurrence of a name wins.
func collectEntries(v any, values map[string]entryValue) {
	switch section := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(section))
		for k := range section {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			collectEntry(k, section[k], values)
		}
	case []any:
		for _, item := range section {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			name, _ := firstPresent(obj, "name", "display_name", "nutrient").(string)
			collectEntry(name, obj, values)
		}
	}
}

func collectEntry(rawName string, v any, values map[string]entryValue) {
	name, known := CanonicalName(rawName)
	obj, isObj := v.(map[string]any)
	if known {
		if _, seen := values[name]; !seen {
			var ev entryValue
			if isObj {
				ev = entryFromObject(obj)
			} else if n, ok := looseNumber(v); ok {
				n = math.Max(0, n)
				ev.amount = &n
			}
			values[name] = ev
		}
	}
	if isObj {
		collectEntries(obj["sub_nutrients"], values)
	}
}

func entryFromObject(obj map[string]any) entryValue {
	var ev entryValue
	if n, ok := looseNumber(firstPresent(obj, "amount", "value", "quantity")); ok {
		n = math.Max(0, n)
		ev.amount = &n
	}
	if n, ok := looseNumber(firstPresent(obj, "daily_value_percentage", "daily_value", "dv")); ok {
		n = math.Max(0, n)
		ev.dailyValue = &n
	}
	if s, ok := obj["vitamin_type"].(string); ok {
		ev.vitaminType = strings.TrimSpace(s)
	}
	return ev
}

func firstPresent(obj map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// strictNumber accepts JSON numbers only.
func strictNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// looseNumber also accepts strings such as "120 kcal" or "3g".
func looseNumber(v any) (float64, bool) {
	if f, ok := strictNumber(v); ok {
		return f, true
	}
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	return parseFirstNumber(s)
}

var numberPattern = regexp.MustCompile(`[-+]?\d*\.?\d+`)

func parseFirstNumber(value string) (float64, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	match := numberPattern.FindString(strings.ReplaceAll(value, ",", ""))
	if match == "" {
		return 0, false
	}
	parsed, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

func parseStringList(v any) []string {
	var parts []string
	switch values := v.(type) {
	case nil:
		return nil
	case []any:
		for _, entry := range values {
			if s, ok := entry.(string); ok {
				parts = append(parts, s)
			}
		}
	case string:
		parts = strings.Split(values, ",")
	default:
		return nil
	}

	seen := make(map[string]struct{}, len(parts))
	result := []string{}
	for _, p := range parts {
		p = strings.Join(strings.Fields(p), " ")
		switch strings.ToLower(p) {
		case "", "n/a", "na", "none":
			continue
		}
		key := strings.ToLower(p)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, p)
	}
	return result
}
