package llm

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/raine/telegram-ebay-bot/internal/shipping"
)

// NA marks an attribute the model could not determine.
const NA = "N/A"

const (
	MaxTagLength = 60
	MaxTags      = 20
)

// EngineSpecs holds the extra attributes of a complete engine.
type EngineSpecs struct {
	EngineType       string
	Displacement     string
	BoreStroke       string
	CompressionRatio string
	MaxPower         string
	MaxTorque        string
	Cooling          string
	FuelSystem       string
	Starter          string
	Gearbox          string
	FinalDrive       string
	RecommendedOil   string
	OilCapacity      string
}

// Result is the normalized output of one vision analysis. Every text field
// is non-empty (NA when unknown) except Description.
type Result struct {
	IsMotor         bool
	Title           string
	PartType        string
	PartTypeShort   string
	Color           string
	Material        string
	Brand           string
	Model           string
	PartNumber      string
	CompatibleYears string
	Engine          EngineSpecs

	EstimatedWeightKg *float64
	WeightClass       shipping.Class
	Description       string
	Tags              []string
}

// Attributes returns the text attributes keyed by their wire names.
func (r *Result) Attributes() map[string]string {
	return map[string]string{
		"title":             r.Title,
		"part_type":         r.PartType,
		"part_type_short":   r.PartTypeShort,
		"color":             r.Color,
		"material":          r.Material,
		"brand":             r.Brand,
		"model":             r.Model,
		"part_number":       r.PartNumber,
		"compatible_years":  r.CompatibleYears,
		"engine_type":       r.Engine.EngineType,
		"displacement":      r.Engine.Displacement,
		"bore_stroke":       r.Engine.BoreStroke,
		"compression_ratio": r.Engine.CompressionRatio,
		"max_power":         r.Engine.MaxPower,
		"max_torque":        r.Engine.MaxTorque,
		"cooling":           r.Engine.Cooling,
		"fuel_system":       r.Engine.FuelSystem,
		"starter":           r.Engine.Starter,
		"gearbox":           r.Engine.Gearbox,
		"final_drive":       r.Engine.FinalDrive,
		"recommended_oil":   r.Engine.RecommendedOil,
		"oil_capacity":      r.Engine.OilCapacity,
	}
}

// IsPlaceholder reports whether s carries no information.
func IsPlaceholder(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "n/a", "na", "unknown", "none", "null", "-", "?":
		return true
	}
	return false
}

// Normalize converts raw model output into a fully-defaulted Result. It
// never fails: unparsable input yields a minimal result with NA fields and
// the classifier's default weight class.
func Normalize(raw string, classifier *shipping.Classifier) *Result {
	doc := parseDocument(raw)

	r := &Result{
		IsMotor:         boolField(doc["is_motor"]),
		Title:           textField(doc["title"]),
		PartType:        textField(doc["part_type"]),
		PartTypeShort:   textField(doc["part_type_short"]),
		Color:           textField(doc["color"]),
		Material:        textField(doc["material"]),
		Brand:           textField(doc["brand"]),
		Model:           textField(doc["model"]),
		PartNumber:      textField(firstPresent(doc, "part_number", "mpn")),
		CompatibleYears: textField(doc["compatible_years"]),
		Engine: EngineSpecs{
			EngineType:       textField(doc["engine_type"]),
			Displacement:     textField(doc["displacement"]),
			BoreStroke:       textField(doc["bore_stroke"]),
			CompressionRatio: textField(doc["compression_ratio"]),
			MaxPower:         textField(doc["max_power"]),
			MaxTorque:        textField(doc["max_torque"]),
			Cooling:          textField(doc["cooling"]),
			FuelSystem:       textField(doc["fuel_system"]),
			Starter:          textField(doc["starter"]),
			Gearbox:          textField(doc["gearbox"]),
			FinalDrive:       textField(doc["final_drive"]),
			RecommendedOil:   textField(doc["recommended_oil"]),
			OilCapacity:      textField(doc["oil_capacity"]),
		},
		EstimatedWeightKg: shipping.ParseWeight(doc["estimated_weight_kg"]),
		Description:       descriptionField(doc["description"]),
		Tags:              SanitizeTags(tagList(doc["tags"])),
	}

	r.WeightClass = reconcileWeightClass(doc["weight_class"], r.EstimatedWeightKg, classifier)
	return r
}

// parseDocument decodes raw as a JSON object, falling back to the span
// between the first '{' and the last '}'. Returns an empty map on failure.
func parseDocument(raw string) map[string]any {
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err == nil && doc != nil {
		return doc
	}
	if s, err := extractJSONObject(raw); err == nil {
		doc = nil
		if err := json.Unmarshal([]byte(s), &doc); err == nil && doc != nil {
			return doc
		}
	}
	return map[string]any{}
}

// extractJSONObject extracts a JSON object from text that may contain markdown
// code blocks or other formatting.
func extractJSONObject(text string) (string, error) {
	text = strings.TrimSpace(text)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("no JSON object found in response: %.80s", text)
	}
	return text[start : end+1], nil
}

func reconcileWeightClass(v any, kg *float64, classifier *shipping.Classifier) shipping.Class {
	if s, ok := v.(string); ok {
		if c, ok := shipping.ParseClass(s); ok && classifier.IsValid(c) {
			return c
		}
	}
	return classifier.Classify(kg)
}

func firstPresent(doc map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := doc[k]; ok && !IsPlaceholder(scalarString(v)) {
			return v
		}
	}
	return nil
}

// scalarString renders strings and numbers, and returns "" for anything else.
func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	}
	return ""
}

func textField(v any) string {
	s := strings.Join(strings.Fields(scalarString(v)), " ")
	if IsPlaceholder(s) {
		return NA
	}
	return s
}

func descriptionField(v any) string {
	s := scalarString(v)
	if IsPlaceholder(s) {
		return ""
	}
	return s
}

func boolField(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "si", "sì", "1":
			return true
		}
	case float64:
		return t != 0
	}
	return false
}

func tagList(v any) []string {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, scalarString(item))
		}
		return out
	case string:
		return strings.Split(t, ",")
	}
	return nil
}

// SanitizeTags trims, truncates and deduplicates tags case-insensitively,
// keeping the first occurrence, and caps the list length. Applying it twice
// yields the same result as applying it once.
func SanitizeTags(tags []string) []string {
	out := make([]string, 0, min(len(tags), MaxTags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		if len(out) == MaxTags {
			break
		}
		tag = strings.TrimSpace(truncateRunes(strings.TrimSpace(tag), MaxTagLength))
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, tag)
	}
	return out
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
