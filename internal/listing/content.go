package listing

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/raine/telegram-ebay-bot/internal/llm"
)

const (
	// MaxTitleLength is the marketplace title limit.
	MaxTitleLength = 80
	minTitleHead   = 10
	maxTagsText    = 500
)

// fieldFallbacks maps user-collected keys to the AI attribute used when the
// user left them blank.
var fieldFallbacks = map[string]string{
	"mpn":        "part_number",
	"sku":        "part_number",
	"title_hint": "title",
}

// Attributes merges AI attributes with the user's answers. User answers win
// over AI values; every value is non-empty (llm.NA when unknown).
func Attributes(ai *llm.Result, fields map[string]string, p *Profile) map[string]string {
	out := ai.Attributes()
	for k, v := range out {
		if llm.IsPlaceholder(v) {
			out[k] = llm.NA
		}
	}
	for _, key := range []string{"year", "mpn"} {
		if _, ok := out[key]; !ok {
			out[key] = llm.NA
		}
	}
	keys := make([]string, 0, len(p.Fields)+len(fields))
	for _, f := range p.Fields {
		keys = append(keys, f.Key)
	}
	for k := range fields {
		if !p.HasField(k) {
			keys = append(keys, k)
		}
	}
	for _, key := range keys {
		if v := strings.TrimSpace(fields[key]); v != "" && !llm.IsPlaceholder(v) {
			out[key] = v
			continue
		}
		if _, ok := out[key]; ok && out[key] != llm.NA {
			continue
		}
		out[key] = llm.NA
		if alias, ok := fieldFallbacks[key]; ok && !llm.IsPlaceholder(out[alias]) {
			out[key] = out[alias]
		}
	}
	return out
}

// BuildTitle composes a marketplace title of at most MaxTitleLength runes.
func BuildTitle(ai *llm.Result, fields map[string]string, p *Profile) string {
	attrs := Attributes(ai, fields, p)
	brand := known(attrs["brand"])
	model := known(attrs["model"])
	years := known(ai.CompatibleYears)

	if ai.IsMotor {
		return cutWords(joinWords("Motore", brand, model, years, "Usato Funzionante"), MaxTitleLength)
	}

	base := firstKnown(ai.Title, ai.PartType, fields["title_hint"], p.FallbackTerm, "Ricambio")
	lowerBase := strings.ToLower(base)

	var tailParts []string
	if brand != "" && !strings.Contains(lowerBase, strings.ToLower(brand)) {
		tailParts = append(tailParts, brand)
	}
	if model != "" && !strings.Contains(lowerBase, strings.ToLower(model)) {
		tailParts = append(tailParts, model)
	}
	tailParts = append(tailParts, years, p.TitleQualifier)
	tail := joinWords(tailParts...)

	leftover := max(minTitleHead, MaxTitleLength-utf8.RuneCountInString(tail)-1)
	head := cutWords(base, leftover)
	if utf8.RuneCountInString(head) < minTitleHead {
		// The word-safe cut lost too much; keep the floor with a hard cut.
		head = hardCut(base, leftover)
	}
	return cutWords(joinWords(head, tail), MaxTitleLength)
}

// BuildDescription renders the profile's description template.
func (c *Catalog) BuildDescription(ai *llm.Result, fields map[string]string, p *Profile) (string, error) {
	name := p.Template
	if ai.IsMotor && p.EngineTemplate != "" {
		name = p.EngineTemplate
	}
	data := make(map[string]any)
	for k, v := range Attributes(ai, fields, p) {
		data[k] = v
	}
	data["description"] = strings.TrimSpace(ai.Description)
	data["tags"] = joinTags(ai.Tags)
	data["weight_class"] = string(ai.WeightClass)
	return c.render(name, data)
}

func (c *Catalog) render(name string, data map[string]any) (string, error) {
	tmpl := c.templates.Lookup(name)
	if tmpl == nil {
		return "", fmt.Errorf("unknown template %s", name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func sampleData(p *Profile) map[string]any {
	data := make(map[string]any)
	for k, v := range Attributes(&llm.Result{}, nil, p) {
		data[k] = v
	}
	data["description"] = "sample"
	data["tags"] = "sample"
	data["weight_class"] = "M"
	return data
}

func joinTags(tags []string) string {
	s := strings.Join(tags, ", ")
	if utf8.RuneCountInString(s) <= maxTagsText {
		return s
	}
	return strings.TrimRight(string([]rune(s)[:maxTagsText]), ", ")
}

func known(s string) string {
	s = strings.TrimSpace(s)
	if llm.IsPlaceholder(s) {
		return ""
	}
	return s
}

func firstKnown(values ...string) string {
	for _, v := range values {
		if k := known(v); k != "" {
			return k
		}
	}
	return ""
}

func joinWords(parts ...string) string {
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

// cutWords shortens s to at most n runes, preferring a word boundary.
func cutWords(s string, n int) string {
	s = joinWords(s)
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	cut := string(runes[:n])
	if runes[n] != ' ' {
		if i := strings.LastIndex(cut, " "); i > 0 {
			cut = cut[:i]
		}
	}
	return strings.TrimSpace(cut)
}

// hardCut returns the first n runes of s, trimmed.
func hardCut(s string, n int) string {
	runes := []rune(joinWords(s))
	if len(runes) > n {
		runes = runes[:n]
	}
	return strings.TrimSpace(string(runes))
}
