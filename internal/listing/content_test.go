package listing

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/raine/telegram-ebay-bot/internal/llm"
	"github.com/raine/telegram-ebay-bot/internal/shipping"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := NewCatalog(BuiltinProfiles(), ProfileMotoPart, nil)
	require.NoError(t, err)
	return c
}

func normalized(t *testing.T, raw string) *llm.Result {
	t.Helper()
	classifier, err := shipping.New(shipping.DefaultConfig())
	require.NoError(t, err)
	return llm.Normalize(raw, classifier)
}

var motoFields = map[string]string{
	"brand": "Honda",
	"model": "Transalp 650",
	"year":  "1999",
	"mpn":   "12345",
}

func TestBuildTitle_Part(t *testing.T) {
	c := testCatalog(t)
	ai := normalized(t, `{"is_motor": false, "part_type": "Brake lever", "color": "Black", "compatible_years": "1997-2000", "estimated_weight_kg": 0.3}`)

	title := BuildTitle(ai, motoFields, c.GetProfile(ProfileMotoPart))

	assert.Equal(t, "Brake lever Honda Transalp 650 1997-2000 Usato Originale", title)
}

func TestBuildTitle_Motor(t *testing.T) {
	c := testCatalog(t)
	ai := normalized(t, `{"is_motor": true, "brand": "Yamaha", "compatible_years": "N/A"}`)

	title := BuildTitle(ai, map[string]string{"model": "XT 600"}, c.GetProfile(ProfileMotoPart))

	assert.Equal(t, "Motore Yamaha XT 600 Usato Funzionante", title)
}

func TestBuildTitle_LengthLimits(t *testing.T) {
	c := testCatalog(t)
	p := c.GetProfile(ProfileMotoPart)

	tests := []struct {
		name   string
		raw    string
		fields map[string]string
	}{
		{
			name:   "long part type",
			raw:    `{"part_type": "` + strings.Repeat("Carburatore completo ", 10) + `", "compatible_years": "1997-2000"}`,
			fields: motoFields,
		},
		{
			name:   "long tail keeps head floor",
			raw:    `{"part_type": "Pompa freno anteriore"}`,
			fields: map[string]string{"brand": strings.Repeat("Marca ", 8), "model": strings.Repeat("Modello ", 6)},
		},
		{
			name:   "unbroken word",
			raw:    `{"part_type": "` + strings.Repeat("x", 120) + `"}`,
			fields: nil,
		},
		{
			name: "motor with long model",
			raw:  `{"is_motor": true, "compatible_years": "1990-2005"}`,
			fields: map[string]string{
				"brand": "Moto Guzzi",
				"model": strings.Repeat("California Special ", 5),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title := BuildTitle(normalized(t, tt.raw), tt.fields, p)
			assert.LessOrEqual(t, utf8.RuneCountInString(title), MaxTitleLength)
			assert.NotEmpty(t, title)
			assert.Equal(t, strings.TrimSpace(title), title)
		})
	}
}

func TestBuildTitle_HeadFloor(t *testing.T) {
	c := testCatalog(t)
	fields := map[string]string{"brand": strings.Repeat("B", 40), "model": strings.Repeat("M", 25)}
	ai := normalized(t, `{"part_type": "Serbatoio benzina originale"}`)

	title := BuildTitle(ai, fields, c.GetProfile(ProfileMotoPart))

	assert.True(t, strings.HasPrefix(title, "Serbatoio"), title)
}

func TestBuildTitle_LongTailHardCutsHeadToFloor(t *testing.T) {
	c := testCatalog(t)
	fields := map[string]string{"brand": strings.Repeat("Marca ", 8), "model": strings.Repeat("Modello ", 6)}
	ai := normalized(t, `{"part_type": "Pompa freno anteriore"}`)

	title := BuildTitle(ai, fields, c.GetProfile(ProfileMotoPart))

	assert.True(t, strings.HasPrefix(title, "Pompa fren Marca"), title)
	assert.LessOrEqual(t, utf8.RuneCountInString(title), MaxTitleLength)
}

func TestBuildTitle_ShortBaseIsNotPadded(t *testing.T) {
	c := testCatalog(t)
	fields := map[string]string{"brand": strings.Repeat("Marca ", 8), "model": strings.Repeat("Modello ", 6)}
	ai := normalized(t, `{"part_type": "Pompa"}`)

	title := BuildTitle(ai, fields, c.GetProfile(ProfileMotoPart))

	assert.True(t, strings.HasPrefix(title, "Pompa Marca"), title)
}

func TestBuildTitle_SkipsBrandAlreadyInBase(t *testing.T) {
	c := testCatalog(t)
	ai := normalized(t, `{"title": "Honda leva frizione", "part_type": "Leva"}`)

	title := BuildTitle(ai, map[string]string{"brand": "honda", "model": "CBR 600"}, c.GetProfile(ProfileMotoPart))

	assert.Equal(t, "Honda leva frizione CBR 600 Usato Originale", title)
}

func TestBuildTitle_FallbackWhenAIUnknown(t *testing.T) {
	c := testCatalog(t)
	ai := normalized(t, "plain text")

	moto := BuildTitle(ai, map[string]string{"brand": "Honda"}, c.GetProfile(ProfileMotoPart))
	assert.Equal(t, "Ricambio Honda Usato Originale", moto)

	generic := BuildTitle(ai, map[string]string{"title_hint": "Wireless headphones"}, c.GetProfile(ProfileGeneric))
	assert.Equal(t, "Wireless headphones", generic)
}

func TestBuildDescription_Part(t *testing.T) {
	c := testCatalog(t)
	ai := normalized(t, `{"is_motor": false, "part_type": "Brake lever", "color": "Black", "compatible_years": "1997-2000", "tags": ["leva", "freno"]}`)

	desc, err := c.BuildDescription(ai, motoFields, c.GetProfile(ProfileMotoPart))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(desc, "Ricambio Brake lever per Honda Transalp 650 (1999)"))
	assert.Contains(t, desc, "Black")
	assert.Contains(t, desc, "12345")
	assert.Contains(t, desc, "Tag: leva, freno")
	assert.NotContains(t, desc, "<no value>")
}

func TestBuildDescription_MissingValuesUseSentinel(t *testing.T) {
	c := testCatalog(t)
	ai := normalized(t, "garbage")

	desc, err := c.BuildDescription(ai, map[string]string{"brand": "Honda", "mpn": ""}, c.GetProfile(ProfileMotoPart))
	require.NoError(t, err)

	assert.Contains(t, desc, "• Colore: N/A")
	assert.Contains(t, desc, "• MPN: N/A")
	assert.Contains(t, desc, "(N/A)")
	assert.NotContains(t, desc, "Tag:")
}

func TestBuildDescription_EngineTemplate(t *testing.T) {
	c := testCatalog(t)
	ai := normalized(t, `{"is_motor": true, "displacement": "583 cc", "description": "Motore revisionato."}`)

	desc, err := c.BuildDescription(ai, motoFields, c.GetProfile(ProfileMotoPart))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(desc, "Motore Honda Transalp 650"))
	assert.Contains(t, desc, "• Cilindrata: 583 cc")
	assert.Contains(t, desc, "• Anno: 1999")
	assert.Contains(t, desc, "Motore revisionato.")
}

func TestBuildDescription_GenericUsesAIFallbacks(t *testing.T) {
	c := testCatalog(t)
	ai := normalized(t, `{"color": "Blue", "part_number": "WH-1000", "material": "Plastic"}`)
	fields := map[string]string{"title_hint": "Wireless headphones", "condition": "Used", "color": "", "sku": ""}

	desc, err := c.BuildDescription(ai, fields, c.GetProfile(ProfileGeneric))
	require.NoError(t, err)

	assert.Contains(t, desc, "• Color: Blue")
	assert.Contains(t, desc, "• SKU: WH-1000")
	assert.Contains(t, desc, "• Condition: Used")
	assert.Contains(t, desc, "• Brand: N/A")
}

func TestJoinTags_Capped(t *testing.T) {
	tags := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		tags = append(tags, strings.Repeat("t", 40))
	}
	assert.LessOrEqual(t, utf8.RuneCountInString(joinTags(tags)), maxTagsText)
}

func TestCutWords(t *testing.T) {
	assert.Equal(t, "alpha beta", cutWords("alpha beta gamma", 12))
	assert.Equal(t, "alpha beta", cutWords("alpha beta gamma", 10))
	assert.Equal(t, "abcde", cutWords("abcdefgh", 5))
	assert.Equal(t, "a b", cutWords("  a   b  ", 80))
}
