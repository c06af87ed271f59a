package shipping

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Class is a weight class tag used to pick a fulfillment policy.
type Class string

const (
	ClassXS      Class = "XS"
	ClassS       Class = "S"
	ClassM       Class = "M"
	ClassL       Class = "L"
	ClassXL      Class = "XL"
	ClassXXL     Class = "XXL"
	ClassFreight Class = "FREIGHT"
)

// allClasses is the fixed enumeration in band order.
var allClasses = []Class{ClassXS, ClassS, ClassM, ClassL, ClassXL, ClassXXL, ClassFreight}

// ParseClass returns the class for a tag, ignoring case and surrounding
// whitespace. The second return value is false for tags outside the
// enumeration.
func ParseClass(tag string) (Class, bool) {
	c := Class(strings.ToUpper(strings.TrimSpace(tag)))
	for _, known := range allClasses {
		if c == known {
			return c, true
		}
	}
	return "", false
}

// Band is a weight band with an inclusive upper bound in kilograms.
type Band struct {
	Class Class   `yaml:"class"`
	MaxKg float64 `yaml:"max_kg"`
}

// Config holds the thresholds and policy mapping.
type Config struct {
	Bands         []Band           `yaml:"bands"`
	OverflowClass Class            `yaml:"overflow_class"`
	DefaultClass  Class            `yaml:"default_class"`
	Policies      map[Class]string `yaml:"policies"`
	DefaultPolicy string           `yaml:"default_policy"`
}

// DefaultConfig returns the production thresholds and eBay fulfillment
// policy IDs.
func DefaultConfig() Config {
	return Config{
		Bands: []Band{
			{Class: ClassXS, MaxKg: 0.25},
			{Class: ClassS, MaxKg: 0.75},
			{Class: ClassM, MaxKg: 2.0},
			{Class: ClassL, MaxKg: 5.0},
			{Class: ClassXL, MaxKg: 20.0},
			{Class: ClassXXL, MaxKg: 50.0},
		},
		OverflowClass: ClassFreight,
		DefaultClass:  ClassM,
		Policies: map[Class]string{
			ClassXS:      "273958585015",
			ClassS:       "273958644015",
			ClassM:       "273958658015",
			ClassL:       "273958675015",
			ClassXL:      "273958692015",
			ClassXXL:     "273958728015",
			ClassFreight: "273958776015",
		},
		DefaultPolicy: "273958658015",
	}
}

// Classifier maps weights to classes and classes to policies. It is
// read-only after construction and safe for concurrent use.
type Classifier struct {
	bands         []Band
	overflow      Class
	defaultClass  Class
	policies      map[Class]string
	defaultPolicy string
	order         map[Class]int
}

// New validates cfg and builds a Classifier.
func New(cfg Config) (*Classifier, error) {
	if len(cfg.Bands) == 0 {
		return nil, errors.New("shipping: at least one weight band is required")
	}
	if strings.TrimSpace(cfg.DefaultPolicy) == "" {
		return nil, errors.New("shipping: default policy is required")
	}

	order := make(map[Class]int, len(cfg.Bands)+1)
	prev := -1.0
	for i, b := range cfg.Bands {
		class, ok := ParseClass(string(b.Class))
		if !ok {
			return nil, fmt.Errorf("shipping: unknown weight class %q", b.Class)
		}
		if _, dup := order[class]; dup {
			return nil, fmt.Errorf("shipping: duplicate weight class %q", class)
		}
		if math.IsNaN(b.MaxKg) || b.MaxKg < 0 || b.MaxKg <= prev {
			return nil, fmt.Errorf("shipping: thresholds must be ascending and non-negative (band %s)", class)
		}
		prev = b.MaxKg
		cfg.Bands[i].Class = class
		order[class] = i
	}

	overflow, ok := ParseClass(string(cfg.OverflowClass))
	if !ok {
		return nil, fmt.Errorf("shipping: unknown overflow class %q", cfg.OverflowClass)
	}
	if _, dup := order[overflow]; dup {
		return nil, fmt.Errorf("shipping: overflow class %q is also a band", overflow)
	}
	order[overflow] = len(cfg.Bands)

	def, ok := ParseClass(string(cfg.DefaultClass))
	if !ok {
		return nil, fmt.Errorf("shipping: unknown default class %q", cfg.DefaultClass)
	}
	if _, known := order[def]; !known {
		return nil, fmt.Errorf("shipping: default class %q is not a configured band", def)
	}

	policies := make(map[Class]string, len(cfg.Policies))
	for k, v := range cfg.Policies {
		class, ok := ParseClass(string(k))
		if !ok {
			return nil, fmt.Errorf("shipping: policy for unknown class %q", k)
		}
		if v = strings.TrimSpace(v); v != "" {
			policies[class] = v
		}
	}

	bands := make([]Band, len(cfg.Bands))
	copy(bands, cfg.Bands)

	return &Classifier{
		bands:         bands,
		overflow:      overflow,
		defaultClass:  def,
		policies:      policies,
		defaultPolicy: strings.TrimSpace(cfg.DefaultPolicy),
		order:         order,
	}, nil
}

// Classify returns the band for a weight in kilograms. Upper bounds are
// inclusive. A nil, NaN or negative weight yields the default class.
func (c *Classifier) Classify(kg *float64) Class {
	if kg == nil || math.IsNaN(*kg) || *kg < 0 {
		return c.defaultClass
	}
	for _, b := range c.bands {
		if *kg <= b.MaxKg {
			return b.Class
		}
	}
	return c.overflow
}

// PolicyFor returns the fulfillment policy for a class, or the default
// policy when the class is unknown or unmapped. Never returns "".
func (c *Classifier) PolicyFor(class Class) string {
	if p, ok := c.policies[class]; ok {
		return p
	}
	return c.defaultPolicy
}

// DefaultClass returns the class used when no weight is known.
func (c *Classifier) DefaultClass() Class {
	return c.defaultClass
}

// DefaultPolicy returns the fallback fulfillment policy.
func (c *Classifier) DefaultPolicy() string {
	return c.defaultPolicy
}

// Index returns the band order of a class, or -1 when not configured.
func (c *Classifier) Index(class Class) int {
	if i, ok := c.order[class]; ok {
		return i
	}
	return -1
}

// IsValid reports whether the class is one of the configured bands.
func (c *Classifier) IsValid(class Class) bool {
	return c.Index(class) >= 0
}

// Classes returns the configured classes in band order.
func (c *Classifier) Classes() []Class {
	out := make([]Class, 0, len(c.bands)+1)
	for _, b := range c.bands {
		out = append(out, b.Class)
	}
	return append(out, c.overflow)
}

// PromptThresholds renders the bands for inclusion in a model prompt, e.g.
// "XS: <= 0.25 kg | S: <= 0.75 kg | ... | FREIGHT: > 50 kg".
func (c *Classifier) PromptThresholds() string {
	parts := make([]string, 0, len(c.bands)+1)
	for _, b := range c.bands {
		parts = append(parts, fmt.Sprintf("%s: <= %s kg", b.Class, formatKg(b.MaxKg)))
	}
	last := c.bands[len(c.bands)-1].MaxKg
	parts = append(parts, fmt.Sprintf("%s: > %s kg", c.overflow, formatKg(last)))
	return strings.Join(parts, " | ")
}

func formatKg(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var leadingNumber = regexp.MustCompile(`^[+-]?\d+(?:[.,]\d+)?`)

// ParseWeight extracts a weight in kilograms from a loosely-typed value.
// Numbers are used as-is, strings may use a decimal comma and carry a
// trailing unit ("0,3 kg"). Anything else, and negative or non-finite
// values, yield nil.
func ParseWeight(v any) *float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case string:
		m := leadingNumber.FindString(strings.TrimSpace(t))
		if m == "" {
			return nil
		}
		parsed, err := strconv.ParseFloat(strings.Replace(m, ",", ".", 1), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return nil
	}
	return &f
}
