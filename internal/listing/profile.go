package listing

import (
	"fmt"
	"sort"
	"strings"
	"text/template"
)

// Built-in profile IDs.
const (
	ProfileMotoPart = "moto_part"
	ProfileGeneric  = "generic"
)

// FieldSpec is one attribute collected from the user before photos.
type FieldSpec struct {
	Key      string `yaml:"key"`
	Prompt   string `yaml:"prompt"`
	Optional bool   `yaml:"optional"`
}

// Profile declares which attributes to collect and how to render them.
type Profile struct {
	ID             string      `yaml:"id"`
	Name           string      `yaml:"name"`
	Description    string      `yaml:"description"`
	Fields         []FieldSpec `yaml:"fields"`
	Template       string      `yaml:"template"`
	EngineTemplate string      `yaml:"engine_template"`
	AIHint         string      `yaml:"ai_hint"`
	TitleQualifier string      `yaml:"title_qualifier"`
	FallbackTerm   string      `yaml:"fallback_term"`
}

// HasField reports whether the profile collects key.
func (p *Profile) HasField(key string) bool {
	for _, f := range p.Fields {
		if f.Key == key {
			return true
		}
	}
	return false
}

// BuiltinProfiles returns the profiles shipped with the bot.
func BuiltinProfiles() []Profile {
	return []Profile{
		{
			ID:          ProfileMotoPart,
			Name:        "Motorcycle part",
			Description: "Used motorcycle parts and complete engines.",
			Fields: []FieldSpec{
				{Key: "brand", Prompt: "Welcome! Please enter the motorcycle brand (e.g., Honda):"},
				{Key: "model", Prompt: "Now enter the motorcycle model (e.g., Transalp 650):"},
				{Key: "year", Prompt: "Now enter the year of the motorcycle (e.g., 1999):"},
				{Key: "mpn", Prompt: "Now enter the MPN (Manufacturer Part Number) of the motorcycle part (or type 'skip'):", Optional: true},
			},
			Template:       TemplateMotoPart,
			EngineTemplate: TemplateMotoEngine,
			AIHint:         "You help sell used motorcycle parts on eBay Italy. Write attribute values and the description in Italian.",
			TitleQualifier: "Usato Originale",
			FallbackTerm:   "Ricambio",
		},
		{
			ID:          ProfileGeneric,
			Name:        "Generic product",
			Description: "Use for any consumer item (electronics, apparel, collectibles, etc.).",
			Fields: []FieldSpec{
				{Key: "title_hint", Prompt: "What item are you listing? Provide a concise name (e.g., 'Wireless headphones')."},
				{Key: "brand", Prompt: "Enter the product brand (or type 'skip' if unknown).", Optional: true},
				{Key: "model", Prompt: "Enter the model/variant (or type 'skip').", Optional: true},
				{Key: "condition", Prompt: "Enter the condition (New / Used / Refurbished / For parts)."},
				{Key: "sku", Prompt: "Enter SKU/MPN/Code (or type 'skip').", Optional: true},
				{Key: "color", Prompt: "Enter the main color (or type 'skip').", Optional: true},
				{Key: "material", Prompt: "Enter the main material (or type 'skip').", Optional: true},
			},
			Template: TemplateGeneric,
			AIHint: "You help describe any physical product for online marketplaces. " +
				"Highlight features, materials, included items, and best use cases.",
			FallbackTerm: "Item",
		},
	}
}

// Catalog holds the profiles and parsed description templates. It is
// read-only after construction.
type Catalog struct {
	profiles  map[string]*Profile
	order     []string
	defaultID string
	templates *template.Template
}

// NewCatalog parses the built-in templates plus extra, and checks that every
// profile refers to known templates and renders with a full data set.
func NewCatalog(profiles []Profile, defaultID string, extra map[string]string) (*Catalog, error) {
	if len(profiles) == 0 {
		return nil, fmt.Errorf("no profiles configured")
	}

	root := template.New("").Option("missingkey=error")
	sources := make(map[string]string, len(builtinTemplates)+len(extra))
	for name, text := range builtinTemplates {
		sources[name] = text
	}
	for name, text := range extra {
		sources[name] = text
	}
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := root.New(name).Parse(sources[name]); err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
	}

	c := &Catalog{
		profiles:  make(map[string]*Profile, len(profiles)),
		defaultID: defaultID,
		templates: root,
	}
	for i := range profiles {
		p := profiles[i]
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			return nil, fmt.Errorf("profile %d has no id", i)
		}
		if _, dup := c.profiles[p.ID]; dup {
			return nil, fmt.Errorf("duplicate profile %s", p.ID)
		}
		seen := make(map[string]bool, len(p.Fields))
		for _, f := range p.Fields {
			if f.Key == "" || seen[f.Key] {
				return nil, fmt.Errorf("profile %s: invalid or duplicate field key %q", p.ID, f.Key)
			}
			seen[f.Key] = true
		}
		c.profiles[p.ID] = &p
		c.order = append(c.order, p.ID)
	}
	if _, ok := c.profiles[defaultID]; !ok {
		return nil, fmt.Errorf("default profile %s not found", defaultID)
	}
	if err := c.ValidateTemplates(); err != nil {
		return nil, err
	}
	return c, nil
}

// ValidateTemplates renders every profile's templates with a sample data set.
func (c *Catalog) ValidateTemplates() error {
	for _, id := range c.order {
		p := c.profiles[id]
		for _, name := range []string{p.Template, p.EngineTemplate} {
			if name == "" {
				continue
			}
			if c.templates.Lookup(name) == nil {
				return fmt.Errorf("profile %s: unknown template %s", p.ID, name)
			}
			if _, err := c.render(name, sampleData(p)); err != nil {
				return fmt.Errorf("profile %s: %w", p.ID, err)
			}
		}
		if p.Template == "" {
			return fmt.Errorf("profile %s: no description template", p.ID)
		}
	}
	return nil
}

// GetProfile returns the profile with id, or the default profile.
func (c *Catalog) GetProfile(id string) *Profile {
	if p, ok := c.profiles[id]; ok {
		return p
	}
	return c.profiles[c.defaultID]
}

// FindProfile returns the profile with id, if any.
func (c *Catalog) FindProfile(id string) (*Profile, bool) {
	p, ok := c.profiles[strings.TrimSpace(id)]
	return p, ok
}

// ListProfiles returns profiles in configuration order.
func (c *Catalog) ListProfiles() []*Profile {
	out := make([]*Profile, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.profiles[id])
	}
	return out
}

// DefaultID returns the default profile ID.
func (c *Catalog) DefaultID() string {
	return c.defaultID
}

// IDs returns the profile IDs in configuration order.
func (c *Catalog) IDs() []string {
	return append([]string(nil), c.order...)
}
