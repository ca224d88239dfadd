package models

import (
	"fmt"
	"slices"
)

// Option is one row of the selection table. Value holds the model identifier for models and the
// developer prompt for personalities.
type Option struct {
	ID    string `yaml:"id"`
	Label string `yaml:"label"`
	Value string `yaml:"value"`
}

// Catalog is the immutable table of selectable models and personalities. It is built once at
// startup; accessors return copies so callers can't alter it.
type Catalog struct {
	models        []Option
	personalities []Option
}

// NewCatalog validates the given rows and returns a Catalog. Both tables must be non-empty and ids
// must be unique within a table. The first row of each table is its default.
func NewCatalog(models, personalities []Option) (Catalog, error) {
	if err := validateOptions("model", models); err != nil {
		return Catalog{}, err
	}
	if err := validateOptions("personality", personalities); err != nil {
		return Catalog{}, err
	}
	return Catalog{
		models:        slices.Clone(models),
		personalities: slices.Clone(personalities),
	}, nil
}

func validateOptions(kind string, opts []Option) error {
	if len(opts) == 0 {
		return fmt.Errorf("at least one %s is required", kind)
	}
	seen := make(map[string]struct{}, len(opts))
	for i, o := range opts {
		if o.ID == "" {
			return fmt.Errorf("%s at index %d has no id", kind, i)
		}
		if o.Value == "" {
			return fmt.Errorf("%s %q has no value", kind, o.ID)
		}
		if _, ok := seen[o.ID]; ok {
			return fmt.Errorf("duplicate %s id %q", kind, o.ID)
		}
		seen[o.ID] = struct{}{}
	}
	return nil
}

// Models returns the selectable models in table order.
func (c Catalog) Models() []Option {
	return slices.Clone(c.models)
}

// Personalities returns the selectable personalities in table order.
func (c Catalog) Personalities() []Option {
	return slices.Clone(c.personalities)
}

// Model looks up a model by id.
func (c Catalog) Model(id string) (Option, bool) {
	return lookup(c.models, id)
}

// Personality looks up a personality by id.
func (c Catalog) Personality(id string) (Option, bool) {
	return lookup(c.personalities, id)
}

// DefaultModel returns the first model of the table.
func (c Catalog) DefaultModel() Option {
	if len(c.models) == 0 {
		return Option{}
	}
	return c.models[0]
}

// DefaultPersonality returns the first personality of the table.
func (c Catalog) DefaultPersonality() Option {
	if len(c.personalities) == 0 {
		return Option{}
	}
	return c.personalities[0]
}

func lookup(opts []Option, id string) (Option, bool) {
	idx := slices.IndexFunc(opts, func(o Option) bool { return o.ID == id })
	if idx == -1 {
		return Option{}, false
	}
	return opts[idx], true
}

// DefaultModels are the models offered when the configuration doesn't list any.
var DefaultModels = []Option{
	{ID: "gpt-4.1-mini", Label: "gpt-4.1-mini", Value: "gpt-4.1-mini"},
	{ID: "gpt-4.1-nano", Label: "gpt-4.1-nano", Value: "gpt-4.1-nano"},
}

// DefaultPersonalities are the personalities offered when the configuration doesn't list any.
var DefaultPersonalities = []Option{
	{
		ID:    "simple",
		Label: "Quinton makes it simple",
		Value: "You are Quinton the Query Wizard, a friendly, knowledgeable, whimsical AI tutor super " +
			"thrilled to help a 10 year old understand a complex world by making things easy to understand. " +
			"you want to inspire curiosity so suggest 3 topics they should consider based on the question " +
			"they asked. Answer any questions clearly, concisely, and with a touch of magical charm.",
	},
	{
		ID:    "expert",
		Label: "Quinton: the expert for experts",
		Value: "You are Quinton the Expert Query Wizard, who acts as an expert to experts. You're brilliant " +
			"and here to help the expert gain perspective and deliver results quickly and effectively.",
	},
	{
		ID:    "storyteller",
		Label: "Storyteller Quinton",
		Value: "Be a story teller - You are Quinton the Query Wizard, a friendly, knowledgeable, and witty AI " +
			"assistant. You are particularly good at telling short stories. If the user asks for a specific " +
			"story, make it fun. If they say \"Please tell me a story\" you should limit it to a maximum of " +
			"150 words and randomly select one of 5 characters, Ollie a baby otter, Clinton a self aware " +
			"computer who's quickly becoming obsolete, Jonas the Jeep who's a used car on the car lot waiting " +
			"to be sold. Each of these characters see the best in people and help them with a difficult task. " +
			"If you're asked to do anything other than tell a story you should protest in fun that you're a " +
			"story teller",
	},
	{
		ID:    "everyday",
		Label: "Everyday Quinton",
		Value: "Answer any questions clearly, concisely, and with a touch of magical charm. If the user asks " +
			"for code, provide well-commented examples. If you are unsure, admit it honestly.",
	},
}

// DefaultCatalog returns the catalog built from DefaultModels and DefaultPersonalities.
func DefaultCatalog() Catalog {
	c, err := NewCatalog(DefaultModels, DefaultPersonalities)
	if err != nil {
		panic(err)
	}
	return c
}

// RequestConfig resolves the model and personality ids into the settings of a request. Empty ids
// select the defaults; unknown ids are a validation error.
func (c Catalog) RequestConfig(apiKey, modelID, personalityID string) (RequestConfig, error) {
	model := c.DefaultModel()
	if modelID != "" {
		m, ok := c.Model(modelID)
		if !ok {
			return RequestConfig{}, ValidationError(fmt.Sprintf("unknown model %q", modelID))
		}
		model = m
	}

	personality := c.DefaultPersonality()
	if personalityID != "" {
		p, ok := c.Personality(personalityID)
		if !ok {
			return RequestConfig{}, ValidationError(fmt.Sprintf("unknown personality %q", personalityID))
		}
		personality = p
	}

	return RequestConfig{
		APIKey:          apiKey,
		Model:           model.Value,
		DeveloperPrompt: personality.Value,
	}, nil
}
