package plan

import (
	"fmt"
	"maps"
	"slices"

	"gopkg.in/yaml.v3"
)

// Definition is the serialisable form of a catalog.
type Definition struct {
	Features []FeatureDefinition `yaml:"features" json:"features"`
	Actions  []ActionDefinition  `yaml:"actions" json:"actions"`
}

// FeatureDefinition registers a feature with exactly one minimum tier
// and the upgrade copy shown when a lower tier asks for it.
type FeatureDefinition struct {
	Key         Feature `yaml:"key" json:"key"`
	MinTier     Tier    `yaml:"min_tier" json:"min_tier"`
	Title       string  `yaml:"title" json:"title"`
	Description string  `yaml:"description" json:"description"`
	UpgradeURL  string  `yaml:"upgrade_url" json:"upgrade_url"`
}

// ActionDefinition registers a metered action.
// Feature, when set, must be granted before the quota is consulted.
// Tiers missing from Limits get a zero limit.
type ActionDefinition struct {
	Key     Action         `yaml:"key" json:"key"`
	Feature Feature        `yaml:"feature,omitempty" json:"feature,omitempty"`
	Period  Period         `yaml:"period" json:"period"`
	Limits  map[Tier]int64 `yaml:"limits" json:"limits"`
}

// ParseDefinition decodes a YAML (or JSON) catalog document.
func ParseDefinition(data []byte) (Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}
	return def, nil
}

// Clone returns a deep copy of the definition.
func (d Definition) Clone() Definition {
	out := Definition{
		Features: slices.Clone(d.Features),
		Actions:  make([]ActionDefinition, len(d.Actions)),
	}
	for i, a := range d.Actions {
		a.Limits = maps.Clone(a.Limits)
		out.Actions[i] = a
	}
	return out
}
