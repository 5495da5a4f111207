package plan

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

// FeatureInfo describes a feature and how to obtain it.
type FeatureInfo struct {
	Key         Feature `json:"key"`
	MinTier     Tier    `json:"min_tier"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	UpgradeURL  string  `json:"upgrade_url"`
}

type actionEntry struct {
	gate   Feature
	period Period
	limits map[Tier]int64
}

// Catalog is an immutable, validated table of features and limits per tier.
// It is safe for concurrent use.
type Catalog struct {
	features map[Feature]FeatureInfo
	byTier   map[Tier][]Feature
	actions  map[Action]actionEntry
	keys     []Action
}

// NewCatalog validates def and builds a catalog from it.
func NewCatalog(def Definition) (*Catalog, error) {
	if err := validateDefinition(def); err != nil {
		return nil, err
	}

	c := &Catalog{
		features: make(map[Feature]FeatureInfo, len(def.Features)),
		byTier:   make(map[Tier][]Feature, len(tierOrder)),
		actions:  make(map[Action]actionEntry, len(def.Actions)),
		keys:     make([]Action, 0, len(def.Actions)),
	}

	for _, f := range def.Features {
		c.features[f.Key] = FeatureInfo(f)
	}
	for _, t := range tierOrder {
		var granted []Feature
		for key, info := range c.features {
			if t.AtLeast(info.MinTier) {
				granted = append(granted, key)
			}
		}
		slices.Sort(granted)
		c.byTier[t] = granted
	}
	for _, a := range def.Actions {
		c.actions[a.Key] = actionEntry{
			gate:   a.Feature,
			period: a.Period,
			limits: maps.Clone(a.Limits),
		}
		c.keys = append(c.keys, a.Key)
	}
	slices.Sort(c.keys)

	return c, nil
}

// MustCatalog is like NewCatalog but panics on an invalid definition.
func MustCatalog(def Definition) *Catalog {
	c, err := NewCatalog(def)
	if err != nil {
		panic(err)
	}
	return c
}

// Default returns the catalog built from DefaultDefinition.
func Default() *Catalog {
	return MustCatalog(DefaultDefinition())
}

// Current returns c itself, so a fixed catalog can be used wherever a Provider is expected.
func (c *Catalog) Current() *Catalog { return c }

// FeaturesFor returns the sorted set of features granted to tier,
// including everything inherited from lower tiers.
func (c *Catalog) FeaturesFor(tier Tier) []Feature {
	return slices.Clone(c.byTier[tier])
}

// HasFeature reports whether tier grants f. Unknown features are never granted.
func (c *Catalog) HasFeature(tier Tier, f Feature) bool {
	info, ok := c.features[f]
	if !ok {
		return false
	}
	return tier.AtLeast(info.MinTier)
}

// MinimumTierFor returns the lowest tier granting f.
func (c *Catalog) MinimumTierFor(f Feature) (Tier, error) {
	info, ok := c.features[f]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownFeature, f)
	}
	return info.MinTier, nil
}

// FeatureInfo returns the registered description of f.
func (c *Catalog) FeatureInfo(f Feature) (FeatureInfo, error) {
	info, ok := c.features[f]
	if !ok {
		return FeatureInfo{}, fmt.Errorf("%w: %q", ErrUnknownFeature, f)
	}
	return info, nil
}

// LimitFor returns the quota of action a on tier.
// Unknown tiers and actions fail closed with a zero monthly limit.
func (c *Catalog) LimitFor(tier Tier, a Action) Limit {
	entry, ok := c.actions[a]
	if !ok || !tier.Valid() {
		return Limit{Max: 0, Period: Month}
	}
	n, ok := entry.limits[tier]
	if !ok {
		return Limit{Max: 0, Period: entry.period}
	}
	return Limit{Max: n, Period: entry.period}
}

// UpgradeFor returns the lowest tier above tier with a higher limit for a.
func (c *Catalog) UpgradeFor(tier Tier, a Action) (Tier, bool) {
	current := c.LimitFor(tier, a)
	if current.IsUnlimited() || !c.HasAction(a) {
		return "", false
	}
	for next, ok := tier.Next(); ok; next, ok = next.Next() {
		l := c.LimitFor(next, a)
		if l.IsUnlimited() || l.Max > current.Max {
			return next, true
		}
	}
	return "", false
}

// GateFor returns the feature that must be granted before action a is metered.
func (c *Catalog) GateFor(a Action) (Feature, bool) {
	entry, ok := c.actions[a]
	if !ok || entry.gate == "" {
		return "", false
	}
	return entry.gate, true
}

// HasAction reports whether a is registered.
func (c *Catalog) HasAction(a Action) bool {
	_, ok := c.actions[a]
	return ok
}

// Actions returns all registered actions, sorted.
func (c *Catalog) Actions() []Action {
	return slices.Clone(c.keys)
}

// Limits returns the limit of every registered action for tier.
func (c *Catalog) Limits(tier Tier) map[Action]Limit {
	out := make(map[Action]Limit, len(c.keys))
	for _, a := range c.keys {
		out[a] = c.LimitFor(tier, a)
	}
	return out
}

func validateDefinition(def Definition) error {
	var errs []error

	features := make(map[Feature]struct{}, len(def.Features))
	for i, f := range def.Features {
		if f.Key == "" {
			errs = append(errs, fmt.Errorf("features[%d]: key is required", i))
			continue
		}
		if _, dup := features[f.Key]; dup {
			errs = append(errs, fmt.Errorf("feature %q: registered more than once", f.Key))
		}
		features[f.Key] = struct{}{}
		if !f.MinTier.Valid() {
			errs = append(errs, fmt.Errorf("feature %q: unknown min tier %q", f.Key, f.MinTier))
		}
	}

	actions := make(map[Action]struct{}, len(def.Actions))
	for i, a := range def.Actions {
		if a.Key == "" {
			errs = append(errs, fmt.Errorf("actions[%d]: key is required", i))
			continue
		}
		if _, dup := actions[a.Key]; dup {
			errs = append(errs, fmt.Errorf("action %q: registered more than once", a.Key))
		}
		actions[a.Key] = struct{}{}
		if !a.Period.Valid() {
			errs = append(errs, fmt.Errorf("action %q: unknown period %q", a.Key, a.Period))
		}
		if a.Feature != "" {
			if _, ok := features[a.Feature]; !ok {
				errs = append(errs, fmt.Errorf("action %q: gate references unknown feature %q", a.Key, a.Feature))
			}
		}
		for tier, n := range a.Limits {
			if !tier.Valid() {
				errs = append(errs, fmt.Errorf("action %q: unknown tier %q", a.Key, tier))
			}
			if n < Unlimited {
				errs = append(errs, fmt.Errorf("action %q: tier %q limit %d is below %d", a.Key, tier, n, Unlimited))
			}
		}
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidDefinition}, errs...)...)
	}
	return nil
}
