package plan

import (
	"fmt"
	"slices"
	"strings"
)

// Tier is a subscription level. Tiers are totally ordered: free < pro < team.
type Tier string

const (
	Free Tier = "free"
	Pro  Tier = "pro"
	Team Tier = "team"
)

var tierOrder = []Tier{Free, Pro, Team}

// Tiers returns all known tiers in ascending order.
func Tiers() []Tier {
	return slices.Clone(tierOrder)
}

// ParseTier converts a string into a Tier. Matching is case-insensitive.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownTier, s)
	}
	return t, nil
}

func (t Tier) String() string { return string(t) }

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool { return t.Rank() >= 0 }

// Rank returns the position of t in the tier order, or -1 for unknown tiers.
func (t Tier) Rank() int { return slices.Index(tierOrder, t) }

// AtLeast reports whether t grants everything other grants.
// Unknown tiers never satisfy and are never satisfied.
func (t Tier) AtLeast(other Tier) bool {
	if !t.Valid() || !other.Valid() {
		return false
	}
	return t.Rank() >= other.Rank()
}

// Next returns the tier one step up the upgrade ladder.
func (t Tier) Next() (Tier, bool) {
	r := t.Rank()
	if r < 0 || r+1 >= len(tierOrder) {
		return "", false
	}
	return tierOrder[r+1], true
}

// Feature identifies a capability gated by plan tier.
type Feature string

func (f Feature) String() string { return string(f) }

// Action identifies a quota-metered operation.
type Action string

func (a Action) String() string { return string(a) }
