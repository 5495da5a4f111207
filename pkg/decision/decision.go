package decision

import (
	"time"

	"github.com/dmitrymomot/planguard/pkg/plan"
	"github.com/dmitrymomot/planguard/pkg/quota"
)

// Reason explains a denial.
type Reason string

const (
	ReasonFeatureNotInPlan Reason = "FEATURE_NOT_IN_PLAN"
	ReasonQuotaExceeded    Reason = "QUOTA_EXCEEDED"
)

// Decision is the verdict of a guard check.
// It is a value type: copies are independent and cached decisions are never mutated.
type Decision struct {
	Allowed      bool         `json:"allowed"`
	Reason       Reason       `json:"reason,omitempty"`
	Plan         plan.Tier    `json:"plan"`
	RequiredPlan plan.Tier    `json:"required_plan,omitempty"`
	Feature      plan.Feature `json:"feature,omitempty"`
	Action       plan.Action  `json:"action,omitempty"`
	CurrentUsage int64        `json:"current_usage"`
	Limit        int64        `json:"limit"`
	ResetAt      time.Time    `json:"reset_at,omitzero"`
	Subject      string       `json:"subject,omitempty"`
	Stale        bool         `json:"stale,omitempty"`

	// Reservation is set on allowed consuming checks and can be handed to Release.
	Reservation quota.Reservation `json:"reservation,omitzero"`
}

// Remaining returns the quota left, or plan.Unlimited for unlimited actions.
func (d Decision) Remaining() int64 {
	if d.Limit == plan.Unlimited {
		return plan.Unlimited
	}
	return max(d.Limit-d.CurrentUsage, 0)
}

// Metered reports whether the decision was subject to a quota.
func (d Decision) Metered() bool {
	return d.Action != "" && d.Limit != plan.Unlimited
}

// FeatureKey is the cache key of a feature-gate decision.
func FeatureKey(tier plan.Tier, f plan.Feature) string {
	return "feature:" + string(tier) + ":" + string(f)
}

// PeekKey is the cache key of a non-consuming quota snapshot.
func PeekKey(tier plan.Tier, a plan.Action) string {
	return "peek:" + string(tier) + ":" + string(a)
}
