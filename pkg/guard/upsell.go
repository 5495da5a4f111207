package guard

import (
	"fmt"
	"math"
	"net/url"
	"strings"

	"github.com/dmitrymomot/planguard/pkg/decision"
	"github.com/dmitrymomot/planguard/pkg/plan"
)

// Urgency ranks how prominently an upsell should be shown.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// Modal reports whether the prompt warrants a blocking dialog.
func (u Urgency) Modal() bool { return u == UrgencyHigh }

// Banner reports whether the prompt warrants a banner.
func (u Urgency) Banner() bool { return u == UrgencyMedium || u == UrgencyHigh }

// Tooltip reports whether a tooltip is enough.
func (u Urgency) Tooltip() bool { return u == UrgencyLow }

const (
	TriggerQuotaExceeded    = "quota_exceeded"
	TriggerFeatureNotInPlan = "feature_not_in_plan"
	TriggerUsageWarning     = "usage_warning"
)

// Upsell is machine-readable upgrade guidance attached to a denial or a usage warning.
type Upsell struct {
	Trigger      string       `json:"trigger"`
	Action       plan.Action  `json:"action,omitempty"`
	Feature      plan.Feature `json:"feature,omitempty"`
	CurrentPlan  plan.Tier    `json:"current_plan"`
	RequiredPlan plan.Tier    `json:"required_plan"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	Urgency      Urgency      `json:"urgency"`
	Percent      int          `json:"percent,omitempty"`
	UpgradeURL   string       `json:"upgrade_url"`
}

// Upsell returns upgrade guidance for a denied decision, or nil when the
// decision is allowed or no higher tier would help.
func (s *Service) Upsell(d decision.Decision) *Upsell {
	if d.Allowed {
		return nil
	}
	c := s.catalog.Current()

	switch d.Reason {
	case decision.ReasonFeatureNotInPlan:
		if d.RequiredPlan == "" {
			return nil
		}
		up := &Upsell{
			Trigger:      TriggerFeatureNotInPlan,
			Action:       d.Action,
			Feature:      d.Feature,
			CurrentPlan:  d.Plan,
			RequiredPlan: d.RequiredPlan,
			Urgency:      UrgencyMedium,
		}
		base := s.upgradeURL
		if info, err := c.FeatureInfo(d.Feature); err == nil {
			up.Title, up.Description = info.Title, info.Description
			if info.UpgradeURL != "" {
				base = info.UpgradeURL
			}
		}
		up.UpgradeURL = upgradeLink(base, orAction(d), up.Trigger)
		return up

	case decision.ReasonQuotaExceeded:
		next, ok := c.UpgradeFor(d.Plan, d.Action)
		if !ok {
			return nil
		}
		return &Upsell{
			Trigger:      TriggerQuotaExceeded,
			Action:       d.Action,
			CurrentPlan:  d.Plan,
			RequiredPlan: next,
			Title:        "Usage limit reached",
			Description:  describeUpgrade(c, next, d.Action),
			Urgency:      UrgencyHigh,
			UpgradeURL:   upgradeLink(s.upgradeURL, string(d.Action), TriggerQuotaExceeded),
		}
	}
	return nil
}

// UsageWarning returns an upsell once usage crosses 80 percent of a quota:
// low from 80, medium from 90 and high from 95 percent. It returns nil below
// the threshold, for unlimited actions and when no higher tier would help.
func (s *Service) UsageWarning(u Usage) *Upsell {
	if u.Unlimited() {
		return nil
	}
	pct := u.Percent()
	if pct < 80 {
		return nil
	}
	c := s.catalog.Current()
	next, ok := c.UpgradeFor(u.Plan, u.Action)
	if !ok {
		return nil
	}

	urgency := UrgencyLow
	switch {
	case pct >= 95:
		urgency = UrgencyHigh
	case pct >= 90:
		urgency = UrgencyMedium
	}
	rounded := int(math.Round(pct))

	return &Upsell{
		Trigger:      TriggerUsageWarning,
		Action:       u.Action,
		CurrentPlan:  u.Plan,
		RequiredPlan: next,
		Title:        fmt.Sprintf("%s usage at %d%%", humanize(u.Action), rounded),
		Description:  describeUpgrade(c, next, u.Action),
		Urgency:      urgency,
		Percent:      rounded,
		UpgradeURL:   upgradeLink(s.upgradeURL, string(u.Action), TriggerUsageWarning),
	}
}

func describeUpgrade(c *plan.Catalog, next plan.Tier, a plan.Action) string {
	l := c.LimitFor(next, a)
	if l.IsUnlimited() {
		return fmt.Sprintf("Upgrade to %s for unlimited %s", next, humanize(a))
	}
	return fmt.Sprintf("Upgrade to %s for %d %s per %s", next, l.Max, humanize(a), l.Period)
}

func upgradeLink(base, action, trigger string) string {
	u, err := url.Parse(base)
	if err != nil {
		u = &url.URL{Path: DefaultUpgradeURL}
	}
	q := u.Query()
	q.Set("source", "guard")
	if action != "" {
		q.Set("action", action)
	}
	q.Set("trigger", trigger)
	q.Set("utm_campaign", "quota_upsell")
	q.Set("utm_medium", "in_app")
	q.Set("utm_content", action+"_"+trigger)
	u.RawQuery = q.Encode()
	return u.String()
}

func orAction(d decision.Decision) string {
	if d.Action != "" {
		return string(d.Action)
	}
	return strings.ToLower(string(d.Feature))
}

func humanize(a plan.Action) string {
	return strings.ReplaceAll(string(a), "_", " ")
}
