package guard

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dmitrymomot/planguard/pkg/decision"
	"github.com/dmitrymomot/planguard/pkg/entitlement"
	"github.com/dmitrymomot/planguard/pkg/logger"
	"github.com/dmitrymomot/planguard/pkg/plan"
)

// HasFeature decides a pure feature gate. It never touches the quota store
// and answers from last-known plan data when the assignment store is down,
// flagging the decision as stale.
func (s *Service) HasFeature(ctx context.Context, p entitlement.Principal, f plan.Feature) (decision.Decision, error) {
	ctx, span := s.tracer.Start(ctx, "guard.HasFeature")
	defer span.End()
	span.SetAttributes(attribute.String("guard.feature", string(f)))

	start := time.Now()
	d, err := s.hasFeature(ctx, p, f)
	s.metrics.observe("feature", featureLabel(s.catalog.Current(), f), d, err, time.Since(start))
	endSpan(span, d, err)
	return d, err
}

func (s *Service) hasFeature(ctx context.Context, p entitlement.Principal, f plan.Feature) (decision.Decision, error) {
	res, err := s.resolver.Resolve(ctx, p)
	if err != nil {
		return decision.Decision{}, err
	}

	subject, key := res.Subject.Key(), decision.FeatureKey(res.Tier, f)
	if d, ok := s.cachedSnapshot(ctx, subject, key); ok {
		d.Stale = res.Stale
		return d, nil
	}

	c := s.catalog.Current()
	d := decision.Decision{
		Plan:    res.Tier,
		Feature: f,
		Subject: subject,
	}
	required, err := c.MinimumTierFor(f)
	switch {
	case err != nil:
		s.logger.WarnContext(ctx, "feature gate on unknown feature", logger.Feature(f), logger.Error(err))
		d.Reason = decision.ReasonFeatureNotInPlan
	case res.Tier.AtLeast(required):
		d.Allowed = true
	default:
		d.Reason = decision.ReasonFeatureNotInPlan
		d.RequiredPlan = required
	}

	if err := s.cache.Put(ctx, subject, key, d, s.featureTTL); err != nil {
		s.logger.WarnContext(ctx, "decision cache write failed", logger.Subject(subject), logger.Error(err))
	}
	d.Stale = res.Stale
	return d, nil
}

// UpgradeInfo returns nil when p already has f, otherwise the tier that grants
// it together with its upgrade copy. Unknown features return plan.ErrUnknownFeature.
func (s *Service) UpgradeInfo(ctx context.Context, p entitlement.Principal, f plan.Feature) (*entitlement.UpgradeInfo, error) {
	ctx, span := s.tracer.Start(ctx, "guard.UpgradeInfo")
	defer span.End()

	res, err := s.resolver.Resolve(ctx, p)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	info, err := entitlement.UpgradeFor(s.catalog.Current(), res.Tier, f)
	if err != nil {
		s.logger.WarnContext(ctx, "upgrade info for unknown feature", logger.Feature(f))
		return nil, err
	}
	return info, nil
}

// PlanInfo summarises the effective plan of a principal.
type PlanInfo struct {
	Tier     plan.Tier                  `json:"tier"`
	Subject  string                     `json:"subject"`
	TeamPlan bool                       `json:"team_plan"`
	Stale    bool                       `json:"stale,omitempty"`
	Features []plan.Feature             `json:"features"`
	Limits   map[plan.Action]plan.Limit `json:"limits"`
	Next     plan.Tier                  `json:"next,omitempty"`
}

// PlanInfo returns the tier, granted features and limits in effect for p.
func (s *Service) PlanInfo(ctx context.Context, p entitlement.Principal) (PlanInfo, error) {
	ctx, span := s.tracer.Start(ctx, "guard.PlanInfo")
	defer span.End()

	res, err := s.resolver.Resolve(ctx, p)
	if err != nil {
		span.RecordError(err)
		return PlanInfo{}, err
	}
	c := s.catalog.Current()
	info := PlanInfo{
		Tier:     res.Tier,
		Subject:  res.Subject.Key(),
		TeamPlan: res.TeamPlan,
		Stale:    res.Stale,
		Features: c.FeaturesFor(res.Tier),
		Limits:   c.Limits(res.Tier),
	}
	if next, ok := res.Tier.Next(); ok {
		info.Next = next
	}
	return info, nil
}
