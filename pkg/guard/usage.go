package guard

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dmitrymomot/planguard/pkg/entitlement"
	"github.com/dmitrymomot/planguard/pkg/plan"
)

// Usage is a quota display snapshot.
type Usage struct {
	Action      plan.Action `json:"action"`
	Plan        plan.Tier   `json:"plan"`
	Subject     string      `json:"subject"`
	Count       int64       `json:"count"`
	Limit       int64       `json:"limit"`
	Remaining   int64       `json:"remaining"`
	Period      plan.Period `json:"period"`
	PeriodStart time.Time   `json:"period_start"`
	ResetAt     time.Time   `json:"reset_at"`
	Stale       bool        `json:"stale,omitempty"`
}

// Unlimited reports whether the action has no quota on the current plan.
func (u Usage) Unlimited() bool { return u.Limit == plan.Unlimited }

// Percent returns the share of the quota used, 0 to 100.
func (u Usage) Percent() float64 {
	if u.Unlimited() {
		return 0
	}
	if u.Limit == 0 {
		return 100
	}
	return min(float64(u.Count)*100/float64(u.Limit), 100)
}

// Usage returns the current counter of action a for p. Unlimited actions
// report a zero count without reading the store.
func (s *Service) Usage(ctx context.Context, p entitlement.Principal, a plan.Action) (Usage, error) {
	ctx, span := s.tracer.Start(ctx, "guard.Usage")
	defer span.End()
	span.SetAttributes(attribute.String("guard.action", string(a)))

	res, err := s.resolver.Resolve(ctx, p)
	if err != nil {
		span.RecordError(err)
		return Usage{}, err
	}

	limit := s.catalog.Current().LimitFor(res.Tier, a)
	now := s.now()
	start, end := limit.Period.Window(now)
	u := Usage{
		Action:      a,
		Plan:        res.Tier,
		Subject:     res.Subject.Key(),
		Limit:       limit.Max,
		Remaining:   plan.Unlimited,
		Period:      limit.Period,
		PeriodStart: start,
		ResetAt:     end,
		Stale:       res.Stale,
	}
	if limit.IsUnlimited() {
		return u, nil
	}

	cur, err := s.store.Current(ctx, u.Subject, a, limit.Period, now)
	if err != nil {
		span.RecordError(err)
		return Usage{}, err
	}
	u.Count = cur.Count
	u.Remaining = limit.Remaining(cur.Count)
	return u, nil
}
