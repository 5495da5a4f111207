package guard

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dmitrymomot/planguard/pkg/decision"
	"github.com/dmitrymomot/planguard/pkg/entitlement"
	"github.com/dmitrymomot/planguard/pkg/logger"
	"github.com/dmitrymomot/planguard/pkg/plan"
	"github.com/dmitrymomot/planguard/pkg/quota"
	"github.com/dmitrymomot/planguard/pkg/usage"
)

// Check decides whether p may perform quantity units of action a and consumes
// the quota when allowed. A zero quantity counts as one.
//
// Denials are returned as decisions. Errors mean the guard could not decide:
// resolver or quota store failures, invalid input, or a stale plan for a
// metered action.
func (s *Service) Check(ctx context.Context, p entitlement.Principal, a plan.Action, quantity int64) (decision.Decision, error) {
	ctx, span := s.tracer.Start(ctx, "guard.Check")
	defer span.End()
	span.SetAttributes(attribute.String("guard.action", string(a)), attribute.Int64("guard.quantity", quantity))

	start := time.Now()
	d, err := s.check(ctx, p, a, quantity)
	s.metrics.observe("check", actionLabel(s.catalog.Current(), a), d, err, time.Since(start))
	endSpan(span, d, err)
	return d, err
}

func (s *Service) check(ctx context.Context, p entitlement.Principal, a plan.Action, quantity int64) (decision.Decision, error) {
	quantity, err := s.quantity(quantity)
	if err != nil {
		return decision.Decision{}, err
	}

	c := s.catalog.Current()
	res, err := s.resolver.Resolve(ctx, p)
	if err != nil {
		s.logger.ErrorContext(ctx, "plan resolution failed", logger.Action(a), logger.Error(err))
		return decision.Decision{}, err
	}

	base := decision.Decision{
		Plan:    res.Tier,
		Action:  a,
		Subject: res.Subject.Key(),
		Stale:   res.Stale,
	}

	if d, denied := s.gate(ctx, c, res.Tier, a, base); denied {
		return d, nil
	}

	limit := c.LimitFor(res.Tier, a)
	if limit.IsUnlimited() {
		d := base
		d.Allowed = true
		d.Limit = plan.Unlimited
		return d, nil
	}
	if res.Stale {
		return decision.Decision{}, errors.Join(ErrStalePlan, entitlement.ErrStoreUnavailable)
	}
	if !c.HasAction(a) {
		s.logger.WarnContext(ctx, "check on unknown action, denying", logger.Action(a))
		_, end := limit.Period.Window(s.now())
		d := base
		d.Reason = decision.ReasonQuotaExceeded
		d.ResetAt = end
		return d, nil
	}

	r, err := s.store.TryConsume(ctx, quota.ConsumeRequest{
		Subject:  res.Subject.Key(),
		Action:   a,
		Quantity: quantity,
		Limit:    limit.Max,
		Period:   limit.Period,
		Now:      s.now(),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "quota store unavailable, denying",
			logger.Subject(res.Subject.Key()), logger.Action(a), logger.Error(err))
		return decision.Decision{}, err
	}

	d := base
	d.Allowed = r.Allowed
	d.CurrentUsage = r.Count
	d.Limit = r.Limit
	d.ResetAt = r.ResetAt
	if r.Allowed {
		d.Reservation = r.Reservation
	} else {
		d.Reason = decision.ReasonQuotaExceeded
	}

	s.record(ctx, d, quantity)
	if r.Allowed {
		// Concurrent checks finish in any order, so the next Peek rereads the store.
		s.forgetSnapshots(ctx, d.Subject, a)
	}
	return d, nil
}

// Peek answers Check without consuming anything. Quota snapshots are served
// from the decision cache when fresh.
func (s *Service) Peek(ctx context.Context, p entitlement.Principal, a plan.Action, quantity int64) (decision.Decision, error) {
	ctx, span := s.tracer.Start(ctx, "guard.Peek")
	defer span.End()
	span.SetAttributes(attribute.String("guard.action", string(a)), attribute.Int64("guard.quantity", quantity))

	start := time.Now()
	d, err := s.peek(ctx, p, a, quantity)
	s.metrics.observe("peek", actionLabel(s.catalog.Current(), a), d, err, time.Since(start))
	endSpan(span, d, err)
	return d, err
}

func (s *Service) peek(ctx context.Context, p entitlement.Principal, a plan.Action, quantity int64) (decision.Decision, error) {
	quantity, err := s.quantity(quantity)
	if err != nil {
		return decision.Decision{}, err
	}

	c := s.catalog.Current()
	res, err := s.resolver.Resolve(ctx, p)
	if err != nil {
		return decision.Decision{}, err
	}

	base := decision.Decision{
		Plan:    res.Tier,
		Action:  a,
		Subject: res.Subject.Key(),
		Stale:   res.Stale,
	}
	if d, denied := s.gate(ctx, c, res.Tier, a, base); denied {
		return d, nil
	}

	limit := c.LimitFor(res.Tier, a)
	if limit.IsUnlimited() {
		d := base
		d.Allowed = true
		d.Limit = plan.Unlimited
		return d, nil
	}

	snap, ok := s.cachedSnapshot(ctx, res.Subject.Key(), decision.PeekKey(res.Tier, a))
	if !ok {
		u, err := s.store.Current(ctx, res.Subject.Key(), a, limit.Period, s.now())
		if err != nil {
			return decision.Decision{}, err
		}
		snap = base
		snap.CurrentUsage = u.Count
		snap.Limit = limit.Max
		snap.ResetAt = u.ResetAt
		s.putSnapshot(ctx, snap)
	}

	d := base
	d.CurrentUsage = snap.CurrentUsage
	d.Limit = snap.Limit
	d.ResetAt = snap.ResetAt
	d.Allowed = d.CurrentUsage+quantity <= d.Limit
	if !d.Allowed {
		d.Reason = decision.ReasonQuotaExceeded
	}
	return d, nil
}

// Release credits back a reservation returned by Check. The reservation must
// belong to p or to p's team and is credited at most once.
func (s *Service) Release(ctx context.Context, p entitlement.Principal, r quota.Reservation) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "guard.Release")
	defer span.End()

	if err := p.Validate(); err != nil {
		return 0, err
	}
	if r.IsZero() || r.Action == "" || r.PeriodStart.IsZero() {
		return 0, ErrInvalidReservation
	}
	if !owns(p, r.Subject) {
		return 0, ErrReservationNotOwned
	}

	n, err := s.store.Release(ctx, r)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	s.forgetSnapshots(ctx, r.Subject, r.Action)
	return n, nil
}

// gate returns a FEATURE_NOT_IN_PLAN decision when a is gated by a feature tier lacks.
func (s *Service) gate(ctx context.Context, c *plan.Catalog, tier plan.Tier, a plan.Action, base decision.Decision) (decision.Decision, bool) {
	f, ok := c.GateFor(a)
	if !ok || c.HasFeature(tier, f) {
		return decision.Decision{}, false
	}
	required, err := c.MinimumTierFor(f)
	if err != nil {
		s.logger.WarnContext(ctx, "action gated by unknown feature", logger.Action(a), logger.Feature(f))
	}
	d := base
	d.Reason = decision.ReasonFeatureNotInPlan
	d.Feature = f
	d.RequiredPlan = required
	d.Limit = c.LimitFor(tier, a).Max
	return d, true
}

func (s *Service) quantity(q int64) (int64, error) {
	if q == 0 {
		q = 1
	}
	if q < 0 || q > s.maxQuantity {
		return 0, ErrInvalidQuantity
	}
	return q, nil
}

func (s *Service) cachedSnapshot(ctx context.Context, subject, key string) (decision.Decision, bool) {
	d, ok, err := s.cache.Get(ctx, subject, key)
	if err != nil {
		s.logger.WarnContext(ctx, "decision cache read failed", logger.Subject(subject), logger.Error(err))
		return decision.Decision{}, false
	}
	return d, ok
}

// putSnapshot caches the usage view of d for later Peek calls.
func (s *Service) putSnapshot(ctx context.Context, d decision.Decision) {
	snap := decision.Decision{
		Plan:         d.Plan,
		Action:       d.Action,
		Subject:      d.Subject,
		CurrentUsage: d.CurrentUsage,
		Limit:        d.Limit,
		ResetAt:      d.ResetAt,
	}
	if err := s.cache.Put(ctx, d.Subject, decision.PeekKey(d.Plan, d.Action), snap, s.quotaTTL); err != nil {
		s.logger.WarnContext(ctx, "decision cache write failed", logger.Subject(d.Subject), logger.Error(err))
	}
}

func (s *Service) forgetSnapshots(ctx context.Context, subject string, a plan.Action) {
	keys := make([]string, 0, len(plan.Tiers()))
	for _, t := range plan.Tiers() {
		keys = append(keys, decision.PeekKey(t, a))
	}
	if err := s.cache.Delete(ctx, subject, keys...); err != nil {
		s.logger.WarnContext(ctx, "decision cache delete failed", logger.Subject(subject), logger.Error(err))
	}
}

func (s *Service) record(ctx context.Context, d decision.Decision, quantity int64) {
	if s.recorder == nil {
		return
	}
	ev := usage.Event{
		Subject:  d.Subject,
		Action:   d.Action,
		Quantity: quantity,
		Allowed:  d.Allowed,
		Reason:   string(d.Reason),
		Tier:     d.Plan,
		Count:    d.CurrentUsage,
		Limit:    d.Limit,
		TraceID:  TraceIDFromContext(ctx),
		At:       s.now(),
	}
	if err := s.recorder.Record(context.WithoutCancel(ctx), ev); err != nil {
		s.logger.WarnContext(ctx, "usage event not recorded", logger.Subject(d.Subject), logger.Error(err))
	}
}

func owns(p entitlement.Principal, subject string) bool {
	if subject == p.User().Key() {
		return true
	}
	team, ok := p.Team()
	return ok && subject == team.Key()
}
