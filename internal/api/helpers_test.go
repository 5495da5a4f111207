package api_test

import (
	"context"

	"github.com/dmitrymomot/planguard/internal/api"
	"github.com/dmitrymomot/planguard/pkg/decision"
	"github.com/dmitrymomot/planguard/pkg/entitlement"
	"github.com/dmitrymomot/planguard/pkg/guard"
	"github.com/dmitrymomot/planguard/pkg/plan"
	"github.com/dmitrymomot/planguard/pkg/quota"
)

// panicGuard blows up on every call.
type panicGuard struct{}

var _ api.Guard = panicGuard{}

func (panicGuard) Check(context.Context, entitlement.Principal, plan.Action, int64) (decision.Decision, error) {
	panic("check")
}

func (panicGuard) Peek(context.Context, entitlement.Principal, plan.Action, int64) (decision.Decision, error) {
	panic("peek")
}

func (panicGuard) Release(context.Context, entitlement.Principal, quota.Reservation) (int64, error) {
	panic("release")
}

func (panicGuard) HasFeature(context.Context, entitlement.Principal, plan.Feature) (decision.Decision, error) {
	panic("feature")
}

func (panicGuard) Usage(context.Context, entitlement.Principal, plan.Action) (guard.Usage, error) {
	panic("usage")
}

func (panicGuard) UpgradeInfo(context.Context, entitlement.Principal, plan.Feature) (*entitlement.UpgradeInfo, error) {
	panic("upgrade")
}

func (panicGuard) PlanInfo(context.Context, entitlement.Principal) (guard.PlanInfo, error) {
	panic("plan")
}

func (panicGuard) Upsell(decision.Decision) *guard.Upsell { return nil }

func (panicGuard) UsageWarning(guard.Usage) *guard.Upsell { return nil }
