package guard_test

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/planguard/pkg/decision"
	"github.com/dmitrymomot/planguard/pkg/entitlement"
	"github.com/dmitrymomot/planguard/pkg/guard"
	"github.com/dmitrymomot/planguard/pkg/plan"
)

func TestHasFeature(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.assign(t, entitlement.UserSubject("pro-user"), plan.Pro)

	tests := []struct {
		name     string
		p        entitlement.Principal
		feature  plan.Feature
		allowed  bool
		required plan.Tier
	}{
		{"free feature on free", user("u1"), plan.FeatureBasicAITools, true, ""},
		{"pro feature on free", user("u1"), plan.FeatureAPIAccess, false, plan.Pro},
		{"team feature on free", user("u1"), plan.FeatureSSO, false, plan.Team},
		{"pro feature on pro", user("pro-user"), plan.FeatureAPIAccess, true, ""},
		{"team feature on pro", user("pro-user"), plan.FeatureAuditLogs, false, plan.Team},
		{"unknown feature", user("pro-user"), plan.Feature("TIME_TRAVEL"), false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			// Twice: the second answer comes from the cache and must match.
			for range 2 {
				d, err := f.svc.HasFeature(ctx, tt.p, tt.feature)
				require.NoError(t, err)
				assert.Equal(t, tt.allowed, d.Allowed)
				assert.Equal(t, tt.required, d.RequiredPlan)
				assert.Equal(t, tt.feature, d.Feature)
				if !tt.allowed {
					assert.Equal(t, decision.ReasonFeatureNotInPlan, d.Reason)
				}
			}
		})
	}
}

func TestHasFeature_CoherentAfterInvalidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	d, err := f.svc.HasFeature(ctx, user("u1"), plan.FeatureSSO)
	require.NoError(t, err)
	require.False(t, d.Allowed)

	f.assign(t, entitlement.UserSubject("u1"), plan.Team)
	require.NoError(t, f.cache.InvalidateSubject(ctx, "user:u1"))

	d, err = f.svc.HasFeature(ctx, user("u1"), plan.FeatureSSO)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, plan.Team, d.Plan)
}

func TestUpgradeInfo(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	info, err := f.svc.UpgradeInfo(ctx, user("u1"), plan.FeatureBasicAITools)
	require.NoError(t, err)
	assert.Nil(t, info)

	info, err = f.svc.UpgradeInfo(ctx, user("u1"), plan.FeatureAPIAccess)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, plan.Free, info.CurrentPlan)
	assert.Equal(t, plan.Pro, info.RequiredPlan)
	assert.Equal(t, "API access", info.Title)
	assert.NotEmpty(t, info.UpgradeURL)

	_, err = f.svc.UpgradeInfo(ctx, user("u1"), plan.Feature("TIME_TRAVEL"))
	assert.ErrorIs(t, err, plan.ErrUnknownFeature)
}

func TestPlanInfo(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.assign(t, entitlement.TeamSubject("acme"), plan.Team)

	info, err := f.svc.PlanInfo(context.Background(), member("u1", "acme"))
	require.NoError(t, err)
	assert.Equal(t, plan.Team, info.Tier)
	assert.True(t, info.TeamPlan)
	assert.Equal(t, "team:acme", info.Subject)
	assert.Contains(t, info.Features, plan.FeatureSSO)
	assert.Contains(t, info.Features, plan.FeatureBasicAITools)
	assert.Equal(t, plan.Limit{Max: 5000, Period: plan.Day}, info.Limits[plan.ActionAPICall])
	assert.Empty(t, info.Next)

	info, err = f.svc.PlanInfo(context.Background(), user("solo"))
	require.NoError(t, err)
	assert.Equal(t, plan.Free, info.Tier)
	assert.Equal(t, plan.Pro, info.Next)
	assert.NotContains(t, info.Features, plan.FeatureAPIAccess)
}

func TestUsage(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.fill(t, "user:u1", plan.ActionCompilePrompt, 17, 20)

	u, err := f.svc.Usage(ctx, user("u1"), plan.ActionCompilePrompt)
	require.NoError(t, err)
	assert.Equal(t, int64(17), u.Count)
	assert.Equal(t, int64(20), u.Limit)
	assert.Equal(t, int64(3), u.Remaining)
	assert.Equal(t, marchFirst, u.ResetAt)
	assert.InDelta(t, 85.0, u.Percent(), 0.001)
	assert.False(t, u.Unlimited())

	f.assign(t, entitlement.UserSubject("u2"), plan.Pro)
	reads := f.store.reads.Load()
	u, err = f.svc.Usage(ctx, user("u2"), plan.ActionCompilePrompt)
	require.NoError(t, err)
	assert.True(t, u.Unlimited())
	assert.Equal(t, plan.Unlimited, u.Remaining)
	assert.Equal(t, reads, f.store.reads.Load())
}

func TestUpsell(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	t.Run("allowed decisions have none", func(t *testing.T) {
		t.Parallel()
		assert.Nil(t, f.svc.Upsell(decision.Decision{Allowed: true}))
	})

	t.Run("quota exceeded on free", func(t *testing.T) {
		t.Parallel()
		up := f.svc.Upsell(decision.Decision{
			Plan:   plan.Free,
			Action: plan.ActionCompilePrompt,
			Reason: decision.ReasonQuotaExceeded,
		})
		require.NotNil(t, up)
		assert.Equal(t, guard.TriggerQuotaExceeded, up.Trigger)
		assert.Equal(t, plan.Pro, up.RequiredPlan)
		assert.Equal(t, guard.UrgencyHigh, up.Urgency)
		assert.True(t, up.Urgency.Modal())

		link, err := url.Parse(up.UpgradeURL)
		require.NoError(t, err)
		assert.Equal(t, "/pricing", link.Path)
		q := link.Query()
		assert.Equal(t, "guard", q.Get("source"))
		assert.Equal(t, "compile_prompt", q.Get("action"))
		assert.Equal(t, "quota_exceeded", q.Get("trigger"))
		assert.Equal(t, "compile_prompt_quota_exceeded", q.Get("utm_content"))
	})

	t.Run("quota exceeded on top tier", func(t *testing.T) {
		t.Parallel()
		assert.Nil(t, f.svc.Upsell(decision.Decision{
			Plan:   plan.Team,
			Action: plan.ActionAPICall,
			Reason: decision.ReasonQuotaExceeded,
		}))
	})

	t.Run("feature not in plan", func(t *testing.T) {
		t.Parallel()
		up := f.svc.Upsell(decision.Decision{
			Plan:         plan.Free,
			Action:       plan.ActionAPICall,
			Feature:      plan.FeatureAPIAccess,
			RequiredPlan: plan.Pro,
			Reason:       decision.ReasonFeatureNotInPlan,
		})
		require.NotNil(t, up)
		assert.Equal(t, guard.UrgencyMedium, up.Urgency)
		assert.True(t, up.Urgency.Banner())
		assert.Equal(t, "API access", up.Title)

		link, err := url.Parse(up.UpgradeURL)
		require.NoError(t, err)
		assert.Equal(t, "api_access", link.Query().Get("feature"))
		assert.Equal(t, "feature_not_in_plan", link.Query().Get("trigger"))
	})
}

func TestUsageWarning(t *testing.T) {
	t.Parallel()

	svc := newFixture(t, guard.WithUpgradeURL("https://example.com/pricing")).svc

	tests := []struct {
		name    string
		count   int64
		limit   int64
		urgency guard.Urgency
		none    bool
	}{
		{"below threshold", 15, 20, "", true},
		{"at 80 percent", 16, 20, guard.UrgencyLow, false},
		{"at 90 percent", 18, 20, guard.UrgencyMedium, false},
		{"at 95 percent", 19, 20, guard.UrgencyHigh, false},
		{"exhausted", 20, 20, guard.UrgencyHigh, false},
		{"unlimited", 500, plan.Unlimited, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			up := svc.UsageWarning(guard.Usage{
				Action: plan.ActionCompilePrompt,
				Plan:   plan.Free,
				Count:  tt.count,
				Limit:  tt.limit,
			})
			if tt.none {
				assert.Nil(t, up)
				return
			}
			require.NotNil(t, up)
			assert.Equal(t, tt.urgency, up.Urgency)
			assert.Equal(t, guard.TriggerUsageWarning, up.Trigger)
			assert.Equal(t, plan.Pro, up.RequiredPlan)
			assert.Contains(t, up.UpgradeURL, "https://example.com/pricing?")
			assert.Contains(t, up.Description, "unlimited compile prompt")
		})
	}

	assert.Nil(t, svc.UsageWarning(guard.Usage{
		Action: plan.ActionAPICall, Plan: plan.Team, Count: 5000, Limit: 5000,
	}), "no tier above team")
}
