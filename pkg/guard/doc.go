// Package guard is the single entry point for entitlement and quota decisions.
//
// A Service combines the plan catalog, the entitlement resolver, the quota
// store and an optional decision cache:
//
//	svc := guard.New(catalog, resolver, store,
//		guard.WithCache(decision.NewMemoryCache(10_000)),
//		guard.WithMetrics(guard.NewMetrics(prometheus.DefaultRegisterer)),
//	)
//	d, err := svc.Check(ctx, entitlement.Principal{UserID: "u1"}, plan.ActionCompilePrompt, 1)
//	switch {
//	case err != nil:
//		// could not decide, treat as denied
//	case !d.Allowed:
//		// d.Reason, d.RequiredPlan, d.ResetAt describe the denial
//	}
//
// Check always consumes through the quota store; the cache only serves Peek
// and HasFeature. Unlimited actions never touch the store.
package guard
