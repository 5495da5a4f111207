// Package plan defines the product catalog: subscription tiers, the features
// each tier grants and the metered actions with their per-tier quotas.
//
// Tiers are totally ordered (free < pro < team). A feature is registered with
// exactly one minimum tier and is granted to that tier and every tier above it.
// Actions are counted operations; each action has a reset period and one limit
// per tier, where -1 (Unlimited) skips quota bookkeeping entirely.
//
// # Usage
//
//	catalog := plan.Default()
//
//	catalog.HasFeature(plan.Pro, plan.FeatureAPIAccess)       // true
//	catalog.LimitFor(plan.Free, plan.ActionCompilePrompt)     // {Max: 20, Period: month}
//	tier, err := catalog.MinimumTierFor(plan.FeatureAuditLogs) // team, nil
//
// # Failing closed
//
// LimitFor never grants access to something that is not configured: unknown
// tiers and actions get a zero limit. MinimumTierFor returns ErrUnknownFeature
// for unregistered keys, and HasFeature reports false for them.
//
// # Hot reload
//
// A Holder keeps the active catalog behind an atomic pointer. Reload swaps in a
// freshly validated catalog; an invalid definition leaves the previous catalog
// in place. Watch polls a FileSource and reloads when the file hash changes:
//
//	holder, err := plan.NewHolder(ctx, plan.NewFileSource("catalog.yaml"))
//	go holder.Watch(ctx, 30*time.Second)
//
// Both *Catalog and *Holder implement Provider, so consumers can take either.
//
// # Periods
//
// Period.Window computes calendar-aligned windows in UTC from nothing but the
// current time: daily windows start at midnight, weekly on Monday, monthly on
// the first of the month and yearly on January 1st.
package plan
