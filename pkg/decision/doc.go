// Package decision defines the guard's verdict type and the caches that hold
// rendered verdicts for repeated non-consuming checks.
//
// A Decision is a plain value. Denials always carry enough data to explain
// themselves: FEATURE_NOT_IN_PLAN decisions name the required plan, and
// QUOTA_EXCEEDED decisions the current usage, the limit and the reset time.
//
// Caches are keyed by subject plus an opaque key; FeatureKey and PeekKey build
// the keys used by the guard and include the tier, so an entry written under
// one plan can never answer for another. InvalidateSubject drops every entry of
// a subject at once, which is what plan changes need.
//
// MemoryCache keeps decisions in a bounded LRU inside the process. RedisCache
// shares them between processes; all keys of a subject live under one hash tag
// and a per-subject index set, so invalidation is a single script call.
package decision
