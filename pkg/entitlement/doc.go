// Package entitlement resolves which plan applies to a caller and answers
// feature-gate questions against the catalog.
//
// A Principal is a user id plus an optional team id. Plan history for users
// and teams is an append-only list of Assignments; the one in force at a given
// moment is the most recent that has started and not ended.
//
// Resolve applies plan precedence. When the team has an assignment in force,
// its tier is used and every quota counter belongs to the team, whatever the
// member's own plan. Otherwise the member's own plan applies, and a member with
// no assignment is on the free tier.
//
// Append closes the assignment open at the new row's start by setting its
// EffectiveTo.
//
// Plan history is cached per subject for a short TTL and loads are
// deduplicated. Invalidate bumps a per-subject epoch, so a load that was in
// flight during a plan change can never write old data back into the cache.
// When the store fails, the last history successfully read is served with
// Resolution.Stale set; with no such copy the error wraps ErrStoreUnavailable.
package entitlement
