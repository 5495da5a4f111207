// Package api serves the guard over HTTP.
//
// Guard endpoints live under /v1/guard and require an authenticated caller.
// A consuming check answers 200 when allowed, 402 when the quota is exhausted
// and 403 when the plan lacks the gating feature; every body is an Envelope
// carrying the decision, optional upsell guidance and the trace id. Billing
// pushes signed plan transitions to /v1/billing/plan-events.
package api
