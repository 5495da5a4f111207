// Package quota stores usage counters per subject, action and calendar window.
//
// The only mutating operations are TryConsume and Release, and every Store
// implementation performs them atomically: the limit check and the increment
// are one step, never a read followed by a write. MemoryStore holds a mutex,
// RedisStore runs Lua scripts and PostgresStore uses a conditional UPDATE.
//
// Counters are created lazily on the first consumption attempt in a window
// and windows are derived from plan.Period.Window, so a new window always
// starts from zero.
//
//	res, err := store.TryConsume(ctx, quota.ConsumeRequest{
//		Subject:  "user:42",
//		Action:   plan.ActionCompilePrompt,
//		Quantity: 1,
//		Limit:    20,
//		Period:   plan.Month,
//	})
//	if err != nil {
//		// ErrStoreUnavailable: fail closed
//	}
//	if !res.Allowed {
//		// res.Count is the current usage, res.ResetAt the next window
//	}
//
// Every allowed consumption returns a Reservation with a store-generated ID.
// Release credits back the quantity the store recorded for that ID, once, and
// clamps the counter at zero. Replaying a reservation returns ErrUnknownReservation.
package quota
