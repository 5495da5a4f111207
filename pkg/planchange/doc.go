// Package planchange consumes plan transition events from billing.
//
// Listener.Handle appends the new assignment to the plan history, drops the
// resolver's cached plan data, evicts every cached decision of the subject
// and finally notifies peers. RedisNotifier carries those notifications
// between instances so each one invalidates its own in-process caches.
//
// Consumed quota is never rewritten on a transition.
package planchange
