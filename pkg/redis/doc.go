// Package redis connects go-redis clients with startup retries and exposes a
// health probe. The quota store, decision cache and plan change notifier all
// share the client returned by Connect.
package redis
