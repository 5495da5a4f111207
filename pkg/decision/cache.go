package decision

import (
	"context"
	"errors"
	"time"
)

var ErrCacheUnavailable = errors.New("decision: cache unavailable")

// Cache stores rendered decisions for repeated non-consuming checks.
// It is never the source of truth for a consuming decision.
type Cache interface {
	Get(ctx context.Context, subject, key string) (Decision, bool, error)
	Put(ctx context.Context, subject, key string, d Decision, ttl time.Duration) error
	Delete(ctx context.Context, subject string, keys ...string) error
	// InvalidateSubject evicts every decision cached for subject.
	InvalidateSubject(ctx context.Context, subject string) error
}

// NoopCache never stores anything.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string, string) (Decision, bool, error) {
	return Decision{}, false, nil
}

func (NoopCache) Put(context.Context, string, string, Decision, time.Duration) error { return nil }
func (NoopCache) Delete(context.Context, string, ...string) error                    { return nil }
func (NoopCache) InvalidateSubject(context.Context, string) error                    { return nil }
