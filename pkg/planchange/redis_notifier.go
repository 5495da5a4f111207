package planchange

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/planguard/pkg/entitlement"
	"github.com/dmitrymomot/planguard/pkg/logger"
)

// DefaultChannel is the pub/sub channel used when none is configured.
const DefaultChannel = "planguard:plan-changes"

// Invalidator drops local state of a subject on a peer's request.
type Invalidator interface {
	Invalidate(ctx context.Context, subject entitlement.Subject) error
}

type notice struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

// RedisNotifier fans plan changes out to other instances over Redis pub/sub.
// Each notifier ignores its own messages.
type RedisNotifier struct {
	client  redis.UniversalClient
	channel string
	origin  string
	logger  *slog.Logger
}

// NotifierOption configures a RedisNotifier.
type NotifierOption func(*RedisNotifier)

// WithChannel sets the pub/sub channel.
func WithChannel(name string) NotifierOption {
	return func(n *RedisNotifier) {
		if name != "" {
			n.channel = name
		}
	}
}

// WithNotifierLogger sets the logger used by subscriptions.
func WithNotifierLogger(l *slog.Logger) NotifierOption {
	return func(n *RedisNotifier) {
		if l != nil {
			n.logger = l
		}
	}
}

// NewRedisNotifier creates a notifier on client.
func NewRedisNotifier(client redis.UniversalClient, opts ...NotifierOption) *RedisNotifier {
	n := &RedisNotifier{
		client:  client,
		channel: DefaultChannel,
		origin:  uuid.NewString(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *RedisNotifier) Notify(ctx context.Context, ev Event) error {
	raw, err := json.Marshal(notice{Origin: n.origin, Event: ev})
	if err != nil {
		return errors.Join(ErrNotifyFailed, err)
	}
	if err := n.client.Publish(ctx, n.channel, raw).Err(); err != nil {
		return errors.Join(ErrNotifyFailed, err)
	}
	return nil
}

// Subscription is a running peer subscription.
type Subscription struct {
	pubsub *redis.PubSub
	done   chan struct{}
	once   sync.Once
}

// Done is closed once the subscription stops.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close stops the subscription and waits for its loop to exit.
func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() { err = s.pubsub.Close() })
	<-s.done
	return err
}

// Subscribe listens for plan changes published by peers and invalidates them
// through inv. It returns once the subscription is confirmed by the server;
// messages are then handled until ctx is done or Close is called.
func (n *RedisNotifier) Subscribe(ctx context.Context, inv Invalidator) (*Subscription, error) {
	ps := n.client.Subscribe(ctx, n.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	sub := &Subscription{pubsub: ps, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				sub.once.Do(func() { _ = ps.Close() })
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				n.handle(ctx, inv, msg.Payload)
			}
		}
	}()
	return sub, nil
}

func (n *RedisNotifier) handle(ctx context.Context, inv Invalidator, payload string) {
	var nt notice
	if err := json.Unmarshal([]byte(payload), &nt); err != nil {
		n.logger.WarnContext(ctx, "dropping peer notice", logger.Error(errors.Join(ErrInvalidNotice, err)))
		return
	}
	if nt.Origin == n.origin {
		return
	}
	subject := nt.Event.Subject()
	if err := inv.Invalidate(ctx, subject); err != nil {
		n.logger.WarnContext(ctx, "peer invalidation failed", logger.Subject(subject.Key()), logger.Error(err))
		return
	}
	n.logger.DebugContext(ctx, "peer plan change applied", logger.Subject(subject.Key()))
}
