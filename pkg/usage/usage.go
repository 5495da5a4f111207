package usage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/planguard/pkg/logger"
	"github.com/dmitrymomot/planguard/pkg/plan"
)

// ErrRecordFailed is joined with errors returned by recorders.
var ErrRecordFailed = errors.New("usage: failed to record event")

// Event is one consuming check, allowed or denied.
type Event struct {
	ID       uuid.UUID   `json:"id"`
	Subject  string      `json:"subject"`
	Action   plan.Action `json:"action"`
	Quantity int64       `json:"quantity"`
	Allowed  bool        `json:"allowed"`
	Reason   string      `json:"reason,omitempty"`
	Tier     plan.Tier   `json:"tier"`
	Count    int64       `json:"count"`
	Limit    int64       `json:"limit"`
	TraceID  string      `json:"trace_id,omitempty"`
	At       time.Time   `json:"at"`
}

// Recorder persists usage events.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, ev Event) error

func (f RecorderFunc) Record(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Multi records to every recorder and joins their errors.
func Multi(recorders ...Recorder) Recorder {
	return RecorderFunc(func(ctx context.Context, ev Event) error {
		var errs []error
		for _, r := range recorders {
			if r == nil {
				continue
			}
			if err := r.Record(ctx, ev); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// LogRecorder writes events to a logger at info level.
type LogRecorder struct {
	log *slog.Logger
}

// NewLogRecorder creates a LogRecorder. A nil logger discards events.
func NewLogRecorder(log *slog.Logger) *LogRecorder {
	if log == nil {
		log = logger.Discard()
	}
	return &LogRecorder{log: log}
}

func (r *LogRecorder) Record(ctx context.Context, ev Event) error {
	r.log.InfoContext(ctx, "usage",
		logger.Subject(ev.Subject),
		logger.Action(ev.Action),
		logger.Tier(ev.Tier),
		slog.Int64("quantity", ev.Quantity),
		slog.Bool("allowed", ev.Allowed),
		logger.Reason(ev.Reason),
		slog.Int64("count", ev.Count),
		slog.Int64("limit", ev.Limit),
		slog.String("trace_id", ev.TraceID),
	)
	return nil
}

func prepare(ev Event, now time.Time) Event {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.At.IsZero() {
		ev.At = now
	}
	ev.At = ev.At.UTC()
	return ev
}
