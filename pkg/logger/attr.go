package logger

import (
	"log/slog"
	"time"
)

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Event records the event name under the key "event".
func Event(name string) slog.Attr {
	return slog.String("event", name)
}

// Subject records the quota subject key under the key "subject".
func Subject(key string) slog.Attr {
	return slog.String("subject", key)
}

// UserID records the user identifier under the key "user_id".
// If id is empty, it returns an empty Attr.
func UserID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("user_id", id)
}

// TeamID records the team identifier under the key "team_id".
// If id is empty, it returns an empty Attr.
func TeamID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("team_id", id)
}

// Action records a metered action under the key "action".
func Action[T ~string](a T) slog.Attr {
	return slog.String("action", string(a))
}

// Feature records a feature key under the key "feature".
func Feature[T ~string](f T) slog.Attr {
	return slog.String("feature", string(f))
}

// Tier records a plan tier under the key "tier".
func Tier[T ~string](t T) slog.Attr {
	return slog.String("tier", string(t))
}

// Reason records a denial reason under the key "reason".
// If reason is empty, it returns an empty Attr.
func Reason[T ~string](r T) slog.Attr {
	if r == "" {
		return slog.Attr{}
	}
	return slog.String("reason", string(r))
}

// RequestID records the request identifier under the key "request_id".
// If id is empty, it returns an empty Attr.
func RequestID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("request_id", id)
}

// Duration records a duration under the key "duration".
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}
