package usage

import (
	"context"
	"errors"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/planguard/pkg/plan"
)

// DB is the subset of pgxpool.Pool used by PostgresRecorder.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var eventColumns = []string{
	"id", "subject", "action", "quantity", "allowed", "reason",
	"tier", "count", "quota_limit", "trace_id", "occurred_at",
}

// PostgresRecorder appends events to the usage_events table.
type PostgresRecorder struct {
	db  DB
	sb  squirrel.StatementBuilderType
	now func() time.Time
}

// NewPostgresRecorder creates a recorder on db.
func NewPostgresRecorder(db DB) *PostgresRecorder {
	return &PostgresRecorder{
		db:  db,
		sb:  squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		now: time.Now,
	}
}

func (r *PostgresRecorder) Record(ctx context.Context, ev Event) error {
	ev = prepare(ev, r.now())

	query, args, err := r.sb.Insert("usage_events").
		Columns(eventColumns...).
		Values(
			ev.ID.String(), ev.Subject, string(ev.Action), ev.Quantity, ev.Allowed, ev.Reason,
			string(ev.Tier), ev.Count, ev.Limit, ev.TraceID, ev.At,
		).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return errors.Join(ErrRecordFailed, err)
	}
	return nil
}

// Recent returns up to limit events of subject, newest first.
func (r *PostgresRecorder) Recent(ctx context.Context, subject string, limit uint64) ([]Event, error) {
	if limit == 0 {
		limit = 50
	}
	query, args, err := r.sb.Select(eventColumns...).
		From("usage_events").
		Where(squirrel.Eq{"subject": subject}).
		OrderBy("occurred_at DESC").
		Limit(limit).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Join(ErrRecordFailed, err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			ev           Event
			id           string
			action, tier string
		)
		if err := rows.Scan(
			&id, &ev.Subject, &action, &ev.Quantity, &ev.Allowed, &ev.Reason,
			&tier, &ev.Count, &ev.Limit, &ev.TraceID, &ev.At,
		); err != nil {
			return nil, errors.Join(ErrRecordFailed, err)
		}
		if ev.ID, err = uuid.Parse(id); err != nil {
			return nil, errors.Join(ErrRecordFailed, err)
		}
		ev.Action = plan.Action(action)
		ev.Tier = plan.Tier(tier)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrRecordFailed, err)
	}
	return out, nil
}
