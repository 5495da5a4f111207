package entitlement

import (
	"context"
	"errors"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/planguard/pkg/pg"
	"github.com/dmitrymomot/planguard/pkg/plan"
)

// DB is the subset of pgxpool.Pool used by PostgresStore.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var assignmentColumns = []string{
	"id", "subject_kind", "subject_id", "tier",
	"effective_from", "effective_to", "event_id", "source", "created_at",
}

// PostgresStore keeps plan history in the plan_assignments table.
type PostgresStore struct {
	db  DB
	sb  squirrel.StatementBuilderType
	now func() time.Time
}

// NewPostgresStore creates a store on db.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{
		db:  db,
		sb:  squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		now: time.Now,
	}
}

// Append inserts a and closes the row open at a.EffectiveFrom by setting its effective_to.
func (s *PostgresStore) Append(ctx context.Context, a Assignment) error {
	a, err := prepareAssignment(a, s.now())
	if err != nil {
		return err
	}

	var eventID *string
	if a.EventID != "" {
		eventID = &a.EventID
	}

	// The open row is closed in the same statement, so a duplicate event leaves it untouched.
	query, args, err := s.sb.Insert("plan_assignments").
		Prefix(`WITH closed AS (
    UPDATE plan_assignments SET effective_to = ?
    WHERE subject_kind = ? AND subject_id = ? AND effective_from < ?
      AND (effective_to IS NULL OR effective_to > ?)
)`, a.EffectiveFrom, string(a.Subject.Kind), a.Subject.ID, a.EffectiveFrom, a.EffectiveFrom).
		Columns(assignmentColumns...).
		Values(
			a.ID.String(), string(a.Subject.Kind), a.Subject.ID, string(a.Tier),
			a.EffectiveFrom, a.EffectiveTo, eventID, a.Source, a.CreatedAt,
		).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		if pg.IsDuplicateKeyError(err) {
			return ErrDuplicateEvent
		}
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) Timeline(ctx context.Context, subject Subject, at time.Time) ([]Assignment, error) {
	at = at.UTC()

	current, err := s.list(ctx, s.bySubject(subject).
		Where(squirrel.LtOrEq{"effective_from": at}).
		OrderBy("effective_from DESC", "created_at DESC").
		Limit(1))
	if err != nil {
		return nil, err
	}

	scheduled, err := s.list(ctx, s.bySubject(subject).
		Where(squirrel.Gt{"effective_from": at}).
		OrderBy("effective_from ASC", "created_at ASC"))
	if err != nil {
		return nil, err
	}

	return append(current, scheduled...), nil
}

func (s *PostgresStore) History(ctx context.Context, subject Subject) ([]Assignment, error) {
	return s.list(ctx, s.bySubject(subject).OrderBy("effective_from ASC", "created_at ASC"))
}

func (s *PostgresStore) bySubject(subject Subject) squirrel.SelectBuilder {
	return s.sb.Select(assignmentColumns...).
		From("plan_assignments").
		Where(squirrel.Eq{"subject_kind": string(subject.Kind)}).
		Where(squirrel.Eq{"subject_id": subject.ID})
}

func (s *PostgresStore) list(ctx context.Context, q squirrel.SelectBuilder) ([]Assignment, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []Assignment
	for rows.Next() {
		var (
			a       Assignment
			id      string
			kind    string
			tier    string
			eventID *string
		)
		if err := rows.Scan(&id, &kind, &a.Subject.ID, &tier,
			&a.EffectiveFrom, &a.EffectiveTo, &eventID, &a.Source, &a.CreatedAt); err != nil {
			return nil, errors.Join(ErrStoreUnavailable, err)
		}
		if a.ID, err = uuid.Parse(id); err != nil {
			return nil, errors.Join(ErrStoreUnavailable, err)
		}
		a.Subject.Kind = SubjectKind(kind)
		a.Tier = plan.Tier(tier)
		if eventID != nil {
			a.EventID = *eventID
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	return out, nil
}
