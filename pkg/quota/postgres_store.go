package quota

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/planguard/pkg/plan"
)

// DB is the subset of pgxpool.Pool used by the Postgres stores.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	sqlEnsureCounter = `INSERT INTO quota_counters (subject, action, period_start, period_end, count)
VALUES ($1, $2, $3, $4, 0)
ON CONFLICT (subject, action, period_start) DO NOTHING`

	sqlConsume = `WITH consumed AS (
    UPDATE quota_counters
    SET count = count + $4, updated_at = now()
    WHERE subject = $1 AND action = $2 AND period_start = $3 AND count + $4 <= $5
    RETURNING count
), reserved AS (
    INSERT INTO quota_reservations (id, subject, action, period_start, quantity)
    SELECT $6::uuid, $1, $2, $3, $4 FROM consumed
)
SELECT count FROM consumed`

	sqlSelectCount = `SELECT count FROM quota_counters
WHERE subject = $1 AND action = $2 AND period_start = $3`

	sqlRelease = `WITH claimed AS (
    UPDATE quota_reservations
    SET released_at = now()
    WHERE id = $4::uuid AND subject = $1 AND action = $2 AND period_start = $3 AND released_at IS NULL
    RETURNING quantity
)
UPDATE quota_counters c
SET count = GREATEST(c.count - claimed.quantity, 0), updated_at = now()
FROM claimed
WHERE c.subject = $1 AND c.action = $2 AND c.period_start = $3
RETURNING c.count`

	sqlPurge = `DELETE FROM quota_counters WHERE period_end < $1`
)

// PostgresStore implements Store on the quota_counters and quota_reservations tables.
// The limit check is part of the UPDATE predicate, so concurrent consumers
// serialise on the row lock and can never push the counter past the limit.
// A reservation row is written in the same statement as the increment and is
// claimed by release through released_at.
type PostgresStore struct {
	db DB
}

// NewPostgresStore creates a store on db.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) TryConsume(ctx context.Context, req ConsumeRequest) (Result, error) {
	if err := validateRequest(&req); err != nil {
		return Result{}, err
	}

	start, end := req.Period.Window(req.Now)
	action := string(req.Action)
	res := Result{Limit: req.Limit, PeriodStart: start, ResetAt: end}

	if _, err := s.db.Exec(ctx, sqlEnsureCounter, req.Subject, action, start, end); err != nil {
		return Result{}, errors.Join(ErrStoreUnavailable, err)
	}

	reservation := newReservation(req, start)
	err := s.db.QueryRow(ctx, sqlConsume,
		req.Subject, action, start, req.Quantity, req.Limit, reservation.ID,
	).Scan(&res.Count)
	switch {
	case err == nil:
		res.Allowed = true
		res.Reservation = reservation
		return res, nil
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return Result{}, errors.Join(ErrStoreUnavailable, err)
	}

	if err := s.db.QueryRow(ctx, sqlSelectCount, req.Subject, action, start).Scan(&res.Count); err != nil {
		return Result{}, errors.Join(ErrStoreUnavailable, err)
	}
	return res, nil
}

func (s *PostgresStore) Current(ctx context.Context, subject string, action plan.Action, period plan.Period, now time.Time) (Usage, error) {
	if subject == "" {
		return Usage{}, ErrInvalidSubject
	}
	if !period.Valid() {
		return Usage{}, ErrInvalidPeriod
	}

	start, end := window(period, now)
	u := Usage{PeriodStart: start, ResetAt: end}

	err := s.db.QueryRow(ctx, sqlSelectCount, subject, string(action), start).Scan(&u.Count)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return Usage{}, errors.Join(ErrStoreUnavailable, err)
	}
	return u, nil
}

func (s *PostgresStore) Release(ctx context.Context, r Reservation) (int64, error) {
	if err := validateReservation(r); err != nil {
		return 0, err
	}

	var count int64
	err := s.db.QueryRow(ctx, sqlRelease, r.Subject, string(r.Action), r.PeriodStart.UTC(), r.ID).Scan(&count)
	switch {
	case err == nil:
		return count, nil
	case errors.Is(err, pgx.ErrNoRows):
		return 0, ErrUnknownReservation
	default:
		return 0, errors.Join(ErrStoreUnavailable, err)
	}
}

// Purge deletes counters whose window ended before horizon, together with their reservations.
func (s *PostgresStore) Purge(ctx context.Context, horizon time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, sqlPurge, horizon.UTC())
	if err != nil {
		return 0, errors.Join(ErrStoreUnavailable, err)
	}
	return tag.RowsAffected(), nil
}
