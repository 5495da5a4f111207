package entitlement_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/planguard/pkg/entitlement"
	"github.com/dmitrymomot/planguard/pkg/plan"
)

var assignmentCols = []string{
	"id", "subject_kind", "subject_id", "tier",
	"effective_from", "effective_to", "event_id", "source", "created_at",
}

func TestPostgresStore_Append(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a := entitlement.Assignment{
		Subject:       entitlement.TeamSubject("acme"),
		Tier:          plan.Team,
		EffectiveFrom: t0,
		EventID:       "evt_1",
		Source:        "billing",
	}

	t.Run("insert", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec(`WITH closed AS \(\s*UPDATE plan_assignments SET effective_to = \$1(.|\n)*INSERT INTO plan_assignments`).
			WithArgs(
				t0, "team", "acme", t0, t0,
				pgxmock.AnyArg(), "team", "acme", "team", t0, pgxmock.AnyArg(), pgxmock.AnyArg(), "billing", pgxmock.AnyArg(),
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, entitlement.NewPostgresStore(mock).Append(ctx, a))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate event", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec("INSERT INTO plan_assignments").
			WillReturnError(&pgconn.PgError{Code: "23505"})

		err = entitlement.NewPostgresStore(mock).Append(ctx, a)
		assert.ErrorIs(t, err, entitlement.ErrDuplicateEvent)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("connection failure", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec("INSERT INTO plan_assignments").
			WillReturnError(errors.New("connection refused"))

		err = entitlement.NewPostgresStore(mock).Append(ctx, a)
		assert.ErrorIs(t, err, entitlement.ErrStoreUnavailable)
	})

	t.Run("invalid assignment never reaches the database", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		err = entitlement.NewPostgresStore(mock).Append(ctx, entitlement.Assignment{Subject: a.Subject})
		assert.ErrorIs(t, err, entitlement.ErrInvalidAssignment)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_Timeline(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	currentID, nextID := uuid.New(), uuid.New()
	past := t0.AddDate(0, -1, 0)
	future := t0.Add(24 * time.Hour)
	eventID := "evt_2"

	mock.ExpectQuery(`FROM plan_assignments WHERE subject_kind = \$1 AND subject_id = \$2 AND effective_from <= \$3 ORDER BY effective_from DESC, created_at DESC LIMIT 1`).
		WithArgs("user", "u1", t0).
		WillReturnRows(pgxmock.NewRows(assignmentCols).
			AddRow(currentID.String(), "user", "u1", "pro", past, (*time.Time)(nil), (*string)(nil), "", past))
	mock.ExpectQuery(`FROM plan_assignments WHERE subject_kind = \$1 AND subject_id = \$2 AND effective_from > \$3 ORDER BY effective_from ASC, created_at ASC`).
		WithArgs("user", "u1", t0).
		WillReturnRows(pgxmock.NewRows(assignmentCols).
			AddRow(nextID.String(), "user", "u1", "free", future, (*time.Time)(nil), &eventID, "billing", t0))

	tl, err := entitlement.NewPostgresStore(mock).Timeline(context.Background(), entitlement.UserSubject("u1"), t0)
	require.NoError(t, err)
	require.Len(t, tl, 2)

	assert.Equal(t, currentID, tl[0].ID)
	assert.Equal(t, plan.Pro, tl[0].Tier)
	assert.Equal(t, entitlement.UserSubject("u1"), tl[0].Subject)
	assert.Nil(t, tl[0].EffectiveTo)
	assert.Empty(t, tl[0].EventID)

	assert.Equal(t, nextID, tl[1].ID)
	assert.Equal(t, "evt_2", tl[1].EventID)

	a, ok := entitlement.ActiveAssignment(tl, t0)
	require.True(t, ok)
	assert.Equal(t, plan.Pro, a.Tier)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_History(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT (.+) FROM plan_assignments").
		WithArgs("team", "acme").
		WillReturnError(errors.New("timeout"))

	_, err = entitlement.NewPostgresStore(mock).History(context.Background(), entitlement.TeamSubject("acme"))
	assert.ErrorIs(t, err, entitlement.ErrStoreUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}
