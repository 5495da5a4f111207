package usage_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/planguard/pkg/logger"
	"github.com/dmitrymomot/planguard/pkg/plan"
	"github.com/dmitrymomot/planguard/pkg/usage"
)

var at = time.Date(2024, 2, 14, 12, 0, 0, 0, time.UTC)

func sample() usage.Event {
	return usage.Event{
		Subject:  "user:u1",
		Action:   plan.ActionCompilePrompt,
		Quantity: 1,
		Allowed:  false,
		Reason:   "QUOTA_EXCEEDED",
		Tier:     plan.Free,
		Count:    20,
		Limit:    20,
		TraceID:  "trace-1",
		At:       at,
	}
}

func TestPostgresRecorder_Record(t *testing.T) {
	t.Parallel()

	t.Run("insert", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec("INSERT INTO usage_events").
			WithArgs(pgxmock.AnyArg(), "user:u1", "compile_prompt", int64(1), false, "QUOTA_EXCEEDED",
				"free", int64(20), int64(20), "trace-1", at).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, usage.NewPostgresRecorder(mock).Record(context.Background(), sample()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database error", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec("INSERT INTO usage_events").WillReturnError(errors.New("conn reset"))

		err = usage.NewPostgresRecorder(mock).Record(context.Background(), sample())
		assert.ErrorIs(t, err, usage.ErrRecordFailed)
	})
}

func TestPostgresRecorder_Recent(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	rows := pgxmock.NewRows([]string{
		"id", "subject", "action", "quantity", "allowed", "reason",
		"tier", "count", "quota_limit", "trace_id", "occurred_at",
	}).AddRow(id.String(), "user:u1", "api_call", int64(2), true, "", "pro", int64(7), int64(1000), "t", at)

	mock.ExpectQuery(`SELECT .* FROM usage_events WHERE subject = \$1 ORDER BY occurred_at DESC LIMIT 10`).
		WithArgs("user:u1").
		WillReturnRows(rows)

	events, err := usage.NewPostgresRecorder(mock).Recent(context.Background(), "user:u1", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, id, events[0].ID)
	assert.Equal(t, plan.ActionAPICall, events[0].Action)
	assert.Equal(t, plan.Pro, events[0].Tier)
	assert.Equal(t, int64(7), events[0].Count)
	assert.True(t, events[0].Allowed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogRecorder(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	rec := usage.NewLogRecorder(logger.New(logger.WithOutput(buf)))
	require.NoError(t, rec.Record(context.Background(), sample()))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "usage", entry["msg"])
	assert.Equal(t, "user:u1", entry["subject"])
	assert.Equal(t, "QUOTA_EXCEEDED", entry["reason"])
	assert.Equal(t, false, entry["allowed"])
}

func TestMulti(t *testing.T) {
	t.Parallel()

	var got []usage.Event
	ok := usage.RecorderFunc(func(_ context.Context, ev usage.Event) error {
		got = append(got, ev)
		return nil
	})
	boom := errors.New("boom")
	failing := usage.RecorderFunc(func(context.Context, usage.Event) error { return boom })

	err := usage.Multi(ok, nil, failing, ok).Record(context.Background(), sample())
	assert.ErrorIs(t, err, boom)
	assert.Len(t, got, 2)
}
