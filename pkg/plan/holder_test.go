package plan_test

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/planguard/pkg/plan"
)

const catalogV1 = `
features:
  - key: API_ACCESS
    min_tier: pro
actions:
  - key: api_call
    feature: API_ACCESS
    period: day
    limits: {pro: 100, team: 500}
`

const catalogV2 = `
features:
  - key: API_ACCESS
    min_tier: pro
actions:
  - key: api_call
    feature: API_ACCESS
    period: day
    limits: {pro: 200, team: 500}
`

func writeCatalog(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestHolder(t *testing.T) {
	t.Parallel()

	t.Run("requires source", func(t *testing.T) {
		t.Parallel()
		_, err := plan.NewHolder(context.Background(), nil)
		assert.ErrorIs(t, err, plan.ErrNoCatalogSource)
	})

	t.Run("static source", func(t *testing.T) {
		t.Parallel()
		h, err := plan.NewHolder(context.Background(), plan.NewStaticSource(plan.DefaultDefinition()))
		require.NoError(t, err)
		assert.Equal(t, int64(20), h.Current().LimitFor(plan.Free, plan.ActionCompilePrompt).Max)
	})

	t.Run("reload keeps previous catalog on invalid file", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "catalog.yaml")
		writeCatalog(t, path, catalogV1)

		var reloads atomic.Int32
		h, err := plan.NewHolder(context.Background(), plan.NewFileSource(path),
			plan.WithReloadHook(func(*plan.Catalog) { reloads.Add(1) }))
		require.NoError(t, err)
		assert.Equal(t, int32(1), reloads.Load())

		writeCatalog(t, path, "actions: [{key: a, period: hour}]")
		err = h.Reload(context.Background())
		assert.ErrorIs(t, err, plan.ErrInvalidDefinition)
		assert.Equal(t, int64(100), h.Current().LimitFor(plan.Pro, "api_call").Max)

		writeCatalog(t, path, catalogV2)
		require.NoError(t, h.Reload(context.Background()))
		assert.Equal(t, int64(200), h.Current().LimitFor(plan.Pro, "api_call").Max)
		assert.Equal(t, int32(2), reloads.Load())
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := plan.NewHolder(context.Background(), plan.NewFileSource(filepath.Join(t.TempDir(), "nope.yaml")))
		assert.ErrorIs(t, err, plan.ErrSourceUnavailable)
	})

	t.Run("watch picks up changes", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "catalog.yaml")
		writeCatalog(t, path, catalogV1)

		h, err := plan.NewHolder(context.Background(), plan.NewFileSource(path))
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go h.Watch(ctx, 10*time.Millisecond)

		writeCatalog(t, path, catalogV2)
		assert.Eventually(t, func() bool {
			return h.Current().LimitFor(plan.Pro, "api_call").Max == 200
		}, 2*time.Second, 10*time.Millisecond)
	})
}
