package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/routemap/internal/model"
	"github.com/sells-group/routemap/pkg/routing"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_Options_SetAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SetOption(ctx, model.OptionMode, "single"))
	v, ok, err := st.GetOption(ctx, model.OptionMode)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "single", v)
}

func TestSQLite_Options_Overwrite(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SetOption(ctx, model.OptionMode, "single"))
	require.NoError(t, st.SetOption(ctx, model.OptionMode, "multi"))
	require.NoError(t, st.SetOption(ctx, model.OptionMapSource, "https://tiles.example/{z}/{x}/{y}.png"))

	all, err := st.Options(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		model.OptionMode:      "multi",
		model.OptionMapSource: "https://tiles.example/{z}/{x}/{y}.png",
	}, all)
}

func TestSQLite_Options_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)
	v, ok, err := st.GetOption(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestSQLite_Options_NonStringValues(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SetOption(ctx, "zoom", 12))
	require.NoError(t, st.SetOption(ctx, "cluster", true))

	v, _, err := st.GetOption(ctx, "zoom")
	require.NoError(t, err)
	assert.Equal(t, 12.0, v)
	v, _, err = st.GetOption(ctx, "cluster")
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestSQLite_Routes(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveRoute(ctx, "Trips", 1, routing.Summary{DistanceKm: 10, Minutes: 12}))
	require.NoError(t, st.SaveRoute(ctx, "Trips", 1, routing.Summary{DistanceKm: 11, Minutes: 13}))
	require.NoError(t, st.SaveRoute(ctx, "Trips", 2, routing.Summary{DistanceKm: 3, Minutes: 4}))
	require.NoError(t, st.SaveRoute(ctx, "Other", 1, routing.Summary{DistanceKm: 99, Minutes: 99}))

	routes, err := st.Routes(ctx, "Trips")
	require.NoError(t, err)
	assert.Equal(t, map[model.RecordID]routing.Summary{
		1: {DistanceKm: 11, Minutes: 13},
		2: {DistanceKm: 3, Minutes: 4},
	}, routes)
}

func TestOpen_SQLite(t *testing.T) {
	st, err := Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "open.db"))
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	require.NoError(t, st.SetOption(context.Background(), "k", "v"))
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}
