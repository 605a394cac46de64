package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flybeeper/routecast/internal/models"
	"github.com/flybeeper/routecast/pkg/utils"
)

func newTestStore(t *testing.T) *SQLRouteStore {
	t.Helper()
	store, err := NewSQLiteRouteStore(filepath.Join(t.TempDir(), "routes.db"), utils.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.EnsureSchema(context.Background()))
	return store
}

func TestSQLiteStore_Routes(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	assert.Equal(t, "sqlite", store.Driver())
	require.NoError(t, store.Ping(ctx))

	first := &models.SavedRoute{UserID: 1, Name: "alps.gpx", GPX: []byte("<gpx/>"), UploadedAt: time.Unix(1000, 0)}
	second := &models.SavedRoute{UserID: 1, Name: "coast.gpx", DisplayName: "Coast", GPX: []byte("<gpx></gpx>"), UploadedAt: time.Unix(2000, 0)}
	other := &models.SavedRoute{UserID: 2, Name: "other.gpx", GPX: []byte("<gpx/>")}

	for _, r := range []*models.SavedRoute{first, second, other} {
		require.NoError(t, store.CreateRoute(ctx, r))
		assert.NotEmpty(t, r.ID)
	}
	assert.Equal(t, "alps.gpx", first.DisplayName)
	assert.Equal(t, 6, first.SizeBytes)

	routes, err := store.ListRoutes(ctx, 1)
	require.NoError(t, err)
	require.Len(t, routes, 2)
	assert.Equal(t, second.ID, routes[0].ID)
	assert.Nil(t, routes[0].GPX)

	got, err := store.GetRoute(ctx, 1, first.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("<gpx/>"), got.GPX)
	assert.True(t, got.UploadedAt.Equal(time.Unix(1000, 0)))

	// Чужой маршрут не виден
	_, err = store.GetRoute(ctx, 1, other.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.RenameRoute(ctx, 1, first.ID, "Alps loop"))
	got, err = store.GetRoute(ctx, 1, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alps loop", got.DisplayName)

	assert.ErrorIs(t, store.RenameRoute(ctx, 2, first.ID, "x"), ErrNotFound)

	require.NoError(t, store.DeleteRoute(ctx, 1, first.ID))
	assert.ErrorIs(t, store.DeleteRoute(ctx, 1, first.ID), ErrNotFound)

	routes, err = store.ListRoutes(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, routes, 1)
}

func TestSQLiteStore_Settings(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.GetSettings(ctx, 9)
	assert.ErrorIs(t, err, ErrNotFound)

	settings := &models.UserSettings{
		UserID:            9,
		Provider:          "meteoblue",
		SpeedKmh:          22,
		MaxCalls:          40,
		MinSpacingMeters:  1000,
		MinSpacingMinutes: 15,
		MaxRainMmHr:       0.5,
		MaxWindKmh:        25,
		MaxGustKmh:        45,
		MaxTempC:          32,
		MinTempC:          4,
	}
	require.NoError(t, store.SaveSettings(ctx, settings))

	got, err := store.GetSettings(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, "meteoblue", got.Provider)
	assert.Equal(t, 40, got.MaxCalls)
	assert.Equal(t, 0.5, got.MaxRainMmHr)
	assert.False(t, got.UpdatedAt.IsZero())

	settings.Provider = "open-meteo"
	settings.MaxCalls = 20
	require.NoError(t, store.SaveSettings(ctx, settings))

	got, err = store.GetSettings(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, "open-meteo", got.Provider)
	assert.Equal(t, 20, got.MaxCalls)
}

func TestNewMySQLRouteStore_Validation(t *testing.T) {
	_, err := NewMySQLRouteStore(nil, utils.NewNopLogger())
	assert.Error(t, err)
}

func TestMemorySessionStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore(2, time.Hour)
	now := time.Date(2025, 6, 1, 7, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.SaveSession(ctx, &models.RouteSession{ID: "a"}))
	require.NoError(t, store.SaveSession(ctx, &models.RouteSession{ID: "b"}))
	_, err := store.LoadSession(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, store.SaveSession(ctx, &models.RouteSession{ID: "c"}))
	assert.Equal(t, 2, store.Len())
	_, err = store.LoadSession(ctx, "b")
	assert.ErrorIs(t, err, ErrNotFound)

	now = now.Add(2 * time.Hour)
	_, err = store.LoadSession(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.DeleteSession(ctx, "c"))
	assert.Equal(t, 0, store.Len())
}
