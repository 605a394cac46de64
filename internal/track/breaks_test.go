package track

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flybeeper/routecast/internal/models"
)

func threePointTrack(t *testing.T) *Track {
	t.Helper()
	tr, err := Build([]models.RawPoint{
		{Lat: 0, Lon: 0},
		{Lat: 0, Lon: 0.01},
		{Lat: 0, Lon: 0.02},
	})
	require.NoError(t, err)
	return tr
}

func TestPlanBreaks(t *testing.T) {
	tr := threePointTrack(t)

	breaks, warnings := PlanBreaks([]models.BreakInput{
		{Km: 2.0, Minutes: 10},
		{Km: 1.0, Minutes: 10.004},
		{Km: -1, Minutes: 5},
		{Km: 1.5, Minutes: 0},
		{Km: math.NaN(), Minutes: 5},
		{Km: 3.0, Minutes: 5},
		{Km: 0, Minutes: 1},
	}, tr)

	require.Len(t, breaks, 3)
	assert.Len(t, warnings, 4)

	// Отсортированы по дистанции
	assert.Equal(t, 0.0, breaks[0].DistMeters)
	assert.Equal(t, 1000.0, breaks[1].DistMeters)
	assert.Equal(t, 2000.0, breaks[2].DistMeters)

	assert.Equal(t, 60, breaks[0].DurSec)
	assert.Equal(t, 600, breaks[1].DurSec)

	// 1 км ближе всего ко второй точке маршрута (1111.95 м)
	assert.Equal(t, tr.Points[1].Lat, breaks[1].Lat)
	assert.Equal(t, tr.Points[1].Lon, breaks[1].Lon)
	assert.InDelta(t, 90.0, breaks[1].Bearing, 1e-6)

	// У первой точки нет азимута, используется азимут первого сегмента
	assert.InDelta(t, 90.0, breaks[0].Bearing, 1e-6)
}

func TestPlanBreaks_BeyondRouteLength(t *testing.T) {
	tr := threePointTrack(t)

	breaks, warnings := PlanBreaks([]models.BreakInput{{Km: 2.3, Minutes: 15}}, tr)
	assert.Empty(t, breaks)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "exceeds route length")
}

func TestParseBreakInputs(t *testing.T) {
	in, err := ParseBreakInputs(" 12.5:15, 40:30 ,")
	require.NoError(t, err)
	assert.Equal(t, []models.BreakInput{{Km: 12.5, Minutes: 15}, {Km: 40, Minutes: 30}}, in)

	empty, err := ParseBreakInputs("")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = ParseBreakInputs("12.5")
	assert.Error(t, err)

	_, err = ParseBreakInputs("abc:10")
	assert.Error(t, err)
}

func TestSnapToRoute(t *testing.T) {
	tr := threePointTrack(t)

	snap := SnapToRoute(tr, 0.001, 0.0098)
	assert.Equal(t, 1, snap.Idx)
	assert.InDelta(t, tr.Points[1].DistMeters, snap.DistMeters, 1e-9)
	assert.Greater(t, snap.OffsetM, 0.0)
	assert.Less(t, snap.OffsetM, 200.0)
}

func TestBreakDuration_Tolerance(t *testing.T) {
	breaks := []models.Break{
		{DistMeters: 1000, DurSec: 600},
		{DistMeters: 1000.5, DurSec: 300},
		{DistMeters: 5000, DurSec: 120},
	}

	assert.Equal(t, 600.0, BreakDuration(breaks, 1000.0000001, 0))
	assert.Equal(t, 300.0, BreakDuration(breaks, 1000.4, 1))
	assert.Equal(t, 120.0, BreakDuration(breaks, 4999.2, -1))
	// Вне допуска берется остановка по индексу
	assert.Equal(t, 120.0, BreakDuration(breaks, 4990, 2))
	assert.Equal(t, 0.0, BreakDuration(breaks, 3000, -1))
}
