package forecast

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flybeeper/routecast/internal/models"
)

func TestSummarize(t *testing.T) {
	samples := samplesAt(0, 600, 1200, 1800)
	results := []models.AlignedResult{
		{Weather: models.Weather{TempC: 12, PrecipMmHr: 0}},
		{Weather: models.Weather{TempC: 15, PrecipMmHr: 0.1}},
		{Weather: models.Weather{TempC: math.NaN(), PrecipMmHr: 2}},
		{Weather: models.Weather{TempC: 9, PrecipMmHr: math.NaN()}},
	}

	stats := Summarize(samples, results, 1)

	assert.Equal(t, 9000.0, stats.TotalDistMeters)
	assert.Equal(t, 1800.0, stats.TotalDurationSec)
	require.NotNil(t, stats.MinTempC)
	require.NotNil(t, stats.MaxTempC)
	assert.Equal(t, 9.0, *stats.MinTempC)
	assert.Equal(t, 15.0, *stats.MaxTempC)
	assert.InDelta(t, 0.5, stats.WetShare, 1e-9)
	assert.Equal(t, 4, stats.Points)
	assert.Equal(t, 1, stats.Missing)
}

func TestSummarize_Empty(t *testing.T) {
	stats := Summarize(nil, nil, 0)
	assert.Nil(t, stats.MinTempC)
	assert.Nil(t, stats.MaxTempC)
	assert.Zero(t, stats.WetShare)
	assert.Zero(t, stats.TotalDistMeters)
}
