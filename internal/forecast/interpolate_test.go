package forecast

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flybeeper/routecast/internal/models"
)

func tempAt(idx int, temp float64) models.AlignedResult {
	return models.AlignedResult{Idx: idx, Weather: models.Weather{TempC: temp, PrecipMmHr: math.NaN()}}
}

func TestInterpolateDense(t *testing.T) {
	results := []models.AlignedResult{tempAt(2, 10), tempAt(6, 18)}

	out := InterpolateDense(results, 9, Temperature)
	require.Len(t, out, 9)
	assert.Equal(t, []float64{10, 10, 10, 12, 14, 16, 18, 18, 18}, out)
}

func TestInterpolateDense_SkipsNaNAndUnsorted(t *testing.T) {
	results := []models.AlignedResult{tempAt(4, 4), tempAt(2, math.NaN()), tempAt(0, 0)}

	out := InterpolateDense(results, 5, Temperature)
	assert.Equal(t, []float64{0, 1, 2, 3, 4}, out)
}

func TestInterpolateDense_NoData(t *testing.T) {
	out := InterpolateDense(nil, 3, Temperature)
	require.Len(t, out, 3)
	for _, v := range out {
		assert.True(t, math.IsNaN(v))
	}
}

func TestColorDomain(t *testing.T) {
	tests := []struct {
		name   string
		lo, hi float64
		want   Domain
	}{
		{"normal", 5, 20, Domain{Min: 5, Max: 20}},
		{"degenerate", 12, 12, Domain{Min: 12, Max: 12.1}},
		{"swapped", 20, 5, Domain{Min: 5, Max: 20}},
		{"no data", math.NaN(), math.NaN(), Domain{Min: 0, Max: 0.1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := ColorDomain(tt.lo, tt.hi)
			assert.InDelta(t, tt.want.Min, d.Min, 1e-9)
			assert.InDelta(t, tt.want.Max, d.Max, 1e-9)
			assert.GreaterOrEqual(t, d.Span(), 0.1-1e-12)
		})
	}
}

func TestDomainOf(t *testing.T) {
	results := []models.AlignedResult{tempAt(0, 7), tempAt(1, math.NaN()), tempAt(2, -3)}
	d := DomainOf(results, Temperature)
	assert.Equal(t, -3.0, d.Min)
	assert.Equal(t, 7.0, d.Max)
}

func TestDomainColor(t *testing.T) {
	d := Domain{Min: 0, Max: 10}

	assert.Equal(t, Palette[0], d.Color(-5))
	assert.Equal(t, Palette[0], d.Color(0))
	assert.Equal(t, Palette[2], d.Color(5))
	assert.Equal(t, Palette[4], d.Color(10))
	assert.Equal(t, Palette[4], d.Color(40))
	assert.Equal(t, "#999999", d.Color(math.NaN()))
}

func TestPaletteColor_Blend(t *testing.T) {
	// Середина между #2c7bb6 и #abd9e9
	c := PaletteColor(0.125)
	assert.Equal(t, "#6caad0", c)
}

func TestWeatherIcon(t *testing.T) {
	tests := []struct {
		temp, precip float64
		want         string
	}{
		{20, 5, "⛈️"},
		{20, 1.5, "🌧️"},
		{20, 0.2, "🌦️"},
		{30, 0, "☀️"},
		{20, 0, "🌤️"},
		{10, 0, "⛅"},
		{3, 0, "☁️"},
		{-4, 0, "❄️"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, WeatherIcon(tt.temp, tt.precip), "temp=%v precip=%v", tt.temp, tt.precip)
	}
}
