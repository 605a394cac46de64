package forecast

import (
	"math"

	"github.com/flybeeper/routecast/internal/models"
)

// WetThreshold осадки, начиная с которых точка считается мокрой, мм/ч
const WetThreshold = 0.1

// Summarize считает агрегаты маршрута: длина и длительность по последней точке
// выборки, температурный диапазон и доля мокрых точек по выровненным результатам.
func Summarize(samples []models.SamplePoint, results []models.AlignedResult, missing int) models.RouteStats {
	stats := models.RouteStats{
		Points:  len(results),
		Missing: missing,
	}
	if len(samples) > 0 {
		last := samples[len(samples)-1]
		stats.TotalDistMeters = last.AccumDist
		stats.TotalDurationSec = last.AccumTime
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	wet := 0
	for _, r := range results {
		if t := r.Weather.TempC; !math.IsNaN(t) {
			lo = math.Min(lo, t)
			hi = math.Max(hi, t)
		}
		if r.Weather.PrecipMmHr >= WetThreshold {
			wet++
		}
	}
	if !math.IsInf(lo, 1) {
		stats.MinTempC = &lo
		stats.MaxTempC = &hi
	}
	if len(results) > 0 {
		stats.WetShare = float64(wet) / float64(len(results))
	}
	return stats
}
