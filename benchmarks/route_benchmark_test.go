package benchmarks

// Бенчмарки обработки маршрута и выравнивания прогноза
//
// Ожидаемые результаты (цели производительности):
// - Process (5000 точек, 30 запросов): < 5ms
// - Align (30 точек, ряд на 7 дней по 15 минут): < 100µs
// - BestStart (окно 12ч с шагом 30 минут): < 5ms
// - InterpolateDense (1000 значений): < 50µs
//
// Реалистичные размеры данных:
// - веломаршрут 100-200 км, точка трека каждые 20-40 м
// - 5-200 точек запроса прогноза

import (
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/flybeeper/routecast/internal/forecast"
	"github.com/flybeeper/routecast/internal/models"
	"github.com/flybeeper/routecast/internal/track"
)

var benchStart = time.Date(2025, 6, 1, 7, 0, 0, 0, time.UTC)

// generateRoute маршрут по Пьемонту с холмистым профилем
func generateRoute(n int) []models.RawPoint {
	rng := rand.New(rand.NewSource(42))
	points := make([]models.RawPoint, n)
	lat, lon := 44.70, 7.60
	for i := range points {
		lat += 0.0002 + rng.Float64()*0.0001
		lon += 0.0001 * math.Sin(float64(i)/150)
		ele := 250 + 200*math.Sin(float64(i)/400) + rng.Float64()*5
		points[i] = models.RawPoint{Lat: lat, Lon: lon, Ele: &ele}
	}
	return points
}

func benchParams(maxCalls int) track.SampleParams {
	return track.SampleParams{
		MaxCalls:          maxCalls,
		MinSpacingMeters:  1000,
		MinSpacingMinutes: 15,
		FlatSpeedMps:      25 / 3.6,
		StartTime:         benchStart,
	}
}

func generateSeries(lat, lon float64) *models.ForecastSeries {
	n := 7 * 24 * 4
	s := &models.ForecastSeries{Provider: forecast.ProviderOpenMeteo, Lat: lat, Lon: lon}
	from := benchStart.Add(-6 * time.Hour)
	for i := 0; i < n; i++ {
		h := float64(i) / 4
		s.Times = append(s.Times, from.Add(time.Duration(i)*15*time.Minute))
		s.TempC = append(s.TempC, 15+8*math.Sin(h/24*2*math.Pi))
		s.FeltTempC = append(s.FeltTempC, 14+8*math.Sin(h/24*2*math.Pi))
		s.WindSpeedKmh = append(s.WindSpeedKmh, 10+5*math.Cos(h/12))
		s.WindGustsKmh = append(s.WindGustsKmh, 20+8*math.Cos(h/12))
		s.WindFromDeg = append(s.WindFromDeg, math.Mod(h*10, 360))
		s.PrecipMmHr = append(s.PrecipMmHr, math.Max(0, math.Sin(h/7)))
		s.PrecipProb = append(s.PrecipProb, 20)
		s.CloudCover = append(s.CloudCover, 40)
		s.CloudCoverLow = append(s.CloudCoverLow, 10)
		s.IsDay = append(s.IsDay, 1)
	}
	return s
}

func processed(b *testing.B, maxCalls int) *track.Result {
	b.Helper()
	res, err := track.Process(generateRoute(5000), []models.BreakInput{{Km: 40, Minutes: 30}}, benchParams(maxCalls))
	if err != nil {
		b.Fatal(err)
	}
	return res
}

func seriesFor(samples []models.SamplePoint) []*models.ForecastSeries {
	series := make([]*models.ForecastSeries, len(samples))
	for i, s := range samples {
		series[i] = generateSeries(s.Lat, s.Lon)
	}
	return series
}

// BenchmarkProcess полный конвейер трека для разных размеров
func BenchmarkProcess(b *testing.B) {
	for _, size := range []int{500, 5000, 20000} {
		raw := generateRoute(size)
		breaks := []models.BreakInput{{Km: 10, Minutes: 20}, {Km: 40, Minutes: 45}}
		b.Run(fmt.Sprintf("points_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := track.Process(raw, breaks, benchParams(30)); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkAlign сдвиг времени старта без повторной загрузки прогнозов
func BenchmarkAlign(b *testing.B) {
	for _, calls := range []int{10, 30, 100} {
		res := processed(b, calls)
		series := seriesFor(res.Samples)
		b.Run(fmt.Sprintf("samples_%d", len(res.Samples)), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				start := benchStart.Add(time.Duration(i%48) * 30 * time.Minute)
				forecast.Align(res.Samples, series, start)
			}
		})
	}
}

// BenchmarkBestStart перебор стартов в окне 12 часов
func BenchmarkBestStart(b *testing.B) {
	res := processed(b, 30)
	series := seriesFor(res.Samples)
	window := forecast.Window{From: benchStart, To: benchStart.Add(12 * time.Hour), Step: 30 * time.Minute}
	limits := forecast.Limits{MaxRainMmHr: 0.5, MaxWindAvgKmh: 25, MaxGustKmh: 40}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := forecast.BestStart(res.Samples, series, window, limits); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkInterpolateDense цветовой профиль для карты
func BenchmarkInterpolateDense(b *testing.B) {
	res := processed(b, 30)
	results, _ := forecast.Align(res.Samples, seriesFor(res.Samples), benchStart)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		forecast.InterpolateDense(results, 1000, forecast.Temperature)
	}
}

// BenchmarkCacheKey ключи кеша прогнозов
func BenchmarkCacheKey(b *testing.B) {
	keys := map[string]forecast.KeyFunc{
		"rounded":   forecast.RoundedKey,
		"geohash_6": forecast.GeohashKey(6),
	}
	for name, key := range keys {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				key(forecast.ProviderOpenMeteo, 44.7+float64(i%100)*0.001, 7.6)
			}
		})
	}
}

// BenchmarkHaversine расстояние между соседними точками трека
func BenchmarkHaversine(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		models.HaversineMeters(44.7, 7.6, 44.7003, 7.6002)
	}
}
