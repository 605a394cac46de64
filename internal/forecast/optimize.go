package forecast

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/flybeeper/routecast/internal/models"
)

// maxCandidates ограничение на количество стартов при переборе
const maxCandidates = 2000

// ErrInvalidWindow некорректное окно перебора стартов
var ErrInvalidWindow = errors.New("invalid start time window")

// Limits допустимые условия; ноль у осадков и ветра означает отсутствие ограничения
type Limits struct {
	MaxRainMmHr   float64  `json:"max_rain_mm_hr"`
	MaxWindAvgKmh float64  `json:"max_wind_avg_kmh"`
	MaxGustKmh    float64  `json:"max_gust_kmh"`
	MaxTempC      *float64 `json:"max_temp_c,omitempty"`
	MinTempC      *float64 `json:"min_temp_c,omitempty"`
}

// Window окно стартов с шагом
type Window struct {
	From time.Time
	To   time.Time
	Step time.Duration
}

// Candidate оценка одного времени старта
type Candidate struct {
	Start      time.Time `json:"start"`
	Score      float64   `json:"score"`
	Violations int       `json:"violations"`
	Missing    int       `json:"missing"`
	MaxRain    float64   `json:"max_rain_mm_hr"`
	AvgWind    float64   `json:"avg_wind_kmh"`
	MaxGust    float64   `json:"max_gust_kmh"`
	MinTemp    *float64  `json:"min_temp_c,omitempty"`
	MaxTemp    *float64  `json:"max_temp_c,omitempty"`
	WetShare   float64   `json:"wet_share"`
}

// BestStart перебирает времена старта в окне и оценивает каждое по уже
// загруженным рядам, без повторных запросов. Кандидаты отсортированы от лучшего.
// Точка без прогноза на ETA считается нарушением.
func BestStart(samples []models.SamplePoint, series []*models.ForecastSeries, w Window, limits Limits) ([]Candidate, error) {
	if w.Step <= 0 || w.To.Before(w.From) {
		return nil, ErrInvalidWindow
	}
	if n := w.To.Sub(w.From)/w.Step + 1; n > maxCandidates {
		return nil, ErrInvalidWindow
	}

	var candidates []Candidate
	for start := w.From; !start.After(w.To); start = start.Add(w.Step) {
		results, errs := Align(samples, series, start)
		candidates = append(candidates, score(start, results, len(errs), limits))
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score == candidates[j].Score {
			return candidates[i].Start.Before(candidates[j].Start)
		}
		return candidates[i].Score < candidates[j].Score
	})
	return candidates, nil
}

func score(start time.Time, results []models.AlignedResult, missing int, l Limits) Candidate {
	c := Candidate{
		Start:   start,
		Missing: missing,
	}

	windSum, windN, wet := 0.0, 0, 0
	for _, r := range results {
		w := r.Weather
		violated := false

		if !math.IsNaN(w.PrecipMmHr) {
			c.MaxRain = math.Max(c.MaxRain, w.PrecipMmHr)
			if w.PrecipMmHr >= WetThreshold {
				wet++
			}
			if l.MaxRainMmHr > 0 && w.PrecipMmHr > l.MaxRainMmHr {
				c.Score += (w.PrecipMmHr - l.MaxRainMmHr) / l.MaxRainMmHr
				violated = true
			}
		}
		if !math.IsNaN(w.WindGustsKmh) {
			c.MaxGust = math.Max(c.MaxGust, w.WindGustsKmh)
			if l.MaxGustKmh > 0 && w.WindGustsKmh > l.MaxGustKmh {
				c.Score += (w.WindGustsKmh - l.MaxGustKmh) / l.MaxGustKmh
				violated = true
			}
		}
		if !math.IsNaN(w.WindSpeedKmh) {
			windSum += w.WindSpeedKmh
			windN++
		}
		if t := w.TempC; !math.IsNaN(t) {
			if c.MinTemp == nil || t < *c.MinTemp {
				c.MinTemp = &t
			}
			if c.MaxTemp == nil || t > *c.MaxTemp {
				c.MaxTemp = &t
			}
			if l.MaxTempC != nil && t > *l.MaxTempC {
				c.Score += (t - *l.MaxTempC) / 10
				violated = true
			}
			if l.MinTempC != nil && t < *l.MinTempC {
				c.Score += (*l.MinTempC - t) / 10
				violated = true
			}
		}

		if violated {
			c.Violations++
		}
	}

	if windN > 0 {
		c.AvgWind = windSum / float64(windN)
		if l.MaxWindAvgKmh > 0 && c.AvgWind > l.MaxWindAvgKmh {
			c.Score += (c.AvgWind - l.MaxWindAvgKmh) / l.MaxWindAvgKmh * float64(windN)
			c.Violations++
		}
	}
	if len(results) > 0 {
		c.WetShare = float64(wet) / float64(len(results))
	}

	c.Score += float64(c.Violations + missing*2)
	return c
}
