package forecast

import (
	"math"
	"sort"
	"time"

	"github.com/flybeeper/routecast/internal/models"
)

// ReasonOutOfRange причина ошибки, когда ETA вне горизонта прогноза
const ReasonOutOfRange = "time out of forecast range"

// NearestIndex индекс отметки, ближайшей к t; при равенстве берется более ранняя.
// times должен быть отсортирован по возрастанию.
func NearestIndex(times []time.Time, t time.Time) int {
	if len(times) == 0 {
		return -1
	}
	i := sort.Search(len(times), func(i int) bool { return !times[i].Before(t) })
	switch {
	case i == 0:
		return 0
	case i == len(times):
		return len(times) - 1
	}
	if times[i].Sub(t) < t.Sub(times[i-1]) {
		return i
	}
	return i - 1
}

// ShiftedETA время прибытия в точку при старте start
func ShiftedETA(s models.SamplePoint, start time.Time) time.Time {
	return start.Add(time.Duration(math.Round(s.AccumTime * float64(time.Second))))
}

// inRange проверяет, что t не дальше одного шага ряда от его границ
func inRange(f *models.ForecastSeries, t time.Time) bool {
	tol := f.Interval()
	first, last := f.Times[0], f.Times[len(f.Times)-1]
	return !t.Before(first.Add(-tol)) && !t.After(last.Add(tol))
}

// Align проецирует ряды прогноза на ETA каждой точки для старта start.
// series параллелен samples; nil означает, что ряд не загружен, такая точка
// пропускается без ошибки (ошибка загрузки уже записана). Ряды не изменяются.
// Результаты отсортированы по ETA.
func Align(samples []models.SamplePoint, series []*models.ForecastSeries, start time.Time) ([]models.AlignedResult, []models.PointError) {
	results := make([]models.AlignedResult, 0, len(samples))
	var errs []models.PointError

	for i, s := range samples {
		if i >= len(series) || series[i] == nil || series[i].Len() == 0 {
			continue
		}
		f := series[i]
		eta := ShiftedETA(s, start)
		if !inRange(f, eta) {
			errs = append(errs, models.PointError{SampleIdx: i, Reason: ReasonOutOfRange})
			continue
		}

		idx := NearestIndex(f.Times, eta)
		w := f.At(idx)
		results = append(results, models.AlignedResult{
			SampleIdx:     i,
			Idx:           s.Idx,
			Lat:           s.Lat,
			Lon:           s.Lon,
			IsBreak:       s.IsBreak,
			AccumDist:     s.AccumDist,
			AccumTime:     s.AccumTime,
			TravelBearing: s.TravelBearing,
			ShiftedETA:    eta,
			ForecastIndex: idx,
			ForecastTime:  f.Times[idx],
			Weather:       w,
			HeadwindKmh:   models.Finite(Headwind(w.WindFromDeg, s.TravelBearing, w.WindSpeedKmh)),
		})
	}

	sort.SliceStable(results, func(a, b int) bool {
		if results[a].ShiftedETA.Equal(results[b].ShiftedETA) {
			return results[a].SampleIdx < results[b].SampleIdx
		}
		return results[a].ShiftedETA.Before(results[b].ShiftedETA)
	})

	return results, errs
}
