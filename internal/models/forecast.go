package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// Values ряд значений прогноза, NaN означает отсутствие значения
type Values []float64

// At возвращает значение по индексу или NaN
func (v Values) At(i int) float64 {
	if i < 0 || i >= len(v) {
		return math.NaN()
	}
	return v[i]
}

// MarshalJSON кодирует NaN как null
func (v Values) MarshalJSON() ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			buf.WriteByte(',')
		}
		if math.IsNaN(x) || math.IsInf(x, 0) {
			buf.WriteString("null")
			continue
		}
		buf.WriteString(strconv.FormatFloat(x, 'f', -1, 64))
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// UnmarshalJSON декодирует null как NaN
func (v *Values) UnmarshalJSON(data []byte) error {
	var raw []*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*v = nil
		return nil
	}
	out := make(Values, len(raw))
	for i, x := range raw {
		if x == nil {
			out[i] = math.NaN()
		} else {
			out[i] = *x
		}
	}
	*v = out
	return nil
}

// ForecastSeries временной ряд прогноза для одной точки выборки.
// После получения не изменяется.
type ForecastSeries struct {
	Provider string      `json:"provider"`
	Lat      float64     `json:"lat"`
	Lon      float64     `json:"lon"`
	Times    []time.Time `json:"times"`

	TempC         Values `json:"temp_c"`
	FeltTempC     Values `json:"felt_temp_c"`
	WindSpeedKmh  Values `json:"wind_speed_kmh"`
	WindGustsKmh  Values `json:"wind_gusts_kmh"`
	WindFromDeg   Values `json:"wind_from_deg"`
	PrecipMmHr    Values `json:"precip_mm_hr"`
	PrecipProb    Values `json:"precip_prob"`
	CloudCover    Values `json:"cloud_cover"`
	CloudCoverLow Values `json:"cloud_cover_low"`
	IsDay         Values `json:"is_day"`
	Pictocode     Values `json:"pictocode,omitempty"`
}

// Len количество временных отметок
func (f *ForecastSeries) Len() int {
	return len(f.Times)
}

// Interval шаг ряда; для ряда из одной отметки считается час
func (f *ForecastSeries) Interval() time.Duration {
	if len(f.Times) < 2 {
		return time.Hour
	}
	d := f.Times[1].Sub(f.Times[0])
	if d <= 0 {
		return time.Hour
	}
	return d
}

// Weather значения прогноза в одной временной отметке
type Weather struct {
	TempC         float64  `json:"temp_c"`
	FeltTempC     float64  `json:"felt_temp_c"`
	WindSpeedKmh  float64  `json:"wind_speed_kmh"`
	WindGustsKmh  float64  `json:"wind_gusts_kmh"`
	WindFromDeg   float64  `json:"wind_from_deg"`
	PrecipMmHr    float64  `json:"precip_mm_hr"`
	PrecipProb    float64  `json:"precip_prob"`
	CloudCover    float64  `json:"cloud_cover"`
	CloudCoverLow float64  `json:"cloud_cover_low"`
	IsDay         float64  `json:"is_day"`
	Pictocode     *float64 `json:"pictocode,omitempty"` // только MeteoBlue
}

// At проецирует все параллельные ряды на один индекс
func (f *ForecastSeries) At(i int) Weather {
	return Weather{
		TempC:         f.TempC.At(i),
		FeltTempC:     f.FeltTempC.At(i),
		WindSpeedKmh:  f.WindSpeedKmh.At(i),
		WindGustsKmh:  f.WindGustsKmh.At(i),
		WindFromDeg:   f.WindFromDeg.At(i),
		PrecipMmHr:    f.PrecipMmHr.At(i),
		PrecipProb:    f.PrecipProb.At(i),
		CloudCover:    f.CloudCover.At(i),
		CloudCoverLow: f.CloudCoverLow.At(i),
		IsDay:         f.IsDay.At(i),
		Pictocode:     finite(f.Pictocode.At(i)),
	}
}

// MarshalJSON кодирует NaN как null
func (w Weather) MarshalJSON() ([]byte, error) {
	type plain struct {
		TempC         *float64 `json:"temp_c"`
		FeltTempC     *float64 `json:"felt_temp_c"`
		WindSpeedKmh  *float64 `json:"wind_speed_kmh"`
		WindGustsKmh  *float64 `json:"wind_gusts_kmh"`
		WindFromDeg   *float64 `json:"wind_from_deg"`
		PrecipMmHr    *float64 `json:"precip_mm_hr"`
		PrecipProb    *float64 `json:"precip_prob"`
		CloudCover    *float64 `json:"cloud_cover"`
		CloudCoverLow *float64 `json:"cloud_cover_low"`
		IsDay         *float64 `json:"is_day"`
		Pictocode     *float64 `json:"pictocode,omitempty"`
	}
	return json.Marshal(plain{
		TempC:         finite(w.TempC),
		FeltTempC:     finite(w.FeltTempC),
		WindSpeedKmh:  finite(w.WindSpeedKmh),
		WindGustsKmh:  finite(w.WindGustsKmh),
		WindFromDeg:   finite(w.WindFromDeg),
		PrecipMmHr:    finite(w.PrecipMmHr),
		PrecipProb:    finite(w.PrecipProb),
		CloudCover:    finite(w.CloudCover),
		CloudCoverLow: finite(w.CloudCoverLow),
		IsDay:         finite(w.IsDay),
		Pictocode:     w.Pictocode,
	})
}

// Finite возвращает указатель на значение или nil для NaN и бесконечности
func Finite(x float64) *float64 {
	return finite(x)
}

func finite(x float64) *float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return nil
	}
	return &x
}

// AlignedResult точка выборки с прогнозом на ее ETA для выбранного старта
type AlignedResult struct {
	SampleIdx     int       `json:"sample_idx"`
	Idx           int       `json:"idx"`
	Lat           float64   `json:"lat"`
	Lon           float64   `json:"lon"`
	IsBreak       bool      `json:"is_break"`
	AccumDist     float64   `json:"accum_dist_m"`
	AccumTime     float64   `json:"accum_time_s"`
	TravelBearing float64   `json:"travel_bearing"`
	ShiftedETA    time.Time `json:"eta"`

	ForecastIndex int       `json:"forecast_index"`
	ForecastTime  time.Time `json:"forecast_time"`
	Weather       Weather   `json:"weather"`
	HeadwindKmh   *float64  `json:"headwind_kmh,omitempty"` // Положительное значение - встречный ветер
}

// PointError ошибка для одной точки выборки
type PointError struct {
	SampleIdx int    `json:"sample_idx"`
	Reason    string `json:"reason"`
}

// RouteStats агрегаты по выровненным результатам.
//
// TotalDurationSec равно накопленному времени последней точки выборки,
// остановки включены. Отрезок от точки остановки до следующей точки маршрута
// покрывается остатком остановки, его время в пути не добавляется, поэтому
// значение может быть меньше суммы времени в пути и длительностей остановок.
type RouteStats struct {
	TotalDistMeters  float64  `json:"total_dist_m"`
	TotalDurationSec float64  `json:"total_duration_s"`
	MinTempC         *float64 `json:"min_temp_c,omitempty"`
	MaxTempC         *float64 `json:"max_temp_c,omitempty"`
	WetShare         float64  `json:"wet_share"` // Доля точек с осадками >= 0.1 мм/ч
	Points           int      `json:"points"`
	Missing          int      `json:"missing"`
}
