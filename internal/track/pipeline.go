package track

import (
	"github.com/flybeeper/routecast/internal/models"
)

// Result результат обработки маршрута до загрузки прогнозов
type Result struct {
	Track     *Track
	Breaks    []models.Break
	Augmented []models.AugmentedPoint
	Timeline  []models.SamplePoint // Все точки с накопленным временем
	Samples   []models.SamplePoint // Точки для запроса прогнозов
	Warnings  []string
}

// Windows интервалы остановок
func (r *Result) Windows() []BreakWindow {
	return BreakWindows(r.Timeline, r.Breaks)
}

// Process строит маршрут, расставляет остановки и выбирает точки выборки.
// Ошибки входных данных фатальны; проблемы с отдельными остановками
// попадают в Warnings.
func Process(raw []models.RawPoint, inputs []models.BreakInput, params SampleParams) (*Result, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	t, err := Build(raw)
	if err != nil {
		return nil, err
	}

	breaks, warnings := PlanBreaks(inputs, t)
	augmented := InsertBreaks(t.Points, breaks, params.MinSpacingMinutes)

	timeline, err := Timeline(augmented, breaks, params)
	if err != nil {
		return nil, err
	}

	return &Result{
		Track:     t,
		Breaks:    breaks,
		Augmented: augmented,
		Timeline:  timeline,
		Samples:   selectSamples(timeline, params),
		Warnings:  warnings,
	}, nil
}
