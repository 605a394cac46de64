package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ValidationRejectedRoutes маршруты, отклоненные при проверке входных данных
	ValidationRejectedRoutes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "routecast_validation_rejected_routes_total",
		Help: "Number of route requests rejected by input validation",
	}, []string{"reason"}) // reason: no_trackpoints, empty_track, params, gpx

	// ValidationBreakWarnings предупреждения о перерывах за пределами маршрута
	ValidationBreakWarnings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "routecast_validation_break_warnings_total",
		Help: "Number of break inputs dropped with a warning",
	})

	// ValidationPointErrors ошибки отдельных точек по причине
	ValidationPointErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "routecast_validation_point_errors_total",
		Help: "Number of per-point forecast errors by reason",
	}, []string{"reason"}) // reason: fetch, out_of_range
)
