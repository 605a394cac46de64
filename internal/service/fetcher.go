package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/flybeeper/routecast/internal/forecast"
	"github.com/flybeeper/routecast/internal/metrics"
	"github.com/flybeeper/routecast/internal/models"
	"github.com/flybeeper/routecast/pkg/pool"
	"github.com/flybeeper/routecast/pkg/utils"
)

// Progress состояние загрузки прогнозов
type Progress struct {
	Done      int    `json:"done"`
	Total     int    `json:"total"`
	Failed    int    `json:"failed"`
	SampleIdx int    `json:"sample_idx"`
	Provider  string `json:"provider"`
}

// ProgressFunc получает событие после каждой точки; вызывается из рабочих горутин
type ProgressFunc func(Progress)

// FetchResult ряды параллельно точкам выборки и ошибки отдельных точек
type FetchResult struct {
	Series []*models.ForecastSeries
	Errors []models.PointError
}

// Missing количество точек без прогноза
func (r *FetchResult) Missing() int {
	return len(r.Errors)
}

// FetcherConfig параметры загрузчика
type FetcherConfig struct {
	Workers       int
	RatePerSecond float64 // 0 - без ограничения
	RateBurst     int
	Key           forecast.KeyFunc
}

// Fetcher загружает прогнозы для точек выборки ограниченным пулом горутин
type Fetcher struct {
	cache   forecast.Cache
	key     forecast.KeyFunc
	limiter *rate.Limiter
	workers int
	logger  *utils.Logger
}

// NewFetcher создает загрузчик; cache может быть nil
func NewFetcher(cache forecast.Cache, cfg FetcherConfig, logger *utils.Logger) *Fetcher {
	if cfg.Workers <= 0 {
		cfg.Workers = pool.DefaultWorkers
	}
	if cfg.Key == nil {
		cfg.Key = forecast.RoundedKey
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RatePerSecond > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	return &Fetcher{
		cache:   cache,
		key:     cfg.Key,
		limiter: limiter,
		workers: cfg.Workers,
		logger:  logger,
	}
}

type fetched struct {
	idx    int
	series *models.ForecastSeries
	err    error
}

// FetchAll загружает прогноз для каждой точки. Ошибка отдельной точки не прерывает
// пакет и попадает в FetchResult.Errors. Ошибка возвращается только при отмене ctx.
func (f *Fetcher) FetchAll(ctx context.Context, provider forecast.Provider, samples []models.SamplePoint, progress ProgressFunc) (*FetchResult, error) {
	total := len(samples)
	name := provider.Name()

	var (
		mu        sync.Mutex
		collected = make([]fetched, 0, total)
		failed    int
	)

	err := pool.Run(ctx, f.workers, total, func(ctx context.Context, i int) {
		metrics.ForecastWorkersActive.Inc()
		defer metrics.ForecastWorkersActive.Dec()

		s := samples[i]
		series, err := f.fetchOne(ctx, provider, s.Lat, s.Lon)

		mu.Lock()
		collected = append(collected, fetched{idx: i, series: series, err: err})
		if err != nil {
			failed++
		}
		p := Progress{Done: len(collected), Total: total, Failed: failed, SampleIdx: i, Provider: name}
		mu.Unlock()

		if err != nil {
			f.logger.WithFields(map[string]interface{}{
				"provider":   name,
				"sample_idx": i,
				"error":      err,
			}).Warn("Forecast fetch failed for sample")
		}
		if progress != nil {
			progress(p)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("fetch forecasts: %w", err)
	}

	sort.Slice(collected, func(a, b int) bool { return collected[a].idx < collected[b].idx })

	result := &FetchResult{Series: make([]*models.ForecastSeries, total)}
	for _, c := range collected {
		if c.err != nil {
			result.Errors = append(result.Errors, models.PointError{SampleIdx: c.idx, Reason: c.err.Error()})
			metrics.ValidationPointErrors.WithLabelValues("fetch").Inc()
			continue
		}
		result.Series[c.idx] = c.series
	}

	f.logger.WithFields(map[string]interface{}{
		"provider": name,
		"samples":  total,
		"missing":  result.Missing(),
	}).Infof("Forecast fetch completed with %d missing points", result.Missing())
	return result, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, provider forecast.Provider, lat, lon float64) (*models.ForecastSeries, error) {
	name := provider.Name()
	key := f.key(name, lat, lon)

	if f.cache != nil {
		if series, ok := f.cache.Get(ctx, key); ok {
			metrics.ForecastCacheLookups.WithLabelValues("hit").Inc()
			metrics.ForecastFetchTotal.WithLabelValues(name, "cached").Inc()
			return series, nil
		}
		metrics.ForecastCacheLookups.WithLabelValues("miss").Inc()
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	series, err := provider.Fetch(ctx, lat, lon)
	metrics.ForecastFetchDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ForecastFetchTotal.WithLabelValues(name, "error").Inc()
		return nil, err
	}
	metrics.ForecastFetchTotal.WithLabelValues(name, "success").Inc()

	if f.cache != nil {
		f.cache.Set(ctx, key, series)
	}
	return series, nil
}
