package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flybeeper/routecast/internal/models"
	"github.com/flybeeper/routecast/internal/repository"
	"github.com/flybeeper/routecast/pkg/utils"
)

// ArchiverConfig конфигурация фонового сохранения маршрутов
type ArchiverConfig struct {
	BatchSize     int           `json:"batch_size"`
	FlushInterval time.Duration `json:"flush_interval"`
	ChannelBuffer int           `json:"channel_buffer"`
	MaxRetries    int           `json:"max_retries"`
	RetryDelay    time.Duration `json:"retry_delay"`
}

// DefaultArchiverConfig возвращает конфигурацию по умолчанию
func DefaultArchiverConfig() *ArchiverConfig {
	return &ArchiverConfig{
		BatchSize:     50,
		FlushInterval: 2 * time.Second,
		ChannelBuffer: 1000,
		MaxRetries:    3,
		RetryDelay:    100 * time.Millisecond,
	}
}

// ArchiverStats счетчики архиватора
type ArchiverStats struct {
	Queued    int64 `json:"queued"`
	Saved     int64 `json:"saved"`
	Errors    int64 `json:"errors"`
	LastBatch int   `json:"last_batch"`
}

// RouteArchiver асинхронно сохраняет загруженные GPX в хранилище маршрутов,
// чтобы запись в БД не задерживала ответ на обработку маршрута
type RouteArchiver struct {
	store  repository.RouteStore
	logger *utils.Logger
	config *ArchiverConfig

	queue  chan *models.SavedRoute
	buffer []*models.SavedRoute

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.RWMutex
	stats ArchiverStats
}

// NewRouteArchiver создает архиватор и запускает его worker
func NewRouteArchiver(store repository.RouteStore, logger *utils.Logger, cfg *ArchiverConfig) *RouteArchiver {
	if cfg == nil {
		cfg = DefaultArchiverConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())

	a := &RouteArchiver{
		store:  store,
		logger: logger,
		config: cfg,
		queue:  make(chan *models.SavedRoute, cfg.ChannelBuffer),
		buffer: make([]*models.SavedRoute, 0, cfg.BatchSize),
		ctx:    ctx,
		cancel: cancel,
	}

	a.wg.Add(1)
	go a.worker()

	logger.WithField("batch_size", cfg.BatchSize).
		WithField("flush_interval", cfg.FlushInterval).
		Info("Started route archiver")
	return a
}

// Queue ставит маршрут в очередь на сохранение
func (a *RouteArchiver) Queue(route *models.SavedRoute) error {
	if a.ctx.Err() != nil {
		return fmt.Errorf("route archiver is shutting down")
	}
	select {
	case a.queue <- route:
		a.mu.Lock()
		a.stats.Queued++
		a.mu.Unlock()
		return nil
	default:
		a.mu.Lock()
		a.stats.Errors++
		a.mu.Unlock()
		return fmt.Errorf("route archive queue is full")
	}
}

func (a *RouteArchiver) worker() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case route := <-a.queue:
			a.buffer = append(a.buffer, route)
			if len(a.buffer) >= a.config.BatchSize {
				a.flush(a.ctx)
			}

		case <-ticker.C:
			a.flush(a.ctx)

		case <-a.ctx.Done():
			// Дочитываем очередь и сохраняем остаток без отмены
			for {
				select {
				case route := <-a.queue:
					a.buffer = append(a.buffer, route)
				default:
					a.flush(context.Background())
					return
				}
			}
		}
	}
}

func (a *RouteArchiver) flush(ctx context.Context) {
	if len(a.buffer) == 0 {
		return
	}

	start := time.Now()
	batch := a.buffer
	a.buffer = make([]*models.SavedRoute, 0, a.config.BatchSize)

	var saved, failed int64
	for _, route := range batch {
		err := a.retry(ctx, func() error {
			return a.store.CreateRoute(ctx, route)
		})
		if err != nil {
			failed++
			a.logger.WithFields(map[string]interface{}{
				"route_id": route.ID,
				"user_id":  route.UserID,
				"error":    err,
			}).Error("Failed to archive route")
			continue
		}
		saved++
	}

	a.mu.Lock()
	a.stats.Saved += saved
	a.stats.Errors += failed
	a.stats.LastBatch = len(batch)
	a.mu.Unlock()

	a.logger.WithField("batch_size", len(batch)).
		WithField("duration", time.Since(start)).
		Debug("Flushed archived routes")
}

func (a *RouteArchiver) retry(ctx context.Context, op func() error) error {
	var lastErr error
	for attempt := 0; attempt <= a.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(a.config.RetryDelay * time.Duration(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}

		a.logger.WithField("attempt", attempt+1).
			WithField("max_retries", a.config.MaxRetries).
			WithField("error", lastErr).
			Warn("Route archive write failed, retrying")
	}
	return fmt.Errorf("operation failed after %d retries: %w", a.config.MaxRetries, lastErr)
}

// Stats возвращает счетчики
func (a *RouteArchiver) Stats() ArchiverStats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stats
}

// Stop останавливает архиватор, сохранив все, что уже в очереди
func (a *RouteArchiver) Stop() {
	a.logger.Info("Stopping route archiver...")
	a.cancel()
	a.wg.Wait()
	a.logger.Info("Route archiver stopped")
}
