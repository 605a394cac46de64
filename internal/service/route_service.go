package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/flybeeper/routecast/internal/events"
	"github.com/flybeeper/routecast/internal/forecast"
	"github.com/flybeeper/routecast/internal/metrics"
	"github.com/flybeeper/routecast/internal/models"
	"github.com/flybeeper/routecast/internal/repository"
	"github.com/flybeeper/routecast/internal/track"
	"github.com/flybeeper/routecast/pkg/utils"
)

// ProviderResolver выбирает провайдера прогноза по имени
type ProviderResolver interface {
	Resolve(name, apiKey string) (forecast.Provider, error)
}

// Archiver принимает маршруты для фонового сохранения
type Archiver interface {
	Queue(route *models.SavedRoute) error
}

// ProcessInput загруженный маршрут и параметры обработки
type ProcessInput struct {
	Owner    string // Клиент или пользователь; новый запуск того же владельца отменяет предыдущий
	UserID   int    // 0 для анонимных запросов
	Name     string
	GPX      []byte
	Params   models.RouteParams
	APIKey   string
	Save     bool
	Progress ProgressFunc
}

// ForecastView прогноз вдоль маршрута для одного времени старта
type ForecastView struct {
	SessionID string                 `json:"session_id"`
	Start     time.Time              `json:"start"`
	Results   []models.AlignedResult `json:"results"`
	Stats     models.RouteStats      `json:"stats"`
	Errors    []models.PointError    `json:"errors,omitempty"`
}

// RouteView результат обработки маршрута
type RouteView struct {
	ForecastView
	Generation   uint64               `json:"generation"`
	Name         string               `json:"name,omitempty"`
	Provider     string               `json:"provider"`
	Samples      []models.SamplePoint `json:"samples"`
	Breaks       []models.Break       `json:"breaks"`
	BreakWindows []track.BreakWindow  `json:"break_windows,omitempty"`
	Warnings     []string             `json:"warnings,omitempty"`
}

// RouteService обработка маршрутов и выравнивание прогнозов
type RouteService struct {
	sessions    repository.SessionStore
	providers   ProviderResolver
	fetcher     *Fetcher
	generations *Generations
	publisher   events.Publisher
	archiver    Archiver
	logger      *utils.Logger
	now         func() time.Time
}

// NewRouteService создает сервис; publisher и archiver могут быть nil
func NewRouteService(sessions repository.SessionStore, providers ProviderResolver, fetcher *Fetcher, publisher events.Publisher, archiver Archiver, logger *utils.Logger) *RouteService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &RouteService{
		sessions:    sessions,
		providers:   providers,
		fetcher:     fetcher,
		generations: NewGenerations(),
		publisher:   publisher,
		archiver:    archiver,
		logger:      logger,
		now:         time.Now,
	}
}

// Generations реестр поколений запусков
func (s *RouteService) Generations() *Generations {
	return s.generations
}

// ProcessRoute разбирает GPX, размечает маршрут по времени, загружает прогнозы
// для точек выборки и сохраняет сессию. Ошибки входных данных фатальны,
// ошибки отдельных точек попадают в Errors ответа.
func (s *RouteService) ProcessRoute(ctx context.Context, in ProcessInput) (*RouteView, error) {
	started := s.now()
	logger := s.logger.WithContext(ctx).WithField("owner", in.Owner)

	res, err := s.prepare(in)
	if err != nil {
		metrics.RoutesProcessed.WithLabelValues("rejected").Inc()
		metrics.ValidationRejectedRoutes.WithLabelValues(RejectReason(err)).Inc()
		logger.WithError(err).Info("Route rejected")
		return nil, err
	}
	metrics.RouteProcessingDuration.WithLabelValues("track").Observe(s.now().Sub(started).Seconds())
	metrics.RouteSamples.Observe(float64(len(res.Samples)))

	for _, w := range res.Warnings {
		metrics.ValidationBreakWarnings.Inc()
		logger.WithField("warning", w).Warn("Break dropped")
	}

	provider, err := s.providers.Resolve(in.Params.Provider, in.APIKey)
	if err != nil {
		metrics.RoutesProcessed.WithLabelValues("rejected").Inc()
		return nil, err
	}

	runCtx, gen := s.generations.Begin(ctx, in.Owner)
	defer s.generations.Done(in.Owner, gen)

	fetchStart := s.now()
	fetched, err := s.fetcher.FetchAll(runCtx, provider, res.Samples, in.Progress)
	metrics.RouteProcessingDuration.WithLabelValues("fetch").Observe(s.now().Sub(fetchStart).Seconds())
	if err != nil {
		if !s.generations.IsCurrent(in.Owner, gen) {
			metrics.RoutesProcessed.WithLabelValues("superseded").Inc()
			return nil, ErrSuperseded
		}
		metrics.RoutesProcessed.WithLabelValues("error").Inc()
		return nil, err
	}
	if err := s.generations.Commit(in.Owner, gen); err != nil {
		metrics.RoutesProcessed.WithLabelValues("superseded").Inc()
		logger.WithField("generation", gen).Info("Discarding superseded route result")
		return nil, err
	}

	name := in.Name
	if name == "" {
		name = track.TrackName(in.GPX)
	}
	session := &models.RouteSession{
		ID:          uuid.NewString(),
		Owner:       in.Owner,
		Generation:  gen,
		Name:        name,
		CreatedAt:   s.now(),
		Params:      in.Params,
		Track:       res.Track.Points,
		Breaks:      res.Breaks,
		Samples:     res.Samples,
		Series:      fetched.Series,
		Warnings:    res.Warnings,
		FetchErrors: fetched.Errors,
	}
	if err := s.sessions.SaveSession(ctx, session); err != nil {
		metrics.RoutesProcessed.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("save session: %w", err)
	}

	view := &RouteView{
		ForecastView: align(session, in.Params.StartTime),
		Generation:   gen,
		Name:         name,
		Provider:     provider.Name(),
		Samples:      res.Samples,
		Breaks:       res.Breaks,
		BreakWindows: res.Windows(),
		Warnings:     res.Warnings,
	}

	s.afterProcess(ctx, in, session, view, logger)
	metrics.RoutesProcessed.WithLabelValues("success").Inc()
	metrics.RouteProcessingDuration.WithLabelValues("total").Observe(s.now().Sub(started).Seconds())

	logger.WithFields(map[string]interface{}{
		"route_id": session.ID,
		"samples":  len(res.Samples),
		"missing":  fetched.Missing(),
		"provider": provider.Name(),
	}).Info("Route processed")
	return view, nil
}

func (s *RouteService) prepare(in ProcessInput) (*track.Result, error) {
	if in.Params.StartTime.IsZero() {
		return nil, ErrInvalidStartTime
	}
	raw, err := track.ParseGPX(in.GPX)
	if err != nil {
		return nil, err
	}
	return track.Process(raw, in.Params.Breaks, SampleParams(in.Params))
}

func (s *RouteService) afterProcess(ctx context.Context, in ProcessInput, session *models.RouteSession, view *RouteView, logger *utils.Logger) {
	evt := events.RouteProcessed{
		RouteID:     session.ID,
		Owner:       session.Owner,
		Generation:  session.Generation,
		Provider:    view.Provider,
		Samples:     len(session.Samples),
		Missing:     len(session.FetchErrors),
		DistanceM:   session.TotalDistance(),
		DurationSec: view.Stats.TotalDurationSec,
		StartTime:   in.Params.StartTime,
		ProcessedAt: session.CreatedAt,
	}
	if err := s.publisher.PublishRouteProcessed(ctx, evt); err != nil {
		logger.WithError(err).WithField("route_id", session.ID).Warn("Failed to publish route event")
	}

	if in.Save && in.UserID > 0 && s.archiver != nil {
		saved := &models.SavedRoute{
			UserID:     in.UserID,
			Name:       session.Name,
			GPX:        in.GPX,
			UploadedAt: session.CreatedAt,
		}
		if err := s.archiver.Queue(saved); err != nil {
			logger.WithError(err).Warn("Failed to queue route for archiving")
		}
	}
}

// GetSession загружает сессию маршрута
func (s *RouteService) GetSession(ctx context.Context, id string) (*models.RouteSession, error) {
	session, err := s.sessions.LoadSession(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

// AlignRoute выравнивает сохраненные прогнозы для нового времени старта без
// повторной загрузки. Нулевой start означает исходное время старта.
func (s *RouteService) AlignRoute(ctx context.Context, id string, start time.Time) (*ForecastView, error) {
	session, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if start.IsZero() {
		start = session.Params.StartTime
	}
	view := align(session, start)
	return &view, nil
}

// BestStart ищет лучшее время старта в окне по сохраненным прогнозам
func (s *RouteService) BestStart(ctx context.Context, id string, w forecast.Window, limits forecast.Limits) ([]forecast.Candidate, error) {
	session, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	return forecast.BestStart(session.Samples, session.Series, w, limits)
}

// Snap ближайшая к координате точка маршрута
func (s *RouteService) Snap(ctx context.Context, id string, lat, lon float64) (track.SnapResult, error) {
	session, err := s.GetSession(ctx, id)
	if err != nil {
		return track.SnapResult{}, err
	}
	if len(session.Track) == 0 {
		return track.SnapResult{}, track.ErrEmptyTrack
	}
	return track.SnapToRoute(&track.Track{Points: session.Track}, lat, lon), nil
}

// DeleteSession удаляет сессию маршрута
func (s *RouteService) DeleteSession(ctx context.Context, id string) error {
	err := s.sessions.DeleteSession(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrSessionNotFound
	}
	return err
}

// align сводит прогнозы сессии к времени старта. Ошибки загрузки и выхода
// за диапазон прогноза объединяются в один список по индексу точки.
func align(session *models.RouteSession, start time.Time) ForecastView {
	results, alignErrs := forecast.Align(session.Samples, session.Series, start)
	for range alignErrs {
		metrics.ValidationPointErrors.WithLabelValues("out_of_range").Inc()
	}

	errs := make([]models.PointError, 0, len(session.FetchErrors)+len(alignErrs))
	errs = append(errs, session.FetchErrors...)
	errs = append(errs, alignErrs...)
	sort.SliceStable(errs, func(i, j int) bool { return errs[i].SampleIdx < errs[j].SampleIdx })
	if results == nil {
		results = []models.AlignedResult{}
	}

	return ForecastView{
		SessionID: session.ID,
		Start:     start,
		Results:   results,
		Stats:     forecast.Summarize(session.Samples, results, len(errs)),
		Errors:    errs,
	}
}
