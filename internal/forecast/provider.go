package forecast

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/flybeeper/routecast/internal/models"
)

const (
	ProviderOpenMeteo = "open-meteo"
	ProviderMeteoBlue = "meteoblue"

	maxResponseBytes = 8 << 20

	// localTimeLayout формат времени провайдеров в локальной зоне
	localTimeLayout = "2006-01-02T15:04"
)

var (
	// ErrMissingAPIKey провайдеру нужен ключ API
	ErrMissingAPIKey = errors.New("api key missing")
	// ErrUnknownProvider провайдер не зарегистрирован
	ErrUnknownProvider = errors.New("unknown forecast provider")
	// ErrEmptySeries провайдер вернул пустой ряд
	ErrEmptySeries = errors.New("provider response missing time series")
)

// Provider источник прогноза для одной точки
type Provider interface {
	Name() string
	Fetch(ctx context.Context, lat, lon float64) (*models.ForecastSeries, error)
}

// HTTPError ответ провайдера с неуспешным статусом
type HTTPError struct {
	Provider   string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s HTTP %d", e.Provider, e.StatusCode)
}

// ProviderOptions общие настройки HTTP провайдеров
type ProviderOptions struct {
	Client       *http.Client
	BaseURL      string
	Location     *time.Location
	ForecastDays int
}

func (o ProviderOptions) withDefaults(baseURL string) ProviderOptions {
	if o.Client == nil {
		o.Client = &http.Client{Timeout: 15 * time.Second}
	}
	if o.BaseURL == "" {
		o.BaseURL = baseURL
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.ForecastDays <= 0 {
		o.ForecastDays = 7
	}
	return o
}

// Registry набор провайдеров по имени
type Registry struct {
	openMeteo *OpenMeteo
	opts      ProviderOptions
	blueKey   string
}

// NewRegistry создает реестр; meteoBlueKey используется, если клиент не передал свой ключ
func NewRegistry(openMeteo, meteoBlue ProviderOptions, meteoBlueKey string) *Registry {
	return &Registry{
		openMeteo: NewOpenMeteo(openMeteo),
		opts:      meteoBlue,
		blueKey:   meteoBlueKey,
	}
}

// Resolve возвращает провайдера по имени
func (r *Registry) Resolve(name, apiKey string) (Provider, error) {
	switch strings.ToLower(name) {
	case "", ProviderOpenMeteo, "openmeteo":
		return r.openMeteo, nil
	case ProviderMeteoBlue:
		key := apiKey
		if key == "" {
			key = r.blueKey
		}
		if key == "" {
			return nil, fmt.Errorf("%s: %w", ProviderMeteoBlue, ErrMissingAPIKey)
		}
		return NewMeteoBlue(key, r.opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
}

// values читает массив чисел; null и нечисловые значения дают NaN
func values(r gjson.Result) models.Values {
	arr := r.Array()
	out := make(models.Values, len(arr))
	for i, v := range arr {
		if v.Type == gjson.Number {
			out[i] = v.Float()
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// parseTimes разбирает локальные отметки времени провайдера
func parseTimes(r gjson.Result, loc *time.Location) ([]time.Time, []string, error) {
	arr := r.Array()
	times := make([]time.Time, len(arr))
	raw := make([]string, len(arr))
	for i, v := range arr {
		s := strings.Replace(v.String(), " ", "T", 1)
		if len(s) > len(localTimeLayout) {
			s = s[:len(localTimeLayout)]
		}
		t, err := time.ParseInLocation(localTimeLayout, s, loc)
		if err != nil {
			return nil, nil, fmt.Errorf("parse time %q: %w", v.String(), err)
		}
		times[i] = t
		raw[i] = s
	}
	return times, raw, nil
}

// hourKey ключ часа "YYYY-MM-DDTHH"
func hourKey(s string) string {
	if len(s) < 13 {
		return s
	}
	return s[:13]
}

// mapHourly переносит часовые значения на 15-минутные отметки того же часа
func mapHourly(quarterTimes []string, hourTimes gjson.Result, hourly models.Values) models.Values {
	index := make(map[string]int)
	for i, v := range hourTimes.Array() {
		key := hourKey(strings.Replace(v.String(), " ", "T", 1))
		if _, ok := index[key]; !ok {
			index[key] = i
		}
	}

	out := make(models.Values, len(quarterTimes))
	for i, t := range quarterTimes {
		if idx, ok := index[hourKey(t)]; ok {
			out[i] = hourly.At(idx)
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// trailingHourSum сумма осадков за последний час (4 отметки по 15 минут),
// округленная до 3 знаков
func trailingHourSum(precip15 models.Values) models.Values {
	out := make(models.Values, len(precip15))
	for i := range precip15 {
		sum := 0.0
		for j := 0; j <= 3; j++ {
			if idx := i - j; idx >= 0 && !math.IsNaN(precip15[idx]) && !math.IsInf(precip15[idx], 0) {
				sum += precip15[idx]
			}
		}
		out[i] = math.Round(sum*1000) / 1000
	}
	return out
}

func doGet(ctx context.Context, client *http.Client, provider, url string) (gjson.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s request: %w", provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, &HTTPError{Provider: provider, StatusCode: resp.StatusCode}
	}

	body, err := readBody(resp)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s read body: %w", provider, err)
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("%s: invalid json response", provider)
	}
	return gjson.ParseBytes(body), nil
}

func readBody(resp *http.Response) ([]byte, error) {
	return io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
}
