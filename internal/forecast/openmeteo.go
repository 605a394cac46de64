package forecast

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/flybeeper/routecast/internal/models"
)

const openMeteoURL = "https://api.open-meteo.com/v1/forecast"

var openMeteoQuarterFields = []string{
	"temperature_2m",
	"apparent_temperature",
	"wind_gusts_10m",
	"windspeed_10m",
	"winddirection_10m",
	"precipitation",
	"cloud_cover",
	"cloud_cover_low",
	"is_day",
}

// OpenMeteo провайдер open-meteo.com, ключ не нужен
type OpenMeteo struct {
	opts ProviderOptions
}

// NewOpenMeteo создает провайдера Open-Meteo
func NewOpenMeteo(opts ProviderOptions) *OpenMeteo {
	return &OpenMeteo{opts: opts.withDefaults(openMeteoURL)}
}

// Name имя провайдера
func (p *OpenMeteo) Name() string {
	return ProviderOpenMeteo
}

func (p *OpenMeteo) requestURL(lat, lon float64) string {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("timezone", p.opts.Location.String())
	q.Set("hourly", "precipitation_probability")
	q.Set("minutely_15", strings.Join(openMeteoQuarterFields, ","))
	q.Set("past_days", "0")
	q.Set("forecast_days", strconv.Itoa(p.opts.ForecastDays))
	return p.opts.BaseURL + "?" + q.Encode()
}

// Fetch загружает 15-минутный прогноз для точки
func (p *OpenMeteo) Fetch(ctx context.Context, lat, lon float64) (*models.ForecastSeries, error) {
	doc, err := doGet(ctx, p.opts.Client, "Open-Meteo", p.requestURL(lat, lon))
	if err != nil {
		return nil, err
	}

	q := doc.Get("minutely_15")
	times, raw, err := parseTimes(q.Get("time"), p.opts.Location)
	if err != nil {
		return nil, fmt.Errorf("open-meteo: %w", err)
	}
	if len(times) == 0 {
		return nil, fmt.Errorf("open-meteo: %w", ErrEmptySeries)
	}

	hourly := doc.Get("hourly")
	return &models.ForecastSeries{
		Provider:      ProviderOpenMeteo,
		Lat:           lat,
		Lon:           lon,
		Times:         times,
		TempC:         values(q.Get("temperature_2m")),
		FeltTempC:     values(q.Get("apparent_temperature")),
		WindGustsKmh:  values(q.Get("wind_gusts_10m")),
		WindSpeedKmh:  values(q.Get("windspeed_10m")),
		WindFromDeg:   values(q.Get("winddirection_10m")),
		PrecipMmHr:    trailingHourSum(values(q.Get("precipitation"))),
		PrecipProb:    mapHourly(raw, hourly.Get("time"), values(hourly.Get("precipitation_probability"))),
		CloudCover:    values(q.Get("cloud_cover")),
		CloudCoverLow: values(q.Get("cloud_cover_low")),
		IsDay:         values(q.Get("is_day")),
	}, nil
}
