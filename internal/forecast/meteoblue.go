package forecast

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/flybeeper/routecast/internal/models"
)

const meteoBlueURL = "https://my.meteoblue.com/packages/basic-15min_basic-1h_clouds-15min_wind-15min"

// MeteoBlue провайдер meteoblue.com, требует ключ API
type MeteoBlue struct {
	apiKey string
	opts   ProviderOptions
}

// NewMeteoBlue создает провайдера MeteoBlue
func NewMeteoBlue(apiKey string, opts ProviderOptions) *MeteoBlue {
	return &MeteoBlue{apiKey: apiKey, opts: opts.withDefaults(meteoBlueURL)}
}

// Name имя провайдера
func (p *MeteoBlue) Name() string {
	return ProviderMeteoBlue
}

func (p *MeteoBlue) requestURL(lat, lon float64) string {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("apikey", p.apiKey)
	q.Set("format", "json")
	q.Set("timezone", p.opts.Location.String())
	q.Set("windspeed", "kmh")
	q.Set("temperature", "C")
	q.Set("winddirection", "degree")
	q.Set("precipitationamount", "mm")
	return p.opts.BaseURL + "?" + q.Encode()
}

// Fetch загружает 15-минутный прогноз с часовыми дополнениями
func (p *MeteoBlue) Fetch(ctx context.Context, lat, lon float64) (*models.ForecastSeries, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("meteoblue: %w", ErrMissingAPIKey)
	}

	doc, err := doGet(ctx, p.opts.Client, "MeteoBlue", p.requestURL(lat, lon))
	if err != nil {
		return nil, err
	}

	xmin := doc.Get("data_xmin")
	xhour := doc.Get("data_1h")

	times, raw, err := parseTimes(xmin.Get("time"), p.opts.Location)
	if err != nil {
		return nil, fmt.Errorf("meteoblue: %w", err)
	}
	if len(times) == 0 {
		return nil, fmt.Errorf("meteoblue: %w", ErrEmptySeries)
	}

	hourTimes := xhour.Get("time")
	return &models.ForecastSeries{
		Provider:      ProviderMeteoBlue,
		Lat:           lat,
		Lon:           lon,
		Times:         times,
		TempC:         values(xmin.Get("temperature")),
		FeltTempC:     values(xmin.Get("felttemperature")),
		WindGustsKmh:  values(xmin.Get("gust")),
		WindSpeedKmh:  values(xmin.Get("windspeed")),
		WindFromDeg:   values(xmin.Get("winddirection")),
		PrecipMmHr:    trailingHourSum(values(xmin.Get("precipitation"))),
		PrecipProb:    mapHourly(raw, hourTimes, values(xhour.Get("precipitation_probability"))),
		CloudCover:    values(xmin.Get("totalcloudcover")),
		CloudCoverLow: values(xmin.Get("lowclouds")),
		IsDay:         mapHourly(raw, hourTimes, values(xhour.Get("isdaylight"))),
		Pictocode:     mapHourly(raw, hourTimes, values(xhour.Get("pictocode"))),
	}, nil
}
