package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"weather-etl-pipeline/internal/weather"
)

// OpenMeteoClient fetches hourly forecasts for one coordinate pair per
// request from the Open-Meteo forecast API. No API key is required.
type OpenMeteoClient struct {
	baseURL       string
	fields        []string
	forecastHours int
	timezone      string
	httpCfg       httpConfig
	circuit       *gobreaker.CircuitBreaker
}

// NewOpenMeteoClient builds a client requesting the given hourly fields.
// The http.Client carries the fixed per-request timeout.
func NewOpenMeteoClient(client *http.Client, baseURL string, fields []string, forecastHours int, timezone string) *OpenMeteoClient {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openmeteo",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &OpenMeteoClient{
		baseURL:       baseURL,
		fields:        fields,
		forecastHours: forecastHours,
		timezone:      timezone,
		httpCfg: httpConfig{
			Client: client,
			// Whole-run retries belong to the scheduler.
			Backoff: backoffConfig{MaxRetries: 0},
		},
		circuit: cb,
	}
}

// Upstream hourly field names the point builder reads.
const (
	fieldTemperature = "temperature_2m"
	fieldHumidity    = "relative_humidity_2m"
	fieldWeatherCode = "weather_code"
	fieldWindSpeed   = "wind_speed_10m"
)

// FetchHourly requests one city's hourly forecast and decodes the parallel
// arrays into points, translating weather codes into labels. Unequal array
// lengths are a format error for that city.
func (c *OpenMeteoClient) FetchHourly(ctx context.Context, city weather.City) (weather.CityForecast, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", strconv.FormatFloat(city.Lat, 'f', 4, 64))
		values.Set("longitude", strconv.FormatFloat(city.Lon, 'f', 4, 64))
		values.Set("hourly", strings.Join(c.fields, ","))
		values.Set("temperature_unit", "celsius")
		values.Set("wind_speed_unit", "kmh")
		values.Set("forecast_hours", strconv.Itoa(c.forecastHours))
		values.Set("timezone", c.timezone)

		u := fmt.Sprintf("%s?%s", c.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequest(ctx, c.httpCfg, c.circuit, buildRequest)
	if err != nil {
		return weather.CityForecast{}, err
	}
	defer resp.Body.Close()

	var payload struct {
		Hourly map[string]json.RawMessage `json:"hourly"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return weather.CityForecast{}, fmt.Errorf("decode response: %w", err)
	}

	var times []string
	if err := decodeArray(payload.Hourly, "time", &times); err != nil {
		return weather.CityForecast{}, err
	}

	series := make(map[string][]float64, len(c.fields))
	for _, field := range c.fields {
		var vals []float64
		if err := decodeArray(payload.Hourly, field, &vals); err != nil {
			return weather.CityForecast{}, err
		}
		if len(vals) != len(times) {
			return weather.CityForecast{}, fmt.Errorf(
				"misaligned hourly arrays: %s has %d values, time has %d", field, len(vals), len(times))
		}
		series[field] = vals
	}

	for _, field := range []string{fieldTemperature, fieldHumidity, fieldWeatherCode, fieldWindSpeed} {
		if _, ok := series[field]; !ok {
			return weather.CityForecast{}, fmt.Errorf("hourly field %q not requested; cannot build records", field)
		}
	}

	points := make([]weather.HourlyPoint, 0, len(times))
	for i := range times {
		points = append(points, weather.HourlyPoint{
			Time:         times[i],
			TemperatureC: series[fieldTemperature][i],
			HumidityPct:  series[fieldHumidity][i],
			Conditions:   weather.DecodeWeatherCode(int(series[fieldWeatherCode][i])),
			WindSpeedKmh: series[fieldWindSpeed][i],
		})
	}

	return weather.CityForecast{City: city.Name, Hourly: points}, nil
}

func decodeArray[T any](hourly map[string]json.RawMessage, key string, dst *[]T) error {
	raw, ok := hourly[key]
	if !ok {
		return fmt.Errorf("hourly response missing %q array", key)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode hourly %q: %w", key, err)
	}
	return nil
}
