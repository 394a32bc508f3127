/*
Package weather implements a client for the OpenWeatherMap current weather
and 5 day / 3 hour forecast endpoints.
*/
package weather

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	client "github.com/mutablelogic/go-client"

	"github.com/Jules02/NLQ-Agent/internal/domain"
)

const (
	DefaultEndpoint = "https://api.openweathermap.org/data/2.5"
	DefaultUnits    = "metric"

	// TimestampLayout is the format of forecast dt_txt values.
	TimestampLayout = "2006-01-02 15:04:05"
)

var ErrMissingAPIKey = errors.New("weather api key is required")

// ProviderError is a failed or unusable response from the weather service.
type ProviderError struct {
	Op       string
	Location string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s for %s: %v", e.Op, e.Location, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Provider is what the leave planner needs from a weather service.
type Provider interface {
	Current(ctx context.Context, location string) (*domain.CurrentWeather, error)
	Forecast(ctx context.Context, location string) ([]domain.ForecastSample, error)
}

type Client struct {
	*client.Client
	apiKey string
	units  string
}

var _ Provider = (*Client)(nil)

// New returns a client for endpoint, or DefaultEndpoint when empty.
func New(endpoint, apiKey string, opts ...client.ClientOpt) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	opts = append(opts, client.OptEndpoint(endpoint))
	c, err := client.New(opts...)
	if err != nil {
		return nil, err
	}
	return &Client{Client: c, apiKey: apiKey, units: DefaultUnits}, nil
}

type mainBlock struct {
	Temp    *float64 `json:"temp"`
	TempMax *float64 `json:"temp_max"`
}

type currentResponse struct {
	Name string    `json:"name"`
	Main mainBlock `json:"main"`
}

type forecastResponse struct {
	List []struct {
		DtTxt string    `json:"dt_txt"`
		Main  mainBlock `json:"main"`
	} `json:"list"`
	City struct {
		Name string `json:"name"`
	} `json:"city"`
}

// Current returns the current temperature for a "City,CountryCode" location.
func (c *Client) Current(ctx context.Context, location string) (*domain.CurrentWeather, error) {
	var response currentResponse
	if err := c.DoWithContext(ctx, nil, &response, client.OptPath("weather"), client.OptQuery(c.query(location))); err != nil {
		return nil, &ProviderError{Op: "current weather", Location: location, Err: err}
	}
	if response.Main.Temp == nil {
		return nil, &ProviderError{Op: "current weather", Location: location, Err: errors.New("response has no temperature")}
	}
	return &domain.CurrentWeather{
		Location:     location,
		City:         response.Name,
		TemperatureC: *response.Main.Temp,
	}, nil
}

// Forecast returns the 3-hourly samples for location. Each sample prefers
// temp_max, then temp, then 0.
func (c *Client) Forecast(ctx context.Context, location string) ([]domain.ForecastSample, error) {
	var response forecastResponse
	if err := c.DoWithContext(ctx, nil, &response, client.OptPath("forecast"), client.OptQuery(c.query(location))); err != nil {
		return nil, &ProviderError{Op: "forecast", Location: location, Err: err}
	}
	samples := make([]domain.ForecastSample, 0, len(response.List))
	for _, item := range response.List {
		ts, err := time.Parse(TimestampLayout, item.DtTxt)
		if err != nil {
			return nil, &ProviderError{Op: "forecast", Location: location, Err: fmt.Errorf("bad timestamp %q: %w", item.DtTxt, err)}
		}
		samples = append(samples, domain.ForecastSample{Timestamp: ts, TemperatureC: sampleTemperature(item.Main)})
	}
	return samples, nil
}

func (c *Client) query(location string) url.Values {
	return url.Values{
		"q":     {strings.TrimSpace(location)},
		"units": {c.units},
		"appid": {c.apiKey},
	}
}

func sampleTemperature(m mainBlock) float64 {
	switch {
	case m.TempMax != nil:
		return *m.TempMax
	case m.Temp != nil:
		return *m.Temp
	default:
		return 0
	}
}
