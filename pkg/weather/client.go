package weather

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/embedops/flashgate/pkg/config"
	"github.com/embedops/flashgate/pkg/metrics"
)

// ErrUpstreamBusy is returned when the outbound limiter has no budget left;
// callers translate it into a 502 like any other upstream failure.
var ErrUpstreamBusy = fmt.Errorf("upstream request budget exhausted")

// Forecast is the normalized forecast payload.
type Forecast struct {
	TempC     float64 `json:"tempC"`
	TempF     float64 `json:"tempF"`
	WindSpeed float64 `json:"windSpeed"`
	Code      int     `json:"code"`
}

// Match is one normalized geocoding hit.
type Match struct {
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Country string  `json:"country,omitempty"`
}

// Client wraps the upstream HTTP APIs. All calls share one token bucket so a
// burst of frontend requests cannot hammer the third party.
type Client struct {
	http     *resty.Client
	cfg      config.Weather
	upstream *rate.Limiter
}

func NewClient(cfg config.Weather) *Client {
	return &Client{
		http:     resty.New().SetTimeout(cfg.Timeout.Std()),
		cfg:      cfg,
		upstream: rate.NewLimiter(rate.Limit(cfg.UpstreamRate), cfg.UpstreamBurst),
	}
}

type forecastResponse struct {
	CurrentWeather struct {
		Temperature float64 `json:"temperature"`
		WindSpeed   float64 `json:"windspeed"`
		WeatherCode int     `json:"weathercode"`
	} `json:"current_weather"`
}

// Forecast fetches current conditions for the coordinates.
func (c *Client) Forecast(ctx context.Context, lat, lon float64) (*Forecast, error) {
	if !c.upstream.Allow() {
		metrics.UpstreamRequests.WithLabelValues("forecast", "throttled").Inc()
		return nil, ErrUpstreamBusy
	}

	var body forecastResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"latitude":        fmt.Sprintf("%.4f", lat),
			"longitude":       fmt.Sprintf("%.4f", lon),
			"current_weather": "true",
		}).
		SetResult(&body).
		Get(c.cfg.ForecastBaseURL + "/forecast")
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues("forecast", "error").Inc()
		return nil, fmt.Errorf("forecast request: %w", err)
	}
	if resp.IsError() {
		metrics.UpstreamRequests.WithLabelValues("forecast", "error").Inc()
		return nil, fmt.Errorf("forecast upstream returned %s", resp.Status())
	}

	metrics.UpstreamRequests.WithLabelValues("forecast", "success").Inc()
	tempC := body.CurrentWeather.Temperature
	return &Forecast{
		TempC:     tempC,
		TempF:     tempC*9/5 + 32,
		WindSpeed: body.CurrentWeather.WindSpeed,
		Code:      body.CurrentWeather.WeatherCode,
	}, nil
}

type geocodeResponse struct {
	Results []struct {
		Name      string  `json:"name"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Country   string  `json:"country"`
	} `json:"results"`
}

// Geocode resolves a place-name query into coordinate matches.
func (c *Client) Geocode(ctx context.Context, query string, limit int, lang string) ([]Match, error) {
	if !c.upstream.Allow() {
		metrics.UpstreamRequests.WithLabelValues("geocode", "throttled").Inc()
		return nil, ErrUpstreamBusy
	}
	if limit <= 0 || limit > 20 {
		limit = 5
	}
	if lang == "" {
		lang = "en"
	}

	var body geocodeResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"name":     query,
			"count":    fmt.Sprintf("%d", limit),
			"language": lang,
		}).
		SetResult(&body).
		Get(c.cfg.GeocodeBaseURL + "/search")
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues("geocode", "error").Inc()
		return nil, fmt.Errorf("geocode request: %w", err)
	}
	if resp.IsError() {
		metrics.UpstreamRequests.WithLabelValues("geocode", "error").Inc()
		return nil, fmt.Errorf("geocode upstream returned %s", resp.Status())
	}

	metrics.UpstreamRequests.WithLabelValues("geocode", "success").Inc()
	matches := make([]Match, 0, len(body.Results))
	for _, r := range body.Results {
		matches = append(matches, Match{
			Name:    r.Name,
			Lat:     r.Latitude,
			Lon:     r.Longitude,
			Country: r.Country,
		})
	}
	return matches, nil
}
