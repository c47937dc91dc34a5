package airports

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/unklstewy/vatscope/internal/metrics"
	"github.com/unklstewy/vatscope/pkg/geo"
)

const (
	// DefaultAPIURL is the VATSIM public API base.
	DefaultAPIURL = "https://api.vatsim.net/api"

	// DefaultTimeout for airport requests
	DefaultTimeout = 5 * time.Second

	breakerName = "airport-api"
)

// APIConfig configures an APIClient.
type APIConfig struct {
	BaseURL           string
	RequestsPerSecond float64
	Burst             int
	CacheSize         int
	Timeout           time.Duration

	// BreakerFailures is the number of consecutive failures that opens the circuit.
	BreakerFailures uint32

	// BreakerTimeout is how long the circuit stays open before probing again.
	BreakerTimeout time.Duration
}

// APIClient resolves airports through the VATSIM airport API.
//
// Requests are throttled by a token bucket and wrapped in a circuit breaker.
// Successful answers are cached; misses and failures are not.
type APIClient struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	breaker     *gobreaker.CircuitBreaker[geo.Point]
	cache       *lru.Cache[string, geo.Point]
	log         zerolog.Logger
}

// NewAPIClient creates a client. Zero fields take defaults.
func NewAPIClient(cfg APIConfig, log zerolog.Logger) (*APIClient, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultAPIURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 2
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 2048
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}

	cache, err := lru.New[string, geo.Point](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create airport cache: %w", err)
	}

	c := &APIClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		cache:       cache,
		log:         log,
	}

	metrics.AirportBreakerState.Set(stateToFloat(gobreaker.StateClosed))
	failures := cfg.BreakerFailures
	c.breaker = gobreaker.NewCircuitBreaker[geo.Point](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// An unknown airport is a valid answer, not an outage.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrAirportNotFound)
		},
		IsExcluded: func(err error) bool {
			return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state change")
			metrics.AirportBreakerState.Set(stateToFloat(to))
		},
	})

	return c, nil
}

// apiAirport holds the coordinate fields in either response shape.
type apiAirport struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// apiResponse accepts {"data": {...}} as well as a flat object.
type apiResponse struct {
	Data      *apiAirport `json:"data"`
	Latitude  *float64    `json:"latitude"`
	Longitude *float64    `json:"longitude"`
}

// Locate returns the coordinates of icao.
func (c *APIClient) Locate(ctx context.Context, icao string) (geo.Point, error) {
	icao = normalize(icao)
	if icao == "" {
		return geo.Point{}, fmt.Errorf("empty identifier: %w", ErrAirportNotFound)
	}

	if p, ok := c.cache.Get(icao); ok {
		metrics.RecordAirportLookup("cache", nil)
		return p, nil
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return geo.Point{}, fmt.Errorf("rate limiter: %w", err)
	}

	p, err := c.breaker.Execute(func() (geo.Point, error) {
		return c.fetch(ctx, icao)
	})
	metrics.RecordAirportLookup("api", err)
	if err != nil {
		return geo.Point{}, err
	}

	c.cache.Add(icao, p)
	return p, nil
}

func (c *APIClient) fetch(ctx context.Context, icao string) (geo.Point, error) {
	endpoint := fmt.Sprintf("%s/airports/%s", c.baseURL, url.PathEscape(icao))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return geo.Point{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return geo.Point{}, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return geo.Point{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return geo.Point{}, fmt.Errorf("api %s: %w", icao, ErrAirportNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return geo.Point{}, fmt.Errorf("API error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out apiResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return geo.Point{}, fmt.Errorf("parse response: %w", err)
	}

	fields := apiAirport{Latitude: out.Latitude, Longitude: out.Longitude}
	if out.Data != nil && out.Data.Latitude != nil && out.Data.Longitude != nil {
		fields = *out.Data
	}
	if fields.Latitude == nil || fields.Longitude == nil {
		return geo.Point{}, fmt.Errorf("api %s: no coordinates: %w", icao, ErrAirportNotFound)
	}

	return geo.Point{Latitude: *fields.Latitude, Longitude: *fields.Longitude}, nil
}

// BreakerState reports the circuit state (closed, half-open, open).
func (c *APIClient) BreakerState() string {
	return c.breaker.State().String()
}

// CacheLen is the number of cached airports.
func (c *APIClient) CacheLen() int {
	return c.cache.Len()
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
