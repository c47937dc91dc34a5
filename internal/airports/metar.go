package airports

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultMetarURL serves raw METAR text per station.
const DefaultMetarURL = "https://metar.vatsim.net"

// METARClient fetches current METAR text.
type METARClient struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

// NewMETARClient creates a client for baseURL, allowing requestsPerSecond.
func NewMETARClient(baseURL string, timeout time.Duration, requestsPerSecond float64) *METARClient {
	if baseURL == "" {
		baseURL = DefaultMetarURL
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = 5
	}
	return &METARClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: timeout},
		rateLimiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

// METAR returns the METAR for icao, or "" when the station reports none.
func (c *METARClient) METAR(ctx context.Context, icao string) (string, error) {
	icao = normalize(icao)
	if icao == "" {
		return "", nil
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+url.PathEscape(icao), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("METAR error %d", resp.StatusCode)
	}

	return strings.TrimSpace(string(body)), nil
}
