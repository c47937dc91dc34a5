package vatsim

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// Client implements the Source interface for the VATSIM v3 data feed.
// The feed is refreshed upstream every 15 seconds and is not rate limited for
// single polls, but 429 responses are still surfaced as RateLimitError.
type Client struct {
	// feedURL is the full URL of vatsim-data.json
	feedURL string

	// httpClient is the HTTP client used for feed requests
	httpClient *http.Client

	// userAgent identifies this client to the network
	userAgent string
}

// NewClient creates a feed client. feedURL should be DefaultFeedURL
// (or a test server URL); timeout bounds a single request.
func NewClient(feedURL string, timeout time.Duration) *Client {
	if feedURL == "" {
		feedURL = DefaultFeedURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		feedURL: feedURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		userAgent: "vatscope/1.0",
	}
}

// FetchSnapshot performs exactly one GET of the feed.
func (c *Client) FetchSnapshot(ctx context.Context) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.feedURL, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to build feed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return Snapshot{}, &RateLimitError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header),
			Message:    "Rate limit exceeded",
			Headers:    extractRateLimitHeaders(resp.Header),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Snapshot{}, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var feed feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return Snapshot{}, fmt.Errorf("failed to parse feed: %w", err)
	}

	return Snapshot{
		Pilots:      dropBlankCallsigns(feed.Pilots),
		Controllers: feed.Controllers,
		FetchedAt:   time.Now().UTC(),
	}, nil
}

// feedResponse is the subset of vatsim-data.json this client reads.
// Missing arrays decode as nil and are treated as empty.
type feedResponse struct {
	General struct {
		Version     int    `json:"version"`
		UpdateTime  string `json:"update_timestamp"`
		ConnectedNo int    `json:"connected_clients"`
	} `json:"general"`
	Pilots      []Pilot      `json:"pilots"`
	Controllers []Controller `json:"controllers"`
}

// dropBlankCallsigns filters pilots without a key; they cannot be reconciled.
func dropBlankCallsigns(pilots []Pilot) []Pilot {
	out := pilots[:0]
	for _, p := range pilots {
		if p.Callsign == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// StatusError is returned for any non-2xx, non-429 feed response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("feed returned status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("feed returned status %d", e.StatusCode)
}

// RateLimitError represents an HTTP 429 rate limit error with retry information.
type RateLimitError struct {
	StatusCode int
	RetryAfter time.Duration
	Message    string
	Headers    RateLimitHeaders
}

// RateLimitHeaders contains rate limit information from response headers.
type RateLimitHeaders struct {
	Limit     int       // X-Rate-Limit-Limit: Maximum requests allowed
	Remaining int       // X-Rate-Limit-Remaining: Requests remaining in current window
	Reset     time.Time // X-Rate-Limit-Reset: When the rate limit resets
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %v)", e.Message, e.RetryAfter)
	}
	return e.Message
}

// IsRateLimitError checks if an error is a rate limit error.
func IsRateLimitError(err error) (*RateLimitError, bool) {
	if rle, ok := err.(*RateLimitError); ok {
		return rle, true
	}
	return nil, false
}

// parseRetryAfter extracts the Retry-After header value.
// Supports both delay-seconds (integer) and HTTP-date formats.
func parseRetryAfter(headers http.Header) time.Duration {
	retryAfter := headers.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	if retryTime, err := http.ParseTime(retryAfter); err == nil {
		if d := time.Until(retryTime); d > 0 {
			return d
		}
	}

	return 0
}

// extractRateLimitHeaders reads the X-Rate-Limit-* (or X-RateLimit-*) headers.
// Unset numeric values are reported as -1.
func extractRateLimitHeaders(headers http.Header) RateLimitHeaders {
	rlh := RateLimitHeaders{
		Limit:     -1,
		Remaining: -1,
	}

	if v, ok := firstIntHeader(headers, "X-Rate-Limit-Limit", "X-RateLimit-Limit"); ok {
		rlh.Limit = v
	}
	if v, ok := firstIntHeader(headers, "X-Rate-Limit-Remaining", "X-RateLimit-Remaining"); ok {
		rlh.Remaining = v
	}
	if v, ok := firstIntHeader(headers, "X-Rate-Limit-Reset", "X-RateLimit-Reset"); ok {
		rlh.Reset = time.Unix(int64(v), 0)
	}

	return rlh
}

func firstIntHeader(headers http.Header, names ...string) (int, bool) {
	for _, name := range names {
		raw := headers.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return 0, false
		}
		return v, true
	}
	return 0, false
}
