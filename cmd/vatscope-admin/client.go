package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/unklstewy/vatscope/internal/server"
)

// errUnauthorized means the session token is missing, expired or rejected.
var errUnauthorized = errors.New("not logged in")

// adminClient talks to the admin endpoints of a vatscope server.
type adminClient struct {
	baseURL    string
	httpClient *http.Client

	mu      sync.Mutex
	token   string
	expires time.Time
}

func newAdminClient(baseURL string, timeout time.Duration) *adminClient {
	return &adminClient{
		baseURL:    strings.TrimRight(baseURL, "/") + "/api/v1/admin",
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Login exchanges the admin password for a session token.
func (c *adminClient) Login(ctx context.Context, password string) error {
	body, err := json.Marshal(map[string]string{"password": password})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/login", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := c.do(req, &out); err != nil {
		if errors.Is(err, errUnauthorized) {
			return errors.New("wrong password")
		}
		return err
	}

	c.mu.Lock()
	c.token, c.expires = out.Token, out.ExpiresAt
	c.mu.Unlock()
	return nil
}

// LoggedIn reports whether an unexpired token is held.
func (c *adminClient) LoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token != "" && time.Now().Before(c.expires)
}

// Logout forgets the token.
func (c *adminClient) Logout() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// Stats fetches the dashboard. errUnauthorized is returned when the
// session has ended.
func (c *adminClient) Stats(ctx context.Context) (server.AdminStats, error) {
	var out server.AdminStats

	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token == "" {
		return out, errUnauthorized
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/stats", nil)
	if err != nil {
		return out, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	if err := c.do(req, &out); err != nil {
		if errors.Is(err, errUnauthorized) {
			c.Logout()
		}
		return out, err
	}
	return out, nil
}

func (c *adminClient) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return errors.New("admin API is disabled on this server")
	case resp.StatusCode == http.StatusTooManyRequests:
		return errors.New("too many attempts, try again later")
	case resp.StatusCode != http.StatusOK:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
