// Package apiclient fetches payloads from the association's HTTP API.
package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/alpinn/mirrorbot/internal/config"
	"github.com/alpinn/mirrorbot/internal/payload"
	"github.com/rs/zerolog"
)

// maxBodyBytes caps response reads so a misbehaving endpoint cannot exhaust
// memory.
const maxBodyBytes = 4 * 1024 * 1024

// APIError is a typed failure from the upstream API.
type APIError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("api error %d: %s (retry after %s)", e.StatusCode, e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Client performs authenticated GETs against the endpoint catalog.
// The base URL can be swapped at runtime, so it sits behind a mutex: the
// scheduler fetches from its own goroutine while commands mutate it.
type Client struct {
	httpClient *http.Client
	apiKey     string
	logger     zerolog.Logger

	mu      sync.RWMutex
	baseURL string
}

// NewClient creates a Client from the API configuration.
func NewClient(cfg config.APIConfig, logger zerolog.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = time.Duration(config.DefaultAPITimeoutSecs) * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		logger:     logger.With().Str("component", "APIClient").Logger(),
	}
}

// SetBaseURL replaces the API base URL at runtime.
func (c *Client) SetBaseURL(baseURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = strings.TrimRight(baseURL, "/")
}

// BaseURL returns the current API base URL.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// Fetch performs one authenticated GET against the named endpoint and
// decodes the JSON payload. Non-JSON success bodies are wrapped as
// {"raw": <text>} so downstream rendering still has something to show.
func (c *Client) Fetch(ctx context.Context, endpoint string, params map[string]string) (payload.Value, error) {
	spec, err := config.EndpointByName(endpoint)
	if err != nil {
		return nil, err
	}

	requestURL := c.BaseURL() + spec.Path
	if len(params) > 0 {
		query := url.Values{}
		for key, value := range params {
			query.Set(key, value)
		}
		requestURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for endpoint %q: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to endpoint %q failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response from endpoint %q: %w", endpoint, err)
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Int("bytes", len(body)).
		Msg("Fetched endpoint")

	if resp.StatusCode >= 400 {
		return nil, c.statusError(resp, body)
	}

	var decoded payload.Value
	if err := json.Unmarshal(body, &decoded); err != nil {
		return map[string]any{"raw": string(body)}, nil
	}
	return decoded, nil
}

// statusError maps an error response to a typed APIError.
func (c *Client) statusError(resp *http.Response, body []byte) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		apiErr.Message = "invalid or missing API key"
	case http.StatusForbidden:
		apiErr.Message = "access blocked by the API"
	case http.StatusTooManyRequests:
		apiErr.Message = "rate limited by the API"
		apiErr.RetryAfter = extractRetryAfter(resp.Header, body)
	default:
		apiErr.Message = http.StatusText(resp.StatusCode)
	}

	if message := bodyMessage(body); message != "" {
		apiErr.Message = message
	}
	return apiErr
}

// bodyMessage pulls a human-readable message out of an error response body.
func bodyMessage(body []byte) string {
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return ""
	}
	for _, key := range []string{"message", "error", "detail"} {
		switch value := decoded[key].(type) {
		case string:
			if strings.TrimSpace(value) != "" {
				return strings.TrimSpace(value)
			}
		case map[string]any:
			if inner, ok := value["message"].(string); ok && strings.TrimSpace(inner) != "" {
				return strings.TrimSpace(inner)
			}
		}
	}
	return ""
}
