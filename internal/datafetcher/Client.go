/*
This file contains the HTTP client for the upstream DLMM data API.

Requests are rate limited, retried with a linear backoff and guarded by a circuit breaker so a
failing upstream is not hammered by every monitor cycle.
*/

package datafetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lpm-labs/dlmm-lpm/internal/logger"
	"github.com/lpm-labs/dlmm-lpm/internal/types"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

var (
	ErrNotFound     = errors.New("resource not found")
	errClientStatus = errors.New("client error status")
)

const (
	DefaultMaxRetries = 3
	DefaultTimeout    = 15 * time.Second
	maxBodyBytes      = 8 << 20
)

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL           string
	RequestsPerSecond float64       // <= 0 disables rate limiting
	MaxRetries        int           // Attempts per request
	Timeout           time.Duration // Per attempt
	Backoff           time.Duration // Multiplied by the attempt number
	BreakerFailures   uint32        // Consecutive failures that open the breaker
	BreakerCooldown   time.Duration // Time the breaker stays open
	HTTPClient        *http.Client
}

// Client fetches pool, bin, position and price snapshots from the upstream data API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	maxRetries int
	backoff    time.Duration
	logger     zerolog.Logger
	now        func() time.Time
}

// NewClient creates a Client with defaults for unset fields.
func NewClient(cfg ClientConfig) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	log := logger.GetForComponent("data_fetcher")
	failures := cfg.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "dlmm-data-api",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// 4xx answers mean the upstream is alive
			return err == nil || errors.Is(err, errClientStatus)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
	})

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		limiter:    limiter,
		breaker:    breaker,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.Backoff,
		logger:     log,
		now:        time.Now,
	}
}

// getJSON performs a GET with retries and decodes the JSON body into out.
// All failures wrap types.ErrUpstreamFetch.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %s: %w", types.ErrUpstreamFetch, path, err)
		}

		c.logger.Debug().
			Str("path", path).
			Int("attempt", attempt).
			Int("maxRetries", c.maxRetries).
			Msg("Making API request")

		body, err := c.breaker.Execute(func() (interface{}, error) {
			return c.do(ctx, endpoint)
		})
		if err == nil {
			if err := json.Unmarshal(body.([]byte), out); err != nil {
				return fmt.Errorf("%w: %s: invalid JSON: %w", types.ErrUpstreamFetch, path, err)
			}
			return nil
		}

		lastErr = err
		if errors.Is(err, errClientStatus) || errors.Is(err, gobreaker.ErrOpenState) || ctx.Err() != nil {
			break
		}

		c.logger.Warn().
			Err(err).
			Str("path", path).
			Int("attempt", attempt).
			Msg("API request failed, will retry if attempts remain")

		if attempt < c.maxRetries {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %s: %w", types.ErrUpstreamFetch, path, ctx.Err())
			case <-time.After(time.Duration(attempt) * c.backoff):
			}
		}
	}

	c.logger.Error().Err(lastErr).Str("path", path).Msg("API request failed")
	return fmt.Errorf("%w: %s: %w", types.ErrUpstreamFetch, path, lastErr)
}

func (c *Client) do(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %w", errClientStatus, ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, truncate(body))
	default:
		return nil, fmt.Errorf("%w: status %d: %s", errClientStatus, resp.StatusCode, truncate(body))
	}
}

func truncate(body []byte) string {
	const limit = 200
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
