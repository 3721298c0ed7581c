// Package tmdb implements the metadata fetcher for the TMDB movie API:
// rate-limited lookups, bounded backoff retry on 429, and projection of the
// upstream document down to the cached field set.
package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/12v/tmdbc/pkg/ratelimit"
)

// Prometheus metrics for TMDB requests.
var (
	tmdbRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tmdb_requests_total",
		Help: "Total TMDB requests by status",
	}, []string{"status"})

	tmdbRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tmdb_request_duration_seconds",
		Help:    "TMDB lookup duration in seconds, including retries and backoff",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 60, 300},
	})

	tmdbRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tmdb_retries_total",
		Help: "Total number of retry attempts after rate-limited responses",
	})

	tmdbRetryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tmdb_retry_exhausted_total",
		Help: "Total number of lookups abandoned after exhausting the retry schedule",
	})
)

// Config holds the client configuration.
type Config struct {
	// BaseURL of the TMDB API, e.g. "https://api.themoviedb.org/3".
	BaseURL string

	// APIKey is the api_key query parameter value (REQUIRED).
	APIKey string

	// Timeout per HTTP request.
	Timeout time.Duration

	// Retry is the backoff schedule applied on 429 responses.
	Retry RetryConfig
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(apiKey string) Config {
	return Config{
		BaseURL: "https://api.themoviedb.org/3",
		APIKey:  apiKey,
		Timeout: 10 * time.Second,
		Retry:   DefaultRetryConfig(),
	}
}

// Client is the TMDB metadata fetcher.
type Client struct {
	httpClient  *http.Client
	rateLimiter *ratelimit.Limiter
	config      Config
	logger      zerolog.Logger
}

// New creates a new TMDB client.
func New(cfg Config, limiter *ratelimit.Limiter) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.themoviedb.org/3"
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	logger := log.With().Str("component", "tmdb-client").Logger()

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimiter: limiter,
		config:      cfg,
		logger:      logger,
	}, nil
}

// FetchMovie returns the projected record for id, or nil when the upstream
// document is absent. Not-found, unrecoverable transport errors, and an
// exhausted retry schedule all yield (nil, nil); the caller skips the unit
// and moves on. A non-nil error means the context was cancelled.
func (c *Client) FetchMovie(ctx context.Context, id int) (*Movie, error) {
	startTime := time.Now()
	defer func() {
		tmdbRequestDuration.Observe(time.Since(startTime).Seconds())
	}()

	var movie *Movie
	attempt := 0

	operation := func() error {
		attempt++
		if attempt > 1 {
			tmdbRetriesTotal.Inc()
		}

		m, err := c.fetchOnce(ctx, id)
		if err == nil {
			movie = m
			return nil
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && shouldRetry(apiErr.Class) {
			c.logger.Warn().
				Int("movie_id", id).
				Int("attempt", attempt).
				Msg("TMDB rate limited - backing off before retry")
			return err
		}

		return backoff.Permanent(err)
	}

	err := backoff.Retry(operation, c.config.Retry.newBackOff(ctx))
	if err == nil {
		if attempt > 1 {
			c.logger.Info().
				Int("movie_id", id).
				Int("attempt", attempt).
				Msg("Lookup succeeded after retry")
		}
		return movie, nil
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Class {
		case ErrorClassNotFound:
			c.logger.Debug().Int("movie_id", id).Msg("Movie not found")
		case ErrorClassRateLimit:
			tmdbRetryExhaustedTotal.Inc()
			c.logger.Warn().
				Int("movie_id", id).
				Int("attempts", attempt).
				Msg("Retry schedule exhausted - skipping movie")
		default:
			c.logger.Warn().
				Err(apiErr).
				Int("movie_id", id).
				Msg("TMDB request failed - skipping movie")
		}
		return nil, nil
	}

	c.logger.Warn().
		Err(err).
		Int("movie_id", id).
		Msg("TMDB request failed - skipping movie")
	return nil, nil
}

// fetchOnce performs a single rate-limited lookup.
func (c *Client) fetchOnce(ctx context.Context, id int) (*Movie, error) {
	if err := c.rateLimiter.Allow(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/movie/%d?api_key=%s",
		c.config.BaseURL, id, url.QueryEscape(c.config.APIKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		tmdbRequestsTotal.WithLabelValues("network_error").Inc()
		return nil, &APIError{
			Class:   ErrorClassTransport,
			Message: "request failed",
			Err:     err,
		}
	}
	defer resp.Body.Close()

	tmdbRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Class:      classifyStatus(resp.StatusCode),
			Message:    resp.Status,
		}
	}

	var movie Movie
	if err := json.NewDecoder(resp.Body).Decode(&movie); err != nil {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Class:      ErrorClassTransport,
			Message:    "decode response",
			Err:        err,
		}
	}

	return &movie, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
