// Package client provides the HTTP client for Mastodon-compatible instances
// with client-side pacing, shared rate limit tracking, an entity cache and
// error classification. Timeline and list routes return pagination pages;
// streaming routes return stream readers.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/fediverse-client/pkg/cache"
	"github.com/Sternrassler/fediverse-client/pkg/pagination"
	"github.com/Sternrassler/fediverse-client/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Client talks to one instance. It is safe for concurrent use.
type Client struct {
	base        *url.URL
	streaming   *url.URL
	httpClient  *http.Client
	auth        Authenticator
	userAgent   string
	limiter     *rate.Limiter
	rateLimiter *ratelimit.Tracker
	cache       *cache.Manager
	retry       retryPolicy
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the instance root, e.g. "https://social.example".
	BaseURL string

	// StreamingURL overrides the streaming host. Empty uses BaseURL; see
	// Instance().URLs.StreamingAPI for the advertised one.
	StreamingURL string

	// User-Agent header (REQUIRED)
	// Format: "AppName/Version (+https://app.example)"
	UserAgent string

	// Auth attaches credentials. Nil means Unauthenticated.
	Auth Authenticator

	// HTTPClient replaces the default transport. Its Timeout is left alone.
	HTTPClient *http.Client
	Timeout    time.Duration

	// Client-side pacing. Zero RequestsPerSecond disables it.
	RequestsPerSecond float64
	Burst             int

	// Retry
	MaxRetries     int
	InitialBackoff time.Duration

	// Redis is optional. It shares rate limit state between processes and
	// enables the entity cache.
	Redis *redis.Client

	// RateLimitThreshold blocks requests while fewer than this many remain
	// in the current window.
	RateLimitThreshold int
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, userAgent string) Config {
	return Config{
		BaseURL:            baseURL,
		UserAgent:          userAgent,
		Timeout:            30 * time.Second,
		RequestsPerSecond:  1,
		Burst:              10,
		MaxRetries:         2,
		InitialBackoff:     1 * time.Second,
		RateLimitThreshold: ratelimit.RemainingThresholdCritical,
	}
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || !base.IsAbs() || base.Host == "" {
		return nil, fmt.Errorf("base URL must be absolute (got %q)", cfg.BaseURL)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.RequestsPerSecond < 0 {
		return nil, fmt.Errorf("requests_per_second must be >= 0 (got %v)", cfg.RequestsPerSecond)
	}

	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.MaxRetries)
	}

	if cfg.RateLimitThreshold < 0 {
		return nil, fmt.Errorf("rate_limit_threshold must be >= 0 (got %d)", cfg.RateLimitThreshold)
	}

	streaming := base
	if cfg.StreamingURL != "" {
		streaming, err = url.Parse(strings.TrimRight(cfg.StreamingURL, "/"))
		if err != nil || !streaming.IsAbs() || streaming.Host == "" {
			return nil, fmt.Errorf("streaming URL must be absolute (got %q)", cfg.StreamingURL)
		}
	}

	auth := cfg.Auth
	if auth == nil {
		auth = Unauthenticated{}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	logger := log.With().
		Str("component", "client").
		Str("instance", base.Host).
		Logger()

	rateLimiter := ratelimit.NewTracker(cfg.Redis, base.Host,
		log.With().Str("component", "ratelimit").Logger())
	if cfg.RateLimitThreshold > 0 {
		th := rateLimiter.Thresholds()
		th.Critical = cfg.RateLimitThreshold
		if th.Warning < th.Critical {
			th.Warning = th.Critical
		}
		rateLimiter.SetThresholds(th)
	}

	var cacheManager *cache.Manager
	if cfg.Redis != nil {
		cacheManager = cache.NewManager(cfg.Redis)
	}

	return &Client{
		base:        base,
		streaming:   streaming,
		httpClient:  httpClient,
		auth:        auth,
		userAgent:   cfg.UserAgent,
		limiter:     limiter,
		rateLimiter: rateLimiter,
		cache:       cacheManager,
		retry: retryPolicy{
			maxAttempts:    cfg.MaxRetries + 1,
			initialBackoff: cfg.InitialBackoff,
		},
		config: cfg,
		logger: logger,
	}, nil
}

// Send performs an HTTP request with credentials, pacing, rate limit
// tracking and retries. Responses with a 4xx status are returned as they
// are so callers can decode the API error body; 429, 5xx and transport
// failures are retried and surface as *HTTPError once exhausted.
//
// Send implements pagination.Sender.
func (c *Client) Send(ctx context.Context, req *http.Request) (*http.Response, error) {
	route := routeLabel(req.URL.Path)

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(route).Observe(time.Since(startTime).Seconds())
	}()

	if err := c.auth.AttachCredentials(req); err != nil {
		return nil, fmt.Errorf("attach credentials: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrContextCancelled, err)
		}
	}

	allowed, err := c.rateLimiter.ShouldAllowRequest(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("Rate limit check failed")
		return nil, fmt.Errorf("rate limit check: %w", err)
	}
	if !allowed {
		c.logger.Warn().
			Str("route", route).
			Msg("Request blocked by rate limiter")
		requestsTotal.WithLabelValues(route, "rate_limited").Inc()
		return nil, &HTTPError{
			StatusCode: http.StatusTooManyRequests,
			ErrorClass: ErrorClassRateLimit,
			Message:    "blocked until the rate limit window resets",
			Err:        ErrRateLimited,
		}
	}

	c.logger.Debug().
		Str("url", req.URL.String()).
		Str("method", req.Method).
		Msg("Executing request")

	var resp *http.Response
	var errClass ErrorClass

	retryErr := retryWithBackoff(ctx, c.retry, func() error {
		attempt := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return err
			}
			attempt.Body = body
		}

		var reqErr error
		resp, reqErr = c.httpClient.Do(attempt)
		if reqErr != nil {
			resp = nil
			errClass = ErrorClassNetwork
			if ctx.Err() != nil {
				// Not worth retrying once the caller gave up.
				errClass = ErrorClassClient
			}
			c.logger.Error().Err(reqErr).Str("route", route).Msg("HTTP request failed")
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			requestsTotal.WithLabelValues(route, "network_error").Inc()
			return reqErr
		}

		if err := c.rateLimiter.UpdateFromHeaders(ctx, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}

		status := strconv.Itoa(resp.StatusCode)
		requestsTotal.WithLabelValues(route, status).Inc()

		errClass = classifyStatus(resp.StatusCode)
		if errClass == "" {
			return nil
		}

		errorsTotal.WithLabelValues(string(errClass)).Inc()
		c.logger.Warn().
			Str("route", route).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("Request error")

		if !shouldRetry(errClass) {
			// Let the caller read the API error body.
			return nil
		}

		drainAndClose(resp.Body)
		err := &HTTPError{
			StatusCode: resp.StatusCode,
			ErrorClass: errClass,
			Message:    resp.Status,
		}
		resp = nil
		return err
	}, func(error) ErrorClass {
		return errClass
	})

	if retryErr != nil {
		if resp != nil {
			drainAndClose(resp.Body)
		}
		return nil, retryErr
	}

	return resp, nil
}

// Share returns a sender for a page that outlives the caller's borrow.
// Clients are safe for concurrent use, so the copy shares the transport,
// limiter and rate limit state.
func (c *Client) Share() pagination.Sender {
	shared := *c
	return &shared
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// BaseURL returns the instance root.
func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

// RateLimitState returns the last known rate limit state for the instance.
func (c *Client) RateLimitState(ctx context.Context) (*ratelimit.RateLimitState, error) {
	return c.rateLimiter.GetState(ctx)
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// GetCache returns the cache manager, nil without Redis (for testing).
func (c *Client) GetCache() *cache.Manager {
	return c.cache
}

// newRequest builds a GET against the instance.
func (c *Client) newRequest(ctx context.Context, path string, query url.Values) (*http.Request, error) {
	u := c.base.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

// Get performs a GET request against a path of the instance.
func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	req, err := c.newRequest(ctx, path, nil)
	if err != nil {
		return nil, err
	}
	return c.Send(ctx, req)
}

func drainAndClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
	_ = body.Close()
}

var numericSegment = regexp.MustCompile(`^[0-9]+$`)

// routeLabel reduces a path to a bounded metric label: numeric ids become
// ":id" and hashtag names become ":tag".
func routeLabel(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, seg := range segments {
		switch {
		case numericSegment.MatchString(seg):
			segments[i] = ":id"
		case i > 0 && segments[i-1] == "tag":
			segments[i] = ":tag"
		}
	}
	return "/" + strings.Join(segments, "/")
}
