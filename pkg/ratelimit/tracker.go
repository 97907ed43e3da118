package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	rateLimitRemaining = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fedi_rate_limit_remaining",
		Help: "Calls remaining in the current rate limit window by instance",
	}, []string{"instance"})

	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fedi_rate_limit_blocks_total",
		Help: "Total number of requests blocked because the budget is exhausted",
	})

	rateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fedi_rate_limit_throttles_total",
		Help: "Total number of requests throttled because the budget is low",
	})
)

// throttleDelay is the pause applied to each request in the warning range.
const throttleDelay = time.Second

// Tracker monitors one instance's rate limit and gates requests.
type Tracker struct {
	redis      *redis.Client
	instance   string
	thresholds Thresholds
	logger     zerolog.Logger

	mu    sync.Mutex
	local *RateLimitState
}

// NewTracker creates a tracker for instance (the API host). With a nil
// Redis client the state is kept in memory.
func NewTracker(redisClient *redis.Client, instance string, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:      redisClient,
		instance:   instance,
		thresholds: DefaultThresholds(),
		logger:     logger.With().Str("instance", instance).Logger(),
	}
}

// SetThresholds replaces the gating thresholds.
func (t *Tracker) SetThresholds(th Thresholds) {
	t.thresholds = th
}

// Thresholds returns the gating thresholds.
func (t *Tracker) Thresholds() Thresholds {
	return t.thresholds
}

func (t *Tracker) key() string {
	return redisKeyPrefix + t.instance
}

func defaultState() *RateLimitState {
	now := time.Now()
	return &RateLimitState{
		Limit:      defaultLimit,
		Remaining:  defaultLimit, // assume healthy until a response says otherwise
		ResetAt:    now,
		LastUpdate: now,
		IsHealthy:  true,
	}
}

// GetState returns the current state, or a healthy default when nothing
// has been recorded yet.
func (t *Tracker) GetState(ctx context.Context) (*RateLimitState, error) {
	if t.redis == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.local == nil {
			return defaultState(), nil
		}
		state := *t.local
		state.UpdateHealth(t.thresholds)
		return &state, nil
	}

	fields, err := t.redis.HGetAll(ctx, t.key()).Result()
	if err != nil {
		return nil, fmt.Errorf("get rate limit state: %w", err)
	}
	if len(fields) == 0 {
		t.logger.Debug().Msg("No rate limit state in Redis, returning default healthy state")
		return defaultState(), nil
	}

	state, err := stateFromFields(fields)
	if err != nil {
		return nil, err
	}
	state.UpdateHealth(t.thresholds)
	return state, nil
}

func stateFromFields(fields map[string]string) (*RateLimitState, error) {
	limit, err := strconv.Atoi(fields[fieldLimit])
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", fieldLimit, err)
	}
	remaining, err := strconv.Atoi(fields[fieldRemaining])
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", fieldRemaining, err)
	}
	resetAt, err := strconv.ParseInt(fields[fieldResetAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", fieldResetAt, err)
	}
	lastUpdate, err := strconv.ParseInt(fields[fieldLastUpdate], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", fieldLastUpdate, err)
	}

	return &RateLimitState{
		Limit:      limit,
		Remaining:  remaining,
		ResetAt:    time.UnixMilli(resetAt),
		LastUpdate: time.UnixMilli(lastUpdate),
	}, nil
}

// ParseHeaders reads the rate limit headers. It returns (nil, nil) when the
// response carries no X-RateLimit-Remaining header.
func ParseHeaders(headers http.Header) (*RateLimitState, error) {
	remainStr := headers.Get(HeaderRemaining)
	if remainStr == "" {
		return nil, nil
	}

	remaining, err := strconv.Atoi(remainStr)
	if err != nil {
		return nil, fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}

	limit := defaultLimit
	if limitStr := headers.Get(HeaderLimit); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			return nil, fmt.Errorf("parse %s header: %w", HeaderLimit, err)
		}
	}

	resetStr := headers.Get(HeaderReset)
	if resetStr == "" {
		return nil, errors.New(HeaderReset + " header missing")
	}
	resetAt, err := time.Parse(time.RFC3339Nano, resetStr)
	if err != nil {
		return nil, fmt.Errorf("parse %s header: %w", HeaderReset, err)
	}

	return &RateLimitState{
		Limit:      limit,
		Remaining:  remaining,
		ResetAt:    resetAt,
		LastUpdate: time.Now(),
	}, nil
}

// UpdateFromHeaders records the budget reported by a response.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	state, err := ParseHeaders(headers)
	if err != nil || state == nil {
		return err
	}
	state.UpdateHealth(t.thresholds)

	if t.redis == nil {
		t.mu.Lock()
		t.local = state
		t.mu.Unlock()
	} else {
		pipe := t.redis.TxPipeline()
		pipe.HSet(ctx, t.key(),
			fieldLimit, state.Limit,
			fieldRemaining, state.Remaining,
			fieldResetAt, state.ResetAt.UnixMilli(),
			fieldLastUpdate, state.LastUpdate.UnixMilli(),
		)
		// Keep the key a little past the reset so late readers still see it.
		pipe.ExpireAt(ctx, t.key(), state.ResetAt.Add(time.Minute))
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("store rate limit state in redis: %w", err)
		}
	}

	rateLimitRemaining.WithLabelValues(t.instance).Set(float64(state.Remaining))

	switch {
	case state.NeedsCriticalBlock(t.thresholds):
		t.logger.Error().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Rate limit CRITICAL - requests will be blocked until reset")
	case state.NeedsThrottling(t.thresholds):
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Rate limit WARNING - requests will be throttled")
	default:
		t.logger.Debug().
			Int("limit", state.Limit).
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Rate limit state updated")
	}

	return nil
}

// ShouldAllowRequest reports whether a request may be sent now. It returns
// false when the budget is exhausted and sleeps briefly, honouring ctx,
// when it runs low.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, fmt.Errorf("get rate limit state: %w", err)
	}

	if state.NeedsCriticalBlock(t.thresholds) {
		t.logger.Error().
			Int("remaining", state.Remaining).
			Dur("wait_duration", state.TimeUntilReset()).
			Msg("Rate limit critical - blocking request")

		rateLimitBlocksTotal.Inc()
		return false, nil
	}

	if state.NeedsThrottling(t.thresholds) {
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Msg("Rate limit warning - throttling request")

		rateLimitThrottlesTotal.Inc()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(throttleDelay):
		}
	}

	return true, nil
}
