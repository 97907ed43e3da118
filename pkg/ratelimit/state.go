// Package ratelimit tracks an instance's request budget and gates requests.
// It reads the X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset
// headers that Mastodon-compatible servers send with every API response.
//
// State lives in Redis when a client is supplied, so that every process
// talking to the same instance shares one budget, and in memory otherwise.
package ratelimit

import (
	"time"
)

// Header names sent by the server.
const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
)

// Redis hash fields of the per-instance state key.
const (
	redisKeyPrefix  = "fedi:rate_limit:"
	fieldLimit      = "limit"
	fieldRemaining  = "remaining"
	fieldResetAt    = "reset_at"
	fieldLastUpdate = "last_update"
)

// Default thresholds for request gating.
const (
	// RemainingThresholdCritical blocks requests when fewer calls than this
	// remain in the window.
	RemainingThresholdCritical = 5

	// RemainingThresholdWarning throttles requests below this many calls.
	RemainingThresholdWarning = 30

	// defaultLimit is assumed before the first response was seen; it is
	// the stock Mastodon budget of 300 calls per five minutes.
	defaultLimit = 300
)

// Thresholds configures when the tracker blocks or throttles.
type Thresholds struct {
	Critical int
	Warning  int
}

// DefaultThresholds returns the default gating thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Critical: RemainingThresholdCritical,
		Warning:  RemainingThresholdWarning,
	}
}

// RateLimitState is the request budget of one instance.
type RateLimitState struct {
	// Limit is the number of calls allowed per window.
	Limit int `json:"limit"`

	// Remaining is the number of calls left in the current window.
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when a response last reported the budget.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when requests are neither blocked nor throttled.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale reports whether the state is older than maxAge.
func (s *RateLimitState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsCriticalBlock reports whether requests must wait for the reset.
// A window that already reset never blocks.
func (s *RateLimitState) NeedsCriticalBlock(th Thresholds) bool {
	return s.Remaining < th.Critical && s.TimeUntilReset() > 0
}

// NeedsThrottling reports whether requests should be slowed down.
func (s *RateLimitState) NeedsThrottling(th Thresholds) bool {
	return s.Remaining < th.Warning && s.TimeUntilReset() > 0 && !s.NeedsCriticalBlock(th)
}

// TimeUntilReset returns the duration until the window resets, or 0 when
// it already has.
func (s *RateLimitState) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth recomputes IsHealthy.
func (s *RateLimitState) UpdateHealth(th Thresholds) {
	s.IsHealthy = !s.NeedsCriticalBlock(th) && !s.NeedsThrottling(th)
}
