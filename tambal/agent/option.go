package agent

import (
	"time"
)

const (
	defaultAttemptTimeout = 120 * time.Second
	defaultRateLimitDelay = 2 * time.Second
)

type options struct {
	timeout        time.Duration
	rateLimitDelay time.Duration
	rps            float64
}

type OptionFunc func(o *options)

// bound every candidate attempt, reasoning models can take long.
func WithAttemptTimeout(d time.Duration) OptionFunc {
	return func(o *options) {
		o.timeout = d
	}
}

// pause before the next candidate after a 429.
func WithRateLimitDelay(d time.Duration) OptionFunc {
	return func(o *options) {
		o.rateLimitDelay = d
	}
}

// pace outbound requests, zero disables pacing.
func WithRequestsPerSecond(rps float64) OptionFunc {
	return func(o *options) {
		o.rps = rps
	}
}
