// Package resilience provides request-quota enforcement for remote model
// calls.
//
// The central type is [RateLimiter], a sliding-window limiter that also keeps
// a minimum spacing between admissions. It is built for free-tier model quotas
// where exceeding the per-minute budget costs a full minute of lockout, so it
// waits conservatively (a buffer past the window edge) rather than
// optimistically.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/medscribe/internal/observe"
)

const (
	defaultMaxRequests = 12
	defaultMinInterval = 5 * time.Second
	defaultBuffer      = time.Second
	defaultWindow      = time.Minute
)

// RateLimiterOption is a functional option for [NewRateLimiter].
type RateLimiterOption func(*RateLimiter)

// WithName sets the label used in log messages and metrics. Default: "model".
func WithName(name string) RateLimiterOption {
	return func(l *RateLimiter) {
		l.name = name
	}
}

// WithMaxRequests sets the number of admissions allowed in any trailing
// window. Values below 1 are ignored. Default: 12.
func WithMaxRequests(n int) RateLimiterOption {
	return func(l *RateLimiter) {
		if n >= 1 {
			l.maxRequests = n
		}
	}
}

// WithMinInterval sets the minimum spacing between two admissions. Zero
// disables spacing. Default: 5s.
func WithMinInterval(d time.Duration) RateLimiterOption {
	return func(l *RateLimiter) {
		l.minInterval = max(d, 0)
	}
}

// WithBuffer sets the extra wait added past the window edge when the window
// is full. Default: 1s.
func WithBuffer(d time.Duration) RateLimiterOption {
	return func(l *RateLimiter) {
		l.buffer = max(d, 0)
	}
}

// WithWindow sets the sliding window length. Non-positive values are
// ignored. Default: 60s.
func WithWindow(d time.Duration) RateLimiterOption {
	return func(l *RateLimiter) {
		if d > 0 {
			l.window = d
		}
	}
}

// WithClock replaces the time source and the context-aware sleep used while
// waiting. Tests pass a virtual clock so waits complete instantly.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) RateLimiterOption {
	return func(l *RateLimiter) {
		if now != nil {
			l.now = now
		}
		if sleep != nil {
			l.sleep = sleep
		}
	}
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) RateLimiterOption {
	return func(l *RateLimiter) {
		l.metrics = m
	}
}

// RateStatus is a point-in-time view of a [RateLimiter].
type RateStatus struct {
	// InLastWindow is the number of admissions in the trailing window.
	InLastWindow int `json:"in_last_window"`

	// Max is the configured window capacity.
	Max int `json:"max"`

	// Remaining is Max minus InLastWindow, never negative.
	Remaining int `json:"remaining"`

	// SinceLast is the time elapsed since the most recent admission. Only
	// meaningful when HasLast is true.
	SinceLast time.Duration `json:"since_last"`

	// HasLast reports whether any admission was ever recorded.
	HasLast bool `json:"has_last"`
}

// RateLimiter admits requests so that no trailing window ever holds more than
// the configured maximum and no two admissions are closer than the minimum
// interval. Admitted timestamps are never removed early: a request that later
// fails still counts against the quota.
type RateLimiter struct {
	name        string
	maxRequests int
	minInterval time.Duration
	buffer      time.Duration
	window      time.Duration

	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	metrics *observe.Metrics

	mu sync.Mutex
	// stamps holds admission times in ascending order. Entries older than
	// the window are purged lazily.
	stamps []time.Time
	last   time.Time
}

// NewRateLimiter returns a RateLimiter with the given options applied over
// the defaults (12 requests per 60s window, 5s spacing, 1s buffer).
func NewRateLimiter(opts ...RateLimiterOption) *RateLimiter {
	l := &RateLimiter{
		name:        "model",
		maxRequests: defaultMaxRequests,
		minInterval: defaultMinInterval,
		buffer:      defaultBuffer,
		window:      defaultWindow,
		now:         time.Now,
		sleep:       sleepContext,
	}
	for _, o := range opts {
		o(l)
	}
	if l.metrics == nil {
		l.metrics = observe.DefaultMetrics()
	}
	return l
}

// Admit blocks until the caller may issue one request and records the
// admission. Each wait is followed by a fresh check, so concurrent callers
// that wake together still respect both limits. If ctx ends first, Admit
// returns ctx.Err() and nothing is recorded.
func (l *RateLimiter) Admit(ctx context.Context) error {
	var waited time.Duration
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		l.mu.Lock()
		now := l.now()
		l.purgeLocked(now)

		var (
			wait   time.Duration
			reason string
		)
		switch {
		case len(l.stamps) >= l.maxRequests:
			wait = l.window - now.Sub(l.stamps[0]) + l.buffer
			reason = "window_full"
		case !l.last.IsZero() && now.Sub(l.last) < l.minInterval:
			wait = l.minInterval - now.Sub(l.last)
			reason = "min_interval"
		default:
			l.stamps = append(l.stamps, now)
			l.last = now
			inWindow := len(l.stamps)
			l.mu.Unlock()

			l.metrics.RateLimitWait.Record(ctx, waited.Seconds(),
				metric.WithAttributes(observe.Attr("limiter", l.name)))
			slog.Debug("rate limiter: admitted",
				"limiter", l.name,
				"in_window", inWindow,
				"max", l.maxRequests,
				"waited", waited,
			)
			return nil
		}
		l.mu.Unlock()

		slog.Info("rate limiter: waiting for slot",
			"limiter", l.name,
			"reason", reason,
			"wait", wait,
		)
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
		waited += wait
	}
}

// Status reports the current window occupancy.
func (l *RateLimiter) Status() RateStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.purgeLocked(now)

	st := RateStatus{
		InLastWindow: len(l.stamps),
		Max:          l.maxRequests,
		Remaining:    max(l.maxRequests-len(l.stamps), 0),
	}
	if !l.last.IsZero() {
		st.HasLast = true
		st.SinceLast = now.Sub(l.last)
	}
	return st
}

// Len returns the number of admissions in the trailing window.
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.purgeLocked(l.now())
	return len(l.stamps)
}

// purgeLocked drops admissions whose age is at least the window. The caller
// must hold mu.
func (l *RateLimiter) purgeLocked(now time.Time) {
	i := 0
	for i < len(l.stamps) && now.Sub(l.stamps[i]) >= l.window {
		i++
	}
	if i > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[i:]...)
	}
}

// sleepContext waits for d or until ctx ends.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
