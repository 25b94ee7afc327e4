// Package ratelimit enforces a minimum spacing between outbound calls to a
// single backend. One Limiter instance protects one backend; it is shared by
// every caller of that backend for the lifetime of the process.
package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/seekerlab/deepresearch/internal/metrics"
)

// Limiter spaces calls so that consecutive calls to the same backend are at
// least 1/requestsPerSecond apart. Waiters are released in FIFO order; this
// is a throughput shim, not a mutual-exclusion primitive.
type Limiter struct {
	name   string
	lim    *rate.Limiter
	logger *zap.Logger
}

// New creates a limiter allowing requestsPerSecond calls per second with no
// burst. A non-positive rate defaults to 1 req/s.
func New(name string, requestsPerSecond float64, logger *zap.Logger) *Limiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	return &Limiter{
		name:   name,
		lim:    rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		logger: logger,
	}
}

// Wait suspends the caller until the minimum inter-call interval since the
// previous call has elapsed, or the context is done. It returns immediately
// when enough time has already passed.
func (l *Limiter) Wait(ctx context.Context) error {
	r := l.lim.Reserve()
	delay := r.Delay()
	if delay <= 0 {
		return nil
	}
	l.logger.Debug("rate limiting outbound call",
		zap.String("backend", l.name),
		zap.Duration("wait", delay),
	)
	metrics.RateLimitWaits.Observe(delay.Seconds())
	select {
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}
