// Package ratelimit gates outgoing fetch requests. It combines a steady
// requests-per-second budget with a shared cooldown that is armed whenever the
// remote service answers with a Retry-After header.
package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// DefaultMaxPause caps how long a single Retry-After header can stall requests.
const DefaultMaxPause = 60 * time.Second

var (
	rateLimitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "batchfetch_rate_limit_wait_seconds",
		Help:    "Time requests spent waiting on the rate limiter",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	})

	rateLimitPausesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "batchfetch_rate_limit_pauses_total",
		Help: "Total number of cooldowns armed from Retry-After headers",
	})
)

// Config holds limiter settings. A zero RPS disables the steady budget.
type Config struct {
	RPS      float64       `mapstructure:"rps"`
	Burst    int           `mapstructure:"burst"`
	MaxPause time.Duration `mapstructure:"max_pause"`
}

// Limiter is safe for concurrent use. A nil *Limiter never blocks.
type Limiter struct {
	limiter  *rate.Limiter
	maxPause time.Duration
	logger   zerolog.Logger

	mu          sync.Mutex
	pausedUntil time.Time
	now         func() time.Time
}

// New creates a limiter from cfg.
func New(cfg Config, logger zerolog.Logger) *Limiter {
	l := &Limiter{
		maxPause: cfg.MaxPause,
		logger:   logger,
		now:      time.Now,
	}
	if l.maxPause <= 0 {
		l.maxPause = DefaultMaxPause
	}
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		l.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}
	return l
}

// Wait blocks until a request may be sent or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}

	start := time.Now()
	defer func() {
		rateLimitWaitSeconds.Observe(time.Since(start).Seconds())
	}()

	if pause := l.PausedFor(); pause > 0 {
		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if l.limiter == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}

// PausedFor returns the remaining cooldown, or 0.
func (l *Limiter) PausedFor() time.Duration {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	d := l.pausedUntil.Sub(l.now())
	if d < 0 {
		return 0
	}
	return d
}

// UpdateFromResponse arms the shared cooldown when a 429 or 503 response
// carries a Retry-After header. Other responses are ignored.
func (l *Limiter) UpdateFromResponse(status int, headers http.Header) {
	if l == nil {
		return
	}
	if status != http.StatusTooManyRequests && status != http.StatusServiceUnavailable {
		return
	}

	now := l.now()
	wait, ok := parseRetryAfter(headers.Get("Retry-After"), now, l.maxPause)
	if !ok || wait <= 0 {
		return
	}

	l.mu.Lock()
	until := now.Add(wait)
	armed := until.After(l.pausedUntil)
	if armed {
		l.pausedUntil = until
	}
	l.mu.Unlock()

	if armed {
		rateLimitPausesTotal.Inc()
		l.logger.Warn().
			Int("status", status).
			Dur("pause", wait).
			Msg("Remote asked to back off - pausing requests")
	}
}

// parseRetryAfter accepts delta-seconds or an HTTP date. The result is
// clamped to limit; seconds are clamped before converting to a Duration.
func parseRetryAfter(v string, now time.Time, limit time.Duration) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil || errors.Is(err, strconv.ErrRange) {
		if secs < 0 {
			return 0, false
		}
		if secs > int64(limit/time.Second) {
			return limit, true
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(v); err == nil {
		wait := at.Sub(now)
		if wait > limit {
			wait = limit
		}
		return wait, true
	}
	return 0, false
}
