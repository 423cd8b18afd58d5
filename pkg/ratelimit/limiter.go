// pkg/ratelimit/limiter.go
// Token bucket rate limiter shared by probe dispatch and service detection

package ratelimit

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/time/rate"
)

// ErrStopped is returned by Wait once Stop has been called
var ErrStopped = errors.New("rate limiter stopped")

// Limiter wraps golang.org/x/time/rate with statistics and a stop switch
type Limiter struct {
	limiter     *rate.Limiter
	currentRate rate.Limit

	done chan struct{}

	stats   Stats
	statsMu sync.Mutex
}

// Stats contains rate limiter statistics
type Stats struct {
	TotalRequests  int64
	FailedRequests int64
	CurrentRate    float64
}

// Config holds rate limiter configuration
type Config struct {
	Rate  int // requests per second, <= 0 means unlimited
	Burst int // defaults to Rate
}

// New creates a new rate limiter
func New(cfg Config) *Limiter {
	r := toLimit(cfg.Rate)

	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.Rate
	}
	if burst <= 0 {
		burst = 1
	}

	return &Limiter{
		limiter:     rate.NewLimiter(r, burst),
		currentRate: r,
		done:        make(chan struct{}),
		stats:       Stats{CurrentRate: float64(r)},
	}
}

// Wait blocks until a token is available, the context ends or the limiter is stopped
func (l *Limiter) Wait(ctx context.Context) error {
	select {
	case <-l.done:
		return ErrStopped
	default:
	}

	err := l.limiter.Wait(ctx)

	l.statsMu.Lock()
	l.stats.TotalRequests++
	if err != nil {
		l.stats.FailedRequests++
	}
	l.statsMu.Unlock()

	return err
}

// GetRate returns current rate
func (l *Limiter) GetRate() float64 {
	return float64(l.currentRate)
}

// Unlimited reports whether the limiter lets every request through
func (l *Limiter) Unlimited() bool {
	return l.currentRate == rate.Inf
}

// GetStats returns current statistics
func (l *Limiter) GetStats() Stats {
	l.statsMu.Lock()
	defer l.statsMu.Unlock()
	return l.stats
}

// Stop makes every later Wait fail with ErrStopped. Safe to call twice.
func (l *Limiter) Stop() {
	select {
	case <-l.done:
		return
	default:
		close(l.done)
	}
}

func toLimit(rps int) rate.Limit {
	if rps <= 0 {
		return rate.Inf
	}
	return rate.Limit(rps)
}
