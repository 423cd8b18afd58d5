// internal/service/resolver.go
// Turns detection results into bounded report descriptors

package service

import (
	"context"
	"errors"
	"time"

	"github.com/aspnmy/recon_reporter/pkg/logger"
	"github.com/aspnmy/recon_reporter/pkg/ratelimit"
)

const (
	// MaxDescriptorRunes bounds the descriptor to the report column width
	MaxDescriptorRunes = 50

	DescriptorUnknown = "service unknown"
	DescriptorFailed  = "version lookup failed"
)

// ResolverConfig holds resolver configuration
type ResolverConfig struct {
	Timeout   time.Duration // per-port detection timeout
	RateLimit int           // detection calls per second, <= 0 means unlimited
}

// Resolver wraps a Detector with timeouts, throttling and degraded descriptors
type Resolver struct {
	detector Detector
	limiter  *ratelimit.Limiter
	timeout  time.Duration
}

// NewResolver creates a resolver around detector
func NewResolver(detector Detector, cfg ResolverConfig) *Resolver {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Resolver{
		detector: detector,
		limiter:  ratelimit.New(ratelimit.Config{Rate: cfg.RateLimit}),
		timeout:  timeout,
	}
}

// Resolve always yields a descriptor; failures never propagate to other ports
func (r *Resolver) Resolve(ctx context.Context, host string, port int) string {
	if err := r.limiter.Wait(ctx); err != nil {
		logger.Warn("Service detection skipped",
			logger.Int("port", port),
			logger.Err(err),
		)
		return DescriptorFailed
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	svc, err := r.detector.Detect(ctx, host, port)
	switch {
	case errors.Is(err, ErrNoMatch):
		logger.Debug("No service match", logger.Int("port", port))
		return DescriptorUnknown
	case err != nil:
		logger.Warn("Service detection failed",
			logger.String("engine", r.detector.Name()),
			logger.Int("port", port),
			logger.Err(err),
		)
		return DescriptorFailed
	}

	desc := svc.Descriptor()
	if desc == "" {
		return DescriptorUnknown
	}
	return Truncate(desc, MaxDescriptorRunes)
}

// Close releases the resolver's rate limiter
func (r *Resolver) Close() error {
	r.limiter.Stop()
	return nil
}

// Truncate cuts s to at most n runes
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
