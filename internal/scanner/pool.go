// internal/scanner/pool.go
// Bounded worker pool probing every port of a range on one host

package scanner

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"time"

	"github.com/aspnmy/recon_reporter/internal/models"
	"github.com/aspnmy/recon_reporter/pkg/logger"
	"github.com/aspnmy/recon_reporter/pkg/portrange"
	"github.com/aspnmy/recon_reporter/pkg/ratelimit"
)

// PoolConfig holds worker pool configuration
type PoolConfig struct {
	Workers   int
	RateLimit int // dials per second, <= 0 means unlimited
}

// Pool fans port probes out to a fixed number of workers
type Pool struct {
	prober  Prober
	limiter *ratelimit.Limiter
	workers int
}

// NewPool creates a worker pool around prober
func NewPool(prober Prober, cfg PoolConfig) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 200
	}
	return &Pool{
		prober:  prober,
		limiter: ratelimit.New(ratelimit.Config{Rate: cfg.RateLimit}),
		workers: workers,
	}
}

// Scan probes every port in r and returns a channel that yields exactly one
// result per port, then closes. Once ctx ends the remaining ports are reported
// as PortUnknown without being dialed.
func (p *Pool) Scan(ctx context.Context, addr netip.Addr, r portrange.Range) (<-chan models.ProbeResult, error) {
	if !addr.IsValid() {
		return nil, ErrInvalidAddress
	}
	if err := r.Validate(); err != nil {
		return nil, &ScannerError{Message: "invalid port range", Cause: err}
	}

	workers := p.workers
	if workers > r.Count() {
		workers = r.Count()
	}

	ports := make(chan int, workers*4)
	results := make(chan models.ProbeResult, workers*2)

	// Feed every port; workers decide whether to dial or abandon
	go func() {
		defer close(ports)
		it := r.Iter()
		for {
			port, ok := it.Next()
			if !ok {
				return
			}
			ports <- port
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go p.worker(ctx, &wg, addr, ports, results)
	}

	go func() {
		wg.Wait()
		close(results)
		p.logFinished(addr)
	}()

	logger.Debug("Probe pool started",
		logger.String("address", addr.String()),
		logger.String("ports", r.String()),
		logger.Int("workers", workers),
	)

	return results, nil
}

// worker processes ports from the input channel
func (p *Pool) worker(ctx context.Context, wg *sync.WaitGroup, addr netip.Addr, ports <-chan int, results chan<- models.ProbeResult) {
	defer wg.Done()

	for port := range ports {
		results <- p.probe(ctx, addr, port)
	}
}

func (p *Pool) probe(ctx context.Context, addr netip.Addr, port int) models.ProbeResult {
	if ctx.Err() != nil {
		return models.ProbeResult{Port: port, State: models.PortUnknown}
	}

	if err := p.limiter.Wait(ctx); err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			logger.Debug("Rate limiter wait failed", logger.Int("port", port), logger.Err(err))
		}
		return models.ProbeResult{Port: port, State: models.PortUnknown}
	}

	start := time.Now()
	state := p.prober.Probe(ctx, netip.AddrPortFrom(addr, uint16(port)))
	return models.ProbeResult{
		Port:    port,
		State:   state,
		Latency: time.Since(start),
	}
}

func (p *Pool) logFinished(addr netip.Addr) {
	stats := p.limiter.GetStats()
	fields := []logger.Field{
		logger.String("address", addr.String()),
		logger.Int64("dials", stats.TotalRequests),
		logger.Int64("throttled", stats.FailedRequests),
	}
	if !p.limiter.Unlimited() {
		fields = append(fields, logger.Float64("rate", p.limiter.GetRate()))
	}
	logger.Debug("Probe pool finished", fields...)
}

// Close releases the pool's rate limiter
func (p *Pool) Close() error {
	p.limiter.Stop()
	return nil
}
