// internal/app/scanner.go
// Application orchestrator: resolve, probe, fingerprint, describe, report

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aspnmy/recon_reporter/internal/core"
	"github.com/aspnmy/recon_reporter/internal/models"
	"github.com/aspnmy/recon_reporter/internal/notify"
	"github.com/aspnmy/recon_reporter/internal/output"
	"github.com/aspnmy/recon_reporter/internal/report"
	"github.com/aspnmy/recon_reporter/pkg/logger"
	"github.com/aspnmy/recon_reporter/pkg/portrange"
)

// ErrTargetResolution is the only fatal runtime failure of a run
var ErrTargetResolution = errors.New("target resolution failed")

// TargetResolver turns the operator-supplied target into an address
type TargetResolver interface {
	Resolve(ctx context.Context, target models.ScanTarget) (netip.Addr, error)
}

// PortScanner probes a port range and yields one result per port
type PortScanner interface {
	Scan(ctx context.Context, addr netip.Addr, r portrange.Range) (<-chan models.ProbeResult, error)
}

// OSClassifier labels the target's OS family, degrading to OSUnknown
type OSClassifier interface {
	Classify(ctx context.Context, addr netip.Addr) models.OSLabel
}

// ServiceResolver produces a descriptor for one open port, never failing
type ServiceResolver interface {
	Resolve(ctx context.Context, host string, port int) string
}

// ScannerApp orchestrates a single run against a single target
type ScannerApp struct {
	config     *core.Config
	resolver   TargetResolver
	scanner    PortScanner
	classifier OSClassifier
	services   ServiceResolver
	notifier   notify.Notifier
	sinks      *output.MultiSink
	now        func() time.Time
}

// ScannerDeps holds dependencies for the scanner app
type ScannerDeps struct {
	Config     *core.Config
	Resolver   TargetResolver
	Scanner    PortScanner
	Classifier OSClassifier
	Services   ServiceResolver
	Notifier   notify.Notifier
	Sinks      []output.Sink

	// Now overrides the clock; defaults to time.Now
	Now func() time.Time
}

// NewScannerApp creates a new scanner application
func NewScannerApp(deps ScannerDeps) *ScannerApp {
	cfg := deps.Config
	if cfg == nil {
		def := core.Default()
		cfg = &def
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notify.Noop{}
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &ScannerApp{
		config:     cfg,
		resolver:   deps.Resolver,
		scanner:    deps.Scanner,
		classifier: deps.Classifier,
		services:   deps.Services,
		notifier:   notifier,
		sinks:      output.NewMultiSink(deps.Sinks...),
		now:        now,
	}
}

// Scan runs every phase except reporting and returns the aggregated result.
// Only a resolution failure or an interrupt during resolution is returned as
// an error.
func (app *ScannerApp) Scan(ctx context.Context, target models.ScanTarget) (*models.ScanResult, error) {
	started := app.now()
	ports := app.config.Scan.Ports()

	logger.Info("Starting scan",
		logger.String("target", target.String()),
		logger.String("ports", ports.String()),
	)

	addr, err := app.resolver.Resolve(ctx, target)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("scan interrupted: %w", ctx.Err())
		}
		return nil, fmt.Errorf("%w: %w", ErrTargetResolution, err)
	}

	result := &models.ScanResult{
		ID:        uuid.NewString(),
		Target:    target,
		Address:   addr,
		OS:        models.OSUnknown,
		StartedAt: started,
	}

	probeCtx, cancel := app.probeContext(ctx)
	defer cancel()

	// OS classification runs beside the probe phase
	var (
		g         errgroup.Group
		open      []int
		abandoned int
	)
	g.Go(func() error {
		result.OS = app.classifier.Classify(ctx, addr)
		return nil
	})
	g.Go(func() error {
		results, err := app.scanner.Scan(probeCtx, addr, ports)
		if err != nil {
			return err
		}
		// single aggregation point
		for r := range results {
			if !ports.Contains(r.Port) {
				logger.Warn("Discarding result outside the port range",
					logger.Int("port", r.Port),
					logger.String("ports", ports.String()),
				)
				continue
			}
			switch r.State {
			case models.PortOpen:
				open = append(open, r.Port)
			case models.PortUnknown:
				abandoned++
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("probe phase failed: %w", err)
	}

	sort.Ints(open)
	result.Abandoned = abandoned

	if abandoned > 0 {
		logger.Warn("Probes abandoned before completion",
			logger.String("target", target.String()),
			logger.Int("abandoned", abandoned),
			logger.Int("total", ports.Count()),
		)
	}

	result.Findings = app.describe(ctx, addr, open)

	result.CompletedAt = app.now()
	result.Duration = result.CompletedAt.Sub(started).Truncate(time.Second)

	logger.Info("Scan finished",
		logger.String("target", target.String()),
		logger.String("address", addr.String()),
		logger.Ints("open_ports", open),
		logger.String("os", string(result.OS)),
		logger.Duration("duration", result.Duration),
	)
	return result, nil
}

// describe resolves services for open ports with bounded concurrency.
// Each call writes its own slot so the ascending order survives.
func (app *ScannerApp) describe(ctx context.Context, addr netip.Addr, open []int) []models.PortFinding {
	findings := make([]models.PortFinding, len(open))
	if len(open) == 0 {
		return findings
	}

	limit := app.config.Service.Concurrency
	if limit <= 0 {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)
	host := addr.String()
	for i, port := range open {
		i, port := i, port
		g.Go(func() error {
			findings[i] = models.PortFinding{
				Port:    port,
				Service: app.services.Resolve(ctx, host, port),
			}
			return nil
		})
	}
	_ = g.Wait()

	return findings
}

func (app *ScannerApp) probeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := app.config.Scan.Deadline; d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

// Run performs a scan, prints the report to stdout, delivers it and feeds
// the local sinks. Delivery and sink failures are logged, not returned.
func (app *ScannerApp) Run(ctx context.Context, target models.ScanTarget, stdout io.Writer) error {
	result, err := app.Scan(ctx, target)
	if err != nil {
		return err
	}

	text := report.Format(result)
	if _, err := fmt.Fprintln(stdout, text); err != nil {
		logger.Error("Failed to print report", logger.Err(err))
	}

	delivery := app.deliver(ctx, text)

	// MultiSink logs each failing sink itself
	_ = app.sinks.Write(result, delivery)

	return nil
}

func (app *ScannerApp) deliver(ctx context.Context, text string) models.DeliveryStatus {
	if app.notifier.Kind() == (notify.Noop{}).Kind() {
		return models.DeliverySkipped
	}

	logger.Info("Sending report", logger.String("notifier", app.notifier.Kind()))

	err := app.notifier.Deliver(ctx, text)
	switch {
	case err == nil:
		logger.Info("Report sent", logger.String("notifier", app.notifier.Kind()))
		return models.DeliverySent
	case ctx.Err() != nil:
		logger.Warn("Report delivery canceled",
			logger.String("notifier", app.notifier.Kind()),
			logger.Err(err),
		)
		return models.DeliveryCanceled
	default:
		logger.Error("Report delivery failed",
			logger.String("notifier", app.notifier.Kind()),
			logger.Err(err),
		)
		return models.DeliveryFailed
	}
}

// Close releases the output sinks
func (app *ScannerApp) Close() error {
	return app.sinks.Close()
}
