// cmd/recon/root.go
// Root command: scan one target and report

package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/aspnmy/recon_reporter/internal/app"
	"github.com/aspnmy/recon_reporter/internal/core"
	"github.com/aspnmy/recon_reporter/internal/history"
	"github.com/aspnmy/recon_reporter/internal/models"
	"github.com/aspnmy/recon_reporter/internal/notify"
	"github.com/aspnmy/recon_reporter/internal/osdetect"
	"github.com/aspnmy/recon_reporter/internal/output"
	"github.com/aspnmy/recon_reporter/internal/scanner"
	"github.com/aspnmy/recon_reporter/internal/service"
	"github.com/aspnmy/recon_reporter/internal/target"
	"github.com/aspnmy/recon_reporter/pkg/logger"
	"github.com/aspnmy/recon_reporter/pkg/portrange"
)

const dnsTimeout = 5 * time.Second

type rootOptions struct {
	configFile string
	verbose    bool
	ports      string
	timeout    time.Duration
	workers    int
	deadline   time.Duration
	engine     string
	notify     string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "recon <target>",
		Short: "Scan one host and deliver a port/service report",
		Long: `Resolve a host, probe a TCP port range, guess the OS family from the
ICMP TTL, identify services on open ports and deliver a fixed-layout report.

Configuration priority: defaults < config file < RECON_* env < flags.`,
		Example: `  recon scanme.example
  recon 192.0.2.10 --ports 1-1024 --notify none
  RECON_NOTIFY__TELEGRAM__TOKEN=... RECON_NOTIFY__TELEGRAM__CHAT_ID=... recon 10.0.0.5`,
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			// past this point failures are runtime, not usage
			cmd.SilenceUsage = true
			defer logger.Sync() //nolint:errcheck

			return runScan(cmd, cfg, args[0])
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "Config file path (YAML)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output (debug level)")

	cmd.Flags().StringVar(&opts.ports, "ports", portrange.Default.String(), "Port range to probe (N or N-M)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", time.Second, "Per-port connect timeout")
	cmd.Flags().IntVar(&opts.workers, "workers", 200, "Concurrent probes")
	cmd.Flags().DurationVar(&opts.deadline, "deadline", 0, "Overall probing deadline (0 = none)")
	cmd.Flags().StringVar(&opts.engine, "engine", "nmap", "Service detection engine (nmap, banner)")
	cmd.Flags().StringVar(&opts.notify, "notify", "telegram", "Report destination (telegram, email, none)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newConfigCmd(opts))
	cmd.AddCommand(newHistoryCmd(opts))

	return cmd
}

// setup loads the effective config and initializes logging
func setup(cmd *cobra.Command, opts *rootOptions) (*core.Config, error) {
	overrides, err := flagOverrides(cmd.Flags())
	if err != nil {
		return nil, err
	}

	cfg, err := core.Load(opts.configFile, overrides)
	if err != nil {
		return nil, err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

// flagOverrides maps explicitly set flags to koanf keys. Flags left at
// their defaults do not shadow file or env values.
func flagOverrides(fs *pflag.FlagSet) (map[string]any, error) {
	overrides := map[string]any{}
	changed := func(name string) bool {
		f := fs.Lookup(name)
		return f != nil && f.Changed
	}

	if changed("ports") {
		spec, _ := fs.GetString("ports")
		r, err := portrange.Parse(spec)
		if err != nil {
			return nil, fmt.Errorf("invalid --ports: %w", err)
		}
		overrides["scan.port_min"] = r.First
		overrides["scan.port_max"] = r.Last
	}
	if changed("timeout") {
		d, _ := fs.GetDuration("timeout")
		overrides["scan.timeout"] = d
	}
	if changed("workers") {
		n, _ := fs.GetInt("workers")
		overrides["scan.workers"] = n
	}
	if changed("deadline") {
		d, _ := fs.GetDuration("deadline")
		overrides["scan.deadline"] = d
	}
	if changed("engine") {
		s, _ := fs.GetString("engine")
		overrides["service.engine"] = s
	}
	if changed("notify") {
		s, _ := fs.GetString("notify")
		overrides["notify.kind"] = s
	}
	if changed("verbose") {
		if v, _ := fs.GetBool("verbose"); v {
			overrides["log.level"] = "debug"
		}
	}

	return overrides, nil
}

func runScan(cmd *cobra.Command, cfg *core.Config, rawTarget string) error {
	deps, cleanup, err := buildDependencies(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer cleanup()

	scannerApp := app.NewScannerApp(deps)
	defer func() {
		if err := scannerApp.Close(); err != nil {
			logger.Warn("Failed to close outputs", logger.Err(err))
		}
	}()

	return scannerApp.Run(cmd.Context(), models.ScanTarget(rawTarget), cmd.OutOrStdout())
}

// buildDependencies builds all dependencies for the scanner app.
// The returned cleanup releases the rate limiters.
func buildDependencies(cfg *core.Config, summary io.Writer) (app.ScannerDeps, func(), error) {
	pool := scanner.NewPool(
		scanner.NewTCPProber(cfg.Scan.Timeout),
		scanner.PoolConfig{Workers: cfg.Scan.Workers, RateLimit: cfg.Scan.RateLimit},
	)

	classifier := osdetect.NewClassifier(osdetect.NewICMPPinger(osdetect.PingerConfig{
		Count:      cfg.OS.Count,
		Timeout:    cfg.OS.Timeout,
		Privileged: cfg.OS.Privileged,
	}))

	detector, err := service.Get(cfg.Service.Engine, service.EngineConfig{
		Timeout:  cfg.Service.Timeout,
		NmapPath: cfg.Service.NmapPath,
	})
	if err != nil {
		pool.Close()
		return app.ScannerDeps{}, nil, fmt.Errorf("failed to create detection engine %q: %w", cfg.Service.Engine, err)
	}
	services := service.NewResolver(detector, service.ResolverConfig{
		Timeout:   cfg.Service.Timeout,
		RateLimit: cfg.Service.RateLimit,
	})

	notifier, err := notify.New(cfg.Notify)
	if err != nil {
		pool.Close()
		services.Close()
		return app.ScannerDeps{}, nil, err
	}

	var sinks []output.Sink
	if cfg.Output.Summary {
		sinks = append(sinks, output.NewConsoleSink(summary))
	}
	if cfg.Output.JSONFile != "" {
		js, err := output.NewJSONSink(cfg.Output.JSONFile)
		if err != nil {
			logger.Warn("JSON output disabled", logger.String("file", cfg.Output.JSONFile), logger.Err(err))
		} else {
			sinks = append(sinks, js)
		}
	}
	if cfg.History.Enabled {
		ledger, err := history.NewLedger(cfg.History)
		if err != nil {
			logger.Warn("Failed to open run history, continuing without it", logger.Err(err))
		} else {
			sinks = append(sinks, ledger)
		}
	}

	cleanup := func() {
		pool.Close()
		services.Close()
	}

	return app.ScannerDeps{
		Config:     cfg,
		Resolver:   target.NewResolver(cfg.DNS.Nameserver, dnsTimeout),
		Scanner:    pool,
		Classifier: classifier,
		Services:   services,
		Notifier:   notifier,
		Sinks:      sinks,
	}, cleanup, nil
}
