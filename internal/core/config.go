// internal/core/config.go
// Configuration management using Koanf
// Layering: struct defaults < YAML file < RECON_ env vars < explicit CLI flags

package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/aspnmy/recon_reporter/pkg/portrange"
)

// EnvPrefix is stripped from environment variables; "__" separates nested keys
const EnvPrefix = "RECON_"

const redacted = "********"

// Config represents the complete application configuration
type Config struct {
	Scan    ScanConfig    `koanf:"scan"`
	OS      OSConfig      `koanf:"os"`
	Service ServiceConfig `koanf:"service"`
	DNS     DNSConfig     `koanf:"dns"`
	Notify  NotifyConfig  `koanf:"notify"`
	Output  OutputConfig  `koanf:"output"`
	History HistoryConfig `koanf:"history"`
	Log     LogConfig     `koanf:"log"`
}

// ScanConfig contains connectivity probe settings
type ScanConfig struct {
	PortMin   int           `koanf:"port_min"`
	PortMax   int           `koanf:"port_max"`
	Timeout   time.Duration `koanf:"timeout"`    // per-port connect timeout
	Workers   int           `koanf:"workers"`    // probes in flight
	RateLimit int           `koanf:"rate_limit"` // dials per second, 0 = unlimited
	Deadline  time.Duration `koanf:"deadline"`   // whole probe phase, 0 = none
}

// Ports returns the configured range
func (s ScanConfig) Ports() portrange.Range {
	return portrange.Range{First: s.PortMin, Last: s.PortMax}
}

// OSConfig contains ICMP fingerprinting settings
type OSConfig struct {
	Count      int           `koanf:"count"`
	Timeout    time.Duration `koanf:"timeout"`
	Privileged bool          `koanf:"privileged"` // raw ip4:icmp instead of udp4 ping sockets
}

// ServiceConfig contains service/version detection settings
type ServiceConfig struct {
	Engine      string        `koanf:"engine"` // nmap, banner
	Timeout     time.Duration `koanf:"timeout"`
	Concurrency int           `koanf:"concurrency"`
	RateLimit   int           `koanf:"rate_limit"`
	NmapPath    string        `koanf:"nmap_path"`
}

// DNSConfig selects how target names are resolved
type DNSConfig struct {
	Nameserver string `koanf:"nameserver"` // host:port, empty = system resolver
}

// NotifyConfig contains report delivery settings
type NotifyConfig struct {
	Kind     string         `koanf:"kind"` // telegram, email, none
	Timeout  time.Duration  `koanf:"timeout"`
	Telegram TelegramConfig `koanf:"telegram"`
	Email    EmailConfig    `koanf:"email"`
}

// TelegramConfig holds Bot API credentials
type TelegramConfig struct {
	APIURL    string `koanf:"api_url"`
	Token     string `koanf:"token"`
	ChatID    string `koanf:"chat_id"`
	ParseMode string `koanf:"parse_mode"`
}

// EmailConfig holds SMTP delivery settings
type EmailConfig struct {
	Host     string   `koanf:"host"`
	Port     int      `koanf:"port"`
	User     string   `koanf:"user"`
	Pass     string   `koanf:"pass"`
	From     string   `koanf:"from"`
	To       []string `koanf:"to"`
	StartTLS bool     `koanf:"starttls"`
}

// OutputConfig contains local output settings
type OutputConfig struct {
	Summary  bool   `koanf:"summary"`   // styled summary on stderr
	JSONFile string `koanf:"json_file"` // ScanResult sidecar
}

// HistoryConfig controls the SQLite run ledger
type HistoryConfig struct {
	Enabled bool   `koanf:"enabled"`
	DB      string `koanf:"db"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json, console
	File   string `koanf:"file"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Scan: ScanConfig{
			PortMin:  portrange.Default.First,
			PortMax:  portrange.Default.Last,
			Timeout:  time.Second,
			Workers:  200,
			Deadline: 0,
		},
		OS: OSConfig{
			Count:   1,
			Timeout: 2 * time.Second,
		},
		Service: ServiceConfig{
			Engine:      "nmap",
			Timeout:     30 * time.Second,
			Concurrency: 1,
		},
		Notify: NotifyConfig{
			Kind:    "telegram",
			Timeout: 10 * time.Second,
			Telegram: TelegramConfig{
				APIURL:    "https://api.telegram.org",
				ParseMode: "Markdown",
			},
			Email: EmailConfig{
				Port:     587,
				StartTLS: true,
			},
		},
		Output: OutputConfig{
			Summary: true,
		},
		History: HistoryConfig{
			DB: "recon_history.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load builds the effective configuration. configPath may be empty;
// overrides holds explicitly set flags keyed by koanf path (e.g. "scan.workers").
func Load(configPath string, overrides map[string]any) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// 3. Environment, e.g. RECON_NOTIFY__TELEGRAM__TOKEN -> notify.telegram.token
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags
	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("failed to load flag overrides: %w", err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate performs validation on a loaded config
func Validate(cfg *Config) error {
	if err := cfg.Scan.Ports().Validate(); err != nil {
		return err
	}

	if err := checkDuration("scan.timeout", cfg.Scan.Timeout, 100*time.Millisecond, 5*time.Minute); err != nil {
		return err
	}
	if cfg.Scan.Deadline < 0 {
		return fmt.Errorf("invalid scan.deadline: %v (must not be negative)", cfg.Scan.Deadline)
	}
	if cfg.Scan.Workers < 1 || cfg.Scan.Workers > 10000 {
		return fmt.Errorf("invalid scan.workers: %d (must be between 1 and 10000)", cfg.Scan.Workers)
	}
	if cfg.Scan.RateLimit < 0 {
		return fmt.Errorf("invalid scan.rate_limit: %d (must not be negative)", cfg.Scan.RateLimit)
	}

	if cfg.OS.Count < 1 || cfg.OS.Count > 10 {
		return fmt.Errorf("invalid os.count: %d (must be between 1 and 10)", cfg.OS.Count)
	}
	if err := checkDuration("os.timeout", cfg.OS.Timeout, 100*time.Millisecond, 5*time.Minute); err != nil {
		return err
	}

	validEngines := map[string]bool{"nmap": true, "banner": true}
	if !validEngines[cfg.Service.Engine] {
		return fmt.Errorf("invalid service.engine: %s (must be nmap or banner)", cfg.Service.Engine)
	}
	if err := checkDuration("service.timeout", cfg.Service.Timeout, 100*time.Millisecond, 30*time.Minute); err != nil {
		return err
	}
	if cfg.Service.Concurrency < 1 || cfg.Service.Concurrency > 64 {
		return fmt.Errorf("invalid service.concurrency: %d (must be between 1 and 64)", cfg.Service.Concurrency)
	}
	if cfg.Service.RateLimit < 0 {
		return fmt.Errorf("invalid service.rate_limit: %d (must not be negative)", cfg.Service.RateLimit)
	}

	validKinds := map[string]bool{"telegram": true, "email": true, "none": true}
	if !validKinds[cfg.Notify.Kind] {
		return fmt.Errorf("invalid notify.kind: %s (must be telegram, email, or none)", cfg.Notify.Kind)
	}
	if err := checkDuration("notify.timeout", cfg.Notify.Timeout, 100*time.Millisecond, 5*time.Minute); err != nil {
		return err
	}

	if cfg.History.Enabled && cfg.History.DB == "" {
		return fmt.Errorf("history.db must be set when history is enabled")
	}

	return nil
}

func checkDuration(key string, d, min, max time.Duration) error {
	if d < min || d > max {
		return fmt.Errorf("invalid %s: %v (must be between %v and %v)", key, d, min, max)
	}
	return nil
}

// Redacted returns the configuration as a nested map with secrets masked
// and durations rendered as strings, ready for YAML output.
func (c *Config) Redacted() (map[string]any, error) {
	clean := *c
	if clean.Notify.Telegram.Token != "" {
		clean.Notify.Telegram.Token = redacted
	}
	if clean.Notify.Email.Pass != "" {
		clean.Notify.Email.Pass = redacted
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(clean, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to flatten config: %w", err)
	}

	out := k.Raw()
	stringifyDurations(out)
	return out, nil
}

func stringifyDurations(m map[string]any) {
	for key, v := range m {
		switch val := v.(type) {
		case time.Duration:
			m[key] = val.String()
		case map[string]any:
			stringifyDurations(val)
		}
	}
}
