// internal/core/config_test.go
// Unit tests for configuration layering and validation

package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.Scan.PortMin)
	assert.Equal(t, 9999, cfg.Scan.PortMax)
	assert.Equal(t, time.Second, cfg.Scan.Timeout)
	assert.Equal(t, 200, cfg.Scan.Workers)
	assert.Equal(t, 1, cfg.OS.Count)
	assert.Equal(t, "nmap", cfg.Service.Engine)
	assert.Equal(t, 1, cfg.Service.Concurrency)
	assert.Equal(t, "telegram", cfg.Notify.Kind)
	assert.Equal(t, "https://api.telegram.org", cfg.Notify.Telegram.APIURL)
	assert.Equal(t, "Markdown", cfg.Notify.Telegram.ParseMode)
	assert.False(t, cfg.History.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_Layering(t *testing.T) {
	path := writeConfig(t, `
scan:
  workers: 50
  timeout: 2s
service:
  engine: banner
notify:
  telegram:
    chat_id: "file-chat"
`)

	t.Setenv("RECON_SCAN__WORKERS", "75")
	t.Setenv("RECON_NOTIFY__TELEGRAM__TOKEN", "env-token")

	cfg, err := Load(path, map[string]any{
		"scan.timeout": 3 * time.Second,
	})
	require.NoError(t, err)

	// env beats file
	assert.Equal(t, 75, cfg.Scan.Workers)
	// flag beats file
	assert.Equal(t, 3*time.Second, cfg.Scan.Timeout)
	// file beats defaults
	assert.Equal(t, "banner", cfg.Service.Engine)
	assert.Equal(t, "file-chat", cfg.Notify.Telegram.ChatID)
	assert.Equal(t, "env-token", cfg.Notify.Telegram.Token)
	// untouched defaults survive
	assert.Equal(t, 9999, cfg.Scan.PortMax)
}

func TestLoad_FlagBeatsEnv(t *testing.T) {
	t.Setenv("RECON_SERVICE__ENGINE", "banner")

	cfg, err := Load("", map[string]any{"service.engine": "nmap"})
	require.NoError(t, err)
	assert.Equal(t, "nmap", cfg.Service.Engine)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "reversed ports", mutate: func(c *Config) { c.Scan.PortMin, c.Scan.PortMax = 100, 10 }, wantErr: true},
		{name: "port zero", mutate: func(c *Config) { c.Scan.PortMin = 0 }, wantErr: true},
		{name: "port too large", mutate: func(c *Config) { c.Scan.PortMax = 70000 }, wantErr: true},
		{name: "full range", mutate: func(c *Config) { c.Scan.PortMax = 65535 }},
		{name: "timeout too small", mutate: func(c *Config) { c.Scan.Timeout = time.Millisecond }, wantErr: true},
		{name: "timeout too large", mutate: func(c *Config) { c.Scan.Timeout = time.Hour }, wantErr: true},
		{name: "negative deadline", mutate: func(c *Config) { c.Scan.Deadline = -time.Second }, wantErr: true},
		{name: "zero workers", mutate: func(c *Config) { c.Scan.Workers = 0 }, wantErr: true},
		{name: "too many workers", mutate: func(c *Config) { c.Scan.Workers = 20000 }, wantErr: true},
		{name: "os count zero", mutate: func(c *Config) { c.OS.Count = 0 }, wantErr: true},
		{name: "unknown engine", mutate: func(c *Config) { c.Service.Engine = "zmap" }, wantErr: true},
		{name: "long service timeout", mutate: func(c *Config) { c.Service.Timeout = 20 * time.Minute }},
		{name: "unknown notify kind", mutate: func(c *Config) { c.Notify.Kind = "slack" }, wantErr: true},
		{name: "history without db", mutate: func(c *Config) { c.History.Enabled = true; c.History.DB = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := Validate(&cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Redacted(t *testing.T) {
	cfg := Default()
	cfg.Notify.Telegram.Token = "123456:secret"
	cfg.Notify.Email.Pass = "hunter2"

	out, err := cfg.Redacted()
	require.NoError(t, err)

	notify, ok := out["notify"].(map[string]any)
	require.True(t, ok, "notify section missing: %v", out)
	telegram := notify["telegram"].(map[string]any)
	email := notify["email"].(map[string]any)

	assert.Equal(t, redacted, telegram["token"])
	assert.Equal(t, redacted, email["pass"])

	scan := out["scan"].(map[string]any)
	assert.Equal(t, "1s", scan["timeout"])

	// original left intact
	assert.Equal(t, "123456:secret", cfg.Notify.Telegram.Token)
}
