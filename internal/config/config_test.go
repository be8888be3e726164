package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"log/slog"
)

func TestLoadDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Vendor.URL != defaultVendorURL {
		t.Errorf("expected default vendor URL %q, got %q", defaultVendorURL, cfg.Vendor.URL)
	}
	if cfg.Vendor.Timeout != defaultVendorTimeout {
		t.Errorf("expected default vendor timeout %v, got %v", defaultVendorTimeout, cfg.Vendor.Timeout)
	}
	if cfg.Vendor.MaxRetries != defaultVendorMaxRetries {
		t.Errorf("expected default retries %d, got %d", defaultVendorMaxRetries, cfg.Vendor.MaxRetries)
	}
	if cfg.State.Path != defaultStatePath {
		t.Errorf("expected default state path %q, got %q", defaultStatePath, cfg.State.Path)
	}
	if cfg.State.OnCorrupt != CorruptAbort {
		t.Errorf("expected default corrupt policy %q, got %q", CorruptAbort, cfg.State.OnCorrupt)
	}
	if cfg.Pages.OutputPath != defaultPagesOutput {
		t.Errorf("expected default pages output %q, got %q", defaultPagesOutput, cfg.Pages.OutputPath)
	}
	if cfg.Telegram.Enabled() {
		t.Error("expected telegram delivery disabled without credentials")
	}
	if cfg.Business.Location == nil || cfg.Business.Location.String() != defaultTimezone {
		t.Errorf("expected business location %q, got %v", defaultTimezone, cfg.Business.Location)
	}
	if cfg.Logging.Level != slog.LevelInfo {
		t.Errorf("expected default log level %v, got %v", slog.LevelInfo, cfg.Logging.Level)
	}
	if cfg.Logging.Format != defaultLogFormat {
		t.Errorf("expected default log format %q, got %q", defaultLogFormat, cfg.Logging.Format)
	}
}

func TestLoadWithOverrides(t *testing.T) {
	clearConfigEnv(t)

	overrides := map[string]string{
		"MCD_MCP_URL":            "http://localhost:9000/mcp",
		"MCD_TOKEN":              "secret",
		"VENDOR_TIMEOUT_SECONDS": "5",
		"VENDOR_MAX_RETRIES":     "0",
		"TELEGRAM_BOT_TOKEN":     "123:abc",
		"TELEGRAM_CHAT_ID":       "-1001",
		"GITHUB_PAGES_URL":       "https://example.github.io/coupons",
		"PAGES_OUTPUT":           "public/index.html",
		"STATE_FILE":             "/tmp/state.json",
		"STATE_ON_CORRUPT":       "fresh",
		"METRICS_TEXTFILE":       "/tmp/autoclaim.prom",
		"METRICS_ADDR":           ":9100",
		"BUSINESS_TIMEZONE":      "UTC",
		"LOG_LEVEL":              "debug",
		"LOG_FORMAT":             "text",
	}
	for key, value := range overrides {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Vendor.URL != overrides["MCD_MCP_URL"] {
		t.Errorf("expected vendor URL %q, got %q", overrides["MCD_MCP_URL"], cfg.Vendor.URL)
	}
	if cfg.Vendor.Token != "secret" {
		t.Errorf("expected vendor token to be read, got %q", cfg.Vendor.Token)
	}
	if cfg.Vendor.Timeout != 5*time.Second {
		t.Errorf("expected vendor timeout %v, got %v", 5*time.Second, cfg.Vendor.Timeout)
	}
	if cfg.Vendor.MaxRetries != 0 {
		t.Errorf("expected retries disabled, got %d", cfg.Vendor.MaxRetries)
	}
	if !cfg.Telegram.Enabled() || cfg.Telegram.ChatID != -1001 {
		t.Errorf("expected telegram enabled for chat -1001, got %+v", cfg.Telegram)
	}
	if cfg.Pages.URL != overrides["GITHUB_PAGES_URL"] || cfg.Pages.OutputPath != overrides["PAGES_OUTPUT"] {
		t.Errorf("unexpected pages config %+v", cfg.Pages)
	}
	if cfg.State.Path != overrides["STATE_FILE"] || cfg.State.OnCorrupt != CorruptFresh {
		t.Errorf("unexpected state config %+v", cfg.State)
	}
	if cfg.Metrics.TextfilePath != overrides["METRICS_TEXTFILE"] || cfg.Metrics.Addr != ":9100" {
		t.Errorf("unexpected metrics config %+v", cfg.Metrics)
	}
	if cfg.Business.Location != time.UTC {
		t.Errorf("expected UTC location, got %v", cfg.Business.Location)
	}
	if cfg.Logging.Level != slog.LevelDebug {
		t.Errorf("expected log level %v, got %v", slog.LevelDebug, cfg.Logging.Level)
	}
	if cfg.Logging.Format != overrides["LOG_FORMAT"] {
		t.Errorf("expected log format %q, got %q", overrides["LOG_FORMAT"], cfg.Logging.Format)
	}
}

func TestLoadConfigFileWithEnvPrecedence(t *testing.T) {
	clearConfigEnv(t)

	path := filepath.Join(t.TempDir(), "autoclaim.yaml")
	content := `
log:
  level: warn
vendor:
  url: http://file.example/mcp
  timeout_seconds: 12
  max_retries: 1
state:
  path: data/calendar.json
  on_corrupt: fresh
telegram:
  chat_id: "42"
timezone: UTC
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("STATE_FILE", "override.json")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Logging.Level != slog.LevelWarn {
		t.Errorf("expected file log level warn, got %v", cfg.Logging.Level)
	}
	if cfg.Vendor.URL != "http://file.example/mcp" {
		t.Errorf("expected file vendor URL, got %q", cfg.Vendor.URL)
	}
	if cfg.Vendor.Timeout != 12*time.Second || cfg.Vendor.MaxRetries != 1 {
		t.Errorf("unexpected vendor config from file: %+v", cfg.Vendor)
	}
	if cfg.State.Path != "override.json" {
		t.Errorf("expected env to win over file, got %q", cfg.State.Path)
	}
	if cfg.State.OnCorrupt != CorruptFresh {
		t.Errorf("expected file corrupt policy, got %q", cfg.State.OnCorrupt)
	}
	if cfg.Telegram.ChatID != 42 {
		t.Errorf("expected chat id 42, got %d", cfg.Telegram.ChatID)
	}
	if cfg.Business.Location != time.UTC {
		t.Errorf("expected UTC location, got %v", cfg.Business.Location)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing CONFIG_FILE")
	}
}

func TestLoadWithInvalidValues(t *testing.T) {
	tests := map[string]string{
		"VENDOR_TIMEOUT_SECONDS": "-1",
		"VENDOR_MAX_RETRIES":     "abc",
		"TELEGRAM_CHAT_ID":       "channel",
		"STATE_ON_CORRUPT":       "ignore",
		"BUSINESS_TIMEZONE":      "Mars/Olympus",
		"LOG_LEVEL":              "verbose",
		"LOG_FORMAT":             "xml",
	}

	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			clearConfigEnv(t)
			t.Setenv(key, value)

			if _, err := Load(); err == nil {
				t.Fatalf("expected error when %s=%q", key, value)
			}
		})
	}
}

func TestParseLogLevelAliases(t *testing.T) {
	tests := map[string]slog.Level{
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
	}

	for input, expected := range tests {
		level, err := parseLogLevel(input)
		if err != nil {
			t.Fatalf("parseLogLevel(%q) returned error: %v", input, err)
		}

		if level != expected {
			t.Errorf("parseLogLevel(%q) = %v, want %v", input, level, expected)
		}
	}
}

func TestParseSecondsRejectsInvalidInput(t *testing.T) {
	cases := []string{"-1", "abc"}

	for _, input := range cases {
		if _, err := parseSeconds(input); err == nil {
			t.Fatalf("expected error for input %q", input)
		}
	}
}

func TestLoadDoesNotPersistEnvBetweenRuns(t *testing.T) {
	clearConfigEnv(t)

	t.Setenv("VENDOR_TIMEOUT_SECONDS", "5")
	if _, err := Load(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := os.Unsetenv("VENDOR_TIMEOUT_SECONDS"); err != nil {
		t.Fatalf("failed to unset env: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Vendor.Timeout != defaultVendorTimeout {
		t.Errorf("expected default vendor timeout after reset, got %v", cfg.Vendor.Timeout)
	}
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"CONFIG_FILE",
		"MCD_MCP_URL",
		"MCD_TOKEN",
		"VENDOR_TIMEOUT_SECONDS",
		"VENDOR_MAX_RETRIES",
		"TELEGRAM_BOT_TOKEN",
		"TELEGRAM_CHAT_ID",
		"TELEGRAM_API_ENDPOINT",
		"GITHUB_PAGES_URL",
		"PAGES_OUTPUT",
		"STATE_FILE",
		"STATE_ON_CORRUPT",
		"METRICS_TEXTFILE",
		"METRICS_ADDR",
		"BUSINESS_TIMEZONE",
		"LOG_LEVEL",
		"LOG_FORMAT",
	}

	for _, key := range keys {
		t.Setenv(key, "")
	}
}
