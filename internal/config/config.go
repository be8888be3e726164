package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Config represents runtime configuration derived from an optional YAML file
// and environment variables, the latter taking precedence.
type Config struct {
	Logging  LoggingConfig
	Vendor   VendorConfig
	Telegram TelegramConfig
	Pages    PagesConfig
	State    StateConfig
	Metrics  MetricsConfig
	Business BusinessConfig
}

// LoggingConfig represents structured logging configuration.
type LoggingConfig struct {
	Level  slog.Level
	Format string
}

// VendorConfig holds the vendor MCP endpoint parameters.
type VendorConfig struct {
	URL        string
	Token      string
	Timeout    time.Duration
	MaxRetries int
}

// TelegramConfig holds chat delivery settings. Delivery is disabled unless
// both the bot token and chat ID are set.
type TelegramConfig struct {
	BotToken    string
	ChatID      int64
	APIEndpoint string
}

// Enabled reports whether Telegram delivery is configured.
func (c TelegramConfig) Enabled() bool {
	return c.BotToken != "" && c.ChatID != 0
}

// PagesConfig controls the static report page.
type PagesConfig struct {
	URL        string
	OutputPath string
}

// StateConfig locates the calendar store and sets the corrupt-file policy.
type StateConfig struct {
	Path      string
	OnCorrupt CorruptPolicy
}

// CorruptPolicy decides what a run does with an unreadable state file.
type CorruptPolicy string

const (
	CorruptAbort CorruptPolicy = "abort"
	CorruptFresh CorruptPolicy = "fresh"
)

// MetricsConfig controls metrics export.
type MetricsConfig struct {
	TextfilePath string
	Addr         string
}

// BusinessConfig holds the timezone in which dates and periods are computed.
type BusinessConfig struct {
	Timezone string
	Location *time.Location
}

const (
	defaultLogFormat = "json"

	defaultVendorURL        = "https://mcp.mcd.cn/mcp-servers/mcd-mcp"
	defaultVendorTimeout    = 30 * time.Second
	defaultVendorMaxRetries = 3

	defaultTelegramEndpoint = "https://api.telegram.org/bot%s/%s"

	defaultPagesOutput = "index.html"
	defaultStatePath   = "calendar_data.json"
	defaultTimezone    = "Asia/Shanghai"
)

// fileConfig mirrors the optional YAML configuration file.
type fileConfig struct {
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Vendor struct {
		URL            string `yaml:"url"`
		TimeoutSeconds *int   `yaml:"timeout_seconds"`
		MaxRetries     *int   `yaml:"max_retries"`
	} `yaml:"vendor"`
	Telegram struct {
		ChatID      string `yaml:"chat_id"`
		APIEndpoint string `yaml:"api_endpoint"`
	} `yaml:"telegram"`
	Pages struct {
		URL    string `yaml:"url"`
		Output string `yaml:"output"`
	} `yaml:"pages"`
	State struct {
		Path      string `yaml:"path"`
		OnCorrupt string `yaml:"on_corrupt"`
	} `yaml:"state"`
	Metrics struct {
		Textfile string `yaml:"textfile"`
		Addr     string `yaml:"addr"`
	} `yaml:"metrics"`
	Timezone string `yaml:"timezone"`
}

// Load reads configuration, applying defaults when values are not provided.
// When CONFIG_FILE is set its values are applied first; secrets (vendor and
// bot tokens) are only read from the environment.
func Load() (Config, error) {
	var file fileConfig
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading CONFIG_FILE: %w", err)
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return Config{}, fmt.Errorf("parsing CONFIG_FILE: %w", err)
		}
	}

	cfg := Config{
		Logging: LoggingConfig{
			Level:  slog.LevelInfo,
			Format: defaultLogFormat,
		},
		Vendor: VendorConfig{
			URL:        firstNonEmpty(file.Vendor.URL, defaultVendorURL),
			Timeout:    defaultVendorTimeout,
			MaxRetries: defaultVendorMaxRetries,
		},
		Telegram: TelegramConfig{
			APIEndpoint: firstNonEmpty(file.Telegram.APIEndpoint, defaultTelegramEndpoint),
		},
		Pages: PagesConfig{
			URL:        file.Pages.URL,
			OutputPath: firstNonEmpty(file.Pages.Output, defaultPagesOutput),
		},
		State: StateConfig{
			Path:      firstNonEmpty(file.State.Path, defaultStatePath),
			OnCorrupt: CorruptAbort,
		},
		Metrics: MetricsConfig{
			TextfilePath: file.Metrics.Textfile,
			Addr:         file.Metrics.Addr,
		},
		Business: BusinessConfig{
			Timezone: firstNonEmpty(file.Timezone, defaultTimezone),
		},
	}

	if file.Vendor.TimeoutSeconds != nil {
		if *file.Vendor.TimeoutSeconds < 0 {
			return Config{}, fmt.Errorf("invalid vendor.timeout_seconds: must be a non-negative integer")
		}
		cfg.Vendor.Timeout = time.Duration(*file.Vendor.TimeoutSeconds) * time.Second
	}
	if file.Vendor.MaxRetries != nil {
		if *file.Vendor.MaxRetries < 0 {
			return Config{}, fmt.Errorf("invalid vendor.max_retries: must be a non-negative integer")
		}
		cfg.Vendor.MaxRetries = *file.Vendor.MaxRetries
	}

	levelRaw := getEnv("LOG_LEVEL", file.Log.Level)
	if levelRaw != "" {
		level, err := parseLogLevel(levelRaw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		cfg.Logging.Level = level
	}

	if v := getEnv("LOG_FORMAT", file.Log.Format); v != "" {
		switch v {
		case "json", "text":
			cfg.Logging.Format = v
		default:
			return Config{}, fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'text'")
		}
	}

	cfg.Vendor.URL = getEnv("MCD_MCP_URL", cfg.Vendor.URL)
	cfg.Vendor.Token = os.Getenv("MCD_TOKEN")

	if v := os.Getenv("VENDOR_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid VENDOR_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Vendor.Timeout = d
	}

	if v := os.Getenv("VENDOR_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("invalid VENDOR_MAX_RETRIES: must be a non-negative integer")
		}
		cfg.Vendor.MaxRetries = n
	}

	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.Telegram.APIEndpoint = getEnv("TELEGRAM_API_ENDPOINT", cfg.Telegram.APIEndpoint)
	if v := getEnv("TELEGRAM_CHAT_ID", file.Telegram.ChatID); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid TELEGRAM_CHAT_ID: must be an integer")
		}
		cfg.Telegram.ChatID = id
	}

	cfg.Pages.URL = getEnv("GITHUB_PAGES_URL", cfg.Pages.URL)
	cfg.Pages.OutputPath = getEnv("PAGES_OUTPUT", cfg.Pages.OutputPath)
	cfg.State.Path = getEnv("STATE_FILE", cfg.State.Path)

	if v := getEnv("STATE_ON_CORRUPT", file.State.OnCorrupt); v != "" {
		switch CorruptPolicy(v) {
		case CorruptAbort, CorruptFresh:
			cfg.State.OnCorrupt = CorruptPolicy(v)
		default:
			return Config{}, fmt.Errorf("invalid STATE_ON_CORRUPT: must be 'abort' or 'fresh'")
		}
	}

	cfg.Metrics.TextfilePath = getEnv("METRICS_TEXTFILE", cfg.Metrics.TextfilePath)
	cfg.Metrics.Addr = getEnv("METRICS_ADDR", cfg.Metrics.Addr)

	cfg.Business.Timezone = getEnv("BUSINESS_TIMEZONE", cfg.Business.Timezone)
	loc, err := time.LoadLocation(cfg.Business.Timezone)
	if err != nil {
		return Config{}, fmt.Errorf("invalid BUSINESS_TIMEZONE: %w", err)
	}
	cfg.Business.Location = loc

	return cfg, nil
}

func parseSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return time.Duration(seconds) * time.Second, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch raw {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("must be one of debug, info, warn, error")
	}
}
