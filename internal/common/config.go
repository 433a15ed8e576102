package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production" - selects headless vs visible browser
	Server      ServerConfig    `toml:"server"`
	Logging     LoggingConfig   `toml:"logging"`
	Uploads     UploadsConfig   `toml:"uploads"`
	Sender      SenderConfig    `toml:"sender"`
	WhatsApp    WhatsAppConfig  `toml:"whatsapp"`
	WebSocket   WebSocketConfig `toml:"websocket"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05.000")
}

// UploadsConfig controls the staging area for multipart uploads. Staged
// files are input scratch space only, never part of the job/log model.
type UploadsConfig struct {
	Dir             string `toml:"dir"`              // Staging directory (default: os.TempDir()/nuntio-uploads)
	MaxUploadMB     int    `toml:"max_upload_mb"`    // Multipart memory limit per request
	Retention       string `toml:"retention"`        // e.g. "24h" - staged files older than this are deleted
	CleanupSchedule string `toml:"cleanup_schedule"` // Cron schedule for the staging janitor
}

type SenderConfig struct {
	DefaultCountryCode string `toml:"default_country_code"` // Prepended to bare local numbers (default: "+65")
	SendRateEvery      string `toml:"send_rate_every"`      // e.g. "1500ms" - minimum delay between recipients
}

// WhatsAppConfig configures the browser automation driver
type WhatsAppConfig struct {
	Driver              string `toml:"driver"`                // "chromedp" or "scripted" (no browser, deterministic)
	BaseURL             string `toml:"base_url"`              // Automation entry point (default: https://web.whatsapp.com)
	UserAgent           string `toml:"user_agent"`            // Desktop UA presented to the site
	NoSandbox           bool   `toml:"no_sandbox"`            // Pass --no-sandbox to Chrome
	NavigationTimeout   string `toml:"navigation_timeout"`    // e.g. "60s" - per-page navigation budget
	DeliveryPollTimeout string `toml:"delivery_poll_timeout"` // e.g. "20s" - checkmark polling budget per recipient
	LogoutTimeout       string `toml:"logout_timeout"`        // e.g. "15s" - logout sequence budget
}

// WebSocketConfig contains configuration for WebSocket log broadcasting
type WebSocketConfig struct {
	MinLevel        string   `toml:"min_level"`        // Minimum log level to broadcast ("debug", "info", "warn", "error")
	ExcludePatterns []string `toml:"exclude_patterns"` // Log message patterns to exclude from broadcasting
	BroadcastEvery  string   `toml:"broadcast_every"`  // Rate limit interval for debug-level floods (default: "250ms")
}

// NewDefaultConfig returns the default configuration
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05.000",
		},
		Uploads: UploadsConfig{
			Dir:             "",
			MaxUploadMB:     32,
			Retention:       "24h",
			CleanupSchedule: "@hourly",
		},
		Sender: SenderConfig{
			DefaultCountryCode: "+65",
			SendRateEvery:      "1500ms",
		},
		WhatsApp: WhatsAppConfig{
			Driver:              "chromedp",
			BaseURL:             "https://web.whatsapp.com",
			UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
			NoSandbox:           true,
			NavigationTimeout:   "60s",
			DeliveryPollTimeout: "20s",
			LogoutTimeout:       "15s",
		},
		WebSocket: WebSocketConfig{
			MinLevel:       "info",
			BroadcastEvery: "250ms",
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env. Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	// Environment configuration (highest priority: NUNTIO_ENV, fallback: GO_ENV)
	if env := os.Getenv("NUNTIO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("NUNTIO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("NUNTIO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if level := os.Getenv("NUNTIO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if dir := os.Getenv("NUNTIO_UPLOADS_DIR"); dir != "" {
		config.Uploads.Dir = dir
	}

	if cc := os.Getenv("NUNTIO_DEFAULT_COUNTRY_CODE"); cc != "" {
		config.Sender.DefaultCountryCode = cc
	}

	if driver := os.Getenv("NUNTIO_WHATSAPP_DRIVER"); driver != "" {
		config.WhatsApp.Driver = driver
	}
	if baseURL := os.Getenv("NUNTIO_WHATSAPP_BASE_URL"); baseURL != "" {
		config.WhatsApp.BaseURL = baseURL
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	// Command-line flags have highest priority
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// IsProduction returns true when running in production mode
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// ParseDurationOr parses a duration string, falling back to def when the
// value is empty or malformed.
func ParseDurationOr(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// SendEvery returns the parsed per-recipient pacing interval
func (s SenderConfig) SendEvery() time.Duration {
	return ParseDurationOr(s.SendRateEvery, 1500*time.Millisecond)
}

// RetentionDuration returns the parsed staging retention window
func (u UploadsConfig) RetentionDuration() time.Duration {
	return ParseDurationOr(u.Retention, 24*time.Hour)
}
