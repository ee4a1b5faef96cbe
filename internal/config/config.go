package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all bridge configuration.
type Config struct {
	Server     ServerConfig
	Browser    BrowserConfig
	Poll       PollConfig
	Storage    StorageConfig
	Screenshot ScreenshotConfig
	RateLimit  RateLimitConfig
	Logging    LogConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr  string `envconfig:"ADDR" default:":8080"`
	Model string `envconfig:"MODEL" default:"qwen-web"`
}

// BrowserConfig controls how the browser is launched and where it points.
type BrowserConfig struct {
	Headless          bool          `envconfig:"HEADLESS" default:"true"`
	ChatURL           string        `envconfig:"CHAT_URL" default:"https://chat.qwen.ai/"`
	BinPath           string        `envconfig:"BROWSER_PATH"`
	Docker            bool          `envconfig:"DOCKER_BROWSER" default:"false"`
	NavigationTimeout time.Duration `envconfig:"NAVIGATION_TIMEOUT" default:"30s"`
	SelectorsFile     string        `envconfig:"SELECTORS_FILE"`
}

// PollConfig controls the response poller cadence.
type PollConfig struct {
	Interval time.Duration `envconfig:"POLL_INTERVAL" default:"300ms"`
	Timeout  time.Duration `envconfig:"RESPONSE_TIMEOUT" default:"30s"`
}

// StorageConfig selects the cookie persistence backend.
type StorageConfig struct {
	Backend string `envconfig:"STORE" default:"file"`
	Path    string `envconfig:"STORAGE_PATH" default:"./storage"`
}

// ScreenshotConfig holds the debug screenshot toggle and retention.
type ScreenshotConfig struct {
	Enabled bool   `envconfig:"SCREENSHOTS" default:"false"`
	Dir     string `envconfig:"SCREENSHOT_DIR" default:"./storage/screenshots"`
	Limit   int    `envconfig:"SCREENSHOT_LIMIT" default:"20"`
}

// RateLimitConfig holds per-client rate limiting configuration.
type RateLimitConfig struct {
	PerHour int  `envconfig:"RATE_LIMIT_PER_HOUR" default:"100"`
	Burst   int  `envconfig:"RATE_LIMIT_BURST" default:"10"`
	Enabled bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// Prefix is prepended to every environment variable name.
const Prefix = "BRIDGE"

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	var cfg Config
	// Sections are processed one by one so variables stay flat
	// (BRIDGE_HEADLESS rather than BRIDGE_BROWSER_HEADLESS).
	sections := []any{
		&cfg.Server, &cfg.Browser, &cfg.Poll, &cfg.Storage,
		&cfg.Screenshot, &cfg.RateLimit, &cfg.Logging,
	}
	for _, section := range sections {
		if err := envconfig.Process(Prefix, section); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the bridge cannot run with.
func (c *Config) Validate() error {
	if c.Browser.ChatURL == "" {
		return fmt.Errorf("chat url is required")
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.Poll.Timeout < c.Poll.Interval {
		return fmt.Errorf("response timeout %s is shorter than poll interval %s", c.Poll.Timeout, c.Poll.Interval)
	}
	switch c.Storage.Backend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("unknown store backend %q", c.Storage.Backend)
	}
	if c.Screenshot.Limit < 1 {
		return fmt.Errorf("screenshot limit must be at least 1")
	}
	return nil
}

// Default returns the configuration used when the environment sets nothing.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080", Model: "qwen-web"},
		Browser: BrowserConfig{
			Headless:          true,
			ChatURL:           "https://chat.qwen.ai/",
			NavigationTimeout: 30 * time.Second,
		},
		Poll:       PollConfig{Interval: 300 * time.Millisecond, Timeout: 30 * time.Second},
		Storage:    StorageConfig{Backend: "file", Path: "./storage"},
		Screenshot: ScreenshotConfig{Dir: "./storage/screenshots", Limit: 20},
		RateLimit:  RateLimitConfig{PerHour: 100, Burst: 10, Enabled: true},
		Logging:    LogConfig{Level: "info"},
	}
}
