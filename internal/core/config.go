package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config represents the main configuration for yad2watch
type Config struct {
	Server    ServerConfig   `json:"server"`
	Storage   StorageConfig  `json:"storage"`
	Monitor   MonitorConfig  `json:"monitor"`
	Telegram  TelegramConfig `json:"telegram"`
	Email     EmailConfig    `json:"email"`
	AutoStart bool           `json:"auto_start"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port int    `json:"port"`
	Host string `json:"host"`
}

// StorageConfig contains file locations for persisted state
type StorageConfig struct {
	DataDir string `json:"data_dir"`
}

// MonitorConfig contains monitor loop configuration
type MonitorConfig struct {
	CheckInterval  time.Duration `json:"check_interval"`
	MaxPages       int           `json:"max_pages"`
	PageDelay      time.Duration `json:"page_delay"`
	FetchTimeout   time.Duration `json:"fetch_timeout"`
	FetchRetries   int           `json:"fetch_retries"`
	FetchRetryWait time.Duration `json:"fetch_retry_wait"`
	BackoffMax     time.Duration `json:"backoff_max"`
	SeenTTL        time.Duration `json:"seen_ttl"`
	SeenCap        int           `json:"seen_cap"`
}

// TelegramConfig contains the Telegram bot transport configuration
type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

// EmailConfig contains the email transport configuration
type EmailConfig struct {
	Enabled       bool   `json:"enabled"`
	SMTP2GOAPIKey string `json:"smtp2go_api_key"`
	Sender        string `json:"sender"`
	Recipient     string `json:"recipient"`
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Port: getEnvAsInt("YW_PORT", 5001),
			Host: getEnvOrDefault("YW_HOST", "127.0.0.1"),
		},
		Storage: StorageConfig{
			DataDir: getEnvOrDefault("YW_DATA_DIR", "./data"),
		},
		Monitor: MonitorConfig{
			CheckInterval:  getEnvAsDuration("YW_CHECK_INTERVAL", 20*time.Second),
			MaxPages:       getEnvAsInt("YW_MAX_PAGES", 5),
			PageDelay:      getEnvAsDuration("YW_PAGE_DELAY", 3*time.Second),
			FetchTimeout:   getEnvAsDuration("YW_FETCH_TIMEOUT", 30*time.Second),
			FetchRetries:   getEnvAsInt("YW_FETCH_RETRIES", 3),
			FetchRetryWait: getEnvAsDuration("YW_FETCH_RETRY_WAIT", 5*time.Second),
			BackoffMax:     getEnvAsDuration("YW_BACKOFF_MAX", time.Hour),
			SeenTTL:        getEnvAsDuration("YW_SEEN_TTL", 30*24*time.Hour),
			SeenCap:        getEnvAsInt("YW_SEEN_CAP", 500),
		},
		Telegram: TelegramConfig{
			Enabled:  getEnvAsBool("YW_ENABLE_TELEGRAM", false),
			BotToken: getEnvOrDefault("YW_TELEGRAM_BOT_TOKEN", ""),
			ChatID:   getEnvOrDefault("YW_TELEGRAM_CHAT_ID", ""),
		},
		Email: EmailConfig{
			Enabled:       getEnvAsBool("YW_ENABLE_EMAIL", false),
			SMTP2GOAPIKey: getEnvOrDefault("YW_SMTP2GO_API_KEY", ""),
			Sender:        getEnvOrDefault("YW_SMTP2GO_SENDER", ""),
			Recipient:     getEnvOrDefault("YW_ALERT_RECIPIENT", ""),
		},
		AutoStart: getEnvAsBool("YW_AUTO_START", false),
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Storage.DataDir == "" {
		return fmt.Errorf("data directory is required")
	}

	if c.Monitor.CheckInterval < 5*time.Second {
		return fmt.Errorf("check interval must be at least 5 seconds, got %s", c.Monitor.CheckInterval)
	}

	if c.Monitor.MaxPages < 1 {
		return fmt.Errorf("max pages must be at least 1, got %d", c.Monitor.MaxPages)
	}

	if c.Monitor.SeenCap < 1 {
		return fmt.Errorf("seen cap must be at least 1, got %d", c.Monitor.SeenCap)
	}

	// An enabled transport with missing credentials is a startup error,
	// not a silently degraded runtime.
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" || c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram notifications enabled but YW_TELEGRAM_BOT_TOKEN or YW_TELEGRAM_CHAT_ID is missing")
		}
	}

	if c.Email.Enabled {
		if c.Email.SMTP2GOAPIKey == "" {
			return fmt.Errorf("email notifications enabled but YW_SMTP2GO_API_KEY is missing")
		}
		if c.Email.Sender == "" || c.Email.Recipient == "" {
			return fmt.Errorf("email notifications enabled but YW_SMTP2GO_SENDER or YW_ALERT_RECIPIENT is missing")
		}
	}

	return nil
}

// FoundListingsPath returns the path of the persisted found-listings store
func (c *Config) FoundListingsPath() string {
	return filepath.Join(c.Storage.DataDir, "found_listings.json")
}

// ProfilesPath returns the path of the persisted search profiles file
func (c *Config) ProfilesPath() string {
	return filepath.Join(c.Storage.DataDir, "profiles.json")
}

// LogPath returns the path of the rotating log file
func (c *Config) LogPath() string {
	return filepath.Join(c.Storage.DataDir, "monitor.log")
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts either a Go duration string ("30s", "1h") or a
// plain number of seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
