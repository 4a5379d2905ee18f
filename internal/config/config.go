package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Browser   BrowserConfig   `yaml:"browser"`
	Store     StoreConfig     `yaml:"store"`
	Engine    EngineConfig    `yaml:"engine"`
	Scanner   ScannerConfig   `yaml:"scanner"`
	Server    ServerConfig    `yaml:"server"`
	Search    SearchConfig    `yaml:"search"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Mode      string          `yaml:"mode"`
}

// BrowserConfig contains Chrome settings
type BrowserConfig struct {
	ExecPath     string `yaml:"exec_path"`
	Headless     bool   `yaml:"headless"`
	UserDataDir  string `yaml:"user_data_dir"`
	RemoteURL    string `yaml:"remote_url"`
	BaseURL      string `yaml:"base_url"`
	WindowWidth  int    `yaml:"window_width"`
	WindowHeight int    `yaml:"window_height"`

	// SameTabWorker runs the worker in the controller tab and returns afterwards
	SameTabWorker bool `yaml:"same_tab_worker"`
}

// StoreConfig selects and configures the durable backend
type StoreConfig struct {
	Driver    string         `yaml:"driver"`
	KeyPrefix string         `yaml:"key_prefix"`
	Redis     RedisConfig    `yaml:"redis"`
	MySQL     MySQLConfig    `yaml:"mysql"`
	Postgres  PostgresConfig `yaml:"postgres"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MySQLConfig contains MySQL connection settings
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// PostgresConfig contains PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// EngineConfig holds block-attempt timings in milliseconds
type EngineConfig struct {
	SettleMs           int `yaml:"settle_ms"`
	PollIntervalMs     int `yaml:"poll_interval_ms"`
	MoreButtonAttempts int `yaml:"more_button_attempts"`
	MenuAttempts       int `yaml:"menu_attempts"`
	ConfirmAttempts    int `yaml:"confirm_attempts"`
	CloseAttempts      int `yaml:"close_attempts"`
	CloseIntervalMs    int `yaml:"close_interval_ms"`
	ClickDelayMs       int `yaml:"click_delay_ms"`
	ScrollSettleMs     int `yaml:"scroll_settle_ms"`
	MenuRenderMs       int `yaml:"menu_render_ms"`
	ConfirmWaitMs      int `yaml:"confirm_wait_ms"`
	DialogWaitMs       int `yaml:"dialog_wait_ms"`
	ItemDelayMs        int `yaml:"item_delay_ms"`
	SkipDelayMs        int `yaml:"skip_delay_ms"`
	NavigateBaseMs     int `yaml:"navigate_base_ms"`
	NavigateJitterMs   int `yaml:"navigate_jitter_ms"`
	ReturnDelayMs      int `yaml:"return_delay_ms"`
	CooldownHours      int `yaml:"cooldown_hours"`
}

// ScannerConfig contains selection scanner settings
type ScannerConfig struct {
	FallbackInterval   string `yaml:"fallback_interval"`
	InvalidateInterval string `yaml:"invalidate_interval"`
	RefreshThrottleMs  int    `yaml:"refresh_throttle_ms"`
}

// ServerConfig contains control API settings
type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// SearchConfig contains search engine settings
type SearchConfig struct {
	Meilisearch MeilisearchConfig `yaml:"meilisearch"`
}

// MeilisearchConfig contains Meilisearch connection settings
type MeilisearchConfig struct {
	Host   string `yaml:"host"`
	APIKey string `yaml:"api_key"`
	Index  string `yaml:"index"`
}

// RateLimitConfig limits mutating control API calls
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Browser: BrowserConfig{
			Headless:     false,
			BaseURL:      "https://www.threads.net/",
			WindowWidth:  1280,
			WindowHeight: 900,
		},
		Store: StoreConfig{
			Driver:    "redis",
			KeyPrefix: "rightblock",
			Redis: RedisConfig{
				Addr: "localhost:6379",
			},
			MySQL: MySQLConfig{
				Host:     "localhost",
				Port:     3306,
				User:     "rightblock",
				Database: "rightblock",
			},
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				User:     "rightblock",
				Database: "rightblock",
				SSLMode:  "disable",
			},
		},
		Engine: EngineConfig{
			SettleMs:           2500,
			PollIntervalMs:     500,
			MoreButtonAttempts: 25,
			MenuAttempts:       16,
			ConfirmAttempts:    10,
			CloseAttempts:      10,
			CloseIntervalMs:    800,
			ClickDelayMs:       800,
			ScrollSettleMs:     500,
			MenuRenderMs:       800,
			ConfirmWaitMs:      1000,
			DialogWaitMs:       2000,
			ItemDelayMs:        500,
			SkipDelayMs:        100,
			NavigateBaseMs:     500,
			NavigateJitterMs:   500,
			ReturnDelayMs:      2000,
			CooldownHours:      12,
		},
		Scanner: ScannerConfig{
			FallbackInterval:   "@every 5s",
			InvalidateInterval: "@every 2s",
			RefreshThrottleMs:  500,
		},
		Server: ServerConfig{
			Addr:        "127.0.0.1:8787",
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Search: SearchConfig{
			Meilisearch: MeilisearchConfig{
				Index: "blocked_users",
			},
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 30,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Mode: "background",
	}
}

// LoadConfig loads configuration from a YAML file and applies environment overrides
func LoadConfig(filepath string) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(filepath); err == nil {
		data, err := os.ReadFile(filepath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	config.applyEnv()
	return config, nil
}

func (c *Config) applyEnv() {
	c.Store.Driver = getEnvOrConfig("RB_STORE_DRIVER", c.Store.Driver)
	c.Store.Redis.Addr = getEnvOrConfig("RB_REDIS_ADDR", c.Store.Redis.Addr)
	c.Store.Redis.Password = getEnvOrConfig("RB_REDIS_PASSWORD", c.Store.Redis.Password)
	c.Store.MySQL.Host = getEnvOrConfig("RB_MYSQL_HOST", c.Store.MySQL.Host)
	c.Store.MySQL.Password = getEnvOrConfig("RB_MYSQL_PASSWORD", c.Store.MySQL.Password)
	c.Store.Postgres.Host = getEnvOrConfig("RB_POSTGRES_HOST", c.Store.Postgres.Host)
	c.Store.Postgres.Password = getEnvOrConfig("RB_POSTGRES_PASSWORD", c.Store.Postgres.Password)
	c.Browser.RemoteURL = getEnvOrConfig("RB_REMOTE_URL", c.Browser.RemoteURL)
	c.Browser.ExecPath = getEnvOrConfig("RB_CHROME_PATH", c.Browser.ExecPath)
	c.Search.Meilisearch.Host = getEnvOrConfig("MEILISEARCH_HOST", c.Search.Meilisearch.Host)
	c.Search.Meilisearch.APIKey = getEnvOrConfig("MEILISEARCH_API_KEY", c.Search.Meilisearch.APIKey)
	c.Server.Addr = getEnvOrConfig("RB_LISTEN_ADDR", c.Server.Addr)
	c.Logging.Level = getEnvOrConfig("RB_LOG_LEVEL", c.Logging.Level)
	if v := os.Getenv("RB_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Browser.Headless = b
		}
	}
}

// getEnvOrConfig returns the environment variable if set, otherwise the config value
func getEnvOrConfig(envKey, configValue string) string {
	if value := os.Getenv(envKey); value != "" {
		return value
	}
	return configValue
}

// Ms converts a millisecond setting to a duration
func Ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// GetCooldown returns the cooldown window recorded after a restriction
func (c *EngineConfig) GetCooldown() time.Duration {
	return time.Duration(c.CooldownHours) * time.Hour
}

// GetRefreshThrottle returns the minimum gap between UI refreshes
func (c *ScannerConfig) GetRefreshThrottle() time.Duration {
	return Ms(c.RefreshThrottleMs)
}

// DSN returns the MySQL data source name
func (c *MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// ConnString returns the lib/pq connection string
func (c *PostgresConfig) ConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}
