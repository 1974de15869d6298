package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ServerPort  string
	DatabaseURL string
	RedisURL    string
	LocalDBPath string
	JWTSecret   string
	JWTExpiry   time.Duration
	LogLevel    string

	AllowedOrigins []string `yaml:"allowed_origins"`

	Realtime RealtimeConfig `yaml:"realtime"`
	Sync     SyncConfig     `yaml:"sync"`
	Queue    QueueConfig    `yaml:"queue"`
	Offers   OffersConfig   `yaml:"offers"`
}

type RealtimeConfig struct {
	MaxRetries       int           `yaml:"max_retries"`
	BaseDelay        time.Duration `yaml:"base_delay"`
	MaxDelay         time.Duration `yaml:"max_delay"`
	FallbackDelay    time.Duration `yaml:"fallback_delay"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	NotificationsCap int           `yaml:"notifications_cap"`
}

type SyncConfig struct {
	Interval      time.Duration `yaml:"interval"`
	ProbeInterval time.Duration `yaml:"probe_interval"`
	Timeout       time.Duration `yaml:"timeout"`
}

type QueueConfig struct {
	MaxRecords int `yaml:"max_records"`
}

type OffersConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

func LoadConfig() (*Config, error) {
	expiryStr := getEnv("JWT_EXPIRY", "24h")
	expiry, err := time.ParseDuration(expiryStr)
	if err != nil {
		return nil, errors.New("invalid JWT_EXPIRY format")
	}

	cfg := &Config{
		ServerPort:  getEnv("SERVER_PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		LocalDBPath: getEnv("LOCAL_DB_PATH", "esperto-offline.db"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		JWTExpiry:   expiry,
		LogLevel:    getEnv("LOG_LEVEL", "info"),
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("QUEUE_MAX_RECORDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, errors.New("invalid QUEUE_MAX_RECORDS format")
		}
		cfg.Queue.MaxRecords = n
	}

	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}

	cfg.setDefaults()

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	return cfg, nil
}

// loadFile overlays the tuning sections from a YAML file. Environment
// references inside the file are expanded first.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Realtime.MaxRetries == 0 {
		c.Realtime.MaxRetries = 3
	}
	if c.Realtime.BaseDelay == 0 {
		c.Realtime.BaseDelay = time.Second
	}
	if c.Realtime.MaxDelay == 0 {
		c.Realtime.MaxDelay = 30 * time.Second
	}
	if c.Realtime.FallbackDelay == 0 {
		c.Realtime.FallbackDelay = 5 * time.Second
	}
	if c.Realtime.PollInterval == 0 {
		c.Realtime.PollInterval = 30 * time.Second
	}
	if c.Realtime.NotificationsCap == 0 {
		c.Realtime.NotificationsCap = 10
	}
	if c.Sync.Interval == 0 {
		c.Sync.Interval = 5 * time.Minute
	}
	if c.Sync.ProbeInterval == 0 {
		c.Sync.ProbeInterval = 15 * time.Second
	}
	if c.Sync.Timeout == 0 {
		c.Sync.Timeout = 2 * time.Minute
	}
	if c.Queue.MaxRecords == 0 {
		c.Queue.MaxRecords = 500
	}
	if c.Offers.CacheTTL == 0 {
		c.Offers.CacheTTL = 2 * time.Minute
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Helper: get env with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
