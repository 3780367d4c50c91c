// Package config loads service configuration from a YAML file with
// environment variable overrides. All tunables the pipeline depends on
// (batch size, concurrency, queue enablement) live here and are read
// once at service start.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the dispatch service.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Provider ProviderConfig `yaml:"provider"`
	Send     SendConfig     `yaml:"send"`
	Queue    QueueConfig    `yaml:"queue"`
	Tracking TrackingConfig `yaml:"tracking"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the event bus connection settings.
type RedisConfig struct {
	Addr          string `yaml:"addr"`
	Password      string `yaml:"password"`
	DB            int    `yaml:"db"`
	EventsChannel string `yaml:"events_channel"`
}

// ProviderConfig holds the bulk mail provider API settings.
type ProviderConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// SendConfig holds the batch sending engine tunables. BatchSize is
// bounded by the provider's maximum recipients per call.
type SendConfig struct {
	BatchSize     int `yaml:"batch_size"`
	Concurrency   int `yaml:"concurrency"`
	MaxAttempts   int `yaml:"max_attempts"`
	RatePerSecond int `yaml:"rate_per_second"`
}

// QueueConfig holds the background job queue settings.
type QueueConfig struct {
	Enabled             bool `yaml:"enabled"`
	Workers             int  `yaml:"workers"`
	PollIntervalSeconds int  `yaml:"poll_interval_seconds"`
}

// TrackingConfig holds link tracking settings. Passthrough lists exact
// URLs exempt from click-tracking rewrite.
type TrackingConfig struct {
	BaseURL     string   `yaml:"base_url"`
	SiteURL     string   `yaml:"site_url"`
	SigningKey  string   `yaml:"signing_key"`
	Passthrough []string `yaml:"passthrough"`
}

// Load reads and parses the configuration file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"http://localhost:5173"}
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.EventsChannel == "" {
		cfg.Redis.EventsChannel = "quillmail:events"
	}
	if cfg.Provider.TimeoutSeconds == 0 {
		cfg.Provider.TimeoutSeconds = 30
	}
	if cfg.Send.BatchSize == 0 {
		cfg.Send.BatchSize = 1000
	}
	if cfg.Send.Concurrency == 0 {
		cfg.Send.Concurrency = 4
	}
	if cfg.Send.MaxAttempts == 0 {
		cfg.Send.MaxAttempts = 5
	}
	if cfg.Send.RatePerSecond == 0 {
		cfg.Send.RatePerSecond = 10
	}
	if cfg.Queue.Workers == 0 {
		cfg.Queue.Workers = 2
	}
	if cfg.Queue.PollIntervalSeconds == 0 {
		cfg.Queue.PollIntervalSeconds = 5
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// A .env file is loaded first if present, so secrets can live in .env
// locally and in real env vars in production.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("PROVIDER_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("PROVIDER_BASE_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("TRACKING_SIGNING_KEY"); v != "" {
		cfg.Tracking.SigningKey = v
	}
	if v := os.Getenv("QUEUE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Queue.Enabled = b
		}
	}
	if v := os.Getenv("SEND_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Send.BatchSize = n
		}
	}

	return cfg, nil
}
