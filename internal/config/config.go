package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NewRelic NewRelicConfig
	Matching MatchingConfig
	Ingest   IngestConfig
	Geo      GeoConfig
	Storage  StorageConfig
	Hub      HubConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port string
	Host string
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

type RedisConfig struct {
	Host        string
	Port        string
	Password    string
	DB          int
	MaxRetries  int
	PoolSize    int
	DialTimeout time.Duration
	ReadTimeout time.Duration
}

type NewRelicConfig struct {
	LicenseKey string
	AppName    string
	Enabled    bool
}

type MatchingConfig struct {
	SearchRadiusKM float64
	Timeout        time.Duration
	PollInterval   time.Duration
}

type IngestConfig struct {
	MinInterval time.Duration
}

type GeoConfig struct {
	// Backend selects "redis" or "memory".
	Backend    string
	StaleAfter time.Duration
}

type StorageConfig struct {
	// Backend selects "postgres" or "memory".
	Backend string
}

type HubConfig struct {
	QueueSize int
}

type LogConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Env:  getEnv("SERVER_ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "dispatch"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvAsInt("DB_MAX_CONNECTIONS", 25),
			MaxIdle:  getEnvAsInt("DB_MAX_IDLE_CONNECTIONS", 5),
		},
		Redis: RedisConfig{
			Host:        getEnv("REDIS_HOST", "localhost"),
			Port:        getEnv("REDIS_PORT", "6379"),
			Password:    getEnv("REDIS_PASSWORD", ""),
			DB:          getEnvAsInt("REDIS_DB", 0),
			MaxRetries:  getEnvAsInt("REDIS_MAX_RETRIES", 3),
			PoolSize:    getEnvAsInt("REDIS_POOL_SIZE", 50),
			DialTimeout: 5 * time.Second,
			ReadTimeout: 3 * time.Second,
		},
		NewRelic: NewRelicConfig{
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			AppName:    getEnv("NEW_RELIC_APP_NAME", "SwiftCab-Dispatch"),
			Enabled:    getEnvAsBool("NEW_RELIC_ENABLED", false),
		},
		Matching: MatchingConfig{
			SearchRadiusKM: getEnvAsFloat64("MATCH_SEARCH_RADIUS_KM", 50),
			Timeout:        getEnvAsDuration("MATCH_TIMEOUT", 15*time.Second),
			PollInterval:   getEnvAsDuration("MATCH_POLL_INTERVAL", 500*time.Millisecond),
		},
		Ingest: IngestConfig{
			MinInterval: getEnvAsDuration("INGEST_MIN_INTERVAL", 0),
		},
		Geo: GeoConfig{
			Backend:    getEnv("GEO_BACKEND", "redis"),
			StaleAfter: getEnvAsDuration("GEO_STALE_AFTER", 5*time.Minute),
		},
		Storage: StorageConfig{
			Backend: getEnv("STORAGE_BACKEND", "postgres"),
		},
		Hub: HubConfig{
			QueueSize: getEnvAsInt("HUB_QUEUE_SIZE", 32),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}
	switch c.Geo.Backend {
	case "redis", "memory":
	default:
		return fmt.Errorf("GEO_BACKEND must be redis or memory, got %q", c.Geo.Backend)
	}
	switch c.Storage.Backend {
	case "postgres", "memory":
	default:
		return fmt.Errorf("STORAGE_BACKEND must be postgres or memory, got %q", c.Storage.Backend)
	}
	if c.Geo.Backend == "redis" && c.Redis.Host == "" {
		return fmt.Errorf("REDIS_HOST is required with the redis geo backend")
	}
	if c.Storage.Backend == "postgres" && c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required with the postgres storage backend")
	}
	if c.Matching.SearchRadiusKM <= 0 {
		return fmt.Errorf("MATCH_SEARCH_RADIUS_KM must be positive")
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}
