package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Storage backends accepted in STORAGE_TYPE.
const (
	StoragePostgres = "postgres"
	StorageMongo    = "mongodb"
	StorageMemory   = "memory"
)

// Config holds all configuration for the service.
type Config struct {
	Upstream  UpstreamConfig
	Ingestion IngestionConfig
	Schedule  ScheduleConfig
	Storage   StorageConfig
	Cache     CacheConfig
	Server    ServerConfig
}

// UpstreamConfig describes the ThemeParks API.
type UpstreamConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// IngestionConfig controls what a pipeline run fetches and persists.
type IngestionConfig struct {
	ResortName         string
	OperatingThreshold int
	SnapshotCollection string
	SourceTag          string
	ResolveMaxAttempts int
}

// ScheduleConfig holds the adaptive polling intervals.
type ScheduleConfig struct {
	DefaultInterval time.Duration
	ShortInterval   time.Duration
	LongInterval    time.Duration
}

// StorageConfig selects and configures the document store.
type StorageConfig struct {
	Type          string
	DatabaseURL   string
	MigrationsDir string
	MongoURI      string
	MongoDatabase string
}

// CacheConfig configures the optional Redis identity cache.
type CacheConfig struct {
	RedisURL string
	TTL      time.Duration
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port       int
	AdminToken string
}

// Load reads configuration from environment variables, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Upstream: UpstreamConfig{
			BaseURL: getEnv("API_URL", "https://api.themeparks.wiki/v1"),
			APIKey:  getEnv("API_KEY", ""),
			Timeout: getEnvDuration("API_TIMEOUT", 30*time.Second),
		},
		Ingestion: IngestionConfig{
			ResortName:         getEnv("RESORT_NAME", "Disneyland Resort"),
			OperatingThreshold: getEnvInt("OPERATING_THRESHOLD", 5),
			SnapshotCollection: getEnv("SNAPSHOT_COLLECTION", "fetchedData"),
			SourceTag:          getEnv("SOURCE_TAG", "themeparks.wiki"),
			ResolveMaxAttempts: getEnvInt("RESOLVE_MAX_ATTEMPTS", 100),
		},
		Schedule: ScheduleConfig{
			DefaultInterval: getEnvMinutes("POLL_INTERVAL_MINUTES", 10),
			ShortInterval:   getEnvMinutes("SHORT_POLL_MINUTES", 15),
			LongInterval:    getEnvMinutes("LONG_POLL_MINUTES", 30),
		},
		Storage: StorageConfig{
			Type:          getEnv("STORAGE_TYPE", StoragePostgres),
			DatabaseURL:   getEnv("DATABASE_URL", ""),
			MigrationsDir: getEnv("MIGRATIONS_DIR", "migrations"),
			MongoURI:      getEnv("MONGODB_URI", ""),
			MongoDatabase: getEnv("MONGODB_DATABASE", "parkwait"),
		},
		Cache: CacheConfig{
			RedisURL: getEnv("REDIS_URL", ""),
			TTL:      getEnvDuration("IDENTITY_CACHE_TTL", 24*time.Hour),
		},
		Server: ServerConfig{
			Port:       getEnvInt("HEALTH_PORT", 3000),
			AdminToken: getEnv("ADMIN_TOKEN", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	if c.Upstream.BaseURL == "" {
		return errors.New("API_URL must not be empty")
	}
	if c.Ingestion.ResortName == "" {
		return errors.New("RESORT_NAME must not be empty")
	}
	if c.Ingestion.OperatingThreshold < 0 {
		return fmt.Errorf("OPERATING_THRESHOLD must be >= 0, got %d", c.Ingestion.OperatingThreshold)
	}
	if c.Ingestion.ResolveMaxAttempts < 1 {
		return fmt.Errorf("RESOLVE_MAX_ATTEMPTS must be >= 1, got %d", c.Ingestion.ResolveMaxAttempts)
	}
	for name, d := range map[string]time.Duration{
		"POLL_INTERVAL_MINUTES": c.Schedule.DefaultInterval,
		"SHORT_POLL_MINUTES":    c.Schedule.ShortInterval,
		"LONG_POLL_MINUTES":     c.Schedule.LongInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	switch c.Storage.Type {
	case StoragePostgres:
		if c.Storage.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for postgres storage")
		}
	case StorageMongo:
		if c.Storage.MongoURI == "" {
			return errors.New("MONGODB_URI is required for mongodb storage")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvMinutes reads a whole number of minutes.
func getEnvMinutes(key string, defaultMinutes int) time.Duration {
	return time.Duration(getEnvInt(key, defaultMinutes)) * time.Minute
}
