package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
)

type StorageBackend string

const (
	BackendMemory StorageBackend = "memory"
	BackendFile   StorageBackend = "file"
	BackendSQLite StorageBackend = "sqlite"
	BackendRedis  StorageBackend = "redis"
)

type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	LogMode  string `env:"LOG_MODE" envDefault:"dev"`

	// Storage
	StorageBackend  StorageBackend `env:"STORAGE_BACKEND" envDefault:"file"`
	StorageFilePath string         `env:"STORAGE_FILE_PATH" envDefault:"data/store.json"`
	SQLitePath      string         `env:"SQLITE_PATH" envDefault:"data/store.db"`
	RedisAddr       string         `env:"REDIS_ADDR"`
	RedisPassword   string         `env:"REDIS_PASSWORD"`
	RedisDB         int            `env:"REDIS_DB" envDefault:"0"`

	// Accounts
	UsersFilePath string        `env:"USERS_FILE_PATH" envDefault:"data/users.json"`
	JWTSecret     string        `env:"JWT_SECRET"`
	JWTTTL        time.Duration `env:"JWT_TTL" envDefault:"720h"`
	// GuestAccess serves unauthenticated callers from the shared guest
	// namespace. Only for servers that a single device talks to.
	GuestAccess bool `env:"GUEST_ACCESS" envDefault:"false"`

	// LLM settings (farm report)
	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`
	OpenAIModel   string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`

	// History
	DiseaseCatalogPath      string `env:"DISEASE_CATALOG_PATH"`
	ScanHistoryLimit        int    `env:"SCAN_HISTORY_LIMIT" envDefault:"50"`
	InteractionHistoryLimit int    `env:"INTERACTION_HISTORY_LIMIT" envDefault:"100"`

	// Maintenance
	ReconcileSchedule string `env:"RECONCILE_SCHEDULE" envDefault:"0 3 * * *"`
}

// Load reads the configuration from the process environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageBackend {
	case BackendMemory, BackendFile, BackendSQLite:
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("STORAGE_BACKEND=redis requires REDIS_ADDR")
		}
	default:
		return fmt.Errorf("unknown storage backend: %s", c.StorageBackend)
	}
	if c.ScanHistoryLimit <= 0 {
		return fmt.Errorf("SCAN_HISTORY_LIMIT must be positive, got %d", c.ScanHistoryLimit)
	}
	if c.InteractionHistoryLimit <= 0 {
		return fmt.Errorf("INTERACTION_HISTORY_LIMIT must be positive, got %d", c.InteractionHistoryLimit)
	}
	return nil
}
