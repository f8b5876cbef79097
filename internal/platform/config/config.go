package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	apperrors "github.com/lueurxax/telegram-harvester/internal/core/errors"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

type Config struct {
	AppEnv     string `env:"APP_ENV" envDefault:"local"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	HealthPort int    `env:"HEALTH_PORT" envDefault:"8080"`

	Store    StoreConfig
	Telegram TelegramMTProtoConfig
	Filter   FilterConfig
	Ingest   IngestConfig
}

func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional, error is expected when not present

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}

	applyLegacyAliases(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configurations the harvester cannot run with.
func (c *Config) Validate() error {
	if c.Telegram.APIID == 0 || c.Telegram.APIHash == "" {
		return fmt.Errorf("TG_API_ID and TG_API_HASH are required: %w", apperrors.ErrInvalidInput)
	}

	switch c.Store.Driver {
	case DriverPostgres:
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required for the postgres store: %w", apperrors.ErrInvalidInput)
		}
	case DriverSQLite, DriverMemory:
	default:
		return fmt.Errorf("%q: %w", c.Store.Driver, apperrors.ErrUnknownStoreDriver)
	}

	if c.Ingest.BatchSize <= 0 {
		return fmt.Errorf("BATCH_SIZE must be positive, got %d: %w", c.Ingest.BatchSize, apperrors.ErrInvalidInput)
	}

	if c.Ingest.AlbumLookahead <= 0 {
		return fmt.Errorf("ALBUM_LOOKAHEAD must be positive, got %d: %w", c.Ingest.AlbumLookahead, apperrors.ErrInvalidInput)
	}

	if c.Ingest.Interval < 0 {
		return fmt.Errorf("INGEST_INTERVAL must not be negative: %w", apperrors.ErrInvalidInput)
	}

	return nil
}

// applyLegacyAliases accepts the variable names of the original dotenv file
// when the current names are not set.
func applyLegacyAliases(cfg *Config) {
	if !hasEnv("TG_API_ID") {
		setIntFromEnv("API_ID", &cfg.Telegram.APIID)
	}

	if !hasEnv("TG_API_HASH") {
		setStringFromEnv("API_HASH", &cfg.Telegram.APIHash)
	}

	if !hasEnv("TG_PHONE") {
		setStringFromEnv("PHONE", &cfg.Telegram.Phone)
	}

	if !hasEnv("TG_SESSION_PATH") {
		if name, ok := os.LookupEnv("SESSION_NAME"); ok && strings.TrimSpace(name) != "" {
			cfg.Telegram.SessionPath = strings.TrimSpace(name) + ".session"
		}
	}

	if !hasEnv("DIALOGS_OUTPUT_FILE") {
		setStringFromEnv("OUTPUT_FILE", &cfg.Ingest.DialogsOutputFile)
	}
}

func hasEnv(key string) bool {
	_, ok := os.LookupEnv(key)
	return ok
}

func setStringFromEnv(key string, target *string) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return
	}

	val = strings.TrimSpace(val)
	if val == "" {
		return
	}

	*target = val
}

func setIntFromEnv(key string, target *int) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return
	}

	parsed, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return
	}

	*target = parsed
}
