package config

import "time"

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Driver            string        `env:"STORE_DRIVER" envDefault:"sqlite"`
	PostgresDSN       string        `env:"POSTGRES_DSN"`
	SQLitePath        string        `env:"SQLITE_PATH" envDefault:"./harvester.db"`
	MaxConnections    int32         `env:"DB_MAX_CONNECTIONS" envDefault:"10"`
	MinConnections    int32         `env:"DB_MIN_CONNECTIONS" envDefault:"1"`
	MaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	MaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	HealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`
}

// TelegramMTProtoConfig holds Telegram MTProto API settings.
type TelegramMTProtoConfig struct {
	APIID       int    `env:"TG_API_ID"`
	APIHash     string `env:"TG_API_HASH"`
	Phone       string `env:"TG_PHONE"`
	Password2FA string `env:"TG_2FA_PASSWORD"`
	SessionPath string `env:"TG_SESSION_PATH" envDefault:"./tg.session"`
}

// FilterConfig points at the declarative filter document.
type FilterConfig struct {
	Path     string `env:"FILTER_CONFIG_PATH"`
	Timezone string `env:"FILTER_TIMEZONE"`
}

// IngestConfig tunes the history walk.
type IngestConfig struct {
	MediaDir          string        `env:"MEDIA_DIR" envDefault:"./media"`
	BatchSize         int           `env:"BATCH_SIZE" envDefault:"50"`
	AlbumLookahead    int           `env:"ALBUM_LOOKAHEAD" envDefault:"100"`
	FetchPageSize     int           `env:"FETCH_PAGE_SIZE" envDefault:"100"`
	RateLimitRPS      float64       `env:"RATE_LIMIT_RPS" envDefault:"1"`
	Interval          time.Duration `env:"INGEST_INTERVAL" envDefault:"0s"`
	DialogsOutputFile string        `env:"DIALOGS_OUTPUT_FILE" envDefault:"./dialogs.txt"`
}
