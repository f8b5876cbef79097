// Package migrations embeds SQL migration files for goose.
//
// Migration files follow the naming convention: YYYYMMDDHHMMSS_description.sql
// and live in one directory per dialect.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"
	"strings"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

// Dialect directories inside FS.
const (
	PostgresDir = "postgres"
	SQLiteDir   = "sqlite"
)

//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS

// Logger adapts zerolog to goose.Logger.
type Logger struct {
	Logger *zerolog.Logger
}

func (l *Logger) Fatalf(format string, v ...interface{}) {
	l.Logger.Fatal().Msgf(format, v...)
}

func (l *Logger) Printf(format string, v ...interface{}) {
	l.Logger.Info().Msgf(strings.TrimSuffix(format, "\n"), v...)
}

// Run applies all pending migrations from dir using the given goose dialect.
func Run(db *sql.DB, dialect, dir string, logger goose.Logger) error {
	goose.SetBaseFS(FS)

	if logger != nil {
		goose.SetLogger(logger)
	}

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := goose.Up(db, dir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}
