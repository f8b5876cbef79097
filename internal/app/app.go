// Package app wires configuration, storage and the Telegram chat source
// together and exposes the operational modes:
//
//   - Ingest mode: walk the history of every chat in scope, once or on an interval
//   - Dialogs mode: list the account's dialogs and register them as chats
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	apperrors "github.com/lueurxax/telegram-harvester/internal/core/errors"
	"github.com/lueurxax/telegram-harvester/internal/core/ports"
	"github.com/lueurxax/telegram-harvester/internal/ingest/backoff"
	"github.com/lueurxax/telegram-harvester/internal/ingest/harvester"
	"github.com/lueurxax/telegram-harvester/internal/ingest/reader"
	"github.com/lueurxax/telegram-harvester/internal/platform/config"
	"github.com/lueurxax/telegram-harvester/internal/platform/observability"
	"github.com/lueurxax/telegram-harvester/internal/platform/worker"
	"github.com/lueurxax/telegram-harvester/internal/process/filters"
	db "github.com/lueurxax/telegram-harvester/internal/storage"
	"github.com/lueurxax/telegram-harvester/internal/storage/memory"
	"github.com/lueurxax/telegram-harvester/internal/storage/sqlite"
)

const (
	ingestWorkerName = "harvest"
	dialogsFilePerm  = 0o644
	sqliteDirPerm    = 0o750
)

// ChatSource is a chat source with a connection lifecycle.
type ChatSource interface {
	ports.ChatSource
	Run(ctx context.Context, fn func(ctx context.Context) error) error
}

// App holds the application dependencies and provides methods to run different modes.
type App struct {
	cfg    *config.Config
	store  ports.Store
	source ChatSource
	logger *zerolog.Logger
}

// New creates an App using the MTProto reader as chat source.
func New(cfg *config.Config, store ports.Store, logger *zerolog.Logger) *App {
	src := reader.New(reader.Config{
		APIID:       cfg.Telegram.APIID,
		APIHash:     cfg.Telegram.APIHash,
		SessionPath: cfg.Telegram.SessionPath,
		Phone:       cfg.Telegram.Phone,
		Password:    cfg.Telegram.Password2FA,
	}, logger)

	return NewWithSource(cfg, store, src, logger)
}

// NewWithSource creates an App with an explicit chat source.
func NewWithSource(cfg *config.Config, store ports.Store, source ChatSource, logger *zerolog.Logger) *App {
	return &App{
		cfg:    cfg,
		store:  store,
		source: source,
		logger: logger,
	}
}

// OpenStore connects to the configured backend and applies migrations.
func OpenStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (ports.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		database, err := db.NewWithOptions(ctx, cfg.Store.PostgresDSN, db.PoolOptions{
			MaxConns:          cfg.Store.MaxConnections,
			MinConns:          cfg.Store.MinConnections,
			MaxConnIdleTime:   cfg.Store.MaxConnIdleTime,
			MaxConnLifetime:   cfg.Store.MaxConnLifetime,
			HealthCheckPeriod: cfg.Store.HealthCheckPeriod,
		}, logger)
		if err != nil {
			return nil, err
		}

		if err := database.Migrate(ctx); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}

		return database, nil

	case config.DriverSQLite:
		if dir := filepath.Dir(cfg.Store.SQLitePath); dir != "" && cfg.Store.SQLitePath != ":memory:" {
			if err := os.MkdirAll(dir, sqliteDirPerm); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}

		return sqlite.Open(cfg.Store.SQLitePath, logger)

	case config.DriverMemory:
		return memory.New(), nil

	default:
		return nil, fmt.Errorf("%q: %w", cfg.Store.Driver, apperrors.ErrUnknownStoreDriver)
	}
}

// StartHealthServer serves /healthz, /readyz and /metrics until ctx is done.
func (a *App) StartHealthServer(ctx context.Context) error {
	return observability.NewServer(a.store, a.cfg.HealthPort, a.logger).Start(ctx)
}

// RunIngest harvests every chat in scope. With once set, or without an
// ingest interval, it performs a single pass.
func (a *App) RunIngest(ctx context.Context, once bool) error {
	h := a.newHarvester()

	return a.source.Run(ctx, func(ctx context.Context) error {
		if once || a.cfg.Ingest.Interval <= 0 {
			_, err := h.Run(ctx)
			return err
		}

		return worker.Loop(ctx, worker.Config{
			Name:         ingestWorkerName,
			PollInterval: a.cfg.Ingest.Interval,
			Process: func(ctx context.Context) error {
				_, err := h.Run(ctx)
				return err
			},
			OnError: func(err error) bool {
				if errors.Is(err, apperrors.ErrStoreWrite) || ctx.Err() != nil {
					return false
				}

				a.logger.Error().Err(err).Msg("harvest pass failed, retrying next interval")

				return true
			},
			Logger: a.logger,
		})
	})
}

// RunDialogs lists every dialog, registers each as a chat and writes the
// listing to the dialogs output file.
func (a *App) RunDialogs(ctx context.Context) error {
	h := a.newHarvester()
	path := a.cfg.Ingest.DialogsOutputFile

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, dialogsFilePerm)
	if err != nil {
		return fmt.Errorf("open dialogs output: %w", err)
	}

	runErr := a.source.Run(ctx, func(ctx context.Context) error {
		n, err := h.Discover(ctx, f)
		if err != nil {
			return err
		}

		a.logger.Info().Int("dialogs", n).Str("file", path).Msg("dialogs written")

		return nil
	})

	if err := f.Close(); err != nil && runErr == nil {
		return fmt.Errorf("close dialogs output: %w", err)
	}

	return runErr
}

func (a *App) newHarvester() *harvester.Harvester {
	loc := filters.ResolveLocation(a.cfg.Filter.Timezone)
	filter := filters.LoadOrDefault(a.cfg.Filter.Path, loc, a.logger)

	return harvester.New(
		a.source,
		a.store,
		backoff.New(a.cfg.Ingest.RateLimitRPS, a.logger),
		filter,
		harvester.Options{
			BatchSize: a.cfg.Ingest.BatchSize,
			Lookahead: a.cfg.Ingest.AlbumLookahead,
			PageSize:  a.cfg.Ingest.FetchPageSize,
			MediaDir:  a.cfg.Ingest.MediaDir,
		},
		a.logger,
	)
}
