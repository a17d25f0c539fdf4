package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Migrations is a set of goose SQL migrations located in Dir within FS.
type Migrations struct {
	FS  fs.FS
	Dir string
}

// Migrate applies all pending migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool, cfg Config, m Migrations, log *slog.Logger) error {
	return run(ctx, pool, cfg, m, log, func(db *sql.DB) error {
		return goose.UpContext(ctx, db, m.Dir)
	})
}

// Rollback reverts the most recently applied migration.
func Rollback(ctx context.Context, pool *pgxpool.Pool, cfg Config, m Migrations, log *slog.Logger) error {
	return run(ctx, pool, cfg, m, log, func(db *sql.DB) error {
		return goose.DownContext(ctx, db, m.Dir)
	})
}

// Version returns the current schema version.
func Version(ctx context.Context, pool *pgxpool.Pool, cfg Config, m Migrations, log *slog.Logger) (int64, error) {
	var version int64
	err := run(ctx, pool, cfg, m, log, func(db *sql.DB) error {
		v, err := goose.GetDBVersionContext(ctx, db)
		version = v
		return err
	})
	return version, err
}

// goose keeps its settings in package state, so runs are serialized.
var gooseMu sync.Mutex

func run(ctx context.Context, pool *pgxpool.Pool, cfg Config, m Migrations, log *slog.Logger, op func(db *sql.DB) error) error {
	if m.FS == nil || m.Dir == "" {
		return errors.Join(ErrFailedToApplyMigrations, ErrMigrationPathNotProvided)
	}
	if _, err := fs.Stat(m.FS, m.Dir); err != nil {
		return errors.Join(ErrMigrationsDirNotFound, err)
	}

	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	// goose works on database/sql; this shares the pool's connections
	db := stdlib.OpenDBFromPool(pool)
	defer func() {
		if err := db.Close(); err != nil {
			log.ErrorContext(ctx, "failed to close migration db handle", "error", err)
		}
	}()

	goose.SetBaseFS(m.FS)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(gooseLogger{log: log})
	if cfg.MigrationsTable != "" {
		goose.SetTableName(cfg.MigrationsTable)
	}
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}

	if err := op(db); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}
	return nil
}

// gooseLogger forwards goose's printf output to log.
type gooseLogger struct{ log *slog.Logger }

func (g gooseLogger) Printf(format string, v ...any) {
	g.log.Info(strings.TrimSpace(fmt.Sprintf(format, v...)), slog.String("component", "migrations"))
}

func (g gooseLogger) Fatalf(format string, v ...any) {
	g.log.Error(strings.TrimSpace(fmt.Sprintf(format, v...)), slog.String("component", "migrations"))
}
