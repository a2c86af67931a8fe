package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/soaringjerry/dyad/internal/config"
	"github.com/soaringjerry/dyad/internal/db"
	"github.com/soaringjerry/dyad/internal/services"
)

// setupLogger installs a JSON slog handler at the configured level.
func setupLogger(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

// loadRuntime reads configuration and installs the logger.
func loadRuntime() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	setupLogger(cfg.LogLevel)
	return cfg, nil
}

// openStore opens the configured store and applies pending migrations.
func openStore(ctx context.Context, cfg *config.Config) (services.Store, func(), error) {
	switch cfg.StoreDriver {
	case "memory":
		slog.Warn("using in-memory store; data is lost on exit")
		return db.NewMemoryStore(), func() {}, nil
	case "postgres":
		pool, err := db.ConnectPostgres(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		if err := db.RunPostgresMigrations(ctx, pool, cfg.MigrationsDir); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		st, err := db.NewPostgresStore(pool)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return st, pool.Close, nil
	default:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		st, err := db.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := db.RunMigrations(st.DB(), cfg.MigrationsDir); err != nil {
			_ = st.Close()
			return nil, nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		closeFn := func() {
			if err := st.Close(); err != nil {
				slog.Warn("close sqlite", "error", err)
			}
		}
		return st, closeFn, nil
	}
}
