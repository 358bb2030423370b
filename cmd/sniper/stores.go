package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"solana-sniper/internal/config"
	"solana-sniper/internal/storage"
	"solana-sniper/internal/storage/clickhouse"
	"solana-sniper/internal/storage/memory"
	"solana-sniper/internal/storage/migrations"
	"solana-sniper/internal/storage/postgres"
	"solana-sniper/internal/storage/sqlite"
)

// openJournal opens the configured backend and, when a ClickHouse DSN is set,
// routes price samples there. The returned func closes everything opened.
func openJournal(ctx context.Context, cfg config.StorageConfig, logger zerolog.Logger) (storage.Journal, func(), error) {
	var (
		journal storage.Journal
		closers []func()
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch strings.ToLower(cfg.Backend) {
	case "memory":
		journal = memory.NewJournal()

	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return storage.Journal{}, nil, err
		}
		closers = append(closers, func() { db.Close() })
		journal = sqlite.NewJournal(db)

	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return storage.Journal{}, nil, fmt.Errorf("connect postgres: %w", err)
		}
		closers = append(closers, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			cleanup()
			return storage.Journal{}, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		journal = postgres.NewJournal(pool)

	default:
		return storage.Journal{}, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}

	if cfg.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			cleanup()
			return storage.Journal{}, nil, fmt.Errorf("clickhouse: %w", err)
		}
		closers = append(closers, func() { conn.Close() })
		journal.Samples = clickhouse.NewPriceSampleStore(conn)
	}

	logger.Info().
		Str("backend", cfg.Backend).
		Bool("clickhouse_samples", cfg.ClickhouseDSN != "").
		Msg("journal opened")
	return journal, cleanup, nil
}
