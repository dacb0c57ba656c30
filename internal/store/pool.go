package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/uipilot/api/schemas"
	"github.com/xkilldash9x/uipilot/internal/config"
)

// Open returns the configured cycle recorder and a cleanup func. A disabled
// journal yields a NopJournal; otherwise a pooled PostgreSQL connection is
// opened, pinged and its schema ensured.
func Open(ctx context.Context, cfg config.JournalConfig, logger *zap.Logger) (schemas.CycleRecorder, func(), error) {
	if !cfg.Enabled {
		return NopJournal{}, func() {}, nil
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.Postgres.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("unable to parse PGX pool config: %w", err)
	}
	poolConfig.MaxConns = 4
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to create PGX connection pool: %w", err)
	}

	journal, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := journal.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	cleanup := func() {
		logger.Info("Closing PostgreSQL connection pool (journal).")
		pool.Close()
	}
	return journal, cleanup, nil
}
