package di

import (
	"context"
	"errors"
	"time"

	domain "counsel/internal/domain/task"
	infratask "counsel/internal/infra/task"
	"counsel/internal/shared/config"
	"counsel/internal/shared/logging"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultPoolMaxConns       = 10
	defaultPoolMinConns       = 1
	defaultPoolMaxLifetime    = 30 * time.Minute
	defaultPoolMaxIdle        = 5 * time.Minute
	defaultPoolHealthCheck    = time.Minute
	defaultPoolConnectTimeout = 5 * time.Second
	defaultStatementCache     = 256
)

type postgresInitError struct {
	step string
	err  error
}

func (e postgresInitError) Error() string {
	return e.step + ": " + e.err.Error()
}

func (e postgresInitError) Unwrap() error {
	return e.err
}

// OpenTaskStore returns the in-memory store when no database URL is
// configured, otherwise a Postgres store with its schema ensured. The pool
// is nil for the in-memory store.
func OpenTaskStore(ctx context.Context, cfg config.DatabaseConfig, logger logging.Logger) (domain.Store, *pgxpool.Pool, error) {
	logger = logging.OrNop(logger)
	if cfg.URL == "" {
		logger.Info("No database configured; using in-memory task store")
		return infratask.NewMemoryStore(), nil, nil
	}

	pool, err := openPool(ctx, cfg)
	if err != nil {
		var perr postgresInitError
		if errors.As(err, &perr) {
			logger.Error("Failed to %s: %v", perr.step, perr.err)
		}
		return nil, nil, err
	}

	store, err := infratask.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, postgresInitError{step: "initialize task schema", err: err}
	}
	logger.Info("Task store initialized (Postgres)")
	return store, pool, nil
}

func openPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, postgresInitError{step: "parse task DB config", err: err}
	}
	applyPoolOptions(poolConfig, cfg)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, postgresInitError{step: "create task DB pool", err: err}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, postgresInitError{step: "ping task DB", err: err}
	}
	return pool, nil
}

func applyPoolOptions(poolConfig *pgxpool.Config, cfg config.DatabaseConfig) {
	maxConns := int32(defaultPoolMaxConns)
	if cfg.MaxConns > 0 {
		maxConns = cfg.MaxConns
	}
	poolConfig.MaxConns = maxConns
	poolConfig.MinConns = defaultPoolMinConns
	poolConfig.MaxConnLifetime = defaultPoolMaxLifetime
	poolConfig.MaxConnIdleTime = defaultPoolMaxIdle
	poolConfig.HealthCheckPeriod = defaultPoolHealthCheck
	poolConfig.ConnConfig.ConnectTimeout = defaultPoolConnectTimeout
	poolConfig.ConnConfig.StatementCacheCapacity = defaultStatementCache
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement
}
