// Package store owns the Postgres connection pool shared by the movie and
// rating repositories.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ErrSchemaMissing means the database is reachable but the movies/ratings
// tables have not been migrated.
var ErrSchemaMissing = errors.New("store: schema missing, run cmd/migrate up")

// requiredTables must exist before the rating write path can work.
var requiredTables = []string{"movies", "ratings"}

// Options controls connection-pool behaviour.
type Options struct {
	MaxConns               int32
	MinConns               int32
	MaxConnIdleTime        time.Duration
	MaxConnLifetime        time.Duration
	ConnTimeout            time.Duration
	StatementCacheCapacity int
	Logger                 *zap.Logger
}

// Store wraps the pool so repositories never configure connections themselves.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	opts   Options
}

// PoolStats is a point-in-time view of pool usage.
type PoolStats struct {
	Total         int32
	Idle          int32
	Acquired      int32
	Max           int32
	EmptyAcquires int64
}

// New builds the pool from dbURL and opts and pings it once.
func New(ctx context.Context, dbURL string, opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg, err := poolConfig(dbURL, opts)
	if err != nil {
		return nil, err
	}
	logger.Info("store: opening pool",
		zap.String("host", cfg.ConnConfig.Host),
		zap.String("database", cfg.ConnConfig.Database),
		zap.Int32("max_conns", cfg.MaxConns),
		zap.Int32("min_conns", cfg.MinConns),
		zap.Int("stmt_cache", cfg.ConnConfig.StatementCacheCapacity),
	)

	connCtx, cancel := withOptionalTimeout(ctx, opts.ConnTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(connCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	logger.Info("store: pool ready")
	return &Store{pool: pool, logger: logger, opts: opts}, nil
}

// poolConfig parses dbURL and applies the non-zero options on top of it.
func poolConfig(dbURL string, opts Options) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse db url: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}
	if opts.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = opts.MaxConnIdleTime
	}
	if opts.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.StatementCacheCapacity >= 0 {
		cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement
		cfg.ConnConfig.StatementCacheCapacity = opts.StatementCacheCapacity
	}
	return cfg, nil
}

// Close releases database resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.logger.Info("store: closing pool")
	s.pool.Close()
}

// HealthCheck pings the database and confirms the rating schema is in place,
// so a fresh database without migrations reports unhealthy.
func (s *Store) HealthCheck(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("store not initialized")
	}
	checkCtx, cancel := withOptionalTimeout(ctx, s.opts.ConnTimeout)
	defer cancel()

	if err := s.pool.Ping(checkCtx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	var missing []string
	err := s.pool.QueryRow(checkCtx, `
        SELECT COALESCE(array_agg(t), '{}')
        FROM unnest($1::text[]) AS t
        WHERE to_regclass('public.' || t) IS NULL
    `, requiredTables).Scan(&missing)
	if err != nil {
		return fmt.Errorf("check schema: %w", err)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrSchemaMissing, missing)
	}
	return nil
}

// Pool exposes the underlying pgx pool for repositories.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Stats returns the current pool usage; zero for an unopened store.
func (s *Store) Stats() PoolStats {
	if s == nil || s.pool == nil {
		return PoolStats{}
	}
	stat := s.pool.Stat()
	return PoolStats{
		Total:         stat.TotalConns(),
		Idle:          stat.IdleConns(),
		Acquired:      stat.AcquiredConns(),
		Max:           stat.MaxConns(),
		EmptyAcquires: stat.EmptyAcquireCount(),
	}
}

// LogStats writes Stats to the store logger. A non-zero EmptyAcquires means
// rating writes waited for a connection; raise DB_MAX_CONNS if it keeps growing.
func (s *Store) LogStats() {
	if s == nil || s.pool == nil {
		return
	}
	st := s.Stats()
	s.logger.Info("store: pool stats",
		zap.Int32("total", st.Total),
		zap.Int32("idle", st.Idle),
		zap.Int32("acquired", st.Acquired),
		zap.Int32("max", st.Max),
		zap.Int64("empty_acquire", st.EmptyAcquires),
	)
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
