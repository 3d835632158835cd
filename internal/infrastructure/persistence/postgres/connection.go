// Package postgres implements the PostgreSQL persistence layer: the progress ledger,
// enrollment aggregates, quiz submissions, and read access to the collaborator-owned
// lessons and quizzes tables. Races named by the engine are settled here with
// row locks, advisory locks, and unique constraints.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrConnectionClosed is returned by every call made after Close.
	ErrConnectionClosed = errors.New("postgres: connection pool is closed")

	// ErrMigrationFailed wraps any failure while applying or reverting a migration.
	ErrMigrationFailed = errors.New("postgres: migration failed")
)

// SQLSTATE codes the repositories react to.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONNECTION POOL
// ══════════════════════════════════════════════════════════════════════════════

// Config tunes the pool. Where to connect comes from the database URL.
type Config struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration

	// ConnectTimeout bounds dialing a single connection.
	ConnectTimeout time.Duration
}

// DefaultConfig returns the pool settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MaxConns:          10,
		MinConns:          2,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   30 * time.Minute,
		HealthCheckPeriod: time.Minute,
		ConnectTimeout:    10 * time.Second,
	}
}

// apply copies the non-zero settings onto a parsed pool config.
func (c Config) apply(pc *pgxpool.Config) {
	if c.MaxConns > 0 {
		pc.MaxConns = c.MaxConns
	}
	if c.MinConns > 0 {
		pc.MinConns = c.MinConns
	}
	if c.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = c.MaxConnLifetime
	}
	if c.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = c.MaxConnIdleTime
	}
	if c.HealthCheckPeriod > 0 {
		pc.HealthCheckPeriod = c.HealthCheckPeriod
	}
	if c.ConnectTimeout > 0 {
		pc.ConnConfig.ConnectTimeout = c.ConnectTimeout
	}
}

// Connection owns the pgx pool shared by all repositories.
type Connection struct {
	mu     sync.RWMutex
	pool   *pgxpool.Pool
	closed bool
}

// NewConnectionFromURL opens a pool for databaseURL and pings it once.
// Settings in cfg win over pool parameters in the URL.
func NewConnectionFromURL(ctx context.Context, databaseURL string, cfg Config) (*Connection, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to parse database URL: %w", err)
	}
	cfg.apply(poolConfig)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: failed to ping database: %w", err)
	}

	return &Connection{pool: pool}, nil
}

// Close releases the pool. Calling it twice is safe.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.pool.Close()
}

// acquire returns the pool unless the connection was closed.
// The caller must hold c.mu for reading.
func (c *Connection) acquire() (*pgxpool.Pool, error) {
	if c.closed {
		return nil, ErrConnectionClosed
	}
	return c.pool, nil
}

// Ping checks the database answers.
func (c *Connection) Ping(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	pool, err := c.acquire()
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

// PoolHealth is a point-in-time view of the pool, reported by the health endpoint.
type PoolHealth struct {
	PingLatency     time.Duration
	TotalConns      int32
	IdleConns       int32
	AcquiredConns   int32
	MaxConns        int32
	EmptyAcquires   int64
	AcquireDuration time.Duration
}

// Details flattens the view for JSON output.
func (h PoolHealth) Details() map[string]any {
	return map[string]any{
		"ping_latency":     h.PingLatency.String(),
		"total_conns":      h.TotalConns,
		"idle_conns":       h.IdleConns,
		"acquired_conns":   h.AcquiredConns,
		"max_conns":        h.MaxConns,
		"empty_acquires":   h.EmptyAcquires,
		"acquire_duration": h.AcquireDuration.String(),
	}
}

// Health pings the database and samples pool statistics.
// A failed ping is returned as the error; the stats are still filled in.
func (c *Connection) Health(ctx context.Context) (PoolHealth, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	pool, err := c.acquire()
	if err != nil {
		return PoolHealth{}, err
	}

	start := time.Now()
	pingErr := pool.Ping(ctx)

	stats := pool.Stat()
	h := PoolHealth{
		PingLatency:     time.Since(start),
		TotalConns:      stats.TotalConns(),
		IdleConns:       stats.IdleConns(),
		AcquiredConns:   stats.AcquiredConns(),
		MaxConns:        stats.MaxConns(),
		EmptyAcquires:   stats.EmptyAcquireCount(),
		AcquireDuration: stats.AcquireDuration(),
	}
	return h, pingErr
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSACTIONS
// ══════════════════════════════════════════════════════════════════════════════

// TxOptions mirrors pgx.TxOptions so callers do not build pgx values themselves.
type TxOptions struct {
	IsoLevel   pgx.TxIsoLevel
	AccessMode pgx.TxAccessMode
}

// DefaultTxOptions is used for schema changes.
func DefaultTxOptions() TxOptions {
	return TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite}
}

// SerializedTxOptions is used by read-modify-write paths that also take explicit locks.
// The locks provide the ordering; read committed keeps lock waits short.
func SerializedTxOptions() TxOptions {
	return TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite}
}

// WithTx runs fn in a transaction, committing on nil and rolling back otherwise.
func (c *Connection) WithTx(ctx context.Context, opts TxOptions, fn func(pgx.Tx) error) error {
	c.mu.RLock()
	pool, err := c.acquire()
	c.mu.RUnlock()
	if err != nil {
		return err
	}

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: opts.IsoLevel, AccessMode: opts.AccessMode})
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// Querier is implemented by *Connection and pgx.Tx, so helpers run inside or outside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Exec runs a statement that returns no rows.
func (c *Connection) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	pool, err := c.acquire()
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	return pool.Exec(ctx, sql, args...)
}

// Query runs a statement that returns rows.
func (c *Connection) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	pool, err := c.acquire()
	if err != nil {
		return nil, err
	}
	return pool.Query(ctx, sql, args...)
}

// closedRow reports ErrConnectionClosed from Scan.
type closedRow struct{}

func (closedRow) Scan(...any) error { return ErrConnectionClosed }

// QueryRow runs a statement that returns at most one row.
func (c *Connection) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	c.mu.RLock()
	defer c.mu.RUnlock()

	pool, err := c.acquire()
	if err != nil {
		return closedRow{}
	}
	return pool.QueryRow(ctx, sql, args...)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR CLASSIFICATION
// ══════════════════════════════════════════════════════════════════════════════

func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsUniqueViolation reports a unique constraint violation.
func IsUniqueViolation(err error) bool {
	return sqlState(err) == codeUniqueViolation
}

// IsSerializationFailure reports a serialization failure or deadlock;
// either way another writer won and the work can be redone.
func IsSerializationFailure(err error) bool {
	switch sqlState(err) {
	case codeSerializationFailure, codeDeadlockDetected:
		return true
	}
	return false
}

// IsNoRows reports pgx.ErrNoRows.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
