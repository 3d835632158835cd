package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
)

// Migration is one versioned schema change.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// EmbeddedMigrations returns the schema history in version order.
func EmbeddedMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_catalog", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_progress_and_enrollments", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_quiz_submissions", UpSQL: migration003Up, DownSQL: migration003Down},
	}
}

const createMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
)`

// migrationLockKey is the advisory lock held while the schema changes,
// so two processes starting together do not both apply a version.
const migrationLockKey int64 = 7_104_233_301

// Migrator applies and reverts EmbeddedMigrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
}

// NewMigrator creates a migrator over the embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn, migrations: EmbeddedMigrations()}
}

// Migrate applies every pending migration in one transaction.
func (m *Migrator) Migrate(ctx context.Context) error {
	return m.locked(ctx, func(tx pgx.Tx, applied map[int]time.Time) error {
		for _, mig := range pending(m.migrations, applied) {
			if mig.UpSQL == "" {
				return fmt.Errorf("%w: version %d has no up SQL", ErrMigrationFailed, mig.Version)
			}
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`,
				mig.Version, mig.Name,
			); err != nil {
				return fmt.Errorf("%w: record version %d: %v", ErrMigrationFailed, mig.Version, err)
			}
		}
		return nil
	})
}

// Rollback reverts the last steps applied migrations, newest first.
func (m *Migrator) Rollback(ctx context.Context, steps int) error {
	if steps < 1 {
		return fmt.Errorf("%w: steps must be at least 1", ErrMigrationFailed)
	}

	byVersion := make(map[int]Migration, len(m.migrations))
	for _, mig := range m.migrations {
		byVersion[mig.Version] = mig
	}

	return m.locked(ctx, func(tx pgx.Tx, applied map[int]time.Time) error {
		for _, v := range newestApplied(applied, steps) {
			mig, ok := byVersion[v]
			if !ok || mig.DownSQL == "" {
				return fmt.Errorf("%w: version %d has no down SQL", ErrMigrationFailed, v)
			}
			if _, err := tx.Exec(ctx, mig.DownSQL); err != nil {
				return fmt.Errorf("%w: revert version %d: %v", ErrMigrationFailed, v, err)
			}
			if _, err := tx.Exec(ctx, `DELETE FROM schema_migrations WHERE version = $1`, v); err != nil {
				return fmt.Errorf("%w: forget version %d: %v", ErrMigrationFailed, v, err)
			}
		}
		return nil
	})
}

// Status lists every known migration with its applied time, if any.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if _, err := m.conn.Exec(ctx, createMigrationsTable); err != nil {
		return nil, fmt.Errorf("postgres: create schema_migrations: %w", err)
	}
	applied, err := appliedVersions(ctx, m.conn)
	if err != nil {
		return nil, err
	}
	return withStatus(m.migrations, applied), nil
}

func (m *Migrator) locked(ctx context.Context, fn func(pgx.Tx, map[int]time.Time) error) error {
	return m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockKey); err != nil {
			return fmt.Errorf("postgres: migration lock: %w", err)
		}
		if _, err := tx.Exec(ctx, createMigrationsTable); err != nil {
			return fmt.Errorf("postgres: create schema_migrations: %w", err)
		}
		applied, err := appliedVersions(ctx, tx)
		if err != nil {
			return err
		}
		return fn(tx, applied)
	})
}

func appliedVersions(ctx context.Context, q Querier) (map[int]time.Time, error) {
	rows, err := q.Query(ctx, `SELECT version, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("postgres: read schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var (
			version int
			at      time.Time
		)
		if err := rows.Scan(&version, &at); err != nil {
			return nil, fmt.Errorf("postgres: scan schema_migrations: %w", err)
		}
		applied[version] = at
	}
	return applied, rows.Err()
}

// pending returns the migrations not yet applied, in version order.
func pending(all []Migration, applied map[int]time.Time) []Migration {
	var out []Migration
	for _, mig := range all {
		if _, ok := applied[mig.Version]; !ok {
			out = append(out, mig)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out
}

// newestApplied returns up to n applied versions, highest first.
func newestApplied(applied map[int]time.Time, n int) []int {
	versions := make([]int, 0, len(applied))
	for v := range applied {
		versions = append(versions, v)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(versions)))
	if len(versions) > n {
		versions = versions[:n]
	}
	return versions
}

func withStatus(all []Migration, applied map[int]time.Time) []Migration {
	out := make([]Migration, len(all))
	copy(out, all)
	for i := range out {
		if at, ok := applied[out[i].Version]; ok {
			out[i].IsApplied = true
			out[i].AppliedAt = at
		}
	}
	return out
}
