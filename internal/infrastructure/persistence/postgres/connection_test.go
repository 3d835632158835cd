package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Apply(t *testing.T) {
	pc, err := pgxpool.ParseConfig("postgres://u:p@localhost:5432/lms?pool_max_conns=3")
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.MaxConns = 7
	cfg.MinConns = 0
	cfg.apply(pc)

	assert.Equal(t, int32(7), pc.MaxConns)
	assert.Equal(t, time.Hour, pc.MaxConnLifetime)
	assert.Equal(t, 10*time.Second, pc.ConnConfig.ConnectTimeout)
}

func TestConfig_ApplyKeepsURLWhenUnset(t *testing.T) {
	pc, err := pgxpool.ParseConfig("postgres://u:p@localhost:5432/lms?pool_max_conns=3")
	require.NoError(t, err)

	Config{}.apply(pc)
	assert.Equal(t, int32(3), pc.MaxConns)
}

func TestConnection_Closed(t *testing.T) {
	c := &Connection{closed: true}
	ctx := context.Background()

	assert.ErrorIs(t, c.Ping(ctx), ErrConnectionClosed)

	_, err := c.Health(ctx)
	assert.ErrorIs(t, err, ErrConnectionClosed)

	_, err = c.Exec(ctx, "SELECT 1")
	assert.ErrorIs(t, err, ErrConnectionClosed)

	_, err = c.Query(ctx, "SELECT 1")
	assert.ErrorIs(t, err, ErrConnectionClosed)

	var n int
	assert.ErrorIs(t, c.QueryRow(ctx, "SELECT 1").Scan(&n), ErrConnectionClosed)

	called := false
	err = c.WithTx(ctx, SerializedTxOptions(), func(pgx.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrConnectionClosed)
	assert.False(t, called)
}

func TestPoolHealth_Details(t *testing.T) {
	d := PoolHealth{PingLatency: 2 * time.Millisecond, TotalConns: 4, MaxConns: 10}.Details()

	assert.Equal(t, "2ms", d["ping_latency"])
	assert.Equal(t, int32(4), d["total_conns"])
	assert.Equal(t, int32(10), d["max_conns"])
}

func TestEmbeddedMigrations_Ordered(t *testing.T) {
	migrations := EmbeddedMigrations()
	require.Len(t, migrations, 3)

	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.Name)
		assert.NotEmpty(t, strings.TrimSpace(m.UpSQL))
		assert.NotEmpty(t, strings.TrimSpace(m.DownSQL))
	}
}

func TestMigrations_Constraints(t *testing.T) {
	migrations := EmbeddedMigrations()

	assert.Contains(t, migrations[1].UpSQL, "PRIMARY KEY (learner_id, lesson_id)")
	assert.Contains(t, migrations[2].UpSQL, "UNIQUE (learner_id, quiz_id, attempt_number)")
}

func TestPendingAndNewestApplied(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	applied := map[int]time.Time{1: at, 2: at}

	p := pending(EmbeddedMigrations(), applied)
	require.Len(t, p, 1)
	assert.Equal(t, 3, p[0].Version)

	assert.Equal(t, []int{2}, newestApplied(applied, 1))
	assert.Equal(t, []int{2, 1}, newestApplied(applied, 5))
	assert.Empty(t, newestApplied(nil, 1))

	status := withStatus(EmbeddedMigrations(), applied)
	assert.True(t, status[0].IsApplied)
	assert.Equal(t, at, status[1].AppliedAt)
	assert.False(t, status[2].IsApplied)
}

func TestMigrator_RollbackRejectsZeroSteps(t *testing.T) {
	err := NewMigrator(&Connection{closed: true}).Rollback(context.Background(), 0)
	assert.ErrorIs(t, err, ErrMigrationFailed)
}

func TestErrorHelpers(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505"}
	fk := &pgconn.PgError{Code: "23503"}
	serialization := &pgconn.PgError{Code: "40001"}
	deadlock := &pgconn.PgError{Code: "40P01"}

	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", unique)))
	assert.False(t, IsUniqueViolation(fk))

	assert.True(t, IsSerializationFailure(serialization))
	assert.True(t, IsSerializationFailure(fmt.Errorf("commit: %w", deadlock)))
	assert.False(t, IsSerializationFailure(unique))
	assert.False(t, IsSerializationFailure(errors.New("boom")))

	assert.True(t, IsNoRows(fmt.Errorf("get: %w", pgx.ErrNoRows)))
	assert.False(t, IsNoRows(nil))
}

func TestTxOptions(t *testing.T) {
	assert.Equal(t, pgx.ReadWrite, SerializedTxOptions().AccessMode)
	assert.Equal(t, pgx.ReadCommitted, DefaultTxOptions().IsoLevel)
}
