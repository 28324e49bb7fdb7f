// Package storage is the PostgreSQL layer of the ski jumping service.
//
// Queries go through a pgxpool. The live results feed uses a second,
// unpooled connection because LISTEN state is per session. results and
// event_participants are list-partitioned by season; see partitions.go.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const applicationName = "skijump"

// sessionParams pin every session to UTC. Season keys and day boundaries
// are computed in UTC, and date casts in SQL must agree with them.
var sessionParams = map[string]string{
	"application_name": applicationName,
	"timezone":         "UTC",
}

// DB is the storage handle. The zero value is not usable; call New.
type DB struct {
	pool       *pgxpool.Pool
	notifyConn *pgx.Conn // nil when the live feed is disabled
	notifyCfg  *pgx.ConnConfig
	logger     *slog.Logger
}

// New opens the pool on poolDSN and verifies it. A non-empty notifyDSN also
// opens the LISTEN connection; it must reach Postgres directly, not through
// a transaction-mode pooler.
func New(ctx context.Context, poolDSN, notifyDSN string, logger *slog.Logger) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(poolDSN)
	if err != nil {
		return nil, fmt.Errorf("storage: parse pool DSN: %w", err)
	}
	applySessionParams(poolCfg.ConnConfig)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("storage: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping pool: %w", err)
	}

	db := &DB{pool: pool, logger: logger}
	if notifyDSN == "" {
		return db, nil
	}
	db.notifyCfg, err = pgx.ParseConfig(notifyDSN)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: parse notify DSN: %w", err)
	}
	applySessionParams(db.notifyCfg)
	db.notifyConn, err = pgx.ConnectConfig(ctx, db.notifyCfg)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: connect notify: %w", err)
	}
	return db, nil
}

func applySessionParams(cfg *pgx.ConnConfig) {
	if cfg.RuntimeParams == nil {
		cfg.RuntimeParams = map[string]string{}
	}
	for k, v := range sessionParams {
		if _, set := cfg.RuntimeParams[k]; !set {
			cfg.RuntimeParams[k] = v
		}
	}
}

// Pool exposes the pool for tests and metrics.
func (db *DB) Pool() *pgxpool.Pool { return db.pool }

// HasNotifyConn reports whether the live results feed is available.
func (db *DB) HasNotifyConn() bool { return db.notifyConn != nil }

// Ping checks that the pool can reach Postgres.
func (db *DB) Ping(ctx context.Context) error { return db.pool.Ping(ctx) }

// Close releases the pool and the notify connection.
func (db *DB) Close(ctx context.Context) {
	db.pool.Close()
	if db.notifyConn == nil {
		return
	}
	if err := db.notifyConn.Close(ctx); err != nil {
		db.logger.Warn("storage: close notify connection", "error", err)
	}
}
