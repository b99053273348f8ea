// Package database provides PostgreSQL connection management using pgx.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/ppi-ladder/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	connectAttempts = 5
	connectBackoff  = 2 * time.Second
)

// NewPool creates and validates a pgxpool connection pool.
// It retries a few times to accommodate containers starting up.
func NewPool(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = min(2, cfg.MaxConns)
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	for attempt := 1; ; attempt++ {
		pool, err := connect(ctx, poolCfg)
		if err == nil {
			return pool, nil
		}
		if attempt == connectAttempts {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		log.Warn("db connect failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", connectAttempts),
			zap.Duration("backoff", connectBackoff),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(connectBackoff):
		}
	}
}

func connect(ctx context.Context, poolCfg *pgxpool.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Users are normally written by the account service; the ladder seeds the
// configured users, edits profiles and adjusts ppi and ticket_balance. The CHECK keeps ticket_balance non-negative under any writer.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id                  TEXT PRIMARY KEY,
    nickname            TEXT NOT NULL UNIQUE,
    email               TEXT NOT NULL UNIQUE,
    profile_picture_url TEXT,
    ppi                 INTEGER NOT NULL DEFAULT 1000,
    ticket_balance      INTEGER NOT NULL DEFAULT 0 CHECK (ticket_balance >= 0),
    created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS games (
    id              TEXT PRIMARY KEY,
    title           TEXT NOT NULL,
    place           TEXT NOT NULL DEFAULT '',
    scheduled_at    TIMESTAMPTZ NOT NULL,
    status          TEXT NOT NULL DEFAULT 'PLANNED'
                    CHECK (status IN ('PLANNED', 'PROGRESS', 'COMPLETED')),
    max_participant INTEGER NOT NULL CHECK (max_participant > 0),
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS participants (
    game_id       TEXT NOT NULL REFERENCES games (id),
    user_id       TEXT NOT NULL REFERENCES users (id),
    status        TEXT NOT NULL CHECK (status IN ('SUSPENDED', 'CONFIRMED')),
    rank          INTEGER,
    ppi_change    INTEGER NOT NULL DEFAULT 0,
    ticket_change INTEGER NOT NULL DEFAULT 0,
    used_ticket   BOOLEAN NOT NULL DEFAULT FALSE,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (game_id, user_id)
);

CREATE INDEX IF NOT EXISTS users_ppi_idx ON users (ppi DESC, id);
CREATE INDEX IF NOT EXISTS participants_user_idx ON participants (user_id);
CREATE INDEX IF NOT EXISTS games_due_idx ON games (scheduled_at) WHERE status = 'PLANNED';
`

// Migrate creates the ladder tables if they do not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
