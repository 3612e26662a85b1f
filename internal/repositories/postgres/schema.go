// Package postgres implements the ledger, order store and catalog on PostgreSQL through pgx.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the tables used by this package. Statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS inventory_stock (
	product_id TEXT PRIMARY KEY,
	available  INTEGER NOT NULL CHECK (available >= 0),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS products (
	id        TEXT PRIMARY KEY,
	name      TEXT NOT NULL,
	price     BIGINT NOT NULL,
	currency  TEXT NOT NULL DEFAULT 'NPR',
	image_ref TEXT NOT NULL DEFAULT '',
	active    BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS orders (
	id                TEXT PRIMARY KEY,
	customer_id       TEXT NOT NULL,
	line_items        JSONB NOT NULL,
	shipping_address  JSONB NOT NULL,
	payment_method    TEXT NOT NULL,
	payment_status    TEXT NOT NULL,
	payment_reference TEXT NOT NULL DEFAULT '',
	is_paid           BOOLEAN NOT NULL DEFAULT FALSE,
	status            TEXT NOT NULL,
	tracking_number   TEXT NOT NULL DEFAULT '',
	is_delivered      BOOLEAN NOT NULL DEFAULT FALSE,
	currency          TEXT NOT NULL,
	items_total       BIGINT NOT NULL,
	shipping_fee      BIGINT NOT NULL,
	grand_total       BIGINT NOT NULL,
	cancel_reason     TEXT NOT NULL DEFAULT '',
	paid_at           TIMESTAMPTZ,
	delivered_at      TIMESTAMPTZ,
	cancelled_at      TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL,
	version           BIGINT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS orders_customer_created_idx ON orders (customer_id, created_at DESC, id DESC);
CREATE INDEX IF NOT EXISTS orders_created_idx ON orders (created_at DESC, id DESC);
`

// Open creates a pgx pool and verifies connectivity.
func Open(ctx context.Context, dsn string, maxConns int) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

// Migrate applies Schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}
