package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSchema creates the table backing PostgresStore.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS idempotency_keys (
	id               TEXT PRIMARY KEY,
	scoped_key       TEXT NOT NULL,
	fingerprint      TEXT NOT NULL,
	status           TEXT NOT NULL,
	response_status  INTEGER NOT NULL DEFAULT 0,
	response_headers JSONB,
	response_body    BYTEA,
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL,
	expires_at       TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idempotency_keys_expires_idx ON idempotency_keys (expires_at);
`

// PostgresStore implements Store on a single table with row locks.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool, migrate bool) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("idempotency: postgres pool is required")
	}
	if migrate {
		if _, err := pool.Exec(ctx, PostgresSchema); err != nil {
			return nil, fmt.Errorf("idempotency: migrate: %w", err)
		}
	}
	return &PostgresStore{pool: pool}, nil
}

// Reserve inserts the pending row first; concurrent first attempts serialise on
// the primary key.
func (s *PostgresStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	pending := newPendingRecord(key, fingerprint, now, normaliseTTL(ttl))

	var result Reservation
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		inserted, err := writeRecord(ctx, tx, pending, insertIfAbsentSQL)
		if err != nil {
			return err
		}
		if !inserted {
			existing, _, err := selectForUpdate(ctx, tx, key)
			if err != nil {
				return err
			}
			if !existing.expired(now) {
				result, err = reservationFor(existing, fingerprint)
				return err
			}
			if _, err := writeRecord(ctx, tx, pending, upsertSQL); err != nil {
				return err
			}
		}
		result = Reservation{State: ReservationStateNew, Record: pending}
		return nil
	})
	return result, err
}

func (s *PostgresStore) Complete(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		record, found, err := selectForUpdate(ctx, tx, key)
		if err != nil {
			return err
		}
		if found && record.Fingerprint != fingerprint {
			return ErrFingerprintMismatch
		}
		if !found {
			record = Record{Key: key, Fingerprint: fingerprint}
		}
		_, err = writeRecord(ctx, tx, completeRecord(record, resp, now, normaliseTTL(ttl)), upsertSQL)
		return err
	})
}

func (s *PostgresStore) Release(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE id = $1`, documentID(key))
	return err
}

func (s *PostgresStore) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultCleanupLimit
	}
	tag, err := s.pool.Exec(ctx, `
DELETE FROM idempotency_keys
WHERE id IN (SELECT id FROM idempotency_keys WHERE expires_at <= $1 LIMIT $2)`, now.UTC(), limit)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func selectForUpdate(ctx context.Context, tx pgx.Tx, key string) (Record, bool, error) {
	var (
		record  Record
		status  string
		headers []byte
	)
	err := tx.QueryRow(ctx, `
SELECT scoped_key, fingerprint, status, response_status, response_headers, response_body, created_at, updated_at, expires_at
FROM idempotency_keys WHERE id = $1 FOR UPDATE`, documentID(key)).
		Scan(&record.Key, &record.Fingerprint, &status, &record.ResponseStatus, &headers, &record.ResponseBody,
			&record.CreatedAt, &record.UpdatedAt, &record.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	record.Status = Status(status)
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &record.ResponseHeaders); err != nil {
			return Record{}, false, fmt.Errorf("idempotency: decode headers: %w", err)
		}
	}
	return record, true, nil
}

const insertColumns = `
INSERT INTO idempotency_keys (id, scoped_key, fingerprint, status, response_status, response_headers, response_body, created_at, updated_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

const (
	insertIfAbsentSQL = insertColumns + `
ON CONFLICT (id) DO NOTHING`
	upsertSQL = insertColumns + `
ON CONFLICT (id) DO UPDATE SET
	fingerprint = EXCLUDED.fingerprint,
	status = EXCLUDED.status,
	response_status = EXCLUDED.response_status,
	response_headers = EXCLUDED.response_headers,
	response_body = EXCLUDED.response_body,
	created_at = EXCLUDED.created_at,
	updated_at = EXCLUDED.updated_at,
	expires_at = EXCLUDED.expires_at`
)

func writeRecord(ctx context.Context, tx pgx.Tx, record Record, stmt string) (bool, error) {
	var headers []byte
	if len(record.ResponseHeaders) > 0 {
		encoded, err := json.Marshal(record.ResponseHeaders)
		if err != nil {
			return false, fmt.Errorf("idempotency: encode headers: %w", err)
		}
		headers = encoded
	}
	tag, err := tx.Exec(ctx, stmt,
		documentID(record.Key), record.Key, record.Fingerprint, string(record.Status), record.ResponseStatus,
		headers, record.ResponseBody, record.CreatedAt, record.UpdatedAt, record.ExpiresAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
