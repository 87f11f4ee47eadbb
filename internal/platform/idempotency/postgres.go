package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgxDB is satisfied by *pgxpool.Pool.
type pgxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// PostgresStore keeps records in the idempotency_keys table created by the
// Postgres schema migration.
type PostgresStore struct {
	db pgxDB
}

func NewPostgresStore(db pgxDB) *PostgresStore {
	return &PostgresStore{db: db}
}

const selectRecordSQL = `
SELECT key, fingerprint, status, response_status, response_headers, response_body,
       created_at, updated_at, expires_at
FROM idempotency_keys WHERE id = $1 FOR UPDATE`

const upsertRecordSQL = `
INSERT INTO idempotency_keys
    (id, key, fingerprint, status, response_status, response_headers, response_body, created_at, updated_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE SET
    key = EXCLUDED.key,
    fingerprint = EXCLUDED.fingerprint,
    status = EXCLUDED.status,
    response_status = EXCLUDED.response_status,
    response_headers = EXCLUDED.response_headers,
    response_body = EXCLUDED.response_body,
    created_at = EXCLUDED.created_at,
    updated_at = EXCLUDED.updated_at,
    expires_at = EXCLUDED.expires_at`

// Reserve claims the key with an INSERT ... ON CONFLICT DO NOTHING, so two
// racing requests cannot both see ReservationStateNew. The loser inspects the
// existing row under a row lock.
func (s *PostgresStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	id := recordID(key)
	fresh := newPendingRecord(key, fingerprint, now, ttl)

	var result Reservation
	err := pgx.BeginTxFunc(ctx, s.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
INSERT INTO idempotency_keys (id, key, fingerprint, status, created_at, updated_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $5, $6)
ON CONFLICT (id) DO NOTHING`, id, key, fingerprint, string(StatusPending), now, fresh.ExpiresAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 1 {
			result = Reservation{State: ReservationStateNew, Record: fresh}
			return nil
		}

		record, err := scanRecord(tx.QueryRow(ctx, selectRecordSQL, id))
		if err != nil {
			return err
		}
		if record.expired(now) {
			if err := upsert(ctx, tx, id, fresh); err != nil {
				return err
			}
			result = Reservation{State: ReservationStateNew, Record: fresh}
			return nil
		}
		result, err = reservationFor(record, fingerprint)
		return err
	})
	if err != nil && !errors.Is(err, ErrFingerprintMismatch) {
		return Reservation{}, fmt.Errorf("idempotency: reserve: %w", err)
	}
	return result, err
}

func (s *PostgresStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	id := recordID(key)

	err := pgx.BeginTxFunc(ctx, s.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var prev *Record
		found, err := scanRecord(tx.QueryRow(ctx, selectRecordSQL, id))
		switch {
		case err == nil:
			prev = &found
		case !errors.Is(err, pgx.ErrNoRows):
			return err
		}
		record, err := completed(prev, key, fingerprint, resp, now.UTC(), ttl)
		if err != nil {
			return err
		}
		return upsert(ctx, tx, id, record)
	})
	if err != nil && !errors.Is(err, ErrFingerprintMismatch) {
		return fmt.Errorf("idempotency: save response: %w", err)
	}
	return err
}

func (s *PostgresStore) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	tag, err := s.db.Exec(ctx, `
DELETE FROM idempotency_keys
WHERE id IN (SELECT id FROM idempotency_keys WHERE expires_at <= $1 ORDER BY expires_at LIMIT $2)`,
		now.UTC(), limit)
	if err != nil {
		return 0, fmt.Errorf("idempotency: cleanup: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) Release(ctx context.Context, key, _ string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE id = $1`, recordID(key)); err != nil {
		return fmt.Errorf("idempotency: release: %w", err)
	}
	return nil
}

func upsert(ctx context.Context, tx pgx.Tx, id string, r Record) error {
	var headers []byte
	if len(r.ResponseHeaders) > 0 {
		encoded, err := json.Marshal(r.ResponseHeaders)
		if err != nil {
			return err
		}
		headers = encoded
	}
	_, err := tx.Exec(ctx, upsertRecordSQL,
		id, r.Key, r.Fingerprint, string(r.Status), r.ResponseStatus, headers, r.ResponseBody,
		r.CreatedAt, r.UpdatedAt, r.ExpiresAt)
	return err
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		r       Record
		status  string
		headers []byte
	)
	if err := row.Scan(&r.Key, &r.Fingerprint, &status, &r.ResponseStatus, &headers, &r.ResponseBody,
		&r.CreatedAt, &r.UpdatedAt, &r.ExpiresAt); err != nil {
		return Record{}, err
	}
	r.Status = Status(status)
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &r.ResponseHeaders); err != nil {
			return Record{}, fmt.Errorf("decode stored headers: %w", err)
		}
	}
	r.CreatedAt, r.UpdatedAt, r.ExpiresAt = r.CreatedAt.UTC(), r.UpdatedAt.UTC(), r.ExpiresAt.UTC()
	return r, nil
}
