package idempotency

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const defaultTable = "idempotency_keys"

// PostgresOption customises the PostgresStore behaviour.
type PostgresOption func(*PostgresStore)

// WithTable overrides the table name used to store idempotency keys.
func WithTable(name string) PostgresOption {
	return func(store *PostgresStore) {
		if name != "" {
			store.table = name
		}
	}
}

// PostgresStore implements Store backed by a PostgreSQL table.
type PostgresStore struct {
	db    *sql.DB
	table string
}

// NewPostgresStore constructs a Postgres-backed idempotency store.
func NewPostgresStore(db *sql.DB, opts ...PostgresOption) *PostgresStore {
	store := &PostgresStore{
		db:    db,
		table: defaultTable,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

// Reserve ensures the key is uniquely associated with the fingerprint and returns any stored response.
func (s *PostgresStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	id := compositeKey(key, fingerprint)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Reservation{}, err
	}
	defer func() { _ = tx.Rollback() }()

	record, found, err := s.lockRecord(ctx, tx, id)
	if err != nil {
		return Reservation{}, err
	}

	var result Reservation
	switch {
	case !found, !record.ExpiresAt.IsZero() && !now.Before(record.ExpiresAt):
		if found && record.Fingerprint != fingerprint {
			return Reservation{}, ErrFingerprintMismatch
		}
		fresh := Record{
			Key:         key,
			Fingerprint: fingerprint,
			Status:      StatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
			ExpiresAt:   now.Add(ttl),
		}
		if err := s.upsertRecord(ctx, tx, id, fresh); err != nil {
			return Reservation{}, err
		}
		result = Reservation{State: ReservationStateNew, Record: fresh}
	case record.Fingerprint != fingerprint:
		return Reservation{}, ErrFingerprintMismatch
	case record.Status == StatusCompleted:
		result = Reservation{State: ReservationStateCompleted, Record: record}
	default:
		result = Reservation{State: ReservationStatePending, Record: record}
	}

	if err := tx.Commit(); err != nil {
		return Reservation{}, err
	}
	return result, nil
}

// SaveResponse persists the completed HTTP response associated with the key.
func (s *PostgresStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	id := compositeKey(key, fingerprint)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	record, found, err := s.lockRecord(ctx, tx, id)
	if err != nil {
		return err
	}
	if found && record.Fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}
	if !found || record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}

	record.Key = key
	record.Fingerprint = fingerprint
	record.Status = StatusCompleted
	record.ResponseStatus = resp.Status
	record.ResponseHeaders = sanitizeHeaders(resp.Headers)
	record.ResponseBody = append([]byte(nil), resp.Body...)
	record.UpdatedAt = now
	record.ExpiresAt = now.Add(ttl)

	if err := s.upsertRecord(ctx, tx, id, record); err != nil {
		return err
	}
	return tx.Commit()
}

// Release removes the reservation to allow callers to retry.
func (s *PostgresStore) Release(ctx context.Context, key, fingerprint string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table)
	_, err := s.db.ExecContext(ctx, query, compositeKey(key, fingerprint))
	return err
}

// CleanupExpired removes expired idempotency records up to the provided limit.
func (s *PostgresStore) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	now = now.UTC()
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE id IN (
			SELECT id FROM %s WHERE expires_at <= $1 LIMIT $2
		)`, s.table, s.table)
	res, err := s.db.ExecContext(ctx, query, now, limit)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *PostgresStore) lockRecord(ctx context.Context, tx *sql.Tx, id string) (Record, bool, error) {
	query := fmt.Sprintf(`
		SELECT key, fingerprint, status, response_status, response_headers, response_body,
		       created_at, updated_at, expires_at
		FROM %s
		WHERE id = $1
		FOR UPDATE`, s.table)

	var (
		record     Record
		status     string
		headersRaw []byte
		body       []byte
	)
	err := tx.QueryRowContext(ctx, query, id).Scan(
		&record.Key,
		&record.Fingerprint,
		&status,
		&record.ResponseStatus,
		&headersRaw,
		&body,
		&record.CreatedAt,
		&record.UpdatedAt,
		&record.ExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}

	record.Status = Status(status)
	record.ResponseBody = body
	if len(headersRaw) > 0 {
		if err := json.Unmarshal(headersRaw, &record.ResponseHeaders); err != nil {
			return Record{}, false, fmt.Errorf("idempotency: decode stored headers: %w", err)
		}
	}
	return record, true, nil
}

func (s *PostgresStore) upsertRecord(ctx context.Context, tx *sql.Tx, id string, record Record) error {
	headersRaw, err := json.Marshal(record.ResponseHeaders)
	if err != nil {
		return fmt.Errorf("idempotency: encode headers: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, key, fingerprint, status, response_status, response_headers, response_body, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			fingerprint = EXCLUDED.fingerprint,
			status = EXCLUDED.status,
			response_status = EXCLUDED.response_status,
			response_headers = EXCLUDED.response_headers,
			response_body = EXCLUDED.response_body,
			updated_at = EXCLUDED.updated_at,
			expires_at = EXCLUDED.expires_at`, s.table)

	_, err = tx.ExecContext(ctx, query, id,
		record.Key,
		record.Fingerprint,
		string(record.Status),
		record.ResponseStatus,
		headersRaw,
		record.ResponseBody,
		record.CreatedAt,
		record.UpdatedAt,
		record.ExpiresAt,
	)
	return err
}
