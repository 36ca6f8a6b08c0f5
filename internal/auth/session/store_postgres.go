package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"gatehouse/identity"
)

// PostgresStore implements Store over PostgreSQL (sessions table).
//
// Expiry is enforced in every read/update predicate, so a row past its
// expires_at is logically absent the instant it expires; physical cleanup
// can happen whenever (an external sweep, or PurgeExpired below).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed session store.
// The pool is owned by the caller; Close is a no-op.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("session: nil pool")
	}
	return &PostgresStore{pool: pool}, nil
}

// Close is a no-op; the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

// Put inserts a new session row.
func (s *PostgresStore) Put(ctx context.Context, rec Record) error {
	const op = "session.Put"

	attrs, err := marshalAttrs(rec.Attributes)
	if err != nil {
		return StoreError{Op: op, Err: err}
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO sessions (id, subject_id, created_at, expires_at, attributes)
		VALUES ($1, $2, $3, $4, $5::jsonb)
	`, rec.ID.String(), rec.SubjectID.String(), rec.CreatedAt, rec.ExpiresAt, attrs)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return ErrDuplicateID
		}
		return StoreError{Op: op, Err: err}
	}
	return nil
}

// Get loads a session row, treating expired rows as absent.
func (s *PostgresStore) Get(ctx context.Context, now time.Time, id identity.SessionID) (Record, bool, error) {
	const op = "session.Get"

	var (
		idStr, subjStr string
		rec            Record
		attrs          []byte
	)

	err := s.pool.QueryRow(ctx, `
		SELECT id, subject_id, created_at, expires_at, attributes
		FROM sessions
		WHERE id = $1 AND expires_at > $2
	`, id.String(), now).Scan(&idStr, &subjStr, &rec.CreatedAt, &rec.ExpiresAt, &attrs)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, StoreError{Op: op, Err: err}
	}

	if rec.ID, err = identity.ParseSessionID(idStr); err != nil {
		return Record{}, false, StoreError{Op: op, Err: err}
	}
	if rec.SubjectID, err = identity.ParseAccountID(subjStr); err != nil {
		return Record{}, false, StoreError{Op: op, Err: err}
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &rec.Attributes); err != nil {
			return Record{}, false, StoreError{Op: op, Err: err}
		}
	}
	return rec, true, nil
}

// Touch extends expiry for a live row only.
func (s *PostgresStore) Touch(ctx context.Context, now time.Time, id identity.SessionID, newExpiresAt time.Time) error {
	const op = "session.Touch"

	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET expires_at = $3
		WHERE id = $1 AND expires_at > $2
	`, id.String(), now, newExpiresAt)
	if err != nil {
		return StoreError{Op: op, Err: err}
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Take atomically removes and returns a live row. The DELETE predicate
// carries the expiry check, so only one concurrent taker can see a row
// removed.
func (s *PostgresStore) Take(ctx context.Context, now time.Time, id identity.SessionID) (Record, bool, error) {
	const op = "session.Take"

	var (
		subjStr string
		rec     Record
		attrs   []byte
	)

	err := s.pool.QueryRow(ctx, `
		DELETE FROM sessions
		WHERE id = $1 AND expires_at > $2
		RETURNING subject_id, created_at, expires_at, attributes
	`, id.String(), now).Scan(&subjStr, &rec.CreatedAt, &rec.ExpiresAt, &attrs)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, StoreError{Op: op, Err: err}
	}

	rec.ID = id
	if rec.SubjectID, err = identity.ParseAccountID(subjStr); err != nil {
		return Record{}, false, StoreError{Op: op, Err: err}
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &rec.Attributes); err != nil {
			return Record{}, false, StoreError{Op: op, Err: err}
		}
	}
	return rec, true, nil
}

// Delete removes a row. Idempotent.
func (s *PostgresStore) Delete(ctx context.Context, id identity.SessionID) error {
	const op = "session.Delete"

	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id.String()); err != nil {
		return StoreError{Op: op, Err: err}
	}
	return nil
}

// DeleteAllForSubject removes every row owned by subject.
func (s *PostgresStore) DeleteAllForSubject(ctx context.Context, subject identity.AccountID) error {
	const op = "session.DeleteAllForSubject"

	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE subject_id = $1`, subject.String()); err != nil {
		return StoreError{Op: op, Err: err}
	}
	return nil
}

// PurgeExpired physically removes rows past their expiry. Logically they are
// already absent; this only reclaims space.
func (s *PostgresStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	const op = "session.PurgeExpired"

	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, StoreError{Op: op, Err: err}
	}
	return tag.RowsAffected(), nil
}

func marshalAttrs(attrs map[string]string) ([]byte, error) {
	if len(attrs) == 0 {
		return nil, nil
	}
	return json.Marshal(attrs)
}
