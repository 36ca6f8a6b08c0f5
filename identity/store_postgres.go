package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements AccountStore over PostgreSQL.
//
// The pgx pool is owned by the caller; this store must NOT close it.
// Unique violations are mapped to ConflictError, missing rows to
// NotFoundError, so callers never depend on driver error types.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed account store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return &PostgresStore{pool: pool}, nil
}

// Create inserts a new account row.
func (s *PostgresStore) Create(ctx context.Context, in CreateAccountInput) (Account, error) {
	const op = "identity.Create"

	email := strings.TrimSpace(in.Email)
	if email == "" || in.PasswordHash == "" {
		return Account{}, ErrInvalidInput
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := NewAccountID(now)
	if err != nil {
		return Account{}, err
	}

	acct := Account{
		ID:           id,
		Email:        email,
		EmailNorm:    NormalizeEmail(email),
		PasswordHash: in.PasswordHash,
		CreatedAt:    now,
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO accounts (id, email, email_norm, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, acct.ID.String(), acct.Email, acct.EmailNorm, acct.PasswordHash, acct.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Account{}, ConflictError{Op: op, Field: "email"}
		}
		return Account{}, fmt.Errorf("%s: %w", op, err)
	}

	return acct, nil
}

// GetByEmail loads an account by normalized email.
func (s *PostgresStore) GetByEmail(ctx context.Context, emailNorm string) (Account, error) {
	const op = "identity.GetByEmail"
	return s.getWhere(ctx, op, `email_norm = $1`, emailNorm)
}

// GetByID loads an account by ID.
func (s *PostgresStore) GetByID(ctx context.Context, id AccountID) (Account, error) {
	const op = "identity.GetByID"
	return s.getWhere(ctx, op, `id = $1`, id.String())
}

func (s *PostgresStore) getWhere(ctx context.Context, op, where string, arg any) (Account, error) {
	var (
		idStr string
		acct  Account
	)

	err := s.pool.QueryRow(ctx, `
		SELECT id, email, email_norm, password_hash, created_at
		FROM accounts
		WHERE `+where, arg).Scan(
		&idStr,
		&acct.Email,
		&acct.EmailNorm,
		&acct.PasswordHash,
		&acct.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, NotFoundError{Op: op, Resource: "account"}
	}
	if err != nil {
		return Account{}, fmt.Errorf("%s: %w", op, err)
	}

	acct.ID, err = ParseAccountID(idStr)
	if err != nil {
		return Account{}, fmt.Errorf("%s: %w", op, err)
	}
	return acct, nil
}

// UpdatePasswordHash replaces the stored credential hash.
func (s *PostgresStore) UpdatePasswordHash(ctx context.Context, id AccountID, encodedHash string) error {
	const op = "identity.UpdatePasswordHash"

	if encodedHash == "" {
		return ErrInvalidInput
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts SET password_hash = $2 WHERE id = $1
	`, id.String(), encodedHash)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "account"}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" // unique_violation
}
