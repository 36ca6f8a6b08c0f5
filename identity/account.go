package identity

import (
	"context"
	"time"
)

// Account is gatehouse's security principal.
//
// PasswordHash is a self-describing encoded credential hash (PHC string).
// The plaintext credential is never stored anywhere.
type Account struct {
	ID        AccountID
	Email     string
	EmailNorm string

	PasswordHash string

	CreatedAt time.Time
}

// CreateAccountInput describes an account registration.
// Email is normalized by the store; PasswordHash must already be encoded.
type CreateAccountInput struct {
	Email        string
	PasswordHash string
	Now          time.Time
}

// AccountStore is the account persistence boundary.
//
// The session manager only reads through this interface during
// authentication; creation and credential rotation are used by the
// registration and password-reset flows.
type AccountStore interface {
	// Create inserts a new account. Returns a ConflictError on a duplicate
	// normalized email.
	Create(ctx context.Context, in CreateAccountInput) (Account, error)

	// GetByEmail loads an account by normalized email. Returns ErrNotFound
	// when no such account exists.
	GetByEmail(ctx context.Context, emailNorm string) (Account, error)

	// GetByID loads an account by ID. Returns ErrNotFound when absent.
	GetByID(ctx context.Context, id AccountID) (Account, error)

	// UpdatePasswordHash replaces the stored credential hash.
	// Returns ErrNotFound when the account is absent.
	UpdatePasswordHash(ctx context.Context, id AccountID, encodedHash string) error
}
