package identity

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process AccountStore for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[AccountID]Account
	byEmail map[string]AccountID
}

// NewMemoryStore constructs an empty in-memory account store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[AccountID]Account),
		byEmail: make(map[string]AccountID),
	}
}

// Create inserts a new account, enforcing email uniqueness.
func (s *MemoryStore) Create(ctx context.Context, in CreateAccountInput) (Account, error) {
	const op = "identity.Create"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

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

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[acct.EmailNorm]; exists {
		return Account{}, ConflictError{Op: op, Field: "email"}
	}
	s.byID[acct.ID] = acct
	s.byEmail[acct.EmailNorm] = acct.ID

	return acct, nil
}

// GetByEmail loads an account by normalized email.
func (s *MemoryStore) GetByEmail(ctx context.Context, emailNorm string) (Account, error) {
	const op = "identity.GetByEmail"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[emailNorm]
	if !ok {
		return Account{}, NotFoundError{Op: op, Resource: "account"}
	}
	return s.byID[id], nil
}

// GetByID loads an account by ID.
func (s *MemoryStore) GetByID(ctx context.Context, id AccountID) (Account, error) {
	const op = "identity.GetByID"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.byID[id]
	if !ok {
		return Account{}, NotFoundError{Op: op, Resource: "account"}
	}
	return acct, nil
}

// UpdatePasswordHash replaces the stored credential hash.
func (s *MemoryStore) UpdatePasswordHash(ctx context.Context, id AccountID, encodedHash string) error {
	const op = "identity.UpdatePasswordHash"

	if err := ctx.Err(); err != nil {
		return err
	}
	if encodedHash == "" {
		return ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.byID[id]
	if !ok {
		return NotFoundError{Op: op, Resource: "account"}
	}
	acct.PasswordHash = encodedHash
	s.byID[id] = acct
	return nil
}
