package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gatehouse/identity"
	"gatehouse/security/password"
	"gatehouse/security/token"
)

// putAttempts bounds ID regeneration when a freshly generated session
// identifier collides with an existing one.
const putAttempts = 3

// dummyPassword is hashed once at startup so that credential checks for
// unknown identifiers still run a full argon2id verification.
const dummyPassword = "gatehouse-dummy-credential"

// Manager composes the credential hasher, token codec, account store,
// session store and origin policy into the authentication workflows:
// credential verification, session issuance, verification, renewal and
// revocation.
type Manager struct {
	cfg      Config
	log      *slog.Logger
	codec    *token.Codec
	hasher   password.Config
	accounts identity.AccountStore
	store    Store
	origins  OriginPolicy

	// dummyHash is verified against when the account lookup misses, so
	// unknown and known identifiers take comparable time.
	dummyHash string
}

// NewManager wires the session manager. It derives the signing keyring from
// cfg and precomputes the dummy credential hash.
func NewManager(cfg Config, log *slog.Logger, hasher password.Config, accounts identity.AccountStore, store Store) (*Manager, error) {
	keys, err := cfg.Keyring()
	if err != nil {
		return nil, err
	}
	dummy, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("session: precompute dummy hash: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		cfg:       cfg,
		log:       log,
		codec:     token.NewCodec(keys),
		hasher:    hasher,
		accounts:  accounts,
		store:     store,
		origins:   NewOriginPolicy(cfg.AllowedOrigins),
		dummyHash: dummy,
	}, nil
}

// Config returns the manager's configuration.
func (m *Manager) Config() Config { return m.cfg }

// Authenticate checks an email/password pair against the account store and
// returns the account ID on success. Unknown identifiers and wrong passwords
// both return ErrInvalidCredentials; unknown identifiers still pay for a
// full hash verification against a dummy digest.
func (m *Manager) Authenticate(ctx context.Context, now time.Time, email, plaintext string) (identity.AccountID, error) {
	acct, err := m.accounts.GetByEmail(ctx, identity.NormalizeEmail(email))
	if err != nil {
		if identity.IsNotFound(err) {
			_, _ = m.hasher.Verify(m.dummyHash, plaintext)
			return identity.AccountID{}, ErrInvalidCredentials
		}
		return identity.AccountID{}, &StoreError{Op: "authenticate", Err: err}
	}

	ok, err := m.hasher.Verify(acct.PasswordHash, plaintext)
	if err != nil {
		m.log.ErrorContext(ctx, "session.credential.hash_invalid",
			slog.String("account_id", acct.ID.String()))
		return identity.AccountID{}, ErrInvalidCredentials
	}
	if !ok {
		return identity.AccountID{}, ErrInvalidCredentials
	}
	return acct.ID, nil
}

// StartSession issues a new session for subject with the given lifetime and
// returns the signed bearer token alongside the stored record. The ttl is
// honored exactly as given, including zero and negative values, which
// produce a record that is already expired and therefore never verifiable.
func (m *Manager) StartSession(ctx context.Context, now time.Time, subject identity.AccountID, ttl time.Duration, attrs map[string]string) (string, Record, error) {
	rec := Record{
		SubjectID:  subject,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
		Attributes: attrs,
	}

	for attempt := 0; attempt < putAttempts; attempt++ {
		id, err := identity.NewSessionID()
		if err != nil {
			return "", Record{}, fmt.Errorf("session: generate id: %w", err)
		}
		rec.ID = id

		err = m.store.Put(ctx, rec)
		if err == nil {
			return m.codec.Encode(identity.ID(rec.ID)), rec, nil
		}
		if errors.Is(err, ErrDuplicateID) {
			m.log.WarnContext(ctx, "session.id.collision",
				slog.String("session_id", id.String()))
			continue
		}
		return "", Record{}, err
	}
	return "", Record{}, &StoreError{Op: "start", Err: ErrDuplicateID}
}

// VerifySession validates a bearer token and returns the live session record.
// A token that fails signature or format checks yields ErrInvalidToken; a
// well-formed token whose session is absent, expired or revoked yields
// ErrSessionExpired. With sliding expiration enabled, each successful
// verification pushes the expiry forward by the configured session TTL.
func (m *Manager) VerifySession(ctx context.Context, now time.Time, tok string) (Record, error) {
	id, ok := m.codec.Decode(tok)
	if !ok {
		return Record{}, ErrInvalidToken
	}

	rec, found, err := m.store.Get(ctx, now, identity.SessionID(id))
	if err != nil {
		return Record{}, err
	}
	if !found {
		return Record{}, ErrSessionExpired
	}

	if m.cfg.SlidingExpiration {
		newExpiry := now.Add(m.cfg.SessionTTL)
		if newExpiry.After(rec.ExpiresAt) {
			if err := m.store.Touch(ctx, now, rec.ID, newExpiry); err != nil {
				if errors.Is(err, ErrNotFound) {
					// Session was revoked or expired between Get and Touch.
					return Record{}, ErrSessionExpired
				}
				return Record{}, err
			}
			rec.ExpiresAt = newExpiry
		}
	}
	return rec, nil
}

// EndSession revokes the session named by tok. Malformed or forged tokens
// are ignored so logout never leaks token validity; revoking an already
// absent session is a no-op.
func (m *Manager) EndSession(ctx context.Context, tok string) error {
	id, ok := m.codec.Decode(tok)
	if !ok {
		return nil
	}
	return m.store.Delete(ctx, identity.SessionID(id))
}

// EndAllSessions revokes every session belonging to subject.
func (m *Manager) EndAllSessions(ctx context.Context, subject identity.AccountID) error {
	return m.store.DeleteAllForSubject(ctx, subject)
}

// CheckOrigin enforces the allow-list for a cross-origin caller. An empty
// origin means the header was absent (non-browser client) and is allowed.
// Callers are expected to recognize an Origin matching the request's own
// scheme and host as same-origin before consulting this policy; browsers
// attach the header to every POST, same-origin ones included.
func (m *Manager) CheckOrigin(origin string) error {
	if origin == "" {
		return nil
	}
	if !m.origins.IsAllowedOrigin(origin) {
		return ErrOriginNotAllowed
	}
	return nil
}
