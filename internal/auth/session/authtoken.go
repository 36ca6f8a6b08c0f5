package session

import (
	"context"
	"fmt"
	"time"

	"gatehouse/identity"
)

// purposeAttr records the scope a one-time token was minted for, so a token
// minted for one workflow can never authorize another.
const purposeAttr = "purpose"

// Scoped token purposes used by the account workflows.
const (
	PurposePasswordReset     = "password-reset"
	PurposeEmailVerification = "email-verify"
)

// IssueScopedToken mints a one-time authorization token bound to the given
// purpose. The backing record lives in the session store like any session
// but carries the purpose as an attribute, and the token signature covers
// the purpose, so it is rejected by plain session verification.
func (m *Manager) IssueScopedToken(ctx context.Context, now time.Time, purpose string, subject identity.AccountID, ttl time.Duration) (string, error) {
	rec := Record{
		SubjectID:  subject,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
		Attributes: map[string]string{purposeAttr: purpose},
	}

	for attempt := 0; attempt < putAttempts; attempt++ {
		id, err := identity.NewSessionID()
		if err != nil {
			return "", fmt.Errorf("session: generate id: %w", err)
		}
		rec.ID = id

		err = m.store.Put(ctx, rec)
		if err == nil {
			return m.codec.EncodeScoped(purpose, identity.ID(rec.ID)), nil
		}
		if err == ErrDuplicateID {
			continue
		}
		return "", err
	}
	return "", &StoreError{Op: "issue_scoped", Err: ErrDuplicateID}
}

// ConsumeScopedToken validates a one-time token for the given purpose and
// atomically spends it, returning the subject it was issued for. The spend
// rides on Store.Take, which removes the record and reports whether this
// caller actually took it; concurrent presentations of the same token
// therefore grant at most once, and the losers see ErrSessionExpired.
func (m *Manager) ConsumeScopedToken(ctx context.Context, now time.Time, purpose string, tok string) (identity.AccountID, error) {
	id, ok := m.codec.DecodeScoped(purpose, tok)
	if !ok {
		return identity.AccountID{}, ErrInvalidToken
	}

	rec, taken, err := m.store.Take(ctx, now, identity.SessionID(id))
	if err != nil {
		return identity.AccountID{}, err
	}
	if !taken {
		return identity.AccountID{}, ErrSessionExpired
	}
	if rec.Attribute(purposeAttr) != purpose {
		return identity.AccountID{}, ErrInvalidToken
	}
	return rec.SubjectID, nil
}
