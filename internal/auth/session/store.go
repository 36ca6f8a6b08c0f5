package session

import (
	"context"
	"time"

	"gatehouse/identity"
)

// Store abstracts session persistence.
//
// Expiry is enforced at read time: Get and Touch treat a record with
// ExpiresAt <= now as absent regardless of physical deletion timing, so
// implementations may delete lazily. The `now` parameter is always passed
// explicitly to keep implementations clock-free and testable.
//
// Transient I/O failures are reported as StoreError (unwrapping to
// ErrStoreUnavailable); logical outcomes use the package sentinels.
type Store interface {
	// Put inserts a new record. Returns ErrDuplicateID if the id exists.
	Put(ctx context.Context, rec Record) error

	// Get loads a record. found is false both when absent and when
	// present-but-expired.
	Get(ctx context.Context, now time.Time, id identity.SessionID) (rec Record, found bool, err error)

	// Touch extends expiry only; used for sliding-expiration renewal.
	// Returns ErrNotFound if the record is absent or already expired.
	Touch(ctx context.Context, now time.Time, id identity.SessionID, newExpiresAt time.Time) error

	// Delete removes a record. Idempotent: deleting an absent id is not an
	// error.
	Delete(ctx context.Context, id identity.SessionID) error

	// Take atomically removes and returns a live record. taken is false
	// when the record is absent, expired, or already removed by a
	// concurrent taker, so at most one caller ever receives a given
	// record. This is the single-spend primitive for one-time tokens.
	Take(ctx context.Context, now time.Time, id identity.SessionID) (rec Record, taken bool, err error)

	// DeleteAllForSubject removes every record owned by subject
	// ("sign out everywhere" / credential-compromise response).
	DeleteAllForSubject(ctx context.Context, subject identity.AccountID) error

	// Close releases store resources (no-op where the backing handle is
	// owned by the caller).
	Close() error
}
