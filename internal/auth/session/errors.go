package session

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is returned when authentication fails. Unknown
	// identifier and wrong password are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken is returned when a token fails decoding or signature
	// verification (tampered, forged, or malformed). Never retried.
	ErrInvalidToken = errors.New("invalid token")

	// ErrSessionExpired is returned when a well-formed, correctly signed
	// token references a record that is absent, expired, or revoked.
	ErrSessionExpired = errors.New("session expired")

	// ErrOriginNotAllowed is returned for cookie-transported requests from
	// an origin outside the allow-list, even when the token is valid.
	ErrOriginNotAllowed = errors.New("origin not allowed")

	// ErrStoreUnavailable marks a transient store/account-lookup failure,
	// retryable by the caller's policy. Never conflated with a denial.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrNotFound is returned by Store.Touch when the record is absent or
	// already logically expired.
	ErrNotFound = errors.New("session not found")

	// ErrDuplicateID is returned by Store.Put when the id already exists.
	ErrDuplicateID = errors.New("duplicate session id")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// StoreError carries the failing operation and cause of a transient store
// failure. It unwraps to ErrStoreUnavailable so callers branch on the
// sentinel, not on backend error types.
type StoreError struct {
	Op  string
	Err error
}

func (e StoreError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, ErrStoreUnavailable)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrStoreUnavailable, e.Err)
}

func (e StoreError) Unwrap() error { return ErrStoreUnavailable }
