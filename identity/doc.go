// Package identity implements gatehouse's identity foundation.
//
// It defines the fixed-length identifier value types used across the
// subsystem (session IDs, account IDs), the Account model with its hashed
// credential, and the account persistence boundary consumed by the session
// manager during authentication.
//
// This package is intentionally dependency-light and security-first.
package identity
