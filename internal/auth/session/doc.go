// Package session implements gatehouse's authenticated-session core.
//
// The Manager orchestrates sign-in (credential verification), session
// issuance, verification, renewal, and revocation over a pluggable Store.
// Tokens are signed opaque identifiers (security/token); expiry is enforced
// at read time, so a revoked session and a naturally expired one are
// indistinguishable to a caller presenting a stale token.
//
// All durable state lives behind the Store interface; the Manager itself
// holds only immutable configuration and is safe for concurrent use.
package session
