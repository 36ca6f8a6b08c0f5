// Package token provides the signed-token primitives for gatehouse.
//
// It is the single source of truth for session/authorization token shape:
//
//	token = base64url( HMAC-SHA256(id) ‖ id )   (no padding, no delimiters)
//
// Design goals:
//   - Keyring-based signing: Sign always uses the current key; Verify accepts
//     {current, previous...} so tokens issued before a rotation stay valid
//     until they expire.
//   - Constant-time signature comparison everywhere.
//   - Purpose scoping: an optional purpose string is bound into the MAC so a
//     token minted for one flow cannot be replayed into another.
//
// Keys are loaded once at startup and never logged or transmitted.
package token
