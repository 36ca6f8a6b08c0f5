// Package password provides credential hashing and verification for gatehouse.
//
// It implements Argon2id with a PHC-style self-describing encoded string, so
// verification never needs externally stored parameters and cost settings can
// be raised in the field without invalidating existing hashes.
//
// Security notes:
//   - Encoded hashes are treated as untrusted input during Verify and are
//     parsed strictly.
//   - Verification refuses hashes whose parameters exceed reasonable bounds,
//     so an attacker-controlled hash string cannot drive pathological
//     memory/CPU usage.
package password
