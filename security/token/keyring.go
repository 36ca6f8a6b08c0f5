package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	// SignatureSize is the byte length of every signature (HMAC-SHA256).
	SignatureSize = sha256.Size

	// MinKeyBytes is the minimum accepted key length. 32 bytes matches the
	// HMAC-SHA256 block-independent security target.
	MinKeyBytes = 32
)

// Keyring signs and verifies message authentication codes.
//
// Sign always uses the current key. Verify tries the current key first, then
// each previous key in order, so rotation does not invalidate outstanding
// tokens. The keyring is immutable after construction and safe for
// concurrent use.
type Keyring struct {
	current  []byte
	previous [][]byte
}

// NewKeyring constructs a keyring from a current key and zero or more
// previous keys. A missing current key is a fatal misconfiguration; short
// keys are rejected outright rather than silently weakening the MAC.
func NewKeyring(current []byte, previous ...[]byte) (*Keyring, error) {
	if len(current) == 0 {
		return nil, ErrKeyMissing
	}
	if len(current) < MinKeyBytes {
		return nil, ErrKeyTooShort
	}

	k := &Keyring{current: append([]byte(nil), current...)}
	for _, p := range previous {
		if len(p) == 0 {
			continue
		}
		if len(p) < MinKeyBytes {
			return nil, ErrKeyTooShort
		}
		k.previous = append(k.previous, append([]byte(nil), p...))
	}
	return k, nil
}

// NewKeyringFromHex builds a keyring from hex-encoded key material, the form
// keys take in configuration. previousHex may be a comma-separated list.
func NewKeyringFromHex(currentHex string, previousHex string) (*Keyring, error) {
	current, err := decodeKeyHex(currentHex)
	if err != nil {
		return nil, err
	}

	var previous [][]byte
	for _, part := range strings.Split(previousHex, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		p, err := decodeKeyHex(part)
		if err != nil {
			return nil, err
		}
		previous = append(previous, p)
	}

	return NewKeyring(current, previous...)
}

func decodeKeyHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrKeyMissing
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, ErrKeyMissing
	}
	return b, nil
}

// Sign returns the HMAC-SHA256 of msg under the current key.
// Deterministic: same key and message always yield the same signature.
func (k *Keyring) Sign(msg []byte) []byte {
	m := hmac.New(sha256.New, k.current)
	_, _ = m.Write(msg)
	return m.Sum(nil)
}

// Verify reports whether sig is a valid signature of msg under any key in the
// ring. Comparison is constant time (hmac.Equal); a wrong-length signature is
// a mismatch, never an error.
func (k *Keyring) Verify(msg, sig []byte) bool {
	if len(sig) != SignatureSize {
		return false
	}

	if hmac.Equal(sig, k.Sign(msg)) {
		return true
	}
	for _, prev := range k.previous {
		m := hmac.New(sha256.New, prev)
		_, _ = m.Write(msg)
		if hmac.Equal(sig, m.Sum(nil)) {
			return true
		}
	}
	return false
}
