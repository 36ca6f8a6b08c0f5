package token

import (
	"encoding/base64"

	"gatehouse/identity"
)

// Codec is the bijective mapping between identifiers and transportable
// token strings. A token that decodes successfully was produced by a holder
// of a keyring key and has not been altered in transit.
type Codec struct {
	keys *Keyring
}

// NewCodec constructs a Codec over the given keyring.
func NewCodec(keys *Keyring) *Codec {
	return &Codec{keys: keys}
}

// Encode produces the wire form of id: base64url(sig ‖ id), no padding.
// The signature prefix has fixed width, so no delimiter is needed.
func (c *Codec) Encode(id identity.ID) string {
	return c.EncodeScoped("", id)
}

// EncodeScoped is Encode with a purpose string bound into the MAC.
// The purpose itself is not carried in the token; both sides must agree on
// it out-of-band, which is exactly what prevents cross-purpose replay.
func (c *Codec) EncodeScoped(purpose string, id identity.ID) string {
	sig := c.keys.Sign(scopedMessage(purpose, id))

	buf := make([]byte, 0, SignatureSize+identity.IDSize)
	buf = append(buf, sig...)
	buf = append(buf, id[:]...)
	return base64.RawURLEncoding.EncodeToString(buf)
}

// Decode parses and verifies a token. Empty, non-base64, truncated, or
// tampered input all yield ok=false; Decode never panics.
func (c *Codec) Decode(tok string) (identity.ID, bool) {
	return c.DecodeScoped("", tok)
}

// DecodeScoped verifies a token whose MAC was bound to purpose.
// A token minted under a different purpose fails verification even when it
// wraps the same identifier.
func (c *Codec) DecodeScoped(purpose string, tok string) (identity.ID, bool) {
	if tok == "" {
		return identity.ID{}, false
	}

	raw, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil {
		return identity.ID{}, false
	}
	if len(raw) != SignatureSize+identity.IDSize {
		return identity.ID{}, false
	}

	sig := raw[:SignatureSize]
	id, err := identity.IDFromBytes(raw[SignatureSize:])
	if err != nil {
		return identity.ID{}, false
	}

	if !c.keys.Verify(scopedMessage(purpose, id), sig) {
		return identity.ID{}, false
	}
	return id, true
}

// scopedMessage builds the signed payload. The purpose prefix is
// length-unambiguous because identifiers are fixed width and the separator
// never appears in the binary suffix position.
func scopedMessage(purpose string, id identity.ID) []byte {
	if purpose == "" {
		return id[:]
	}
	msg := make([]byte, 0, len(purpose)+1+identity.IDSize)
	msg = append(msg, purpose...)
	msg = append(msg, ':')
	msg = append(msg, id[:]...)
	return msg
}
