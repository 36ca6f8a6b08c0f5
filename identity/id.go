package identity

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/oklog/ulid/v2"
)

// IDSize is the byte length of every identifier kind: 128 bits.
const IDSize = 16

// ID is an opaque fixed-length identifier. Uniqueness is probabilistic but
// treated as guaranteed at this bit length; an ID is never reused across
// records. The zero value is never a valid identifier.
type ID [IDSize]byte

var zeroID ID

// NewID returns a fully random ID from the process CSPRNG.
func NewID() (ID, error) {
	var id ID
	if _, err := rand.Read(id[:]); err != nil {
		return ID{}, err
	}
	return id, nil
}

// IDFromBytes copies b into an ID. It fails on any length other than IDSize.
func IDFromBytes(b []byte) (ID, error) {
	if len(b) != IDSize {
		return ID{}, ErrMalformedID
	}
	var id ID
	copy(id[:], b)
	return id, nil
}

// ParseID decodes the canonical wire form produced by String.
func ParseID(s string) (ID, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return ID{}, ErrMalformedID
	}
	return IDFromBytes(b)
}

// String returns the canonical wire/storage form: base64url, no padding, 22 chars.
func (id ID) String() string { return base64.RawURLEncoding.EncodeToString(id[:]) }

// Bytes returns a copy of the raw identifier bytes.
func (id ID) Bytes() []byte {
	b := make([]byte, IDSize)
	copy(b, id[:])
	return b
}

// IsZero reports whether id is the (invalid) zero identifier.
func (id ID) IsZero() bool { return id == zeroID }

// SessionID identifies a session record. Session IDs are fully random:
// they are embedded in signed tokens and must be unguessable.
type SessionID ID

// NewSessionID returns a new random session identifier.
func NewSessionID() (SessionID, error) {
	id, err := NewID()
	return SessionID(id), err
}

// ParseSessionID decodes a SessionID from its canonical string form.
func ParseSessionID(s string) (SessionID, error) {
	id, err := ParseID(s)
	return SessionID(id), err
}

func (s SessionID) String() string { return ID(s).String() }
func (s SessionID) Bytes() []byte  { return ID(s).Bytes() }
func (s SessionID) IsZero() bool   { return ID(s).IsZero() }

// AccountID identifies an account. Account IDs are ULIDs: 48 bits of
// timestamp plus 80 bits of crypto-random entropy, which keeps primary keys
// lexicographically sortable while remaining 16 bytes like every other ID.
type AccountID ID

// NewAccountID returns a new ULID-based account identifier.
func NewAccountID(now time.Time) (AccountID, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	u, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return AccountID{}, err
	}
	return AccountID(u), nil
}

// ParseAccountID decodes an AccountID from its canonical string form.
func ParseAccountID(s string) (AccountID, error) {
	id, err := ParseID(s)
	return AccountID(id), err
}

func (a AccountID) String() string { return ID(a).String() }
func (a AccountID) Bytes() []byte  { return ID(a).Bytes() }
func (a AccountID) IsZero() bool   { return ID(a).IsZero() }
