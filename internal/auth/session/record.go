package session

import (
	"encoding/json"
	"time"

	"gatehouse/identity"
)

// Record is a durable session row, owned exclusively by the Store.
//
// It is created on successful authentication, mutated only to extend
// ExpiresAt (sliding expiration), and deleted on sign-out or revocation.
// The token wrapping its ID is never persisted anywhere.
type Record struct {
	ID        identity.SessionID
	SubjectID identity.AccountID

	CreatedAt time.Time
	ExpiresAt time.Time

	// Attributes is an opaque key-value bag (client platform, token
	// purpose, ...). Nil and empty are equivalent.
	Attributes map[string]string
}

// ActiveAt reports whether the record is logically present at now.
// A record with ExpiresAt <= now is absent even if physically stored.
func (r Record) ActiveAt(now time.Time) bool {
	return r.ExpiresAt.After(now)
}

// Attribute returns the named attribute or "".
func (r Record) Attribute(key string) string {
	if r.Attributes == nil {
		return ""
	}
	return r.Attributes[key]
}

// recordJSON is the serialized form shared by the Redis and Bolt backends.
type recordJSON struct {
	ID         string            `json:"id"`
	SubjectID  string            `json:"subject_id"`
	CreatedAt  time.Time         `json:"created_at"`
	ExpiresAt  time.Time         `json:"expires_at"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

func encodeRecord(rec Record) ([]byte, error) {
	return json.Marshal(recordJSON{
		ID:         rec.ID.String(),
		SubjectID:  rec.SubjectID.String(),
		CreatedAt:  rec.CreatedAt,
		ExpiresAt:  rec.ExpiresAt,
		Attributes: rec.Attributes,
	})
}

func decodeRecord(data []byte) (Record, error) {
	var rr recordJSON
	if err := json.Unmarshal(data, &rr); err != nil {
		return Record{}, err
	}

	rec := Record{
		CreatedAt:  rr.CreatedAt,
		ExpiresAt:  rr.ExpiresAt,
		Attributes: rr.Attributes,
	}
	var err error
	if rec.ID, err = identity.ParseSessionID(rr.ID); err != nil {
		return Record{}, err
	}
	if rec.SubjectID, err = identity.ParseAccountID(rr.SubjectID); err != nil {
		return Record{}, err
	}
	return rec, nil
}
