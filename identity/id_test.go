package identity

import (
	"errors"
	"testing"
	"time"
)

func TestIDRoundTrip(t *testing.T) {
	id, err := NewID()
	if err != nil {
		t.Fatalf("NewID: %v", err)
	}
	if id.IsZero() {
		t.Fatal("NewID returned the zero identifier")
	}

	s := id.String()
	if len(s) != 22 {
		t.Fatalf("String length %d, want 22", len(s))
	}
	got, err := ParseID(s)
	if err != nil {
		t.Fatalf("ParseID: %v", err)
	}
	if got != id {
		t.Fatalf("round trip: got %v, want %v", got, id)
	}
}

func TestParseIDRejectsMalformed(t *testing.T) {
	for _, bad := range []string{
		"",
		"short",
		"not base64 at all!!!!!",
		"AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", // decodes to 24 bytes
	} {
		if _, err := ParseID(bad); !errors.Is(err, ErrMalformedID) {
			t.Fatalf("ParseID(%q): got %v, want ErrMalformedID", bad, err)
		}
	}
}

func TestIDFromBytes(t *testing.T) {
	b := make([]byte, IDSize)
	b[0] = 0x42
	id, err := IDFromBytes(b)
	if err != nil {
		t.Fatalf("IDFromBytes: %v", err)
	}

	// The ID owns its bytes; mutating the input must not change it.
	b[0] = 0xff
	if id[0] != 0x42 {
		t.Fatal("IDFromBytes aliased caller memory")
	}

	if _, err := IDFromBytes(b[:IDSize-1]); !errors.Is(err, ErrMalformedID) {
		t.Fatalf("short input: got %v, want ErrMalformedID", err)
	}
	if _, err := IDFromBytes(append(b, 0)); !errors.Is(err, ErrMalformedID) {
		t.Fatalf("long input: got %v, want ErrMalformedID", err)
	}
}

func TestNewSessionIDUnique(t *testing.T) {
	seen := make(map[SessionID]struct{})
	for i := 0; i < 128; i++ {
		id, err := NewSessionID()
		if err != nil {
			t.Fatalf("NewSessionID: %v", err)
		}
		if id.IsZero() {
			t.Fatal("zero session id")
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("collision at iteration %d", i)
		}
		seen[id] = struct{}{}
	}
}

func TestNewAccountIDSortsByTime(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	earlier, err := NewAccountID(t0)
	if err != nil {
		t.Fatalf("NewAccountID: %v", err)
	}
	later, err := NewAccountID(t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("NewAccountID: %v", err)
	}

	// ULID layout puts the timestamp in the leading bytes, so byte order
	// follows creation order.
	if string(earlier.Bytes()) >= string(later.Bytes()) {
		t.Fatalf("account ids not time-ordered: %v >= %v", earlier, later)
	}

	got, err := ParseAccountID(earlier.String())
	if err != nil {
		t.Fatalf("ParseAccountID: %v", err)
	}
	if got != earlier {
		t.Fatalf("round trip: got %v, want %v", got, earlier)
	}
}
