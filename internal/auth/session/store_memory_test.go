package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"gatehouse/identity"
)

func newTestRecord(t *testing.T, now time.Time, ttl time.Duration) Record {
	t.Helper()
	id, err := identity.NewSessionID()
	if err != nil {
		t.Fatalf("NewSessionID: %v", err)
	}
	acct, err := identity.NewAccountID(now)
	if err != nil {
		t.Fatalf("NewAccountID: %v", err)
	}
	return Record{
		ID:         id,
		SubjectID:  acct,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
		Attributes: map[string]string{"device": "test"},
	}
}

func TestMemoryStorePutGet(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	s := NewMemoryStore()
	defer s.Close()

	rec := newTestRecord(t, now, time.Hour)
	if err := s.Put(ctx, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, found, err := s.Get(ctx, now, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found {
		t.Fatal("Get: record not found")
	}
	if got.ID != rec.ID || got.SubjectID != rec.SubjectID {
		t.Fatalf("Get: identity mismatch: got %v/%v", got.ID, got.SubjectID)
	}
	if got.Attribute("device") != "test" {
		t.Fatalf("Get: attribute lost: %q", got.Attribute("device"))
	}
}

func TestMemoryStoreDuplicateID(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	s := NewMemoryStore()

	rec := newTestRecord(t, now, time.Hour)
	if err := s.Put(ctx, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, rec); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("Put duplicate: got %v, want ErrDuplicateID", err)
	}
}

func TestMemoryStoreExpiryBoundary(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	s := NewMemoryStore()

	rec := newTestRecord(t, now, time.Hour)
	if err := s.Put(ctx, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// One nanosecond before expiry the session is alive.
	_, found, err := s.Get(ctx, rec.ExpiresAt.Add(-time.Nanosecond), rec.ID)
	if err != nil || !found {
		t.Fatalf("Get before expiry: found=%v err=%v", found, err)
	}

	// At the expiry instant it is indistinguishable from absent.
	_, found, err = s.Get(ctx, rec.ExpiresAt, rec.ID)
	if err != nil {
		t.Fatalf("Get at expiry: %v", err)
	}
	if found {
		t.Fatal("Get at expiry: expired record reported as live")
	}
}

func TestMemoryStoreZeroTTLNeverLive(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	s := NewMemoryStore()

	rec := newTestRecord(t, now, 0)
	if err := s.Put(ctx, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}
	_, found, err := s.Get(ctx, now, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found {
		t.Fatal("zero-ttl record reported as live")
	}
}

func TestMemoryStoreTouch(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	s := NewMemoryStore()

	rec := newTestRecord(t, now, time.Hour)
	if err := s.Put(ctx, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	newExpiry := now.Add(2 * time.Hour)
	if err := s.Touch(ctx, now, rec.ID, newExpiry); err != nil {
		t.Fatalf("Touch: %v", err)
	}

	got, found, err := s.Get(ctx, now.Add(90*time.Minute), rec.ID)
	if err != nil || !found {
		t.Fatalf("Get after touch: found=%v err=%v", found, err)
	}
	if !got.ExpiresAt.Equal(newExpiry) {
		t.Fatalf("ExpiresAt = %v, want %v", got.ExpiresAt, newExpiry)
	}
}

func TestMemoryStoreTouchExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	s := NewMemoryStore()

	rec := newTestRecord(t, now, time.Minute)
	if err := s.Put(ctx, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}
	err := s.Touch(ctx, now.Add(time.Hour), rec.ID, now.Add(2*time.Hour))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Touch expired: got %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreDeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	s := NewMemoryStore()

	rec := newTestRecord(t, now, time.Hour)
	if err := s.Put(ctx, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	_, found, err := s.Get(ctx, now, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found {
		t.Fatal("deleted record still live")
	}
}

func TestMemoryStoreTake(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	s := NewMemoryStore()
	defer s.Close()

	rec := newTestRecord(t, now, time.Hour)
	if err := s.Put(ctx, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, taken, err := s.Take(ctx, now, rec.ID)
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	if !taken {
		t.Fatal("Take: live record not taken")
	}
	if got.SubjectID != rec.SubjectID {
		t.Fatalf("Take: subject mismatch: %v != %v", got.SubjectID, rec.SubjectID)
	}

	// The record was removed with the take.
	if _, taken, err := s.Take(ctx, now, rec.ID); err != nil || taken {
		t.Fatalf("second Take: taken=%v err=%v, want taken=false", taken, err)
	}
	if _, found, err := s.Get(ctx, now, rec.ID); err != nil || found {
		t.Fatalf("Get after Take: found=%v err=%v, want found=false", found, err)
	}
}

func TestMemoryStoreTakeExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	s := NewMemoryStore()
	defer s.Close()

	rec := newTestRecord(t, now, time.Minute)
	if err := s.Put(ctx, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if _, taken, err := s.Take(ctx, now.Add(2*time.Minute), rec.ID); err != nil || taken {
		t.Fatalf("Take of expired record: taken=%v err=%v, want taken=false", taken, err)
	}
}

func TestMemoryStoreDeleteAllForSubject(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	s := NewMemoryStore()

	subject, err := identity.NewAccountID(now)
	if err != nil {
		t.Fatalf("NewAccountID: %v", err)
	}
	other := newTestRecord(t, now, time.Hour)

	var mine []Record
	for i := 0; i < 3; i++ {
		rec := newTestRecord(t, now, time.Hour)
		rec.SubjectID = subject
		if err := s.Put(ctx, rec); err != nil {
			t.Fatalf("Put: %v", err)
		}
		mine = append(mine, rec)
	}
	if err := s.Put(ctx, other); err != nil {
		t.Fatalf("Put other: %v", err)
	}

	if err := s.DeleteAllForSubject(ctx, subject); err != nil {
		t.Fatalf("DeleteAllForSubject: %v", err)
	}
	for _, rec := range mine {
		_, found, err := s.Get(ctx, now, rec.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if found {
			t.Fatalf("session %v survived subject revocation", rec.ID)
		}
	}
	_, found, err := s.Get(ctx, now, other.ID)
	if err != nil || !found {
		t.Fatalf("unrelated session lost: found=%v err=%v", found, err)
	}
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	s := NewMemoryStore()

	rec := newTestRecord(t, now, time.Hour)
	if err := s.Put(ctx, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, _, err := s.Get(ctx, now, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got.Attributes["device"] = "mutated"

	again, _, err := s.Get(ctx, now, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if again.Attribute("device") != "test" {
		t.Fatal("caller mutation leaked into the store")
	}
}
