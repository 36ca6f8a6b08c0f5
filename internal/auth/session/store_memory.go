package session

import (
	"context"
	"sync"
	"time"

	"gatehouse/identity"
)

// MemoryStore is the in-process reference Store for development and tests.
//
// Expired records are dropped lazily on read and whenever a write touches
// their subject, so memory does not grow unbounded under normal churn.
type MemoryStore struct {
	mu       sync.Mutex
	records  map[identity.SessionID]Record
	subjects map[identity.AccountID]map[identity.SessionID]struct{}
}

// NewMemoryStore constructs an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[identity.SessionID]Record),
		subjects: make(map[identity.AccountID]map[identity.SessionID]struct{}),
	}
}

// Close closes the store (noop for in-memory).
func (s *MemoryStore) Close() error { return nil }

// Put inserts a new record.
func (s *MemoryStore) Put(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; exists {
		return ErrDuplicateID
	}

	s.records[rec.ID] = cloneRecord(rec)

	set := s.subjects[rec.SubjectID]
	if set == nil {
		set = make(map[identity.SessionID]struct{})
		s.subjects[rec.SubjectID] = set
	}
	set[rec.ID] = struct{}{}
	return nil
}

// Get loads a record, enforcing expiry at read time.
func (s *MemoryStore) Get(ctx context.Context, now time.Time, id identity.SessionID) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return Record{}, false, nil
	}
	if !rec.ActiveAt(now) {
		s.dropLocked(id)
		return Record{}, false, nil
	}
	return cloneRecord(rec), true, nil
}

// Touch extends expiry for a live record.
func (s *MemoryStore) Touch(ctx context.Context, now time.Time, id identity.SessionID, newExpiresAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	if !rec.ActiveAt(now) {
		s.dropLocked(id)
		return ErrNotFound
	}

	rec.ExpiresAt = newExpiresAt
	s.records[id] = rec
	return nil
}

// Take atomically removes and returns a live record.
func (s *MemoryStore) Take(ctx context.Context, now time.Time, id identity.SessionID) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return Record{}, false, nil
	}
	if !rec.ActiveAt(now) {
		s.dropLocked(id)
		return Record{}, false, nil
	}
	out := cloneRecord(rec)
	s.dropLocked(id)
	return out, true, nil
}

// Delete removes a record. Deleting an absent id is not an error.
func (s *MemoryStore) Delete(ctx context.Context, id identity.SessionID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.dropLocked(id)
	return nil
}

// DeleteAllForSubject removes every record owned by subject.
func (s *MemoryStore) DeleteAllForSubject(ctx context.Context, subject identity.AccountID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.subjects[subject] {
		delete(s.records, id)
	}
	delete(s.subjects, subject)
	return nil
}

func (s *MemoryStore) dropLocked(id identity.SessionID) {
	rec, ok := s.records[id]
	if !ok {
		return
	}
	delete(s.records, id)

	if set := s.subjects[rec.SubjectID]; set != nil {
		delete(set, id)
		if len(set) == 0 {
			delete(s.subjects, rec.SubjectID)
		}
	}
}

func cloneRecord(rec Record) Record {
	if rec.Attributes == nil {
		return rec
	}
	attrs := make(map[string]string, len(rec.Attributes))
	for k, v := range rec.Attributes {
		attrs[k] = v
	}
	rec.Attributes = attrs
	return rec
}
