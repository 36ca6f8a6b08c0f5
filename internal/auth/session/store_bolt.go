package session

import (
	"bytes"
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"gatehouse/identity"
)

var (
	boltSessionsBucket = []byte("sessions")
	boltSubjectsBucket = []byte("subject_index")
)

// BoltStore implements Store over an embedded bbolt database: a durable
// single-node backend for deployments without Postgres or Redis.
//
// Layout: sessions bucket maps id -> JSON record; subject_index maps
// "<subject>:<id>" -> nil, scanned by prefix for DeleteAllForSubject.
type BoltStore struct {
	db      *bolt.DB
	ownedDB bool
}

// NewBoltStore wraps an already-open bbolt database.
func NewBoltStore(db *bolt.DB) (*BoltStore, error) {
	if db == nil {
		return nil, fmt.Errorf("session: nil bolt db")
	}
	s := &BoltStore{db: db}
	if err := s.ensureBuckets(); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenBoltStore opens (creating if needed) a bbolt database at path.
// The returned store owns the database and closes it on Close.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("session: opening bolt db: %w", err)
	}
	s := &BoltStore{db: db, ownedDB: true}
	if err := s.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database when this store owns it.
func (s *BoltStore) Close() error {
	if !s.ownedDB {
		return nil
	}
	return s.db.Close()
}

func (s *BoltStore) ensureBuckets() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(boltSessionsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(boltSubjectsBucket)
		return err
	})
}

// Put inserts a new record.
func (s *BoltStore) Put(ctx context.Context, rec Record) error {
	const op = "session.Put"

	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := encodeRecord(rec)
	if err != nil {
		return StoreError{Op: op, Err: err}
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(boltSessionsBucket)
		key := []byte(rec.ID.String())
		if b.Get(key) != nil {
			return ErrDuplicateID
		}
		if err := b.Put(key, data); err != nil {
			return err
		}
		return tx.Bucket(boltSubjectsBucket).Put(subjectIndexKey(rec.SubjectID, rec.ID), nil)
	})
	if err == ErrDuplicateID {
		return err
	}
	if err != nil {
		return StoreError{Op: op, Err: err}
	}
	return nil
}

// Get loads a record, treating expired values as absent.
func (s *BoltStore) Get(ctx context.Context, now time.Time, id identity.SessionID) (Record, bool, error) {
	const op = "session.Get"

	if err := ctx.Err(); err != nil {
		return Record{}, false, err
	}

	var rec Record
	found := false

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(boltSessionsBucket).Get([]byte(id.String()))
		if data == nil {
			return nil
		}
		r, err := decodeRecord(data)
		if err != nil {
			return err
		}
		if !r.ActiveAt(now) {
			return nil
		}
		rec = r
		found = true
		return nil
	})
	if err != nil {
		return Record{}, false, StoreError{Op: op, Err: err}
	}
	return rec, found, nil
}

// Touch extends expiry for a live record.
func (s *BoltStore) Touch(ctx context.Context, now time.Time, id identity.SessionID, newExpiresAt time.Time) error {
	const op = "session.Touch"

	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(boltSessionsBucket)
		key := []byte(id.String())
		data := b.Get(key)
		if data == nil {
			return ErrNotFound
		}
		rec, err := decodeRecord(data)
		if err != nil {
			return err
		}
		if !rec.ActiveAt(now) {
			return ErrNotFound
		}
		rec.ExpiresAt = newExpiresAt

		out, err := encodeRecord(rec)
		if err != nil {
			return err
		}
		return b.Put(key, out)
	})
	if err == ErrNotFound {
		return err
	}
	if err != nil {
		return StoreError{Op: op, Err: err}
	}
	return nil
}

// Take atomically removes and returns a live record. The read, liveness
// check, and delete share one write transaction, so concurrent takers
// serialize on it.
func (s *BoltStore) Take(ctx context.Context, now time.Time, id identity.SessionID) (Record, bool, error) {
	const op = "session.Take"

	if err := ctx.Err(); err != nil {
		return Record{}, false, err
	}

	var (
		rec   Record
		taken bool
	)

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(boltSessionsBucket)
		key := []byte(id.String())
		data := b.Get(key)
		if data == nil {
			return nil
		}
		r, err := decodeRecord(data)
		if err != nil {
			return err
		}
		if err := b.Delete(key); err != nil {
			return err
		}
		if err := tx.Bucket(boltSubjectsBucket).Delete(subjectIndexKey(r.SubjectID, r.ID)); err != nil {
			return err
		}
		if !r.ActiveAt(now) {
			return nil
		}
		rec = r
		taken = true
		return nil
	})
	if err != nil {
		return Record{}, false, StoreError{Op: op, Err: err}
	}
	return rec, taken, nil
}

// Delete removes a record. Idempotent.
func (s *BoltStore) Delete(ctx context.Context, id identity.SessionID) error {
	const op = "session.Delete"

	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(boltSessionsBucket)
		key := []byte(id.String())
		data := b.Get(key)
		if data == nil {
			return nil
		}
		rec, err := decodeRecord(data)
		if err != nil {
			return err
		}
		if err := b.Delete(key); err != nil {
			return err
		}
		return tx.Bucket(boltSubjectsBucket).Delete(subjectIndexKey(rec.SubjectID, rec.ID))
	})
	if err != nil {
		return StoreError{Op: op, Err: err}
	}
	return nil
}

// DeleteAllForSubject removes every record owned by subject via a prefix
// scan over the subject index.
func (s *BoltStore) DeleteAllForSubject(ctx context.Context, subject identity.AccountID) error {
	const op = "session.DeleteAllForSubject"

	if err := ctx.Err(); err != nil {
		return err
	}

	prefix := []byte(subject.String() + ":")

	err := s.db.Update(func(tx *bolt.Tx) error {
		sessions := tx.Bucket(boltSessionsBucket)
		index := tx.Bucket(boltSubjectsBucket)

		c := index.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			sessionID := k[len(prefix):]
			if err := sessions.Delete(sessionID); err != nil {
				return err
			}
			if err := c.Delete(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return StoreError{Op: op, Err: err}
	}
	return nil
}

func subjectIndexKey(subject identity.AccountID, id identity.SessionID) []byte {
	return []byte(subject.String() + ":" + id.String())
}

