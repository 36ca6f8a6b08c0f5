package session

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"gatehouse/identity"
)

const (
	redisSessionPrefix = "gh:session:"
	redisSubjectPrefix = "gh:subject:"
)

// RedisStore implements Store over Redis.
//
// Records are stored as JSON values with a server-side TTL matching the
// record expiry, so Redis reclaims expired sessions on its own; the read
// path still checks expiry explicitly to honor the read-time contract.
// A per-subject set carries the index needed for DeleteAllForSubject.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed session store.
// The client is owned by the caller; Close is a no-op.
func NewRedisStore(client *redis.Client) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("session: nil redis client")
	}
	return &RedisStore{client: client}, nil
}

// Close is a no-op; the client is owned by the caller.
func (s *RedisStore) Close() error { return nil }

// Put inserts a new record with a TTL matching its expiry.
func (s *RedisStore) Put(ctx context.Context, rec Record) error {
	const op = "session.Put"

	ttl := rec.ExpiresAt.Sub(rec.CreatedAt)
	if ttl <= 0 {
		// Expired at creation: logically absent from the start, nothing
		// worth storing.
		return nil
	}

	data, err := encodeRecord(rec)
	if err != nil {
		return StoreError{Op: op, Err: err}
	}

	ok, err := s.client.SetNX(ctx, redisSessionPrefix+rec.ID.String(), data, ttl).Result()
	if err != nil {
		return StoreError{Op: op, Err: err}
	}
	if !ok {
		return ErrDuplicateID
	}

	// The subject index expires with its longest-lived member (ExpireGT
	// never shortens), so ids of naturally-expired sessions cannot pile
	// up forever. Stale members between a session's expiry and the set's
	// are dropped by DeleteAllForSubject's key-level DEL either way.
	setKey := redisSubjectPrefix + rec.SubjectID.String()
	if err := s.client.SAdd(ctx, setKey, rec.ID.String()).Err(); err != nil {
		return StoreError{Op: op, Err: err}
	}
	if err := s.client.ExpireGT(ctx, setKey, ttl).Err(); err != nil {
		return StoreError{Op: op, Err: err}
	}
	return nil
}

// Get loads a record, treating expired values as absent.
func (s *RedisStore) Get(ctx context.Context, now time.Time, id identity.SessionID) (Record, bool, error) {
	const op = "session.Get"

	rec, found, err := s.load(ctx, op, id)
	if err != nil || !found {
		return Record{}, false, err
	}
	if !rec.ActiveAt(now) {
		return Record{}, false, nil
	}
	return rec, true, nil
}

// Touch extends expiry for a live record, moving the Redis TTL with it.
func (s *RedisStore) Touch(ctx context.Context, now time.Time, id identity.SessionID, newExpiresAt time.Time) error {
	const op = "session.Touch"

	rec, found, err := s.load(ctx, op, id)
	if err != nil {
		return err
	}
	if !found || !rec.ActiveAt(now) {
		return ErrNotFound
	}

	ttl := newExpiresAt.Sub(now)
	if ttl <= 0 {
		return ErrNotFound
	}

	rec.ExpiresAt = newExpiresAt
	data, err := encodeRecord(rec)
	if err != nil {
		return StoreError{Op: op, Err: err}
	}
	if err := s.client.Set(ctx, redisSessionPrefix+id.String(), data, ttl).Err(); err != nil {
		return StoreError{Op: op, Err: err}
	}
	// Sliding renewal moves the subject index along with the record.
	if err := s.client.ExpireGT(ctx, redisSubjectPrefix+rec.SubjectID.String(), ttl).Err(); err != nil {
		return StoreError{Op: op, Err: err}
	}
	return nil
}

// Take atomically removes and returns a live record. GETDEL guarantees
// only one concurrent taker receives the value.
func (s *RedisStore) Take(ctx context.Context, now time.Time, id identity.SessionID) (Record, bool, error) {
	const op = "session.Take"

	val, err := s.client.GetDel(ctx, redisSessionPrefix+id.String()).Result()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, StoreError{Op: op, Err: err}
	}

	rec, err := decodeRecord([]byte(val))
	if err != nil {
		return Record{}, false, StoreError{Op: op, Err: err}
	}

	if err := s.client.SRem(ctx, redisSubjectPrefix+rec.SubjectID.String(), id.String()).Err(); err != nil {
		return Record{}, false, StoreError{Op: op, Err: err}
	}
	if !rec.ActiveAt(now) {
		return Record{}, false, nil
	}
	return rec, true, nil
}

// Delete removes a record. Idempotent.
func (s *RedisStore) Delete(ctx context.Context, id identity.SessionID) error {
	const op = "session.Delete"

	rec, found, err := s.load(ctx, op, id)
	if err != nil {
		return err
	}
	if found {
		if err := s.client.SRem(ctx, redisSubjectPrefix+rec.SubjectID.String(), id.String()).Err(); err != nil {
			return StoreError{Op: op, Err: err}
		}
	}
	if err := s.client.Del(ctx, redisSessionPrefix+id.String()).Err(); err != nil {
		return StoreError{Op: op, Err: err}
	}
	return nil
}

// DeleteAllForSubject removes every record owned by subject.
func (s *RedisStore) DeleteAllForSubject(ctx context.Context, subject identity.AccountID) error {
	const op = "session.DeleteAllForSubject"

	setKey := redisSubjectPrefix + subject.String()
	ids, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return StoreError{Op: op, Err: err}
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, redisSessionPrefix+id)
	}
	keys = append(keys, setKey)

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return StoreError{Op: op, Err: err}
	}
	return nil
}

func (s *RedisStore) load(ctx context.Context, op string, id identity.SessionID) (Record, bool, error) {
	val, err := s.client.Get(ctx, redisSessionPrefix+id.String()).Result()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, StoreError{Op: op, Err: err}
	}

	rec, err := decodeRecord([]byte(val))
	if err != nil {
		return Record{}, false, StoreError{Op: op, Err: err}
	}
	return rec, true, nil
}
