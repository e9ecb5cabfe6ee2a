package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists token records keyed by device slot. Save with a zero TTL
// persists without expiry; implementations must write token and user
// atomically so a loaded record is never half of a session.
type Store interface {
	Load(ctx context.Context, deviceID string) (*Record, error)
	Save(ctx context.Context, deviceID string, rec *Record, ttl time.Duration) error
	Clear(ctx context.Context, deviceID string) error
}

// RedisStore keeps records as JSON blobs under prefix:deviceID.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore returns a store writing under the given key prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "lmtok"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(deviceID string) string {
	return s.prefix + ":" + deviceID
}

// Load fetches and decodes the record for the device. A corrupt blob is
// deleted and reported as ErrCorrupt; a half-written record is reported as
// ErrDesynced so the caller can clear and re-authenticate. Records missing
// the userId mirror are repaired in place, preserving the key's TTL.
func (s *RedisStore) Load(ctx context.Context, deviceID string) (*Record, error) {
	raw, err := s.client.Get(ctx, s.key(deviceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		// Unreadable state is worse than no state. Drop it.
		_ = s.client.Del(ctx, s.key(deviceID)).Err()
		return nil, ErrCorrupt
	}

	if rec.Desynced() {
		return nil, ErrDesynced
	}

	if rec.User != nil && rec.UserID != rec.User.ID {
		rec.UserID = rec.User.ID
		if repaired, err := json.Marshal(&rec); err == nil {
			_ = s.client.Set(ctx, s.key(deviceID), repaired, redis.KeepTTL).Err()
		}
	}

	return &rec, nil
}

// Save writes the record as a single JSON blob. ttl <= 0 persists without
// expiry.
func (s *RedisStore) Save(ctx context.Context, deviceID string, rec *Record, ttl time.Duration) error {
	if rec == nil {
		return s.Clear(ctx, deviceID)
	}
	if rec.User != nil {
		rec.UserID = rec.User.ID
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode token record: %w", err)
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, s.key(deviceID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Clear removes the record. Clearing an absent record is not an error.
func (s *RedisStore) Clear(ctx context.Context, deviceID string) error {
	if err := s.client.Del(ctx, s.key(deviceID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// MemoryStore is an in-process Store for tests and single-binary setups.
// TTLs are honored lazily at Load time.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]memoryEntry
}

type memoryEntry struct {
	raw       []byte
	expiresAt time.Time // zero means no expiry
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Load(ctx context.Context, deviceID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.records[deviceID]
	if !ok {
		return nil, ErrNotFound
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		delete(s.records, deviceID)
		return nil, ErrNotFound
	}

	var rec Record
	if err := json.Unmarshal(entry.raw, &rec); err != nil {
		delete(s.records, deviceID)
		return nil, ErrCorrupt
	}
	if rec.Desynced() {
		return nil, ErrDesynced
	}
	if rec.User != nil && rec.UserID != rec.User.ID {
		rec.UserID = rec.User.ID
		if repaired, err := json.Marshal(&rec); err == nil {
			entry.raw = repaired
			s.records[deviceID] = entry
		}
	}
	return &rec, nil
}

func (s *MemoryStore) Save(ctx context.Context, deviceID string, rec *Record, ttl time.Duration) error {
	if rec == nil {
		return s.Clear(ctx, deviceID)
	}
	if rec.User != nil {
		rec.UserID = rec.User.ID
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode token record: %w", err)
	}

	entry := memoryEntry{raw: raw}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}

	s.mu.Lock()
	s.records[deviceID] = entry
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context, deviceID string) error {
	s.mu.Lock()
	delete(s.records, deviceID)
	s.mu.Unlock()
	return nil
}
