// Package session stores per-visitor values such as form start times.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cleantalk-antispam/internal/common/config"
	"cleantalk-antispam/internal/common/database"
)

// Session is the key/value view of one visitor's session.
type Session interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Store hands out sessions by id.
type Store interface {
	ForSession(id string) Session
	Ping(ctx context.Context) error
	Close() error
}

// NewStore builds the store selected by cfg.Driver.
func NewStore(cfg config.SessionConfig) (Store, error) {
	ttl := time.Duration(cfg.TTLSeconds) * time.Second

	switch cfg.Driver {
	case "redis":
		client, err := database.NewRedis(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis session store: %w", err)
		}
		return NewRedisStore(client, cfg.KeyPrefix, ttl), nil
	case "memory", "":
		return NewMemoryStore(ttl), nil
	default:
		return nil, fmt.Errorf("unknown session driver %q", cfg.Driver)
	}
}

// ==========================
// Redis
// ==========================

type RedisStore struct {
	client *database.RedisClient
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client *database.RedisClient, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) ForSession(id string) Session {
	return &redisSession{store: s, id: id}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Key returns the redis key for a session value: <prefix>:<sessionID>:<key>.
func (s *RedisStore) Key(sessionID, key string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, sessionID, key)
}

type redisSession struct {
	store *RedisStore
	id    string
}

func (r *redisSession) Get(ctx context.Context, key string) (string, bool, error) {
	return r.store.client.Get(ctx, r.store.Key(r.id, key))
}

func (r *redisSession) Set(ctx context.Context, key, value string) error {
	return r.store.client.Set(ctx, r.store.Key(r.id, key), value, r.store.ttl)
}

func (r *redisSession) Remove(ctx context.Context, key string) error {
	return r.store.client.Del(ctx, r.store.Key(r.id, key))
}

// ==========================
// Memory
// ==========================

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStore keeps sessions in process. Suitable for a single instance.
// Expired entries are dropped on read and by a sweep that runs from Set at
// most once per TTL.
type MemoryStore struct {
	mu        sync.Mutex
	entries   map[string]map[string]memoryEntry
	ttl       time.Duration
	now       func() time.Time
	lastSweep time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *MemoryStore) ForSession(id string) Session {
	return &memorySession{store: m, id: id}
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

type memorySession struct {
	store *MemoryStore
	id    string
}

func (s *memorySession) Get(_ context.Context, key string) (string, bool, error) {
	m := s.store
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[s.id][key]
	if !ok {
		return "", false, nil
	}
	if entry.expired(m.now()) {
		m.removeLocked(s.id, key)
		return "", false, nil
	}
	return entry.value, true, nil
}

func (s *memorySession) Set(_ context.Context, key, value string) error {
	m := s.store
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweepLocked()

	values, ok := m.entries[s.id]
	if !ok {
		values = make(map[string]memoryEntry)
		m.entries[s.id] = values
	}
	entry := memoryEntry{value: value}
	if m.ttl > 0 {
		entry.expiresAt = m.now().Add(m.ttl)
	}
	values[key] = entry
	return nil
}

func (s *memorySession) Remove(_ context.Context, key string) error {
	m := s.store
	m.mu.Lock()
	defer m.mu.Unlock()

	m.removeLocked(s.id, key)
	return nil
}

func (m *MemoryStore) removeLocked(id, key string) {
	delete(m.entries[id], key)
	if len(m.entries[id]) == 0 {
		delete(m.entries, id)
	}
}

// sweepLocked drops every expired entry and any session left empty.
func (m *MemoryStore) sweepLocked() {
	if m.ttl <= 0 {
		return
	}
	now := m.now()
	if now.Sub(m.lastSweep) < m.ttl {
		return
	}
	m.lastSweep = now

	for id, values := range m.entries {
		for key, entry := range values {
			if entry.expired(now) {
				delete(values, key)
			}
		}
		if len(values) == 0 {
			delete(m.entries, id)
		}
	}
}
