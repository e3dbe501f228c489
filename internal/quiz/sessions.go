package quiz

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/p-n-ai/tutor-bot/internal/platform/cache"
)

// SessionStore holds at most one session per user. Load returns
// ErrNoSession when none exists.
type SessionStore interface {
	Load(ctx context.Context, userID int64) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, userID int64) error
}

// MemorySessionStore keeps sessions in process memory.
type MemorySessionStore struct {
	sessions map[int64]Session
	mu       sync.Mutex
}

// NewMemorySessionStore creates an empty in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[int64]Session)}
}

func (m *MemorySessionStore) Load(_ context.Context, userID int64) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[userID]
	if !ok {
		return nil, ErrNoSession
	}
	return &s, nil
}

func (m *MemorySessionStore) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[s.UserID] = *s
	return nil
}

func (m *MemorySessionStore) Delete(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, userID)
	return nil
}

// RedisSessionStore keeps sessions in Redis as JSON so they survive restarts
// and are shared between replicas. Abandoned sessions expire after ttl.
type RedisSessionStore struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewRedisSessionStore creates a Redis-backed session store.
func NewRedisSessionStore(c *cache.Cache, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{cache: c, ttl: ttl}
}

func (r *RedisSessionStore) Load(ctx context.Context, userID int64) (*Session, error) {
	var s Session
	err := r.cache.GetJSON(ctx, sessionKey(userID), &s)
	if errors.Is(err, cache.ErrMiss) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *RedisSessionStore) Save(ctx context.Context, s *Session) error {
	return r.cache.SetJSON(ctx, sessionKey(s.UserID), s, r.ttl)
}

func (r *RedisSessionStore) Delete(ctx context.Context, userID int64) error {
	return r.cache.Delete(ctx, sessionKey(userID))
}

func sessionKey(userID int64) string {
	return cache.Key("quiz", strconv.FormatInt(userID, 10))
}
