package agent

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/p-n-ai/tutor-bot/internal/platform/cache"
)

// RecommendationStore remembers the topics last offered to each user, so a
// learn:<i> button press resolves to what the user actually saw.
type RecommendationStore interface {
	SaveRecommendations(ctx context.Context, userID int64, topics []string) error
	// LoadRecommendations returns nil when nothing was saved.
	LoadRecommendations(ctx context.Context, userID int64) ([]string, error)
}

// MemoryRecommendationStore keeps recommendations in process memory.
type MemoryRecommendationStore struct {
	mu     sync.RWMutex
	topics map[int64][]string
}

func NewMemoryRecommendationStore() *MemoryRecommendationStore {
	return &MemoryRecommendationStore{topics: make(map[int64][]string)}
}

func (s *MemoryRecommendationStore) SaveRecommendations(_ context.Context, userID int64, topics []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics[userID] = append([]string(nil), topics...)
	return nil
}

func (s *MemoryRecommendationStore) LoadRecommendations(_ context.Context, userID int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.topics[userID]...), nil
}

// RedisRecommendationStore keeps recommendations in Redis with a TTL.
type RedisRecommendationStore struct {
	cache *cache.Cache
	ttl   time.Duration
}

func NewRedisRecommendationStore(c *cache.Cache, ttl time.Duration) *RedisRecommendationStore {
	return &RedisRecommendationStore{cache: c, ttl: ttl}
}

func (s *RedisRecommendationStore) SaveRecommendations(ctx context.Context, userID int64, topics []string) error {
	return s.cache.SetJSON(ctx, recommendationKey(userID), topics, s.ttl)
}

func (s *RedisRecommendationStore) LoadRecommendations(ctx context.Context, userID int64) ([]string, error) {
	var topics []string
	err := s.cache.GetJSON(ctx, recommendationKey(userID), &topics)
	if errors.Is(err, cache.ErrMiss) {
		return nil, nil
	}
	return topics, err
}

func recommendationKey(userID int64) string {
	return cache.Key("recommendations", strconv.FormatInt(userID, 10))
}
