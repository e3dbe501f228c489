package store

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/p-n-ai/tutor-bot/internal/curriculum"
)

// MemoryStore is an in-memory Store. Data is lost on restart.
type MemoryStore struct {
	topics []curriculum.Topic
	users  map[int64]*User
	mu     sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[int64]*User),
	}
}

func (s *MemoryStore) AddTopic(_ context.Context, topic curriculum.Topic) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.topics {
		if strings.EqualFold(t.Name, topic.Name) {
			return false, nil
		}
	}
	s.topics = append(s.topics, curriculum.Topic{Name: topic.Name, Variants: slices.Clone(topic.Variants)})
	return true, nil
}

func (s *MemoryStore) ListTopics(_ context.Context) ([]curriculum.Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]curriculum.Topic, len(s.topics))
	for i, t := range s.topics {
		out[i] = curriculum.Topic{Name: t.Name, Variants: slices.Clone(t.Variants)}
	}
	return out, nil
}

func (s *MemoryStore) GetUser(_ context.Context, userID int64) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return copyUser(u), nil
}

func (s *MemoryStore) SetCurrentTopic(_ context.Context, userID int64, topic string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.userLocked(userID)
	u.CurrentTopic = &topic
	u.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) SaveScore(_ context.Context, userID int64, topic string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.userLocked(userID)
	u.Progress = u.Progress.Set(topic, score)
	u.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) ListUsers(_ context.Context) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *copyUser(u))
	}
	slices.SortFunc(out, func(a, b User) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *MemoryStore) HealthCheck(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) userLocked(userID int64) *User {
	u, ok := s.users[userID]
	if !ok {
		u = &User{ID: userID, Progress: Progress{}}
		s.users[userID] = u
	}
	return u
}

func copyUser(u *User) *User {
	c := *u
	c.Progress = slices.Clone(u.Progress)
	if c.Progress == nil {
		c.Progress = Progress{}
	}
	if u.CurrentTopic != nil {
		topic := *u.CurrentTopic
		c.CurrentTopic = &topic
	}
	return &c
}
