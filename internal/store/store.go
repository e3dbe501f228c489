// Package store persists topics and per-user learning progress.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/p-n-ai/tutor-bot/internal/curriculum"
)

const dbTimeout = 5 * time.Second

// ErrUserNotFound is returned when no record exists for a user id.
var ErrUserNotFound = errors.New("user not found")

// Mastery is a user's latest quiz result for one topic, in [0,1].
type Mastery struct {
	Topic string  `json:"topic"`
	Score float64 `json:"score"`
}

// Progress lists a user's mastery per topic in the order topics were first
// studied. It is stored as a JSON array so that order survives persistence.
type Progress []Mastery

// Get returns the score recorded for topic.
func (p Progress) Get(topic string) (float64, bool) {
	for _, m := range p {
		if m.Topic == topic {
			return m.Score, true
		}
	}
	return 0, false
}

// Set overwrites the score for topic, appending it if the topic is new.
func (p Progress) Set(topic string, score float64) Progress {
	for i := range p {
		if p[i].Topic == topic {
			p[i].Score = score
			return p
		}
	}
	return append(p, Mastery{Topic: topic, Score: score})
}

// Topics returns topic names in study order.
func (p Progress) Topics() []string {
	out := make([]string, len(p))
	for i, m := range p {
		out[i] = m.Topic
	}
	return out
}

// User is the persisted state for one chat user.
type User struct {
	ID           int64
	CurrentTopic *string
	Progress     Progress
	UpdatedAt    time.Time
}

// UserRepository persists users. Every mutating call is atomic for one user.
type UserRepository interface {
	GetUser(ctx context.Context, userID int64) (*User, error)
	SetCurrentTopic(ctx context.Context, userID int64, topic string) error
	SaveScore(ctx context.Context, userID int64, topic string, score float64) error
	ListUsers(ctx context.Context) ([]User, error)
}

// Store is a complete persistence backend.
type Store interface {
	curriculum.TopicRepository
	UserRepository
	HealthCheck(ctx context.Context) error
	Close() error
}
