// Package progress tracks each user's current topic and per-topic mastery.
package progress

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/p-n-ai/tutor-bot/internal/store"
)

// Normalizer resolves free-text topic names to canonical names.
type Normalizer interface {
	Normalize(input string) string
}

// Tracker reads and writes user progress through a UserRepository.
type Tracker struct {
	topics Normalizer
	users  store.UserRepository
}

// NewTracker creates a progress tracker.
func NewTracker(topics Normalizer, users store.UserRepository) *Tracker {
	return &Tracker{topics: topics, users: users}
}

// SetCurrentTopic normalizes raw and makes it the user's current topic,
// creating the user if needed. Existing scores are kept. Returns the
// canonical name.
func (t *Tracker) SetCurrentTopic(ctx context.Context, userID int64, raw string) (string, error) {
	topic := t.topics.Normalize(raw)
	if topic == "" {
		return "", fmt.Errorf("topic is empty")
	}
	if err := t.users.SetCurrentTopic(ctx, userID, topic); err != nil {
		return "", fmt.Errorf("setting current topic: %w", err)
	}
	return topic, nil
}

// CurrentTopic returns the user's current topic. ok is false when the user
// has never chosen one.
func (t *Tracker) CurrentTopic(ctx context.Context, userID int64) (topic string, ok bool, err error) {
	u, err := t.users.GetUser(ctx, userID)
	if errors.Is(err, store.ErrUserNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("loading user: %w", err)
	}
	if u.CurrentTopic == nil || *u.CurrentTopic == "" {
		return "", false, nil
	}
	return *u.CurrentTopic, true, nil
}

// Progress returns the user's mastery per topic in study order. It is never
// nil.
func (t *Tracker) Progress(ctx context.Context, userID int64) (store.Progress, error) {
	u, err := t.users.GetUser(ctx, userID)
	if errors.Is(err, store.ErrUserNotFound) {
		return store.Progress{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}
	if u.Progress == nil {
		return store.Progress{}, nil
	}
	return u.Progress, nil
}

// RecordScore overwrites the user's mastery for topic. Scores are clamped to [0,1].
func (t *Tracker) RecordScore(ctx context.Context, userID int64, topic string, score float64) error {
	if math.IsNaN(score) {
		return fmt.Errorf("score is NaN")
	}
	score = min(max(score, 0), 1)
	if err := t.users.SaveScore(ctx, userID, topic, score); err != nil {
		return fmt.Errorf("recording score: %w", err)
	}
	return nil
}

// Difficulty levels passed to the quiz generator.
const (
	LevelBeginner     = "beginner"
	LevelIntermediate = "intermediate"
	LevelAdvanced     = "advanced"
)

// DifficultyLevel maps a mastery score to a difficulty label.
func DifficultyLevel(score float64) string {
	switch {
	case score < 0.3:
		return LevelBeginner
	case score < 0.7:
		return LevelIntermediate
	default:
		return LevelAdvanced
	}
}

// Indicator returns the traffic-light emoji shown next to a mastery score.
func Indicator(score float64) string {
	switch {
	case score >= 0.7:
		return "🟢"
	case score >= 0.3:
		return "🟡"
	default:
		return "🔴"
	}
}
