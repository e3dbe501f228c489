package quiz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/p-n-ai/tutor-bot/internal/store"
)

// generationAttempts is the first try plus one retry.
const generationAttempts = 2

// Generator produces quiz questions for a topic at a difficulty in [0,1].
type Generator interface {
	GenerateQuiz(ctx context.Context, topic string, difficulty float64, instructions string) ([]Question, error)
}

// ProgressTracker is the slice of progress.Tracker the quiz service needs.
type ProgressTracker interface {
	CurrentTopic(ctx context.Context, userID int64) (string, bool, error)
	Progress(ctx context.Context, userID int64) (store.Progress, error)
	RecordScore(ctx context.Context, userID int64, topic string, score float64) error
}

// Service drives quiz sessions: generation, answering and completion.
type Service struct {
	generator Generator
	progress  ProgressTracker
	sessions  SessionStore
	timeout   time.Duration
}

// NewService creates a quiz service. timeout bounds each generation attempt.
func NewService(gen Generator, tracker ProgressTracker, sessions SessionStore, timeout time.Duration) *Service {
	return &Service{
		generator: gen,
		progress:  tracker,
		sessions:  sessions,
		timeout:   timeout,
	}
}

// Start generates a quiz for the user's current topic and makes it the
// user's active session, replacing any previous one. Generation is tried
// twice; if both attempts fail no session is created and ErrGenerationFailed
// is returned.
func (s *Service) Start(ctx context.Context, userID int64, instructions string) (*Session, error) {
	topic, ok, err := s.progress.CurrentTopic(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoTopic
	}

	p, err := s.progress.Progress(ctx, userID)
	if err != nil {
		return nil, err
	}
	difficulty, _ := p.Get(topic)

	questions, err := s.generate(ctx, userID, topic, difficulty, instructions)
	if err != nil {
		return nil, err
	}

	session := NewSession(userID, topic, questions)
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("saving quiz session: %w", err)
	}
	return session, nil
}

func (s *Service) generate(ctx context.Context, userID int64, topic string, difficulty float64, instructions string) ([]Question, error) {
	var lastErr error
	for attempt := 1; attempt <= generationAttempts; attempt++ {
		questions, err := s.generateOnce(ctx, topic, difficulty, instructions)
		if err == nil {
			return questions, nil
		}
		lastErr = err
		slog.Warn("quiz generation attempt failed",
			"user_id", userID,
			"topic", topic,
			"attempt", attempt,
			"error", err,
		)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, lastErr)
}

func (s *Service) generateOnce(ctx context.Context, topic string, difficulty float64, instructions string) ([]Question, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	questions, err := s.generator.GenerateQuiz(ctx, topic, difficulty, instructions)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, errors.New("generator returned no questions")
	}
	for i, q := range questions {
		if err := q.Validate(); err != nil {
			return nil, fmt.Errorf("question %d: %w", i, err)
		}
	}
	return questions, nil
}

// Current returns the user's current question and its index. When every
// question has been answered the score is recorded for the session's topic,
// the session is discarded and a non-nil Result is returned instead.
func (s *Service) Current(ctx context.Context, userID int64) (Question, int, *Result, error) {
	session, err := s.sessions.Load(ctx, userID)
	if err != nil {
		return Question{}, 0, nil, err
	}

	if q, ok := session.Current(); ok {
		return q, session.Index, nil, nil
	}

	result := session.Result()
	if err := s.progress.RecordScore(ctx, userID, session.Topic, result.Fraction()); err != nil {
		return Question{}, 0, nil, err
	}
	if err := s.sessions.Delete(ctx, userID); err != nil {
		return Question{}, 0, nil, fmt.Errorf("discarding quiz session: %w", err)
	}
	return Question{}, 0, &result, nil
}

// Answer scores optionIndex for questionIndex and advances the session.
func (s *Service) Answer(ctx context.Context, userID int64, questionIndex, optionIndex int) (Outcome, error) {
	session, err := s.sessions.Load(ctx, userID)
	if err != nil {
		return Outcome{}, err
	}

	out, err := session.Submit(questionIndex, optionIndex)
	if err != nil {
		return Outcome{}, err
	}

	if err := s.sessions.Save(ctx, session); err != nil {
		return Outcome{}, fmt.Errorf("saving quiz session: %w", err)
	}
	return out, nil
}

// Active returns the user's session, or ErrNoSession.
func (s *Service) Active(ctx context.Context, userID int64) (*Session, error) {
	return s.sessions.Load(ctx, userID)
}
