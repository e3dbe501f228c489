package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/p-n-ai/tutor-bot/internal/platform/database"
)

const eventTimeout = 5 * time.Second

// Event types.
const (
	EventTopicSelected        = "topic_selected"
	EventQuizStarted          = "quiz_started"
	EventQuizGenerationFailed = "quiz_generation_failed"
	EventQuestionAnswered     = "question_answered"
	EventQuizAnswered         = "quiz_answered"
	EventQuizCompleted        = "quiz_completed"
)

// Event represents an analytics event persisted to the tutor_events table.
type Event struct {
	UserID    int64
	Type      string
	Data      map[string]any
	CreatedAt time.Time
}

// EventLogger defines event logging behavior.
type EventLogger interface {
	LogEvent(ctx context.Context, event Event) error
}

// NopEventLogger ignores all events.
type NopEventLogger struct{}

func (NopEventLogger) LogEvent(context.Context, Event) error {
	return nil
}

// MemoryEventLogger stores events in memory for tests.
type MemoryEventLogger struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryEventLogger() *MemoryEventLogger {
	return &MemoryEventLogger{}
}

func (l *MemoryEventLogger) LogEvent(_ context.Context, event Event) error {
	if event.Type == "" {
		return fmt.Errorf("event type is required")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()
	return nil
}

// Events returns a copy of the logged events.
func (l *MemoryEventLogger) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event{}, l.events...)
}

// Types returns the logged event types in order.
func (l *MemoryEventLogger) Types() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.events))
	for i, e := range l.events {
		out[i] = e.Type
	}
	return out
}

// PostgresEventLogger inserts events into tutor_events.
type PostgresEventLogger struct {
	db *database.DB
}

func NewPostgresEventLogger(db *database.DB) *PostgresEventLogger {
	return &PostgresEventLogger{db: db}
}

func (l *PostgresEventLogger) LogEvent(ctx context.Context, event Event) error {
	if l == nil || l.db == nil || l.db.Pool == nil {
		return fmt.Errorf("event logger database is nil")
	}
	if event.Type == "" {
		return fmt.Errorf("event type is required")
	}

	payload := event.Data
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	ctx, cancel := context.WithTimeout(ctx, eventTimeout)
	defer cancel()

	if _, err := l.db.Pool.Exec(ctx,
		`INSERT INTO tutor_events (user_id, event_type, data, created_at)
		 VALUES ($1, $2, $3::jsonb, $4)`,
		event.UserID, event.Type, string(data), createdAt,
	); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	slog.Debug("event logged", "type", event.Type, "user_id", event.UserID)
	return nil
}
