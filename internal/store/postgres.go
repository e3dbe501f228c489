package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/p-n-ai/tutor-bot/internal/curriculum"
	"github.com/p-n-ai/tutor-bot/internal/platform/database"
)

// PostgresStore is a PostgreSQL-backed Store.
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore wraps an already migrated database.
func NewPostgresStore(db *database.DB) (*PostgresStore, error) {
	if db == nil || db.Pool == nil {
		return nil, fmt.Errorf("database is nil")
	}
	return &PostgresStore{db: db}, nil
}

// DB exposes the underlying database for components sharing the pool.
func (s *PostgresStore) DB() *database.DB {
	return s.db
}

func (s *PostgresStore) AddTopic(ctx context.Context, topic curriculum.Topic) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	variants, err := encodeVariants(topic.Variants)
	if err != nil {
		return false, err
	}

	cmd, err := s.db.Pool.Exec(ctx,
		`INSERT INTO tutor_topics (name, variants)
		 VALUES ($1, $2::jsonb)
		 ON CONFLICT DO NOTHING`,
		topic.Name,
		variants,
	)
	if err != nil {
		return false, fmt.Errorf("insert topic: %w", err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (s *PostgresStore) ListTopics(ctx context.Context) ([]curriculum.Topic, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.db.Pool.Query(ctx, `SELECT name, variants FROM tutor_topics ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query topics: %w", err)
	}
	defer rows.Close()

	var topics []curriculum.Topic
	for rows.Next() {
		var t curriculum.Topic
		var raw []byte
		if err := rows.Scan(&t.Name, &raw); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		if t.Variants, err = decodeVariants(raw); err != nil {
			return nil, fmt.Errorf("topic %q: %w", t.Name, err)
		}
		topics = append(topics, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate topics: %w", err)
	}
	return topics, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, userID int64) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	u := &User{ID: userID}
	var raw []byte
	err := s.db.Pool.QueryRow(ctx,
		`SELECT current_topic, progress, updated_at FROM tutor_users WHERE user_id = $1`,
		userID,
	).Scan(&u.CurrentTopic, &raw, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	if u.Progress, err = decodeProgress(raw); err != nil {
		return nil, fmt.Errorf("user %d: %w", userID, err)
	}
	return u, nil
}

func (s *PostgresStore) SetCurrentTopic(ctx context.Context, userID int64, topic string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.db.Pool.Exec(ctx,
		`INSERT INTO tutor_users (user_id, current_topic)
		 VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE
		 SET current_topic = EXCLUDED.current_topic, updated_at = NOW()`,
		userID,
		topic,
	)
	if err != nil {
		return fmt.Errorf("set current topic: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveScore(ctx context.Context, userID int64, topic string, score float64) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return s.db.WithinTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO tutor_users (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`,
			userID,
		); err != nil {
			return fmt.Errorf("ensure user: %w", err)
		}

		var raw []byte
		if err := tx.QueryRow(ctx,
			`SELECT progress FROM tutor_users WHERE user_id = $1 FOR UPDATE`,
			userID,
		).Scan(&raw); err != nil {
			return fmt.Errorf("lock progress: %w", err)
		}

		progress, err := decodeProgress(raw)
		if err != nil {
			return fmt.Errorf("user %d: %w", userID, err)
		}
		data, err := encodeProgress(progress.Set(topic, score))
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE tutor_users SET progress = $2::jsonb, updated_at = NOW() WHERE user_id = $1`,
			userID,
			data,
		); err != nil {
			return fmt.Errorf("update progress: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.db.Pool.Query(ctx,
		`SELECT user_id, current_topic, progress, updated_at FROM tutor_users ORDER BY user_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		var raw []byte
		if err := rows.Scan(&u.ID, &u.CurrentTopic, &raw, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		if u.Progress, err = decodeProgress(raw); err != nil {
			return nil, fmt.Errorf("user %d: %w", u.ID, err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	return s.db.HealthCheck(ctx)
}

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}
