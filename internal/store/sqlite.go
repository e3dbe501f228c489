package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/p-n-ai/tutor-bot/internal/curriculum"
	"github.com/p-n-ai/tutor-bot/internal/platform/database"
)

// SQLiteStore is an embedded SQLite-backed Store.
type SQLiteStore struct {
	db *database.SQLite
}

// NewSQLiteStore wraps an opened SQLite database.
func NewSQLiteStore(db *database.SQLite) (*SQLiteStore, error) {
	if db == nil || db.DB == nil {
		return nil, fmt.Errorf("database is nil")
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) AddTopic(ctx context.Context, topic curriculum.Topic) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	variants, err := encodeVariants(topic.Variants)
	if err != nil {
		return false, err
	}

	res, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO tutor_topics (name, variants) VALUES (?, ?)
		 ON CONFLICT DO NOTHING`,
		topic.Name,
		variants,
	)
	if err != nil {
		return false, fmt.Errorf("insert topic: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert topic: %w", err)
	}
	return n == 1, nil
}

func (s *SQLiteStore) ListTopics(ctx context.Context) ([]curriculum.Topic, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.db.DB.QueryContext(ctx, `SELECT name, variants FROM tutor_topics ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query topics: %w", err)
	}
	defer rows.Close()

	var topics []curriculum.Topic
	for rows.Next() {
		var t curriculum.Topic
		var raw string
		if err := rows.Scan(&t.Name, &raw); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		if t.Variants, err = decodeVariants([]byte(raw)); err != nil {
			return nil, fmt.Errorf("topic %q: %w", t.Name, err)
		}
		topics = append(topics, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate topics: %w", err)
	}
	return topics, nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, userID int64) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var topic sql.NullString
	var raw string
	var updated int64
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT current_topic, progress, `+updatedAtUnix+` FROM tutor_users WHERE user_id = ?`,
		userID,
	).Scan(&topic, &raw, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	return scanUser(userID, topic, raw, updated)
}

func (s *SQLiteStore) SetCurrentTopic(ctx context.Context, userID int64, topic string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO tutor_users (user_id, current_topic) VALUES (?, ?)
		 ON CONFLICT (user_id) DO UPDATE
		 SET current_topic = excluded.current_topic, updated_at = CURRENT_TIMESTAMP`,
		userID,
		topic,
	)
	if err != nil {
		return fmt.Errorf("set current topic: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveScore(ctx context.Context, userID int64, topic string, score float64) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tx, err := s.db.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO tutor_users (user_id) VALUES (?) ON CONFLICT (user_id) DO NOTHING`,
		userID,
	); err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}

	var raw string
	if err := tx.QueryRowContext(ctx,
		`SELECT progress FROM tutor_users WHERE user_id = ?`,
		userID,
	).Scan(&raw); err != nil {
		return fmt.Errorf("read progress: %w", err)
	}

	progress, err := decodeProgress([]byte(raw))
	if err != nil {
		return fmt.Errorf("user %d: %w", userID, err)
	}
	data, err := encodeProgress(progress.Set(topic, score))
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE tutor_users SET progress = ?, updated_at = CURRENT_TIMESTAMP WHERE user_id = ?`,
		data,
		userID,
	); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListUsers(ctx context.Context) ([]User, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT user_id, current_topic, progress, `+updatedAtUnix+` FROM tutor_users ORDER BY user_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var id int64
		var topic sql.NullString
		var raw string
		var updated int64
		if err := rows.Scan(&id, &topic, &raw, &updated); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u, err := scanUser(id, topic, raw, updated)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	return s.db.HealthCheck(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// updatedAtUnix reads updated_at as Unix seconds; CURRENT_TIMESTAMP is UTC text.
const updatedAtUnix = `CAST(strftime('%s', updated_at) AS INTEGER)`

func scanUser(userID int64, topic sql.NullString, raw string, updated int64) (*User, error) {
	u := &User{ID: userID, UpdatedAt: time.Unix(updated, 0).UTC()}
	if topic.Valid {
		u.CurrentTopic = &topic.String
	}
	progress, err := decodeProgress([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("user %d: %w", userID, err)
	}
	u.Progress = progress
	return u, nil
}
