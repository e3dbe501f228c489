package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/p-n-ai/tutor-bot/internal/platform/config"
	"github.com/p-n-ai/tutor-bot/internal/platform/database"
)

// Open connects the backend selected by the database URL scheme:
// postgres:// or postgresql:// for PostgreSQL, sqlite:// for an embedded file
// (sqlite://:memory: for a throwaway database) and memory:// for a
// process-local store.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Store, error) {
	url := cfg.URL
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		db, err := database.New(ctx, url, cfg.MaxConns, cfg.MinConns)
		if err != nil {
			return nil, err
		}
		return NewPostgresStore(db)

	case strings.HasPrefix(url, "sqlite://"):
		db, err := database.OpenSQLite(ctx, strings.TrimPrefix(url, "sqlite://"))
		if err != nil {
			return nil, err
		}
		return NewSQLiteStore(db)

	case url == "memory://" || url == "memory":
		return NewMemoryStore(), nil
	}

	return nil, fmt.Errorf("unsupported database URL scheme: %q", url)
}
