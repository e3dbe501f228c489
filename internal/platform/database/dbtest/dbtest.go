// Package dbtest starts a throwaway PostgreSQL container for integration tests.
package dbtest

import (
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/p-n-ai/tutor-bot/internal/platform/database"
)

// New returns a migrated DB backed by a fresh PostgreSQL container. The test
// is skipped in -short mode.
func New(t *testing.T) *database.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx := t.Context()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("tutor"),
		postgres.WithUsername("tutor"),
		postgres.WithPassword("tutor"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}

	url, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("postgres connection string: %v", err)
	}

	db, err := database.New(ctx, url, 4, 0)
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	t.Cleanup(db.Close)
	return db
}
