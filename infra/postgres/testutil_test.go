package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDB starts a PostgreSQL container and returns a migrated backend.
// The test is skipped in -short mode or when no container runtime is
// reachable.
func setupTestDB(t *testing.T) *Backend {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container tests skipped in short mode")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("wavematch"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	b, err := Open(ctx, dsn)
	require.NoError(t, err)
	// running them twice must be harmless
	require.NoError(t, Migrate(ctx, b.pool))
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func ptr[T any](v T) *T {
	return &v
}
