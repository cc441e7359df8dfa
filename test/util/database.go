// Package util provides store helpers shared by the end-to-end tests.
package util

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/askql/askql/pkg/database"
)

// NewSQLiteStore opens a throwaway file-backed SQLite store with the demo
// migrations applied. The client closes with the test.
func NewSQLiteStore(t *testing.T) *database.Client {
	t.Helper()

	url := "sqlite://" + filepath.Join(t.TempDir(), "askql.db")
	client, err := database.Open(context.Background(), database.DefaultConfig(url))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, database.ApplyMigrations(client, slog.Default()))
	return client
}

var (
	// Shared server for all PostgreSQL tests in one run.
	sharedConnStr string
	containerOnce sync.Once
	containerErr  error
)

// NewPostgresStore opens a PostgreSQL-backed store with a schema of its own
// and the demo migrations applied. CI points CI_DATABASE_URL at a service
// container; local runs start one shared testcontainer when
// ASKQL_POSTGRES_TESTS=1 and skip otherwise.
func NewPostgresStore(t *testing.T) *database.Client {
	t.Helper()
	ctx := context.Background()

	connStr := sharedPostgresURL(t)
	schemaName := testSchemaName(t)

	admin, err := database.Open(ctx, database.DefaultConfig(connStr))
	require.NoError(t, err)
	_, err = admin.DB().ExecContext(ctx, "CREATE SCHEMA "+schemaName)
	require.NoError(t, err)
	require.NoError(t, admin.Close())

	// search_path pins every pooled connection to the test schema, so the
	// migrations and all queries stay isolated from concurrent tests.
	client, err := database.Open(ctx, database.DefaultConfig(appendParam(connStr, "search_path="+schemaName)))
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = client.DB().ExecContext(context.Background(),
			"DROP SCHEMA IF EXISTS "+schemaName+" CASCADE")
		_ = client.Close()
	})

	require.NoError(t, database.ApplyMigrations(client, slog.Default()))
	return client
}

// sharedPostgresURL returns a connection string to the shared test server,
// starting a testcontainer once per run when no external server is given.
func sharedPostgresURL(t *testing.T) string {
	t.Helper()

	if url := os.Getenv("CI_DATABASE_URL"); url != "" {
		return url
	}
	if os.Getenv("ASKQL_POSTGRES_TESTS") == "" {
		t.Skip("PostgreSQL tests disabled: set ASKQL_POSTGRES_TESTS=1 (testcontainer) or CI_DATABASE_URL")
	}

	containerOnce.Do(func() {
		ctx := context.Background()
		t.Log("Starting shared PostgreSQL testcontainer")

		pgContainer, err := postgres.Run(ctx,
			"postgres:17-alpine",
			postgres.WithDatabase("askql_test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			containerErr = fmt.Errorf("starting postgres container: %w", err)
			return
		}
		connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			containerErr = fmt.Errorf("resolving connection string: %w", err)
			return
		}
		sharedConnStr = connStr
	})
	require.NoError(t, containerErr)
	return sharedConnStr
}

// testSchemaName derives a PostgreSQL-safe schema name from the test name.
func testSchemaName(t *testing.T) string {
	t.Helper()

	name := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, strings.ToLower(t.Name()))
	if len(name) > 40 {
		name = name[:40]
	}

	suffix := make([]byte, 4)
	_, err := rand.Read(suffix)
	require.NoError(t, err)
	return fmt.Sprintf("test_%s_%s", name, hex.EncodeToString(suffix))
}

func appendParam(connStr, param string) string {
	if strings.Contains(connStr, "?") {
		return connStr + "&" + param
	}
	return connStr + "?" + param
}
