package database

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ApplyMigrations brings the store up to the latest migration version. It is
// a no-op when the store is already current. The bundled migrations create
// and seed the demo sales dataset.
func ApplyMigrations(client *Client, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}

	var driver migratedb.Driver
	switch client.Engine() {
	case EnginePostgres:
		driver, err = migratepg.WithInstance(client.DB(), &migratepg.Config{})
	case EngineSQLite:
		driver, err = migratesqlite.WithInstance(client.DB(), &migratesqlite.Config{})
	default:
		return fmt.Errorf("no migration driver for engine %q", client.Engine())
	}
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, string(client.Engine()), driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	before, _, _ := m.Version()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	after, _, _ := m.Version()

	// Close only the source driver. Closing m would also close the shared
	// database handle owned by the client.
	if err := sourceDriver.Close(); err != nil {
		logger.Warn("Failed to close migration source", "error", err)
	}

	if before == after {
		logger.Info("Store schema up to date", "version", after)
	} else {
		logger.Info("Applied migrations", "from", before, "to", after)
	}
	return nil
}
