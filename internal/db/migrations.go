// Package db manages the Postgres schema for the account store.
package db

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationRunner applies schema migrations to the account database.
type MigrationRunner struct {
	db      *sql.DB
	migrate *migrate.Migrate
	logger  *zap.Logger
}

// NewMigrationRunner creates a runner over an open connection pool.
func NewMigrationRunner(db *sql.DB, logger *zap.Logger) (*MigrationRunner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("create source driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}

	return &MigrationRunner{db: db, migrate: m, logger: logger}, nil
}

// Up applies all pending migrations.
func (mr *MigrationRunner) Up() error {
	err := mr.migrate.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration failed: %w", err)
	}
	if err == migrate.ErrNoChange {
		mr.logger.Info("no new migrations to apply")
		return nil
	}

	version, dirty, err := mr.migrate.Version()
	if err != nil {
		return fmt.Errorf("get migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is in dirty state at version %d", version)
	}

	mr.logger.Info("migrations applied", zap.Uint("version", version))
	return nil
}

// Down rolls back one migration.
func (mr *MigrationRunner) Down() error {
	err := mr.migrate.Steps(-1)
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("rollback failed: %w", err)
	}
	if err == migrate.ErrNoChange {
		mr.logger.Info("no migrations to roll back")
		return nil
	}

	version, dirty, err := mr.migrate.Version()
	if err != nil {
		if err == migrate.ErrNilVersion {
			mr.logger.Info("all migrations rolled back")
			return nil
		}
		return fmt.Errorf("get migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is in dirty state at version %d", version)
	}

	mr.logger.Info("migration rolled back", zap.Uint("version", version))
	return nil
}

// Version returns the current migration version.
func (mr *MigrationRunner) Version() (uint, bool, error) {
	version, dirty, err := mr.migrate.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return 0, false, fmt.Errorf("get version: %w", err)
	}
	return version, dirty, nil
}

// Force sets the migration version without running migrations. Only for
// recovering a dirty state.
func (mr *MigrationRunner) Force(version int) error {
	if err := mr.migrate.Force(version); err != nil {
		return fmt.Errorf("force version: %w", err)
	}
	return nil
}

// Close releases the runner's source and database handles.
func (mr *MigrationRunner) Close() error {
	sourceErr, dbErr := mr.migrate.Close()
	if sourceErr != nil {
		return fmt.Errorf("close source: %w", sourceErr)
	}
	if dbErr != nil {
		return fmt.Errorf("close database: %w", dbErr)
	}
	return nil
}

// ListMigrations returns the embedded migration file names.
func ListMigrations() ([]string, error) {
	var migrations []string
	err := fs.WalkDir(migrationsFS, "migrations", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && len(path) > len("migrations/") {
			migrations = append(migrations, path[len("migrations/"):])
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	return migrations, nil
}
