package postgres

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog"
)

// Migrator applies the schema under migrationsPath.
type Migrator struct {
	databaseURL    string
	migrationsPath string
	logger         zerolog.Logger
}

// NewMigrator creates a new Migrator.
func NewMigrator(databaseURL, migrationsPath string, logger zerolog.Logger) *Migrator {
	return &Migrator{databaseURL: databaseURL, migrationsPath: migrationsPath, logger: logger}
}

// Up applies every pending migration.
func (m *Migrator) Up() error {
	mig, err := m.open()
	if err != nil {
		return err
	}
	defer m.close(mig)

	if err := mig.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			m.logger.Info().Msg("database migrations: no change")
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	m.logVersion(mig, "database migrations: applied successfully")
	return nil
}

// Down rolls back the last migration.
func (m *Migrator) Down() error {
	mig, err := m.open()
	if err != nil {
		return err
	}
	defer m.close(mig)

	if err := mig.Steps(-1); err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}

	m.logVersion(mig, "database migrations: rolled back successfully")
	return nil
}

func (m *Migrator) open() (*migrate.Migrate, error) {
	mig, err := migrate.New("file://"+m.migrationsPath, m.databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return mig, nil
}

func (m *Migrator) close(mig *migrate.Migrate) {
	srcErr, dbErr := mig.Close()
	if srcErr != nil || dbErr != nil {
		m.logger.Warn().AnErr("source_error", srcErr).AnErr("database_error", dbErr).Msg("failed to close migrator")
	}
}

func (m *Migrator) logVersion(mig *migrate.Migrate, msg string) {
	version, dirty, err := mig.Version()
	event := m.logger.Info()
	if err == nil {
		event = event.Uint("version", version).Bool("dirty", dirty)
	}
	event.Msg(msg)
}
