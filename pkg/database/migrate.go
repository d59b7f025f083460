package database

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Migrate applies every pending up migration found in fsys under dir.
// It returns the schema version the database ends up on.
func Migrate(p *Postgres, fsys fs.FS, dir string) (uint, error) {
	source, err := iofs.New(fsys, dir)
	if err != nil {
		return 0, fmt.Errorf("failed to open migration source: %w", err)
	}

	driver, err := postgres.WithInstance(p.DB, &postgres.Config{})
	if err != nil {
		return 0, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return 0, fmt.Errorf("failed to create migrator: %w", err)
	}
	// Releases the dedicated connection; the pool itself stays open.
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, fmt.Errorf("failed to read migration version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("database schema is dirty at version %d", version)
	}

	return version, nil
}
