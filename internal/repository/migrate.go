package repository

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"entgo.io/ent/dialect"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// Migrate applies every embedded up migration for the database's dialect.
func Migrate(db *DB, logger *slog.Logger) error {
	var (
		drv  database.Driver
		dir  string
		name string
		err  error
	)
	switch db.Dialect() {
	case dialect.Postgres:
		dir, name = "migrations/postgres", "pgx5"
		drv, err = pgxmigrate.WithInstance(db.SQL(), &pgxmigrate.Config{})
	case dialect.SQLite:
		dir, name = "migrations/sqlite", "sqlite"
		drv, err = sqlitemigrate.WithInstance(db.SQL(), &sqlitemigrate.Config{})
	default:
		return fmt.Errorf("no migrations for dialect %q", db.Dialect())
	}
	if err != nil {
		return fmt.Errorf("migrate driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("migrate source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, name, drv)
	if err != nil {
		return fmt.Errorf("migrate init: %w", err)
	}
	// m.Close would also close the shared *sql.DB, so only the source is released.
	defer func() { _ = src.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Error("migrations failed", "dialect", db.Dialect(), "error", err)
		return fmt.Errorf("migrate up: %w", err)
	}
	version, dirty, _ := m.Version()
	logger.Info("migrations applied", "dialect", db.Dialect(), "version", version, "dirty", dirty)
	return nil
}
