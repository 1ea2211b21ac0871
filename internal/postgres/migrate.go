package postgres

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies every pending migration and returns the schema version
// before and after.
func Migrate(db *sql.DB, logger *logrus.Logger) (from, to uint, err error) {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return 0, 0, fmt.Errorf("loading migrations: %w", err)
	}
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return 0, 0, fmt.Errorf("postgres.WithInstance: %w", err)
	}
	// m.Close would also close db, which the caller owns.
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return 0, 0, fmt.Errorf("migrate.NewWithInstance: %w", err)
	}

	from, _, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		from = 0
	} else if err != nil {
		return 0, 0, fmt.Errorf("reading schema version: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return from, 0, fmt.Errorf("applying migrations: %w", err)
	}

	to, _, err = m.Version()
	if err != nil {
		return from, 0, fmt.Errorf("reading schema version: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"preMigrationVersion":  from,
		"postMigrationVersion": to,
	}).Info("Migration status")
	return from, to, nil
}
