package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	log "github.com/sirupsen/logrus"
)

const migrationsTable = "promoledger_schema_migrations"

// migrationURL points golang-migrate at its own bookkeeping table so the
// schema can share a database with other services.
func migrationURL(dbURL string) string {
	sep := "?"
	if strings.Contains(dbURL, "?") {
		sep = "&"
	}
	return dbURL + sep + "x-migrations-table=" + migrationsTable
}

// Migrate applies every pending migration from source.
func Migrate(dbURL, source string) error {
	m, err := migrate.New(source, migrationURL(dbURL))
	if err != nil {
		return fmt.Errorf("create migration instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	version, dirty, _ := m.Version()
	log.WithFields(log.Fields{"version": version, "dirty": dirty}).Info("Database migrations applied")
	return nil
}
