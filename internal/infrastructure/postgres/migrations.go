package postgres

import (
	"embed"

	pgpkg "github.com/bibbank/fraudscoring/pkg/postgres"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate applies the training-run schema to the database at dsn.
func Migrate(dsn string) error {
	return pgpkg.RunMigrations(dsn, migrationFS, "migrations")
}

// MigrateDown drops the training-run schema.
func MigrateDown(dsn string) error {
	return pgpkg.RunMigrationsDown(dsn, migrationFS, "migrations")
}
