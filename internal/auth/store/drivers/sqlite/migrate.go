package sqlite

import (
	"errors"

	"github.com/aussiebroadwan/spendsense/internal/auth/store/drivers/sqlite/migrations"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// ApplyMigrations applies any pending migrations from the embedded
// migrations directory. The SQL is compiled into the binary, so a fresh
// database file needs nothing on disk besides itself.
//
// Migrations run on the store's own pool rather than inside a transaction;
// golang-migrate records a dirty version if a step fails part way.
func (s *Store) ApplyMigrations() error {
	// 1. Wrap the open handle in the SQLite migration driver
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return err
	}

	// 2. Read the embedded .sql files
	src, err := iofs.New(migrations.Migrations, ".")
	if err != nil {
		return err
	}

	// 3. Bind source and database
	instance, err := migrate.NewWithInstance("iofs", src, "", driver)
	if err != nil {
		return err
	}

	// 4. Apply every up migration. Already current is not an error.
	if err := instance.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
