package app

import (
	"context"
	"fmt"

	"github.com/aussiebroadwan/spendsense/internal/auth/store"
	"github.com/aussiebroadwan/spendsense/internal/auth/store/drivers/postgres"
	"github.com/aussiebroadwan/spendsense/internal/auth/store/drivers/sqlite"
)

// OpenStore connects to the configured database and applies migrations.
func OpenStore(ctx context.Context, cfg Config) (store.Store, error) {
	var (
		st  store.Store
		err error
	)

	switch cfg.DatabaseDriver {
	case "sqlite", "":
		st, err = sqlite.NewStore(sqlite.DSN(cfg.DatabaseFile))
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("AUTH_DATABASE_URL is required for the postgres driver")
		}
		st, err = postgres.NewStore(ctx, cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.DatabaseDriver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := st.ApplyMigrations(); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}

	return st, nil
}
