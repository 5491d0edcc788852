// internal/common/database/open.go
package database

import (
	"context"
	"database/sql"
	"fmt"

	"applicant-portal/internal/common/config"
)

// Open returns a pool for the configured driver.
func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		client, err := NewPostgres(cfg.Postgres)
		if err != nil {
			return nil, err
		}
		return client.GetDB(), nil
	case config.DriverSQLite:
		return NewSQLite(cfg.SQLite)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Ping is the readiness probe used by /ready and the startup retry loop.
func Ping(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("database not initialised")
	}
	return db.PingContext(ctx)
}

// IsUniqueViolation recognises unique-key failures from either driver.
func IsUniqueViolation(err error) bool {
	return isPostgresUniqueViolation(err) || isSQLiteUniqueViolation(err)
}
