// internal/common/database/sqlite.go
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"applicant-portal/internal/common/config"

	"github.com/mattn/go-sqlite3"
)

// NewSQLite opens an embedded database file, creating its directory.
func NewSQLite(cfg config.SQLiteConfig) (*sql.DB, error) {
	if cfg.Path != ":memory:" {
		if dir := filepath.Dir(cfg.Path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// one writer at a time; readers share the WAL
	db.SetMaxOpenConns(1)
	return db, nil
}

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
