package store

import (
	_ "embed"
	"fmt"
	"regexp"
	"time"

	"applicant-portal/internal/common/config"
)

//go:embed schema_postgres.sql
var postgresSchema string

//go:embed schema_sqlite.sql
var sqliteSchema string

// Dialect carries the few statement fragments that differ between drivers.
// Statements are written with $N placeholders and rebound when needed.
type Dialect struct {
	Name string

	// Schema is the idempotent DDL applied by Migrate.
	Schema string

	positional bool
	jsonParam  func(n int) string
	mergeJSON  func(stored, incoming string) string
	timeArg    func(t time.Time) any
}

var Postgres = Dialect{
	Name:   config.DriverPostgres,
	Schema: postgresSchema,
	jsonParam: func(n int) string {
		return fmt.Sprintf("$%d::jsonb", n)
	},
	mergeJSON: func(stored, incoming string) string {
		return stored + " || " + incoming
	},
	timeArg: func(t time.Time) any { return t.UTC() },
}

// SQLite keeps fields as JSON text and timestamps as RFC 3339 text.
var SQLite = Dialect{
	Name:       config.DriverSQLite,
	Schema:     sqliteSchema,
	positional: true,
	jsonParam: func(n int) string {
		return fmt.Sprintf("json($%d)", n)
	},
	mergeJSON: func(stored, incoming string) string {
		return "json_patch(" + stored + ", " + incoming + ")"
	},
	timeArg: func(t time.Time) any { return t.UTC().Format(time.RFC3339Nano) },
}

// DialectFor returns the dialect for a configured driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case config.DriverPostgres:
		return Postgres, nil
	case config.DriverSQLite:
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("no store dialect for driver %q", driver)
	}
}

var placeholder = regexp.MustCompile(`\$(\d+)`)

// Rebind rewrites $N placeholders to ?N for drivers that want them.
func (d Dialect) Rebind(query string) string {
	if !d.positional {
		return query
	}
	return placeholder.ReplaceAllString(query, "?$1")
}
