// Package store provides storage backends for CoachPipe.
//
// This file holds shared configuration options and DSN helpers.
package store

import "strings"

// Opts holds configuration for the SQL-backed stores.
type Opts struct {
	DSN string
}

// Option defines a configuration option for a store.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType inspects a DSN and reports the matching driver name:
// "postgres" for PostgreSQL URLs and key=value connection strings, "sqlite3"
// for everything else (file paths).
func DetectDSNType(dsn string) string {
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return "postgres"
	}
	// key=value postgres connection strings ("host=... dbname=...")
	if strings.Contains(lower, "host=") || strings.Contains(lower, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}

// NewStore opens the store matching the DSN type. An empty DSN yields the
// in-memory store.
func NewStore(dsn string) (Store, error) {
	if dsn == "" {
		return NewInMemoryStore(), nil
	}
	if DetectDSNType(dsn) == "postgres" {
		return NewPostgresStore(WithDSN(dsn))
	}
	return NewSQLiteStore(WithDSN(dsn))
}
