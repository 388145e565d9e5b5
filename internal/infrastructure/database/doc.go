// Package database manages the SQLite connection for DeviceHub.
//
// It wraps database/sql with WAL-mode pragmas, a single-writer connection
// pool (SQLite supports one writer), health checks, and an embedded-FS
// migration runner. Migrations are registered by the top-level migrations
// package via go:embed and applied at startup.
package database
