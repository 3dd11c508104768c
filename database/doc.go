// Package database provides connection management for the supported dialects
// (MySQL, PostgreSQL, SQLite), configuration loading with environment
// overrides, table bootstrap for registered models, query logging hooks,
// health checks, and SQL error classification built on top of Bun.
package database
