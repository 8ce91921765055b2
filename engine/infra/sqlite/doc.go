// Package sqlite provides the modernc.org/sqlite backed session driver.
//
// The package mirrors the postgres driver layout while supplying SQLite specific
// connection management and migrations.
package sqlite
