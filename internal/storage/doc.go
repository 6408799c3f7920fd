// Package storage persists users, delivery targets and the known-group
// registry.
//
// Drivers:
//   - "sqlite": pure Go SQLite file (modernc.org/sqlite)
//   - "postgres": Postgres through pgx's database/sql driver
//   - "memory": process-local maps, used by tests and dry runs
package storage
