// Package engine applies versioned schema migrations to a single database.
//
// Migrations are SQL scripts named <prefix><version><separator><description><suffix>
// (V1__create_users.sql by default) found recursively in a set of locations
// of an fs.FS, plus migrations written in Go and registered with a Registry.
// Applied migrations are recorded in a schema history table
// (gatekeeper_schema_history by default) holding the installed rank,
// version, description, type, script, h1 checksum, user, time, duration and
// outcome of every migration.
//
// # Supported databases
//
// The engine speaks to PostgreSQL (drivers postgres and pgx), MySQL (mysql),
// SQLite (sqlite and sqlite3) and ClickHouse (clickhouse). Each has a
// Dialect that knows how to open the data source, quote identifiers, create
// and clean schemas and maintain the history table. Migrations run in a
// transaction wherever the database allows it; on ClickHouse a failed
// migration is recorded as failed and has to be repaired before migrating
// again.
//
// # Operations
//
//   - Migrate applies pending migrations in version order
//   - Info reports the state of every migration
//   - Validate compares the resolved migrations with the history
//   - Baseline marks an existing schema as being at a given version
//   - Repair removes failed rows and realigns checksums
//   - Clean drops everything in the managed schemas
//
// # Scripts
//
// Scripts are decoded from their configured encoding, placeholders
// (${name} by default) are replaced and the result is split into
// statements on semicolons outside of comments, strings, quoted identifiers
// and dollar quoted bodies. The built-in placeholders
// gatekeeper:defaultSchema, gatekeeper:user and gatekeeper:table are always
// available.
package engine
