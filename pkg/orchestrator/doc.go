// Package orchestrator checks, and optionally migrates, every configured
// database when the host application starts.
//
// For each database with a script directory (<location>/<database>) an
// engine is created lazily and cached for the lifetime of the Orchestrator.
// On start, databases in test mode or with auto enabled are migrated; all
// others fail with an *InvalidRevisionError when migrations are pending. The
// error's report lists the source of each pending migration:
//
//	--- V1__init.sql ---
//	CREATE TABLE users (id INT);
//
// Databases without a script directory are skipped with a warning.
package orchestrator
