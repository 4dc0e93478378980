// Package cmd provides the CLI commands of gatekeeper.
//
// # Available Commands
//
//   - start: run the startup checks (migrate or fail per database)
//   - check: fail when migrations are pending, printing their scripts
//   - migrate: apply pending migrations
//   - info: show the state of every migration
//   - validate: validate applied migrations against the local scripts
//   - clean: drop every object in the configured schemas
//   - baseline: baseline an existing database
//   - repair: repair the schema history table
//   - serve: serve the admin endpoints and metrics, optionally watching scripts
//
// # Command Structure
//
// Each command is a constructor returning a *cli.Command. Constructors take
// their dependencies as an fx.In struct and are collected into the
// "commands" value group by Module.
//
// # Global Options
//
//   - --config, -c: configuration file (default gatekeeper.yaml)
//   - --mode, -m: override the configured mode
//   - --log-level, --log-format: logging setup
//
// # Example Usage
//
//	gatekeeper check                       # Fail on pending migrations
//	gatekeeper migrate --database default  # Migrate one database
//	gatekeeper info                        # Show migration state
//	gatekeeper serve --addr :8080 --watch  # Admin endpoints with re-checks
package cmd
