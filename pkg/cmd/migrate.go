package cmd

import (
	"context"

	"github.com/pseudomuto/gatekeeper/pkg/orchestrator"
	"github.com/urfave/cli/v3"
)

// migrate creates the migrate command for applying pending migrations.
//
// Command flags:
//   - --database, -d: Only migrate the named database (repeatable)
//
// Example usage:
//
//	# Apply all pending migrations
//	gatekeeper migrate
//
//	# Apply pending migrations of one database
//	gatekeeper migrate --database default
func migrate(p engineParams) *cli.Command {
	return &cli.Command{
		Name:    "migrate",
		Aliases: []string{"apply"},
		Usage:   "Apply pending migrations",
		Description: `Apply the pending migrations of every configured database, in
configuration order, regardless of migration.auto.

Migrations are applied in version order and recorded in the schema history
table (gatekeeper_schema_history unless migration.table is set). On databases
with transactional DDL each migration runs in its own transaction; elsewhere a
failed migration is recorded and must be fixed with "gatekeeper repair" before
migrating again.

Unless migration.validate_on_migrate is false, the applied migrations are
validated against the local scripts first.`,
		Before: requireConfig(p.Loader),
		Flags:  []cli.Flag{databaseFlag},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withOrchestrator(p, func(o *orchestrator.Orchestrator) error {
				return eachEngine(ctx, cmd, o, func(ctx context.Context, name string, _ orchestrator.Engine) error {
					n, err := o.Migrate(ctx, name)
					if err != nil {
						return err
					}

					printf(cmd, "%s: applied %d migration(s)\n", name, n)
					return nil
				})
			})
		},
	}
}
