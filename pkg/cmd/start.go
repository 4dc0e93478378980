package cmd

import (
	"context"

	"github.com/pkg/errors"
	"github.com/pseudomuto/gatekeeper/pkg/orchestrator"
	"github.com/urfave/cli/v3"
)

// start creates the start command, which runs the same checks an application
// runs when it boots.
//
// Databases with auto enabled (or every database in test mode) are migrated;
// the rest fail when migrations are pending. Nothing happens when gatekeeper
// is disabled in the configuration.
//
// Example usage:
//
//	# Run the startup checks as part of a deployment
//	gatekeeper start
//
//	# Migrate everything, as the test suite would
//	gatekeeper --mode test start
func start(p engineParams) *cli.Command {
	return &cli.Command{
		Name:  "start",
		Usage: "Run the startup migration checks",
		Description: `Run the checks performed when the application starts.

Each configured database with a migration directory is processed in
configuration order:

- in test mode, or when migration.auto is set, pending migrations are applied
- otherwise the start fails if any migration is pending, printing the source
  of every pending migration script
- when nothing is pending and migration.validate_on_start is set, applied
  migrations are validated against the local scripts

Databases without a migration directory are skipped with a warning.`,
		Before: requireConfig(p.Loader),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withOrchestrator(p, func(o *orchestrator.Orchestrator) error {
				if err := o.Start(ctx, nil); err != nil {
					return reportStartError(cmd, err)
				}

				if o.Config().IsEnabled() {
					printf(cmd, "All databases are up to date\n")
				}
				return nil
			})
		},
	}
}

func reportStartError(cmd *cli.Command, err error) error {
	var revErr *orchestrator.InvalidRevisionError
	if errors.As(err, &revErr) {
		printf(cmd, "%s: pending migrations\n%s\n", revErr.Database, indent(revErr.Report, "  "))
		return errors.Errorf("database %s has pending migrations", revErr.Database)
	}

	return err
}
