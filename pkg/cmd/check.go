package cmd

import (
	"context"

	"github.com/pkg/errors"
	"github.com/pseudomuto/gatekeeper/pkg/orchestrator"
	"github.com/urfave/cli/v3"
)

// check creates the check command for finding pending migrations without
// applying them.
//
// Command flags:
//   - --database, -d: Only check the named database (repeatable)
//
// Example usage:
//
//	# Check every configured database
//	gatekeeper check
//
//	# Check a single database
//	gatekeeper check --database reporting
func check(p engineParams) *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "Fail when migrations are pending",
		Description: `Check every configured database for pending migrations without applying
them, regardless of migration.auto or the configured mode.

For each database with pending migrations the source of every pending script
is printed under a "--- <script> ---" header and the command exits with a
non-zero status.`,
		Before: requireConfig(p.Loader),
		Flags:  []cli.Flag{databaseFlag},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withOrchestrator(p, func(o *orchestrator.Orchestrator) error {
				return runCheck(ctx, cmd, o)
			})
		},
	}
}

func runCheck(ctx context.Context, cmd *cli.Command, o *orchestrator.Orchestrator) error {
	names, err := selectedDatabases(cmd, o.Config())
	if err != nil {
		return err
	}

	failed := 0
	for _, name := range names {
		if _, ok, err := o.Engine(name); err != nil {
			return err
		} else if !ok {
			printf(cmd, "%s: no migration scripts found\n", name)
			continue
		}

		err := o.CheckState(ctx, name)
		if err == nil {
			printf(cmd, "%s: up to date\n", name)
			continue
		}

		var revErr *orchestrator.InvalidRevisionError
		if !errors.As(err, &revErr) {
			return err
		}

		failed++
		printf(cmd, "%s: pending migrations\n%s\n", name, indent(revErr.Report, "  "))
	}

	if failed > 0 {
		return errors.Errorf("%d database(s) have pending migrations", failed)
	}

	return nil
}
