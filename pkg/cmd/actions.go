package cmd

import (
	"context"

	"github.com/pseudomuto/gatekeeper/pkg/orchestrator"
	"github.com/urfave/cli/v3"
)

type engineAction struct {
	name        string
	usage       string
	description string
	done        string
	run         func(e orchestrator.Engine, ctx context.Context) error
}

// validate creates the validate command.
//
// Example usage:
//
//	gatekeeper validate --database default
func validate(p engineParams) *cli.Command {
	return engineCommand(p, engineAction{
		name:  "validate",
		usage: "Validate applied migrations against the local scripts",
		description: `Validate the applied migrations of each configured database against the
local scripts. Validation fails when:

- the checksum of an applied script changed
- an applied migration can no longer be found locally (unless it is newer
  than every local script and migration.ignore_future_migrations is set)
- a local migration older than the current version was never applied (unless
  migration.out_of_order is set)
- a migration failed and was not repaired`,
		done: "validated",
		run:  orchestrator.Engine.Validate,
	})
}

// clean creates the clean command.
//
// Example usage:
//
//	gatekeeper clean --database scratch
func clean(p engineParams) *cli.Command {
	return engineCommand(p, engineAction{
		name:  "clean",
		usage: "Drop every object in the configured schemas",
		description: `Drop every object in the configured schemas, including the schema history
table.

This is destructive and refused when migration.clean_disabled is set.`,
		done: "cleaned",
		run:  orchestrator.Engine.Clean,
	})
}

// baseline creates the baseline command.
//
// Example usage:
//
//	gatekeeper baseline --database legacy
func baseline(p engineParams) *cli.Command {
	return engineCommand(p, engineAction{
		name:  "baseline",
		usage: "Baseline an existing database",
		description: `Create the schema history table of an existing database and record the
baseline version (1). Migrations up to and including the baseline are not
applied.`,
		done: "baselined",
		run:  orchestrator.Engine.Baseline,
	})
}

// repair creates the repair command.
//
// Example usage:
//
//	gatekeeper repair --database reporting
func repair(p engineParams) *cli.Command {
	return engineCommand(p, engineAction{
		name:  "repair",
		usage: "Repair the schema history table",
		description: `Remove the failed migrations from the schema history table and realign the
recorded checksums with the local scripts.`,
		done: "repaired",
		run:  orchestrator.Engine.Repair,
	})
}

func engineCommand(p engineParams, a engineAction) *cli.Command {
	return &cli.Command{
		Name:        a.name,
		Usage:       a.usage,
		Description: a.description,
		Before:      requireConfig(p.Loader),
		Flags:       []cli.Flag{databaseFlag},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withOrchestrator(p, func(o *orchestrator.Orchestrator) error {
				return eachEngine(ctx, cmd, o, func(ctx context.Context, name string, e orchestrator.Engine) error {
					if err := a.run(e, ctx); err != nil {
						return err
					}

					printf(cmd, "%s: %s\n", name, a.done)
					return nil
				})
			})
		},
	}
}
