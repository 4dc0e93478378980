package cmd

import (
	"context"
	"strconv"
	"time"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"github.com/pseudomuto/gatekeeper/pkg/engine"
	"github.com/pseudomuto/gatekeeper/pkg/orchestrator"
	"github.com/urfave/cli/v3"
)

// info creates the info command, which prints the state of every migration.
//
// Command flags:
//   - --database, -d: Only show the named database (repeatable)
//
// Example usage:
//
//	gatekeeper info
//	gatekeeper info --database reporting
func info(p engineParams) *cli.Command {
	return &cli.Command{
		Name:    "info",
		Aliases: []string{"status"},
		Usage:   "Show the state of every migration",
		Description: `Print every migration of each configured database together with its state:

  pending         resolved locally, not applied yet
  success         applied
  failed          applied but failed; run "gatekeeper repair"
  future          applied, newer than every local script
  missing         applied, no longer found locally
  ignored         older than the current version and not applied
  baseline        the version the schema was baselined at
  below_baseline  older than the baseline and never applied
  out_of_order    applied after a newer version`,
		Before: requireConfig(p.Loader),
		Flags:  []cli.Flag{databaseFlag},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withOrchestrator(p, func(o *orchestrator.Orchestrator) error {
				return eachEngine(ctx, cmd, o, func(ctx context.Context, name string, e orchestrator.Engine) error {
					info, err := e.Info(ctx)
					if err != nil {
						return err
					}

					printf(cmd, "%s\n", renderInfo(name, info))
					return nil
				})
			})
		},
	}
}

func renderInfo(name string, info *engine.Info) string {
	current := "<< Empty Schema >>"
	if cur := info.Current(); cur != nil {
		current = cur.Version.String()
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Version", "Description", "Type", "Installed On", "State")

	for _, m := range info.All() {
		installed := ""
		if m.InstalledOn != nil {
			installed = m.InstalledOn.Local().Format(time.DateTime)
		}

		t.Row(m.Version.String(), m.Description, string(m.Type), installed, string(m.State))
	}

	return "Database: " + name + "\n" +
		"Current version: " + current + "\n" +
		"Pending: " + strconv.Itoa(len(info.Pending())) + "\n" +
		t.String()
}
