package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/pseudomuto/gatekeeper/pkg/config"
	"github.com/pseudomuto/gatekeeper/pkg/orchestrator"
	"github.com/urfave/cli/v3"
	"go.uber.org/fx"
)

type engineParams struct {
	fx.In

	Builder *orchestrator.Builder
	Loader  *config.Loader
}

var databaseFlag = &cli.StringSliceFlag{
	Name:    "database",
	Aliases: []string{"d"},
	Usage:   "limit the command to the named database (repeatable, defaults to all)",
}

// withOrchestrator builds an Orchestrator for the loaded configuration, runs
// fn and closes every engine afterwards.
func withOrchestrator(p engineParams, fn func(o *orchestrator.Orchestrator) error) error {
	o, err := p.Builder.Build(p.Loader.Config())
	if err != nil {
		return err
	}
	defer func() {
		if err := o.Close(); err != nil {
			slog.Warn("Failed to close engines", "err", err)
		}
	}()

	return fn(o)
}

// selectedDatabases returns the databases named with --database, in
// configuration order, or every configured database.
func selectedDatabases(cmd *cli.Command, cfg *config.Config) ([]string, error) {
	want := cmd.StringSlice("database")
	if len(want) == 0 {
		return cfg.Names(), nil
	}

	for _, name := range want {
		if _, ok := cfg.Database(name); !ok {
			return nil, errors.Errorf("unknown database: %s", name)
		}
	}

	var names []string
	for _, name := range cfg.Names() {
		if slices.Contains(want, name) {
			names = append(names, name)
		}
	}

	return names, nil
}

// eachEngine calls fn for every selected database that has migration
// scripts. Databases without scripts are reported and skipped.
func eachEngine(
	ctx context.Context,
	cmd *cli.Command,
	o *orchestrator.Orchestrator,
	fn func(ctx context.Context, name string, e orchestrator.Engine) error,
) error {
	names, err := selectedDatabases(cmd, o.Config())
	if err != nil {
		return err
	}

	for _, name := range names {
		e, ok, err := o.Engine(name)
		if err != nil {
			return err
		}
		if !ok {
			printf(cmd, "%s: no migration scripts found\n", name)
			continue
		}

		if err := fn(ctx, name, e); err != nil {
			return err
		}
	}

	return nil
}

func output(cmd *cli.Command) io.Writer {
	return cmd.Root().Writer
}

func printf(cmd *cli.Command, format string, args ...any) {
	_, _ = fmt.Fprintf(output(cmd), format, args...)
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}

	return strings.Join(lines, "\n")
}
