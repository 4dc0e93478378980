package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/pseudomuto/gatekeeper/pkg/config"
	"github.com/pseudomuto/gatekeeper/pkg/consts"
	"github.com/urfave/cli/v3"
	"go.uber.org/fx"
)

type (
	Params struct {
		fx.In

		Args       []string
		Commands   []*cli.Command `group:"commands"`
		Ctx        context.Context
		Lifecycle  fx.Lifecycle
		Loader     *config.Loader
		Shutdowner fx.Shutdowner
		Version    *Version
	}

	Version struct {
		Version   string
		Commit    string
		Timestamp string
	}
)

// Run creates and executes the gatekeeper CLI application with the given
// arguments once the fx application starts.
//
// Global Flags:
//   - --config, -c: Configuration file (defaults to gatekeeper.yaml, env GATEKEEPER_CONFIG)
//   - --mode, -m: Overrides the configured mode (dev, test or prod, env GATEKEEPER_MODE)
//   - --log-level: debug, info, warn or error (defaults to info)
//   - --log-format: text or json (defaults to text)
//
// The configuration file is loaded before any command runs. A missing file is
// not an error; commands that need a configuration fail with a clear message
// instead.
//
// Example usage:
//
//	# Check every database in the current directory
//	gatekeeper check
//
//	# Apply pending migrations using another configuration
//	gatekeeper --config deploy/gatekeeper.yaml migrate
func Run(p Params) {
	cli.VersionPrinter = func(cmd *cli.Command) {
		fmt.Fprintln(cmd.Writer, "Version:", p.Version.Version)
		fmt.Fprintln(cmd.Writer, "Commit:", p.Version.Commit)
		fmt.Fprintln(cmd.Writer, "Date:", p.Version.Timestamp)
	}

	app := newApp(p.Loader, p.Version.Version, p.Commands)

	p.Lifecycle.Append(fx.StartHook(func() {
		if err := app.Run(p.Ctx, p.Args); err != nil {
			slog.Error("Error running command", "err", err)
			_ = p.Shutdowner.Shutdown(fx.ExitCode(1))
			return
		}

		_ = p.Shutdowner.Shutdown(fx.ExitCode(0))
	}))
}

func newApp(loader *config.Loader, version string, commands []*cli.Command) *cli.Command {
	return &cli.Command{
		Name:  "gatekeeper",
		Usage: "Check and apply database migrations when an application starts",
		Description: `gatekeeper verifies that every configured database is up to date before
an application starts serving. Databases can be migrated automatically or the
start can be refused with a report of the pending migration scripts.`,
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "the gatekeeper config file",
				Sources: cli.EnvVars("GATEKEEPER_CONFIG"),
				Value:   consts.DefaultConfigFile,
				Config: cli.StringConfig{
					TrimSpace: true,
				},
			},
			&cli.StringFlag{
				Name:    "mode",
				Aliases: []string{"m"},
				Usage:   "override the configured mode (dev, test or prod)",
				Sources: cli.EnvVars("GATEKEEPER_MODE"),
				Config: cli.StringConfig{
					TrimSpace: true,
				},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "the log level (debug, info, warn or error)",
				Value: "info",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "the log format (text or json)",
				Value: "text",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if err := setupLogging(cmd.Root().ErrWriter, cmd.String("log-level"), cmd.String("log-format")); err != nil {
				return ctx, err
			}

			if err := loader.Load(cmd.String("config")); err != nil {
				return ctx, err
			}

			return ctx, overrideMode(loader, cmd.String("mode"))
		},
		Commands: commands,
	}
}

func setupLogging(w io.Writer, level, format string) error {
	if w == nil {
		w = os.Stderr
	}

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return errors.Wrapf(err, "invalid log level: %s", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "text":
		slog.SetDefault(slog.New(slog.NewTextHandler(w, opts)))
	case "json":
		slog.SetDefault(slog.New(slog.NewJSONHandler(w, opts)))
	default:
		return errors.Errorf("invalid log format: %s (expected text or json)", format)
	}

	return nil
}

func overrideMode(loader *config.Loader, mode string) error {
	cfg := loader.Config()
	if cfg == nil || mode == "" {
		return nil
	}

	switch m := config.Mode(mode); m {
	case config.ModeDev, config.ModeTest, config.ModeProd:
		cfg.Mode = m
		return nil
	default:
		return &config.ConfigError{Field: "mode", Err: errors.Errorf("unrecognized value %q (expected dev, test or prod)", mode)}
	}
}

func requireConfig(loader *config.Loader) func(context.Context, *cli.Command) (context.Context, error) {
	return func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
		if loader.Config() == nil {
			path := cmd.String("config")
			if path == "" {
				path = consts.DefaultConfigFile
			}

			return ctx, errors.Errorf("%s not found", path)
		}

		return ctx, nil
	}
}
