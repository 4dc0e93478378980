package cmd

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/pseudomuto/gatekeeper/pkg/orchestrator"
	"github.com/urfave/cli/v3"
)

const shutdownTimeout = 10 * time.Second

// serve creates the serve command, which runs the startup checks and then
// serves the admin endpoints and metrics until interrupted.
//
// Command flags:
//   - --addr: Address to listen on (default: localhost:8080)
//   - --watch: Re-check a database whenever its migration scripts change
//
// Example usage:
//
//	# Serve the admin endpoints
//	gatekeeper serve --addr :8080
//
//	# Re-check databases while editing migrations
//	gatekeeper --mode dev serve --watch
func serve(p engineParams) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the admin endpoints and metrics",
		Description: `Run the startup checks, then serve the admin endpoints under the configured
admin_prefix (default /@gatekeeper) and Prometheus metrics under /metrics.

  GET  <prefix>                     list configured databases
  GET  <prefix>/<database>          migration info
  POST <prefix>/<database>/<action> migrate, validate, clean, baseline or repair
                                    (dev mode only)

With --watch, each database is checked again whenever files under its
migration directory change. Only the filesystem resources backend can be
watched.`,
		Before: requireConfig(p.Loader),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "address to listen on",
				Value: "localhost:8080",
				Config: cli.StringConfig{
					TrimSpace: true,
				},
			},
			&cli.BoolFlag{
				Name:  "watch",
				Usage: "re-check databases when their migration scripts change",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withOrchestrator(p, func(o *orchestrator.Orchestrator) error {
				return runServe(ctx, cmd, p, o)
			})
		},
	}
}

func runServe(ctx context.Context, cmd *cli.Command, p engineParams, o *orchestrator.Orchestrator) error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", p.Builder.Metrics().Handler())

	if err := o.Start(ctx, mux); err != nil {
		return reportStartError(cmd, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cmd.Bool("watch") {
		go func() {
			if err := o.Watch(ctx); err != nil {
				slog.Error("Watcher stopped", "err", err)
			}
		}()
	}

	ln, err := net.Listen("tcp", cmd.String("addr"))
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", cmd.String("addr"))
	}

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Serving admin endpoints", "addr", ln.Addr().String(), "prefix", o.Config().AdminPrefix)
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "server failed")
	case <-ctx.Done():
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()

	slog.Info("Shutting down")
	return srv.Shutdown(shutdownCtx)
}
