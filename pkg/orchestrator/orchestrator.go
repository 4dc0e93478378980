package orchestrator

import (
	"context"
	"io/fs"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/pseudomuto/gatekeeper/pkg/admin"
	"github.com/pseudomuto/gatekeeper/pkg/config"
	"github.com/pseudomuto/gatekeeper/pkg/engine"
	"github.com/pseudomuto/gatekeeper/pkg/resource"
)

type (
	// Orchestrator runs the startup migration check for every configured
	// database. Engines are created lazily, once, and owned by the
	// Orchestrator until Close.
	Orchestrator struct {
		cfg      *config.Config
		locator  Locator
		factory  EngineFactory
		registry *engine.Registry
		metrics  *Metrics

		once    sync.Once
		mu      sync.Mutex
		engines map[string]Engine
		err     error

		adminOnce sync.Once
	}

	// Option customizes an Orchestrator.
	Option func(*Orchestrator)

	// Dispatcher is the router the administrative handler is mounted on. It
	// is satisfied by *http.ServeMux.
	Dispatcher = admin.Dispatcher
)

// WithEngineFactory replaces the function used to create engines.
func WithEngineFactory(f EngineFactory) Option {
	return func(o *Orchestrator) {
		o.factory = f
	}
}

// WithRegistry sets the registry Go migrations are taken from. Defaults to
// engine.DefaultRegistry.
func WithRegistry(r *engine.Registry) Option {
	return func(o *Orchestrator) {
		o.registry = r
	}
}

// WithMetrics records migration metrics in m.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// New creates an Orchestrator for cfg resolving scripts through locator.
//
// Example usage:
//
//	cfg, err := config.LoadFile("gatekeeper.yaml")
//	if err != nil {
//		return err
//	}
//
//	o := orchestrator.New(cfg, resource.NewDir(cfg.Root))
//	defer o.Close()
//
//	if err := o.Start(ctx, http.DefaultServeMux); err != nil {
//		return err
//	}
func New(cfg *config.Config, locator Locator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		locator:  locator,
		factory:  newEngine,
		registry: engine.DefaultRegistry,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// FromConfig creates an Orchestrator whose locator follows the configured
// resources backend. Scripts are read from cfg.Root on disk, or from
// resources when the embedded backend is configured.
func FromConfig(cfg *config.Config, resources fs.FS, opts ...Option) (*Orchestrator, error) {
	o := New(cfg, nil, opts...)
	probe := resource.WithCodeProbe(o.registry.Has)

	switch cfg.Resources {
	case config.ResourcesEmbedded:
		if resources == nil {
			return nil, errors.New("embedded resources are configured but none were provided")
		}
		o.locator = resource.NewEmbedded(resources, resource.WithRoot(cfg.Root), probe)
	default:
		o.locator = resource.NewDir(cfg.Root, probe)
	}

	return o, nil
}

// Config returns the configuration the Orchestrator was created with.
func (o *Orchestrator) Config() *config.Config {
	return o.cfg
}

// Locator returns the locator scripts are resolved with.
func (o *Orchestrator) Locator() Locator {
	return o.locator
}

// Engines returns the engine of every database with migration scripts,
// keyed by database name. The engines are created on the first call; later
// calls return the same instances, or the same error.
func (o *Orchestrator) Engines() (map[string]Engine, error) {
	o.once.Do(func() {
		engines, err := o.buildEngines()

		o.mu.Lock()
		defer o.mu.Unlock()
		o.engines, o.err = engines, err
	})

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.err != nil {
		return nil, o.err
	}

	return maps.Clone(o.engines), nil
}

// Engine returns the engine of the named database. ok is false when the
// database is not configured or has no migration scripts.
func (o *Orchestrator) Engine(name string) (Engine, bool, error) {
	engines, err := o.Engines()
	if err != nil {
		return nil, false, err
	}

	e, ok := engines[name]
	return e, ok, nil
}

// OnStart brings every database up to date, in configuration order.
//
// In test mode, or when auto is set for a database, pending migrations are
// applied. Otherwise the state is checked with CheckState and any pending
// migration fails the start. The first error aborts the remaining databases.
func (o *Orchestrator) OnStart(ctx context.Context) error {
	for _, name := range o.cfg.Names() {
		db, _ := o.cfg.Database(name)

		var err error
		if o.cfg.IsTest() || db.Migration.Auto {
			_, err = o.Migrate(ctx, name)
		} else {
			err = o.CheckState(ctx, name)
		}

		if err != nil {
			return err
		}
	}

	return nil
}

// Start is the host entry point. It registers the administrative handler
// with d and runs OnStart. Nothing happens when gatekeeper is disabled.
func (o *Orchestrator) Start(ctx context.Context, d Dispatcher) error {
	if !o.cfg.IsEnabled() {
		slog.Info("Gatekeeper is disabled; skipping migrations")
		return nil
	}

	if d != nil {
		o.RegisterAdmin(d)
	}

	return o.OnStart(ctx)
}

// Migrate applies the pending migrations of the named database and returns
// how many were applied. The engine's error is returned unchanged.
func (o *Orchestrator) Migrate(ctx context.Context, name string) (int, error) {
	e, ok, err := o.Engine(name)
	if err != nil || !ok {
		return 0, err
	}

	slog.Info("Migrating database", "database", name)

	start := time.Now()
	n, err := e.Migrate(ctx)
	if err != nil {
		return n, err
	}

	o.metrics.Applied(name, n, time.Since(start))
	slog.Info("Database is up to date", "database", name, "applied", n)
	return n, nil
}

// RegisterAdmin mounts the administrative handler on d under the configured
// prefix. Only the first call has an effect.
func (o *Orchestrator) RegisterAdmin(d Dispatcher) {
	o.adminOnce.Do(func() {
		h := admin.New(admin.Params{
			Config:      o.cfg,
			Environment: o.cfg.Mode,
			Prefix:      o.cfg.AdminPrefix,
			Location:    o.cfg.Location,
			Engines:     o.adminEngine,
			Metrics:     o.metrics,
		})
		h.Register(d)

		slog.Debug("Registered admin handler", "prefix", o.cfg.AdminPrefix)
	})
}

// Close closes every engine created so far.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	var first error
	for _, name := range o.cfg.Names() {
		e, ok := o.engines[name]
		if !ok {
			continue
		}

		if err := e.Close(); err != nil {
			slog.Warn("Failed to close engine", "database", name, "error", err)
			if first == nil {
				first = errors.Wrapf(err, "failed to close engine for database %s", name)
			}
		}
	}

	return first
}

func (o *Orchestrator) adminEngine(name string) (admin.Engine, bool, error) {
	e, ok, err := o.Engine(name)
	if err != nil || !ok {
		return nil, ok, err
	}

	return e, true, nil
}
