package orchestrator

import (
	"io/fs"
	"log/slog"

	"github.com/pkg/errors"
	"github.com/pseudomuto/gatekeeper/pkg/config"
	"github.com/pseudomuto/gatekeeper/pkg/engine"
	"github.com/pseudomuto/gatekeeper/pkg/resource"
)

// Locator resolves migration resources. It is satisfied by
// *resource.Locator.
type Locator interface {
	Backend() string
	FS() fs.FS
	Root() string
	Exists(location string) bool
	ReadScript(location string) (string, bool, error)
	CodeExists(name string) bool
	FindFile(match func(name string) bool) (string, bool)
}

var _ Locator = (*resource.Locator)(nil)

// buildEngines constructs one engine per configured database whose script
// location exists, in configuration order. Databases without a script
// location are skipped with a warning.
func (o *Orchestrator) buildEngines() (map[string]Engine, error) {
	engines := make(map[string]Engine, len(o.cfg.Databases))
	for _, db := range o.cfg.Databases {
		base := o.baseLocation(db.Name)
		if !o.locator.Exists(base) {
			slog.Warn("Skipping database without migration scripts", "database", db.Name, "location", base)
			continue
		}

		e, err := o.buildEngine(db)
		if err != nil {
			closeAll(engines)
			return nil, err
		}

		engines[db.Name] = e
	}

	return engines, nil
}

func (o *Orchestrator) buildEngine(db *config.Database) (Engine, error) {
	e, err := o.factory(db.Name)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create engine for database %s", db.Name)
	}

	e.SetDataSource(engine.DataSource{
		Driver:   db.Driver,
		URL:      db.URL,
		User:     db.User,
		Password: db.Password,
	})
	e.SetResources(o.locator.FS())
	e.SetLocations(o.locations(db))
	applySettings(e, db)
	e.SetCodeMigrations(o.registry.For(db.Name))

	slog.Debug("Created engine", "database", db.Name, "driver", db.Driver)
	return e, nil
}

// baseLocation is the primary script location of a database.
func (o *Orchestrator) baseLocation(name string) string {
	return resource.Join(o.cfg.Location, name)
}

// locations returns the script locations of a database: one per configured
// sub-location, or the base location when none are configured.
func (o *Orchestrator) locations(db *config.Database) []string {
	base := o.baseLocation(db.Name)
	if len(db.Migration.Locations) == 0 {
		return []string{base}
	}

	locs := make([]string, 0, len(db.Migration.Locations))
	for _, sub := range db.Migration.Locations {
		locs = append(locs, resource.Join(base, sub))
	}

	return locs
}

func closeAll(engines map[string]Engine) {
	for name, e := range engines {
		if err := e.Close(); err != nil {
			slog.Warn("Failed to close engine", "database", name, "error", err)
		}
	}
}
