package orchestrator

import (
	"context"
	"io/fs"

	"github.com/pseudomuto/gatekeeper/pkg/engine"
)

// Engine is the migration engine driven for a single database. It is
// satisfied by *engine.Engine; tests supply recording fakes.
type Engine interface {
	SetDataSource(ds engine.DataSource)
	SetResources(fsys fs.FS)
	SetCodeMigrations(ms []*engine.GoMigration)
	SetLocations(locations []string)
	SetEncoding(encoding string)
	SetSchemas(schemas []string)
	SetTable(table string)
	SetPlaceholderReplacement(enabled bool)
	SetPlaceholders(placeholders map[string]string)
	SetPlaceholderPrefix(prefix string)
	SetPlaceholderSuffix(suffix string)
	SetSQLMigrationPrefix(prefix string)
	SetSQLMigrationSuffixes(suffixes []string)
	SetSQLMigrationSeparator(sep string)
	SetIgnoreFutureMigrations(ignore bool)
	SetValidateOnMigrate(validate bool)
	SetCleanOnValidationError(clean bool)
	SetCleanDisabled(disabled bool)
	SetBaselineOnMigrate(baseline bool)
	SetOutOfOrder(outOfOrder bool)

	Info(ctx context.Context) (*engine.Info, error)
	Migrate(ctx context.Context) (int, error)
	Validate(ctx context.Context) error
	Clean(ctx context.Context) error
	Baseline(ctx context.Context) error
	Repair(ctx context.Context) error
	Close() error
}

// EngineFactory creates an unconfigured engine for the named database.
type EngineFactory func(name string) (Engine, error)

var _ Engine = (*engine.Engine)(nil)

func newEngine(string) (Engine, error) {
	return engine.New(), nil
}
