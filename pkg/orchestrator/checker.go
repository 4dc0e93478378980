package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/pseudomuto/gatekeeper/pkg/config"
	"github.com/pseudomuto/gatekeeper/pkg/consts"
	"github.com/pseudomuto/gatekeeper/pkg/engine"
	"github.com/pseudomuto/gatekeeper/pkg/resource"
)

// resolver looks up the source of a pending migration. It returns false when
// the source could not be found so the next resolver can be tried.
type resolver func(db *config.Database, m *engine.MigrationInfo) (string, bool, error)

// CheckState fails when the named database has pending migrations.
//
// The returned *InvalidRevisionError carries a report with the source of
// every pending migration, each under a "--- <script> ---" header. When
// nothing is pending and validate_on_start is set, the engine's validation
// runs and its error is returned unchanged.
//
// Databases without an engine are considered up to date.
//
// Example usage:
//
//	err := o.CheckState(ctx, "default")
//
//	var revErr *orchestrator.InvalidRevisionError
//	if errors.As(err, &revErr) {
//		fmt.Println(revErr.Report)
//	}
func (o *Orchestrator) CheckState(ctx context.Context, name string) error {
	e, ok, err := o.Engine(name)
	if err != nil || !ok {
		return err
	}

	db, _ := o.cfg.Database(name)

	info, err := e.Info(ctx)
	if err != nil {
		return err
	}

	pending := info.Pending()
	o.metrics.Pending(name, len(pending))

	if len(pending) == 0 {
		if db.Migration.ValidateOnStart {
			slog.Debug("Validating migrations", "database", name)
			return e.Validate(ctx)
		}

		return nil
	}

	blocks := make([]string, 0, len(pending))
	for _, m := range pending {
		content, err := o.resolveSource(db, m)
		if err != nil {
			return err
		}

		blocks = append(blocks, "--- "+m.Script+" ---\n"+content)
	}

	slog.Error("Database has pending migrations", "database", name, "pending", len(pending))
	return &InvalidRevisionError{Database: name, Report: strings.Join(blocks, "\n")}
}

func (o *Orchestrator) resolveSource(db *config.Database, m *engine.MigrationInfo) (string, error) {
	for _, r := range o.resolvers() {
		content, ok, err := r(db, m)
		if err != nil {
			return "", err
		}
		if ok {
			return content, nil
		}
	}

	return "", &ScriptNotFoundError{Database: db.Name, Script: m.Script}
}

func (o *Orchestrator) resolvers() []resolver {
	return []resolver{
		o.fromLocations,
		o.fromCodeFile,
		o.fromCodeProbe,
	}
}

// fromLocations reads the script from the first location holding it,
// decoded with the configured encoding.
func (o *Orchestrator) fromLocations(db *config.Database, m *engine.MigrationInfo) (string, bool, error) {
	for _, loc := range o.locations(db) {
		content, ok, err := o.locator.ReadScript(resource.Join(loc, m.Script))
		if err != nil {
			return "", false, err
		}
		if !ok {
			continue
		}

		enc := consts.DefaultEncoding
		if db.Migration.Encoding != nil {
			enc = *db.Migration.Encoding
		}

		decoded, err := engine.Decode([]byte(content), enc)
		if err != nil {
			return "", false, errors.Wrapf(err, "failed to read migration %s", m.Script)
		}

		return decoded, true, nil
	}

	return "", false, nil
}

// fromCodeFile searches the application root for the Go source of the
// migration, e.g. V1_2__backfill.go for version 1.2.
func (o *Orchestrator) fromCodeFile(db *config.Database, m *engine.MigrationInfo) (string, bool, error) {
	if m.Version.IsZero() {
		return "", false, nil
	}

	prefix := consts.DefaultSQLMigrationPrefix
	if db.Migration.SQLMigrationPrefix != nil {
		prefix = *db.Migration.SQLMigrationPrefix
	}

	sep := consts.DefaultSQLMigrationSeparator
	if db.Migration.SQLMigrationSeparator != nil {
		sep = *db.Migration.SQLMigrationSeparator
	}

	want := prefix + m.Version.Underscored() + sep
	path, ok := o.locator.FindFile(func(name string) bool {
		return strings.HasPrefix(name, want) &&
			strings.HasSuffix(name, ".go") &&
			!strings.HasSuffix(name, "_test.go")
	})
	if !ok {
		return "", false, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", false, errors.Wrapf(err, "failed to read migration source: %s", path)
	}

	return string(data), true, nil
}

// fromCodeProbe confirms the migration is compiled into the binary. Its
// source is not available at runtime.
func (o *Orchestrator) fromCodeProbe(_ *config.Database, m *engine.MigrationInfo) (string, bool, error) {
	if !o.locator.CodeExists(m.Script) {
		return "", false, nil
	}

	return fmt.Sprintf("-- go migration %s is compiled into the binary; source unavailable", m.Script), true, nil
}
