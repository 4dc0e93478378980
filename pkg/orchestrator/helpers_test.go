package orchestrator_test

import (
	"context"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/pseudomuto/gatekeeper/pkg/config"
	"github.com/pseudomuto/gatekeeper/pkg/engine"
	. "github.com/pseudomuto/gatekeeper/pkg/orchestrator"
	"github.com/pseudomuto/gatekeeper/pkg/resource"
	"github.com/stretchr/testify/require"
)

// fakeEngine records every runtime call. Setter calls are kept apart in
// settings so tests can assert on the engine configuration.
type fakeEngine struct {
	mu       sync.Mutex
	calls    []string
	settings map[string]any

	info        *engine.Info
	infoErr     error
	migrateErr  error
	validateErr error
	applied     int
	closed      bool
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{settings: make(map[string]any), info: engine.NewInfo()}
}

func (f *fakeEngine) set(name string, v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings[name] = v
}

func (f *fakeEngine) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeEngine) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeEngine) Setting(name string) (any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.settings[name]
	return v, ok
}

func (f *fakeEngine) SetDataSource(ds engine.DataSource)          { f.set("data_source", ds) }
func (f *fakeEngine) SetResources(fsys fs.FS)                     { f.set("resources", fsys) }
func (f *fakeEngine) SetCodeMigrations(ms []*engine.GoMigration)  { f.set("code_migrations", ms) }
func (f *fakeEngine) SetLocations(locations []string)             { f.set("locations", locations) }
func (f *fakeEngine) SetEncoding(encoding string)                 { f.set("encoding", encoding) }
func (f *fakeEngine) SetSchemas(schemas []string)                 { f.set("schemas", schemas) }
func (f *fakeEngine) SetTable(table string)                       { f.set("table", table) }
func (f *fakeEngine) SetPlaceholderReplacement(enabled bool)      { f.set("placeholder_replacement", enabled) }
func (f *fakeEngine) SetPlaceholders(placeholders map[string]string) {
	f.set("placeholders", placeholders)
}
func (f *fakeEngine) SetPlaceholderPrefix(prefix string)        { f.set("placeholder_prefix", prefix) }
func (f *fakeEngine) SetPlaceholderSuffix(suffix string)        { f.set("placeholder_suffix", suffix) }
func (f *fakeEngine) SetSQLMigrationPrefix(prefix string)       { f.set("sql_migration_prefix", prefix) }
func (f *fakeEngine) SetSQLMigrationSuffixes(suffixes []string) { f.set("sql_migration_suffixes", suffixes) }
func (f *fakeEngine) SetSQLMigrationSeparator(sep string)       { f.set("sql_migration_separator", sep) }
func (f *fakeEngine) SetIgnoreFutureMigrations(ignore bool)     { f.set("ignore_future_migrations", ignore) }
func (f *fakeEngine) SetValidateOnMigrate(validate bool)        { f.set("validate_on_migrate", validate) }
func (f *fakeEngine) SetCleanOnValidationError(clean bool)      { f.set("clean_on_validation_error", clean) }
func (f *fakeEngine) SetCleanDisabled(disabled bool)            { f.set("clean_disabled", disabled) }
func (f *fakeEngine) SetBaselineOnMigrate(baseline bool)        { f.set("baseline_on_migrate", baseline) }
func (f *fakeEngine) SetOutOfOrder(outOfOrder bool)             { f.set("out_of_order", outOfOrder) }

func (f *fakeEngine) Info(context.Context) (*engine.Info, error) {
	f.record("info")
	return f.info, f.infoErr
}

func (f *fakeEngine) Migrate(context.Context) (int, error) {
	f.record("migrate")
	return f.applied, f.migrateErr
}

func (f *fakeEngine) Validate(context.Context) error {
	f.record("validate")
	return f.validateErr
}

func (f *fakeEngine) Clean(context.Context) error {
	f.record("clean")
	return nil
}

func (f *fakeEngine) Baseline(context.Context) error {
	f.record("baseline")
	return nil
}

func (f *fakeEngine) Repair(context.Context) error {
	f.record("repair")
	return nil
}

func (f *fakeEngine) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeEngine) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// fakeFactory hands out one fakeEngine per database and counts
// constructions.
type fakeFactory struct {
	mu      sync.Mutex
	engines map[string]*fakeEngine
	created []string
	setup   func(name string, e *fakeEngine)
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{engines: make(map[string]*fakeEngine)}
}

func (f *fakeFactory) New(name string) (Engine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	e := newFakeEngine()
	if f.setup != nil {
		f.setup(name, e)
	}

	f.engines[name] = e
	f.created = append(f.created, name)
	return e, nil
}

func (f *fakeFactory) Engine(name string) *fakeEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.engines[name]
}

func (f *fakeFactory) Created() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.created...)
}

// logCapture collects log records written through slog.Default.
type logCapture struct {
	mu      sync.Mutex
	records []slog.Record
}

func captureLogs(t *testing.T) *logCapture {
	t.Helper()

	c := &logCapture{}
	prev := slog.Default()
	slog.SetDefault(slog.New(c))
	t.Cleanup(func() { slog.SetDefault(prev) })

	return c
}

func (c *logCapture) Enabled(context.Context, slog.Level) bool { return true }
func (c *logCapture) WithAttrs([]slog.Attr) slog.Handler        { return c }
func (c *logCapture) WithGroup(string) slog.Handler             { return c }

func (c *logCapture) Handle(_ context.Context, r slog.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, r)
	return nil
}

// Matching returns the messages logged at level that contain substr.
func (c *logCapture) Matching(level slog.Level, substr string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []string
	for _, r := range c.records {
		if r.Level == level && strings.Contains(r.Message, substr) {
			out = append(out, r.Message)
		}
	}

	return out
}

func mustLoad(t *testing.T, yaml string) *config.Config {
	t.Helper()

	cfg, err := config.Load(strings.NewReader(yaml))
	require.NoError(t, err)
	return cfg
}

func memLocator(files fstest.MapFS) *resource.Locator {
	return resource.New(files, resource.BackendEmbedded)
}

func pendingInfo(scripts ...string) *engine.Info {
	ms := make([]*engine.MigrationInfo, 0, len(scripts))
	for i, script := range scripts {
		ms = append(ms, &engine.MigrationInfo{
			Version:     engine.MustParseVersion(strconv.Itoa(i + 1)),
			Description: "migration",
			Script:      script,
			Type:        engine.TypeSQL,
			State:       engine.StatePending,
		})
	}

	return engine.NewInfo(ms...)
}
