package engine

import (
	"context"
	"database/sql"
	"io/fs"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/pseudomuto/gatekeeper/pkg/consts"
)

const defaultInstalledBy = "gatekeeper"

type (
	// Settings holds the configuration of an Engine. Every field has a
	// default, see New.
	Settings struct {
		Locations              []string
		Encoding               string
		Schemas                []string
		Table                  string
		PlaceholderReplacement bool
		Placeholders           map[string]string
		PlaceholderPrefix      string
		PlaceholderSuffix      string
		SQLMigrationPrefix     string
		SQLMigrationSuffixes   []string
		SQLMigrationSeparator  string
		IgnoreFutureMigrations bool
		ValidateOnMigrate      bool
		CleanOnValidationError bool
		CleanDisabled          bool
		BaselineOnMigrate      bool
		OutOfOrder             bool
		BaselineVersion        string
		BaselineDescription    string
	}

	// Engine applies versioned migrations to a single database and records
	// them in a schema history table.
	//
	// An Engine is configured through its setters and opens its connection
	// lazily, on the first runtime call. Runtime calls are serialized.
	//
	// Example usage:
	//
	//	e := engine.New()
	//	e.SetDataSource(engine.DataSource{Driver: "sqlite", URL: "file:app.db"})
	//	e.SetResources(os.DirFS("."))
	//	e.SetLocations([]string{"db/migration/default"})
	//	defer e.Close()
	//
	//	applied, err := e.Migrate(ctx)
	//	if err != nil {
	//		log.Fatal(err)
	//	}
	//
	//	fmt.Printf("applied %d migrations\n", applied)
	Engine struct {
		settings Settings
		ds       DataSource
		fsys     fs.FS
		code     []*GoMigration

		mu      sync.Mutex
		db      *sql.DB
		dialect Dialect
	}
)

// New returns an Engine with default settings.
func New() *Engine {
	return &Engine{
		settings: Settings{
			Locations:              []string{consts.DefaultLocation},
			Encoding:               consts.DefaultEncoding,
			Table:                  consts.DefaultHistoryTable,
			PlaceholderReplacement: true,
			Placeholders:           map[string]string{},
			PlaceholderPrefix:      consts.DefaultPlaceholderPrefix,
			PlaceholderSuffix:      consts.DefaultPlaceholderSuffix,
			SQLMigrationPrefix:     consts.DefaultSQLMigrationPrefix,
			SQLMigrationSuffixes:   []string{consts.DefaultSQLMigrationSuffix},
			SQLMigrationSeparator:  consts.DefaultSQLMigrationSeparator,
			IgnoreFutureMigrations: true,
			ValidateOnMigrate:      true,
			BaselineVersion:        consts.DefaultBaselineVersion,
			BaselineDescription:    consts.DefaultBaselineDescription,
		},
	}
}

// Settings returns a copy of the current settings.
func (e *Engine) Settings() Settings {
	s := e.settings
	s.Locations = slices.Clone(s.Locations)
	s.Schemas = slices.Clone(s.Schemas)
	s.SQLMigrationSuffixes = slices.Clone(s.SQLMigrationSuffixes)
	s.Placeholders = maps.Clone(s.Placeholders)
	return s
}

// DataSource returns the configured data source.
func (e *Engine) DataSource() DataSource { return e.ds }

// SetDataSource sets the database to migrate.
func (e *Engine) SetDataSource(ds DataSource) { e.ds = ds }

// SetResources sets the filesystem SQL scripts are read from.
func (e *Engine) SetResources(fsys fs.FS) { e.fsys = fsys }

// SetCodeMigrations sets the Go migrations to apply along with the scripts.
func (e *Engine) SetCodeMigrations(ms []*GoMigration) { e.code = ms }

// SetLocations sets the locations scanned (recursively) for SQL scripts.
func (e *Engine) SetLocations(locations []string) { e.settings.Locations = locations }

// SetEncoding sets the IANA name of the scripts' encoding.
func (e *Engine) SetEncoding(encoding string) { e.settings.Encoding = encoding }

// SetSchemas sets the schemas managed by the engine. The first one holds the
// schema history table.
func (e *Engine) SetSchemas(schemas []string) { e.settings.Schemas = schemas }

// SetTable sets the name of the schema history table.
func (e *Engine) SetTable(table string) { e.settings.Table = table }

// SetPlaceholderReplacement toggles placeholder replacement.
func (e *Engine) SetPlaceholderReplacement(enabled bool) {
	e.settings.PlaceholderReplacement = enabled
}

// SetPlaceholders sets the placeholder values.
func (e *Engine) SetPlaceholders(placeholders map[string]string) {
	e.settings.Placeholders = placeholders
}

// SetPlaceholderPrefix sets the string that opens a placeholder.
func (e *Engine) SetPlaceholderPrefix(prefix string) { e.settings.PlaceholderPrefix = prefix }

// SetPlaceholderSuffix sets the string that closes a placeholder.
func (e *Engine) SetPlaceholderSuffix(suffix string) { e.settings.PlaceholderSuffix = suffix }

// SetSQLMigrationPrefix sets the file name prefix of SQL migrations.
func (e *Engine) SetSQLMigrationPrefix(prefix string) { e.settings.SQLMigrationPrefix = prefix }

// SetSQLMigrationSuffixes sets the file name suffixes of SQL migrations.
func (e *Engine) SetSQLMigrationSuffixes(suffixes []string) {
	e.settings.SQLMigrationSuffixes = suffixes
}

// SetSQLMigrationSeparator sets the string separating version and description.
func (e *Engine) SetSQLMigrationSeparator(sep string) { e.settings.SQLMigrationSeparator = sep }

// SetIgnoreFutureMigrations sets whether applied migrations newer than every
// resolved one pass validation.
func (e *Engine) SetIgnoreFutureMigrations(ignore bool) {
	e.settings.IgnoreFutureMigrations = ignore
}

// SetValidateOnMigrate sets whether Migrate validates before applying.
func (e *Engine) SetValidateOnMigrate(validate bool) { e.settings.ValidateOnMigrate = validate }

// SetCleanOnValidationError sets whether Migrate cleans the schemas when
// validation fails. Never use this in production.
func (e *Engine) SetCleanOnValidationError(clean bool) {
	e.settings.CleanOnValidationError = clean
}

// SetCleanDisabled disables Clean.
func (e *Engine) SetCleanDisabled(disabled bool) { e.settings.CleanDisabled = disabled }

// SetBaselineOnMigrate sets whether Migrate baselines a non-empty schema
// without history instead of failing.
func (e *Engine) SetBaselineOnMigrate(baseline bool) { e.settings.BaselineOnMigrate = baseline }

// SetOutOfOrder sets whether pending migrations older than the current
// version are applied.
func (e *Engine) SetOutOfOrder(outOfOrder bool) { e.settings.OutOfOrder = outOfOrder }

// SetBaselineVersion sets the version recorded by Baseline.
func (e *Engine) SetBaselineVersion(version string) { e.settings.BaselineVersion = version }

// SetBaselineDescription sets the description recorded by Baseline.
func (e *Engine) SetBaselineDescription(description string) {
	e.settings.BaselineDescription = description
}

// Info returns the state of every migration. It never modifies the database.
func (e *Engine) Info(ctx context.Context) (*Info, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.session(ctx)
	if err != nil {
		return nil, err
	}

	return s.info(ctx)
}

// Validate compares the resolved migrations with the schema history and
// returns a *ValidationError describing every difference.
func (e *Engine) Validate(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.session(ctx)
	if err != nil {
		return err
	}

	info, err := s.info(ctx)
	if err != nil {
		return err
	}

	if problems := e.validate(info); len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}

	return nil
}

// Migrate applies every pending migration in version order and returns how
// many were applied.
//
// The schemas and the schema history table are created when missing. A
// failure stops the run; migrations applied before it stay applied.
func (e *Engine) Migrate(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.session(ctx)
	if err != nil {
		return 0, err
	}

	if err := s.prepare(ctx, e.settings.BaselineOnMigrate); err != nil {
		return 0, err
	}

	info, err := s.info(ctx)
	if err != nil {
		return 0, err
	}

	if e.settings.ValidateOnMigrate {
		if problems := e.validate(info); len(problems) > 0 {
			if !e.settings.CleanOnValidationError || e.settings.CleanDisabled {
				return 0, &ValidationError{Problems: problems}
			}

			slog.Warn("Validation failed, cleaning schemas", "problems", problems)
			if err := s.clean(ctx); err != nil {
				return 0, err
			}
			if err := s.prepare(ctx, false); err != nil {
				return 0, err
			}
			if info, err = s.info(ctx); err != nil {
				return 0, err
			}
		}
	}

	if failed := info.failed(); len(failed) > 0 {
		return 0, &ValidationError{Problems: failedProblems(failed)}
	}

	rank := 0
	for _, m := range info.Applied() {
		rank = max(rank, m.InstalledRank)
	}

	applied := 0
	for _, m := range info.Pending() {
		rank++
		if err := s.apply(ctx, m.resolved, rank); err != nil {
			return applied, err
		}
		applied++
	}

	if applied == 0 {
		slog.Debug("Schema is up to date", "schema", s.history.schema)
	}

	return applied, nil
}

// Baseline marks an existing schema as being at the baseline version so that
// only newer migrations are applied to it.
func (e *Engine) Baseline(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.session(ctx)
	if err != nil {
		return err
	}

	if err := s.createSchemas(ctx); err != nil {
		return err
	}

	exists, err := s.history.exists(ctx, s.db)
	if err != nil {
		return err
	}

	if exists {
		applied, err := s.history.load(ctx, s.db)
		if err != nil {
			return err
		}

		for _, a := range applied {
			if a.Type == TypeBaseline {
				return errors.Errorf("schema history already contains a baseline at version %s", a.Version)
			}
		}
		if len(applied) > 0 {
			return errors.New("unable to baseline: schema history already contains applied migrations")
		}
	} else if err := s.history.create(ctx, s.db); err != nil {
		return err
	}

	return s.baseline(ctx)
}

// Clean drops every object in the managed schemas, including the schema
// history table. It fails with ErrCleanDisabled when cleaning is disabled.
func (e *Engine) Clean(ctx context.Context) error {
	if e.settings.CleanDisabled {
		return ErrCleanDisabled
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.session(ctx)
	if err != nil {
		return err
	}

	return s.clean(ctx)
}

// Repair removes the failed migrations from the schema history and realigns
// the checksums of applied migrations with the resolved scripts.
func (e *Engine) Repair(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.session(ctx)
	if err != nil {
		return err
	}

	exists, err := s.history.exists(ctx, s.db)
	if err != nil || !exists {
		return err
	}

	if err := e.dialect.DeleteFailed(ctx, s.db, s.history.qualified()); err != nil {
		return err
	}

	info, err := s.info(ctx)
	if err != nil {
		return err
	}

	for _, m := range info.Applied() {
		if m.resolved == nil || m.Type != TypeSQL || m.Checksum == m.resolved.Checksum {
			continue
		}

		if err := e.dialect.UpdateChecksum(ctx, s.db, s.history.qualified(), m.InstalledRank, m.resolved.Checksum); err != nil {
			return err
		}
		slog.Info("Repaired checksum", "version", m.Version, "script", m.Script)
	}

	return nil
}

// Close releases the connection, if one was opened.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.db == nil {
		return nil
	}

	err := e.db.Close()
	e.db = nil
	return err
}

// session opens the database on first use and resolves the schema holding
// the history table. Callers hold e.mu.
func (e *Engine) session(ctx context.Context) (*session, error) {
	if e.db == nil {
		d, ok := DialectFor(e.ds.Driver)
		if !ok {
			return nil, errors.Errorf("unsupported driver %q", e.ds.Driver)
		}

		db, err := d.Open(e.ds)
		if err != nil {
			return nil, err
		}

		// one connection, never pooled
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(0)
		e.db, e.dialect = db, d
	}

	schemas := slices.Clone(e.settings.Schemas)
	if len(schemas) == 0 {
		schema, err := e.dialect.CurrentSchema(ctx, e.db)
		if err != nil {
			return nil, err
		}
		schemas = []string{schema}
	}

	return &session{
		engine:  e,
		db:      e.db,
		schemas: schemas,
		history: &history{dialect: e.dialect, schema: schemas[0], table: e.settings.Table},
	}, nil
}

// validate returns the problems found in info.
func (e *Engine) validate(info *Info) []string {
	var problems []string
	for _, m := range info.All() {
		switch m.State {
		case StateFailed:
			problems = append(problems, failedProblems([]*MigrationInfo{m})...)
		case StateMissing:
			problems = append(problems, "detected applied migration not resolved locally: "+m.Version.String())
		case StateFuture:
			if !e.settings.IgnoreFutureMigrations {
				problems = append(problems, "detected applied migration not resolved locally: "+m.Version.String()+" (future)")
			}
		case StateIgnored:
			problems = append(problems, "detected resolved migration not applied to database: "+m.Version.String())
		case StateSuccess, StateOutOfOrder:
			if m.resolved == nil {
				continue
			}
			if m.Type != m.resolved.Type {
				problems = append(problems, "migration type mismatch for migration version "+m.Version.String())
				continue
			}
			if m.Checksum != m.resolved.Checksum {
				problems = append(problems, "migration checksum mismatch for migration version "+m.Version.String())
			}
		}
	}

	return problems
}

func failedProblems(failed []*MigrationInfo) []string {
	problems := make([]string, 0, len(failed))
	for _, m := range failed {
		problems = append(problems, "detected failed migration to version "+m.Version.String()+" ("+m.Description+"); run repair")
	}

	return problems
}

// installedBy is the user recorded in the schema history.
func (e *Engine) installedBy() string {
	if e.ds.User != "" {
		return e.ds.User
	}

	return defaultInstalledBy
}

func since(start time.Time) time.Duration {
	return time.Since(start).Truncate(time.Millisecond)
}
