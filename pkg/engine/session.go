package engine

import (
	"context"
	"log/slog"
	"maps"
	"time"

	"github.com/pkg/errors"
)

// session is a single runtime operation of an Engine against an open
// database.
type session struct {
	engine  *Engine
	db      Queryer
	schemas []string
	history *history
}

func (s *session) createSchemas(ctx context.Context) error {
	for _, schema := range s.schemas {
		if err := s.engine.dialect.CreateSchema(ctx, s.db, schema); err != nil {
			return err
		}
	}

	return nil
}

// prepare creates the schemas and the history table. A non-empty schema
// without history is only accepted when baselineOnMigrate is set, in which
// case it is baselined.
func (s *session) prepare(ctx context.Context, baselineOnMigrate bool) error {
	if err := s.createSchemas(ctx); err != nil {
		return err
	}

	exists, err := s.history.exists(ctx, s.db)
	if err != nil || exists {
		return err
	}

	tables, err := s.engine.dialect.Tables(ctx, s.db, s.history.schema)
	if err != nil {
		return err
	}

	if len(tables) > 0 && !baselineOnMigrate {
		return errors.Errorf(
			"found non-empty schema %s without schema history table; use baseline or enable baseline_on_migrate",
			s.history.schema,
		)
	}

	if err := s.history.create(ctx, s.db); err != nil {
		return err
	}

	slog.Info("Created schema history table", "table", s.history.qualified())

	if len(tables) > 0 {
		return s.baseline(ctx)
	}

	return nil
}

// info resolves the migrations and merges them with the schema history, if
// there is one.
func (s *session) info(ctx context.Context) (*Info, error) {
	resolved, err := s.engine.resolve()
	if err != nil {
		return nil, err
	}

	exists, err := s.history.exists(ctx, s.db)
	if err != nil {
		return nil, err
	}

	var applied []*appliedMigration
	if exists {
		if applied, err = s.history.load(ctx, s.db); err != nil {
			return nil, err
		}
	}

	return buildInfo(resolved, applied, s.engine.settings.OutOfOrder), nil
}

// baseline records the baseline marker as the first history row.
func (s *session) baseline(ctx context.Context) error {
	settings := s.engine.settings

	version, err := ParseVersion(settings.BaselineVersion)
	if err != nil {
		return errors.Wrap(err, "invalid baseline version")
	}

	if err := s.history.insert(ctx, s.db, &appliedMigration{
		Rank:        1,
		Version:     version,
		Description: settings.BaselineDescription,
		Type:        TypeBaseline,
		Script:      settings.BaselineDescription,
		InstalledBy: s.engine.installedBy(),
		InstalledOn: time.Now(),
		Success:     true,
	}); err != nil {
		return err
	}

	slog.Info("Baselined schema", "schema", s.history.schema, "version", version)
	return nil
}

// clean drops every object in every managed schema.
func (s *session) clean(ctx context.Context) error {
	db := s.engine.db
	conn, err := db.Conn(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to acquire connection")
	}
	defer func() { _ = conn.Close() }()

	for _, schema := range s.schemas {
		if err := s.engine.dialect.Clean(ctx, conn, schema); err != nil {
			return err
		}
		slog.Info("Cleaned schema", "schema", schema)
	}

	return nil
}

// apply runs a single migration and records it. On databases with
// transactional migrations the script and its history row commit together
// and a failure leaves no trace; elsewhere the failure is recorded.
func (s *session) apply(ctx context.Context, m *resolvedMigration, rank int) error {
	run, err := s.runner(m)
	if err != nil {
		return &MigrationError{Version: m.Version.String(), Script: m.Script, Err: err}
	}

	row := &appliedMigration{
		Rank:        rank,
		Version:     m.Version,
		Description: m.Description,
		Type:        m.Type,
		Script:      m.Script,
		Checksum:    m.Checksum,
		InstalledBy: s.engine.installedBy(),
		InstalledOn: time.Now(),
	}

	slog.Info("Applying migration", "version", m.Version, "script", m.Script)
	start := time.Now()

	if s.engine.dialect.Transactional() {
		tx, err := s.engine.db.BeginTx(ctx, nil)
		if err != nil {
			return errors.Wrap(err, "failed to begin transaction")
		}

		if err := run(ctx, tx); err != nil {
			_ = tx.Rollback()
			return &MigrationError{Version: m.Version.String(), Script: m.Script, Err: err}
		}

		row.ExecutionTime = since(start)
		row.Success = true
		if err := s.history.insert(ctx, tx, row); err != nil {
			_ = tx.Rollback()
			return err
		}

		if err := tx.Commit(); err != nil {
			return &MigrationError{Version: m.Version.String(), Script: m.Script, Err: errors.Wrap(err, "failed to commit")}
		}

		slog.Info("Migration applied", "version", m.Version, "duration", row.ExecutionTime)
		return nil
	}

	runErr := run(ctx, s.db)
	row.ExecutionTime = since(start)
	row.Success = runErr == nil
	if err := s.history.insert(ctx, s.db, row); err != nil {
		return err
	}

	if runErr != nil {
		return &MigrationError{Version: m.Version.String(), Script: m.Script, Err: runErr}
	}

	slog.Info("Migration applied", "version", m.Version, "duration", row.ExecutionTime)
	return nil
}

// runner returns the function that applies a migration.
func (s *session) runner(m *resolvedMigration) (func(context.Context, Queryer) error, error) {
	if m.code != nil {
		return m.code.Up, nil
	}

	script := m.Content
	settings := s.engine.settings
	if settings.PlaceholderReplacement {
		values := maps.Clone(settings.Placeholders)
		if values == nil {
			values = map[string]string{}
		}
		values["gatekeeper:defaultSchema"] = s.history.schema
		values["gatekeeper:user"] = s.engine.installedBy()
		values["gatekeeper:table"] = settings.Table

		var err error
		if script, err = replacePlaceholders(script, settings.PlaceholderPrefix, settings.PlaceholderSuffix, values); err != nil {
			return nil, err
		}
	}

	stmts, err := SplitStatements(script)
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, q Queryer) error {
		for i, stmt := range stmts {
			if _, err := q.ExecContext(ctx, stmt); err != nil {
				return errors.Wrapf(err, "failed to execute statement %d: %s", i+1, stmt)
			}
		}

		return nil
	}, nil
}
