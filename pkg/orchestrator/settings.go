package orchestrator

import (
	"log/slog"

	"github.com/pseudomuto/gatekeeper/pkg/config"
)

// setting copies one optional migration setting onto an engine. Settings that
// are not present leave the engine default in place.
type setting struct {
	name    string
	present func(m *config.Migration) bool
	apply   func(e Engine, m *config.Migration)
}

var settings = []setting{
	value("encoding", func(m *config.Migration) *string { return m.Encoding }, Engine.SetEncoding),
	list("schemas", func(m *config.Migration) []string { return m.Schemas }, Engine.SetSchemas),
	value("table", func(m *config.Migration) *string { return m.Table }, Engine.SetTable),
	value("placeholder_replacement", func(m *config.Migration) *bool { return m.PlaceholderReplacement }, Engine.SetPlaceholderReplacement),
	{
		name:    "placeholders",
		present: func(m *config.Migration) bool { return m.Placeholders != nil },
		apply:   func(e Engine, m *config.Migration) { e.SetPlaceholders(m.Placeholders) },
	},
	value("placeholder_prefix", func(m *config.Migration) *string { return m.PlaceholderPrefix }, Engine.SetPlaceholderPrefix),
	value("placeholder_suffix", func(m *config.Migration) *string { return m.PlaceholderSuffix }, Engine.SetPlaceholderSuffix),
	value("sql_migration_prefix", func(m *config.Migration) *string { return m.SQLMigrationPrefix }, Engine.SetSQLMigrationPrefix),
	{
		name:    "sql_migration_suffixes",
		present: func(m *config.Migration) bool { return m.SQLMigrationSuffixes != nil || m.SQLMigrationSuffix != nil },
		apply:   func(e Engine, m *config.Migration) { e.SetSQLMigrationSuffixes(suffixes(m)) },
	},
	value("sql_migration_separator", func(m *config.Migration) *string { return m.SQLMigrationSeparator }, Engine.SetSQLMigrationSeparator),
	value("ignore_future_migrations", func(m *config.Migration) *bool { return m.IgnoreFutureMigrations }, Engine.SetIgnoreFutureMigrations),
	value("validate_on_migrate", func(m *config.Migration) *bool { return m.ValidateOnMigrate }, Engine.SetValidateOnMigrate),
	value("clean_on_validation_error", func(m *config.Migration) *bool { return m.CleanOnValidationError }, Engine.SetCleanOnValidationError),
	value("clean_disabled", func(m *config.Migration) *bool { return m.CleanDisabled }, Engine.SetCleanDisabled),
	value("baseline_on_migrate", func(m *config.Migration) *bool { return m.BaselineOnMigrate }, Engine.SetBaselineOnMigrate),
	value("out_of_order", func(m *config.Migration) *bool { return m.OutOfOrder }, Engine.SetOutOfOrder),
}

// applySettings copies every present setting of db onto e, in order.
func applySettings(e Engine, db *config.Database) {
	m := &db.Migration
	if m.SQLMigrationSuffix != nil {
		slog.Warn(
			"sql_migration_suffix is deprecated, use sql_migration_suffixes instead",
			"database", db.Name,
			"suffix", *m.SQLMigrationSuffix,
		)
	}

	for _, s := range settings {
		if s.present(m) {
			slog.Debug("Applying setting", "database", db.Name, "setting", s.name)
			s.apply(e, m)
		}
	}
}

// suffixes merges the deprecated single suffix after the suffix list.
func suffixes(m *config.Migration) []string {
	merged := make([]string, 0, len(m.SQLMigrationSuffixes)+1)
	merged = append(merged, m.SQLMigrationSuffixes...)
	if m.SQLMigrationSuffix != nil {
		merged = append(merged, *m.SQLMigrationSuffix)
	}

	return merged
}

func value[T any](name string, get func(*config.Migration) *T, set func(Engine, T)) setting {
	return setting{
		name:    name,
		present: func(m *config.Migration) bool { return get(m) != nil },
		apply:   func(e Engine, m *config.Migration) { set(e, *get(m)) },
	}
}

func list(name string, get func(*config.Migration) []string, set func(Engine, []string)) setting {
	return setting{
		name:    name,
		present: func(m *config.Migration) bool { return get(m) != nil },
		apply:   func(e Engine, m *config.Migration) { set(e, get(m)) },
	}
}
