package config_test

import (
	_ "embed"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	. "github.com/pseudomuto/gatekeeper/pkg/config"
	"github.com/pseudomuto/gatekeeper/pkg/consts"
	"github.com/stretchr/testify/require"
)

//go:embed testdata/gatekeeper.yaml
var testConfigYAML string

func TestLoad(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		t.Setenv("GATEKEEPER_TEST_PASSWORD", "s3cret")

		cfg, err := Load(strings.NewReader(testConfigYAML))
		require.NoError(t, err)
		validateTestConfig(t, cfg)
	})

	t.Run("empty input uses defaults", func(t *testing.T) {
		cfg, err := Load(strings.NewReader(""))
		require.NoError(t, err)
		require.True(t, cfg.IsEnabled())
		require.Equal(t, ModeProd, cfg.Mode)
		require.Equal(t, consts.DefaultRoot, cfg.Root)
		require.Equal(t, consts.DefaultLocation, cfg.Location)
		require.Equal(t, ResourcesFilesystem, cfg.Resources)
		require.Equal(t, consts.DefaultAdminPrefix, cfg.AdminPrefix)
		require.Empty(t, cfg.Names())
	})

	t.Run("unknown keys are ignored", func(t *testing.T) {
		cfg, err := Load(strings.NewReader("other_key: value"))
		require.NoError(t, err)
		require.NotNil(t, cfg)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		cfg, err := Load(strings.NewReader("invalid: yaml: ["))
		require.Nil(t, cfg)
		requireConfigError(t, err, "")
		require.Contains(t, err.Error(), "failed to unmarshal config")
	})
}

func TestLoad_Databases(t *testing.T) {
	t.Run("keeps document order", func(t *testing.T) {
		cfg, err := Load(strings.NewReader(`
databases:
  zeta: {driver: sqlite, url: "file:z.db"}
  alpha: {driver: sqlite, url: "file:a.db"}
  mid: {driver: sqlite, url: "file:m.db"}
`))
		require.NoError(t, err)
		require.Equal(t, []string{"zeta", "alpha", "mid"}, cfg.Names())
	})

	t.Run("missing migration section resolves with defaults", func(t *testing.T) {
		cfg, err := Load(strings.NewReader(`
databases:
  default:
    driver: mysql
    url: tcp(localhost:3306)/app
`))
		require.NoError(t, err)

		db, ok := cfg.Database("default")
		require.True(t, ok)
		require.Equal(t, "default", db.Name)
		require.False(t, db.Migration.Auto)
		require.False(t, db.Migration.ValidateOnStart)
		require.Nil(t, db.Migration.Locations)
		require.Nil(t, db.Migration.Encoding)
		require.Nil(t, db.Migration.Table)
		require.Nil(t, db.Migration.SQLMigrationSuffixes)
		require.Nil(t, db.Migration.SQLMigrationSuffix)
		require.Nil(t, db.Migration.OutOfOrder)
	})

	t.Run("unknown database", func(t *testing.T) {
		cfg, err := Load(strings.NewReader(""))
		require.NoError(t, err)

		_, ok := cfg.Database("nope")
		require.False(t, ok)
	})

	t.Run("expands environment variables", func(t *testing.T) {
		t.Setenv("DB_HOST", "db.internal")
		t.Setenv("DB_USER", "svc")

		cfg, err := Load(strings.NewReader(`
databases:
  default:
    driver: pgx
    url: postgres://${DB_HOST}/app
    user: $DB_USER
`))
		require.NoError(t, err)
		require.Equal(t, "postgres://db.internal/app", cfg.Databases[0].URL)
		require.Equal(t, "svc", cfg.Databases[0].User)
	})
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{
			name:  "unrecognized mode",
			yaml:  "mode: staging",
			field: "mode",
		},
		{
			name:  "unrecognized resources",
			yaml:  "resources: s3",
			field: "resources",
		},
		{
			name:  "databases is not a mapping",
			yaml:  "databases: [a, b]",
			field: "databases",
		},
		{
			name:  "empty database name",
			yaml:  "databases:\n  \"\": {driver: sqlite, url: x}",
			field: "databases",
		},
		{
			name:  "duplicate database",
			yaml:  "databases:\n  a: {driver: sqlite, url: x}\n  a: {driver: sqlite, url: y}",
			field: "databases.a",
		},
		{
			name:  "missing driver",
			yaml:  "databases:\n  a: {url: x}",
			field: "databases.a.driver",
		},
		{
			name:  "unrecognized driver",
			yaml:  "databases:\n  a: {driver: oracle, url: x}",
			field: "databases.a.driver",
		},
		{
			name:  "missing url",
			yaml:  "databases:\n  a: {driver: sqlite}",
			field: "databases.a.url",
		},
		{
			name:  "wrong type for flag",
			yaml:  "databases:\n  a:\n    driver: sqlite\n    url: x\n    migration:\n      auto: sometimes",
			field: "databases.a",
		},
		{
			name:  "wrong type for list",
			yaml:  "databases:\n  a:\n    driver: sqlite\n    url: x\n    migration:\n      schemas: {a: b}",
			field: "databases.a",
		},
		{
			name:  "wrong type for enabled",
			yaml:  "enabled: [yes]",
			field: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(strings.NewReader(tt.yaml))
			require.Nil(t, cfg)
			requireConfigError(t, err, tt.field)
		})
	}
}

func TestConfig_IsEnabled(t *testing.T) {
	cfg, err := Load(strings.NewReader("enabled: false"))
	require.NoError(t, err)
	require.False(t, cfg.IsEnabled())

	cfg, err = Load(strings.NewReader("enabled: true"))
	require.NoError(t, err)
	require.True(t, cfg.IsEnabled())
}

func TestConfig_IsTest(t *testing.T) {
	cfg, err := Load(strings.NewReader("mode: test"))
	require.NoError(t, err)
	require.True(t, cfg.IsTest())

	cfg, err = Load(strings.NewReader("mode: dev"))
	require.NoError(t, err)
	require.False(t, cfg.IsTest())
}

func TestLoadFile(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		t.Setenv("GATEKEEPER_TEST_PASSWORD", "s3cret")

		path := filepath.Join(t.TempDir(), "gatekeeper.yaml")
		require.NoError(t, os.WriteFile(path, []byte(testConfigYAML), consts.ModeFile))

		cfg, err := LoadFile(path)
		require.NoError(t, err)
		validateTestConfig(t, cfg)
	})

	t.Run("error", func(t *testing.T) {
		cfg, err := LoadFile("nonexistent.yaml")
		require.Error(t, err)
		require.Nil(t, cfg)
		require.Contains(t, err.Error(), "failed to open file")
	})
}

func TestLoader(t *testing.T) {
	t.Run("missing file yields nil config", func(t *testing.T) {
		l := NewLoader()
		require.NoError(t, l.Load(filepath.Join(t.TempDir(), "missing.yaml")))
		require.Nil(t, l.Config())
	})

	t.Run("loads file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "gatekeeper.yaml")
		require.NoError(t, os.WriteFile(path, []byte("mode: test"), consts.ModeFile))

		l := NewLoader()
		require.NoError(t, l.Load(path))
		require.NotNil(t, l.Config())
		require.True(t, l.Config().IsTest())
	})

	t.Run("invalid file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "gatekeeper.yaml")
		require.NoError(t, os.WriteFile(path, []byte("mode: nope"), consts.ModeFile))

		l := NewLoader()
		err := l.Load(path)
		requireConfigError(t, err, "mode")
	})
}

func requireConfigError(t *testing.T, err error, field string) {
	t.Helper()

	require.Error(t, err)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr), "expected ConfigError, got %T: %v", err, err)
	require.Equal(t, field, cfgErr.Field)
}

// validateTestConfig validates that a config contains the expected test data
func validateTestConfig(t *testing.T, cfg *Config) {
	t.Helper()
	require.NotNil(t, cfg)
	require.True(t, cfg.IsEnabled())
	require.Equal(t, ModeDev, cfg.Mode)
	require.Equal(t, "app", cfg.Root)
	require.Equal(t, "db/migration", cfg.Location)
	require.Equal(t, "/@migrations", cfg.AdminPrefix)
	require.Equal(t, []string{"default", "reporting", "cache"}, cfg.Names())

	db, ok := cfg.Database("default")
	require.True(t, ok)
	require.Equal(t, "postgres", db.Driver)
	require.Equal(t, "postgres://localhost:5432/app?sslmode=disable", db.URL)
	require.Equal(t, "app", db.User)
	require.Equal(t, "s3cret", db.Password)

	m := db.Migration
	require.Equal(t, []string{"ddl", "seed"}, m.Locations)
	require.Equal(t, "ISO-8859-1", *m.Encoding)
	require.Equal(t, []string{"public", "audit"}, m.Schemas)
	require.Equal(t, "history", *m.Table)
	require.True(t, *m.PlaceholderReplacement)
	require.Equal(t, map[string]string{"owner": "app"}, m.Placeholders)
	require.Equal(t, "#[", *m.PlaceholderPrefix)
	require.Equal(t, "]", *m.PlaceholderSuffix)
	require.Equal(t, "M", *m.SQLMigrationPrefix)
	require.Equal(t, ".sql.bak", *m.SQLMigrationSuffix)
	require.Equal(t, []string{".sql", ".ddl"}, m.SQLMigrationSuffixes)
	require.Equal(t, "--", *m.SQLMigrationSeparator)
	require.False(t, *m.IgnoreFutureMigrations)
	require.True(t, *m.ValidateOnMigrate)
	require.False(t, *m.CleanOnValidationError)
	require.True(t, *m.CleanDisabled)
	require.True(t, *m.BaselineOnMigrate)
	require.False(t, *m.OutOfOrder)
	require.True(t, m.Auto)
	require.True(t, m.ValidateOnStart)

	reporting, ok := cfg.Database("reporting")
	require.True(t, ok)
	require.Equal(t, "clickhouse", reporting.Driver)
	require.False(t, reporting.Migration.Auto)
}
