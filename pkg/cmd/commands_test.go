package cmd

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/pseudomuto/gatekeeper/pkg/cmd/testutil"
	"github.com/pseudomuto/gatekeeper/pkg/config"
	"github.com/pseudomuto/gatekeeper/pkg/consts"
	"github.com/pseudomuto/gatekeeper/pkg/orchestrator"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

var testScripts = map[string]string{
	"V1__users.sql":  "CREATE TABLE users (id INTEGER PRIMARY KEY, email TEXT NOT NULL);\n",
	"V2__orders.sql": "CREATE TABLE orders (id INTEGER PRIMARY KEY, user_id INTEGER);\n",
}

func testParams(t *testing.T, fixture *testutil.ProjectFixture) engineParams {
	t.Helper()

	return engineParams{
		Builder: orchestrator.NewBuilder(orchestrator.BuilderParams{Metrics: orchestrator.NewMetrics()}),
		Loader:  fixture.Loader(),
	}
}

func TestMigrateCommand(t *testing.T) {
	fixture := testutil.TestProject(t).WithMigrations("default", testScripts)
	p := testParams(t, fixture)

	out, err := testutil.RunCommand(t, migrate(p), nil)
	require.NoError(t, err)
	require.Contains(t, out, "default: applied 2 migration(s)")
	testutil.RequireTables(t, fixture.DatabasePath("default.db"), "users", "orders", consts.DefaultHistoryTable)

	out, err = testutil.RunCommand(t, migrate(p), nil)
	require.NoError(t, err)
	require.Contains(t, out, "default: applied 0 migration(s)")
}

func TestMigrateCommand_Databases(t *testing.T) {
	fixture := testutil.TestProject(t).
		WithConfig(`databases:
  default: {driver: sqlite, url: "file:default.db"}
  audit: {driver: sqlite, url: "file:audit.db"}
  empty: {driver: sqlite, url: "file:empty.db"}
`).
		WithMigrations("default", testScripts).
		WithMigrations("audit", map[string]string{"V1__log.sql": "CREATE TABLE log (msg TEXT);"})
	p := testParams(t, fixture)

	t.Run("selected database only", func(t *testing.T) {
		out, err := testutil.RunCommand(t, migrate(p), []string{"--database", "audit"})
		require.NoError(t, err)
		require.Equal(t, "audit: applied 1 migration(s)\n", out)
		testutil.RequireTables(t, fixture.DatabasePath("audit.db"), "log", consts.DefaultHistoryTable)
	})

	t.Run("unknown database", func(t *testing.T) {
		_, err := testutil.RunCommand(t, migrate(p), []string{"--database", "nope"})
		require.EqualError(t, err, "unknown database: nope")
	})

	t.Run("databases without scripts are reported", func(t *testing.T) {
		out, err := testutil.RunCommand(t, migrate(p), nil)
		require.NoError(t, err)
		require.Contains(t, out, "default: applied 2 migration(s)")
		require.Contains(t, out, "audit: applied 0 migration(s)")
		require.Contains(t, out, "empty: no migration scripts found")
	})
}

func TestCheckCommand(t *testing.T) {
	fixture := testutil.TestProject(t).WithMigrations("default", testScripts)
	p := testParams(t, fixture)

	out, err := testutil.RunCommand(t, check(p), nil)
	require.EqualError(t, err, "1 database(s) have pending migrations")
	require.Contains(t, out, "default: pending migrations")
	require.Contains(t, out, "  --- V1__users.sql ---\n  CREATE TABLE users")
	require.Contains(t, out, "  --- V2__orders.sql ---\n  CREATE TABLE orders")

	_, err = testutil.RunCommand(t, migrate(p), nil)
	require.NoError(t, err)

	out, err = testutil.RunCommand(t, check(p), nil)
	require.NoError(t, err)
	require.Equal(t, "default: up to date\n", out)
}

func TestStartCommand(t *testing.T) {
	t.Run("fails on pending migrations", func(t *testing.T) {
		fixture := testutil.TestProject(t).WithMigrations("default", testScripts)

		out, err := testutil.RunCommand(t, start(testParams(t, fixture)), nil)
		require.EqualError(t, err, "database default has pending migrations")
		require.Contains(t, out, "--- V1__users.sql ---")
	})

	t.Run("migrates automatically", func(t *testing.T) {
		fixture := testutil.TestProject(t).
			WithConfig(`databases:
  default:
    driver: sqlite
    url: file:default.db
    migration: {auto: true}
`).
			WithMigrations("default", testScripts)

		out, err := testutil.RunCommand(t, start(testParams(t, fixture)), nil)
		require.NoError(t, err)
		require.Equal(t, "All databases are up to date\n", out)
		testutil.RequireTables(t, fixture.DatabasePath("default.db"), "users", "orders", consts.DefaultHistoryTable)
	})

	t.Run("disabled", func(t *testing.T) {
		fixture := testutil.TestProject(t).
			WithConfig("enabled: false\n" + testutil.DefaultConfig).
			WithMigrations("default", testScripts)

		out, err := testutil.RunCommand(t, start(testParams(t, fixture)), nil)
		require.NoError(t, err)
		require.Empty(t, out)
		require.NoFileExists(t, fixture.DatabasePath("default.db"))
	})

	t.Run("missing configuration", func(t *testing.T) {
		t.Chdir(t.TempDir())

		p := engineParams{
			Builder: orchestrator.NewBuilder(orchestrator.BuilderParams{Metrics: orchestrator.NewMetrics()}),
			Loader:  config.NewLoader(),
		}

		_, err := testutil.RunCommand(t, start(p), nil)
		require.EqualError(t, err, "gatekeeper.yaml not found")
	})
}

func TestInfoCommand(t *testing.T) {
	fixture := testutil.TestProject(t).WithMigrations("default", testScripts)
	p := testParams(t, fixture)

	_, err := testutil.RunCommand(t, migrate(p), nil)
	require.NoError(t, err)

	fixture.WithMigrations("default", map[string]string{"V3__index.sql": "CREATE INDEX users_email ON users (email);"})

	out, err := testutil.RunCommand(t, info(p), nil)
	require.NoError(t, err)
	require.Contains(t, out, "Database: default")
	require.Contains(t, out, "Current version: 2")
	require.Contains(t, out, "Pending: 1")
	require.Contains(t, out, "users")
	require.Contains(t, out, "success")
	require.Contains(t, out, "pending")
}

func TestEngineCommands(t *testing.T) {
	t.Run("validate", func(t *testing.T) {
		fixture := testutil.TestProject(t).WithMigrations("default", testScripts)
		p := testParams(t, fixture)

		_, err := testutil.RunCommand(t, migrate(p), nil)
		require.NoError(t, err)

		out, err := testutil.RunCommand(t, validate(p), nil)
		require.NoError(t, err)
		require.Equal(t, "default: validated\n", out)

		fixture.WithMigrations("default", map[string]string{"V1__users.sql": "CREATE TABLE users (id INTEGER);\n"})

		_, err = testutil.RunCommand(t, validate(p), nil)
		require.ErrorContains(t, err, "migration checksum mismatch for migration version 1")

		out, err = testutil.RunCommand(t, repair(p), nil)
		require.NoError(t, err)
		require.Equal(t, "default: repaired\n", out)

		_, err = testutil.RunCommand(t, validate(p), nil)
		require.NoError(t, err)
	})

	t.Run("clean", func(t *testing.T) {
		fixture := testutil.TestProject(t).WithMigrations("default", testScripts)
		p := testParams(t, fixture)

		_, err := testutil.RunCommand(t, migrate(p), nil)
		require.NoError(t, err)

		out, err := testutil.RunCommand(t, clean(p), nil)
		require.NoError(t, err)
		require.Equal(t, "default: cleaned\n", out)
		testutil.RequireTables(t, fixture.DatabasePath("default.db"))
	})

	t.Run("clean disabled", func(t *testing.T) {
		fixture := testutil.TestProject(t).
			WithConfig(testutil.DefaultConfig + "    migration: {clean_disabled: true}\n").
			WithMigrations("default", testScripts)

		_, err := testutil.RunCommand(t, clean(testParams(t, fixture)), nil)
		require.Error(t, err)
	})

	t.Run("baseline", func(t *testing.T) {
		fixture := testutil.TestProject(t).WithMigrations("default", testScripts)
		p := testParams(t, fixture)

		out, err := testutil.RunCommand(t, baseline(p), nil)
		require.NoError(t, err)
		require.Equal(t, "default: baselined\n", out)

		out, err = testutil.RunCommand(t, migrate(p), nil)
		require.NoError(t, err)
		require.Contains(t, out, "default: applied 1 migration(s)")
		testutil.RequireTables(t, fixture.DatabasePath("default.db"), "orders", consts.DefaultHistoryTable)
	})
}

func TestApp(t *testing.T) {
	t.Run("mode override", func(t *testing.T) {
		fixture := testutil.TestProject(t).WithMigrations("default", testScripts)
		app, out := testApp(t, config.NewLoader())

		err := app.Run(context.Background(), []string{"gatekeeper", "--config", fixture.ConfigPath(), "--mode", "test", "start"})
		require.NoError(t, err)
		require.Contains(t, out.String(), "All databases are up to date")
		testutil.RequireTables(t, fixture.DatabasePath("default.db"), "users", "orders", consts.DefaultHistoryTable)
	})

	t.Run("invalid mode", func(t *testing.T) {
		fixture := testutil.TestProject(t)
		app, _ := testApp(t, config.NewLoader())

		err := app.Run(context.Background(), []string{"gatekeeper", "--config", fixture.ConfigPath(), "--mode", "staging", "start"})
		require.ErrorContains(t, err, `invalid configuration: mode: unrecognized value "staging"`)
	})

	t.Run("invalid log level", func(t *testing.T) {
		app, _ := testApp(t, config.NewLoader())

		err := app.Run(context.Background(), []string{"gatekeeper", "--log-level", "loud", "start"})
		require.ErrorContains(t, err, "invalid log level: loud")
	})

	t.Run("invalid log format", func(t *testing.T) {
		app, _ := testApp(t, config.NewLoader())

		err := app.Run(context.Background(), []string{"gatekeeper", "--log-format", "xml", "start"})
		require.EqualError(t, err, "invalid log format: xml (expected text or json)")
	})
}

func testApp(t *testing.T, loader *config.Loader) (*cli.Command, *bytes.Buffer) {
	t.Helper()

	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var out bytes.Buffer
	app := newApp(loader, "v1.0.0", []*cli.Command{start(engineParams{
		Builder: orchestrator.NewBuilder(orchestrator.BuilderParams{Metrics: orchestrator.NewMetrics()}),
		Loader:  loader,
	})})
	app.Writer = &out
	app.ErrWriter = &out

	return app, &out
}
