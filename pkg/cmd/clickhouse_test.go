package cmd

import (
	"testing"

	"github.com/pseudomuto/gatekeeper/pkg/cmd/testutil"
	"github.com/stretchr/testify/require"
)

func TestMigrateCommand_ClickHouse(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	dsn := testutil.StartClickHouseContainer(t)

	fixture := testutil.TestProject(t).
		WithConfig(`databases:
  reporting:
    driver: clickhouse
    url: "` + dsn + `"
`).
		WithMigrations("reporting", map[string]string{
			"V1__events.sql": `
CREATE TABLE ${gatekeeper:defaultSchema}.events (
    id UInt64,
    name String
)
ENGINE = MergeTree()
ORDER BY id;
`,
			"V2__sessions.sql": `
CREATE TABLE ${gatekeeper:defaultSchema}.sessions (
    id UUID,
    started_at DateTime
)
ENGINE = MergeTree()
ORDER BY started_at;
`,
		})
	p := testParams(t, fixture)

	out, err := testutil.RunCommand(t, check(p), nil)
	require.Error(t, err)
	require.Contains(t, out, "--- V1__events.sql ---")

	out, err = testutil.RunCommand(t, migrate(p), nil)
	require.NoError(t, err)
	require.Contains(t, out, "reporting: applied 2 migration(s)")

	out, err = testutil.RunCommand(t, info(p), nil)
	require.NoError(t, err)
	require.Contains(t, out, "Current version: 2")

	out, err = testutil.RunCommand(t, check(p), nil)
	require.NoError(t, err)
	require.Equal(t, "reporting: up to date\n", out)
}
