package testutil

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// RequireTables asserts that the SQLite database at path has exactly the
// given user tables.
func RequireTables(t *testing.T, path string, tables ...string) {
	t.Helper()

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err, "Failed to open database: %s", path)
	defer func() { _ = db.Close() }()

	rows, err := db.QueryContext(t.Context(), `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	var got []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		got = append(got, name)
	}
	require.NoError(t, rows.Err())

	require.ElementsMatch(t, tables, got, "unexpected tables in %s", path)
}
