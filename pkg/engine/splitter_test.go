package engine_test

import (
	"testing"

	"github.com/pseudomuto/gatekeeper/pkg/engine"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name     string
		script   string
		expected []string
	}{
		{
			name:     "single statement without semicolon",
			script:   "CREATE TABLE users (id INT)",
			expected: []string{"CREATE TABLE users (id INT)"},
		},
		{
			name:     "multiple statements",
			script:   "CREATE TABLE a (id INT);\nCREATE TABLE b (id INT);\n",
			expected: []string{"CREATE TABLE a (id INT)", "CREATE TABLE b (id INT)"},
		},
		{
			name:     "semicolon in string",
			script:   "INSERT INTO t VALUES ('a;b');INSERT INTO t VALUES ('it''s')",
			expected: []string{"INSERT INTO t VALUES ('a;b')", "INSERT INTO t VALUES ('it''s')"},
		},
		{
			name:     "semicolon in comments",
			script:   "-- drop; everything\nSELECT 1; /* a; b */ SELECT 2;",
			expected: []string{"-- drop; everything\nSELECT 1", "/* a; b */ SELECT 2"},
		},
		{
			name:     "comment only statements are dropped",
			script:   "SELECT 1;\n-- trailing comment\n",
			expected: []string{"SELECT 1"},
		},
		{
			name:     "quoted identifiers",
			script:   "CREATE TABLE \"a;b\" (id INT); CREATE TABLE `c;d` (id INT)",
			expected: []string{"CREATE TABLE \"a;b\" (id INT)", "CREATE TABLE `c;d` (id INT)"},
		},
		{
			name: "dollar quoted body",
			script: `CREATE FUNCTION f() RETURNS int AS $$ BEGIN RETURN 1; END; $$ LANGUAGE plpgsql;
CREATE FUNCTION g() RETURNS int AS $body$ SELECT 1; $body$ LANGUAGE sql;`,
			expected: []string{
				"CREATE FUNCTION f() RETURNS int AS $$ BEGIN RETURN 1; END; $$ LANGUAGE plpgsql",
				"CREATE FUNCTION g() RETURNS int AS $body$ SELECT 1; $body$ LANGUAGE sql",
			},
		},
		{
			name:     "operators and bind parameters",
			script:   "SELECT 4 - 2 / 1 FROM t WHERE id = $1;",
			expected: []string{"SELECT 4 - 2 / 1 FROM t WHERE id = $1"},
		},
		{
			name:     "empty script",
			script:   "  \n",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmts, err := engine.SplitStatements(tt.script)
			require.NoError(t, err)
			require.Equal(t, tt.expected, stmts)
		})
	}
}

func TestSplitStatements_UnterminatedString(t *testing.T) {
	_, err := engine.SplitStatements("INSERT INTO t VALUES ('oops);")
	require.Error(t, err)
}
