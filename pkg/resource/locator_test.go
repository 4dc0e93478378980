package resource_test

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/pseudomuto/gatekeeper/pkg/consts"
	"github.com/pseudomuto/gatekeeper/pkg/resource"
	"github.com/stretchr/testify/require"
)

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"db/migration/default/V1__init.sql":    {Data: []byte("CREATE TABLE users (id INT);\n")},
		"db/migration/default/ddl/V2__idx.sql": {Data: []byte("CREATE INDEX idx ON users (id);\n")},
	}
}

func TestLocator_Exists(t *testing.T) {
	loc := resource.NewEmbedded(testFS())

	tests := []struct {
		location string
		exists   bool
	}{
		{"db/migration/default", true},
		{"/db/migration/default/", true},
		{"db/migration/default/ddl", true},
		{"db/migration/default/V1__init.sql", true},
		{"db/migration/secondary", false},
		{"db/migration/default/../secondary", false},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.location, func(t *testing.T) {
			require.Equal(t, tt.exists, loc.Exists(tt.location))
		})
	}
}

func TestLocator_OpenScript(t *testing.T) {
	loc := resource.NewEmbedded(testFS())

	t.Run("found", func(t *testing.T) {
		rc, ok, err := loc.OpenScript("db/migration/default/V1__init.sql")
		require.NoError(t, err)
		require.True(t, ok)
		defer rc.Close()

		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.Equal(t, "CREATE TABLE users (id INT);\n", string(data))
	})

	t.Run("not found", func(t *testing.T) {
		rc, ok, err := loc.OpenScript("db/migration/default/V9__nope.sql")
		require.NoError(t, err)
		require.False(t, ok)
		require.Nil(t, rc)
	})

	t.Run("directory", func(t *testing.T) {
		_, ok, err := loc.OpenScript("db/migration/default/ddl")
		require.Error(t, err)
		require.False(t, ok)
		require.Contains(t, err.Error(), "found a directory")
	})

	t.Run("read", func(t *testing.T) {
		content, ok, err := loc.ReadScript("db/migration/default/ddl/V2__idx.sql")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "CREATE INDEX idx ON users (id);\n", content)
	})
}

func TestLocator_NewDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "db", "migration", "default"), consts.ModeDir))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "db", "migration", "default", "V1__init.sql"),
		[]byte("SELECT 1;"),
		consts.ModeFile,
	))

	loc := resource.NewDir(dir)
	require.Equal(t, resource.BackendFilesystem, loc.Backend())
	require.Equal(t, dir, loc.Root())
	require.True(t, loc.Exists("db/migration/default"))
	require.False(t, loc.Exists("db/migration/secondary"))

	content, ok, err := loc.ReadScript("db/migration/default/V1__init.sql")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "SELECT 1;", content)
}

func TestLocator_CodeExists(t *testing.T) {
	loc := resource.NewEmbedded(testFS())
	require.False(t, loc.CodeExists("V3__seed"))

	loc = resource.NewEmbedded(testFS(), resource.WithCodeProbe(func(name string) bool {
		return name == "V3__seed"
	}))
	require.True(t, loc.CodeExists("V3__seed"))
	require.False(t, loc.CodeExists("V4__other"))
}

func TestLocator_FindFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "internal", "migrations"), consts.ModeDir))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), consts.ModeDir))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "V3__seed.go"), []byte("hidden"), consts.ModeFile))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "internal", "migrations", "V3__seed.go"), []byte("package migrations"), consts.ModeFile))

	loc := resource.NewDir(dir)

	path, ok := loc.FindFile(func(name string) bool { return strings.HasPrefix(name, "V3__") })
	require.True(t, ok)
	require.Equal(t, filepath.Join(dir, "internal", "migrations", "V3__seed.go"), path)

	_, ok = loc.FindFile(func(name string) bool { return name == "missing.go" })
	require.False(t, ok)
}

func TestClean(t *testing.T) {
	require.Equal(t, "db/migration", resource.Clean("/db/migration/"))
	require.Equal(t, "db/migration", resource.Clean("db//migration"))
	require.Equal(t, "secondary", resource.Clean("../secondary"))
	require.Equal(t, ".", resource.Clean(""))
	require.Equal(t, "db/migration/default/ddl", resource.Join("db/migration", "default", "ddl"))
}
