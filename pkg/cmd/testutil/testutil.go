package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pseudomuto/gatekeeper/pkg/config"
	"github.com/pseudomuto/gatekeeper/pkg/consts"
	"github.com/stretchr/testify/require"
)

// ProjectFixture is an isolated application directory with a gatekeeper.yaml
// and migration scripts.
type ProjectFixture struct {
	Dir string
	t   *testing.T
}

// DefaultConfig configures one SQLite database named default stored in the
// project directory.
const DefaultConfig = `databases:
  default:
    driver: sqlite
    url: file:default.db
`

// TestProject creates a temp directory holding DefaultConfig and changes the
// working directory to it for the duration of the test.
func TestProject(t *testing.T) *ProjectFixture {
	t.Helper()

	p := &ProjectFixture{Dir: t.TempDir(), t: t}
	t.Chdir(p.Dir)

	return p.WithConfig(DefaultConfig)
}

// WithConfig replaces gatekeeper.yaml.
func (p *ProjectFixture) WithConfig(yaml string) *ProjectFixture {
	p.t.Helper()

	err := os.WriteFile(p.ConfigPath(), []byte(yaml), consts.ModeFile)
	require.NoError(p.t, err, "Failed to write config")

	return p
}

// WithMigrations writes migration scripts for a database. Names are relative
// to the database's migration directory, e.g. V1__init.sql.
func (p *ProjectFixture) WithMigrations(database string, scripts map[string]string) *ProjectFixture {
	p.t.Helper()

	for name, sql := range scripts {
		path := filepath.Join(p.MigrationsDir(database), filepath.FromSlash(name))
		require.NoError(p.t, os.MkdirAll(filepath.Dir(path), consts.ModeDir), "Failed to create migrations directory")
		require.NoError(p.t, os.WriteFile(path, []byte(sql), consts.ModeFile), "Failed to write migration file: %s", name)
	}

	return p
}

// Config loads the fixture's configuration.
func (p *ProjectFixture) Config() *config.Config {
	p.t.Helper()

	cfg, err := config.LoadFile(p.ConfigPath())
	require.NoError(p.t, err, "Failed to load config")

	return cfg
}

// Loader returns a loader holding the fixture's configuration.
func (p *ProjectFixture) Loader() *config.Loader {
	p.t.Helper()

	l := config.NewLoader()
	require.NoError(p.t, l.Load(p.ConfigPath()))

	return l
}

// ConfigPath returns the path of gatekeeper.yaml.
func (p *ProjectFixture) ConfigPath() string {
	return filepath.Join(p.Dir, consts.DefaultConfigFile)
}

// MigrationsDir returns the migration directory of a database.
func (p *ProjectFixture) MigrationsDir(database string) string {
	return filepath.Join(p.Dir, filepath.FromSlash(consts.DefaultLocation), database)
}

// DatabasePath returns the path of a SQLite database file in the project.
func (p *ProjectFixture) DatabasePath(name string) string {
	return filepath.Join(p.Dir, name)
}
