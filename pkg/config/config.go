// Package config resolves the gatekeeper configuration tree into one
// Database record per logically named database.
//
// The configuration is a YAML document, usually gatekeeper.yaml:
//
//	enabled: true
//	mode: prod
//	location: db/migration
//	databases:
//	  default:
//	    driver: postgres
//	    url: postgres://localhost/app?sslmode=disable
//	    migration:
//	      auto: true
//	  reporting:
//	    driver: clickhouse
//	    url: localhost:9000
//
// Databases are kept in document order. Every migration setting is optional;
// a database without a migration section resolves with defaults.
package config

import (
	"io"
	"os"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/pseudomuto/gatekeeper/pkg/consts"
	"github.com/pseudomuto/gatekeeper/pkg/engine"
	"gopkg.in/yaml.v3"
)

const (
	// ModeDev is used while developing the application
	ModeDev Mode = "dev"

	// ModeTest makes every database migrate automatically on start
	ModeTest Mode = "test"

	// ModeProd is the default mode
	ModeProd Mode = "prod"

	// ResourcesFilesystem resolves migration scripts from a directory on disk
	ResourcesFilesystem Resources = "filesystem"

	// ResourcesEmbedded resolves migration scripts from a filesystem packaged
	// into the binary
	ResourcesEmbedded Resources = "embedded"
)

type (
	// Mode is the environment mode the host application runs in.
	Mode string

	// Resources names the backend migration scripts are resolved from.
	Resources string

	// Config is the root of the gatekeeper configuration tree.
	Config struct {
		// Enabled is the top-level switch. When explicitly false nothing
		// runs at startup and no engine is ever constructed.
		Enabled *bool `yaml:"enabled,omitempty"`

		// Mode is one of dev, test or prod
		Mode Mode `yaml:"mode,omitempty"`

		// Root is the application root used to search for Go migration sources
		Root string `yaml:"root,omitempty"`

		// Location is the base location prefix; scripts for a database live in
		// <location>/<database>
		Location string `yaml:"location,omitempty"`

		// Resources selects the resource backend (filesystem or embedded)
		Resources Resources `yaml:"resources,omitempty"`

		// AdminPrefix is the URL prefix of the administrative handler
		AdminPrefix string `yaml:"admin_prefix,omitempty"`

		// Databases holds one entry per named database, in document order
		Databases Databases `yaml:"databases,omitempty"`
	}

	// Databases is an ordered list of database configurations decoded from a
	// YAML mapping keyed by database name.
	Databases []*Database

	// Database is the configuration of a single named database.
	Database struct {
		// Name is the unique, non-empty key of the database
		Name string `yaml:"-"`

		// Driver is the database/sql driver name
		Driver string `yaml:"driver"`

		// URL is the driver specific data source name
		URL string `yaml:"url"`

		// User is the optional user name
		User string `yaml:"user,omitempty"`

		// Password is the optional password
		Password string `yaml:"password,omitempty"`

		// Migration holds the migration settings for this database
		Migration Migration `yaml:"migration,omitempty"`
	}

	// Migration contains the per-database migration settings. Pointer and
	// nil slice/map fields are "absent" unless set, leaving the engine's
	// defaults in place.
	Migration struct {
		Locations              []string          `yaml:"locations,omitempty"`
		Encoding               *string           `yaml:"encoding,omitempty"`
		Schemas                []string          `yaml:"schemas,omitempty"`
		Table                  *string           `yaml:"table,omitempty"`
		PlaceholderReplacement *bool             `yaml:"placeholder_replacement,omitempty"`
		Placeholders           map[string]string `yaml:"placeholders,omitempty"`
		PlaceholderPrefix      *string           `yaml:"placeholder_prefix,omitempty"`
		PlaceholderSuffix      *string           `yaml:"placeholder_suffix,omitempty"`
		SQLMigrationPrefix     *string           `yaml:"sql_migration_prefix,omitempty"`

		// SQLMigrationSuffix is deprecated; it is merged after SQLMigrationSuffixes.
		SQLMigrationSuffix     *string  `yaml:"sql_migration_suffix,omitempty"`
		SQLMigrationSuffixes   []string `yaml:"sql_migration_suffixes,omitempty"`
		SQLMigrationSeparator  *string  `yaml:"sql_migration_separator,omitempty"`
		IgnoreFutureMigrations *bool    `yaml:"ignore_future_migrations,omitempty"`
		ValidateOnMigrate      *bool    `yaml:"validate_on_migrate,omitempty"`
		CleanOnValidationError *bool    `yaml:"clean_on_validation_error,omitempty"`
		CleanDisabled          *bool    `yaml:"clean_disabled,omitempty"`
		BaselineOnMigrate      *bool    `yaml:"baseline_on_migrate,omitempty"`
		OutOfOrder             *bool    `yaml:"out_of_order,omitempty"`

		// Auto applies pending migrations on start instead of failing
		Auto bool `yaml:"auto,omitempty"`

		// ValidateOnStart runs the engine's validation when nothing is pending
		ValidateOnStart bool `yaml:"validate_on_start,omitempty"`
	}
)

// Load parses a gatekeeper configuration from the provided io.Reader.
//
// Defaults are applied for every optional top-level field. An empty document
// yields a configuration with defaults and no databases.
//
// Any problem with the document is reported as a *ConfigError.
//
// Example:
//
//	cfg, err := config.Load(strings.NewReader(`
//	databases:
//	  default:
//	    driver: sqlite
//	    url: file:app.db
//	`))
//	if err != nil {
//		panic(err)
//	}
//
//	fmt.Println(cfg.Names()) // [default]
func Load(r io.Reader) (*Config, error) {
	var cfg Config
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		var cfgErr *ConfigError
		if errors.As(err, &cfgErr) {
			return nil, cfgErr
		}

		return nil, &ConfigError{Err: errors.Wrap(err, "failed to unmarshal config")}
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadFile loads a configuration from the specified file path.
//
// Example:
//
//	cfg, err := config.LoadFile("gatekeeper.yaml")
//	if err != nil {
//		log.Fatal("Failed to load config:", err)
//	}
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open file: %s", path)
	}
	defer func() { _ = f.Close() }()

	return Load(f)
}

// IsEnabled reports whether gatekeeper should run at all. Only an explicit
// `enabled: false` disables it.
func (c *Config) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// IsTest reports whether the host runs in test mode.
func (c *Config) IsTest() bool {
	return c.Mode == ModeTest
}

// Names returns the database names in configuration order.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Databases))
	for _, db := range c.Databases {
		names = append(names, db.Name)
	}

	return names
}

// Database returns the configuration of the named database.
func (c *Config) Database(name string) (*Database, bool) {
	for _, db := range c.Databases {
		if db.Name == name {
			return db, true
		}
	}

	return nil, false
}

// UnmarshalYAML decodes a mapping of database name to settings, keeping the
// order of the keys as written.
func (d *Databases) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return &ConfigError{Field: "databases", Err: errors.New("must be a mapping of database name to settings")}
	}

	dbs := make(Databases, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]

		name := strings.TrimSpace(key.Value)
		if name == "" {
			return &ConfigError{Field: "databases", Err: errors.New("database name must not be empty")}
		}

		if slices.ContainsFunc(dbs, func(db *Database) bool { return db.Name == name }) {
			return &ConfigError{Field: "databases." + name, Err: errors.New("database is defined more than once")}
		}

		db := &Database{Name: name}
		if value.Tag != "!!null" {
			if err := value.Decode(db); err != nil {
				return &ConfigError{Field: "databases." + name, Err: err}
			}
		}

		db.Name = name
		db.URL = os.ExpandEnv(db.URL)
		db.User = os.ExpandEnv(db.User)
		db.Password = os.ExpandEnv(db.Password)
		dbs = append(dbs, db)
	}

	*d = dbs
	return nil
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeProd
	}
	if c.Root == "" {
		c.Root = consts.DefaultRoot
	}
	if c.Location == "" {
		c.Location = consts.DefaultLocation
	}
	if c.Resources == "" {
		c.Resources = ResourcesFilesystem
	}
	if c.AdminPrefix == "" {
		c.AdminPrefix = consts.DefaultAdminPrefix
	}

	c.Location = strings.Trim(c.Location, "/")
}

func (c *Config) validate() error {
	switch c.Mode {
	case ModeDev, ModeTest, ModeProd:
	default:
		return &ConfigError{Field: "mode", Err: errors.Errorf("unrecognized value %q (expected dev, test or prod)", c.Mode)}
	}

	switch c.Resources {
	case ResourcesFilesystem, ResourcesEmbedded:
	default:
		return &ConfigError{Field: "resources", Err: errors.Errorf("unrecognized value %q (expected filesystem or embedded)", c.Resources)}
	}

	for _, db := range c.Databases {
		field := "databases." + db.Name
		if db.Driver == "" {
			return &ConfigError{Field: field + ".driver", Err: errors.New("is required")}
		}
		if !engine.IsSupportedDriver(db.Driver) {
			return &ConfigError{
				Field: field + ".driver",
				Err:   errors.Errorf("unrecognized value %q (expected one of %s)", db.Driver, strings.Join(engine.SupportedDrivers(), ", ")),
			}
		}
		if db.URL == "" {
			return &ConfigError{Field: field + ".url", Err: errors.New("is required")}
		}
	}

	return nil
}
