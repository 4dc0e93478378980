package consts

import "os"

const (
	// ModeDir is the standard file mode for creating directories
	ModeDir = os.FileMode(0o755)

	// ModeFile is the standard file mode for creating files
	ModeFile = os.FileMode(0o644)

	// DefaultConfigFile is the configuration file looked up in the working directory
	DefaultConfigFile = "gatekeeper.yaml"

	// DefaultLocation is the base location under which each database keeps
	// its migration scripts (<location>/<database>)
	DefaultLocation = "db/migration"

	// DefaultRoot is the application root used when none is configured
	DefaultRoot = "."

	// DefaultAdminPrefix is the URL prefix the administrative handler is mounted at
	DefaultAdminPrefix = "/@gatekeeper"

	// DefaultHistoryTable is the name of the schema history table
	DefaultHistoryTable = "gatekeeper_schema_history"

	// DefaultEncoding is the encoding used to read migration scripts
	DefaultEncoding = "UTF-8"

	// DefaultSQLMigrationPrefix is the file name prefix of versioned SQL migrations
	DefaultSQLMigrationPrefix = "V"

	// DefaultSQLMigrationSeparator separates the version from the description
	DefaultSQLMigrationSeparator = "__"

	// DefaultSQLMigrationSuffix is the file name suffix of SQL migrations
	DefaultSQLMigrationSuffix = ".sql"

	// DefaultPlaceholderPrefix opens a placeholder in migration scripts
	DefaultPlaceholderPrefix = "${"

	// DefaultPlaceholderSuffix closes a placeholder in migration scripts
	DefaultPlaceholderSuffix = "}"

	// DefaultBaselineVersion is the version recorded by a baseline
	DefaultBaselineVersion = "1"

	// DefaultBaselineDescription is the description recorded by a baseline
	DefaultBaselineDescription = "<< Baseline >>"
)
