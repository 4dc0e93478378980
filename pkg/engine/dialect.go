package engine

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"github.com/pseudomuto/gatekeeper/pkg/utils"
)

type (
	// Queryer is the subset of *sql.DB, *sql.Conn and *sql.Tx used to run
	// migrations and maintain the history table.
	Queryer interface {
		ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
		QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
		QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	}

	// DataSource describes how to reach a database.
	DataSource struct {
		Driver   string
		URL      string
		User     string
		Password string
	}

	// Dialect hides the differences between the supported databases.
	Dialect interface {
		// Name is the name of the dialect (postgres, mysql, sqlite or clickhouse).
		Name() string

		// Open returns a handle for the data source. User and password, when
		// set, override whatever the URL carries.
		Open(ds DataSource) (*sql.DB, error)

		// Quote quotes an identifier.
		Quote(ident string) string

		// Qualify returns the quoted, schema qualified name of a table.
		Qualify(schema, table string) string

		// Bind returns the n-th (1 based) bind parameter.
		Bind(n int) string

		// Transactional reports whether a migration can run in a transaction.
		Transactional() bool

		// CurrentSchema returns the schema used when none is configured.
		CurrentSchema(ctx context.Context, q Queryer) (string, error)

		// CreateSchema creates the schema if it doesn't exist.
		CreateSchema(ctx context.Context, q Queryer, schema string) error

		// Tables lists the tables and views in a schema.
		Tables(ctx context.Context, q Queryer, schema string) ([]string, error)

		// HistoryDDL returns the statement that creates the history table.
		HistoryDDL(table string) string

		// DeleteFailed removes the history rows of failed migrations.
		DeleteFailed(ctx context.Context, q Queryer, table string) error

		// UpdateChecksum rewrites the checksum of a history row.
		UpdateChecksum(ctx context.Context, q Queryer, table string, rank int, checksum string) error

		// Clean drops every object in the schema.
		Clean(ctx context.Context, q Queryer, schema string) error
	}

	postgresDialect   struct{}
	mysqlDialect      struct{}
	sqliteDialect     struct{}
	clickhouseDialect struct{}
)

// standardHistoryDDL creates the history table on databases speaking
// (mostly) standard SQL.
const standardHistoryDDL = `CREATE TABLE IF NOT EXISTS %s (
    installed_rank INTEGER NOT NULL PRIMARY KEY,
    version VARCHAR(50),
    description VARCHAR(200) NOT NULL,
    type VARCHAR(20) NOT NULL,
    script VARCHAR(1000) NOT NULL,
    checksum VARCHAR(64),
    installed_by VARCHAR(100) NOT NULL,
    installed_on TIMESTAMP NOT NULL,
    execution_time INTEGER NOT NULL,
    success BOOLEAN NOT NULL
)`

const clickhouseHistoryDDL = `CREATE TABLE IF NOT EXISTS %s (
    installed_rank Int32 COMMENT 'Order in which the migration was applied',
    version Nullable(String) COMMENT 'The migration version',
    description String COMMENT 'The migration description',
    type String COMMENT 'SQL, GO or BASELINE',
    script String COMMENT 'The script or Go migration name',
    checksum Nullable(String) COMMENT 'The h1 hash of the script',
    installed_by String COMMENT 'The user that applied the migration',
    installed_on DateTime64(3, 'UTC') COMMENT 'When the migration was applied',
    execution_time Int32 COMMENT 'How long the migration took to run (ms)',
    success Bool COMMENT 'Whether the migration succeeded'
)
ENGINE = MergeTree()
ORDER BY installed_rank
COMMENT 'Table used to track migrations'`

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) Open(ds DataSource) (*sql.DB, error) {
	dsn := ds.URL
	if ds.User != "" || ds.Password != "" {
		if strings.Contains(dsn, "://") {
			u, err := url.Parse(dsn)
			if err != nil {
				return nil, errors.Wrap(err, "invalid postgres url")
			}

			user := ds.User
			if user == "" && u.User != nil {
				user = u.User.Username()
			}

			password, hasPassword := "", false
			if u.User != nil {
				password, hasPassword = u.User.Password()
			}
			if ds.Password != "" {
				password, hasPassword = ds.Password, true
			}

			if hasPassword {
				u.User = url.UserPassword(user, password)
			} else {
				u.User = url.User(user)
			}

			dsn = u.String()
		} else {
			if ds.User != "" {
				dsn += " user=" + pgValue(ds.User)
			}
			if ds.Password != "" {
				dsn += " password=" + pgValue(ds.Password)
			}
		}
	}

	db, err := sql.Open(ds.Driver, strings.TrimSpace(dsn))
	return db, errors.Wrap(err, "failed to open postgres database")
}

func (postgresDialect) Quote(ident string) string { return utils.QuoteIdentifier(ident, '"') }

func (postgresDialect) Qualify(schema, table string) string {
	return utils.QualifiedName(schema, table, '"')
}

func (postgresDialect) Bind(n int) string { return fmt.Sprintf("$%d", n) }

func (postgresDialect) Transactional() bool { return true }

func (postgresDialect) CurrentSchema(ctx context.Context, q Queryer) (string, error) {
	return queryString(ctx, q, "SELECT current_schema()")
}

func (d postgresDialect) CreateSchema(ctx context.Context, q Queryer, schema string) error {
	_, err := q.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+d.Quote(schema))
	return errors.Wrapf(err, "failed to create schema %s", schema)
}

func (postgresDialect) Tables(ctx context.Context, q Queryer, schema string) ([]string, error) {
	return queryStrings(
		ctx,
		q,
		"SELECT table_name FROM information_schema.tables WHERE table_schema = $1 ORDER BY table_name",
		schema,
	)
}

func (postgresDialect) HistoryDDL(table string) string {
	return fmt.Sprintf(standardHistoryDDL, table)
}

func (d postgresDialect) DeleteFailed(ctx context.Context, q Queryer, table string) error {
	_, err := q.ExecContext(ctx, "DELETE FROM "+table+" WHERE success = $1", false)
	return errors.Wrap(err, "failed to delete failed migrations")
}

func (d postgresDialect) UpdateChecksum(ctx context.Context, q Queryer, table string, rank int, checksum string) error {
	_, err := q.ExecContext(ctx, "UPDATE "+table+" SET checksum = $1 WHERE installed_rank = $2", checksum, rank)
	return errors.Wrapf(err, "failed to update checksum of installed rank %d", rank)
}

func (d postgresDialect) Clean(ctx context.Context, q Queryer, schema string) error {
	for _, stmt := range []string{
		"DROP SCHEMA IF EXISTS " + d.Quote(schema) + " CASCADE",
		"CREATE SCHEMA " + d.Quote(schema),
	} {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "failed to clean schema %s", schema)
		}
	}

	return nil
}

// pgValue quotes a value for a key/value connection string.
func pgValue(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}

func (mysqlDialect) Name() string { return "mysql" }

func (mysqlDialect) Open(ds DataSource) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(ds.URL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid mysql url")
	}

	if ds.User != "" {
		cfg.User = ds.User
	}
	if ds.Password != "" {
		cfg.Passwd = ds.Password
	}
	cfg.ParseTime = true

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open mysql database")
	}

	return sql.OpenDB(connector), nil
}

func (mysqlDialect) Quote(ident string) string { return utils.QuoteIdentifier(ident, '`') }

func (mysqlDialect) Qualify(schema, table string) string {
	return utils.QualifiedName(schema, table, '`')
}

func (mysqlDialect) Bind(int) string { return "?" }

// Transactional is true although MySQL commits DDL implicitly; data changes
// in a failed migration are still rolled back.
func (mysqlDialect) Transactional() bool { return true }

func (mysqlDialect) CurrentSchema(ctx context.Context, q Queryer) (string, error) {
	schema, err := queryString(ctx, q, "SELECT DATABASE()")
	if err == nil && schema == "" {
		err = errors.New("no database selected; set one in the url or configure schemas")
	}

	return schema, err
}

func (d mysqlDialect) CreateSchema(ctx context.Context, q Queryer, schema string) error {
	_, err := q.ExecContext(ctx, "CREATE DATABASE IF NOT EXISTS "+d.Quote(schema))
	return errors.Wrapf(err, "failed to create schema %s", schema)
}

func (mysqlDialect) Tables(ctx context.Context, q Queryer, schema string) ([]string, error) {
	return queryStrings(
		ctx,
		q,
		"SELECT table_name FROM information_schema.tables WHERE table_schema = ? ORDER BY table_name",
		schema,
	)
}

func (mysqlDialect) HistoryDDL(table string) string {
	return fmt.Sprintf(standardHistoryDDL, table)
}

func (mysqlDialect) DeleteFailed(ctx context.Context, q Queryer, table string) error {
	_, err := q.ExecContext(ctx, "DELETE FROM "+table+" WHERE success = ?", false)
	return errors.Wrap(err, "failed to delete failed migrations")
}

func (mysqlDialect) UpdateChecksum(ctx context.Context, q Queryer, table string, rank int, checksum string) error {
	_, err := q.ExecContext(ctx, "UPDATE "+table+" SET checksum = ? WHERE installed_rank = ?", checksum, rank)
	return errors.Wrapf(err, "failed to update checksum of installed rank %d", rank)
}

func (d mysqlDialect) Clean(ctx context.Context, q Queryer, schema string) error {
	views, err := queryStrings(ctx, q, "SELECT table_name FROM information_schema.views WHERE table_schema = ?", schema)
	if err != nil {
		return errors.Wrapf(err, "failed to list views in %s", schema)
	}

	tables, err := queryStrings(
		ctx,
		q,
		"SELECT table_name FROM information_schema.tables WHERE table_schema = ? AND table_type = 'BASE TABLE'",
		schema,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to list tables in %s", schema)
	}

	stmts := []string{"SET FOREIGN_KEY_CHECKS = 0"}
	for _, v := range views {
		stmts = append(stmts, "DROP VIEW IF EXISTS "+d.Qualify(schema, v))
	}
	for _, t := range tables {
		stmts = append(stmts, "DROP TABLE IF EXISTS "+d.Qualify(schema, t))
	}
	stmts = append(stmts, "SET FOREIGN_KEY_CHECKS = 1")

	return execAll(ctx, q, stmts)
}

func (sqliteDialect) Name() string { return "sqlite" }

func (sqliteDialect) Open(ds DataSource) (*sql.DB, error) {
	db, err := sql.Open(ds.Driver, ds.URL)
	return db, errors.Wrap(err, "failed to open sqlite database")
}

func (sqliteDialect) Quote(ident string) string { return utils.QuoteIdentifier(ident, '"') }

func (sqliteDialect) Qualify(schema, table string) string {
	if schema == "main" {
		schema = ""
	}

	return utils.QualifiedName(schema, table, '"')
}

func (sqliteDialect) Bind(int) string { return "?" }

func (sqliteDialect) Transactional() bool { return true }

func (sqliteDialect) CurrentSchema(context.Context, Queryer) (string, error) {
	return "main", nil
}

// CreateSchema only verifies the schema is attached; SQLite has no
// CREATE SCHEMA.
func (sqliteDialect) CreateSchema(ctx context.Context, q Queryer, schema string) error {
	if schema == "main" {
		return nil
	}

	rows, err := q.QueryContext(ctx, "PRAGMA database_list")
	if err != nil {
		return errors.Wrap(err, "failed to list attached databases")
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			seq        int
			name, file sql.NullString
		)
		if err := rows.Scan(&seq, &name, &file); err != nil {
			return errors.Wrap(err, "failed to scan attached database")
		}
		if name.String == schema {
			return nil
		}
	}

	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "failed to list attached databases")
	}

	return errors.Errorf("sqlite database %s is not attached", schema)
}

func (d sqliteDialect) Tables(ctx context.Context, q Queryer, schema string) ([]string, error) {
	return queryStrings(
		ctx,
		q,
		"SELECT name FROM "+d.Qualify(schema, "sqlite_master")+
			" WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%' ORDER BY name",
	)
}

func (sqliteDialect) HistoryDDL(table string) string {
	return fmt.Sprintf(standardHistoryDDL, table)
}

func (sqliteDialect) DeleteFailed(ctx context.Context, q Queryer, table string) error {
	_, err := q.ExecContext(ctx, "DELETE FROM "+table+" WHERE success = ?", false)
	return errors.Wrap(err, "failed to delete failed migrations")
}

func (sqliteDialect) UpdateChecksum(ctx context.Context, q Queryer, table string, rank int, checksum string) error {
	_, err := q.ExecContext(ctx, "UPDATE "+table+" SET checksum = ? WHERE installed_rank = ?", checksum, rank)
	return errors.Wrapf(err, "failed to update checksum of installed rank %d", rank)
}

func (d sqliteDialect) Clean(ctx context.Context, q Queryer, schema string) error {
	rows, err := q.QueryContext(
		ctx,
		"SELECT type, name FROM "+d.Qualify(schema, "sqlite_master")+
			" WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%' ORDER BY type DESC",
	)
	if err != nil {
		return errors.Wrapf(err, "failed to list objects in %s", schema)
	}

	stmts := []string{"PRAGMA foreign_keys = OFF"}
	for rows.Next() {
		var kind, name string
		if err := rows.Scan(&kind, &name); err != nil {
			_ = rows.Close()
			return errors.Wrap(err, "failed to scan object")
		}

		stmts = append(stmts, "DROP "+strings.ToUpper(kind)+" IF EXISTS "+d.Qualify(schema, name))
	}
	_ = rows.Close()

	if err := rows.Err(); err != nil {
		return errors.Wrapf(err, "failed to list objects in %s", schema)
	}

	stmts = append(stmts, "PRAGMA foreign_keys = ON")
	return execAll(ctx, q, stmts)
}

func (clickhouseDialect) Name() string { return "clickhouse" }

func (clickhouseDialect) Open(ds DataSource) (*sql.DB, error) {
	dsn := ds.URL
	if !strings.Contains(dsn, "://") {
		dsn = "clickhouse://" + dsn
	}

	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "invalid clickhouse url")
	}

	if ds.User != "" {
		opts.Auth.Username = ds.User
	}
	if ds.Password != "" {
		opts.Auth.Password = ds.Password
	}

	return clickhouse.OpenDB(opts), nil
}

func (clickhouseDialect) Quote(ident string) string { return utils.QuoteIdentifier(ident, '`') }

func (clickhouseDialect) Qualify(schema, table string) string {
	return utils.QualifiedName(schema, table, '`')
}

func (clickhouseDialect) Bind(int) string { return "?" }

func (clickhouseDialect) Transactional() bool { return false }

func (clickhouseDialect) CurrentSchema(ctx context.Context, q Queryer) (string, error) {
	return queryString(ctx, q, "SELECT currentDatabase()")
}

func (d clickhouseDialect) CreateSchema(ctx context.Context, q Queryer, schema string) error {
	_, err := q.ExecContext(ctx, "CREATE DATABASE IF NOT EXISTS "+d.Quote(schema))
	return errors.Wrapf(err, "failed to create database %s", schema)
}

func (clickhouseDialect) Tables(ctx context.Context, q Queryer, schema string) ([]string, error) {
	return queryStrings(ctx, q, "SELECT name FROM system.tables WHERE database = ? ORDER BY name", schema)
}

func (clickhouseDialect) HistoryDDL(table string) string {
	return fmt.Sprintf(clickhouseHistoryDDL, table)
}

// DeleteFailed and UpdateChecksum are mutations in ClickHouse; mutations_sync
// makes them visible before the call returns.
func (clickhouseDialect) DeleteFailed(ctx context.Context, q Queryer, table string) error {
	_, err := q.ExecContext(mutationContext(ctx), "ALTER TABLE "+table+" DELETE WHERE success = ?", false)
	return errors.Wrap(err, "failed to delete failed migrations")
}

func (clickhouseDialect) UpdateChecksum(ctx context.Context, q Queryer, table string, rank int, checksum string) error {
	_, err := q.ExecContext(
		mutationContext(ctx),
		"ALTER TABLE "+table+" UPDATE checksum = ? WHERE installed_rank = ?",
		checksum,
		rank,
	)
	return errors.Wrapf(err, "failed to update checksum of installed rank %d", rank)
}

func (d clickhouseDialect) Clean(ctx context.Context, q Queryer, schema string) error {
	rows, err := q.QueryContext(ctx, "SELECT name, engine FROM system.tables WHERE database = ?", schema)
	if err != nil {
		return errors.Wrapf(err, "failed to list tables in %s", schema)
	}

	var stmts []string
	for rows.Next() {
		var name, engine string
		if err := rows.Scan(&name, &engine); err != nil {
			_ = rows.Close()
			return errors.Wrap(err, "failed to scan table")
		}

		kind := "TABLE"
		if engine == "Dictionary" {
			kind = "DICTIONARY"
		}
		stmts = append(stmts, "DROP "+kind+" IF EXISTS "+d.Qualify(schema, name))
	}
	_ = rows.Close()

	if err := rows.Err(); err != nil {
		return errors.Wrapf(err, "failed to list tables in %s", schema)
	}

	return execAll(ctx, q, stmts)
}

func mutationContext(ctx context.Context) context.Context {
	return clickhouse.Context(ctx, clickhouse.WithSettings(clickhouse.Settings{
		"mutations_sync": 2,
	}))
}

func queryString(ctx context.Context, q Queryer, query string, args ...any) (string, error) {
	var s sql.NullString
	if err := q.QueryRowContext(ctx, query, args...).Scan(&s); err != nil {
		return "", errors.Wrapf(err, "failed to execute query: %s", query)
	}

	return s.String, nil
}

func queryStrings(ctx context.Context, q Queryer, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to execute query: %s", query)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}
		out = append(out, s)
	}

	return out, errors.Wrap(rows.Err(), "failed to read rows")
}

func execAll(ctx context.Context, q Queryer, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "failed to execute statement: %s", stmt)
		}
	}

	return nil
}
