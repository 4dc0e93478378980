package engine

import (
	"slices"

	// database/sql drivers understood by the engine
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// drivers maps a database/sql driver name to the dialect that speaks to it.
var drivers = map[string]Dialect{
	"postgres":   postgresDialect{},
	"pgx":        postgresDialect{},
	"mysql":      mysqlDialect{},
	"sqlite":     sqliteDialect{},
	"sqlite3":    sqliteDialect{},
	"clickhouse": clickhouseDialect{},
}

// IsSupportedDriver reports whether the engine has a dialect for the driver.
func IsSupportedDriver(driver string) bool {
	_, ok := drivers[driver]
	return ok
}

// SupportedDrivers returns the supported driver names, sorted.
func SupportedDrivers() []string {
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}

	slices.Sort(names)
	return names
}

// DialectFor returns the dialect for a driver name.
func DialectFor(driver string) (Dialect, bool) {
	d, ok := drivers[driver]
	return d, ok
}
