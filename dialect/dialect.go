package dialect

import (
	"sort"
	"strings"
)

// Dialect names supported by the schema layer.
const (
	MySQL    = "mysql"
	SQLite   = "sqlite"
	Postgres = "postgres"
)

// aliases maps driver names as they appear in DSN prefixes to a dialect.
var aliases = map[string]string{
	"mysql":      MySQL,
	"mysqli":     MySQL,
	"mariadb":    MySQL,
	"pgsql":      Postgres,
	"postgres":   Postgres,
	"postgresql": Postgres,
	"sqlite":     SQLite,
	"sqlite3":    SQLite,
	"sqlite2":    SQLite,
}

// nativeDrivers maps a dialect to the database/sql driver registered for it.
var nativeDrivers = map[string]string{
	MySQL:    "mysql",
	Postgres: "postgres",
	SQLite:   "sqlite",
}

// Normalize lower-cases the given driver name and trims surrounding spaces.
func Normalize(driver string) string {
	return strings.ToLower(strings.TrimSpace(driver))
}

// Lookup returns the dialect for the given driver name (e.g. "pgsql" or "mysqli").
func Lookup(driver string) (string, bool) {
	d, ok := aliases[Normalize(driver)]
	return d, ok
}

// NativeDriver returns the name of the database/sql driver that serves the
// given driver name. Unknown names are returned normalized, so drivers
// registered by the caller can still be opened.
func NativeDriver(driver string) string {
	if d, ok := Lookup(driver); ok {
		return nativeDrivers[d]
	}
	return Normalize(driver)
}

// Aliases returns the sorted list of driver names known to resolve to a dialect.
func Aliases() []string {
	names := make([]string, 0, len(aliases))
	for name := range aliases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
