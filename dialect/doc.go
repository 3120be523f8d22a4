// Package dialect names the database dialects understood by sqlkit.
//
// A dialect is selected from the driver prefix of a DSN. Several driver names
// can resolve to the same dialect:
//
//	mysql, mysqli, mariadb       -> dialect.MySQL
//	pgsql, postgres, postgresql  -> dialect.Postgres
//	sqlite, sqlite3, sqlite2     -> dialect.SQLite
//
// # Native drivers
//
// Each dialect is served by a database/sql driver:
//
//	dialect.MySQL    -> "mysql"    (github.com/go-sql-driver/mysql)
//	dialect.Postgres -> "postgres" (github.com/lib/pq)
//	dialect.SQLite   -> "sqlite"   (modernc.org/sqlite)
//
// # Usage
//
//	d, ok := dialect.Lookup("pgsql") // "postgres", true
//	drv := dialect.NativeDriver("sqlite3") // "sqlite"
//
// # Sub-packages
//
//   - dialect/sql: connections, transactions, commands, criteria, the
//     command builder and per-dialect schema introspection
//   - dialect/sql/schema: table and column metadata
package dialect
