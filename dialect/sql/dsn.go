package sql

import (
	"fmt"
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/syssam/sqlkit/dialect"
)

// DSN is a parsed data source name of the form
//
//	<driver>:<key>=<value>;<key>=<value>...
//
// SQLite DSNs carry a file path instead of key/value pairs, e.g.
// "sqlite:/var/db/app.sqlite" or "sqlite::memory:".
type DSN struct {
	// Driver is the lower-cased text before the first colon.
	Driver string
	// Body is everything after the first colon.
	Body string

	keys   []string
	values map[string]string
}

// ParseDSN parses a DSN string.
func ParseDSN(dsn string) (*DSN, error) {
	pos := strings.IndexByte(dsn, ':')
	if pos <= 0 {
		return nil, &ConfigurationError{Msg: fmt.Sprintf("malformed DSN %q: missing driver prefix", redactDSN(dsn))}
	}
	d := &DSN{
		Driver: dialect.Normalize(dsn[:pos]),
		Body:   dsn[pos+1:],
		values: make(map[string]string),
	}
	if isSQLite(d.Driver) {
		return d, nil
	}
	for _, part := range strings.Split(d.Body, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return nil, &ConfigurationError{Msg: fmt.Sprintf("malformed DSN parameter %q", k)}
		}
		k = strings.ToLower(strings.TrimSpace(k))
		if _, dup := d.values[k]; !dup {
			d.keys = append(d.keys, k)
		}
		d.values[k] = strings.TrimSpace(v)
	}
	return d, nil
}

// Get returns the value of the given DSN parameter.
func (d *DSN) Get(key string) string { return d.values[strings.ToLower(key)] }

// Keys returns the DSN parameter names in the order they appear.
func (d *DSN) Keys() []string { return append([]string(nil), d.keys...) }

// NativeSource returns the database/sql driver name and data source string
// used to open a connection for this DSN.
func (d *DSN) NativeSource(username, password string) (string, string, error) {
	name := dialect.NativeDriver(d.Driver)
	switch name {
	case "mysql":
		return name, d.mysqlSource(username, password), nil
	case "postgres":
		return name, d.postgresSource(username, password), nil
	case "sqlite":
		if d.Body == "" {
			return "", "", &ConfigurationError{Msg: "sqlite DSN requires a database path"}
		}
		return name, d.Body, nil
	}
	return name, d.Body, nil
}

func (d *DSN) mysqlSource(username, password string) string {
	cfg := mysql.NewConfig()
	cfg.User, cfg.Passwd = username, password
	if sock := d.Get("unix_socket"); sock != "" {
		cfg.Net, cfg.Addr = "unix", sock
	} else {
		host, port := d.Get("host"), d.Get("port")
		if host == "" {
			host = "127.0.0.1"
		}
		if port == "" {
			port = "3306"
		}
		cfg.Net, cfg.Addr = "tcp", net.JoinHostPort(host, port)
	}
	cfg.DBName = d.Get("dbname")
	for _, k := range d.keys {
		switch k {
		case "host", "port", "dbname", "unix_socket":
			continue
		}
		if cfg.Params == nil {
			cfg.Params = make(map[string]string)
		}
		cfg.Params[k] = d.values[k]
	}
	return cfg.FormatDSN()
}

func (d *DSN) postgresSource(username, password string) string {
	var parts []string
	add := func(k, v string) {
		parts = append(parts, k+"="+pqQuoteParam(v))
	}
	for _, k := range d.keys {
		add(k, d.values[k])
	}
	if username != "" && d.Get("user") == "" {
		add("user", username)
	}
	if password != "" && d.Get("password") == "" {
		add("password", password)
	}
	if d.Get("sslmode") == "" {
		add("sslmode", "disable")
	}
	return strings.Join(parts, " ")
}

// pqQuoteParam quotes a lib/pq key/value connection parameter when needed.
func pqQuoteParam(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

func isSQLite(driver string) bool {
	d, ok := dialect.Lookup(driver)
	return ok && d == dialect.SQLite
}

// redactDSN hides everything after the driver prefix, or the whole DSN when
// no prefix is present, so that DSNs can be mentioned in error messages.
func redactDSN(dsn string) string {
	if pos := strings.IndexByte(dsn, ':'); pos > 0 {
		return dsn[:pos] + ":***"
	}
	return "***"
}
