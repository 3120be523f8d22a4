package sql

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"

	"github.com/syssam/sqlkit/dialect"
	"github.com/syssam/sqlkit/dialect/sql/schema"
)

// Dialect implements the driver-specific parts of schema introspection and
// SQL generation. One Dialect value is created per Schema.
type Dialect interface {
	// Name returns one of the dialect package constants.
	Name() string
	// Placeholder returns the native placeholder style of the driver.
	Placeholder() PlaceholderStyle
	// QuoteSimpleTableName quotes a table name without schema prefix.
	QuoteSimpleTableName(name string) string
	// QuoteSimpleColumnName quotes a column name without table prefix.
	QuoteSimpleColumnName(name string) string
	// QuoteString quotes a string literal the way the driver does. It
	// reports false when the driver has no native quoting.
	QuoteString(s string) (string, bool)
	// ColumnType maps a declared column type to a logical type.
	ColumnType(dbType string) schema.Type
	// LoadTable reads the metadata of the named table. It returns nil and
	// no error when the table does not exist.
	LoadTable(ctx context.Context, c *Conn, name string) (*schema.Table, error)
	// TableNames lists the tables of the given schema (default schema if empty).
	TableNames(ctx context.Context, c *Conn, schemaName string) ([]string, error)
	// ResetSequence makes next the next value generated for the table's
	// primary key.
	ResetSequence(ctx context.Context, c *Conn, t *schema.Table, next int64) error
	// CheckIntegrity enables or disables foreign-key checks.
	CheckIntegrity(ctx context.Context, c *Conn, check bool, schemaName string) error
	// LastInsertID returns the last generated key of the current session.
	LastInsertID(ctx context.Context, c *Conn, sequenceName string) (int64, error)
	// ServerVersion returns the version reported by the server.
	ServerVersion(ctx context.Context, c *Conn) (string, error)
	// CharsetSQL returns the statement selecting the client character set,
	// or an empty string if the dialect does not support one.
	CharsetSQL(charset string) string
	// LimitOffset appends the LIMIT and OFFSET clauses to query. Values
	// less than or equal to zero are ignored.
	LimitOffset(query string, limit, offset int) string
	// CompositeIn renders a condition matching the quoted columns against a
	// list of tuples of rendered literals.
	CompositeIn(columns []string, tuples [][]string) string
	// DefaultValues returns the INSERT suffix used when no column is given.
	DefaultValues() string
}

// DialectFunc creates a Dialect.
type DialectFunc func() Dialect

var (
	dialectsMu sync.RWMutex
	dialects   = map[string]DialectFunc{}
)

func init() {
	builtin := map[string]DialectFunc{
		dialect.MySQL:    func() Dialect { return &mysqlDialect{} },
		dialect.Postgres: func() Dialect { return &postgresDialect{} },
		dialect.SQLite:   func() Dialect { return &sqliteDialect{} },
	}
	for _, alias := range dialect.Aliases() {
		d, _ := dialect.Lookup(alias)
		dialects[alias] = builtin[d]
	}
}

// RegisterDialect makes a dialect available for the given driver name. It
// replaces any dialect registered for the same name.
func RegisterDialect(driver string, f DialectFunc) {
	dialectsMu.Lock()
	defer dialectsMu.Unlock()
	dialects[dialect.Normalize(driver)] = f
}

// Dialects returns the sorted driver names that have a registered dialect.
func Dialects() []string {
	dialectsMu.RLock()
	defer dialectsMu.RUnlock()
	names := make([]string, 0, len(dialects))
	for name := range dialects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupDialect(driver string) (DialectFunc, bool) {
	dialectsMu.RLock()
	defer dialectsMu.RUnlock()
	f, ok := dialects[dialect.Normalize(driver)]
	return f, ok
}

var tablePrefixRe = regexp.MustCompile(`\{\{(.*?)\}\}`)

// Schema reads and caches table metadata for a connection and quotes
// identifiers for its dialect.
//
// Loaded tables are kept until the connection is closed, Refresh is called
// or, when a schema caching duration is configured, the entry expires. A
// Schema may be used from several goroutines; concurrent loads of the same
// table share one catalog query.
type Schema struct {
	conn    *Conn
	dialect Dialect
	builder *CommandBuilder

	mu     sync.Mutex
	tables map[string]tableEntry
	group  singleflight.Group
}

type tableEntry struct {
	table   *schema.Table
	expires time.Time
}

func newSchema(c *Conn, d Dialect) *Schema {
	s := &Schema{
		conn:    c,
		dialect: d,
		tables:  make(map[string]tableEntry),
	}
	s.builder = &CommandBuilder{schema: s}
	return s
}

// Conn returns the connection the schema reads from.
func (s *Schema) Conn() *Conn { return s.conn }

// Dialect returns the dialect implementation of the schema.
func (s *Schema) Dialect() Dialect { return s.dialect }

// CommandBuilder returns the command builder bound to this schema.
func (s *Schema) CommandBuilder() *CommandBuilder { return s.builder }

// Table returns the metadata of the named table, or nil if it does not
// exist. A "{{name}}" token in the table name is replaced with the table
// prefix of the connection.
func (s *Schema) Table(ctx context.Context, name string) (*schema.Table, error) {
	name = s.conn.expandPrefix(name)
	now := s.conn.clock()
	s.mu.Lock()
	if e, ok := s.tables[name]; ok && (e.expires.IsZero() || now.Before(e.expires)) {
		s.mu.Unlock()
		return e.table, nil
	}
	s.mu.Unlock()
	v, err, _ := s.group.Do(name, func() (any, error) {
		return s.loadTable(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	return v.(*schema.Table), nil
}

func (s *Schema) loadTable(ctx context.Context, name string) (*schema.Table, error) {
	cfg := s.conn.cfg
	cacheable := !s.excluded(name)
	store, key := s.conn.schemaCache, s.cacheKey(name)
	useStore := cacheable && store != nil && cfg.SchemaCachingDuration > 0
	if useStore {
		if t := s.cachedTable(ctx, store, key); t != nil {
			s.remember(name, t)
			return t, nil
		}
	}
	if err := s.conn.Open(ctx); err != nil {
		return nil, err
	}
	t, err := s.dialect.LoadTable(ctx, s.conn, name)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: load table %q: %w", name, err)
	}
	if t == nil {
		return nil, nil
	}
	if useStore {
		if b, err := msgpack.Marshal(t); err == nil {
			if err := store.Set(ctx, key, b, cfg.SchemaCachingDuration); err != nil {
				s.conn.log.WithError(err).WithField("table", name).Warn("failed to cache table schema")
			}
		}
	}
	if cacheable {
		s.remember(name, t)
	}
	return t, nil
}

func (s *Schema) cachedTable(ctx context.Context, store Cache, key string) *schema.Table {
	b, err := store.Get(ctx, key)
	if err != nil || b == nil {
		return nil
	}
	var t schema.Table
	if err := unmarshalLoose(b, &t); err != nil {
		s.conn.log.WithError(err).WithField("key", key).Warn("discarding undecodable table schema")
		return nil
	}
	return &t
}

func (s *Schema) remember(name string, t *schema.Table) {
	var expires time.Time
	if d := s.conn.cfg.SchemaCachingDuration; d > 0 {
		expires = s.conn.clock().Add(d)
	}
	s.mu.Lock()
	s.tables[name] = tableEntry{table: t, expires: expires}
	s.mu.Unlock()
}

func (s *Schema) excluded(name string) bool {
	for _, ex := range s.conn.cfg.SchemaCachingExclude {
		if ex == name {
			return true
		}
	}
	return false
}

func (s *Schema) cacheKey(name string) string {
	return "sqlkit:dbschema:" + s.dialect.Name() + ":" + s.conn.cfg.DSN + ":" + s.conn.cfg.Username + ":" + name
}

// expandPrefix replaces "{{name}}" tokens with the prefixed table name.
func (c *Conn) expandPrefix(text string) string {
	if !strings.Contains(text, "{{") {
		return text
	}
	return tablePrefixRe.ReplaceAllString(text, strings.ReplaceAll(c.cfg.TablePrefix, "$", "$$")+"${1}")
}

// Tables returns the metadata of every table in the given schema.
func (s *Schema) Tables(ctx context.Context, schemaName string) ([]*schema.Table, error) {
	names, err := s.TableNames(ctx, schemaName)
	if err != nil {
		return nil, err
	}
	tables := make([]*schema.Table, 0, len(names))
	for _, name := range names {
		if schemaName != "" {
			name = schemaName + "." + name
		}
		t, err := s.Table(ctx, name)
		if err != nil {
			return nil, err
		}
		if t != nil {
			tables = append(tables, t)
		}
	}
	return tables, nil
}

// TableNames returns the names of the tables in the given schema. An empty
// schema name selects the default schema of the connection.
func (s *Schema) TableNames(ctx context.Context, schemaName string) ([]string, error) {
	if err := s.conn.Open(ctx); err != nil {
		return nil, err
	}
	names, err := s.dialect.TableNames(ctx, s.conn, schemaName)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: list tables: %w", err)
	}
	return names, nil
}

// Refresh drops all loaded table metadata, including entries of the shared
// schema cache.
func (s *Schema) Refresh(ctx context.Context) error {
	s.mu.Lock()
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	s.tables = make(map[string]tableEntry)
	s.mu.Unlock()
	if store := s.conn.schemaCache; store != nil {
		for _, name := range names {
			if err := store.Delete(ctx, s.cacheKey(name)); err != nil {
				return err
			}
		}
	}
	return nil
}

// QuoteTableName quotes a table name. Each part of a schema-prefixed name is
// quoted separately.
func (s *Schema) QuoteTableName(name string) string {
	return quoteIdentifierParts(name, s.dialect.QuoteSimpleTableName)
}

// QuoteColumnName quotes a column name. A table-prefixed name has its prefix
// quoted as a table name.
func (s *Schema) QuoteColumnName(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return s.QuoteTableName(name[:i]) + "." + s.QuoteSimpleColumnName(name[i+1:])
	}
	return s.QuoteSimpleColumnName(name)
}

// QuoteSimpleTableName quotes a table name that has no schema prefix.
func (s *Schema) QuoteSimpleTableName(name string) string {
	return s.dialect.QuoteSimpleTableName(name)
}

// QuoteSimpleColumnName quotes a column name that has no table prefix.
func (s *Schema) QuoteSimpleColumnName(name string) string {
	if name == "*" {
		return name
	}
	return s.dialect.QuoteSimpleColumnName(name)
}

// ColumnType returns the logical type of the declared database type.
func (s *Schema) ColumnType(dbType string) schema.Type {
	return s.dialect.ColumnType(dbType)
}

// ResetSequence resets the sequence of the table's primary key so that the
// next generated value is value, or one past the current maximum key when
// no value is given. Tables without a sequence are left untouched.
func (s *Schema) ResetSequence(ctx context.Context, t *schema.Table, value ...int64) error {
	if !t.HasSequence || len(t.PrimaryKey) != 1 {
		return nil
	}
	next := int64(1)
	if len(value) > 0 {
		next = value[0]
	} else {
		pk := t.Column(t.PrimaryKey[0])
		if pk == nil {
			return &SchemaError{Table: t.Name, Msg: "primary key column is missing"}
		}
		v, found, err := s.conn.CreateCommand("SELECT MAX(" + pk.RawName + ") FROM " + t.RawName).queryScalarDirect(ctx)
		if err != nil {
			return err
		}
		if found && v != nil {
			max, _ := schema.Typecast(schema.TypeInteger, false, v).(int64)
			next = max + 1
		}
	}
	if err := s.conn.Open(ctx); err != nil {
		return err
	}
	return s.dialect.ResetSequence(ctx, s.conn, t, next)
}

// CheckIntegrity enables or disables foreign-key integrity checks for the
// given schema.
func (s *Schema) CheckIntegrity(ctx context.Context, check bool, schemaName string) error {
	if err := s.conn.Open(ctx); err != nil {
		return err
	}
	return s.dialect.CheckIntegrity(ctx, s.conn, check, schemaName)
}

// quoteString quotes s with the dialect's native quoting, or with the
// fallback escaping when the dialect has none.
func (s *Schema) quoteString(str string) string {
	if q, ok := s.dialect.QuoteString(str); ok {
		return q
	}
	return fallbackQuote(str)
}

// QuoteValue renders v as an SQL literal for this schema's dialect.
func (s *Schema) QuoteValue(v any) string {
	return formatValue(v, s.quoteString)
}

// splitSchemaName splits "schema.table" into its parts.
func splitSchemaName(name string) (string, string) {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}
