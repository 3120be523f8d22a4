package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"
	"modernc.org/sqlite"

	"github.com/syssam/sqlkit/dialect"
	"github.com/syssam/sqlkit/internal/logger"
)

// TxOptions holds the transaction options to be used in Conn.BeginTx.
type TxOptions = sql.TxOptions

// ExecQuerier wraps the standard Exec and Query methods. Both *sql.Conn and
// *sql.Tx implement it.
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Config holds the serializable settings of a connection.
type Config struct {
	// DSN is "<driver>:<driver specific part>", e.g.
	// "mysql:host=localhost;dbname=app" or "sqlite::memory:".
	DSN      string `yaml:"dsn" msgpack:"dsn"`
	Username string `yaml:"username" msgpack:"username"`
	Password string `yaml:"password" msgpack:"password"`
	// DriverName overrides the driver taken from the DSN prefix.
	DriverName string `yaml:"driver_name" msgpack:"driver_name"`
	// Charset is selected with SET NAMES on MySQL and PostgreSQL.
	Charset string `yaml:"charset" msgpack:"charset"`
	// InitSQLs run once after every successful open.
	InitSQLs    []string `yaml:"init_sqls" msgpack:"init_sqls"`
	TablePrefix string   `yaml:"table_prefix" msgpack:"table_prefix"`
	// Debug makes connection errors carry the driver error.
	Debug bool `yaml:"debug" msgpack:"debug"`
	// AutoConnect opens the connection when it is loaded from a config file.
	AutoConnect bool `yaml:"auto_connect" msgpack:"auto_connect"`

	SchemaCachingDuration time.Duration `yaml:"schema_caching_duration" msgpack:"schema_caching_duration"`
	SchemaCachingExclude  []string      `yaml:"schema_caching_exclude" msgpack:"schema_caching_exclude"`

	QueryCachingDuration   time.Duration `yaml:"query_caching_duration" msgpack:"query_caching_duration"`
	QueryCachingDependency string        `yaml:"query_caching_dependency" msgpack:"query_caching_dependency"`
	QueryCachingCount      int           `yaml:"query_caching_count" msgpack:"query_caching_count"`

	// Timeout bounds every statement when positive.
	Timeout time.Duration `yaml:"timeout" msgpack:"timeout"`
	// ColumnCase is "natural", "lower" or "upper".
	ColumnCase string `yaml:"column_case" msgpack:"column_case"`
	// NullConversion is "natural", "empty_string" or "to_string".
	NullConversion string `yaml:"null_conversion" msgpack:"null_conversion"`

	EnableParamLogging bool          `yaml:"enable_param_logging" msgpack:"enable_param_logging"`
	SlowQueryThreshold time.Duration `yaml:"slow_query_threshold" msgpack:"slow_query_threshold"`
}

// Option configures a Conn.
type Option func(*Conn)

// WithLogger sets the logger of the connection.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Conn) {
		c.log = l
	}
}

// WithQueryCache sets the cache storing query results.
func WithQueryCache(cache Cache) Option {
	return func(c *Conn) {
		c.queryCache = cache
	}
}

// WithSchemaCache sets the cache shared by schemas for table metadata.
func WithSchemaCache(cache Cache) Option {
	return func(c *Conn) {
		c.schemaCache = cache
	}
}

// WithDialect registers a dialect for the given driver name on this
// connection only.
func WithDialect(driver string, f DialectFunc) Option {
	return func(c *Conn) {
		if c.dialects == nil {
			c.dialects = make(map[string]DialectFunc)
		}
		c.dialects[dialect.Normalize(driver)] = f
	}
}

// WithSlowQueryHook sets the callback invoked for statements slower than
// the configured slow query threshold.
func WithSlowQueryHook(hook SlowQueryHook) Option {
	return func(c *Conn) {
		c.slowHook = hook
	}
}

// WithDB makes the connection use db instead of opening one from the DSN.
// The connection does not close db.
func WithDB(db *sql.DB) Option {
	return func(c *Conn) {
		c.db = db
	}
}

// Conn is a lazily opened database connection.
//
// A Conn pins a single native connection once opened, so that session state
// such as the selected character set, the statements of InitSQLs, the last
// inserted id and the current transaction belong to one server session.
// A Conn must not be used by several goroutines at the same time.
type Conn struct {
	cfg         Config
	attrs       map[Attr]any
	log         logrus.FieldLogger
	queryCache  Cache
	schemaCache Cache
	dialects    map[string]DialectFunc
	slowHook    SlowQueryHook
	stats       *QueryStats
	clock       func() time.Time

	db         *sql.DB
	ownsDB     bool
	native     *sql.Conn
	schema     *Schema
	tx         *Tx
	superseded []*Tx
}

// NewConn returns a closed connection for the given DSN and credentials.
func NewConn(dsn, username, password string, opts ...Option) *Conn {
	return NewConnFromConfig(Config{DSN: dsn, Username: username, Password: password}, opts...)
}

// NewConnFromConfig returns a closed connection for cfg.
func NewConnFromConfig(cfg Config, opts ...Option) *Conn {
	c := &Conn{}
	c.init(cfg)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OpenDB returns a connection using an already opened database handle. The
// driver name selects the dialect.
//
//	db, mock, _ := sqlmock.New()
//	conn := sql.OpenDB(dialect.MySQL, db)
func OpenDB(driverName string, db *sql.DB, opts ...Option) *Conn {
	opts = append([]Option{WithDB(db)}, opts...)
	return NewConnFromConfig(Config{DSN: driverName + ":", DriverName: driverName}, opts...)
}

func (c *Conn) init(cfg Config) {
	c.cfg = cfg
	c.log = logger.Discard()
	c.stats = &QueryStats{}
	c.clock = time.Now
	c.attrs = map[Attr]any{
		AttrTimeout:        cfg.Timeout,
		AttrCase:           parseColumnCase(cfg.ColumnCase),
		AttrNullConversion: parseNullConversion(cfg.NullConversion),
	}
}

// Config returns a copy of the connection settings.
func (c *Conn) Config() Config { return c.cfg }

// Active reports whether the connection is open.
func (c *Conn) Active() bool { return c.native != nil }

// SetActive opens or closes the connection.
func (c *Conn) SetActive(ctx context.Context, active bool) error {
	if active {
		return c.Open(ctx)
	}
	return c.Close()
}

// Open opens the connection. Opening an open connection does nothing.
func (c *Conn) Open(ctx context.Context) error {
	if c.native != nil {
		return nil
	}
	if c.cfg.DSN == "" && c.db == nil {
		return &ConfigurationError{Msg: "connection DSN cannot be empty"}
	}
	c.log.WithField("dsn", redactDSN(c.cfg.DSN)).Debug("opening DB connection")
	if err := c.open(ctx); err != nil {
		code := driverErrorCode(err)
		if !c.cfg.Debug {
			c.log.WithError(err).WithFields(logrus.Fields{
				"driver": c.DriverName(),
				"code":   code,
			}).Error("failed to open the DB connection")
		}
		return &ConnectionError{Driver: c.DriverName(), Code: code, Err: err, Verbose: c.cfg.Debug}
	}
	return nil
}

func (c *Conn) open(ctx context.Context) error {
	if c.db == nil {
		dsn, err := ParseDSN(c.cfg.DSN)
		if err != nil {
			return err
		}
		name, source, err := dsn.NativeSource(c.cfg.Username, c.cfg.Password)
		if err != nil {
			return err
		}
		db, err := sql.Open(name, source)
		if err != nil {
			return err
		}
		c.db, c.ownsDB = db, true
	}
	native, err := c.db.Conn(ctx)
	if err != nil {
		c.closeDB()
		return err
	}
	if err := c.initSession(ctx, native); err != nil {
		_ = native.Close()
		c.closeDB()
		return err
	}
	c.native = native
	return nil
}

// initSession selects the character set and runs InitSQLs on a newly opened
// native connection.
func (c *Conn) initSession(ctx context.Context, native *sql.Conn) error {
	var stmts []string
	if c.cfg.Charset != "" {
		if s, err := c.Schema(); err == nil {
			if q := s.dialect.CharsetSQL(c.cfg.Charset); q != "" {
				stmts = append(stmts, q)
			}
		}
	}
	stmts = append(stmts, c.cfg.InitSQLs...)
	for _, q := range stmts {
		if _, err := native.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (c *Conn) closeDB() {
	if c.db != nil && c.ownsDB {
		_ = c.db.Close()
		c.db, c.ownsDB = nil, false
	}
}

// Close closes the connection. It fails if a transaction is active, and
// does nothing on a closed connection. Cached schema metadata is dropped.
func (c *Conn) Close() error {
	if c.CurrentTransaction() != nil {
		return &TxStateError{Op: "close", Msg: "connection has an active transaction"}
	}
	var err error
	for _, tx := range c.superseded {
		tx.state = TxRolledBack
		if rerr := tx.tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
			err = errors.Join(err, rerr)
		}
	}
	c.superseded, c.tx = nil, nil
	if c.native != nil {
		c.log.Debug("closing DB connection")
		err = errors.Join(err, c.native.Close())
		c.native = nil
	}
	if c.ownsDB {
		err = errors.Join(err, c.db.Close())
		c.db, c.ownsDB = nil, false
	}
	c.schema = nil
	return err
}

// DriverName returns the normalized driver name of the connection: the
// configured override, else the DSN prefix, else the name of the native
// driver.
func (c *Conn) DriverName() string {
	if c.cfg.DriverName != "" {
		return dialect.Normalize(c.cfg.DriverName)
	}
	if pos := strings.IndexByte(c.cfg.DSN, ':'); pos > 0 {
		return dialect.Normalize(c.cfg.DSN[:pos])
	}
	if c.db != nil {
		switch c.db.Driver().(type) {
		case *mysql.MySQLDriver:
			return dialect.MySQL
		case *pq.Driver:
			return "pgsql"
		case *sqlite.Driver:
			return dialect.SQLite
		}
	}
	return ""
}

// Schema returns the schema introspector of the connection's dialect.
func (c *Conn) Schema() (*Schema, error) {
	if c.schema != nil {
		return c.schema, nil
	}
	driver := c.DriverName()
	f, ok := c.dialects[driver]
	if !ok {
		f, ok = lookupDialect(driver)
	}
	if !ok {
		return nil, &ConfigurationError{Msg: fmt.Sprintf("no dialect is registered for the %q driver", driver)}
	}
	c.schema = newSchema(c, f())
	return c.schema, nil
}

// CommandBuilder returns the command builder of the connection's schema.
func (c *Conn) CommandBuilder() (*CommandBuilder, error) {
	s, err := c.Schema()
	if err != nil {
		return nil, err
	}
	return s.builder, nil
}

// BeginTx starts a transaction. A transaction that is still active becomes
// superseded: it is no longer the current transaction and is rolled back
// when the connection closes.
func (c *Conn) BeginTx(ctx context.Context, opts *TxOptions) (*Tx, error) {
	if err := c.Open(ctx); err != nil {
		return nil, err
	}
	native, err := c.native.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: begin transaction: %w", err)
	}
	if c.tx != nil && c.tx.state == TxActive {
		c.superseded = append(c.superseded, c.tx)
	}
	c.tx = newTx(c, native)
	c.log.WithField("tx", c.tx.ID()).Debug("transaction started")
	return c.tx, nil
}

// CurrentTransaction returns the active transaction, or nil.
func (c *Conn) CurrentTransaction() *Tx {
	if c.tx != nil && c.tx.state == TxActive {
		return c.tx
	}
	return nil
}

// execer returns the transaction of the connection when one is active, and
// the pinned native connection otherwise.
func (c *Conn) execer() ExecQuerier {
	if tx := c.CurrentTransaction(); tx != nil {
		return tx.tx
	}
	return c.native
}

// CreateCommand returns a command for query. "{{name}}" tokens in the
// query are replaced with the table prefix followed by name.
func (c *Conn) CreateCommand(query string) *Command {
	return &Command{conn: c, text: c.expandPrefix(query)}
}

// QuoteValue renders v as an SQL literal. The native quoting of the dialect
// is used when the driver has one, and the fallback escaping otherwise.
// Numbers are not quoted.
func (c *Conn) QuoteValue(v any) string {
	if s, err := c.Schema(); err == nil {
		return s.QuoteValue(v)
	}
	return formatValue(v, fallbackQuote)
}

// QuoteTableName quotes a possibly schema-prefixed table name.
func (c *Conn) QuoteTableName(name string) (string, error) {
	s, err := c.Schema()
	if err != nil {
		return "", err
	}
	return s.QuoteTableName(name), nil
}

// QuoteColumnName quotes a possibly table-prefixed column name.
func (c *Conn) QuoteColumnName(name string) (string, error) {
	s, err := c.Schema()
	if err != nil {
		return "", err
	}
	return s.QuoteColumnName(name), nil
}

// LastInsertID returns the last generated key of the session. On
// PostgreSQL, sequenceName selects the sequence; it is ignored elsewhere.
func (c *Conn) LastInsertID(ctx context.Context, sequenceName string) (int64, error) {
	if err := c.Open(ctx); err != nil {
		return 0, err
	}
	s, err := c.Schema()
	if err != nil {
		return 0, err
	}
	return s.dialect.LastInsertID(ctx, c, sequenceName)
}

// Cache sets the query caching policy for the following queries: at most
// count queries are cached for duration, under the given dependency tag.
// A zero duration or count disables query caching.
func (c *Conn) Cache(duration time.Duration, dependency string, count int) *Conn {
	c.cfg.QueryCachingDuration = duration
	c.cfg.QueryCachingDependency = dependency
	c.cfg.QueryCachingCount = count
	return c
}

// Stats returns a snapshot of the statement statistics of the connection.
func (c *Conn) Stats() StatsSnapshot { return c.stats.Stats() }

// QueryStats returns the live statement statistics of the connection.
func (c *Conn) QueryStats() *QueryStats { return c.stats }

// MarshalBinary closes the connection and encodes its settings. Only the
// settings survive; the connection reopens lazily after decoding.
func (c *Conn) MarshalBinary() ([]byte, error) {
	if c.CurrentTransaction() != nil {
		return nil, &TxStateError{Op: "serialize", Msg: "connection has an active transaction"}
	}
	if err := c.Close(); err != nil {
		return nil, err
	}
	return msgpack.Marshal(&c.cfg)
}

// UnmarshalBinary restores a connection encoded by MarshalBinary. The
// connection is left closed.
func (c *Conn) UnmarshalBinary(data []byte) error {
	var cfg Config
	if err := msgpack.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("dialect/sql: decode connection: %w", err)
	}
	log, queryCache, schemaCache := c.log, c.queryCache, c.schemaCache
	c.init(cfg)
	if log != nil {
		c.log = log
	}
	c.queryCache, c.schemaCache = queryCache, schemaCache
	return nil
}

// withTimeout applies the timeout attribute to ctx.
func (c *Conn) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d, _ := c.attrs[AttrTimeout].(time.Duration); d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return ctx, func() {}
}

// placeholder returns the placeholder style of the connection's dialect.
func (c *Conn) placeholder() PlaceholderStyle {
	if s, err := c.Schema(); err == nil {
		return s.dialect.Placeholder()
	}
	return Question
}
