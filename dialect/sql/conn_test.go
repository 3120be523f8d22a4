package sql

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/sqlkit/dialect"
)

// newMock returns a connection backed by sqlmock with exact query matching.
func newMock(t *testing.T, cfg Config, opts ...Option) (*Conn, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	if cfg.DSN == "" {
		cfg.DSN = cfg.DriverName + ":"
	}
	return NewConnFromConfig(cfg, append([]Option{WithDB(db)}, opts...)...), mock
}

func TestConnOpenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	c, mock := newMock(t, Config{
		DriverName: dialect.MySQL,
		Charset:    "utf8mb4",
		InitSQLs:   []string{"SET time_zone = '+00:00'", "SET sql_mode = 'STRICT_ALL_TABLES'"},
	})
	mock.ExpectExec("SET NAMES 'utf8mb4'").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SET time_zone = '+00:00'").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SET sql_mode = 'STRICT_ALL_TABLES'").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, c.Open(ctx))
	require.NoError(t, c.Open(ctx))
	require.NoError(t, c.SetActive(ctx, true))
	assert.True(t, c.Active())
	require.NoError(t, mock.ExpectationsWereMet())

	require.NoError(t, c.SetActive(ctx, false))
	assert.False(t, c.Active())
}

func TestConnOpenSQLiteSkipsCharset(t *testing.T) {
	ctx := context.Background()
	c, mock := newMock(t, Config{DriverName: dialect.SQLite, Charset: "utf8"})
	require.NoError(t, c.Open(ctx))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConnOpenEmptyDSN(t *testing.T) {
	err := NewConn("", "", "").Open(context.Background())
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
}

func TestConnOpenFailure(t *testing.T) {
	ctx := context.Background()
	log, hook := test.NewNullLogger()

	c := NewConn("sqlite:", "", "", WithLogger(log))
	err := c.Open(ctx)
	require.Error(t, err)
	assert.True(t, IsConnectionError(err))
	assert.Equal(t, "dialect/sql: failed to open the DB connection", err.Error())
	assert.Nil(t, errors.Unwrap(err))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Contains(t, hook.LastEntry().Data[logrus.ErrorKey].(error).Error(), "database path")
	assert.False(t, c.Active())

	hook.Reset()
	c = NewConnFromConfig(Config{DSN: "sqlite:", Debug: true}, WithLogger(log))
	err = c.Open(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database path")
	assert.True(t, IsConfigurationError(err))
	assert.Nil(t, hook.LastEntry())
}

func TestConnOpenInitFailure(t *testing.T) {
	ctx := context.Background()
	c, mock := newMock(t, Config{DriverName: dialect.MySQL, InitSQLs: []string{"SET bogus=1"}, Debug: true})
	mock.ExpectExec("SET bogus=1").WillReturnError(errors.New("unknown system variable 'bogus'"))
	err := c.Open(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown system variable")
	assert.False(t, c.Active())
}

func TestConnDriverName(t *testing.T) {
	assert.Equal(t, "pgsql", NewConn("PgSQL:host=localhost", "", "").DriverName())
	assert.Equal(t, "mysql", NewConnFromConfig(Config{DSN: "mysqli:host=x", DriverName: "MySQL"}).DriverName())

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	assert.Equal(t, dialect.SQLite, NewConnFromConfig(Config{}, WithDB(db)).DriverName())
}

func TestConnSchemaUnknownDriver(t *testing.T) {
	c := NewConn("oci:dbname=xe", "", "")
	_, err := c.Schema()
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
	assert.Contains(t, err.Error(), `"oci"`)

	_, err = c.CommandBuilder()
	assert.True(t, IsConfigurationError(err))
}

func TestConnRegisteredDialect(t *testing.T) {
	c := NewConn("cubrid:host=localhost", "", "", WithDialect("cubrid", func() Dialect { return &mysqlDialect{} }))
	s, err := c.Schema()
	require.NoError(t, err)
	assert.Equal(t, dialect.MySQL, s.Dialect().Name())

	q, err := c.QuoteTableName("db.posts")
	require.NoError(t, err)
	assert.Equal(t, "`db`.`posts`", q)
	q, err = c.QuoteColumnName("t.title")
	require.NoError(t, err)
	assert.Equal(t, "`t`.`title`", q)
}

func TestDialectRegistry(t *testing.T) {
	names := Dialects()
	for _, alias := range dialect.Aliases() {
		assert.Contains(t, names, alias)
	}
	RegisterDialect("Informix", func() Dialect { return &postgresDialect{} })
	f, ok := lookupDialect("informix")
	require.True(t, ok)
	assert.Equal(t, dialect.Postgres, f().Name())
}

func TestConnCloseWithActiveTx(t *testing.T) {
	ctx := context.Background()
	c, mock := newMock(t, Config{DriverName: dialect.MySQL})
	mock.ExpectBegin()
	tx, err := c.BeginTx(ctx, nil)
	require.NoError(t, err)
	assert.Same(t, tx, c.CurrentTransaction())

	err = c.Close()
	require.Error(t, err)
	assert.True(t, IsTxStateError(err))
	assert.True(t, c.Active())

	mock.ExpectRollback()
	require.NoError(t, tx.Rollback())
	assert.Equal(t, TxRolledBack, tx.State())
	require.NoError(t, c.Close())
	assert.False(t, c.Active())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConnBeginTxSupersedes(t *testing.T) {
	ctx := context.Background()
	c, mock := newMock(t, Config{DriverName: dialect.MySQL})
	mock.ExpectBegin()
	mock.ExpectBegin()
	first, err := c.BeginTx(ctx, nil)
	require.NoError(t, err)
	second, err := c.BeginTx(ctx, nil)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID(), second.ID())

	assert.False(t, first.Active())
	assert.True(t, second.Active())
	assert.Same(t, second, c.CurrentTransaction())
	assert.True(t, IsTxStateError(first.Commit()))

	mock.ExpectCommit()
	require.NoError(t, second.Commit())
	assert.Equal(t, TxCommitted, second.State())
	assert.Nil(t, c.CurrentTransaction())
	assert.True(t, IsTxStateError(second.Rollback()))

	// The superseded transaction is rolled back when the connection closes.
	mock.ExpectRollback()
	require.NoError(t, c.Close())
	assert.Equal(t, TxRolledBack, first.State())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTxCommandsRunInTransaction(t *testing.T) {
	ctx := context.Background()
	c, mock := newMock(t, Config{DriverName: dialect.Postgres})
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE posts SET views=views+1 WHERE id=$1").
		WithArgs(3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := c.BeginTx(ctx, &TxOptions{})
	require.NoError(t, err)
	n, err := c.CreateCommand("UPDATE posts SET views=views+1 WHERE id=:id").Bind("id", 3).Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConnMarshalBinary(t *testing.T) {
	ctx := context.Background()
	c := NewConnFromConfig(Config{
		DSN:                   "sqlite::memory:",
		TablePrefix:           "tbl_",
		InitSQLs:              []string{"PRAGMA foreign_keys=ON"},
		SchemaCachingDuration: time.Minute,
		ColumnCase:            "upper",
	})
	require.NoError(t, c.Open(ctx))

	tx, err := c.BeginTx(ctx, nil)
	require.NoError(t, err)
	_, err = c.MarshalBinary()
	assert.True(t, IsTxStateError(err))
	require.NoError(t, tx.Rollback())

	b, err := c.MarshalBinary()
	require.NoError(t, err)
	assert.False(t, c.Active())

	var restored Conn
	require.NoError(t, restored.UnmarshalBinary(b))
	assert.Equal(t, c.Config(), restored.Config())
	assert.False(t, restored.Active())
	cc, err := restored.Attribute(ctx, AttrCase)
	require.NoError(t, err)
	assert.Equal(t, CaseUpper, cc)

	require.NoError(t, restored.Open(ctx))
	require.NoError(t, restored.Close())
}

func TestConnAttributes(t *testing.T) {
	ctx := context.Background()
	c := NewConn("mysql:host=localhost", "", "")

	require.NoError(t, c.SetAttribute(AttrTimeout, 2*time.Second))
	v, err := c.Attribute(ctx, AttrTimeout)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, v)

	require.NoError(t, c.SetAttribute(AttrNullConversion, NullToString))
	assert.Equal(t, NullToString, c.nullConversion())

	assert.True(t, IsConfigurationError(c.SetAttribute(AttrTimeout, 5)))
	assert.True(t, IsConfigurationError(c.SetAttribute(AttrDriverName, "pgsql")))
	assert.True(t, IsConfigurationError(c.SetAttribute("bogus", 1)))

	v, err = c.Attribute(ctx, AttrDriverName)
	require.NoError(t, err)
	assert.Equal(t, "mysql", v)
	_, err = c.Attribute(ctx, "bogus")
	assert.True(t, IsConfigurationError(err))

	assert.True(t, IsConfigurationError(c.SetAttribute(AttrClientVersion, "v1")))
	v, err = c.Attribute(ctx, AttrClientVersion)
	require.NoError(t, err)
	assert.IsType(t, "", v)
	assert.False(t, c.Active())
	assert.Empty(t, moduleVersion("example.com/not/linked"))

	_, err = NewConn("oracle:host=localhost", "", "").ClientVersion()
	assert.True(t, IsConfigurationError(err))
}

func TestConnServerVersion(t *testing.T) {
	ctx := context.Background()
	c, mock := newMock(t, Config{DriverName: dialect.MySQL})
	mock.ExpectQuery("SELECT VERSION()").WillReturnRows(sqlmock.NewRows([]string{"VERSION()"}).AddRow("8.0.36"))
	v, err := c.Attribute(ctx, AttrServerVersion)
	require.NoError(t, err)
	assert.Equal(t, "8.0.36", v)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConnTimeout(t *testing.T) {
	ctx := context.Background()
	c, mock := newMock(t, Config{DriverName: dialect.MySQL, Timeout: 10 * time.Millisecond})
	mock.ExpectExec("DO SLEEP(1)").WillDelayFor(time.Second).WillReturnResult(sqlmock.NewResult(0, 0))
	_, err := c.CreateCommand("DO SLEEP(1)").Execute(ctx)
	require.Error(t, err)
	assert.True(t, IsQueryError(err))
	assert.Contains(t, err.Error(), "DO SLEEP(1)")
}
