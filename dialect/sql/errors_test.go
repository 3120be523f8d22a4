package sql

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestConnectionError(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.1:3306: connection refused")

	quiet := &ConnectionError{Driver: "mysql", Code: "2002", Err: cause}
	assert.Equal(t, "dialect/sql: failed to open the DB connection", quiet.Error())
	assert.Nil(t, errors.Unwrap(quiet))
	assert.True(t, IsConnectionError(quiet))
	assert.False(t, errors.Is(quiet, cause))

	verbose := &ConnectionError{Driver: "mysql", Code: "2002", Err: cause, Verbose: true}
	assert.Contains(t, verbose.Error(), "connection refused")
	assert.Contains(t, verbose.Error(), "code 2002")
	assert.True(t, errors.Is(verbose, cause))
}

func TestQueryError(t *testing.T) {
	cause := errors.New("syntax error")
	err := fmt.Errorf("wrapped: %w", &QueryError{SQL: "SELEC 1", Err: cause})
	assert.True(t, IsQueryError(err))
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "The SQL statement executed was: SELEC 1")

	var qe *QueryError
	assert.True(t, errors.As(err, &qe))
	assert.Equal(t, "SELEC 1", qe.SQL)
}

func TestErrorKinds(t *testing.T) {
	assert.True(t, IsConfigurationError(&ConfigurationError{Msg: "x"}))
	assert.True(t, IsSchemaError(&SchemaError{Table: "posts", Msg: "table has no primary key"}))
	assert.True(t, IsTxStateError(&TxStateError{Op: "commit", Msg: "inactive"}))
	assert.True(t, IsColumnMismatchError(&ColumnMismatchError{Table: "posts", Columns: []string{"bogus"}}))
	assert.False(t, IsSchemaError(&ConfigurationError{Msg: "x"}))

	assert.Equal(t, `dialect/sql: table "posts" does not have column(s) a, b`,
		(&ColumnMismatchError{Table: "posts", Columns: []string{"a", "b"}}).Error())
	assert.Equal(t, `dialect/sql: table "posts": table has no primary key`,
		(&SchemaError{Table: "posts", Msg: "table has no primary key"}).Error())
}

func TestConstraintErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		unique     bool
		foreignKey bool
		check      bool
	}{
		{name: "mysql duplicate", err: &mysql.MySQLError{Number: 1062}, unique: true},
		{name: "mysql fk", err: &mysql.MySQLError{Number: 1452}, foreignKey: true},
		{name: "mysql check", err: &mysql.MySQLError{Number: 3819}, check: true},
		{name: "pq unique", err: &pq.Error{Code: "23505"}, unique: true},
		{name: "pq fk", err: &pq.Error{Code: "23503"}, foreignKey: true},
		{name: "sqlite text", err: errors.New("constraint failed: UNIQUE constraint failed: posts.id"), unique: true},
		{name: "wrapped", err: &QueryError{SQL: "INSERT", Err: &pq.Error{Code: "23514"}}, check: true},
		{name: "other", err: errors.New("boom")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.unique, IsUniqueConstraintError(tt.err))
			assert.Equal(t, tt.foreignKey, IsForeignKeyConstraintError(tt.err))
			assert.Equal(t, tt.check, IsCheckConstraintError(tt.err))
			assert.Equal(t, tt.unique || tt.foreignKey || tt.check, IsConstraintError(tt.err))
		})
	}
	assert.False(t, IsConstraintError(nil))
}

func TestDriverErrorCode(t *testing.T) {
	assert.Equal(t, "1146", driverErrorCode(&mysql.MySQLError{Number: 1146}))
	assert.Equal(t, "42P01", driverErrorCode(&pq.Error{Code: "42P01"}))
	assert.Equal(t, "", driverErrorCode(errors.New("x")))
	assert.True(t, isNoSuchTable(&QueryError{Err: &mysql.MySQLError{Number: 1146}}))
	assert.True(t, isNoSuchTable(errors.New("SQL logic error: no such table: sqlite_sequence (1)")))
}
