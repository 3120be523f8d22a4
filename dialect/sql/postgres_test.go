package sql

import (
	"context"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/sqlkit/dialect"
	"github.com/syssam/sqlkit/dialect/sql/schema"
)

// pgQuery renders a catalog query the way it reaches the driver.
func pgQuery(q string) string {
	return strings.NewReplacer(":schema", "$1", ":table", "$2").Replace(q)
}

func TestPostgresLoadTable(t *testing.T) {
	ctx := context.Background()
	c, mock := newMock(t, Config{DriverName: "pgsql"})
	mock.ExpectQuery(pgQuery(postgresColumnsQuery)).
		WithArgs("public", "posts").
		WillReturnRows(sqlmock.NewRows([]string{
			"column_name", "data_type", "is_nullable", "column_default",
			"character_maximum_length", "numeric_precision", "numeric_scale", "comment",
		}).
			AddRow("id", "integer", "NO", "nextval('posts_id_seq'::regclass)", nil, int64(32), int64(0), nil).
			AddRow("title", "character varying", "NO", nil, int64(128), nil, nil, "Post title").
			AddRow("author_id", "integer", "NO", nil, nil, int64(32), int64(0), nil).
			AddRow("price", "numeric", "YES", "9.99", nil, int64(10), int64(2), nil).
			AddRow("active", "boolean", "NO", "true", nil, nil, nil, nil).
			AddRow("status", "character varying", "YES", "'draft'::character varying", int64(16), nil, nil, nil).
			AddRow("created_at", "timestamp without time zone", "NO", "now()", nil, nil, nil, nil))
	mock.ExpectQuery(pgQuery(postgresPrimaryKeyQuery)).
		WithArgs("public", "posts").
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}).AddRow("id"))
	mock.ExpectQuery(pgQuery(postgresForeignKeyQuery)).
		WithArgs("public", "posts").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "foreign_table_schema", "foreign_table_name", "foreign_column_name"}).
			AddRow("author_id", "public", "users", "id"))

	s, err := c.Schema()
	require.NoError(t, err)
	posts, err := s.Table(ctx, "posts")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, "public", posts.SchemaName)
	assert.Equal(t, `"posts"`, posts.RawName)
	assert.Equal(t, []string{"id"}, posts.PrimaryKey)
	assert.Equal(t, "posts_id_seq", posts.SequenceName)
	assert.True(t, posts.HasSequence)
	assert.True(t, posts.Column("id").AutoIncrement)
	assert.True(t, posts.Column("id").IsPrimaryKey)
	assert.Nil(t, posts.Column("id").Default)

	title := posts.Column("title")
	assert.Equal(t, "character varying(128)", title.DBType)
	assert.Equal(t, 128, title.Size)
	assert.Equal(t, schema.TypeString, title.Type)
	assert.Equal(t, "Post title", title.Comment)

	price := posts.Column("price")
	assert.Equal(t, "numeric(10,2)", price.DBType)
	assert.Equal(t, schema.TypeDouble, price.Type)
	assert.Equal(t, 9.99, price.Default)
	assert.True(t, price.AllowNull)

	assert.Equal(t, true, posts.Column("active").Default)
	assert.Equal(t, schema.TypeBoolean, posts.Column("active").Type)
	assert.Equal(t, "draft", posts.Column("status").Default)
	assert.Nil(t, posts.Column("created_at").Default)

	assert.Equal(t, map[string]schema.ForeignKey{"author_id": {Table: "users", Column: "id"}}, posts.ForeignKeys)
	assert.True(t, posts.Column("author_id").IsForeignKey)
}

func TestPostgresMissingTable(t *testing.T) {
	c, mock := newMock(t, Config{DriverName: "pgsql"})
	mock.ExpectQuery(pgQuery(postgresColumnsQuery)).
		WithArgs("audit", "missing").
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}))

	s, err := c.Schema()
	require.NoError(t, err)
	table, err := s.Table(context.Background(), "audit.missing")
	require.NoError(t, err)
	assert.Nil(t, table)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDefaults(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"true", true},
		{"false", false},
		{"'it''s'::text", "it's"},
		{"42", "42"},
		{"(-1)", "-1"},
		{"1.5::numeric", "1.5"},
		{"now()", nil},
		{"CURRENT_TIMESTAMP", nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, postgresDefault(tt.in), tt.in)
	}
	assert.Equal(t, "integer", postgresDBType("integer", 0, 32, 0))
	assert.Equal(t, "character(3)", postgresDBType("character", 3, 0, 0))
	assert.Equal(t, "decimal(8,3)", postgresDBType("decimal", 0, 8, 3))
}

func TestPostgresSequences(t *testing.T) {
	ctx := context.Background()
	c, mock := newMock(t, Config{DriverName: "pgsql"})
	s, err := c.Schema()
	require.NoError(t, err)
	posts := postsTable(s)
	posts.SequenceName = "posts_id_seq"

	mock.ExpectQuery("SELECT SETVAL($1, $2, false)").
		WithArgs("posts_id_seq", 100).
		WillReturnRows(sqlmock.NewRows([]string{"setval"}).AddRow(int64(100)))
	require.NoError(t, s.ResetSequence(ctx, posts, 100))

	mock.ExpectQuery("SELECT CURRVAL($1)").
		WithArgs("posts_id_seq").
		WillReturnRows(sqlmock.NewRows([]string{"currval"}).AddRow(int64(12)))
	id, err := s.CommandBuilder().LastInsertID(ctx, posts)
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)

	mock.ExpectQuery("SELECT LASTVAL()").
		WillReturnRows(sqlmock.NewRows([]string{"lastval"}).AddRow(int64(13)))
	id, err = c.LastInsertID(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(13), id)

	// Without a sequence name there is nothing to reset.
	posts.SequenceName = ""
	require.NoError(t, s.ResetSequence(ctx, posts, 1))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCheckIntegrity(t *testing.T) {
	ctx := context.Background()
	c, mock := newMock(t, Config{DriverName: "pgsql"})
	mock.ExpectQuery(pgQuery(postgresTablesQuery)).
		WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("posts").AddRow("users"))
	mock.ExpectExec(`ALTER TABLE "posts" DISABLE TRIGGER ALL`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`ALTER TABLE "users" DISABLE TRIGGER ALL`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(pgQuery(postgresTablesQuery)).
		WithArgs("audit").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("events"))
	mock.ExpectExec(`ALTER TABLE "audit"."events" ENABLE TRIGGER ALL`).WillReturnResult(sqlmock.NewResult(0, 0))

	s, err := c.Schema()
	require.NoError(t, err)
	require.NoError(t, s.CheckIntegrity(ctx, false, ""))
	require.NoError(t, s.CheckIntegrity(ctx, true, "audit"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSessionAndCommands(t *testing.T) {
	ctx := context.Background()
	c, mock := newMock(t, Config{DriverName: "pgsql", Charset: "UTF8"})
	mock.ExpectExec("SET NAMES 'UTF8'").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT * FROM posts WHERE id=$1 OR parent_id=$1").
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectQuery("SHOW server_version").
		WillReturnRows(sqlmock.NewRows([]string{"server_version"}).AddRow("16.2"))

	ids, err := c.CreateCommand("SELECT * FROM posts WHERE id=:id OR parent_id=:id").Bind("id", 7).QueryColumn(ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(7)}, ids)

	v, err := c.ServerVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "16.2", v)
	require.NoError(t, mock.ExpectationsWereMet())

	s, err := c.Schema()
	require.NoError(t, err)
	assert.Equal(t, dialect.Postgres, s.Dialect().Name())
	q, err := c.QuoteTableName("audit.events")
	require.NoError(t, err)
	assert.Equal(t, `"audit"."events"`, q)
}
