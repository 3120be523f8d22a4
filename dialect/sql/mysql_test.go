package sql

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/sqlkit/dialect"
	"github.com/syssam/sqlkit/dialect/sql/schema"
)

const mysqlPostsDDL = "CREATE TABLE `posts` (\n" +
	"  `id` int unsigned NOT NULL AUTO_INCREMENT,\n" +
	"  `title` varchar(128) NOT NULL COMMENT 'Post title',\n" +
	"  `author_id` int NOT NULL,\n" +
	"  PRIMARY KEY (`id`),\n" +
	"  KEY `fk_author` (`author_id`),\n" +
	"  CONSTRAINT `fk_author` FOREIGN KEY (`author_id`) REFERENCES `users` (`id`)\n" +
	") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4"

func mysqlColumns() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"Field", "Type", "Collation", "Null", "Key", "Default", "Extra", "Privileges", "Comment"}).
		AddRow("id", "int unsigned", nil, "NO", "PRI", nil, "auto_increment", "select,insert", "").
		AddRow("title", "varchar(128)", "utf8mb4_general_ci", "NO", "", nil, "", "select,insert", "Post title").
		AddRow("author_id", "int", nil, "NO", "MUL", nil, "", "select,insert", "").
		AddRow("created_at", "timestamp", nil, "NO", "", "CURRENT_TIMESTAMP", "DEFAULT_GENERATED", "select,insert", "").
		AddRow("published", "tinyint(1)", nil, "NO", "", "0", "", "select,insert", "").
		AddRow("score", "decimal(5,2)", nil, "YES", "", "1.50", "", "select,insert", "")
}

func TestMySQLLoadTable(t *testing.T) {
	ctx := context.Background()
	c, mock := newMock(t, Config{DriverName: dialect.MySQL})
	mock.ExpectQuery("SHOW FULL COLUMNS FROM `posts`").WillReturnRows(mysqlColumns())
	mock.ExpectQuery("SHOW CREATE TABLE `posts`").
		WillReturnRows(sqlmock.NewRows([]string{"Table", "Create Table"}).AddRow("posts", mysqlPostsDDL))

	s, err := c.Schema()
	require.NoError(t, err)
	posts, err := s.Table(ctx, "posts")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, "`posts`", posts.RawName)
	assert.Equal(t, []string{"id", "title", "author_id", "created_at", "published", "score"}, posts.ColumnNames())
	assert.Equal(t, []string{"id"}, posts.PrimaryKey)
	assert.True(t, posts.HasSequence)
	assert.Empty(t, posts.SequenceName)

	id := posts.Column("id")
	assert.Equal(t, schema.TypeInteger, id.Type)
	assert.True(t, id.AutoIncrement)
	assert.True(t, id.IsPrimaryKey)
	assert.False(t, id.AllowNull)

	title := posts.Column("title")
	assert.Equal(t, 128, title.Size)
	assert.Equal(t, "Post title", title.Comment)

	assert.Nil(t, posts.Column("created_at").Default)
	assert.Equal(t, schema.TypeBoolean, posts.Column("published").Type)
	assert.Equal(t, false, posts.Column("published").Default)

	score := posts.Column("score")
	assert.Equal(t, schema.TypeDouble, score.Type)
	assert.Equal(t, 5, score.Precision)
	assert.Equal(t, 2, score.Scale)
	assert.Equal(t, 1.5, score.Default)
	assert.True(t, score.AllowNull)

	assert.Equal(t, map[string]schema.ForeignKey{"author_id": {Table: "users", Column: "id"}}, posts.ForeignKeys)
	assert.True(t, posts.Column("author_id").IsForeignKey)

	// Loaded tables are served from memory.
	again, err := s.Table(ctx, "posts")
	require.NoError(t, err)
	assert.Same(t, posts, again)
}

func TestMySQLMissingTable(t *testing.T) {
	c, mock := newMock(t, Config{DriverName: dialect.MySQL})
	mock.ExpectQuery("SHOW FULL COLUMNS FROM `app`.`missing`").
		WillReturnError(&mysql.MySQLError{Number: 1146, Message: "Table 'app.missing' doesn't exist"})

	s, err := c.Schema()
	require.NoError(t, err)
	table, err := s.Table(context.Background(), "app.missing")
	require.NoError(t, err)
	assert.Nil(t, table)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLTableNames(t *testing.T) {
	ctx := context.Background()
	c, mock := newMock(t, Config{DriverName: dialect.MySQL})
	mock.ExpectQuery("SHOW TABLES").
		WillReturnRows(sqlmock.NewRows([]string{"Tables_in_app"}).AddRow("posts").AddRow("users"))
	mock.ExpectQuery("SHOW TABLES FROM `archive`").
		WillReturnRows(sqlmock.NewRows([]string{"Tables_in_archive"}).AddRow("posts_2019"))

	s, err := c.Schema()
	require.NoError(t, err)
	names, err := s.TableNames(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"posts", "users"}, names)
	names, err = s.TableNames(ctx, "archive")
	require.NoError(t, err)
	assert.Equal(t, []string{"posts_2019"}, names)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLSequenceAndIntegrity(t *testing.T) {
	ctx := context.Background()
	c, mock := newMock(t, Config{DriverName: dialect.MySQL})
	s, err := c.Schema()
	require.NoError(t, err)
	posts := postsTable(s)

	mock.ExpectExec("ALTER TABLE `posts` AUTO_INCREMENT=10").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, s.ResetSequence(ctx, posts, 10))

	mock.ExpectQuery("SELECT MAX(`id`) FROM `posts`").
		WillReturnRows(sqlmock.NewRows([]string{"MAX(`id`)"}).AddRow(int64(41)))
	mock.ExpectExec("ALTER TABLE `posts` AUTO_INCREMENT=42").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, s.ResetSequence(ctx, posts))

	mock.ExpectExec("SET FOREIGN_KEY_CHECKS=0").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, s.CheckIntegrity(ctx, false, ""))
	mock.ExpectExec("SET FOREIGN_KEY_CHECKS=1").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, s.CheckIntegrity(ctx, true, ""))

	mock.ExpectQuery("SELECT LAST_INSERT_ID()").
		WillReturnRows(sqlmock.NewRows([]string{"LAST_INSERT_ID()"}).AddRow(int64(7)))
	id, err := s.CommandBuilder().LastInsertID(ctx, posts)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLCommand(t *testing.T) {
	ctx := context.Background()
	c, mock := newMock(t, Config{DriverName: dialect.MySQL})
	mock.ExpectQuery("SELECT id, title FROM `posts` `t` WHERE id=? ORDER BY title LIMIT 2").
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).AddRow(int64(5), []byte("hello")))

	b, err := c.CommandBuilder()
	require.NoError(t, err)
	rows, err := b.CreateFindCommand(postsTable(b.Schema()), &Criteria{
		Select:    "id, title",
		Condition: "id=:id",
		Params:    map[string]any{":id": 5},
		Order:     "title",
		Limit:     2,
	}).QueryAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Row{{"id": int64(5), "title": "hello"}}, rows)
	require.NoError(t, mock.ExpectationsWereMet())
}
