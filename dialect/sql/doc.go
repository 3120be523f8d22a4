// Package sql is a database access layer over database/sql for MySQL,
// PostgreSQL and SQLite.
//
// # Connections
//
// A Conn is configured with a DSN of the form "<driver>:<params>" and opens
// lazily. Once open it pins a single native connection, so that session
// state survives between statements:
//
//	conn := sql.NewConn("mysql:host=localhost;dbname=app", "app", "secret",
//		sql.WithLogger(logrus.StandardLogger()),
//	)
//	defer conn.Close()
//
// # Commands
//
// Commands accept named (":id") or positional ("?") placeholders and rewrite
// them to the native form of the driver:
//
//	row, err := conn.CreateCommand("SELECT * FROM posts WHERE id=:id").
//		Bind("id", 1).
//		QueryRow(ctx)
//
// Query results can be cached with Conn.Cache when a Cache is configured
// with WithQueryCache.
//
// # Schema and builder
//
// Schema reads table metadata through a per-driver Dialect and caches it.
// CommandBuilder combines that metadata with a Criteria to build SELECT,
// COUNT, INSERT, UPDATE and DELETE commands:
//
//	b, _ := conn.CommandBuilder()
//	posts, _ := b.Schema().Table(ctx, "posts")
//	cmd := b.CreateFindCommand(posts, &sql.Criteria{Condition: "author_id=:a", Params: map[string]any{":a": 2}})
//	rows, err := cmd.QueryAll(ctx)
//
// Additional drivers are supported by registering a Dialect with
// RegisterDialect.
package sql
