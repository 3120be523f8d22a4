package sql

import (
	"context"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"
)

// fetchMode selects the shape of a query result.
type fetchMode int

const (
	fetchAll fetchMode = iota
	fetchRow
	fetchColumn
	fetchScalar
)

// Command is an SQL statement with its bound values. Named placeholders
// (":name") and positional placeholders ("?") are rewritten into the native
// syntax of the driver before execution, so the same statement text works
// on every dialect.
//
//	n, err := conn.CreateCommand("UPDATE posts SET title=:title WHERE id=:id").
//		Bind("title", "hello").
//		Bind("id", 1).
//		Execute(ctx)
type Command struct {
	conn   *Conn
	text   string
	params map[string]any
	args   []any
}

// Conn returns the connection of the command.
func (cmd *Command) Conn() *Conn { return cmd.conn }

// Text returns the statement text.
func (cmd *Command) Text() string { return cmd.text }

// SetText replaces the statement text. Bound values are kept.
func (cmd *Command) SetText(query string) *Command {
	cmd.text = cmd.conn.expandPrefix(query)
	return cmd
}

// Params returns a copy of the named values bound to the command.
func (cmd *Command) Params() map[string]any { return maps.Clone(cmd.params) }

// Args returns a copy of the positional values bound to the command.
func (cmd *Command) Args() []any { return slices.Clone(cmd.args) }

// Bind binds a value to a named placeholder. The name may be given with or
// without its leading colon.
func (cmd *Command) Bind(name string, v any) *Command {
	if cmd.params == nil {
		cmd.params = make(map[string]any)
	}
	cmd.params[paramName(name)] = v
	return cmd
}

// BindValues binds several named values.
func (cmd *Command) BindValues(values map[string]any) *Command {
	for k, v := range values {
		cmd.Bind(k, v)
	}
	return cmd
}

// BindArgs appends values for the "?" placeholders of the statement.
func (cmd *Command) BindArgs(args ...any) *Command {
	cmd.args = append(cmd.args, args...)
	return cmd
}

// String returns the statement text.
func (cmd *Command) String() string { return cmd.text }

// prepare rewrites the statement for the driver.
func (cmd *Command) prepare() (string, []any, error) {
	return bindParams(cmd.text, cmd.params, cmd.args, cmd.conn.placeholder())
}

// Execute runs a statement that returns no rows and reports the number of
// affected rows. Execute never uses the query cache.
func (cmd *Command) Execute(ctx context.Context) (int64, error) {
	c := cmd.conn
	if err := c.Open(ctx); err != nil {
		return 0, err
	}
	query, args, err := cmd.prepare()
	if err != nil {
		return 0, cmd.queryError(err)
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	cmd.logStatement("exec")
	start := time.Now()
	res, err := c.execer().ExecContext(ctx, query, args...)
	c.record(ctx, query, args, start, err, false)
	if err != nil {
		return 0, cmd.queryError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, cmd.queryError(err)
	}
	return n, nil
}

// Query runs the statement and returns a reader over its rows. Readers are
// never served from the query cache.
func (cmd *Command) Query(ctx context.Context) (*DataReader, error) {
	return cmd.reader(ctx, false)
}

// QueryAll runs the statement and returns all rows.
func (cmd *Command) QueryAll(ctx context.Context) ([]Row, error) {
	res, err := cmd.fetch(ctx, fetchAll, true)
	return res.Rows, err
}

// QueryRow runs the statement and returns its first row, or nil when the
// result is empty.
func (cmd *Command) QueryRow(ctx context.Context) (Row, error) {
	res, err := cmd.fetch(ctx, fetchRow, true)
	if err != nil || !res.Found {
		return nil, err
	}
	return res.Rows[0], nil
}

// QueryColumn runs the statement and returns the first column of every row.
func (cmd *Command) QueryColumn(ctx context.Context) ([]any, error) {
	res, err := cmd.fetch(ctx, fetchColumn, true)
	return res.Values, err
}

// QueryScalar runs the statement and returns the first column of the first
// row. It reports false when the result is empty.
func (cmd *Command) QueryScalar(ctx context.Context) (any, bool, error) {
	res, err := cmd.fetch(ctx, fetchScalar, true)
	if err != nil || !res.Found {
		return nil, false, err
	}
	return res.Values[0], true, nil
}

// queryScalarDirect is QueryScalar without the query cache.
func (cmd *Command) queryScalarDirect(ctx context.Context) (any, bool, error) {
	res, err := cmd.fetch(ctx, fetchScalar, false)
	if err != nil || !res.Found {
		return nil, false, err
	}
	return res.Values[0], true, nil
}

// cachePolicy returns the query cache to use for the next query, consuming
// one unit of the caching count.
func (cmd *Command) cachePolicy() (Cache, time.Duration, string, bool) {
	c := cmd.conn
	if c.queryCache == nil || c.cfg.QueryCachingDuration <= 0 || c.cfg.QueryCachingCount <= 0 {
		return nil, 0, "", false
	}
	c.cfg.QueryCachingCount--
	return c.queryCache, c.cfg.QueryCachingDuration, c.cfg.QueryCachingDependency, true
}

func (cmd *Command) fetch(ctx context.Context, mode fetchMode, cacheable bool) (cachedResult, error) {
	c := cmd.conn
	var (
		cache Cache
		ttl   time.Duration
		key   string
	)
	if cacheable {
		var (
			dep string
			ok  bool
		)
		if cache, ttl, dep, ok = cmd.cachePolicy(); ok {
			var err error
			if key, err = queryCacheKey(c.cfg, cmd.text, cmd.params, cmd.args, mode, dep); err != nil {
				cache = nil
			} else if res, hit := cmd.cached(ctx, cache, key); hit {
				return res, nil
			}
		}
	}
	r, err := cmd.reader(ctx, false)
	if err != nil {
		return cachedResult{}, err
	}
	res, err := readResult(r, mode)
	if err != nil {
		return cachedResult{}, cmd.queryError(err)
	}
	if cache != nil {
		if b, err := msgpack.Marshal(&res); err == nil {
			if err := cache.Set(ctx, key, b, ttl); err != nil {
				c.log.WithError(err).Warn("failed to cache query result")
			}
		}
	}
	return res, nil
}

func (cmd *Command) cached(ctx context.Context, cache Cache, key string) (cachedResult, bool) {
	var res cachedResult
	b, err := cache.Get(ctx, key)
	if err != nil || b == nil {
		return res, false
	}
	if err := unmarshalLoose(b, &res); err != nil {
		return res, false
	}
	cmd.conn.stats.CacheHits.Add(1)
	cmd.conn.log.WithField("sql", cmd.text).Debug("query result served from cache")
	return res, true
}

func readResult(r *DataReader, mode fetchMode) (cachedResult, error) {
	defer r.Close()
	var res cachedResult
	switch mode {
	case fetchAll:
		rows, err := r.ReadAll()
		if err != nil {
			return res, err
		}
		res.Rows, res.Found = rows, len(rows) > 0
	case fetchRow:
		if r.Next() {
			res.Rows, res.Found = []Row{r.Row()}, true
		}
	case fetchColumn:
		for r.Next() {
			res.Values = append(res.Values, r.Values()[0])
		}
		res.Found = len(res.Values) > 0
	case fetchScalar:
		if r.Next() {
			res.Values, res.Found = []any{r.Values()[0]}, true
		}
	}
	return res, r.Err()
}

// reader runs the statement as a query. Raw readers keep column names and
// values as the driver returns them.
func (cmd *Command) reader(ctx context.Context, raw bool) (*DataReader, error) {
	c := cmd.conn
	if err := c.Open(ctx); err != nil {
		return nil, err
	}
	query, args, err := cmd.prepare()
	if err != nil {
		return nil, cmd.queryError(err)
	}
	ctx, cancel := c.withTimeout(ctx)
	cmd.logStatement("query")
	start := time.Now()
	rows, err := c.execer().QueryContext(ctx, query, args...)
	c.record(ctx, query, args, start, err, true)
	if err != nil {
		cancel()
		return nil, cmd.queryError(err)
	}
	cc, nc := c.columnCase(), c.nullConversion()
	if raw {
		cc, nc = CaseNatural, NullNatural
	}
	r, err := newDataReader(rows, cancel, cc, nc)
	if err != nil {
		return nil, cmd.queryError(err)
	}
	return r, nil
}

func (cmd *Command) logStatement(op string) {
	entry := cmd.conn.log.WithFields(logrus.Fields{"op": op, "sql": cmd.text})
	if cmd.conn.cfg.EnableParamLogging && (len(cmd.params) > 0 || len(cmd.args) > 0) {
		entry = entry.WithField("params", cmd.renderParams())
	}
	entry.Debug("executing SQL statement")
}

func (cmd *Command) queryError(err error) error {
	qe := &QueryError{SQL: cmd.text, Err: err}
	if cmd.conn.cfg.EnableParamLogging {
		qe.Params = cmd.renderParams()
	}
	cmd.conn.log.WithError(err).WithField("sql", cmd.text).Error("failed to execute the SQL statement")
	return qe
}

// renderParams renders the bound values for log entries and errors.
func (cmd *Command) renderParams() string {
	parts := make([]string, 0, len(cmd.params)+len(cmd.args))
	for _, k := range slices.Sorted(maps.Keys(cmd.params)) {
		parts = append(parts, k+"="+cmd.conn.QuoteValue(cmd.params[k]))
	}
	for _, v := range cmd.args {
		parts = append(parts, cmd.conn.QuoteValue(v))
	}
	return strings.Join(parts, ", ")
}

// catalogRows is the raw result of a catalog query run by a dialect.
type catalogRows struct {
	cols []string
	rows [][]any
}

// catalog runs a metadata query, bypassing the query cache and the column
// case and null conversions of the connection.
func (c *Conn) catalog(ctx context.Context, query string, params map[string]any) (*catalogRows, error) {
	r, err := c.CreateCommand(query).BindValues(params).reader(ctx, true)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	res := &catalogRows{cols: r.Columns()}
	for r.Next() {
		res.rows = append(res.rows, r.Values())
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Len returns the number of rows.
func (r *catalogRows) Len() int { return len(r.rows) }

// Value returns the value of the named column in row i. Column names are
// matched case-insensitively.
func (r *catalogRows) Value(i int, col string) any {
	for j, name := range r.cols {
		if strings.EqualFold(name, col) {
			return r.rows[i][j]
		}
	}
	return nil
}

// At returns the value of column j in row i.
func (r *catalogRows) At(i, j int) any {
	if j >= len(r.rows[i]) {
		return nil
	}
	return r.rows[i][j]
}

// String returns the value of the named column in row i as a string.
func (r *catalogRows) String(i int, col string) string {
	return stringValue(r.Value(i, col))
}

// Int returns the value of the named column in row i as an integer.
func (r *catalogRows) Int(i int, col string) int64 {
	n, _ := toInt64(r.Value(i, col))
	return n
}

// Null reports whether the named column in row i is NULL.
func (r *catalogRows) Null(i int, col string) bool {
	return r.Value(i, col) == nil
}
