package sql

import (
	"context"
	"maps"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/syssam/sqlkit/dialect/sql/schema"
)

// builderParamPrefix prefixes the placeholders generated by the builder.
const builderParamPrefix = ":yp"

// CommandBuilder creates commands from table metadata and criteria. It
// delegates quoting and driver-specific clauses to its Schema.
//
//	b, _ := conn.CommandBuilder()
//	posts, _ := b.Schema().Table(ctx, "posts")
//	cmd := b.CreateFindCommand(posts, &sql.Criteria{
//		Select:    "id, title",
//		Condition: "id=:id",
//		Params:    map[string]any{":id": 2},
//		Order:     "title",
//		Limit:     2,
//	})
//	// SELECT id, title FROM "posts" "t" WHERE id=:id ORDER BY title LIMIT 2
type CommandBuilder struct {
	schema *Schema
}

// Schema returns the schema of the builder.
func (b *CommandBuilder) Schema() *Schema { return b.schema }

// Conn returns the connection of the builder.
func (b *CommandBuilder) Conn() *Conn { return b.schema.conn }

// CreateFindCommand returns a SELECT command for the criteria.
func (b *CommandBuilder) CreateFindCommand(t *schema.Table, c *Criteria) *Command {
	if c == nil {
		c = &Criteria{}
	}
	alias := b.alias(c)
	sel := c.Select
	if sel == "" || (sel == "*" && c.Join != "") {
		sel = "*"
		if c.Join != "" {
			sel = alias + ".*"
		}
	}
	var sb strings.Builder
	sb.WriteString("SELECT ")
	if c.Distinct {
		sb.WriteString("DISTINCT ")
	}
	sb.WriteString(sel + " FROM " + t.RawName + " " + alias)
	query := b.applyJoin(sb.String(), c.Join)
	query = b.applyCondition(query, c.Condition)
	query = b.applyGroup(query, c.Group)
	query = b.applyHaving(query, c.Having)
	query = b.applyOrder(query, c.Order)
	query = b.applyLimit(query, c.Limit, c.Offset)
	return b.command(query, c)
}

// CreateCountCommand returns a command counting the rows matched by the
// criteria. Select, order, limit and offset are ignored. Grouped or
// distinct queries are counted through a sub-select.
func (b *CommandBuilder) CreateCountCommand(t *schema.Table, c *Criteria) *Command {
	if c == nil {
		c = &Criteria{}
	}
	alias := b.alias(c)
	var query string
	if c.Group != "" || (c.Distinct && c.Select != "" && c.Select != "*") {
		sel := c.Select
		if sel == "" {
			sel = "*"
		}
		if c.Distinct {
			sel = "DISTINCT " + sel
		}
		inner := "SELECT " + sel + " FROM " + t.RawName + " " + alias
		inner = b.applyJoin(inner, c.Join)
		inner = b.applyCondition(inner, c.Condition)
		inner = b.applyGroup(inner, c.Group)
		inner = b.applyHaving(inner, c.Having)
		query = "SELECT COUNT(*) FROM (" + inner + ") sq"
	} else {
		query = "SELECT COUNT(*) FROM " + t.RawName + " " + alias
		query = b.applyJoin(query, c.Join)
		query = b.applyCondition(query, c.Condition)
		query = b.applyHaving(query, c.Having)
	}
	return b.command(query, c)
}

// CreateDeleteCommand returns a DELETE command for the rows matched by the
// criteria.
func (b *CommandBuilder) CreateDeleteCommand(t *schema.Table, c *Criteria) *Command {
	if c == nil {
		c = &Criteria{}
	}
	query := b.applyCondition("DELETE FROM "+t.RawName, c.Condition)
	return b.command(query, c)
}

// CreateInsertCommand returns an INSERT command for data. Columns appear in
// table order with placeholders :yp0, :yp1, ... Expr values are embedded as
// is. Columns missing from the table are rejected; when the table has no
// known columns, data is trusted and its keys are used in sorted order.
func (b *CommandBuilder) CreateInsertCommand(t *schema.Table, data map[string]any) (*Command, error) {
	cols, err := b.orderedColumns(t, data)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return b.Conn().CreateCommand("INSERT INTO " + t.RawName + " " + b.schema.dialect.DefaultValues()), nil
	}
	params := make(map[string]any)
	fields := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	n := 0
	for i, name := range cols {
		fields[i] = b.columnRawName(t, name)
		v := data[name]
		if e, ok := v.(Expr); ok {
			placeholders[i] = string(e)
			continue
		}
		p := uniqueParam(params, builderParamPrefix, &n)
		params[p] = bindValue(t.Column(name), v)
		placeholders[i] = p
	}
	query := "INSERT INTO " + t.RawName + " (" + strings.Join(fields, ", ") + ") VALUES (" + strings.Join(placeholders, ", ") + ")"
	return b.Conn().CreateCommand(query).BindValues(params), nil
}

// CreateUpdateCommand returns an UPDATE command setting data on the rows
// matched by the criteria. Generated placeholders skip any name already
// bound by the criteria. With a positional criteria, "?" placeholders are
// used and the SET values precede the criteria args.
func (b *CommandBuilder) CreateUpdateCommand(t *schema.Table, data map[string]any, c *Criteria) (*Command, error) {
	if c == nil {
		c = &Criteria{}
	}
	cols, err := b.orderedColumns(t, data)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, &ColumnMismatchError{Table: t.Name}
	}
	positional := len(c.Args) > 0
	params := maps.Clone(c.Params)
	if params == nil {
		params = make(map[string]any)
	}
	var args []any
	fields := make([]string, len(cols))
	n := 0
	for i, name := range cols {
		raw := b.columnRawName(t, name)
		v := data[name]
		switch e, ok := v.(Expr); {
		case ok:
			fields[i] = raw + "=" + string(e)
		case positional:
			fields[i] = raw + "=?"
			args = append(args, bindValue(t.Column(name), v))
		default:
			p := uniqueParam(params, builderParamPrefix, &n)
			params[p] = bindValue(t.Column(name), v)
			fields[i] = raw + "=" + p
		}
	}
	query := b.applyCondition("UPDATE "+t.RawName+" SET "+strings.Join(fields, ", "), c.Condition)
	return b.Conn().CreateCommand(query).BindValues(params).BindArgs(append(args, c.Args...)...), nil
}

// CreateUpdateCounterCommand returns an UPDATE command adding the given
// deltas to counter columns. Deltas are embedded as numeric literals.
func (b *CommandBuilder) CreateUpdateCounterCommand(t *schema.Table, counters map[string]float64, c *Criteria) (*Command, error) {
	if c == nil {
		c = &Criteria{}
	}
	data := make(map[string]any, len(counters))
	for k, v := range counters {
		data[k] = v
	}
	cols, err := b.orderedColumns(t, data)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, &ColumnMismatchError{Table: t.Name}
	}
	fields := make([]string, len(cols))
	for i, name := range cols {
		raw := b.columnRawName(t, name)
		if v := counters[name]; v < 0 {
			fields[i] = raw + "=" + raw + "-" + strconv.FormatFloat(-v, 'f', -1, 64)
		} else {
			fields[i] = raw + "=" + raw + "+" + strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	query := b.applyCondition("UPDATE "+t.RawName+" SET "+strings.Join(fields, ", "), c.Condition)
	return b.command(query, c), nil
}

// CreateSqlCommand returns a command for a complete statement.
func (b *CommandBuilder) CreateSqlCommand(query string, params map[string]any) *Command {
	return b.Conn().CreateCommand(query).BindValues(params)
}

// CreateCriteria returns a criteria with the given condition and params.
func (b *CommandBuilder) CreateCriteria(condition string, params map[string]any) *Criteria {
	return NewCriteria(condition, params)
}

// CreatePkCriteria returns a criteria matching the primary key of the table
// against pk, ANDed with condition when it is not empty. Key columns are
// prefixed with prefix, or with the quoted table name when prefix is empty.
// Pass the quoted alias plus a dot when the criteria feeds a find or count
// command, which select from the aliased table.
//
// For a single-column key, pk is a scalar or a slice of scalars. For a
// composite key, pk is a map[string]any holding one key, or a
// []map[string]any or []any of such maps holding several. An empty list
// matches no row, whatever the shape of the key.
func (b *CommandBuilder) CreatePkCriteria(t *schema.Table, pk any, condition string, params map[string]any, prefix string) (*Criteria, error) {
	c := NewCriteria(condition, params)
	cond, err := b.CreatePkCondition(t, pk, prefix)
	if err != nil {
		return nil, err
	}
	if condition != "" {
		cond += " AND (" + condition + ")"
	}
	c.Condition = cond
	return c, nil
}

// CreatePkCondition renders the condition of CreatePkCriteria. Columns are
// prefixed with prefix, or with the quoted table name when prefix is empty.
func (b *CommandBuilder) CreatePkCondition(t *schema.Table, pk any, prefix string) (string, error) {
	if isEmptyList(pk) || (pk == nil && len(t.PrimaryKey) != 1) {
		return "0=1", nil
	}
	if !t.HasPrimaryKey() {
		return "", &SchemaError{Dialect: b.schema.dialect.Name(), Table: t.Name, Msg: "table has no primary key"}
	}
	if prefix == "" {
		prefix = t.RawName + "."
	}
	if !t.IsCompositeKey() {
		return b.createInCondition(t, t.PrimaryKey[0], toValueList(pk), prefix)
	}
	var tuples []map[string]any
	switch v := pk.(type) {
	case map[string]any:
		tuples = []map[string]any{v}
	case []map[string]any:
		tuples = v
	case []any:
		tuples = make([]map[string]any, len(v))
		for i, e := range v {
			m, ok := e.(map[string]any)
			if !ok {
				return "", &SchemaError{Table: t.Name, Msg: "composite primary key values must be given as map[string]any or []map[string]any"}
			}
			tuples[i] = m
		}
	default:
		return "", &SchemaError{Table: t.Name, Msg: "composite primary key values must be given as map[string]any or []map[string]any"}
	}
	return b.createCompositeInCondition(t, tuples, prefix)
}

func (b *CommandBuilder) createInCondition(t *schema.Table, name string, values []any, prefix string) (string, error) {
	if len(values) == 0 {
		return "0=1", nil
	}
	col := t.Column(name)
	if col == nil {
		return "", &ColumnMismatchError{Table: t.Name, Columns: []string{name}}
	}
	literals := make([]string, len(values))
	for i, v := range values {
		literals[i] = b.schema.QuoteValue(col.Typecast(v))
	}
	if len(values) == 1 {
		if values[0] == nil {
			return prefix + col.RawName + " IS NULL", nil
		}
		return prefix + col.RawName + "=" + literals[0], nil
	}
	return prefix + col.RawName + " IN (" + strings.Join(literals, ", ") + ")", nil
}

func (b *CommandBuilder) createCompositeInCondition(t *schema.Table, tuples []map[string]any, prefix string) (string, error) {
	if len(tuples) == 0 {
		return "0=1", nil
	}
	columns := make([]string, len(t.PrimaryKey))
	rendered := make([][]string, len(tuples))
	for i := range rendered {
		rendered[i] = make([]string, len(t.PrimaryKey))
	}
	for j, name := range t.PrimaryKey {
		col := t.Column(name)
		if col == nil {
			return "", &ColumnMismatchError{Table: t.Name, Columns: []string{name}}
		}
		columns[j] = prefix + col.RawName
		for i, tuple := range tuples {
			v, ok := tuple[name]
			if !ok {
				return "", &SchemaError{Table: t.Name, Msg: "primary key value is missing for column " + name}
			}
			rendered[i][j] = b.schema.QuoteValue(col.Typecast(v))
		}
	}
	if len(tuples) == 1 {
		conds := make([]string, len(columns))
		for j, col := range columns {
			if tuples[0][t.PrimaryKey[j]] == nil {
				conds[j] = col + " IS NULL"
			} else {
				conds[j] = col + "=" + rendered[0][j]
			}
		}
		return strings.Join(conds, " AND "), nil
	}
	return b.schema.dialect.CompositeIn(columns, rendered), nil
}

// CreateColumnCriteria returns a criteria matching every column of columns
// to its value, ANDed with condition when it is not empty. Values are bound
// to :ypN placeholders that do not collide with params. Columns are
// prefixed as in CreatePkCriteria.
func (b *CommandBuilder) CreateColumnCriteria(t *schema.Table, columns map[string]any, condition string, params map[string]any, prefix string) (*Criteria, error) {
	c := NewCriteria(condition, params)
	if c.Params == nil {
		c.Params = make(map[string]any)
	}
	cols, err := b.orderedColumns(t, columns)
	if err != nil {
		return nil, err
	}
	if prefix == "" {
		prefix = t.RawName + "."
	}
	conds := make([]string, 0, len(cols)+1)
	n := 0
	for _, name := range cols {
		raw := prefix + b.columnRawName(t, name)
		v := columns[name]
		if v == nil {
			conds = append(conds, raw+" IS NULL")
			continue
		}
		p := uniqueParam(c.Params, builderParamPrefix, &n)
		c.Params[p] = bindValue(t.Column(name), v)
		conds = append(conds, raw+"="+p)
	}
	if condition != "" {
		conds = append(conds, "("+condition+")")
	}
	c.Condition = strings.Join(conds, " AND ")
	return c, nil
}

// LastInsertID returns the key generated by the last insert into t.
func (b *CommandBuilder) LastInsertID(ctx context.Context, t *schema.Table) (int64, error) {
	if !t.HasSequence {
		return 0, &SchemaError{Table: t.Name, Msg: "table has no sequence"}
	}
	return b.Conn().LastInsertID(ctx, t.SequenceName)
}

// orderedColumns returns the keys of data in table column order. Keys that
// are not columns of the table yield a ColumnMismatchError. A table without
// columns accepts every key, sorted.
func (b *CommandBuilder) orderedColumns(t *schema.Table, data map[string]any) ([]string, error) {
	if len(t.Columns) == 0 {
		return slices.Sorted(maps.Keys(data)), nil
	}
	var unknown []string
	for name := range data {
		if t.Column(name) == nil {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		slices.Sort(unknown)
		return nil, &ColumnMismatchError{Table: t.Name, Columns: unknown}
	}
	cols := make([]string, 0, len(data))
	for _, col := range t.Columns {
		if _, ok := data[col.Name]; ok {
			cols = append(cols, col.Name)
		}
	}
	return cols, nil
}

func (b *CommandBuilder) columnRawName(t *schema.Table, name string) string {
	if col := t.Column(name); col != nil {
		return col.RawName
	}
	return b.schema.QuoteColumnName(name)
}

func (b *CommandBuilder) alias(c *Criteria) string {
	if c.Alias != "" {
		return b.schema.QuoteTableName(c.Alias)
	}
	return b.schema.QuoteTableName("t")
}

func (b *CommandBuilder) command(query string, c *Criteria) *Command {
	return b.Conn().CreateCommand(query).BindValues(c.Params).BindArgs(c.Args...)
}

func (b *CommandBuilder) applyJoin(query, join string) string {
	if join == "" {
		return query
	}
	return query + " " + join
}

func (b *CommandBuilder) applyCondition(query, condition string) string {
	if condition == "" {
		return query
	}
	return query + " WHERE " + condition
}

func (b *CommandBuilder) applyGroup(query, group string) string {
	if group == "" {
		return query
	}
	return query + " GROUP BY " + group
}

func (b *CommandBuilder) applyHaving(query, having string) string {
	if having == "" {
		return query
	}
	return query + " HAVING " + having
}

func (b *CommandBuilder) applyOrder(query, order string) string {
	if order == "" {
		return query
	}
	return query + " ORDER BY " + order
}

func (b *CommandBuilder) applyLimit(query string, limit, offset int) string {
	return b.schema.dialect.LimitOffset(query, limit, offset)
}

// bindValue converts strings bound to numeric or boolean columns, so that
// form input binds with the column type. Other values are bound as given.
func bindValue(col *schema.Column, v any) any {
	if col == nil {
		return v
	}
	if _, ok := v.(string); !ok {
		return v
	}
	switch col.Type {
	case schema.TypeInteger, schema.TypeDouble, schema.TypeBoolean:
		return col.Typecast(v)
	}
	return v
}

// toValueList turns a scalar or a slice of scalars into a value list.
// isEmptyList reports whether v is a slice or array with no elements.
func isEmptyList(v any) bool {
	if _, ok := v.([]byte); ok || v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	return (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Len() == 0
}

func toValueList(v any) []any {
	switch v := v.(type) {
	case nil:
		return []any{nil}
	case []any:
		return v
	case []byte:
		return []any{v}
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{v}
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}
