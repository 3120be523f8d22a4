package sql

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/syssam/sqlkit/dialect"
	"github.com/syssam/sqlkit/dialect/sql/schema"
)

// sqliteDialect reads metadata with the table_info and foreign_key_list
// pragmas.
type sqliteDialect struct {
	baseDialect
}

func (*sqliteDialect) Name() string { return dialect.SQLite }

func (*sqliteDialect) QuoteSimpleTableName(name string) string {
	return wrapIdentifier(name, '"', '"')
}

func (*sqliteDialect) QuoteSimpleColumnName(name string) string {
	return wrapIdentifier(name, '"', '"')
}

func (*sqliteDialect) QuoteString(s string) (string, bool) {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'", true
}

// ColumnType applies the SQLite type affinity rules.
func (*sqliteDialect) ColumnType(dbType string) schema.Type {
	t := strings.ToLower(dbType)
	switch {
	case strings.Contains(t, "int"):
		return schema.TypeInteger
	case strings.HasPrefix(t, "bool"):
		return schema.TypeBoolean
	case strings.Contains(t, "real"), strings.Contains(t, "floa"), strings.Contains(t, "doub"),
		strings.Contains(t, "numeric"), strings.Contains(t, "decimal"):
		return schema.TypeDouble
	case strings.Contains(t, "blob"):
		return schema.TypeBinary
	}
	return schema.TypeString
}

func (d *sqliteDialect) pragma(schemaName, name, table string) string {
	q := "PRAGMA "
	if schemaName != "" {
		q += d.QuoteSimpleTableName(schemaName) + "."
	}
	return q + name + "(" + d.QuoteSimpleTableName(table) + ")"
}

func (d *sqliteDialect) LoadTable(ctx context.Context, c *Conn, name string) (*schema.Table, error) {
	schemaName, tableName := splitSchemaName(name)
	info, err := c.catalog(ctx, d.pragma(schemaName, "table_info", tableName), nil)
	if err != nil {
		return nil, err
	}
	if info.Len() == 0 {
		return nil, nil
	}
	t := &schema.Table{
		Name:        tableName,
		SchemaName:  schemaName,
		RawName:     quoteIdentifierParts(name, d.QuoteSimpleTableName),
		ForeignKeys: make(map[string]schema.ForeignKey),
	}
	type pkPos struct {
		name string
		pos  int64
	}
	var pks []pkPos
	for i := 0; i < info.Len(); i++ {
		colName, dbType := info.String(i, "name"), info.String(i, "type")
		col := schema.NewColumn(colName, d.QuoteSimpleColumnName(colName), dbType, d.ColumnType(dbType))
		col.AllowNull = info.Int(i, "notnull") == 0
		if pos := info.Int(i, "pk"); pos > 0 {
			col.IsPrimaryKey = true
			pks = append(pks, pkPos{colName, pos})
		}
		if !info.Null(i, "dflt_value") {
			col.SetDefault(sqliteDefault(info.String(i, "dflt_value")))
		}
		t.AddColumn(col)
	}
	sort.Slice(pks, func(i, j int) bool { return pks[i].pos < pks[j].pos })
	for _, pk := range pks {
		t.PrimaryKey = append(t.PrimaryKey, pk.name)
	}
	if len(t.PrimaryKey) == 1 {
		pk := t.Column(t.PrimaryKey[0])
		if strings.HasPrefix(strings.ToLower(pk.DBType), "int") {
			t.HasSequence = true
			pk.AutoIncrement = true
		}
	}
	fks, err := c.catalog(ctx, d.pragma(schemaName, "foreign_key_list", tableName), nil)
	if err != nil {
		return nil, err
	}
	for i := 0; i < fks.Len(); i++ {
		from := fks.String(i, "from")
		t.ForeignKeys[from] = schema.ForeignKey{Table: fks.String(i, "table"), Column: fks.String(i, "to")}
		if col := t.Column(from); col != nil {
			col.IsForeignKey = true
		}
	}
	return t, nil
}

// sqliteDefault unquotes a default value as reported by table_info.
func sqliteDefault(v string) any {
	switch {
	case strings.EqualFold(v, "null"):
		return nil
	case len(v) >= 2 && v[0] == '\'' && v[len(v)-1] == '\'':
		return strings.ReplaceAll(v[1:len(v)-1], "''", "'")
	}
	return v
}

func (d *sqliteDialect) TableNames(ctx context.Context, c *Conn, schemaName string) ([]string, error) {
	master := "sqlite_master"
	if schemaName != "" {
		master = d.QuoteSimpleTableName(schemaName) + ".sqlite_master"
	}
	rows, err := c.catalog(ctx, "SELECT DISTINCT tbl_name FROM "+master+" WHERE tbl_name<>'sqlite_sequence' AND type='table' ORDER BY tbl_name", nil)
	if err != nil {
		return nil, err
	}
	names := make([]string, rows.Len())
	for i := range names {
		names[i] = stringValue(rows.At(i, 0))
	}
	return names, nil
}

// ResetSequence updates sqlite_sequence. Tables created without
// AUTOINCREMENT have no entry there and are left unchanged.
func (d *sqliteDialect) ResetSequence(ctx context.Context, c *Conn, t *schema.Table, next int64) error {
	_, err := c.CreateCommand("UPDATE sqlite_sequence SET seq=:seq WHERE name=:name").
		Bind("seq", next-1).
		Bind("name", t.Name).
		Execute(ctx)
	if err != nil && isNoSuchTable(err) {
		return nil
	}
	return err
}

func (d *sqliteDialect) CheckIntegrity(ctx context.Context, c *Conn, check bool, _ string) error {
	_, err := c.CreateCommand("PRAGMA foreign_keys=" + strconv.Itoa(boolInt(check))).Execute(ctx)
	return err
}

func (d *sqliteDialect) LastInsertID(ctx context.Context, c *Conn, _ string) (int64, error) {
	return scalarInt(ctx, c, "SELECT last_insert_rowid()", nil)
}

func (d *sqliteDialect) ServerVersion(ctx context.Context, c *Conn) (string, error) {
	return scalarString(ctx, c, "SELECT sqlite_version()", nil)
}

// LimitOffset uses LIMIT -1 when only an offset is given.
func (d *sqliteDialect) LimitOffset(query string, limit, offset int) string {
	if offset > 0 && limit <= 0 {
		return query + " LIMIT -1 OFFSET " + strconv.Itoa(offset)
	}
	return d.baseDialect.LimitOffset(query, limit, offset)
}

// CompositeIn avoids row values, which older SQLite versions reject.
func (*sqliteDialect) CompositeIn(columns []string, tuples [][]string) string {
	return orOfAnds(columns, tuples)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// scalarInt runs a catalog query returning a single integer.
func scalarInt(ctx context.Context, c *Conn, query string, params map[string]any) (int64, error) {
	rows, err := c.catalog(ctx, query, params)
	if err != nil {
		return 0, err
	}
	if rows.Len() == 0 {
		return 0, nil
	}
	n, _ := toInt64(rows.At(0, 0))
	return n, nil
}

// scalarString runs a catalog query returning a single string.
func scalarString(ctx context.Context, c *Conn, query string, params map[string]any) (string, error) {
	rows, err := c.catalog(ctx, query, params)
	if err != nil {
		return "", err
	}
	if rows.Len() == 0 {
		return "", nil
	}
	return stringValue(rows.At(0, 0)), nil
}
