package sql

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/syssam/sqlkit/dialect"
	"github.com/syssam/sqlkit/dialect/sql/schema"
)

// mysqlMaxLimit is the LIMIT used when only an offset is requested.
const mysqlMaxLimit = "18446744073709551615"

var mysqlTypes = schema.TypeMap{
	"tinyint(1)": schema.TypeBoolean,
	"bit(1)":     schema.TypeBoolean,
	"bool":       schema.TypeBoolean,
	"boolean":    schema.TypeBoolean,
	"tinyint":    schema.TypeInteger,
	"smallint":   schema.TypeInteger,
	"mediumint":  schema.TypeInteger,
	"int":        schema.TypeInteger,
	"integer":    schema.TypeInteger,
	"bigint":     schema.TypeInteger,
	"year":       schema.TypeInteger,
	"float":      schema.TypeDouble,
	"double":     schema.TypeDouble,
	"real":       schema.TypeDouble,
	"decimal":    schema.TypeDouble,
	"numeric":    schema.TypeDouble,
	"binary":     schema.TypeBinary,
	"varbinary":  schema.TypeBinary,
	"tinyblob":   schema.TypeBinary,
	"blob":       schema.TypeBinary,
	"mediumblob": schema.TypeBinary,
	"longblob":   schema.TypeBinary,
}

var mysqlForeignKeyRe = regexp.MustCompile("(?i)FOREIGN KEY\\s+\\(([^)]+)\\)\\s+REFERENCES\\s+([^(\\s]+)\\s*\\(([^)]+)\\)")

// mysqlDialect reads metadata with SHOW FULL COLUMNS and SHOW CREATE TABLE.
type mysqlDialect struct {
	baseDialect
}

func (*mysqlDialect) Name() string { return dialect.MySQL }

func (*mysqlDialect) QuoteSimpleTableName(name string) string {
	return wrapIdentifier(name, '`', '`')
}

func (*mysqlDialect) QuoteSimpleColumnName(name string) string {
	return wrapIdentifier(name, '`', '`')
}

func (*mysqlDialect) ColumnType(dbType string) schema.Type {
	// Unsigned and zerofill attributes do not change the logical type.
	t := strings.ToLower(dbType)
	t = strings.TrimSpace(strings.NewReplacer(" unsigned", "", " zerofill", "").Replace(t))
	return mysqlTypes.Resolve(t)
}

func (d *mysqlDialect) LoadTable(ctx context.Context, c *Conn, name string) (*schema.Table, error) {
	schemaName, tableName := splitSchemaName(name)
	t := &schema.Table{
		Name:        tableName,
		SchemaName:  schemaName,
		RawName:     quoteIdentifierParts(name, d.QuoteSimpleTableName),
		ForeignKeys: make(map[string]schema.ForeignKey),
	}
	cols, err := c.catalog(ctx, "SHOW FULL COLUMNS FROM "+t.RawName, nil)
	if err != nil {
		if isNoSuchTable(err) {
			return nil, nil
		}
		return nil, err
	}
	if cols.Len() == 0 {
		return nil, nil
	}
	for i := 0; i < cols.Len(); i++ {
		colName, dbType := cols.String(i, "Field"), cols.String(i, "Type")
		col := schema.NewColumn(colName, d.QuoteSimpleColumnName(colName), dbType, d.ColumnType(dbType))
		col.AllowNull = cols.String(i, "Null") == "YES"
		col.IsPrimaryKey = strings.Contains(cols.String(i, "Key"), "PRI")
		col.AutoIncrement = strings.Contains(strings.ToLower(cols.String(i, "Extra")), "auto_increment")
		col.Comment = cols.String(i, "Comment")
		if def := cols.Value(i, "Default"); def != nil {
			s := stringValue(def)
			if !strings.HasPrefix(strings.ToLower(dbType), "timestamp") && !strings.EqualFold(s, "CURRENT_TIMESTAMP") {
				col.SetDefault(s)
			}
		}
		if col.IsPrimaryKey {
			t.PrimaryKey = append(t.PrimaryKey, colName)
		}
		if col.AutoIncrement {
			t.HasSequence = true
		}
		t.AddColumn(col)
	}
	create, err := c.catalog(ctx, "SHOW CREATE TABLE "+t.RawName, nil)
	if err != nil {
		return nil, err
	}
	if create.Len() > 0 {
		d.parseForeignKeys(t, stringValue(create.At(0, 1)))
	}
	return t, nil
}

// parseForeignKeys extracts the FOREIGN KEY clauses of a CREATE TABLE
// statement.
func (d *mysqlDialect) parseForeignKeys(t *schema.Table, ddl string) {
	unquote := func(s string) string {
		return strings.Trim(strings.TrimSpace(s), "`")
	}
	for _, m := range mysqlForeignKeyRe.FindAllStringSubmatch(ddl, -1) {
		keys, refs := strings.Split(m[1], ","), strings.Split(m[3], ",")
		table := strings.ReplaceAll(m[2], "`", "")
		for i, k := range keys {
			if i >= len(refs) {
				break
			}
			k = unquote(k)
			t.ForeignKeys[k] = schema.ForeignKey{Table: table, Column: unquote(refs[i])}
			if col := t.Column(k); col != nil {
				col.IsForeignKey = true
			}
		}
	}
}

func (d *mysqlDialect) TableNames(ctx context.Context, c *Conn, schemaName string) ([]string, error) {
	q := "SHOW TABLES"
	if schemaName != "" {
		q += " FROM " + d.QuoteSimpleTableName(schemaName)
	}
	rows, err := c.catalog(ctx, q, nil)
	if err != nil {
		return nil, err
	}
	names := make([]string, rows.Len())
	for i := range names {
		names[i] = stringValue(rows.At(i, 0))
	}
	return names, nil
}

func (d *mysqlDialect) ResetSequence(ctx context.Context, c *Conn, t *schema.Table, next int64) error {
	_, err := c.CreateCommand("ALTER TABLE " + t.RawName + " AUTO_INCREMENT=" + strconv.FormatInt(next, 10)).Execute(ctx)
	return err
}

func (d *mysqlDialect) CheckIntegrity(ctx context.Context, c *Conn, check bool, _ string) error {
	_, err := c.CreateCommand("SET FOREIGN_KEY_CHECKS=" + strconv.Itoa(boolInt(check))).Execute(ctx)
	return err
}

func (d *mysqlDialect) LastInsertID(ctx context.Context, c *Conn, _ string) (int64, error) {
	return scalarInt(ctx, c, "SELECT LAST_INSERT_ID()", nil)
}

func (d *mysqlDialect) ServerVersion(ctx context.Context, c *Conn) (string, error) {
	return scalarString(ctx, c, "SELECT VERSION()", nil)
}

func (*mysqlDialect) CharsetSQL(charset string) string {
	return "SET NAMES " + fallbackQuote(charset)
}

func (*mysqlDialect) DefaultValues() string { return "() VALUES ()" }

// LimitOffset adds the largest possible LIMIT when only an offset is given.
func (d *mysqlDialect) LimitOffset(query string, limit, offset int) string {
	if offset > 0 && limit <= 0 {
		return query + " LIMIT " + mysqlMaxLimit + " OFFSET " + strconv.Itoa(offset)
	}
	return d.baseDialect.LimitOffset(query, limit, offset)
}
