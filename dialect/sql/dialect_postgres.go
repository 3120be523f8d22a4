package sql

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/syssam/sqlkit/dialect"
	"github.com/syssam/sqlkit/dialect/sql/schema"
)

// postgresDefaultSchema is the schema of unqualified table names.
const postgresDefaultSchema = "public"

var postgresTypes = schema.TypeMap{
	"smallint":         schema.TypeInteger,
	"integer":          schema.TypeInteger,
	"bigint":           schema.TypeInteger,
	"int":              schema.TypeInteger,
	"int2":             schema.TypeInteger,
	"int4":             schema.TypeInteger,
	"int8":             schema.TypeInteger,
	"serial":           schema.TypeInteger,
	"bigserial":        schema.TypeInteger,
	"smallserial":      schema.TypeInteger,
	"oid":              schema.TypeInteger,
	"real":             schema.TypeDouble,
	"double precision": schema.TypeDouble,
	"float4":           schema.TypeDouble,
	"float8":           schema.TypeDouble,
	"numeric":          schema.TypeDouble,
	"decimal":          schema.TypeDouble,
	"money":            schema.TypeDouble,
	"boolean":          schema.TypeBoolean,
	"bool":             schema.TypeBoolean,
	"bytea":            schema.TypeBinary,
}

var (
	postgresSequenceRe = regexp.MustCompile(`nextval\('"?([^'"]+)"?'`)
	postgresLiteralRe  = regexp.MustCompile(`^'(.*)'::`)
	postgresNumberRe   = regexp.MustCompile(`^\(?(-?\d+(\.\d*)?)\)?(::.*)?$`)
)

const (
	postgresColumnsQuery = `SELECT c.column_name, c.data_type, c.is_nullable, c.column_default,
	c.character_maximum_length, c.numeric_precision, c.numeric_scale,
	pg_catalog.col_description(format('%s.%s', quote_ident(c.table_schema), quote_ident(c.table_name))::regclass::oid, c.ordinal_position) AS comment
FROM information_schema.columns c
WHERE c.table_schema = :schema AND c.table_name = :table
ORDER BY c.ordinal_position`

	postgresPrimaryKeyQuery = `SELECT kcu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
	ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = :schema AND tc.table_name = :table
ORDER BY kcu.ordinal_position`

	postgresForeignKeyQuery = `SELECT kcu.column_name, ccu.table_schema AS foreign_table_schema,
	ccu.table_name AS foreign_table_name, ccu.column_name AS foreign_column_name
FROM information_schema.table_constraints AS tc
JOIN information_schema.key_column_usage AS kcu
	ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
JOIN information_schema.constraint_column_usage AS ccu
	ON ccu.constraint_name = tc.constraint_name AND ccu.table_schema = tc.table_schema
WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = :schema AND tc.table_name = :table`

	postgresTablesQuery = `SELECT table_name FROM information_schema.tables
WHERE table_schema = :schema AND table_type = 'BASE TABLE'
ORDER BY table_name`
)

// postgresDialect reads metadata from information_schema.
type postgresDialect struct {
	baseDialect
}

func (*postgresDialect) Name() string { return dialect.Postgres }

func (*postgresDialect) Placeholder() PlaceholderStyle { return Dollar }

func (*postgresDialect) QuoteSimpleTableName(name string) string {
	return wrapIdentifier(name, '"', '"')
}

func (*postgresDialect) QuoteSimpleColumnName(name string) string {
	return wrapIdentifier(name, '"', '"')
}

// QuoteString uses the quoting of lib/pq, which switches to the E'' form
// when the string holds backslashes.
func (*postgresDialect) QuoteString(s string) (string, bool) {
	return strings.TrimSpace(pq.QuoteLiteral(s)), true
}

func (*postgresDialect) ColumnType(dbType string) schema.Type {
	return postgresTypes.Resolve(dbType)
}

func (d *postgresDialect) rawName(schemaName, tableName string) string {
	if schemaName == postgresDefaultSchema {
		return d.QuoteSimpleTableName(tableName)
	}
	return d.QuoteSimpleTableName(schemaName) + "." + d.QuoteSimpleTableName(tableName)
}

func (d *postgresDialect) LoadTable(ctx context.Context, c *Conn, name string) (*schema.Table, error) {
	schemaName, tableName := splitSchemaName(name)
	if schemaName == "" {
		schemaName = postgresDefaultSchema
	}
	params := map[string]any{"schema": schemaName, "table": tableName}
	cols, err := c.catalog(ctx, postgresColumnsQuery, params)
	if err != nil {
		return nil, err
	}
	if cols.Len() == 0 {
		return nil, nil
	}
	t := &schema.Table{
		Name:        tableName,
		SchemaName:  schemaName,
		RawName:     d.rawName(schemaName, tableName),
		ForeignKeys: make(map[string]schema.ForeignKey),
	}
	for i := 0; i < cols.Len(); i++ {
		colName := cols.String(i, "column_name")
		dbType := postgresDBType(
			cols.String(i, "data_type"),
			cols.Int(i, "character_maximum_length"),
			cols.Int(i, "numeric_precision"),
			cols.Int(i, "numeric_scale"),
		)
		col := schema.NewColumn(colName, d.QuoteSimpleColumnName(colName), dbType, d.ColumnType(dbType))
		col.AllowNull = cols.String(i, "is_nullable") == "YES"
		col.Comment = cols.String(i, "comment")
		if def := cols.String(i, "column_default"); def != "" {
			if m := postgresSequenceRe.FindStringSubmatch(def); m != nil {
				col.AutoIncrement = true
				t.SequenceName, t.HasSequence = m[1], true
			} else {
				col.SetDefault(postgresDefault(def))
			}
		}
		t.AddColumn(col)
	}
	pks, err := c.catalog(ctx, postgresPrimaryKeyQuery, params)
	if err != nil {
		return nil, err
	}
	for i := 0; i < pks.Len(); i++ {
		pk := pks.String(i, "column_name")
		t.PrimaryKey = append(t.PrimaryKey, pk)
		if col := t.Column(pk); col != nil {
			col.IsPrimaryKey = true
		}
	}
	fks, err := c.catalog(ctx, postgresForeignKeyQuery, params)
	if err != nil {
		return nil, err
	}
	for i := 0; i < fks.Len(); i++ {
		from, table := fks.String(i, "column_name"), fks.String(i, "foreign_table_name")
		if s := fks.String(i, "foreign_table_schema"); s != "" && s != postgresDefaultSchema {
			table = s + "." + table
		}
		t.ForeignKeys[from] = schema.ForeignKey{Table: table, Column: fks.String(i, "foreign_column_name")}
		if col := t.Column(from); col != nil {
			col.IsForeignKey = true
		}
	}
	return t, nil
}

// postgresDBType rebuilds a declared type from information_schema fields.
func postgresDBType(dataType string, length, precision, scale int64) string {
	switch {
	case length > 0:
		return dataType + "(" + strconv.FormatInt(length, 10) + ")"
	case (dataType == "numeric" || dataType == "decimal") && precision > 0:
		return dataType + "(" + strconv.FormatInt(precision, 10) + "," + strconv.FormatInt(scale, 10) + ")"
	}
	return dataType
}

// postgresDefault extracts a literal from a column_default expression.
// Expressions that are not literals yield nil.
func postgresDefault(def string) any {
	switch {
	case def == "true":
		return true
	case def == "false":
		return false
	}
	if m := postgresLiteralRe.FindStringSubmatch(def); m != nil {
		return strings.ReplaceAll(m[1], "''", "'")
	}
	if m := postgresNumberRe.FindStringSubmatch(def); m != nil {
		return m[1]
	}
	return nil
}

func (d *postgresDialect) TableNames(ctx context.Context, c *Conn, schemaName string) ([]string, error) {
	if schemaName == "" {
		schemaName = postgresDefaultSchema
	}
	rows, err := c.catalog(ctx, postgresTablesQuery, map[string]any{"schema": schemaName})
	if err != nil {
		return nil, err
	}
	names := make([]string, rows.Len())
	for i := range names {
		names[i] = stringValue(rows.At(i, 0))
	}
	return names, nil
}

func (d *postgresDialect) ResetSequence(ctx context.Context, c *Conn, t *schema.Table, next int64) error {
	if t.SequenceName == "" {
		return nil
	}
	_, err := c.catalog(ctx, "SELECT SETVAL(:seq, :value, false)", map[string]any{"seq": t.SequenceName, "value": next})
	return err
}

// CheckIntegrity toggles the triggers of every table in the schema, which
// include the ones enforcing foreign keys.
func (d *postgresDialect) CheckIntegrity(ctx context.Context, c *Conn, check bool, schemaName string) error {
	if schemaName == "" {
		schemaName = postgresDefaultSchema
	}
	names, err := d.TableNames(ctx, c, schemaName)
	if err != nil {
		return err
	}
	mode := "DISABLE"
	if check {
		mode = "ENABLE"
	}
	for _, name := range names {
		if _, err := c.CreateCommand("ALTER TABLE " + d.rawName(schemaName, name) + " " + mode + " TRIGGER ALL").Execute(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (d *postgresDialect) LastInsertID(ctx context.Context, c *Conn, sequenceName string) (int64, error) {
	if sequenceName == "" {
		return scalarInt(ctx, c, "SELECT LASTVAL()", nil)
	}
	return scalarInt(ctx, c, "SELECT CURRVAL(:seq)", map[string]any{"seq": sequenceName})
}

func (d *postgresDialect) ServerVersion(ctx context.Context, c *Conn) (string, error) {
	return scalarString(ctx, c, "SHOW server_version", nil)
}

func (d *postgresDialect) CharsetSQL(charset string) string {
	s, _ := d.QuoteString(charset)
	return "SET NAMES " + s
}
