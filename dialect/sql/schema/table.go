package schema

// ForeignKey identifies the column a foreign-key column references.
type ForeignKey struct {
	Table  string `msgpack:"table" yaml:"table"`
	Column string `msgpack:"column" yaml:"column"`
}

// Table holds the metadata of a database table.
//
// A Table returned by the schema layer is shared between callers and must
// be treated as read-only.
type Table struct {
	// Name is the unquoted table name without schema prefix.
	Name string `msgpack:"name" yaml:"name"`
	// SchemaName is the schema (or database) the table belongs to, if any.
	SchemaName string `msgpack:"schema_name" yaml:"schema_name,omitempty"`
	// RawName is the quoted, schema-prefixed name ready for use in SQL.
	RawName string `msgpack:"raw_name" yaml:"raw_name"`
	// Columns in table definition order.
	Columns []*Column `msgpack:"columns" yaml:"columns"`
	// PrimaryKey lists the primary-key columns. It is empty when the table
	// has no primary key and has more than one element for composite keys.
	PrimaryKey []string `msgpack:"primary_key" yaml:"primary_key,omitempty"`
	// ForeignKeys maps a local column to the column it references.
	ForeignKeys map[string]ForeignKey `msgpack:"foreign_keys" yaml:"foreign_keys,omitempty"`
	// SequenceName is the sequence feeding the primary key. It may be empty
	// for dialects whose auto-increment has no name; see HasSequence.
	SequenceName string `msgpack:"sequence_name" yaml:"sequence_name,omitempty"`
	// HasSequence reports whether the primary key is generated by the database.
	HasSequence bool `msgpack:"has_sequence" yaml:"has_sequence"`
}

// Column returns the named column, or nil if the table has no such column.
func (t *Table) Column(name string) *Column {
	for _, c := range t.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ColumnNames returns the column names in definition order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// AddColumn appends a column. It is meant for schema readers building a table.
func (t *Table) AddColumn(c *Column) {
	t.Columns = append(t.Columns, c)
}

// HasPrimaryKey reports whether the table declares a primary key.
func (t *Table) HasPrimaryKey() bool { return len(t.PrimaryKey) > 0 }

// IsCompositeKey reports whether the primary key spans several columns.
func (t *Table) IsCompositeKey() bool { return len(t.PrimaryKey) > 1 }

// FullName returns the schema-qualified, unquoted table name.
func (t *Table) FullName() string {
	if t.SchemaName == "" {
		return t.Name
	}
	return t.SchemaName + "." + t.Name
}

// Column holds the metadata of a table column.
type Column struct {
	Name    string `msgpack:"name" yaml:"name"`
	RawName string `msgpack:"raw_name" yaml:"raw_name"`
	// DBType is the type as declared in the database, e.g. "varchar(128)".
	DBType string `msgpack:"db_type" yaml:"db_type"`
	// Type is the logical type used for binding and typecasting.
	Type      Type `msgpack:"type" yaml:"type"`
	Size      int  `msgpack:"size" yaml:"size,omitempty"`
	Precision int  `msgpack:"precision" yaml:"precision,omitempty"`
	Scale     int  `msgpack:"scale" yaml:"scale,omitempty"`
	AllowNull bool `msgpack:"allow_null" yaml:"allow_null"`
	// Default is the column default value, already typecast to Type.
	Default       any    `msgpack:"default" yaml:"default,omitempty"`
	IsPrimaryKey  bool   `msgpack:"is_primary_key" yaml:"is_primary_key"`
	IsForeignKey  bool   `msgpack:"is_foreign_key" yaml:"is_foreign_key"`
	AutoIncrement bool   `msgpack:"auto_increment" yaml:"auto_increment"`
	Comment       string `msgpack:"comment" yaml:"comment,omitempty"`
}

// NewColumn returns a column of the given declared type. Size, precision and
// scale are extracted from dbType.
func NewColumn(name, rawName, dbType string, typ Type) *Column {
	_, size, precision, scale := ParseDBType(dbType)
	return &Column{
		Name:      name,
		RawName:   rawName,
		DBType:    dbType,
		Type:      typ,
		Size:      size,
		Precision: precision,
		Scale:     scale,
	}
}

// SetDefault typecasts and stores the default value of the column.
func (c *Column) SetDefault(v any) {
	c.Default = c.Typecast(v)
}

// Typecast converts v according to the column's logical type.
func (c *Column) Typecast(v any) any {
	return Typecast(c.Type, c.AllowNull, v)
}
