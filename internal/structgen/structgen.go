// Package structgen generates Go row types from table metadata.
package structgen

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/dave/jennifer/jen"
	"github.com/go-openapi/inflect"
	"golang.org/x/sync/errgroup"
	"golang.org/x/tools/imports"

	"github.com/syssam/sqlkit/dialect/sql/schema"
)

// initialisms are the trailing words rewritten in upper case.
var initialisms = []string{"Id", "Url", "Uuid", "Ip", "Sql"}

// TypeName returns the Go type name of a table: the singular, camel-cased
// table name.
func TypeName(t *schema.Table) string {
	return goName(inflect.Singularize(t.Name))
}

// FieldName returns the Go field name of a column.
func FieldName(c *schema.Column) string {
	return goName(c.Name)
}

func goName(s string) string {
	name := inflect.Camelize(strings.ToLower(s))
	for _, w := range initialisms {
		if strings.HasSuffix(name, w) {
			return strings.TrimSuffix(name, w) + strings.ToUpper(w)
		}
	}
	return name
}

// goType maps the logical column type to a Go type. Nullable columns use
// the database/sql null wrappers.
func goType(c *schema.Column) jen.Code {
	if c.Type == schema.TypeBinary {
		return jen.Index().Byte()
	}
	if c.AllowNull && !c.IsPrimaryKey {
		switch c.Type {
		case schema.TypeInteger:
			return jen.Qual("database/sql", "NullInt64")
		case schema.TypeDouble:
			return jen.Qual("database/sql", "NullFloat64")
		case schema.TypeBoolean:
			return jen.Qual("database/sql", "NullBool")
		default:
			return jen.Qual("database/sql", "NullString")
		}
	}
	switch c.Type {
	case schema.TypeInteger:
		return jen.Int64()
	case schema.TypeDouble:
		return jen.Float64()
	case schema.TypeBoolean:
		return jen.Bool()
	default:
		return jen.String()
	}
}

// File returns the source of the row type of t in package pkg.
func File(t *schema.Table, pkg string) *jen.File {
	name := TypeName(t)
	f := jen.NewFile(pkg)
	f.HeaderComment("Code generated by sqlkit. DO NOT EDIT.")

	fields := make([]jen.Code, 0, len(t.Columns))
	for _, c := range t.Columns {
		field := jen.Id(FieldName(c)).Add(goType(c)).Tag(map[string]string{"db": c.Name})
		if c.Comment != "" {
			field.Comment(c.Comment)
		}
		fields = append(fields, field)
	}
	f.Commentf("%s is a row of table %s.", name, t.FullName())
	f.Type().Id(name).Struct(fields...)

	f.Commentf("TableName returns the name of the table the row belongs to.")
	f.Func().Params(jen.Id(name)).Id("TableName").Params().String().Block(
		jen.Return(jen.Lit(t.FullName())),
	)

	f.Commentf("%sColumns lists the columns of table %s in definition order.", name, t.FullName())
	f.Var().Id(name + "Columns").Op("=").Index().String().ValuesFunc(func(g *jen.Group) {
		for _, c := range t.Columns {
			g.Lit(c.Name)
		}
	})

	if len(t.PrimaryKey) > 0 {
		f.Commentf("%sPrimaryKey lists the primary key columns of table %s.", name, t.FullName())
		f.Var().Id(name + "PrimaryKey").Op("=").Index().String().ValuesFunc(func(g *jen.Group) {
			for _, pk := range t.PrimaryKey {
				g.Lit(pk)
			}
		})
	}
	return f
}

// Writer writes one file per table into a directory.
type Writer struct {
	dir     string
	pkg     string
	workers int
}

// NewWriter returns a writer generating package pkg into dir.
func NewWriter(dir, pkg string) *Writer {
	return &Writer{dir: dir, pkg: pkg, workers: runtime.GOMAXPROCS(0)}
}

// WithWorkers sets the number of tables generated in parallel.
func (w *Writer) WithWorkers(n int) *Writer {
	if n > 0 {
		w.workers = n
	}
	return w
}

// WriteAll generates the files of tables and returns their paths.
func (w *Writer) WriteAll(ctx context.Context, tables []*schema.Table) ([]string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("structgen: create output directory: %w", err)
	}
	paths := make([]string, len(tables))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(w.workers)
	for i, t := range tables {
		paths[i] = filepath.Join(w.dir, strings.ToLower(strings.ReplaceAll(t.FullName(), ".", "_"))+".go")
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return w.write(paths[i], t)
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

func (w *Writer) write(path string, t *schema.Table) error {
	var buf bytes.Buffer
	if err := File(t, w.pkg).Render(&buf); err != nil {
		return fmt.Errorf("structgen: render %s: %w", t.FullName(), err)
	}
	formatted, err := imports.Process(path, buf.Bytes(), nil)
	if err != nil {
		return fmt.Errorf("structgen: format %s: %w", t.FullName(), err)
	}
	if err := os.WriteFile(path, formatted, 0o644); err != nil {
		return fmt.Errorf("structgen: write %s: %w", path, err)
	}
	return nil
}
