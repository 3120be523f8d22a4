package sql

import (
	"context"
	"database/sql"
	"iter"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Row is a result row keyed by column name.
type Row map[string]any

// DataReader is a forward-only cursor over the rows of a query. It holds the
// connection's session until it is closed or fully read.
//
//	r, err := conn.CreateCommand("SELECT id, title FROM posts").Query(ctx)
//	if err != nil {
//		return err
//	}
//	defer r.Close()
//	for r.Next() {
//		fmt.Println(r.Row()["title"])
//	}
//	return r.Err()
type DataReader struct {
	rows   *sql.Rows
	cancel context.CancelFunc
	cols   []string
	binary []bool
	null   NullConversion

	row    Row
	values []any
	err    error
	closed bool
}

func newDataReader(rows *sql.Rows, cancel context.CancelFunc, cc ColumnCase, nc NullConversion) (*DataReader, error) {
	names, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		cancel()
		return nil, err
	}
	r := &DataReader{
		rows:   rows,
		cancel: cancel,
		cols:   convertCase(names, cc),
		binary: make([]bool, len(names)),
		null:   nc,
	}
	if types, err := rows.ColumnTypes(); err == nil {
		for i, ct := range types {
			r.binary[i] = isBinaryType(ct.DatabaseTypeName())
		}
	}
	return r, nil
}

func convertCase(names []string, cc ColumnCase) []string {
	var caser cases.Caser
	switch cc {
	case CaseLower:
		caser = cases.Lower(language.Und)
	case CaseUpper:
		caser = cases.Upper(language.Und)
	default:
		return names
	}
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = caser.String(name)
	}
	return out
}

func isBinaryType(name string) bool {
	name = strings.ToUpper(name)
	return strings.Contains(name, "BLOB") || strings.Contains(name, "BINARY") || name == "BYTEA"
}

// Columns returns the column names of the result.
func (r *DataReader) Columns() []string { return r.cols }

// Next advances to the next row. It returns false when the rows are
// exhausted or an error occurred; the reader is then closed.
func (r *DataReader) Next() bool {
	if r.closed {
		return false
	}
	if !r.rows.Next() {
		r.err = r.rows.Err()
		_ = r.Close()
		return false
	}
	dest := make([]any, len(r.cols))
	ptrs := make([]any, len(r.cols))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		r.err = err
		_ = r.Close()
		return false
	}
	r.row = make(Row, len(r.cols))
	for i, v := range dest {
		v = r.convert(i, v)
		dest[i] = v
		r.row[r.cols[i]] = v
	}
	r.values = dest
	return true
}

func (r *DataReader) convert(i int, v any) any {
	if b, ok := v.([]byte); ok {
		if r.binary[i] {
			v = append([]byte(nil), b...)
		} else {
			v = string(b)
		}
	}
	switch r.null {
	case NullEmptyString:
		if s, ok := v.(string); ok && s == "" {
			return nil
		}
	case NullToString:
		if v == nil {
			return ""
		}
	}
	return v
}

// Row returns the current row.
func (r *DataReader) Row() Row { return r.row }

// Values returns the values of the current row in column order.
func (r *DataReader) Values() []any { return r.values }

// Err returns the error that stopped the iteration, if any.
func (r *DataReader) Err() error { return r.err }

// Close releases the rows. It is safe to call Close more than once.
func (r *DataReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	err := r.rows.Close()
	r.cancel()
	return err
}

// ReadAll reads the remaining rows and closes the reader.
func (r *DataReader) ReadAll() ([]Row, error) {
	var rows []Row
	for r.Next() {
		rows = append(rows, r.row)
	}
	return rows, r.Err()
}

// All returns an iterator over the remaining rows. Check Err after the
// iteration ends.
func (r *DataReader) All() iter.Seq[Row] {
	return func(yield func(Row) bool) {
		defer r.Close()
		for r.Next() {
			if !yield(r.row) {
				return
			}
		}
	}
}
