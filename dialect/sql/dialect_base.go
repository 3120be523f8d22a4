package sql

import (
	"strconv"
	"strings"
)

// baseDialect holds the defaults shared by the built-in dialects.
type baseDialect struct{}

func (baseDialect) Placeholder() PlaceholderStyle { return Question }

func (baseDialect) QuoteString(string) (string, bool) { return "", false }

func (baseDialect) CharsetSQL(string) string { return "" }

func (baseDialect) DefaultValues() string { return "DEFAULT VALUES" }

func (baseDialect) LimitOffset(query string, limit, offset int) string {
	if limit > 0 {
		query += " LIMIT " + strconv.Itoa(limit)
	}
	if offset > 0 {
		query += " OFFSET " + strconv.Itoa(offset)
	}
	return query
}

// CompositeIn renders a row-value IN condition:
//
//	(a, b) IN ((1, 2), (3, 4))
func (baseDialect) CompositeIn(columns []string, tuples [][]string) string {
	rows := make([]string, len(tuples))
	for i, t := range tuples {
		rows[i] = "(" + strings.Join(t, ", ") + ")"
	}
	return "(" + strings.Join(columns, ", ") + ") IN (" + strings.Join(rows, ", ") + ")"
}

// orOfAnds renders a composite key condition without row values:
//
//	(a=1 AND b=2) OR (a=3 AND b=4)
func orOfAnds(columns []string, tuples [][]string) string {
	rows := make([]string, len(tuples))
	for i, t := range tuples {
		conds := make([]string, len(columns))
		for j, col := range columns {
			conds[j] = col + "=" + t[j]
		}
		rows[i] = "(" + strings.Join(conds, " AND ") + ")"
	}
	return "(" + strings.Join(rows, " OR ") + ")"
}
