package sql

import (
	"fmt"
	"maps"
	"reflect"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// Criteria holds the fragments of a query. It renders no SQL by itself; the
// CommandBuilder turns it into statements.
//
// The zero value is an empty criteria. Limit and Offset are ignored unless
// positive.
type Criteria struct {
	// Select is the select list, "*" when empty.
	Select   string `yaml:"select,omitempty"`
	Distinct bool   `yaml:"distinct,omitempty"`
	// Condition is the WHERE clause without the keyword.
	Condition string `yaml:"condition,omitempty"`
	// Params holds the values of the named placeholders of the fragments.
	// Keys may be given with or without the leading colon.
	Params map[string]any `yaml:"params,omitempty"`
	// Args holds the values of the "?" placeholders of the fragments, in
	// order. A criteria uses either Params or Args.
	Args   []any  `yaml:"args,omitempty"`
	Join   string `yaml:"join,omitempty"`
	Group  string `yaml:"group,omitempty"`
	Having string `yaml:"having,omitempty"`
	Order  string `yaml:"order,omitempty"`
	Limit  int    `yaml:"limit,omitempty"`
	Offset int    `yaml:"offset,omitempty"`
	// Alias is the alias of the main table, "t" when empty.
	Alias string `yaml:"alias,omitempty"`
}

// criteriaParamPrefix prefixes the placeholders generated by the Add
// methods of Criteria.
const criteriaParamPrefix = ":ycp"

// NewCriteria returns a criteria with the given condition and named params.
func NewCriteria(condition string, params map[string]any) *Criteria {
	return &Criteria{Condition: condition, Params: maps.Clone(params)}
}

// CriteriaFromMap builds a criteria from a map keyed by lower-cased field
// names, e.g. {"condition": "id=:id", "params": map[string]any{":id": 1}}.
func CriteriaFromMap(m map[string]any) (*Criteria, error) {
	c := &Criteria{}
	for k, v := range m {
		var ok bool
		switch strings.ToLower(k) {
		case "select":
			c.Select, ok = v.(string)
		case "distinct":
			c.Distinct, ok = v.(bool)
		case "condition":
			c.Condition, ok = v.(string)
		case "params":
			var p map[string]any
			if p, ok = v.(map[string]any); ok {
				c.Params = maps.Clone(p)
			}
		case "args":
			var a []any
			if a, ok = v.([]any); ok {
				c.Args = slices.Clone(a)
			}
		case "join":
			c.Join, ok = v.(string)
		case "group":
			c.Group, ok = v.(string)
		case "having":
			c.Having, ok = v.(string)
		case "order":
			c.Order, ok = v.(string)
		case "limit":
			c.Limit, ok = v.(int)
		case "offset":
			c.Offset, ok = v.(int)
		case "alias":
			c.Alias, ok = v.(string)
		default:
			return nil, &ConfigurationError{Msg: fmt.Sprintf("unknown criteria field %q", k)}
		}
		if !ok {
			return nil, &ConfigurationError{Msg: fmt.Sprintf("invalid value %T for criteria field %q", v, k)}
		}
	}
	return c, nil
}

// Clone returns a deep copy of the criteria.
func (c *Criteria) Clone() *Criteria {
	if c == nil {
		return &Criteria{}
	}
	cp := *c
	cp.Params = maps.Clone(c.Params)
	cp.Args = slices.Clone(c.Args)
	return &cp
}

// MergeWith merges other into c and returns c. Conditions are combined with
// AND, or with OR when useAnd is false. Select, group, having, order, limit,
// offset and alias take the value of other when it is set; distinct is set
// when either criteria sets it. Params are unioned with the values of other
// winning on collision, and args are appended. Generated placeholders of
// other that c binds to a different value are renamed first.
func (c *Criteria) MergeWith(other *Criteria, useAnd bool) *Criteria {
	if other == nil {
		return c
	}
	if renames := c.generatedCollisions(other); len(renames) > 0 {
		other = other.withRenamedParams(renames)
	}
	if c.Condition != other.Condition {
		c.Condition = combineConditions(c.Condition, other.Condition, useAnd)
	}
	if other.Select != "" && other.Select != "*" {
		c.Select = other.Select
	}
	c.Distinct = c.Distinct || other.Distinct
	if len(other.Params) > 0 {
		if c.Params == nil {
			c.Params = make(map[string]any, len(other.Params))
		}
		for k, v := range other.Params {
			delete(c.Params, strings.TrimPrefix(k, ":"))
			delete(c.Params, paramName(k))
			c.Params[k] = v
		}
	}
	c.Args = append(c.Args, other.Args...)
	if other.Join != "" && other.Join != c.Join {
		if c.Join == "" {
			c.Join = other.Join
		} else {
			c.Join += " " + other.Join
		}
	}
	if other.Group != "" {
		c.Group = other.Group
	}
	if other.Having != "" {
		c.Having = other.Having
	}
	if other.Order != "" {
		c.Order = other.Order
	}
	if other.Limit > 0 {
		c.Limit = other.Limit
	}
	if other.Offset > 0 {
		c.Offset = other.Offset
	}
	if other.Alias != "" {
		c.Alias = other.Alias
	}
	return c
}

var generatedParam = regexp.MustCompile(regexp.QuoteMeta(criteriaParamPrefix) + `\d+`)

// generatedCollisions maps every generated placeholder of other that c
// binds to a different value onto a name unused by both criteria.
func (c *Criteria) generatedCollisions(other *Criteria) map[string]string {
	if len(c.Params) == 0 {
		return nil
	}
	var renames map[string]string
	taken := maps.Clone(c.Params)
	maps.Copy(taken, other.Params)
	n := 0
	for _, k := range slices.Sorted(maps.Keys(other.Params)) {
		if generatedParam.FindString(k) != k {
			continue
		}
		v, ok := lookupParam(c.Params, strings.TrimPrefix(k, ":"))
		if !ok || reflect.DeepEqual(v, other.Params[k]) {
			continue
		}
		if renames == nil {
			renames = make(map[string]string)
		}
		name := uniqueParam(taken, criteriaParamPrefix, &n)
		taken[name] = other.Params[k]
		renames[k] = name
	}
	return renames
}

// withRenamedParams returns a copy of c with the placeholders in renames
// replaced in its fragments and params.
func (c *Criteria) withRenamedParams(renames map[string]string) *Criteria {
	cp := c.Clone()
	rename := func(s string) string {
		return generatedParam.ReplaceAllStringFunc(s, func(m string) string {
			if r, ok := renames[m]; ok {
				return r
			}
			return m
		})
	}
	cp.Condition = rename(cp.Condition)
	cp.Having = rename(cp.Having)
	cp.Params = make(map[string]any, len(c.Params))
	for k, v := range c.Params {
		if r, ok := renames[k]; ok {
			k = r
		}
		cp.Params[k] = v
	}
	return cp
}

func combineConditions(a, b string, useAnd bool) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	op := " AND "
	if !useAnd {
		op = " OR "
	}
	return "(" + a + ")" + op + "(" + b + ")"
}

// AddCondition appends a condition, combined with AND or OR.
func (c *Criteria) AddCondition(condition string, useAnd bool) *Criteria {
	c.Condition = combineConditions(c.Condition, condition, useAnd)
	return c
}

// AddInCondition appends "column IN (...)". An empty value list appends an
// always false condition.
func (c *Criteria) AddInCondition(column string, values []any, useAnd bool) *Criteria {
	return c.addIn(column, values, "IN", "=", useAnd)
}

// AddNotInCondition appends "column NOT IN (...)". An empty value list
// appends nothing.
func (c *Criteria) AddNotInCondition(column string, values []any, useAnd bool) *Criteria {
	if len(values) == 0 {
		return c
	}
	return c.addIn(column, values, "NOT IN", "!=", useAnd)
}

func (c *Criteria) addIn(column string, values []any, in, eq string, useAnd bool) *Criteria {
	switch len(values) {
	case 0:
		return c.AddCondition("0=1", useAnd)
	case 1:
		if values[0] == nil {
			if in == "IN" {
				return c.AddCondition(column+" IS NULL", useAnd)
			}
			return c.AddCondition(column+" IS NOT NULL", useAnd)
		}
		return c.AddCondition(column+eq+c.bindParam(values[0]), useAnd)
	}
	names := make([]string, len(values))
	for i, v := range values {
		names[i] = c.bindParam(v)
	}
	return c.AddCondition(column+" "+in+" ("+strings.Join(names, ", ")+")", useAnd)
}

// AddColumnCondition appends the AND of "column=value" for every entry of
// columns, in column name order.
func (c *Criteria) AddColumnCondition(columns map[string]any, useAnd bool) *Criteria {
	if len(columns) == 0 {
		return c
	}
	conds := make([]string, 0, len(columns))
	for _, name := range slices.Sorted(maps.Keys(columns)) {
		if v := columns[name]; v == nil {
			conds = append(conds, name+" IS NULL")
		} else {
			conds = append(conds, name+"="+c.bindParam(v))
		}
	}
	return c.AddCondition(strings.Join(conds, " AND "), useAnd)
}

// AddSearchCondition appends "column LIKE :param" matching keyword anywhere
// in the column. The LIKE wildcards of keyword are escaped.
func (c *Criteria) AddSearchCondition(column, keyword string, useAnd bool) *Criteria {
	if keyword == "" {
		return c
	}
	escaped := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(keyword)
	return c.AddCondition(column+" LIKE "+c.bindParam("%"+escaped+"%"), useAnd)
}

// AddBetweenCondition appends "column BETWEEN :start AND :end".
func (c *Criteria) AddBetweenCondition(column string, start, end any, useAnd bool) *Criteria {
	return c.AddCondition(column+" BETWEEN "+c.bindParam(start)+" AND "+c.bindParam(end), useAnd)
}

// bindParam stores v under a new generated placeholder and returns it.
func (c *Criteria) bindParam(v any) string {
	if c.Params == nil {
		c.Params = make(map[string]any)
	}
	n := 0
	name := uniqueParam(c.Params, criteriaParamPrefix, &n)
	c.Params[name] = v
	return name
}

// uniqueParam returns the first placeholder prefixN, starting at *n, that
// is not a key of params, with or without its colon. *n is advanced past
// the returned name.
func uniqueParam(params map[string]any, prefix string, n *int) string {
	for {
		name := prefix + strconv.Itoa(*n)
		*n++
		if _, ok := lookupParam(params, strings.TrimPrefix(name, ":")); !ok {
			return name
		}
	}
}
