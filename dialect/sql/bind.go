package sql

import (
	"fmt"
	"strconv"
	"strings"
)

// PlaceholderStyle is the native placeholder syntax of a driver.
type PlaceholderStyle int

// Placeholder styles.
const (
	// Question is the "?" placeholder used by MySQL and SQLite drivers.
	Question PlaceholderStyle = iota
	// Dollar is the "$1" placeholder used by PostgreSQL drivers.
	Dollar
)

// bindParams rewrites the ":name" and "?" placeholders of query into the
// native style and returns the matching argument list. Quoted literals,
// quoted identifiers, comments and PostgreSQL "::" casts are left untouched.
//
// A statement may use named or positional placeholders, not both. A query
// without any placeholder is returned unchanged together with positional,
// so that statements written with driver-native placeholders keep working.
func bindParams(query string, named map[string]any, positional []any, style PlaceholderStyle) (string, []any, error) {
	var (
		sb      strings.Builder
		args    []any
		nNamed  int
		nPos    int
		indexes map[string]int
	)
	sb.Grow(len(query) + 8)
	emit := func(v any, name string) {
		if style == Dollar && name != "" {
			if indexes == nil {
				indexes = make(map[string]int)
			}
			if i, ok := indexes[name]; ok {
				sb.WriteString("$" + strconv.Itoa(i))
				return
			}
			indexes[name] = len(args) + 1
		}
		args = append(args, v)
		if style == Dollar {
			sb.WriteString("$" + strconv.Itoa(len(args)))
		} else {
			sb.WriteByte('?')
		}
	}
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			end := skipQuoted(query, i)
			sb.WriteString(query[i:end])
			i = end - 1
		case c == '-' && i+1 < len(query) && query[i+1] == '-':
			end := strings.IndexByte(query[i:], '\n')
			if end < 0 {
				end = len(query) - i
			}
			sb.WriteString(query[i : i+end])
			i += end - 1
		case c == '/' && i+1 < len(query) && query[i+1] == '*':
			end := strings.Index(query[i+2:], "*/")
			if end < 0 {
				end = len(query)
			} else {
				end += i + 4
			}
			sb.WriteString(query[i:end])
			i = end - 1
		case c == ':' && i+1 < len(query) && query[i+1] == ':':
			sb.WriteString("::")
			i++
		case c == ':' && i+1 < len(query) && isIdentStart(query[i+1]):
			j := i + 1
			for j < len(query) && isIdentChar(query[j]) {
				j++
			}
			name := query[i+1 : j]
			v, ok := lookupParam(named, name)
			if !ok {
				return "", nil, fmt.Errorf("missing value for parameter :%s", name)
			}
			nNamed++
			emit(v, name)
			i = j - 1
		case c == '?':
			if nPos >= len(positional) {
				return "", nil, fmt.Errorf("missing value for positional parameter %d", nPos+1)
			}
			emit(positional[nPos], "")
			nPos++
		default:
			sb.WriteByte(c)
		}
	}
	switch {
	case nNamed > 0 && nPos > 0:
		return "", nil, fmt.Errorf("statement mixes named and positional parameters")
	case nNamed == 0 && nPos == 0:
		return query, positional, nil
	case nPos > 0 && nPos != len(positional):
		return "", nil, fmt.Errorf("statement has %d positional parameters but %d values were bound", nPos, len(positional))
	}
	return sb.String(), args, nil
}

// lookupParam finds a named parameter given with or without its leading colon.
func lookupParam(named map[string]any, name string) (any, bool) {
	if v, ok := named[":"+name]; ok {
		return v, true
	}
	v, ok := named[name]
	return v, ok
}

// skipQuoted returns the index just past the quoted section starting at i.
// Doubled quote characters and backslash escapes inside single-quoted
// strings are honored.
func skipQuoted(s string, i int) int {
	q := s[i]
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '\\':
			if q == '\'' {
				j++
			}
		case q:
			if j+1 < len(s) && s[j+1] == q {
				j++
				continue
			}
			return j + 1
		}
	}
	return len(s)
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// paramName returns name with a leading colon.
func paramName(name string) string {
	if strings.HasPrefix(name, ":") {
		return name
	}
	return ":" + name
}
