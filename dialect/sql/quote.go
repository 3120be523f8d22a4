package sql

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Expr is a raw SQL expression. It is embedded into generated statements as
// is, instead of being bound or quoted like other values.
type Expr string

// String returns the expression text.
func (e Expr) String() string { return string(e) }

// formatValue renders v as an SQL literal. Numbers and booleans are written
// as numeric literals, nil as NULL, and everything else is passed to quote as
// a string.
func formatValue(v any, quote func(string) string) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case Expr:
		return string(v)
	case int:
		return strconv.Itoa(v)
	case int8:
		return strconv.FormatInt(int64(v), 10)
	case int16:
		return strconv.FormatInt(int64(v), 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case uint8:
		return strconv.FormatUint(uint64(v), 10)
	case uint16:
		return strconv.FormatUint(uint64(v), 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float32:
		return formatFloat(float64(v), 32, quote)
	case float64:
		return formatFloat(v, 64, quote)
	case bool:
		if v {
			return "1"
		}
		return "0"
	case string:
		return quote(v)
	case []byte:
		return quote(string(v))
	case time.Time:
		return quote(v.Format(time.DateTime))
	case fmt.Stringer:
		return quote(v.String())
	default:
		return quote(fmt.Sprint(v))
	}
}

// formatFloat writes finite floats as numeric literals. NaN and the
// infinities have no literal form and are quoted as "NaN", "Infinity" and
// "-Infinity".
func formatFloat(f float64, bits int, quote func(string) string) string {
	switch {
	case math.IsNaN(f):
		return quote("NaN")
	case math.IsInf(f, 1):
		return quote("Infinity")
	case math.IsInf(f, -1):
		return quote("-Infinity")
	}
	return strconv.FormatFloat(f, 'f', -1, bits)
}

// fallbackQuote quotes s for drivers without native quoting support: single
// quotes are doubled, and NUL, newline, carriage return, backslash and
// Ctrl-Z are backslash-escaped.
func fallbackQuote(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 2)
	sb.WriteByte('\'')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\'':
			sb.WriteString("''")
		case 0:
			sb.WriteString(`\0`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\\':
			sb.WriteString(`\\`)
		case 0x1a:
			sb.WriteString(`\Z`)
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('\'')
	return sb.String()
}

// quoteIdentifierParts splits a dotted name and quotes every part with fn.
// A "*" part is left unquoted.
func quoteIdentifierParts(name string, fn func(string) string) string {
	if !strings.Contains(name, ".") {
		if name == "*" {
			return name
		}
		return fn(name)
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		if p != "*" {
			parts[i] = fn(p)
		}
	}
	return strings.Join(parts, ".")
}

// wrapIdentifier quotes name with the given open and close characters unless
// it is already quoted. The close character is doubled inside the name.
func wrapIdentifier(name string, open, close byte) string {
	if len(name) >= 2 && name[0] == open && name[len(name)-1] == close {
		return name
	}
	return string(open) + strings.ReplaceAll(name, string(close), string([]byte{close, close})) + string(close)
}

// stringValue converts a scanned value to a string. NULL becomes "".
func stringValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	}
	return fmt.Sprint(v)
}

// toInt64 converts a scanned value to an integer.
func toInt64(v any) (int64, bool) {
	switch v := v.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case uint64:
		return int64(v), true
	case float64:
		return int64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string, []byte:
		n, err := strconv.ParseInt(strings.TrimSpace(stringValue(v)), 10, 64)
		return n, err == nil
	}
	return 0, false
}
