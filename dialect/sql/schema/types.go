package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// Type is the logical type a column value is bound and typecast with.
type Type string

// Logical column types shared by all dialects.
const (
	TypeInteger Type = "integer"
	TypeDouble  Type = "double"
	TypeString  Type = "string"
	TypeBoolean Type = "boolean"
	TypeBinary  Type = "binary"
)

// TypeMap maps lower-cased native type names to logical types.
type TypeMap map[string]Type

// Resolve returns the logical type for dbType. The full lower-cased type is
// tried first, then its base name without the size suffix. Unmapped types
// resolve to TypeString.
func (m TypeMap) Resolve(dbType string) Type {
	t := strings.ToLower(strings.TrimSpace(dbType))
	if typ, ok := m[t]; ok {
		return typ
	}
	base, _, _, _ := ParseDBType(t)
	if typ, ok := m[base]; ok {
		return typ
	}
	if i := strings.IndexByte(base, ' '); i > 0 {
		if typ, ok := m[base[:i]]; ok {
			return typ
		}
	}
	return TypeString
}

// ParseDBType splits a declared type such as "NUMERIC(5,2)" into its base
// name and the size, precision and scale found between the parentheses.
// Missing values are reported as zero.
func ParseDBType(dbType string) (base string, size, precision, scale int) {
	base = strings.TrimSpace(dbType)
	open := strings.IndexByte(base, '(')
	if open < 0 {
		return base, 0, 0, 0
	}
	end := strings.LastIndexByte(base, ')')
	if end < open {
		return base, 0, 0, 0
	}
	args := strings.Split(base[open+1:end], ",")
	base = strings.TrimSpace(base[:open] + base[end+1:])
	if n, err := strconv.Atoi(strings.TrimSpace(args[0])); err == nil {
		size, precision = n, n
	}
	if len(args) > 1 {
		if n, err := strconv.Atoi(strings.TrimSpace(args[1])); err == nil {
			scale = n
		}
	}
	return base, size, precision, scale
}

// Typecast converts v to the Go representation of the logical type:
// int64, float64, bool, string or []byte. Values that cannot be converted
// are returned unchanged.
func Typecast(typ Type, allowNull bool, v any) any {
	if v == nil {
		return nil
	}
	if s, ok := v.(string); ok && s == "" && allowNull {
		if typ == TypeString {
			return ""
		}
		return nil
	}
	switch typ {
	case TypeInteger:
		if n, ok := toInt64(v); ok {
			return n
		}
	case TypeDouble:
		if f, ok := toFloat64(v); ok {
			return f
		}
	case TypeBoolean:
		if b, ok := toBool(v); ok {
			return b
		}
	case TypeString:
		switch v := v.(type) {
		case string:
			return v
		case []byte:
			return string(v)
		default:
			return fmt.Sprint(v)
		}
	case TypeBinary:
		if s, ok := v.(string); ok {
			return []byte(s)
		}
	}
	return v
}

func toInt64(v any) (int64, bool) {
	switch v := v.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return int64(v), true
	case float32:
		return int64(v), true
	case float64:
		return int64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case []byte:
		return toInt64(string(v))
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if ferr != nil {
				return 0, false
			}
			return int64(f), true
		}
		return n, true
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case []byte:
		return toFloat64(string(v))
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	if n, ok := toInt64(v); ok {
		return float64(n), true
	}
	return 0, false
}

func toBool(v any) (bool, bool) {
	switch v := v.(type) {
	case bool:
		return v, true
	case []byte:
		return toBool(string(v))
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes", "on", "b'1'":
			return true, true
		case "0", "f", "false", "n", "no", "off", "b'0'", "":
			return false, true
		}
		return false, false
	}
	if n, ok := toInt64(v); ok {
		return n != 0, true
	}
	return false, false
}
