package sql

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/syssam/sqlkit/dialect"
)

// Attr names a connection attribute.
type Attr string

// Connection attributes.
const (
	// AttrTimeout is a time.Duration bounding every statement.
	AttrTimeout Attr = "timeout"
	// AttrCase is the ColumnCase applied to result column names.
	AttrCase Attr = "case"
	// AttrNullConversion is the NullConversion applied to result values.
	AttrNullConversion Attr = "null_conversion"

	// AttrDriverName is the read-only normalized driver name.
	AttrDriverName Attr = "driver_name"
	// AttrServerVersion is the read-only version reported by the server.
	AttrServerVersion Attr = "server_version"
	// AttrClientVersion is the read-only version of the Go driver module
	// linked into the binary.
	AttrClientVersion Attr = "client_version"
)

// driverModules maps dialects to the module providing their Go driver.
var driverModules = map[string]string{
	dialect.MySQL:    "github.com/go-sql-driver/mysql",
	dialect.Postgres: "github.com/lib/pq",
	dialect.SQLite:   "modernc.org/sqlite",
}

// ColumnCase controls the case of result column names.
type ColumnCase int

// Column cases.
const (
	CaseNatural ColumnCase = iota
	CaseLower
	CaseUpper
)

func parseColumnCase(s string) ColumnCase {
	switch strings.ToLower(s) {
	case "lower":
		return CaseLower
	case "upper":
		return CaseUpper
	}
	return CaseNatural
}

// NullConversion controls how NULLs and empty strings are returned.
type NullConversion int

// Null conversions.
const (
	// NullNatural returns values as the driver does.
	NullNatural NullConversion = iota
	// NullEmptyString returns empty strings as nil.
	NullEmptyString
	// NullToString returns nil as an empty string.
	NullToString
)

func parseNullConversion(s string) NullConversion {
	switch strings.ToLower(s) {
	case "empty_string":
		return NullEmptyString
	case "to_string":
		return NullToString
	}
	return NullNatural
}

// SetAttribute sets a connection attribute. Read-only and unknown
// attributes, or values of the wrong type, are rejected.
func (c *Conn) SetAttribute(name Attr, value any) error {
	var ok bool
	switch name {
	case AttrTimeout:
		_, ok = value.(time.Duration)
	case AttrCase:
		_, ok = value.(ColumnCase)
	case AttrNullConversion:
		_, ok = value.(NullConversion)
	case AttrDriverName, AttrServerVersion, AttrClientVersion:
		return &ConfigurationError{Msg: fmt.Sprintf("attribute %q is read-only", name)}
	default:
		return &ConfigurationError{Msg: fmt.Sprintf("unknown attribute %q", name)}
	}
	if !ok {
		return &ConfigurationError{Msg: fmt.Sprintf("invalid value %T for attribute %q", value, name)}
	}
	c.attrs[name] = value
	return nil
}

// Attribute returns the value of a connection attribute. Reading the server
// version opens the connection.
func (c *Conn) Attribute(ctx context.Context, name Attr) (any, error) {
	switch name {
	case AttrTimeout, AttrCase, AttrNullConversion:
		return c.attrs[name], nil
	case AttrDriverName:
		return c.DriverName(), nil
	case AttrServerVersion:
		return c.ServerVersion(ctx)
	case AttrClientVersion:
		return c.ClientVersion()
	}
	return nil, &ConfigurationError{Msg: fmt.Sprintf("unknown attribute %q", name)}
}

// ServerVersion returns the version reported by the database server.
func (c *Conn) ServerVersion(ctx context.Context) (string, error) {
	if err := c.Open(ctx); err != nil {
		return "", err
	}
	s, err := c.Schema()
	if err != nil {
		return "", err
	}
	return s.dialect.ServerVersion(ctx, c)
}

// ClientVersion returns the version of the driver module serving the
// connection, as recorded in the build info. It is empty when the binary
// carries no module information, as with "go run" of a file.
func (c *Conn) ClientVersion() (string, error) {
	name := c.DriverName()
	d, _ := dialect.Lookup(name)
	path, ok := driverModules[d]
	if !ok {
		return "", &ConfigurationError{Msg: fmt.Sprintf("no driver module known for %q", name)}
	}
	return moduleVersion(path), nil
}

func moduleVersion(path string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, m := range info.Deps {
		if m.Path != path {
			continue
		}
		if m.Replace != nil {
			return m.Replace.Version
		}
		return m.Version
	}
	return ""
}

func (c *Conn) columnCase() ColumnCase {
	cc, _ := c.attrs[AttrCase].(ColumnCase)
	return cc
}

func (c *Conn) nullConversion() NullConversion {
	nc, _ := c.attrs[AttrNullConversion].(NullConversion)
	return nc
}
