// Package schema describes database tables as read by the dialect/sql
// schema introspectors.
//
// Tables and columns are plain values that can be cached and shared between
// connections. Each column carries both its declared database type and one of
// a small set of logical types (integer, double, string, boolean, binary)
// which the command builder uses when rendering and binding values.
package schema
