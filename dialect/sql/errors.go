package sql

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors matched by the typed errors of this package through errors.Is.
var (
	// ErrConnection is matched by *ConnectionError.
	ErrConnection = errors.New("dialect/sql: connection error")

	// ErrConfiguration is matched by *ConfigurationError.
	ErrConfiguration = errors.New("dialect/sql: configuration error")

	// ErrSchema is matched by *SchemaError.
	ErrSchema = errors.New("dialect/sql: schema error")

	// ErrQuery is matched by *QueryError.
	ErrQuery = errors.New("dialect/sql: query error")

	// ErrTxState is matched by *TxStateError.
	ErrTxState = errors.New("dialect/sql: invalid transaction state")

	// ErrColumnMismatch is matched by *ColumnMismatchError.
	ErrColumnMismatch = errors.New("dialect/sql: column mismatch")
)

// ConnectionError is returned when a connection cannot be opened.
//
// Outside of debug mode the error message is generic and the driver error is
// not reachable through Unwrap, so that host names and credentials do not leak
// to callers. The detail is sent to the connection logger instead.
type ConnectionError struct {
	Driver  string
	Code    string
	Err     error
	Verbose bool
}

// Error returns the error string.
func (e *ConnectionError) Error() string {
	if !e.Verbose || e.Err == nil {
		return "dialect/sql: failed to open the DB connection"
	}
	if e.Code != "" {
		return fmt.Sprintf("dialect/sql: failed to open the DB connection: %v (code %s)", e.Err, e.Code)
	}
	return fmt.Sprintf("dialect/sql: failed to open the DB connection: %v", e.Err)
}

// Unwrap returns the driver error in debug mode only.
func (e *ConnectionError) Unwrap() error {
	if e.Verbose {
		return e.Err
	}
	return nil
}

// Is reports whether target is ErrConnection.
func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// ConfigurationError reports an invalid connection or schema configuration,
// such as an empty DSN or a driver without a registered dialect.
type ConfigurationError struct {
	Msg string
}

// Error returns the error string.
func (e *ConfigurationError) Error() string { return "dialect/sql: " + e.Msg }

// Is reports whether target is ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// SchemaError reports an operation a dialect does not support or table
// metadata that does not allow the requested operation.
type SchemaError struct {
	Dialect string
	Table   string
	Msg     string
}

// Error returns the error string.
func (e *SchemaError) Error() string {
	switch {
	case e.Table != "":
		return fmt.Sprintf("dialect/sql: table %q: %s", e.Table, e.Msg)
	case e.Dialect != "":
		return fmt.Sprintf("dialect/sql: %s: %s", e.Dialect, e.Msg)
	}
	return "dialect/sql: " + e.Msg
}

// Is reports whether target is ErrSchema.
func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// QueryError wraps a driver error returned while executing a statement.
type QueryError struct {
	SQL    string
	Params string // Rendered params, set only when param logging is enabled.
	Err    error
}

// Error returns the error string.
func (e *QueryError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "dialect/sql: failed to execute the SQL statement: %v. The SQL statement executed was: %s", e.Err, e.SQL)
	if e.Params != "" {
		fmt.Fprintf(&sb, ". Bound with %s", e.Params)
	}
	return sb.String()
}

// Unwrap returns the underlying driver error.
func (e *QueryError) Unwrap() error { return e.Err }

// Is reports whether target is ErrQuery.
func (e *QueryError) Is(target error) bool { return target == ErrQuery }

// TxStateError is returned when a transaction operation is not valid in the
// current state, e.g. committing a transaction that was already rolled back.
type TxStateError struct {
	Op  string
	Msg string
}

// Error returns the error string.
func (e *TxStateError) Error() string {
	return fmt.Sprintf("dialect/sql: %s: %s", e.Op, e.Msg)
}

// Is reports whether target is ErrTxState.
func (e *TxStateError) Is(target error) bool { return target == ErrTxState }

// ColumnMismatchError is returned when a command references columns that do
// not exist in a known table schema.
type ColumnMismatchError struct {
	Table   string
	Columns []string
}

// Error returns the error string.
func (e *ColumnMismatchError) Error() string {
	if len(e.Columns) == 0 {
		return fmt.Sprintf("dialect/sql: no columns given for table %q", e.Table)
	}
	return fmt.Sprintf("dialect/sql: table %q does not have column(s) %s", e.Table, strings.Join(e.Columns, ", "))
}

// Is reports whether target is ErrColumnMismatch.
func (e *ColumnMismatchError) Is(target error) bool { return target == ErrColumnMismatch }

// IsConnectionError returns true if the error is a ConnectionError.
func IsConnectionError(err error) bool { return errors.Is(err, ErrConnection) }

// IsConfigurationError returns true if the error is a ConfigurationError.
func IsConfigurationError(err error) bool { return errors.Is(err, ErrConfiguration) }

// IsSchemaError returns true if the error is a SchemaError.
func IsSchemaError(err error) bool { return errors.Is(err, ErrSchema) }

// IsQueryError returns true if the error is a QueryError.
func IsQueryError(err error) bool { return errors.Is(err, ErrQuery) }

// IsTxStateError returns true if the error is a TxStateError.
func IsTxStateError(err error) bool { return errors.Is(err, ErrTxState) }

// IsColumnMismatchError returns true if the error is a ColumnMismatchError.
func IsColumnMismatchError(err error) bool { return errors.Is(err, ErrColumnMismatch) }
