package schema

import (
	"fmt"
	"strings"
)

// ValidationError describes a problem found in a table definition.
type ValidationError struct {
	Table   string
	Column  string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s.%s: %s", e.Table, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Table, e.Message)
}

// ValidationResult holds the results of table validation.
type ValidationResult struct {
	Errors   []*ValidationError
	Warnings []*ValidationError
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings.
func (r *ValidationResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// String returns a human-readable summary of the validation result.
func (r *ValidationResult) String() string {
	var sb strings.Builder
	if len(r.Errors) > 0 {
		sb.WriteString("Errors:\n")
		for _, e := range r.Errors {
			sb.WriteString("  - ")
			sb.WriteString(e.Error())
			sb.WriteString("\n")
		}
	}
	if len(r.Warnings) > 0 {
		sb.WriteString("Warnings:\n")
		for _, w := range r.Warnings {
			sb.WriteString("  - ")
			sb.WriteString(w.Error())
			sb.WriteString("\n")
		}
	}
	if !r.HasErrors() && !r.HasWarnings() {
		sb.WriteString("No issues found")
	}
	return sb.String()
}

// ValidateTable checks that the key metadata of t is consistent with its
// columns. Tables without a primary key are reported as a warning, since the
// command builder cannot build primary-key criteria for them.
func ValidateTable(t *Table) *ValidationResult {
	result := &ValidationResult{}
	if !t.HasPrimaryKey() {
		result.Warnings = append(result.Warnings, &ValidationError{
			Table:   t.Name,
			Message: "table has no primary key",
		})
	}

	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if seen[c.Name] {
			result.Errors = append(result.Errors, &ValidationError{
				Table:   t.Name,
				Column:  c.Name,
				Message: "duplicate column name",
			})
		}
		seen[c.Name] = true
	}

	for _, name := range t.PrimaryKey {
		c := t.Column(name)
		switch {
		case c == nil:
			result.Errors = append(result.Errors, &ValidationError{
				Table:   t.Name,
				Column:  name,
				Message: "primary key references non-existent column",
			})
		case !c.IsPrimaryKey:
			result.Errors = append(result.Errors, &ValidationError{
				Table:   t.Name,
				Column:  name,
				Message: "primary key column is not flagged as primary key",
			})
		}
	}

	for name, fk := range t.ForeignKeys {
		c := t.Column(name)
		if c == nil {
			result.Errors = append(result.Errors, &ValidationError{
				Table:   t.Name,
				Column:  name,
				Message: fmt.Sprintf("foreign key to %s.%s references non-existent column", fk.Table, fk.Column),
			})
			continue
		}
		if !c.IsForeignKey {
			result.Warnings = append(result.Warnings, &ValidationError{
				Table:   t.Name,
				Column:  name,
				Message: "foreign key column is not flagged as foreign key",
			})
		}
	}

	if t.HasSequence && t.IsCompositeKey() {
		result.Warnings = append(result.Warnings, &ValidationError{
			Table:   t.Name,
			Message: "sequence detected on a composite primary key",
		})
	}
	return result
}
