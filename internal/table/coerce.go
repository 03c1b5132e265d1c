package table

import (
	"fmt"

	"modelconv/internal/catalog"
)

// ValidationError reports a cell that could not be cast to its column's
// declared type. It aborts the conversion of Entity only; the caller decides
// whether to skip that entity or halt.
type ValidationError struct {
	Entity string
	Column string
	Row    int
	Value  any
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("validation error in %s: %v", e.Entity, e.Err)
	}
	return fmt.Sprintf("validation error when checking datatype of %s: column %s row %d value %q: %v",
		e.Entity, e.Column, e.Row, catalog.Format(e.Value), e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Coerce casts every cell of rows to the declared type of its column and
// returns new rows. Index columns and set members must not be missing; a
// parameter's value may be (nil stays nil). Rows whose width differs from
// len(types) are rejected.
//
// Coercing rows that are already typed returns equal rows.
func Coerce(entity string, kind catalog.Kind, columns []string, types []catalog.DType, rows [][]any) ([][]any, error) {
	if len(columns) != len(types) {
		return nil, &ValidationError{Entity: entity, Err: fmt.Errorf("%d columns but %d types", len(columns), len(types))}
	}
	valueCol := len(types) - 1
	if kind != catalog.KindParam {
		valueCol = -1
	}

	out := make([][]any, len(rows))
	for r, row := range rows {
		if len(row) != len(types) {
			return nil, &ValidationError{
				Entity: entity,
				Row:    r,
				Err:    fmt.Errorf("row %d has %d cells, want %d", r, len(row), len(types)),
			}
		}
		typed := make([]any, len(row))
		for c, v := range row {
			if v == nil && c != valueCol {
				return nil, &ValidationError{Entity: entity, Column: columns[c], Row: r, Err: fmt.Errorf("missing value")}
			}
			cv, err := types[c].Cast(v)
			if err != nil {
				return nil, &ValidationError{Entity: entity, Column: columns[c], Row: r, Value: v, Err: err}
			}
			typed[c] = cv
		}
		out[r] = typed
	}
	return out, nil
}

// Assemble wraps coerced rows for e into a Table with the declared column
// order. Rows are kept as given; duplicates are not removed.
func Assemble(e *catalog.Entity, types []catalog.DType, rows [][]any) *Table {
	return &Table{
		Name:    e.Name,
		Kind:    e.Kind,
		Columns: Columns(e),
		Types:   types,
		Rows:    rows,
	}
}

// Build coerces rows against c's declaration of e and assembles the table.
func Build(c *catalog.Catalog, e *catalog.Entity, rows [][]any) (*Table, error) {
	types := c.ColumnTypes(e)
	typed, err := Coerce(e.Name, e.Kind, Columns(e), types, rows)
	if err != nil {
		return nil, err
	}
	return Assemble(e, types, typed), nil
}
