// Package table turns parsed datafile entities into typed tables: one table
// per entity, index columns followed by VALUE for parameters and a single
// VALUE column for sets.
package table

import (
	"modelconv/internal/catalog"
)

// ValueColumn is the name of the value column every table carries.
const ValueColumn = "VALUE"

// Table is the ordered rows of one entity.
//
// Types holds one dtype per column when the rows have been coerced. A nil
// Types marks a table read from a file that no catalog entity describes; its
// cells are raw strings (or nil for missing).
type Table struct {
	Name    string
	Kind    catalog.Kind
	Columns []string
	Types   []catalog.DType
	Rows    [][]any
}

// Typed reports whether the table's cells have been coerced.
func (t *Table) Typed() bool { return t.Types != nil }

// ColumnIndex returns the position of name in t.Columns.
func (t *Table) ColumnIndex(name string) (int, bool) {
	for i, c := range t.Columns {
		if c == name {
			return i, true
		}
	}
	return -1, false
}

// Columns returns the declared column names of e: its indices then VALUE.
func Columns(e *catalog.Entity) []string {
	cols := make([]string, 0, len(e.Indices)+1)
	cols = append(cols, e.Indices...)
	return append(cols, ValueColumn)
}

// Dataset is the set of tables produced by one conversion run, kept in
// catalog order.
type Dataset struct {
	tables []*Table
	byName map[string]*Table

	// Skipped lists entities dropped because their rows failed validation.
	Skipped []*ValidationError
}

// NewDataset returns an empty dataset.
func NewDataset() *Dataset {
	return &Dataset{byName: make(map[string]*Table)}
}

// Add appends t, replacing any table with the same name in place.
func (d *Dataset) Add(t *Table) {
	if _, ok := d.byName[t.Name]; ok {
		for i := range d.tables {
			if d.tables[i].Name == t.Name {
				d.tables[i] = t
			}
		}
	} else {
		d.tables = append(d.tables, t)
	}
	d.byName[t.Name] = t
}

// Table returns the table named name, or nil.
func (d *Dataset) Table(name string) *Table { return d.byName[name] }

// Tables returns all tables in insertion order.
func (d *Dataset) Tables() []*Table { return append([]*Table(nil), d.tables...) }

// Len reports the number of tables.
func (d *Dataset) Len() int { return len(d.tables) }
