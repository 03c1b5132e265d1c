package storage

import (
	"strings"

	"modelconv/internal/catalog"
	"modelconv/internal/schema"
	"modelconv/internal/table"
)

// ColumnType is a backend-neutral column type. Each backend maps it onto its
// own SQL type.
type ColumnType string

const (
	ColumnText    ColumnType = "text"
	ColumnInteger ColumnType = "integer"
	ColumnReal    ColumnType = "real"
)

// DType is the catalog dtype values of this column are cast to before
// insert.
func (t ColumnType) DType() catalog.DType {
	switch t {
	case ColumnInteger:
		return catalog.DTypeInt
	case ColumnReal:
		return catalog.DTypeFloat
	default:
		return catalog.DTypeString
	}
}

// TableSpec describes one table to create and load. Name is the possibly
// schema-qualified SQL name; Resource is the dataset table it holds.
type TableSpec struct {
	Name       string
	Resource   string
	Columns    []ColumnSpec
	PrimaryKey []string
}

// ColumnSpec describes one column. References, when set, declares a foreign
// key onto another table's column.
type ColumnSpec struct {
	Name       string
	Type       ColumnType
	Nullable   bool
	References *Reference
}

type Reference struct {
	Table  string
	Column string
}

// SourceName returns Resource, falling back to the last part of Name.
func (t TableSpec) SourceName() string {
	if t.Resource != "" {
		return t.Resource
	}
	if i := strings.LastIndex(t.Name, "."); i >= 0 {
		return t.Name[i+1:]
	}
	return t.Name
}

// ColumnNames returns the column names in order.
func (t TableSpec) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// IsKey reports whether column name is part of the primary key.
func (t TableSpec) IsKey(name string) bool {
	for _, k := range t.PrimaryKey {
		if k == name {
			return true
		}
	}
	return false
}

// TableOptions controls TablesFromPackage.
type TableOptions struct {
	// ForeignKeys declares a REFERENCES clause for every foreign key in the
	// package schema.
	ForeignKeys bool

	// Schema, when set, qualifies every table name as <Schema>.<Name>.
	Schema string

	// Exclude lists resources that get no table.
	Exclude []string
}

// TablesFromPackage derives table specs from a package schema. Tables with no
// foreign keys come first so that every referenced table exists, and is
// loaded, before the tables that reference it. Set tables are keyed on their
// value column; parameter tables on their index columns.
func TablesFromPackage(p *schema.Package, opts TableOptions) []TableSpec {
	skip := make(map[string]bool, len(opts.Exclude))
	for _, n := range opts.Exclude {
		skip[n] = true
	}
	qualify := func(name string) string {
		if s := strings.TrimSpace(opts.Schema); s != "" {
			return s + "." + name
		}
		return name
	}

	var roots, dependents []TableSpec
	for _, res := range p.Resources {
		if skip[res.Name] || res.Schema == nil {
			continue
		}
		sc := res.Schema

		spec := TableSpec{Name: qualify(res.Name), Resource: res.Name, PrimaryKey: append([]string(nil), sc.PrimaryKey...)}
		if len(sc.PrimaryKey) == 0 && len(sc.ForeignKeys) == 0 && isSetSchema(sc) {
			spec.PrimaryKey = []string{table.ValueColumn}
		}

		refs := make(map[string]*Reference, len(sc.ForeignKeys))
		if opts.ForeignKeys {
			for _, fk := range sc.ForeignKeys {
				if skip[fk.Reference.Resource] {
					continue
				}
				refs[fk.Fields] = &Reference{Table: qualify(fk.Reference.Resource), Column: fk.Reference.Fields}
			}
		}

		for _, f := range sc.Fields {
			spec.Columns = append(spec.Columns, ColumnSpec{
				Name:       f.Name,
				Type:       columnType(f.Type),
				Nullable:   !spec.IsKey(f.Name),
				References: refs[f.Name],
			})
		}

		if len(sc.ForeignKeys) == 0 {
			roots = append(roots, spec)
		} else {
			dependents = append(dependents, spec)
		}
	}
	return append(roots, dependents...)
}

// isSetSchema reports whether sc describes a set table: a lone VALUE column.
func isSetSchema(sc *schema.Schema) bool {
	return len(sc.Fields) == 1 && sc.Fields[0].Name == table.ValueColumn
}

func columnType(fieldType string) ColumnType {
	switch fieldType {
	case "integer":
		return ColumnInteger
	case "number":
		return ColumnReal
	default:
		return ColumnText
	}
}
