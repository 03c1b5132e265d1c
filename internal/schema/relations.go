package schema

import (
	"modelconv/internal/catalog"
	"modelconv/internal/table"
)

// AddRelations augments p in place from the catalog.
//
// Every parameter resource gets primaryKey = its index columns and one
// foreign key per index column referencing <index>.VALUE. Catalog entities
// with no resource in p get one built from their declaration, so the key
// set always covers the whole catalog. Every schema's missing-value marker
// is set to "".
func AddRelations(p *Package, c *catalog.Catalog) {
	for _, e := range c.Entities() {
		res := p.Resource(e.Name)
		if res == nil {
			res = newResource(e.Name, declaredFields(c, e))
			p.Resources = append(p.Resources, res)
		}
		if !e.IsParam() {
			continue
		}

		res.Schema.PrimaryKey = append([]string(nil), e.Indices...)
		res.Schema.ForeignKeys = make([]ForeignKey, 0, len(e.Indices))
		for _, idx := range e.Indices {
			res.Schema.ForeignKeys = append(res.Schema.ForeignKeys, ForeignKey{
				Fields:    idx,
				Reference: Reference{Resource: idx, Fields: table.ValueColumn},
			})
		}
	}

	for _, res := range p.Resources {
		if res.Schema == nil {
			res.Schema = &Schema{}
		}
		res.Schema.MissingValues = []string{MissingValue}
	}
}

func declaredFields(c *catalog.Catalog, e *catalog.Entity) []Field {
	cols := table.Columns(e)
	types := c.ColumnTypes(e)
	fields := make([]Field, len(cols))
	for i := range cols {
		fields[i] = Field{Name: cols[i], Type: types[i].FieldType(), Format: "default"}
	}
	return fields
}

// Generate runs Infer then AddRelations.
func Generate(ds *table.Dataset, c *catalog.Catalog, meta Metadata) *Package {
	p := Infer(ds, meta)
	AddRelations(p, c)
	return p
}
