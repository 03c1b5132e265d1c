// Package schema describes a converted dataset as a tabular data package:
// one resource per table with typed fields, and for parameter tables a
// composite primary key plus one foreign key per index column pointing at
// the VALUE column of the matching set table.
//
// Building the document is two explicit steps: Infer derives field types
// from the tables, AddRelations layers keys on top from the catalog.
package schema

import (
	"encoding/json"
	"fmt"
	"io"
)

// MissingValue is the marker written for absent cells.
const MissingValue = ""

// Package is the datapackage.json document.
type Package struct {
	Profile      string        `json:"profile,omitempty"`
	Name         string        `json:"name"`
	Title        string        `json:"title,omitempty"`
	Description  string        `json:"description,omitempty"`
	Licenses     []License     `json:"licenses,omitempty"`
	Contributors []Contributor `json:"contributors,omitempty"`
	Resources    []*Resource   `json:"resources"`
}

type License struct {
	Name  string `json:"name"`
	Path  string `json:"path,omitempty"`
	Title string `json:"title,omitempty"`
}

type Contributor struct {
	Title string `json:"title"`
	Email string `json:"email,omitempty"`
	Path  string `json:"path,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Resource describes one table file.
type Resource struct {
	Name      string  `json:"name"`
	Path      string  `json:"path"`
	Profile   string  `json:"profile,omitempty"`
	Format    string  `json:"format,omitempty"`
	Mediatype string  `json:"mediatype,omitempty"`
	Encoding  string  `json:"encoding,omitempty"`
	Hash      string  `json:"hash,omitempty"`
	Schema    *Schema `json:"schema"`
}

// Schema is a resource's table schema.
type Schema struct {
	Fields        []Field      `json:"fields"`
	PrimaryKey    []string     `json:"primaryKey,omitempty"`
	ForeignKeys   []ForeignKey `json:"foreignKeys,omitempty"`
	MissingValues []string     `json:"missingValues"`
}

type Field struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Format string `json:"format,omitempty"`
}

// ForeignKey links one column to a column of another resource.
type ForeignKey struct {
	Fields    string    `json:"fields"`
	Reference Reference `json:"reference"`
}

type Reference struct {
	Resource string `json:"resource"`
	Fields   string `json:"fields"`
}

// Metadata is the descriptive part of a package. It has no bearing on
// conversion.
type Metadata struct {
	Name         string
	Title        string
	Description  string
	Licenses     []License
	Contributors []Contributor
}

// DefaultMetadata is used when the caller supplies none.
func DefaultMetadata() Metadata {
	return Metadata{
		Name:  "osemosys_model",
		Title: "OSeMOSYS model data",
		Licenses: []License{{
			Name:  "CC-BY-4.0",
			Path:  "https://creativecommons.org/licenses/by/4.0/",
			Title: "Creative Commons Attribution 4.0",
		}},
	}
}

// Resource returns the resource named name, or nil.
func (p *Package) Resource(name string) *Resource {
	for _, r := range p.Resources {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// FieldNames returns the schema's field names in order.
func (s *Schema) FieldNames() []string {
	out := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.Name
	}
	return out
}

// Field returns the field named name.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Encode writes p as indented JSON.
func Encode(w io.Writer, p *Package) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(p); err != nil {
		return fmt.Errorf("encode datapackage: %w", err)
	}
	return nil
}

// Decode reads a package document.
func Decode(r io.Reader) (*Package, error) {
	var p Package
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode datapackage: %w", err)
	}
	for _, res := range p.Resources {
		if res.Schema == nil {
			return nil, fmt.Errorf("decode datapackage: resource %s has no schema", res.Name)
		}
	}
	return &p, nil
}
