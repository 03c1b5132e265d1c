// Package datapackage reads and writes converted datasets on disk: either as
// a folder of bare CSV files or as a data package (CSV files under data/
// described by datapackage.json).
package datapackage

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"modelconv/internal/catalog"
	"modelconv/internal/schema"
	"modelconv/internal/table"
	"modelconv/internal/textio"
)

// DescriptorName is the package descriptor file.
const DescriptorName = "datapackage.json"

// Write writes every resource of pkg under dir along with the default-value
// table and the descriptor. Resources with no table in ds are written as a
// header-only file. Write sets the hash of each resource in pkg.
func Write(dir string, pkg *schema.Package, ds *table.Dataset, cat *catalog.Catalog) error {
	if err := os.MkdirAll(filepath.Join(dir, "data"), 0o755); err != nil {
		return fmt.Errorf("datapackage: %w", err)
	}

	for _, res := range pkg.Resources {
		if res.Name == DefaultsName {
			continue
		}
		t := ds.Table(res.Name)
		if t == nil {
			t = &table.Table{Name: res.Name, Columns: res.Schema.FieldNames()}
		}
		b, err := encodeCSV(t)
		if err != nil {
			return fmt.Errorf("datapackage: %w", err)
		}
		if err := textio.WriteFileAtomic(filepath.Join(dir, filepath.FromSlash(res.Path)), b); err != nil {
			return fmt.Errorf("datapackage: %w", err)
		}
		res.Hash = hashOf(b)
	}

	var defaults bytes.Buffer
	if err := WriteDefaults(&defaults, cat); err != nil {
		return fmt.Errorf("datapackage: %w", err)
	}
	res := pkg.Resource(DefaultsName)
	if res == nil {
		res = defaultsResource()
		pkg.Resources = append(pkg.Resources, res)
	}
	if err := textio.WriteFileAtomic(filepath.Join(dir, filepath.FromSlash(res.Path)), defaults.Bytes()); err != nil {
		return fmt.Errorf("datapackage: %w", err)
	}
	res.Hash = hashOf(defaults.Bytes())

	var desc bytes.Buffer
	if err := schema.Encode(&desc, pkg); err != nil {
		return fmt.Errorf("datapackage: %w", err)
	}
	if err := textio.WriteFileAtomic(filepath.Join(dir, DescriptorName), desc.Bytes()); err != nil {
		return fmt.Errorf("datapackage: %w", err)
	}
	return nil
}

// WriteCSVDir writes one <NAME>.csv per catalog entity directly under dir,
// plus default_values.csv. Entities absent from ds get a header-only file.
// Tables in ds that the catalog does not describe are written too.
func WriteCSVDir(dir string, ds *table.Dataset, cat *catalog.Catalog) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("datapackage: %w", err)
	}

	write := func(t *table.Table) error {
		b, err := encodeCSV(t)
		if err != nil {
			return fmt.Errorf("datapackage: %w", err)
		}
		if err := textio.WriteFileAtomic(filepath.Join(dir, t.Name+".csv"), b); err != nil {
			return fmt.Errorf("datapackage: %w", err)
		}
		return nil
	}

	for _, e := range cat.Entities() {
		t := ds.Table(e.Name)
		if t == nil {
			t = &table.Table{Name: e.Name, Kind: e.Kind, Columns: table.Columns(e)}
		}
		if err := write(t); err != nil {
			return err
		}
	}
	for _, t := range ds.Tables() {
		if _, ok := cat.Lookup(t.Name); ok {
			continue
		}
		if err := write(t); err != nil {
			return err
		}
	}

	var defaults bytes.Buffer
	if err := WriteDefaults(&defaults, cat); err != nil {
		return fmt.Errorf("datapackage: %w", err)
	}
	if err := textio.WriteFileAtomic(filepath.Join(dir, DefaultsName+".csv"), defaults.Bytes()); err != nil {
		return fmt.Errorf("datapackage: %w", err)
	}
	return nil
}

func defaultsResource() *schema.Resource {
	return &schema.Resource{
		Name:      DefaultsName,
		Path:      schema.ResourcePath(DefaultsName),
		Profile:   "tabular-data-resource",
		Format:    "csv",
		Mediatype: "text/csv",
		Encoding:  "utf-8",
		Schema: &schema.Schema{
			Fields: []schema.Field{
				{Name: DefaultsColumns[0], Type: "string", Format: "default"},
				{Name: DefaultsColumns[1], Type: "any", Format: "default"},
			},
			MissingValues: []string{schema.MissingValue},
		},
	}
}

func hashOf(b []byte) string {
	sum := sha256.Sum256(b)
	return "sha256:" + hex.EncodeToString(sum[:])
}
