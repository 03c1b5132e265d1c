package datapackage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"modelconv/internal/catalog"
	"modelconv/internal/logging"
	"modelconv/internal/schema"
	"modelconv/internal/table"
	"modelconv/internal/textio"
)

// Read loads the package under dir. Catalog entities are read against their
// declared columns and coerced; resources the catalog does not describe are
// kept as untyped tables. The default-value resource is not loaded.
func Read(dir string, cat *catalog.Catalog, opts table.Options) (*schema.Package, *table.Dataset, error) {
	log := logging.OrDiscard(opts.Log)

	f, err := textio.Open(filepath.Join(dir, DescriptorName))
	if err != nil {
		return nil, nil, fmt.Errorf("datapackage: %w", err)
	}
	pkg, err := schema.Decode(f)
	f.Close()
	if err != nil {
		return nil, nil, fmt.Errorf("datapackage: %s: %w", dir, err)
	}

	paths := make(map[string]string, len(pkg.Resources))
	for _, res := range pkg.Resources {
		paths[res.Name] = filepath.Join(dir, filepath.FromSlash(res.Path))
	}

	ds := table.NewDataset()
	for _, e := range cat.Entities() {
		path, ok := paths[e.Name]
		if !ok {
			log.WithField("entity", e.Name).Debug("no resource in package, table left empty")
		}
		if err := readEntity(ds, cat, e, path, opts, log); err != nil {
			return nil, nil, err
		}
	}

	for _, res := range pkg.Resources {
		if res.Name == DefaultsName {
			continue
		}
		if _, ok := cat.Lookup(res.Name); ok {
			continue
		}
		t, err := readUntyped(res.Name, paths[res.Name], res.Schema.FieldNames())
		if err != nil {
			return nil, nil, err
		}
		log.WithField("table", res.Name).Warn("resource not in catalog, read without type checks")
		ds.Add(t)
	}
	return pkg, ds, nil
}

// ReadCSVDir loads a folder of <NAME>.csv files. Catalog entities with no
// file become empty tables; other CSV files become untyped tables in name
// order.
func ReadCSVDir(dir string, cat *catalog.Catalog, opts table.Options) (*table.Dataset, error) {
	log := logging.OrDiscard(opts.Log)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("datapackage: %w", err)
	}
	files := make(map[string]string)
	var extra []string
	for _, de := range entries {
		if de.IsDir() || !strings.EqualFold(filepath.Ext(de.Name()), ".csv") {
			continue
		}
		name := strings.TrimSuffix(de.Name(), filepath.Ext(de.Name()))
		files[name] = filepath.Join(dir, de.Name())
		if _, ok := cat.Lookup(name); !ok && name != DefaultsName {
			extra = append(extra, name)
		}
	}

	ds := table.NewDataset()
	for _, e := range cat.Entities() {
		path, ok := files[e.Name]
		if !ok {
			log.WithField("entity", e.Name).Debug("no csv file, table left empty")
		}
		if err := readEntity(ds, cat, e, path, opts, log); err != nil {
			return nil, err
		}
	}

	sort.Strings(extra)
	for _, name := range extra {
		t, err := readUntyped(name, files[name], nil)
		if err != nil {
			return nil, err
		}
		log.WithField("table", name).Warn("csv file not in catalog, read without type checks")
		ds.Add(t)
	}
	return ds, nil
}

// readEntity reads path (empty for none) into a coerced table for e.
func readEntity(ds *table.Dataset, cat *catalog.Catalog, e *catalog.Entity, path string, opts table.Options, log logrus.FieldLogger) error {
	var rows [][]any
	if path != "" {
		var err error
		rows, err = readFile(e.Name, path, table.Columns(e))
		if err != nil {
			return err
		}
	}

	t, err := table.Build(cat, e, rows)
	if err != nil {
		var ve *table.ValidationError
		if opts.SkipInvalid && errors.As(err, &ve) {
			log.WithField("entity", e.Name).WithError(err).Warn("skipping entity")
			ds.Skipped = append(ds.Skipped, ve)
			return nil
		}
		return err
	}
	log.WithFields(logrus.Fields{"entity": e.Name, "rows": len(t.Rows)}).Debug("table read")
	ds.Add(t)
	return nil
}

func readUntyped(name, path string, want []string) (*table.Table, error) {
	f, err := textio.Open(path)
	if err != nil {
		return nil, fmt.Errorf("datapackage: %w", err)
	}
	defer f.Close()

	cols, rows, err := readCSV(f, name, want)
	if err != nil {
		return nil, fmt.Errorf("datapackage: %w", err)
	}
	return &table.Table{Name: name, Columns: cols, Rows: rows}, nil
}

func readFile(name, path string, want []string) ([][]any, error) {
	f, err := textio.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("datapackage: %s: file %s not found", name, path)
	}
	if err != nil {
		return nil, fmt.Errorf("datapackage: %w", err)
	}
	defer f.Close()

	_, rows, err := readCSV(f, name, want)
	if err != nil {
		return nil, fmt.Errorf("datapackage: %w", err)
	}
	return rows, nil
}
