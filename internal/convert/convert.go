// Package convert wires the catalog, datafile, table, schema, datapackage and
// load packages into the conversions modelconv offers.
package convert

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"modelconv/internal/catalog"
	"modelconv/internal/datafile"
	"modelconv/internal/datapackage"
	"modelconv/internal/load"
	"modelconv/internal/logging"
	"modelconv/internal/metrics"
	"modelconv/internal/schema"
	"modelconv/internal/storage"
	"modelconv/internal/table"
	"modelconv/internal/textio"
)

// Format names a model data representation.
type Format string

const (
	FormatDatafile    Format = "datafile"
	FormatDatapackage Format = "datapackage"
	FormatCSV         Format = "csv"
	FormatSQL         Format = "sql"
)

// ParseFormat accepts a format name case-insensitively.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case FormatDatafile, FormatDatapackage, FormatCSV, FormatSQL:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q (want datafile, datapackage, csv or sql)", s)
}

// Options tunes a Converter.
type Options struct {
	// SkipInvalid drops entities whose rows fail coercion instead of failing.
	SkipInvalid bool
	// OmitDefaults drops parameter rows equal to the default when writing a
	// datafile.
	OmitDefaults bool

	// Metadata describes generated packages; the zero value uses
	// schema.DefaultMetadata.
	Metadata schema.Metadata

	// DB selects the repository for sql conversions. The DSN is taken from
	// the path argument when DB.DSN is empty.
	DB          storage.Config
	DBSchema    string
	ForeignKeys bool
	BatchSize   int

	// NewRepository opens DB; nil uses storage.New.
	NewRepository storage.Factory
}

// Converter runs conversions against one catalog.
type Converter struct {
	cat   *catalog.Catalog
	opts  Options
	runID string
	log   logrus.FieldLogger
}

// New returns a Converter. Every log line it writes carries run_id.
func New(cat *catalog.Catalog, log logrus.FieldLogger, opts Options) *Converter {
	if opts.Metadata.Name == "" {
		def := schema.DefaultMetadata()
		if opts.Metadata.Title != "" {
			def.Title = opts.Metadata.Title
		}
		opts.Metadata = def
	}
	if opts.NewRepository == nil {
		opts.NewRepository = storage.New
	}
	id := ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(rand.Reader, 0)).String()
	return &Converter{
		cat:   cat,
		opts:  opts,
		runID: id,
		log:   logging.OrDiscard(log).WithField("run_id", id),
	}
}

// RunID identifies this converter's log lines.
func (c *Converter) RunID() string { return c.runID }

// Convert dispatches on the (from, to) pair. For FormatSQL the path is the
// DSN.
func (c *Converter) Convert(ctx context.Context, from, to Format, src, dst string) error {
	switch {
	case from == FormatDatafile && to == FormatDatapackage:
		return c.DatafileToPackage(src, dst)
	case from == FormatDatafile && to == FormatCSV:
		return c.DatafileToCSV(src, dst)
	case from == FormatDatafile && to == FormatSQL:
		return c.DatafileToSQL(ctx, src, dst)
	case from == FormatDatapackage && to == FormatDatafile:
		return c.PackageToDatafile(src, dst)
	case from == FormatDatapackage && to == FormatCSV:
		return c.PackageToCSV(src, dst)
	case from == FormatDatapackage && to == FormatSQL:
		return c.PackageToSQL(ctx, src, dst)
	case from == FormatCSV && to == FormatDatapackage:
		return c.CSVToPackage(src, dst)
	case from == FormatCSV && to == FormatDatafile:
		return c.CSVToDatafile(src, dst)
	case from == FormatSQL && to == FormatDatafile:
		return c.SQLToDatafile(ctx, src, dst)
	case from == FormatSQL && to == FormatDatapackage:
		return c.SQLToPackage(ctx, src, dst)
	}
	return fmt.Errorf("conversion from %s to %s is not supported", from, to)
}

// step times fn and records it under name.
func (c *Converter) step(name string, fn func(log logrus.FieldLogger) error) error {
	log := c.log.WithField("stage", name)
	s := metrics.StartStep(name)
	start := time.Now()
	err := fn(log)
	s.Done(err)
	if err != nil {
		log.WithError(err).Error("stage failed")
		return err
	}
	log.WithField("duration", time.Since(start).Truncate(time.Millisecond)).Debug("stage done")
	return nil
}

func (c *Converter) tableOptions(log logrus.FieldLogger) table.Options {
	return table.Options{SkipInvalid: c.opts.SkipInvalid, Log: log}
}

// ReadDatafile parses path against the catalog and assembles one typed table
// per entity.
func (c *Converter) ReadDatafile(path string) (*table.Dataset, error) {
	var ds *table.Dataset
	err := c.step("read_datafile", func(log logrus.FieldLogger) error {
		src, err := textio.ReadFile(path)
		if err != nil {
			return err
		}
		data, err := datafile.ParseWithCatalog(c.cat, string(src))
		if err != nil {
			return err
		}
		ds, err = table.FromData(c.cat, data, c.tableOptions(log))
		if err != nil {
			return err
		}
		countRows(ds, "read")
		log.WithFields(logrus.Fields{"path": path, "tables": ds.Len(), "skipped": len(ds.Skipped)}).Info("datafile read")
		return nil
	})
	return ds, err
}

// WriteDatafile renders every catalog entity held in ds to path in catalog
// order. Untyped tables have no datafile form and are left out.
func (c *Converter) WriteDatafile(path string, ds *table.Dataset) error {
	return c.step("write_datafile", func(log logrus.FieldLogger) error {
		var blocks []datafile.Block
		for _, e := range c.cat.Entities() {
			t := ds.Table(e.Name)
			if t == nil {
				continue
			}
			blocks = append(blocks, datafile.Block{Entity: e, Rows: t.Rows})
		}
		for _, t := range ds.Tables() {
			if _, ok := c.cat.Lookup(t.Name); !ok {
				log.WithField("table", t.Name).Warn("table is not in the catalog; not written to the datafile")
			}
		}

		var buf bytes.Buffer
		if err := datafile.Write(&buf, blocks, datafile.WriteOptions{OmitDefaults: c.opts.OmitDefaults}); err != nil {
			return err
		}
		if err := textio.WriteFileAtomic(path, buf.Bytes()); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		countRows(ds, "written")
		log.WithFields(logrus.Fields{"path": path, "entities": len(blocks)}).Info("datafile written")
		return nil
	})
}

// ReadPackage reads a data package directory.
func (c *Converter) ReadPackage(dir string) (*schema.Package, *table.Dataset, error) {
	var (
		pkg *schema.Package
		ds  *table.Dataset
	)
	err := c.step("read_datapackage", func(log logrus.FieldLogger) error {
		var err error
		pkg, ds, err = datapackage.Read(dir, c.cat, c.tableOptions(log))
		if err != nil {
			return err
		}
		countRows(ds, "read")
		log.WithFields(logrus.Fields{"dir": dir, "tables": ds.Len()}).Info("datapackage read")
		return nil
	})
	return pkg, ds, err
}

// WritePackage generates the schema for ds, validates references and writes
// the package to dir.
func (c *Converter) WritePackage(dir string, ds *table.Dataset) error {
	pkg := schema.Generate(ds, c.cat, c.opts.Metadata)
	c.validate(pkg, ds)
	return c.step("write_datapackage", func(log logrus.FieldLogger) error {
		if err := datapackage.Write(dir, pkg, ds, c.cat); err != nil {
			return err
		}
		countRows(ds, "written")
		log.WithFields(logrus.Fields{"dir": dir, "resources": len(pkg.Resources)}).Info("datapackage written")
		return nil
	})
}

// validate runs the referential check and logs its outcome. It never fails.
func (c *Converter) validate(pkg *schema.Package, ds *table.Dataset) []*schema.ReferentialWarning {
	var warnings []*schema.ReferentialWarning
	_ = c.step("validate", func(log logrus.FieldLogger) error {
		warnings = schema.ValidateReferences(pkg, ds)
		schema.Report(log, pkg, warnings)
		for _, w := range warnings {
			for _, iss := range w.Issues {
				metrics.IncCounter(metrics.ReferentialWarningsTotal, 1, metrics.Labels{"kind": string(iss.Kind)})
			}
		}
		return nil
	})
	return warnings
}

// Validate reads the package in dir and returns its referential warnings.
func (c *Converter) Validate(dir string) ([]*schema.ReferentialWarning, error) {
	pkg, ds, err := c.ReadPackage(dir)
	if err != nil {
		return nil, err
	}
	return c.validate(pkg, ds), nil
}

// DatafileToPackage converts a datafile into a data package directory.
func (c *Converter) DatafileToPackage(src, dstDir string) error {
	ds, err := c.ReadDatafile(src)
	if err != nil {
		return err
	}
	return c.WritePackage(dstDir, ds)
}

// PackageToDatafile converts a data package directory into a datafile.
func (c *Converter) PackageToDatafile(srcDir, dst string) error {
	pkg, ds, err := c.ReadPackage(srcDir)
	if err != nil {
		return err
	}
	c.validate(pkg, ds)
	return c.WriteDatafile(dst, ds)
}

// DatafileToCSV converts a datafile into a folder of CSV tables.
func (c *Converter) DatafileToCSV(src, dstDir string) error {
	ds, err := c.ReadDatafile(src)
	if err != nil {
		return err
	}
	return c.writeCSV(dstDir, ds)
}

// PackageToCSV writes the tables of a data package as a bare CSV folder.
func (c *Converter) PackageToCSV(srcDir, dstDir string) error {
	_, ds, err := c.ReadPackage(srcDir)
	if err != nil {
		return err
	}
	return c.writeCSV(dstDir, ds)
}

func (c *Converter) writeCSV(dir string, ds *table.Dataset) error {
	return c.step("write_csv", func(log logrus.FieldLogger) error {
		if err := datapackage.WriteCSVDir(dir, ds, c.cat); err != nil {
			return err
		}
		countRows(ds, "written")
		log.WithFields(logrus.Fields{"dir": dir, "tables": ds.Len()}).Info("csv folder written")
		return nil
	})
}

// ReadCSV reads a folder of CSV tables.
func (c *Converter) ReadCSV(dir string) (*table.Dataset, error) {
	var ds *table.Dataset
	err := c.step("read_csv", func(log logrus.FieldLogger) error {
		var err error
		ds, err = datapackage.ReadCSVDir(dir, c.cat, c.tableOptions(log))
		if err != nil {
			return err
		}
		countRows(ds, "read")
		log.WithFields(logrus.Fields{"dir": dir, "tables": ds.Len()}).Info("csv folder read")
		return nil
	})
	return ds, err
}

// CSVToPackage converts a CSV folder into a data package directory.
func (c *Converter) CSVToPackage(srcDir, dstDir string) error {
	ds, err := c.ReadCSV(srcDir)
	if err != nil {
		return err
	}
	return c.WritePackage(dstDir, ds)
}

// CSVToDatafile converts a CSV folder into a datafile.
func (c *Converter) CSVToDatafile(srcDir, dst string) error {
	ds, err := c.ReadCSV(srcDir)
	if err != nil {
		return err
	}
	pkg := schema.Generate(ds, c.cat, c.opts.Metadata)
	c.validate(pkg, ds)
	return c.WriteDatafile(dst, ds)
}

// PackageToSQL loads a data package into the configured database.
func (c *Converter) PackageToSQL(ctx context.Context, srcDir, dsn string) error {
	pkg, ds, err := c.ReadPackage(srcDir)
	if err != nil {
		return err
	}
	return c.load(ctx, pkg, ds, dsn)
}

// DatafileToSQL loads a datafile into the configured database.
func (c *Converter) DatafileToSQL(ctx context.Context, src, dsn string) error {
	ds, err := c.ReadDatafile(src)
	if err != nil {
		return err
	}
	return c.load(ctx, schema.Generate(ds, c.cat, c.opts.Metadata), ds, dsn)
}

// load writes ds through a repository. When the validator finds values that
// do not resolve, foreign keys are not declared for this load so that the
// warnings stay warnings.
func (c *Converter) load(ctx context.Context, pkg *schema.Package, ds *table.Dataset, dsn string) error {
	warnings := c.validate(pkg, ds)
	fks := c.opts.ForeignKeys
	if fks && hasUnresolved(warnings) {
		c.log.Warn("unresolved references found; loading without foreign key constraints")
		fks = false
	}
	specs := storage.TablesFromPackage(pkg, storage.TableOptions{
		ForeignKeys: fks,
		Schema:      c.opts.DBSchema,
		Exclude:     []string{datapackage.DefaultsName},
	})

	return c.withRepo(ctx, dsn, func(repo storage.Repository) error {
		return c.step("load_sql", func(log logrus.FieldLogger) error {
			e := &load.Engine{Repo: repo, Log: log, BatchSize: c.opts.BatchSize}
			st, err := e.Load(ctx, specs, ds)
			if err != nil {
				return err
			}
			log.WithFields(logrus.Fields{
				"tables":     st.Tables,
				"rows":       st.Rows,
				"batches":    st.Batches,
				"duplicates": st.Duplicates,
			}).Info("database loaded")
			return nil
		})
	})
}

// Extract reads every catalog entity from the configured database.
func (c *Converter) Extract(ctx context.Context, dsn string) (*table.Dataset, error) {
	pkg := schema.Generate(table.NewDataset(), c.cat, c.opts.Metadata)
	specs := storage.TablesFromPackage(pkg, storage.TableOptions{Schema: c.opts.DBSchema})

	var ds *table.Dataset
	err := c.withRepo(ctx, dsn, func(repo storage.Repository) error {
		return c.step("extract_sql", func(log logrus.FieldLogger) error {
			var err error
			ds, err = (&load.Engine{Repo: repo, Log: log}).Extract(ctx, specs, c.cat)
			if err != nil {
				return err
			}
			log.WithField("tables", ds.Len()).Info("database read")
			return nil
		})
	})
	return ds, err
}

// SQLToDatafile writes the database contents as a datafile.
func (c *Converter) SQLToDatafile(ctx context.Context, dsn, dst string) error {
	ds, err := c.Extract(ctx, dsn)
	if err != nil {
		return err
	}
	return c.WriteDatafile(dst, ds)
}

// SQLToPackage writes the database contents as a data package.
func (c *Converter) SQLToPackage(ctx context.Context, dsn, dstDir string) error {
	ds, err := c.Extract(ctx, dsn)
	if err != nil {
		return err
	}
	return c.WritePackage(dstDir, ds)
}

func (c *Converter) withRepo(ctx context.Context, dsn string, fn func(storage.Repository) error) error {
	cfg := c.opts.DB
	if cfg.DSN == "" {
		cfg.DSN = dsn
	}
	if cfg.Kind == "" {
		cfg.Kind = "sqlite"
	}
	repo, err := c.opts.NewRepository(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s database: %w", cfg.Kind, err)
	}
	defer repo.Close()
	return fn(repo)
}

func hasUnresolved(warnings []*schema.ReferentialWarning) bool {
	for _, w := range warnings {
		for _, iss := range w.Issues {
			switch iss.Kind {
			case schema.IssueUnresolvedValue, schema.IssueMissingResource, schema.IssueMissingField:
				return true
			}
		}
	}
	return false
}

func countRows(ds *table.Dataset, kind string) {
	n := 0
	for _, t := range ds.Tables() {
		n += len(t.Rows)
	}
	metrics.IncCounter(metrics.RowsTotal, float64(n), metrics.Labels{"kind": kind})
	if kind == "read" && len(ds.Skipped) > 0 {
		metrics.IncCounter(metrics.RowsTotal, float64(len(ds.Skipped)), metrics.Labels{"kind": "skipped"})
	}
}
