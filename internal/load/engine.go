// Package load moves datasets in and out of a SQL repository.
//
// Load creates the tables described by a set of storage.TableSpec values and
// inserts each dataset table in batches: cells are cast to the column type,
// rows sharing a primary key collapse to the last one, and every batch runs
// through Repository.InsertRows. Extract reads the tables back and rebuilds a
// dataset against the catalog.
package load

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"modelconv/internal/catalog"
	"modelconv/internal/logging"
	"modelconv/internal/metrics"
	"modelconv/internal/storage"
	"modelconv/internal/table"
)

// DefaultBatchSize is the number of rows handed to one InsertRows call.
const DefaultBatchSize = 10000

// Engine loads and extracts datasets through one repository.
type Engine struct {
	Repo storage.Repository
	Log  logrus.FieldLogger

	// BatchSize bounds the rows per InsertRows call. Backends chunk further
	// to respect their own parameter limits.
	BatchSize int
}

// Stats summarizes one Load.
type Stats struct {
	Tables     int
	Rows       int64
	Batches    int
	Duplicates int
}

func (e *Engine) logger() logrus.FieldLogger { return logging.OrDiscard(e.Log) }

func (e *Engine) batchSize() int {
	if e.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return e.BatchSize
}

func durMS(start time.Time) time.Duration { return time.Since(start).Truncate(time.Millisecond) }

// Load creates every table in specs and inserts the matching dataset table.
// Specs must be ordered so that referenced tables come first, which is how
// storage.TablesFromPackage returns them. Specs with no dataset table are
// created empty.
func (e *Engine) Load(ctx context.Context, specs []storage.TableSpec, ds *table.Dataset) (Stats, error) {
	var st Stats
	if e.Repo == nil {
		return st, fmt.Errorf("load: Repo is required")
	}
	log := e.logger()

	ddlStart := time.Now()
	if err := e.Repo.EnsureTables(ctx, specs); err != nil {
		return st, err
	}
	log.WithFields(logrus.Fields{"stage": "ddl", "tables": len(specs), "duration": durMS(ddlStart)}).Debug("tables ensured")

	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		t := ds.Table(spec.SourceName())
		if t == nil || len(t.Rows) == 0 {
			log.WithField("table", spec.Name).Debug("no rows to load")
			continue
		}

		start := time.Now()
		rows, err := castRows(spec, t)
		if err != nil {
			return st, err
		}
		if len(spec.PrimaryKey) > 0 {
			before := len(rows)
			rows, err = storage.DedupeRows(rows, spec.ColumnNames(), spec.PrimaryKey)
			if err != nil {
				return st, fmt.Errorf("load %s: %w", spec.Name, err)
			}
			if d := before - len(rows); d > 0 {
				st.Duplicates += d
				log.WithFields(logrus.Fields{"table": spec.Name, "duplicates": d}).
					Warn("rows share a primary key; last row kept")
			}
		}

		inserted, batches, err := e.insertBatches(ctx, spec, rows)
		st.Rows += inserted
		st.Batches += batches
		if err != nil {
			return st, err
		}
		st.Tables++
		log.WithFields(logrus.Fields{
			"table":    spec.Name,
			"rows":     inserted,
			"batches":  batches,
			"duration": durMS(start),
		}).Info("table loaded")
	}
	return st, nil
}

func (e *Engine) insertBatches(ctx context.Context, spec storage.TableSpec, rows [][]any) (int64, int, error) {
	size := e.batchSize()
	cols := spec.ColumnNames()

	var total int64
	batches := 0
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		n, err := e.Repo.InsertRows(ctx, spec.Name, cols, rows[start:end])
		if err != nil {
			return total, batches, fmt.Errorf("load %s: %w", spec.Name, err)
		}
		batches++
		total += n
		metrics.IncCounter(metrics.LoadBatchesTotal, 1, nil)
		metrics.IncCounter(metrics.RowsTotal, float64(n), metrics.Labels{"kind": "inserted"})
	}
	return total, batches, nil
}

// castRows projects t onto spec's column order and casts every cell to the
// column type. Untyped tables hold strings, so this is where they get their
// SQL representation.
func castRows(spec storage.TableSpec, t *table.Table) ([][]any, error) {
	idx := make([]int, len(spec.Columns))
	types := make([]catalog.DType, len(spec.Columns))
	for i, c := range spec.Columns {
		j, ok := t.ColumnIndex(c.Name)
		if !ok {
			return nil, fmt.Errorf("load %s: table %s has no column %s", spec.Name, t.Name, c.Name)
		}
		idx[i] = j
		types[i] = c.Type.DType()
	}

	out := make([][]any, len(t.Rows))
	for r, row := range t.Rows {
		cells := make([]any, len(idx))
		for i, j := range idx {
			var v any
			if j < len(row) {
				v = row[j]
			}
			cv, err := types[i].Cast(v)
			if err != nil {
				return nil, &table.ValidationError{Entity: t.Name, Column: spec.Columns[i].Name, Row: r, Value: v, Err: err}
			}
			if cv == nil && !spec.Columns[i].Nullable {
				return nil, &table.ValidationError{Entity: t.Name, Column: spec.Columns[i].Name, Row: r, Err: fmt.Errorf("missing value in key column")}
			}
			cells[i] = cv
		}
		out[r] = cells
	}
	return out, nil
}

// Extract reads every table in specs back into a dataset. Tables the catalog
// declares are coerced against it; others come back untyped with their cells
// rendered as strings.
func (e *Engine) Extract(ctx context.Context, specs []storage.TableSpec, cat *catalog.Catalog) (*table.Dataset, error) {
	if e.Repo == nil {
		return nil, fmt.Errorf("extract: Repo is required")
	}
	log := e.logger()
	ds := table.NewDataset()

	for _, spec := range specs {
		rows, err := e.Repo.SelectRows(ctx, spec)
		if err != nil {
			return nil, err
		}
		name := spec.SourceName()

		if ent, ok := cat.Lookup(name); ok {
			rows, err = project(spec, table.Columns(ent), rows)
			if err != nil {
				return nil, err
			}
			t, err := table.Build(cat, ent, rows)
			if err != nil {
				return nil, err
			}
			ds.Add(t)
		} else {
			ds.Add(untyped(name, spec.ColumnNames(), rows))
		}
		metrics.IncCounter(metrics.RowsTotal, float64(len(rows)), metrics.Labels{"kind": "read"})
		log.WithFields(logrus.Fields{"table": spec.Name, "rows": len(rows)}).Debug("table extracted")
	}
	return ds, nil
}

// project reorders rows selected in spec's column order into want's order.
func project(spec storage.TableSpec, want []string, rows [][]any) ([][]any, error) {
	have := spec.ColumnNames()
	idx := make([]int, len(want))
	for i, w := range want {
		idx[i] = -1
		for j, h := range have {
			if h == w {
				idx[i] = j
				break
			}
		}
		if idx[i] < 0 {
			return nil, fmt.Errorf("extract %s: column %s not found", spec.Name, w)
		}
	}

	out := make([][]any, len(rows))
	for r, row := range rows {
		cells := make([]any, len(idx))
		for i, j := range idx {
			cells[i] = row[j]
		}
		out[r] = cells
	}
	return out, nil
}

func untyped(name string, columns []string, rows [][]any) *table.Table {
	out := make([][]any, len(rows))
	for r, row := range rows {
		cells := make([]any, len(row))
		for i, v := range row {
			if v != nil {
				cells[i] = catalog.Format(v)
			}
		}
		out[r] = cells
	}
	return &table.Table{Name: name, Columns: columns, Rows: out}
}
