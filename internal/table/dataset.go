package table

import (
	"errors"

	"github.com/sirupsen/logrus"

	"modelconv/internal/catalog"
	"modelconv/internal/datafile"
	"modelconv/internal/logging"
)

// Options controls FromData.
type Options struct {
	// SkipInvalid drops an entity whose rows fail validation (recording it in
	// Dataset.Skipped) instead of failing the whole run.
	SkipInvalid bool

	Log logrus.FieldLogger
}

// FromData flattens, coerces and assembles every catalog entity from parsed
// datafile data. Entities the datafile never mentions become empty tables.
func FromData(c *catalog.Catalog, data *datafile.Data, opts Options) (*Dataset, error) {
	log := logging.OrDiscard(opts.Log)
	ds := NewDataset()

	for _, e := range c.Entities() {
		var rows [][]any
		if e.IsParam() {
			d := data.Param(e.Name)
			if d != nil && d.Default != nil {
				checkDefault(log, e, *d.Default)
			}
			rows = Flatten(d)
		} else {
			rows = FlattenSet(data.Set(e.Name))
		}
		if n := data.Duplicates[e.Name]; n > 0 {
			log.WithFields(logrus.Fields{"entity": e.Name, "count": n}).
				Warn("datafile assigns the same index tuple more than once; last value kept")
		}

		t, err := Build(c, e, rows)
		if err != nil {
			var ve *ValidationError
			if opts.SkipInvalid && errors.As(err, &ve) {
				log.WithField("entity", e.Name).WithError(err).Warn("skipping entity")
				ds.Skipped = append(ds.Skipped, ve)
				continue
			}
			return nil, err
		}
		log.WithFields(logrus.Fields{"entity": e.Name, "rows": len(t.Rows)}).Debug("table assembled")
		ds.Add(t)
	}
	return ds, nil
}

// checkDefault warns when a datafile "default" clause disagrees with the
// catalog. The catalog default is the one written out.
func checkDefault(log logrus.FieldLogger, e *catalog.Entity, sc datafile.Scalar) {
	v, err := e.DType.Cast(sc.Text)
	if err == nil && NormalizeKey(v) == NormalizeKey(e.Default) {
		return
	}
	log.WithFields(logrus.Fields{
		"entity":           e.Name,
		"datafile_default": sc.Text,
		"catalog_default":  catalog.Format(e.Default),
	}).Warn("datafile default differs from the catalog default; using the catalog default")
}
