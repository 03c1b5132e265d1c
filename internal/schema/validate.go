package schema

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"modelconv/internal/logging"
	"modelconv/internal/table"
)

// IssueKind classifies why a reference did not resolve.
type IssueKind string

const (
	// IssueMissingResource: the table named by the schema (or referenced by
	// a foreign key) is absent from the dataset.
	IssueMissingResource IssueKind = "missing-resource"
	// IssueMissingField: a key column is absent from its table.
	IssueMissingField IssueKind = "missing-field"
	// IssueUnresolvedValue: index values with no matching set member.
	IssueUnresolvedValue IssueKind = "unresolved-value"
	// IssueDuplicateKey: primary key tuples that occur more than once.
	IssueDuplicateKey IssueKind = "duplicate-key"
)

// maxSample caps the offending values quoted in an Issue.
const maxSample = 5

// Issue is one problem found in a table.
type Issue struct {
	Kind     IssueKind
	Field    string
	Resource string
	Count    int
	Sample   []string
}

func (i Issue) String() string {
	switch i.Kind {
	case IssueMissingResource:
		return fmt.Sprintf("%s: resource %s not found", i.Kind, i.Resource)
	case IssueMissingField:
		return fmt.Sprintf("%s: field %s not found in %s", i.Kind, i.Field, i.Resource)
	case IssueUnresolvedValue:
		return fmt.Sprintf("%s: %d value(s) of %s not in %s.%s (e.g. %s)",
			i.Kind, i.Count, i.Field, i.Resource, table.ValueColumn, strings.Join(i.Sample, ", "))
	case IssueDuplicateKey:
		return fmt.Sprintf("%s: %d repeated primary key tuple(s) (e.g. %s)", i.Kind, i.Count, strings.Join(i.Sample, ", "))
	default:
		return string(i.Kind)
	}
}

// ReferentialWarning collects every issue found in one table. It is a
// warning, never a failure: the dataset is still written.
type ReferentialWarning struct {
	Table  string
	Issues []Issue
}

func (w *ReferentialWarning) Error() string {
	parts := make([]string, len(w.Issues))
	for i, iss := range w.Issues {
		parts[i] = iss.String()
	}
	return fmt.Sprintf("validation error in %s: %s", w.Table, strings.Join(parts, "; "))
}

// ValidateReferences checks every foreign key of p against the tables in ds
// and every primary key for repeats. It returns at most one warning per
// table, in resource order, and never fails.
func ValidateReferences(p *Package, ds *table.Dataset) []*ReferentialWarning {
	members := make(map[string]map[string]struct{})
	lookup := func(resource, field string) (map[string]struct{}, *Issue) {
		key := resource + "\x00" + field
		if m, ok := members[key]; ok {
			return m, nil
		}
		ref := ds.Table(resource)
		if ref == nil {
			return nil, &Issue{Kind: IssueMissingResource, Resource: resource}
		}
		col, ok := ref.ColumnIndex(field)
		if !ok {
			return nil, &Issue{Kind: IssueMissingField, Field: field, Resource: resource}
		}
		m := make(map[string]struct{}, len(ref.Rows))
		for _, row := range ref.Rows {
			m[table.NormalizeKey(row[col])] = struct{}{}
		}
		members[key] = m
		return m, nil
	}

	var out []*ReferentialWarning
	for _, res := range p.Resources {
		if res.Schema == nil || (len(res.Schema.ForeignKeys) == 0 && len(res.Schema.PrimaryKey) == 0) {
			continue
		}

		var issues []Issue
		t := ds.Table(res.Name)
		if t == nil {
			issues = append(issues, Issue{Kind: IssueMissingResource, Resource: res.Name})
			out = append(out, &ReferentialWarning{Table: res.Name, Issues: issues})
			continue
		}

		for _, fk := range res.Schema.ForeignKeys {
			col, ok := t.ColumnIndex(fk.Fields)
			if !ok {
				issues = append(issues, Issue{Kind: IssueMissingField, Field: fk.Fields, Resource: res.Name})
				continue
			}
			set, iss := lookup(fk.Reference.Resource, fk.Reference.Fields)
			if iss != nil {
				issues = append(issues, *iss)
				continue
			}
			if iss := unresolved(t, col, set, fk); iss != nil {
				issues = append(issues, *iss)
			}
		}

		if iss := duplicateKeys(t, res.Schema.PrimaryKey); iss != nil {
			issues = append(issues, *iss)
		}

		if len(issues) > 0 {
			out = append(out, &ReferentialWarning{Table: res.Name, Issues: issues})
		}
	}
	return out
}

func unresolved(t *table.Table, col int, set map[string]struct{}, fk ForeignKey) *Issue {
	var count int
	var sample []string
	sampled := map[string]bool{}
	for _, row := range t.Rows {
		k := table.NormalizeKey(row[col])
		if _, ok := set[k]; ok {
			continue
		}
		count++
		if len(sample) < maxSample && !sampled[k] {
			sampled[k] = true
			sample = append(sample, k)
		}
	}
	if count == 0 {
		return nil
	}
	return &Issue{Kind: IssueUnresolvedValue, Field: fk.Fields, Resource: fk.Reference.Resource, Count: count, Sample: sample}
}

func duplicateKeys(t *table.Table, pk []string) *Issue {
	if len(pk) == 0 {
		return nil
	}
	cols := make([]int, len(pk))
	for i, name := range pk {
		c, ok := t.ColumnIndex(name)
		if !ok {
			return &Issue{Kind: IssueMissingField, Field: name, Resource: t.Name}
		}
		cols[i] = c
	}

	seen := make(map[string]bool, len(t.Rows))
	var count int
	var sample []string
	key := make([]any, len(cols))
	for _, row := range t.Rows {
		for i, c := range cols {
			key[i] = row[c]
		}
		k := table.TupleKey(key)
		if !seen[k] {
			seen[k] = true
			continue
		}
		count++
		if len(sample) < maxSample {
			sample = append(sample, "("+strings.ReplaceAll(k, "\x00", ",")+")")
		}
	}
	if count == 0 {
		return nil
	}
	return &Issue{Kind: IssueDuplicateKey, Resource: t.Name, Count: count, Sample: sample}
}

// Report logs one line per resource: debug when it validated cleanly, warn
// for each warning.
func Report(log logrus.FieldLogger, p *Package, warnings []*ReferentialWarning) {
	log = logging.OrDiscard(log)
	flagged := make(map[string]bool, len(warnings))
	for _, w := range warnings {
		flagged[w.Table] = true
		log.WithField("table", w.Table).Warn(w.Error())
	}
	for _, res := range p.Resources {
		if !flagged[res.Name] {
			log.WithField("table", res.Name).Debugf("%s is valid", res.Name)
		}
	}
}
