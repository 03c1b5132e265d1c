package table

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"modelconv/internal/catalog"
	"modelconv/internal/datafile"
)

func scenarioCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()

	c, err := catalog.New(
		catalog.Entity{Name: "REGION", Kind: catalog.KindSet, DType: catalog.DTypeString},
		catalog.Entity{Name: "FUEL", Kind: catalog.KindSet, DType: catalog.DTypeString},
		catalog.Entity{Name: "YEAR", Kind: catalog.KindSet, DType: catalog.DTypeInt},
		catalog.Entity{Name: "DemandProfile", Kind: catalog.KindParam, DType: catalog.DTypeFloat, Indices: []string{"REGION"}, Default: 0},
		catalog.Entity{Name: "AccumulatedAnnualDemand", Kind: catalog.KindParam, DType: catalog.DTypeFloat, Indices: []string{"REGION", "FUEL", "YEAR"}, Default: 0},
	)
	require.NoError(t, err)
	return c
}

func TestFlatten_Completeness(t *testing.T) {
	t.Parallel()

	d := datafile.NewDatum()
	paths := [][]string{
		{"R1", "COAL", "2014"},
		{"R1", "COAL", "2015"},
		{"R1", "GAS", "2014"},
		{"R2", "GAS", "2014"},
	}
	for i, p := range paths {
		d.Set(p, datafile.Scalar{Text: string(rune('1' + i))})
	}

	rows := Flatten(d)
	require.Len(t, rows, d.Len())

	seen := map[string]bool{}
	for _, r := range rows {
		require.Len(t, r, 4)
		k := TupleKey(r[:3])
		require.False(t, seen[k], "duplicate tuple %v", r)
		seen[k] = true
	}
	require.Equal(t, []any{"R1", "COAL", "2014", "1"}, rows[0])
	require.Equal(t, []any{"R2", "GAS", "2014", "4"}, rows[3])
}

func TestFlatten_ScalarAndEmpty(t *testing.T) {
	t.Parallel()

	require.Empty(t, Flatten(nil))
	require.Empty(t, Flatten(datafile.NewDatum()))

	d := datafile.NewDatum()
	d.Set(nil, datafile.Scalar{Text: "0.05"})
	require.Equal(t, [][]any{{"0.05"}}, Flatten(d))
}

func TestFlatten_DeepNestingUsesNoRecursion(t *testing.T) {
	t.Parallel()

	const depth = 2000
	path := make([]string, depth)
	for i := range path {
		path[i] = "k"
	}
	d := datafile.NewDatum()
	d.Set(path, datafile.Scalar{Text: "1"})

	rows := Flatten(d)
	require.Len(t, rows, 1)
	require.Len(t, rows[0], depth+1)
}

func TestCoerce_TypesAndErrors(t *testing.T) {
	t.Parallel()

	c := scenarioCatalog(t)
	aad, _ := c.Lookup("AccumulatedAnnualDemand")

	tbl, err := Build(c, aad, [][]any{{"R1", "COAL", "2014", "1.5"}, {"R1", "COAL", "2015.0", nil}})
	require.NoError(t, err)
	require.Equal(t, []string{"REGION", "FUEL", "YEAR", "VALUE"}, tbl.Columns)
	require.Equal(t, [][]any{{"R1", "COAL", int64(2014), 1.5}, {"R1", "COAL", int64(2015), nil}}, tbl.Rows)
	require.True(t, tbl.Typed())

	_, err = Build(c, aad, [][]any{{"R1", "COAL", "twenty", "1"}})
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	require.Equal(t, "AccumulatedAnnualDemand", ve.Entity)
	require.Equal(t, "YEAR", ve.Column)
	require.Contains(t, ve.Error(), "validation error when checking datatype of AccumulatedAnnualDemand")

	_, err = Build(c, aad, [][]any{{"R1", nil, "2014", "1"}})
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "FUEL", ve.Column)

	_, err = Build(c, aad, [][]any{{"R1", "2014", "1"}})
	require.ErrorAs(t, err, &ve)
	require.Contains(t, ve.Error(), "want 4")

	region, _ := c.Lookup("REGION")
	_, err = Build(c, region, [][]any{{nil}})
	require.ErrorAs(t, err, &ve)
}

func TestCoerce_IsIdempotent(t *testing.T) {
	t.Parallel()

	c := scenarioCatalog(t)
	aad, _ := c.Lookup("AccumulatedAnnualDemand")

	first, err := Build(c, aad, [][]any{{"R1", "COAL", "2014", "3"}, {"R2", "GAS", int64(2016), 4.25}})
	require.NoError(t, err)

	second, err := Coerce(first.Name, first.Kind, first.Columns, first.Types, first.Rows)
	require.NoError(t, err)
	require.Equal(t, first.Rows, second)
}

func TestFromData_Scenario(t *testing.T) {
	t.Parallel()

	c := scenarioCatalog(t)
	data, err := datafile.ParseWithCatalog(c, "set REGION := R1 R2;\nparam DemandProfile := R1 10.5 R2 7.25;\n")
	require.NoError(t, err)

	ds, err := FromData(c, data, Options{})
	require.NoError(t, err)
	require.Equal(t, c.Len(), ds.Len())

	region := ds.Table("REGION")
	require.Equal(t, []string{"VALUE"}, region.Columns)
	require.Equal(t, [][]any{{"R1"}, {"R2"}}, region.Rows)

	dp := ds.Table("DemandProfile")
	require.Equal(t, []string{"REGION", "VALUE"}, dp.Columns)
	require.Equal(t, [][]any{{"R1", 10.5}, {"R2", 7.25}}, dp.Rows)

	fuel := ds.Table("FUEL")
	require.NotNil(t, fuel)
	require.Empty(t, fuel.Rows)

	var names []string
	for _, tbl := range ds.Tables() {
		names = append(names, tbl.Name)
	}
	require.Equal(t, []string{"REGION", "FUEL", "YEAR", "DemandProfile", "AccumulatedAnnualDemand"}, names)
}

func TestFromData_InvalidEntityPolicy(t *testing.T) {
	t.Parallel()

	c := scenarioCatalog(t)
	data, err := datafile.ParseWithCatalog(c, "set YEAR := 2014 soon;\nset REGION := R1;\n")
	require.NoError(t, err)

	_, err = FromData(c, data, Options{})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "YEAR", ve.Entity)

	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)

	ds, err := FromData(c, data, Options{SkipInvalid: true, Log: log})
	require.NoError(t, err)
	require.Nil(t, ds.Table("YEAR"))
	require.NotNil(t, ds.Table("REGION"))
	require.Len(t, ds.Skipped, 1)
	require.Contains(t, buf.String(), "skipping entity")
}

func TestFromData_WarnsOnDatafileDefault(t *testing.T) {
	t.Parallel()

	c := scenarioCatalog(t)
	data, err := datafile.ParseWithCatalog(c, "set REGION := R1;\nparam DemandProfile default 0.0 := R1 1;\nparam AccumulatedAnnualDemand default 5 :=;\n")
	require.NoError(t, err)

	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)

	ds, err := FromData(c, data, Options{Log: log})
	require.NoError(t, err)
	require.Equal(t, [][]any{{"R1", 1.0}}, ds.Table("DemandProfile").Rows)

	out := buf.String()
	require.Equal(t, 1, strings.Count(out, "datafile default differs"))
	require.Contains(t, out, "entity=AccumulatedAnnualDemand")
	require.Contains(t, out, "datafile_default=5")
}

func TestNormalizeKey(t *testing.T) {
	t.Parallel()

	require.Equal(t, "2014", NormalizeKey(int64(2014)))
	require.Equal(t, "2014", NormalizeKey(float64(2014)))
	require.Equal(t, "2014", NormalizeKey(" 2014 "))
	require.Equal(t, "0.5", NormalizeKey(0.5))
	require.Equal(t, "", NormalizeKey(nil))
}
