package datafile

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"modelconv/internal/catalog"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()

	c, err := catalog.New(
		catalog.Entity{Name: "REGION", Kind: catalog.KindSet, DType: catalog.DTypeString},
		catalog.Entity{Name: "TECHNOLOGY", Kind: catalog.KindSet, DType: catalog.DTypeString},
		catalog.Entity{Name: "MODE_OF_OPERATION", Kind: catalog.KindSet, DType: catalog.DTypeInt},
		catalog.Entity{Name: "YEAR", Kind: catalog.KindSet, DType: catalog.DTypeInt},
		catalog.Entity{Name: "DemandProfile", Kind: catalog.KindParam, DType: catalog.DTypeFloat, Indices: []string{"REGION"}, Default: 0},
		catalog.Entity{Name: "VariableCost", Kind: catalog.KindParam, DType: catalog.DTypeFloat, Indices: []string{"REGION", "TECHNOLOGY", "MODE_OF_OPERATION", "YEAR"}, Default: 0},
		catalog.Entity{Name: "DiscountRate", Kind: catalog.KindParam, DType: catalog.DTypeFloat, Default: 0.05},
	)
	require.NoError(t, err)
	return c
}

// leaves flattens a datum into "k1/k2=value" strings for easy comparison.
func leaves(d *Datum) map[string]string {
	out := map[string]string{}
	var walk func(prefix []string, n *Datum)
	walk = func(prefix []string, n *Datum) {
		if v, ok := n.Leaf(); ok {
			out[strings.Join(prefix, "/")] = v.Text
		}
		for _, k := range n.Keys() {
			walk(append(append([]string(nil), prefix...), k), n.Child(k))
		}
	}
	walk(nil, d)
	return out
}

func TestBuildGrammar(t *testing.T) {
	t.Parallel()

	got := BuildGrammar(testCatalog(t))
	want := "set REGION;\n" +
		"set TECHNOLOGY;\n" +
		"set MODE_OF_OPERATION;\n" +
		"set YEAR;\n" +
		"param DemandProfile {REGION};\n" +
		"param VariableCost {REGION,TECHNOLOGY,MODE_OF_OPERATION,YEAR};\n" +
		"param DiscountRate;\n"
	require.Equal(t, want, got)
	require.Equal(t, got, BuildGrammar(testCatalog(t)))
}

func TestParse_SetsAndPlainRecords(t *testing.T) {
	t.Parallel()

	src := `# simple model
set REGION := R1 R2;
set YEAR := 2014, 2015 ;
param DemandProfile := R1 10.5 R2 7.25;
end;
param ignored after end;
`
	data, err := ParseWithCatalog(testCatalog(t), src)
	require.NoError(t, err)

	region := data.Set("REGION")
	require.Len(t, region, 2)
	require.Equal(t, "R1", region[0].Text)
	require.False(t, region[0].IsNumber)

	years := data.Set("YEAR")
	require.Len(t, years, 2)
	require.True(t, years[1].IsNumber)
	require.Equal(t, float64(2015), years[1].Number)

	require.Equal(t, map[string]string{"R1": "10.5", "R2": "7.25"}, leaves(data.Param("DemandProfile")))
}

func TestParse_MissingEntityIsEmpty(t *testing.T) {
	t.Parallel()

	data, err := ParseWithCatalog(testCatalog(t), "set REGION := R1;\n")
	require.NoError(t, err)

	require.Empty(t, data.Set("TECHNOLOGY"))
	vc := data.Param("VariableCost")
	require.NotNil(t, vc)
	require.Equal(t, 0, vc.Len())

	kind, ok := data.Kind("VariableCost")
	require.True(t, ok)
	require.Equal(t, catalog.KindParam, kind)
	require.Len(t, data.Names(), 7)
}

func TestParse_SliceAndTabbingMatrix(t *testing.T) {
	t.Parallel()

	src := `
param VariableCost default -1 :=
[SIMPLICITY,ETHPLANT,*,*]:
2014 2015 :=
1 2.89 2.9
2 999999.0 .
[SIMPLICITY,GAS,1,*] 2014 3.5 2015 3.6
;
`
	data, err := ParseWithCatalog(testCatalog(t), src)
	require.NoError(t, err)

	vc := data.Param("VariableCost")
	require.NotNil(t, vc.Default)
	require.Equal(t, "-1", vc.Default.Text)

	require.Equal(t, map[string]string{
		"SIMPLICITY/ETHPLANT/1/2014": "2.89",
		"SIMPLICITY/ETHPLANT/1/2015": "2.9",
		"SIMPLICITY/ETHPLANT/2/2014": "999999.0",
		"SIMPLICITY/GAS/1/2014":      "3.5",
		"SIMPLICITY/GAS/1/2015":      "3.6",
	}, leaves(vc))
}

func TestParse_TransposedMatrix(t *testing.T) {
	t.Parallel()

	src := `param VariableCost := [R1,*,1,*] (tr) : COAL GAS :=
2014 1 2
2015 3 4
;`
	data, err := ParseWithCatalog(testCatalog(t), src)
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"R1/COAL/1/2014": "1",
		"R1/GAS/1/2014":  "2",
		"R1/COAL/1/2015": "3",
		"R1/GAS/1/2015":  "4",
	}, leaves(data.Param("VariableCost")))
}

func TestParse_ScalarParamQuotedSymbolsAndDuplicates(t *testing.T) {
	t.Parallel()

	src := `/* block
comment */
set REGION := 'North Sea' R2 R2;
param DiscountRate := 0.07;
param DemandProfile := 'North Sea' 1 'North Sea' 2;
`
	data, err := ParseWithCatalog(testCatalog(t), src)
	require.NoError(t, err)

	require.Equal(t, "North Sea", data.Set("REGION")[0].Text)
	require.Len(t, data.Set("REGION"), 2)
	require.Equal(t, 1, data.Duplicates["REGION"])

	dr, ok := data.Param("DiscountRate").Leaf()
	require.True(t, ok)
	require.Equal(t, 0.07, dr.Number)

	require.Equal(t, map[string]string{"North Sea": "2"}, leaves(data.Param("DemandProfile")))
	require.Equal(t, 1, data.Duplicates["DemandProfile"])
}

func TestParse_BlockCommentEndsSymbol(t *testing.T) {
	t.Parallel()

	data, err := ParseWithCatalog(testCatalog(t), "set REGION := R1/* c */ R2;\nparam DemandProfile := R1 1/* one */ R2 2;\n")
	require.NoError(t, err)

	var members []string
	for _, m := range data.Set("REGION") {
		members = append(members, m.Text)
	}
	require.Equal(t, []string{"R1", "R2"}, members)
	require.Equal(t, map[string]string{"R1": "1", "R2": "2"}, leaves(data.Param("DemandProfile")))
}

func TestParse_MultiParamTable(t *testing.T) {
	t.Parallel()

	c, err := catalog.New(
		catalog.Entity{Name: "REGION", Kind: catalog.KindSet, DType: catalog.DTypeString},
		catalog.Entity{Name: "DemandProfile", Kind: catalog.KindParam, DType: catalog.DTypeFloat, Indices: []string{"REGION"}, Default: 0},
		catalog.Entity{Name: "CapacityFactor", Kind: catalog.KindParam, DType: catalog.DTypeFloat, Indices: []string{"REGION"}, Default: 1},
	)
	require.NoError(t, err)

	src := `set REGION := R1 R2;
param default 0 : DemandProfile CapacityFactor :=
R1 0.5 0.9
R2 .   0.8
;
`
	data, err := ParseWithCatalog(c, src)
	require.NoError(t, err)

	require.Equal(t, map[string]string{"R1": "0.5"}, leaves(data.Param("DemandProfile")))
	require.Equal(t, map[string]string{"R1": "0.9", "R2": "0.8"}, leaves(data.Param("CapacityFactor")))
	require.Equal(t, "0", data.Param("CapacityFactor").Default.Text)

	data, err = ParseWithCatalog(c, "param : DemandProfile CapacityFactor := R1 1 2;")
	require.NoError(t, err)
	require.Nil(t, data.Param("DemandProfile").Default)
	require.Equal(t, map[string]string{"R1": "2"}, leaves(data.Param("CapacityFactor")))
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		src    string
		entity string
		line   int
		msg    string
	}{
		{"undeclared set", "set FUEL := A;", "FUEL", 1, "not declared"},
		{"kind mismatch", "set DemandProfile := A;", "DemandProfile", 1, "declared as param"},
		{"missing value", "param DemandProfile := R1 ;", "DemandProfile", 1, "missing its value"},
		{"unterminated param", "param DemandProfile := R1 1", "DemandProfile", 1, "unterminated"},
		{"slice arity", "param VariableCost := [R1,*] X 1;", "VariableCost", 1, "slice has 2 positions"},
		{"matrix needs two free", "param VariableCost := [R1,*,*,*] : A B := x 1 2;", "VariableCost", 1, "two free index positions"},
		{"bad statement", "\nvar x;", "", 2, "expected set or param"},
		{"unterminated set", "set REGION := A B", "REGION", 1, "unterminated set"},
		{"tuple set", "set REGION := (A,B);", "REGION", 1, "tuple members"},
		{"unterminated string", "set REGION := 'A;", "", 1, "unterminated string"},
		{"table arity mismatch", "param : DemandProfile VariableCost := R1 1 2;", "VariableCost", 1, "has 4 indices"},
		{"table defines a set", "param : DemandProfile : R1 := R1 1;", "", 1, "not supported"},
		{"unterminated table", "param : DemandProfile :=\nR1 1", "DemandProfile", 2, "unterminated param table"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := ParseWithCatalog(testCatalog(t), tt.src)
			require.Error(t, err)

			var pe *ParseError
			require.True(t, errors.As(err, &pe), "want *ParseError, got %T: %v", err, err)
			require.Equal(t, tt.entity, pe.Entity)
			require.Equal(t, tt.line, pe.Line)
			require.Equal(t, "datafile", pe.Source)
			require.Contains(t, pe.Error(), tt.msg)
		})
	}
}

func TestParse_GrammarErrors(t *testing.T) {
	t.Parallel()

	_, err := Parse("param P {A,B}\n", "")
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, "grammar", pe.Source)
	require.Equal(t, "P", pe.Entity)

	_, err = Parse("set A;\nparam A;\n", "")
	require.ErrorAs(t, err, &pe)
	require.Contains(t, pe.Msg, "declared twice")
}
