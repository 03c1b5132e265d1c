package sqlite

import (
	"context"
	"strings"
	"testing"

	"modelconv/internal/storage"
)

func specs() []storage.TableSpec {
	return []storage.TableSpec{
		{
			Name:       "REGION",
			Columns:    []storage.ColumnSpec{{Name: "VALUE", Type: storage.ColumnText}},
			PrimaryKey: []string{"VALUE"},
		},
		{
			Name:       "YEAR",
			Columns:    []storage.ColumnSpec{{Name: "VALUE", Type: storage.ColumnInteger}},
			PrimaryKey: []string{"VALUE"},
		},
		{
			Name: "ResidualCapacity",
			Columns: []storage.ColumnSpec{
				{Name: "REGION", Type: storage.ColumnText, References: &storage.Reference{Table: "REGION", Column: "VALUE"}},
				{Name: "YEAR", Type: storage.ColumnInteger, References: &storage.Reference{Table: "YEAR", Column: "VALUE"}},
				{Name: "VALUE", Type: storage.ColumnReal, Nullable: true},
			},
			PrimaryKey: []string{"REGION", "YEAR"},
		},
	}
}

func TestBuildCreateSQL_CompositeKeyAndReferences(t *testing.T) {
	t.Parallel()

	ddl, err := buildCreateSQL(specs()[2])
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}
	for _, want := range []string{
		`CREATE TABLE IF NOT EXISTS "ResidualCapacity"`,
		`"REGION" TEXT NOT NULL REFERENCES "REGION" ("VALUE")`,
		`"YEAR" INTEGER NOT NULL REFERENCES "YEAR" ("VALUE")`,
		`"VALUE" REAL`,
		`PRIMARY KEY ("REGION", "YEAR")`,
	} {
		if !strings.Contains(ddl, want) {
			t.Fatalf("ddl missing %q:\n%s", want, ddl)
		}
	}
	if strings.Contains(ddl, `"VALUE" REAL NOT NULL`) {
		t.Fatalf("value column must be nullable:\n%s", ddl)
	}

	if _, err := buildCreateSQL(storage.TableSpec{Name: " "}); err == nil {
		t.Fatalf("expected error for empty table name")
	}
	if _, err := buildCreateSQL(storage.TableSpec{Name: "X"}); err == nil {
		t.Fatalf("expected error for table without columns")
	}
}

func TestBuildInsertSQL_Placeholders(t *testing.T) {
	t.Parallel()

	sql, args := buildInsertSQL("main.ResidualCapacity", []string{"REGION", "YEAR", "VALUE"}, [][]any{
		{"R1", int64(2014), 1.5},
		{"R1", int64(2015), nil},
	})
	want := `INSERT INTO "main"."ResidualCapacity" ("REGION", "YEAR", "VALUE") VALUES (?,?,?), (?,?,?)`
	if sql != want {
		t.Fatalf("got  %s\nwant %s", sql, want)
	}
	if len(args) != 6 {
		t.Fatalf("expected 6 args, got %d", len(args))
	}
}

func TestBuildSelectSQL_OrdersByKey(t *testing.T) {
	t.Parallel()

	got := buildSelectSQL(specs()[2])
	want := `SELECT "REGION", "YEAR", "VALUE" FROM "ResidualCapacity" ORDER BY "REGION", "YEAR"`
	if got != want {
		t.Fatalf("got  %s\nwant %s", got, want)
	}
}

func TestRepo_InMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, err := storage.New(ctx, storage.Config{Kind: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	defer repo.Close()

	tables := specs()
	if err := repo.EnsureTables(ctx, tables); err != nil {
		t.Fatalf("EnsureTables: %v", err)
	}
	// idempotent
	if err := repo.EnsureTables(ctx, tables); err != nil {
		t.Fatalf("EnsureTables (second run): %v", err)
	}

	mustInsert := func(table string, cols []string, rows [][]any) {
		t.Helper()
		n, err := repo.InsertRows(ctx, table, cols, rows)
		if err != nil {
			t.Fatalf("InsertRows %s: %v", table, err)
		}
		if n != int64(len(rows)) {
			t.Fatalf("InsertRows %s: affected=%d want %d", table, n, len(rows))
		}
	}
	mustInsert("REGION", []string{"VALUE"}, [][]any{{"R2"}, {"R1"}})
	mustInsert("YEAR", []string{"VALUE"}, [][]any{{int64(2015)}, {int64(2014)}})
	mustInsert("ResidualCapacity", []string{"REGION", "YEAR", "VALUE"}, [][]any{
		{"R1", int64(2015), 2.5},
		{"R1", int64(2014), nil},
	})

	got, err := repo.SelectRows(ctx, tables[2])
	if err != nil {
		t.Fatalf("SelectRows: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if got[0][0] != "R1" || got[0][1] != int64(2014) || got[0][2] != nil {
		t.Fatalf("unexpected first row: %#v", got[0])
	}
	if got[1][1] != int64(2015) || got[1][2] != 2.5 {
		t.Fatalf("unexpected second row: %#v", got[1])
	}

	if _, err := repo.InsertRows(ctx, "ResidualCapacity", []string{"REGION", "YEAR", "VALUE"}, [][]any{
		{"R9", int64(2014), 1.0},
	}); err == nil {
		t.Fatalf("expected foreign key violation for unknown region")
	}
}

func TestRepo_InsertRowsChunksLargeBatches(t *testing.T) {
	ctx := context.Background()
	repo, err := New(ctx, storage.Config{DSN: ":memory:"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer repo.Close()

	spec := storage.TableSpec{
		Name:       "TIMESLICE",
		Columns:    []storage.ColumnSpec{{Name: "VALUE", Type: storage.ColumnInteger}},
		PrimaryKey: []string{"VALUE"},
	}
	if err := repo.EnsureTables(ctx, []storage.TableSpec{spec}); err != nil {
		t.Fatalf("EnsureTables: %v", err)
	}

	rows := make([][]any, maxParams+10)
	for i := range rows {
		rows[i] = []any{int64(i)}
	}
	n, err := repo.InsertRows(ctx, spec.Name, []string{"VALUE"}, rows)
	if err != nil {
		t.Fatalf("InsertRows: %v", err)
	}
	if n != int64(len(rows)) {
		t.Fatalf("affected=%d want %d", n, len(rows))
	}
}
