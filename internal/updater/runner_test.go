package updater

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/NumeralHQ/rate-and-boundary-updates/internal/batch"
	"github.com/NumeralHQ/rate-and-boundary-updates/internal/config"
	"github.com/NumeralHQ/rate-and-boundary-updates/internal/report"
	"github.com/NumeralHQ/rate-and-boundary-updates/internal/storage"
	_ "github.com/NumeralHQ/rate-and-boundary-updates/internal/storage/sqlite"
)

const seedSQL = `
CREATE TABLE detail (geocode VARCHAR, tax_type VARCHAR, rate REAL, effective DATE);
INSERT INTO detail VALUES ('US0100', '01', 0.04, '2024-01-01');
CREATE TABLE product_item ("group" VARCHAR, item VARCHAR, description VARCHAR, effective DATE);
INSERT INTO product_item VALUES
  ('7777', '001', 'first', '2024-01-01'),
  ('7777', '001', 'second', '2024-01-01'),
  ('1000', '002', 'single', '2024-01-01');
`

type fixture struct {
	source string
	batch  batch.Batch
}

// newFixture seeds a source database and an empty batch folder.
func newFixture(t *testing.T) fixture {
	t.Helper()
	root := t.TempDir()
	src := filepath.Join(root, "tax.db")

	db, err := sql.Open("sqlite", src)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if _, err := db.Exec(seedSQL); err != nil {
		t.Fatalf("seed: %v", err)
	}

	dir := filepath.Join(root, "updates", "251014_update")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	return fixture{source: src, batch: batch.Batch{Dir: dir, Name: "251014_update", Token: "251014"}}
}

func (f fixture) write(t *testing.T, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(f.batch.Dir, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func (f fixture) options() Options {
	return Options{
		Source:         f.source,
		StorageKind:    "sqlite",
		Batch:          f.batch,
		Filters:        config.FilterSpec{"product_item": {FilterFields: []string{"group", "item"}}},
		SnapshotPrefix: "tax",
		ChunkSize:      1000,
	}
}

func (f fixture) run(t *testing.T, opts Options) report.Summary {
	t.Helper()
	sum, err := New(opts, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return sum
}

func (f fixture) document(t *testing.T) report.Document {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(f.batch.Dir, "errors.json"))
	if err != nil {
		t.Fatalf("read errors.json: %v", err)
	}
	var doc report.Document
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatalf("decode errors.json: %v", err)
	}
	return doc
}

func query(t *testing.T, path, q string, args ...any) [][]string {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	rows, err := db.Query(q, args...)
	if err != nil {
		t.Fatalf("query %q: %v", q, err)
	}
	defer rows.Close()
	cols, _ := rows.Columns()
	var out [][]string
	for rows.Next() {
		vals := make([]sql.NullString, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			t.Fatal(err)
		}
		rec := make([]string, len(cols))
		for i, v := range vals {
			if v.Valid {
				rec[i] = v.String
			} else {
				rec[i] = "NULL"
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		t.Fatal(err)
	}
	return out
}

func count(t *testing.T, path, table string) string {
	t.Helper()
	return query(t, path, `SELECT COUNT(*) FROM `+storage.QuoteIdent(table))[0][0]
}

func memberByFile(t *testing.T, sum report.Summary, file string) report.MemberSummary {
	t.Helper()
	for _, m := range sum.Members {
		if m.File == file {
			return m
		}
	}
	t.Fatalf("no member %q in %+v", file, sum.Members)
	return report.MemberSummary{}
}

/*
TestRun_AppendUnknownColumn checks that a header naming a column the table
lacks fails the member without touching the table.
*/
func TestRun_AppendUnknownColumn(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.write(t, "detail_append_1.csv", "geocode,bogus\nUS0200,x\n")
	sum := f.run(t, f.options())

	m := memberByFile(t, sum, "detail_append_1.csv")
	if m.Outcome != "failed" || m.State != "parsed" {
		t.Fatalf("member=%+v; want failed at parsed", m)
	}
	if got := count(t, sum.Snapshot, "detail"); got != "1" {
		t.Fatalf("detail rows=%s; want 1", got)
	}

	doc := f.document(t)
	if doc.TotalErrors != 1 {
		t.Fatalf("TotalErrors=%d; want 1 (%+v)", doc.TotalErrors, doc.Errors)
	}
	rec := doc.Errors[0]
	if !reflect.DeepEqual(rec.MissingFields, []string{"bogus"}) || rec.File != "detail_append_1.csv" || rec.Table != "detail" {
		t.Fatalf("record=%+v", rec)
	}
	if doc.RunID != sum.RunID || doc.Batch != "251014_update" {
		t.Fatalf("document meta=%q,%q", doc.RunID, doc.Batch)
	}
}

/*
TestRun_UpdateResolution covers an ambiguous match, a single match, a new row
and date normalization in one member.
*/
func TestRun_UpdateResolution(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.write(t, "product_item_update_1.csv", strings.Join([]string{
		"group,item,description,effective",
		"7777,001,ambiguous,7/1/2025",
		"1000,002,changed,7/1/2025",
		"2000,003,new,2025-08-15",
		"",
	}, "\n"))
	sum := f.run(t, f.options())

	m := memberByFile(t, sum, "product_item_update_1.csv")
	want := report.MemberSummary{
		File: "product_item_update_1.csv", Table: "product_item", Operation: "update",
		State: "processed", Outcome: "partial",
		Processed: 3, Inserted: 1, Updated: 1, Conflicts: 1, Errors: 1,
	}
	if m != want {
		t.Fatalf("member=%+v; want %+v", m, want)
	}

	rows := query(t, sum.Snapshot, `SELECT "group", item, description, CAST(effective AS TEXT) FROM product_item ORDER BY "group", item, description`)
	wantRows := [][]string{
		{"1000", "002", "changed", "2025-07-01"},
		{"2000", "003", "new", "2025-08-15"},
		{"7777", "001", "first", "2024-01-01"},
		{"7777", "001", "second", "2024-01-01"},
	}
	if !reflect.DeepEqual(rows, wantRows) {
		t.Fatalf("product_item=%v; want %v", rows, wantRows)
	}

	doc := f.document(t)
	if doc.TotalErrors != 1 {
		t.Fatalf("TotalErrors=%d; want 1", doc.TotalErrors)
	}
	rec := doc.Errors[0]
	if rec.MatchCount != 2 || rec.Row != 1 || !reflect.DeepEqual(rec.FilterFields, []string{"group", "item"}) {
		t.Fatalf("record=%+v", rec)
	}
	if !reflect.DeepEqual(rec.FilterValues, []any{"7777", "001"}) {
		t.Fatalf("filter_values=%v; want [7777 001]", rec.FilterValues)
	}

	if got := count(t, f.source, "product_item"); got != "3" {
		t.Fatalf("source product_item rows=%s; want 3 (source must stay untouched)", got)
	}
}

/*
TestRun_RowNumbersStableAcrossChunks makes sure reported row numbers do not
depend on the chunk size.
*/
func TestRun_RowNumbersStableAcrossChunks(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	b.WriteString("geocode,tax_type,rate,effective\n")
	for i := 1; i <= 12; i++ {
		rate := "0.05"
		if i == 5 || i == 11 {
			rate = "abc"
		}
		b.WriteString("US09" + string(rune('A'+i)) + ",01," + rate + ",1/2/2025\n")
	}

	for _, size := range []int{1, 7, 1000} {
		f := newFixture(t)
		f.write(t, "detail_append_1.csv", b.String())
		opts := f.options()
		opts.ChunkSize = size
		sum := f.run(t, opts)

		m := memberByFile(t, sum, "detail_append_1.csv")
		if m.Outcome != "partial" || m.Appended != 10 || m.Processed != 12 || m.Errors != 2 {
			t.Fatalf("chunk=%d member=%+v", size, m)
		}
		var got []int
		for _, rec := range f.document(t).Errors {
			if rec.Column != "rate" || rec.Value != "abc" {
				t.Fatalf("chunk=%d record=%+v", size, rec)
			}
			got = append(got, rec.Row)
		}
		if !reflect.DeepEqual(got, []int{5, 11}) {
			t.Fatalf("chunk=%d rows=%v; want [5 11]", size, got)
		}
		if n := count(t, sum.Snapshot, "detail"); n != "11" {
			t.Fatalf("chunk=%d detail rows=%s; want 11", size, n)
		}
	}
}

func TestRun_InsertThenUpdate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.write(t, "product_item_update_1.csv", "group,item,description\n3000,004,v1\n3000,004,v2\n")
	sum := f.run(t, f.options())

	m := memberByFile(t, sum, "product_item_update_1.csv")
	if m.Inserted != 1 || m.Updated != 1 || m.Outcome != "success" {
		t.Fatalf("member=%+v; want 1 insert then 1 update", m)
	}
	rows := query(t, sum.Snapshot, `SELECT description FROM product_item WHERE "group" = ? AND item = ?`, "3000", "004")
	if len(rows) != 1 || rows[0][0] != "v2" {
		t.Fatalf("rows=%v; want [[v2]]", rows)
	}
}

func TestRun_LeadingZerosPreserved(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.write(t, "detail_append_1.csv", "geocode,tax_type,rate\n000123,007,0.01\n")
	sum := f.run(t, f.options())

	rows := query(t, sum.Snapshot, `SELECT geocode, tax_type FROM detail WHERE geocode LIKE '0%'`)
	if !reflect.DeepEqual(rows, [][]string{{"000123", "007"}}) {
		t.Fatalf("rows=%v; want [[000123 007]]", rows)
	}
}

/*
TestRun_DryRun checks that a dry run reports what it would do but creates no
snapshot and leaves the source database alone.
*/
func TestRun_DryRun(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.write(t, "detail_append_1.csv", "geocode,tax_type,rate\nUS0300,01,0.02\nUS0301,01,bad\n")
	f.write(t, "product_item_update_1.csv", "group,item,description\n1000,002,dry\n4000,005,dry\n")
	opts := f.options()
	opts.DryRun = true
	sum := f.run(t, opts)

	if sum.Snapshot != "" || !sum.DryRun {
		t.Fatalf("summary=%+v; want dry run without snapshot", sum)
	}
	entries, _ := os.ReadDir(f.batch.Dir)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "tax_") {
			t.Fatalf("unexpected snapshot %s", e.Name())
		}
	}

	a := memberByFile(t, sum, "detail_append_1.csv")
	if a.Appended != 1 || a.Errors != 1 {
		t.Fatalf("append member=%+v", a)
	}
	u := memberByFile(t, sum, "product_item_update_1.csv")
	if u.Updated != 1 || u.Inserted != 1 {
		t.Fatalf("update member=%+v", u)
	}

	if got := count(t, f.source, "detail"); got != "1" {
		t.Fatalf("detail rows=%s; want 1", got)
	}
	rows := query(t, f.source, `SELECT description FROM product_item WHERE "group" = '1000'`)
	if rows[0][0] != "single" {
		t.Fatalf("description=%q; want single", rows[0][0])
	}
	if doc := f.document(t); !doc.DryRun || doc.TotalErrors != 1 {
		t.Fatalf("document dry_run=%v errors=%d", doc.DryRun, doc.TotalErrors)
	}
}

/*
TestRun_DryRunMatchesRealRun runs the same member with and without dry run
and expects the same outcome counts when a file repeats an unmatched key.
*/
func TestRun_DryRunMatchesRealRun(t *testing.T) {
	t.Parallel()

	body := "group,item,description\n3000,004,v1\n3000,004,v2\n1000,002,changed\n"
	var got [2]report.MemberSummary
	for i, dry := range []bool{true, false} {
		f := newFixture(t)
		f.write(t, "product_item_update_1.csv", body)
		opts := f.options()
		opts.DryRun = dry
		got[i] = memberByFile(t, f.run(t, opts), "product_item_update_1.csv")
	}
	dryRun, liveRun := got[0], got[1]
	if dryRun.Inserted != 1 || dryRun.Updated != 2 {
		t.Fatalf("dry run member=%+v; want inserted=1 updated=2", dryRun)
	}
	if dryRun.Inserted != liveRun.Inserted || dryRun.Updated != liveRun.Updated || dryRun.Conflicts != liveRun.Conflicts {
		t.Fatalf("dry run %+v differs from real run %+v", dryRun, liveRun)
	}
}

func TestRun_SQLiteIntegerHolds64Bits(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	db, err := sql.Open("sqlite", f.source)
	if err != nil {
		t.Fatal(err)
	}
	_, err = db.Exec(`CREATE TABLE tally (name VARCHAR, n INTEGER)`)
	db.Close()
	if err != nil {
		t.Fatal(err)
	}
	f.write(t, "tally_append_1.csv", "name,n\nbig,3000000000\n")
	sum := f.run(t, f.options())

	if m := memberByFile(t, sum, "tally_append_1.csv"); m.Outcome != "success" || m.Appended != 1 {
		t.Fatalf("member=%+v; want one row appended", m)
	}
	if rows := query(t, sum.Snapshot, `SELECT n FROM tally`); rows[0][0] != "3000000000" {
		t.Fatalf("n=%v; want 3000000000", rows)
	}
}

func TestRun_MemberIsolation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.write(t, "unknown_update_1.csv", "a\n1\n")
	f.write(t, "notes.csv", "x\n")
	f.write(t, "missing_append_1.csv", "a\n1\n")
	f.write(t, "detail_append_1.csv", "geocode,rate\nUS0400,0.03\n")
	sum := f.run(t, f.options())

	tests := []struct {
		file, outcome, kind string
	}{
		{"notes.csv", "failed", "FilenameFormatError"},
		{"unknown_update_1.csv", "failed", "FilterSpecMissingError"},
		{"missing_append_1.csv", "failed", "SchemaLookupError"},
		{"detail_append_1.csv", "success", ""},
	}
	doc := f.document(t)
	for _, tt := range tests {
		m := memberByFile(t, sum, tt.file)
		if m.Outcome != tt.outcome {
			t.Fatalf("%s outcome=%q; want %q", tt.file, m.Outcome, tt.outcome)
		}
		if tt.kind == "" {
			continue
		}
		found := false
		for _, rec := range doc.Errors {
			if rec.File == tt.file && rec.Kind == tt.kind {
				found = true
			}
		}
		if !found {
			t.Fatalf("no %s record for %s in %+v", tt.kind, tt.file, doc.Errors)
		}
	}
	if got := count(t, sum.Snapshot, "detail"); got != "2" {
		t.Fatalf("detail rows=%s; want 2", got)
	}
	if got := sum.Outcomes(); got["failed"] != 3 || got["success"] != 1 {
		t.Fatalf("Outcomes=%v", got)
	}
}

func TestRun_SnapshotFailureIsFatal(t *testing.T) {
	orig := createSnapshot
	defer func() { createSnapshot = orig }()
	boom := &storage.DatabaseIOError{Op: "snapshot", Path: "tax.db", Err: errors.New("disk full")}
	createSnapshot = func(string, batch.Batch, string) (batch.Snapshot, error) {
		return batch.Snapshot{}, boom
	}

	f := newFixture(t)
	f.write(t, "detail_append_1.csv", "geocode\nUS0500\n")
	f.write(t, "notes.csv", "x\n")
	sum, err := New(f.options(), nil).Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Run err=%v; want %v", err, boom)
	}
	if len(sum.Members) != 1 || sum.Members[0].File != "notes.csv" {
		t.Fatalf("members=%+v; want only the unparsable name", sum.Members)
	}
	doc := f.document(t)
	if doc.TotalErrors != 2 {
		t.Fatalf("TotalErrors=%d; want 2 (%+v)", doc.TotalErrors, doc.Errors)
	}
	if doc.Errors[0].Kind != "FilenameFormatError" || doc.Errors[1].File != "251014_update" {
		t.Fatalf("errors=%+v; want filename error then the fatal one", doc.Errors)
	}
}

func TestMemberFinish(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state  State
		failed bool
		errs   int
		want   Outcome
	}{
		{Processed, false, 0, Success},
		{Processed, false, 3, Partial},
		{Processed, true, 1, Failed},
		{SchemaValidated, false, 0, Failed},
		{Discovered, false, 1, Failed},
	}
	for _, tt := range tests {
		m := &member{state: tt.state, failed: tt.failed}
		if got := m.finish(tt.errs, 0); got.Outcome != string(tt.want) || got.State != tt.state.String() {
			t.Fatalf("finish(%v,%v,%d)=%s/%s; want %s", tt.state, tt.failed, tt.errs, got.State, got.Outcome, tt.want)
		}
	}
}
