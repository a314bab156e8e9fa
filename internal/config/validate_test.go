package config

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/NumeralHQ/rate-and-boundary-updates/internal/schema"
)

func validSettings() Settings {
	return Settings{
		DatabasePath:   "tax_db.duckdb",
		StorageKind:    "duckdb",
		UpdatesDir:     "table_updates",
		SnapshotPrefix: "tax_db",
		ErrorLog:       "errors.json",
		ChunkSize:      1000,
		Metrics:        Metrics{Backend: "none"},
		Log:            Log{Level: "info"},
	}
}

func hasIssue(issues []Issue, sev IssueSeverity, path string) bool {
	for _, iss := range issues {
		if iss.Severity == sev && iss.Path == path {
			return true
		}
	}
	return false
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	if issues := ValidateSettings(validSettings()); len(issues) != 0 {
		t.Fatalf("valid settings produced issues: %v", issues)
	}

	cases := []struct {
		name   string
		mutate func(*Settings)
		sev    IssueSeverity
		path   string
	}{
		{"no database", func(s *Settings) { s.DatabasePath = " " }, SeverityError, "database_path"},
		{"bad storage", func(s *Settings) { s.StorageKind = "postgres" }, SeverityError, "storage_kind"},
		{"zero chunk", func(s *Settings) { s.ChunkSize = 0 }, SeverityError, "chunk_size"},
		{"huge chunk", func(s *Settings) { s.ChunkSize = 1_000_000 }, SeverityWarning, "chunk_size"},
		{"error log path", func(s *Settings) { s.ErrorLog = "../errors.json" }, SeverityError, "error_log"},
		{"metrics", func(s *Settings) { s.Metrics.Backend = "statsd" }, SeverityWarning, "metrics.backend"},
		{"log level", func(s *Settings) { s.Log.Level = "loud" }, SeverityWarning, "log.level"},
		{"no updates dir", func(s *Settings) { s.UpdatesDir = "" }, SeverityError, "updates_dir"},
	}
	for _, tc := range cases {
		s := validSettings()
		tc.mutate(&s)
		issues := ValidateSettings(s)
		if !hasIssue(issues, tc.sev, tc.path) {
			t.Errorf("%s: issues=%v; want %s at %s", tc.name, issues, tc.sev, tc.path)
		}
	}

	s := validSettings()
	s.UpdatesDir = ""
	s.JobFolder = "250701_update"
	if HasErrors(ValidateSettings(s)) {
		t.Errorf("explicit job folder without updates_dir should be valid")
	}
}

func TestValidateFilterSpec(t *testing.T) {
	t.Parallel()

	issues := ValidateFilterSpec(FilterSpec{
		"detail":       {FilterFields: []string{"geocode", "GEOCODE", ""}},
		"product_item": {},
	})
	if !hasIssue(issues, SeverityWarning, "filter_spec.detail.filter_fields[1]") {
		t.Errorf("missing duplicate warning: %v", issues)
	}
	if !hasIssue(issues, SeverityError, "filter_spec.detail.filter_fields[2]") {
		t.Errorf("missing empty-name error: %v", issues)
	}
	if !hasIssue(issues, SeverityError, "filter_spec.product_item.filter_fields") {
		t.Errorf("missing no-fields error: %v", issues)
	}
	if !HasErrors(issues) {
		t.Errorf("HasErrors=false")
	}

	if issues := ValidateFilterSpec(FilterSpec{}); len(issues) != 1 || issues[0].Severity != SeverityWarning {
		t.Errorf("empty spec issues=%v; want one warning", issues)
	}
}

type fakeInspector map[string]schema.Table

func (f fakeInspector) Describe(ctx context.Context, table string) (schema.Table, error) {
	if table == "broken" {
		return schema.Table{}, errors.New("catalog unavailable")
	}
	t, ok := f[table]
	if !ok {
		return schema.Table{}, &schema.LookupError{Table: table}
	}
	return t, nil
}

func TestCheckFilterSpecSchema(t *testing.T) {
	t.Parallel()

	in := fakeInspector{
		"product_item": schema.NewTable("product_item", [2]string{"group", "VARCHAR"}, [2]string{"item", "VARCHAR"}),
	}
	spec := FilterSpec{
		"product_item": {FilterFields: []string{"group", "sku"}},
		"matrix":       {FilterFields: []string{"geocode"}},
	}
	issues, err := CheckFilterSpecSchema(context.Background(), spec, in)
	if err != nil {
		t.Fatalf("CheckFilterSpecSchema: %v", err)
	}
	if !hasIssue(issues, SeverityWarning, "filter_spec.matrix") {
		t.Errorf("missing table warning: %v", issues)
	}
	if !hasIssue(issues, SeverityWarning, "filter_spec.product_item.filter_fields[1]") {
		t.Errorf("missing unknown field warning: %v", issues)
	}
	if len(issues) != 2 {
		t.Errorf("issues=%v; want 2", issues)
	}

	_, err = CheckFilterSpecSchema(context.Background(), FilterSpec{"broken": {FilterFields: []string{"x"}}}, in)
	if err == nil || !strings.Contains(err.Error(), "catalog") {
		t.Fatalf("err=%v; want catalog failure", err)
	}
}
