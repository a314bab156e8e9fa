package config

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/NumeralHQ/rate-and-boundary-updates/internal/schema"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue is a single lint finding. Path is a dotted settings key or a filter
// spec location such as "filter_spec.detail.filter_fields[2]".
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

var (
	knownStorage = map[string]struct{}{"duckdb": {}, "sqlite": {}}
	knownMetrics = map[string]struct{}{"": {}, "none": {}, "pushgateway": {}, "datadog": {}}
	knownLevels  = map[string]struct{}{"debug": {}, "info": {}, "warn": {}, "error": {}}
)

// ValidateSettings lints resolved settings.
func ValidateSettings(s Settings) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.DatabasePath) == "" {
		issues = append(issues, Issue{SeverityError, "database_path", "source database path must not be empty"})
	}
	if _, ok := knownStorage[s.StorageKind]; !ok {
		issues = append(issues, Issue{SeverityError, "storage_kind",
			fmt.Sprintf("unknown storage kind %q; want duckdb or sqlite", s.StorageKind)})
	}
	if s.JobFolder == "" && strings.TrimSpace(s.UpdatesDir) == "" {
		issues = append(issues, Issue{SeverityError, "updates_dir", "updates_dir is required when job_folder is not set"})
	}
	if s.ChunkSize <= 0 {
		issues = append(issues, Issue{SeverityError, "chunk_size", "chunk_size must be > 0"})
	} else if s.ChunkSize > 100_000 {
		issues = append(issues, Issue{SeverityWarning, "chunk_size",
			fmt.Sprintf("chunk_size=%d is large; memory use grows with chunk size", s.ChunkSize)})
	}
	if strings.TrimSpace(s.SnapshotPrefix) == "" {
		issues = append(issues, Issue{SeverityError, "snapshot_prefix", "snapshot_prefix must not be empty"})
	}
	if strings.ContainsAny(s.ErrorLog, `/\`) || strings.TrimSpace(s.ErrorLog) == "" {
		issues = append(issues, Issue{SeverityError, "error_log", "error_log must be a plain file name"})
	}
	if _, ok := knownMetrics[s.Metrics.Backend]; !ok {
		issues = append(issues, Issue{SeverityWarning, "metrics.backend",
			fmt.Sprintf("unknown metrics backend %q; metrics will be disabled", s.Metrics.Backend)})
	}
	if _, ok := knownLevels[strings.ToLower(s.Log.Level)]; !ok {
		issues = append(issues, Issue{SeverityWarning, "log.level",
			fmt.Sprintf("unknown log level %q; using info", s.Log.Level)})
	}
	return issues
}

// ValidateFilterSpec lints a filter document on its own.
func ValidateFilterSpec(spec FilterSpec) []Issue {
	var issues []Issue
	if len(spec) == 0 {
		return append(issues, Issue{SeverityWarning, "filter_spec", "filter spec is empty; every update member will fail"})
	}

	for _, table := range sortedTables(spec) {
		fields := spec[table].FilterFields
		path := "filter_spec." + table + ".filter_fields"
		if len(fields) == 0 {
			issues = append(issues, Issue{SeverityError, path, "must list at least one field"})
			continue
		}
		seen := map[string]bool{}
		for i, f := range fields {
			p := fmt.Sprintf("%s[%d]", path, i)
			if strings.TrimSpace(f) == "" {
				issues = append(issues, Issue{SeverityError, p, "field name must not be empty"})
				continue
			}
			lf := strings.ToLower(f)
			if seen[lf] {
				issues = append(issues, Issue{SeverityWarning, p, fmt.Sprintf("field %q is listed twice", f)})
			}
			seen[lf] = true
		}
	}
	return issues
}

// CheckFilterSpecSchema compares the filter document with the live schema.
// Tables that do not exist and fields the table does not declare are
// warnings; catalog failures are returned as an error.
func CheckFilterSpecSchema(ctx context.Context, spec FilterSpec, in schema.Inspector) ([]Issue, error) {
	var issues []Issue
	for _, table := range sortedTables(spec) {
		t, err := in.Describe(ctx, table)
		var le *schema.LookupError
		if errors.As(err, &le) {
			issues = append(issues, Issue{SeverityWarning, "filter_spec." + table, "table does not exist in the database"})
			continue
		}
		if err != nil {
			return issues, err
		}
		for i, f := range spec[table].FilterFields {
			if _, ok := t.Lookup(f); !ok {
				issues = append(issues, Issue{SeverityWarning,
					fmt.Sprintf("filter_spec.%s.filter_fields[%d]", table, i),
					fmt.Sprintf("field %q is not a column of %s", f, table)})
			}
		}
	}
	return issues, nil
}

func sortedTables(spec FilterSpec) []string {
	out := make([]string, 0, len(spec))
	for t := range spec {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
