package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/NumeralHQ/rate-and-boundary-updates/internal/report"
)

// MismatchError reports CSV columns that the target table does not declare,
// or CSV columns that appear more than once.
type MismatchError struct {
	Table      string
	Missing    []string // CSV columns absent from the table, sorted
	Duplicates []string // CSV columns repeated in the header (case-insensitive), sorted
	CSVFields  []string
	Fields     []string // table columns in catalog order
}

func (e *MismatchError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("CSV contains fields not present in table %q: %s",
			e.Table, strings.Join(e.Missing, ", ")))
	}
	if len(e.Duplicates) > 0 {
		parts = append(parts, fmt.Sprintf("CSV header repeats fields: %s", strings.Join(e.Duplicates, ", ")))
	}
	return strings.Join(parts, "; ")
}

// Record implements report.Recordable.
func (e *MismatchError) Record() report.Record {
	return report.Record{
		Kind:            "SchemaMismatchError",
		Error:           e.Error(),
		Table:           e.Table,
		MissingFields:   e.Missing,
		DuplicateFields: e.Duplicates,
		CSVFields:       e.CSVFields,
		TableFields:     e.Fields,
	}
}

// Validate checks that every CSV column exists in t, comparing names
// case-insensitively. Table columns absent from the CSV are allowed. It
// returns nil or a *MismatchError.
func Validate(csvCols []string, t Table) error {
	known := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		known[strings.ToLower(c.Name)] = struct{}{}
	}

	seen := make(map[string]int, len(csvCols))
	missing := map[string]struct{}{}
	for _, c := range csvCols {
		lc := strings.ToLower(c)
		seen[lc]++
		if _, ok := known[lc]; !ok {
			missing[c] = struct{}{}
		}
	}

	var dups []string
	for name, n := range seen {
		if n > 1 {
			dups = append(dups, name)
		}
	}
	if len(missing) == 0 && len(dups) == 0 {
		return nil
	}

	miss := make([]string, 0, len(missing))
	for c := range missing {
		miss = append(miss, c)
	}
	sort.Strings(miss)
	sort.Strings(dups)

	return &MismatchError{
		Table:      t.Name,
		Missing:    miss,
		Duplicates: dups,
		CSVFields:  append([]string(nil), csvCols...),
		Fields:     t.Names(),
	}
}
