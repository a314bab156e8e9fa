// Package batch discovers a batch folder, enumerates its CSV members, and
// creates the private database snapshot the run operates on.
package batch

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/NumeralHQ/rate-and-boundary-updates/internal/report"
)

// Operation is the member's processing mode.
type Operation string

const (
	OpAppend Operation = "append"
	OpUpdate Operation = "update"
)

var reMember = regexp.MustCompile(`^(.+)_(append|update)_(\d+)\.csv$`)

// Member is one CSV file of a batch.
type Member struct {
	Path      string
	Name      string
	Table     string
	Operation Operation
	Sequence  string // digits as written
}

// FilenameFormatError reports a CSV whose name does not follow
// <table>_<append|update>_<n>.csv.
type FilenameFormatError struct {
	Name string
}

func (e *FilenameFormatError) Error() string {
	return fmt.Sprintf("invalid filename format %q: expected <table>_<append|update>_<n>.csv", e.Name)
}

// Record implements report.Recordable.
func (e *FilenameFormatError) Record() report.Record {
	return report.Record{Kind: "FilenameFormatError", Error: e.Error()}
}

// ParseFilename splits a member file name into table, operation and
// sequence. Matching is case-sensitive and anchored on the whole name. The
// sequence is kept as text so any digit run is accepted.
func ParseFilename(name string) (table string, op Operation, seq string, err error) {
	m := reMember.FindStringSubmatch(name)
	if m == nil {
		return "", "", "", &FilenameFormatError{Name: name}
	}
	return m[1], Operation(m[2]), m[3], nil
}

// compareSequence orders digit strings numerically without parsing them.
func compareSequence(a, b string) int {
	a, b = strings.TrimLeft(a, "0"), strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		return cmp.Compare(len(a), len(b))
	}
	return strings.Compare(a, b)
}

// ListMembers returns the parsable CSV members of dir in processing order,
// plus one FilenameFormatError per CSV that does not parse (sorted by name).
// Non-CSV files and directories are ignored.
func ListMembers(dir string) ([]Member, []*FilenameFormatError, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("batch: read %s: %w", dir, err)
	}
	var members []Member
	var bad []*FilenameFormatError
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		table, op, seq, err := ParseFilename(e.Name())
		if err != nil {
			bad = append(bad, err.(*FilenameFormatError))
			continue
		}
		members = append(members, Member{
			Path:      filepath.Join(dir, e.Name()),
			Name:      e.Name(),
			Table:     table,
			Operation: op,
			Sequence:  seq,
		})
	}
	SortMembers(members)
	sort.Slice(bad, func(i, j int) bool { return bad[i].Name < bad[j].Name })
	return members, bad, nil
}

// SortMembers orders members by table, then appends before updates, then by
// numeric sequence, then by name.
func SortMembers(ms []Member) {
	sort.SliceStable(ms, func(i, j int) bool {
		a, b := ms[i], ms[j]
		if a.Table != b.Table {
			return a.Table < b.Table
		}
		if a.Operation != b.Operation {
			return a.Operation == OpAppend
		}
		if c := compareSequence(a.Sequence, b.Sequence); c != 0 {
			return c < 0
		}
		return a.Name < b.Name
	})
}
