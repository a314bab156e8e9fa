package report

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"
)

// MemberSummary is the terminal state of one batch member plus its counters.
type MemberSummary struct {
	File      string
	Table     string
	Operation string
	State     string
	Outcome   string

	Processed int
	Inserted  int
	Updated   int
	Appended  int
	Unchanged int
	Conflicts int
	Errors    int
	Warnings  int
}

// Summary is the human-facing result of a run.
type Summary struct {
	Batch    string
	RunID    string
	DryRun   bool
	Snapshot string
	ErrorLog string
	Duration time.Duration
	Members  []MemberSummary
}

// Totals sums the per-member counters.
func (s Summary) Totals() MemberSummary {
	var t MemberSummary
	for _, m := range s.Members {
		t.Processed += m.Processed
		t.Inserted += m.Inserted
		t.Updated += m.Updated
		t.Appended += m.Appended
		t.Unchanged += m.Unchanged
		t.Conflicts += m.Conflicts
		t.Errors += m.Errors
		t.Warnings += m.Warnings
	}
	return t
}

// Outcomes counts members per outcome label.
func (s Summary) Outcomes() map[string]int {
	out := make(map[string]int, 3)
	for _, m := range s.Members {
		out[m.Outcome]++
	}
	return out
}

// Write renders the summary as an aligned table.
func (s Summary) Write(w io.Writer) error {
	mode := ""
	if s.DryRun {
		mode = " (dry run)"
	}
	if _, err := fmt.Fprintf(w, "batch %s%s run=%s\n", s.Batch, mode, s.RunID); err != nil {
		return err
	}
	if s.Snapshot != "" {
		fmt.Fprintf(w, "snapshot: %s\n", s.Snapshot)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tTABLE\tOP\tSTATE\tOUTCOME\tROWS\tINSERTED\tUPDATED\tAPPENDED\tCONFLICTS\tERRORS\tWARNINGS")
	for _, m := range s.Members {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
			m.File, dash(m.Table), dash(m.Operation), m.State, m.Outcome,
			m.Processed, m.Inserted, m.Updated, m.Appended, m.Conflicts, m.Errors, m.Warnings)
	}
	t := s.Totals()
	fmt.Fprintf(tw, "TOTAL\t\t\t\t\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
		t.Processed, t.Inserted, t.Updated, t.Appended, t.Conflicts, t.Errors, t.Warnings)
	if err := tw.Flush(); err != nil {
		return err
	}

	oc := s.Outcomes()
	_, err := fmt.Fprintf(w, "members: %d success, %d partial, %d failed; completed in %s\n",
		oc["success"], oc["partial"], oc["failed"], s.Duration.Truncate(time.Millisecond))
	if err != nil {
		return err
	}
	if s.ErrorLog != "" {
		_, err = fmt.Fprintf(w, "error log: %s\n", s.ErrorLog)
	}
	return err
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
