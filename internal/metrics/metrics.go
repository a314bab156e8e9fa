// Package metrics records operational metrics from a sync run behind a small,
// backend-agnostic interface.
//
// A global backend defaults to a no-op, so instrumentation is always safe to
// call. Concrete systems (Prometheus Pushgateway, Datadog) live in
// subpackages and are installed with SetBackend.
package metrics

import "time"

// Metric names shared by all backends.
const (
	StepTotal       = "tablesync_step_total"
	StepDuration    = "tablesync_step_duration_seconds"
	RowsTotal       = "tablesync_rows_total"
	MembersTotal    = "tablesync_members_total"
	RecordsReported = "tablesync_records_reported_total"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordStep measures latency and success/failure of one run step
// ("snapshot", "member", "batch").
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"job": job, "step": step, "status": status}
	backend.IncCounter(StepTotal, 1, lbls)
	backend.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// RecordRow increments a row-level counter for a table. Typical kinds:
//   - "processed"
//   - "inserted"
//   - "updated"
//   - "appended"
//   - "conflicts"
//   - "row_errors"
func RecordRow(job, table, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(RowsTotal, float64(delta), Labels{"job": job, "table": table, "kind": kind})
}

// RecordMember counts a finished batch member by operation and outcome.
func RecordMember(job, op, outcome string) {
	backend.IncCounter(MembersTotal, 1, Labels{"job": job, "operation": op, "outcome": outcome})
}

// RecordReported counts error-document records by level.
func RecordReported(job, level string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(RecordsReported, float64(delta), Labels{"job": job, "level": level})
}
