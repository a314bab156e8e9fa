// Package report collects the structured error and warning records produced
// during a batch run and persists them as a single JSON document.
//
// The engine never writes the document itself mid-row; it appends records to
// a Collector and calls Flush at member boundaries and at the end of the run.
package report

import "time"

// Level distinguishes hard failures from advisory findings.
type Level string

const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
)

// Record is one entry of the error document. File and Error are always set;
// the remaining fields depend on the failure kind.
type Record struct {
	Level     Level     `json:"level"`
	Kind      string    `json:"kind,omitempty"`
	File      string    `json:"file"`
	Error     string    `json:"error"`
	Table     string    `json:"table,omitempty"`
	Operation string    `json:"operation,omitempty"`
	Row       int       `json:"row,omitempty"`
	Column    string    `json:"column,omitempty"`
	Value     string    `json:"value,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	MissingFields   []string `json:"missing_fields,omitempty"`
	DuplicateFields []string `json:"duplicate_fields,omitempty"`
	CSVFields       []string `json:"csv_fields,omitempty"`
	TableFields     []string `json:"table_fields,omitempty"`
	FilterFields    []string `json:"filter_fields,omitempty"`
	FilterValues    []any    `json:"filter_values,omitempty"`
	MatchCount      int64    `json:"match_count,omitempty"`
}

// Recordable is implemented by typed errors that know how to describe
// themselves as a Record. The caller fills in File and Table context.
type Recordable interface {
	error
	Record() Record
}
