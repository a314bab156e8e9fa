package transformer

import (
	"fmt"

	"github.com/NumeralHQ/rate-and-boundary-updates/internal/report"
	"github.com/NumeralHQ/rate-and-boundary-updates/internal/schema"
)

// CoercionError reports a cell that cannot be converted to its column's
// declared kind. The row is skipped; the file continues.
type CoercionError struct {
	Row      int
	Column   string
	Value    string
	Declared string
	Err      error
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("row %d: cannot convert %q to %s for column %q: %v",
		e.Row, e.Value, e.Declared, e.Column, e.Err)
}

func (e *CoercionError) Unwrap() error { return e.Err }

// Record implements report.Recordable.
func (e *CoercionError) Record() report.Record {
	return report.Record{
		Kind:   "CoercionError",
		Error:  e.Error(),
		Row:    e.Row,
		Column: e.Column,
		Value:  e.Value,
	}
}

// Warning is an advisory finding on a cell whose value is still written.
type Warning struct {
	Row     int
	Column  string
	Value   string
	Message string
}

// Record renders the warning for the error document.
func (w Warning) Record() report.Record {
	return report.Record{
		Level:  report.LevelWarning,
		Kind:   "PrecisionWarning",
		Error:  w.Message,
		Row:    w.Row,
		Column: w.Column,
		Value:  w.Value,
	}
}

func declaredName(t schema.Type) string {
	if t.Declared != "" {
		return t.Declared
	}
	return t.Kind.String()
}
