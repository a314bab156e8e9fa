package schema

import "time"

// Date is a canonical YYYY-MM-DD value bound for a date column. Backends
// decide how to bind it; the string form is what gets reported.
type Date string

// Timestamp is a canonical "YYYY-MM-DD HH:MM:SS[.fff]" value.
type Timestamp string

const (
	DateLayout      = "2006-01-02"
	TimestampLayout = "2006-01-02 15:04:05.999999999"
)

// Time parses d as a UTC midnight.
func (d Date) Time() (time.Time, error) { return time.Parse(DateLayout, string(d)) }

// Time parses ts as UTC.
func (ts Timestamp) Time() (time.Time, error) { return time.Parse(TimestampLayout, string(ts)) }
