package report

import (
	"errors"
	"sync"
	"time"
)

// Collector is an append-only, in-memory list of records for one run.
// It is safe for concurrent use.
type Collector struct {
	mu        sync.Mutex
	records   []Record
	flushed   int
	now       func() time.Time
	errCount  int
	warnCount int
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{now: time.Now}
}

// Add appends rec. A zero Level defaults to LevelError and a zero Timestamp
// is stamped with the current time.
func (c *Collector) Add(rec Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec.Level == "" {
		rec.Level = LevelError
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = c.now().UTC()
	}
	switch rec.Level {
	case LevelError:
		c.errCount++
	case LevelWarning:
		c.warnCount++
	}
	c.records = append(c.records, rec)
}

// AddError converts err into a record for file (and table, when known).
// Typed errors implementing Recordable contribute their structured fields;
// any other error becomes a plain record carrying its message.
func (c *Collector) AddError(file, table string, err error) {
	if err == nil {
		return
	}
	var rec Record
	var r Recordable
	if errors.As(err, &r) {
		rec = r.Record()
	} else {
		rec = Record{Error: err.Error()}
	}
	rec.File = file
	if rec.Table == "" {
		rec.Table = table
	}
	c.Add(rec)
}

// Warn appends a warning record.
func (c *Collector) Warn(rec Record) {
	rec.Level = LevelWarning
	c.Add(rec)
}

// Errors returns a copy of the error-level records in insertion order.
func (c *Collector) Errors() []Record { return c.filter(LevelError) }

// Warnings returns a copy of the warning-level records in insertion order.
func (c *Collector) Warnings() []Record { return c.filter(LevelWarning) }

// ErrorCount reports the number of error-level records.
func (c *Collector) ErrorCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errCount
}

// WarningCount reports the number of warning-level records.
func (c *Collector) WarningCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.warnCount
}

// Len reports the total number of records.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// Dirty reports whether records were added since the last successful flush.
func (c *Collector) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records) != c.flushed
}

func (c *Collector) filter(lvl Level) []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Record, 0, len(c.records))
	for _, r := range c.records {
		if r.Level == lvl {
			out = append(out, r)
		}
	}
	return out
}

func (c *Collector) markFlushed(n int) {
	c.mu.Lock()
	c.flushed = n
	c.mu.Unlock()
}
