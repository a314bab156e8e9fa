package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Document is the persisted shape of a run's records.
type Document struct {
	Timestamp     time.Time `json:"timestamp"`
	RunID         string    `json:"run_id,omitempty"`
	Batch         string    `json:"batch,omitempty"`
	DryRun        bool      `json:"dry_run"`
	TotalErrors   int       `json:"total_errors"`
	Errors        []Record  `json:"errors"`
	TotalWarnings int       `json:"total_warnings"`
	Warnings      []Record  `json:"warnings"`
}

// Meta is run-level context stamped onto every flushed document.
type Meta struct {
	RunID  string
	Batch  string
	DryRun bool
}

// Snapshot builds the document for the records collected so far.
func (c *Collector) Snapshot(meta Meta) Document {
	errs := c.Errors()
	warns := c.Warnings()
	return Document{
		Timestamp:     c.now().UTC(),
		RunID:         meta.RunID,
		Batch:         meta.Batch,
		DryRun:        meta.DryRun,
		TotalErrors:   len(errs),
		Errors:        errs,
		TotalWarnings: len(warns),
		Warnings:      warns,
	}
}

// Flush writes the full document to path, replacing any previous content.
// The write goes through a temp file in the same directory and a rename so a
// reader never observes a truncated document.
func (c *Collector) Flush(path string, meta Meta) error {
	n := c.Len()
	doc := c.Snapshot(meta)

	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("report: marshal: %w", err)
	}
	b = append(b, '\n')

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("report: create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("report: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("report: close: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("report: rename: %w", err)
	}
	c.markFlushed(n)
	return nil
}
