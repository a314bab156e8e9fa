// Package csv reads change-set files: a normalized header followed by data
// records streamed in fixed-size chunks.
//
// Row numbers are 1-based ordinals of data records counted across the whole
// file (the first record after the header is row 1), so they do not depend on
// the chunk size.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/NumeralHQ/rate-and-boundary-updates/internal/report"
)

// Options tunes the underlying encoding/csv reader.
type Options struct {
	Comma      rune // default ','
	LazyQuotes bool
}

// Row is one data record.
type Row struct {
	Num    int
	Values []string
}

// Chunk is a run of consecutive rows.
type Chunk struct {
	Index int
	Rows  []Row
}

// ParseError reports a structurally malformed record. It is a file-level
// failure.
type ParseError struct {
	File string
	Row  int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("malformed CSV at row %d: %v", e.Row, e.Err)
	}
	return fmt.Sprintf("malformed CSV: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Record implements report.Recordable.
func (e *ParseError) Record() report.Record {
	return report.Record{Kind: "CSVParseError", Error: e.Error(), Row: e.Row}
}

// ErrEmptyFile is returned by Open for a file without a header line.
var ErrEmptyFile = errors.New("file has no header")

// Reader streams a CSV file after its header has been read.
type Reader struct {
	path   string
	f      io.ReadCloser
	cr     *csv.Reader
	header []string
	rows   int
}

// Open opens path and reads its header.
func Open(path string, opt Options) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csv: open: %w", err)
	}
	r, err := NewReader(f, opt)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.path = path
	return r, nil
}

// NewReader wraps src and reads its header. The Reader owns src.
func NewReader(src io.ReadCloser, opt Options) (*Reader, error) {
	cr := csv.NewReader(src)
	if opt.Comma != 0 {
		cr.Comma = opt.Comma
	}
	cr.LazyQuotes = opt.LazyQuotes
	cr.ReuseRecord = true

	hdr, err := cr.Read()
	if err == io.EOF {
		return nil, &ParseError{Err: ErrEmptyFile}
	}
	if err != nil {
		return nil, &ParseError{Err: fmt.Errorf("read header: %w", err)}
	}
	// The header fixes the record width; csv.Reader enforces it from here on.
	cr.FieldsPerRecord = len(hdr)
	return &Reader{f: src, cr: cr, header: NormalizeHeader(hdr)}, nil
}

// Header returns the normalized header.
func (r *Reader) Header() []string { return r.header }

// Rows reports how many data rows have been read so far.
func (r *Reader) Rows() int { return r.rows }

// Close releases the underlying file.
func (r *Reader) Close() error { return r.f.Close() }

func (r *Reader) next() (Row, error) {
	rec, err := r.cr.Read()
	if err == io.EOF {
		return Row{}, io.EOF
	}
	r.rows++
	if err != nil {
		return Row{}, &ParseError{File: r.path, Row: r.rows, Err: err}
	}
	vals := make([]string, len(rec))
	copy(vals, rec)
	return Row{Num: r.rows, Values: vals}, nil
}

// ForEachChunk reads the remaining records in chunks of size rows and calls
// fn for each chunk in order. Reading runs one chunk ahead of fn. The first
// error from the reader or from fn stops both and is returned.
func (r *Reader) ForEachChunk(ctx context.Context, size int, fn func(Chunk) error) error {
	if size <= 0 {
		size = 1000
	}
	g, gctx := errgroup.WithContext(ctx)
	chunks := make(chan Chunk, 1)

	g.Go(func() error {
		defer close(chunks)
		idx := 0
		buf := make([]Row, 0, size)
		emit := func() error {
			select {
			case chunks <- Chunk{Index: idx, Rows: buf}:
				idx++
				buf = make([]Row, 0, size)
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		for {
			row, err := r.next()
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
			buf = append(buf, row)
			if len(buf) == size {
				if err := emit(); err != nil {
					return err
				}
			}
		}
		if len(buf) > 0 {
			return emit()
		}
		return nil
	})

	g.Go(func() error {
		for c := range chunks {
			if err := fn(c); err != nil {
				return err
			}
		}
		return nil
	})

	return g.Wait()
}
