package output

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/jmylchreest/carmat/internal/logger"
	"github.com/jmylchreest/carmat/pkg/record"
)

// CSVWriter writes records incrementally as CSV rows.
//
// The header is written once, from the sorted key union of the first
// non-empty batch. Keys first seen in a later batch are not in the header:
// their values are appended after the header-aligned cells, and a warning is
// logged once per such key. Use ConvertJSONToCSV on the finished JSON file
// for a fully aligned table.
type CSVWriter struct {
	w      *csv.Writer
	closer io.Closer
	header []string
	known  map[string]bool
	extra  []string
	rows   int
	done   bool
}

// NewCSVWriter returns a CSVWriter writing to w.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{
		w:     csv.NewWriter(w),
		known: make(map[string]bool),
	}
}

// CreateCSV creates the file at path and returns a CSVWriter for it.
func CreateCSV(path string) (*CSVWriter, error) {
	f, err := createFile(path)
	if err != nil {
		return nil, err
	}
	c := NewCSVWriter(f)
	c.closer = f
	return c, nil
}

// Header returns the header row, or nil before the first batch.
func (c *CSVWriter) Header() []string {
	return c.header
}

// Rows returns the number of data rows written.
func (c *CSVWriter) Rows() int {
	return c.rows
}

// WriteBatch writes one row per record.
func (c *CSVWriter) WriteBatch(records []record.Record) error {
	if c.done {
		return ErrClosed
	}
	if len(records) == 0 {
		return nil
	}

	if c.header == nil {
		c.header = record.KeyUnion(records)
		for _, k := range c.header {
			c.known[k] = true
		}
		if err := c.w.Write(c.header); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
	}

	for _, k := range record.KeyUnion(records) {
		if c.known[k] {
			continue
		}
		c.known[k] = true
		c.extra = append(c.extra, k)
		logger.Warn("csv column missing from header, values appended as extra fields", "column", k)
	}

	for _, r := range records {
		if err := c.w.Write(csvRow(r, c.header, c.extra)); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
		c.rows++
	}

	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return err
	}
	return sync(c.closerWriter())
}

// Close flushes and closes the output.
func (c *CSVWriter) Close() error {
	return c.finish()
}

// Abort flushes and closes the output. Rows from completed flushes are kept.
func (c *CSVWriter) Abort() error {
	return c.finish()
}

func (c *CSVWriter) finish() error {
	if c.done {
		return nil
	}
	c.done = true
	c.w.Flush()
	err := c.w.Error()
	if c.closer != nil {
		if cerr := c.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (c *CSVWriter) closerWriter() io.Writer {
	if w, ok := c.closer.(io.Writer); ok {
		return w
	}
	return nil
}

// WriteCSV writes records as a CSV table whose header is the sorted key
// union of all records. Missing keys and nil values are empty cells.
func WriteCSV(w io.Writer, records []record.Record) error {
	header := record.KeyUnion(records)
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write(csvRow(r, header, nil)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRow(r record.Record, header, extra []string) []string {
	row := make([]string, 0, len(header)+len(extra))
	for _, k := range header {
		row = append(row, r.Get(k))
	}
	for _, k := range extra {
		row = append(row, r.Get(k))
	}
	return row
}
