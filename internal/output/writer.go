// Package output persists extracted records as JSON, CSV and YAML.
//
// Crawl output is written incrementally: a BatchWriter buffers records and
// periodically hands them to RecordWriters (a streaming JSON array and an
// incremental CSV projection), so peak memory is bounded by one batch.
package output

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jmylchreest/carmat/pkg/record"
)

// Format represents output format types.
type Format string

const (
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatYAML  Format = "yaml"
	FormatCSV   Format = "csv"
)

// ErrClosed is returned when writing to a finalized writer.
var ErrClosed = errors.New("output: writer already finalized")

// RecordWriter receives flushed batches of records.
type RecordWriter interface {
	// WriteBatch appends records to the output.
	WriteBatch(records []record.Record) error

	// Close finalizes the output after a successful crawl.
	Close() error

	// Abort finalizes the output after a failed crawl.
	Abort() error
}

// WriterOption configures a writer.
type WriterOption func(*writerConfig)

type writerConfig struct {
	pretty bool
	indent string
}

func newWriterConfig(opts []WriterOption) *writerConfig {
	cfg := &writerConfig{
		pretty: true,
		indent: "    ",
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithPretty enables pretty-printing.
func WithPretty(enabled bool) WriterOption {
	return func(c *writerConfig) {
		c.pretty = enabled
	}
}

// WithIndent sets the indentation string.
func WithIndent(indent string) WriterOption {
	return func(c *writerConfig) {
		c.indent = indent
	}
}

// WriteRecords writes a complete record set in the given format.
func WriteRecords(w io.Writer, format Format, records []record.Record, opts ...WriterOption) error {
	cfg := newWriterConfig(opts)

	switch format {
	case FormatJSON:
		return writeJSON(w, records, cfg)
	case FormatJSONL:
		return writeJSONL(w, records)
	case FormatYAML:
		return writeYAML(w, records)
	case FormatCSV:
		return WriteCSV(w, records)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// TimestampedPath returns "<base>_<YYYYMMDD_HHMMSS>.<ext>".
func TimestampedPath(base, ext string, now time.Time) string {
	return fmt.Sprintf("%s_%s.%s", base, now.Format("20060102_150405"), ext)
}

// createFile creates path, and its parent directory when missing.
func createFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}
	f, err := os.Create(path) //#nosec G304 -- CLI tool writes to user-specified output file
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	return f, nil
}
