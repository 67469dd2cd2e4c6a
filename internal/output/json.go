package output

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/jmylchreest/carmat/pkg/record"
)

// JSONState is the lifecycle state of a JSONArrayWriter.
type JSONState int

const (
	// StateOpened means the array start has been written.
	StateOpened JSONState = iota
	// StateAppending means at least one batch has been flushed.
	StateAppending
	// StateClosed means the array was terminated after a successful crawl.
	StateClosed
	// StateAborted means the array was terminated after a failed crawl.
	StateAborted
)

func (s JSONState) String() string {
	switch s {
	case StateOpened:
		return "opened"
	case StateAppending:
		return "appending"
	case StateClosed:
		return "closed"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("JSONState(%d)", int(s))
	}
}

// JSONArrayWriter streams records into a single top-level JSON array.
// The separator is written before every element but the first, so the
// array is valid JSON as soon as it is terminated, whether by Close or Abort.
type JSONArrayWriter struct {
	w      io.Writer
	closer io.Closer
	cfg    *writerConfig
	count  int
	state  JSONState
}

// NewJSONArrayWriter writes the array start to w.
func NewJSONArrayWriter(w io.Writer, opts ...WriterOption) (*JSONArrayWriter, error) {
	if _, err := io.WriteString(w, "["); err != nil {
		return nil, err
	}
	return &JSONArrayWriter{w: w, cfg: newWriterConfig(opts), state: StateOpened}, nil
}

// CreateJSONArray creates the file at path and opens a JSON array in it.
func CreateJSONArray(path string, opts ...WriterOption) (*JSONArrayWriter, error) {
	f, err := createFile(path)
	if err != nil {
		return nil, err
	}
	w, err := NewJSONArrayWriter(f, opts...)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

// State returns the writer state.
func (w *JSONArrayWriter) State() JSONState {
	return w.state
}

// Count returns the number of elements written.
func (w *JSONArrayWriter) Count() int {
	return w.count
}

// WriteBatch appends records as array elements. The whole batch is encoded
// before anything is written, so an encoding failure leaves the file as it
// was after the previous flush.
func (w *JSONArrayWriter) WriteBatch(records []record.Record) error {
	if w.state == StateClosed || w.state == StateAborted {
		return ErrClosed
	}
	if len(records) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for i, r := range records {
		data, err := encodeJSON(r, w.cfg)
		if err != nil {
			return fmt.Errorf("encode record %d: %w", w.count+i, err)
		}
		if w.count+i > 0 {
			buf.WriteString(",")
		}
		buf.WriteString("\n")
		buf.Write(data)
	}

	if _, err := w.w.Write(buf.Bytes()); err != nil {
		return err
	}
	w.count += len(records)
	w.state = StateAppending
	return sync(w.w)
}

// Close terminates the array after a successful crawl.
func (w *JSONArrayWriter) Close() error {
	return w.finish(StateClosed)
}

// Abort terminates the array after a failed crawl. Elements from completed
// flushes are kept.
func (w *JSONArrayWriter) Abort() error {
	return w.finish(StateAborted)
}

func (w *JSONArrayWriter) finish(state JSONState) error {
	if w.state == StateClosed || w.state == StateAborted {
		return nil
	}
	w.state = state

	end := "]\n"
	if w.count > 0 {
		end = "\n]\n"
	}
	_, err := io.WriteString(w.w, end)
	if err == nil {
		err = sync(w.w)
	}
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// sync flushes file-backed writers to disk after each flush.
func sync(w io.Writer) error {
	if s, ok := w.(interface{ Sync() error }); ok {
		return s.Sync()
	}
	return nil
}

// encodeJSON renders one value without HTML escaping and without the
// trailing newline added by json.Encoder.
func encodeJSON(v any, cfg *writerConfig) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if cfg.pretty {
		enc.SetIndent("", cfg.indent)
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func writeJSON(w io.Writer, records []record.Record, cfg *writerConfig) error {
	if records == nil {
		records = []record.Record{}
	}
	data, err := encodeJSON(records, cfg)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(data); err != nil {
		return err
	}
	if _, err := bw.WriteString("\n"); err != nil {
		return err
	}
	return bw.Flush()
}

func writeJSONL(w io.Writer, records []record.Record) error {
	bw := bufio.NewWriter(w)
	for _, r := range records {
		data, err := encodeJSON(r, &writerConfig{})
		if err != nil {
			return err
		}
		if _, err := bw.Write(data); err != nil {
			return err
		}
		if _, err := bw.WriteString("\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}
