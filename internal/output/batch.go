package output

import (
	"errors"
	"fmt"

	"github.com/jmylchreest/carmat/internal/logger"
	"github.com/jmylchreest/carmat/pkg/record"
)

// ShouldFlush reports whether the buffer is flushed after page. The final
// page always flushes; an interval of 0 flushes only there.
func ShouldFlush(page, maxPage, interval int) bool {
	if page == maxPage {
		return true
	}
	return interval > 0 && page%interval == 0
}

// BatchWriter buffers records between flushes and fans each flushed batch
// out to its RecordWriters.
type BatchWriter struct {
	interval int
	writers  []RecordWriter
	buffer   []record.Record
	written  int
	flushes  int
}

// NewBatchWriter returns a BatchWriter flushing every interval pages.
func NewBatchWriter(interval int, writers ...RecordWriter) *BatchWriter {
	return &BatchWriter{
		interval: interval,
		writers:  writers,
	}
}

// Append buffers records.
func (b *BatchWriter) Append(records ...record.Record) {
	b.buffer = append(b.buffer, records...)
}

// Buffered returns the number of records waiting for the next flush.
func (b *BatchWriter) Buffered() int {
	return len(b.buffer)
}

// Written returns the number of records flushed so far.
func (b *BatchWriter) Written() int {
	return b.written
}

// Flushes returns the number of flushes performed.
func (b *BatchWriter) Flushes() int {
	return b.flushes
}

// PageDone is called after each page and flushes when the schedule says so.
// It reports whether a flush happened.
func (b *BatchWriter) PageDone(page, maxPage int) (bool, error) {
	if !ShouldFlush(page, maxPage, b.interval) {
		return false, nil
	}
	if err := b.Flush(); err != nil {
		return false, fmt.Errorf("flush after page %d: %w", page, err)
	}
	logger.Info("flushed records", "page", page, "max_page", maxPage, "total", b.written)
	return true, nil
}

// Flush hands the buffered records to every writer and clears the buffer.
func (b *BatchWriter) Flush() error {
	for _, w := range b.writers {
		if err := w.WriteBatch(b.buffer); err != nil {
			return err
		}
	}
	b.written += len(b.buffer)
	b.flushes++
	b.buffer = nil
	return nil
}

// Close flushes anything still buffered and finalizes every writer.
func (b *BatchWriter) Close() error {
	var errs []error
	if len(b.buffer) > 0 {
		if err := b.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, w := range b.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Abort discards the buffer and finalizes every writer with the records of
// completed flushes only.
func (b *BatchWriter) Abort() error {
	if n := len(b.buffer); n > 0 {
		logger.Warn("discarding unflushed records", "count", n)
	}
	b.buffer = nil

	var errs []error
	for _, w := range b.writers {
		if err := w.Abort(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
