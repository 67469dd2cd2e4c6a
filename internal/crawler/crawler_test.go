package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/carmat/internal/extract"
	"github.com/jmylchreest/carmat/internal/output"
	"github.com/jmylchreest/carmat/internal/testutil"
	"github.com/jmylchreest/carmat/pkg/record"
)

// portalWithPages builds a portal of maxPages pages with rowsPerPage rows
// each. Identifiers are "<page>-<row>".
func portalWithPages(maxPages int, rowsPerPage ...int) *testutil.Portal {
	p := &testutil.Portal{Pages: map[int]string{}, Errors: map[int]error{}}
	for page := 1; page <= maxPages; page++ {
		n := 1
		if len(rowsPerPage) >= page {
			n = rowsPerPage[page-1]
		}
		var rows []testutil.Row
		for i := 1; i <= n; i++ {
			rows = append(rows, testutil.Row{
				Key:        fmt.Sprintf("carmat%d%02d", page, i),
				Identifier: fmt.Sprintf("%d-%d", page, i),
				Commune:    "ARZAL",
			})
		}
		p.Pages[page] = testutil.ListingPage(maxPages, rows...)
	}
	return p
}

type spySink struct {
	*output.BatchWriter
	flushedAt     []int
	bufferedAfter []int
	closed        bool
	aborted       bool
}

func (s *spySink) PageDone(page, maxPage int) (bool, error) {
	flushed, err := s.BatchWriter.PageDone(page, maxPage)
	if flushed {
		s.flushedAt = append(s.flushedAt, page)
		s.bufferedAfter = append(s.bufferedAfter, s.Buffered())
	}
	return flushed, err
}

func (s *spySink) Close() error {
	s.closed = true
	return s.BatchWriter.Close()
}

func (s *spySink) Abort() error {
	s.aborted = true
	return s.BatchWriter.Abort()
}

func readJSON(t *testing.T, path string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var out []map[string]any
	require.NoError(t, json.Unmarshal(data, &out), "invalid JSON:\n%s", data)
	return out
}

// --- Crawler Tests ---

func TestRun_FlushSchedule(t *testing.T) {
	portal := portalWithPages(23)
	sink := &spySink{BatchWriter: output.NewBatchWriter(10)}

	stats, err := New(portal, extract.New(nil), sink, DefaultConfig()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{10, 20, 23}, sink.flushedAt)
	assert.Equal(t, []int{0, 0, 0}, sink.bufferedAfter)
	assert.True(t, sink.closed)
	assert.False(t, sink.aborted)
	assert.Equal(t, 23, stats.MaxPages)
	assert.Equal(t, 23, stats.Pages)
	assert.Equal(t, 23, stats.Records)
	assert.Equal(t, 3, stats.Flushes)
}

func TestRun_PageOneFetchedOnce(t *testing.T) {
	portal := portalWithPages(3)
	sink := output.NewBatchWriter(10)

	_, err := New(portal, extract.New(nil), sink, DefaultConfig()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, portal.FetchedPages())
}

func TestRun_AbortKeepsCompletedFlushes(t *testing.T) {
	portal := portalWithPages(23)
	portal.Errors[15] = errors.New("connection reset by peer")

	path := filepath.Join(t.TempDir(), "out.json")
	jw, err := output.CreateJSONArray(path)
	require.NoError(t, err)
	sink := &spySink{BatchWriter: output.NewBatchWriter(10, jw)}

	stats, err := New(portal, extract.New(nil), sink, DefaultConfig()).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crawl aborted at page 15")
	assert.True(t, sink.aborted)
	assert.False(t, sink.closed)
	assert.Equal(t, 14, stats.Records)

	out := readJSON(t, path)
	require.Len(t, out, 10)
	for i, r := range out {
		assert.Equal(t, fmt.Sprintf("%d-1", i+1), r[record.FieldIdentifier])
	}
	assert.Equal(t, output.StateAborted, jw.State())
}

func TestRun_TwoPagesEndToEnd(t *testing.T) {
	portal := portalWithPages(2, 3, 2)
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "out.json")
	csvPath := filepath.Join(dir, "out.csv")

	jw, err := output.CreateJSONArray(jsonPath)
	require.NoError(t, err)
	cw, err := output.CreateCSV(csvPath)
	require.NoError(t, err)

	stats, err := New(portal, extract.New(nil), output.NewBatchWriter(10, jw, cw), DefaultConfig()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Records)
	assert.Equal(t, 1, stats.Flushes)

	out := readJSON(t, jsonPath)
	require.Len(t, out, 5)
	want := []string{"1-1", "1-2", "1-3", "2-1", "2-2"}
	for i, r := range out {
		assert.Equal(t, want[i], r[record.FieldIdentifier])
		assert.Nil(t, r[record.FieldS3IC])
	}
	assert.Equal(t, 5, cw.Rows())
	assert.Equal(t, []string{record.FieldCommune, record.FieldIdentifier, record.FieldS3IC}, cw.Header())
}

func TestRun_FailedPageIsSkipped(t *testing.T) {
	portal := portalWithPages(3)
	delete(portal.Pages, 2)
	sink := &spySink{BatchWriter: output.NewBatchWriter(2)}

	stats, err := New(portal, extract.New(nil), sink, DefaultConfig()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 2, stats.Pages)
	assert.Equal(t, 2, stats.Records)
	// the schedule still applies to the skipped page
	assert.Equal(t, []int{2, 3}, sink.flushedAt)
}

func TestRun_DiscoveryFailureDefaultsToOnePage(t *testing.T) {
	portal := portalWithPages(5)
	delete(portal.Pages, 1)
	sink := &spySink{BatchWriter: output.NewBatchWriter(10)}

	stats, err := New(portal, extract.New(nil), sink, DefaultConfig()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.MaxPages)
	assert.Equal(t, 1, stats.Skipped)
	assert.Zero(t, stats.Records)
	assert.Equal(t, []int{1, 1}, portal.FetchedPages())
	assert.True(t, sink.closed)
}

func TestRun_NoPaginationControl(t *testing.T) {
	portal := &testutil.Portal{Pages: map[int]string{
		1: testutil.ListingPage(0, testutil.Row{Key: "carmat1", Identifier: "1"}),
	}}
	stats, err := New(portal, extract.New(nil), output.NewBatchWriter(10), DefaultConfig()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.MaxPages)
	assert.Equal(t, 1, stats.Records)
}

func TestRun_CancelledContext(t *testing.T) {
	portal := portalWithPages(3)
	sink := &spySink{BatchWriter: output.NewBatchWriter(10)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(portal, extract.New(nil), sink, DefaultConfig()).Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, sink.aborted)
}

type failingExtractor struct{}

func (failingExtractor) Records(context.Context, string) ([]record.Record, error) {
	return nil, errors.New("unparseable document")
}

func TestRun_ExtractorErrorAborts(t *testing.T) {
	sink := &spySink{BatchWriter: output.NewBatchWriter(10)}
	_, err := New(portalWithPages(2), failingExtractor{}, sink, Config{}).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crawl aborted at page 1: unparseable document")
	assert.True(t, sink.aborted)
}
