// Package crawler drives the sequential walk over the portal's result pages.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmylchreest/carmat/internal/logger"
	"github.com/jmylchreest/carmat/pkg/fetcher"
	"github.com/jmylchreest/carmat/pkg/record"
)

// PageSource returns the HTML of a numbered result page.
type PageSource interface {
	FetchPage(ctx context.Context, n int) (string, error)
}

// RecordExtractor turns a result page into records.
type RecordExtractor interface {
	Records(ctx context.Context, html string) ([]record.Record, error)
}

// Sink receives records and decides when to persist them.
// output.BatchWriter implements it.
type Sink interface {
	Append(records ...record.Record)
	PageDone(page, maxPage int) (bool, error)
	Close() error
	Abort() error
}

// Config holds crawler configuration.
type Config struct {
	// Selector locates the last page number on the first result page.
	Selector *PaginationSelector
}

// DefaultConfig returns the portal's pagination layout.
func DefaultConfig() Config {
	return Config{
		Selector: DefaultPaginationSelector(),
	}
}

// Stats summarizes a crawl.
type Stats struct {
	MaxPages int
	Pages    int
	Skipped  int
	Records  int
	Flushes  int
	Duration time.Duration
}

// Crawler walks pages 1..N in order, feeding each page's records to a Sink.
type Crawler struct {
	pages     PageSource
	extractor RecordExtractor
	sink      Sink
	config    Config
}

// New creates a new Crawler.
func New(pages PageSource, ext RecordExtractor, sink Sink, cfg Config) *Crawler {
	if cfg.Selector == nil {
		cfg.Selector = DefaultPaginationSelector()
	}
	return &Crawler{
		pages:     pages,
		extractor: ext,
		sink:      sink,
		config:    cfg,
	}
}

// Run crawls every page and finalizes the sink.
//
// A page whose fetch fails is skipped; the flush schedule still applies to
// it. Any other failure, including a cancelled context, aborts the crawl:
// the sink is finalized with the records of completed flushes only and the
// error is returned.
func (c *Crawler) Run(ctx context.Context) (Stats, error) {
	start := time.Now()
	var stats Stats

	// The first page doubles as the pagination discovery fetch.
	first, err := c.pages.FetchPage(ctx, 1)
	haveFirst := err == nil
	switch {
	case haveFirst:
		stats.MaxPages = c.config.Selector.MaxPages(first)
	case fetcher.IsFetchError(err):
		logger.Warn("pagination discovery failed, assuming a single page", "error", err)
		stats.MaxPages = 1
	default:
		return stats, c.abort(ctx, 1, err, &stats, start)
	}

	logger.InfoContext(ctx, "crawl starting", "max_pages", stats.MaxPages)

	for page := 1; page <= stats.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return stats, c.abort(ctx, page, err, &stats, start)
		}

		var html string
		if page == 1 && haveFirst {
			html = first
		} else {
			html, err = c.pages.FetchPage(ctx, page)
		}

		switch {
		case err == nil:
			records, err := c.extractor.Records(ctx, html)
			if err != nil {
				return stats, c.abort(ctx, page, err, &stats, start)
			}
			c.sink.Append(records...)
			stats.Pages++
			stats.Records += len(records)
			logger.Debug("page extracted", "page", page, "records", len(records))
		case fetcher.IsFetchError(err):
			stats.Skipped++
			logger.WarnContext(ctx, "skipping page", "page", page, "error", err)
		default:
			return stats, c.abort(ctx, page, err, &stats, start)
		}

		flushed, ferr := c.sink.PageDone(page, stats.MaxPages)
		if ferr != nil {
			return stats, c.abort(ctx, page, ferr, &stats, start)
		}
		if flushed {
			stats.Flushes++
		}
	}

	stats.Duration = time.Since(start)
	if err := c.sink.Close(); err != nil {
		return stats, fmt.Errorf("finalize output: %w", err)
	}

	logger.InfoContext(ctx, "crawl complete",
		"pages", stats.Pages,
		"skipped", stats.Skipped,
		"records", stats.Records,
		"duration", stats.Duration.Round(time.Millisecond))
	return stats, nil
}

func (c *Crawler) abort(ctx context.Context, page int, cause error, stats *Stats, start time.Time) error {
	stats.Duration = time.Since(start)
	err := fmt.Errorf("crawl aborted at page %d: %w", page, cause)
	if aerr := c.sink.Abort(); aerr != nil {
		err = errors.Join(err, fmt.Errorf("finalize output: %w", aerr))
	}
	logger.ErrorContext(ctx, "crawl aborted", "page", page, "records", stats.Records, "error", cause)
	return err
}
