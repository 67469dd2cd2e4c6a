package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/carmat/internal/config"
	"github.com/jmylchreest/carmat/internal/crawler"
	"github.com/jmylchreest/carmat/internal/extract"
	"github.com/jmylchreest/carmat/internal/logger"
	"github.com/jmylchreest/carmat/internal/output"
	"github.com/jmylchreest/carmat/internal/portal"
	"github.com/jmylchreest/carmat/pkg/fetcher"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Crawl the quarry registry and export every site",
	Long: `Crawl every result page of the quarry search and export one record per
site to <output-path>_<timestamp>.json, flushing every N pages.

The portal binds the search to a session. Either pass the JSESSIONID of a
browser session that already ran the quarry search (--session-cookie or
CARMAT_SESSION_COOKIE), or let carmat acquire one with --bootstrap.

Examples:
  carmat scrape --session-cookie D002D4FEFBF302B74FB354D558379680
  carmat scrape --bootstrap --filtered --flush-every 5
  CARMAT_SESSION_COOKIE=... carmat scrape --enrich=false --csv-mode incremental`,
	RunE: runScrape,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)

	flags := scrapeCmd.Flags()

	// Session
	flags.String("session-cookie", "", "JSESSIONID of a portal session")
	flags.Bool("bootstrap", false, "acquire a fresh session and launch the quarry search")
	flags.Bool("filtered", false, "restrict the search to active sites")

	// Extraction
	flags.Bool("enrich", true, "fetch each site's detail page for its most recent authorization")

	// Output
	flags.Int("flush-every", 10, "flush results every N pages (0 = once, at the end)")
	flags.StringP("output-path", "o", "output/details_results", "output path prefix; a timestamp and extension are appended")
	flags.String("csv-mode", config.CSVModeConvert, "csv output: convert (after the crawl), incremental, none")

	// Fetch settings
	flags.Duration("timeout", 30*time.Second, "request timeout")
	flags.String("user-agent", fetcher.DefaultUserAgent, "User-Agent header")
	flags.String("base-url", portal.DefaultBaseURL, "search application root")
	flags.String("detail-url", portal.DefaultDetailURL, "detail page prefix")

	// Bind to viper
	_ = viper.BindPFlag("session_cookie", flags.Lookup("session-cookie"))
	_ = viper.BindPFlag("bootstrap", flags.Lookup("bootstrap"))
	_ = viper.BindPFlag("filtered", flags.Lookup("filtered"))
	_ = viper.BindPFlag("enrich_with_history", flags.Lookup("enrich"))
	_ = viper.BindPFlag("flush_every_n_pages", flags.Lookup("flush-every"))
	_ = viper.BindPFlag("output_path", flags.Lookup("output-path"))
	_ = viper.BindPFlag("csv_mode", flags.Lookup("csv-mode"))
	_ = viper.BindPFlag("timeout", flags.Lookup("timeout"))
	_ = viper.BindPFlag("user_agent", flags.Lookup("user-agent"))
	_ = viper.BindPFlag("base_url", flags.Lookup("base-url"))
	_ = viper.BindPFlag("detail_url", flags.Lookup("detail-url"))
}

// newFetcher builds the fetcher used by the scrape command.
var newFetcher = func(cfg *config.Config) fetcher.Fetcher {
	return fetcher.NewStatic(fetcher.StaticConfig{
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.Timeout,
	})
}

func runScrape(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Debug("scrape command starting",
		"bootstrap", cfg.Bootstrap,
		"filtered", cfg.Filtered,
		"enrich", cfg.EnrichWithHistory,
		"flush_every", cfg.FlushEveryNPages,
		"csv_mode", cfg.CSVMode)

	f := newFetcher(cfg)
	defer func() { _ = f.Close() }()

	p := portal.New(f, portal.Config{
		BaseURL:   cfg.BaseURL,
		DetailURL: cfg.DetailURL,
	}, fetcher.Session{ID: cfg.SessionCookie})

	if cfg.Bootstrap {
		if _, err := p.Bootstrap(ctx); err != nil {
			logger.Error("failed to acquire a session", "error", err)
			return err
		}
	}
	if cfg.Filtered {
		if err := p.ApplyFilter(ctx); err != nil {
			logger.Error("failed to apply filter", "error", err)
			return err
		}
	}

	now := time.Now()
	jsonPath := cfg.JSONPath(now)
	csvPath := cfg.CSVPath(now)

	jw, err := output.CreateJSONArray(jsonPath)
	if err != nil {
		logger.Error("failed to create output file", "path", jsonPath, "error", err)
		return err
	}
	writers := []output.RecordWriter{jw}

	if cfg.CSVMode == config.CSVModeIncremental {
		cw, err := output.CreateCSV(csvPath)
		if err != nil {
			_ = jw.Abort()
			logger.Error("failed to create output file", "path", csvPath, "error", err)
			return err
		}
		writers = append(writers, cw)
	}

	var details extract.DetailSource
	if cfg.EnrichWithHistory {
		details = p
	}

	batch := output.NewBatchWriter(cfg.FlushEveryNPages, writers...)
	c := crawler.New(p, extract.New(details), batch, crawler.DefaultConfig())

	logger.Info("starting crawl", "output", jsonPath)
	stats, err := c.Run(ctx)
	if err != nil {
		logger.Error("scrape failed, partial results kept",
			"path", jsonPath,
			"records", batch.Written(),
			"error", err)
		return err
	}

	logger.Info("results saved",
		"path", jsonPath,
		"records", batch.Written(),
		"pages", stats.Pages,
		"skipped", stats.Skipped,
		"size", fileSize(jsonPath))

	if cfg.CSVMode == config.CSVModeConvert {
		if _, err := output.ConvertJSONToCSV(jsonPath, csvPath); err != nil {
			logger.Error("csv conversion failed", "path", csvPath, "error", err)
			return fmt.Errorf("convert to csv: %w", err)
		}
	}
	return nil
}

// fileSize returns the human-readable size of path, or "?" when unknown.
func fileSize(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "?"
	}
	return humanize.Bytes(uint64(info.Size())) //#nosec G115 -- file sizes are non-negative
}
