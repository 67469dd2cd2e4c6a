package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/jmylchreest/carmat/internal/logger"
)

// StaticConfig holds configuration for the static fetcher.
type StaticConfig struct {
	UserAgent string
	Timeout   time.Duration
}

// DefaultStaticConfig returns sensible defaults.
func DefaultStaticConfig() StaticConfig {
	return StaticConfig{
		UserAgent: DefaultUserAgent,
		Timeout:   30 * time.Second,
	}
}

// DefaultUserAgent is sent when no user agent is configured.
const DefaultUserAgent = "Mozilla/5.0"

const maxRedirects = 10

// StaticFetcher uses Colly for plain HTML requests.
// It implements the Fetcher interface.
type StaticFetcher struct {
	config StaticConfig
}

// NewStatic creates a new static fetcher.
func NewStatic(cfg StaticConfig) *StaticFetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultStaticConfig().UserAgent
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultStaticConfig().Timeout
	}
	return &StaticFetcher{config: cfg}
}

// Get retrieves a page using Colly.
func (f *StaticFetcher) Get(ctx context.Context, sess Session, targetURL string) (Content, error) {
	return f.do(ctx, sess, http.MethodGet, targetURL, nil)
}

// Post submits form data using Colly.
func (f *StaticFetcher) Post(ctx context.Context, sess Session, targetURL string, form map[string]string) (Content, error) {
	return f.do(ctx, sess, http.MethodPost, targetURL, form)
}

func (f *StaticFetcher) do(ctx context.Context, sess Session, method, targetURL string, form map[string]string) (Content, error) {
	// A cancelled context aborts the crawl; it is not a recoverable fetch failure.
	if err := ctx.Err(); err != nil {
		return Content{}, err
	}

	logger.Debug("fetch starting", "method", method, "url", targetURL)

	result := Content{
		URL:       targetURL,
		FetchedAt: time.Now(),
	}

	// A new collector per request keeps revisits of the same URL (page posts)
	// from being filtered, and the session cookie is the only cookie sent.
	c := colly.NewCollector(
		colly.UserAgent(f.config.UserAgent),
		colly.AllowURLRevisit(),
		colly.DetectCharset(),
		colly.StdlibContext(ctx),
	)
	c.DisableCookies()
	c.SetRequestTimeout(f.config.Timeout)

	// Cookies set on redirect responses are kept; the portal may hand out
	// its session cookie on a 302.
	var redirectCookies []*http.Cookie
	c.SetRedirectHandler(func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		if req.Response != nil {
			redirectCookies = append(redirectCookies, req.Response.Cookies()...)
		}
		logger.Debug("fetch redirected", "to", req.URL.String())
		return nil
	})

	if header := sess.CookieHeader(); header != "" {
		c.OnRequest(func(r *colly.Request) {
			r.Headers.Set("Cookie", header)
		})
	}

	var fetchErr error

	c.OnResponse(func(r *colly.Response) {
		result.StatusCode = r.StatusCode
		result.HTML = string(r.Body)
		if r.Headers != nil {
			result.ContentType = r.Headers.Get("Content-Type")
			result.Cookies = (&http.Response{Header: *r.Headers}).Cookies()
		}
		logger.Debug("fetch response received",
			"status", r.StatusCode,
			"content_type", result.ContentType,
			"body_size", len(r.Body))
	})

	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result.StatusCode = r.StatusCode
		}
		fetchErr = err
		logger.Debug("fetch error", "status", result.StatusCode, "error", err)
	})

	var err error
	if method == http.MethodPost {
		err = c.Post(targetURL, form)
	} else {
		err = c.Visit(targetURL)
	}
	if fetchErr == nil {
		fetchErr = err
	}
	result.Cookies = append(redirectCookies, result.Cookies...)

	// Cancellation while the request was in flight aborts the crawl too.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, ctxErr
	}

	if fetchErr != nil {
		return result, &FetchError{Method: method, URL: targetURL, StatusCode: result.StatusCode, Err: fetchErr}
	}
	if result.StatusCode != http.StatusOK {
		return result, &FetchError{Method: method, URL: targetURL, StatusCode: result.StatusCode, Err: ErrUnexpectedStatus}
	}

	logger.Debug("fetch complete", "method", method, "url", targetURL)
	return result, nil
}

// Close releases resources.
func (f *StaticFetcher) Close() error {
	return nil
}

// Type returns the fetcher type.
func (f *StaticFetcher) Type() string {
	return "static"
}
