// Package portal speaks the registry portal's session-bound search protocol:
// acquiring a session, launching the quarry search, restricting it to
// active sites and paging through the results.
package portal

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/jmylchreest/carmat/internal/logger"
	"github.com/jmylchreest/carmat/pkg/fetcher"
)

const (
	// DefaultBaseURL is the root of the search application.
	DefaultBaseURL = "https://infoterre.brgm.fr/rechercher/"
	// DefaultDetailURL is the prefix of the per-site detail pages.
	DefaultDetailURL = "https://www.mineralinfo.fr/Fiches/carmat/"

	// quarryScope selects the quarry registry in the search application.
	quarryScope = "6"
)

// ErrNoSession is returned when the portal did not hand out a session cookie.
var ErrNoSession = errors.New("portal: no session cookie in response")

// Config holds the portal endpoints.
type Config struct {
	BaseURL   string
	DetailURL string
}

// DefaultConfig returns the production endpoints.
func DefaultConfig() Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		DetailURL: DefaultDetailURL,
	}
}

// Portal issues the portal requests for one session.
type Portal struct {
	fetcher fetcher.Fetcher
	config  Config

	mu      sync.RWMutex
	session fetcher.Session
}

// New returns a Portal bound to sess. Call Bootstrap to acquire a fresh
// session instead.
func New(f fetcher.Fetcher, cfg Config, sess fetcher.Session) *Portal {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.DetailURL == "" {
		cfg.DetailURL = DefaultDetailURL
	}
	return &Portal{fetcher: f, config: cfg, session: sess}
}

// Session returns the current session.
func (p *Portal) Session() fetcher.Session {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.session
}

// Bootstrap acquires a new session and launches the quarry search in it.
// Any non-200 answer fails the bootstrap.
func (p *Portal) Bootstrap(ctx context.Context) (fetcher.Session, error) {
	content, err := p.fetcher.Get(ctx, fetcher.Session{}, p.url(""))
	if err != nil {
		return fetcher.Session{}, fmt.Errorf("bootstrap: open search: %w", err)
	}
	id, ok := content.Cookie(fetcher.SessionCookie)
	if !ok || id == "" {
		return fetcher.Session{}, fmt.Errorf("bootstrap: %w", ErrNoSession)
	}
	sess := fetcher.Session{ID: id}
	logger.Info("session acquired", "session", id)

	if _, err := p.fetcher.Get(ctx, sess, p.url("default.htm;jsessionid="+id)); err != nil {
		return fetcher.Session{}, fmt.Errorf("bootstrap: open session: %w", err)
	}
	if _, err := p.fetcher.Get(ctx, sess, p.url("switch.htm?scope="+quarryScope)); err != nil {
		return fetcher.Session{}, fmt.Errorf("bootstrap: select quarry scope: %w", err)
	}
	form := map[string]string{
		"inValues":        "0",
		"scopeValue":      quarryScope,
		"what":            "",
		"where":           "",
		"carmatSubstance": "",
		"carmatProduit":   "",
		"carmatGidic":     "",
		"x":               "19",
		"y":               "8",
	}
	if _, err := p.fetcher.Post(ctx, sess, p.url("search.htm"), form); err != nil {
		return fetcher.Session{}, fmt.Errorf("bootstrap: launch search: %w", err)
	}

	p.mu.Lock()
	p.session = sess
	p.mu.Unlock()
	logger.Info("search launched")
	return sess, nil
}

// ApplyFilter restricts the session's search to active sites.
func (p *Portal) ApplyFilter(ctx context.Context) error {
	form := map[string]string{"action": "refine", "id": "carmat_actif:true"}
	if _, err := p.fetcher.Post(ctx, p.Session(), p.url("refine.htm"), form); err != nil {
		return fmt.Errorf("apply active-site filter: %w", err)
	}
	logger.Info("active-site filter applied")
	return nil
}

// FetchPage returns the HTML of result page n.
func (p *Portal) FetchPage(ctx context.Context, n int) (string, error) {
	content, err := p.fetcher.Post(ctx, p.Session(), p.url("pagine.htm"), map[string]string{"page": strconv.Itoa(n)})
	if err != nil {
		return "", err
	}
	logger.Debug("page fetched", "page", n, "bytes", len(content.HTML))
	return content.HTML, nil
}

// FetchDetail returns the HTML of the detail page of a site.
func (p *Portal) FetchDetail(ctx context.Context, id string) (string, error) {
	content, err := p.fetcher.Get(ctx, p.Session(), strings.TrimRight(p.config.DetailURL, "/")+"/"+id)
	if err != nil {
		return "", err
	}
	return content.HTML, nil
}

func (p *Portal) url(path string) string {
	return strings.TrimRight(p.config.BaseURL, "/") + "/" + path
}
