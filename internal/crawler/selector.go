package crawler

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jmylchreest/carmat/internal/logger"
)

// PaginationSelector reads the last page number from the pagination
// control of a results page. The portal keeps it in an inline script on the
// "last page" button, e.g. onclick="...page.value = '23'; ...".
type PaginationSelector struct {
	Selector string         // CSS selector of the last-page control
	Attr     string         // attribute holding the script
	Pattern  *regexp.Regexp // first submatch is the page number
}

var lastPagePattern = regexp.MustCompile(`value\s*=\s*'(\d+)'`)

// DefaultPaginationSelector matches the registry portal's last-page button.
func DefaultPaginationSelector() *PaginationSelector {
	return &PaginationSelector{
		Selector: "span#pagination_last",
		Attr:     "onclick",
		Pattern:  lastPagePattern,
	}
}

// NewPaginationSelector creates a pagination selector.
func NewPaginationSelector(selector, attr, pattern string) (*PaginationSelector, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return &PaginationSelector{Selector: selector, Attr: attr, Pattern: re}, nil
}

// LastPage returns the page number embedded in the pagination control.
func (ps *PaginationSelector) LastPage(html string) (int, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0, false
	}

	script, ok := doc.Find(ps.Selector).First().Attr(ps.Attr)
	if !ok {
		return 0, false
	}
	m := ps.Pattern.FindStringSubmatch(script)
	if len(m) < 2 {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// MaxPages returns the last page number, defaulting to 1 when the control
// or its pattern is absent.
func (ps *PaginationSelector) MaxPages(html string) int {
	if n, ok := ps.LastPage(html); ok {
		return n
	}
	logger.Warn("last page number not found, defaulting to 1")
	return 1
}
