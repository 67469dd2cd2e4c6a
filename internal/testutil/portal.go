// Package testutil builds registry portal fixtures for package tests.
package testutil

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/jmylchreest/carmat/pkg/fetcher"
	"github.com/jmylchreest/carmat/pkg/record"
)

// Row describes one listing row of a results page.
type Row struct {
	Key        string // e.g. "carmat115602"; the anchor id is chkItem_<Key>
	Identifier string
	S3IC       string
	Commune    string
	Additional map[string]string // additional data row; nil means no row
	NoAnchor   bool
}

// ListingPage renders a results page. lastPage <= 0 omits the pagination
// control.
func ListingPage(lastPage int, rows ...Row) string {
	var b strings.Builder
	b.WriteString("<html><body>\n")
	if lastPage > 0 {
		fmt.Fprintf(&b, `<span id="pagination_last" onclick="document.forms['pagine'].page.value = '%d'; document.forms['pagine'].submit();">&raquo;</span>`+"\n", lastPage)
	}
	b.WriteString("<table>\n")
	for _, r := range rows {
		b.WriteString(`<tr class="results_item"><td>`)
		if !r.NoAnchor {
			fmt.Fprintf(&b, `<a id="chkItem_%s" href="#"></a>`, r.Key)
		}
		b.WriteString("</td><td>")
		writeField(&b, record.FieldIdentifier, r.Identifier)
		writeField(&b, record.FieldS3IC, r.S3IC)
		writeField(&b, record.FieldCommune, r.Commune)
		b.WriteString("</td></tr>\n")
	}
	for _, r := range rows {
		if r.Additional == nil {
			continue
		}
		fmt.Fprintf(&b, `<tr id="results_item_additional_content_%s_null"><td>`, r.Key)
		keys := make([]string, 0, len(r.Additional))
		for k := range r.Additional {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			writeField(&b, k, r.Additional[k])
		}
		b.WriteString("</td></tr>\n")
	}
	b.WriteString("</table>\n</body></html>\n")
	return b.String()
}

func writeField(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, `<font class="results_item_field_label">%s : </font><font class="results_item_field_value"> %s </font><br/>`,
		html.EscapeString(label), html.EscapeString(value))
}

// DetailPage renders a detail page whose history table holds the given
// data rows, after a header row.
func DetailPage(rows ...[]string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div id="historique"><table class="table table-bordered">`)
	b.WriteString("<tr><th>N°</th><th>Type</th><th>Début</th><th>Fin</th><th>Volume (kt)</th><th>Volume (m³)</th></tr>")
	for _, cells := range rows {
		b.WriteString("<tr>")
		for _, c := range cells {
			fmt.Fprintf(&b, "<td>%s</td>", html.EscapeString(c))
		}
		b.WriteString("</tr>")
	}
	b.WriteString("</table></div></body></html>")
	return b.String()
}

// Portal is an in-memory page and detail source.
type Portal struct {
	mu      sync.Mutex
	Pages   map[int]string
	Errors  map[int]error
	Details map[string]string
	Fetched []int
}

// FetchPage returns the configured page, the configured error, or a 404
// FetchError for unknown pages.
func (p *Portal) FetchPage(ctx context.Context, n int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Fetched = append(p.Fetched, n)
	if err, ok := p.Errors[n]; ok {
		return "", err
	}
	page, ok := p.Pages[n]
	if !ok {
		return "", &fetcher.FetchError{Method: http.MethodPost, URL: fmt.Sprintf("page/%d", n), StatusCode: http.StatusNotFound, Err: fetcher.ErrUnexpectedStatus}
	}
	return page, nil
}

// FetchDetail returns the configured detail page or a 404 FetchError.
func (p *Portal) FetchDetail(ctx context.Context, id string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	page, ok := p.Details[id]
	if !ok {
		return "", &fetcher.FetchError{Method: http.MethodGet, URL: "detail/" + id, StatusCode: http.StatusNotFound, Err: fetcher.ErrUnexpectedStatus}
	}
	return page, nil
}

// FetchedPages returns the page numbers requested so far.
func (p *Portal) FetchedPages() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.Fetched...)
}
