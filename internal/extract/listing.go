package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jmylchreest/carmat/internal/logger"
	"github.com/jmylchreest/carmat/pkg/record"
)

const (
	rowSelector     = "tr.results_item"
	anchorSelector  = `a[id^="chkItem_"]`
	additionalRowID = `tr[id="results_item_additional_content_%s_null"]`
)

// DetailSource fetches the per-site detail page holding the authorization
// history.
type DetailSource interface {
	FetchDetail(ctx context.Context, id string) (string, error)
}

// Extractor builds records from listing pages.
type Extractor struct {
	details DetailSource
}

// New creates an Extractor. A nil details source disables history
// enrichment.
func New(details DetailSource) *Extractor {
	return &Extractor{details: details}
}

// Enriches reports whether records are enriched with the authorization history.
func (e *Extractor) Enriches() bool {
	return e.details != nil
}

// Records returns one record per listing row of the page, in row order.
// Rows without an identifier anchor are skipped. The error is reserved for
// an unparseable document or a cancelled context.
func (e *Extractor) Records(ctx context.Context, html string) ([]record.Record, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse listing page: %w", err)
	}

	var (
		records []record.Record
		loopErr error
	)
	doc.Find(rowSelector).EachWithBreak(func(i int, row *goquery.Selection) bool {
		key, ok := RowKey(row)
		if !ok {
			logger.DebugContext(ctx, "listing row without identifier anchor", "row", i)
			return true
		}

		rec := record.Record{}
		for _, field := range record.CoreFields {
			value, found := ExtractField(row, field)
			rec.SetNullable(field, value, found)
		}
		rec.Merge(AdditionalData(doc.Selection, key))

		if e.details != nil {
			auth, err := e.mostRecentAuthorization(ctx, key)
			if err != nil {
				loopErr = err
				return false
			}
			if auth != nil {
				rec.Merge(auth.Record())
			}
		}

		records = append(records, rec)
		return true
	})

	return records, loopErr
}

// mostRecentAuthorization fetches and parses the detail page of a row.
// Fetch and parse failures only drop the enrichment; a cancelled context
// is returned as an error.
func (e *Extractor) mostRecentAuthorization(ctx context.Context, key string) (*Authorization, error) {
	id := DetailID(key)
	log := logger.With("id", id)
	html, err := e.details.FetchDetail(ctx, id)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		log.WarnContext(ctx, "detail page unavailable", "error", err)
		return nil, nil
	}

	entries, err := ParseHistory(html)
	if err != nil {
		log.WarnContext(ctx, "detail page unreadable", "error", err)
		return nil, nil
	}

	auth, ok := MostRecent(entries)
	if !ok {
		return nil, nil
	}
	return &auth, nil
}

// RowKey returns the row key carried by the identifier anchor id, e.g.
// "carmat115602" for id "chkItem_carmat115602".
func RowKey(row *goquery.Selection) (string, bool) {
	id, ok := row.Find(anchorSelector).First().Attr("id")
	if !ok {
		return "", false
	}
	parts := strings.Split(id, "_")
	if len(parts) < 2 {
		return "", false
	}
	return parts[1], true
}

// DetailID derives the detail page id from a row key by trimming the
// characters of "carmat" from both ends.
func DetailID(key string) string {
	return strings.Trim(key, "carmat")
}

// AdditionalData reads the side panel row keyed to a listing row. Only the
// fields that are found are returned; a missing panel yields an empty record.
func AdditionalData(doc *goquery.Selection, key string) record.Record {
	data := record.Record{}
	row := doc.Find(fmt.Sprintf(additionalRowID, key)).First()
	if row.Length() == 0 {
		return data
	}
	for _, field := range record.AdditionalFields {
		value, ok := ExtractField(row, field)
		data.SetOptional(field, value, ok)
	}
	return data
}
