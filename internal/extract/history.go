package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jmylchreest/carmat/internal/logger"
	"github.com/jmylchreest/carmat/pkg/record"
)

const (
	historySelector = "div#historique"
	tableSelector   = "table.table.table-bordered"
	historyColumns  = 6
)

// Authorization is one row of the authorization history table.
type Authorization struct {
	Type     string
	Start    record.Date
	End      *record.Date
	VolumeKT *string
	VolumeM3 *string
}

// Record returns the fields merged into a site record.
func (a Authorization) Record() record.Record {
	r := record.Record{
		record.FieldAuthType:  a.Type,
		record.FieldAuthStart: a.Start,
	}
	if a.End != nil {
		r[record.FieldAuthEnd] = *a.End
	} else {
		r[record.FieldAuthEnd] = nil
	}
	r[record.FieldAuthVolumeKT] = optional(a.VolumeKT)
	r[record.FieldAuthVolumeM3] = optional(a.VolumeM3)
	return r
}

func optional(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// ParseHistory parses the authorization history table of a detail page.
// The header row is skipped, as are rows with fewer than six cells or
// unparseable dates. A page without the history section or table yields no
// entries.
func ParseHistory(html string) ([]Authorization, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse detail page: %w", err)
	}

	section := doc.Find(historySelector).First()
	if section.Length() == 0 {
		logger.Debug("history section not found")
		return nil, nil
	}
	table := section.Find(tableSelector).First()
	if table.Length() == 0 {
		logger.Debug("history table not found")
		return nil, nil
	}

	var entries []Authorization
	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return
		}
		cols := row.Find("td")
		if cols.Length() < historyColumns {
			return
		}
		cell := func(n int) string {
			return strings.TrimSpace(cols.Eq(n).Text())
		}

		start, err := record.ParseDate(cell(2))
		if err != nil {
			logger.Debug("history row skipped", "row", i, "error", err)
			return
		}
		entry := Authorization{
			Type:     cell(1),
			Start:    start,
			VolumeKT: nonEmpty(cell(4)),
			VolumeM3: nonEmpty(cell(5)),
		}
		if raw := cell(3); raw != "" {
			end, err := record.ParseDate(raw)
			if err != nil {
				logger.Debug("history row skipped", "row", i, "error", err)
				return
			}
			entry.End = &end
		}
		entries = append(entries, entry)
	})

	return entries, nil
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// MostRecent returns the entry with the latest start date. On equal start
// dates the entry appearing first in the table wins.
func MostRecent(entries []Authorization) (Authorization, bool) {
	if len(entries) == 0 {
		return Authorization{}, false
	}
	best := entries[0]
	for _, e := range entries[1:] {
		if e.Start.After(best.Start.Time) {
			best = e
		}
	}
	return best, true
}
