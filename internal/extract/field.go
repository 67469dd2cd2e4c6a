// Package extract turns registry portal HTML into records.
//
// Portal rows are loosely structured: each field is a <font> holding the
// label followed by a sibling <font class="results_item_field_value">
// holding the value. Lookups are done by label text, so a missing label or
// value is reported as absent and never as an error.
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ValueClass marks the <font> element carrying a field value.
const ValueClass = "results_item_field_value"

// FindLabel returns the first <font> under row whose sole text contains
// label. A font's sole text is its only child node's text, following a
// chain of single-child elements such as <font><b>Commune :</b></font>.
// The returned selection is empty when no such node exists.
func FindLabel(row *goquery.Selection, label string) *goquery.Selection {
	return row.Find("font").FilterFunction(func(_ int, s *goquery.Selection) bool {
		text, ok := soleText(s)
		return ok && strings.Contains(text, label)
	}).First()
}

// soleText returns the text of s when s has exactly one child node and that
// child is a text node or itself has a sole text.
func soleText(s *goquery.Selection) (string, bool) {
	contents := s.Contents()
	if contents.Length() != 1 {
		return "", false
	}
	child := contents.First()
	switch goquery.NodeName(child) {
	case "#text":
		return child.Text(), true
	case "#comment":
		return "", false
	}
	return soleText(child)
}

// ValueAfter returns the trimmed text of the value <font> following the
// label node.
func ValueAfter(label *goquery.Selection) (string, bool) {
	if label == nil || label.Length() == 0 {
		return "", false
	}
	value := label.NextAllFiltered("font." + ValueClass).First()
	if value.Length() == 0 {
		return "", false
	}
	return strings.TrimSpace(value.Text()), true
}

// ExtractField looks up the value of the labelled field within row.
func ExtractField(row *goquery.Selection, label string) (string, bool) {
	if row == nil {
		return "", false
	}
	return ValueAfter(FindLabel(row, label))
}
