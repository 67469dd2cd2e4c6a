// Package record defines the quarry site record produced by the scraper
// and its JSON/CSV value mapping.
package record

import (
	"fmt"
	"sort"
)

// Field names. They double as the labels matched in the portal HTML and as
// the keys written to the JSON and CSV outputs.
const (
	FieldIdentifier = "Identifiant"
	FieldS3IC       = "Numéro S3IC"
	FieldCommune    = "Commune"

	FieldActive         = "Site en activité"
	FieldWaterOperation = "Exploitation en eau"
	FieldSubstances     = "Substances"
	FieldProducts       = "Produits"
	FieldLongitude      = "Longitude"
	FieldLatitude       = "Latitude"
	FieldAuthorizedTo   = "Date de fin d'autorisation"

	FieldAuthType     = "Type"
	FieldAuthStart    = "Date début validité"
	FieldAuthEnd      = "Date fin validité"
	FieldAuthVolumeKT = "Volume total (kt)"
	FieldAuthVolumeM3 = "Volume total (m³)"
)

// CoreFields are set on every record, with a nil value when the label is
// missing from the row.
var CoreFields = []string{FieldIdentifier, FieldS3IC, FieldCommune}

// AdditionalFields are read from the additional data row and only set when
// found.
var AdditionalFields = []string{
	FieldActive,
	FieldWaterOperation,
	FieldSubstances,
	FieldProducts,
	FieldLongitude,
	FieldLatitude,
	FieldAuthorizedTo,
}

// Record maps a field name to a string, a Date or nil.
type Record map[string]any

// Set stores a string value.
func (r Record) Set(key, value string) {
	r[key] = value
}

// SetOptional stores value when ok is true and leaves the key absent otherwise.
func (r Record) SetOptional(key, value string, ok bool) {
	if ok {
		r[key] = value
	}
}

// SetNullable stores value when ok is true and nil otherwise.
func (r Record) SetNullable(key, value string, ok bool) {
	if ok {
		r[key] = value
		return
	}
	r[key] = nil
}

// Merge copies every entry of other into r.
func (r Record) Merge(other Record) {
	for k, v := range other {
		r[k] = v
	}
}

// Keys returns the record keys in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the CSV rendering of the value stored under key. Missing keys
// and nil values render as the empty string.
func (r Record) Get(key string) string {
	v, ok := r[key]
	if !ok {
		return ""
	}
	return Stringify(v)
}

// KeyUnion returns the sorted union of the keys of all records.
func KeyUnion(records []Record) []string {
	seen := make(map[string]struct{})
	for _, r := range records {
		for k := range r {
			seen[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Stringify renders a record value for CSV output.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case Date:
		return val.String()
	case *Date:
		if val == nil {
			return ""
		}
		return val.String()
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
