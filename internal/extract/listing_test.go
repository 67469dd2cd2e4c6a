package extract

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/carmat/internal/logger"
	"github.com/jmylchreest/carmat/internal/testutil"
	"github.com/jmylchreest/carmat/pkg/record"
)

func sampleRows() []testutil.Row {
	return []testutil.Row{
		{
			Key:        "carmat115602",
			Identifier: "115602",
			S3IC:       "0065.01234",
			Commune:    "ARZAL",
			Additional: map[string]string{
				record.FieldActive:       "Oui",
				record.FieldSubstances:   "Granite",
				record.FieldLongitude:    "-2.38",
				record.FieldLatitude:     "47.52",
				record.FieldAuthorizedTo: "2031-12-31",
			},
		},
		{Key: "carmat2", Identifier: "2", NoAnchor: true},
		{Key: "carmat3", Identifier: "3", Commune: "VANNES"},
	}
}

// --- Records Tests ---

func TestRecords_CoreAndAdditionalFields(t *testing.T) {
	page := testutil.ListingPage(1, sampleRows()...)

	records, err := New(nil).Records(context.Background(), page)
	require.NoError(t, err)
	require.Len(t, records, 2, "row without anchor must not produce a record")

	first := records[0]
	assert.Equal(t, "115602", first[record.FieldIdentifier])
	assert.Equal(t, "0065.01234", first[record.FieldS3IC])
	assert.Equal(t, "ARZAL", first[record.FieldCommune])
	assert.Equal(t, "Oui", first[record.FieldActive])
	assert.Equal(t, "Granite", first[record.FieldSubstances])
	assert.Equal(t, "-2.38", first[record.FieldLongitude])
	assert.Equal(t, "47.52", first[record.FieldLatitude])
	assert.Equal(t, "2031-12-31", first[record.FieldAuthorizedTo])
	_, hasProducts := first[record.FieldProducts]
	assert.False(t, hasProducts, "fields missing from the panel stay absent")

	second := records[1]
	assert.Equal(t, "3", second[record.FieldIdentifier])
	assert.Nil(t, second[record.FieldS3IC], "missing core field is present as null")
	assert.Equal(t, "VANNES", second[record.FieldCommune])
	assert.Equal(t, []string{record.FieldCommune, record.FieldIdentifier, record.FieldS3IC}, second.Keys())
}

func TestRecords_NoRows(t *testing.T) {
	records, err := New(nil).Records(context.Background(), "<html><body><p>Aucun résultat</p></body></html>")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRecords_Idempotent(t *testing.T) {
	page := testutil.ListingPage(3, sampleRows()...)
	ext := New(nil)

	first, err := ext.Records(context.Background(), page)
	require.NoError(t, err)
	second, err := ext.Records(context.Background(), page)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRecords_EnrichedWithMostRecentAuthorization(t *testing.T) {
	portal := &testutil.Portal{Details: map[string]string{
		"115602": testutil.DetailPage(
			[]string{"1", "AP initial", "2001-01-01", "2011-01-01", "100", ""},
			[]string{"2", "AP renouvellement", "2019-06-30", "", "250", "90000"},
			[]string{"3", "AP extension", "2010-05-05", "2019-06-29", "", ""},
		),
	}}
	page := testutil.ListingPage(1, sampleRows()[0], sampleRows()[2])

	ext := New(portal)
	require.True(t, ext.Enriches())

	records, err := ext.Records(context.Background(), page)
	require.NoError(t, err)
	require.Len(t, records, 2)

	enriched := records[0]
	assert.Equal(t, "AP renouvellement", enriched[record.FieldAuthType])
	assert.Equal(t, "2019-06-30T00:00:00", record.Stringify(enriched[record.FieldAuthStart]))
	assert.Nil(t, enriched[record.FieldAuthEnd])
	assert.Equal(t, "250", enriched[record.FieldAuthVolumeKT])
	assert.Equal(t, "90000", enriched[record.FieldAuthVolumeM3])

	// detail page for carmat3 is missing: record still emitted, without enrichment
	plain := records[1]
	_, ok := plain[record.FieldAuthType]
	assert.False(t, ok)
	assert.Equal(t, "3", plain[record.FieldIdentifier])
}

func TestRecords_MissingDetailLoggedWithID(t *testing.T) {
	buf := &bytes.Buffer{}
	logger.Init(logger.Options{Output: buf})
	defer logger.Init(logger.Options{})

	_, err := New(&testutil.Portal{}).Records(context.Background(), testutil.ListingPage(1, sampleRows()[2]))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "detail page unavailable")
	assert.Contains(t, buf.String(), "id=3")
}

type cancellingDetails struct {
	cancel context.CancelFunc
}

func (c cancellingDetails) FetchDetail(ctx context.Context, id string) (string, error) {
	c.cancel()
	return "", errors.New("interrupted")
}

func TestRecords_CancelledDuringEnrichment(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := New(cancellingDetails{cancel: cancel}).Records(ctx, testutil.ListingPage(1, sampleRows()...))
	assert.ErrorIs(t, err, context.Canceled)
}

// --- Helpers Tests ---

func TestDetailID(t *testing.T) {
	assert.Equal(t, "115602", DetailID("carmat115602"))
	assert.Equal(t, "42", DetailID("42"))
	assert.Equal(t, "", DetailID("carmat"))
}

func TestAdditionalData_MissingRow(t *testing.T) {
	page := testutil.ListingPage(1, testutil.Row{Key: "carmat9", Identifier: "9"})
	records, err := New(nil).Records(context.Background(), page)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Len(t, records[0], len(record.CoreFields))
}
