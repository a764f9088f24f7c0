package searchdsl

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadi77ir/go-catalog/internal/executortest"
	"github.com/hadi77ir/go-catalog/parser"
	"github.com/hadi77ir/go-catalog/query"
)

func mustParse(t *testing.T, expr string) query.Node {
	t.Helper()
	node, err := parser.Parse(expr)
	require.NoError(t, err)
	return node
}

func decodeBody(t *testing.T, q *query.Query, opts *query.ExecutorOptions) map[string]interface{} {
	t.Helper()
	raw, err := Body(q, opts)
	require.NoError(t, err)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

func TestBody(t *testing.T) {
	opts := executortest.Options()
	opts.DefaultSearchFields = []string{query.FieldTitle}

	t.Run("match all with default sort", func(t *testing.T) {
		body := decodeBody(t, &query.Query{RowCount: 100}, opts)
		assert.Equal(t, map[string]interface{}{"match_all": map[string]interface{}{}}, body["query"])
		assert.Equal(t, float64(0), body["from"])
		assert.Equal(t, float64(100), body["size"])
		assert.Equal(t, true, body["track_total_hits"])
		assert.Equal(t, []interface{}{
			map[string]interface{}{"metadata_modified": map[string]interface{}{"order": "desc"}},
			map[string]interface{}{"id": map[string]interface{}{"order": "asc"}},
		}, body["sort"])
	})

	t.Run("filter and text", func(t *testing.T) {
		body := decodeBody(t, &query.Query{
			Filter: &query.RangeNode{
				Field:        query.FieldMetadataModified,
				Lower:        query.DateTimeValue(executortest.Base),
				Upper:        query.NowValue{},
				IncludeLower: true,
			},
			Text:      mustParse(t, "air"),
			SortBy:    query.FieldTitle,
			SortOrder: query.SortOrderAsc,
			RowCount:  10,
			Offset:    20,
		}, opts)

		assert.Equal(t, map[string]interface{}{
			"bool": map[string]interface{}{
				"must": []interface{}{map[string]interface{}{"query_string": map[string]interface{}{
					"query":            "air",
					"default_operator": "AND",
					"fields":           []interface{}{"title"},
				}}},
				"filter": []interface{}{map[string]interface{}{"query_string": map[string]interface{}{
					"query":            "metadata_modified:[2024-01-01T00:00:00Z TO now}",
					"default_operator": "AND",
					"fields":           []interface{}{"title"},
				}}},
			},
		}, body["query"])
		assert.Equal(t, float64(20), body["from"])
		assert.Equal(t, "asc", body["sort"].([]interface{})[0].(map[string]interface{})["title.raw"].(map[string]interface{})["order"])
	})

	t.Run("sort by id has no tie breaker", func(t *testing.T) {
		body := decodeBody(t, &query.Query{SortBy: query.FieldID, RowCount: 1}, opts)
		assert.Len(t, body["sort"], 1)
	})
}

func TestBody_FieldWhitelist(t *testing.T) {
	opts := executortest.Options()
	opts.AllowedFields = []string{query.FieldName, query.FieldTitle}
	opts.DefaultSearchFields = []string{query.FieldTitle}

	_, err := Body(&query.Query{Filter: mustParse(t, "name:a"), Text: mustParse(t, "air"), RowCount: 1}, opts)
	assert.NoError(t, err)

	_, err = Body(&query.Query{Filter: mustParse(t, "name:a OR -license_id:x"), RowCount: 1}, opts)
	assert.ErrorIs(t, err, query.ErrFieldNotAllowed)

	opts.DefaultSearchFields = []string{query.FieldNotes}
	_, err = Body(&query.Query{Text: mustParse(t, "air"), RowCount: 1}, opts)
	assert.ErrorIs(t, err, query.ErrFieldNotAllowed)
}

func TestDocumentRoundTrip(t *testing.T) {
	r := executortest.Datasets(4)[3]

	doc, err := Document(r)
	require.NoError(t, err)
	assert.Equal(t, "acme", doc["extras_publisher"])
	assert.NotContains(t, doc, "extras")

	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	got, err := DecodeSource(raw)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, r.Tags, got.Tags)
	assert.Equal(t, r.Extras, got.Extras)
	assert.True(t, r.MetadataModified.Equal(got.MetadataModified))
}

func TestBulkBody(t *testing.T) {
	raw, err := BulkBody(executortest.Datasets(2))
	require.NoError(t, err)

	lines := bytes.Split(bytes.TrimSpace(raw), []byte("\n"))
	require.Len(t, lines, 4)
	assert.JSONEq(t, `{"index":{"_id":"ds-00"}}`, string(lines[0]))
	assert.JSONEq(t, `{"index":{"_id":"ds-01"}}`, string(lines[2]))
}

func TestErrorReason(t *testing.T) {
	assert.Equal(t, "index_not_found_exception: no such index [x]",
		ErrorReason([]byte(`{"error":{"type":"index_not_found_exception","reason":"no such index [x]"},"status":404}`)))
	assert.Equal(t, "bad gateway", ErrorReason([]byte("bad gateway\n")))
}
