package elasticsearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadi77ir/go-catalog/executors/internal/searchdsl"
	"github.com/hadi77ir/go-catalog/internal/executortest"
	"github.com/hadi77ir/go-catalog/parser"
	"github.com/hadi77ir/go-catalog/query"
)

// fakeCluster serves canned responses and records the last request.
type fakeCluster struct {
	t        *testing.T
	status   int
	response string
	path     string
	query    string
	body     []byte
}

func (f *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.path = r.URL.Path
	f.query = r.URL.RawQuery
	body, err := io.ReadAll(r.Body)
	require.NoError(f.t, err)
	f.body = body

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	if f.status != 0 {
		w.WriteHeader(f.status)
	}
	_, _ = io.WriteString(w, f.response)
}

func newTestExecutor(t *testing.T, fake *fakeCluster) *Executor {
	t.Helper()
	fake.t = t
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := NewClient([]string{srv.URL}, "", "")
	require.NoError(t, err)
	return NewExecutor(client, "datasets", executortest.Options())
}

func searchResponse(t *testing.T, total int64, records []query.Record) string {
	t.Helper()
	hits := make([]map[string]interface{}, 0, len(records))
	for _, r := range records {
		doc, err := searchdsl.Document(r)
		require.NoError(t, err)
		hits = append(hits, map[string]interface{}{"_index": "datasets", "_id": r.ID, "_source": doc})
	}
	raw, err := json.Marshal(map[string]interface{}{
		"took":      1,
		"timed_out": false,
		"hits": map[string]interface{}{
			"total": map[string]interface{}{"value": total, "relation": "eq"},
			"hits":  hits,
		},
	})
	require.NoError(t, err)
	return string(raw)
}

func TestExecutor_Search(t *testing.T) {
	records := executortest.Datasets(12)
	fake := &fakeCluster{response: searchResponse(t, 12, records[:5])}
	e := newTestExecutor(t, fake)

	filter, err := parser.Parse("dataset_type:dataset")
	require.NoError(t, err)
	res, err := e.Search(context.Background(), &query.Query{Filter: filter, RowCount: 5})
	require.NoError(t, err)

	assert.Equal(t, "/datasets/_search", fake.path)
	assert.Contains(t, fake.query, "track_total_hits=true")

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(fake.body, &body))
	assert.Equal(t, float64(5), body["size"])
	assert.Contains(t, string(fake.body), `"query":"dataset_type:dataset"`)

	assert.Equal(t, int64(12), res.TotalItems)
	assert.Equal(t, executortest.IDs(records[:5]), executortest.IDs(res.Items))
	assert.Equal(t, records[3].Extras, res.Items[3].Extras)
}

func TestExecutor_Search_ErrorStatus(t *testing.T) {
	fake := &fakeCluster{
		status:   http.StatusNotFound,
		response: `{"error":{"type":"index_not_found_exception","reason":"no such index [datasets]"},"status":404}`,
	}
	e := newTestExecutor(t, fake)

	_, err := e.Search(context.Background(), &query.Query{RowCount: 5})
	require.Error(t, err)
	var execErr *query.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, err.Error(), "index_not_found_exception")
}

func TestExecutor_Search_PageSize(t *testing.T) {
	e := newTestExecutor(t, &fakeCluster{})
	_, err := e.Search(context.Background(), &query.Query{RowCount: 5000})
	assert.ErrorIs(t, err, query.ErrPageSizeExceeded)
}

func TestExecutor_EnsureIndex(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		fake := &fakeCluster{response: `{"acknowledged":true,"index":"datasets"}`}
		e := newTestExecutor(t, fake)
		require.NoError(t, e.EnsureIndex(context.Background()))
		assert.Equal(t, "/datasets", fake.path)
		assert.Contains(t, string(fake.body), "dynamic_templates")
	})

	t.Run("already exists", func(t *testing.T) {
		fake := &fakeCluster{
			status:   http.StatusBadRequest,
			response: `{"error":{"type":"resource_already_exists_exception","reason":"index [datasets] already exists"},"status":400}`,
		}
		e := newTestExecutor(t, fake)
		assert.NoError(t, e.EnsureIndex(context.Background()))
	})
}

func TestExecutor_Insert(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		fake := &fakeCluster{response: `{"took":3,"errors":false,"items":[]}`}
		e := newTestExecutor(t, fake)
		require.NoError(t, e.Insert(context.Background(), executortest.Datasets(3)...))
		assert.Equal(t, "/datasets/_bulk", fake.path)
		assert.Contains(t, fake.query, "refresh=true")
	})

	t.Run("rejected documents", func(t *testing.T) {
		fake := &fakeCluster{response: `{"took":3,"errors":true,"items":[]}`}
		e := newTestExecutor(t, fake)
		assert.Error(t, e.Insert(context.Background(), executortest.Datasets(1)...))
	})
}
