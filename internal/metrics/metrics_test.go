package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadi77ir/go-catalog/parser"
	"github.com/hadi77ir/go-catalog/query"
)

func TestCollector_SearchQuery(t *testing.T) {
	c := NewCollector("catalog")

	c.SearchQuery("memory", 10*time.Millisecond, nil)
	c.SearchQuery("memory", 5*time.Millisecond, nil)
	c.SearchQuery("memory", time.Millisecond, query.NewValidationError("fq", "x", "bad"))
	c.SearchQuery("memory", time.Second, query.NewBackendError("memory", "search", context.DeadlineExceeded))
	c.SearchQuery("memory", time.Second, errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.SearchRequests.WithLabelValues("memory", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.SearchRequests.WithLabelValues("memory", "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.SearchRequests.WithLabelValues("memory", "timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.SearchRequests.WithLabelValues("memory", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.SearchDuration))
}

func TestCollector_HTTPRequest(t *testing.T) {
	c := NewCollector("catalog")
	c.HTTPRequest(http.MethodGet, "/catalog.{format}", http.StatusOK, time.Millisecond)
	c.HTTPRequest(http.MethodGet, "/catalog.{format}", http.StatusBadRequest, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.HTTPRequests.WithLabelValues("GET", "/catalog.{format}", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.HTTPRequests.WithLabelValues("GET", "/catalog.{format}", "400")))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("catalog")
	cache := parser.NewParserCache(10)
	_, err := cache.Parse("dataset_type:dataset")
	require.NoError(t, err)
	_, err = cache.Parse("dataset_type:dataset")
	require.NoError(t, err)
	c.ObserveParserCache("catalog", cache)
	c.SearchQuery("sql", time.Millisecond, nil)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `catalog_search_requests_total{backend="sql",status="ok"} 1`)
	assert.Contains(t, string(body), "catalog_parser_cache_hits 1")
	assert.Contains(t, string(body), "catalog_parser_cache_misses 1")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestNewCollector_Independent(t *testing.T) {
	a := NewCollector("catalog")
	b := NewCollector("catalog")
	a.SearchQuery("memory", time.Millisecond, nil)

	assert.Equal(t, 0.0, testutil.ToFloat64(b.SearchRequests.WithLabelValues("memory", "ok")))
}
