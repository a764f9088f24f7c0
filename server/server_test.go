package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadi77ir/go-catalog/catalog"
	"github.com/hadi77ir/go-catalog/config"
	"github.com/hadi77ir/go-catalog/executor"
	"github.com/hadi77ir/go-catalog/executors/memory"
	"github.com/hadi77ir/go-catalog/internal/executortest"
	"github.com/hadi77ir/go-catalog/internal/metrics"
	"github.com/hadi77ir/go-catalog/query"
	"github.com/hadi77ir/go-catalog/serializer"
)

const baseURL = "https://data.example.org"

type failingExecutor struct {
	err error
}

func (e failingExecutor) Search(context.Context, *query.Query) (*query.Result, error) {
	return nil, e.err
}
func (failingExecutor) Name() string { return "failing" }
func (failingExecutor) Close() error { return nil }

type fixture struct {
	server   *httptest.Server
	metrics  *metrics.Collector
	registry *catalog.Registry
}

func newFixture(t *testing.T, gateway executor.Executor, modify func(*config.Config), opts ...Option) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Catalog.BaseURL = baseURL
	cfg.Catalog.DatasetsPerPage = 10
	if modify != nil {
		modify(cfg)
	}
	if gateway == nil {
		gateway = memory.NewExecutor(executortest.Datasets(25), executortest.Options())
	}

	a, err := catalog.NewAssembler(config.Static{Config: cfg}, gateway, serializer.Default(baseURL))
	require.NoError(t, err)

	f := &fixture{metrics: metrics.NewCollector("catalog"), registry: catalog.NewRegistry(a)}
	opts = append([]Option{WithMetrics(f.metrics)}, opts...)
	f.server = httptest.NewServer(New(a.Endpoint(), f.registry, opts...).Handler())
	t.Cleanup(f.server.Close)
	return f
}

func (f *fixture) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(f.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func decodeError(t *testing.T, body []byte) errorDetail {
	t.Helper()
	var eb errorBody
	require.NoError(t, json.Unmarshal(body, &eb))
	return eb.Error
}

func TestCatalogEndpoint(t *testing.T) {
	f := newFixture(t, nil, nil)

	resp, body := f.get(t, "/catalog.xml?page=2")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/rdf+xml", resp.Header.Get("Content-Type"))
	assert.Contains(t, string(body), "<hydra:nextPage>"+baseURL+"/catalog.xml?page=3</hydra:nextPage>")
	assert.Contains(t, string(body), "<hydra:previousPage>"+baseURL+"/catalog.xml?page=1</hydra:previousPage>")

	resp, body = f.get(t, "/catalog.json?modified_since=2024-01-01T20:00:00")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page serializer.CatalogPage
	require.NoError(t, json.Unmarshal(body, &page))
	assert.Equal(t, []string{"ds-24", "ds-23", "ds-22", "ds-21", "ds-20"}, executortest.IDs(page.Datasets))
}

func TestCatalogEndpoint_Errors(t *testing.T) {
	f := newFixture(t, nil, nil)

	tests := []struct {
		name   string
		path   string
		status int
		code   string
		field  string
	}{
		{name: "page not a number", path: "/catalog.xml?page=abc", status: http.StatusBadRequest, code: "validation_error", field: "page"},
		{name: "page zero", path: "/catalog.xml?page=0", status: http.StatusBadRequest, code: "validation_error", field: "page"},
		{name: "bad date", path: "/catalog.xml?modified_since=not-a-date", status: http.StatusBadRequest, code: "validation_error", field: "modified_since"},
		{name: "unknown format", path: "/catalog.ttl", status: http.StatusBadRequest, code: "validation_error", field: "format"},
		{name: "page offset overflows", path: "/catalog.xml?page=1844674407370955163", status: http.StatusBadRequest, code: "validation_error", field: "page"},
		{name: "search with unknown format", path: "/api/catalog/search?format=ttl%2F..%2Fadmin", status: http.StatusBadRequest, code: "validation_error", field: "format"},
		{name: "override disabled", path: "/catalog.xml?per_page=5", status: http.StatusBadRequest, code: "validation_error", field: "per_page"},
		{name: "missing dataset", path: "/dataset/nope.xml", status: http.StatusNotFound, code: "not_found", field: "id"},
		{name: "unknown action", path: "/api/action/package_search", status: http.StatusNotFound, code: "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := f.get(t, tt.path)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
			detail := decodeError(t, body)
			assert.Equal(t, tt.code, detail.Code)
			assert.Equal(t, tt.field, detail.Field)
			assert.Equal(t, resp.Header.Get(RequestIDHeader), detail.RequestID)
		})
	}
}

func TestBackendErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "failure", err: errors.New("dial tcp 10.0.0.7:7700: connection refused"), status: http.StatusBadGateway, code: "backend_error"},
		{name: "deadline", err: context.DeadlineExceeded, status: http.StatusGatewayTimeout, code: "backend_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, failingExecutor{err: tt.err}, nil)
			resp, body := f.get(t, "/catalog.xml")
			assert.Equal(t, tt.status, resp.StatusCode)
			detail := decodeError(t, body)
			assert.Equal(t, tt.code, detail.Code)
			assert.Equal(t, http.StatusText(tt.status), detail.Message)
			assert.NotContains(t, string(body), "10.0.0.7")
		})
	}
}

func TestAPIRoutes(t *testing.T) {
	f := newFixture(t, nil, nil)

	t.Run("search", func(t *testing.T) {
		resp, body := f.get(t, "/api/catalog/search?page=3")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var out catalog.SearchResponse
		require.NoError(t, json.Unmarshal(body, &out))
		assert.Len(t, out.Datasets, 3)
		assert.Equal(t, int64(23), out.Pagination.Count)
		assert.Equal(t, baseURL+"/catalog.xml?page=2", out.Pagination.Previous)
		assert.Empty(t, out.Pagination.Next)
	})

	t.Run("datasets", func(t *testing.T) {
		resp, body := f.get(t, "/api/datasets?fq=tags:water&sort=name%20asc")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var records []query.Record
		require.NoError(t, json.Unmarshal(body, &records))
		require.NotEmpty(t, records)
		assert.Equal(t, "ds-00", records[0].ID)
		for _, r := range records {
			assert.Equal(t, []string{"water", "rivers"}, r.Tags)
		}
	})

	t.Run("dataset", func(t *testing.T) {
		resp, body := f.get(t, "/dataset/ds-06.jsonld")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/ld+json", resp.Header.Get("Content-Type"))
		assert.Contains(t, string(body), `"dct:identifier": "ds-06"`)
	})

	t.Run("named action", func(t *testing.T) {
		resp, body := f.get(t, "/api/action/dcat_catalog_show?format=json&page=1")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		var page serializer.CatalogPage
		require.NoError(t, json.Unmarshal(body, &page))
		assert.Len(t, page.Datasets, 10)
	})
}

func TestCustomEndpoint(t *testing.T) {
	f := newFixture(t, nil, func(c *config.Config) { c.Catalog.Endpoint = "/dcat/{_format}/catalog" })

	resp, body := f.get(t, "/dcat/xml/catalog")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), baseURL+"/dcat/xml/catalog?page=2")

	resp, _ = f.get(t, "/catalog.xml")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil, nil)
	resp, body := f.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	down := newFixture(t, nil, nil, WithHealth(func(context.Context) error { return errors.New("breaker open") }))
	resp, body = down.get(t, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), "breaker open")
}

func TestRequestID(t *testing.T) {
	f := newFixture(t, nil, nil)

	resp, _ := f.get(t, "/healthz")
	_, err := uuid.Parse(resp.Header.Get(RequestIDHeader))
	assert.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, f.server.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set(RequestIDHeader, "abc-123")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "abc-123", resp.Header.Get(RequestIDHeader))
}

func TestMetricsAndRecovery(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.registry.Register(catalog.ActionDatasetsList, func(context.Context, catalog.RawRequest) (interface{}, error) {
		panic("boom")
	})

	resp, _ := f.get(t, "/api/datasets")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	f.get(t, "/catalog.xml")
	f.get(t, "/catalog.xml?page=abc")

	resp, body := f.get(t, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := string(body)
	assert.Contains(t, out, `catalog_http_requests_total{method="GET",route="/catalog.{format}",status="200"} 1`)
	assert.Contains(t, out, `catalog_http_requests_total{method="GET",route="/catalog.{format}",status="400"} 1`)
	assert.Contains(t, out, `catalog_http_requests_total{method="GET",route="/api/datasets",status="500"} 1`)
}

func TestStatusOf(t *testing.T) {
	status, code, field := statusOf(query.NewConfigurationError("catalog.datasets_per_page", "0", "bad"))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "configuration_error", code)
	assert.Equal(t, "catalog.datasets_per_page", field)

	status, code, _ = statusOf(errors.New("unexpected"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal_error", code)
}
