package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadi77ir/go-catalog/config"
	"github.com/hadi77ir/go-catalog/executors/memory"
	"github.com/hadi77ir/go-catalog/internal/executortest"
	"github.com/hadi77ir/go-catalog/query"
	"github.com/hadi77ir/go-catalog/serializer"
)

const baseURL = "https://data.example.org"

// stubGateway returns a fixed result and records the queries it receives.
type stubGateway struct {
	result *query.Result
	err    error
	block  bool
	calls  atomic.Int32
	last   *query.Query
}

func (g *stubGateway) Search(ctx context.Context, q *query.Query) (*query.Result, error) {
	g.calls.Add(1)
	g.last = q
	if g.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return g.result, g.err
}

func (g *stubGateway) Name() string { return "stub" }
func (g *stubGateway) Close() error { return nil }

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Catalog.BaseURL = baseURL
	cfg.Catalog.DatasetsPerPage = 10
	return cfg
}

func newTestAssembler(t *testing.T, cfg *config.Config, gateway *stubGateway) *Assembler {
	t.Helper()
	a, err := NewAssembler(config.Static{Config: cfg}, gateway, serializer.Default(baseURL))
	require.NoError(t, err)
	return a
}

func newMemoryAssembler(t *testing.T, cfg *config.Config) *Assembler {
	t.Helper()
	e := memory.NewExecutor(executortest.Datasets(25), executortest.Options())
	a, err := NewAssembler(config.Static{Config: cfg}, e, serializer.Default(baseURL))
	require.NoError(t, err)
	return a
}

func TestNewAssembler_Configuration(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.Config)
		key    string
	}{
		{name: "endpoint without slash", modify: func(c *config.Config) { c.Catalog.Endpoint = "catalog.{_format}" }, key: "catalog.endpoint"},
		{name: "endpoint without format", modify: func(c *config.Config) { c.Catalog.Endpoint = "/catalog.xml" }, key: "catalog.endpoint"},
		{name: "zero page size", modify: func(c *config.Config) { c.Catalog.DatasetsPerPage = 0 }, key: "catalog.datasets_per_page"},
		{name: "unknown default format", modify: func(c *config.Config) { c.Catalog.DefaultFormat = "ttl" }, key: "catalog.default_format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.modify(cfg)
			_, err := NewAssembler(config.Static{Config: cfg}, &stubGateway{}, serializer.Default(baseURL))
			var ce *query.ConfigurationError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.key, ce.Key)
		})
	}
}

func TestAssembler_ListCatalogPage(t *testing.T) {
	// 25 fixtures, 2 of them harvest records: 23 datasets.
	a := newMemoryAssembler(t, testConfig())
	ctx := context.Background()

	tests := []struct {
		name     string
		page     string
		returned int
		last     int
		previous int
		next     int
	}{
		{name: "first", page: "1", returned: 10, last: 2, next: 2},
		{name: "second", page: "2", returned: 10, last: 2, previous: 1, next: 3},
		{name: "third", page: "3", returned: 3, last: 2, previous: 2},
		{name: "past the end", page: "7", returned: 0, last: 2, previous: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := a.ListCatalogPage(ctx, RawRequest{Page: tt.page})
			require.NoError(t, err)
			assert.Len(t, page.Items, tt.returned)

			info := page.Pagination
			assert.Equal(t, int64(23), info.Count)
			assert.Equal(t, 10, info.ItemsPerPage)
			assert.Equal(t, tt.last, info.LastPage)
			assert.Equal(t, tt.previous, info.PreviousPage)
			assert.Equal(t, tt.next, info.NextPage)
			assert.Equal(t, baseURL+"/catalog.xml?page="+tt.page, info.Current)
			assert.Equal(t, baseURL+"/catalog.xml?page=1", info.First)
			for _, r := range page.Items {
				assert.Equal(t, query.DatasetType, r.DatasetType)
			}
		})
	}
}

func TestAssembler_ModifiedSince(t *testing.T) {
	a := newMemoryAssembler(t, testConfig())

	page, err := a.ListCatalogPage(context.Background(), RawRequest{
		ModifiedSince: "2024-01-01T20:00:00",
		Sort:          "name asc",
		Filter:        "tags:air",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ds-24", "ds-23", "ds-22", "ds-21", "ds-20"}, executortest.IDs(page.Items))
	assert.Equal(t, int64(5), page.Pagination.Count)
	assert.Empty(t, page.Pagination.Next)
	assert.Equal(t, baseURL+"/catalog.xml?page=1&modified_since=2024-01-01T20%3A00%3A00Z", page.Pagination.Current)
}

func TestAssembler_QueryForwarded(t *testing.T) {
	g := &stubGateway{result: query.NewResult(nil, 250, 200)}
	a := newTestAssembler(t, testConfig(), g)

	page, err := a.ListCatalogPage(context.Background(), RawRequest{Page: "3", ModifiedSince: "2020-01-01T00:00:00", Sort: "title asc"})
	require.NoError(t, err)
	require.NotNil(t, g.last)
	assert.Equal(t, "metadata_modified:[2020-01-01T00:00:00Z TO NOW}", g.last.FilterExpression())
	assert.Equal(t, "metadata_modified desc", g.last.SortClause())
	assert.Equal(t, 10, g.last.RowCount)
	assert.Equal(t, 20, g.last.Offset)
	assert.Equal(t, 25, page.Pagination.LastPage)
}

func TestAssembler_ValidationSkipsGateway(t *testing.T) {
	tests := []struct {
		name  string
		raw   RawRequest
		field string
	}{
		{name: "page not a number", raw: RawRequest{Page: "abc"}, field: "page"},
		{name: "page zero", raw: RawRequest{Page: "0"}, field: "page"},
		{name: "page offset overflows", raw: RawRequest{Page: "1844674407370955163"}, field: "page"},
		{name: "page offset wraps negative", raw: RawRequest{Page: "1152921504606846977"}, field: "page"},
		{name: "bad date", raw: RawRequest{ModifiedSince: "not-a-date"}, field: "modified_since"},
		{name: "bad filter", raw: RawRequest{Filter: "tags:(air"}, field: "fq"},
		{name: "unknown format", raw: RawRequest{Format: "ttl"}, field: "format"},
		{name: "format with path segments", raw: RawRequest{Format: "ttl/../../admin#x"}, field: "format"},
	}

	calls := map[string]func(a *Assembler, raw RawRequest) error{
		"show": func(a *Assembler, raw RawRequest) error {
			_, _, err := a.ShowCatalog(context.Background(), raw)
			return err
		},
		"list page": func(a *Assembler, raw RawRequest) error {
			_, err := a.ListCatalogPage(context.Background(), raw)
			return err
		},
		"search": func(a *Assembler, raw RawRequest) error {
			_, err := a.SearchCatalog(context.Background(), raw)
			return err
		},
		"datasets": func(a *Assembler, raw RawRequest) error {
			_, err := a.ListDatasets(context.Background(), raw)
			return err
		},
	}

	for _, tt := range tests {
		for name, call := range calls {
			t.Run(tt.name+"/"+name, func(t *testing.T) {
				g := &stubGateway{result: query.NewResult(nil, 0, 0)}
				a := newTestAssembler(t, testConfig(), g)

				err := call(a, tt.raw)
				require.ErrorIs(t, err, query.ErrValidation)
				assert.NotErrorIs(t, err, query.ErrBackend)
				var ve *query.ValidationError
				require.ErrorAs(t, err, &ve)
				assert.Equal(t, tt.field, ve.Field)
				assert.Equal(t, int32(0), g.calls.Load())
			})
		}
	}
}

func TestAssembler_BackendFailures(t *testing.T) {
	t.Run("error", func(t *testing.T) {
		cause := errors.New("connection refused")
		g := &stubGateway{err: cause}
		a := newTestAssembler(t, testConfig(), g)

		page, err := a.ListCatalogPage(context.Background(), RawRequest{})
		assert.Nil(t, page)
		require.ErrorIs(t, err, query.ErrBackend)
		assert.ErrorIs(t, err, cause)

		var be *query.BackendError
		require.ErrorAs(t, err, &be)
		assert.Equal(t, "stub", be.Backend)
		assert.False(t, be.Timeout())
	})

	t.Run("timeout", func(t *testing.T) {
		cfg := testConfig()
		cfg.Search.Timeout = 20 * time.Millisecond
		g := &stubGateway{block: true}
		a := newTestAssembler(t, cfg, g)

		_, err := a.ListCatalogPage(context.Background(), RawRequest{})
		var be *query.BackendError
		require.ErrorAs(t, err, &be)
		assert.True(t, be.Timeout())
	})

	t.Run("cancelled", func(t *testing.T) {
		g := &stubGateway{block: true}
		a := newTestAssembler(t, testConfig(), g)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := a.ListCatalogPage(ctx, RawRequest{})
		require.ErrorIs(t, err, query.ErrBackend)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("result after cancellation is dropped", func(t *testing.T) {
		g := &stubGateway{result: query.NewResult(nil, 5, 0)}
		a := newTestAssembler(t, testConfig(), g)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := a.ListCatalogPage(ctx, RawRequest{})
		assert.ErrorIs(t, err, query.ErrBackend)
	})

	t.Run("validation from the gateway", func(t *testing.T) {
		g := &stubGateway{err: query.NewValidationError("extras_x", "", "field is not allowed")}
		a := newTestAssembler(t, testConfig(), g)

		_, err := a.ListCatalogPage(context.Background(), RawRequest{Filter: "extras_x:1"})
		assert.ErrorIs(t, err, query.ErrValidation)
		assert.NotErrorIs(t, err, query.ErrBackend)
	})
}

func TestAssembler_ShowCatalog(t *testing.T) {
	a := newMemoryAssembler(t, testConfig())

	body, contentType, err := a.ShowCatalog(context.Background(), RawRequest{Page: "2"})
	require.NoError(t, err)
	assert.Equal(t, "application/rdf+xml", contentType)
	assert.Contains(t, string(body), "<hydra:nextPage>"+baseURL+"/catalog.xml?page=3</hydra:nextPage>")

	body, contentType, err = a.ShowCatalog(context.Background(), RawRequest{Format: "json"})
	require.NoError(t, err)
	assert.Equal(t, "application/json", contentType)

	var doc serializer.CatalogPage
	require.NoError(t, json.Unmarshal(body, &doc))
	assert.Len(t, doc.Datasets, 10)
	assert.Equal(t, baseURL+"/catalog.json?page=2", doc.Pagination.Next)
}

func TestAssembler_ShowDataset(t *testing.T) {
	a := newMemoryAssembler(t, testConfig())
	ctx := context.Background()

	t.Run("by id", func(t *testing.T) {
		body, contentType, err := a.ShowDataset(ctx, RawRequest{ID: "ds-06"})
		require.NoError(t, err)
		assert.Equal(t, "application/rdf+xml", contentType)
		assert.Contains(t, string(body), "<dct:identifier>ds-06</dct:identifier>")
	})

	t.Run("by name", func(t *testing.T) {
		body, _, err := a.ShowDataset(ctx, RawRequest{ID: "dataset-07", Format: "json"})
		require.NoError(t, err)
		var r query.Record
		require.NoError(t, json.Unmarshal(body, &r))
		assert.Equal(t, "ds-07", r.ID)
	})

	t.Run("missing", func(t *testing.T) {
		_, _, err := a.ShowDataset(ctx, RawRequest{ID: "nope"})
		assert.ErrorIs(t, err, query.ErrNotFound)
	})

	t.Run("no id", func(t *testing.T) {
		_, _, err := a.ShowDataset(ctx, RawRequest{})
		var ve *query.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "id", ve.Field)
	})
}

func TestAssembler_ReadsCurrentSnapshot(t *testing.T) {
	cfg := testConfig()
	src := &swapSource{}
	src.cfg.Store(cfg)

	g := &stubGateway{result: query.NewResult(nil, 0, 0)}
	a, err := NewAssembler(src, g, serializer.Default(baseURL))
	require.NoError(t, err)

	_, err = a.ListCatalogPage(context.Background(), RawRequest{Page: "2"})
	require.NoError(t, err)
	assert.Equal(t, 10, g.last.RowCount)

	next := *cfg
	next.Catalog.DatasetsPerPage = 30
	src.cfg.Store(&next)

	page, err := a.ListCatalogPage(context.Background(), RawRequest{Page: "2"})
	require.NoError(t, err)
	assert.Equal(t, 30, g.last.RowCount)
	assert.Equal(t, 30, g.last.Offset)
	assert.Equal(t, 30, page.Pagination.ItemsPerPage)
}

type swapSource struct {
	cfg atomic.Pointer[config.Config]
}

func (s *swapSource) Current() *config.Config { return s.cfg.Load() }

func TestRegistry(t *testing.T) {
	a := newMemoryAssembler(t, testConfig())
	r := NewRegistry(a)

	assert.Equal(t, []string{
		ActionCatalogSearch,
		ActionCatalogShow,
		ActionDatasetShow,
		ActionDatasetsList,
	}, r.Names())

	_, ok := r.Lookup("package_search")
	assert.False(t, ok)

	ctx := context.Background()

	show, ok := r.Lookup(ActionCatalogShow)
	require.True(t, ok)
	out, err := show(ctx, RawRequest{Format: "jsonld"})
	require.NoError(t, err)
	rendered := out.(*Rendered)
	assert.Equal(t, "application/ld+json", rendered.ContentType)
	assert.NotEmpty(t, rendered.Body)

	search, _ := r.Lookup(ActionCatalogSearch)
	out, err = search(ctx, RawRequest{Page: "3"})
	require.NoError(t, err)
	resp := out.(*SearchResponse)
	assert.Len(t, resp.Datasets, 3)
	assert.Equal(t, 2, resp.Pagination.PreviousPage)

	list, _ := r.Lookup(ActionDatasetsList)
	out, err = list(ctx, RawRequest{})
	require.NoError(t, err)
	assert.Len(t, out.([]query.Record), 10)

	dataset, _ := r.Lookup(ActionDatasetShow)
	_, err = dataset(ctx, RawRequest{ID: "missing"})
	assert.ErrorIs(t, err, query.ErrNotFound)

	r.Register("ping", func(context.Context, RawRequest) (interface{}, error) { return "pong", nil })
	assert.Contains(t, r.Names(), "ping")
}
