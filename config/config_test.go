package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadi77ir/go-catalog/query"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Catalog.DatasetsPerPage)
	assert.Equal(t, "/catalog.{_format}", cfg.Catalog.Endpoint)
	assert.Equal(t, 10*time.Second, cfg.Search.Timeout)
	assert.Equal(t, "memory", cfg.Search.Backend)
	assert.Equal(t, Default().Breaker, cfg.Breaker)
	assert.Equal(t, Default().HTTP, cfg.HTTP)
	assert.Empty(t, cfg.Search.AllowedFields)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
catalog:
  datasets_per_page: 20
  allow_per_page_override: true
  base_url: https://data.example.org
  endpoint: /dcat/catalog.{_format}
search:
  backend: sql
  timeout: 3s
  allowed_fields: [name, title, dataset_type, metadata_modified]
  sql:
    driver: sqlite
    dsn: file:test.db
log:
  level: debug
  format: console
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Catalog.DatasetsPerPage)
	assert.Equal(t, DefaultMaxPerPage, cfg.Catalog.MaxPerPage)
	assert.True(t, cfg.Catalog.AllowPerPageOverride)
	assert.Equal(t, "https://data.example.org", cfg.Catalog.BaseURL)
	assert.Equal(t, "/dcat/catalog.{_format}", cfg.Catalog.Endpoint)
	assert.Equal(t, "sql", cfg.Search.Backend)
	assert.Equal(t, 3*time.Second, cfg.Search.Timeout)
	assert.Equal(t, []string{"name", "title", "dataset_type", "metadata_modified"}, cfg.Search.AllowedFields)
	assert.Equal(t, "file:test.db", cfg.Search.SQL.DSN)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("CATALOG_CATALOG_DATASETS_PER_PAGE", "25")
	t.Setenv("CATALOG_SEARCH_BACKEND", "meilisearch")

	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Catalog.DatasetsPerPage)
	assert.Equal(t, "meilisearch", cfg.Search.Backend)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		key  string
	}{
		{name: "zero page size", yaml: "catalog:\n  datasets_per_page: 0\n", key: "catalog.datasets_per_page"},
		{name: "negative page size", yaml: "catalog:\n  datasets_per_page: -5\n", key: "catalog.datasets_per_page"},
		{name: "max below page size", yaml: "catalog:\n  datasets_per_page: 50\n  max_per_page: 10\n", key: "catalog.max_per_page"},
		{name: "unknown backend", yaml: "search:\n  backend: solr\n", key: "search.backend"},
		{name: "relative base url", yaml: "catalog:\n  base_url: data.example.org\n", key: "catalog.base_url"},
		{name: "empty endpoint", yaml: "catalog:\n  endpoint: \"\"\n", key: "catalog.endpoint"},
		{name: "missing dsn", yaml: "search:\n  backend: sql\n  sql:\n    dsn: \"\"\n", key: "search.sql.dsn"},
		{name: "missing index", yaml: "search:\n  backend: opensearch\n  opensearch:\n    index: \"\"\n", key: "search.opensearch.index"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			require.Error(t, err)
			assert.ErrorIs(t, err, query.ErrConfiguration)
			var ce *query.ConfigurationError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.key, ce.Key)
		})
	}
}

func TestStore_Reload(t *testing.T) {
	path := writeConfig(t, "catalog:\n  datasets_per_page: 10\n")
	loader := NewLoader(path)
	initial, err := loader.Load()
	require.NoError(t, err)

	store := NewStore(initial, nil)
	var notified *Config
	store.OnChange(func(c *Config) { notified = c })

	require.NoError(t, os.WriteFile(path, []byte(`
catalog:
  datasets_per_page: 30
  endpoint: /other.{_format}
search:
  timeout: 2s
http:
  addr: ":9999"
`), 0o600))
	require.NoError(t, store.Reload(loader))

	current := store.Current()
	assert.Equal(t, 30, current.Catalog.DatasetsPerPage)
	assert.Equal(t, 2*time.Second, current.Search.Timeout)
	assert.Equal(t, DefaultEndpoint, current.Catalog.Endpoint, "endpoint is fixed at startup")
	assert.Equal(t, ":8080", current.HTTP.Addr, "listener is fixed at startup")
	assert.Same(t, current, notified)
	assert.Equal(t, 10, initial.Catalog.DatasetsPerPage, "published snapshots are never modified")
}

func TestStore_ReloadInvalidKeepsSnapshot(t *testing.T) {
	path := writeConfig(t, "catalog:\n  datasets_per_page: 10\n")
	loader := NewLoader(path)
	initial, err := loader.Load()
	require.NoError(t, err)
	store := NewStore(initial, nil)

	require.NoError(t, os.WriteFile(path, []byte("catalog:\n  datasets_per_page: 0\n"), 0o600))
	assert.ErrorIs(t, store.Reload(loader), query.ErrConfiguration)
	assert.Same(t, initial, store.Current())
}

func TestStatic(t *testing.T) {
	cfg := Default()
	var src Source = Static{Config: cfg}
	assert.Same(t, cfg, src.Current())
}
