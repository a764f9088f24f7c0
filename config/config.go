// Package config loads the service configuration and publishes it as
// immutable snapshots.
package config

import "time"

// Defaults
const (
	DefaultDatasetsPerPage = 100
	DefaultMaxPerPage      = 1000
	DefaultEndpoint        = "/catalog.{_format}"
	DefaultFormat          = "xml"
	DefaultSearchTimeout   = 10 * time.Second
)

// Config is one snapshot of the configuration. A published snapshot is never
// modified; reloading publishes a new one.
type Config struct {
	Catalog Catalog `mapstructure:"catalog"`
	Search  Search  `mapstructure:"search"`
	Breaker Breaker `mapstructure:"breaker"`
	HTTP    HTTP    `mapstructure:"http"`
	Log     Log     `mapstructure:"log"`
}

// Catalog controls paging and link building
type Catalog struct {
	DatasetsPerPage      int    `mapstructure:"datasets_per_page" validate:"min=1"`
	MaxPerPage           int    `mapstructure:"max_per_page" validate:"gtefield=DatasetsPerPage"`
	AllowPerPageOverride bool   `mapstructure:"allow_per_page_override"`
	Endpoint             string `mapstructure:"endpoint" validate:"required"`
	BaseURL              string `mapstructure:"base_url" validate:"omitempty,url"`
	DefaultFormat        string `mapstructure:"default_format" validate:"required"`
}

// Search selects and configures the search backend
type Search struct {
	Backend             string        `mapstructure:"backend" validate:"oneof=memory sql mongodb meilisearch elasticsearch opensearch"`
	Timeout             time.Duration `mapstructure:"timeout" validate:"gt=0"`
	AllowedFields       []string      `mapstructure:"allowed_fields"`
	DefaultSearchFields []string      `mapstructure:"default_search_fields"`
	Memory              Memory        `mapstructure:"memory"`
	SQL                 SQL           `mapstructure:"sql"`
	Mongo               Mongo         `mapstructure:"mongo"`
	Meilisearch         Meilisearch   `mapstructure:"meilisearch"`
	Elasticsearch       Elastic       `mapstructure:"elasticsearch"`
	OpenSearch          Elastic       `mapstructure:"opensearch"`
}

// Memory serves records from a JSON file
type Memory struct {
	SeedFile string `mapstructure:"seed_file"`
}

// SQL configures the gorm backend
type SQL struct {
	Driver string `mapstructure:"driver" validate:"oneof=sqlite postgres"`
	DSN    string `mapstructure:"dsn"`
}

// Mongo configures the MongoDB backend
type Mongo struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

// Meilisearch configures the Meilisearch backend
type Meilisearch struct {
	Host   string `mapstructure:"host"`
	APIKey string `mapstructure:"api_key"`
	Index  string `mapstructure:"index"`
}

// Elastic configures an Elasticsearch or OpenSearch backend
type Elastic struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

// Breaker configures the circuit breaker around the search backend
type Breaker struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio" validate:"gte=0,lte=1"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

// HTTP configures the listener
type HTTP struct {
	Addr              string        `mapstructure:"addr" validate:"required"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// Log configures the zap logger
type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Catalog: Catalog{
			DatasetsPerPage: DefaultDatasetsPerPage,
			MaxPerPage:      DefaultMaxPerPage,
			Endpoint:        DefaultEndpoint,
			DefaultFormat:   DefaultFormat,
		},
		Search: Search{
			Backend: "memory",
			Timeout: DefaultSearchTimeout,
			SQL:     SQL{Driver: "sqlite", DSN: "file:catalog.db"},
			Mongo: Mongo{
				URI:        "mongodb://localhost:27017",
				Database:   "catalog",
				Collection: "datasets",
			},
			Meilisearch:   Meilisearch{Host: "http://localhost:7700", Index: "datasets"},
			Elasticsearch: Elastic{Addresses: []string{"http://localhost:9200"}, Index: "datasets"},
			OpenSearch:    Elastic{Addresses: []string{"http://localhost:9200"}, Index: "datasets"},
		},
		Breaker: Breaker{
			Enabled:      true,
			MaxRequests:  5,
			Interval:     30 * time.Second,
			Timeout:      60 * time.Second,
			FailureRatio: 0.8,
			MinRequests:  5,
		},
		HTTP: HTTP{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   15 * time.Second,
		},
		Log: Log{Level: "info", Format: "json"},
	}
}

// withStatic returns a copy of c whose settings that are only read at
// startup are taken from old. Page size, per-page limits and the search
// timeout stay reloadable.
func (c *Config) withStatic(old *Config) *Config {
	out := *old
	out.Catalog.DatasetsPerPage = c.Catalog.DatasetsPerPage
	out.Catalog.MaxPerPage = c.Catalog.MaxPerPage
	out.Catalog.AllowPerPageOverride = c.Catalog.AllowPerPageOverride
	out.Search.Timeout = c.Search.Timeout
	return &out
}
