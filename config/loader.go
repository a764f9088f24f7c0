package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/hadi77ir/go-catalog/query"
)

// EnvPrefix prefixes environment overrides, e.g. CATALOG_CATALOG_DATASETS_PER_PAGE.
const EnvPrefix = "CATALOG"

// Loader reads configuration from a YAML file and the environment.
type Loader struct {
	v    *viper.Viper
	path string
}

// NewLoader creates a loader. An empty path searches for catalog.yaml in the
// working directory and /etc/catalog; a missing file is not an error then.
func NewLoader(path string) *Loader {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("catalog")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/catalog")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())
	return &Loader{v: v, path: path}
}

// Load reads and validates one snapshot
func Load(path string) (*Config, error) {
	return NewLoader(path).Load()
}

// Path returns the file the loader reads, or "" if none was found.
func (l *Loader) Path() string {
	if l.path != "" {
		return l.path
	}
	return l.v.ConfigFileUsed()
}

// Load reads the file and environment and validates the result
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if l.path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("catalog.datasets_per_page", d.Catalog.DatasetsPerPage)
	v.SetDefault("catalog.max_per_page", d.Catalog.MaxPerPage)
	v.SetDefault("catalog.allow_per_page_override", d.Catalog.AllowPerPageOverride)
	v.SetDefault("catalog.endpoint", d.Catalog.Endpoint)
	v.SetDefault("catalog.base_url", d.Catalog.BaseURL)
	v.SetDefault("catalog.default_format", d.Catalog.DefaultFormat)

	v.SetDefault("search.backend", d.Search.Backend)
	v.SetDefault("search.timeout", d.Search.Timeout)
	v.SetDefault("search.allowed_fields", d.Search.AllowedFields)
	v.SetDefault("search.default_search_fields", d.Search.DefaultSearchFields)
	v.SetDefault("search.memory.seed_file", d.Search.Memory.SeedFile)
	v.SetDefault("search.sql.driver", d.Search.SQL.Driver)
	v.SetDefault("search.sql.dsn", d.Search.SQL.DSN)
	v.SetDefault("search.mongo.uri", d.Search.Mongo.URI)
	v.SetDefault("search.mongo.database", d.Search.Mongo.Database)
	v.SetDefault("search.mongo.collection", d.Search.Mongo.Collection)
	v.SetDefault("search.meilisearch.host", d.Search.Meilisearch.Host)
	v.SetDefault("search.meilisearch.api_key", d.Search.Meilisearch.APIKey)
	v.SetDefault("search.meilisearch.index", d.Search.Meilisearch.Index)
	for _, name := range []string{"elasticsearch", "opensearch"} {
		e := d.Search.Elasticsearch
		if name == "opensearch" {
			e = d.Search.OpenSearch
		}
		v.SetDefault("search."+name+".addresses", e.Addresses)
		v.SetDefault("search."+name+".username", e.Username)
		v.SetDefault("search."+name+".password", e.Password)
		v.SetDefault("search."+name+".index", e.Index)
	}

	v.SetDefault("breaker.enabled", d.Breaker.Enabled)
	v.SetDefault("breaker.max_requests", d.Breaker.MaxRequests)
	v.SetDefault("breaker.interval", d.Breaker.Interval)
	v.SetDefault("breaker.timeout", d.Breaker.Timeout)
	v.SetDefault("breaker.failure_ratio", d.Breaker.FailureRatio)
	v.SetDefault("breaker.min_requests", d.Breaker.MinRequests)

	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("http.read_header_timeout", d.HTTP.ReadHeaderTimeout)
	v.SetDefault("http.shutdown_timeout", d.HTTP.ShutdownTimeout)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	val := validator.New()
	val.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return val
}

// Validate checks a snapshot. The first problem is returned as a
// *query.ConfigurationError keyed by its dotted setting name.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) || len(verrs) == 0 {
			return fmt.Errorf("validate config: %w", err)
		}
		fe := verrs[0]
		key := strings.TrimPrefix(fe.Namespace(), "Config.")
		return query.NewConfigurationError(key, fmt.Sprint(fe.Value()), ruleMessage(fe))
	}
	return validateBackend(&cfg.Search)
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "must be set"
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "gt":
		return "must be positive"
	case "lte":
		return "must be at most " + fe.Param()
	case "gtefield":
		return "must not be lower than " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "url":
		return "must be an absolute URL"
	}
	return "failed " + fe.Tag() + " check"
}

// validateBackend checks the connection settings of the selected backend
func validateBackend(s *Search) error {
	missing := func(key string) error {
		return query.NewConfigurationError("search."+key, "", "must be set for the "+s.Backend+" backend")
	}
	switch s.Backend {
	case "sql":
		if s.SQL.DSN == "" {
			return missing("sql.dsn")
		}
	case "mongodb":
		switch {
		case s.Mongo.URI == "":
			return missing("mongo.uri")
		case s.Mongo.Database == "":
			return missing("mongo.database")
		case s.Mongo.Collection == "":
			return missing("mongo.collection")
		}
	case "meilisearch":
		switch {
		case s.Meilisearch.Host == "":
			return missing("meilisearch.host")
		case s.Meilisearch.Index == "":
			return missing("meilisearch.index")
		}
	case "elasticsearch", "opensearch":
		e := s.Elasticsearch
		if s.Backend == "opensearch" {
			e = s.OpenSearch
		}
		switch {
		case len(e.Addresses) == 0:
			return missing(s.Backend + ".addresses")
		case e.Index == "":
			return missing(s.Backend + ".index")
		}
	}
	return nil
}
