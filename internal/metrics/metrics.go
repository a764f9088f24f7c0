// Package metrics holds the Prometheus collectors of the catalog service.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hadi77ir/go-catalog/parser"
	"github.com/hadi77ir/go-catalog/query"
)

// Collector owns a private registry so tests and several servers in one
// process never collide on registration.
type Collector struct {
	registry *prometheus.Registry

	SearchRequests *prometheus.CounterVec
	SearchDuration *prometheus.HistogramVec

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewCollector creates the collectors under namespace.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	searchRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Total number of search backend calls",
		},
		[]string{"backend", "status"},
	)

	searchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Search backend call duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	httpRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	registry.MustRegister(
		searchRequests,
		searchDuration,
		httpRequests,
		httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Collector{
		registry:       registry,
		SearchRequests: searchRequests,
		SearchDuration: searchDuration,
		HTTPRequests:   httpRequests,
		HTTPDuration:   httpDuration,
	}
}

// SearchQuery records one backend call.
func (c *Collector) SearchQuery(backend string, duration time.Duration, err error) {
	c.SearchRequests.WithLabelValues(backend, searchStatus(err)).Inc()
	c.SearchDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

func searchStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, query.ErrValidation),
		errors.Is(err, query.ErrFieldNotAllowed),
		errors.Is(err, query.ErrInvalidFieldName),
		errors.Is(err, query.ErrUnsupportedQuery),
		errors.Is(err, query.ErrPageSizeExceeded):
		return "rejected"
	default:
		return "error"
	}
}

// HTTPRequest records one served request. route is the matched pattern,
// never the raw path.
func (c *Collector) HTTPRequest(method, route string, status int, duration time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveParserCache exports the filter parse cache counters.
func (c *Collector) ObserveParserCache(namespace string, cache *parser.ParserCache) {
	gauge := func(name, help string, value func(parser.CacheStats) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "parser_cache",
			Name:      name,
			Help:      help,
		}, func() float64 { return value(cache.GetStats()) })
	}
	c.registry.MustRegister(
		gauge("entries", "Cached filter expressions", func(s parser.CacheStats) float64 { return float64(s.Size) }),
		gauge("hits", "Filter expressions served from the cache", func(s parser.CacheStats) float64 { return float64(s.Hits) }),
		gauge("misses", "Filter expressions parsed", func(s parser.CacheStats) float64 { return float64(s.Misses) }),
	)
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
