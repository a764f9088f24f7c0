// Package serializer renders catalog pages and single datasets in the
// supported interchange formats.
package serializer

import (
	"sort"
	"strings"
	"sync"

	"github.com/hadi77ir/go-catalog/pagination"
	"github.com/hadi77ir/go-catalog/query"
)

// Serializer turns records into one interchange format.
type Serializer interface {
	// SerializeCatalog renders one catalog page. info may be nil for an
	// unpaged catalog.
	SerializeCatalog(records []query.Record, info *pagination.Info) ([]byte, error)
	SerializeDataset(record query.Record) ([]byte, error)
	ContentType() string
}

// Registry maps format names to serializers.
type Registry struct {
	mu          sync.RWMutex
	serializers map[string]Serializer
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{serializers: make(map[string]Serializer)}
}

// Default returns a registry with every built-in format. Dataset URIs
// without a landing page are built from baseURL.
func Default(baseURL string) *Registry {
	uris := URIBuilder{BaseURL: baseURL}
	xmlSerializer := NewXML(uris)
	r := NewRegistry()
	r.Register("xml", xmlSerializer)
	r.Register("rdf", xmlSerializer)
	r.Register("json", NewJSON())
	r.Register("jsonld", NewJSONLD(uris))
	r.Register("cbor", NewCBOR())
	return r
}

// Register adds or replaces the serializer for format.
func (r *Registry) Register(format string, s Serializer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.serializers[strings.ToLower(format)] = s
}

// Get returns the serializer for format, or a validation error naming the
// supported formats.
func (r *Registry) Get(format string) (Serializer, error) {
	r.mu.RLock()
	s, ok := r.serializers[strings.ToLower(format)]
	r.mu.RUnlock()
	if !ok {
		return nil, query.NewValidationError("format", format,
			"unsupported format, expected one of "+strings.Join(r.Formats(), ", "))
	}
	return s, nil
}

// Formats lists the registered format names in order.
func (r *Registry) Formats() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	formats := make([]string, 0, len(r.serializers))
	for f := range r.serializers {
		formats = append(formats, f)
	}
	sort.Strings(formats)
	return formats
}

// URIBuilder derives stable dataset URIs.
type URIBuilder struct {
	BaseURL string
}

// Dataset returns the URI of a record: its landing page when set, otherwise
// BaseURL/dataset/<name or id>.
func (b URIBuilder) Dataset(r query.Record) string {
	if r.URL != "" {
		return r.URL
	}
	ref := r.Name
	if ref == "" {
		ref = r.ID
	}
	return strings.TrimSuffix(b.BaseURL, "/") + "/dataset/" + ref
}

// Catalog returns the URI of the catalog itself.
func (b URIBuilder) Catalog() string {
	return strings.TrimSuffix(b.BaseURL, "/") + "/"
}
