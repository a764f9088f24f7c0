package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadi77ir/go-catalog/query"
)

func TestNewEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		template string
		wantErr  bool
	}{
		{name: "default", template: "/catalog.{_format}"},
		{name: "nested", template: "/dcat/{_format}/catalog"},
		{name: "no leading slash", template: "catalog.{_format}", wantErr: true},
		{name: "no placeholder", template: "/catalog.xml", wantErr: true},
		{name: "empty", template: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewEndpoint("https://data.example.org", tt.template)
			if tt.wantErr {
				require.Error(t, err)
				var ce *query.ConfigurationError
				require.ErrorAs(t, err, &ce)
				assert.Equal(t, "catalog.endpoint", ce.Key)
				assert.Equal(t, tt.template, ce.Value)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.template, e.Template())
		})
	}
}

func TestEndpoint_URL(t *testing.T) {
	e, err := NewEndpoint("https://data.example.org/", "/catalog.{_format}")
	require.NoError(t, err)

	tests := []struct {
		name string
		req  PageRequest
		page int
		want string
	}{
		{
			name: "plain",
			req:  PageRequest{Format: "xml"},
			page: 2,
			want: "https://data.example.org/catalog.xml?page=2",
		},
		{
			name: "filters are carried",
			req:  PageRequest{Format: "jsonld", Filter: "tags:air", Sort: "title asc", Text: "water"},
			page: 1,
			want: "https://data.example.org/catalog.jsonld?page=1&fq=tags%3Aair&q=water&sort=title+asc",
		},
		{
			name: "modified since replaces filter and sort",
			req:  PageRequest{Format: "xml", ModifiedSince: since("2020-01-01"), Filter: "tags:air", Sort: "title asc"},
			page: 3,
			want: "https://data.example.org/catalog.xml?page=3&modified_since=2020-01-01T00%3A00%3A00Z",
		},
		{
			name: "page size override",
			req:  PageRequest{Format: "json", PerPageOverride: 20},
			page: 1,
			want: "https://data.example.org/catalog.json?page=1&per_page=20",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.URL(tt.req, tt.page))
			assert.Equal(t, tt.want, e.Links(tt.req).Link(tt.page))
		})
	}
}

func TestEndpoint_Path(t *testing.T) {
	e, err := NewEndpoint("", "/dcat/{_format}/catalog")
	require.NoError(t, err)
	assert.Equal(t, "/dcat/ttl/catalog", e.Path("ttl"))
	assert.Equal(t, "/dcat/ttl%2F..%2F..%2Fadmin%23x/catalog", e.Path("ttl/../../admin#x"))
	assert.Equal(t, "/dcat/xml/catalog?page=1", e.URL(PageRequest{Format: "xml"}, 1))
}
