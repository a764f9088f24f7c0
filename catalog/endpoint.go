package catalog

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/hadi77ir/go-catalog/pagination"
	"github.com/hadi77ir/go-catalog/query"
)

// FormatPlaceholder marks where the format goes in an endpoint template.
const FormatPlaceholder = "{_format}"

// Endpoint builds absolute catalog page URLs from a template such as
// /catalog.{_format}.
type Endpoint struct {
	baseURL  string
	template string
}

// NewEndpoint validates the endpoint template.
func NewEndpoint(baseURL, template string) (*Endpoint, error) {
	if !strings.HasPrefix(template, "/") {
		return nil, query.NewConfigurationError("catalog.endpoint", template, "endpoint must start with a slash")
	}
	if !strings.Contains(template, FormatPlaceholder) {
		return nil, query.NewConfigurationError("catalog.endpoint", template, "endpoint must contain "+FormatPlaceholder)
	}
	return &Endpoint{baseURL: strings.TrimSuffix(baseURL, "/"), template: template}, nil
}

// Template returns the endpoint template.
func (e *Endpoint) Template() string { return e.template }

// Path returns the endpoint path for format. The format is path-escaped.
func (e *Endpoint) Path(format string) string {
	return strings.ReplaceAll(e.template, FormatPlaceholder, url.PathEscape(format))
}

// URL returns the absolute URL of page for req. The filters of req are
// carried over so every link names the same result set.
func (e *Endpoint) URL(req PageRequest, page int) string {
	params := url.Values{}
	if req.ModifiedSince != nil {
		params.Set("modified_since", query.FormatTime(*req.ModifiedSince))
	}
	if req.Text != "" {
		params.Set("q", req.Text)
	}
	if req.ModifiedSince == nil {
		if req.Filter != "" {
			params.Set("fq", req.Filter)
		}
		if req.Sort != "" {
			params.Set("sort", req.Sort)
		}
	}
	if req.PerPageOverride > 0 {
		params.Set("per_page", strconv.Itoa(req.PerPageOverride))
	}

	link := e.baseURL + e.Path(req.Format) + "?page=" + strconv.Itoa(page)
	if len(params) > 0 {
		link += "&" + params.Encode()
	}
	return link
}

// Links returns the link builder for the pages of req.
func (e *Endpoint) Links(req PageRequest) pagination.LinkBuilder {
	return pagination.LinkFunc(func(page int) string {
		return e.URL(req, page)
	})
}
