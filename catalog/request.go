// Package catalog turns catalog page requests into backend searches and
// assembles the records and navigation metadata of each page.
package catalog

import (
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hadi77ir/go-catalog/config"
	"github.com/hadi77ir/go-catalog/query"
)

// RawRequest carries the request parameters exactly as received.
type RawRequest struct {
	Page          string
	ModifiedSince string
	Format        string
	Text          string
	Filter        string
	Sort          string
	PerPage       string
	ID            string
}

// RequestFromQuery reads the request parameters from a URL query.
func RequestFromQuery(values url.Values) RawRequest {
	format := values.Get("format")
	if format == "" {
		format = values.Get("_format")
	}
	return RawRequest{
		Page:          values.Get("page"),
		ModifiedSince: values.Get("modified_since"),
		Format:        format,
		Text:          values.Get("q"),
		Filter:        values.Get("fq"),
		Sort:          values.Get("sort"),
		PerPage:       values.Get("per_page"),
		ID:            values.Get("id"),
	}
}

// PageRequest is a validated request for one catalog page.
type PageRequest struct {
	// Page is 1-based.
	Page int
	// ModifiedSince is nil when absent and always UTC otherwise.
	ModifiedSince *time.Time
	Format        string
	// PageSize is the number of records per page used for this request.
	PageSize int
	// PerPageOverride is the caller's page size, 0 when not given.
	PerPageOverride int
	Text            string
	Filter          string
	Sort            string
}

// ParseRequest validates raw against the catalog settings.
func ParseRequest(raw RawRequest, cfg config.Catalog) (PageRequest, error) {
	req := PageRequest{
		Page:     1,
		Format:   strings.ToLower(strings.TrimSpace(raw.Format)),
		PageSize: cfg.DatasetsPerPage,
		Text:     strings.TrimSpace(raw.Text),
		Filter:   strings.TrimSpace(raw.Filter),
		Sort:     strings.TrimSpace(raw.Sort),
	}
	if req.Format == "" {
		req.Format = cfg.DefaultFormat
	}

	if page := strings.TrimSpace(raw.Page); page != "" {
		n, err := strconv.Atoi(page)
		if err != nil || n < 1 {
			return PageRequest{}, query.NewValidationError("page", raw.Page, "page must be a positive integer")
		}
		req.Page = n
	}

	if since := strings.TrimSpace(raw.ModifiedSince); since != "" {
		t, err := query.ParseTime(since)
		if err != nil {
			return PageRequest{}, &query.ValidationError{
				Field:   "modified_since",
				Value:   raw.ModifiedSince,
				Message: "invalid date format",
				Err:     err,
			}
		}
		req.ModifiedSince = &t
	}

	if perPage := strings.TrimSpace(raw.PerPage); perPage != "" {
		if !cfg.AllowPerPageOverride {
			return PageRequest{}, query.NewValidationError("per_page", raw.PerPage, "page size override is disabled")
		}
		n, err := strconv.Atoi(perPage)
		if err != nil || n < 1 {
			return PageRequest{}, query.NewValidationError("per_page", raw.PerPage, "per_page must be a positive integer")
		}
		if cfg.MaxPerPage > 0 && n > cfg.MaxPerPage {
			n = cfg.MaxPerPage
		}
		req.PerPageOverride = n
		req.PageSize = n
	}

	if _, ok := pageOffset(req.Page, req.PageSize); !ok {
		return PageRequest{}, query.NewValidationError("page", raw.Page, "page is out of range")
	}
	return req, nil
}

// pageOffset returns size*(page-1), reporting false when it does not fit in an int.
func pageOffset(page, size int) (int, bool) {
	if page < 1 || size < 1 || page-1 > math.MaxInt/size {
		return 0, false
	}
	return size * (page - 1), true
}
