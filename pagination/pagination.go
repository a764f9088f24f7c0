// Package pagination computes the navigation metadata of one catalog page.
package pagination

import (
	"math"
	"strconv"

	"github.com/hadi77ir/go-catalog/query"
)

// LinkBuilder returns the URL of a page. Implementations decide routing; the
// calculator only picks page numbers.
type LinkBuilder interface {
	Link(page int) string
}

// LinkFunc adapts a function to LinkBuilder.
type LinkFunc func(page int) string

// Link calls f(page).
func (f LinkFunc) Link(page int) string { return f(page) }

// Info is the navigation metadata of a page. Previous and Next are empty and
// PreviousPage and NextPage are zero when there is no such page.
type Info struct {
	Count        int64  `json:"count"`
	ItemsPerPage int    `json:"items_per_page"`
	Current      string `json:"current"`
	First        string `json:"first"`
	Last         string `json:"last"`
	Previous     string `json:"previous,omitempty"`
	Next         string `json:"next,omitempty"`

	CurrentPage  int `json:"-"`
	FirstPage    int `json:"-"`
	LastPage     int `json:"-"`
	PreviousPage int `json:"-"`
	NextPage     int `json:"-"`
}

// HasPrevious reports whether a previous page exists.
func (i *Info) HasPrevious() bool { return i.PreviousPage > 0 }

// HasNext reports whether a next page exists.
func (i *Info) HasNext() bool { return i.NextPage > 0 }

// Calculator computes Info for a fixed page size.
type Calculator struct {
	itemsPerPage int
}

// NewCalculator returns a calculator for pages of itemsPerPage records.
func NewCalculator(itemsPerPage int) (*Calculator, error) {
	if itemsPerPage <= 0 {
		return nil, &query.ConfigurationError{
			Key:     "catalog.datasets_per_page",
			Value:   strconv.Itoa(itemsPerPage),
			Message: "page size must be a positive integer",
		}
	}
	return &Calculator{itemsPerPage: itemsPerPage}, nil
}

// ItemsPerPage returns the page size the calculator was built with.
func (c *Calculator) ItemsPerPage() int {
	return c.itemsPerPage
}

// LastPage returns max(1, round(count/itemsPerPage)), rounding halves up.
func (c *Calculator) LastPage(count int64) int {
	ipp := int64(c.itemsPerPage)
	last := count / ipp
	if rem := count % ipp; rem >= ipp-rem {
		last++
	}
	if last > math.MaxInt {
		return math.MaxInt
	}
	if last < 1 {
		return 1
	}
	return int(last)
}

// Compute builds the navigation metadata for page of result.
//
// The previous page is page-1 unless the request overshot the data, in which
// case it is the last page. The next page exists only while page*itemsPerPage < count.
func (c *Calculator) Compute(result *query.Result, page int, links LinkBuilder) (*Info, error) {
	if page < 1 {
		return nil, query.NewValidationError("page", strconv.Itoa(page), "page must be a positive integer")
	}
	if result == nil {
		return nil, query.NewValidationError("result", "", "missing search result")
	}
	if result.TotalItems < 0 {
		return nil, query.NewValidationError("count", strconv.FormatInt(result.TotalItems, 10), "count must not be negative")
	}

	count := result.TotalItems
	ipp := int64(c.itemsPerPage)
	last := c.LastPage(count)

	info := &Info{
		Count:        count,
		ItemsPerPage: c.itemsPerPage,
		CurrentPage:  page,
		FirstPage:    1,
		LastPage:     last,
		Current:      links.Link(page),
		First:        links.Link(1),
		Last:         links.Link(last),
	}

	if page > 1 {
		info.PreviousPage = page - 1
		// (page-1)*ipp + returned > count, compared without multiplying
		if rest := count - int64(result.ItemsReturned); rest < 0 || int64(page-1) > rest/ipp {
			info.PreviousPage = last
		}
		info.Previous = links.Link(info.PreviousPage)
	}
	// page*ipp < count
	if count > 0 && int64(page) <= (count-1)/ipp {
		info.NextPage = page + 1
		info.Next = links.Link(info.NextPage)
	}
	return info, nil
}
