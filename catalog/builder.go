package catalog

import (
	"strconv"

	"github.com/hadi77ir/go-catalog/parser"
	"github.com/hadi77ir/go-catalog/query"
)

// DefaultFilter restricts every catalog page to plain datasets.
var DefaultFilter query.Node = &query.ComparisonNode{
	Field:    query.FieldDatasetType,
	Operator: query.OpEqual,
	Value:    query.StringValue(query.DatasetType),
}

// Builder translates page requests into backend queries. It performs no I/O
// and never reads the clock: NOW in a filter is resolved by the executor.
type Builder struct {
	parser *parser.ParserCache
}

// NewBuilder creates a builder. cache may be nil.
func NewBuilder(cache *parser.ParserCache) *Builder {
	return &Builder{parser: cache}
}

// Build returns the query for req.
//
// Without modified_since the filter is the default filter ANDed with the
// caller's fq. With modified_since the filter is the half-open range
// [since, NOW) on metadata_modified and results are newest first; the
// caller's fq and sort are ignored.
func (b *Builder) Build(req PageRequest) (*query.Query, error) {
	if req.PageSize < 1 {
		return nil, query.NewConfigurationError("catalog.datasets_per_page", strconv.Itoa(req.PageSize), "page size must be a positive integer")
	}
	if req.Page < 1 {
		return nil, query.NewValidationError("page", strconv.Itoa(req.Page), "page must be a positive integer")
	}

	offset, ok := pageOffset(req.Page, req.PageSize)
	if !ok {
		return nil, query.NewValidationError("page", strconv.Itoa(req.Page), "page is out of range")
	}
	q := &query.Query{
		RowCount: req.PageSize,
		Offset:   offset,
	}

	text, err := b.parse("q", req.Text)
	if err != nil {
		return nil, err
	}
	q.Text = text

	if req.ModifiedSince != nil {
		q.Filter = &query.RangeNode{
			Field:        query.FieldMetadataModified,
			Lower:        query.DateTimeValue(req.ModifiedSince.UTC()),
			Upper:        query.NowValue{},
			IncludeLower: true,
		}
		q.SortBy = query.FieldMetadataModified
		q.SortOrder = query.SortOrderDesc
		return q, nil
	}

	filter, err := b.parse("fq", req.Filter)
	if err != nil {
		return nil, err
	}
	q.Filter = query.And(DefaultFilter, filter)

	if req.Sort != "" {
		field, order, err := query.ParseSort(req.Sort)
		if err != nil {
			return nil, &query.ValidationError{Field: "sort", Value: req.Sort, Message: "invalid sort clause", Err: err}
		}
		q.SortBy, q.SortOrder = field, order
	}
	return q, nil
}

func (b *Builder) parse(param, expr string) (query.Node, error) {
	if expr == "" {
		return nil, nil
	}
	node, err := b.parser.Parse(expr)
	if err != nil {
		return nil, &query.ValidationError{Field: param, Value: expr, Message: err.Error(), Err: err}
	}
	return node, nil
}
