package executor

import (
	"context"

	"github.com/hadi77ir/go-catalog/query"
)

// Executor is the search gateway every backend implements.
type Executor interface {
	// Search runs the query and returns one page of records together with the
	// total number of matches. Both come from the same backend response.
	// Example: res, err := executor.Search(ctx, &query.Query{RowCount: 100})
	Search(ctx context.Context, q *query.Query) (*query.Result, error)

	// Name returns the name of this executor
	Name() string

	// Close cleans up any resources used by the executor
	Close() error
}
