package opensearch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/opensearch-project/opensearch-go/v4"
	"github.com/opensearch-project/opensearch-go/v4/opensearchapi"

	"github.com/hadi77ir/go-catalog/executors/internal/searchdsl"
	"github.com/hadi77ir/go-catalog/query"
)

// Executor searches an OpenSearch index with query_string clauses
type Executor struct {
	client  *opensearchapi.Client
	index   string
	options *query.ExecutorOptions
}

// NewExecutor creates a new OpenSearch executor
func NewExecutor(client *opensearchapi.Client, index string, opts *query.ExecutorOptions) *Executor {
	if opts == nil {
		opts = query.DefaultExecutorOptions()
	}
	return &Executor{
		client:  client,
		index:   index,
		options: opts,
	}
}

// NewClient creates an OpenSearch client for addresses
func NewClient(addresses []string, username, password string) (*opensearchapi.Client, error) {
	client, err := opensearchapi.NewClient(opensearchapi.Config{
		Client: opensearch.Config{
			Addresses:  addresses,
			Username:   username,
			Password:   password,
			MaxRetries: 3,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("opensearch client creation error: %w", err)
	}
	return client, nil
}

// Name returns the name of this executor
func (e *Executor) Name() string {
	return "opensearch"
}

// Close is a no-op for the HTTP transport
func (e *Executor) Close() error {
	return nil
}

// Search runs the query and reads the exact total from the same response
func (e *Executor) Search(ctx context.Context, q *query.Query) (*query.Result, error) {
	if err := e.options.CheckPageSize(q.RowCount); err != nil {
		return nil, err
	}
	body, err := searchdsl.Body(q, e.options)
	if err != nil {
		return nil, err
	}

	resp, err := e.client.Search(ctx, &opensearchapi.SearchReq{
		Indices: []string{e.index},
		Body:    bytes.NewReader(body),
	})
	if err != nil {
		return nil, query.NewExecutionError("search index", err)
	}

	items := make([]query.Record, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		r, err := searchdsl.DecodeSource(hit.Source)
		if err != nil {
			return nil, query.NewExecutionError("decode hit "+hit.ID, err)
		}
		items = append(items, r)
	}
	return query.NewResult(items, int64(resp.Hits.Total.Value), q.Offset), nil
}

// EnsureIndex creates the index with the dataset mapping unless it exists
func (e *Executor) EnsureIndex(ctx context.Context) error {
	_, err := e.client.Indices.Create(ctx, opensearchapi.IndicesCreateReq{
		Index: e.index,
		Body:  strings.NewReader(searchdsl.Mapping),
	})
	if err != nil {
		var structErr *opensearch.StructError
		if errors.As(err, &structErr) && structErr.Err.Type == "resource_already_exists_exception" {
			return nil
		}
		return query.NewExecutionError("create index", err)
	}
	return nil
}

// Insert bulk-indexes records and refreshes the index
func (e *Executor) Insert(ctx context.Context, records ...query.Record) error {
	if len(records) == 0 {
		return nil
	}
	body, err := searchdsl.BulkBody(records)
	if err != nil {
		return query.NewExecutionError("encode documents", err)
	}

	resp, err := e.client.Bulk(ctx, opensearchapi.BulkReq{
		Index:  e.index,
		Body:   bytes.NewReader(body),
		Params: opensearchapi.BulkParams{Refresh: "true"},
	})
	if err != nil {
		return query.NewExecutionError("bulk index", err)
	}
	if resp.Errors {
		return query.NewExecutionError("bulk index", errors.New("some documents were rejected"))
	}
	return nil
}
