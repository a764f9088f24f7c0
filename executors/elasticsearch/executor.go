package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/hadi77ir/go-catalog/executors/internal/searchdsl"
	"github.com/hadi77ir/go-catalog/query"
)

// Executor searches an Elasticsearch index with query_string clauses
type Executor struct {
	client  *elasticsearch.Client
	index   string
	options *query.ExecutorOptions
}

// NewExecutor creates a new Elasticsearch executor
func NewExecutor(client *elasticsearch.Client, index string, opts *query.ExecutorOptions) *Executor {
	if opts == nil {
		opts = query.DefaultExecutorOptions()
	}
	return &Executor{
		client:  client,
		index:   index,
		options: opts,
	}
}

// NewClient creates an Elasticsearch client for addresses
func NewClient(addresses []string, username, password string) (*elasticsearch.Client, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: addresses,
		Username:  username,
		Password:  password,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch client creation error: %w", err)
	}
	return client, nil
}

// Name returns the name of this executor
func (e *Executor) Name() string {
	return "elasticsearch"
}

// Close is a no-op; the transport's idle connections are reclaimed by the HTTP client.
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

	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(e.index),
		e.client.Search.WithBody(bytes.NewReader(body)),
		e.client.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, query.NewExecutionError("search index", err)
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(res.Body)

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, query.NewExecutionError("read response", err)
	}
	if res.IsError() {
		return nil, query.NewExecutionError("search index", fmt.Errorf("%s: %s", res.Status(), searchdsl.ErrorReason(raw)))
	}

	var sr searchdsl.Response
	if err := json.Unmarshal(raw, &sr); err != nil {
		return nil, query.NewExecutionError("decode response", err)
	}
	items := make([]query.Record, 0, len(sr.Hits.Hits))
	for _, hit := range sr.Hits.Hits {
		r, err := searchdsl.DecodeSource(hit.Source)
		if err != nil {
			return nil, query.NewExecutionError("decode hit "+hit.ID, err)
		}
		items = append(items, r)
	}
	return query.NewResult(items, sr.Hits.Total.Value, q.Offset), nil
}

// EnsureIndex creates the index with the dataset mapping unless it exists
func (e *Executor) EnsureIndex(ctx context.Context) error {
	res, err := e.client.Indices.Create(
		e.index,
		e.client.Indices.Create.WithContext(ctx),
		e.client.Indices.Create.WithBody(strings.NewReader(searchdsl.Mapping)),
	)
	if err != nil {
		return query.NewExecutionError("create index", err)
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(res.Body)

	if !res.IsError() {
		return nil
	}
	raw, _ := io.ReadAll(res.Body)
	reason := searchdsl.ErrorReason(raw)
	if res.StatusCode == http.StatusBadRequest && strings.HasPrefix(reason, "resource_already_exists_exception") {
		return nil
	}
	return query.NewExecutionError("create index", fmt.Errorf("%s: %s", res.Status(), reason))
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

	res, err := e.client.Bulk(
		bytes.NewReader(body),
		e.client.Bulk.WithContext(ctx),
		e.client.Bulk.WithIndex(e.index),
		e.client.Bulk.WithRefresh("true"),
	)
	if err != nil {
		return query.NewExecutionError("bulk index", err)
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(res.Body)

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return query.NewExecutionError("bulk index", err)
	}
	if res.IsError() {
		return query.NewExecutionError("bulk index", fmt.Errorf("%s: %s", res.Status(), searchdsl.ErrorReason(raw)))
	}
	var br struct {
		Errors bool `json:"errors"`
	}
	if err := json.Unmarshal(raw, &br); err != nil {
		return query.NewExecutionError("bulk index", err)
	}
	if br.Errors {
		return query.NewExecutionError("bulk index", errors.New("some documents were rejected"))
	}
	return nil
}
