package meilisearch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/meilisearch/meilisearch-go"

	"github.com/hadi77ir/go-catalog/query"
)

// document is the indexed shape of a record. Dates are unix milliseconds so
// that they can be compared in filters.
type document struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Title            string            `json:"title"`
	Notes            string            `json:"notes,omitempty"`
	DatasetType      string            `json:"dataset_type"`
	URL              string            `json:"url,omitempty"`
	Version          string            `json:"version,omitempty"`
	LicenseID        string            `json:"license_id,omitempty"`
	Tags             []string          `json:"tags"`
	MetadataCreated  int64             `json:"metadata_created"`
	MetadataModified int64             `json:"metadata_modified"`
	Extras           map[string]string `json:"extras,omitempty"`
}

func fromRecord(r query.Record) document {
	return document{
		ID:               r.ID,
		Name:             r.Name,
		Title:            r.Title,
		Notes:            r.Notes,
		DatasetType:      r.DatasetType,
		URL:              r.URL,
		Version:          r.Version,
		LicenseID:        r.LicenseID,
		Tags:             r.Tags,
		MetadataCreated:  r.MetadataCreated.UnixMilli(),
		MetadataModified: r.MetadataModified.UnixMilli(),
		Extras:           r.Extras,
	}
}

func (d document) record() query.Record {
	return query.Record{
		ID:               d.ID,
		Name:             d.Name,
		Title:            d.Title,
		Notes:            d.Notes,
		DatasetType:      d.DatasetType,
		URL:              d.URL,
		Version:          d.Version,
		LicenseID:        d.LicenseID,
		Tags:             d.Tags,
		MetadataCreated:  time.UnixMilli(d.MetadataCreated).UTC(),
		MetadataModified: time.UnixMilli(d.MetadataModified).UTC(),
		Extras:           d.Extras,
	}
}

// Executor searches a Meilisearch index
type Executor struct {
	index   meilisearch.IndexManager
	options *query.ExecutorOptions
}

// NewExecutor creates a new Meilisearch executor over index uid
func NewExecutor(client meilisearch.ServiceManager, uid string, opts *query.ExecutorOptions) *Executor {
	if opts == nil {
		opts = query.DefaultExecutorOptions()
	}
	return &Executor{
		index:   client.Index(uid),
		options: opts,
	}
}

// Name returns the name of this executor
func (e *Executor) Name() string {
	return "meilisearch"
}

// Close is a no-op; the HTTP client holds no resources that need releasing.
func (e *Executor) Close() error {
	return nil
}

// Configure declares the attributes used in filters and sorts.
func (e *Executor) Configure(ctx context.Context) error {
	filterable := []string{
		query.FieldID, query.FieldName, query.FieldTitle, query.FieldDatasetType,
		query.FieldURL, query.FieldVersion, query.FieldLicenseID, query.FieldTags,
		query.FieldMetadataCreated, query.FieldMetadataModified, "extras",
	}
	task, err := e.index.UpdateFilterableAttributes(&filterable)
	if err != nil {
		return query.NewExecutionError("update filterable attributes", err)
	}
	if err := e.wait(ctx, task); err != nil {
		return err
	}

	sortable := []string{
		query.FieldID, query.FieldName, query.FieldTitle, query.FieldDatasetType,
		query.FieldMetadataCreated, query.FieldMetadataModified,
	}
	task, err = e.index.UpdateSortableAttributes(&sortable)
	if err != nil {
		return query.NewExecutionError("update sortable attributes", err)
	}
	return e.wait(ctx, task)
}

// Insert adds or replaces records and waits until they are searchable.
func (e *Executor) Insert(ctx context.Context, records ...query.Record) error {
	if len(records) == 0 {
		return nil
	}
	docs := make([]document, 0, len(records))
	for _, r := range records {
		docs = append(docs, fromRecord(r))
	}
	task, err := e.index.AddDocuments(docs, query.FieldID)
	if err != nil {
		return query.NewExecutionError("add documents", err)
	}
	return e.wait(ctx, task)
}

func (e *Executor) wait(ctx context.Context, info *meilisearch.TaskInfo) error {
	task, err := e.index.WaitForTaskWithContext(ctx, info.TaskUID, 50*time.Millisecond)
	if err != nil {
		return query.NewExecutionError("wait for task", err)
	}
	if task.Status != meilisearch.TaskStatusSucceeded {
		return query.NewExecutionError("wait for task", fmt.Errorf("task %d finished as %s", task.UID, task.Status))
	}
	return nil
}

// Search runs the query. Page-aligned offsets use page mode so that the
// total is exhaustive; other offsets fall back to offset mode, whose total is
// Meilisearch's estimate.
func (e *Executor) Search(ctx context.Context, q *query.Query) (*query.Result, error) {
	if err := e.options.CheckPageSize(q.RowCount); err != nil {
		return nil, err
	}

	req, err := e.buildRequest(q, e.options.Now())
	if err != nil {
		return nil, err
	}

	resp, err := e.index.SearchWithContext(ctx, req.Query, req)
	if err != nil {
		return nil, query.NewExecutionError("search index", err)
	}

	items := make([]query.Record, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		raw, err := json.Marshal(hit)
		if err != nil {
			return nil, query.NewExecutionError("decode hit", err)
		}
		var doc document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, query.NewExecutionError("decode hit", err)
		}
		items = append(items, doc.record())
	}

	total := resp.EstimatedTotalHits
	if req.HitsPerPage > 0 {
		total = resp.TotalHits
	}
	return query.NewResult(items, total, q.Offset), nil
}

func (e *Executor) buildRequest(q *query.Query, now time.Time) (*meilisearch.SearchRequest, error) {
	var (
		terms  []string
		filter query.Node
	)
	for _, node := range []query.Node{q.Filter, q.Text} {
		nodeTerms, rest, err := splitTerms(node)
		if err != nil {
			return nil, err
		}
		terms = append(terms, nodeTerms...)
		filter = query.And(filter, rest)
	}

	req := &meilisearch.SearchRequest{
		Query: strings.Join(terms, " "),
	}
	if len(e.options.DefaultSearchFields) > 0 {
		req.AttributesToSearchOn = e.options.DefaultSearchFields
	}
	if filter != nil {
		expr, err := e.buildFilter(filter, now)
		if err != nil {
			return nil, err
		}
		req.Filter = expr
	}

	sortField, sortOrder := e.options.SortFields(q)
	if !query.IsSortable(sortField) {
		return nil, query.InvalidFieldNameError(sortField)
	}
	if _, isExtra := query.ExtraKey(sortField); isExtra {
		return nil, query.NewFieldError(sortField, query.ErrUnsupportedQuery)
	}
	req.Sort = []string{sortField + ":" + sortOrder.String()}
	if id := e.idField(); id != sortField {
		req.Sort = append(req.Sort, id+":asc")
	}

	if q.Offset%q.RowCount == 0 {
		req.Page = int64(q.Offset/q.RowCount) + 1
		req.HitsPerPage = int64(q.RowCount)
	} else {
		req.Offset = int64(q.Offset)
		req.Limit = int64(q.RowCount)
	}
	return req, nil
}

func (e *Executor) idField() string {
	if e.options.IDFieldName != "" {
		return e.options.IDFieldName
	}
	return query.FieldID
}

// splitTerms pulls bare search terms out of the top-level conjunction of
// node. Meilisearch ranks them as the query string; everything else is a filter.
func splitTerms(node query.Node) ([]string, query.Node, error) {
	switch n := node.(type) {
	case nil:
		return nil, nil, nil
	case *query.ComparisonNode:
		if n.Field == query.DefaultSearchField {
			return []string{fmt.Sprint(n.Value)}, nil, nil
		}
	case *query.BinaryOpNode:
		if n.Operator == query.BinaryOpAnd {
			leftTerms, left, err := splitTerms(n.Left)
			if err != nil {
				return nil, nil, err
			}
			rightTerms, right, err := splitTerms(n.Right)
			if err != nil {
				return nil, nil, err
			}
			return append(leftTerms, rightTerms...), query.And(left, right), nil
		}
	}

	nested := false
	query.Walk(node, func(child query.Node) bool {
		if c, ok := child.(*query.ComparisonNode); ok && c.Field == query.DefaultSearchField {
			nested = true
		}
		return !nested
	})
	if nested {
		return nil, nil, fmt.Errorf("%w: free text terms can only be combined with AND", query.ErrUnsupportedQuery)
	}
	return nil, node, nil
}

func (e *Executor) buildFilter(node query.Node, now time.Time) (string, error) {
	switch n := node.(type) {
	case *query.BinaryOpNode:
		left, err := e.buildFilter(n.Left, now)
		if err != nil {
			return "", err
		}
		right, err := e.buildFilter(n.Right, now)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s) %s (%s)", left, n.Operator, right), nil

	case *query.NotNode:
		inner, err := e.buildFilter(n.Operand, now)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("NOT (%s)", inner), nil

	case *query.ComparisonNode:
		field, err := e.field(n.Field)
		if err != nil {
			return "", err
		}
		value := formatValue(query.ResolveNow(n.Value, now))
		switch n.Operator {
		case query.OpEqual:
			return fmt.Sprintf("%s = %s", field, value), nil
		case query.OpContains:
			return fmt.Sprintf("%s CONTAINS %s", field, value), nil
		case query.OpStartsWith:
			return fmt.Sprintf("%s STARTS WITH %s", field, value), nil
		}
		return "", query.NewFieldError(n.Field, fmt.Errorf("%w: %s", query.ErrUnsupportedQuery, n.Operator))

	case *query.RangeNode:
		field, err := e.field(n.Field)
		if err != nil {
			return "", err
		}
		var parts []string
		if n.Lower != nil {
			op := ">"
			if n.IncludeLower {
				op = ">="
			}
			parts = append(parts, fmt.Sprintf("%s %s %s", field, op, formatValue(query.ResolveNow(n.Lower, now))))
		}
		if n.Upper != nil {
			op := "<"
			if n.IncludeUpper {
				op = "<="
			}
			parts = append(parts, fmt.Sprintf("%s %s %s", field, op, formatValue(query.ResolveNow(n.Upper, now))))
		}
		if len(parts) == 0 {
			return field + " EXISTS", nil
		}
		return strings.Join(parts, " AND "), nil

	default:
		return "", query.ErrInvalidQuery
	}
}

// field maps a record field to its attribute path
func (e *Executor) field(name string) (string, error) {
	if !e.options.IsFieldAllowed(name) {
		return "", query.FieldNotAllowedError(name)
	}
	if key, ok := query.ExtraKey(name); ok {
		return "extras." + key, nil
	}
	if !query.IsKnownField(name) {
		return "", query.InvalidFieldNameError(name)
	}
	return name, nil
}

// formatValue renders a filter value: dates as unix milliseconds, text quoted.
func formatValue(v interface{}) string {
	if t, ok := v.(query.DateTimeValue); ok {
		return fmt.Sprint(time.Time(t).UnixMilli())
	}
	s := fmt.Sprint(v)
	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s) + "'"
}
