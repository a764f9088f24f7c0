package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/hadi77ir/go-catalog/query"
)

// DataSourceFunc returns the records to query.
// It is called on every search so the data may change between queries.
type DataSourceFunc func() []query.Record

// MemoryExecutor executes queries on in-memory records
type MemoryExecutor struct {
	dataSource DataSourceFunc
	options    *query.ExecutorOptions
}

// NewExecutor creates a new memory executor with static data
func NewExecutor(records []query.Record, opts *query.ExecutorOptions) *MemoryExecutor {
	return NewExecutorWithDataSource(func() []query.Record { return records }, opts)
}

// NewExecutorWithDataSource creates a new memory executor with a dynamic data source
func NewExecutorWithDataSource(dataSource DataSourceFunc, opts *query.ExecutorOptions) *MemoryExecutor {
	if opts == nil {
		opts = query.DefaultExecutorOptions()
	}
	return &MemoryExecutor{
		dataSource: dataSource,
		options:    opts,
	}
}

// LoadFile reads a JSON array of records.
func LoadFile(path string) ([]query.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	var records []query.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode records %s: %w", path, err)
	}
	return records, nil
}

// Search runs the query on the in-memory data
func (e *MemoryExecutor) Search(ctx context.Context, q *query.Query) (*query.Result, error) {
	if err := e.options.CheckPageSize(q.RowCount); err != nil {
		return nil, err
	}
	if q.Offset < 0 {
		return nil, query.NewFieldError("start", query.ErrInvalidQuery)
	}

	now := e.options.Now()
	data := e.dataSource()
	filtered := make([]query.Record, 0, len(data))
	for i := range data {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		match, err := e.matches(q, &data[i], now)
		if err != nil {
			return nil, query.NewExecutionError("evaluate filter", err)
		}
		if match {
			filtered = append(filtered, data[i])
		}
	}

	sortField, sortOrder := e.options.SortFields(q)
	if !query.IsSortable(sortField) {
		return nil, query.InvalidFieldNameError(sortField)
	}
	e.sortData(filtered, sortField, sortOrder)

	total := int64(len(filtered))
	start := q.Offset
	if start > len(filtered) {
		start = len(filtered)
	}
	end := start + q.RowCount
	if end > len(filtered) {
		end = len(filtered)
	}

	page := make([]query.Record, end-start)
	copy(page, filtered[start:end])
	return query.NewResult(page, total, q.Offset), nil
}

func (e *MemoryExecutor) matches(q *query.Query, r *query.Record, now time.Time) (bool, error) {
	for _, node := range []query.Node{q.Filter, q.Text} {
		if node == nil {
			continue
		}
		ok, err := e.evaluateFilter(node, r, now)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// evaluateFilter evaluates a filter node against a record
func (e *MemoryExecutor) evaluateFilter(node query.Node, r *query.Record, now time.Time) (bool, error) {
	switch n := node.(type) {
	case *query.ComparisonNode:
		return e.evaluateComparison(n, r)
	case *query.RangeNode:
		return e.evaluateRange(n, r, now)
	case *query.NotNode:
		match, err := e.evaluateFilter(n.Operand, r, now)
		return !match, err
	case *query.BinaryOpNode:
		leftMatch, err := e.evaluateFilter(n.Left, r, now)
		if err != nil {
			return false, err
		}
		if n.Operator == query.BinaryOpAnd && !leftMatch {
			return false, nil
		}
		if n.Operator == query.BinaryOpOr && leftMatch {
			return true, nil
		}
		return e.evaluateFilter(n.Right, r, now)
	default:
		return false, query.ErrInvalidQuery
	}
}

// evaluateComparison evaluates a comparison against a record
func (e *MemoryExecutor) evaluateComparison(n *query.ComparisonNode, r *query.Record) (bool, error) {
	if n.Field == query.DefaultSearchField {
		for _, field := range e.options.DefaultSearchFields {
			match, err := e.evaluateComparison(&query.ComparisonNode{Field: field, Operator: query.OpIContains, Value: n.Value}, r)
			if err != nil || match {
				return match, err
			}
		}
		return false, nil
	}

	if !e.options.IsFieldAllowed(n.Field) {
		return false, query.FieldNotAllowedError(n.Field)
	}
	fieldValue, ok := r.Field(n.Field)
	if !ok {
		return false, nil
	}

	if t, isTime := fieldValue.(time.Time); isTime {
		want, isDate := n.Value.(query.DateTimeValue)
		return isDate && t.Equal(time.Time(want)), nil
	}

	want := fmt.Sprint(n.Value)
	for _, have := range stringValues(fieldValue) {
		if matchString(n.Operator, have, want) {
			return true, nil
		}
	}
	return false, nil
}

func (e *MemoryExecutor) evaluateRange(n *query.RangeNode, r *query.Record, now time.Time) (bool, error) {
	if !e.options.IsFieldAllowed(n.Field) {
		return false, query.FieldNotAllowedError(n.Field)
	}
	fieldValue, ok := r.Field(n.Field)
	if !ok {
		return false, nil
	}

	if n.Lower != nil {
		c, err := compareTo(fieldValue, query.ResolveNow(n.Lower, now))
		if err != nil {
			return false, query.NewFieldError(n.Field, err)
		}
		if c < 0 || (c == 0 && !n.IncludeLower) {
			return false, nil
		}
	}
	if n.Upper != nil {
		c, err := compareTo(fieldValue, query.ResolveNow(n.Upper, now))
		if err != nil {
			return false, query.NewFieldError(n.Field, err)
		}
		if c > 0 || (c == 0 && !n.IncludeUpper) {
			return false, nil
		}
	}
	return true, nil
}

// compareTo compares a record value with a bound: -1, 0 or 1.
func compareTo(have interface{}, bound interface{}) (int, error) {
	switch h := have.(type) {
	case time.Time:
		b, ok := bound.(query.DateTimeValue)
		if !ok {
			return 0, fmt.Errorf("%w: date field compared with %v", query.ErrInvalidQuery, bound)
		}
		return h.Compare(time.Time(b)), nil
	case string:
		return strings.Compare(h, fmt.Sprint(bound)), nil
	}
	return 0, fmt.Errorf("%w: field does not support ranges", query.ErrInvalidQuery)
}

func stringValues(v interface{}) []string {
	switch val := v.(type) {
	case string:
		return []string{val}
	case []string:
		return val
	}
	return []string{fmt.Sprint(v)}
}

func matchString(op query.ComparisonOperator, have, want string) bool {
	switch op {
	case query.OpContains:
		return strings.Contains(have, want)
	case query.OpIContains:
		return strings.Contains(strings.ToLower(have), strings.ToLower(want))
	case query.OpStartsWith:
		return strings.HasPrefix(have, want)
	case query.OpEndsWith:
		return strings.HasSuffix(have, want)
	default:
		return have == want
	}
}

// sortData orders records by field, breaking ties on the ID field so pages never overlap
func (e *MemoryExecutor) sortData(data []query.Record, sortField string, sortOrder query.SortOrder) {
	sort.SliceStable(data, func(i, j int) bool {
		vi, _ := data[i].Field(sortField)
		vj, _ := data[j].Field(sortField)
		c := compareValues(vi, vj)
		if c == 0 {
			return data[i].ID < data[j].ID
		}
		if sortOrder == query.SortOrderDesc {
			return c > 0
		}
		return c < 0
	})
}

func compareValues(a, b interface{}) int {
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// Name returns the executor name
func (e *MemoryExecutor) Name() string {
	return "memory"
}

// Close does nothing for memory executor
func (e *MemoryExecutor) Close() error {
	return nil
}
