package gorm

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hadi77ir/go-catalog/query"
)

// Executor is the GORM implementation of the executor interface
type Executor struct {
	db      *gorm.DB
	options *query.ExecutorOptions
}

// NewExecutor creates a new GORM executor over the datasets table
func NewExecutor(db *gorm.DB, opts *query.ExecutorOptions) *Executor {
	if opts == nil {
		opts = query.DefaultExecutorOptions()
	}
	return &Executor{
		db:      db,
		options: opts,
	}
}

// Name returns the name of this executor
func (e *Executor) Name() string {
	return "sql"
}

// Close releases the underlying connection pool
func (e *Executor) Close() error {
	sqlDB, err := e.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Search counts and fetches one page inside a single read-only transaction
// so that both come from the same snapshot.
func (e *Executor) Search(ctx context.Context, q *query.Query) (*query.Result, error) {
	if err := e.options.CheckPageSize(q.RowCount); err != nil {
		return nil, err
	}

	now := e.options.Now()
	where, args, err := e.buildWhere(q, now)
	if err != nil {
		return nil, err
	}

	sortField, sortOrder := e.options.SortFields(q)
	if !query.IsSortable(sortField) || !isValidField(sortField) {
		return nil, query.InvalidFieldNameError(sortField)
	}
	if _, isExtra := query.ExtraKey(sortField); isExtra {
		return nil, query.NewFieldError(sortField, query.ErrUnsupportedQuery)
	}

	scope := func(db *gorm.DB) *gorm.DB {
		db = db.Model(&Dataset{})
		if where != "" {
			db = db.Where(where, args...)
		}
		return db
	}

	var (
		total int64
		rows  []Dataset
	)
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Scopes(scope).Count(&total).Error; err != nil {
			return query.NewExecutionError("count datasets", err)
		}
		err := tx.Scopes(scope).
			Order(clause.OrderByColumn{Column: clause.Column{Name: sortField}, Desc: sortOrder == query.SortOrderDesc}).
			Order(clause.OrderByColumn{Column: clause.Column{Name: e.idField()}}).
			Offset(q.Offset).
			Limit(q.RowCount).
			Find(&rows).Error
		return query.NewExecutionError("fetch datasets", err)
	}, &sql.TxOptions{ReadOnly: true, Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return nil, err
	}

	items := make([]query.Record, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.Record())
	}
	return query.NewResult(items, total, q.Offset), nil
}

func (e *Executor) idField() string {
	if e.options.IDFieldName != "" {
		return e.options.IDFieldName
	}
	return query.FieldID
}

// buildWhere joins the text and filter conditions
func (e *Executor) buildWhere(q *query.Query, now time.Time) (string, []interface{}, error) {
	var (
		clauses []string
		args    []interface{}
	)
	for _, node := range []query.Node{q.Filter, q.Text} {
		if node == nil {
			continue
		}
		where, nodeArgs, err := e.buildFilter(node, now)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, "("+where+")")
		args = append(args, nodeArgs...)
	}
	return strings.Join(clauses, " AND "), args, nil
}

func (e *Executor) buildFilter(node query.Node, now time.Time) (string, []interface{}, error) {
	switch n := node.(type) {
	case *query.BinaryOpNode:
		left, leftArgs, err := e.buildFilter(n.Left, now)
		if err != nil {
			return "", nil, err
		}
		right, rightArgs, err := e.buildFilter(n.Right, now)
		if err != nil {
			return "", nil, err
		}

		args := append(leftArgs, rightArgs...)
		if n.Operator == query.BinaryOpOr {
			return fmt.Sprintf("(%s) OR (%s)", left, right), args, nil
		}
		return fmt.Sprintf("(%s) AND (%s)", left, right), args, nil

	case *query.NotNode:
		inner, args, err := e.buildFilter(n.Operand, now)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("NOT (%s)", inner), args, nil

	case *query.ComparisonNode:
		if n.Field == query.DefaultSearchField {
			return e.buildDefaultSearch(n)
		}
		if err := e.checkField(n.Field); err != nil {
			return "", nil, err
		}
		return e.buildComparison(n)

	case *query.RangeNode:
		if err := e.checkField(n.Field); err != nil {
			return "", nil, err
		}
		var (
			parts []string
			args  []interface{}
		)
		if n.Lower != nil {
			op := ">"
			if n.IncludeLower {
				op = ">="
			}
			parts = append(parts, fmt.Sprintf("%s %s ?", n.Field, op))
			args = append(args, convertValue(query.ResolveNow(n.Lower, now)))
		}
		if n.Upper != nil {
			op := "<"
			if n.IncludeUpper {
				op = "<="
			}
			parts = append(parts, fmt.Sprintf("%s %s ?", n.Field, op))
			args = append(args, convertValue(query.ResolveNow(n.Upper, now)))
		}
		if len(parts) == 0 {
			return "1 = 1", nil, nil
		}
		return strings.Join(parts, " AND "), args, nil

	default:
		return "", nil, query.ErrInvalidQuery
	}
}

func (e *Executor) buildDefaultSearch(n *query.ComparisonNode) (string, []interface{}, error) {
	var (
		parts []string
		args  []interface{}
	)
	for _, field := range e.options.DefaultSearchFields {
		if err := e.checkField(field); err != nil {
			return "", nil, err
		}
		part, partArgs, err := e.buildComparison(&query.ComparisonNode{Field: field, Operator: query.OpIContains, Value: n.Value})
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, "("+part+")")
		args = append(args, partArgs...)
	}
	if len(parts) == 0 {
		return "", nil, fmt.Errorf("%w: no default search fields", query.ErrInvalidQuery)
	}
	return strings.Join(parts, " OR "), args, nil
}

func (e *Executor) buildComparison(n *query.ComparisonNode) (string, []interface{}, error) {
	field := n.Field
	if query.IsTimeField(field) {
		return fmt.Sprintf("%s = ?", field), []interface{}{convertValue(n.Value)}, nil
	}

	value := escapeLike(fmt.Sprint(convertValue(n.Value)))
	// tags are stored as |a|b|, so a whole tag is matched between separators
	pre, post := "", ""
	if field == query.FieldTags {
		pre, post = "%"+tagSeparator, tagSeparator+"%"
	}

	switch n.Operator {
	case query.OpEqual:
		if field != query.FieldTags {
			return fmt.Sprintf("%s = ?", field), []interface{}{convertValue(n.Value)}, nil
		}
		return likeClause(field, false), []interface{}{pre + value + post}, nil
	case query.OpContains:
		return likeClause(field, false), []interface{}{"%" + value + "%"}, nil
	case query.OpIContains:
		return likeClause(field, true), []interface{}{"%" + value + "%"}, nil
	case query.OpStartsWith:
		return likeClause(field, false), []interface{}{pre + value + "%"}, nil
	case query.OpEndsWith:
		return likeClause(field, false), []interface{}{"%" + value + post}, nil
	}
	return "", nil, query.ErrInvalidQuery
}

func likeClause(field string, caseInsensitive bool) string {
	if caseInsensitive {
		return fmt.Sprintf(`LOWER(%s) LIKE LOWER(?) ESCAPE '\'`, field)
	}
	return fmt.Sprintf(`%s LIKE ? ESCAPE '\'`, field)
}

// checkField enforces the whitelist and rejects names that are not plain columns
func (e *Executor) checkField(field string) error {
	if !e.options.IsFieldAllowed(field) {
		return query.FieldNotAllowedError(field)
	}
	if _, isExtra := query.ExtraKey(field); isExtra {
		return query.NewFieldError(field, query.ErrUnsupportedQuery)
	}
	if !query.IsKnownField(field) || !isValidField(field) {
		return query.InvalidFieldNameError(field)
	}
	return nil
}

// isValidField validates field names to prevent SQL injection
// Only allows alphanumeric characters and underscores, must start with letter or underscore
func isValidField(field string) bool {
	if len(field) == 0 {
		return false
	}

	first := field[0]
	if !((first >= 'a' && first <= 'z') || (first >= 'A' && first <= 'Z') || first == '_') {
		return false
	}

	for i := 1; i < len(field); i++ {
		c := field[i]
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_') {
			return false
		}
	}

	return true
}

// convertValue converts query values to driver values
func convertValue(val interface{}) interface{} {
	switch v := val.(type) {
	case query.StringValue:
		return string(v)
	case query.DateTimeValue:
		return time.Time(v).UTC()
	default:
		return val
	}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
