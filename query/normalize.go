package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// ParseTime parses an ISO-8601 style date or date-time. Values without a
// zone are taken as UTC; the result is always in UTC.
func ParseTime(s string) (time.Time, error) {
	t, err := cast.ToTimeInDefaultLocationE(strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// Normalize checks field names against the record schema and turns literal
// values of time fields into DateTimeValue. The input tree is not modified.
func Normalize(node Node) (Node, error) {
	if node == nil {
		return nil, nil
	}
	switch n := node.(type) {
	case *BinaryOpNode:
		left, err := Normalize(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := Normalize(n.Right)
		if err != nil {
			return nil, err
		}
		return &BinaryOpNode{Operator: n.Operator, Left: left, Right: right}, nil
	case *NotNode:
		operand, err := Normalize(n.Operand)
		if err != nil {
			return nil, err
		}
		return &NotNode{Operand: operand}, nil
	case *ComparisonNode:
		return normalizeComparison(n)
	case *RangeNode:
		return normalizeRange(n)
	default:
		return nil, fmt.Errorf("%w: unknown node %T", ErrInvalidQuery, node)
	}
}

func normalizeComparison(n *ComparisonNode) (Node, error) {
	out := *n
	if n.Field != DefaultSearchField && !IsKnownField(n.Field) {
		return nil, InvalidFieldNameError(n.Field)
	}
	if !IsTimeField(n.Field) {
		out.Value = literal(n.Value)
		return &out, nil
	}
	if n.Operator != OpEqual {
		return nil, NewFieldError(n.Field, fmt.Errorf("%w: wildcards are not supported on dates", ErrInvalidQuery))
	}
	v, err := timeValue(n.Field, n.Value)
	if err != nil {
		return nil, err
	}
	out.Value = v
	return &out, nil
}

func normalizeRange(n *RangeNode) (Node, error) {
	if !IsKnownField(n.Field) {
		return nil, InvalidFieldNameError(n.Field)
	}
	if n.Field == FieldTags {
		return nil, NewFieldError(n.Field, fmt.Errorf("%w: ranges are not supported on tags", ErrInvalidQuery))
	}
	out := *n
	if !IsTimeField(n.Field) {
		if n.Lower != nil {
			out.Lower = literal(n.Lower)
		}
		if n.Upper != nil {
			out.Upper = literal(n.Upper)
		}
		return &out, nil
	}
	var err error
	if n.Lower != nil {
		if out.Lower, err = timeValue(n.Field, n.Lower); err != nil {
			return nil, err
		}
	}
	if n.Upper != nil {
		if out.Upper, err = timeValue(n.Field, n.Upper); err != nil {
			return nil, err
		}
	}
	return &out, nil
}

// literal turns a value for a string field back into its text.
func literal(v interface{}) interface{} {
	switch val := v.(type) {
	case NowValue:
		return StringValue("NOW")
	case DateTimeValue:
		return StringValue(time.Time(val).UTC().Format(time.RFC3339Nano))
	}
	return v
}

func timeValue(field string, v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case NowValue, DateTimeValue:
		return val, nil
	case StringValue:
		t, err := ParseTime(string(val))
		if err != nil {
			return nil, NewFieldError(field, fmt.Errorf("%w: invalid date %q", ErrInvalidQuery, string(val)))
		}
		return DateTimeValue(t), nil
	default:
		return nil, NewFieldError(field, fmt.Errorf("%w: unexpected value %v", ErrInvalidQuery, v))
	}
}

// ParseSort parses a sort clause such as "metadata_modified desc".
// An empty clause yields an empty field.
func ParseSort(clause string) (string, SortOrder, error) {
	parts := strings.Fields(clause)
	switch {
	case len(parts) == 0:
		return "", SortOrderAsc, nil
	case len(parts) > 2 || strings.Contains(clause, ","):
		return "", SortOrderAsc, fmt.Errorf("%w: only one sort field is supported", ErrInvalidQuery)
	}
	field := parts[0]
	if !IsSortable(field) {
		return "", SortOrderAsc, InvalidFieldNameError(field)
	}
	if len(parts) == 1 {
		return field, SortOrderAsc, nil
	}
	switch strings.ToLower(parts[1]) {
	case "asc":
		return field, SortOrderAsc, nil
	case "desc":
		return field, SortOrderDesc, nil
	}
	return "", SortOrderAsc, fmt.Errorf("%w: unknown sort order %q", ErrInvalidQuery, parts[1])
}
