package query

import (
	"strings"
	"time"
)

// NodeType represents the type of AST node
type NodeType int

const (
	NodeTypeBinaryOp NodeType = iota
	NodeTypeComparison
	NodeTypeRange
	NodeTypeNot
)

// Node is the interface that all AST nodes implement
type Node interface {
	Type() NodeType
}

// BinaryOperator represents a binary logical operator
type BinaryOperator int

const (
	// BinaryOpAnd represents the AND operator
	BinaryOpAnd BinaryOperator = iota
	// BinaryOpOr represents the OR operator
	BinaryOpOr
)

// String returns the string representation of BinaryOperator
func (bo BinaryOperator) String() string {
	switch bo {
	case BinaryOpOr:
		return "OR"
	default:
		return "AND"
	}
}

// BinaryOpNode represents a binary operation (AND, OR)
type BinaryOpNode struct {
	Operator BinaryOperator
	Left     Node
	Right    Node
}

func (n *BinaryOpNode) Type() NodeType { return NodeTypeBinaryOp }

// ComparisonNode represents a single field match.
// Field is DefaultSearchField for bare terms.
type ComparisonNode struct {
	Field    string
	Operator ComparisonOperator
	Value    interface{}
}

func (n *ComparisonNode) Type() NodeType { return NodeTypeComparison }

// RangeNode matches values between Lower and Upper. A nil bound is open.
type RangeNode struct {
	Field        string
	Lower        interface{}
	Upper        interface{}
	IncludeLower bool
	IncludeUpper bool
}

func (n *RangeNode) Type() NodeType { return NodeTypeRange }

// NotNode negates its operand.
type NotNode struct {
	Operand Node
}

func (n *NotNode) Type() NodeType { return NodeTypeNot }

// DefaultSearchField marks a bare term that searches the executor's default fields.
const DefaultSearchField = "__DEFAULT_SEARCH__"

// Value types for easier type assertion
type StringValue string
type DateTimeValue time.Time

// NowValue is the current instant, resolved by the executor when the query runs.
type NowValue struct{}

// ResolveNow replaces NowValue with the given instant and leaves other values untouched.
func ResolveNow(v interface{}, now time.Time) interface{} {
	if _, ok := v.(NowValue); ok {
		return DateTimeValue(now.UTC())
	}
	return v
}

// And joins two nodes, skipping nil operands.
func And(left, right Node) Node {
	switch {
	case left == nil:
		return right
	case right == nil:
		return left
	}
	return &BinaryOpNode{Operator: BinaryOpAnd, Left: left, Right: right}
}

// Or joins two nodes, skipping nil operands.
func Or(left, right Node) Node {
	switch {
	case left == nil:
		return right
	case right == nil:
		return left
	}
	return &BinaryOpNode{Operator: BinaryOpOr, Left: left, Right: right}
}

// Walk visits every node depth first. Returning false stops descent into children.
func Walk(node Node, fn func(Node) bool) {
	if node == nil || !fn(node) {
		return
	}
	switch n := node.(type) {
	case *BinaryOpNode:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	case *NotNode:
		Walk(n.Operand, fn)
	}
}

// SortOrder represents the sort order direction
type SortOrder int

const (
	// SortOrderAsc sorts in ascending order
	SortOrderAsc SortOrder = iota
	// SortOrderDesc sorts in descending order
	SortOrderDesc
)

// String returns the string representation of SortOrder
func (so SortOrder) String() string {
	if so == SortOrderDesc {
		return "desc"
	}
	return "asc"
}

// ParseSortOrder parses a string into a SortOrder enum value
// Returns SortOrderAsc as default for empty or invalid values
func ParseSortOrder(s string) SortOrder {
	if strings.EqualFold(strings.TrimSpace(s), "desc") {
		return SortOrderDesc
	}
	return SortOrderAsc
}

// Query is a backend-neutral search request for one page of records.
type Query struct {
	// Text is the free-text part of the request (caller q). Nil matches everything.
	Text Node
	// Filter restricts the result set. Nil matches everything.
	Filter Node
	// SortBy is empty when the executor's default order applies.
	SortBy    string
	SortOrder SortOrder
	RowCount  int
	Offset    int
}

// FilterExpression renders the filter in Solr syntax.
func (q *Query) FilterExpression() string {
	return Render(q.Filter, DialectSolr)
}

// SortClause renders the sort as "field order", or "" when unset.
func (q *Query) SortClause() string {
	if q.SortBy == "" {
		return ""
	}
	return q.SortBy + " " + q.SortOrder.String()
}
