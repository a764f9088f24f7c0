package query

// ComparisonOperator represents how a ComparisonNode matches its value
type ComparisonOperator int

const (
	// OpEqual matches the exact value (any element for multi-valued fields)
	OpEqual ComparisonOperator = iota

	// String matching operators
	OpContains
	OpIContains
	OpStartsWith
	OpEndsWith
)

// String returns the string representation of ComparisonOperator
func (co ComparisonOperator) String() string {
	switch co {
	case OpContains:
		return "CONTAINS"
	case OpIContains:
		return "ICONTAINS"
	case OpStartsWith:
		return "STARTS_WITH"
	case OpEndsWith:
		return "ENDS_WITH"
	default:
		return "="
	}
}
