package query

import (
	"strings"
	"time"
)

// Dialect selects the flavour of Lucene syntax produced by Render.
type Dialect int

const (
	// DialectSolr writes NOW for the current instant
	DialectSolr Dialect = iota
	// DialectElastic writes now, as Elasticsearch and OpenSearch query_string expect
	DialectElastic
)

const luceneSpecial = `+-&|!(){}[]^"~*?:\/`

// Render writes node as a Lucene query string. A nil node matches all documents.
func Render(node Node, d Dialect) string {
	if node == nil {
		return "*:*"
	}
	var b strings.Builder
	render(&b, node, d)
	return b.String()
}

func render(b *strings.Builder, node Node, d Dialect) {
	switch n := node.(type) {
	case *BinaryOpNode:
		renderOperand(b, n.Left, n.Operator, d)
		b.WriteString(" " + n.Operator.String() + " ")
		renderOperand(b, n.Right, n.Operator, d)
	case *NotNode:
		b.WriteString("NOT ")
		if _, ok := n.Operand.(*BinaryOpNode); ok {
			b.WriteByte('(')
			render(b, n.Operand, d)
			b.WriteByte(')')
			return
		}
		render(b, n.Operand, d)
	case *ComparisonNode:
		if n.Field != DefaultSearchField {
			b.WriteString(n.Field)
			b.WriteByte(':')
		}
		b.WriteString(renderMatch(n, d))
	case *RangeNode:
		b.WriteString(n.Field)
		b.WriteByte(':')
		if n.IncludeLower {
			b.WriteByte('[')
		} else {
			b.WriteByte('{')
		}
		b.WriteString(renderBound(n.Lower, d))
		b.WriteString(" TO ")
		b.WriteString(renderBound(n.Upper, d))
		if n.IncludeUpper {
			b.WriteByte(']')
		} else {
			b.WriteByte('}')
		}
	}
}

func renderOperand(b *strings.Builder, node Node, parent BinaryOperator, d Dialect) {
	if bin, ok := node.(*BinaryOpNode); ok && bin.Operator != parent {
		b.WriteByte('(')
		render(b, node, d)
		b.WriteByte(')')
		return
	}
	render(b, node, d)
}

func renderMatch(n *ComparisonNode, d Dialect) string {
	s, isString := n.Value.(StringValue)
	switch {
	case !isString:
		return renderValue(n.Value, d, true)
	case n.Operator == OpStartsWith:
		return escapeTerm(string(s)) + "*"
	case n.Operator == OpEndsWith:
		return "*" + escapeTerm(string(s))
	case (n.Operator == OpContains || n.Operator == OpIContains) && n.Field != DefaultSearchField:
		return "*" + escapeTerm(string(s)) + "*"
	}
	return renderValue(n.Value, d, true)
}

func renderBound(v interface{}, d Dialect) string {
	if v == nil {
		return "*"
	}
	return renderValue(v, d, false)
}

func renderValue(v interface{}, d Dialect, quoteDates bool) string {
	switch val := v.(type) {
	case NowValue:
		if d == DialectElastic {
			return "now"
		}
		return "NOW"
	case DateTimeValue:
		s := FormatTime(time.Time(val))
		if quoteDates {
			return `"` + s + `"`
		}
		return s
	case StringValue:
		return formatString(string(val))
	}
	return ""
}

// FormatTime writes an instant as an ISO-8601 UTC timestamp with a Z suffix.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatString(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\r\n") || s == "AND" || s == "OR" || s == "NOT" || s == "TO" {
		return quote(s)
	}
	return escapeTerm(s)
}

func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

func escapeTerm(s string) string {
	var b strings.Builder
	for _, ch := range s {
		if strings.ContainsRune(luceneSpecial, ch) {
			b.WriteByte('\\')
		}
		b.WriteRune(ch)
	}
	return b.String()
}
