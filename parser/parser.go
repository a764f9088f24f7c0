package parser

import (
	"fmt"

	"github.com/hadi77ir/go-catalog/query"
)

// matchAll stands for *:* while parsing; it never leaves the parser.
type matchAll struct{}

func (matchAll) Type() query.NodeType { return query.NodeType(-1) }

// Parser parses Lucene-style filter strings into query nodes.
//
// Supported: field:value, field:"phrase", field:(a OR b), ranges with
// [ ] { } and * bounds, AND/OR/NOT and && || ! -, grouping, implicit AND,
// prefix/suffix/infix '*' wildcards and *:*. Bare terms search the
// executor's default fields.
type Parser struct {
	lexer   *Lexer
	curTok  Token
	peekTok Token
}

// NewParser creates a new parser for the given input
func NewParser(input string) (*Parser, error) {
	p := &Parser{lexer: NewLexer(input)}

	// Read two tokens to initialize curTok and peekTok
	if err := p.nextToken(); err != nil {
		return nil, err
	}
	if err := p.nextToken(); err != nil {
		return nil, err
	}

	return p, nil
}

// Parse parses a filter string. An empty input or *:* yields a nil node.
func Parse(input string) (query.Node, error) {
	p, err := NewParser(input)
	if err != nil {
		return nil, err
	}
	return p.Parse()
}

// nextToken advances the parser to the next token
func (p *Parser) nextToken() error {
	p.curTok = p.peekTok
	tok, err := p.lexer.NextToken()
	if err != nil {
		return err
	}
	p.peekTok = tok
	return nil
}

// Parse parses the input and returns the normalized filter tree
func (p *Parser) Parse() (query.Node, error) {
	if p.curTok.Type == TokenEOF {
		return nil, nil
	}

	node, err := p.parseOr(query.DefaultSearchField)
	if err != nil {
		return nil, err
	}
	if p.curTok.Type != TokenEOF {
		return nil, p.unexpected()
	}
	if _, ok := node.(matchAll); ok {
		return nil, nil
	}
	return query.Normalize(node)
}

func (p *Parser) unexpected() error {
	return fmt.Errorf("%w: unexpected %s at position %d", query.ErrInvalidQuery, p.curTok.Type, p.curTok.Pos)
}

func (p *Parser) expect(t TokenType) error {
	if p.curTok.Type != t {
		return fmt.Errorf("%w: expected %s at position %d, got %s", query.ErrInvalidQuery, t, p.curTok.Pos, p.curTok.Type)
	}
	return p.nextToken()
}

// parseOr parses OR expressions. field is the field bare terms bind to.
func (p *Parser) parseOr(field string) (query.Node, error) {
	left, err := p.parseAnd(field)
	if err != nil {
		return nil, err
	}

	for p.curTok.Type == TokenOr {
		if err := p.nextToken(); err != nil {
			return nil, err
		}
		if p.curTok.Type == TokenEOF || p.curTok.Type == TokenRightParen {
			return nil, fmt.Errorf("%w: incomplete OR expression at position %d", query.ErrInvalidQuery, p.curTok.Pos)
		}
		right, err := p.parseAnd(field)
		if err != nil {
			return nil, err
		}
		left = combine(query.BinaryOpOr, left, right)
	}

	return left, nil
}

// parseAnd parses explicit and implicit AND expressions
func (p *Parser) parseAnd(field string) (query.Node, error) {
	left, err := p.parseUnary(field)
	if err != nil {
		return nil, err
	}

	for {
		switch p.curTok.Type {
		case TokenAnd:
			if err := p.nextToken(); err != nil {
				return nil, err
			}
			if p.curTok.Type == TokenEOF || p.curTok.Type == TokenRightParen {
				return nil, fmt.Errorf("%w: incomplete AND expression at position %d", query.ErrInvalidQuery, p.curTok.Pos)
			}
		case TokenTerm, TokenString, TokenLeftParen, TokenNot, TokenPlus:
			// implicit AND
		default:
			return left, nil
		}

		right, err := p.parseUnary(field)
		if err != nil {
			return nil, err
		}
		left = combine(query.BinaryOpAnd, left, right)
	}
}

func (p *Parser) parseUnary(field string) (query.Node, error) {
	switch p.curTok.Type {
	case TokenNot:
		if err := p.nextToken(); err != nil {
			return nil, err
		}
		operand, err := p.parseUnary(field)
		if err != nil {
			return nil, err
		}
		if _, ok := operand.(matchAll); ok {
			return nil, fmt.Errorf("%w: negated match-all matches nothing", query.ErrInvalidQuery)
		}
		return &query.NotNode{Operand: operand}, nil
	case TokenPlus:
		if err := p.nextToken(); err != nil {
			return nil, err
		}
		return p.parseUnary(field)
	}
	return p.parsePrimary(field)
}

func (p *Parser) parsePrimary(field string) (query.Node, error) {
	tok := p.curTok
	switch tok.Type {
	case TokenLeftParen:
		if err := p.nextToken(); err != nil {
			return nil, err
		}
		expr, err := p.parseOr(field)
		if err != nil {
			return nil, err
		}
		if err := p.expect(TokenRightParen); err != nil {
			return nil, err
		}
		return expr, nil

	case TokenString:
		if err := p.nextToken(); err != nil {
			return nil, err
		}
		return &query.ComparisonNode{Field: field, Operator: matchOperator(field), Value: query.StringValue(tok.Value)}, nil

	case TokenTerm:
		if p.peekTok.Type == TokenColon {
			if tok.Wildcard || (tok.TrailingStar && tok.Value != "") {
				return nil, fmt.Errorf("%w: wildcard field name at position %d", query.ErrInvalidQuery, tok.Pos)
			}
			name := tok.Value
			if tok.LeadingStar {
				name = "*"
			}
			if err := p.nextToken(); err != nil {
				return nil, err
			}
			if err := p.nextToken(); err != nil {
				return nil, err
			}
			return p.parseFieldValue(name)
		}
		if err := p.nextToken(); err != nil {
			return nil, err
		}
		return termNode(field, tok)
	}

	return nil, p.unexpected()
}

// parseFieldValue parses what follows "field:"
func (p *Parser) parseFieldValue(field string) (query.Node, error) {
	tok := p.curTok

	if field == "*" {
		if tok.Type != TokenTerm || !tok.LeadingStar || tok.Value != "" {
			return nil, fmt.Errorf("%w: only *:* may use a wildcard field at position %d", query.ErrInvalidQuery, tok.Pos)
		}
		if err := p.nextToken(); err != nil {
			return nil, err
		}
		return matchAll{}, nil
	}

	switch tok.Type {
	case TokenLeftParen:
		if err := p.nextToken(); err != nil {
			return nil, err
		}
		expr, err := p.parseOr(field)
		if err != nil {
			return nil, err
		}
		if err := p.expect(TokenRightParen); err != nil {
			return nil, err
		}
		return expr, nil
	case TokenRangeStart:
		return p.parseRange(field)
	case TokenString:
		if err := p.nextToken(); err != nil {
			return nil, err
		}
		return &query.ComparisonNode{Field: field, Operator: query.OpEqual, Value: query.StringValue(tok.Value)}, nil
	case TokenTerm:
		if err := p.nextToken(); err != nil {
			return nil, err
		}
		return termNode(field, tok)
	}

	return nil, fmt.Errorf("%w: expected value for %s at position %d", query.ErrInvalidQuery, field, tok.Pos)
}

// parseRange parses [lower TO upper] with any mix of bracket styles
func (p *Parser) parseRange(field string) (query.Node, error) {
	node := &query.RangeNode{Field: field, IncludeLower: p.curTok.Inclusive}
	if err := p.nextToken(); err != nil {
		return nil, err
	}

	lower, err := p.parseBound()
	if err != nil {
		return nil, err
	}
	if err := p.expect(TokenTo); err != nil {
		return nil, err
	}
	upper, err := p.parseBound()
	if err != nil {
		return nil, err
	}
	if p.curTok.Type != TokenRangeEnd {
		return nil, fmt.Errorf("%w: expected range end at position %d", query.ErrInvalidQuery, p.curTok.Pos)
	}
	node.IncludeUpper = p.curTok.Inclusive
	if err := p.nextToken(); err != nil {
		return nil, err
	}

	node.Lower, node.Upper = lower, upper
	return node, nil
}

func (p *Parser) parseBound() (interface{}, error) {
	tok := p.curTok
	var value interface{}
	switch {
	case tok.Type == TokenString:
		value = query.StringValue(tok.Value)
	case tok.Type == TokenTerm && tok.LeadingStar && !tok.TrailingStar && tok.Value == "":
		value = nil
	case tok.Type == TokenTerm && !tok.LeadingStar && !tok.TrailingStar && !tok.Wildcard:
		value = literalValue(tok.Value)
	default:
		return nil, fmt.Errorf("%w: invalid range bound at position %d", query.ErrInvalidQuery, tok.Pos)
	}
	if err := p.nextToken(); err != nil {
		return nil, err
	}
	return value, nil
}

// termNode turns an unquoted term into a comparison on field
func termNode(field string, tok Token) (query.Node, error) {
	switch {
	case tok.Wildcard:
		return nil, fmt.Errorf("%w: wildcards are only supported at the start or end of a term (position %d)", query.ErrUnsupportedQuery, tok.Pos)
	case tok.Value == "" && (tok.LeadingStar || tok.TrailingStar):
		if field == query.DefaultSearchField {
			return matchAll{}, nil
		}
		return nil, fmt.Errorf("%w: %s:* is not supported", query.ErrUnsupportedQuery, field)
	case tok.LeadingStar && tok.TrailingStar:
		op := query.OpContains
		if field == query.DefaultSearchField {
			op = query.OpIContains
		}
		return &query.ComparisonNode{Field: field, Operator: op, Value: query.StringValue(tok.Value)}, nil
	case tok.LeadingStar:
		return &query.ComparisonNode{Field: field, Operator: query.OpEndsWith, Value: query.StringValue(tok.Value)}, nil
	case tok.TrailingStar:
		return &query.ComparisonNode{Field: field, Operator: query.OpStartsWith, Value: query.StringValue(tok.Value)}, nil
	}

	value := literalValue(tok.Value)
	if field == query.DefaultSearchField {
		value = query.StringValue(tok.Value)
	}
	return &query.ComparisonNode{Field: field, Operator: matchOperator(field), Value: value}, nil
}

func literalValue(s string) interface{} {
	if s == "NOW" {
		return query.NowValue{}
	}
	return query.StringValue(s)
}

func matchOperator(field string) query.ComparisonOperator {
	if field == query.DefaultSearchField {
		return query.OpIContains
	}
	return query.OpEqual
}

// combine joins two operands, folding away match-all.
func combine(op query.BinaryOperator, left, right query.Node) query.Node {
	_, leftAll := left.(matchAll)
	_, rightAll := right.(matchAll)
	switch {
	case op == query.BinaryOpOr && (leftAll || rightAll):
		return matchAll{}
	case leftAll:
		return right
	case rightAll:
		return left
	}
	return &query.BinaryOpNode{Operator: op, Left: left, Right: right}
}
