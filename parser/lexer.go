package parser

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hadi77ir/go-catalog/query"
)

// TokenType represents the type of token
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenTerm
	TokenString
	TokenColon
	TokenAnd
	TokenOr
	TokenNot
	TokenPlus
	TokenTo
	TokenLeftParen
	TokenRightParen
	TokenRangeStart
	TokenRangeEnd
)

var tokenNames = map[TokenType]string{
	TokenEOF:        "end of input",
	TokenTerm:       "term",
	TokenString:     "phrase",
	TokenColon:      "':'",
	TokenAnd:        "AND",
	TokenOr:         "OR",
	TokenNot:        "NOT",
	TokenPlus:       "'+'",
	TokenTo:         "TO",
	TokenLeftParen:  "'('",
	TokenRightParen: "')'",
	TokenRangeStart: "range start",
	TokenRangeEnd:   "range end",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("token(%d)", int(t))
}

// Token represents a lexical token
type Token struct {
	Type  TokenType
	Value string
	Pos   int

	// LeadingStar and TrailingStar are set for unescaped '*' at either end
	// of a term; Value holds the term without them.
	LeadingStar  bool
	TrailingStar bool
	// Wildcard is set for unescaped '*' or '?' anywhere else.
	Wildcard bool
	// Inclusive is set for '[' and ']' range brackets.
	Inclusive bool
}

// Lexer tokenizes a Lucene-style query string
type Lexer struct {
	input      string
	pos        int
	width      int
	ch         rune
	rangeDepth int
	prev       TokenType
}

// NewLexer creates a new lexer for the given input
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input, prev: TokenEOF}
	l.readChar()
	return l
}

// readChar reads the next character
func (l *Lexer) readChar() {
	l.pos += l.width
	if l.pos >= len(l.input) {
		l.ch = 0
		l.width = 0
		return
	}
	l.ch, l.width = utf8.DecodeRuneInString(l.input[l.pos:])
}

// peekChar looks at the next character without advancing
func (l *Lexer) peekChar() rune {
	next := l.pos + l.width
	if next >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[next:])
	return r
}

func (l *Lexer) skipWhitespace() {
	for unicode.IsSpace(l.ch) {
		l.readChar()
	}
}

// NextToken returns the next token from the input
func (l *Lexer) NextToken() (Token, error) {
	tok, err := l.next()
	if err == nil {
		l.prev = tok.Type
	}
	return tok, err
}

func (l *Lexer) next() (Token, error) {
	l.skipWhitespace()
	start := l.pos

	single := func(t TokenType) (Token, error) {
		tok := Token{Type: t, Value: string(l.ch), Pos: start}
		l.readChar()
		return tok, nil
	}

	switch l.ch {
	case 0:
		if l.rangeDepth > 0 {
			return Token{}, fmt.Errorf("%w: unterminated range", query.ErrInvalidQuery)
		}
		return Token{Type: TokenEOF, Pos: start}, nil
	case '"':
		return l.readString()
	case '[', '{':
		if l.rangeDepth > 0 {
			return Token{}, fmt.Errorf("%w: nested range at position %d", query.ErrInvalidQuery, start)
		}
		l.rangeDepth++
		tok, _ := single(TokenRangeStart)
		tok.Inclusive = tok.Value == "["
		return tok, nil
	case ']', '}':
		if l.rangeDepth == 0 {
			return Token{}, fmt.Errorf("%w: unexpected '%c' at position %d", query.ErrInvalidQuery, l.ch, start)
		}
		l.rangeDepth--
		tok, _ := single(TokenRangeEnd)
		tok.Inclusive = tok.Value == "]"
		return tok, nil
	}

	if l.rangeDepth == 0 {
		switch l.ch {
		case '(':
			return single(TokenLeftParen)
		case ')':
			return single(TokenRightParen)
		case ':':
			return single(TokenColon)
		case '&', '|':
			if l.peekChar() != l.ch {
				return Token{}, fmt.Errorf("%w: unexpected '%c' at position %d", query.ErrInvalidQuery, l.ch, start)
			}
			t := TokenAnd
			if l.ch == '|' {
				t = TokenOr
			}
			l.readChar()
			l.readChar()
			return Token{Type: t, Value: l.input[start:l.pos], Pos: start}, nil
		case '!':
			return single(TokenNot)
		case '-', '+':
			if l.prev != TokenColon && l.peekChar() != 0 && !unicode.IsSpace(l.peekChar()) {
				if l.ch == '-' {
					return single(TokenNot)
				}
				return single(TokenPlus)
			}
		}
	}

	return l.readTerm()
}

func (l *Lexer) isTermEnd(ch rune) bool {
	if ch == 0 || unicode.IsSpace(ch) {
		return true
	}
	if l.rangeDepth > 0 {
		return ch == ']' || ch == '}'
	}
	return strings.ContainsRune(`()[]{}":`, ch)
}

// readTerm reads an unquoted term, resolving backslash escapes
func (l *Lexer) readTerm() (Token, error) {
	tok := Token{Type: TokenTerm, Pos: l.pos}
	var sb strings.Builder
	escapedAny := false
	first := true
	pendingStar := false

	for !l.isTermEnd(l.ch) {
		if l.ch == '\\' {
			l.readChar()
			if l.ch == 0 {
				return Token{}, fmt.Errorf("%w: dangling escape at position %d", query.ErrInvalidQuery, l.pos)
			}
			if pendingStar {
				tok.Wildcard = true
				sb.WriteByte('*')
				pendingStar = false
			}
			sb.WriteRune(l.ch)
			escapedAny = true
			first = false
			l.readChar()
			continue
		}
		switch l.ch {
		case '*':
			if pendingStar {
				tok.Wildcard = true
				sb.WriteByte('*')
			}
			if first {
				tok.LeadingStar = true
			} else {
				pendingStar = true
			}
		case '?':
			tok.Wildcard = true
			sb.WriteRune(l.ch)
		default:
			if pendingStar {
				tok.Wildcard = true
				sb.WriteByte('*')
				pendingStar = false
			}
			sb.WriteRune(l.ch)
		}
		first = false
		l.readChar()
	}
	tok.TrailingStar = pendingStar
	tok.Value = sb.String()

	if !escapedAny && !tok.LeadingStar && !tok.TrailingStar && !tok.Wildcard {
		switch tok.Value {
		case "AND":
			if l.rangeDepth == 0 {
				tok.Type = TokenAnd
			}
		case "OR":
			if l.rangeDepth == 0 {
				tok.Type = TokenOr
			}
		case "NOT":
			if l.rangeDepth == 0 {
				tok.Type = TokenNot
			}
		case "TO":
			if l.rangeDepth > 0 {
				tok.Type = TokenTo
			}
		}
	}
	return tok, nil
}

// readString reads a quoted phrase
func (l *Lexer) readString() (Token, error) {
	startPos := l.pos
	l.readChar()

	var sb strings.Builder
	for l.ch != '"' && l.ch != 0 {
		if l.ch == '\\' {
			l.readChar()
			if l.ch == 0 {
				break
			}
		}
		sb.WriteRune(l.ch)
		l.readChar()
	}

	if l.ch == 0 {
		return Token{}, fmt.Errorf("%w: unterminated string at position %d", query.ErrInvalidQuery, startPos)
	}

	l.readChar() // consume closing quote
	return Token{Type: TokenString, Value: sb.String(), Pos: startPos}, nil
}

// AllTokens returns all tokens from the input (useful for debugging)
func (l *Lexer) AllTokens() ([]Token, error) {
	var tokens []Token
	for {
		tok, err := l.NextToken()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			break
		}
	}
	return tokens, nil
}
