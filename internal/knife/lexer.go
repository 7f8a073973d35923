package knife

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNewline
	tokIdent
	tokSymbol
	tokString
	tokInt
	tokLBracket
	tokRBracket
	tokLParen
	tokRParen
	tokComma
	tokAssign
	tokDot
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of file"
	case tokNewline:
		return "end of line"
	case tokIdent:
		return "identifier"
	case tokSymbol:
		return "symbol"
	case tokString:
		return "string"
	case tokInt:
		return "integer"
	case tokLBracket:
		return "'['"
	case tokRBracket:
		return "']'"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	case tokComma:
		return "','"
	case tokAssign:
		return "'='"
	case tokDot:
		return "'.'"
	default:
		return fmt.Sprintf("token(%d)", int(k))
	}
}

// stringPart is a literal chunk of a string or, when variable is set, a
// #{variable} interpolation.
type stringPart struct {
	literal  string
	variable string
}

type token struct {
	kind  tokenKind
	text  string
	parts []stringPart
	line  int
}

type lexer struct {
	src  string
	pos  int
	line int
}

func newLexer(src string) *lexer {
	return &lexer{src: src, line: 1}
}

func (l *lexer) errorf(format string, args ...any) error {
	return &ParseError{Line: l.line, Msg: fmt.Sprintf(format, args...)}
}

func (l *lexer) peek(offset int) byte {
	if l.pos+offset >= len(l.src) {
		return 0
	}
	return l.src[l.pos+offset]
}

func (l *lexer) skipBlank() {
	for l.pos < len(l.src) {
		switch c := l.src[l.pos]; {
		case c == ' ' || c == '\t' || c == '\r':
			l.pos++
		case c == '\\' && l.peek(1) == '\n':
			l.pos += 2
			l.line++
		case c == '#':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
		default:
			return
		}
	}
}

func (l *lexer) next() (token, error) {
	l.skipBlank()
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, line: l.line}, nil
	}

	line := l.line
	c := l.src[l.pos]
	single := func(kind tokenKind) (token, error) {
		l.pos++
		return token{kind: kind, text: string(c), line: line}, nil
	}

	switch {
	case c == '\n' || c == ';':
		l.pos++
		if c == '\n' {
			l.line++
		}
		return token{kind: tokNewline, line: line}, nil
	case c == '[':
		return single(tokLBracket)
	case c == ']':
		return single(tokRBracket)
	case c == '(':
		return single(tokLParen)
	case c == ')':
		return single(tokRParen)
	case c == ',':
		return single(tokComma)
	case c == '=':
		return single(tokAssign)
	case c == '.':
		return single(tokDot)
	case c == ':' && isIdentStart(l.peek(1)):
		l.pos++
		return token{kind: tokSymbol, text: l.readIdent(), line: line}, nil
	case c == '\'':
		return l.readSingleQuoted()
	case c == '"':
		return l.readDoubleQuoted()
	case isDigit(c) || (c == '-' && isDigit(l.peek(1))):
		return l.readInt(), nil
	case isIdentStart(c):
		return token{kind: tokIdent, text: l.readIdent(), line: line}, nil
	default:
		return token{}, l.errorf("unexpected character %q", c)
	}
}

func (l *lexer) readIdent() string {
	start := l.pos
	for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
		l.pos++
	}
	if l.pos < len(l.src) && (l.src[l.pos] == '?' || l.src[l.pos] == '!') {
		l.pos++
	}
	return l.src[start:l.pos]
}

func (l *lexer) readInt() token {
	start := l.pos
	l.pos++
	for l.pos < len(l.src) && (isDigit(l.src[l.pos]) || l.src[l.pos] == '_') {
		l.pos++
	}
	return token{kind: tokInt, text: l.src[start:l.pos], line: l.line}
}

func (l *lexer) readSingleQuoted() (token, error) {
	line := l.line
	l.pos++
	var sb strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '\'':
			l.pos++
			return token{kind: tokString, parts: []stringPart{{literal: sb.String()}}, line: line}, nil
		case c == '\\' && (l.peek(1) == '\'' || l.peek(1) == '\\'):
			sb.WriteByte(l.peek(1))
			l.pos += 2
		default:
			if c == '\n' {
				l.line++
			}
			sb.WriteByte(c)
			l.pos++
		}
	}
	return token{}, &ParseError{Line: line, Msg: "unterminated string"}
}

func (l *lexer) readDoubleQuoted() (token, error) {
	line := l.line
	l.pos++
	var (
		parts []stringPart
		sb    strings.Builder
	)
	flush := func() {
		if sb.Len() > 0 {
			parts = append(parts, stringPart{literal: sb.String()})
			sb.Reset()
		}
	}

	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '"':
			l.pos++
			flush()
			if len(parts) == 0 {
				parts = []stringPart{{}}
			}
			return token{kind: tokString, parts: parts, line: line}, nil
		case c == '\\' && l.pos+1 < len(l.src):
			sb.WriteByte(unescape(l.peek(1)))
			if l.peek(1) == '\n' {
				l.line++
			}
			l.pos += 2
		case c == '#' && l.peek(1) == '{':
			end := strings.IndexByte(l.src[l.pos:], '}')
			if end < 0 {
				return token{}, &ParseError{Line: l.line, Msg: "unterminated interpolation"}
			}
			name := strings.TrimSpace(l.src[l.pos+2 : l.pos+end])
			if !isIdentifier(name) {
				return token{}, &ParseError{Line: l.line, Msg: fmt.Sprintf("unsupported interpolation %q", name)}
			}
			flush()
			parts = append(parts, stringPart{variable: name})
			l.pos += end + 1
		default:
			if c == '\n' {
				l.line++
			}
			sb.WriteByte(c)
			l.pos++
		}
	}
	return token{}, &ParseError{Line: line, Msg: "unterminated string"}
}

func unescape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	case '0':
		return 0
	default:
		return c
	}
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isIdentifier(s string) bool {
	if s == "" || !isIdentStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isIdentPart(s[i]) {
			return false
		}
	}
	return true
}
