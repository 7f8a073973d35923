package knife

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type valueKind int

const (
	kindString valueKind = iota
	kindSymbol
	kindInt
	kindBool
	kindNil
	kindConst
	kindList
)

func (k valueKind) String() string {
	switch k {
	case kindString:
		return "string"
	case kindSymbol:
		return "symbol"
	case kindInt:
		return "integer"
	case kindBool:
		return "boolean"
	case kindNil:
		return "nil"
	case kindConst:
		return "constant"
	case kindList:
		return "array"
	default:
		return "value"
	}
}

// value is a parsed literal with variables already substituted.
type value struct {
	kind  valueKind
	str   string
	num   int64
	truth bool
	list  []value
	line  int
}

type declaration struct {
	value value
	line  int
}

type parser struct {
	lex     *lexer
	tok     token
	baseDir string
	key     string
	vars    map[string]string
	decls   map[string]declaration
}

// parse reads every statement of src. Variables bound to File.dirname(__FILE__)
// or __dir__ resolve to baseDir.
func parse(src, baseDir string) (map[string]declaration, error) {
	p := &parser{
		lex:     newLexer(src),
		baseDir: baseDir,
		vars:    make(map[string]string),
		decls:   make(map[string]declaration),
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	for {
		if err := p.skipNewlines(); err != nil {
			return nil, err
		}
		if p.tok.kind == tokEOF {
			return p.decls, nil
		}
		if err := p.statement(); err != nil {
			return nil, err
		}
	}
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		var perr *ParseError
		if errors.As(err, &perr) && perr.Key == "" {
			perr.Key = p.key
		}
		return err
	}
	p.tok = tok
	return nil
}

func (p *parser) skipNewlines() error {
	for p.tok.kind == tokNewline {
		if err := p.advance(); err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) errorf(format string, args ...any) error {
	return &ParseError{Key: p.key, Line: p.tok.line, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) expect(kind tokenKind) error {
	if p.tok.kind != kind {
		return p.errorf("expected %s, got %s", kind, p.tok.kind)
	}
	return p.advance()
}

func (p *parser) statement() error {
	if p.tok.kind != tokIdent {
		p.key = ""
		return p.errorf("expected a settings key, got %s", p.tok.kind)
	}
	name, line := p.tok.text, p.tok.line
	p.key = name
	defer func() { p.key = "" }()

	if err := p.advance(); err != nil {
		return err
	}

	if p.tok.kind == tokAssign {
		if err := p.advance(); err != nil {
			return err
		}
		v, err := p.parseValue()
		if err != nil {
			return err
		}
		if v.kind != kindString {
			return &ParseError{Key: name, Line: line, Msg: fmt.Sprintf("variables must be strings, got %s", v.kind)}
		}
		p.vars[name] = v.str
		return p.endStatement()
	}

	if !IsKnownKey(name) {
		return &ParseError{Key: name, Line: line, Msg: "unknown key"}
	}

	var (
		v   value
		err error
	)
	if p.tok.kind == tokLParen {
		v, err = p.parseParenthesized()
	} else {
		v, err = p.parseValue()
	}
	if err != nil {
		return err
	}
	p.decls[name] = declaration{value: v, line: line}
	return p.endStatement()
}

func (p *parser) endStatement() error {
	switch p.tok.kind {
	case tokNewline:
		// The next token belongs to the following statement.
		p.key = ""
		return p.advance()
	case tokEOF:
		return nil
	default:
		return p.errorf("unexpected %s after value", p.tok.kind)
	}
}

func (p *parser) parseParenthesized() (value, error) {
	if err := p.expect(tokLParen); err != nil {
		return value{}, err
	}
	if err := p.skipNewlines(); err != nil {
		return value{}, err
	}
	v, err := p.parseValue()
	if err != nil {
		return value{}, err
	}
	if err := p.skipNewlines(); err != nil {
		return value{}, err
	}
	if err := p.expect(tokRParen); err != nil {
		return value{}, err
	}
	return v, nil
}

func (p *parser) parseValue() (value, error) {
	tok := p.tok
	switch tok.kind {
	case tokString:
		s, err := p.interpolate(tok)
		if err != nil {
			return value{}, err
		}
		return value{kind: kindString, str: s, line: tok.line}, p.advance()
	case tokSymbol:
		return value{kind: kindSymbol, str: tok.text, line: tok.line}, p.advance()
	case tokInt:
		n, err := strconv.ParseInt(strings.ReplaceAll(tok.text, "_", ""), 10, 64)
		if err != nil {
			return value{}, p.errorf("malformed integer %q", tok.text)
		}
		return value{kind: kindInt, num: n, line: tok.line}, p.advance()
	case tokLBracket:
		return p.parseList()
	case tokIdent:
		return p.parseIdentValue()
	default:
		return value{}, p.errorf("expected a value, got %s", tok.kind)
	}
}

func (p *parser) parseList() (value, error) {
	line := p.tok.line
	items, err := p.parseSeq(tokLBracket, tokRBracket)
	if err != nil {
		return value{}, err
	}
	if items == nil {
		items = []value{}
	}
	return value{kind: kindList, list: items, line: line}, nil
}

func (p *parser) parseIdentValue() (value, error) {
	tok := p.tok
	switch tok.text {
	case "STDOUT", "STDERR":
		return value{kind: kindConst, str: tok.text, line: tok.line}, p.advance()
	case "nil":
		return value{kind: kindNil, line: tok.line}, p.advance()
	case "true", "false":
		return value{kind: kindBool, truth: tok.text == "true", line: tok.line}, p.advance()
	case "__dir__":
		return value{kind: kindString, str: p.baseDir, line: tok.line}, p.advance()
	case "File":
		return p.parseFileCall()
	}
	s, ok := p.vars[tok.text]
	if !ok {
		return value{}, p.errorf("undefined variable %q", tok.text)
	}
	return value{kind: kindString, str: s, line: tok.line}, p.advance()
}

// parseFileCall handles File.dirname(__FILE__), File.dirname __FILE__ and
// File.join(a, b, ...).
func (p *parser) parseFileCall() (value, error) {
	line := p.tok.line
	if err := p.advance(); err != nil {
		return value{}, err
	}
	if err := p.expect(tokDot); err != nil {
		return value{}, err
	}
	if p.tok.kind != tokIdent {
		return value{}, p.errorf("expected File method, got %s", p.tok.kind)
	}
	method := p.tok.text
	if err := p.advance(); err != nil {
		return value{}, err
	}

	switch method {
	case "dirname":
		paren := p.tok.kind == tokLParen
		if paren {
			if err := p.advance(); err != nil {
				return value{}, err
			}
		}
		if p.tok.kind != tokIdent || p.tok.text != "__FILE__" {
			return value{}, p.errorf("only File.dirname(__FILE__) is supported")
		}
		if err := p.advance(); err != nil {
			return value{}, err
		}
		if paren {
			if err := p.expect(tokRParen); err != nil {
				return value{}, err
			}
		}
		return value{kind: kindString, str: p.baseDir, line: line}, nil
	case "join":
		args, err := p.parseSeq(tokLParen, tokRParen)
		if err != nil {
			return value{}, err
		}
		parts := make([]string, 0, len(args))
		for _, arg := range args {
			if arg.kind != kindString {
				return value{}, p.errorf("File.join arguments must be strings, got %s", arg.kind)
			}
			parts = append(parts, arg.str)
		}
		return value{kind: kindString, str: strings.Join(parts, "/"), line: line}, nil
	default:
		return value{}, p.errorf("unsupported method File.%s", method)
	}
}

// parseSeq parses a comma separated sequence between open and closing,
// allowing line breaks and a trailing comma.
func (p *parser) parseSeq(open, closing tokenKind) ([]value, error) {
	if err := p.expect(open); err != nil {
		return nil, err
	}
	var args []value
	for {
		if err := p.skipNewlines(); err != nil {
			return nil, err
		}
		if p.tok.kind == closing {
			return args, p.advance()
		}
		arg, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if err := p.skipNewlines(); err != nil {
			return nil, err
		}
		switch p.tok.kind {
		case tokComma:
			if err := p.advance(); err != nil {
				return nil, err
			}
		case closing:
			return args, p.advance()
		default:
			return nil, p.errorf("expected ',' or %s, got %s", closing, p.tok.kind)
		}
	}
}

func (p *parser) interpolate(tok token) (string, error) {
	var sb strings.Builder
	for _, part := range tok.parts {
		if part.variable == "" {
			sb.WriteString(part.literal)
			continue
		}
		s, ok := p.vars[part.variable]
		if !ok {
			return "", p.errorf("undefined variable %q in string", part.variable)
		}
		sb.WriteString(s)
	}
	return sb.String(), nil
}
