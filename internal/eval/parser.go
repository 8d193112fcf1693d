package eval

import (
	"fmt"
	"strings"

	"github.com/routegrid/routegrid/internal/domain"
)

// reserved holds the characters that terminate a bare selector or argument.
const reserved = `"'();,=<>! ` + "\t"

// Parse parses an RSQL-style expression into its node tree. Syntax errors
// wrap domain.ErrBadValue so callers surface them as caller mistakes rather
// than evaluation failures.
func Parse(input string) (*Node, error) {
	p := &parser{input: input}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !p.eof() {
		return nil, p.errorf("unexpected %q", p.rest())
	}
	return node, nil
}

type parser struct {
	input string
	pos   int
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: predicate syntax at offset %d: %s",
		domain.ErrBadValue, p.pos, fmt.Sprintf(format, args...))
}

func (p *parser) eof() bool     { return p.pos >= len(p.input) }
func (p *parser) rest() string  { return p.input[p.pos:] }
func (p *parser) peek() byte    { return p.input[p.pos] }
func (p *parser) skipSpace() {
	for !p.eof() && (p.peek() == ' ' || p.peek() == '\t') {
		p.pos++
	}
}

// matchWord consumes the keyword when it appears at the cursor followed by a
// word boundary.
func (p *parser) matchWord(word string) bool {
	if !strings.HasPrefix(p.rest(), word) {
		return false
	}
	after := p.pos + len(word)
	if after < len(p.input) {
		c := p.input[after]
		if c != ' ' && c != '\t' && c != '(' {
			return false
		}
	}
	p.pos = after
	return true
}

func (p *parser) parseOr() (*Node, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	operands := []*Node{first}
	for {
		p.skipSpace()
		switch {
		case !p.eof() && p.peek() == ',':
			p.pos++
		case p.matchWord("or"):
		default:
			if len(operands) == 1 {
				return first, nil
			}
			return &Node{Kind: KindOr, Operands: operands}, nil
		}
		next, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		operands = append(operands, next)
	}
}

func (p *parser) parseAnd() (*Node, error) {
	first, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	operands := []*Node{first}
	for {
		p.skipSpace()
		switch {
		case !p.eof() && p.peek() == ';':
			p.pos++
		case p.matchWord("and"):
		default:
			if len(operands) == 1 {
				return first, nil
			}
			return &Node{Kind: KindAnd, Operands: operands}, nil
		}
		next, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		operands = append(operands, next)
	}
}

func (p *parser) parsePrimary() (*Node, error) {
	p.skipSpace()
	if p.eof() {
		return nil, p.errorf("expected expression")
	}
	if p.peek() == '(' {
		p.pos++
		node, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.eof() || p.peek() != ')' {
			return nil, p.errorf("expected ')'")
		}
		p.pos++
		return node, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (*Node, error) {
	selector, err := p.scanBare("selector")
	if err != nil {
		return nil, err
	}
	op, err := p.scanOperator()
	if err != nil {
		return nil, err
	}
	args, err := p.scanArguments()
	if err != nil {
		return nil, err
	}
	return &Node{Kind: KindComparison, Selector: selector, Op: op, Args: args}, nil
}

// operators is ordered so longer spellings match before their prefixes.
var operators = []struct {
	symbol string
	op     Operator
}{
	{"==", OpEq},
	{"!=", OpNe},
	{"=gt=", OpGt},
	{"=ge=", OpGe},
	{"=lt=", OpLt},
	{"=le=", OpLe},
	{"=in=", OpIn},
	{"=out=", OpOut},
	{">=", OpGe},
	{"<=", OpLe},
	{">", OpGt},
	{"<", OpLt},
}

func (p *parser) scanOperator() (Operator, error) {
	p.skipSpace()
	for _, cand := range operators {
		if strings.HasPrefix(p.rest(), cand.symbol) {
			p.pos += len(cand.symbol)
			return cand.op, nil
		}
	}
	return "", p.errorf("expected comparison operator")
}

func (p *parser) scanArguments() ([]string, error) {
	p.skipSpace()
	if p.eof() {
		return nil, p.errorf("expected argument")
	}
	if p.peek() != '(' {
		arg, err := p.scanValue()
		if err != nil {
			return nil, err
		}
		return []string{arg}, nil
	}
	p.pos++
	var args []string
	for {
		arg, err := p.scanValue()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		p.skipSpace()
		if p.eof() {
			return nil, p.errorf("expected ')'")
		}
		switch p.peek() {
		case ',':
			p.pos++
		case ')':
			p.pos++
			return args, nil
		default:
			return nil, p.errorf("expected ',' or ')'")
		}
	}
}

func (p *parser) scanValue() (string, error) {
	p.skipSpace()
	if p.eof() {
		return "", p.errorf("expected value")
	}
	if quote := p.peek(); quote == '\'' || quote == '"' {
		return p.scanQuoted(quote)
	}
	return p.scanBare("value")
}

func (p *parser) scanQuoted(quote byte) (string, error) {
	p.pos++
	var sb strings.Builder
	for !p.eof() {
		c := p.peek()
		p.pos++
		switch c {
		case quote:
			return sb.String(), nil
		case '\\':
			if p.eof() {
				return "", p.errorf("dangling escape")
			}
			sb.WriteByte(p.peek())
			p.pos++
		default:
			sb.WriteByte(c)
		}
	}
	return "", p.errorf("unterminated quoted value")
}

func (p *parser) scanBare(what string) (string, error) {
	p.skipSpace()
	start := p.pos
	for !p.eof() && !strings.ContainsRune(reserved, rune(p.peek())) {
		p.pos++
	}
	if p.pos == start {
		return "", p.errorf("expected %s", what)
	}
	return p.input[start:p.pos], nil
}
