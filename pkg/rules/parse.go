package rules

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Syntax tree produced by the parser. Expressions are kept as source text
// and handed to expr-lang by the compiler.

type node interface {
	position() position
}

type exprNode struct {
	src string
	at  position
}

type callNode struct {
	name string
	at   position
	args []exprNode
}

func (n *callNode) position() position { return n.at }

type ifNode struct {
	at    position
	guard exprNode
	then  []node
	els   []node
}

func (n *ifNode) position() position { return n.at }

type parser struct {
	src  string
	off  int
	line int
	col  int
}

func parse(src string) ([]node, error) {
	p := &parser{src: src, line: 1, col: 1}
	return p.block(false)
}

func (p *parser) pos() position {
	return position{line: p.line, col: p.col}
}

func (p *parser) eof() bool {
	return p.off >= len(p.src)
}

func (p *parser) peek() rune {
	if p.eof() {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(p.src[p.off:])
	return r
}

func (p *parser) next() rune {
	r, size := utf8.DecodeRuneInString(p.src[p.off:])
	p.off += size
	if r == '\n' {
		p.line++
		p.col = 1
	} else {
		p.col++
	}
	return r
}

// skip consumes whitespace, statement separators and comments.
func (p *parser) skip() {
	for !p.eof() {
		switch r := p.peek(); {
		case r == ';' || unicode.IsSpace(r):
			p.next()
		case r == '#':
			for !p.eof() && p.peek() != '\n' {
				p.next()
			}
		default:
			return
		}
	}
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func (p *parser) ident() string {
	start := p.off
	if !isIdentStart(p.peek()) {
		return ""
	}
	for !p.eof() && isIdentPart(p.peek()) {
		p.next()
	}
	return p.src[start:p.off]
}

// keywordAhead reports whether the keyword kw starts at the current offset
// as a whole word.
func (p *parser) keywordAhead(kw string) bool {
	if !strings.HasPrefix(p.src[p.off:], kw) {
		return false
	}
	rest := p.src[p.off+len(kw):]
	if rest == "" {
		return true
	}
	r, _ := utf8.DecodeRuneInString(rest)
	return !isIdentPart(r)
}

func (p *parser) block(nested bool) ([]node, error) {
	var nodes []node
	open := p.pos()
	for {
		p.skip()
		if p.eof() {
			if nested {
				return nil, errorAt(open, "missing } to close block")
			}
			return nodes, nil
		}
		if p.peek() == '}' {
			if !nested {
				return nil, errorAt(p.pos(), "unexpected }")
			}
			p.next()
			return nodes, nil
		}
		n, err := p.statement()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
}

func (p *parser) statement() (node, error) {
	at := p.pos()
	name := p.ident()
	switch name {
	case "":
		return nil, errorAt(at, "expected a directive, found %q", string(p.peek()))
	case "if":
		return p.ifStatement(at)
	case "else":
		return nil, errorAt(at, "else without if")
	}

	for !p.eof() && (p.peek() == ' ' || p.peek() == '\t') {
		p.next()
	}
	if p.peek() != '(' {
		return nil, errorAt(p.pos(), "expected ( after %s", name)
	}
	p.next()

	call := &callNode{name: name, at: at}
	args, err := p.arguments(call)
	if err != nil {
		return nil, err
	}
	call.args = args

	if !p.eof() {
		switch r := p.peek(); {
		case r == ';' || r == '#' || r == '}' || unicode.IsSpace(r):
		default:
			return nil, errorAt(p.pos(), "unexpected %q after %s(...)", string(r), name)
		}
	}
	return call, nil
}

// arguments scans a comma separated argument list up to the matching ")".
func (p *parser) arguments(call *callNode) ([]exprNode, error) {
	var (
		args   []exprNode
		stack  []rune
		start  = p.off
		argAt  = p.pos()
		closed bool
	)

	flush := func() error {
		raw := p.src[start:p.off]
		trimmed := strings.TrimLeftFunc(raw, unicode.IsSpace)
		at := argAt
		for _, r := range raw[:len(raw)-len(trimmed)] {
			if r == '\n' {
				at.line++
				at.col = 1
			} else {
				at.col++
			}
		}
		trimmed = strings.TrimRightFunc(trimmed, unicode.IsSpace)
		if trimmed == "" {
			return errorAt(p.pos(), "empty argument in %s(...)", call.name)
		}
		args = append(args, exprNode{src: trimmed, at: at})
		return nil
	}

	for !closed {
		if p.eof() {
			return nil, errorAt(call.at, "missing ) to close %s(", call.name)
		}
		switch r := p.peek(); r {
		case '"', '\'', '`':
			if err := p.skipString(); err != nil {
				return nil, err
			}
			continue
		case '(', '[', '{':
			stack = append(stack, r)
		case ')', ']', '}':
			if len(stack) == 0 {
				if r != ')' {
					return nil, errorAt(p.pos(), "unexpected %q in %s(...)", string(r), call.name)
				}
				if len(args) > 0 || strings.TrimSpace(p.src[start:p.off]) != "" {
					if err := flush(); err != nil {
						return nil, err
					}
				}
				closed = true
			} else {
				if open := stack[len(stack)-1]; closerOf(open) != r {
					return nil, errorAt(p.pos(), "mismatched %q, expected %q", string(r), string(closerOf(open)))
				}
				stack = stack[:len(stack)-1]
			}
		case ',':
			if len(stack) == 0 {
				if err := flush(); err != nil {
					return nil, err
				}
				p.next()
				start = p.off
				argAt = p.pos()
				continue
			}
		}
		p.next()
	}
	return args, nil
}

func closerOf(open rune) rune {
	switch open {
	case '(':
		return ')'
	case '[':
		return ']'
	default:
		return '}'
	}
}

// skipString consumes a quoted string starting at the current offset.
// Backtick strings are raw; the other two honor backslash escapes.
func (p *parser) skipString() error {
	at := p.pos()
	quote := p.next()
	for !p.eof() {
		r := p.next()
		switch {
		case r == quote:
			return nil
		case r == '\\' && quote != '`':
			if !p.eof() {
				p.next()
			}
		case r == '\n' && quote != '`':
			return errorAt(at, "unterminated string")
		}
	}
	return errorAt(at, "unterminated string")
}

func (p *parser) ifStatement(at position) (node, error) {
	guard, err := p.guard(at)
	if err != nil {
		return nil, err
	}
	p.next() // {
	then, err := p.block(true)
	if err != nil {
		return nil, err
	}
	n := &ifNode{at: at, guard: guard, then: then}

	// Look past whitespace and comments for an else; if there is none the
	// skipped text belonged to the enclosing block anyway.
	save := *p
	p.skip()
	if !p.keywordAhead("else") {
		*p = save
		return n, nil
	}
	elseAt := p.pos()
	p.ident()
	p.skip()
	switch {
	case p.keywordAhead("if"):
		ifAt := p.pos()
		p.ident()
		nested, err := p.ifStatement(ifAt)
		if err != nil {
			return nil, err
		}
		n.els = []node{nested}
	case p.peek() == '{':
		p.next()
		els, err := p.block(true)
		if err != nil {
			return nil, err
		}
		n.els = els
	default:
		return nil, errorAt(elseAt, "expected { or if after else")
	}
	return n, nil
}

// guard scans the condition of an if up to the first top-level "{".
func (p *parser) guard(at position) (exprNode, error) {
	for !p.eof() && unicode.IsSpace(p.peek()) {
		p.next()
	}
	start := p.off
	guardAt := p.pos()
	var stack []rune
	for {
		if p.eof() {
			return exprNode{}, errorAt(at, "expected { after if condition")
		}
		switch r := p.peek(); r {
		case '"', '\'', '`':
			if err := p.skipString(); err != nil {
				return exprNode{}, err
			}
			continue
		case '(', '[':
			stack = append(stack, r)
		case ')', ']':
			if len(stack) == 0 || closerOf(stack[len(stack)-1]) != r {
				return exprNode{}, errorAt(p.pos(), "unexpected %q in if condition", string(r))
			}
			stack = stack[:len(stack)-1]
		case '}':
			if len(stack) == 0 || stack[len(stack)-1] != '{' {
				return exprNode{}, errorAt(p.pos(), "unexpected } in if condition")
			}
			stack = stack[:len(stack)-1]
		case '{':
			if len(stack) == 0 {
				src := strings.TrimSpace(p.src[start:p.off])
				if src == "" {
					return exprNode{}, errorAt(at, "missing condition after if")
				}
				return exprNode{src: src, at: guardAt}, nil
			}
			stack = append(stack, r)
		}
		p.next()
	}
}
