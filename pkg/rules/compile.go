package rules

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/file"
	"github.com/expr-lang/expr/vm"
)

// DefaultRules is the script installed when no rules file is given.
const DefaultRules = "error(404)\n"

// argKind is the static type a directive requires of an argument.
type argKind int

const (
	kindAny argKind = iota
	kindString
	kindInt
	kindDuration
)

type directiveSpec struct {
	kinds    []argKind
	optional int // trailing arguments that may be omitted
	build    func(b base, args []*arg) Directive
	// statusArg is the index of an argument that must be a valid status
	// code, or -1.
	statusArg int
}

var directiveSpecs map[string]directiveSpec

func init() {
	one := func(k argKind) []argKind { return []argKind{k} }
	directiveSpecs = map[string]directiveSpec{
		"status": {kinds: one(kindInt), statusArg: 0, build: func(b base, a []*arg) Directive {
			return &statusDirective{base: b, code: a[0]}
		}},
		"error": {kinds: one(kindInt), statusArg: 0, build: func(b base, a []*arg) Directive {
			return &errorDirective{base: b, code: a[0]}
		}},
		"header": {kinds: []argKind{kindString, kindAny}, statusArg: -1, build: func(b base, a []*arg) Directive {
			return &headerDirective{base: b, op: headerSet, name: a[0], value: a[1]}
		}},
		"add_header": {kinds: []argKind{kindString, kindAny}, statusArg: -1, build: func(b base, a []*arg) Directive {
			return &headerDirective{base: b, op: headerAdd, name: a[0], value: a[1]}
		}},
		"remove_header": {kinds: one(kindString), statusArg: -1, build: func(b base, a []*arg) Directive {
			return &headerDirective{base: b, op: headerRemove, name: a[0]}
		}},
		"body": {kinds: one(kindAny), statusArg: -1, build: func(b base, a []*arg) Directive {
			return &bodyDirective{base: b, value: a[0]}
		}},
		"text": {kinds: one(kindAny), statusArg: -1, build: func(b base, a []*arg) Directive {
			return &bodyDirective{base: b, value: a[0], contentType: "text/plain; charset=utf-8"}
		}},
		"html": {kinds: one(kindAny), statusArg: -1, build: func(b base, a []*arg) Directive {
			return &bodyDirective{base: b, value: a[0], contentType: "text/html; charset=utf-8"}
		}},
		"json": {kinds: one(kindAny), statusArg: -1, build: func(b base, a []*arg) Directive {
			return &jsonDirective{base: b, value: a[0]}
		}},
		"echo": {statusArg: -1, build: func(b base, _ []*arg) Directive {
			return &echoDirective{base: b}
		}},
		"chunk": {kinds: one(kindAny), statusArg: -1, build: func(b base, a []*arg) Directive {
			return &chunkDirective{base: b, value: a[0]}
		}},
		"chunk_delay": {kinds: one(kindDuration), statusArg: -1, build: func(b base, a []*arg) Directive {
			return &delayDirective{base: b, d: a[0], betweenChunks: true}
		}},
		"redirect": {kinds: []argKind{kindString, kindInt}, optional: 1, statusArg: 1, build: func(b base, a []*arg) Directive {
			d := &redirectDirective{base: b, location: a[0]}
			if len(a) > 1 {
				d.code = a[1]
			}
			return d
		}},
		"delay": {kinds: one(kindDuration), statusArg: -1, build: func(b base, a []*arg) Directive {
			return &delayDirective{base: b, d: a[0]}
		}},
		"cors": {statusArg: -1, build: func(b base, _ []*arg) Directive {
			return &corsDirective{base: b}
		}},
		"basic_auth": {kinds: one(kindString), optional: 1, statusArg: -1, build: func(b base, a []*arg) Directive {
			return newAuthDirective(b, "Basic", a)
		}},
		"bearer_auth": {kinds: one(kindString), optional: 1, statusArg: -1, build: func(b base, a []*arg) Directive {
			return newAuthDirective(b, "Bearer", a)
		}},
		"close": {statusArg: -1, build: func(b base, _ []*arg) Directive {
			return &closeDirective{base: b}
		}},
		"reset": {statusArg: -1, build: func(b base, _ []*arg) Directive {
			return &resetDirective{base: b}
		}},
		"truncate": {kinds: one(kindInt), statusArg: -1, build: func(b base, a []*arg) Directive {
			return &truncateDirective{base: b, n: a[0]}
		}},
		"raw": {kinds: one(kindAny), statusArg: -1, build: func(b base, a []*arg) Directive {
			return &rawDirective{base: b, value: a[0]}
		}},
		"fail": {kinds: one(kindString), statusArg: -1, build: func(b base, a []*arg) Directive {
			return &failDirective{base: b, message: a[0]}
		}},
	}
}

// DirectiveNames returns the names of all directives, sorted.
func DirectiveNames() []string {
	names := make([]string, 0, len(directiveSpecs))
	for name := range directiveSpecs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Compile parses and type-checks a rule script. On failure the error is a
// *CompileError carrying the line and column of the problem.
func Compile(text string) (prog *Program, err error) {
	defer func() {
		if r := recover(); r != nil {
			prog = nil
			err = &CompileError{Message: fmt.Sprintf("internal compiler error: %v", r)}
		}
	}()

	nodes, err := parse(text)
	if err != nil {
		return nil, err
	}
	directives, err := compileNodes(nodes)
	if err != nil {
		return nil, err
	}
	return &Program{source: text, directives: directives}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(text string) *Program {
	prog, err := Compile(text)
	if err != nil {
		panic(fmt.Sprintf("rules: Compile(%q): %v", text, err))
	}
	return prog
}

func compileNodes(nodes []node) ([]Directive, error) {
	directives := make([]Directive, 0, len(nodes))
	for _, n := range nodes {
		d, err := compileNode(n)
		if err != nil {
			return nil, err
		}
		directives = append(directives, d)
	}
	return directives, nil
}

func compileNode(n node) (Directive, error) {
	switch n := n.(type) {
	case *ifNode:
		return compileIf(n)
	case *callNode:
		return compileCall(n)
	default:
		return nil, errorAt(n.position(), "unexpected statement")
	}
}

func compileIf(n *ifNode) (Directive, error) {
	guard, err := compileArg(n.guard, "if", expr.AsBool())
	if err != nil {
		return nil, err
	}
	then, err := compileNodes(n.then)
	if err != nil {
		return nil, err
	}
	els, err := compileNodes(n.els)
	if err != nil {
		return nil, err
	}
	return &conditional{base: base{name: "if", line: n.at.line}, guard: guard, then: then, els: els}, nil
}

func compileCall(n *callNode) (Directive, error) {
	spec, ok := directiveSpecs[n.name]
	if !ok {
		return nil, errorAt(n.at, "unknown directive %q", n.name)
	}
	maxArgs := len(spec.kinds)
	minArgs := maxArgs - spec.optional
	if len(n.args) < minArgs || len(n.args) > maxArgs {
		return nil, errorAt(n.at, "%s expects %s, got %d", n.name, arity(minArgs, maxArgs), len(n.args))
	}

	args := make([]*arg, len(n.args))
	for i, a := range n.args {
		compiled, err := compileArg(a, n.name)
		if err != nil {
			return nil, err
		}
		if spec.kinds[i] == kindInt && !maybeNumber(compiled.prog) {
			return nil, errorAt(a.at, "%s: expected int, but got %s", n.name, compiled.prog.Node().Type())
		}
		if i == spec.statusArg {
			if code, err := strconv.Atoi(a.src); err == nil && !validStatus(code) {
				return nil, errorAt(a.at, "%s: status code %d out of range 100-999", n.name, code)
			}
		}
		if spec.kinds[i] == kindDuration && strings.HasPrefix(a.src, "-") {
			return nil, errorAt(a.at, "%s: negative duration", n.name)
		}
		args[i] = compiled
	}
	return spec.build(base{name: n.name, line: n.at.line}, args), nil
}

func arity(minArgs, maxArgs int) string {
	plural := func(n int) string {
		if n == 1 {
			return "1 argument"
		}
		return fmt.Sprintf("%d arguments", n)
	}
	switch {
	case maxArgs == 0:
		return "no arguments"
	case minArgs == maxArgs:
		return plural(maxArgs)
	default:
		return fmt.Sprintf("%d to %s", minArgs, plural(maxArgs))
	}
}

// compileArg compiles one expression against the request environment and
// translates expr-lang's positions into positions within the script.
func compileArg(n exprNode, directive string, opts ...expr.Option) (*arg, error) {
	options := append([]expr.Option{expr.Env(Env{}), expr.Patch(optionalJSON{})}, opts...)
	prog, err := expr.Compile(n.src, options...)
	if err != nil {
		at := n.at
		msg := err.Error()
		var ferr *file.Error
		if errors.As(err, &ferr) {
			msg = ferr.Message
			if ferr.Line > 1 {
				at.line += ferr.Line - 1
				at.col = ferr.Column + 1
			} else {
				at.col += ferr.Column
			}
		}
		return nil, &CompileError{Line: at.line, Column: at.col, Message: directive + ": " + msg}
	}
	return &arg{src: n.src, prog: prog}, nil
}

// optionalJSON turns every member access rooted at json into optional
// chaining, so json.user.name is nil instead of an error when the body is
// absent or not JSON.
type optionalJSON struct{}

func (optionalJSON) Visit(node *ast.Node) {
	member, ok := (*node).(*ast.MemberNode)
	if !ok || member.Method || !rootedAtJSON(member.Node) {
		return
	}
	if chain, ok := member.Node.(*ast.ChainNode); ok {
		member.Node = chain.Node
	}
	member.Optional = true
	ast.Patch(node, &ast.ChainNode{Node: member})
}

func rootedAtJSON(node ast.Node) bool {
	for {
		switch n := node.(type) {
		case *ast.IdentifierNode:
			return n.Value == "json"
		case *ast.MemberNode:
			node = n.Node
		case *ast.ChainNode:
			node = n.Node
		default:
			return false
		}
	}
}

// maybeNumber reports whether prog can yield a number. Expressions of
// unknown type are checked at evaluation time.
func maybeNumber(prog *vm.Program) bool {
	t := prog.Node().Type()
	if t == nil {
		return true
	}
	switch t.Kind() {
	case reflect.Interface,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// arg is a compiled expression argument.
type arg struct {
	src  string
	prog *vm.Program
}

func (a *arg) value(st *evalState) (any, error) {
	out, err := expr.Run(a.prog, st.env)
	if err != nil {
		var ferr *file.Error
		if errors.As(err, &ferr) {
			if ferr.Prev != nil {
				return nil, ferr.Prev
			}
			return nil, errors.New(ferr.Message)
		}
		return nil, err
	}
	return out, nil
}

func (a *arg) string(st *evalState) (string, error) {
	v, err := a.value(st)
	if err != nil {
		return "", err
	}
	return toString(v)
}

func (a *arg) int(st *evalState) (int, error) {
	v, err := a.value(st)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		// JSON numbers decode as float64.
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.Abs(n) > math.MaxInt32 {
			return 0, fmt.Errorf("expected int, got %v", n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("expected int, got %T", v)
	}
}

func (a *arg) bool(st *evalState) (bool, error) {
	v, err := a.value(st)
	if err != nil {
		return false, err
	}
	switch v := v.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	default:
		return false, fmt.Errorf("condition is %T, not bool", v)
	}
}

func (a *arg) duration(st *evalState) (time.Duration, error) {
	v, err := a.value(st)
	if err != nil {
		return 0, err
	}
	return toDuration(v)
}

func validStatus(code int) bool {
	return code >= 100 && code <= 999
}
