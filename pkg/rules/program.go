package rules

import "fmt"

// Program is a compiled rule script. It is immutable and safe for
// concurrent use.
type Program struct {
	source     string
	directives []Directive
}

// Source returns the script the program was compiled from.
func (p *Program) Source() string {
	return p.source
}

// Len returns the number of top-level directives.
func (p *Program) Len() int {
	return len(p.directives)
}

// Directives returns a copy of the top-level directives.
func (p *Program) Directives() []Directive {
	out := make([]Directive, len(p.directives))
	copy(out, p.directives)
	return out
}

// Evaluate runs the program against req and returns the resulting response.
// On failure the response is nil and the error is an *EvaluationError.
func (p *Program) Evaluate(req *Request) (resp *Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = &EvaluationError{Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	st := &evalState{req: req, resp: NewResponse()}
	st.env = newEnv(req, st)
	if err := applyAll(st, p.directives); err != nil {
		return nil, err
	}
	return st.resp, nil
}
