package rules

import (
	"fmt"
	"strings"
)

// CompileError describes why a rule script could not be compiled.
// Line and Column are 1-based; zero means the location is unknown.
type CompileError struct {
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Message string `json:"message"`
}

func (e *CompileError) Error() string {
	switch {
	case e.Line > 0 && e.Column > 0:
		return fmt.Sprintf("line %d, column %d: %s", e.Line, e.Column, e.Message)
	case e.Line > 0:
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	default:
		return e.Message
	}
}

// EvaluationError is returned when a compiled program fails on a specific
// request. The partial response is discarded.
type EvaluationError struct {
	Directive string
	Line      int
	Err       error
}

func (e *EvaluationError) Error() string {
	var b strings.Builder
	if e.Line > 0 {
		fmt.Fprintf(&b, "line %d: ", e.Line)
	}
	if e.Directive != "" {
		b.WriteString(e.Directive)
		b.WriteString(": ")
	}
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	} else {
		b.WriteString("evaluation failed")
	}
	return b.String()
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// position is a 1-based line/column pair within a script.
type position struct {
	line int
	col  int
}

func errorAt(pos position, format string, args ...any) *CompileError {
	return &CompileError{
		Line:    pos.line,
		Column:  pos.col,
		Message: fmt.Sprintf(format, args...),
	}
}
