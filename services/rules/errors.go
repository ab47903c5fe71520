package rules

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownField        = errors.New("unknown field")
	ErrUnknownOperator     = errors.New("unknown operator")
	ErrUnsupportedOperator = errors.New("operator not supported for field type")
	ErrInvalidValue        = errors.New("invalid value")
	ErrNoUser              = errors.New("no user to evaluate against")
)

// CompilationError reports a rule that cannot be turned into a predicate.
// It names the field, operator and offending value so the list editor can
// point at the clause.
type CompilationError struct {
	Field    string
	Operator string
	Value    string
	Err      error
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("rule %s %s %q: %v", e.Field, e.Operator, e.Value, e.Err)
}

func (e *CompilationError) Unwrap() error {
	return e.Err
}

func compileErr(field, operator, value string, err error) error {
	return &CompilationError{Field: field, Operator: operator, Value: value, Err: err}
}

// CompilationErrors flattens err, as returned by CompileRuleSet, into its
// per-rule errors. Errors that are not rule errors are skipped.
func CompilationErrors(err error) []*CompilationError {
	var out []*CompilationError
	var walk func(error)
	walk = func(e error) {
		if e == nil {
			return
		}
		if ce, ok := e.(*CompilationError); ok {
			out = append(out, ce)
			return
		}
		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			walk(u.Unwrap())
		}
	}
	walk(err)
	return out
}
