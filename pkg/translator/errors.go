package translator

import (
	"errors"
	"fmt"

	"github.com/leapstack-labs/fhirsql/pkg/core"
	"github.com/leapstack-labs/fhirsql/pkg/fhirpath"
)

// Translation failures. They are implementation gaps, not data conditions:
// an expression that hits one of them produces no SQL at all.
var (
	ErrUnknownFunction  = errors.New("unknown function")
	ErrArity            = errors.New("wrong number of arguments")
	ErrUnsupportedChain = errors.New("unsupported chained operation")
	ErrUnsupported      = errors.New("unsupported expression")
)

// TranslationError reports where and in which function translation failed.
type TranslationError struct {
	Function string
	Pos      fhirpath.Position
	Detail   string
	Err      error
}

func (e *TranslationError) Error() string {
	msg := fmt.Sprintf("%d:%d: %s", e.Pos.Line, e.Pos.Column, e.Err)
	if e.Function != "" {
		msg += " " + e.Function
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *TranslationError) Unwrap() error {
	return e.Err
}

func newError(err error, fn string, pos fhirpath.Position, format string, args ...any) *TranslationError {
	return &TranslationError{Function: fn, Pos: pos, Detail: fmt.Sprintf(format, args...), Err: err}
}

// IncompatibleError is a comparison between values of kinds that have no
// implicit conversion, detected before any SQL is generated.
type IncompatibleError struct {
	Op     string
	Left   core.ValueType
	Right  core.ValueType
	Reason string
	Pos    fhirpath.Position
}

func (e *IncompatibleError) Error() string {
	return fmt.Sprintf("%d:%d: cannot apply '%s' to %s and %s: %s",
		e.Pos.Line, e.Pos.Column, e.Op, e.Left, e.Right, e.Reason)
}
