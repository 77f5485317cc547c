// errors.go defines sentinel errors and the coercion of captured values.

package raven

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrStackResolution is reported to observers when no stack trace could be
// produced for an exception. The event is still sent, without a stacktrace.
var ErrStackResolution = errors.New("stack resolution failed")

// ValueError wraps a non-error value passed to CaptureException so that it
// can be reported like any other error.
type ValueError struct {
	Value any
}

func (e *ValueError) Error() string {
	return fmt.Sprint(e.Value)
}

// PanicError wraps a value recovered from a panic. Unwrap returns the value
// when it was itself an error.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return formatRecovered(e.Value)
}

func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// asError coerces v into an error.
func asError(v any) error {
	if err, ok := v.(error); ok && err != nil {
		return err
	}
	return &ValueError{Value: v}
}

// errorMessage returns err.Error(), or "<nil>" when err holds a nil pointer.
// A panicking Error method is reported instead of propagated.
func errorMessage(err error) (msg string) {
	if isNilPointer(err) {
		return "<nil>"
	}
	defer func() {
		if r := recover(); r != nil {
			msg = fmt.Sprintf("<Error() panicked: %v>", r)
		}
	}()
	return err.Error()
}

// isNilPointer reports whether v is non-nil but holds a nil pointer, map,
// slice, func or chan.
func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// errorType names the dynamic type of err, e.g. "*fs.PathError".
func errorType(err error) string {
	return reflect.TypeOf(err).String()
}

// formatRecovered formats a recovered panic value as a string.
func formatRecovered(recovered any) string {
	if recovered == nil {
		return "<nil>"
	}
	if err, ok := recovered.(error); ok {
		return errorMessage(err)
	}
	return fmt.Sprintf("%v", recovered)
}
