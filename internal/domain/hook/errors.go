package hook

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the engine. Callers match them with errors.Is.
var (
	// ErrUnknownMethod is returned when a record is built for a method with no converter.
	ErrUnknownMethod = errors.New("unknown method")
	// ErrInvalidHookType is returned when registering against an undeclared phase.
	ErrInvalidHookType = errors.New("invalid hook type")
	// ErrInvalidHookMethod is returned when a registration names an unrecognized method.
	ErrInvalidHookMethod = errors.New("invalid hook method")
	// ErrInvalidHookReturn is returned when an interceptor produces something that is not a record.
	ErrInvalidHookReturn = errors.New("invalid hook return")
	// ErrInvalidParams is returned when the params argument is not a mapping.
	ErrInvalidParams = errors.New("params must be a mapping")
	// ErrInvalidRegistration is returned when registration input has an unsupported shape.
	ErrInvalidRegistration = errors.New("invalid hook registration")
	// ErrNotEnabled is returned when registering on an owner that was never enabled.
	ErrNotEnabled = errors.New("hooks not enabled")
	// ErrHookPanic is returned when an interceptor panics.
	ErrHookPanic = errors.New("hook panicked")
	// ErrNilRecord is returned when a chain is started without a record.
	ErrNilRecord = errors.New("nil record")
	// ErrUnsupportedInterceptor is returned when an interceptor implements neither calling convention.
	ErrUnsupportedInterceptor = errors.New("unsupported interceptor")
)

// HookError annotates a chain failure with the record that was current when
// the chain stopped. It unwraps to the original error so errors.Is keeps
// matching whatever the interceptor returned.
type HookError struct {
	Err  error
	Hook *Record
}

// Error implements the error interface.
func (e *HookError) Error() string {
	if e.Hook == nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s %s hook: %v", e.Hook.Type, e.Hook.Method, e.Err)
}

// Unwrap returns the original error.
func (e *HookError) Unwrap() error {
	return e.Err
}

// RecordOf returns the record attached to a chain failure, if any.
func RecordOf(err error) (*Record, bool) {
	var hookErr *HookError
	if errors.As(err, &hookErr) && hookErr.Hook != nil {
		return hookErr.Hook, true
	}
	return nil, false
}

// annotate wraps err with rec. An error that already carries a record from a
// nested chain is wrapped again; RecordOf finds the outermost one.
func annotate(err error, rec *Record) *HookError {
	return &HookError{Err: err, Hook: rec}
}
