package hook

import (
	"context"

	"github.com/Sentinel-Gate/hookchain/internal/ctxkey"
)

// Kind tells the chain which calling convention an interceptor uses.
type Kind int

const (
	// KindDirect interceptors return their result.
	KindDirect Kind = iota
	// KindCallback interceptors report their result through a Done callback.
	KindCallback
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindDirect:
		return "direct"
	case KindCallback:
		return "callback"
	default:
		return "unknown"
	}
}

// Interceptor is a registered hook. Every interceptor also implements
// exactly one of DirectInterceptor or CallbackInterceptor, matching Kind.
type Interceptor interface {
	Kind() Kind
}

// DirectInterceptor returns a replacement record, nil to keep the current
// record, or an error to fail the chain.
type DirectInterceptor interface {
	Interceptor
	Intercept(ctx context.Context, rec *Record) (*Record, error)
}

// CallbackInterceptor reports its outcome through done, exactly once.
type CallbackInterceptor interface {
	Interceptor
	InterceptAsync(ctx context.Context, rec *Record, done Done)
}

// DirectFunc receives the current record and returns a replacement, nil to
// keep the current record, or an error to fail the chain.
type DirectFunc func(ctx context.Context, rec *Record) (*Record, error)

// Kind returns KindDirect.
func (f DirectFunc) Kind() Kind { return KindDirect }

// Intercept calls f(ctx, rec).
func (f DirectFunc) Intercept(ctx context.Context, rec *Record) (*Record, error) {
	return f(ctx, rec)
}

// Done completes a callback interceptor. A non-nil err fails the chain;
// otherwise rec replaces the current record, or keeps it when nil.
type Done func(err error, rec *Record)

// CallbackFunc receives the current record and must call done exactly once,
// from any goroutine. Calls after the first are ignored.
type CallbackFunc func(ctx context.Context, rec *Record, done Done)

// Kind returns KindCallback.
func (f CallbackFunc) Kind() Kind { return KindCallback }

// InterceptAsync calls f(ctx, rec, done).
func (f CallbackFunc) InterceptAsync(ctx context.Context, rec *Record, done Done) {
	f(ctx, rec, done)
}

// Direct wraps fn as a direct-return interceptor.
func Direct(fn func(ctx context.Context, rec *Record) (*Record, error)) Interceptor {
	return DirectFunc(fn)
}

// Callback wraps fn as a callback-style interceptor.
func Callback(fn func(ctx context.Context, rec *Record, done Done)) Interceptor {
	return CallbackFunc(fn)
}

// Compile-time checks.
var (
	_ DirectInterceptor   = DirectFunc(nil)
	_ CallbackInterceptor = CallbackFunc(nil)
)

// WithBound returns a context carrying the owner an interceptor runs for.
func WithBound(ctx context.Context, self interface{}) context.Context {
	return context.WithValue(ctx, ctxkey.BoundKey{}, self)
}

// Bound returns the owner the running chain was bound to, or nil.
func Bound(ctx context.Context) interface{} {
	return ctx.Value(ctxkey.BoundKey{})
}
