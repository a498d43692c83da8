package hook

import (
	"context"
	"fmt"
)

// Condition decides whether a guarded interceptor runs for a record.
type Condition interface {
	Match(ctx context.Context, rec *Record) (bool, error)
}

// ConditionFunc is an adapter to allow the use of ordinary functions as Conditions.
type ConditionFunc func(ctx context.Context, rec *Record) (bool, error)

// Match calls f(ctx, rec).
func (f ConditionFunc) Match(ctx context.Context, rec *Record) (bool, error) {
	return f(ctx, rec)
}

// MethodIs matches records whose method is one of methods.
func MethodIs(methods ...Method) Condition {
	return ConditionFunc(func(_ context.Context, rec *Record) (bool, error) {
		for _, m := range methods {
			if rec.Method == m {
				return true, nil
			}
		}
		return false, nil
	})
}

// PhaseIs matches records travelling through one of phases.
func PhaseIs(phases ...Phase) Condition {
	return ConditionFunc(func(_ context.Context, rec *Record) (bool, error) {
		for _, p := range phases {
			if rec.Type == p {
				return true, nil
			}
		}
		return false, nil
	})
}

// guarded runs inner only when cond matches. It keeps inner's calling
// convention so the chain awaits callback interceptors the same way.
type guarded struct {
	cond  Condition
	inner Interceptor
}

type guardedCallback struct {
	guarded
}

// When returns an interceptor that runs inner only for records matching
// cond. A record that does not match passes through unchanged; an error
// from cond fails the chain.
func When(cond Condition, inner Interceptor) Interceptor {
	g := guarded{cond: cond, inner: inner}
	if inner != nil && inner.Kind() == KindCallback {
		return guardedCallback{g}
	}
	return g
}

// Kind returns KindDirect.
func (g guarded) Kind() Kind { return KindDirect }

// Intercept evaluates the condition and delegates to the wrapped direct interceptor.
func (g guarded) Intercept(ctx context.Context, rec *Record) (*Record, error) {
	ok, err := g.cond.Match(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("hook condition: %w", err)
	}
	if !ok {
		return nil, nil
	}
	inner, isDirect := g.inner.(DirectInterceptor)
	if !isDirect {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedInterceptor, g.inner)
	}
	return inner.Intercept(ctx, rec)
}

// Kind returns KindCallback.
func (g guardedCallback) Kind() Kind { return KindCallback }

// InterceptAsync evaluates the condition and delegates to the wrapped callback interceptor.
func (g guardedCallback) InterceptAsync(ctx context.Context, rec *Record, done Done) {
	ok, err := g.cond.Match(ctx, rec)
	if err != nil {
		done(fmt.Errorf("hook condition: %w", err), nil)
		return
	}
	if !ok {
		done(nil, nil)
		return
	}
	g.inner.(CallbackInterceptor).InterceptAsync(ctx, rec, done)
}

// Compile-time checks.
var (
	_ DirectInterceptor   = guarded{}
	_ CallbackInterceptor = guardedCallback{}
)
