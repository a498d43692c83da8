package hook

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Sentinel-Gate/hookchain/internal/ctxkey"
)

// Chain runs interceptor lists as a strictly sequential fold over a Record.
// A Chain holds no per-run state and may be shared between goroutines.
type Chain struct {
	logger *slog.Logger
}

// NewChain creates a Chain that logs through logger.
func NewChain(logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{logger: logger}
}

// Run executes list in order starting from rec. Each interceptor sees the
// record produced by the previous one; a nil result keeps the current
// record. The owner self is available to interceptors through Bound(ctx).
//
// The first failure stops the chain. The returned error is a *HookError
// carrying the record current at the moment of failure, and unwraps to the
// interceptor's own error.
//
// Callback interceptors are awaited until they call done. Run does not
// impose a deadline; cancel ctx to stop waiting.
//
// A nil rec returns ErrNilRecord without running any interceptor.
func (c *Chain) Run(ctx context.Context, list []Interceptor, rec *Record, self interface{}) (*Record, error) {
	if rec == nil {
		return nil, ErrNilRecord
	}
	ctx = WithBound(ctx, self)
	logger := c.loggerFor(ctx)

	current := rec
	for i, fn := range list {
		next, err := c.invoke(ctx, logger, fn, current)
		if err != nil {
			logger.Debug("hook chain stopped",
				"phase", current.Type,
				"method", current.Method,
				"index", i,
				"error", err,
			)
			return nil, annotate(err, current)
		}
		if next == nil {
			logger.Debug("hook kept record",
				"phase", current.Type,
				"method", current.Method,
				"index", i,
				"kind", fn.Kind(),
			)
			continue
		}
		if !IsRecord(next) {
			err := fmt.Errorf("%w: %s %s hook #%d returned a record without method or type",
				ErrInvalidHookReturn, current.Type, current.Method, i)
			return nil, annotate(err, current)
		}
		logger.Debug("hook replaced record",
			"phase", current.Type,
			"method", current.Method,
			"index", i,
			"kind", fn.Kind(),
		)
		current = next
	}

	logger.Debug("hook chain completed",
		"phase", current.Type,
		"method", current.Method,
		"hooks", len(list),
	)
	return current, nil
}

func (c *Chain) invoke(ctx context.Context, logger *slog.Logger, fn Interceptor, rec *Record) (*Record, error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: nil", ErrUnsupportedInterceptor)
	}
	switch fn.Kind() {
	case KindDirect:
		if f, ok := fn.(DirectInterceptor); ok {
			return callDirect(ctx, f, rec)
		}
	case KindCallback:
		if f, ok := fn.(CallbackInterceptor); ok {
			return callCallback(ctx, logger, f, rec)
		}
	}
	return nil, fmt.Errorf("%w: %T (%s)", ErrUnsupportedInterceptor, fn, fn.Kind())
}

func callDirect(ctx context.Context, f DirectInterceptor, rec *Record) (next *Record, err error) {
	defer func() {
		if p := recover(); p != nil {
			next, err = nil, panicError(p)
		}
	}()
	return f.Intercept(ctx, rec)
}

type outcome struct {
	rec *Record
	err error
}

// callCallback runs f on its own goroutine and waits for the first call to
// done. The channel is buffered so a late or repeated done never blocks.
func callCallback(ctx context.Context, logger *slog.Logger, f CallbackInterceptor, rec *Record) (*Record, error) {
	result := make(chan outcome, 1)
	var once sync.Once
	done := func(err error, next *Record) {
		fired := false
		once.Do(func() {
			fired = true
			result <- outcome{rec: next, err: err}
		})
		if !fired {
			logger.Warn("hook completion called more than once, ignoring",
				"phase", rec.Type,
				"method", rec.Method,
			)
		}
	}

	go func() {
		defer func() {
			if p := recover(); p != nil {
				done(panicError(p), nil)
			}
		}()
		f.InterceptAsync(ctx, rec, done)
	}()

	select {
	case out := <-result:
		return out.rec, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func panicError(p interface{}) error {
	if err, ok := p.(error); ok {
		return fmt.Errorf("%w: %w", ErrHookPanic, err)
	}
	return fmt.Errorf("%w: %v", ErrHookPanic, p)
}

func (c *Chain) loggerFor(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxkey.LoggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return c.logger
}
