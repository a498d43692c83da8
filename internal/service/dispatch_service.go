// Package service contains application services built on the hook engine.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/Sentinel-Gate/hookchain/internal/ctxkey"
	"github.com/Sentinel-Gate/hookchain/internal/domain/hook"
)

var (
	// ErrUnknownService is returned when a call targets a service that was never registered.
	ErrUnknownService = errors.New("unknown service")
	// ErrDuplicateService is returned when two services share a name.
	ErrDuplicateService = errors.New("duplicate service")
)

// loggerFromContext retrieves the enriched logger from context.
// Returns nil if no logger is in context, allowing caller to fall back.
func loggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxkey.LoggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return nil
}

// Handler performs the real operation for a service call. args are the
// positional arguments rebuilt from the before-phase record.
type Handler func(ctx context.Context, method hook.Method, args []interface{}) (interface{}, error)

// App is the application-level hook owner. Its interceptors run for every service.
type App struct {
	hook.Host
	Name string
}

// Service is a named endpoint with its own hooks and operation handler.
type Service struct {
	hook.Host
	Name     string
	Provider string
	handler  Handler
}

// NewService creates a service. The service is enabled for hooks when it is
// added to a Dispatcher.
func NewService(name string, handler Handler) *Service {
	return &Service{Name: name, handler: handler}
}

// Trace captures the records a dispatched call travelled through.
// Skipped is set when a before interceptor supplied the result.
type Trace struct {
	CallID  string
	Before  *hook.Record
	After   *hook.Record
	Error   *hook.Record
	Skipped bool
}

// Dispatcher brackets service operations with the application and service
// hook chains: before, the operation itself, then after or error.
type Dispatcher struct {
	app     *App
	methods []hook.Method
	phases  []hook.Phase
	chain   *hook.Chain
	args    hook.ArgsNormalizer
	metrics *Metrics
	tracer  trace.Tracer
	logger  *slog.Logger

	mu       sync.RWMutex
	services map[string]*Service
}

// NewDispatcher creates a dispatcher whose owners recognize methods and
// declare phases. Empty lists fall back to the registry defaults.
// metrics may be nil.
func NewDispatcher(methods []hook.Method, phases []hook.Phase, metrics *Metrics, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		app:      &App{Name: "app"},
		chain:    hook.NewChain(logger),
		metrics:  metrics,
		tracer:   noop.NewTracerProvider().Tracer("hookchain"),
		logger:   logger,
		services: make(map[string]*Service),
	}
	reg := d.app.Enable(methods, phases)
	d.methods = reg.Methods()
	d.phases = reg.Phases()
	return d
}

// WithTracer makes the dispatcher emit a span per call and per chain run.
func (d *Dispatcher) WithTracer(tracer trace.Tracer) *Dispatcher {
	if tracer != nil {
		d.tracer = tracer
	}
	return d
}

// App returns the application owner.
func (d *Dispatcher) App() *App {
	return d.app
}

// AddService enables hooks on svc and makes it callable by name.
func (d *Dispatcher) AddService(svc *Service) error {
	if svc == nil || svc.Name == "" {
		return errors.New("service name is required")
	}
	if svc.handler == nil {
		return fmt.Errorf("service %s: handler is required", svc.Name)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.services[svc.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateService, svc.Name)
	}
	svc.Enable(d.methods, d.phases)
	d.services[svc.Name] = svc
	return nil
}

// Service returns the service registered under name.
func (d *Dispatcher) Service(name string) (*Service, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	svc, ok := d.services[name]
	return svc, ok
}

// ServiceNames returns the registered service names, sorted.
func (d *Dispatcher) ServiceNames() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.services))
	for name := range d.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call dispatches method on the named service and returns its result.
func (d *Dispatcher) Call(ctx context.Context, service string, method hook.Method, args ...interface{}) (interface{}, error) {
	tr, err := d.Dispatch(ctx, service, method, args)
	if err != nil {
		return nil, err
	}
	return tr.After.Result, nil
}

// Dispatch runs the full hook lifecycle for one call and returns the
// records it produced.
//
// Application before hooks run ahead of service before hooks; service
// after hooks run ahead of application after hooks. On any failure the
// error chain runs with a record carrying the failure, and the original
// error is returned. A failing error chain is logged and counted only.
func (d *Dispatcher) Dispatch(ctx context.Context, service string, method hook.Method, args []interface{}) (*Trace, error) {
	svc, ok := d.Service(service)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, service)
	}

	callID := uuid.NewString()
	ctx, span := d.tracer.Start(ctx, "hookchain.dispatch", trace.WithAttributes(
		attribute.String("hookchain.call_id", callID),
		attribute.String("hookchain.service", svc.Name),
		attribute.String("hookchain.method", string(method)),
	))
	defer span.End()

	tr, err := d.dispatch(ctx, svc, method, args, callID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else if tr.Skipped {
		span.SetAttributes(attribute.Bool("hookchain.skipped", true))
	}
	return tr, err
}

func (d *Dispatcher) dispatch(ctx context.Context, svc *Service, method hook.Method, args []interface{}, callID string) (*Trace, error) {
	tr := &Trace{CallID: callID}
	logger := loggerFromContext(ctx)
	if logger == nil {
		logger = d.logger
	}
	logger = logger.With("call_id", tr.CallID, "service", svc.Name, "method", method)
	ctx = context.WithValue(ctx, ctxkey.LoggerKey{}, logger)

	rec, err := hook.BuildRecord(method, hook.PhaseBefore, args, hook.RecordContext{
		App:      d.app,
		Service:  svc,
		Provider: svc.Provider,
	})
	if err != nil {
		d.recordDispatch(svc.Name, method, err)
		return nil, err
	}

	before, err := d.runPhase(ctx, svc, hook.PhaseBefore, rec, hook.AppFirst)
	if err != nil {
		return tr, d.fail(ctx, logger, svc, tr, rec, err)
	}
	rec = before
	tr.Before = rec.Clone()

	after := rec.Clone()
	after.Type = hook.PhaseAfter
	if rec.Result != nil {
		tr.Skipped = true
		if d.metrics != nil {
			d.metrics.SkippedTotal.WithLabelValues(svc.Name, string(method)).Inc()
		}
		logger.Debug("operation skipped, before hook supplied result")
	} else {
		result, err := svc.handler(ctx, method, d.args.Denormalize(rec))
		if err != nil {
			return tr, d.fail(ctx, logger, svc, tr, rec, err)
		}
		after.Result = result
	}

	done, err := d.runPhase(ctx, svc, hook.PhaseAfter, after, hook.ServiceFirst)
	if err != nil {
		return tr, d.fail(ctx, logger, svc, tr, after, err)
	}
	tr.After = done

	d.recordDispatch(svc.Name, method, nil)
	logger.Debug("call dispatched", "skipped", tr.Skipped)
	return tr, nil
}

// runPhase runs the combined interceptor list for phase. Phases the owners
// do not declare pass the record through unchanged.
func (d *Dispatcher) runPhase(ctx context.Context, svc *Service, phase hook.Phase, rec *hook.Record, order hook.Order) (*hook.Record, error) {
	if !d.declares(phase) {
		return rec, nil
	}
	list := hook.Collect(d.app, svc, phase, rec.Method, order)
	if len(list) == 0 {
		return rec, nil
	}

	ctx, span := d.tracer.Start(ctx, "hookchain.chain."+string(phase), trace.WithAttributes(
		attribute.Int("hookchain.interceptors", len(list)),
	))
	defer span.End()

	start := time.Now()
	out, err := d.chain.Run(ctx, list, rec, svc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if d.metrics != nil {
		d.metrics.ChainDuration.WithLabelValues(string(phase), string(rec.Method)).Observe(time.Since(start).Seconds())
		if err != nil {
			d.metrics.ChainFailures.WithLabelValues(string(phase), string(rec.Method)).Inc()
		}
	}
	return out, err
}

// fail runs the error chain for err and returns err unchanged.
func (d *Dispatcher) fail(ctx context.Context, logger *slog.Logger, svc *Service, tr *Trace, rec *hook.Record, err error) error {
	d.recordDispatch(svc.Name, rec.Method, err)

	if hooked, ok := hook.RecordOf(err); ok {
		rec = hooked
	}
	errRec := rec.Clone()
	errRec.Type = hook.PhaseError
	errRec.Error = err

	out, chainErr := d.runPhase(ctx, svc, hook.PhaseError, errRec, hook.ServiceFirst)
	if chainErr != nil {
		if d.metrics != nil {
			d.metrics.ErrorChainFail.Inc()
		}
		logger.Warn("error hook chain failed", "error", chainErr, "original_error", err)
		tr.Error = errRec
		return err
	}
	tr.Error = out
	logger.Debug("call failed", "error", err)
	return err
}

func (d *Dispatcher) declares(phase hook.Phase) bool {
	for _, p := range d.phases {
		if p == phase {
			return true
		}
	}
	return false
}

func (d *Dispatcher) recordDispatch(service string, method hook.Method, err error) {
	if d.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	d.metrics.DispatchTotal.WithLabelValues(service, string(method), status).Inc()
}
