package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Sentinel-Gate/hookchain/internal/ctxkey"
	"github.com/Sentinel-Gate/hookchain/internal/domain/hook"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// echoHandler returns the arguments it was called with.
func echoHandler(calls *int) Handler {
	return func(_ context.Context, method hook.Method, args []interface{}) (interface{}, error) {
		*calls++
		return map[string]interface{}{"method": string(method), "args": args}, nil
	}
}

func newTestDispatcher(t *testing.T, handler Handler) (*Dispatcher, *Service, *Metrics) {
	t.Helper()
	metrics := NewMetrics(prometheus.NewRegistry(), "test")
	d := NewDispatcher(nil, nil, metrics, testLogger())
	svc := NewService("users", handler)
	svc.Provider = "rest"
	if err := d.AddService(svc); err != nil {
		t.Fatalf("AddService() error: %v", err)
	}
	return d, svc, metrics
}

func tagger(calls *[]string, tag string) hook.Interceptor {
	return hook.Direct(func(_ context.Context, rec *hook.Record) (*hook.Record, error) {
		*calls = append(*calls, tag)
		return nil, nil
	})
}

func TestDispatch_Success(t *testing.T) {
	var calls int
	d, _, metrics := newTestDispatcher(t, echoHandler(&calls))

	trace, err := d.Dispatch(context.Background(), "users", hook.MethodGet, []interface{}{7, hook.Params{"a": 1}})
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	if calls != 1 {
		t.Errorf("handler calls = %d, want 1", calls)
	}
	if trace.CallID == "" {
		t.Error("CallID should be set")
	}
	if trace.Before.Type != hook.PhaseBefore || trace.Before.ID != 7 {
		t.Errorf("Before = %+v", trace.Before)
	}
	if trace.After.Type != hook.PhaseAfter || trace.After.Result == nil {
		t.Errorf("After = %+v", trace.After)
	}
	if trace.After.Provider != "rest" {
		t.Errorf("After.Provider = %q, want %q", trace.After.Provider, "rest")
	}
	if got := testutil.ToFloat64(metrics.DispatchTotal.WithLabelValues("users", "get", "ok")); got != 1 {
		t.Errorf("dispatch_total{ok} = %v, want 1", got)
	}
}

func TestDispatch_PhaseOrder(t *testing.T) {
	var calls []string
	d, svc, _ := newTestDispatcher(t, func(context.Context, hook.Method, []interface{}) (interface{}, error) {
		calls = append(calls, "operation")
		return "ok", nil
	})

	if err := d.App().Hooks(map[hook.Phase]interface{}{
		hook.PhaseBefore: tagger(&calls, "app-before"),
		hook.PhaseAfter:  tagger(&calls, "app-after"),
	}); err != nil {
		t.Fatalf("app Hooks() error: %v", err)
	}
	if err := svc.Hooks(map[hook.Phase]interface{}{
		hook.PhaseBefore: tagger(&calls, "svc-before"),
		hook.PhaseAfter:  tagger(&calls, "svc-after"),
	}); err != nil {
		t.Fatalf("service Hooks() error: %v", err)
	}

	if _, err := d.Call(context.Background(), "users", hook.MethodFind); err != nil {
		t.Fatalf("Call() error: %v", err)
	}

	want := []string{"app-before", "svc-before", "operation", "svc-after", "app-after"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("calls[%d] = %q, want %q", i, calls[i], want[i])
		}
	}
}

func TestDispatch_BeforeResultSkipsOperation(t *testing.T) {
	var calls int
	d, _, metrics := newTestDispatcher(t, echoHandler(&calls))

	cached := hook.Direct(func(_ context.Context, rec *hook.Record) (*hook.Record, error) {
		next := rec.Clone()
		next.Result = "cached"
		return next, nil
	})
	if err := d.App().Hooks(map[hook.Phase]interface{}{hook.PhaseBefore: cached}); err != nil {
		t.Fatalf("Hooks() error: %v", err)
	}

	trace, err := d.Dispatch(context.Background(), "users", hook.MethodGet, []interface{}{1})
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	if calls != 0 {
		t.Errorf("handler calls = %d, want 0", calls)
	}
	if !trace.Skipped {
		t.Error("Skipped = false, want true")
	}
	if trace.After.Result != "cached" {
		t.Errorf("Result = %v, want %q", trace.After.Result, "cached")
	}
	if got := testutil.ToFloat64(metrics.SkippedTotal.WithLabelValues("users", "get")); got != 1 {
		t.Errorf("operations_skipped_total = %v, want 1", got)
	}
}

func TestDispatch_ArgsRebuiltFromBeforeRecord(t *testing.T) {
	var got []interface{}
	d, svc, _ := newTestDispatcher(t, func(_ context.Context, _ hook.Method, args []interface{}) (interface{}, error) {
		got = args
		return "ok", nil
	})

	rewrite := hook.Direct(func(_ context.Context, rec *hook.Record) (*hook.Record, error) {
		next := rec.Clone()
		next.ID = 99
		next.Params["tenant"] = "acme"
		return next, nil
	})
	if err := svc.Hooks(map[hook.Phase]interface{}{hook.PhaseBefore: hook.Registration{"remove": rewrite}}); err != nil {
		t.Fatalf("Hooks() error: %v", err)
	}

	if _, err := d.Call(context.Background(), "users", hook.MethodRemove, 1); err != nil {
		t.Fatalf("Call() error: %v", err)
	}
	if len(got) != 2 || got[0] != 99 {
		t.Fatalf("args = %v, want [99 params]", got)
	}
	params, ok := got[1].(hook.Params)
	if !ok || params["tenant"] != "acme" {
		t.Errorf("params = %v, want tenant=acme", got[1])
	}
}

func TestDispatch_HandlerErrorRunsErrorChain(t *testing.T) {
	boom := errors.New("boom")
	d, svc, metrics := newTestDispatcher(t, func(context.Context, hook.Method, []interface{}) (interface{}, error) {
		return nil, boom
	})

	var seen *hook.Record
	observe := hook.Direct(func(_ context.Context, rec *hook.Record) (*hook.Record, error) {
		seen = rec
		return nil, nil
	})
	if err := svc.Hooks(map[hook.Phase]interface{}{hook.PhaseError: observe}); err != nil {
		t.Fatalf("Hooks() error: %v", err)
	}

	trace, err := d.Dispatch(context.Background(), "users", hook.MethodCreate, []interface{}{map[string]interface{}{"n": 1}})
	if !errors.Is(err, boom) {
		t.Fatalf("Dispatch() error = %v, want boom", err)
	}
	if seen == nil {
		t.Fatal("error chain did not run")
	}
	if seen.Type != hook.PhaseError || !errors.Is(seen.Error, boom) {
		t.Errorf("error record = %+v", seen)
	}
	if trace.Error == nil || trace.After != nil {
		t.Errorf("trace = %+v, want Error set and After nil", trace)
	}
	if got := testutil.ToFloat64(metrics.DispatchTotal.WithLabelValues("users", "create", "error")); got != 1 {
		t.Errorf("dispatch_total{error} = %v, want 1", got)
	}
}

func TestDispatch_BeforeHookFailure(t *testing.T) {
	var calls int
	d, _, metrics := newTestDispatcher(t, echoHandler(&calls))
	denied := errors.New("denied")

	stamp := hook.Direct(func(_ context.Context, rec *hook.Record) (*hook.Record, error) {
		next := rec.Clone()
		next.Params["stamped"] = true
		return next, nil
	})
	reject := hook.Direct(func(context.Context, *hook.Record) (*hook.Record, error) {
		return nil, denied
	})
	var seen *hook.Record
	observe := hook.Direct(func(_ context.Context, rec *hook.Record) (*hook.Record, error) {
		seen = rec
		return nil, nil
	})
	if err := d.App().Hooks(map[hook.Phase]interface{}{
		hook.PhaseBefore: []hook.Interceptor{stamp, reject},
		hook.PhaseError:  observe,
	}); err != nil {
		t.Fatalf("Hooks() error: %v", err)
	}

	_, err := d.Call(context.Background(), "users", hook.MethodGet, 1)
	if !errors.Is(err, denied) {
		t.Fatalf("Call() error = %v, want denied", err)
	}
	rec, ok := hook.RecordOf(err)
	if !ok || rec.Params["stamped"] != true {
		t.Errorf("annotated record = %+v, want stamped params", rec)
	}
	if calls != 0 {
		t.Errorf("handler calls = %d, want 0", calls)
	}
	if seen == nil || seen.Params["stamped"] != true {
		t.Errorf("error record = %+v, want the record current at failure", seen)
	}
	if got := testutil.ToFloat64(metrics.ChainFailures.WithLabelValues("before", "get")); got != 1 {
		t.Errorf("chain_failures_total = %v, want 1", got)
	}
}

func TestDispatch_ErrorChainFailureKeepsOriginal(t *testing.T) {
	boom := errors.New("boom")
	d, svc, metrics := newTestDispatcher(t, func(context.Context, hook.Method, []interface{}) (interface{}, error) {
		return nil, boom
	})
	broken := hook.Direct(func(context.Context, *hook.Record) (*hook.Record, error) {
		return nil, errors.New("error hook broke")
	})
	if err := svc.Hooks(map[hook.Phase]interface{}{hook.PhaseError: broken}); err != nil {
		t.Fatalf("Hooks() error: %v", err)
	}

	_, err := d.Call(context.Background(), "users", hook.MethodPatch, 1, map[string]interface{}{"a": 1})
	if !errors.Is(err, boom) {
		t.Fatalf("Call() error = %v, want boom", err)
	}
	if got := testutil.ToFloat64(metrics.ErrorChainFail); got != 1 {
		t.Errorf("error_chain_failures_total = %v, want 1", got)
	}
}

func TestDispatch_BoundOwnerAndLogger(t *testing.T) {
	var calls int
	d, svc, _ := newTestDispatcher(t, echoHandler(&calls))

	var bound interface{}
	var hasLogger bool
	inspect := hook.Direct(func(ctx context.Context, rec *hook.Record) (*hook.Record, error) {
		bound = hook.Bound(ctx)
		_, hasLogger = ctx.Value(ctxkey.LoggerKey{}).(*slog.Logger)
		return nil, nil
	})
	if err := d.App().Hooks(map[hook.Phase]interface{}{hook.PhaseBefore: inspect}); err != nil {
		t.Fatalf("Hooks() error: %v", err)
	}

	if _, err := d.Call(context.Background(), "users", hook.MethodFind); err != nil {
		t.Fatalf("Call() error: %v", err)
	}
	if bound != svc {
		t.Errorf("Bound() = %v, want the service", bound)
	}
	if !hasLogger {
		t.Error("context should carry the call logger")
	}
}

func TestDispatch_UnknownServiceAndMethod(t *testing.T) {
	var calls int
	d, _, _ := newTestDispatcher(t, echoHandler(&calls))

	if _, err := d.Call(context.Background(), "orders", hook.MethodFind); !errors.Is(err, ErrUnknownService) {
		t.Errorf("Call(unknown service) error = %v, want ErrUnknownService", err)
	}
	if _, err := d.Call(context.Background(), "users", hook.Method("upsert")); !errors.Is(err, hook.ErrUnknownMethod) {
		t.Errorf("Call(unknown method) error = %v, want ErrUnknownMethod", err)
	}
	if calls != 0 {
		t.Errorf("handler calls = %d, want 0", calls)
	}
}

func TestDispatch_UndeclaredPhaseSkipped(t *testing.T) {
	var calls int
	d := NewDispatcher(nil, []hook.Phase{hook.PhaseBefore}, nil, testLogger())
	svc := NewService("users", echoHandler(&calls))
	if err := d.AddService(svc); err != nil {
		t.Fatalf("AddService() error: %v", err)
	}

	result, err := d.Call(context.Background(), "users", hook.MethodGet, 3)
	if err != nil {
		t.Fatalf("Call() error: %v", err)
	}
	if result == nil || calls != 1 {
		t.Errorf("result = %v, calls = %d", result, calls)
	}
}

func TestAddService(t *testing.T) {
	var calls int
	d, _, _ := newTestDispatcher(t, echoHandler(&calls))

	if err := d.AddService(NewService("users", echoHandler(&calls))); !errors.Is(err, ErrDuplicateService) {
		t.Errorf("AddService(duplicate) error = %v, want ErrDuplicateService", err)
	}
	if err := d.AddService(NewService("", echoHandler(&calls))); err == nil {
		t.Error("AddService(no name) expected error")
	}
	if err := d.AddService(NewService("orders", nil)); err == nil {
		t.Error("AddService(no handler) expected error")
	}
	if err := d.AddService(NewService("accounts", echoHandler(&calls))); err != nil {
		t.Fatalf("AddService() error: %v", err)
	}

	names := d.ServiceNames()
	if len(names) != 2 || names[0] != "accounts" || names[1] != "users" {
		t.Errorf("ServiceNames() = %v, want [accounts users]", names)
	}
	svc, ok := d.Service("accounts")
	if !ok || svc.HookRegistry() == nil {
		t.Error("added service should be enabled for hooks")
	}
}

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "")

	if m.DispatchTotal == nil || m.ChainDuration == nil || m.ChainFailures == nil ||
		m.SkippedTotal == nil || m.ErrorChainFail == nil {
		t.Fatal("metrics not initialized")
	}

	m.ChainDuration.WithLabelValues("before", "get").Observe(0.01)
	gathered, err := reg.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}
	found := false
	for _, mf := range gathered {
		if mf.GetName() == "hookchain_chain_duration_seconds" {
			found = true
		}
	}
	if !found {
		t.Error("hookchain_chain_duration_seconds not registered with default namespace")
	}
}

func TestDispatch_Spans(t *testing.T) {
	boom := errors.New("boom")
	d, svc, _ := newTestDispatcher(t, func(context.Context, hook.Method, []interface{}) (interface{}, error) {
		return nil, boom
	})
	var calls []string
	if err := svc.Hooks(map[hook.Phase]interface{}{hook.PhaseBefore: tagger(&calls, "before")}); err != nil {
		t.Fatalf("Hooks() error: %v", err)
	}

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	d.WithTracer(tp.Tracer("test"))

	if _, err := d.Call(context.Background(), "users", hook.MethodGet, 1); !errors.Is(err, boom) {
		t.Fatalf("Call() error = %v, want boom", err)
	}

	spans := sr.Ended()
	names := make(map[string]sdktrace.ReadOnlySpan, len(spans))
	for _, s := range spans {
		names[s.Name()] = s
	}
	if _, ok := names["hookchain.chain.before"]; !ok {
		t.Errorf("missing before chain span, got %d spans", len(spans))
	}
	root, ok := names["hookchain.dispatch"]
	if !ok {
		t.Fatal("missing dispatch span")
	}
	if root.Status().Code != codes.Error {
		t.Errorf("dispatch span status = %v, want Error", root.Status().Code)
	}
}
