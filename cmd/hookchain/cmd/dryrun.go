package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"gopkg.in/yaml.v3"

	"github.com/Sentinel-Gate/hookchain/internal/adapter/outbound/cel"
	"github.com/Sentinel-Gate/hookchain/internal/config"
	"github.com/Sentinel-Gate/hookchain/internal/domain/hook"
	"github.com/Sentinel-Gate/hookchain/internal/service"
)

// defaultService is used when the config declares no services.
const defaultService = "default"

type dryRunOptions struct {
	method  string
	service string
	id      string
	data    string
	params  string

	// traceOut receives spans when set.
	traceOut io.Writer
}

var (
	dryRunOpts dryRunOptions
	devMode    bool
	withTrace  bool
)

var dryrunCmd = &cobra.Command{
	Use:   "dryrun",
	Short: "Dispatch one call through the configured hook plan",
	Long: `Build the application and its services from the config, register the
hook plan, and dispatch a single call to an echo handler. The records the
call travelled through are printed as YAML.

--id, --data and --params accept YAML or JSON values.

Example:
  hookchain dryrun --method get --id 5 --params '{"tenant": "acme"}'`,
	Args: cobra.NoArgs,
	RunE: runDryRun,
}

func init() {
	dryrunCmd.Flags().StringVar(&dryRunOpts.method, "method", "find", "method to dispatch (find, get, create, update, patch, remove)")
	dryrunCmd.Flags().StringVar(&dryRunOpts.service, "service", "", "target service (default: first configured service)")
	dryrunCmd.Flags().StringVar(&dryRunOpts.id, "id", "", "entity id")
	dryrunCmd.Flags().StringVar(&dryRunOpts.data, "data", "", "payload for create, update and patch")
	dryrunCmd.Flags().StringVar(&dryRunOpts.params, "params", "", "call params as a map")
	dryrunCmd.Flags().BoolVar(&withTrace, "trace", false, "print OpenTelemetry spans to stderr")
	dryrunCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (debug logging, metrics)")
	rootCmd.AddCommand(dryrunCmd)
}

func runDryRun(cmd *cobra.Command, args []string) error {
	// Load configuration (without validation, so CLI flags can override first)
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if devMode {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	opts := dryRunOpts
	if withTrace {
		opts.traceOut = cmd.ErrOrStderr()
	}

	report, callErr := dryRun(cmd.Context(), cfg, opts, logger)
	if report != nil {
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("failed to render report: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("failed to render report: %w", err)
		}
	}
	return callErr
}

// dryRunReport is the YAML document printed by dryrun.
type dryRunReport struct {
	CallID  string             `yaml:"call_id"`
	Service string             `yaml:"service"`
	Method  string             `yaml:"method"`
	Skipped bool               `yaml:"skipped"`
	Before  *recordView        `yaml:"before,omitempty"`
	After   *recordView        `yaml:"after,omitempty"`
	Error   *recordView        `yaml:"error,omitempty"`
	Failure string             `yaml:"failure,omitempty"`
	Metrics map[string]float64 `yaml:"metrics,omitempty"`
}

// recordView is the printable part of a hook.Record. Owners are omitted.
type recordView struct {
	Method   string                 `yaml:"method"`
	Type     string                 `yaml:"type"`
	ID       interface{}            `yaml:"id,omitempty"`
	Data     interface{}            `yaml:"data,omitempty"`
	Params   map[string]interface{} `yaml:"params"`
	Provider string                 `yaml:"provider,omitempty"`
	Result   interface{}            `yaml:"result,omitempty"`
	Error    string                 `yaml:"error,omitempty"`
}

func viewOf(rec *hook.Record) *recordView {
	if rec == nil {
		return nil
	}
	v := &recordView{
		Method:   string(rec.Method),
		Type:     string(rec.Type),
		ID:       rec.ID,
		Data:     rec.Data,
		Params:   rec.Params,
		Provider: rec.Provider,
		Result:   rec.Result,
	}
	if rec.Error != nil {
		v.Error = rec.Error.Error()
	}
	return v
}

// dryRun wires a dispatcher from cfg and dispatches one call. The report is
// returned even when the call fails, as long as the call reached the hooks.
func dryRun(ctx context.Context, cfg *config.Config, opts dryRunOptions, logger *slog.Logger) (*dryRunReport, error) {
	reg := prometheus.NewRegistry()
	var metrics *service.Metrics
	if cfg.Metrics.Enabled {
		metrics = service.NewMetrics(reg, cfg.Metrics.Namespace)
	}

	d := service.NewDispatcher(cfg.HookMethods(), cfg.HookPhases(), metrics, logger)
	if opts.traceOut != nil {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(opts.traceOut), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
		defer func() { _ = tp.Shutdown(context.WithoutCancel(ctx)) }()
		d.WithTracer(tp.Tracer("hookchain"))
	}
	names := cfg.Services
	if len(names) == 0 {
		names = []string{defaultService}
	}
	for _, name := range names {
		svc := service.NewService(name, echoHandler(name))
		svc.Provider = "cli"
		if err := d.AddService(svc); err != nil {
			return nil, err
		}
	}

	eval, err := cel.NewEvaluator()
	if err != nil {
		return nil, err
	}
	if err := service.NewPlanBuilder(eval, logger).Apply(d, cfg.Hooks); err != nil {
		return nil, fmt.Errorf("failed to apply hook plan: %w", err)
	}

	target := opts.service
	if target == "" {
		target = names[0]
	}
	method := hook.Method(opts.method)
	callArgs, err := buildArgs(method, opts)
	if err != nil {
		return nil, err
	}

	trace, callErr := d.Dispatch(ctx, target, method, callArgs)
	if trace == nil {
		return nil, callErr
	}

	report := &dryRunReport{
		CallID:  trace.CallID,
		Service: target,
		Method:  string(method),
		Skipped: trace.Skipped,
		Before:  viewOf(trace.Before),
		After:   viewOf(trace.After),
		Error:   viewOf(trace.Error),
	}
	if callErr != nil {
		report.Failure = callErr.Error()
	}
	if metrics != nil {
		report.Metrics, err = gatherMetrics(reg)
		if err != nil {
			logger.Warn("failed to gather metrics", "error", err)
		}
	}
	return report, callErr
}

// buildArgs assembles positional call arguments for method from the flags.
func buildArgs(method hook.Method, opts dryRunOptions) ([]interface{}, error) {
	if !hook.HasConverter(method) {
		return nil, fmt.Errorf("%w: %q", hook.ErrUnknownMethod, method)
	}

	id, err := parseValue("id", opts.id)
	if err != nil {
		return nil, err
	}
	data, err := parseValue("data", opts.data)
	if err != nil {
		return nil, err
	}
	raw, err := parseValue("params", opts.params)
	if err != nil {
		return nil, err
	}
	params := hook.Params{}
	if raw != nil {
		m, ok := raw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("--params must be a map, got %T", raw)
		}
		params = m
	}

	return hook.ArgsNormalizer{}.Denormalize(&hook.Record{Method: method, ID: id, Data: data, Params: params}), nil
}

// parseValue decodes a YAML or JSON flag value. Empty input yields nil.
func parseValue(flag, s string) (interface{}, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var v interface{}
	if err := yaml.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("--%s: %w", flag, err)
	}
	return v, nil
}

// echoHandler answers every call with the arguments it received.
func echoHandler(name string) service.Handler {
	return func(_ context.Context, method hook.Method, args []interface{}) (interface{}, error) {
		return map[string]interface{}{
			"service": name,
			"method":  string(method),
			"args":    args,
		}, nil
	}
}

// gatherMetrics flattens counter and histogram samples into name{labels} keys.
// Histograms report their sample count.
func gatherMetrics(reg *prometheus.Registry) (map[string]float64, error) {
	families, err := reg.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			out[mf.GetName()+labelString(m.GetLabel())] = metricValue(m)
		}
	}
	return out, nil
}

func metricValue(m *dto.Metric) float64 {
	switch {
	case m.GetCounter() != nil:
		return m.GetCounter().GetValue()
	case m.GetGauge() != nil:
		return m.GetGauge().GetValue()
	case m.GetHistogram() != nil:
		return float64(m.GetHistogram().GetSampleCount())
	default:
		return 0
	}
}

func labelString(labels []*dto.LabelPair) string {
	if len(labels) == 0 {
		return ""
	}
	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		parts = append(parts, fmt.Sprintf("%s=%q", l.GetName(), l.GetValue()))
	}
	sort.Strings(parts)
	return "{" + strings.Join(parts, ",") + "}"
}
