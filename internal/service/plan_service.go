package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/Sentinel-Gate/hookchain/internal/config"
	"github.com/Sentinel-Gate/hookchain/internal/domain/hook"
)

var (
	// ErrDenied is returned by deny rules.
	ErrDenied = errors.New("call denied")
	// ErrMissingParams is returned by require_params rules.
	ErrMissingParams = errors.New("missing required params")
)

// ConditionCompiler turns a rule's when expression into a hook.Condition.
type ConditionCompiler interface {
	Condition(expr string) (hook.Condition, error)
}

// PlanBuilder turns declarative hook rules into interceptors and registers
// them on a Dispatcher's owners.
type PlanBuilder struct {
	conditions ConditionCompiler
	logger     *slog.Logger
}

// NewPlanBuilder creates a plan builder. conditions may be nil when no rule
// uses a when expression.
func NewPlanBuilder(conditions ConditionCompiler, logger *slog.Logger) *PlanBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlanBuilder{conditions: conditions, logger: logger}
}

// Apply registers every rule, in order, on the app or the named service.
// It stops at the first rule that cannot be built or registered.
func (b *PlanBuilder) Apply(d *Dispatcher, rules []config.HookRuleConfig) error {
	for i, rule := range rules {
		fn, err := b.Build(rule)
		if err != nil {
			return fmt.Errorf("hooks[%d] (%s): %w", i, rule.Name, err)
		}

		owner, err := b.owner(d, rule)
		if err != nil {
			return fmt.Errorf("hooks[%d] (%s): %w", i, rule.Name, err)
		}

		methods := rule.Methods
		if len(methods) == 0 {
			methods = []string{hook.MethodAll}
		}
		reg := hook.Registration{}
		for _, m := range methods {
			reg[m] = fn
		}

		if err := owner.Hooks(map[hook.Phase]interface{}{hook.Phase(rule.Phase): reg}); err != nil {
			return fmt.Errorf("hooks[%d] (%s): %w", i, rule.Name, err)
		}
		b.logger.Debug("hook rule registered",
			"name", rule.Name,
			"phase", rule.Phase,
			"scope", rule.Scope,
			"methods", methods,
			"action", rule.Action,
		)
	}
	return nil
}

// Build returns the interceptor for rule, guarded by its when expression.
func (b *PlanBuilder) Build(rule config.HookRuleConfig) (hook.Interceptor, error) {
	var fn hook.Interceptor
	switch rule.Action {
	case config.ActionSetParams:
		fn = setParams(rule.Params)
	case config.ActionRequireParams:
		fn = requireParams(rule.Name, rule.Params, rule.Reason)
	case config.ActionDeny:
		fn = deny(rule.Name, rule.Reason)
	case config.ActionSetResult:
		fn = setResult(rule.Result)
	default:
		return nil, fmt.Errorf("unknown action %q", rule.Action)
	}

	if rule.When == "" {
		return fn, nil
	}
	if b.conditions == nil {
		return nil, errors.New("when expression requires a condition compiler")
	}
	cond, err := b.conditions.Condition(rule.When)
	if err != nil {
		return nil, fmt.Errorf("when: %w", err)
	}
	return hook.When(cond, fn), nil
}

func (b *PlanBuilder) owner(d *Dispatcher, rule config.HookRuleConfig) (*hook.Host, error) {
	if rule.Scope != config.ScopeService {
		return &d.App().Host, nil
	}
	svc, ok := d.Service(rule.Service)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, rule.Service)
	}
	return &svc.Host, nil
}

func setParams(params map[string]interface{}) hook.Interceptor {
	return hook.Direct(func(_ context.Context, rec *hook.Record) (*hook.Record, error) {
		next := rec.Clone()
		for k, v := range params {
			next.Params[k] = v
		}
		return next, nil
	})
}

func requireParams(name string, params map[string]interface{}, reason string) hook.Interceptor {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if reason == "" {
		reason = "rule " + name
	}

	return hook.Direct(func(_ context.Context, rec *hook.Record) (*hook.Record, error) {
		var missing []string
		for _, k := range keys {
			if _, ok := rec.Params[k]; !ok {
				missing = append(missing, k)
			}
		}
		if len(missing) == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("%w %v: %s", ErrMissingParams, missing, reason)
	})
}

func deny(name, reason string) hook.Interceptor {
	if reason == "" {
		reason = "rule " + name
	}
	return hook.Direct(func(_ context.Context, rec *hook.Record) (*hook.Record, error) {
		return nil, fmt.Errorf("%w: %s", ErrDenied, reason)
	})
}

func setResult(result interface{}) hook.Interceptor {
	return hook.Direct(func(_ context.Context, rec *hook.Record) (*hook.Record, error) {
		next := rec.Clone()
		next.Result = result
		return next, nil
	})
}
