// Package config provides configuration types for hookchain.
//
// The configuration declares which phases and methods owners accept, how
// the process logs and exports metrics, and an optional declarative hook
// plan: rules that are turned into interceptors and registered on the
// application or on a named service at startup.
package config

import (
	"github.com/Sentinel-Gate/hookchain/internal/domain/hook"
)

// Rule actions understood by the plan builder.
const (
	ActionSetParams     = "set_params"
	ActionRequireParams = "require_params"
	ActionDeny          = "deny"
	ActionSetResult     = "set_result"
)

// Rule scopes.
const (
	ScopeApp     = "app"
	ScopeService = "service"
)

// Config is the top-level configuration for hookchain.
type Config struct {
	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn", "error".
	// Defaults to "info" if empty. DevMode=true overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// Phases are the hook phases every owner declares when enabled.
	// Defaults to before, after, error.
	Phases []string `yaml:"phases" mapstructure:"phases" validate:"omitempty,unique,dive,required"`

	// Methods are the operation kinds owners recognize.
	// Defaults to all six methods.
	Methods []string `yaml:"methods" mapstructure:"methods" validate:"omitempty,unique,dive,hook_method"`

	// Services names the services the plan may target.
	Services []string `yaml:"services" mapstructure:"services" validate:"omitempty,unique,dive,required"`

	// Metrics configures Prometheus metrics.
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`

	// Hooks is the declarative hook plan. Rules are registered in order.
	Hooks []HookRuleConfig `yaml:"hooks" mapstructure:"hooks" validate:"omitempty,dive"`

	// DevMode enables development features (verbose logging).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// MetricsConfig configures metric collection.
type MetricsConfig struct {
	// Enabled turns metric collection on or off.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// Namespace prefixes every metric name. Defaults to "hookchain".
	Namespace string `yaml:"namespace" mapstructure:"namespace" validate:"omitempty,alphanum"`
}

// HookRuleConfig declares one interceptor.
type HookRuleConfig struct {
	// Name identifies the rule in logs and errors.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`

	// Phase is the phase the rule is registered for. Must be one of Phases.
	Phase string `yaml:"phase" mapstructure:"phase" validate:"required"`

	// Scope is "app" (default) or "service".
	Scope string `yaml:"scope" mapstructure:"scope" validate:"omitempty,oneof=app service"`

	// Service is the target service name when Scope is "service".
	Service string `yaml:"service" mapstructure:"service"`

	// Methods restricts the rule to these methods. "all" (default) matches every method.
	Methods []string `yaml:"methods" mapstructure:"methods" validate:"omitempty,dive,hook_method_or_all"`

	// When is an optional CEL condition over the record
	// (method, type, provider, id, data, params, has_result).
	When string `yaml:"when" mapstructure:"when"`

	// Action is what the interceptor does:
	// set_params, require_params, deny, set_result.
	Action string `yaml:"action" mapstructure:"action" validate:"required,oneof=set_params require_params deny set_result"`

	// Params are merged into the record for set_params, or listed as
	// required keys for require_params.
	Params map[string]interface{} `yaml:"params" mapstructure:"params"`

	// Result is stored on the record for set_result, skipping the operation.
	Result interface{} `yaml:"result" mapstructure:"result"`

	// Reason is reported when a deny or require_params rule fails a call.
	Reason string `yaml:"reason" mapstructure:"reason"`
}

// SetDevDefaults applies permissive defaults for development mode.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	c.LogLevel = "debug"
	c.Metrics.Enabled = true
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if len(c.Phases) == 0 {
		for _, p := range hook.DefaultPhases() {
			c.Phases = append(c.Phases, string(p))
		}
	}
	if len(c.Methods) == 0 {
		for _, m := range hook.AllMethods() {
			c.Methods = append(c.Methods, string(m))
		}
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "hookchain"
	}

	for i := range c.Hooks {
		rule := &c.Hooks[i]
		if rule.Scope == "" {
			rule.Scope = ScopeApp
		}
		if len(rule.Methods) == 0 {
			rule.Methods = []string{hook.MethodAll}
		}
	}
}

// HookPhases returns Phases as hook.Phase values.
func (c *Config) HookPhases() []hook.Phase {
	out := make([]hook.Phase, len(c.Phases))
	for i, p := range c.Phases {
		out[i] = hook.Phase(p)
	}
	return out
}

// HookMethods returns Methods as hook.Method values.
func (c *Config) HookMethods() []hook.Method {
	out := make([]hook.Method, len(c.Methods))
	for i, m := range c.Methods {
		out[i] = hook.Method(m)
	}
	return out
}
